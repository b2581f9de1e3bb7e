package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"quotecollector/config"
	"quotecollector/internal/collector"
	"quotecollector/internal/feed"
	"quotecollector/logger"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config.yaml")
	pflag.Parse()

	// viper config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := collector.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}

	var opts []collector.Option
	feedDone := make(chan struct{})
	if cfg.Feed.Addr != "" {
		hub := feed.NewHub(log)
		opts = append(opts, collector.WithChangeSink(hub))
		go func() {
			defer close(feedDone)
			if err := hub.ListenAndServe(ctx, cfg.Feed.Addr); err != nil {
				log.Error("feed server failed", zap.Error(err))
			}
		}()
	} else {
		close(feedDone)
	}

	// run collector
	c := collector.New(cfg, store, log, opts...)
	if err := c.Ready(ctx); err != nil {
		log.Fatal("collector failed", zap.Error(err))
	}

	<-ctx.Done()
	log.Info("shutting down")

	c.Unload(func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close store", zap.Error(err))
		}
	})
	<-feedDone
}
