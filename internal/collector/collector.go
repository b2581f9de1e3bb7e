// Package collector runs the quote ingestion pipeline: it polls the provider for
// every configured symbol and publishes each decoded quote as store entries.
package collector

import (
	"context"
	"net/http"
	"sync"
	"time"

	"quotecollector/config"
	"quotecollector/internal/entry"
	"quotecollector/pkg/alphavantage"
	"quotecollector/pkg/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChangeSink receives every change under the collector's namespace.
type ChangeSink interface {
	Broadcast(change storage.StateChange)
	Close() error
}

type Option func(*Collector)

// WithChangeSink forwards state changes to sink, e.g. the websocket feed.
func WithChangeSink(sink ChangeSink) Option {
	return func(c *Collector) { c.sink = sink }
}

// WithClientOptions adds options to the provider client built in Ready.
func WithClientOptions(opts ...alphavantage.Option) Option {
	return func(c *Collector) { c.clientOpts = append(c.clientOpts, opts...) }
}

// Collector owns the lifecycle: Ready starts polling, Unload tears it down.
type Collector struct {
	cfg        config.AlphaVantageConfig
	adapter    *entry.Adapter
	logger     *zap.Logger
	sink       ChangeSink
	clientOpts []alphavantage.Option

	mu        sync.Mutex
	started   bool
	scheduler *Scheduler
	sub       storage.Subscription
	watchDone chan struct{}
}

func New(cfg *config.Config, store storage.Store, logger *zap.Logger, opts ...Option) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("run", uuid.NewString()))

	av := cfg.AlphaVantage
	// blank entries are dropped, so numsym counts the symbols actually polled
	av.Symbols = config.NormalizeSymbols(av.Symbols)

	c := &Collector{
		cfg:     av,
		adapter: entry.NewAdapter(store, cfg.Adapter.Namespace, logger),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ready validates the API key and starts the scheduler. Without a key it logs and
// returns nil, leaving the collector idle. A second call returns ErrAlreadyStarted.
func (c *Collector) Ready(ctx context.Context) error {
	apiKey := c.cfg.APIKey
	opts := []alphavantage.Option{
		alphavantage.WithBaseURL(c.cfg.BaseURL),
		alphavantage.WithHTTPClient(&http.Client{Timeout: c.cfg.HTTPTimeout}),
	}
	client, err := alphavantage.NewClient(apiKey, append(opts, c.clientOpts...)...)
	if err != nil {
		c.logger.Error("api key missing, collector stays idle", zap.Error(err))
		return nil
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	c.logger.Info("config loaded",
		zap.String("apikey", mask(apiKey)),
		zap.Strings("symbols", c.cfg.Symbols),
		zap.Int("timeout_ms", c.cfg.Timeout),
	)

	// every state change under the namespace
	sub, err := c.adapter.SubscribeStates(ctx, "*")
	if err != nil {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		return err
	}
	watchDone := make(chan struct{})
	go c.watch(sub, watchDone)

	counter := entry.NewCounter(c.adapter, "calls", c.logger)
	scheduler := NewScheduler(client, c.adapter, counter, c.cfg.Symbols, c.cfg.Timeout, c.logger)

	c.mu.Lock()
	c.sub = sub
	c.watchDone = watchDone
	c.scheduler = scheduler
	c.mu.Unlock()

	return scheduler.Start(ctx)
}

// OnStateChange is called for every change under the namespace.
func (c *Collector) OnStateChange(id string, state storage.State) {
	c.logger.Debug("state changed", zap.String("id", id), zap.Any("val", state.Val), zap.Bool("ack", state.Ack))
	if c.sink != nil {
		c.sink.Broadcast(storage.StateChange{ID: id, State: state})
	}
}

// Scheduler returns the running scheduler, nil while idle.
func (c *Collector) Scheduler() *Scheduler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduler
}

// Unload stops polling and releases the subscription. callback runs in every case,
// including a panic during cleanup.
func (c *Collector) Unload(callback func()) {
	defer callback()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cleanup failed", zap.Any("panic", r))
		}
	}()

	c.mu.Lock()
	scheduler, sub, watchDone := c.scheduler, c.sub, c.watchDone
	c.scheduler, c.sub = nil, nil
	c.mu.Unlock()

	if scheduler != nil {
		scheduler.Stop()
	}
	if sub != nil {
		_ = sub.Close()
		select {
		case <-watchDone:
		case <-time.After(time.Second):
		}
	}
	if c.sink != nil {
		_ = c.sink.Close()
	}

	c.logger.Info("cleaned everything up...")
}

func (c *Collector) watch(sub storage.Subscription, done chan<- struct{}) {
	defer close(done)
	for change := range sub.C() {
		c.OnStateChange(change.ID, change.State)
	}
}

func mask(key string) string {
	if len(key) < 8 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-2:]
}
