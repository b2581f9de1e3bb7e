package collector

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"quotecollector/internal/entry"
	"quotecollector/pkg/alphavantage"
	"quotecollector/pkg/format"

	"go.uber.org/zap"
)

const (
	// MinTimeout is the shortest poll interval accepted; anything below falls back to DefaultTimeout.
	MinTimeout     = 15 * time.Second
	DefaultTimeout = 120 * time.Second

	maxTimeoutMS = int64(math.MaxInt64 / time.Millisecond)
)

// NormalizeTimeout turns a configured interval in milliseconds into the effective
// poll interval. 0 means unset.
func NormalizeTimeout(ms int) time.Duration {
	if int64(ms) > maxTimeoutMS {
		return time.Duration(maxTimeoutMS) * time.Millisecond
	}
	d := time.Duration(ms) * time.Millisecond
	if d < MinTimeout {
		return DefaultTimeout
	}
	return d
}

// State is the scheduler's position in its loop.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateArmed   State = "armed"
	StateStopped State = "stopped"
)

var ErrAlreadyStarted = errors.New("scheduler already started")

// QuoteFetcher issues a single provider request.
type QuoteFetcher interface {
	QuoteURL(symbol string) string
	Query(ctx context.Context, rawURL string) (json.RawMessage, error)
}

type taskKey struct {
	Symbol string
	Cycle  uint64
	Slot   int // position in the symbol list; duplicates get their own task
}

type stopper interface {
	Stop() bool
}

// Scheduler runs one cycle over the symbol list, then re-arms a one-shot timer for
// the next. A cycle ends once every fetch is dispatched; fetches finish on their own.
type Scheduler struct {
	fetcher   QuoteFetcher
	adapter   *entry.Adapter
	counter   *entry.Counter
	symbols   []string
	timeoutMS int
	logger    *zap.Logger

	afterFunc func(time.Duration, func()) stopper

	mu     sync.Mutex
	state  State
	cycle  uint64
	timer  stopper
	ctx    context.Context
	cancel context.CancelFunc
	tasks  map[taskKey]context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(fetcher QuoteFetcher, adapter *entry.Adapter, counter *entry.Counter,
	symbols []string, timeoutMS int, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		fetcher:   fetcher,
		adapter:   adapter,
		counter:   counter,
		symbols:   append([]string(nil), symbols...),
		timeoutMS: timeoutMS,
		logger:    logger,
		afterFunc: func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
		state:     StateIdle,
		tasks:     make(map[taskKey]context.CancelFunc),
	}
}

// Start runs the first cycle before returning and arms the timer for the next.
// Cancelling ctx has the same effect on future cycles as Stop, minus the wait.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("scheduler started",
		zap.Int("symbols", len(s.symbols)),
		zap.Duration("interval", NormalizeTimeout(s.timeoutMS)),
	)
	s.fire()
	return nil
}

// Stop stops the timer, cancels every outstanding fetch and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.state = StateStopped
	if s.timer != nil {
		s.timer.Stop()
	}
	for key, cancel := range s.tasks {
		cancel()
		delete(s.tasks, key)
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// InFlight returns the number of fetches dispatched but not yet finished.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Wait blocks until the running cycle and every dispatched fetch have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.state == StateStopped || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.state = StateRunning
	s.cycle++
	cycle := s.cycle
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.runCycle(cycle)
	s.arm()
}

func (s *Scheduler) arm() {
	// re-validated on every arm
	d := NormalizeTimeout(s.timeoutMS)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped || s.ctx.Err() != nil {
		return
	}
	s.timer = s.afterFunc(d, s.fire)
	s.state = StateArmed
}

func (s *Scheduler) runCycle(cycle uint64) {
	ctx := s.ctx
	interval := NormalizeTimeout(s.timeoutMS)

	if err := s.adapter.EnsureAndSet(ctx, "numsym", "number of symbols", len(s.symbols)); err != nil {
		s.logger.Warn("failed to publish symbol count", zap.Error(err))
	}
	if err := s.adapter.EnsureAndSet(ctx, "timeout", "poll interval (ms)", interval.Milliseconds()); err != nil {
		s.logger.Warn("failed to publish poll interval", zap.Error(err))
	}
	if err := s.counter.Ensure(ctx); err != nil {
		s.logger.Warn("failed to ensure call counter", zap.Error(err))
	}

	dispatched := 0
	for slot, symbol := range s.symbols {
		if ctx.Err() != nil {
			break
		}

		// the call is counted whether or not its response decodes
		if _, err := s.counter.Increment(ctx); err != nil {
			s.logger.Warn("failed to increment call counter", zap.String("symbol", symbol), zap.Error(err))
		}

		if s.dispatch(taskKey{Symbol: symbol, Cycle: cycle, Slot: slot}) {
			dispatched++
		}
	}

	s.logger.Info(format.Sprintf("cycle {0}: dispatched {1} of {2} symbols, next in {3}",
		cycle, dispatched, len(s.symbols), interval))
}

func (s *Scheduler) dispatch(key taskKey) bool {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.tasks[key] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.finish(key)
		s.ingest(ctx, key.Symbol)
	}()
	return true
}

func (s *Scheduler) finish(key taskKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.tasks[key]; ok {
		cancel()
		delete(s.tasks, key)
	}
}

// ingest fetches, decodes and publishes one symbol. Every failure ends here.
func (s *Scheduler) ingest(ctx context.Context, symbol string) {
	body, err := s.fetcher.Query(ctx, s.fetcher.QuoteURL(symbol))
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Debug("fetch cancelled", zap.String("symbol", symbol))
			return
		}
		s.logger.Warn("failed to fetch quote", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	rec, err := alphavantage.DecodeGlobalQuote(body)
	if err != nil {
		var decErr *alphavantage.DecodeError
		if errors.As(err, &decErr) && decErr.Advisory != "" {
			s.logger.Warn("provider advisory",
				zap.String("symbol", symbol),
				zap.String("advisory", decErr.Advisory),
			)
			return
		}
		s.logger.Warn("failed to decode quote", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	if err := s.adapter.PublishQuote(ctx, symbol, rec); err != nil {
		s.logger.Warn("failed to publish quote", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	s.logger.Debug("quote published", zap.String("symbol", symbol), zap.String("price", rec.Price))
}
