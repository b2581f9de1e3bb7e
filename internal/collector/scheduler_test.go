package collector

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"quotecollector/internal/entry"
	"quotecollector/pkg/storage"
	"quotecollector/pkg/storage/memory"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const quoteBody = `{"Global Quote": {
    "01. symbol": "IBM", "02. open": "134.0000", "03. high": "135.5200", "04. low": "133.7700",
    "05. price": "134.5900", "06. volume": "3481293", "07. latest trading day": "2024-03-15",
    "08. previous close": "133.9600", "09. change": "0.6300", "10. change percent": "0.4703%"}}`

const noteBody = `{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`

// fakeFetcher answers from a table and records requested symbols.
type fakeFetcher struct {
	mu        sync.Mutex
	bodies    map[string]string
	errs      map[string]error
	block     bool
	requested []string
}

func (f *fakeFetcher) QuoteURL(symbol string) string { return symbol }

func (f *fakeFetcher) Query(ctx context.Context, rawURL string) (json.RawMessage, error) {
	f.mu.Lock()
	f.requested = append(f.requested, rawURL)
	block := f.block
	body, ok := f.bodies[rawURL]
	err := f.errs[rawURL]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		body = quoteBody
	}
	return json.RawMessage(body), nil
}

func (f *fakeFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requested...)
}

// fakeTimer captures the armed callback instead of running it.
type fakeTimer struct {
	mu      sync.Mutex
	delays  []time.Duration
	fn      func()
	stopped bool
}

func (ft *fakeTimer) afterFunc(d time.Duration, f func()) stopper {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.delays = append(ft.delays, d)
	ft.fn = f
	return ft
}

func (ft *fakeTimer) Stop() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.stopped = true
	return true
}

func (ft *fakeTimer) fire() {
	ft.mu.Lock()
	f := ft.fn
	ft.mu.Unlock()
	f()
}

type fixture struct {
	store   *memory.MemoryStore
	adapter *entry.Adapter
	counter *entry.Counter
	fetcher *fakeFetcher
	timer   *fakeTimer
	sched   *Scheduler
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T, symbols []string, timeoutMS int) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	store := memory.NewStore()
	t.Cleanup(func() { _ = store.Close() })

	adapter := entry.NewAdapter(store, "alphaadv.0", logger)
	counter := entry.NewCounter(adapter, "calls", logger)
	fetcher := &fakeFetcher{bodies: map[string]string{}, errs: map[string]error{}}
	timer := &fakeTimer{}

	sched := NewScheduler(fetcher, adapter, counter, symbols, timeoutMS, logger)
	sched.afterFunc = timer.afterFunc

	return &fixture{store, adapter, counter, fetcher, timer, sched, logs}
}

func (f *fixture) val(t *testing.T, name string) any {
	t.Helper()
	st, err := f.adapter.GetState(context.Background(), name)
	require.NoError(t, err, name)
	return st.Val
}

// go test -v --run TestNormalizeTimeout
func TestNormalizeTimeout(t *testing.T) {
	cases := map[int]time.Duration{
		0:      120 * time.Second,
		5000:   120 * time.Second,
		14999:  120 * time.Second,
		-1:     120 * time.Second,
		15000:  15 * time.Second,
		60000:  60 * time.Second,
		300000: 5 * time.Minute,
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeTimeout(in), "input %d", in)
	}

	huge := NormalizeTimeout(math.MaxInt)
	require.Greater(t, huge, 290*365*24*time.Hour, "clamped instead of wrapping")
	require.Equal(t, huge, NormalizeTimeout(math.MaxInt-1))
}

// go test -v --run TestSchedulerFirstCycle
func TestSchedulerFirstCycle(t *testing.T) {
	f := newFixture(t, []string{"IBM", "AAPL"}, 30000)
	require.Equal(t, StateIdle, f.sched.State())

	require.NoError(t, f.sched.Start(context.Background()))
	f.sched.Wait()

	require.Equal(t, StateArmed, f.sched.State())
	require.Equal(t, []time.Duration{30 * time.Second}, f.timer.delays)
	require.ElementsMatch(t, []string{"IBM", "AAPL"}, f.fetcher.calls())

	require.Equal(t, 2, f.val(t, "numsym"))
	require.Equal(t, int64(30000), f.val(t, "timeout"))
	require.Equal(t, int64(2), f.val(t, "calls"))
	require.Equal(t, "134.5900", f.val(t, "IBM.day.price"))
	require.Equal(t, "0.4703%", f.val(t, "AAPL.day.changePercent"))
	require.Zero(t, f.sched.InFlight())

	require.ErrorIs(t, f.sched.Start(context.Background()), ErrAlreadyStarted)
}

// go test -v --run TestSchedulerRearms
func TestSchedulerRearms(t *testing.T) {
	f := newFixture(t, []string{"IBM"}, 0)
	require.NoError(t, f.sched.Start(context.Background()))
	f.sched.Wait()

	f.timer.fire()
	f.sched.Wait()
	f.timer.fire()
	f.sched.Wait()

	require.Equal(t, []time.Duration{DefaultTimeout, DefaultTimeout, DefaultTimeout}, f.timer.delays)
	require.Len(t, f.fetcher.calls(), 3)
	require.Equal(t, int64(3), f.val(t, "calls"))
	require.Equal(t, int64(120000), f.val(t, "timeout"))
}

// go test -v --run TestSchedulerDuplicates
func TestSchedulerDuplicates(t *testing.T) {
	f := newFixture(t, []string{"IBM", "IBM"}, 15000)
	require.NoError(t, f.sched.Start(context.Background()))
	f.sched.Wait()

	require.Equal(t, []string{"IBM", "IBM"}, f.fetcher.calls())
	require.Equal(t, int64(2), f.val(t, "calls"))
	require.Equal(t, 2, f.val(t, "numsym"))
}

// go test -v --run TestSchedulerAdvisory
func TestSchedulerAdvisory(t *testing.T) {
	f := newFixture(t, []string{"IBM"}, 30000)
	f.fetcher.bodies["IBM"] = noteBody

	require.NoError(t, f.sched.Start(context.Background()))
	f.sched.Wait()

	advisories := f.logs.FilterMessage("provider advisory").All()
	require.Len(t, advisories, 1)
	require.Contains(t, advisories[0].ContextMap()["advisory"], "Thank you for using Alpha Vantage")

	_, err := f.store.GetObject(context.Background(), "alphaadv.0.IBM")
	require.ErrorIs(t, err, storage.ErrNotFound, "no entry for a failed decode")
	require.Equal(t, int64(1), f.val(t, "calls"), "the call still counts")
}

// go test -v --run TestSchedulerFetchError
func TestSchedulerFetchError(t *testing.T) {
	f := newFixture(t, []string{"IBM", "MSFT"}, 30000)
	f.fetcher.errs["IBM"] = errors.New("connection refused")

	require.NoError(t, f.sched.Start(context.Background()))
	f.sched.Wait()

	require.Equal(t, 1, f.logs.FilterMessage("failed to fetch quote").Len())
	_, err := f.store.GetObject(context.Background(), "alphaadv.0.IBM.day.price")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.Equal(t, "134.5900", f.val(t, "MSFT.day.price"))
	require.Equal(t, StateArmed, f.sched.State())
}

// go test -v --run TestSchedulerStopCancelsInFlight
func TestSchedulerStopCancelsInFlight(t *testing.T) {
	f := newFixture(t, []string{"IBM", "AAPL", "MSFT"}, 30000)
	f.fetcher.block = true

	require.NoError(t, f.sched.Start(context.Background()))
	require.Equal(t, 3, f.sched.InFlight(), "dispatch does not wait for fetches")
	require.Equal(t, StateArmed, f.sched.State())

	done := make(chan struct{})
	go func() {
		f.sched.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not cancel in-flight fetches")
	}

	require.Zero(t, f.sched.InFlight())
	require.Equal(t, StateStopped, f.sched.State())
	require.True(t, f.timer.stopped)

	// a timer that fires anyway must not start another cycle
	f.timer.fire()
	require.Len(t, f.fetcher.calls(), 3)
	require.Len(t, f.timer.delays, 1)

	f.sched.Stop()
}

// go test -v --run TestSchedulerParentContext
func TestSchedulerParentContext(t *testing.T) {
	f := newFixture(t, []string{"IBM"}, 30000)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, f.sched.Start(ctx))
	f.sched.Wait()
	cancel()

	f.timer.fire()
	require.Len(t, f.fetcher.calls(), 1)
	require.Len(t, f.timer.delays, 1)
}

// go test -v --run TestSchedulerEmptySymbols
func TestSchedulerEmptySymbols(t *testing.T) {
	f := newFixture(t, nil, 30000)
	require.NoError(t, f.sched.Start(context.Background()))
	f.sched.Wait()

	require.Empty(t, f.fetcher.calls())
	require.Equal(t, 0, f.val(t, "numsym"))
	require.Equal(t, StateArmed, f.sched.State())

	_, err := f.adapter.GetState(context.Background(), "calls")
	require.ErrorIs(t, err, storage.ErrNotFound, "counter exists but was never incremented")
}
