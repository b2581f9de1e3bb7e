package entry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"quotecollector/pkg/storage"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// Counter is a persisted, monotonically increasing integer entry.
// Increments are serialized in-process; writers in other processes are not coordinated.
type Counter struct {
	mu      sync.Mutex
	adapter *Adapter
	name    string
	logger  *zap.Logger
}

func NewCounter(adapter *Adapter, name string, logger *zap.Logger) *Counter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counter{adapter: adapter, name: name, logger: logger}
}

// Ensure creates the counter entry without touching an existing value.
func (c *Counter) Ensure(ctx context.Context) error {
	return c.adapter.EnsureLeaf(ctx, c.name, "api calls")
}

// Value returns the current count; an entry without a value counts as 0.
func (c *Counter) Value(ctx context.Context) (int64, error) {
	v, _, err := c.read(ctx)
	return v, err
}

// Increment adds one and returns the new value.
func (c *Counter) Increment(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.Ensure(ctx); err != nil {
		return 0, err
	}

	prev, st, err := c.read(ctx)
	if err != nil {
		return 0, err
	}

	fields := []zap.Field{zap.String("counter", c.name), zap.Int64("value", prev)}
	if st != nil {
		fields = append(fields, zap.Time("updated", st.Ts))
	}
	c.logger.Debug("call counter", fields...)

	next := prev + 1
	if err := c.adapter.EnsureAndSet(ctx, c.name, "api calls", next); err != nil {
		return 0, fmt.Errorf("increment %s: %w", c.name, err)
	}
	return next, nil
}

func (c *Counter) read(ctx context.Context) (int64, *storage.State, error) {
	st, err := c.adapter.GetState(ctx, c.name)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("read %s: %w", c.name, err)
	}

	// backends hand back native ints, json.Number or numeric strings
	v, err := cast.ToInt64E(st.Val)
	if err != nil {
		return 0, nil, fmt.Errorf("read %s: %w", c.name, err)
	}
	return v, st, nil
}
