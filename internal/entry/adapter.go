// Package entry materializes collector output as entries in a storage.Store.
package entry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"quotecollector/pkg/alphavantage"
	"quotecollector/pkg/storage"

	"go.uber.org/zap"
)

// Adapter creates entries on first use and updates them afterwards. Every name it
// receives is relative to its namespace.
type Adapter struct {
	store     storage.Store
	namespace string
	logger    *zap.Logger
}

func NewAdapter(store storage.Store, namespace string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		store:     store,
		namespace: strings.Trim(namespace, "."),
		logger:    logger,
	}
}

func (a *Adapter) Namespace() string { return a.namespace }

// ID returns the full store id of name.
func (a *Adapter) ID(name string) string {
	if a.namespace == "" {
		return name
	}
	return a.namespace + "." + name
}

// Name strips the namespace from a full store id.
func (a *Adapter) Name(id string) string {
	if a.namespace == "" {
		return id
	}
	return strings.TrimPrefix(id, a.namespace+".")
}

// EnsureAndSet makes sure name exists and writes value into it. A nil value makes
// name a container and nothing is written. Calling it again for the same name only
// updates the value.
func (a *Adapter) EnsureAndSet(ctx context.Context, name, description string, value any) error {
	kind := storage.KindLeaf
	if value == nil {
		kind = storage.KindContainer
	}

	if err := a.ensure(ctx, name, description, kind); err != nil {
		return err
	}
	if value == nil {
		return nil
	}

	if err := a.store.SetState(ctx, a.ID(name), value, true); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

// EnsureLeaf creates name as a leaf without a value, unless it already exists.
func (a *Adapter) EnsureLeaf(ctx context.Context, name, description string) error {
	return a.ensure(ctx, name, description, storage.KindLeaf)
}

func (a *Adapter) GetState(ctx context.Context, name string) (*storage.State, error) {
	return a.store.GetState(ctx, a.ID(name))
}

// SubscribeStates subscribes to changes below the namespace; "*" means all of them.
func (a *Adapter) SubscribeStates(ctx context.Context, pattern string) (storage.Subscription, error) {
	return a.store.SubscribeStates(ctx, a.ID(pattern))
}

// PublishQuote writes rec below <symbol>.day, one leaf per field in schema order.
// Writes are not transactional: a store error stops the loop, and fields before the
// failing one keep their new values.
func (a *Adapter) PublishQuote(ctx context.Context, symbol string, rec alphavantage.QuoteRecord) error {
	if err := a.EnsureAndSet(ctx, symbol, symbol, nil); err != nil {
		return err
	}
	day := symbol + ".day"
	if err := a.EnsureAndSet(ctx, day, "latest trading day", nil); err != nil {
		return err
	}
	for i, f := range rec.Fields() {
		if err := a.EnsureAndSet(ctx, day+"."+f.Name, f.Name, f.Value); err != nil {
			a.logger.Warn("quote partially published",
				zap.String("symbol", symbol),
				zap.String("field", f.Name),
				zap.Int("written", i),
				zap.Error(err),
			)
			return fmt.Errorf("publish %s field %s: %w", symbol, f.Name, err)
		}
	}
	return nil
}

func (a *Adapter) ensure(ctx context.Context, name, description string, kind storage.Kind) error {
	id := a.ID(name)

	_, err := a.store.GetObject(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("lookup %s: %w", name, err)
	}

	obj := storage.Object{
		ID:   id,
		Kind: kind,
		Common: storage.Common{
			Name:  description,
			Role:  "state",
			Type:  "boolean",
			Read:  true,
			Write: false,
		},
		Native: map[string]any{},
	}
	// another writer may have created it in between; that is fine
	if err := a.store.CreateObject(ctx, obj); err != nil && !errors.Is(err, storage.ErrExists) {
		return fmt.Errorf("create %s: %w", name, err)
	}

	a.logger.Debug("entry created", zap.String("id", id), zap.String("kind", string(kind)))
	return nil
}
