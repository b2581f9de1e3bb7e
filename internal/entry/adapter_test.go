package entry

import (
	"context"
	"testing"

	"quotecollector/pkg/alphavantage"
	"quotecollector/pkg/storage"
	"quotecollector/pkg/storage/memory"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// go test -v --run TestEnsureAndSetIdempotent
func TestEnsureAndSetIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	defer store.Close()
	a := NewAdapter(store, "alphaadv.0", zaptest.NewLogger(t))

	require.NoError(t, a.EnsureAndSet(ctx, "IBM.day.price", "price", "1.00"))
	require.NoError(t, a.EnsureAndSet(ctx, "IBM.day.price", "renamed", "2.00"))

	require.Equal(t, 1, store.Len())

	obj, err := store.GetObject(ctx, "alphaadv.0.IBM.day.price")
	require.NoError(t, err)
	require.Equal(t, "price", obj.Common.Name, "metadata is written once")
	require.Equal(t, storage.KindLeaf, obj.Kind)
	require.True(t, obj.Common.Read)
	require.False(t, obj.Common.Write)
	require.Equal(t, "boolean", obj.Common.Type)
	require.Empty(t, obj.Native)

	st, err := a.GetState(ctx, "IBM.day.price")
	require.NoError(t, err)
	require.Equal(t, "2.00", st.Val)
	require.True(t, st.Ack)
}

// go test -v --run TestEnsureAndSetContainer
func TestEnsureAndSetContainer(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	defer store.Close()
	a := NewAdapter(store, "alphaadv.0", nil)

	require.NoError(t, a.EnsureAndSet(ctx, "IBM", "IBM", nil))
	require.NoError(t, a.EnsureAndSet(ctx, "IBM", "IBM", nil))

	obj, err := store.GetObject(ctx, "alphaadv.0.IBM")
	require.NoError(t, err)
	require.Equal(t, storage.KindContainer, obj.Kind)

	_, err = a.GetState(ctx, "IBM")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// a container never takes a value
	require.ErrorIs(t, a.EnsureAndSet(ctx, "IBM", "IBM", "x"), storage.ErrNotWritable)
}

// go test -v --run TestEnsureLeafKeepsValue
func TestEnsureLeafKeepsValue(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	defer store.Close()
	a := NewAdapter(store, "alphaadv.0", nil)

	require.NoError(t, a.EnsureLeaf(ctx, "calls", "api calls"))
	_, err := a.GetState(ctx, "calls")
	require.ErrorIs(t, err, storage.ErrNotFound, "uninitialized leaf has no value")

	require.NoError(t, a.EnsureAndSet(ctx, "calls", "api calls", 5))
	require.NoError(t, a.EnsureLeaf(ctx, "calls", "api calls"))

	st, err := a.GetState(ctx, "calls")
	require.NoError(t, err)
	require.Equal(t, 5, st.Val)
}

// go test -v --run TestPublishQuote
func TestPublishQuote(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	defer store.Close()
	a := NewAdapter(store, "alphaadv.0", nil)

	sub, err := a.SubscribeStates(ctx, "*")
	require.NoError(t, err)
	defer sub.Close()

	rec := alphavantage.QuoteRecord{
		Symbol: "IBM", Open: "1", High: "2", Low: "0.5", Price: "1.5", Volume: "100",
		LatestTradingDay: "2024-03-15", PreviousClose: "1.4", Change: "0.1", ChangePercent: "7.1%",
	}
	require.NoError(t, a.PublishQuote(ctx, "IBM", rec))

	require.Equal(t, 12, store.Len(), "two containers and ten leaves")

	for _, f := range rec.Fields() {
		st, err := a.GetState(ctx, "IBM.day."+f.Name)
		require.NoError(t, err)
		require.Equal(t, f.Value, st.Val)
	}

	// writes arrive in schema order
	for _, field := range alphavantage.QuoteSchema {
		change := <-sub.C()
		require.Equal(t, "alphaadv.0.IBM.day."+field.Name, change.ID)
	}
}

// go test -v --run TestPublishQuoteStopsAtFailingField
func TestPublishQuoteStopsAtFailingField(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	defer store.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	a := NewAdapter(store, "alphaadv.0", zap.New(core))

	// a container where the low leaf belongs rejects the write
	require.NoError(t, a.EnsureAndSet(ctx, "IBM.day.low", "low", nil))

	rec := alphavantage.QuoteRecord{
		Symbol: "IBM", Open: "1", High: "2", Low: "0.5", Price: "1.5", Volume: "100",
		LatestTradingDay: "2024-03-15", PreviousClose: "1.4", Change: "0.1", ChangePercent: "7.1%",
	}
	err := a.PublishQuote(ctx, "IBM", rec)
	require.ErrorIs(t, err, storage.ErrNotWritable)
	require.Contains(t, err.Error(), "field low")

	for _, name := range []string{"symbol", "open", "high"} {
		_, err := a.GetState(ctx, "IBM.day."+name)
		require.NoError(t, err, name)
	}
	_, err = a.GetState(ctx, "IBM.day.price")
	require.ErrorIs(t, err, storage.ErrNotFound)

	entries := logs.FilterMessage("quote partially published").All()
	require.Len(t, entries, 1)
	require.Equal(t, "low", entries[0].ContextMap()["field"])
	require.Equal(t, int64(3), entries[0].ContextMap()["written"])
}

// go test -v --run TestNames
func TestNames(t *testing.T) {
	a := NewAdapter(memory.NewStore(), "alphaadv.0.", nil)
	require.Equal(t, "alphaadv.0", a.Namespace())
	require.Equal(t, "alphaadv.0.numsym", a.ID("numsym"))
	require.Equal(t, "numsym", a.Name("alphaadv.0.numsym"))

	bare := NewAdapter(memory.NewStore(), "", nil)
	require.Equal(t, "numsym", bare.ID("numsym"))
}
