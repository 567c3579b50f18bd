package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/akylbek/payment-system/gateway-orchestrator/internal/errors"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/models"
)

// countingStore records how often reads reach the backing store.
type countingStore struct {
	*MemoryTransactionStore
	orderReads int
	trxReads   int
}

func (s *countingStore) GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, bool, error) {
	s.orderReads++
	return s.MemoryTransactionStore.GetByOrderID(ctx, orderID)
}

func (s *countingStore) GetByTrxID(ctx context.Context, trxID string) (*models.Transaction, bool, error) {
	s.trxReads++
	return s.MemoryTransactionStore.GetByTrxID(ctx, trxID)
}

var _ interfaces.TransactionStore = (*countingStore)(nil)

func newCachedFixture(t *testing.T) (*CachedTransactionStore, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := &countingStore{MemoryTransactionStore: NewMemoryTransactionStore()}
	return NewCachedTransactionStore(inner, client, time.Minute), inner, mr
}

func TestCachedStore_CreatePopulatesCache(t *testing.T) {
	store, inner, mr := newCachedFixture(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleTransaction("O1", "TRX_1", models.StatusPending, 100)))
	assert.True(t, mr.Exists("payment:txn:order:O1"))
	assert.True(t, mr.Exists("payment:txn:trx:TRX_1"))
	assert.Equal(t, time.Minute, mr.TTL("payment:txn:order:O1"))

	rec, found, err := store.GetByOrderID(ctx, "O1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "TRX_1", rec.TrxID)
	assert.Zero(t, inner.orderReads, "served from cache")

	byTrx, found, err := store.GetByTrxID(ctx, "TRX_1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "O1", byTrx.OrderID)
	assert.Zero(t, inner.trxReads)
}

func TestCachedStore_ReadThroughOnMiss(t *testing.T) {
	store, inner, mr := newCachedFixture(t)
	ctx := context.Background()
	require.NoError(t, inner.MemoryTransactionStore.Create(ctx, sampleTransaction("O1", "TRX_1", models.StatusPending, 100)))

	_, found, err := store.GetByOrderID(ctx, "O1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, inner.orderReads)
	assert.True(t, mr.Exists("payment:txn:order:O1"))

	_, _, _ = store.GetByOrderID(ctx, "O1")
	assert.Equal(t, 1, inner.orderReads)

	_, found, err = store.GetByOrderID(ctx, "O404")
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, mr.Exists("payment:txn:order:O404"))
}

func TestCachedStore_CompareAndUpdateEvictsThenRefills(t *testing.T) {
	store, inner, mr := newCachedFixture(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, sampleTransaction("O1", "TRX_1", models.StatusPending, 100)))

	_, err := store.CompareAndUpdate(ctx, "O1", models.StatusPending, func(rec *models.Transaction) error {
		rec.Status = models.StatusPaid
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("payment:txn:order:O1"))

	cached, _, _ := store.GetByOrderID(ctx, "O1")
	assert.Equal(t, models.StatusPaid, cached.Status)
	assert.Equal(t, 1, inner.orderReads)
	assert.True(t, mr.Exists("payment:txn:order:O1"))

	current, err := store.CompareAndUpdate(ctx, "O1", models.StatusPending, func(*models.Transaction) error { return nil })
	assert.True(t, errors.Is(err, apperrors.ErrStaleState))
	assert.Equal(t, models.StatusPaid, current.Status)
	assert.False(t, mr.Exists("payment:txn:order:O1"))
}

// lateStore hands back an older snapshot from CompareAndUpdate, as a writer
// whose response arrives after a newer one would.
type lateStore struct {
	*countingStore
	snapshot *models.Transaction
}

func (s *lateStore) CompareAndUpdate(ctx context.Context, orderID string, expected models.TransactionStatus, mutate interfaces.Mutator) (*models.Transaction, error) {
	if _, err := s.countingStore.CompareAndUpdate(ctx, orderID, expected, mutate); err != nil {
		return nil, err
	}
	return s.snapshot, nil
}

func TestCachedStore_LateUpdateNeverCachesOlderStatus(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := &lateStore{countingStore: &countingStore{MemoryTransactionStore: NewMemoryTransactionStore()}}
	store := NewCachedTransactionStore(inner, client, time.Minute)
	ctx := context.Background()

	rec := sampleTransaction("O1", "TRX_1", models.StatusPending, 100)
	require.NoError(t, store.Create(ctx, rec))
	inner.snapshot = rec.Clone()

	_, err := store.CompareAndUpdate(ctx, "O1", models.StatusPending, func(cur *models.Transaction) error {
		cur.Status = models.StatusPaid
		return nil
	})
	require.NoError(t, err)

	got, found, err := store.GetByOrderID(ctx, "O1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.StatusPaid, got.Status)
}

func TestCachedStore_EvictsOnFailedUpdate(t *testing.T) {
	store, _, mr := newCachedFixture(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, sampleTransaction("O1", "TRX_1", models.StatusPending, 100)))

	_, err := store.CompareAndUpdate(ctx, "O1", models.StatusPending, func(*models.Transaction) error {
		return apperrors.ErrInvalidTransition
	})
	require.Error(t, err)
	assert.False(t, mr.Exists("payment:txn:order:O1"))
}

func TestCachedStore_SurvivesRedisOutage(t *testing.T) {
	store, inner, mr := newCachedFixture(t)
	ctx := context.Background()
	mr.Close()

	require.NoError(t, store.Create(ctx, sampleTransaction("O1", "TRX_1", models.StatusPending, 100)))

	rec, found, err := store.GetByOrderID(ctx, "O1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "O1", rec.OrderID)
	assert.Equal(t, 1, inner.orderReads)
}

func TestCachedStore_DiscardsCorruptEntries(t *testing.T) {
	store, inner, mr := newCachedFixture(t)
	ctx := context.Background()
	require.NoError(t, inner.MemoryTransactionStore.Create(ctx, sampleTransaction("O1", "TRX_1", models.StatusPending, 100)))
	require.NoError(t, mr.Set("payment:txn:order:O1", "{not json"))

	rec, found, err := store.GetByOrderID(ctx, "O1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "TRX_1", rec.TrxID)
	assert.Equal(t, 1, inner.orderReads)
}
