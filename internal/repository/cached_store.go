package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/gateway-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/models"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/telemetry"
)

// RedisCache is the subset of redis commands the cache needs.
type RedisCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedTransactionStore fronts another store with a Redis read-through cache.
// Writes always go to the backing store. Create populates the cache, every
// compare-and-update evicts the order's entry and the next read refills it.
// Cache failures are logged and never fail the call.
type CachedTransactionStore struct {
	inner     interfaces.TransactionStore
	cache     RedisCache
	ttl       time.Duration
	keyPrefix string
}

var _ interfaces.TransactionStore = (*CachedTransactionStore)(nil)

func NewCachedTransactionStore(inner interfaces.TransactionStore, cache RedisCache, ttl time.Duration) *CachedTransactionStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedTransactionStore{
		inner:     inner,
		cache:     cache,
		ttl:       ttl,
		keyPrefix: "payment:txn:",
	}
}

func (c *CachedTransactionStore) orderKey(orderID string) string {
	return c.keyPrefix + "order:" + orderID
}

func (c *CachedTransactionStore) trxKey(trxID string) string {
	return c.keyPrefix + "trx:" + trxID
}

func (c *CachedTransactionStore) Create(ctx context.Context, rec *models.Transaction) error {
	if err := c.inner.Create(ctx, rec); err != nil {
		return err
	}
	c.put(ctx, rec)
	return nil
}

func (c *CachedTransactionStore) GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, bool, error) {
	if rec, ok := c.get(ctx, orderID); ok {
		return rec, true, nil
	}
	rec, found, err := c.inner.GetByOrderID(ctx, orderID)
	if err != nil || !found {
		return rec, found, err
	}
	c.put(ctx, rec)
	return rec, true, nil
}

func (c *CachedTransactionStore) GetByTrxID(ctx context.Context, trxID string) (*models.Transaction, bool, error) {
	orderID, err := c.cache.Get(ctx, c.trxKey(trxID)).Result()
	if err == nil {
		if rec, ok := c.get(ctx, orderID); ok {
			return rec, true, nil
		}
	} else if !stderrors.Is(err, redis.Nil) {
		telemetry.Logger.Warn("Transaction cache read failed", zap.String("trx_id", trxID), zap.Error(err))
	}

	rec, found, err := c.inner.GetByTrxID(ctx, trxID)
	if err != nil || !found {
		return rec, found, err
	}
	c.put(ctx, rec)
	return rec, true, nil
}

func (c *CachedTransactionStore) CompareAndUpdate(ctx context.Context, orderID string, expected models.TransactionStatus, mutate interfaces.Mutator) (*models.Transaction, error) {
	// Evict rather than write back: two concurrent updates can return out of
	// order, and the next read refills from the backing store.
	rec, err := c.inner.CompareAndUpdate(ctx, orderID, expected, mutate)
	c.evict(ctx, orderID)
	return rec, err
}

func (c *CachedTransactionStore) List(ctx context.Context, filter models.ListFilter) ([]*models.Transaction, error) {
	return c.inner.List(ctx, filter)
}

func (c *CachedTransactionStore) Stats(ctx context.Context, filter models.StatsFilter) (*models.Stats, error) {
	return c.inner.Stats(ctx, filter)
}

func (c *CachedTransactionStore) get(ctx context.Context, orderID string) (*models.Transaction, bool) {
	payload, err := c.cache.Get(ctx, c.orderKey(orderID)).Bytes()
	if err != nil {
		if !stderrors.Is(err, redis.Nil) {
			telemetry.Logger.Warn("Transaction cache read failed", zap.String("order_id", orderID), zap.Error(err))
		}
		return nil, false
	}
	var rec models.Transaction
	if err := json.Unmarshal(payload, &rec); err != nil {
		telemetry.Logger.Warn("Discarding undecodable cached transaction", zap.String("order_id", orderID), zap.Error(err))
		c.evict(ctx, orderID)
		return nil, false
	}
	return &rec, true
}

func (c *CachedTransactionStore) put(ctx context.Context, rec *models.Transaction) {
	payload, err := json.Marshal(rec)
	if err != nil {
		telemetry.Logger.Warn("Transaction not cacheable", zap.String("order_id", rec.OrderID), zap.Error(err))
		return
	}
	if err := c.cache.Set(ctx, c.orderKey(rec.OrderID), payload, c.ttl).Err(); err != nil {
		telemetry.Logger.Warn("Transaction cache write failed", zap.String("order_id", rec.OrderID), zap.Error(err))
		return
	}
	if rec.TrxID != "" {
		if err := c.cache.Set(ctx, c.trxKey(rec.TrxID), rec.OrderID, c.ttl).Err(); err != nil {
			telemetry.Logger.Warn("Transaction cache write failed", zap.String("trx_id", rec.TrxID), zap.Error(err))
		}
	}
}

func (c *CachedTransactionStore) evict(ctx context.Context, orderID string) {
	if err := c.cache.Del(ctx, c.orderKey(orderID)).Err(); err != nil {
		telemetry.Logger.Warn("Transaction cache evict failed", zap.String("order_id", orderID), zap.Error(err))
	}
}
