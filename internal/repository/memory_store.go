package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/akylbek/payment-system/gateway-orchestrator/internal/errors"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/models"
)

// MemoryTransactionStore keeps records in process memory. Each operation holds
// the store mutex only for the map access itself.
type MemoryTransactionStore struct {
	mu      sync.RWMutex
	byOrder map[string]*models.Transaction
	byTrx   map[string]string
	seq     map[string]int64
	next    int64
	now     func() time.Time
}

var _ interfaces.TransactionStore = (*MemoryTransactionStore)(nil)

func NewMemoryTransactionStore() *MemoryTransactionStore {
	return &MemoryTransactionStore{
		byOrder: make(map[string]*models.Transaction),
		byTrx:   make(map[string]string),
		seq:     make(map[string]int64),
		now:     time.Now,
	}
}

func (s *MemoryTransactionStore) Create(ctx context.Context, rec *models.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byOrder[rec.OrderID]; ok {
		return apperrors.ErrDuplicateKey.WithDetails("order_id")
	}
	if _, ok := s.byTrx[rec.TrxID]; ok {
		return apperrors.ErrDuplicateKey.WithDetails("trx_id")
	}

	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	s.byOrder[rec.OrderID] = rec.Clone()
	s.byTrx[rec.TrxID] = rec.OrderID
	s.next++
	s.seq[rec.OrderID] = s.next
	return nil
}

func (s *MemoryTransactionStore) GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byOrder[orderID]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (s *MemoryTransactionStore) GetByTrxID(ctx context.Context, trxID string) (*models.Transaction, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	orderID, ok := s.byTrx[trxID]
	if !ok {
		return nil, false, nil
	}
	return s.byOrder[orderID].Clone(), true, nil
}

func (s *MemoryTransactionStore) CompareAndUpdate(ctx context.Context, orderID string, expected models.TransactionStatus, mutate interfaces.Mutator) (*models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byOrder[orderID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if current.Status != expected {
		return current.Clone(), apperrors.ErrStaleState
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}

	// Identity and creation data never change after insert.
	next.OrderID = current.OrderID
	next.TrxID = current.TrxID
	next.TrxToken = current.TrxToken
	next.Amount = current.Amount
	next.Currency = current.Currency
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.now()

	s.byOrder[orderID] = next
	return next.Clone(), nil
}

func (s *MemoryTransactionStore) List(ctx context.Context, filter models.ListFilter) ([]*models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var matched []*models.Transaction
	for _, rec := range s.byOrder {
		if filter.CustomerID != "" && rec.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if !filter.Contains(rec.CreatedAt) {
			continue
		}
		matched = append(matched, rec.Clone())
	}
	seq := make(map[string]int64, len(matched))
	for _, rec := range matched {
		seq[rec.OrderID] = s.seq[rec.OrderID]
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return seq[matched[i].OrderID] > seq[matched[j].OrderID]
	})

	limit, offset := normalizePage(filter)
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (s *MemoryTransactionStore) Stats(ctx context.Context, filter models.StatsFilter) (*models.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var total, paid, failed, pending int64
	sum := decimal.Zero
	for _, rec := range s.byOrder {
		if filter.CustomerID != "" && rec.CustomerID != filter.CustomerID {
			continue
		}
		if !filter.Contains(rec.CreatedAt) {
			continue
		}
		total++
		switch rec.Status {
		case models.StatusPaid:
			paid++
			sum = sum.Add(rec.Amount)
		case models.StatusFailed, models.StatusCancelled:
			failed++
		case models.StatusPending, models.StatusProcessing:
			pending++
		}
	}

	avg := decimal.Zero
	if paid > 0 {
		avg = sum.Div(decimal.NewFromInt(paid))
	}
	return buildStats(total, paid, failed, pending, sum, avg), nil
}
