package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/gateway-orchestrator/internal/models"
)

// Mutator edits a copy of the current record. Returning an error aborts the update.
type Mutator func(rec *models.Transaction) error

// TransactionStore defines the contract for durable transaction records.
type TransactionStore interface {
	// Create inserts rec, failing with errors.ErrDuplicateKey when its order_id or trx_id exists.
	Create(ctx context.Context, rec *models.Transaction) error
	GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, bool, error)
	GetByTrxID(ctx context.Context, trxID string) (*models.Transaction, bool, error)
	// CompareAndUpdate applies mutate only if the stored status still equals expected.
	// On mismatch it returns the current record together with errors.ErrStaleState.
	CompareAndUpdate(ctx context.Context, orderID string, expected models.TransactionStatus, mutate Mutator) (*models.Transaction, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Transaction, error)
	Stats(ctx context.Context, filter models.StatsFilter) (*models.Stats, error)
}
