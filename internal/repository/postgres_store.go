package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/akylbek/payment-system/gateway-orchestrator/internal/errors"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/models"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/telemetry"
)

const uniqueViolation = "23505"

const transactionColumns = `order_id, trx_id, trx_token, amount, currency,
	customer_id, customer_name, customer_phone, customer_email, description,
	status, payment_gateway, gateway_response,
	cancellation_reason, refund_amount, refund_reason,
	initiated_at, processed_at, completed_at, failed_at, cancelled_at, refunded_at,
	created_at, updated_at`

type PostgresTransactionStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ interfaces.TransactionStore = (*PostgresTransactionStore)(nil)

func NewPostgresTransactionStore(db *sql.DB) *PostgresTransactionStore {
	return &PostgresTransactionStore{db: db, now: time.Now}
}

func (r *PostgresTransactionStore) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payment_transactions (
			id BIGSERIAL PRIMARY KEY,
			order_id VARCHAR(255) NOT NULL UNIQUE,
			trx_id VARCHAR(255) NOT NULL UNIQUE,
			trx_token TEXT NOT NULL,
			amount NUMERIC(12, 2) NOT NULL CHECK (amount > 0),
			currency CHAR(3) NOT NULL DEFAULT 'YER',
			customer_id VARCHAR(255) NOT NULL DEFAULT '',
			customer_name VARCHAR(255) NOT NULL DEFAULT '',
			customer_phone VARCHAR(20) NOT NULL DEFAULT '',
			customer_email VARCHAR(255) NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			payment_gateway VARCHAR(50) NOT NULL DEFAULT 'BAS',
			gateway_response JSONB,
			cancellation_reason TEXT NOT NULL DEFAULT '',
			refund_amount NUMERIC(12, 2),
			refund_reason TEXT NOT NULL DEFAULT '',
			initiated_at TIMESTAMPTZ,
			processed_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			failed_at TIMESTAMPTZ,
			cancelled_at TIMESTAMPTZ,
			refunded_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_transactions_customer_status ON payment_transactions(customer_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_transactions_status_created ON payment_transactions(status, created_at)`,
	}

	for _, query := range queries {
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}

	return nil
}

func (r *PostgresTransactionStore) Create(ctx context.Context, rec *models.Transaction) error {
	now := r.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24)
	`,
		rec.OrderID, rec.TrxID, rec.TrxToken, rec.Amount.StringFixed(2), rec.Currency,
		rec.CustomerID, rec.CustomerName, rec.CustomerPhone, rec.CustomerEmail, rec.Description,
		string(rec.Status), rec.Gateway, rawJSON(rec.GatewayResponseRaw),
		rec.CancellationReason, nullDecimal(rec.RefundAmount), rec.RefundReason,
		nullTime(rec.InitiatedAt), nullTime(rec.ProcessedAt), nullTime(rec.CompletedAt),
		nullTime(rec.FailedAt), nullTime(rec.CancelledAt), nullTime(rec.RefundedAt),
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			telemetry.Logger.Warn("Duplicate transaction insert",
				zap.String("order_id", rec.OrderID),
				zap.String("trx_id", rec.TrxID),
				zap.String("constraint", pqErr.Constraint),
			)
			return apperrors.ErrDuplicateKey.WithDetails(pqErr.Constraint)
		}
		return apperrors.ErrInternal.Wrap(fmt.Errorf("insert transaction: %w", err))
	}
	return nil
}

func (r *PostgresTransactionStore) GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, bool, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE order_id = $1`, orderID)
}

func (r *PostgresTransactionStore) GetByTrxID(ctx context.Context, trxID string) (*models.Transaction, bool, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE trx_id = $1`, trxID)
}

func (r *PostgresTransactionStore) getOne(ctx context.Context, query string, arg string) (*models.Transaction, bool, error) {
	rec, err := scanTransaction(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.ErrInternal.Wrap(fmt.Errorf("get transaction: %w", err))
	}
	return rec, true, nil
}

// CompareAndUpdate guards the write with the expected status, in the same
// UPDATE ... WHERE status = $n form as every other transition. Immutable columns
// are never written and timestamps are only filled when still NULL.
func (r *PostgresTransactionStore) CompareAndUpdate(ctx context.Context, orderID string, expected models.TransactionStatus, mutate interfaces.Mutator) (*models.Transaction, error) {
	current, found, err := r.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.ErrNotFound
	}
	if current.Status != expected {
		return current, apperrors.ErrStaleState
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = r.now()

	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions SET
			status = $3,
			gateway_response = $4,
			cancellation_reason = $5,
			refund_amount = $6,
			refund_reason = $7,
			processed_at = COALESCE(processed_at, $8),
			completed_at = COALESCE(completed_at, $9),
			failed_at = COALESCE(failed_at, $10),
			cancelled_at = COALESCE(cancelled_at, $11),
			refunded_at = COALESCE(refunded_at, $12),
			updated_at = $13
		WHERE order_id = $1 AND status = $2
	`,
		orderID, string(expected),
		string(next.Status), rawJSON(next.GatewayResponseRaw),
		next.CancellationReason, nullDecimal(next.RefundAmount), next.RefundReason,
		nullTime(next.ProcessedAt), nullTime(next.CompletedAt), nullTime(next.FailedAt),
		nullTime(next.CancelledAt), nullTime(next.RefundedAt),
		next.UpdatedAt,
	)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(fmt.Errorf("update transaction: %w", err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(fmt.Errorf("update transaction: %w", err))
	}

	if rows == 0 {
		latest, found, err := r.GetByOrderID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, apperrors.ErrNotFound
		}
		return latest, apperrors.ErrStaleState
	}

	return next, nil
}

func (r *PostgresTransactionStore) List(ctx context.Context, filter models.ListFilter) ([]*models.Transaction, error) {
	var w whereClause
	if filter.CustomerID != "" {
		w.add("customer_id = $%d", filter.CustomerID)
	}
	if filter.Status != "" {
		w.add("status = $%d", string(filter.Status))
	}
	w.period(filter.Period)

	q := `SELECT ` + transactionColumns + ` FROM payment_transactions` + w.String()
	args := w.args
	limit, offset := normalizePage(filter)
	args = append(args, limit, offset)
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(fmt.Errorf("list transactions: %w", err))
	}
	defer rows.Close()

	var res []*models.Transaction
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, apperrors.ErrInternal.Wrap(fmt.Errorf("scan transaction: %w", err))
		}
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.ErrInternal.Wrap(fmt.Errorf("list transactions: %w", err))
	}
	return res, nil
}

func (r *PostgresTransactionStore) Stats(ctx context.Context, filter models.StatsFilter) (*models.Stats, error) {
	var (
		total, paid, failed, pending int64
		sum, avg                     decimal.Decimal
	)
	var w whereClause
	if filter.CustomerID != "" {
		w.add("customer_id = $%d", filter.CustomerID)
	}
	w.period(filter.Period)

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'paid'),
			COUNT(*) FILTER (WHERE status IN ('failed', 'cancelled')),
			COUNT(*) FILTER (WHERE status IN ('pending', 'processing')),
			COALESCE(SUM(amount) FILTER (WHERE status = 'paid'), 0),
			COALESCE(AVG(amount) FILTER (WHERE status = 'paid'), 0)
		FROM payment_transactions`+w.String(), w.args...).Scan(&total, &paid, &failed, &pending, &sum, &avg)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(fmt.Errorf("transaction stats: %w", err))
	}
	return buildStats(total, paid, failed, pending, sum, avg), nil
}

// whereClause collects AND-ed conditions with positional arguments.
type whereClause struct {
	conds []string
	args  []any
}

func (w *whereClause) add(format string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(format, len(w.args)))
}

func (w *whereClause) period(p models.Period) {
	if p.From != nil {
		w.add("created_at >= $%d", *p.From)
	}
	if p.To != nil {
		w.add("created_at <= $%d", *p.To)
	}
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		rec          models.Transaction
		status       string
		raw          []byte
		refundAmount decimal.NullDecimal
		initiatedAt  sql.NullTime
		processedAt  sql.NullTime
		completedAt  sql.NullTime
		failedAt     sql.NullTime
		cancelledAt  sql.NullTime
		refundedAt   sql.NullTime
	)

	if err := row.Scan(
		&rec.OrderID, &rec.TrxID, &rec.TrxToken, &rec.Amount, &rec.Currency,
		&rec.CustomerID, &rec.CustomerName, &rec.CustomerPhone, &rec.CustomerEmail, &rec.Description,
		&status, &rec.Gateway, &raw,
		&rec.CancellationReason, &refundAmount, &rec.RefundReason,
		&initiatedAt, &processedAt, &completedAt, &failedAt, &cancelledAt, &refundedAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rec.Status = models.TransactionStatus(status)
	if len(raw) > 0 {
		rec.GatewayResponseRaw = raw
	}
	if refundAmount.Valid {
		amt := refundAmount.Decimal
		rec.RefundAmount = &amt
	}
	rec.InitiatedAt = timePtr(initiatedAt)
	rec.ProcessedAt = timePtr(processedAt)
	rec.CompletedAt = timePtr(completedAt)
	rec.FailedAt = timePtr(failedAt)
	rec.CancelledAt = timePtr(cancelledAt)
	rec.RefundedAt = timePtr(refundedAt)
	return &rec, nil
}

func rawJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.StringFixed(2)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
