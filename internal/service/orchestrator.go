package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	apperrors "github.com/akylbek/payment-system/gateway-orchestrator/internal/errors"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/events"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/models"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/statemachine"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/telemetry"
)

const (
	DefaultCurrency = "YER"
	publishTimeout  = 5 * time.Second
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// maxAmount is the largest value the NUMERIC(12,2) amount columns hold.
var maxAmount = decimal.RequireFromString("9999999999.99")

// checkAmount holds amounts to two minor-unit digits and the column range.
func checkAmount(amount decimal.Decimal, field string) error {
	if !amount.IsPositive() {
		return apperrors.ErrInvalidAmount.WithDetails(field + " must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return apperrors.ErrInvalidAmount.WithDetails(field + " must have at most two decimal places")
	}
	if amount.GreaterThan(maxAmount) {
		return apperrors.ErrInvalidAmount.WithDetails(field + " must not exceed " + maxAmount.StringFixed(2))
	}
	return nil
}

// Orchestrator drives transactions through the gateway and the state machine.
// It holds no locks; every mutation is a compare-and-update against the store.
type Orchestrator struct {
	store     interfaces.TransactionStore
	gateway   interfaces.GatewayClient
	publisher interfaces.EventPublisher
	retry     RetryPolicy
	currency  string
	now       func() time.Time
	newTrxID  func(time.Time) string
}

type Option func(*Orchestrator)

func WithPublisher(p interfaces.EventPublisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.publisher = p
		}
	}
}

func WithStatusRetry(p RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

func WithDefaultCurrency(currency string) Option {
	return func(o *Orchestrator) {
		if currency != "" {
			o.currency = strings.ToUpper(currency)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithTrxIDGenerator(gen func(time.Time) string) Option {
	return func(o *Orchestrator) { o.newTrxID = gen }
}

func NewOrchestrator(store interfaces.TransactionStore, gateway interfaces.GatewayClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		gateway:   gateway,
		publisher: events.NopPublisher{},
		retry:     DefaultStatusRetry,
		currency:  DefaultCurrency,
		now:       time.Now,
		newTrxID:  generateTrxID,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// generateTrxID returns TRX_<unix seconds>_<8 random characters>.
func generateTrxID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("TRX_%d_%s", now.Unix(), random[:8])
}

// Initiate opens a gateway transaction for req.OrderID. An order that already
// has a record gets that record back without another gateway call.
func (o *Orchestrator) Initiate(ctx context.Context, req models.InitiateRequest) (rec *models.Transaction, err error) {
	ctx, span := telemetry.StartSpan(ctx, "payment.initiate", req.OrderID)
	defer func() { endSpan(span, err) }()

	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		return nil, apperrors.ErrValidation.WithDetails("order_id is required")
	}
	if err := checkAmount(req.Amount, "amount"); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = o.currency
	}
	if !currencyPattern.MatchString(currency) {
		return nil, apperrors.ErrValidation.WithDetails("currency must be a three-letter code")
	}

	existing, found, err := o.store.GetByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, storeError(err)
	}
	if found {
		telemetry.Logger.Info("Initiate replayed for existing order",
			zap.String("order_id", existing.OrderID),
			zap.String("trx_id", existing.TrxID),
			zap.String("status", string(existing.Status)),
		)
		return existing, nil
	}

	now := o.now()
	trxID := o.newTrxID(now)

	token, raw, err := o.gateway.Initiate(ctx, req.OrderID, req.Amount, currency)
	if err != nil {
		return nil, gatewayError(err)
	}

	initiated := now
	rec = &models.Transaction{
		OrderID:            req.OrderID,
		TrxID:              trxID,
		TrxToken:           token,
		Amount:             req.Amount,
		Currency:           currency,
		CustomerID:         req.CustomerID,
		CustomerName:       req.CustomerName,
		CustomerPhone:      req.CustomerPhone,
		CustomerEmail:      req.CustomerEmail,
		Description:        req.Description,
		Status:             models.StatusPending,
		Gateway:            models.DefaultGateway,
		GatewayResponseRaw: raw,
		InitiatedAt:        &initiated,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	// The gateway has accepted the transaction, so the record is written even
	// if the caller gives up now.
	persistCtx := context.WithoutCancel(ctx)
	if err := o.store.Create(persistCtx, rec); err != nil {
		if !stderrors.Is(err, apperrors.ErrDuplicateKey) {
			return nil, storeError(err)
		}
		winner, found, getErr := o.store.GetByOrderID(persistCtx, req.OrderID)
		if getErr != nil {
			return nil, storeError(getErr)
		}
		if !found {
			// trx_id collision with another order.
			return nil, apperrors.ErrInternal.Wrap(err)
		}
		telemetry.Logger.Warn("Concurrent initiate lost the race, discarding gateway token",
			zap.String("order_id", req.OrderID),
			zap.String("discarded_trx_id", trxID),
			zap.String("trx_id", winner.TrxID),
		)
		return winner, nil
	}

	o.statusChanged(ctx, "", rec)
	return rec.Clone(), nil
}

// CheckStatus reconciles the record with the gateway's view of the transaction.
func (o *Orchestrator) CheckStatus(ctx context.Context, orderID, trxID string) (result *models.StatusCheck, err error) {
	ctx, span := telemetry.StartSpan(ctx, "payment.check_status", orderID)
	defer func() { endSpan(span, err) }()

	rec, err := o.load(ctx, orderID, trxID)
	if err != nil {
		return nil, err
	}

	var (
		gatewayStatus string
		raw           json.RawMessage
	)
	err = o.retry.Do(ctx, func() error {
		var callErr error
		gatewayStatus, raw, callErr = o.gateway.CheckStatus(ctx, rec.OrderID)
		return callErr
	})

	target := statemachine.FromGatewayStatus(gatewayStatus)
	if err != nil {
		if apperrors.CodeOf(err) != apperrors.GatewayRejected {
			return nil, gatewayError(err)
		}
		telemetry.Logger.Warn("Gateway kept rejecting status check, marking failed",
			zap.String("order_id", rec.OrderID),
			zap.Error(err),
		)
		target = models.StatusFailed
	}

	updated, err := o.reconcile(ctx, rec, target, raw)
	if err != nil {
		return nil, err
	}
	return &models.StatusCheck{Transaction: updated, GatewayStatus: gatewayStatus}, nil
}

// reconcile moves rec to the gateway-reported target. A terminal record keeps
// its status and only records the raw response.
func (o *Orchestrator) reconcile(ctx context.Context, rec *models.Transaction, target models.TransactionStatus, raw json.RawMessage) (*models.Transaction, error) {
	for attempt := 0; ; attempt++ {
		expected := rec.Status
		now := o.now()

		updated, err := o.store.CompareAndUpdate(ctx, rec.OrderID, expected, func(cur *models.Transaction) error {
			if len(raw) > 0 {
				cur.GatewayResponseRaw = append(json.RawMessage(nil), raw...)
			}
			if cur.Status.IsTerminal() {
				cur.UpdatedAt = now
				return nil
			}
			return statemachine.Apply(cur, statemachine.TriggerGateway, target, now)
		})
		if err == nil {
			if expected.IsTerminal() && target != expected {
				telemetry.Logger.Warn("Gateway status disagrees with terminal transaction",
					zap.String("order_id", rec.OrderID),
					zap.String("status", string(expected)),
					zap.String("gateway_status", string(target)),
				)
			}
			if updated.Status != expected {
				o.statusChanged(ctx, expected, updated)
			}
			return updated, nil
		}
		if stderrors.Is(err, apperrors.ErrStaleState) && updated != nil {
			telemetry.RecordStaleRetry("check_status")
			if attempt >= 1 {
				return updated, nil
			}
			rec = updated
			continue
		}
		return nil, storeError(err)
	}
}

// Confirm marks an open transaction paid without asking the gateway.
func (o *Orchestrator) Confirm(ctx context.Context, orderID, trxID string) (rec *models.Transaction, err error) {
	ctx, span := telemetry.StartSpan(ctx, "payment.confirm", orderID)
	defer func() { endSpan(span, err) }()

	current, err := o.load(ctx, orderID, trxID)
	if err != nil {
		return nil, err
	}
	return o.transition(ctx, "confirm", current, statemachine.TriggerConfirm, models.StatusPaid, nil)
}

func (o *Orchestrator) Cancel(ctx context.Context, orderID, trxID, reason string) (rec *models.Transaction, err error) {
	ctx, span := telemetry.StartSpan(ctx, "payment.cancel", orderID)
	defer func() { endSpan(span, err) }()

	current, err := o.load(ctx, orderID, trxID)
	if err != nil {
		return nil, err
	}
	return o.transition(ctx, "cancel", current, statemachine.TriggerCancel, models.StatusCancelled, func(t *models.Transaction) {
		t.CancellationReason = strings.TrimSpace(reason)
	})
}

// Refund refunds a paid transaction in full, or partially when req.Amount is set.
func (o *Orchestrator) Refund(ctx context.Context, req models.RefundRequest) (rec *models.Transaction, err error) {
	ctx, span := telemetry.StartSpan(ctx, "payment.refund", req.OrderID)
	defer func() { endSpan(span, err) }()

	current, err := o.load(ctx, req.OrderID, req.TrxID)
	if err != nil {
		return nil, err
	}

	amount := current.Amount
	if req.Amount != nil {
		amount = *req.Amount
	}
	if err := checkAmount(amount, "refund amount"); err != nil {
		return nil, err
	}
	if amount.GreaterThan(current.Amount) {
		return nil, apperrors.ErrInvalidAmount.WithDetails(
			fmt.Sprintf("refund amount %s exceeds transaction amount %s", amount.StringFixed(2), current.Amount.StringFixed(2)))
	}

	return o.transition(ctx, "refund", current, statemachine.TriggerRefund, models.StatusRefunded, func(t *models.Transaction) {
		refunded := amount
		t.RefundAmount = &refunded
		t.RefundReason = strings.TrimSpace(req.Reason)
	})
}

// transition applies a caller-driven edge. A concurrent writer that already
// reached target counts as success; otherwise one conflict is retried against
// the fresh record.
func (o *Orchestrator) transition(
	ctx context.Context,
	operation string,
	rec *models.Transaction,
	trigger statemachine.Trigger,
	target models.TransactionStatus,
	annotate func(*models.Transaction),
) (*models.Transaction, error) {
	for attempt := 0; ; attempt++ {
		expected := rec.Status
		if !statemachine.CanTransition(trigger, expected, target) {
			return nil, apperrors.ErrInvalidTransition.WithDetails(
				fmt.Sprintf("cannot %s a %s transaction", operation, expected))
		}

		now := o.now()
		updated, err := o.store.CompareAndUpdate(ctx, rec.OrderID, expected, func(cur *models.Transaction) error {
			if err := statemachine.Apply(cur, trigger, target, now); err != nil {
				return err
			}
			if annotate != nil {
				annotate(cur)
			}
			return nil
		})
		if err == nil {
			o.statusChanged(ctx, expected, updated)
			return updated, nil
		}
		if stderrors.Is(err, apperrors.ErrStaleState) && updated != nil {
			telemetry.RecordStaleRetry(operation)
			if updated.Status == target {
				return updated, nil
			}
			if attempt >= 1 {
				return nil, apperrors.ErrInvalidTransition.WithDetails(
					fmt.Sprintf("cannot %s a %s transaction", operation, updated.Status))
			}
			rec = updated
			continue
		}
		return nil, storeError(err)
	}
}

// Get returns the transaction for orderID.
func (o *Orchestrator) Get(ctx context.Context, orderID string) (*models.Transaction, error) {
	ctx, span := telemetry.StartSpan(ctx, "payment.get", orderID)
	defer span.End()

	if strings.TrimSpace(orderID) == "" {
		return nil, apperrors.ErrValidation.WithDetails("order_id is required")
	}
	rec, found, err := o.store.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, storeError(err)
	}
	if !found {
		return nil, apperrors.ErrNotFound.WithDetails("order " + orderID)
	}
	return rec, nil
}

func (o *Orchestrator) History(ctx context.Context, filter models.ListFilter) ([]*models.Transaction, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.ErrValidation.WithDetails("unknown status " + string(filter.Status))
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, apperrors.ErrValidation.WithDetails("limit and offset must not be negative")
	}
	if err := checkPeriod(filter.Period); err != nil {
		return nil, err
	}
	list, err := o.store.List(ctx, filter)
	if err != nil {
		return nil, storeError(err)
	}
	if list == nil {
		list = []*models.Transaction{}
	}
	return list, nil
}

func (o *Orchestrator) Stats(ctx context.Context, filter models.StatsFilter) (*models.Stats, error) {
	if err := checkPeriod(filter.Period); err != nil {
		return nil, err
	}
	stats, err := o.store.Stats(ctx, filter)
	if err != nil {
		return nil, storeError(err)
	}
	return stats, nil
}

func checkPeriod(p models.Period) error {
	if p.From != nil && p.To != nil && p.From.After(*p.To) {
		return apperrors.ErrValidation.WithDetails("from must not be after to")
	}
	return nil
}

// load fetches the record for orderID and checks that trxID belongs to it.
func (o *Orchestrator) load(ctx context.Context, orderID, trxID string) (*models.Transaction, error) {
	orderID = strings.TrimSpace(orderID)
	trxID = strings.TrimSpace(trxID)
	if orderID == "" || trxID == "" {
		return nil, apperrors.ErrValidation.WithDetails("order_id and trx_id are required")
	}

	rec, found, err := o.store.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, storeError(err)
	}
	if !found || rec.TrxID != trxID {
		return nil, apperrors.ErrNotFound.WithDetails(fmt.Sprintf("order %s with trx %s", orderID, trxID))
	}
	return rec, nil
}

func (o *Orchestrator) statusChanged(ctx context.Context, from models.TransactionStatus, rec *models.Transaction) {
	telemetry.RecordTransition(string(from), string(rec.Status))
	telemetry.Logger.Info("Transaction status changed",
		zap.String("order_id", rec.OrderID),
		zap.String("trx_id", rec.TrxID),
		zap.String("from_status", string(from)),
		zap.String("to_status", string(rec.Status)),
	)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event := models.StatusChangedEvent{
		OrderID:        rec.OrderID,
		TrxID:          rec.TrxID,
		Status:         rec.Status,
		PreviousStatus: from,
		Amount:         rec.Amount,
		Currency:       rec.Currency,
		Timestamp:      rec.UpdatedAt,
	}
	if err := o.publisher.PublishStatusChanged(ctx, event); err != nil {
		telemetry.Logger.Warn("Failed to publish status event",
			zap.String("order_id", rec.OrderID),
			zap.Error(err),
		)
	}
}

// gatewayError keeps gateway taxonomy errors and treats anything else that
// escaped the client, such as a cancelled context, as unavailability.
func gatewayError(err error) error {
	if apperrors.CodeOf(err) != "" {
		return err
	}
	return apperrors.ErrGatewayUnavailable.Wrap(err)
}

func storeError(err error) error {
	switch apperrors.CodeOf(err) {
	case apperrors.NotFound, apperrors.InvalidTransition, apperrors.ValidationError, apperrors.InvalidAmount:
		return err
	}
	return apperrors.ErrInternal.Wrap(err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
