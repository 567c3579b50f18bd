package statemachine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/akylbek/payment-system/gateway-orchestrator/internal/errors"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/models"
)

func TestCanTransition_Table(t *testing.T) {
	type edge struct {
		trigger Trigger
		from    models.TransactionStatus
		to      models.TransactionStatus
	}
	allowed := map[edge]bool{}
	for _, from := range []models.TransactionStatus{models.StatusPending, models.StatusProcessing, models.StatusUnknown} {
		for _, to := range []models.TransactionStatus{models.StatusProcessing, models.StatusPaid, models.StatusFailed, models.StatusUnknown} {
			allowed[edge{TriggerGateway, from, to}] = true
		}
	}
	for _, from := range []models.TransactionStatus{models.StatusPending, models.StatusProcessing} {
		allowed[edge{TriggerConfirm, from, models.StatusPaid}] = true
		allowed[edge{TriggerCancel, from, models.StatusCancelled}] = true
	}
	allowed[edge{TriggerRefund, models.StatusPaid, models.StatusRefunded}] = true

	for _, trigger := range []Trigger{TriggerGateway, TriggerConfirm, TriggerCancel, TriggerRefund} {
		for _, from := range models.AllStatuses {
			for _, to := range models.AllStatuses {
				e := edge{trigger, from, to}
				assert.Equal(t, allowed[e], CanTransition(trigger, from, to), "%s: %s -> %s", trigger, from, to)
			}
		}
	}
}

func TestCanTransition_TerminalStatusesOnlyRefund(t *testing.T) {
	for _, from := range []models.TransactionStatus{models.StatusFailed, models.StatusCancelled, models.StatusRefunded} {
		for _, trigger := range []Trigger{TriggerGateway, TriggerConfirm, TriggerCancel, TriggerRefund} {
			for _, to := range models.AllStatuses {
				assert.False(t, CanTransition(trigger, from, to), "%s: %s -> %s", trigger, from, to)
			}
		}
	}
}

func TestApply_StampsOnce(t *testing.T) {
	first := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(time.Minute)

	rec := &models.Transaction{OrderID: "O1", Status: models.StatusPending}

	require.NoError(t, Apply(rec, TriggerGateway, models.StatusProcessing, first))
	require.NotNil(t, rec.ProcessedAt)
	assert.Equal(t, first, *rec.ProcessedAt)

	require.NoError(t, Apply(rec, TriggerGateway, models.StatusProcessing, later))
	assert.Equal(t, first, *rec.ProcessedAt, "re-entering processing must not re-stamp")

	require.NoError(t, Apply(rec, TriggerGateway, models.StatusPaid, later))
	assert.Equal(t, models.StatusPaid, rec.Status)
	require.NotNil(t, rec.CompletedAt)
	assert.Equal(t, later, *rec.CompletedAt)
	assert.Equal(t, later, rec.UpdatedAt)
}

func TestApply_UnknownCarriesNoTimestamp(t *testing.T) {
	at := time.Now()
	rec := &models.Transaction{Status: models.StatusPending}

	require.NoError(t, Apply(rec, TriggerGateway, models.StatusUnknown, at))
	assert.Equal(t, models.StatusUnknown, rec.Status)
	assert.Nil(t, rec.ProcessedAt)
	assert.Nil(t, rec.CompletedAt)
	assert.Nil(t, rec.FailedAt)

	require.NoError(t, Apply(rec, TriggerGateway, models.StatusFailed, at))
	assert.NotNil(t, rec.FailedAt)
}

func TestApply_RejectedLeavesRecordUnchanged(t *testing.T) {
	completed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &models.Transaction{Status: models.StatusPaid, CompletedAt: &completed}
	before := *rec.Clone()

	err := Apply(rec, TriggerCancel, models.StatusCancelled, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
	assert.Equal(t, before, *rec)
}

func TestApply_ConfirmOnPaidIsRejected(t *testing.T) {
	rec := &models.Transaction{Status: models.StatusPaid}
	err := Apply(rec, TriggerConfirm, models.StatusPaid, time.Now())
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
}

func TestFromGatewayStatus(t *testing.T) {
	cases := map[string]models.TransactionStatus{
		"processed":    models.StatusPaid,
		"COMPLETED":    models.StatusPaid,
		" completed ":  models.StatusPaid,
		"failed":       models.StatusFailed,
		"declined":     models.StatusFailed,
		"in_progress":  models.StatusProcessing,
		"pending":      models.StatusProcessing,
		"":             models.StatusUnknown,
		"on_the_moon":  models.StatusUnknown,
		"partial_paid": models.StatusUnknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, FromGatewayStatus(in), in)
	}
}
