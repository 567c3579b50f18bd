// Package statemachine defines the legal transaction status transitions and
// the side effects each one has on a record. It performs no I/O.
package statemachine

import (
	"strings"
	"time"

	apperrors "github.com/akylbek/payment-system/gateway-orchestrator/internal/errors"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/models"
)

// Trigger identifies what is asking for a transition.
type Trigger string

const (
	TriggerGateway Trigger = "gateway"
	TriggerConfirm Trigger = "confirm"
	TriggerCancel  Trigger = "cancel"
	TriggerRefund  Trigger = "refund"
)

var openStatuses = []models.TransactionStatus{models.StatusPending, models.StatusProcessing}

var edges = map[Trigger]map[models.TransactionStatus][]models.TransactionStatus{
	TriggerGateway: {
		models.StatusPending:    gatewayTargets,
		models.StatusProcessing: gatewayTargets,
		models.StatusUnknown:    gatewayTargets,
	},
	TriggerConfirm: fromEach(openStatuses, models.StatusPaid),
	TriggerCancel:  fromEach(openStatuses, models.StatusCancelled),
	TriggerRefund: {
		models.StatusPaid: {models.StatusRefunded},
	},
}

var gatewayTargets = []models.TransactionStatus{
	models.StatusProcessing,
	models.StatusPaid,
	models.StatusFailed,
	models.StatusUnknown,
}

func fromEach(sources []models.TransactionStatus, to models.TransactionStatus) map[models.TransactionStatus][]models.TransactionStatus {
	m := make(map[models.TransactionStatus][]models.TransactionStatus, len(sources))
	for _, s := range sources {
		m[s] = []models.TransactionStatus{to}
	}
	return m
}

// CanTransition reports whether trigger may move a record from one status to another.
// The gateway trigger may repeat processing and unknown; no other self-edge exists.
func CanTransition(trigger Trigger, from, to models.TransactionStatus) bool {
	for _, target := range edges[trigger][from] {
		if target == to {
			return true
		}
	}
	return false
}

// Apply moves rec to status to, stamping the matching timestamp the first time
// that status is entered. rec is left untouched when the transition is illegal.
func Apply(rec *models.Transaction, trigger Trigger, to models.TransactionStatus, at time.Time) error {
	if !CanTransition(trigger, rec.Status, to) {
		return apperrors.ErrInvalidTransition.WithDetails(
			string(trigger) + ": " + string(rec.Status) + " -> " + string(to))
	}
	if rec.Status == to {
		return nil
	}
	stamp(rec, to, at)
	rec.Status = to
	rec.UpdatedAt = at
	return nil
}

func stamp(rec *models.Transaction, to models.TransactionStatus, at time.Time) {
	var field **time.Time
	switch to {
	case models.StatusPending:
		field = &rec.InitiatedAt
	case models.StatusProcessing:
		field = &rec.ProcessedAt
	case models.StatusPaid:
		field = &rec.CompletedAt
	case models.StatusFailed:
		field = &rec.FailedAt
	case models.StatusCancelled:
		field = &rec.CancelledAt
	case models.StatusRefunded:
		field = &rec.RefundedAt
	default:
		return
	}
	if *field == nil {
		t := at
		*field = &t
	}
}

var gatewayStatusMap = map[string]models.TransactionStatus{
	"processed":   models.StatusPaid,
	"completed":   models.StatusPaid,
	"failed":      models.StatusFailed,
	"rejected":    models.StatusFailed,
	"declined":    models.StatusFailed,
	"expired":     models.StatusFailed,
	"cancelled":   models.StatusFailed,
	"canceled":    models.StatusFailed,
	"error":       models.StatusFailed,
	"pending":     models.StatusProcessing,
	"initiated":   models.StatusProcessing,
	"processing":  models.StatusProcessing,
	"in_progress": models.StatusProcessing,
}

// FromGatewayStatus maps a raw gateway trxStatus onto a transaction status.
// Anything unrecognised maps to unknown.
func FromGatewayStatus(gatewayStatus string) models.TransactionStatus {
	if status, ok := gatewayStatusMap[strings.ToLower(strings.TrimSpace(gatewayStatus))]; ok {
		return status
	}
	return models.StatusUnknown
}
