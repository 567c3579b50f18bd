package repository

import (
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/gateway-orchestrator/internal/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func normalizePage(filter models.ListFilter) (limit, offset int) {
	limit = filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset = filter.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func buildStats(total, paid, failed, pending int64, paidSum, paidAvg decimal.Decimal) *models.Stats {
	stats := &models.Stats{
		TotalTransactions:   total,
		PaidTransactions:    paid,
		FailedTransactions:  failed,
		PendingTransactions: pending,
		TotalAmount:         paidSum.Round(2),
		AverageAmount:       paidAvg.Round(2),
		SuccessRate:         decimal.Zero,
	}
	if total > 0 {
		stats.SuccessRate = decimal.NewFromInt(paid).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(total)).
			Round(2)
	}
	return stats
}
