package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/akylbek/payment-system/gateway-orchestrator/internal/errors"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/models"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/service"
)

// TransactionHandler serves read-only transaction views.
type TransactionHandler struct {
	orchestrator *service.Orchestrator
}

func NewTransactionHandler(orchestrator *service.Orchestrator) *TransactionHandler {
	useJSONFieldNames()
	return &TransactionHandler{orchestrator: orchestrator}
}

type periodQuery struct {
	From string `form:"from" json:"from"`
	To   string `form:"to" json:"to"`
}

type historyQuery struct {
	CustomerID string `form:"customer_id" json:"customer_id"`
	Status     string `form:"status" json:"status" binding:"omitempty,oneof=pending processing paid failed cancelled refunded unknown"`
	Limit      int    `form:"limit" json:"limit" binding:"gte=0,lte=500"`
	Offset     int    `form:"offset" json:"offset" binding:"gte=0"`
	periodQuery
}

type statsQuery struct {
	CustomerID string `form:"customer_id" json:"customer_id"`
	periodQuery
}

const dateLayout = "2006-01-02"

// period accepts RFC3339 timestamps or plain dates. A plain "to" date covers
// the whole day.
func (q periodQuery) period() (models.Period, map[string]string) {
	var (
		p    models.Period
		errs = map[string]string{}
	)
	if q.From != "" {
		if t, ok := parseBound(q.From, false); ok {
			p.From = &t
		} else {
			errs["from"] = "must be an RFC3339 timestamp or a YYYY-MM-DD date"
		}
	}
	if q.To != "" {
		if t, ok := parseBound(q.To, true); ok {
			p.To = &t
		} else {
			errs["to"] = "must be an RFC3339 timestamp or a YYYY-MM-DD date"
		}
	}
	if len(errs) > 0 {
		return models.Period{}, errs
	}
	return p, nil
}

func parseBound(raw string, endOfDay bool) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, true
}

func respondPeriodError(c *gin.Context, fields map[string]string) {
	c.JSON(http.StatusUnprocessableEntity, envelope{
		Success: false,
		Message: "invalid request",
		Error:   apperrors.ErrValidation,
		Errors:  fields,
	})
}

// GetTransaction handles GET /api/payment/transactions/:order_id.
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	rec, err := h.orchestrator.Get(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "transaction found", gin.H{
		"transaction":      rec,
		"duration_seconds": int64(rec.Duration(rec.UpdatedAt).Seconds()),
	})
}

// History handles GET /api/payment/history.
func (h *TransactionHandler) History(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}
	period, fields := q.period()
	if fields != nil {
		respondPeriodError(c, fields)
		return
	}

	list, err := h.orchestrator.History(c.Request.Context(), models.ListFilter{
		CustomerID: q.CustomerID,
		Status:     models.TransactionStatus(q.Status),
		Period:     period,
		Limit:      q.Limit,
		Offset:     q.Offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "transaction history", gin.H{
		"transactions": list,
		"count":        len(list),
		"limit":        q.Limit,
		"offset":       q.Offset,
	})
}

// Stats handles GET /api/admin/payment-stats.
func (h *TransactionHandler) Stats(c *gin.Context) {
	var q statsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}
	period, fields := q.period()
	if fields != nil {
		respondPeriodError(c, fields)
		return
	}

	stats, err := h.orchestrator.Stats(c.Request.Context(), models.StatsFilter{
		CustomerID: q.CustomerID,
		Period:     period,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "payment statistics", stats)
}
