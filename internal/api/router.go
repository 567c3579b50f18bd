package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/gateway-orchestrator/internal/handlers"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/service"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/telemetry"
)

const serviceName = "gateway-orchestrator"

func NewRouter(orchestrator *service.Orchestrator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})

	paymentHandler := handlers.NewPaymentHandler(orchestrator)
	transactionHandler := handlers.NewTransactionHandler(orchestrator)

	payments := r.Group("/api/payment")
	{
		payments.POST("/initiate", paymentHandler.InitiatePayment)
		payments.POST("/check-status", paymentHandler.CheckStatus)
		payments.POST("/confirm", paymentHandler.ConfirmPayment)
		payments.POST("/cancel", paymentHandler.CancelPayment)
		payments.POST("/refund", paymentHandler.RefundPayment)
		payments.GET("/history", transactionHandler.History)
		payments.GET("/transactions/:order_id", transactionHandler.GetTransaction)
	}

	r.GET("/api/admin/payment-stats", transactionHandler.Stats)

	return r
}
