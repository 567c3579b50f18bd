package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/gateway-orchestrator/internal/api"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/config"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/events"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/gateway"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/repository"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/service"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/telemetry"
)

const serviceName = "gateway-orchestrator"

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     serviceName,
		Short:   "Payment transaction orchestrator for the BAS gateway",
		Version: Version,
		RunE:    runServe,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize telemetry
	if err := telemetry.InitTelemetry(serviceName, cfg.JaegerEndpoint); err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Gateway Orchestrator", zap.String("version", Version))

	store, closeStore, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	gw, closeGateway, err := openGateway(cfg.Gateway)
	if err != nil {
		return err
	}
	defer closeGateway()

	opts := []service.Option{
		service.WithDefaultCurrency(cfg.DefaultCurrency),
		service.WithStatusRetry(service.RetryPolicy{
			MaxAttempts: cfg.StatusRetry.MaxAttempts,
			BaseDelay:   cfg.StatusRetry.BaseDelay,
			MaxDelay:    cfg.StatusRetry.MaxDelay,
		}),
	}

	// Connect to Kafka
	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer publisher.Close()
		opts = append(opts, service.WithPublisher(publisher))
	} else {
		telemetry.Logger.Warn("KAFKA_BROKERS not set, status events disabled")
	}

	orchestrator := service.NewOrchestrator(store, gw, opts...)

	// Setup HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(orchestrator),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Gateway Orchestrator starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
	return nil
}

// openStore picks Postgres when DATABASE_URL is set and the in-memory store
// otherwise, then fronts it with Redis when REDIS_URL is set.
func openStore(ctx context.Context, cfg *config.Config) (interfaces.TransactionStore, func(), error) {
	var (
		store   interfaces.TransactionStore
		closers []func()
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		closers = append(closers, func() { db.Close() })

		pg := repository.NewPostgresTransactionStore(db)
		if err := pg.InitSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		store = pg
	} else {
		telemetry.Logger.Warn("DATABASE_URL not set, using in-memory transaction store")
		store = repository.NewMemoryTransactionStore()
	}

	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(redisOptions(cfg.RedisURL))
		closers = append(closers, func() { redisClient.Close() })
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			telemetry.Logger.Warn("Failed to instrument redis tracing", zap.Error(err))
		}
		store = repository.NewCachedTransactionStore(store, redisClient, cfg.RedisCacheTTL)
	}

	return store, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}

// redisOptions accepts both redis:// URLs and bare host:port addresses.
func redisOptions(raw string) *redis.Options {
	if strings.Contains(raw, "://") {
		if opts, err := redis.ParseURL(raw); err == nil {
			return opts
		}
	}
	return &redis.Options{Addr: raw}
}

func openGateway(cfg config.GatewayConfig) (interfaces.GatewayClient, func(), error) {
	var (
		base      interfaces.GatewayClient
		closeFunc = func() {}
	)

	switch cfg.Transport {
	case config.TransportNATS:
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		closeFunc = nc.Close
		base = gateway.NewNATSClient(nc, cfg.NatsSubject, cfg.Timeout)
	default:
		base = gateway.NewHTTPClient(gateway.HTTPConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		})
	}

	guarded := gateway.NewGuardedClient(
		base,
		gateway.NewRateLimiter(cfg.RateLimitInterval, cfg.RateLimitBurst),
		gateway.NewCircuitBreaker(gateway.CircuitBreakerConfig{
			MaxFailures:  cfg.BreakerMaxFailures,
			ResetTimeout: cfg.BreakerResetTimeout,
			IsFailure:    gateway.IsUnavailable,
		}),
	)
	return guarded, closeFunc, nil
}
