//go:build integration

package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	apperrors "github.com/akylbek/payment-system/gateway-orchestrator/internal/errors"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/models"
)

type PostgresStoreSuite struct {
	suite.Suite
	container *postgres.PostgresContainer
	db        *sql.DB
	store     *PostgresTransactionStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("payments"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sql.Open("postgres", dsn)
	s.Require().NoError(err)
	s.Require().NoError(db.PingContext(ctx))
	s.db = db

	s.store = NewPostgresTransactionStore(db)
	s.Require().NoError(s.store.InitSchema(ctx))
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.db.Exec(`TRUNCATE payment_transactions`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seed(orderID, trxID string) *models.Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := &models.Transaction{
		OrderID:            orderID,
		TrxID:              trxID,
		TrxToken:           "T123",
		Amount:             decimal.RequireFromString("1000.00"),
		Currency:           "YER",
		CustomerID:         "C1",
		Status:             models.StatusPending,
		Gateway:            models.DefaultGateway,
		GatewayResponseRaw: []byte(`{"status":1,"code":"1111"}`),
		InitiatedAt:        &now,
	}
	s.Require().NoError(s.store.Create(context.Background(), rec))
	return rec
}

func (s *PostgresStoreSuite) TestCreateAndRead() {
	ctx := context.Background()
	s.seed("O1", "TRX_1")

	rec, found, err := s.store.GetByTrxID(ctx, "TRX_1")
	s.Require().NoError(err)
	s.Require().True(found)
	s.Equal("O1", rec.OrderID)
	s.True(rec.Amount.Equal(decimal.NewFromInt(1000)))
	s.JSONEq(`{"status":1,"code":"1111"}`, string(rec.GatewayResponseRaw))
	s.NotNil(rec.InitiatedAt)
}

func (s *PostgresStoreSuite) TestUniqueKeys() {
	s.seed("O1", "TRX_1")

	err := s.store.Create(context.Background(), &models.Transaction{
		OrderID: "O1", TrxID: "TRX_2", Amount: decimal.NewFromInt(1), Currency: "YER", Status: models.StatusPending,
	})
	s.True(errors.Is(err, apperrors.ErrDuplicateKey))

	err = s.store.Create(context.Background(), &models.Transaction{
		OrderID: "O2", TrxID: "TRX_1", Amount: decimal.NewFromInt(1), Currency: "YER", Status: models.StatusPending,
	})
	s.True(errors.Is(err, apperrors.ErrDuplicateKey))
}

func (s *PostgresStoreSuite) TestConcurrentCompareAndUpdate() {
	ctx := context.Background()
	s.seed("O1", "TRX_1")

	const writers = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.CompareAndUpdate(ctx, "O1", models.StatusPending, func(rec *models.Transaction) error {
				at := time.Now().UTC()
				rec.Status = models.StatusPaid
				rec.CompletedAt = &at
				return nil
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			s.True(errors.Is(err, apperrors.ErrStaleState))
		}()
	}
	wg.Wait()

	s.Equal(1, wins)
	rec, _, err := s.store.GetByOrderID(ctx, "O1")
	s.Require().NoError(err)
	s.Equal(models.StatusPaid, rec.Status)
	s.NotNil(rec.CompletedAt)
}

func (s *PostgresStoreSuite) TestTimestampsStampOnce() {
	ctx := context.Background()
	s.seed("O1", "TRX_1")
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.store.CompareAndUpdate(ctx, "O1", models.StatusPending, func(rec *models.Transaction) error {
		rec.Status = models.StatusProcessing
		rec.ProcessedAt = &first
		return nil
	})
	s.Require().NoError(err)

	later := first.Add(time.Hour)
	rec, err := s.store.CompareAndUpdate(ctx, "O1", models.StatusProcessing, func(rec *models.Transaction) error {
		rec.ProcessedAt = &later
		return nil
	})
	s.Require().NoError(err)
	s.Equal(models.StatusProcessing, rec.Status)

	stored, _, err := s.store.GetByOrderID(ctx, "O1")
	s.Require().NoError(err)
	s.True(first.Equal(*stored.ProcessedAt), "processed_at keeps the first stamp")
}

func (s *PostgresStoreSuite) TestListAndStats() {
	ctx := context.Background()
	s.seed("O1", "TRX_1")
	s.seed("O2", "TRX_2")
	_, err := s.store.CompareAndUpdate(ctx, "O1", models.StatusPending, func(rec *models.Transaction) error {
		rec.Status = models.StatusPaid
		return nil
	})
	s.Require().NoError(err)

	list, err := s.store.List(ctx, models.ListFilter{CustomerID: "C1"})
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("O2", list[0].OrderID)

	stats, err := s.store.Stats(ctx, models.StatsFilter{CustomerID: "C1"})
	s.Require().NoError(err)
	s.EqualValues(2, stats.TotalTransactions)
	s.EqualValues(1, stats.PaidTransactions)
	s.True(stats.SuccessRate.Equal(decimal.NewFromInt(50)))
	s.True(stats.TotalAmount.Equal(decimal.NewFromInt(1000)))

	future := time.Now().Add(time.Hour)
	later, err := s.store.List(ctx, models.ListFilter{CustomerID: "C1", Period: models.Period{From: &future}})
	s.Require().NoError(err)
	s.Empty(later)

	past := time.Now().Add(-time.Hour)
	recent, err := s.store.Stats(ctx, models.StatsFilter{Period: models.Period{From: &past, To: &future}})
	s.Require().NoError(err)
	s.EqualValues(2, recent.TotalTransactions)
}
