package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/models"
)

// RunCohort selects which strategy runs feed a Kelly metrics calculation.
type RunCohort string

const (
	// CohortOpen is runs still in flight (no end time recorded).
	CohortOpen RunCohort = "open"
	// CohortClosed is completed runs, the historical baseline.
	CohortClosed RunCohort = "closed"
)

// RunAggregate is the per-symbol rollup of qualifying strategy runs.
type RunAggregate struct {
	Direction decimal.Decimal
	TotalPnL  decimal.Decimal
	Runs      int64
}

type ListOrdersParams struct {
	Limit   int
	Offset  int
	Status  *string
	Symbol  *string
	OrderBy string
	Asc     *bool
}

type Repository interface {
	// Strategy runs (read-only; written by the strategy fleet).
	AggregateActiveRuns(ctx context.Context, symbol string, updatedSince time.Time) (*RunAggregate, error)
	ListRunPnL(ctx context.Context, cohort RunCohort) ([]decimal.Decimal, error)

	// Local position ledger.
	LatestPosition(ctx context.Context, symbol string, since time.Time) (*models.PositionSnapshot, error)
	InsertPositionSnapshot(ctx context.Context, item *models.PositionSnapshot) error

	// Balance snapshots.
	LatestBalance(ctx context.Context, since time.Time) (*models.BalanceSnapshot, error)
	InsertBalanceSnapshot(ctx context.Context, item *models.BalanceSnapshot) error

	// Market data fallback for price lookups.
	LatestTick(ctx context.Context, symbol string) (*models.MarketTick, error)
	InsertTick(ctx context.Context, item *models.MarketTick) error

	// Order execution log. CreateOrderIfAbsent must be atomic against
	// concurrent identical fingerprints: exactly one row wins, and the
	// returned record is the winner either way.
	CreateOrderIfAbsent(ctx context.Context, item *models.OrderExecution) (*models.OrderExecution, bool, error)
	GetOrderByClientID(ctx context.Context, clientOrderID string) (*models.OrderExecution, error)
	GetOrderByFingerprint(ctx context.Context, fingerprint string) (*models.OrderExecution, error)
	UpdateOrderStatus(ctx context.Context, clientOrderID string, status string, updates map[string]any, incrementRetry bool) error
	ListOrders(ctx context.Context, params ListOrdersParams) ([]models.OrderExecution, error)
	CountOrders(ctx context.Context, params ListOrdersParams) (int64, error)
}
