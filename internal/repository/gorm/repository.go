package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradecore/internal/models"
	"tradecore/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- strategy runs ----------------------------------------------------------

func (s *Store) AggregateActiveRuns(ctx context.Context, symbol string, updatedSince time.Time) (*repository.RunAggregate, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var row struct {
		Direction *decimal.Decimal `gorm:"column:direction"`
		TotalPnL  *decimal.Decimal `gorm:"column:total_pnl"`
		Runs      int64            `gorm:"column:runs"`
	}
	err := s.db.WithContext(ctx).
		Model(&models.StrategyRun{}).
		Select("SUM(position_direction) AS direction, SUM(live_pnl) AS total_pnl, COUNT(*) AS runs").
		Where("exit_run = ?", false).
		Where("end_time IS NULL").
		Where("live_pnl > 0").
		Where("symbol = ?", symbol).
		Where("update_time >= ?", updatedSince).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if row.Direction == nil || row.Runs == 0 {
		return nil, nil
	}
	agg := &repository.RunAggregate{
		Direction: *row.Direction,
		Runs:      row.Runs,
	}
	if row.TotalPnL != nil {
		agg.TotalPnL = *row.TotalPnL
	}
	return agg, nil
}

func (s *Store) ListRunPnL(ctx context.Context, cohort repository.RunCohort) ([]decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.StrategyRun{}).
		Where("live_pnl IS NOT NULL").
		Where("live_pnl <> 0")
	switch cohort {
	case repository.CohortOpen:
		query = query.Where("end_time IS NULL")
	case repository.CohortClosed:
		query = query.Where("end_time IS NOT NULL")
	}
	var out []decimal.Decimal
	if err := query.Pluck("live_pnl", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// --- positions & balances ---------------------------------------------------

func (s *Store) LatestPosition(ctx context.Context, symbol string, since time.Time) (*models.PositionSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.PositionSnapshot
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Where("recorded_at > ?", since).
		Order("recorded_at DESC").
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) InsertPositionSnapshot(ctx context.Context, item *models.PositionSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) LatestBalance(ctx context.Context, since time.Time) (*models.BalanceSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.BalanceSnapshot{})
	if !since.IsZero() {
		query = query.Where("recorded_at > ?", since)
	}
	var item models.BalanceSnapshot
	err := query.Order("recorded_at DESC").First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) InsertBalanceSnapshot(ctx context.Context, item *models.BalanceSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// --- market data ------------------------------------------------------------

func (s *Store) LatestTick(ctx context.Context, symbol string) (*models.MarketTick, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.MarketTick
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("timestamp DESC").
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) InsertTick(ctx context.Context, item *models.MarketTick) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// --- order execution log ----------------------------------------------------

// CreateOrderIfAbsent inserts the record unless a row with the same
// fingerprint already exists. The unique index plus DoNothing keeps
// concurrent identical requests from both becoming "new"; the loser of the
// race reads back the winner's row.
func (s *Store) CreateOrderIfAbsent(ctx context.Context, item *models.OrderExecution) (*models.OrderExecution, bool, error) {
	if s == nil || s.db == nil || item == nil {
		return nil, false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_fingerprint"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return item, true, nil
	}
	existing, err := s.GetOrderByFingerprint(ctx, item.RequestFingerprint)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *Store) GetOrderByClientID(ctx context.Context, clientOrderID string) (*models.OrderExecution, error) {
	return s.getOrder(ctx, "client_order_id = ?", clientOrderID)
}

func (s *Store) GetOrderByFingerprint(ctx context.Context, fingerprint string) (*models.OrderExecution, error) {
	return s.getOrder(ctx, "request_fingerprint = ?", fingerprint)
}

func (s *Store) getOrder(ctx context.Context, cond string, arg string) (*models.OrderExecution, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.OrderExecution
	err := s.db.WithContext(ctx).Where(cond, arg).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, clientOrderID string, status string, updates map[string]any, incrementRetry bool) error {
	if s == nil || s.db == nil || clientOrderID == "" {
		return nil
	}
	values := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range updates {
		values[k] = v
	}
	if incrementRetry {
		values["retry_count"] = gorm.Expr("retry_count + 1")
	}
	return s.db.WithContext(ctx).
		Model(&models.OrderExecution{}).
		Where("client_order_id = ?", clientOrderID).
		Updates(values).Error
}

func (s *Store) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.OrderExecution, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.applyOrderFilters(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.OrderExecution
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountOrders(ctx context.Context, params repository.ListOrdersParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.applyOrderFilters(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) applyOrderFilters(ctx context.Context, params repository.ListOrdersParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.OrderExecution{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.ToUpper(strings.TrimSpace(*params.Status)))
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	return query
}

// --- helpers ----------------------------------------------------------------

var orderableColumns = map[string]struct{}{
	"created_at": {},
	"updated_at": {},
	"status":     {},
	"symbol":     {},
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	col := strings.TrimSpace(orderBy)
	if _, ok := orderableColumns[col]; !ok {
		col = fallback
	}
	dir := "DESC"
	if asc != nil && *asc {
		dir = "ASC"
	}
	return query.Order(col + " " + dir)
}

func normalizeLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
