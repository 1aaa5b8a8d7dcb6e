package pricefeed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradecore/internal/models"
	"tradecore/internal/repository"
)

// BalanceRecorder persists the latest account value from the balance
// stream so sizing keeps working across redis restarts.
type BalanceRecorder struct {
	Feed     *Feed
	Repo     repository.Repository
	Logger   *zap.Logger
	Interval time.Duration

	lastValue decimal.Decimal
}

func (r *BalanceRecorder) Run(ctx context.Context) error {
	if r == nil || r.Feed == nil || r.Repo == nil {
		return nil
	}
	interval := r.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	// Run once on start.
	_ = r.RunOnce(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			_ = r.RunOnce(ctx)
		}
	}
}

func (r *BalanceRecorder) RunOnce(ctx context.Context) error {
	if r == nil || r.Feed == nil || r.Repo == nil {
		return nil
	}
	value, ok := r.Feed.balanceFromStream(ctx)
	if !ok {
		return nil
	}
	// Skip unchanged values to keep the snapshot table small.
	if !r.lastValue.IsZero() && value.Equal(r.lastValue) {
		return nil
	}

	now := time.Now().UTC()
	item := &models.BalanceSnapshot{
		AccountValue: value,
		RecordedAt:   now,
		CreatedAt:    now,
	}
	if err := r.Repo.InsertBalanceSnapshot(ctx, item); err != nil {
		if r.Logger != nil {
			r.Logger.Warn("balance snapshot insert failed", zap.Error(err))
		}
		return err
	}
	r.lastValue = value
	return nil
}
