// Package reconcile compares the desired portfolio position per symbol
// with the position the account actually holds and closes the gap
// through the order gateway. Actual state requires agreement between
// the local position ledger and an external observer; without that
// consensus the symbol is skipped rather than traded blind.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradecore/internal/config"
	"tradecore/internal/gateway"
	"tradecore/internal/models"
	"tradecore/internal/repository"
)

// PriceSource supplies market prices and the account value.
// *pricefeed.Feed implements it.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	AccountValue(ctx context.Context) (decimal.Decimal, bool)
}

// PositionSource reports the externally observed position for a
// symbol. ok=false means no observer could answer.
type PositionSource interface {
	Position(ctx context.Context, symbol string) (decimal.Decimal, bool)
}

// OrderGateway submits reconciliation orders.
type OrderGateway interface {
	SubmitOrder(ctx context.Context, req gateway.OrderRequest) (gateway.OrderResult, error)
}

type Engine struct {
	Repo     repository.Repository
	Feed     PriceSource
	Observer PositionSource
	Gateway  OrderGateway
	Sizer    *Sizer
	Config   config.ReconciliationConfig
	Logger   *zap.Logger

	now func() time.Time
}

func NewEngine(repo repository.Repository, feed PriceSource, obs PositionSource, gw OrderGateway, sizer *Sizer, cfg config.ReconciliationConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Repo:     repo,
		Feed:     feed,
		Observer: obs,
		Gateway:  gw,
		Sizer:    sizer,
		Config:   cfg,
		Logger:   logger,
		now:      time.Now,
	}
}

// RunOnce runs one reconciliation cycle over the configured symbols.
// A failing symbol never stops the rest of the cycle.
func (e *Engine) RunOnce(ctx context.Context) error {
	for _, symbol := range e.Config.Symbols {
		if err := e.reconcileSymbol(ctx, symbol); err != nil {
			e.Logger.Error("symbol reconciliation failed",
				zap.String("symbol", symbol),
				zap.Error(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (e *Engine) reconcileSymbol(ctx context.Context, symbol string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	desired := e.desiredState(ctx, symbol)

	actual, consensus := e.actualState(ctx, symbol)
	if !consensus {
		e.Logger.Warn("no position consensus, skipping symbol", zap.String("symbol", symbol))
		return nil
	}

	price, perr := e.Feed.LatestPrice(ctx, symbol)
	if perr != nil {
		e.Logger.Warn("no price, skipping symbol", zap.String("symbol", symbol), zap.Error(perr))
		return nil
	}

	action := CalculateAction(actual, desired, price, decimal.NewFromFloat(e.minThreshold()))
	if !action.Execute {
		e.Logger.Debug("no action needed",
			zap.String("symbol", symbol),
			zap.String("actual", actual.String()),
			zap.String("desired", desired.String()))
		return nil
	}

	size := action.Delta.Abs()
	e.Logger.Info("reconciliation trade needed",
		zap.String("symbol", symbol),
		zap.String("side", action.Side),
		zap.String("size", size.String()),
		zap.String("actual", actual.String()),
		zap.String("desired", desired.String()))

	result, err := e.Gateway.SubmitOrder(ctx, gateway.OrderRequest{
		Symbol: symbol,
		Side:   action.Side,
		Size:   size,
		Type:   "market",
	})
	if err != nil {
		return fmt.Errorf("submit order: %w", err)
	}
	e.Logger.Info("reconciliation order submitted",
		zap.String("symbol", symbol),
		zap.String("client_order_id", result.ClientOrderID),
		zap.String("status", result.Status))

	if result.Status == models.OrderStatusConfirmed {
		e.recordExpectedPosition(ctx, symbol, actual, action.Side, size)
	}
	return nil
}

// desiredState aggregates active profitable runs into a signed
// direction, sizes it by account balance and Kelly adjustment, and
// converts to units at the current price. Fail safe: anything missing
// means a desired position of zero.
func (e *Engine) desiredState(ctx context.Context, symbol string) decimal.Decimal {
	window := e.Config.RunFreshnessWindow
	if window <= 0 {
		window = 10 * time.Minute
	}
	agg, err := e.Repo.AggregateActiveRuns(ctx, symbol, e.now().UTC().Add(-window))
	if err != nil {
		e.Logger.Warn("active run query failed", zap.String("symbol", symbol), zap.Error(err))
		return decimal.Zero
	}
	if agg == nil || agg.TotalPnL.Sign() <= 0 || agg.Direction.Abs().LessThan(decimal.NewFromInt(1)) {
		return decimal.Zero
	}

	base := e.baseRiskSize(ctx)
	adjusted := base
	if e.Sizer != nil {
		adjusted = e.Sizer.AdjustedSize(ctx, base)
	}

	price, err := e.Feed.LatestPrice(ctx, symbol)
	if err != nil || price.Sign() <= 0 {
		e.Logger.Warn("no price for desired state", zap.String("symbol", symbol))
		return decimal.Zero
	}

	return agg.Direction.Mul(adjusted).Div(price)
}

func (e *Engine) baseRiskSize(ctx context.Context) decimal.Decimal {
	riskPct := e.Config.RiskPosPercentage
	if riskPct <= 0 {
		riskPct = 0.0016180339887
	}
	if balance, ok := e.Feed.AccountValue(ctx); ok {
		return balance.Mul(decimal.NewFromFloat(riskPct))
	}
	fallback := e.Config.FallbackRiskSizeUSD
	if fallback <= 0 {
		fallback = 20.25
	}
	e.Logger.Warn("account balance unavailable, using fallback risk size",
		zap.Float64("fallback_usd", fallback))
	return decimal.NewFromFloat(fallback)
}

// actualState establishes the account's position for symbol by
// consensus between the local ledger and an external observer. A
// missing local record counts as flat only when an observer answered;
// an unreachable observer set is indeterminate, never zero.
func (e *Engine) actualState(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	observed, ok := e.Observer.Position(ctx, symbol)
	if !ok {
		return decimal.Zero, false
	}

	local := decimal.Zero
	staleness := e.Config.PositionStaleness
	if staleness <= 0 {
		staleness = 5 * time.Minute
	}
	snap, err := e.Repo.LatestPosition(ctx, symbol, e.now().UTC().Add(-staleness))
	if err != nil {
		e.Logger.Warn("local position query failed", zap.String("symbol", symbol), zap.Error(err))
		return decimal.Zero, false
	}
	if snap != nil {
		local = snap.Size
	}

	if local.Sub(observed).Abs().LessThan(epsilon) {
		return local, true
	}
	e.Logger.Warn("position sources disagree",
		zap.String("symbol", symbol),
		zap.String("local", local.String()),
		zap.String("observer", observed.String()))
	return decimal.Zero, false
}

func (e *Engine) minThreshold() float64 {
	if e.Config.MinTradeThreshold > 0 {
		return e.Config.MinTradeThreshold
	}
	return 20.0
}

// recordExpectedPosition keeps the local ledger current after our own
// confirmed trades so the next cycle's consensus reflects them.
func (e *Engine) recordExpectedPosition(ctx context.Context, symbol string, actual decimal.Decimal, side string, size decimal.Decimal) {
	signed := size
	if side == "sell" {
		signed = size.Neg()
	}
	now := e.now().UTC()
	item := &models.PositionSnapshot{
		Symbol:     symbol,
		Size:       actual.Add(signed),
		RecordedAt: now,
		CreatedAt:  now,
	}
	if err := e.Repo.InsertPositionSnapshot(ctx, item); err != nil {
		e.Logger.Warn("position snapshot insert failed", zap.String("symbol", symbol), zap.Error(err))
	}
}
