// Package pricefeed reads market prices and the account balance from
// redis streams, falling back to durable snapshots when the stream is
// empty or unreachable.
package pricefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradecore/internal/repository"
)

type Feed struct {
	Redis  *redis.Client
	Repo   repository.Repository
	Logger *zap.Logger

	PriceStream      string
	BalanceStream    string
	ScanCount        int64
	BalanceStaleness time.Duration
}

// LatestPrice returns the most recent price for symbol, preferring the
// stream and falling back to the last persisted tick.
func (f *Feed) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if price, ok := f.priceFromStream(ctx, symbol); ok {
		return price, nil
	}

	tick, err := f.Repo.LatestTick(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price fallback for %s: %w", symbol, err)
	}
	if tick == nil {
		return decimal.Zero, fmt.Errorf("no price available for %s", symbol)
	}
	f.Logger.Debug("price served from tick fallback",
		zap.String("symbol", symbol),
		zap.Time("tick_at", tick.Timestamp))
	return tick.Close, nil
}

func (f *Feed) priceFromStream(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	if f.Redis == nil {
		return decimal.Zero, false
	}
	count := f.ScanCount
	if count <= 0 {
		count = 500
	}
	msgs, err := f.Redis.XRevRangeN(ctx, f.PriceStream, "+", "-", count).Result()
	if err != nil {
		f.Logger.Warn("price stream read failed", zap.String("stream", f.PriceStream), zap.Error(err))
		return decimal.Zero, false
	}
	for _, msg := range msgs {
		if stringField(msg, "symbol") != symbol {
			continue
		}
		price, err := decimal.NewFromString(stringField(msg, "price"))
		if err != nil || price.IsZero() {
			continue
		}
		return price, true
	}
	return decimal.Zero, false
}

// AccountValue returns the latest account value, or ok=false when
// neither the stream nor a fresh snapshot can supply one. Callers fall
// back to their configured default size in that case.
func (f *Feed) AccountValue(ctx context.Context) (decimal.Decimal, bool) {
	if value, ok := f.balanceFromStream(ctx); ok {
		return value, true
	}

	staleness := f.BalanceStaleness
	if staleness <= 0 {
		staleness = 15 * time.Minute
	}
	snap, err := f.Repo.LatestBalance(ctx, time.Now().UTC().Add(-staleness))
	if err != nil {
		f.Logger.Warn("balance snapshot read failed", zap.Error(err))
		return decimal.Zero, false
	}
	if snap == nil {
		return decimal.Zero, false
	}
	return snap.AccountValue, true
}

func (f *Feed) balanceFromStream(ctx context.Context) (decimal.Decimal, bool) {
	if f.Redis == nil {
		return decimal.Zero, false
	}
	msgs, err := f.Redis.XRevRangeN(ctx, f.BalanceStream, "+", "-", 1).Result()
	if err != nil {
		f.Logger.Warn("balance stream read failed", zap.String("stream", f.BalanceStream), zap.Error(err))
		return decimal.Zero, false
	}
	if len(msgs) == 0 {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(stringField(msgs[0], "account_value"))
	if err != nil || value.Sign() <= 0 {
		return decimal.Zero, false
	}
	return value, true
}

func stringField(msg redis.XMessage, key string) string {
	v, ok := msg.Values[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
