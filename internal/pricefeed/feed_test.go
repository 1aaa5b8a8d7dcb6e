package pricefeed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradecore/internal/models"
	"tradecore/internal/repository"
)

// stubRepo embeds the interface so only the methods a test exercises
// need real bodies.
type stubRepo struct {
	repository.Repository

	tick    *models.MarketTick
	tickErr error

	balance    *models.BalanceSnapshot
	balanceErr error
}

func (r *stubRepo) LatestTick(ctx context.Context, symbol string) (*models.MarketTick, error) {
	return r.tick, r.tickErr
}

func (r *stubRepo) LatestBalance(ctx context.Context, since time.Time) (*models.BalanceSnapshot, error) {
	return r.balance, r.balanceErr
}

func TestLatestPrice_TickFallback(t *testing.T) {
	repo := &stubRepo{tick: &models.MarketTick{
		Symbol:    "BTC/USDC:USDC",
		Close:     decimal.RequireFromString("118000"),
		Timestamp: time.Now().UTC(),
	}}
	f := &Feed{Repo: repo, Logger: zap.NewNop()}

	price, err := f.LatestPrice(context.Background(), "BTC/USDC:USDC")
	if err != nil {
		t.Fatalf("err=%v want nil", err)
	}
	if !price.Equal(decimal.RequireFromString("118000")) {
		t.Fatalf("price=%s want 118000", price)
	}
}

func TestLatestPrice_NoSource(t *testing.T) {
	f := &Feed{Repo: &stubRepo{}, Logger: zap.NewNop()}

	_, err := f.LatestPrice(context.Background(), "BTC/USDC:USDC")
	if err == nil {
		t.Fatalf("err=nil want no price available")
	}
}

func TestLatestPrice_FallbackQueryError(t *testing.T) {
	f := &Feed{Repo: &stubRepo{tickErr: fmt.Errorf("db down")}, Logger: zap.NewNop()}

	_, err := f.LatestPrice(context.Background(), "BTC/USDC:USDC")
	if err == nil {
		t.Fatalf("err=nil want wrapped fallback error")
	}
}

func TestAccountValue_SnapshotFallback(t *testing.T) {
	repo := &stubRepo{balance: &models.BalanceSnapshot{
		AccountValue: decimal.RequireFromString("12500.50"),
		RecordedAt:   time.Now().UTC(),
	}}
	f := &Feed{Repo: repo, Logger: zap.NewNop()}

	value, ok := f.AccountValue(context.Background())
	if !ok {
		t.Fatalf("ok=false want true")
	}
	if !value.Equal(decimal.RequireFromString("12500.50")) {
		t.Fatalf("value=%s want 12500.50", value)
	}
}

func TestAccountValue_NoSource(t *testing.T) {
	f := &Feed{Repo: &stubRepo{}, Logger: zap.NewNop()}

	if _, ok := f.AccountValue(context.Background()); ok {
		t.Fatalf("ok=true want false with no stream and no snapshot")
	}
}

func TestAccountValue_SnapshotErrorIsIndeterminate(t *testing.T) {
	f := &Feed{Repo: &stubRepo{balanceErr: fmt.Errorf("db down")}, Logger: zap.NewNop()}

	if _, ok := f.AccountValue(context.Background()); ok {
		t.Fatalf("ok=true want false when the snapshot query fails")
	}
}
