package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradecore/internal/config"
	"tradecore/internal/gateway"
	"tradecore/internal/models"
	"tradecore/internal/repository"
)

type engineRepo struct {
	repository.Repository

	agg    *repository.RunAggregate
	aggErr error

	snap    *models.PositionSnapshot
	snapErr error

	inserted []*models.PositionSnapshot
}

func (r *engineRepo) AggregateActiveRuns(ctx context.Context, symbol string, updatedSince time.Time) (*repository.RunAggregate, error) {
	return r.agg, r.aggErr
}

func (r *engineRepo) LatestPosition(ctx context.Context, symbol string, since time.Time) (*models.PositionSnapshot, error) {
	return r.snap, r.snapErr
}

func (r *engineRepo) InsertPositionSnapshot(ctx context.Context, item *models.PositionSnapshot) error {
	r.inserted = append(r.inserted, item)
	return nil
}

type stubFeed struct {
	price     decimal.Decimal
	priceErr  error
	balance   decimal.Decimal
	balanceOK bool
}

func (f *stubFeed) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f.price, f.priceErr
}

func (f *stubFeed) AccountValue(ctx context.Context) (decimal.Decimal, bool) {
	return f.balance, f.balanceOK
}

type stubPositions struct {
	pos decimal.Decimal
	ok  bool
}

func (o *stubPositions) Position(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	return o.pos, o.ok
}

type stubGateway struct {
	requests []gateway.OrderRequest
	result   gateway.OrderResult
	err      error
}

func (g *stubGateway) SubmitOrder(ctx context.Context, req gateway.OrderRequest) (gateway.OrderResult, error) {
	g.requests = append(g.requests, req)
	return g.result, g.err
}

func engineConfig() config.ReconciliationConfig {
	return config.ReconciliationConfig{
		Symbols:             []string{"BTC/USDC:USDC"},
		FallbackRiskSizeUSD: 23.6,
		MinTradeThreshold:   10,
		RunFreshnessWindow:  10 * time.Minute,
		PositionStaleness:   5 * time.Minute,
	}
}

func shortRun() *repository.RunAggregate {
	return &repository.RunAggregate{
		Direction: decimal.NewFromInt(-1),
		TotalPnL:  decimal.RequireFromString("5.5"),
		Runs:      2,
	}
}

func TestRunOnce_ShrinksShortPosition(t *testing.T) {
	repo := &engineRepo{
		agg:  shortRun(),
		snap: &models.PositionSnapshot{Symbol: "BTC/USDC:USDC", Size: d("-0.0003")},
	}
	gw := &stubGateway{result: gateway.OrderResult{
		ClientOrderID: "0xdead",
		Status:        models.OrderStatusConfirmed,
	}}
	e := NewEngine(repo, &stubFeed{price: d("118000")}, &stubPositions{pos: d("-0.0003"), ok: true}, gw, nil, engineConfig(), zap.NewNop())

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("err=%v want nil", err)
	}
	if len(gw.requests) != 1 {
		t.Fatalf("orders=%d want 1", len(gw.requests))
	}
	req := gw.requests[0]
	// desired = -1 * 23.6 / 118000 = -0.0002; short shrinks by 0.0001.
	if req.Side != "buy" {
		t.Fatalf("side=%s want buy", req.Side)
	}
	if !req.Size.Equal(d("0.0001")) {
		t.Fatalf("size=%s want 0.0001", req.Size)
	}
	if req.Type != "market" {
		t.Fatalf("type=%s want market", req.Type)
	}
}

func TestRunOnce_ConfirmedTradeUpdatesLedger(t *testing.T) {
	repo := &engineRepo{
		agg:  shortRun(),
		snap: &models.PositionSnapshot{Symbol: "BTC/USDC:USDC", Size: d("-0.0003")},
	}
	gw := &stubGateway{result: gateway.OrderResult{Status: models.OrderStatusConfirmed}}
	e := NewEngine(repo, &stubFeed{price: d("118000")}, &stubPositions{pos: d("-0.0003"), ok: true}, gw, nil, engineConfig(), zap.NewNop())

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("snapshots=%d want 1", len(repo.inserted))
	}
	// -0.0003 actual plus a 0.0001 buy.
	if !repo.inserted[0].Size.Equal(d("-0.0002")) {
		t.Fatalf("ledger size=%s want -0.0002", repo.inserted[0].Size)
	}
}

func TestRunOnce_UnconfirmedTradeLeavesLedgerAlone(t *testing.T) {
	repo := &engineRepo{
		agg:  shortRun(),
		snap: &models.PositionSnapshot{Symbol: "BTC/USDC:USDC", Size: d("-0.0003")},
	}
	gw := &stubGateway{result: gateway.OrderResult{Status: models.OrderStatusPending}}
	e := NewEngine(repo, &stubFeed{price: d("118000")}, &stubPositions{pos: d("-0.0003"), ok: true}, gw, nil, engineConfig(), zap.NewNop())

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(repo.inserted) != 0 {
		t.Fatalf("snapshots=%d want 0 for a pending order", len(repo.inserted))
	}
}

func TestRunOnce_NoObserverConsensusSkipsSymbol(t *testing.T) {
	repo := &engineRepo{agg: shortRun()}
	gw := &stubGateway{}
	e := NewEngine(repo, &stubFeed{price: d("118000")}, &stubPositions{ok: false}, gw, nil, engineConfig(), zap.NewNop())

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(gw.requests) != 0 {
		t.Fatalf("orders=%d want 0 without consensus", len(gw.requests))
	}
}

func TestRunOnce_SourceDisagreementSkipsSymbol(t *testing.T) {
	repo := &engineRepo{
		agg:  shortRun(),
		snap: &models.PositionSnapshot{Symbol: "BTC/USDC:USDC", Size: d("0.001")},
	}
	gw := &stubGateway{}
	e := NewEngine(repo, &stubFeed{price: d("118000")}, &stubPositions{pos: d("-0.0003"), ok: true}, gw, nil, engineConfig(), zap.NewNop())

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(gw.requests) != 0 {
		t.Fatalf("orders=%d want 0 when the ledger and observer disagree", len(gw.requests))
	}
}

func TestRunOnce_MissingLocalRecordCountsAsFlat(t *testing.T) {
	// Observer answered, ledger has nothing fresh: actual is flat and a
	// flat observer agrees, so the desired short gets opened.
	repo := &engineRepo{agg: shortRun()}
	gw := &stubGateway{result: gateway.OrderResult{Status: models.OrderStatusConfirmed}}
	e := NewEngine(repo, &stubFeed{price: d("118000")}, &stubPositions{pos: decimal.Zero, ok: true}, gw, nil, engineConfig(), zap.NewNop())

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(gw.requests) != 1 {
		t.Fatalf("orders=%d want 1", len(gw.requests))
	}
	if gw.requests[0].Side != "sell" || !gw.requests[0].Size.Equal(d("0.0002")) {
		t.Fatalf("got %s %s want sell 0.0002", gw.requests[0].Side, gw.requests[0].Size)
	}
}

func TestRunOnce_UnprofitableRunsLiquidate(t *testing.T) {
	repo := &engineRepo{
		agg: &repository.RunAggregate{
			Direction: decimal.NewFromInt(-1),
			TotalPnL:  decimal.RequireFromString("-2"),
			Runs:      1,
		},
		snap: &models.PositionSnapshot{Symbol: "BTC/USDC:USDC", Size: d("-0.0003")},
	}
	gw := &stubGateway{result: gateway.OrderResult{Status: models.OrderStatusConfirmed}}
	e := NewEngine(repo, &stubFeed{price: d("118000")}, &stubPositions{pos: d("-0.0003"), ok: true}, gw, nil, engineConfig(), zap.NewNop())

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(gw.requests) != 1 {
		t.Fatalf("orders=%d want 1 (close the leftover short)", len(gw.requests))
	}
	if gw.requests[0].Side != "buy" || !gw.requests[0].Size.Equal(d("0.0003")) {
		t.Fatalf("got %s %s want buy 0.0003", gw.requests[0].Side, gw.requests[0].Size)
	}
}

func TestRunOnce_AlignedPositionsNoTrade(t *testing.T) {
	repo := &engineRepo{
		agg:  shortRun(),
		snap: &models.PositionSnapshot{Symbol: "BTC/USDC:USDC", Size: d("-0.0002")},
	}
	gw := &stubGateway{}
	e := NewEngine(repo, &stubFeed{price: d("118000")}, &stubPositions{pos: d("-0.0002"), ok: true}, gw, nil, engineConfig(), zap.NewNop())

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(gw.requests) != 0 {
		t.Fatalf("orders=%d want 0 when actual matches desired", len(gw.requests))
	}
}

func TestRunOnce_AccountBalanceSizesPosition(t *testing.T) {
	cfg := engineConfig()
	cfg.RiskPosPercentage = 0.002
	repo := &engineRepo{agg: shortRun()}
	gw := &stubGateway{result: gateway.OrderResult{Status: models.OrderStatusConfirmed}}
	feed := &stubFeed{price: d("118000"), balance: d("11800"), balanceOK: true}
	e := NewEngine(repo, feed, &stubPositions{pos: decimal.Zero, ok: true}, gw, nil, cfg, zap.NewNop())

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(gw.requests) != 1 {
		t.Fatalf("orders=%d want 1", len(gw.requests))
	}
	// 11800 * 0.002 = 23.6 USD at 118000 = 0.0002 units.
	if !gw.requests[0].Size.Equal(d("0.0002")) {
		t.Fatalf("size=%s want 0.0002", gw.requests[0].Size)
	}
}

func TestRunOnce_SubmitErrorDoesNotStopCycle(t *testing.T) {
	cfg := engineConfig()
	cfg.Symbols = []string{"BTC/USDC:USDC", "ETH/USDC:USDC"}
	repo := &engineRepo{agg: shortRun()}
	gw := &stubGateway{err: fmt.Errorf("exchange down")}
	e := NewEngine(repo, &stubFeed{price: d("118000")}, &stubPositions{pos: decimal.Zero, ok: true}, gw, nil, cfg, zap.NewNop())

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("err=%v want nil (failures are logged per symbol)", err)
	}
	if len(gw.requests) != 2 {
		t.Fatalf("orders=%d want 2: the second symbol still ran", len(gw.requests))
	}
}

func TestRunOnce_ContextCancelStopsCycle(t *testing.T) {
	cfg := engineConfig()
	cfg.Symbols = []string{"BTC/USDC:USDC", "ETH/USDC:USDC"}
	repo := &engineRepo{agg: shortRun()}
	gw := &stubGateway{result: gateway.OrderResult{Status: models.OrderStatusConfirmed}}
	e := NewEngine(repo, &stubFeed{price: d("118000")}, &stubPositions{pos: decimal.Zero, ok: true}, gw, nil, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.RunOnce(ctx); err != context.Canceled {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if len(gw.requests) > 1 {
		t.Fatalf("orders=%d want at most 1 after cancellation", len(gw.requests))
	}
}
