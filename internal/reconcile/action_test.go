package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestCalculateAction_BothShortShrink(t *testing.T) {
	got := CalculateAction(d("-0.0003"), d("-0.0002"), d("118000"), d("10"))
	if !got.Execute {
		t.Fatalf("execute=false want true")
	}
	if got.Side != "buy" {
		t.Fatalf("side=%s want buy", got.Side)
	}
	if got.Delta.Cmp(d("0.0001")) != 0 {
		t.Fatalf("delta=%s want 0.0001", got.Delta.String())
	}
}

func TestCalculateAction_BothShortGrow(t *testing.T) {
	got := CalculateAction(d("-0.0002"), d("-0.0005"), d("118000"), d("10"))
	if !got.Execute || got.Side != "sell" {
		t.Fatalf("got execute=%v side=%s want sell", got.Execute, got.Side)
	}
	if got.Delta.Cmp(d("0.0003")) != 0 {
		t.Fatalf("delta=%s want 0.0003", got.Delta.String())
	}
}

func TestCalculateAction_ShortToLong(t *testing.T) {
	got := CalculateAction(d("-0.0002"), d("0.0003"), d("118000"), d("10"))
	if !got.Execute || got.Side != "buy" {
		t.Fatalf("got execute=%v side=%s want buy", got.Execute, got.Side)
	}
	if got.Delta.Cmp(d("0.0005")) != 0 {
		t.Fatalf("delta=%s want 0.0005", got.Delta.String())
	}
}

func TestCalculateAction_LongToShort(t *testing.T) {
	got := CalculateAction(d("0.0002"), d("-0.0003"), d("118000"), d("10"))
	if !got.Execute || got.Side != "sell" {
		t.Fatalf("got execute=%v side=%s want sell", got.Execute, got.Side)
	}
	if got.Delta.Cmp(d("-0.0005")) != 0 {
		t.Fatalf("delta=%s want -0.0005", got.Delta.String())
	}
}

func TestCalculateAction_BothLongGrow(t *testing.T) {
	got := CalculateAction(d("0.0002"), d("0.0006"), d("118000"), d("10"))
	if !got.Execute || got.Side != "buy" {
		t.Fatalf("got execute=%v side=%s want buy", got.Execute, got.Side)
	}
	if got.Delta.Cmp(d("0.0004")) != 0 {
		t.Fatalf("delta=%s want 0.0004", got.Delta.String())
	}
}

func TestCalculateAction_BothLongShrink(t *testing.T) {
	got := CalculateAction(d("0.0006"), d("0.0002"), d("118000"), d("10"))
	if !got.Execute || got.Side != "sell" {
		t.Fatalf("got execute=%v side=%s want sell", got.Execute, got.Side)
	}
	if got.Delta.Cmp(d("0.0004")) != 0 {
		t.Fatalf("delta=%s want 0.0004", got.Delta.String())
	}
}

func TestCalculateAction_Aligned(t *testing.T) {
	got := CalculateAction(d("0.0002"), d("0.0002"), d("118000"), d("10"))
	if got.Execute {
		t.Fatalf("execute=true want false")
	}
	if got.Side != "" {
		t.Fatalf("side=%s want none", got.Side)
	}
	if !got.Delta.IsZero() {
		t.Fatalf("delta=%s want 0", got.Delta.String())
	}
}

func TestCalculateAction_FlatToOpen(t *testing.T) {
	got := CalculateAction(d("0"), d("0.0005"), d("118000"), d("10"))
	if !got.Execute || got.Side != "buy" {
		t.Fatalf("got execute=%v side=%s want buy", got.Execute, got.Side)
	}
	if got.Delta.Cmp(d("0.0005")) != 0 {
		t.Fatalf("delta=%s want 0.0005", got.Delta.String())
	}

	got = CalculateAction(d("0"), d("-0.0005"), d("118000"), d("10"))
	if !got.Execute || got.Side != "sell" {
		t.Fatalf("got execute=%v side=%s want sell", got.Execute, got.Side)
	}
}

func TestCalculateAction_Liquidate(t *testing.T) {
	got := CalculateAction(d("0.0003"), d("0"), d("118000"), d("10"))
	if !got.Execute || got.Side != "sell" {
		t.Fatalf("got execute=%v side=%s want sell", got.Execute, got.Side)
	}
	if got.Delta.Cmp(d("-0.0003")) != 0 {
		t.Fatalf("delta=%s want -0.0003", got.Delta.String())
	}

	got = CalculateAction(d("-0.0003"), d("0"), d("118000"), d("10"))
	if !got.Execute || got.Side != "buy" {
		t.Fatalf("got execute=%v side=%s want buy", got.Execute, got.Side)
	}
	if got.Delta.Cmp(d("0.0003")) != 0 {
		t.Fatalf("delta=%s want 0.0003", got.Delta.String())
	}
}

func TestCalculateAction_ThresholdInclusive(t *testing.T) {
	// delta 0.0005 at price 40000 is exactly 20 USD.
	got := CalculateAction(d("0"), d("0.0005"), d("40000"), d("20"))
	if !got.Execute {
		t.Fatalf("notional exactly at threshold must execute")
	}

	// One tick below the threshold must not execute, but the delta is
	// still reported.
	got = CalculateAction(d("0"), d("0.0005"), d("39999"), d("20"))
	if got.Execute {
		t.Fatalf("notional below threshold must not execute")
	}
	if got.Delta.Cmp(d("0.0005")) != 0 {
		t.Fatalf("delta=%s want 0.0005", got.Delta.String())
	}
}

func TestCalculateAction_DustIgnored(t *testing.T) {
	// Differences inside the 1e-8 tolerance count as aligned.
	got := CalculateAction(d("0.000000000001"), d("0"), d("118000"), d("10"))
	if got.Execute {
		t.Fatalf("dust position must not trade")
	}
}

func TestCalculateAction_NoPrice(t *testing.T) {
	got := CalculateAction(d("0"), d("0.0005"), decimal.Zero, d("10"))
	if got.Execute {
		t.Fatalf("missing price must not execute")
	}
}
