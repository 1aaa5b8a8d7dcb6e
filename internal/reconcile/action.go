package reconcile

import "github.com/shopspring/decimal"

// epsilon below which a position or target is treated as flat.
var epsilon = decimal.New(1, -8)

// Action is the trade needed to move the account from its actual
// position to the desired one. Delta keeps the sign convention of the
// transition (positive grows exposure toward long); the gateway
// receives side plus |delta|.
type Action struct {
	Execute bool
	Side    string
	Delta   decimal.Decimal
}

// CalculateAction compares actual and desired positions and derives the
// reconciling trade. A trade executes only when its notional value
// meets minThresholdUSD (inclusive); dust deltas are reported with
// Execute=false. A non-positive price disables execution outright.
func CalculateAction(actual, desired, price, minThresholdUSD decimal.Decimal) Action {
	positionExists := actual.Abs().GreaterThan(epsilon)
	openRisk := desired.Abs().GreaterThan(epsilon)

	var delta decimal.Decimal
	var side string

	switch {
	case openRisk && positionExists:
		now := actual.Abs()
		target := desired.Abs()

		switch {
		case actual.Sign() < 0 && desired.Sign() < 0:
			// Both short. Shrinking the short means buying back.
			if now.GreaterThan(target) {
				delta = target.Sub(now).Neg()
				side = "buy"
			} else if now.LessThan(target) {
				delta = target.Sub(now)
				side = "sell"
			}
		case actual.Sign() < 0 && desired.Sign() > 0:
			delta = now.Add(desired)
			side = "buy"
		case actual.Sign() > 0 && desired.Sign() < 0:
			delta = actual.Add(target).Neg()
			side = "sell"
		case actual.Sign() > 0 && desired.Sign() > 0:
			if now.LessThan(target) {
				delta = target.Sub(now)
				side = "buy"
			} else if now.GreaterThan(target) {
				delta = now.Sub(target)
				side = "sell"
			}
		}

	case openRisk:
		delta = desired
		if desired.Sign() > 0 {
			side = "buy"
		} else {
			side = "sell"
		}

	case positionExists:
		delta = actual.Neg()
		if actual.Sign() > 0 {
			side = "sell"
		} else {
			side = "buy"
		}
	}

	if side == "" || delta.IsZero() {
		return Action{}
	}
	if price.Sign() <= 0 {
		return Action{Delta: delta}
	}
	if delta.Mul(price).Abs().LessThan(minThresholdUSD) {
		return Action{Delta: delta}
	}
	return Action{Execute: true, Side: side, Delta: delta}
}
