package reconcile

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradecore/internal/config"
	"tradecore/internal/repository"
)

// Metrics holds the Kelly criterion statistics for one run cohort.
type Metrics struct {
	WinRate     float64
	RewardRatio float64
	KellyPct    float64
}

// ComputeMetrics derives Kelly metrics from signed pnl samples. It
// returns nil when there are fewer than minSamples non-zero samples or
// the sample is one-sided (no wins or no losses), because a Kelly
// fraction from such data is meaningless.
func ComputeMetrics(samples []decimal.Decimal, minSamples int) *Metrics {
	if minSamples <= 0 {
		minSamples = 10
	}

	var wins, losses []float64
	total := 0
	for _, pnl := range samples {
		if pnl.IsZero() {
			continue
		}
		total++
		v, _ := pnl.Float64()
		if v > 0 {
			wins = append(wins, v)
		} else {
			losses = append(losses, -v)
		}
	}
	if total < minSamples || len(wins) == 0 || len(losses) == 0 {
		return nil
	}

	winRate := float64(len(wins)) / float64(total)
	avgWin := mean(wins)
	avgLoss := mean(losses)
	if avgLoss == 0 {
		return nil
	}
	rewardRatio := avgWin / avgLoss

	return &Metrics{
		WinRate:     winRate,
		RewardRatio: rewardRatio,
		KellyPct:    winRate - ((1 - winRate) / rewardRatio),
	}
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Sizer applies Kelly-based adjustment to a base risk size by comparing
// the open-run cohort against the closed-run baseline.
type Sizer struct {
	Repo   repository.Repository
	Config config.KellyConfig
	Logger *zap.Logger
}

// AdjustedSize returns the risk size to deploy given base. Data access
// failures degrade to the unmodified base size; sizing must never block
// reconciliation.
func (s *Sizer) AdjustedSize(ctx context.Context, base decimal.Decimal) decimal.Decimal {
	current := s.cohortMetrics(ctx, repository.CohortOpen)
	historical := s.cohortMetrics(ctx, repository.CohortClosed)
	return s.apply(base, current, historical)
}

func (s *Sizer) cohortMetrics(ctx context.Context, cohort repository.RunCohort) *Metrics {
	samples, err := s.Repo.ListRunPnL(ctx, cohort)
	if err != nil {
		s.Logger.Warn("kelly cohort query failed",
			zap.String("cohort", string(cohort)),
			zap.Error(err))
		return nil
	}
	return ComputeMetrics(samples, s.Config.MinSamples)
}

// apply implements the sizing rules:
//   - no data in either cohort: a conservative probation fraction of base,
//   - no usable historical baseline but positive current performance:
//     interpolate between probation and base by the current Kelly fraction,
//   - no usable current data: base unmodified,
//   - both usable: scale base by 1 + clamp(1 - current/historical).
func (s *Sizer) apply(base decimal.Decimal, current, historical *Metrics) decimal.Decimal {
	probationFraction := s.Config.ProbationFraction
	if probationFraction <= 0 || probationFraction >= 1 {
		probationFraction = 0.10
	}
	probation := base.Mul(decimal.NewFromFloat(probationFraction))

	histUsable := historical != nil && historical.KellyPct > 0

	switch {
	case current == nil && historical == nil:
		s.Logger.Info("no kelly track record, using probation size",
			zap.String("probation_size", probation.String()))
		return probation

	case !histUsable:
		if current != nil && current.KellyPct > 0 {
			frac := clamp01(current.KellyPct)
			adjusted := probation.Add(base.Sub(probation).Mul(decimal.NewFromFloat(frac)))
			s.Logger.Info("no historical kelly baseline, interpolating from current",
				zap.Float64("kelly_current", current.KellyPct),
				zap.String("adjusted_size", adjusted.String()))
			return adjusted
		}
		return base

	case current == nil || current.KellyPct <= 0:
		return base

	default:
		rp := 1 - current.KellyPct/historical.KellyPct
		rp = clamp(rp, s.minAdjustment(), s.maxAdjustment())
		adjusted := base.Mul(decimal.NewFromFloat(1 + rp))
		s.Logger.Debug("kelly adjustment applied",
			zap.Float64("kelly_current", current.KellyPct),
			zap.Float64("kelly_historical", historical.KellyPct),
			zap.Float64("relative_performance", rp),
			zap.String("adjusted_size", adjusted.String()))
		return adjusted
	}
}

func (s *Sizer) maxAdjustment() float64 {
	if s.Config.MaxIncrease > 0 {
		return s.Config.MaxIncrease
	}
	return 1.0
}

func (s *Sizer) minAdjustment() float64 {
	// Kept strictly above -1 so the multiplier never flips the sign
	// of the position.
	if s.Config.MaxDecrease < 0 && s.Config.MaxDecrease > -1 {
		return s.Config.MaxDecrease
	}
	return -0.98
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}
