package scheduler

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/valuation"
)

// SnapshotSource supplies a marked-to-market portfolio snapshot.
// Satisfied by allocator.Service.
type SnapshotSource interface {
	Snapshot() (domain.PortfolioSnapshot, error)
}

// TargetLister supplies the active target set. Satisfied by
// targets.Registry.
type TargetLister interface {
	All() []domain.AssetTarget
}

// DriftReportJob logs how far each asset sits from its target weight.
// Purely observational: it never trades, sells or rebalances. Drift
// above the band only means buys for that asset are blocked until
// weight decays back under the ceiling.
type DriftReportJob struct {
	snapshots SnapshotSource
	targets   TargetLister
	valuation valuation.Calculator
	log       zerolog.Logger
}

// NewDriftReportJob creates a drift report job.
func NewDriftReportJob(snapshots SnapshotSource, targets TargetLister, calc valuation.Calculator, log zerolog.Logger) *DriftReportJob {
	return &DriftReportJob{
		snapshots: snapshots,
		targets:   targets,
		valuation: calc,
		log:       log.With().Str("job", "drift_report").Logger(),
	}
}

// Name returns the job name.
func (j *DriftReportJob) Name() string {
	return "drift_report"
}

// Run computes per-asset drift and a portfolio-level summary.
func (j *DriftReportJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	snap, err := j.snapshots.Snapshot()
	if err != nil {
		return fmt.Errorf("drift report snapshot failed: %w", err)
	}

	total, err := j.valuation.TotalValue(snap)
	if err != nil {
		return fmt.Errorf("drift report valuation failed: %w", err)
	}

	drifts := make([]float64, 0, len(j.targets.All()))
	overBand := 0

	for _, target := range j.targets.All() {
		band := domain.BandFor(target)
		weight := j.valuation.Weight(snap, target.Symbol, total)
		drift := weight - target.TargetWeight

		event := j.log.Info().
			Str("asset", target.Symbol).
			Float64("current_weight", weight).
			Float64("target_weight", target.TargetWeight).
			Float64("drift", drift)
		if weight >= band.MaxWeight {
			overBand++
			event = event.Bool("buys_blocked", true)
		}
		event.Msg("Asset drift")

		drifts = append(drifts, math.Abs(drift))
	}

	if len(drifts) > 0 {
		j.log.Info().
			Float64("total_value_usdc", total).
			Float64("mean_abs_drift", stat.Mean(drifts, nil)).
			Float64("stddev_abs_drift", stat.StdDev(drifts, nil)).
			Int("assets_over_band", overBand).
			Msg("Portfolio drift summary")
	}

	return nil
}
