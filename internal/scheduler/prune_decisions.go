package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/modules/decisionlog"
)

// PruneDecisionsJob deletes decision records older than the retention
// window. The ledger stays append-only between runs; this is the only
// path that removes rows.
type PruneDecisionsJob struct {
	repo      *decisionlog.Repository
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewPruneDecisionsJob creates a retention job. retentionDays <= 0
// disables pruning (Run becomes a no-op).
func NewPruneDecisionsJob(repo *decisionlog.Repository, retentionDays int, log zerolog.Logger) *PruneDecisionsJob {
	return &PruneDecisionsJob{
		repo:      repo,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("job", "prune_decisions").Logger(),
	}
}

// Name returns the job name.
func (j *PruneDecisionsJob) Name() string {
	return "prune_decisions"
}

// Run deletes records older than the retention window.
func (j *PruneDecisionsJob) Run(ctx context.Context) error {
	if j.retention <= 0 {
		j.log.Debug().Msg("Retention disabled, nothing to prune")
		return nil
	}

	cutoff := j.now().Add(-j.retention)
	deleted, err := j.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("retention prune failed: %w", err)
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Pruned old decisions")
	}
	return nil
}
