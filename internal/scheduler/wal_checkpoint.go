package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/database"
)

// WALCheckpointJob truncates the ledger WAL so the append-only decisions
// database does not grow an unbounded sidecar file between restarts.
type WALCheckpointJob struct {
	ledger *database.DB
	log    zerolog.Logger
}

// NewWALCheckpointJob creates a WAL checkpoint job for the ledger database.
func NewWALCheckpointJob(ledger *database.DB, log zerolog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{
		ledger: ledger,
		log:    log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Name returns the job name.
func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}

// Run checkpoints and truncates the ledger WAL.
func (j *WALCheckpointJob) Run(ctx context.Context) error {
	if err := j.ledger.WALCheckpoint(ctx, "TRUNCATE"); err != nil {
		return fmt.Errorf("ledger checkpoint failed: %w", err)
	}

	j.log.Debug().
		Int64("size_bytes", j.ledger.SizeBytes()).
		Msg("Ledger WAL checkpointed")
	return nil
}
