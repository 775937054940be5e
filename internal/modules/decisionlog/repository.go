// Package decisionlog records every gate decision - allowed or blocked -
// with its full weight/headroom context, so "why did the bot (not) buy"
// can be answered from the ledger alone.
package decisionlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/domain"
)

// Record is one persisted decision row.
type Record struct {
	ID                string  `json:"id"`
	DecidedAtMs       int64   `json:"decided_at_ms"`
	BotID             string  `json:"bot_id"`
	Asset             string  `json:"asset"`
	Strategy          string  `json:"strategy"`
	Timeframe         string  `json:"timeframe"`
	SignalType        string  `json:"signal_type"`
	SignalTimestampMs int64   `json:"signal_timestamp_ms"`
	RequestedUsdc     float64 `json:"requested_usdc"`
	Allowed           bool    `json:"allowed"`
	ApprovedUsdc      float64 `json:"approved_usdc"`
	Reason            string  `json:"reason"`
	CurrentWeight     float64 `json:"current_weight"`
	TargetWeight      float64 `json:"target_weight"`
	MaxWeight         float64 `json:"max_weight"`
	HeadroomUsdc      float64 `json:"headroom_usdc"`
	TotalValueUsdc    float64 `json:"total_value_usdc"`
	AvailableCashUsdc float64 `json:"available_cash_usdc"`
}

// Repository handles decision ledger database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a decision repository. The caller is expected to
// have applied Schema to the connection.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "decisionlog").Logger(),
	}
}

// Insert appends one decision row.
func (r *Repository) Insert(decision domain.GateDecision, request domain.BuyRequest) error {
	query := `
		INSERT INTO decisions (
			id, decided_at_ms, bot_id, asset, strategy, timeframe,
			signal_type, signal_timestamp_ms, requested_usdc,
			allowed, approved_usdc, reason,
			current_weight, target_weight, max_weight,
			headroom_usdc, total_value_usdc, available_cash_usdc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	allowed := 0
	if decision.Allowed {
		allowed = 1
	}

	_, err := r.db.Exec(query,
		decision.ID,
		decision.DecidedAt.UnixMilli(),
		request.BotID,
		request.AssetSymbol,
		request.Strategy,
		request.Timeframe,
		request.SignalType,
		request.SignalTimestampMs,
		request.RequestedUsdc,
		allowed,
		decision.ApprovedUsdc,
		string(decision.Reason),
		decision.CurrentWeight,
		decision.TargetWeight,
		decision.MaxWeight,
		decision.HeadroomUsdc,
		decision.TotalValueUsdc,
		decision.AvailableCashUsdc,
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

const selectColumns = `
	id, decided_at_ms, bot_id, asset, strategy, timeframe,
	signal_type, signal_timestamp_ms, requested_usdc,
	allowed, approved_usdc, reason,
	current_weight, target_weight, max_weight,
	headroom_usdc, total_value_usdc, available_cash_usdc
`

// Recent returns the newest decisions, most recent first.
func (r *Repository) Recent(limit int) ([]Record, error) {
	query := "SELECT" + selectColumns + "FROM decisions ORDER BY decided_at_ms DESC LIMIT ?"
	return r.query(query, limit)
}

// ByBot returns the newest decisions for one bot.
func (r *Repository) ByBot(botID string, limit int) ([]Record, error) {
	query := "SELECT" + selectColumns + "FROM decisions WHERE bot_id = ? ORDER BY decided_at_ms DESC LIMIT ?"
	return r.query(query, botID, limit)
}

// ByAsset returns the newest decisions for one asset.
func (r *Repository) ByAsset(symbol string, limit int) ([]Record, error) {
	query := "SELECT" + selectColumns + "FROM decisions WHERE asset = ? ORDER BY decided_at_ms DESC LIMIT ?"
	return r.query(query, symbol, limit)
}

// CountByReason returns decision counts grouped by reason.
func (r *Repository) CountByReason() (map[string]int64, error) {
	rows, err := r.db.Query("SELECT reason, COUNT(*) FROM decisions GROUP BY reason")
	if err != nil {
		return nil, fmt.Errorf("failed to count decisions by reason: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var reason string
		var count int64
		if err := rows.Scan(&reason, &count); err != nil {
			return nil, fmt.Errorf("failed to scan reason count: %w", err)
		}
		result[reason] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reason counts: %w", err)
	}
	return result, nil
}

// DeleteOlderThan removes decisions decided before the cutoff.
// Used by the retention job, never by the trading path.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM decisions WHERE decided_at_ms < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune decisions: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		r.log.Info().Int64("rows", n).Time("cutoff", cutoff).Msg("Pruned old decisions")
	}
	return n, nil
}

func (r *Repository) query(query string, args ...interface{}) ([]Record, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var allowed int
		if err := rows.Scan(
			&rec.ID,
			&rec.DecidedAtMs,
			&rec.BotID,
			&rec.Asset,
			&rec.Strategy,
			&rec.Timeframe,
			&rec.SignalType,
			&rec.SignalTimestampMs,
			&rec.RequestedUsdc,
			&allowed,
			&rec.ApprovedUsdc,
			&rec.Reason,
			&rec.CurrentWeight,
			&rec.TargetWeight,
			&rec.MaxWeight,
			&rec.HeadroomUsdc,
			&rec.TotalValueUsdc,
			&rec.AvailableCashUsdc,
		); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		rec.Allowed = allowed == 1
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decisions: %w", err)
	}
	return records, nil
}
