package decisionlog

import (
	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/domain"
)

// Recorder writes every decision to the ledger and emits a structured
// log event. Recording must never disturb the trading path: persistence
// failures are logged and swallowed, the decision stands as made.
type Recorder struct {
	repo *Repository
	log  zerolog.Logger
}

// NewRecorder creates a decision recorder.
func NewRecorder(repo *Repository, log zerolog.Logger) *Recorder {
	return &Recorder{
		repo: repo,
		log:  log.With().Str("component", "decisionlog").Logger(),
	}
}

// Record persists and logs one decision.
func (r *Recorder) Record(decision domain.GateDecision, request domain.BuyRequest) {
	// Blocks are normal outcomes, logged at the same level as allows so
	// the audit trail reads uniformly.
	r.log.Info().
		Str("decision_id", decision.ID).
		Str("bot", request.BotID).
		Str("asset", request.AssetSymbol).
		Str("strategy", request.Strategy).
		Str("timeframe", request.Timeframe).
		Str("signal", request.SignalType).
		Bool("allowed", decision.Allowed).
		Str("reason", string(decision.Reason)).
		Float64("requested_usdc", request.RequestedUsdc).
		Float64("approved_usdc", decision.ApprovedUsdc).
		Float64("current_weight", decision.CurrentWeight).
		Float64("target_weight", decision.TargetWeight).
		Float64("max_weight", decision.MaxWeight).
		Float64("headroom_usdc", decision.HeadroomUsdc).
		Msg("Gate decision")

	if err := r.repo.Insert(decision, request); err != nil {
		r.log.Error().Err(err).Str("decision_id", decision.ID).Msg("Failed to persist decision")
	}
}
