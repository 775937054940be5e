package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/decisionlog"
	"github.com/aristath/quartermaster/internal/modules/gate"
)

const defaultDecisionLimit = 100

// assetStatus is one row of the portfolio view.
type assetStatus struct {
	Symbol        string  `json:"symbol"`
	Enabled       bool    `json:"enabled"`
	TargetWeight  float64 `json:"target_weight"`
	MinWeight     float64 `json:"min_weight"`
	MaxWeight     float64 `json:"max_weight"`
	CurrentWeight float64 `json:"current_weight"`
	CurrentValue  float64 `json:"current_value_usdc"`
	HeadroomUsdc  float64 `json:"headroom_usdc"`
}

type portfolioResponse struct {
	TotalValueUsdc float64       `json:"total_value_usdc"`
	IdleCashUsdc   float64       `json:"idle_cash_usdc"`
	TimestampMs    int64         `json:"timestamp_ms"`
	Assets         []assetStatus `json:"assets"`
}

// handlePortfolio returns the current snapshot with per-asset weight,
// band and headroom - the same numbers the gate would see right now.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	snap, err := s.alloc.Snapshot()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	total, err := s.valuation.TotalValue(snap)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := portfolioResponse{
		TotalValueUsdc: total,
		IdleCashUsdc:   snap.IdleCashUsdc,
		TimestampMs:    snap.TimestampMs,
		Assets:         []assetStatus{},
	}

	for _, target := range s.registry.All() {
		band := domain.BandFor(target)
		value := snap.HoldingValue(target.Symbol)
		resp.Assets = append(resp.Assets, assetStatus{
			Symbol:        target.Symbol,
			Enabled:       target.Enabled,
			TargetWeight:  band.TargetWeight,
			MinWeight:     band.MinWeight,
			MaxWeight:     band.MaxWeight,
			CurrentWeight: s.valuation.Weight(snap, target.Symbol, total),
			CurrentValue:  value,
			HeadroomUsdc:  gate.Headroom(band.MaxWeight, total, value),
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleGetTargets returns the active target set.
func (s *Server) handleGetTargets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"assets": s.registry.All(),
	})
}

// handleReloadTargets re-reads targets.json and swaps the active set
// atomically. On validation failure the previous set stays active.
func (s *Server) handleReloadTargets(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Reload(); err != nil {
		s.log.Error().Err(err).Msg("Targets reload failed")
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "reloaded",
		"assets": s.registry.All(),
	})
}

// handleGetDecisions returns recent decisions, optionally filtered by
// bot or asset.
func (s *Server) handleGetDecisions(w http.ResponseWriter, r *http.Request) {
	limit := defaultDecisionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	var (
		records []decisionlog.Record
		err     error
	)
	switch {
	case r.URL.Query().Get("bot") != "":
		records, err = s.decisions.ByBot(r.URL.Query().Get("bot"), limit)
	case r.URL.Query().Get("asset") != "":
		records, err = s.decisions.ByAsset(r.URL.Query().Get("asset"), limit)
	default:
		records, err = s.decisions.Recent(limit)
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if records == nil {
		records = []decisionlog.Record{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": records,
		"count":     len(records),
	})
}

// handleDecisionStats returns decision counts grouped by reason.
func (s *Server) handleDecisionStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.decisions.CountByReason()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"by_reason": counts})
}

// handleGetBot returns decisions and context for one bot.
func (s *Server) handleGetBot(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")

	records, err := s.decisions.ByBot(botID, defaultDecisionLimit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []decisionlog.Record{}
	}

	resp := map[string]interface{}{
		"bot_id":    botID,
		"decisions": records,
	}
	if botCap := s.registry.BotCap(botID); botCap != nil {
		resp["cap"] = botCap
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
