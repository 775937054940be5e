// Package statestore persists the shared portfolio state as JSON files
// in the data directory: portfolio-state.json for idle cash and holding
// quantities, state-{botId}.json for per-bot deployed-capital counters.
//
// Writes go through a temp file plus rename so readers never see a torn
// file. The store itself does no locking - callers bracket every
// read-modify-write with the concurrency guard.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/domain"
)

const portfolioFile = "portfolio-state.json"

// botState is the per-bot counter file payload.
type botState struct {
	BotID        string  `json:"bot_id"`
	DeployedUsdc float64 `json:"deployed_usdc"`
	UpdatedAtMs  int64   `json:"updated_at_ms"`
}

// Store reads and writes portfolio state files.
type Store struct {
	dir string
	log zerolog.Logger
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return &Store{
		dir: dir,
		log: log.With().Str("component", "statestore").Logger(),
	}, nil
}

// Read returns the persisted portfolio state. A missing file is a fresh
// deployment and yields a zero state.
func (s *Store) Read() (domain.PortfolioState, error) {
	path := filepath.Join(s.dir, portfolioFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.PortfolioState{Quantities: map[string]float64{}}, nil
		}
		return domain.PortfolioState{}, fmt.Errorf("failed to read portfolio state: %w", err)
	}

	var state domain.PortfolioState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.PortfolioState{}, fmt.Errorf("failed to parse portfolio state: %w", err)
	}
	if state.Quantities == nil {
		state.Quantities = map[string]float64{}
	}
	return state, nil
}

// Write persists the portfolio state atomically.
func (s *Store) Write(state domain.PortfolioState) error {
	state.UpdatedAtMs = time.Now().UnixMilli()
	return s.writeJSON(filepath.Join(s.dir, portfolioFile), state)
}

// CommitFill applies an executed buy: cash down by cost, quantity up by
// the filled amount, bot counter up by cost. Both files are rewritten;
// the caller holds the guard so the read-modify-write is serialized.
func (s *Store) CommitFill(botID string, fill domain.Fill) error {
	state, err := s.Read()
	if err != nil {
		return err
	}

	if fill.CostUsdc > state.IdleCashUsdc {
		return fmt.Errorf("fill cost %.2f exceeds idle cash %.2f", fill.CostUsdc, state.IdleCashUsdc)
	}

	state.IdleCashUsdc -= fill.CostUsdc
	state.Quantities[fill.Symbol] += fill.Quantity
	if err := s.Write(state); err != nil {
		return err
	}

	deployed, err := s.BotDeployed(botID)
	if err != nil {
		return err
	}
	bot := botState{
		BotID:        botID,
		DeployedUsdc: deployed + fill.CostUsdc,
		UpdatedAtMs:  time.Now().UnixMilli(),
	}
	if err := s.writeJSON(s.botPath(botID), bot); err != nil {
		return err
	}

	s.log.Info().
		Str("bot", botID).
		Str("symbol", fill.Symbol).
		Float64("cost_usdc", fill.CostUsdc).
		Float64("quantity", fill.Quantity).
		Float64("idle_cash_usdc", state.IdleCashUsdc).
		Msg("Fill committed")
	return nil
}

// BotDeployed returns the cumulative deployed USDC for one bot, zero if
// the bot has never committed a fill.
func (s *Store) BotDeployed(botID string) (float64, error) {
	data, err := os.ReadFile(s.botPath(botID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read bot state for %s: %w", botID, err)
	}

	var bot botState
	if err := json.Unmarshal(data, &bot); err != nil {
		return 0, fmt.Errorf("failed to parse bot state for %s: %w", botID, err)
	}
	return bot.DeployedUsdc, nil
}

func (s *Store) botPath(botID string) string {
	// Bot IDs come from config; sanitize anyway so a stray separator
	// cannot escape the data dir.
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '-'
		}
		return r
	}, botID)
	return filepath.Join(s.dir, fmt.Sprintf("state-%s.json", safe))
}

// writeJSON writes v to path via temp file + rename.
func (s *Store) writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace state file %s: %w", path, err)
	}
	return nil
}
