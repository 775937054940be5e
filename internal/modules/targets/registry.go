// Package targets holds the per-asset target weights, drift bands and
// per-bot caps. The set is loaded once at startup and replaced wholesale
// on reload - readers never observe a partial set.
package targets

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/domain"
)

// registrySnapshot is one immutable generation of the config set.
type registrySnapshot struct {
	assets  map[string]domain.AssetTarget
	botCaps map[string]domain.BotCapConfig
}

// Registry serves target/band lookups to the gate. Lookups are lock-free
// reads of an atomically swapped snapshot, so decision evaluation never
// contends with a reload.
type Registry struct {
	path    string
	current atomic.Pointer[registrySnapshot]
	log     zerolog.Logger
}

// New loads the targets config from path and returns a ready registry.
func New(path string, log zerolog.Logger) (*Registry, error) {
	r := &Registry{
		path: path,
		log:  log.With().Str("component", "targets").Logger(),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the config file and atomically swaps the active set.
// On any validation error the previous set stays in place untouched.
func (r *Registry) Reload() error {
	cfg, err := loadFile(r.path)
	if err != nil {
		return err
	}

	snap := &registrySnapshot{
		assets:  cfg.materialize(),
		botCaps: make(map[string]domain.BotCapConfig, len(cfg.BotCaps)),
	}
	for _, c := range cfg.BotCaps {
		snap.botCaps[c.BotID] = c
	}

	r.current.Store(snap)
	r.log.Info().
		Int("assets", len(snap.assets)).
		Int("bot_caps", len(snap.botCaps)).
		Msg("Target registry loaded")
	return nil
}

// Target returns the configured target for symbol.
// Unregistered symbols are a hard error (fail-closed), never a default.
func (r *Registry) Target(symbol string) (domain.AssetTarget, error) {
	snap := r.current.Load()
	t, ok := snap.assets[symbol]
	if !ok {
		return domain.AssetTarget{}, fmt.Errorf("%w: %s", domain.ErrUnknownAsset, symbol)
	}
	return t, nil
}

// Band returns the derived weight corridor for symbol.
func (r *Registry) Band(symbol string) (domain.Band, error) {
	t, err := r.Target(symbol)
	if err != nil {
		return domain.Band{}, err
	}
	return domain.BandFor(t), nil
}

// BotCap returns the cap for botID, nil when the bot is uncapped
// (production mode).
func (r *Registry) BotCap(botID string) *domain.BotCapConfig {
	snap := r.current.Load()
	c, ok := snap.botCaps[botID]
	if !ok {
		return nil
	}
	return &c
}

// Path returns the config file path the registry reloads from.
func (r *Registry) Path() string {
	return r.path
}

// All returns every registered target sorted by symbol.
func (r *Registry) All() []domain.AssetTarget {
	snap := r.current.Load()
	out := make([]domain.AssetTarget, 0, len(snap.assets))
	for _, t := range snap.assets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
