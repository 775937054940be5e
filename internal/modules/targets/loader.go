package targets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aristath/quartermaster/internal/domain"
)

// defaultBandWidth applies when an asset omits band_width.
const defaultBandWidth = 0.05

// configFile is the on-disk shape of targets.json.
// Pointer fields distinguish "omitted" from "explicitly zero".
type configFile struct {
	Assets  []assetEntry          `json:"assets"`
	BotCaps []domain.BotCapConfig `json:"bot_caps"`
}

type assetEntry struct {
	Symbol       string   `json:"symbol"`
	TargetWeight *float64 `json:"target_weight"`
	BandWidth    *float64 `json:"band_width"`
	Enabled      *bool    `json:"enabled"`
}

// loadFile parses and validates a targets config file. The whole file is
// accepted or rejected as one unit - a partially valid config never
// reaches the registry. Unknown JSON keys are rejected so typos in
// config edits fail loudly at load time instead of silently at decision
// time.
func loadFile(path string) (*configFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets config %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg configFile
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse targets config %s: %w", path, err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid targets config %s: %w", path, err)
	}

	return &cfg, nil
}

func validateConfig(cfg *configFile) error {
	if len(cfg.Assets) == 0 {
		return fmt.Errorf("no assets defined")
	}

	seen := make(map[string]bool)
	weightSum := 0.0

	for i, a := range cfg.Assets {
		if a.Symbol == "" {
			return fmt.Errorf("asset %d: symbol is required", i)
		}
		if seen[a.Symbol] {
			return fmt.Errorf("duplicate asset %s", a.Symbol)
		}
		seen[a.Symbol] = true

		if a.TargetWeight == nil {
			return fmt.Errorf("asset %s: target_weight is required", a.Symbol)
		}
		if *a.TargetWeight < 0 || *a.TargetWeight > 1 {
			return fmt.Errorf("asset %s: target_weight %.4f must be within [0, 1]", a.Symbol, *a.TargetWeight)
		}
		weightSum += *a.TargetWeight

		if a.BandWidth != nil && (*a.BandWidth < 0 || *a.BandWidth > 1) {
			return fmt.Errorf("asset %s: band_width %.4f must be within [0, 1]", a.Symbol, *a.BandWidth)
		}
	}

	// Small epsilon so configs like 3x0.3333 pass.
	if weightSum > 1.0+1e-9 {
		return fmt.Errorf("target weights sum to %.4f, must not exceed 1", weightSum)
	}

	capSeen := make(map[string]bool)
	for _, c := range cfg.BotCaps {
		if err := c.Validate(); err != nil {
			return err
		}
		if capSeen[c.BotID] {
			return fmt.Errorf("duplicate bot cap for %s", c.BotID)
		}
		capSeen[c.BotID] = true
	}

	return nil
}

// materialize converts parsed entries into immutable domain targets with
// defaults applied.
func (c *configFile) materialize() map[string]domain.AssetTarget {
	out := make(map[string]domain.AssetTarget, len(c.Assets))
	for _, a := range c.Assets {
		band := defaultBandWidth
		if a.BandWidth != nil {
			band = *a.BandWidth
		}
		enabled := true
		if a.Enabled != nil {
			enabled = *a.Enabled
		}
		out[a.Symbol] = domain.AssetTarget{
			Symbol:       a.Symbol,
			TargetWeight: *a.TargetWeight,
			BandWidth:    band,
			Enabled:      enabled,
		}
	}
	return out
}
