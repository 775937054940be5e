// Package domain contains the pure allocation domain model.
// It has no infrastructure dependencies - repositories, clients and
// services all depend on this package, never the other way around.
package domain

import (
	"fmt"
	"time"
)

// AssetTarget is the configured target weight and drift band for one asset.
// Targets are loaded as one atomic set at startup and are immutable at
// runtime - the registry swaps the whole set on reload, never a single entry.
type AssetTarget struct {
	Symbol       string  `json:"symbol"`
	TargetWeight float64 `json:"target_weight"`
	BandWidth    float64 `json:"band_width"`
	Enabled      bool    `json:"enabled"`
}

// Band is the derived weight corridor for one asset.
type Band struct {
	TargetWeight float64 `json:"target_weight"`
	MinWeight    float64 `json:"min_weight"`
	MaxWeight    float64 `json:"max_weight"`
}

// BandFor derives the weight corridor from a target.
// MinWeight clamps at zero - a 5% target with a 10% band never goes negative.
func BandFor(t AssetTarget) Band {
	minWeight := t.TargetWeight - t.BandWidth
	if minWeight < 0 {
		minWeight = 0
	}
	return Band{
		TargetWeight: t.TargetWeight,
		MinWeight:    minWeight,
		MaxWeight:    t.TargetWeight + t.BandWidth,
	}
}

// Holding is one asset position marked to the current price.
type Holding struct {
	Quantity  float64 `json:"quantity"`
	MarkPrice float64 `json:"mark_price"`
}

// Value returns the mark-to-market value of the holding.
func (h Holding) Value() float64 {
	return h.Quantity * h.MarkPrice
}

// PortfolioSnapshot is the state one gate decision is evaluated against.
// It is derived fresh for every decision inside the guard's critical
// section and never cached across decisions.
type PortfolioSnapshot struct {
	IdleCashUsdc float64            `json:"idle_cash_usdc"`
	Holdings     map[string]Holding `json:"holdings"`
	TimestampMs  int64              `json:"timestamp_ms"`
}

// HoldingValue returns the mark-to-market value for symbol, zero when the
// asset is not held.
func (s PortfolioSnapshot) HoldingValue(symbol string) float64 {
	return s.Holdings[symbol].Value()
}

// PortfolioState is the persisted portion of the portfolio: idle cash and
// raw quantities. Mark prices are attached at snapshot time.
type PortfolioState struct {
	IdleCashUsdc float64            `json:"idle_cash_usdc"`
	Quantities   map[string]float64 `json:"holdings"`
	UpdatedAtMs  int64              `json:"updated_at_ms"`
}

// BuyRequest is one buy signal presented to the allocation gate.
// There is deliberately no sell variant - the allocator is buy-only and
// the type system enforces it.
type BuyRequest struct {
	AssetSymbol       string  `json:"asset_symbol"`
	BotID             string  `json:"bot_id"`
	Strategy          string  `json:"strategy"`
	Timeframe         string  `json:"timeframe"`
	SignalType        string  `json:"signal_type"`
	RequestedUsdc     float64 `json:"requested_usdc"`
	SignalTimestampMs int64   `json:"signal_timestamp_ms"`
}

// Reason classifies a gate decision outcome.
type Reason string

// Decision reasons. Blocks are expected, logged outcomes - not errors.
const (
	ReasonAllowed          Reason = "ALLOWED"
	ReasonAssetDisabled    Reason = "BLOCKED_ASSET_DISABLED"
	ReasonOverBand         Reason = "BLOCKED_OVER_BAND"
	ReasonReserve          Reason = "BLOCKED_RESERVE"
	ReasonBotCap           Reason = "BLOCKED_BOT_CAP"
	ReasonBelowMinSize     Reason = "BLOCKED_BELOW_MIN_SIZE"
	ReasonConcurrentUpdate Reason = "BLOCKED_CONCURRENT_UPDATE"
)

// GateDecision is the immutable outcome of evaluating one BuyRequest.
// It carries the full weight/headroom context so "why" can be
// reconstructed from the decision log alone.
type GateDecision struct {
	ID                string    `json:"id"`
	Allowed           bool      `json:"allowed"`
	ApprovedUsdc      float64   `json:"approved_usdc"`
	Reason            Reason    `json:"reason"`
	CurrentWeight     float64   `json:"current_weight"`
	TargetWeight      float64   `json:"target_weight"`
	MaxWeight         float64   `json:"max_weight"`
	HeadroomUsdc      float64   `json:"headroom_usdc"`
	TotalValueUsdc    float64   `json:"total_value_usdc"`
	AvailableCashUsdc float64   `json:"available_cash_usdc"`
	DecidedAt         time.Time `json:"decided_at"`
}

// BotCapConfig is a per-bot deployment ceiling used during multi-bot
// testing. Exactly one of the two limits must be set. Production runs
// pass a nil cap - same code path, no cap check.
type BotCapConfig struct {
	BotID           string   `json:"bot_id"`
	MaxDeployedUsdc *float64 `json:"max_deployed_usdc,omitempty"`
	MaxPortfolioPct *float64 `json:"max_portfolio_pct,omitempty"`
}

// Validate checks the mutual-exclusion rule on the two limit forms.
func (c BotCapConfig) Validate() error {
	if c.BotID == "" {
		return fmt.Errorf("bot cap: bot_id is required")
	}
	if (c.MaxDeployedUsdc == nil) == (c.MaxPortfolioPct == nil) {
		return fmt.Errorf("bot cap %s: exactly one of max_deployed_usdc or max_portfolio_pct must be set", c.BotID)
	}
	if c.MaxDeployedUsdc != nil && *c.MaxDeployedUsdc < 0 {
		return fmt.Errorf("bot cap %s: max_deployed_usdc must not be negative", c.BotID)
	}
	if c.MaxPortfolioPct != nil && (*c.MaxPortfolioPct < 0 || *c.MaxPortfolioPct > 1) {
		return fmt.Errorf("bot cap %s: max_portfolio_pct must be within [0, 1]", c.BotID)
	}
	return nil
}

// LimitUsdc resolves the cap to an absolute USDC amount against the
// current total portfolio value.
func (c BotCapConfig) LimitUsdc(totalValueUsdc float64) float64 {
	if c.MaxDeployedUsdc != nil {
		return *c.MaxDeployedUsdc
	}
	if c.MaxPortfolioPct != nil {
		return *c.MaxPortfolioPct * totalValueUsdc
	}
	return 0
}

// Fill is the broker's report of an executed buy order.
type Fill struct {
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	CostUsdc float64 `json:"cost_usdc"`
}
