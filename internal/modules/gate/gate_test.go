package gate

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/valuation"
)

// stubTargets satisfies TargetSource without a config file.
type stubTargets map[string]domain.AssetTarget

func (s stubTargets) Target(symbol string) (domain.AssetTarget, error) {
	t, ok := s[symbol]
	if !ok {
		return domain.AssetTarget{}, fmt.Errorf("%w: %s", domain.ErrUnknownAsset, symbol)
	}
	return t, nil
}

func defaultTargets() stubTargets {
	return stubTargets{
		"BTC": {Symbol: "BTC", TargetWeight: 0.40, BandWidth: 0.05, Enabled: true},
		"ETH": {Symbol: "ETH", TargetWeight: 0.30, BandWidth: 0.05, Enabled: true},
		"XRP": {Symbol: "XRP", TargetWeight: 0.05, BandWidth: 0.05, Enabled: false},
	}
}

func newGate(targets TargetSource, cfg Config) *Gate {
	return New(targets, valuation.Calculator{}, cfg, zerolog.Nop())
}

// snapshotWith builds a $10,000 portfolio with the given BTC value and
// the remainder held as idle cash.
func snapshotWith(btcValue float64) domain.PortfolioSnapshot {
	return domain.PortfolioSnapshot{
		IdleCashUsdc: 10000 - btcValue,
		Holdings: map[string]domain.Holding{
			"BTC": {Quantity: btcValue / 50000, MarkPrice: 50000},
		},
	}
}

func buyBTC(usdc float64) domain.BuyRequest {
	return domain.BuyRequest{AssetSymbol: "BTC", BotID: "mfi-1h", RequestedUsdc: usdc}
}

func TestEvaluate_AtMaxWeightBlocks(t *testing.T) {
	// target 0.40, band 0.05, total $10,000, BTC at $4,400: weight 0.44
	// equals max weight exactly - strict inequality blocks.
	g := newGate(defaultTargets(), Config{SafetyReserveUsdc: 50, MinOrderUsdc: 10})

	dec, err := g.Evaluate(buyBTC(200), snapshotWith(4400), nil, 0)
	require.NoError(t, err)

	assert.False(t, dec.Allowed)
	assert.Equal(t, domain.ReasonOverBand, dec.Reason)
	assert.Equal(t, 0.0, dec.ApprovedUsdc)
	assert.InDelta(t, 0.44, dec.CurrentWeight, 1e-9)
	assert.InDelta(t, 0.45, dec.MaxWeight, 1e-9)
}

func TestEvaluate_AllowsWithinBand(t *testing.T) {
	// BTC at target: weight 0.40, headroom 0.45*10000-4000 = $500.
	g := newGate(defaultTargets(), Config{SafetyReserveUsdc: 50, MinOrderUsdc: 10})

	dec, err := g.Evaluate(buyBTC(200), snapshotWith(4000), nil, 0)
	require.NoError(t, err)

	assert.True(t, dec.Allowed)
	assert.Equal(t, domain.ReasonAllowed, dec.Reason)
	assert.Equal(t, 200.0, dec.ApprovedUsdc)
	assert.InDelta(t, 500.0, dec.HeadroomUsdc, 1e-9)
}

func TestEvaluate_HeadroomCapsApprovedSize(t *testing.T) {
	g := newGate(defaultTargets(), Config{SafetyReserveUsdc: 50, MinOrderUsdc: 10})

	dec, err := g.Evaluate(buyBTC(2000), snapshotWith(4000), nil, 0)
	require.NoError(t, err)

	assert.True(t, dec.Allowed)
	assert.InDelta(t, 500.0, dec.ApprovedUsdc, 1e-9, "capped to band headroom")
}

func TestEvaluate_ReserveBlocks(t *testing.T) {
	g := newGate(defaultTargets(), Config{SafetyReserveUsdc: 50, MinOrderUsdc: 10})

	snap := domain.PortfolioSnapshot{
		IdleCashUsdc: 30,
		Holdings:     map[string]domain.Holding{},
	}
	dec, err := g.Evaluate(buyBTC(20), snap, nil, 0)
	require.NoError(t, err)

	assert.False(t, dec.Allowed)
	assert.Equal(t, domain.ReasonReserve, dec.Reason)
}

func TestEvaluate_AvailableCashCapsApprovedSize(t *testing.T) {
	g := newGate(defaultTargets(), Config{SafetyReserveUsdc: 50, MinOrderUsdc: 10})

	// $100 idle, $50 reserved: only $50 spendable.
	snap := domain.PortfolioSnapshot{
		IdleCashUsdc: 100,
		Holdings:     map[string]domain.Holding{},
	}
	dec, err := g.Evaluate(buyBTC(500), snap, nil, 0)
	require.NoError(t, err)

	assert.True(t, dec.Allowed)
	assert.InDelta(t, 45.0, dec.ApprovedUsdc, 1e-9, "min of requested, headroom 0.45*100=45, cash 50")
}

func TestEvaluate_DisabledAssetBlocks(t *testing.T) {
	g := newGate(defaultTargets(), Config{SafetyReserveUsdc: 50, MinOrderUsdc: 10})

	dec, err := g.Evaluate(
		domain.BuyRequest{AssetSymbol: "XRP", BotID: "b", RequestedUsdc: 100},
		snapshotWith(0), nil, 0,
	)
	require.NoError(t, err)

	assert.False(t, dec.Allowed)
	assert.Equal(t, domain.ReasonAssetDisabled, dec.Reason)
}

func TestEvaluate_UnknownAssetRaises(t *testing.T) {
	g := newGate(defaultTargets(), Config{SafetyReserveUsdc: 50, MinOrderUsdc: 10})

	_, err := g.Evaluate(
		domain.BuyRequest{AssetSymbol: "DOGE", BotID: "b", RequestedUsdc: 100},
		snapshotWith(0), nil, 0,
	)
	assert.ErrorIs(t, err, domain.ErrUnknownAsset, "unregistered asset is an error, not a block")
}

func TestEvaluate_InvalidSnapshotRaises(t *testing.T) {
	g := newGate(defaultTargets(), Config{SafetyReserveUsdc: 50, MinOrderUsdc: 10})

	snap := domain.PortfolioSnapshot{
		Holdings: map[string]domain.Holding{"BTC": {Quantity: -1, MarkPrice: 100}},
	}
	_, err := g.Evaluate(buyBTC(100), snap, nil, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidSnapshot)
}

func TestEvaluate_BotCapBlocks(t *testing.T) {
	g := newGate(defaultTargets(), Config{SafetyReserveUsdc: 50, MinOrderUsdc: 10})
	limit := 500.0
	capCfg := &domain.BotCapConfig{BotID: "mfi-1h", MaxDeployedUsdc: &limit}

	// Deployed 400 + requested 200 exceeds the 500 cap.
	dec, err := g.Evaluate(buyBTC(200), snapshotWith(4000), capCfg, 400)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonBotCap, dec.Reason)

	// Deployed 250 + requested 200 fits.
	dec, err = g.Evaluate(buyBTC(200), snapshotWith(4000), capCfg, 250)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}

func TestEvaluate_PortfolioPctCap(t *testing.T) {
	g := newGate(defaultTargets(), Config{SafetyReserveUsdc: 50, MinOrderUsdc: 10})
	pct := 0.05 // 5% of $10,000 = $500
	capCfg := &domain.BotCapConfig{BotID: "mfi-1h", MaxPortfolioPct: &pct}

	dec, err := g.Evaluate(buyBTC(200), snapshotWith(4000), capCfg, 400)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonBotCap, dec.Reason)
}

func TestEvaluate_BelowMinSizeBlocks(t *testing.T) {
	g := newGate(defaultTargets(), Config{SafetyReserveUsdc: 50, MinOrderUsdc: 10})

	// BTC at $4,495 leaves $5 of headroom - below the $10 minimum.
	dec, err := g.Evaluate(buyBTC(200), snapshotWith(4495), nil, 0)
	require.NoError(t, err)

	assert.False(t, dec.Allowed)
	assert.Equal(t, domain.ReasonBelowMinSize, dec.Reason)
	assert.Equal(t, 0.0, dec.ApprovedUsdc)
}

func TestEvaluate_CheckOrdering(t *testing.T) {
	// Over-band must win over reserve when both would block.
	g := newGate(defaultTargets(), Config{SafetyReserveUsdc: 10000, MinOrderUsdc: 10})

	dec, err := g.Evaluate(buyBTC(200), snapshotWith(4400), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonOverBand, dec.Reason)

	// Disabled must win over everything.
	targets := defaultTargets()
	targets["BTC"] = domain.AssetTarget{Symbol: "BTC", TargetWeight: 0.40, BandWidth: 0.05, Enabled: false}
	g = newGate(targets, Config{SafetyReserveUsdc: 10000, MinOrderUsdc: 10})

	dec, err = g.Evaluate(buyBTC(200), snapshotWith(4400), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonAssetDisabled, dec.Reason)
}

func TestEvaluate_IdempotentBlocking(t *testing.T) {
	g := newGate(defaultTargets(), Config{SafetyReserveUsdc: 50, MinOrderUsdc: 10})
	snap := snapshotWith(4400)
	req := buyBTC(200)

	first, err := g.Evaluate(req, snap, nil, 0)
	require.NoError(t, err)
	second, err := g.Evaluate(req, snap, nil, 0)
	require.NoError(t, err)

	// Same outcome and context for the same inputs; only ID/time differ.
	assert.Equal(t, first.Reason, second.Reason)
	assert.Equal(t, first.Allowed, second.Allowed)
	assert.Equal(t, first.ApprovedUsdc, second.ApprovedUsdc)
	assert.Equal(t, first.CurrentWeight, second.CurrentWeight)
	assert.Equal(t, first.HeadroomUsdc, second.HeadroomUsdc)
}

func TestEvaluate_DecisionCarriesFullContext(t *testing.T) {
	g := newGate(defaultTargets(), Config{SafetyReserveUsdc: 50, MinOrderUsdc: 10})

	dec, err := g.Evaluate(buyBTC(200), snapshotWith(4000), nil, 0)
	require.NoError(t, err)

	assert.NotEmpty(t, dec.ID)
	assert.False(t, dec.DecidedAt.IsZero())
	assert.Equal(t, 10000.0, dec.TotalValueUsdc)
	assert.InDelta(t, 5950.0, dec.AvailableCashUsdc, 1e-9)
	assert.Equal(t, 0.40, dec.TargetWeight)
}
