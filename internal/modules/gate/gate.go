// Package gate implements the allocation gate: the pure decision
// function that arbitrates buy signals against target weights, drift
// bands, the cash reserve and per-bot caps. It performs no I/O - reading
// state and persisting the outcome belong to the caller.
package gate

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/valuation"
)

// TargetSource supplies per-asset targets. Satisfied by targets.Registry.
type TargetSource interface {
	Target(symbol string) (domain.AssetTarget, error)
}

// Config holds the gate's capital-control parameters.
type Config struct {
	// SafetyReserveUsdc is idle cash that is never spendable.
	SafetyReserveUsdc float64
	// MinOrderUsdc is the platform's minimum tradable notional. Sized
	// orders below it are blocked rather than emitted as dust.
	MinOrderUsdc float64
}

// Gate evaluates buy requests. All checks must pass, in a fixed order,
// short-circuiting on the first failure so every block carries exactly
// one reason.
type Gate struct {
	targets   TargetSource
	valuation valuation.Calculator
	cfg       Config
	now       func() time.Time
	log       zerolog.Logger
}

// New creates an allocation gate.
func New(targets TargetSource, calc valuation.Calculator, cfg Config, log zerolog.Logger) *Gate {
	return &Gate{
		targets:   targets,
		valuation: calc,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("component", "gate").Logger(),
	}
}

// Evaluate decides ALLOW or BLOCK for one buy request against one fresh
// snapshot. botDeployedUsdc and botCap come from the caller; botCap is
// nil in production mode (no cap check, same code path).
//
// An unregistered asset raises domain.ErrUnknownAsset and a malformed
// snapshot raises domain.ErrInvalidSnapshot - both are integration bugs,
// not market-driven blocks, and must not be treated as decisions.
func (g *Gate) Evaluate(
	req domain.BuyRequest,
	snap domain.PortfolioSnapshot,
	botCap *domain.BotCapConfig,
	botDeployedUsdc float64,
) (domain.GateDecision, error) {
	target, err := g.targets.Target(req.AssetSymbol)
	if err != nil {
		return domain.GateDecision{}, err
	}

	totalValue, err := g.valuation.TotalValue(snap)
	if err != nil {
		return domain.GateDecision{}, err
	}

	band := domain.BandFor(target)
	currentWeight := g.valuation.Weight(snap, req.AssetSymbol, totalValue)
	availableCash := snap.IdleCashUsdc - g.cfg.SafetyReserveUsdc
	headroom := Headroom(band.MaxWeight, totalValue, snap.HoldingValue(req.AssetSymbol))

	decision := domain.GateDecision{
		ID:                uuid.NewString(),
		Reason:            domain.ReasonAllowed,
		CurrentWeight:     currentWeight,
		TargetWeight:      band.TargetWeight,
		MaxWeight:         band.MaxWeight,
		HeadroomUsdc:      headroom,
		TotalValueUsdc:    totalValue,
		AvailableCashUsdc: availableCash,
		DecidedAt:         g.now(),
	}

	if !target.Enabled {
		return blocked(decision, domain.ReasonAssetDisabled), nil
	}

	// Strict inequality: sitting exactly at max weight blocks, which
	// prevents oscillation at the band boundary.
	if currentWeight >= band.MaxWeight {
		return blocked(decision, domain.ReasonOverBand), nil
	}

	if availableCash <= 0 {
		return blocked(decision, domain.ReasonReserve), nil
	}

	if botCap != nil {
		limit := botCap.LimitUsdc(totalValue)
		if botDeployedUsdc+req.RequestedUsdc > limit {
			return blocked(decision, domain.ReasonBotCap), nil
		}
	}

	approved := SizeOrder(req.RequestedUsdc, headroom, availableCash)
	if approved < g.cfg.MinOrderUsdc {
		return blocked(decision, domain.ReasonBelowMinSize), nil
	}

	decision.Allowed = true
	decision.ApprovedUsdc = approved
	return decision, nil
}

func blocked(d domain.GateDecision, reason domain.Reason) domain.GateDecision {
	d.Allowed = false
	d.ApprovedUsdc = 0
	d.Reason = reason
	return d
}
