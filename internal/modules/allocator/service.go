// Package allocator ties the allocation core together: one buy signal in,
// one guarded decide-and-commit transaction out.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/gate"
	"github.com/aristath/quartermaster/internal/modules/guard"
)

// CapSource supplies per-bot caps. Satisfied by targets.Registry.
type CapSource interface {
	BotCap(botID string) *domain.BotCapConfig
}

// Service runs the read-decide-commit sequence for buy signals.
// Everything that touches shared state happens inside the guard's
// critical section; the second of two racing signals always sees the
// first one's committed state.
type Service struct {
	guard    *guard.Guard
	store    domain.StateStore
	prices   domain.MarkPriceSource
	caps     CapSource
	gate     *gate.Gate
	broker   domain.BrokerClient
	recorder domain.DecisionRecorder
	now      func() time.Time
	log      zerolog.Logger
}

// New creates an allocator service.
func New(
	g *guard.Guard,
	store domain.StateStore,
	prices domain.MarkPriceSource,
	caps CapSource,
	allocationGate *gate.Gate,
	broker domain.BrokerClient,
	recorder domain.DecisionRecorder,
	log zerolog.Logger,
) *Service {
	return &Service{
		guard:    g,
		store:    store,
		prices:   prices,
		caps:     caps,
		gate:     allocationGate,
		broker:   broker,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.With().Str("component", "allocator").Logger(),
	}
}

// ProcessSignal evaluates one buy signal and, when allowed, executes and
// commits the buy. Every outcome is recorded. Block reasons are normal
// results; only malformed snapshots, unknown assets and infrastructure
// failures surface as errors - those are fatal for the cycle and must
// not be retried blindly by the caller.
func (s *Service) ProcessSignal(ctx context.Context, req domain.BuyRequest) (domain.GateDecision, error) {
	release, err := s.guard.Acquire(ctx)
	if err != nil {
		if errors.Is(err, guard.ErrTimeout) {
			// Fail closed: a signal that cannot enter the critical
			// section is blocked, never silently dropped or queued.
			decision := domain.GateDecision{
				ID:        uuid.NewString(),
				Allowed:   false,
				Reason:    domain.ReasonConcurrentUpdate,
				DecidedAt: s.now(),
			}
			s.recorder.Record(decision, req)
			return decision, nil
		}
		return domain.GateDecision{}, err
	}
	defer release()

	snap, err := s.snapshot()
	if err != nil {
		return domain.GateDecision{}, err
	}

	botCap := s.caps.BotCap(req.BotID)
	botDeployed := 0.0
	if botCap != nil {
		botDeployed, err = s.store.BotDeployed(req.BotID)
		if err != nil {
			return domain.GateDecision{}, err
		}
	}

	decision, err := s.gate.Evaluate(req, snap, botCap, botDeployed)
	if err != nil {
		s.log.Error().Err(err).
			Str("bot", req.BotID).
			Str("asset", req.AssetSymbol).
			Msg("Gate evaluation failed")
		return domain.GateDecision{}, err
	}

	if !decision.Allowed {
		s.recorder.Record(decision, req)
		return decision, nil
	}

	fill, err := s.broker.PlaceBuyOrder(req.AssetSymbol, decision.ApprovedUsdc)
	if err != nil {
		// The decision stands as made; no cash moved, so nothing to
		// commit. Recorded so the ledger shows the approval.
		s.recorder.Record(decision, req)
		return decision, fmt.Errorf("buy order for %s failed: %w", req.AssetSymbol, err)
	}

	if err := s.store.CommitFill(req.BotID, *fill); err != nil {
		s.recorder.Record(decision, req)
		return decision, fmt.Errorf("failed to commit fill for %s: %w", req.AssetSymbol, err)
	}

	s.recorder.Record(decision, req)
	return decision, nil
}

// Snapshot builds a fresh mark-to-market snapshot of the portfolio.
// Exposed for the HTTP surface and the drift report job; decision paths
// call it only inside the guard.
func (s *Service) Snapshot() (domain.PortfolioSnapshot, error) {
	return s.snapshot()
}

func (s *Service) snapshot() (domain.PortfolioSnapshot, error) {
	state, err := s.store.Read()
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}

	holdings := make(map[string]domain.Holding, len(state.Quantities))
	for symbol, qty := range state.Quantities {
		if qty == 0 {
			continue
		}
		price, err := s.prices.MarkPrice(symbol)
		if err != nil {
			return domain.PortfolioSnapshot{}, fmt.Errorf("failed to mark %s to market: %w", symbol, err)
		}
		holdings[symbol] = domain.Holding{Quantity: qty, MarkPrice: price}
	}

	return domain.PortfolioSnapshot{
		IdleCashUsdc: state.IdleCashUsdc,
		Holdings:     holdings,
		TimestampMs:  s.now().UnixMilli(),
	}, nil
}
