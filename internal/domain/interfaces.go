package domain

// StateStore persists the shared portfolio state: idle cash, holding
// quantities and per-bot deployed-capital counters. Implementations must
// provide atomic read-then-write semantics; callers only touch the store
// inside the concurrency guard's critical section.
type StateStore interface {
	// Read returns the current portfolio state. A store with no history
	// returns a zero state, not an error.
	Read() (PortfolioState, error)

	// CommitFill applies an executed buy to the portfolio: cash decreases
	// by the fill cost, the holding quantity increases, and the bot's
	// deployed counter increases by the same cost.
	CommitFill(botID string, fill Fill) error

	// BotDeployed returns the cumulative USDC deployed by one bot.
	BotDeployed(botID string) (float64, error)
}

// MarkPriceSource supplies the current mark price per asset.
type MarkPriceSource interface {
	MarkPrice(symbol string) (float64, error)
}

// BrokerClient places spot buy orders. The interface has no sell
// variant by design - sells are outside the allocator entirely.
type BrokerClient interface {
	PlaceBuyOrder(symbol string, usdc float64) (*Fill, error)
}

// DecisionRecorder records every gate decision, allowed or blocked.
// Implementations must never fail in a way that alters or blocks the
// trading path - recording errors are reported out-of-band.
type DecisionRecorder interface {
	Record(decision GateDecision, request BuyRequest)
}
