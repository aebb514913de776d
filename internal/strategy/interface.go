package strategy

import (
	"fmt"
	"strings"
	"sync"

	"sniper-trading-bot/internal/exchange"
)

// SignalTier is the graded confidence label produced by entry evaluation.
// The string encodes event type and side, e.g. "TIER_1_BREAKOUT_BUY".
type SignalTier string

const TierNoSignal SignalTier = "NO_SIGNAL"

// MakeTier builds a tier string from its parts
func MakeTier(tier int, event string, side exchange.Side) SignalTier {
	return SignalTier(fmt.Sprintf("TIER_%d_%s_%s", tier, event, side))
}

// Level returns the numeric tier (1..3), 0 for NO_SIGNAL
func (t SignalTier) Level() int {
	if t == TierNoSignal || t == "" {
		return 0
	}
	var level int
	var rest string
	if _, err := fmt.Sscanf(string(t), "TIER_%d_%s", &level, &rest); err != nil {
		return 0
	}
	return level
}

// Side returns the trade direction encoded in the tier
func (t SignalTier) Side() (exchange.Side, bool) {
	switch {
	case strings.HasSuffix(string(t), "_BUY"):
		return exchange.SideBuy, true
	case strings.HasSuffix(string(t), "_SELL"):
		return exchange.SideSell, true
	}
	return "", false
}

// ExitSignal is the outcome of one exit evaluation tick
type ExitSignal struct {
	ShouldExit bool
	Reason     string
}

// Strategy is the polymorphic trading strategy interface. Entry evaluation
// grades a candidate direction; exit evaluation runs the position state
// machine for one tick.
type Strategy interface {
	Name() string
	EvaluateEntry(symbol, interval string, side exchange.Side) (SignalTier, error)
	EvaluateExit(symbol, interval string) (ExitSignal, error)
	CalculatePositionSize(symbol string, equity, entryPrice float64) (qty float64, leverage int, err error)
	InitialStopLoss(symbol, interval string, entry float64, side exchange.Side) float64
}

// Registry maps stable string ids to strategy instances
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy under its id; duplicate ids are an error
func (r *Registry) Register(id string, s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[id]; exists {
		return fmt.Errorf("strategy id %q already registered", id)
	}
	r.strategies[id] = s
	return nil
}

// Get looks up a strategy by id
func (r *Registry) Get(id string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[id]
	if !ok {
		return nil, fmt.Errorf("unknown strategy id %q", id)
	}
	return s, nil
}

// IDs lists registered strategy ids
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		out = append(out, id)
	}
	return out
}
