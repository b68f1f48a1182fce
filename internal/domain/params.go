package domain

import "time"

// ParamSnapshot is one immutable, versioned set of tunable parameters
// published by the optimizer. Consumers always read a complete snapshot;
// partially-updated parameters are never observable.
type ParamSnapshot struct {
	Version            int64
	StrategyWeights    map[string]float64
	SpreadThresholdBps float64
	SlippageCeilingBps float64
	MaxPositionSize    float64 // ETH; proposal only, risk gate caps it
	MinNetProfit       float64 // ETH per trade
	GeneratedAt        time.Time
}

// Clone returns a deep copy so a published snapshot can never be mutated
// through a reader's reference.
func (p ParamSnapshot) Clone() ParamSnapshot {
	out := p
	out.StrategyWeights = make(map[string]float64, len(p.StrategyWeights))
	for k, v := range p.StrategyWeights {
		out.StrategyWeights[k] = v
	}
	return out
}

// Weight returns the selection weight for a strategy, defaulting to 1 when
// the snapshot carries no entry for it.
func (p ParamSnapshot) Weight(strategyID string) float64 {
	if w, ok := p.StrategyWeights[strategyID]; ok {
		return w
	}
	return 1
}
