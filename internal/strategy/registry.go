package strategy

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// StrategyInfo holds runtime counters for a registered strategy (for status
// APIs).
type StrategyInfo struct {
	Name          string
	PlansProduced int64
	LastPlan      *time.Time
	ErrorCount    int64
}

// Registry manages the fixed strategy set built at startup. Adding a strategy
// is a compile-time change; the registry only selects among what config
// enabled. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]domain.Strategy
	info       map[string]*StrategyInfo
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]domain.Strategy),
		info:       make(map[string]*StrategyInfo),
	}
}

// Register adds a strategy under its own name. If a strategy with the same
// name already exists it will be replaced.
func (r *Registry) Register(s domain.Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := s.Name()
	r.strategies[name] = s
	if _, ok := r.info[name]; !ok {
		r.info[name] = &StrategyInfo{Name: name}
	}
}

// Get retrieves a strategy by name. It returns an error when the name is not
// registered.
func (r *Registry) Get(name string) (domain.Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", name)
	}
	return s, nil
}

// List returns the names of all registered strategies in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RecordPlan counts a dispatched plan against the strategy that produced it.
func (r *Registry) RecordPlan(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.info[name]
	if !ok {
		return
	}
	info.PlansProduced++
	t := at
	info.LastPlan = &t
}

// RecordError counts an evaluation failure against a strategy.
func (r *Registry) RecordError(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.info[name]; ok {
		info.ErrorCount++
	}
}

// ListInfo returns runtime counters for all registered strategies in sorted
// order.
func (r *Registry) ListInfo() []StrategyInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.info))
	for n := range r.info {
		names = append(names, n)
	}
	sort.Strings(names)

	infos := make([]StrategyInfo, 0, len(names))
	for _, n := range names {
		info := *r.info[n]
		if info.LastPlan != nil {
			t := *info.LastPlan
			info.LastPlan = &t
		}
		infos = append(infos, info)
	}
	return infos
}
