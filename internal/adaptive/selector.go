package adaptive

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/aman-cerp/agentmem/internal/store"
)

// usedRecentlyWindow is how far back "used in the last hour" looks.
const usedRecentlyWindow = time.Hour

type strategyState struct {
	attempts    int64
	rewardTotal float64
	rewardMean  float64
	costTotal   float64
	lastUsedAt  time.Time
}

// Selector is an epsilon-greedy bandit over the fixed Strategies set,
// persisting its running statistics through store.RelationalStore so
// selection quality survives a restart.
type Selector struct {
	mu              sync.Mutex
	rs              store.RelationalStore
	state           map[Strategy]*strategyState
	explorationRate float64
	rng             *rand.Rand
}

// NewSelector builds a Selector backed by rs. explorationRate <= 0 uses
// DefaultExplorationRate.
func NewSelector(rs store.RelationalStore, explorationRate float64) *Selector {
	if explorationRate <= 0 {
		explorationRate = DefaultExplorationRate
	}
	state := make(map[Strategy]*strategyState, len(Strategies))
	for _, s := range Strategies {
		state[s] = &strategyState{}
	}
	return &Selector{
		rs:              rs,
		state:           state,
		explorationRate: explorationRate,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Load seeds the selector's in-memory statistics from the persisted
// strategy_performance table. Call once at startup.
func (s *Selector) Load(ctx context.Context) error {
	persisted, err := s.rs.LoadStrategyStats(ctx)
	if err != nil {
		return fmt.Errorf("load strategy stats: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, st := range persisted {
		strat := Strategy(name)
		if _, known := s.state[strat]; !known {
			continue
		}
		s.state[strat] = &strategyState{
			attempts:    st.Attempts,
			rewardTotal: st.RewardTotal,
			rewardMean:  st.RewardMean,
			costTotal:   st.CostTotal,
			lastUsedAt:  st.LastUsedAt,
		}
	}
	return nil
}

// Select classifies query's complexity and picks a strategy via
// epsilon-greedy selection over the running per-strategy statistics.
func (s *Selector) Select(query string, now time.Time) (Strategy, Complexity) {
	complexity := Classify(query)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() < s.explorationRate {
		return Strategies[s.rng.Intn(len(Strategies))], complexity
	}

	var best Strategy
	bestScore := -1.0
	for _, strat := range Strategies {
		score := s.scoreLocked(strat, complexity, now)
		if score > bestScore {
			bestScore = score
			best = strat
		}
	}
	return best, complexity
}

// scoreLocked computes one strategy's epsilon-greedy selection score. The
// caller must hold s.mu.
func (s *Selector) scoreLocked(strat Strategy, complexity Complexity, now time.Time) float64 {
	st := s.state[strat]

	var score float64
	if st.attempts == 0 {
		score = NeutralScore
	} else {
		successRate := st.rewardMean
		avgCost := st.costTotal / float64(st.attempts)
		score = 0.6*successRate + 0.3*(1.0/(1.0+avgCost))
		if !st.lastUsedAt.IsZero() && now.Sub(st.lastUsedAt) <= usedRecentlyWindow {
			score += 0.1
		}
	}

	if IsPreferred(complexity, strat) {
		score *= PreferenceMultiplier
	}
	return score
}

// Record folds one retrieval's outcome into strat's running statistics and
// persists the update. Call after every retrieval that used strat.
func (s *Selector) Record(ctx context.Context, strat Strategy, reward, cost float64, now time.Time) error {
	s.mu.Lock()
	st, ok := s.state[strat]
	if !ok {
		st = &strategyState{}
		s.state[strat] = st
	}
	st.attempts++
	st.rewardTotal += reward
	st.rewardMean = st.rewardTotal / float64(st.attempts)
	st.costTotal += cost
	st.lastUsedAt = now

	snapshot := store.StrategyStats{
		Strategy:    string(strat),
		Attempts:    st.attempts,
		RewardTotal: st.rewardTotal,
		RewardMean:  st.rewardMean,
		CostTotal:   st.costTotal,
		LastUsedAt:  st.lastUsedAt,
	}
	s.mu.Unlock()

	if err := s.rs.SaveStrategyStats(ctx, string(strat), snapshot); err != nil {
		return fmt.Errorf("persist strategy stats %s: %w", strat, err)
	}
	return nil
}
