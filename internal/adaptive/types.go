// Package adaptive implements the retrieval strategy selector (spec §4.8):
// a heuristic query-complexity classifier feeding an epsilon-greedy bandit
// over a fixed set of retrieval strategies, with reward bookkeeping
// persisted through the relational store.
package adaptive

// Strategy names the retrieval approach the core can choose between for a
// given query.
type Strategy string

const (
	VectorOnly         Strategy = "VECTOR_ONLY"
	GraphWalk          Strategy = "GRAPH_WALK"
	HybridFusion       Strategy = "HYBRID_FUSION"
	CommunityExpansion Strategy = "COMMUNITY_EXPANSION"
	SemanticWalk       Strategy = "SEMANTIC_WALK"
)

// Strategies lists every strategy the selector chooses among, in the fixed
// order used to break selection-score ties by insertion order.
var Strategies = []Strategy{VectorOnly, GraphWalk, HybridFusion, CommunityExpansion, SemanticWalk}

// Complexity classifies a query's estimated retrieval difficulty.
type Complexity string

const (
	Simple      Complexity = "SIMPLE"
	Moderate    Complexity = "MODERATE"
	Complex     Complexity = "COMPLEX"
	Exploratory Complexity = "EXPLORATORY"
)

// preferredStrategies lists, per complexity class, the strategies that earn
// the 1.2x selection-score preference multiplier (spec §4.8).
var preferredStrategies = map[Complexity][]Strategy{
	Simple:      {VectorOnly},
	Moderate:    {HybridFusion},
	Complex:     {GraphWalk, SemanticWalk},
	Exploratory: {CommunityExpansion},
}

// NeutralScore is the selection score assigned to a strategy with no
// recorded attempts.
const NeutralScore = 0.5

// PreferenceMultiplier is applied to a strategy's selection score when it
// is the preferred strategy for the query's complexity class.
const PreferenceMultiplier = 1.2

// DefaultExplorationRate is the epsilon in epsilon-greedy selection.
const DefaultExplorationRate = 0.1

// DefaultDecayFactor is the PRA reward decay base.
const DefaultDecayFactor = 0.8

// DefaultCostPenalty is the CAF reward cost-penalty exponent.
const DefaultCostPenalty = 0.15
