package adaptive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/agentmem/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestClassify_SingleQuestionWordShortQueryIsSimple(t *testing.T) {
	assert.Equal(t, Simple, Classify("what is Alice's favorite drink"))
}

func TestClassify_MultipleQuestionWordsIsComplex(t *testing.T) {
	assert.Equal(t, Complex, Classify("what and why does Alice prefer coffee over tea"))
}

func TestClassify_RelationWordIsComplex(t *testing.T) {
	assert.Equal(t, Complex, Classify("compare Alice and Bob's preferences"))
}

func TestClassify_ExploratoryWordWins(t *testing.T) {
	assert.Equal(t, Exploratory, Classify("show me everything about Alice"))
}

func TestClassify_PlainStatementIsModerate(t *testing.T) {
	assert.Equal(t, Moderate, Classify("Alice's coffee preferences this quarter"))
}

func TestClassify_EmptyQueryIsModerate(t *testing.T) {
	assert.Equal(t, Moderate, Classify("   "))
}

func TestSelector_NoDataStartsAtNeutralScore(t *testing.T) {
	rs := newTestStore(t)
	sel := NewSelector(rs, DefaultExplorationRate)

	now := time.Now()
	score := sel.scoreLocked(VectorOnly, Moderate, now)
	assert.Equal(t, NeutralScore, score)
}

func TestSelector_RecordThenSelectPrefersHigherReward(t *testing.T) {
	rs := newTestStore(t)
	sel := NewSelector(rs, DefaultExplorationRate)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, sel.Record(ctx, VectorOnly, 0.9, 1.0, now))
	require.NoError(t, sel.Record(ctx, GraphWalk, 0.1, 1.0, now))

	vectorScore := sel.scoreLocked(VectorOnly, Moderate, now)
	graphScore := sel.scoreLocked(GraphWalk, Moderate, now)
	assert.Greater(t, vectorScore, graphScore)
}

func TestSelector_PreferredStrategyGetsMultiplier(t *testing.T) {
	rs := newTestStore(t)
	sel := NewSelector(rs, 0)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, sel.Record(ctx, VectorOnly, 0.5, 1.0, now))
	require.NoError(t, sel.Record(ctx, GraphWalk, 0.5, 1.0, now))

	// Same reward/cost; VectorOnly is preferred for SIMPLE, GraphWalk is not.
	vectorScore := sel.scoreLocked(VectorOnly, Simple, now)
	graphScore := sel.scoreLocked(GraphWalk, Simple, now)
	assert.Greater(t, vectorScore, graphScore)
}

func TestSelector_RecentUsageBonus(t *testing.T) {
	rs := newTestStore(t)
	sel := NewSelector(rs, 0)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, sel.Record(ctx, VectorOnly, 0.5, 1.0, now))

	recentScore := sel.scoreLocked(VectorOnly, Moderate, now.Add(time.Minute))
	staleScore := sel.scoreLocked(VectorOnly, Moderate, now.Add(2*time.Hour))
	assert.Greater(t, recentScore, staleScore)
}

func TestSelector_LoadSeedsFromPersistedStats(t *testing.T) {
	rs := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, rs.SaveStrategyStats(ctx, string(HybridFusion), store.StrategyStats{
		Strategy: string(HybridFusion), Attempts: 10, RewardTotal: 8.0, RewardMean: 0.8, CostTotal: 5, LastUsedAt: now,
	}))

	sel := NewSelector(rs, 0)
	require.NoError(t, sel.Load(ctx))

	score := sel.scoreLocked(HybridFusion, Moderate, now)
	assert.Greater(t, score, NeutralScore)
}

func TestProgressiveRetrievalAttenuation_DecaysButFloorsAtMin(t *testing.T) {
	assert.InDelta(t, 1.0, ProgressiveRetrievalAttenuation(1, 0.8), 1e-9)
	assert.Less(t, ProgressiveRetrievalAttenuation(2, 0.8), 1.0)
	assert.Equal(t, minReward, ProgressiveRetrievalAttenuation(50, 0.8))
}

func TestCostAwareF1_DecaysWithRetrievalCount(t *testing.T) {
	first := CostAwareF1(0.9, 1, 0.15)
	later := CostAwareF1(0.9, 5, 0.15)
	assert.Less(t, later, first)
}
