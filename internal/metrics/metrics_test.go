package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := New(mp)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNew_RegistersEveryInstrument(t *testing.T) {
	m, _ := newTestMetrics(t)
	assert.NotNil(t, m.SearchDuration)
	assert.NotNil(t, m.GraphRAGDuration)
	assert.NotNil(t, m.MultiHopDuration)
	assert.NotNil(t, m.CacheHits)
	assert.NotNil(t, m.CacheMisses)
	assert.NotNil(t, m.StrategySelections)
	assert.NotNil(t, m.EmbeddingQueueDepth)
	assert.NotNil(t, m.EmbeddingErrors)
	assert.NotNil(t, m.ToolCalls)
}

func TestCacheHits_IsObservableAfterRecording(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.CacheHits.Add(ctx, 1, attribute.String("tier", "memory"))
	m.CacheHits.Add(ctx, 2, attribute.String("tier", "memory"))

	rm := collect(t, reader)
	found := findMetric(rm, "agentmem.cache.hits")
	require.NotNil(t, found)

	sum, ok := found.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}

func TestStrategySelections_TracksByAttribute(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.StrategySelections.Add(ctx, 1, attribute.String("strategy", "HYBRID_FUSION"))
	m.StrategySelections.Add(ctx, 1, attribute.String("strategy", "GRAPH_WALK"))

	rm := collect(t, reader)
	found := findMetric(rm, "agentmem.adaptive.strategy_selections")
	require.NotNil(t, found)

	sum, ok := found.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, sum.DataPoints, 2)
}
