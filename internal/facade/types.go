// Package facade implements the tool-call surface consumed by MCP-style
// adapters (spec §6): four verbs, each taking an action tag and a
// free-form argument map, returning a structured result that never lets
// an error escape as a raised exception.
package facade

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aman-cerp/agentmem/internal/adaptive"
	"github.com/aman-cerp/agentmem/internal/cache"
	"github.com/aman-cerp/agentmem/internal/embedding"
	"github.com/aman-cerp/agentmem/internal/metrics"
	"github.com/aman-cerp/agentmem/internal/search"
	"github.com/aman-cerp/agentmem/internal/store"
)

// Result is the single structured value every tool call returns (spec §6).
// On success Data carries the action's payload; on failure IsError is true
// and Message/Kind describe what went wrong.
type Result struct {
	IsError bool           `json:"is_error"`
	Message string         `json:"message,omitempty"`
	Kind    string         `json:"kind,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

func ok(data map[string]any) Result {
	return Result{Data: data}
}

// Args is the free-form argument map a tool call is invoked with.
type Args map[string]any

func (a Args) str(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

func (a Args) strSlice(key string) []string {
	raw, ok := a[key].([]any)
	if !ok {
		if ss, ok := a[key].([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (a Args) strMap(key string) map[string]string {
	raw, ok := a[key].(map[string]any)
	if !ok {
		if sm, ok := a[key].(map[string]string); ok {
			return sm
		}
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func (a Args) intVal(key string) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func (a Args) floatVal(key string) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func (a Args) boolVal(key string) bool {
	v, _ := a[key].(bool)
	return v
}

// Facade wires the already-built memory-core components into the four
// tool-call verbs. Construct one per running service instance.
type Facade struct {
	Relational store.RelationalStore
	Cache      *cache.Cache
	Embedder   embedding.Embedder
	Pipeline   *search.Pipeline
	Indexer    *search.Indexer
	Selector   *adaptive.Selector

	// Metrics is optional; when nil, tool-call instrumentation is skipped.
	Metrics *metrics.Metrics

	// NewID generates IDs for entities/observations/relationships created
	// through mutate_memory; see NewUUIDGenerator.
	NewID func() string

	mu      sync.Mutex
	session string
	task    string
}

// New builds a Facade. Call Selector.Load(ctx) separately before serving
// traffic so the bandit starts warm from persisted statistics.
func New(rs store.RelationalStore, c *cache.Cache, emb embedding.Embedder, p *search.Pipeline, ix *search.Indexer, sel *adaptive.Selector) *Facade {
	return &Facade{
		Relational: rs,
		Cache:      c,
		Embedder:   emb,
		Pipeline:   p,
		Indexer:    ix,
		Selector:   sel,
		NewID:      NewUUIDGenerator(),
	}
}

// activeContext returns the session/task IDs stamped onto a mutation when
// the caller omits them, set by the most recent start_session/start_task.
func (f *Facade) activeContext() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.task
}

func (f *Facade) setSession(id string) {
	f.mu.Lock()
	f.session = id
	f.mu.Unlock()
}

func (f *Facade) setTask(id string) {
	f.mu.Lock()
	f.task = id
	f.mu.Unlock()
}

// now exists so call sites read as "the current time" rather than a bare
// time.Now(), matching the teacher's style of naming the clock call site.
func now() time.Time { return time.Now() }

// Dispatch routes one of the four logical verbs (spec §6). action is the
// action tag within that verb; args is the free-form argument map.
func (f *Facade) Dispatch(ctx context.Context, verb, action string, args Args) Result {
	var result Result
	switch verb {
	case "mutate_memory":
		result = f.mutateMemory(ctx, action, args)
	case "query_memory":
		result = f.queryMemory(ctx, action, args)
	case "analyze_graph":
		result = f.analyzeGraph(ctx, action, args)
	case "manage_system":
		result = f.manageSystem(ctx, action, args)
	default:
		result = errResult(errUnknownVerb(verb))
	}

	if f.Metrics != nil {
		f.Metrics.ToolCalls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("verb", verb),
			attribute.String("action", action),
			attribute.Bool("is_error", result.IsError),
		))
	}
	return result
}
