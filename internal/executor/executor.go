// Package executor invokes tools with timeout, result caching, cost
// metering, and circuit breaker bookkeeping.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghostpirates/crew/internal/state"
	"github.com/ghostpirates/crew/internal/tools"
	"github.com/ghostpirates/crew/pkg/models"
)

// Sentinel errors returned by Execute.
var (
	// ErrToolUnavailable indicates the tool is unhealthy, unregistered, or
	// its circuit breaker is rejecting calls.
	ErrToolUnavailable = errors.New("tool unavailable")
	// ErrNoProvider indicates no provider is bound for the tool.
	ErrNoProvider = errors.New("no provider for tool")
)

// ToolOutput is the result of a successful tool invocation.
type ToolOutput struct {
	// Output is the serialized tool result.
	Output string `json:"output"`
	// CostUnits is the provider-reported cost consumed.
	CostUnits float64 `json:"cost_units"`
	// Tokens is the token usage, for completion-style tools.
	Tokens int64 `json:"tokens,omitempty"`
}

// ToolProvider is the uniform invocation contract for tool backends.
type ToolProvider interface {
	// Invoke performs the tool call. Implementations must honor ctx
	// cancellation; a cancelled call leaves no shared state behind.
	Invoke(ctx context.Context, params map[string]any) (*ToolOutput, error)
}

// ProviderFunc adapts a function to the ToolProvider interface.
type ProviderFunc func(ctx context.Context, params map[string]any) (*ToolOutput, error)

// Invoke implements ToolProvider.
func (f ProviderFunc) Invoke(ctx context.Context, params map[string]any) (*ToolOutput, error) {
	return f(ctx, params)
}

// EventSink receives audit events for metered costs. The orchestrator's
// event emitter satisfies it.
type EventSink interface {
	Emit(ev models.Event)
}

// Executor executes tool invocations for tasks.
type Executor struct {
	registry  *tools.Registry
	breakers  *tools.BreakerRegistry
	ledger    state.LedgerStore
	cache     *Cache
	providers map[string]ToolProvider
	sink      EventSink

	// mu protects timeout, which config hot reload may replace.
	mu      sync.RWMutex
	timeout time.Duration

	// now is replaceable for tests.
	now func() time.Time
}

// Config contains the collaborators an Executor needs.
type Config struct {
	Registry *tools.Registry
	Breakers *tools.BreakerRegistry
	Ledger   state.LedgerStore
	Cache    *Cache
	// Timeout is the default per-invocation timeout.
	Timeout time.Duration
}

// New creates an Executor.
func New(cfg Config) *Executor {
	return &Executor{
		registry:  cfg.Registry,
		breakers:  cfg.Breakers,
		ledger:    cfg.Ledger,
		cache:     cfg.Cache,
		providers: make(map[string]ToolProvider),
		timeout:   cfg.Timeout,
		now:       time.Now,
	}
}

// Bind attaches a provider to a registered tool ID.
func (e *Executor) Bind(toolID string, p ToolProvider) {
	e.providers[toolID] = p
}

// NotifyEvents attaches a sink that receives a cost event for every
// metered invocation.
func (e *Executor) NotifyEvents(sink EventSink) {
	e.sink = sink
}

// SetTimeout replaces the default invocation timeout, for config hot
// reload. In-flight invocations keep the deadline they started with.
func (e *Executor) SetTimeout(timeout time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeout = timeout
}

// Execute invokes a tool for a task. The result cache is consulted first;
// hits return the cached output at zero cost, recorded as cache-sourced.
// Misses invoke the provider under the tool's timeout (the tool's own
// override when set, the executor default otherwise), meter the
// reported cost into the team ledger, and update the tool's circuit
// breaker. Every invocation, hit or miss, appends exactly one execution
// record and one cost entry.
func (e *Executor) Execute(ctx context.Context, task *models.Task, toolID string, input map[string]any) (*ToolOutput, error) {
	def := e.registry.Get(toolID)
	if def == nil {
		return nil, fmt.Errorf("tool %s not registered: %w", toolID, ErrToolUnavailable)
	}
	if !def.Healthy {
		return nil, fmt.Errorf("tool %s unhealthy: %w", toolID, ErrToolUnavailable)
	}

	key, err := Key(toolID, input)
	if err != nil {
		return nil, err
	}

	inputJSON, _ := json.Marshal(input)

	if cached := e.cache.Get(key); cached != nil {
		hit := *cached
		hit.CostUnits = 0
		if err := e.record(task, toolID, string(inputJSON), &hit, nil, 0, true); err != nil {
			return nil, err
		}
		return &hit, nil
	}

	if !e.breakers.Allow(toolID) {
		return nil, fmt.Errorf("tool %s circuit open: %w", toolID, ErrToolUnavailable)
	}

	provider := e.providers[toolID]
	if provider == nil {
		e.breakers.RecordFailure(toolID)
		return nil, fmt.Errorf("tool %s: %w", toolID, ErrNoProvider)
	}

	e.mu.RLock()
	timeout := e.timeout
	e.mu.RUnlock()
	if def.Timeout > 0 {
		timeout = def.Timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := e.now()
	out, invokeErr := provider.Invoke(callCtx, input)
	latency := e.now().Sub(start)

	if invokeErr != nil {
		e.breakers.RecordFailure(toolID)
		if recErr := e.record(task, toolID, string(inputJSON), nil, invokeErr, latency, false); recErr != nil {
			return nil, recErr
		}
		return nil, fmt.Errorf("invoke %s: %w", toolID, invokeErr)
	}

	e.breakers.RecordSuccess(toolID)
	if err := e.record(task, toolID, string(inputJSON), out, nil, latency, false); err != nil {
		return nil, err
	}
	e.cache.Put(key, out)

	return out, nil
}

// record appends the execution record and its matching cost entry.
func (e *Executor) record(task *models.Task, toolID, input string, out *ToolOutput, invokeErr error, latency time.Duration, cacheHit bool) error {
	rec := &models.ToolExecutionRecord{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		ToolID:    toolID,
		Input:     input,
		LatencyMS: latency.Milliseconds(),
		CacheHit:  cacheHit,
		CreatedAt: e.now(),
	}
	if out != nil {
		rec.Output = out.Output
		rec.CostUnits = out.CostUnits
		rec.Tokens = out.Tokens
	}
	if invokeErr != nil {
		rec.Error = invokeErr.Error()
	}

	if err := e.ledger.RecordExecution(rec); err != nil {
		return fmt.Errorf("record execution: %w", err)
	}

	entry := &models.CostEntry{
		ID:          uuid.New().String(),
		TeamID:      task.TeamID,
		TaskID:      task.ID,
		Amount:      rec.CostUnits,
		Description: fmt.Sprintf("tool %s", toolID),
		CreatedAt:   rec.CreatedAt,
	}
	if err := e.ledger.AppendCost(entry); err != nil {
		return fmt.Errorf("meter cost: %w", err)
	}
	if e.sink != nil {
		e.sink.Emit(models.Event{
			Type:    models.EventCostRecorded,
			TeamID:  task.TeamID,
			TaskID:  task.ID,
			Payload: fmt.Sprintf("tool %s: $%.4f", toolID, entry.Amount),
		})
	}
	return nil
}
