package models

import "time"

// ToolCategory groups tools by the kind of work they perform.
type ToolCategory string

const (
	ToolCategorySearch       ToolCategory = "search"
	ToolCategoryCodeExec     ToolCategory = "code_execution"
	ToolCategoryDataAnalysis ToolCategory = "data_analysis"
	ToolCategoryFileIO       ToolCategory = "file_io"
	ToolCategoryCompletion   ToolCategory = "completion"
)

// ToolDefinition describes an invocable tool. Immutable once registered
// except for the health flag.
type ToolDefinition struct {
	// ID is the unique identifier for this tool.
	ID string `json:"id"`
	// Name is the human-readable tool name.
	Name string `json:"name"`
	// Category groups the tool by the work it performs.
	Category ToolCategory `json:"category"`
	// InputSchema describes expected parameters as JSON schema properties.
	InputSchema map[string]any `json:"input_schema,omitempty"`
	// Tags are capability tags matched against task requirements.
	Tags []string `json:"tags"`
	// Timeout overrides the executor's default invocation timeout when
	// positive.
	Timeout time.Duration `json:"timeout,omitempty"`
	// Healthy is false while the tool is known to be unavailable.
	Healthy bool `json:"healthy"`
}

// HasTag returns true if the tool carries the given capability tag.
func (t *ToolDefinition) HasTag(tag string) bool {
	for _, tg := range t.Tags {
		if tg == tag {
			return true
		}
	}
	return false
}

// ToolExecutionRecord is one row per tool invocation. Append-only; forms
// the audit trail and feeds the cost ledger.
type ToolExecutionRecord struct {
	// ID is the unique identifier for this record.
	ID string `json:"id"`
	// TaskID is the task the invocation was made for.
	TaskID string `json:"task_id"`
	// ToolID is the tool that was invoked.
	ToolID string `json:"tool_id"`
	// Input is the serialized invocation input.
	Input string `json:"input"`
	// Output is the serialized result, empty on failure.
	Output string `json:"output,omitempty"`
	// Error is the error message, empty on success.
	Error string `json:"error,omitempty"`
	// CostUnits is the provider-reported cost consumed.
	CostUnits float64 `json:"cost_units"`
	// Tokens is the token usage reported by completion providers.
	Tokens int64 `json:"tokens,omitempty"`
	// LatencyMS is the measured invocation latency in milliseconds.
	LatencyMS int64 `json:"latency_ms"`
	// CacheHit is true when the result was served from the result cache.
	CacheHit bool `json:"cache_hit,omitempty"`
	// CreatedAt is when the invocation happened.
	CreatedAt time.Time `json:"created_at"`
}

// Checkpoint is a durable snapshot of task progress at a given step.
// Step numbers are strictly increasing and gapless per task.
type Checkpoint struct {
	// ID is the unique identifier for this checkpoint.
	ID string `json:"id"`
	// TaskID is the task this checkpoint belongs to.
	TaskID string `json:"task_id"`
	// Step is the 1-indexed step number within the task.
	Step int `json:"step"`
	// Snapshot is the serialized task progress.
	Snapshot []byte `json:"snapshot"`
	// CumulativeCost is the total cost charged to the task so far.
	CumulativeCost float64 `json:"cumulative_cost"`
	// Invalidated is true once a resume at an earlier step superseded
	// this checkpoint. Invalidated checkpoints are kept, not deleted.
	Invalidated bool `json:"invalidated,omitempty"`
	// CreatedAt is when the checkpoint was written.
	CreatedAt time.Time `json:"created_at"`
}

// CostEntry is an immutable ledger row tied to a team and task.
type CostEntry struct {
	// ID is the unique identifier for this entry.
	ID string `json:"id"`
	// TeamID is the team charged.
	TeamID string `json:"team_id"`
	// TaskID is the task the cost was incurred for, if any.
	TaskID string `json:"task_id,omitempty"`
	// Amount is the cost charged.
	Amount float64 `json:"amount"`
	// Description says what the cost was for.
	Description string `json:"description,omitempty"`
	// CreatedAt is when the entry was appended.
	CreatedAt time.Time `json:"created_at"`
}
