package state

import (
	"io"
	"time"

	"github.com/ghostpirates/crew/pkg/models"
)

// TeamStore handles team persistence.
type TeamStore interface {
	CreateTeam(t *models.Team) error
	GetTeam(id string) (*models.Team, error)
	UpdateTeamStatus(id string, from, to models.TeamStatus) error
	SetTeamManager(id, managerID string) error
}

// AgentStore handles agent persistence. Agents are deactivated, never deleted.
type AgentStore interface {
	CreateAgent(a *models.Agent) error
	GetAgent(id string) (*models.Agent, error)
	ListAgentsByTeam(teamID string) ([]models.Agent, error)
	UpdateAgentSkills(id string, skills map[string]float64) error
	AdjustAgentLoad(id string, delta int) error
	DeactivateAgent(id string) error
}

// TaskStore handles task persistence. Status updates are compare-and-swap
// on the current status.
type TaskStore interface {
	CreateTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	ListTasksByTeam(teamID string) ([]models.Task, error)
	ListTasksByParent(parentID string) ([]models.Task, error)
	TransitionTask(id string, from, to models.TaskStatus, mutate func(*models.Task)) (*models.Task, error)
	AppendRevision(r *models.RevisionRecord) error
	ListRevisions(taskID string) ([]models.RevisionRecord, error)
}

// CheckpointStore handles ordered step snapshots per task. Step numbers are
// gapless and monotonic; saves are append-only.
type CheckpointStore interface {
	SaveCheckpoint(cp *models.Checkpoint) (string, error)
	LatestCheckpoint(taskID string) (*models.Checkpoint, error)
	ResumeFrom(taskID string) (*models.Checkpoint, error)
	ResumeAt(taskID string, step int) (*models.Checkpoint, error)
	PruneCheckpoints(taskID string, keep int) (int64, error)
	PurgeTerminalCheckpoints(olderThan time.Duration) (int64, error)
}

// LedgerStore handles the append-only cost ledger and tool execution records.
type LedgerStore interface {
	RecordExecution(rec *models.ToolExecutionRecord) error
	ListExecutionsByTask(taskID string) ([]models.ToolExecutionRecord, error)
	ToolStats(toolID string) (errorRate, avgCost float64, err error)
	AppendCost(e *models.CostEntry) error
	TeamSpend(teamID string) (float64, error)
	TaskSpend(taskID string) (float64, error)
}

// FailureStore handles immutable failure analyses.
type FailureStore interface {
	SaveFailureAnalysis(fa *models.FailureAnalysis) error
	ListFailuresByTask(taskID string) ([]models.FailureAnalysis, error)
}

// EventStore handles the append-only audit event log.
type EventStore interface {
	AppendEvent(e *models.Event) error
	ListEventsByTask(taskID string) ([]models.Event, error)
	ListEventsByTeam(teamID string) ([]models.Event, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for durable state. It composes focused
// sub-interfaces so components can depend only on what they use.
type Store interface {
	io.Closer
	Migrator
	TeamStore
	AgentStore
	TaskStore
	CheckpointStore
	LedgerStore
	FailureStore
	EventStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store           = (*DB)(nil)
	_ TeamStore       = (*DB)(nil)
	_ AgentStore      = (*DB)(nil)
	_ TaskStore       = (*DB)(nil)
	_ CheckpointStore = (*DB)(nil)
	_ LedgerStore     = (*DB)(nil)
	_ FailureStore    = (*DB)(nil)
	_ EventStore      = (*DB)(nil)
)
