package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ghostpirates/crew/internal/state"
	"github.com/ghostpirates/crew/pkg/models"
)

// memStore is an in-memory stand-in for the sqlite store.
type memStore struct {
	mu          sync.Mutex
	teams       map[string]*models.Team
	agents      map[string]*models.Agent
	tasks       map[string]*models.Task
	revisions   map[string][]models.RevisionRecord
	checkpoints map[string][]models.Checkpoint
	failures    map[string][]models.FailureAnalysis
	spend       map[string]float64 // by team
	taskSpend   map[string]float64
	costs       []models.CostEntry
	events      []models.Event
	success     map[string]float64 // agent -> fixed success rate
	pruneCalls  int
	purgeCalls  int
}

var _ state.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		teams:       make(map[string]*models.Team),
		agents:      make(map[string]*models.Agent),
		tasks:       make(map[string]*models.Task),
		revisions:   make(map[string][]models.RevisionRecord),
		checkpoints: make(map[string][]models.Checkpoint),
		failures:    make(map[string][]models.FailureAnalysis),
		spend:       make(map[string]float64),
		taskSpend:   make(map[string]float64),
		success:     make(map[string]float64),
	}
}

func (m *memStore) Close() error   { return nil }
func (m *memStore) Migrate() error { return nil }

func (m *memStore) CreateTeam(t *models.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.teams[t.ID] = &cp
	return nil
}

func (m *memStore) GetTeam(id string) (*models.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, state.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) UpdateTeamStatus(id string, from, to models.TeamStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return state.ErrNotFound
	}
	if t.Status != from {
		return fmt.Errorf("team %s is %s, not %s: %w", id, t.Status, from, state.ErrConflict)
	}
	t.Status = to
	return nil
}

func (m *memStore) SetTeamManager(id, managerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.teams[id]; ok {
		t.ManagerID = managerID
	}
	return nil
}

func (m *memStore) SaveCheckpoint(cp *models.Checkpoint) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.checkpoints[cp.TaskID]
	last := 0
	if n := len(existing); n > 0 {
		last = existing[n-1].Step
	}
	if cp.Step != last+1 {
		return "", fmt.Errorf("task %s: step %d after %d: %w", cp.TaskID, cp.Step, last, state.ErrStepGap)
	}
	m.checkpoints[cp.TaskID] = append(existing, *cp)
	return cp.ID, nil
}

func (m *memStore) LatestCheckpoint(taskID string) (*models.Checkpoint, error) {
	cp, err := m.ResumeFrom(taskID)
	if errors.Is(err, state.ErrNoCheckpoint) {
		return nil, nil
	}
	return cp, err
}

func (m *memStore) ResumeFrom(taskID string) (*models.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cps := m.checkpoints[taskID]
	for i := len(cps) - 1; i >= 0; i-- {
		if !cps[i].Invalidated {
			cp := cps[i]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("task %s: %w", taskID, state.ErrNoCheckpoint)
}

func (m *memStore) ResumeAt(taskID string, step int) (*models.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cps := m.checkpoints[taskID]
	var found *models.Checkpoint
	for i := range cps {
		if cps[i].Step == step && !cps[i].Invalidated {
			cp := cps[i]
			found = &cp
		}
		if cps[i].Step > step {
			cps[i].Invalidated = true
		}
	}
	if found == nil {
		return nil, fmt.Errorf("task %s step %d: %w", taskID, step, state.ErrNoCheckpoint)
	}
	return found, nil
}

func (m *memStore) PruneCheckpoints(taskID string, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneCalls++
	if keep < 1 {
		keep = 1
	}
	cps := m.checkpoints[taskID]
	if len(cps) <= keep {
		return 0, nil
	}
	removed := int64(len(cps) - keep)
	m.checkpoints[taskID] = append([]models.Checkpoint(nil), cps[len(cps)-keep:]...)
	return removed, nil
}

func (m *memStore) PurgeTerminalCheckpoints(olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeCalls++
	cutoff := time.Now().Add(-olderThan)
	var purged int64
	for taskID, t := range m.tasks {
		if !t.Status.Terminal() || t.CompletedAt == nil || t.CompletedAt.After(cutoff) {
			continue
		}
		purged += int64(len(m.checkpoints[taskID]))
		delete(m.checkpoints, taskID)
	}
	return purged, nil
}

func (m *memStore) SaveFailureAnalysis(fa *models.FailureAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[fa.TaskID] = append(m.failures[fa.TaskID], *fa)
	return nil
}

func (m *memStore) ListFailuresByTask(taskID string) ([]models.FailureAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.FailureAnalysis(nil), m.failures[taskID]...), nil
}

func (m *memStore) CreateAgent(a *models.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.agents[a.ID] = &cp
	return nil
}

func (m *memStore) GetAgent(id string) (*models.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, state.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) ListAgentsByTeam(teamID string) ([]models.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Agent
	for _, a := range m.agents {
		if a.TeamID == teamID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) UpdateAgentSkills(id string, skills map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.agents[id]; ok {
		a.Skills = skills
	}
	return nil
}

func (m *memStore) AdjustAgentLoad(id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return state.ErrNotFound
	}
	a.ActiveTasks += delta
	return nil
}

func (m *memStore) DeactivateAgent(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.agents[id]; ok {
		a.Active = false
	}
	return nil
}

func (m *memStore) CreateTask(t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memStore) GetTask(id string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, state.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) ListTasksByTeam(teamID string) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Task
	for _, t := range m.tasks {
		if t.TeamID == teamID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memStore) ListTasksByParent(parentID string) ([]models.Task, error) {
	return nil, nil
}

func (m *memStore) TransitionTask(id string, from, to models.TaskStatus, mutate func(*models.Task)) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, state.ErrNotFound
	}
	if t.Status != from {
		return nil, fmt.Errorf("task %s is %s, not %s: %w", id, t.Status, from, state.ErrConflict)
	}
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%s -> %s: %w", from, to, state.ErrInvalidTransition)
	}
	if mutate != nil {
		mutate(t)
	}
	t.Status = to
	if to.Terminal() {
		now := time.Now()
		t.CompletedAt = &now
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) AppendRevision(r *models.RevisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revisions[r.TaskID] = append(m.revisions[r.TaskID], *r)
	return nil
}

func (m *memStore) ListRevisions(taskID string) ([]models.RevisionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.RevisionRecord(nil), m.revisions[taskID]...), nil
}

func (m *memStore) AppendCost(e *models.CostEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if team, ok := m.teams[e.TeamID]; ok && team.BudgetCeiling > 0 {
		if m.spend[e.TeamID]+e.Amount > team.BudgetCeiling {
			return state.ErrBudgetExhausted
		}
	}
	m.spend[e.TeamID] += e.Amount
	m.taskSpend[e.TaskID] += e.Amount
	m.costs = append(m.costs, *e)
	return nil
}

func (m *memStore) TeamSpend(teamID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spend[teamID], nil
}

func (m *memStore) TaskSpend(taskID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.taskSpend[taskID], nil
}

func (m *memStore) RecordExecution(rec *models.ToolExecutionRecord) error { return nil }
func (m *memStore) ListExecutionsByTask(taskID string) ([]models.ToolExecutionRecord, error) {
	return nil, nil
}
func (m *memStore) ToolStats(toolID string) (float64, float64, error) { return 0, 0, nil }

func (m *memStore) AppendEvent(e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *memStore) ListEventsByTask(taskID string) ([]models.Event, error)  { return nil, nil }
func (m *memStore) ListEventsByTeam(teamID string) ([]models.Event, error) { return nil, nil }

// addTeam registers a team directly.
func (m *memStore) addTeam(t *models.Team) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.teams[t.ID] = &cp
}
