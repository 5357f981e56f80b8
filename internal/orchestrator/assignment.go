package orchestrator

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/ghostpirates/crew/internal/recovery"
	"github.com/ghostpirates/crew/internal/skills"
	"github.com/ghostpirates/crew/internal/state"
	"github.com/ghostpirates/crew/pkg/models"
)

// Assignment scoring weights. Fixed: skill match dominates, then headroom,
// then track record.
const (
	weightSkillMatch  = 0.5
	weightInverseLoad = 0.3
	weightSuccessRate = 0.2
)

// Assigner picks the best eligible worker for a task.
type Assigner struct {
	agents  state.AgentStore
	skills  *skills.Registry
	spawner *Spawner
	// minProficiency is the global skill floor for eligibility.
	minProficiency float64
}

// NewAssigner creates an Assigner. spawner may be nil to disable worker
// creation when no agent is eligible.
func NewAssigner(agents state.AgentStore, reg *skills.Registry, spawner *Spawner, minProficiency float64) *Assigner {
	return &Assigner{agents: agents, skills: reg, spawner: spawner, minProficiency: minProficiency}
}

// Assign selects an agent for the task and records the assignment on the
// task row. Returns recovery.ErrNoEligibleAgent when no worker qualifies
// and spawning is disabled or fails.
func (a *Assigner) Assign(task *models.Task, tasks state.TaskStore) (*models.Agent, error) {
	agent, err := a.Select(task)
	if err != nil {
		return nil, err
	}

	if _, err := tasks.TransitionTask(task.ID, models.TaskStatusPending, models.TaskStatusAssigned, func(t *models.Task) {
		t.AssignedTo = agent.ID
	}); err != nil {
		return nil, fmt.Errorf("assign task %s: %w", task.ID, err)
	}
	if err := a.agents.AdjustAgentLoad(agent.ID, +1); err != nil {
		return nil, fmt.Errorf("reserve capacity on %s: %w", agent.ID, err)
	}
	task.AssignedTo = agent.ID
	task.Status = models.TaskStatusAssigned
	return agent, nil
}

// Select scores all eligible workers on the task's team and returns the
// winner without mutating anything. Ties break to the lowest current load.
func (a *Assigner) Select(task *models.Task) (*models.Agent, error) {
	agents, err := a.agents.ListAgentsByTeam(task.TeamID)
	if err != nil {
		return nil, fmt.Errorf("list agents for team %s: %w", task.TeamID, err)
	}

	var best *models.Agent
	var bestScore float64
	for i := range agents {
		ag := &agents[i]
		if !a.Eligible(ag, task) {
			continue
		}
		score := a.Score(ag, task)
		if best == nil || score > bestScore ||
			(score == bestScore && ag.ActiveTasks < best.ActiveTasks) {
			best = ag
			bestScore = score
		}
	}
	if best != nil {
		return best, nil
	}

	if a.spawner != nil {
		spawned, err := a.spawner.SpawnFor(task)
		if err == nil && spawned != nil {
			return spawned, nil
		}
	}
	return nil, fmt.Errorf("task %s requires %v: %w", task.ID, skillNames(task.RequiredSkills), recovery.ErrNoEligibleAgent)
}

// Eligible reports whether the agent holds every required skill at or
// above both the task's minimum and the global proficiency floor.
func (a *Assigner) Eligible(agent *models.Agent, task *models.Task) bool {
	if !agent.Active || agent.Role != models.RoleWorker {
		return false
	}
	for skill, min := range task.RequiredSkills {
		p := agent.Proficiency(skill)
		if p < min || p < a.minProficiency {
			return false
		}
	}
	return true
}

// Score computes the fixed-weight assignment score: 50% average proficiency
// across required skills, 30% inverse load, 20% historical success rate on
// the same skills.
func (a *Assigner) Score(agent *models.Agent, task *models.Task) float64 {
	names := skillNames(task.RequiredSkills)

	var avgProf float64
	if len(names) > 0 {
		for _, s := range names {
			avgProf += agent.Proficiency(s)
		}
		avgProf /= float64(len(names))
	} else {
		avgProf = 0.5 // no requirements, neutral
	}

	var headroom float64
	if agent.Capacity > 0 {
		headroom = 1 - float64(agent.ActiveTasks)/float64(agent.Capacity)
		if headroom < 0 {
			headroom = 0
		}
	}

	success := 0.5
	if a.skills != nil {
		success = a.skills.SuccessRate(agent.ID, names)
	}

	return weightSkillMatch*avgProf + weightInverseLoad*headroom + weightSuccessRate*success
}

// skillNames returns the map's keys in stable order.
func skillNames(skills map[string]float64) []string {
	names := make([]string, 0, len(skills))
	for s := range skills {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}

// Spawner creates a new specialized worker when assignment finds no
// eligible agent and policy allows growing the team.
type Spawner struct {
	agents state.AgentStore
	specs  []models.WorkerSpec
	// maxWorkers caps team size including the spawned worker.
	maxWorkers int
	capacity   int
	emitter    *EventEmitter
}

// NewSpawner creates a Spawner drawing from the given worker spec templates.
func NewSpawner(agents state.AgentStore, specs []models.WorkerSpec, maxWorkers, capacity int, emitter *EventEmitter) *Spawner {
	return &Spawner{agents: agents, specs: specs, maxWorkers: maxWorkers, capacity: capacity, emitter: emitter}
}

// SpawnFor creates a worker from the spec template best covering the
// task's required skills. Returns nil when the team is at its size cap or
// no template covers the requirements.
func (s *Spawner) SpawnFor(task *models.Task) (*models.Agent, error) {
	existing, err := s.agents.ListAgentsByTeam(task.TeamID)
	if err != nil {
		return nil, fmt.Errorf("list agents for team %s: %w", task.TeamID, err)
	}
	workers := 0
	for _, ag := range existing {
		if ag.Role == models.RoleWorker && ag.Active {
			workers++
		}
	}
	if workers >= s.maxWorkers {
		return nil, nil
	}

	spec := bestSpec(s.specs, task.RequiredSkills)
	if spec == nil {
		return nil, nil
	}

	capacity := spec.Capacity
	if capacity <= 0 {
		capacity = s.capacity
	}
	agent := &models.Agent{
		ID:             uuid.New().String(),
		TeamID:         task.TeamID,
		Role:           models.RoleWorker,
		Specialization: spec.Specialization,
		Skills:         spec.Skills,
		PermittedTools: spec.RequiredTools,
		Capacity:       capacity,
		Active:         true,
	}
	if err := s.agents.CreateAgent(agent); err != nil {
		return nil, fmt.Errorf("spawn %s worker: %w", spec.Specialization, err)
	}

	if s.emitter != nil {
		s.emitter.Emit(models.Event{
			Type:    models.EventWorkerCreated,
			TeamID:  task.TeamID,
			AgentID: agent.ID,
			Payload: string(spec.Specialization),
		})
	}
	return agent, nil
}

// bestSpec picks the template covering the most required skills at or
// above their minimums. Returns nil if no template covers any.
func bestSpec(specs []models.WorkerSpec, required map[string]float64) *models.WorkerSpec {
	var best *models.WorkerSpec
	bestCovered := 0
	for i := range specs {
		covered := 0
		for skill, min := range required {
			if specs[i].Skills[skill] >= min {
				covered++
			}
		}
		if covered > bestCovered {
			best = &specs[i]
			bestCovered = covered
		}
	}
	return best
}
