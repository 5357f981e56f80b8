package orchestrator

import (
	"errors"
	"math"
	"testing"

	"github.com/ghostpirates/crew/internal/recovery"
	"github.com/ghostpirates/crew/internal/skills"
	"github.com/ghostpirates/crew/pkg/models"
)

func worker(id, teamID string, skillz map[string]float64, capacity, active int) *models.Agent {
	return &models.Agent{
		ID:          id,
		TeamID:      teamID,
		Role:        models.RoleWorker,
		Skills:      skillz,
		Capacity:    capacity,
		ActiveTasks: active,
		Active:      true,
	}
}

func TestScoreWeighting(t *testing.T) {
	store := newMemStore()
	a := NewAssigner(store, skills.NewRegistry(store), nil, 0.3)

	task := &models.Task{
		ID:     "t1",
		TeamID: "team",
		Status: models.TaskStatusPending,
		RequiredSkills: map[string]float64{
			"A": 0.8,
			"B": 0.6,
		},
	}

	// Expert at full load: 0.5*0.925 + 0.3*0 + 0.2*0.5 = 0.5625.
	expert := worker("expert", "team", map[string]float64{"A": 0.95, "B": 0.9}, 3, 3)
	// Competent and idle: 0.5*0.775 + 0.3*1 + 0.2*0.5 = 0.7875.
	idle := worker("idle", "team", map[string]float64{"A": 0.85, "B": 0.7}, 3, 0)

	if got := a.Score(expert, task); math.Abs(got-0.5625) > 1e-9 {
		t.Errorf("expert score = %f, want 0.5625", got)
	}
	if got := a.Score(idle, task); math.Abs(got-0.7875) > 1e-9 {
		t.Errorf("idle score = %f, want 0.7875", got)
	}

	store.CreateAgent(expert)
	store.CreateAgent(idle)
	winner, err := a.Select(task)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if winner.ID != "idle" {
		t.Errorf("winner = %s, want the idle agent per the weighted formula", winner.ID)
	}
}

func TestSelectPrefersProficiencyWhenLoadsEqual(t *testing.T) {
	store := newMemStore()
	a := NewAssigner(store, skills.NewRegistry(store), nil, 0.3)

	task := &models.Task{
		ID: "t1", TeamID: "team", Status: models.TaskStatusPending,
		RequiredSkills: map[string]float64{"A": 0.5},
	}
	store.CreateAgent(worker("strong", "team", map[string]float64{"A": 0.9}, 3, 0))
	store.CreateAgent(worker("weak", "team", map[string]float64{"A": 0.6}, 3, 0))

	winner, err := a.Select(task)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if winner.ID != "strong" {
		t.Errorf("winner = %s, want strong", winner.ID)
	}
}

func TestSelectTieBreaksOnLowestLoad(t *testing.T) {
	store := newMemStore()
	a := NewAssigner(store, skills.NewRegistry(store), nil, 0.3)

	task := &models.Task{
		ID: "t1", TeamID: "team", Status: models.TaskStatusPending,
		RequiredSkills: map[string]float64{"A": 0.5},
	}
	// Same skills, same headroom fraction, different absolute load.
	store.CreateAgent(worker("busy", "team", map[string]float64{"A": 0.8}, 4, 2))
	store.CreateAgent(worker("light", "team", map[string]float64{"A": 0.8}, 2, 1))

	winner, err := a.Select(task)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if winner.ID != "light" {
		t.Errorf("winner = %s, want the lower absolute load", winner.ID)
	}
}

func TestSelectNoEligibleAgent(t *testing.T) {
	store := newMemStore()
	a := NewAssigner(store, skills.NewRegistry(store), nil, 0.3)

	task := &models.Task{
		ID: "t1", TeamID: "team", Status: models.TaskStatusPending,
		RequiredSkills: map[string]float64{"sql": 0.8},
	}
	store.CreateAgent(worker("w1", "team", map[string]float64{"sql": 0.5}, 3, 0))

	_, err := a.Select(task)
	if !errors.Is(err, recovery.ErrNoEligibleAgent) {
		t.Fatalf("err = %v, want ErrNoEligibleAgent", err)
	}
}

func TestSelectIgnoresManagersAndInactive(t *testing.T) {
	store := newMemStore()
	a := NewAssigner(store, skills.NewRegistry(store), nil, 0.3)

	task := &models.Task{
		ID: "t1", TeamID: "team", Status: models.TaskStatusPending,
		RequiredSkills: map[string]float64{"A": 0.5},
	}
	mgr := worker("mgr", "team", map[string]float64{"A": 0.9}, 3, 0)
	mgr.Role = models.RoleManager
	gone := worker("gone", "team", map[string]float64{"A": 0.9}, 3, 0)
	gone.Active = false
	store.CreateAgent(mgr)
	store.CreateAgent(gone)

	if _, err := a.Select(task); !errors.Is(err, recovery.ErrNoEligibleAgent) {
		t.Fatalf("err = %v, want ErrNoEligibleAgent", err)
	}
}

func TestAssignReservesCapacity(t *testing.T) {
	store := newMemStore()
	a := NewAssigner(store, skills.NewRegistry(store), nil, 0.3)

	task := &models.Task{
		ID: "t1", TeamID: "team", Status: models.TaskStatusPending,
		RequiredSkills: map[string]float64{"A": 0.5},
	}
	store.CreateTask(task)
	store.CreateAgent(worker("w1", "team", map[string]float64{"A": 0.8}, 2, 0))

	agent, err := a.Assign(task, store)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if agent.ID != "w1" {
		t.Errorf("assigned to %s", agent.ID)
	}
	if task.Status != models.TaskStatusAssigned || task.AssignedTo != "w1" {
		t.Errorf("task = %s/%s, want assigned/w1", task.Status, task.AssignedTo)
	}

	reloaded, _ := store.GetAgent("w1")
	if reloaded.ActiveTasks != 1 {
		t.Errorf("active tasks = %d, want 1", reloaded.ActiveTasks)
	}
}

func TestSpawnerCreatesWorkerFromTemplate(t *testing.T) {
	store := newMemStore()
	emitter := NewEventEmitter(store, 16, NopLogger())
	specs := []models.WorkerSpec{
		{Specialization: models.SpecResearcher, Skills: map[string]float64{"research": 0.7}, Capacity: 2},
		{Specialization: models.SpecCoder, Skills: map[string]float64{"coding": 0.7}, Capacity: 2},
	}
	spawner := NewSpawner(store, specs, 5, 2, emitter)
	a := NewAssigner(store, skills.NewRegistry(store), spawner, 0.3)

	task := &models.Task{
		ID: "t1", TeamID: "team", Status: models.TaskStatusPending,
		RequiredSkills: map[string]float64{"coding": 0.6},
	}

	agent, err := a.Select(task)
	if err != nil {
		t.Fatalf("Select with spawner: %v", err)
	}
	if agent.Specialization != models.SpecCoder {
		t.Errorf("spawned %s, want coder", agent.Specialization)
	}

	agents, _ := store.ListAgentsByTeam("team")
	if len(agents) != 1 {
		t.Errorf("team has %d agents, want 1", len(agents))
	}
}

func TestSpawnerRespectsTeamCap(t *testing.T) {
	store := newMemStore()
	specs := []models.WorkerSpec{
		{Specialization: models.SpecCoder, Skills: map[string]float64{"coding": 0.7}},
	}
	spawner := NewSpawner(store, specs, 1, 2, nil)
	store.CreateAgent(worker("w1", "team", map[string]float64{"other": 0.9}, 2, 0))

	task := &models.Task{
		ID: "t1", TeamID: "team", Status: models.TaskStatusPending,
		RequiredSkills: map[string]float64{"coding": 0.6},
	}
	agent, err := spawner.SpawnFor(task)
	if err != nil {
		t.Fatalf("SpawnFor: %v", err)
	}
	if agent != nil {
		t.Error("spawned past the team size cap")
	}
}
