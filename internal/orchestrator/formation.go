package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ghostpirates/crew/internal/config"
	"github.com/ghostpirates/crew/internal/decompose"
	"github.com/ghostpirates/crew/internal/state"
	"github.com/ghostpirates/crew/pkg/models"
)

// Former builds a team for a goal: the team row, a manager, and a bounded
// set of specialized workers picked from spec templates.
type Former struct {
	store      state.Store
	decomposer *decompose.Decomposer
	specs      []models.WorkerSpec
	cfg        config.TeamConfig
	emitter    *EventEmitter
	logger     *DebugLogger
}

// NewFormer creates a Former.
func NewFormer(store state.Store, d *decompose.Decomposer, specs []models.WorkerSpec, cfg config.TeamConfig, emitter *EventEmitter, logger *DebugLogger) *Former {
	return &Former{store: store, decomposer: d, specs: specs, cfg: cfg, emitter: emitter, logger: logger}
}

// Form analyzes the goal and assembles a team around it. The team starts
// forming and transitions to active once its workers exist. budget of 0
// falls back to the configured default ceiling. Fewer spec templates than
// the minimum team size is an error; no rows are created in that case.
func (f *Former) Form(ctx context.Context, goal string, budget float64) (*models.Team, *models.GoalAnalysis, error) {
	if len(f.specs) < f.cfg.MinWorkers {
		return nil, nil, fmt.Errorf("%d worker specs cannot staff the minimum team size %d",
			len(f.specs), f.cfg.MinWorkers)
	}
	if budget <= 0 {
		budget = f.cfg.DefaultBudget
	}
	team := &models.Team{
		ID:            uuid.New().String(),
		Goal:          goal,
		Status:        models.TeamStatusForming,
		BudgetCeiling: budget,
	}
	if err := f.store.CreateTeam(team); err != nil {
		return nil, nil, fmt.Errorf("create team: %w", err)
	}

	manager := &models.Agent{
		ID:       uuid.New().String(),
		TeamID:   team.ID,
		Role:     models.RoleManager,
		Capacity: 1,
		Active:   true,
	}
	if err := f.store.CreateAgent(manager); err != nil {
		return nil, nil, fmt.Errorf("create manager: %w", err)
	}
	if err := f.store.SetTeamManager(team.ID, manager.ID); err != nil {
		return nil, nil, fmt.Errorf("set manager: %w", err)
	}
	team.ManagerID = manager.ID

	analysis, err := f.decomposer.AnalyzeGoal(ctx, goal)
	if err != nil {
		return nil, nil, fmt.Errorf("analyze goal: %w", err)
	}

	specs := f.pickSpecs(analysis)
	for _, spec := range specs {
		capacity := spec.Capacity
		if capacity <= 0 {
			capacity = f.cfg.DefaultCapacity
		}
		worker := &models.Agent{
			ID:             uuid.New().String(),
			TeamID:         team.ID,
			Role:           models.RoleWorker,
			Specialization: spec.Specialization,
			Skills:         spec.Skills,
			PermittedTools: spec.RequiredTools,
			Capacity:       capacity,
			Active:         true,
		}
		if err := f.store.CreateAgent(worker); err != nil {
			return nil, nil, fmt.Errorf("create %s worker: %w", spec.Specialization, err)
		}
		f.emitter.Emit(models.Event{
			Type:    models.EventWorkerCreated,
			TeamID:  team.ID,
			AgentID: worker.ID,
			Payload: string(spec.Specialization),
		})
	}

	if err := f.store.UpdateTeamStatus(team.ID, models.TeamStatusForming, models.TeamStatusActive); err != nil {
		return nil, nil, fmt.Errorf("activate team: %w", err)
	}
	team.Status = models.TeamStatusActive

	f.logger.Log("team %s formed: %d workers for goal %q", team.ID, len(specs), goal)
	f.emitter.Emit(models.Event{
		Type:    models.EventTeamFormed,
		TeamID:  team.ID,
		Payload: fmt.Sprintf("%d workers", len(specs)),
	})
	return team, analysis, nil
}

// pickSpecs selects worker templates covering the analysis's required
// specializations, padded with remaining templates up to the minimum team
// size and cut at the maximum.
func (f *Former) pickSpecs(analysis *models.GoalAnalysis) []models.WorkerSpec {
	required := make(map[models.Specialization]bool, len(analysis.RequiredSpecializations))
	for _, s := range analysis.RequiredSpecializations {
		required[models.Specialization(s)] = true
	}

	var picked []models.WorkerSpec
	var rest []models.WorkerSpec
	for _, spec := range f.specs {
		if required[spec.Specialization] {
			picked = append(picked, spec)
		} else {
			rest = append(rest, spec)
		}
	}
	for _, spec := range rest {
		if len(picked) >= f.cfg.MinWorkers {
			break
		}
		picked = append(picked, spec)
	}
	if len(picked) > f.cfg.MaxWorkers {
		picked = picked[:f.cfg.MaxWorkers]
	}
	return picked
}
