package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghostpirates/crew/internal/analyzer"
	"github.com/ghostpirates/crew/internal/config"
	"github.com/ghostpirates/crew/internal/decompose"
	"github.com/ghostpirates/crew/internal/executor"
	"github.com/ghostpirates/crew/internal/llm"
	"github.com/ghostpirates/crew/internal/recovery"
	"github.com/ghostpirates/crew/internal/skills"
	"github.com/ghostpirates/crew/internal/state"
	"github.com/ghostpirates/crew/internal/tools"
	"github.com/ghostpirates/crew/pkg/models"
)

// Orchestrator coordinates one or more teams end to end: formation,
// decomposition, assignment, dispatch, review, and recovery.
type Orchestrator struct {
	cfg      *config.Config
	store    state.Store
	provider llm.Provider

	decomposer  *decompose.Decomposer
	former      *Former
	assigner    *Assigner
	reviewer    *Reviewer
	budget      *BudgetGuard
	engine      *recovery.Engine
	selector    *tools.Selector
	executor    *executor.Executor
	skills      *skills.Registry
	emitter     *EventEmitter
	escalations *EscalationHandler
	logger      *DebugLogger
}

// Deps are the collaborators an Orchestrator needs.
type Deps struct {
	Config   *config.Config
	Store    state.Store
	Provider llm.Provider
	Registry *tools.Registry
	Breakers *tools.BreakerRegistry
	Executor *executor.Executor
	Specs    []models.WorkerSpec
	Logger   *DebugLogger
	// EscalationTimeout bounds how long a raised escalation waits for a
	// human; zero waits until context cancellation.
	EscalationTimeout time.Duration
}

// New wires an Orchestrator from its dependencies.
func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = NopLogger()
	}

	emitter := NewEventEmitter(d.Store, 256, logger)
	skillReg := skills.NewRegistry(d.Store)
	budget := NewBudgetGuard(d.Store)
	budget.emitter = emitter
	d.Executor.NotifyEvents(emitter)
	an := analyzer.New(d.Config.Analyzer, d.Store)
	dec := decompose.New(d.Provider)
	spawner := (*Spawner)(nil)
	if d.Config.Team.SpawnWorkers {
		spawner = NewSpawner(d.Store, d.Specs, d.Config.Team.MaxWorkers, d.Config.Team.DefaultCapacity, emitter)
	}

	o := &Orchestrator{
		cfg:         d.Config,
		store:       d.Store,
		provider:    d.Provider,
		decomposer:  dec,
		former:      NewFormer(d.Store, dec, d.Specs, d.Config.Team, emitter, logger),
		assigner:    NewAssigner(d.Store, skillReg, spawner, d.Config.Team.MinProficiency),
		reviewer:    NewReviewer(d.Provider, an, budget, d.Store, emitter, logger, d.Config.Review.MaxRevisions),
		budget:      budget,
		engine:      recovery.NewEngine(d.Config.Retry, d.Store),
		selector:    tools.NewSelector(d.Registry, d.Breakers, d.Store),
		executor:    d.Executor,
		skills:      skillReg,
		emitter:     emitter,
		escalations: NewEscalationHandler(emitter, logger, d.EscalationTimeout),
		logger:      logger,
	}

	d.Breakers.OnTransition(func(toolID string, st tools.BreakerState) {
		typ := models.EventBreakerClosed
		if st == tools.BreakerOpen {
			typ = models.EventBreakerOpened
		}
		emitter.Emit(models.Event{Type: typ, Payload: toolID})
	})
	return o
}

// Events exposes the audit event stream for read-only subscribers.
func (o *Orchestrator) Events() <-chan models.Event { return o.emitter.Events() }

// DroppedEventCount reports subscriber-channel drops.
func (o *Orchestrator) DroppedEventCount() uint64 { return o.emitter.DroppedCount() }

// Escalations exposes the escalation handler so a front end can resolve
// pending requests.
func (o *Orchestrator) Escalations() *EscalationHandler { return o.escalations }

// Close shuts down the event stream. Call after the last Run or Resume
// returns; subscribers see the channel close.
func (o *Orchestrator) Close() { o.emitter.Close() }

// Run pursues a goal to completion: forms a team, decomposes the goal into
// tasks, and drives every task to a terminal status. Returns the team in
// its final state.
func (o *Orchestrator) Run(ctx context.Context, goal string, budget float64) (*models.Team, error) {
	team, analysis, err := o.former.Form(ctx, goal, budget)
	if err != nil {
		return nil, fmt.Errorf("form team: %w", err)
	}

	tasks, err := o.decomposer.Decompose(ctx, team.ID, goal, analysis)
	if err != nil {
		o.abortTeam(team, fmt.Sprintf("decomposition failed: %v", err))
		return team, fmt.Errorf("decompose goal: %w", err)
	}
	for _, task := range tasks {
		if err := o.store.CreateTask(task); err != nil {
			o.abortTeam(team, fmt.Sprintf("persist tasks: %v", err))
			return team, fmt.Errorf("create task %q: %w", task.Title, err)
		}
		o.emitter.Emit(models.Event{
			Type:    models.EventTaskCreated,
			TeamID:  team.ID,
			TaskID:  task.ID,
			Payload: task.Title,
		})
	}

	o.runTasks(ctx, team, tasks)
	return o.finishTeam(team)
}

// Resume picks a team back up after a restart: every non-terminal task is
// driven to a terminal status, continuing from its last checkpoint.
func (o *Orchestrator) Resume(ctx context.Context, teamID string) (*models.Team, error) {
	team, err := o.store.GetTeam(teamID)
	if err != nil {
		return nil, fmt.Errorf("load team %s: %w", teamID, err)
	}
	if team.Status == models.TeamStatusCompleted || team.Status == models.TeamStatusAborted {
		return team, nil
	}
	if team.Status == models.TeamStatusPaused {
		if err := o.store.UpdateTeamStatus(team.ID, models.TeamStatusPaused, models.TeamStatusActive); err != nil {
			return nil, fmt.Errorf("reactivate team: %w", err)
		}
		team.Status = models.TeamStatusActive
	}

	all, err := o.store.ListTasksByTeam(teamID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	var open []*models.Task
	for i := range all {
		if !all[i].Status.Terminal() {
			open = append(open, &all[i])
		}
	}
	o.logger.Log("resuming team %s: %d open tasks", teamID, len(open))

	o.runTasks(ctx, team, open)
	return o.finishTeam(team)
}

// runTasks drives a set of tasks through a bounded worker pool sized to
// the team's total capacity.
func (o *Orchestrator) runTasks(ctx context.Context, team *models.Team, tasks []*models.Task) {
	agents, err := o.store.ListAgentsByTeam(team.ID)
	if err != nil {
		o.logger.Log("list agents for pool sizing: %v", err)
	}
	size := 0
	for _, ag := range agents {
		if ag.Role == models.RoleWorker && ag.Active {
			size += ag.Capacity
		}
	}

	pool := NewPool(size)
	for _, task := range tasks {
		task := task
		if !pool.Go(ctx, func() { o.runTask(ctx, team, task) }) {
			break
		}
	}
	pool.Wait()
}

// runTask drives one task from its current status to a terminal one.
func (o *Orchestrator) runTask(ctx context.Context, team *models.Team, task *models.Task) {
	attempt := 1
	var agent *models.Agent
	var err error

	for !task.Status.Terminal() {
		if ctx.Err() != nil {
			return
		}

		switch task.Status {
		case models.TaskStatusPending:
			agent, err = o.assigner.Assign(task, o.store)
			if err != nil {
				o.handleFailure(ctx, team, task, agent, err, &attempt)
				continue
			}
			o.emitter.Emit(models.Event{
				Type:    models.EventTaskAssigned,
				TeamID:  team.ID,
				TaskID:  task.ID,
				AgentID: agent.ID,
			})

		case models.TaskStatusAssigned, models.TaskStatusInProgress, models.TaskStatusInRevision:
			if agent == nil {
				agent, err = o.loadAssignee(task)
				if err != nil {
					o.abortTask(task, fmt.Sprintf("assignee lost: %v", err))
					continue
				}
			}
			if err := o.workOn(ctx, team, task, agent); err != nil {
				o.handleFailure(ctx, team, task, agent, err, &attempt)
				continue
			}
			attempt = 1

		case models.TaskStatusReview:
			decision, err := o.reviewer.Review(team, task)
			if err != nil {
				o.handleFailure(ctx, team, task, agent, err, &attempt)
				continue
			}
			if decision == ReviewApproved || decision == ReviewRejected {
				o.releaseAgent(agent, task, decision == ReviewApproved)
				agent = nil
			}

		default:
			o.abortTask(task, fmt.Sprintf("unexpected status %s", task.Status))
		}
	}
}

// workOn advances a task one step: first dispatch moves it to in_progress,
// the step executes and checkpoints, the output is scored, and the task
// lands in review.
func (o *Orchestrator) workOn(ctx context.Context, team *models.Team, task *models.Task, agent *models.Agent) error {
	from := task.Status
	if from == models.TaskStatusAssigned || from == models.TaskStatusInRevision {
		if _, err := o.store.TransitionTask(task.ID, from, models.TaskStatusInProgress, nil); err != nil {
			return fmt.Errorf("start task: %w", err)
		}
		task.Status = models.TaskStatusInProgress
		o.emitter.Emit(models.Event{
			Type:    models.EventTaskTransitioned,
			TeamID:  team.ID,
			TaskID:  task.ID,
			AgentID: agent.ID,
			Payload: string(models.TaskStatusInProgress),
		})
	}

	qualityBefore := task.QualityScore
	spendBefore, err := o.store.TaskSpend(task.ID)
	if err != nil {
		return fmt.Errorf("task spend: %w", err)
	}

	out, err := o.executeStep(ctx, team, task, agent)
	if err != nil {
		o.recordSkills(agent, task, false)
		return err
	}
	o.recordSkills(agent, task, true)

	score, feedback, err := o.reviewer.ScoreOutput(ctx, task, out.Output)
	if err != nil {
		return fmt.Errorf("score step output: %w", err)
	}

	updated, err := o.store.TransitionTask(task.ID, models.TaskStatusInProgress, models.TaskStatusReview, func(t *models.Task) {
		t.Output = out.Output
		t.QualityScore = score
		t.AssignedTo = agent.ID
	})
	if err != nil {
		return fmt.Errorf("submit for review: %w", err)
	}
	*task = *updated
	o.emitter.Emit(models.Event{
		Type:    models.EventTaskTransitioned,
		TeamID:  team.ID,
		TaskID:  task.ID,
		AgentID: agent.ID,
		Payload: string(models.TaskStatusReview),
	})

	if task.RevisionCount > 0 {
		spendAfter, serr := o.store.TaskSpend(task.ID)
		if serr != nil {
			spendAfter = spendBefore
		}
		if err := o.store.AppendRevision(&models.RevisionRecord{
			TaskID:        task.ID,
			Revision:      task.RevisionCount,
			QualityBefore: qualityBefore,
			QualityAfter:  score,
			Cost:          spendAfter - spendBefore,
			CreatedAt:     time.Now(),
		}); err != nil {
			return fmt.Errorf("append revision record: %w", err)
		}
	}

	o.logger.Log("task %s scored %.2f (threshold %.2f): %s", task.ID, score, task.AcceptanceThreshold, feedback)
	return nil
}

// executeStep selects a tool and invokes it, falling back to the next
// candidate when a tool is unavailable. The step is checkpointed only on
// completion; a cancelled or failed step leaves no partial checkpoint.
func (o *Orchestrator) executeStep(ctx context.Context, team *models.Team, task *models.Task, agent *models.Agent) (*executor.ToolOutput, error) {
	step := 1
	var priorOutput string
	cp, err := o.store.ResumeFrom(task.ID)
	switch {
	case err == nil:
		step = cp.Step + 1
		priorOutput = string(cp.Snapshot)
	case errors.Is(err, state.ErrNoCheckpoint):
	default:
		return nil, fmt.Errorf("resume task %s: %w", task.ID, err)
	}

	candidates := o.selector.FindCandidates(task, agent)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no selectable tool for task %s: %w", task.ID, executor.ErrToolUnavailable)
	}

	if err := o.budget.Authorize(team, o.estimateStepCost(candidates[0])); err != nil {
		return nil, err
	}

	input := map[string]any{
		"prompt":       stepPrompt(task, priorOutput),
		"role_context": fmt.Sprintf("You are a %s on a task team.", agent.Specialization),
	}

	var out *executor.ToolOutput
	var lastErr error
	for _, def := range candidates {
		out, lastErr = o.executor.Execute(ctx, task, def.ID, input)
		if lastErr == nil {
			o.emitter.Emit(models.Event{
				Type:    models.EventToolInvoked,
				TeamID:  team.ID,
				TaskID:  task.ID,
				AgentID: agent.ID,
				Payload: def.ID,
			})
			break
		}
		// A tripped breaker or missing provider means try the next
		// candidate; anything else is a real failure.
		if !errors.Is(lastErr, executor.ErrToolUnavailable) && !errors.Is(lastErr, executor.ErrNoProvider) {
			return nil, lastErr
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	sunk, err := o.store.TaskSpend(task.ID)
	if err != nil {
		sunk = task.SunkCost + out.CostUnits
	}
	if _, err := o.store.SaveCheckpoint(&models.Checkpoint{
		ID:             uuid.New().String(),
		TaskID:         task.ID,
		Step:           step,
		Snapshot:       []byte(out.Output),
		CumulativeCost: sunk,
	}); err != nil {
		return nil, fmt.Errorf("checkpoint step %d: %w", step, err)
	}
	task.SunkCost = sunk
	if keep := o.cfg.Retention.KeepCheckpoints; keep > 0 {
		if _, err := o.store.PruneCheckpoints(task.ID, keep); err != nil {
			o.logger.Log("prune checkpoints for %s: %v", task.ID, err)
		}
	}
	o.emitter.Emit(models.Event{
		Type:    models.EventCheckpointWritten,
		TeamID:  team.ID,
		TaskID:  task.ID,
		Payload: fmt.Sprintf("step %d", step),
	})
	return out, nil
}

// handleFailure classifies an execution error and acts on the decision.
func (o *Orchestrator) handleFailure(ctx context.Context, team *models.Team, task *models.Task, agent *models.Agent, cause error, attempt *int) {
	ectx := o.executionContext(team, task, agent)
	analysis, decision, err := o.engine.Analyze(task.ID, cause, ectx, *attempt)
	if err != nil {
		o.logger.Log("failure analysis for %s failed: %v", task.ID, err)
		o.abortTask(task, fmt.Sprintf("%v (analysis unavailable)", cause))
		return
	}
	o.emitter.Emit(models.Event{
		Type:    models.EventFailureClassified,
		TeamID:  team.ID,
		TaskID:  task.ID,
		Payload: fmt.Sprintf("%s -> %s", analysis.Category, decision.Outcome),
	})
	o.logger.Log("task %s failure (%s, attempt %d): %s", task.ID, analysis.Category, *attempt, decision.Reason)

	switch decision.Outcome {
	case recovery.OutcomeRetry, recovery.OutcomeDecompose:
		*attempt++
		select {
		case <-time.After(decision.Delay):
		case <-ctx.Done():
		}

	case recovery.OutcomeReassign:
		*attempt++
		o.reassign(task, agent)

	case recovery.OutcomeEscalate:
		res, err := o.escalations.Raise(ctx, EscalationRequest{
			TaskID:            task.ID,
			TeamID:            team.ID,
			Category:          analysis.Category,
			Priority:          analysis.Priority,
			Intervention:      recovery.InterventionFor(analysis.Category),
			RecommendedAction: analysis.RecommendedAction,
			Evidence:          analysis.RootCause,
			SunkCost:          task.SunkCost,
		})
		if err != nil {
			return // context cancelled while waiting
		}
		switch res.Action {
		case ResolutionApprove, ResolutionClarify:
			*attempt = 1 // human cleared it, resume from last checkpoint
		case ResolutionReassign:
			*attempt = 1
			o.reassign(task, agent)
		case ResolutionAbort:
			o.abortTask(task, fmt.Sprintf("%s: aborted on escalation (%s)", analysis.Category, res.Message))
		}

	case recovery.OutcomeAbort:
		o.abortTask(task, fmt.Sprintf("%s: %s", analysis.Category, analysis.RootCause))
	}
}

// reassign moves the task to the next best eligible agent, releasing the
// previous agent's capacity slot. The new assignee is persisted on the
// task's next status transition.
func (o *Orchestrator) reassign(task *models.Task, previous *models.Agent) {
	if previous == nil {
		// Nothing assigned yet; the pending task simply goes back through
		// assignment.
		return
	}
	if err := o.store.AdjustAgentLoad(previous.ID, -1); err != nil {
		o.logger.Log("release %s: %v", previous.ID, err)
	}
	next, err := o.assigner.Select(task)
	if err != nil || next.ID == previous.ID {
		o.abortTask(task, "no alternative agent for reassignment")
		return
	}
	if err := o.store.AdjustAgentLoad(next.ID, +1); err != nil {
		o.logger.Log("reserve %s: %v", next.ID, err)
	}
	task.AssignedTo = next.ID
	*previous = *next
	o.logger.Log("task %s reassigned to %s", task.ID, next.ID)
}

// abortTask transitions a task to aborted from whatever non-terminal
// status it is in, attaching the reason and sunk cost.
func (o *Orchestrator) abortTask(task *models.Task, reason string) {
	if task.Status.Terminal() {
		return
	}
	updated, err := o.store.TransitionTask(task.ID, task.Status, models.TaskStatusAborted, func(t *models.Task) {
		t.AbortReason = reason
	})
	if err != nil {
		o.logger.Log("abort task %s: %v", task.ID, err)
		task.Status = models.TaskStatusAborted
		task.AbortReason = reason
		return
	}
	*task = *updated
	o.emitter.Emit(models.Event{
		Type:    models.EventTaskCompleted,
		TeamID:  task.TeamID,
		TaskID:  task.ID,
		Payload: fmt.Sprintf("aborted: %s (sunk cost %.2f)", reason, task.SunkCost),
	})
}

// finishTeam settles the team's terminal status from its tasks.
func (o *Orchestrator) finishTeam(team *models.Team) (*models.Team, error) {
	tasks, err := o.store.ListTasksByTeam(team.ID)
	if err != nil {
		return team, fmt.Errorf("list tasks: %w", err)
	}

	aborted := 0
	open := 0
	for _, t := range tasks {
		switch {
		case t.Status == models.TaskStatusAborted:
			aborted++
		case !t.Status.Terminal():
			open++
		}
	}

	if open > 0 {
		// Interrupted run; leave the team active for a later resume.
		return team, nil
	}

	to := models.TeamStatusCompleted
	if aborted > 0 {
		to = models.TeamStatusAborted
	}
	if err := o.store.UpdateTeamStatus(team.ID, models.TeamStatusActive, to); err != nil {
		return team, fmt.Errorf("finish team: %w", err)
	}
	team.Status = to
	if age := o.cfg.Retention.TerminalAge; age > 0 {
		if _, err := o.store.PurgeTerminalCheckpoints(age); err != nil {
			o.logger.Log("purge terminal checkpoints: %v", err)
		}
	}
	o.logger.Log("team %s finished: %s (%d tasks, %d aborted)", team.ID, to, len(tasks), aborted)
	return team, nil
}

func (o *Orchestrator) abortTeam(team *models.Team, reason string) {
	if err := o.store.UpdateTeamStatus(team.ID, team.Status, models.TeamStatusAborted); err != nil {
		o.logger.Log("abort team %s: %v", team.ID, err)
		return
	}
	team.Status = models.TeamStatusAborted
	o.logger.Log("team %s aborted: %s", team.ID, reason)
}

// loadAssignee fetches the task's recorded agent after a resume.
func (o *Orchestrator) loadAssignee(task *models.Task) (*models.Agent, error) {
	if task.AssignedTo == "" {
		return nil, fmt.Errorf("task %s has no assignee", task.ID)
	}
	return o.store.GetAgent(task.AssignedTo)
}

// releaseAgent frees the agent's capacity slot when its task terminates
// and credits the outcome to its skill history.
func (o *Orchestrator) releaseAgent(agent *models.Agent, task *models.Task, success bool) {
	if agent == nil {
		return
	}
	if err := o.store.AdjustAgentLoad(agent.ID, -1); err != nil {
		o.logger.Log("release %s: %v", agent.ID, err)
	}
	o.recordSkills(agent, task, success)
}

func (o *Orchestrator) recordSkills(agent *models.Agent, task *models.Task, success bool) {
	if agent == nil || len(task.RequiredSkills) == 0 {
		return
	}
	if err := o.skills.RecordOutcome(agent, skillNames(task.RequiredSkills), success); err != nil {
		o.logger.Log("record outcome for %s: %v", agent.ID, err)
	}
}

// executionContext gathers classification evidence for a failed execution.
func (o *Orchestrator) executionContext(team *models.Team, task *models.Task, agent *models.Agent) recovery.ExecutionContext {
	ectx := recovery.ExecutionContext{RequiredSkills: task.RequiredSkills}
	if agent != nil {
		ectx.HeldSkills = agent.Skills
		if alt, err := o.assigner.Select(task); err == nil && alt.ID != agent.ID {
			ectx.AlternativeAgentExists = true
		}
	}
	if remaining, bounded, err := o.budget.Remaining(team); err == nil && bounded {
		ectx.BudgetRemaining = remaining
	}
	if execs, err := o.store.ListExecutionsByTask(task.ID); err == nil {
		seen := map[string]bool{}
		for _, ex := range execs {
			if !seen[ex.ToolID] {
				seen[ex.ToolID] = true
				ectx.ToolsUsed = append(ectx.ToolsUsed, ex.ToolID)
			}
		}
	}
	return ectx
}

// estimateStepCost projects a step's cost from the tool's ledger history.
func (o *Orchestrator) estimateStepCost(def *models.ToolDefinition) float64 {
	_, avgCost, err := o.store.ToolStats(def.ID)
	if err != nil || avgCost <= 0 {
		return 0.05 // no history, assume a cheap call
	}
	return avgCost
}

// stepPrompt builds the worker prompt for one execution step.
func stepPrompt(task *models.Task, priorOutput string) string {
	prompt := fmt.Sprintf("Task: %s\n\n%s\n\nAcceptance criteria: %s",
		task.Title, task.Description, task.AcceptanceCriteria)
	if priorOutput != "" {
		prompt += fmt.Sprintf("\n\nPrevious attempt output (revise and improve it):\n%s", priorOutput)
	}
	return prompt
}
