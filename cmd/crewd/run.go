package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ghostpirates/crew/internal/config"
	"github.com/ghostpirates/crew/internal/executor"
	"github.com/ghostpirates/crew/internal/llm"
	"github.com/ghostpirates/crew/internal/orchestrator"
	"github.com/ghostpirates/crew/internal/state"
	"github.com/ghostpirates/crew/internal/tools"
	"github.com/ghostpirates/crew/pkg/models"
)

var (
	runBudget            float64
	runWorkersFile       string
	runDebugLog          string
	runEscalationTimeout time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Pursue a goal with an orchestrated task team",
	Long: `Run a goal end to end.

The goal is analyzed and decomposed into a task tree, a team of
specialized workers is formed, and tasks are dispatched to the best
available agent by skill match, load headroom, and success history.
Every execution step is checkpointed; an interrupted run can be picked
up later with 'crewd resume <team-id>'.

Worker templates are read from --workers (YAML) when given, from
./crew.yaml when present, otherwise built-in defaults are used.

A budget ceiling (--budget) caps cumulative team spend; 0 means the
config default, and a config default of 0 means unlimited.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGoal,
}

func init() {
	runCmd.Flags().Float64Var(&runBudget, "budget", 0, "Team budget ceiling in dollars (0: config default)")
	runCmd.Flags().StringVar(&runWorkersFile, "workers", "", "Path to a worker template YAML file")
	runCmd.Flags().StringVar(&runDebugLog, "debug-log", "", "Path for the debug log file (empty: disabled)")
	runCmd.Flags().DurationVar(&runEscalationTimeout, "escalation-timeout", 2*time.Minute, "How long an escalation waits for resolution before aborting")
}

func runGoal(cmd *cobra.Command, args []string) error {
	goal := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	orch, cleanup, err := buildOrchestrator(cfg, db)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		streamEvents(orch.Events())
	}()

	fmt.Printf("Goal: %s\n\n", goal)
	team, runErr := orch.Run(ctx, goal, runBudget)
	orch.Close()
	<-done

	if runErr != nil {
		return fmt.Errorf("run: %w", runErr)
	}
	return printOutcome(db, team)
}

// buildOrchestrator wires the provider, tool registry, breakers, executor,
// and worker templates into an orchestrator. The returned cleanup closes
// resources the orchestrator does not own.
func buildOrchestrator(cfg *config.Config, db *state.DB) (*orchestrator.Orchestrator, func(), error) {
	provider, err := llm.NewAnthropicProvider(cfg.Anthropic)
	if err != nil {
		return nil, nil, fmt.Errorf("anthropic provider: %w", err)
	}

	registry := tools.NewRegistry()
	breakers := tools.NewBreakerRegistry(cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown)
	cache := executor.NewCache(cfg.Cache.TTL)
	exec := executor.New(executor.Config{
		Registry: registry,
		Breakers: breakers,
		Ledger:   db,
		Cache:    cache,
		Timeout:  cfg.Timeouts.Tool,
	})
	if err := registerBuiltinTools(registry, exec, provider, 4096); err != nil {
		return nil, nil, err
	}

	specs, err := loadWorkerSpecs()
	if err != nil {
		return nil, nil, err
	}

	logger, err := orchestrator.NewDebugLogger(runDebugLog)
	if err != nil {
		return nil, nil, fmt.Errorf("debug log: %w", err)
	}

	orch := orchestrator.New(orchestrator.Deps{
		Config:            cfg,
		Store:             db,
		Provider:          provider,
		Registry:          registry,
		Breakers:          breakers,
		Executor:          exec,
		Specs:             specs,
		Logger:            logger,
		EscalationTimeout: runEscalationTimeout,
	})
	watcher := watchConfig(cfg, breakers, cache, exec)
	cleanup := func() {
		if watcher != nil {
			watcher.Close()
		}
		logger.Close()
	}
	return orch, cleanup, nil
}

// watchConfig hot-reloads breaker, cache, and timeout tunables from the
// user config file while a run is in flight. Returns nil when no user
// config file exists; nothing else can change mid-run.
func watchConfig(initial *config.Config, breakers *tools.BreakerRegistry, cache *executor.Cache, exec *executor.Executor) *config.Watcher {
	path := filepath.Join(config.UserConfigDir(), "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	w, err := config.NewWatcher(path, initial, func(cfg *config.Config) {
		breakers.Retune(cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown)
		cache.SetTTL(cfg.Cache.TTL)
		exec.SetTimeout(cfg.Timeouts.Tool)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "config watch disabled: %v\n", err)
		return nil
	}
	return w
}

// loadWorkerSpecs resolves worker templates: explicit flag, then a
// project-local crew.yaml, then built-in defaults.
func loadWorkerSpecs() ([]models.WorkerSpec, error) {
	if runWorkersFile != "" {
		return config.LoadWorkerSpecs(runWorkersFile)
	}
	if _, err := os.Stat("crew.yaml"); err == nil {
		return config.LoadWorkerSpecs("crew.yaml")
	}
	return config.DefaultWorkerSpecs(), nil
}

// streamEvents renders audit events to the terminal until the channel closes.
func streamEvents(events <-chan models.Event) {
	for e := range events {
		printEvent(e)
	}
}

func printEvent(e models.Event) {
	ts := e.CreatedAt.Format("15:04:05")
	switch e.Type {
	case models.EventTeamFormed:
		fmt.Printf("%s %s team %s formed\n", ts, color.GreenString("●"), shortID(e.TeamID))
	case models.EventWorkerCreated:
		fmt.Printf("%s %s worker %s joined: %s\n", ts, color.CyanString("+"), shortID(e.AgentID), e.Payload)
	case models.EventTaskCreated:
		fmt.Printf("%s %s task %s created: %s\n", ts, color.CyanString("+"), shortID(e.TaskID), e.Payload)
	case models.EventTaskAssigned:
		fmt.Printf("%s → task %s assigned to %s\n", ts, shortID(e.TaskID), shortID(e.AgentID))
	case models.EventTaskCompleted:
		if e.Payload != "" && e.Payload != "approved" {
			fmt.Printf("%s %s task %s: %s\n", ts, color.RedString("✗"), shortID(e.TaskID), e.Payload)
		} else {
			fmt.Printf("%s %s task %s approved\n", ts, color.GreenString("✓"), shortID(e.TaskID))
		}
	case models.EventFailureClassified:
		fmt.Printf("%s %s task %s failure: %s\n", ts, color.RedString("!"), shortID(e.TaskID), e.Payload)
	case models.EventEscalationRaised:
		fmt.Printf("%s %s task %s escalated: %s\n", ts, color.YellowString("⚠"), shortID(e.TaskID), e.Payload)
	case models.EventBreakerOpened:
		fmt.Printf("%s %s breaker opened: %s\n", ts, color.RedString("⚡"), e.Payload)
	case models.EventBreakerClosed:
		fmt.Printf("%s %s breaker closed: %s\n", ts, color.GreenString("⚡"), e.Payload)
	}
}

// printOutcome summarizes a finished run: team status, per-task results,
// and total spend.
func printOutcome(db *state.DB, team *models.Team) error {
	tasks, err := db.ListTasksByTeam(team.ID)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	spend, err := db.TeamSpend(team.ID)
	if err != nil {
		return fmt.Errorf("team spend: %w", err)
	}

	fmt.Println()
	switch team.Status {
	case models.TeamStatusCompleted:
		color.Green("Team %s completed", shortID(team.ID))
	case models.TeamStatusAborted:
		color.Red("Team %s aborted", shortID(team.ID))
	default:
		color.Yellow("Team %s %s (resume with: crewd resume %s)", shortID(team.ID), team.Status, team.ID)
	}

	approved, aborted := 0, 0
	for _, t := range tasks {
		switch t.Status {
		case models.TaskStatusApproved:
			approved++
		case models.TaskStatusAborted:
			aborted++
		}
	}
	fmt.Printf("Tasks: %d approved, %d aborted, %d total\n", approved, aborted, len(tasks))
	fmt.Printf("Spend: $%.4f", spend)
	if team.BudgetCeiling > 0 {
		fmt.Printf(" of $%.2f", team.BudgetCeiling)
	}
	fmt.Println()
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
