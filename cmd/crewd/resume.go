package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghostpirates/crew/internal/config"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <team-id>",
	Short: "Resume an interrupted team",
	Long: `Resume a team whose run was interrupted.

Open tasks restart from their latest checkpoint: completed steps are
never redone, and spend already charged stays on the ledger. Terminal
teams are reported as-is.`,
	Args: cobra.ExactArgs(1),
	RunE: resumeTeam,
}

func init() {
	resumeCmd.Flags().StringVar(&runWorkersFile, "workers", "", "Path to a worker template YAML file")
	resumeCmd.Flags().StringVar(&runDebugLog, "debug-log", "", "Path for the debug log file (empty: disabled)")
	resumeCmd.Flags().DurationVar(&runEscalationTimeout, "escalation-timeout", 2*time.Minute, "How long an escalation waits for resolution before aborting")
}

func resumeTeam(cmd *cobra.Command, args []string) error {
	teamID := args[0]

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

	team, runErr := orch.Resume(ctx, teamID)
	orch.Close()
	<-done

	if runErr != nil {
		return fmt.Errorf("resume: %w", runErr)
	}
	return printOutcome(db, team)
}
