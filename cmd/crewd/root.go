package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ghostpirates/crew/internal/state"
)

var rootDBPath string

var rootCmd = &cobra.Command{
	Use:   "crewd",
	Short: "Goal-driven task orchestration engine",
	Long: `Crewd decomposes a high-level goal into a task tree, forms a team of
specialized agents, and drives each task through execution, review, and
revision until the goal is met or the budget runs out.

Core capabilities:
- Decomposes goals into skill-tagged subtasks
- Assigns tasks by skill match, load headroom, and track record
- Checkpoints every step so interrupted work resumes without loss
- Classifies failures and recovers with retry, reassignment, or escalation
- Stops revision loops when marginal returns collapse`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDBPath, "db", "", "Path to the state database (default: XDG data dir)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// openStore opens (and migrates) the state database selected by --db,
// falling back to the default location.
func openStore() (*state.DB, error) {
	path := rootDBPath
	if path == "" {
		path = state.DefaultDBPath()
	}

	db, err := state.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}
