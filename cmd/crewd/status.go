package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ghostpirates/crew/internal/state"
	"github.com/ghostpirates/crew/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [team-id]",
	Short: "Show team and task state",
	Long: `Display orchestration state from the database.

Without arguments, lists recent teams. With a team ID, shows that
team's agents, tasks, and spend in detail.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 1 {
		return showTeam(db, args[0])
	}
	return listTeams(db)
}

func listTeams(db *state.DB) error {
	teams, err := db.ListTeams(20)
	if err != nil {
		return err
	}
	if len(teams) == 0 {
		fmt.Println("No teams yet. Run 'crewd run <goal>' to start.")
		return nil
	}

	for _, t := range teams {
		spend, _ := db.TeamSpend(t.ID)
		fmt.Printf("%s  %s  %-9s  $%.4f  %s\n",
			shortID(t.ID),
			t.CreatedAt.Format("2006-01-02 15:04"),
			statusColor(t.Status),
			spend,
			truncate(t.Goal, 60))
	}
	return nil
}

func showTeam(db *state.DB, id string) error {
	team, err := db.GetTeam(id)
	if err != nil {
		return err
	}

	spend, err := db.TeamSpend(team.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Team %s  %s\n", shortID(team.ID), statusColor(team.Status))
	fmt.Printf("Goal: %s\n", team.Goal)
	fmt.Printf("Spend: $%.4f", spend)
	if team.BudgetCeiling > 0 {
		fmt.Printf(" of $%.2f (%.0f%%)", team.BudgetCeiling, spend/team.BudgetCeiling*100)
	}
	fmt.Println()

	agents, err := db.ListAgentsByTeam(team.ID)
	if err != nil {
		return err
	}
	fmt.Printf("\nAgents (%d):\n", len(agents))
	for _, a := range agents {
		role := string(a.Role)
		if a.Specialization != "" {
			role = string(a.Specialization)
		}
		marker := " "
		if !a.Active {
			marker = color.RedString("×")
		}
		fmt.Printf("  %s %s  %-11s  load %d/%d\n", marker, shortID(a.ID), role, a.ActiveTasks, a.Capacity)
	}

	tasks, err := db.ListTasksByTeam(team.ID)
	if err != nil {
		return err
	}
	fmt.Printf("\nTasks (%d):\n", len(tasks))
	for _, t := range tasks {
		line := fmt.Sprintf("  %s  %-12s  %s", shortID(t.ID), taskStatusColor(t.Status), truncate(t.Title, 50))
		if t.QualityScore > 0 {
			line += fmt.Sprintf("  q=%.2f", t.QualityScore)
		}
		if t.RevisionCount > 0 {
			line += fmt.Sprintf("  rev=%d", t.RevisionCount)
		}
		fmt.Println(line)
		if t.AbortReason != "" {
			fmt.Printf("      %s %s\n", color.RedString("reason:"), truncate(t.AbortReason, 70))
		}
	}
	return nil
}

func statusColor(s models.TeamStatus) string {
	switch s {
	case models.TeamStatusCompleted:
		return color.GreenString(string(s))
	case models.TeamStatusAborted:
		return color.RedString(string(s))
	case models.TeamStatusActive:
		return color.CyanString(string(s))
	default:
		return string(s)
	}
}

func taskStatusColor(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusApproved:
		return color.GreenString(string(s))
	case models.TaskStatusAborted:
		return color.RedString(string(s))
	case models.TaskStatusInProgress, models.TaskStatusReview:
		return color.CyanString(string(s))
	default:
		return string(s)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
