package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ghostpirates/crew/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show resolved configuration",
	Long: `Display the resolved configuration.

Without arguments, displays all values. With a key (dot notation, e.g.
review.max_revisions), displays that value only.

Configuration merges built-in defaults, the user config file, a
project-local .crew.yaml, and CREW_* environment variables.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if len(args) == 1 {
			value, err := configValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		}

		displayAllConfig(cfg)
		fmt.Printf("\nEdit %s to change settings.\n", filepath.Join(config.UserConfigDir(), "config.yaml"))
		return nil
	},
}

func displayAllConfig(cfg *config.Config) {
	keys := []string{
		"anthropic.api_key",
		"anthropic.model",
		"anthropic.use_aws_bedrock",
		"team.min_workers",
		"team.max_workers",
		"team.default_capacity",
		"team.default_budget",
		"team.spawn_workers",
		"team.min_proficiency",
		"breaker.failure_threshold",
		"breaker.cooldown",
		"cache.ttl",
		"retry.max_attempts",
		"retry.base_delay",
		"retry.multiplier",
		"review.acceptance_threshold",
		"review.max_revisions",
		"analyzer.strong_abort_roi",
		"analyzer.consider_abort_roi",
		"analyzer.cost_ceiling",
		"timeouts.tool",
		"timeouts.completion",
	}
	for _, key := range keys {
		value, _ := configValue(cfg, key)
		fmt.Printf("%s: %s\n", key, value)
	}
}

// configValue resolves a dot-notation key against the config. The API key
// is always masked.
func configValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		if cfg.Anthropic.APIKey == "" {
			if os.Getenv("ANTHROPIC_API_KEY") != "" {
				return "**** (from environment)", nil
			}
			return "(not set)", nil
		}
		return "****", nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.use_aws_bedrock":
		return fmt.Sprintf("%t", cfg.Anthropic.UseAWSBedrock), nil
	case "team.min_workers":
		return fmt.Sprintf("%d", cfg.Team.MinWorkers), nil
	case "team.max_workers":
		return fmt.Sprintf("%d", cfg.Team.MaxWorkers), nil
	case "team.default_capacity":
		return fmt.Sprintf("%d", cfg.Team.DefaultCapacity), nil
	case "team.default_budget":
		return fmt.Sprintf("%g", cfg.Team.DefaultBudget), nil
	case "team.spawn_workers":
		return fmt.Sprintf("%t", cfg.Team.SpawnWorkers), nil
	case "team.min_proficiency":
		return fmt.Sprintf("%g", cfg.Team.MinProficiency), nil
	case "breaker.failure_threshold":
		return fmt.Sprintf("%d", cfg.Breaker.FailureThreshold), nil
	case "breaker.cooldown":
		return cfg.Breaker.Cooldown.String(), nil
	case "cache.ttl":
		return cfg.Cache.TTL.String(), nil
	case "retry.max_attempts":
		return fmt.Sprintf("%d", cfg.Retry.MaxAttempts), nil
	case "retry.base_delay":
		return cfg.Retry.BaseDelay.String(), nil
	case "retry.multiplier":
		return fmt.Sprintf("%g", cfg.Retry.Multiplier), nil
	case "retry.jitter":
		return fmt.Sprintf("%g", cfg.Retry.Jitter), nil
	case "review.acceptance_threshold":
		return fmt.Sprintf("%g", cfg.Review.AcceptanceThreshold), nil
	case "review.max_revisions":
		return fmt.Sprintf("%d", cfg.Review.MaxRevisions), nil
	case "analyzer.collapsed_ratio":
		return fmt.Sprintf("%g", cfg.Analyzer.CollapsedRatio), nil
	case "analyzer.diminishing_ratio":
		return fmt.Sprintf("%g", cfg.Analyzer.DiminishingRatio), nil
	case "analyzer.improving_ratio":
		return fmt.Sprintf("%g", cfg.Analyzer.ImprovingRatio), nil
	case "analyzer.strong_abort_roi":
		return fmt.Sprintf("%g", cfg.Analyzer.StrongAbortROI), nil
	case "analyzer.consider_abort_roi":
		return fmt.Sprintf("%g", cfg.Analyzer.ConsiderAbortROI), nil
	case "analyzer.cost_ceiling":
		return fmt.Sprintf("%g", cfg.Analyzer.CostCeiling), nil
	case "retention.keep_checkpoints":
		return fmt.Sprintf("%d", cfg.Retention.KeepCheckpoints), nil
	case "retention.terminal_age":
		return cfg.Retention.TerminalAge.String(), nil
	case "timeouts.tool":
		return cfg.Timeouts.Tool.String(), nil
	case "timeouts.completion":
		return cfg.Timeouts.Completion.String(), nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}
