// Package config handles configuration loading and management for crewd.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for crewd.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Team      TeamConfig      `mapstructure:"team"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Review    ReviewConfig    `mapstructure:"review"`
	Analyzer  AnalyzerConfig  `mapstructure:"analyzer"`
	Retention RetentionConfig `mapstructure:"retention"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// UseAWSBedrock routes requests through AWS Bedrock instead of the direct API.
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// TeamConfig holds team formation settings.
type TeamConfig struct {
	// MinWorkers is the minimum team size.
	MinWorkers int `mapstructure:"min_workers"`
	// MaxWorkers is the maximum team size.
	MaxWorkers int `mapstructure:"max_workers"`
	// DefaultCapacity is the per-worker concurrent task capacity.
	DefaultCapacity int `mapstructure:"default_capacity"`
	// DefaultBudget is the default team budget ceiling, 0 for unlimited.
	DefaultBudget float64 `mapstructure:"default_budget"`
	// SpawnWorkers allows the orchestrator to create a new specialized
	// worker when no existing agent holds the required skills.
	SpawnWorkers bool `mapstructure:"spawn_workers"`
	// MinProficiency is the skill floor for assignment eligibility.
	MinProficiency float64 `mapstructure:"min_proficiency"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens a breaker.
	FailureThreshold int `mapstructure:"failure_threshold"`
	// Cooldown is how long an open breaker waits before allowing a trial call.
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// CacheConfig holds tool result cache settings.
type CacheConfig struct {
	// TTL is how long cached tool results stay valid.
	TTL time.Duration `mapstructure:"ttl"`
}

// RetryConfig holds auto-recovery retry settings.
type RetryConfig struct {
	// MaxAttempts is the bounded attempt count for auto-recoverable failures.
	MaxAttempts int `mapstructure:"max_attempts"`
	// BaseDelay is the first backoff delay.
	BaseDelay time.Duration `mapstructure:"base_delay"`
	// Multiplier is the exponential backoff multiplier.
	Multiplier float64 `mapstructure:"multiplier"`
	// Jitter is the fractional jitter applied to each delay (0.2 = ±20%).
	Jitter float64 `mapstructure:"jitter"`
}

// ReviewConfig holds review loop settings.
type ReviewConfig struct {
	// AcceptanceThreshold is the default quality score required for approval.
	AcceptanceThreshold float64 `mapstructure:"acceptance_threshold"`
	// MaxRevisions is the hard revision cap per task.
	MaxRevisions int `mapstructure:"max_revisions"`
}

// AnalyzerConfig holds marginal-return analyzer settings.
type AnalyzerConfig struct {
	// CollapsedRatio is the ROI ratio below which a trend is collapsed.
	CollapsedRatio float64 `mapstructure:"collapsed_ratio"`
	// DiminishingRatio is the ROI ratio below which a trend is diminishing.
	DiminishingRatio float64 `mapstructure:"diminishing_ratio"`
	// ImprovingRatio is the ROI ratio above which a trend is improving.
	ImprovingRatio float64 `mapstructure:"improving_ratio"`
	// StrongAbortROI is the predicted ROI below which the analyzer strongly aborts.
	StrongAbortROI float64 `mapstructure:"strong_abort_roi"`
	// ConsiderAbortROI is the predicted ROI below which aborting is considered.
	ConsiderAbortROI float64 `mapstructure:"consider_abort_roi"`
	// CostCeiling is the absolute per-task cost beyond which continuing is
	// downgraded regardless of trend.
	CostCeiling float64 `mapstructure:"cost_ceiling"`
}

// RetentionConfig holds checkpoint retention settings.
type RetentionConfig struct {
	// KeepCheckpoints is the number of checkpoints retained per task.
	KeepCheckpoints int `mapstructure:"keep_checkpoints"`
	// TerminalAge is how long checkpoints of terminal tasks are retained.
	TerminalAge time.Duration `mapstructure:"terminal_age"`
}

// TimeoutsConfig holds execution timeout settings.
type TimeoutsConfig struct {
	// Tool is the default per-tool invocation timeout.
	Tool time.Duration `mapstructure:"tool"`
	// Completion is the timeout for language-model completion calls.
	Completion time.Duration `mapstructure:"completion"`
}

// Default returns the built-in default configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("team.min_workers", 3)
	v.SetDefault("team.max_workers", 5)
	v.SetDefault("team.default_capacity", 2)
	v.SetDefault("team.default_budget", 0.0)
	v.SetDefault("team.spawn_workers", true)
	v.SetDefault("team.min_proficiency", 0.3)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown", "30s")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.2)
	v.SetDefault("review.acceptance_threshold", 0.75)
	v.SetDefault("review.max_revisions", 5)
	v.SetDefault("analyzer.collapsed_ratio", 0.3)
	v.SetDefault("analyzer.diminishing_ratio", 0.7)
	v.SetDefault("analyzer.improving_ratio", 1.2)
	v.SetDefault("analyzer.strong_abort_roi", 0.05)
	v.SetDefault("analyzer.consider_abort_roi", 0.15)
	v.SetDefault("analyzer.cost_ceiling", 50.0)
	v.SetDefault("retention.keep_checkpoints", 5)
	v.SetDefault("retention.terminal_age", "24h")
	v.SetDefault("timeouts.tool", "2m")
	v.SetDefault("timeouts.completion", "5m")
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, CREW_*)
// 2. Project config (.crew.yaml in current directory or parent)
// 3. User config (~/.config/crew/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(UserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		pv := viper.New()
		pv.SetConfigFile(projectConfig)
		if err := pv.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(pv.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("CREW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// UserConfigDir returns the XDG config directory for crew.
func UserConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "crew")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "crew")
}

// findProjectConfig walks up from the working directory looking for .crew.yaml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".crew.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
