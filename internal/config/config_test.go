package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("breaker threshold = %d, want 5", cfg.Breaker.FailureThreshold)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("cache TTL = %v, want 24h", cfg.Cache.TTL)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("retry max attempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != time.Second {
		t.Errorf("retry base delay = %v, want 1s", cfg.Retry.BaseDelay)
	}
	if cfg.Retry.Jitter != 0.2 {
		t.Errorf("retry jitter = %v, want 0.2", cfg.Retry.Jitter)
	}
	if cfg.Retention.KeepCheckpoints != 5 {
		t.Errorf("keep checkpoints = %d, want 5", cfg.Retention.KeepCheckpoints)
	}
	if cfg.Team.MinWorkers != 3 || cfg.Team.MaxWorkers != 5 {
		t.Errorf("team size bounds = %d-%d, want 3-5", cfg.Team.MinWorkers, cfg.Team.MaxWorkers)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
breaker:
  failure_threshold: 7
  cooldown: 1m
review:
  acceptance_threshold: 0.9
  max_revisions: 3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Breaker.FailureThreshold != 7 {
		t.Errorf("breaker threshold = %d, want 7", cfg.Breaker.FailureThreshold)
	}
	if cfg.Breaker.Cooldown != time.Minute {
		t.Errorf("cooldown = %v, want 1m", cfg.Breaker.Cooldown)
	}
	if cfg.Review.AcceptanceThreshold != 0.9 {
		t.Errorf("acceptance threshold = %v, want 0.9", cfg.Review.AcceptanceThreshold)
	}
	// Unset values keep defaults
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("retry max attempts = %d, want default 3", cfg.Retry.MaxAttempts)
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("breaker:\n  failure_threshold: 5\n"), 0644); err != nil {
		t.Fatal(err)
	}

	loaded := make(chan *Config, 1)
	w, err := NewWatcher(path, Default(), func(cfg *Config) {
		select {
		case loaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("breaker:\n  failure_threshold: 9\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-loaded:
		if cfg.Breaker.FailureThreshold != 9 {
			t.Errorf("reloaded threshold = %d, want 9", cfg.Breaker.FailureThreshold)
		}
		if w.Current().Breaker.FailureThreshold != 9 {
			t.Errorf("Current() threshold = %d, want 9", w.Current().Breaker.FailureThreshold)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestLoadWorkerSpecs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crew.yaml")
	content := `
workers:
  - specialization: coder
    skills:
      coding: 0.9
      debugging: 0.6
    required_tools: [code_exec, file_io]
    capacity: 3
  - specialization: tester
    skills:
      testing: 0.8
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	specs, err := LoadWorkerSpecs(path)
	if err != nil {
		t.Fatalf("LoadWorkerSpecs: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}
	if specs[0].Skills["coding"] != 0.9 {
		t.Errorf("coding proficiency = %v, want 0.9", specs[0].Skills["coding"])
	}
	if specs[0].Capacity != 3 {
		t.Errorf("capacity = %d, want 3", specs[0].Capacity)
	}
}

func TestLoadWorkerSpecsRejectsBadProficiency(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crew.yaml")
	content := `
workers:
  - specialization: coder
    skills:
      coding: 1.5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadWorkerSpecs(path); err == nil {
		t.Error("expected error for proficiency out of range")
	}
}

func TestLoadWorkerSpecsRejectsUnknownSpecialization(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crew.yaml")
	content := `
workers:
  - specialization: wizard
    skills:
      magic: 0.9
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadWorkerSpecs(path); err == nil {
		t.Error("expected error for unknown specialization")
	}
}
