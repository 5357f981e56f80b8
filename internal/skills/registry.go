// Package skills tracks per-agent skill proficiencies and task outcome
// history. Proficiencies live in the durable store; outcome counts feed the
// historical-success-rate term of the assignment score.
package skills

import (
	"fmt"
	"sync"

	"github.com/ghostpirates/crew/internal/state"
	"github.com/ghostpirates/crew/pkg/models"
)

// bumpAlpha controls how fast proficiency moves toward 1 on success.
const bumpAlpha = 0.1

// decayAlpha controls how fast proficiency decays toward 0 on failure.
const decayAlpha = 0.05

// outcome holds success/failure counts for one agent-skill pair.
type outcome struct {
	successes int
	failures  int
}

// Registry provides thread-safe lookup and update of agent skills.
type Registry struct {
	store state.AgentStore

	// history maps agentID -> skill -> outcome counts.
	history map[string]map[string]*outcome
	// mu protects history.
	mu sync.RWMutex
}

// NewRegistry creates a Registry backed by the given agent store.
func NewRegistry(store state.AgentStore) *Registry {
	return &Registry{
		store:   store,
		history: make(map[string]map[string]*outcome),
	}
}

// Proficiency returns an agent's proficiency for a skill, 0 if absent.
func (r *Registry) Proficiency(agentID, skill string) (float64, error) {
	a, err := r.store.GetAgent(agentID)
	if err != nil {
		return 0, fmt.Errorf("lookup agent: %w", err)
	}
	return a.Proficiency(skill), nil
}

// RecordOutcome updates an agent's proficiencies and outcome history after a
// task completes. Success nudges each exercised skill toward 1; failure
// decays it toward 0. The updated skills are persisted.
func (r *Registry) RecordOutcome(a *models.Agent, exercised []string, success bool) error {
	if a.Skills == nil {
		a.Skills = make(map[string]float64)
	}
	for _, skill := range exercised {
		prof := a.Skills[skill]
		if success {
			prof += bumpAlpha * (1 - prof)
		} else {
			prof *= 1 - decayAlpha
		}
		a.Skills[skill] = prof
	}

	if err := r.store.UpdateAgentSkills(a.ID, a.Skills); err != nil {
		return fmt.Errorf("persist skills: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	byskill := r.history[a.ID]
	if byskill == nil {
		byskill = make(map[string]*outcome)
		r.history[a.ID] = byskill
	}
	for _, skill := range exercised {
		o := byskill[skill]
		if o == nil {
			o = &outcome{}
			byskill[skill] = o
		}
		if success {
			o.successes++
		} else {
			o.failures++
		}
	}
	return nil
}

// SuccessRate returns the agent's historical success rate across the given
// skills. Skills with no history contribute a neutral 0.5, so new agents are
// neither favored nor penalized.
func (r *Registry) SuccessRate(agentID string, skills []string) float64 {
	if len(skills) == 0 {
		return 0.5
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	byskill := r.history[agentID]
	var sum float64
	for _, skill := range skills {
		rate := 0.5
		if o := byskill[skill]; o != nil && o.successes+o.failures > 0 {
			rate = float64(o.successes) / float64(o.successes+o.failures)
		}
		sum += rate
	}
	return sum / float64(len(skills))
}
