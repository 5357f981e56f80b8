package tools

import (
	"sort"
	"strings"

	"github.com/ghostpirates/crew/pkg/models"
)

// StatsSource supplies historical tool statistics for tie-breaking.
type StatsSource interface {
	// ToolStats returns the historical error rate and average cost of a tool.
	ToolStats(toolID string) (errorRate, avgCost float64, err error)
}

// Selector ranks registered tools against a task's declared requirements.
type Selector struct {
	registry *Registry
	breakers *BreakerRegistry
	stats    StatsSource
}

// NewSelector creates a Selector over the given registry, breaker state,
// and historical stats.
func NewSelector(registry *Registry, breakers *BreakerRegistry, stats StatsSource) *Selector {
	return &Selector{registry: registry, breakers: breakers, stats: stats}
}

// candidate pairs a definition with its computed ranking terms.
type candidate struct {
	def       *models.ToolDefinition
	score     float64
	errorRate float64
	avgCost   float64
}

// FindCandidates returns healthy, permitted, breaker-admissible tools
// ordered by descending requirement overlap. Ties break by lowest
// historical error rate, then by lowest average cost. An empty result is
// not an error: it signals a capability gap the caller must handle.
func (s *Selector) FindCandidates(task *models.Task, agent *models.Agent) []*models.ToolDefinition {
	required := requirementTags(task)

	var cands []candidate
	for _, def := range s.registry.All() {
		if !def.Healthy {
			continue
		}
		if agent != nil && !agent.MayUse(def.Name) {
			continue
		}
		if !s.breakers.Selectable(def.ID) {
			continue
		}

		score := overlapScore(required, def)
		if score <= 0 {
			continue
		}

		errorRate, avgCost := 0.0, 0.0
		if s.stats != nil {
			if er, ac, err := s.stats.ToolStats(def.ID); err == nil {
				errorRate, avgCost = er, ac
			}
		}
		cands = append(cands, candidate{def: def, score: score, errorRate: errorRate, avgCost: avgCost})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		if cands[i].errorRate != cands[j].errorRate {
			return cands[i].errorRate < cands[j].errorRate
		}
		return cands[i].avgCost < cands[j].avgCost
	})

	out := make([]*models.ToolDefinition, len(cands))
	for i, c := range cands {
		out[i] = c.def
	}
	return out
}

// requirementTags collects a task's declared requirement keywords: explicit
// tags plus lowercased title words long enough to carry intent.
func requirementTags(task *models.Task) []string {
	seen := make(map[string]bool)
	var tags []string
	add := func(tag string) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if len(tag) < 3 || seen[tag] {
			return
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	for _, tag := range task.RequiredTags {
		add(tag)
	}
	for _, word := range strings.Fields(task.Title) {
		add(word)
	}
	return tags
}

// overlapScore is the fraction of required tags the tool covers. A tag is
// covered by an exact match or a substring match in either direction, which
// keeps "test" matching "testing" without open-ended semantics.
func overlapScore(required []string, def *models.ToolDefinition) float64 {
	if len(required) == 0 {
		// No declared requirements: every healthy tool is minimally eligible.
		return 0.01
	}

	matched := 0
	for _, req := range required {
		for _, tag := range def.Tags {
			tag = strings.ToLower(tag)
			if tag == req || strings.Contains(tag, req) || strings.Contains(req, tag) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(required))
}
