// Package analyzer computes marginal-return trends over a task's revision
// history and recommends whether further revisions are worth their cost.
package analyzer

import (
	"fmt"

	"github.com/ghostpirates/crew/internal/config"
	"github.com/ghostpirates/crew/internal/state"
	"github.com/ghostpirates/crew/pkg/models"
)

// Trend classifies the direction of successive revision returns.
type Trend string

const (
	TrendImproving   Trend = "improving"
	TrendStable      Trend = "stable"
	TrendDiminishing Trend = "diminishing"
	TrendCollapsed   Trend = "collapsed"
)

// Decision is the analyzer's verdict on continuing revisions.
type Decision string

const (
	DecisionContinueRevisions Decision = "continue_revisions"
	DecisionConsiderAborting  Decision = "consider_aborting"
	DecisionStronglyAbort     Decision = "strongly_abort"
	DecisionAbandon           Decision = "abandon"
)

// Recommendation is the full output of one analysis pass.
type Recommendation struct {
	TaskID string
	Trend  Trend
	// LatestROI is the quality gained per unit cost on the newest revision.
	LatestROI float64
	// PredictedNextROI projects the trend ratio onto the latest ROI.
	PredictedNextROI float64
	// CumulativeCost is the total cost across all revisions.
	CumulativeCost float64
	Decision       Decision
	Reason         string
}

// Analyzer evaluates revision histories against fixed ROI thresholds.
type Analyzer struct {
	cfg   config.AnalyzerConfig
	tasks state.TaskStore
}

// New creates an Analyzer reading revision history from the task store.
func New(cfg config.AnalyzerConfig, tasks state.TaskStore) *Analyzer {
	return &Analyzer{cfg: cfg, tasks: tasks}
}

// Analyze loads a task's revision history and recommends whether to keep
// revising. A task with fewer than two revisions has no trend yet and is
// allowed to continue.
func (a *Analyzer) Analyze(taskID string) (*Recommendation, error) {
	history, err := a.tasks.ListRevisions(taskID)
	if err != nil {
		return nil, fmt.Errorf("load revisions for %s: %w", taskID, err)
	}
	rec := a.Evaluate(history)
	rec.TaskID = taskID
	return rec, nil
}

// Evaluate applies the trend classification and decision ladder to an
// ordered revision history. Deterministic: same history, same output.
func (a *Analyzer) Evaluate(history []models.RevisionRecord) *Recommendation {
	rec := &Recommendation{Trend: TrendStable, Decision: DecisionContinueRevisions}
	for _, r := range history {
		rec.CumulativeCost += r.Cost
	}
	if len(history) == 0 {
		rec.Reason = "no revisions yet"
		return rec
	}

	rec.LatestROI = history[len(history)-1].ROI()
	if len(history) == 1 {
		rec.PredictedNextROI = rec.LatestROI
		rec.Reason = "single revision, no trend"
		return a.applyLadder(rec)
	}

	prev := history[len(history)-2].ROI()
	ratio := trendRatio(prev, rec.LatestROI)
	rec.Trend = classifyTrend(a.cfg, ratio)
	rec.PredictedNextROI = ratio * rec.LatestROI
	return a.applyLadder(rec)
}

// applyLadder walks the decision rules in order. The first matching rule
// wins; the cost ceiling can only downgrade a continue verdict.
func (a *Analyzer) applyLadder(rec *Recommendation) *Recommendation {
	switch {
	case rec.Trend == TrendCollapsed:
		rec.Decision = DecisionAbandon
		rec.Reason = "returns collapsed"
	case rec.PredictedNextROI < a.cfg.StrongAbortROI:
		rec.Decision = DecisionStronglyAbort
		rec.Reason = fmt.Sprintf("predicted ROI %.3f below strong-abort floor", rec.PredictedNextROI)
	case rec.PredictedNextROI < a.cfg.ConsiderAbortROI:
		rec.Decision = DecisionConsiderAborting
		rec.Reason = fmt.Sprintf("predicted ROI %.3f below consider-abort floor", rec.PredictedNextROI)
	default:
		rec.Decision = DecisionContinueRevisions
		rec.Reason = "returns justify another revision"
		if a.cfg.CostCeiling > 0 && rec.CumulativeCost > a.cfg.CostCeiling {
			rec.Decision = DecisionConsiderAborting
			rec.Reason = fmt.Sprintf("cumulative cost %.2f exceeds ceiling %.2f", rec.CumulativeCost, a.cfg.CostCeiling)
		}
	}
	return rec
}

// trendRatio compares the latest ROI to the one before it. A non-positive
// previous ROI means the latest sets the direction on its own.
func trendRatio(prev, latest float64) float64 {
	if prev <= 0 {
		if latest > 0 {
			return 2 // recovered from a dead revision
		}
		return 0
	}
	return latest / prev
}

func classifyTrend(cfg config.AnalyzerConfig, ratio float64) Trend {
	switch {
	case ratio < cfg.CollapsedRatio:
		return TrendCollapsed
	case ratio < cfg.DiminishingRatio:
		return TrendDiminishing
	case ratio > cfg.ImprovingRatio:
		return TrendImproving
	default:
		return TrendStable
	}
}

// EstimateCostToThreshold projects how much more spend is needed to close
// the quality gap, using average per-revision gain and cost over the
// history. Returns false when the history shows no positive gain, meaning
// no finite estimate exists.
func EstimateCostToThreshold(current, threshold float64, history []models.RevisionRecord) (float64, bool) {
	gap := threshold - current
	if gap <= 0 {
		return 0, true
	}
	if len(history) == 0 {
		return 0, false
	}
	var totalGain, totalCost float64
	for _, r := range history {
		totalGain += r.QualityAfter - r.QualityBefore
		totalCost += r.Cost
	}
	if totalGain <= 0 {
		return 0, false
	}
	avgGain := totalGain / float64(len(history))
	avgCost := totalCost / float64(len(history))
	revisions := gap / avgGain
	return revisions * avgCost, true
}
