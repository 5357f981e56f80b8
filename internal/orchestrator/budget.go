package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghostpirates/crew/internal/analyzer"
	"github.com/ghostpirates/crew/internal/state"
	"github.com/ghostpirates/crew/pkg/models"
)

// ErrInsufficientBudget rejects a dispatch whose estimated cost exceeds
// the team's remaining budget.
var ErrInsufficientBudget = errors.New("insufficient remaining budget")

// BudgetGuard serializes budget decisions per team so two concurrently
// dispatched tasks cannot jointly overspend the ceiling. The ledger append
// re-checks the ceiling transactionally; the per-team lock closes the gap
// between the estimate check and the append.
type BudgetGuard struct {
	ledger  state.LedgerStore
	emitter *EventEmitter

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewBudgetGuard creates a BudgetGuard over the given ledger.
func NewBudgetGuard(ledger state.LedgerStore) *BudgetGuard {
	return &BudgetGuard{ledger: ledger, locks: make(map[string]*sync.Mutex)}
}

// teamLock returns the mutex serializing decisions for one team.
func (g *BudgetGuard) teamLock(teamID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.locks[teamID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[teamID] = lock
	}
	return lock
}

// Remaining returns the team's budget headroom. Unlimited budgets report
// ok=false.
func (g *BudgetGuard) Remaining(team *models.Team) (float64, bool, error) {
	if team.BudgetCeiling <= 0 {
		return 0, false, nil
	}
	spent, err := g.ledger.TeamSpend(team.ID)
	if err != nil {
		return 0, false, fmt.Errorf("team %s spend: %w", team.ID, err)
	}
	return team.BudgetCeiling - spent, true, nil
}

// Authorize checks pre-dispatch that an estimated cost fits the team's
// remaining budget. It does not charge anything; the actual spend is
// metered by the executor as the work happens.
func (g *BudgetGuard) Authorize(team *models.Team, estimated float64) error {
	lock := g.teamLock(team.ID)
	lock.Lock()
	defer lock.Unlock()

	remaining, bounded, err := g.Remaining(team)
	if err != nil {
		return err
	}
	if bounded && estimated > remaining {
		return fmt.Errorf("estimated %.2f exceeds remaining %.2f: %w", estimated, remaining, ErrInsufficientBudget)
	}
	return nil
}

// AuthorizeRevision decides whether another revision is affordable: the
// estimated cost to close the quality gap, projected from the revision
// history, must fit the remaining budget. Overrides a favorable ROI trend.
func (g *BudgetGuard) AuthorizeRevision(team *models.Team, task *models.Task, history []models.RevisionRecord) error {
	lock := g.teamLock(team.ID)
	lock.Lock()
	defer lock.Unlock()

	remaining, bounded, err := g.Remaining(team)
	if err != nil {
		return err
	}
	if !bounded {
		return nil
	}

	estimated, ok := analyzer.EstimateCostToThreshold(task.QualityScore, task.AcceptanceThreshold, history)
	if !ok {
		// No measurable gain yet; charge at least one average revision.
		estimated = averageRevisionCost(history)
	}
	if estimated > remaining {
		return fmt.Errorf("estimated %.2f exceeds remaining %.2f: %w", estimated, remaining, ErrInsufficientBudget)
	}
	return nil
}

// Charge appends a direct cost entry for work done outside the tool
// executor, such as manager completion calls. The append is rejected by
// the ledger if it would push the team over its ceiling.
func (g *BudgetGuard) Charge(teamID, taskID string, amount float64, description string) error {
	if amount <= 0 {
		return nil
	}
	lock := g.teamLock(teamID)
	lock.Lock()
	defer lock.Unlock()

	if err := g.ledger.AppendCost(&models.CostEntry{
		ID:          uuid.New().String(),
		TeamID:      teamID,
		TaskID:      taskID,
		Amount:      amount,
		Description: description,
		CreatedAt:   time.Now(),
	}); err != nil {
		return err
	}
	if g.emitter != nil {
		g.emitter.Emit(models.Event{
			Type:    models.EventCostRecorded,
			TeamID:  teamID,
			TaskID:  taskID,
			Payload: fmt.Sprintf("%s: $%.4f", description, amount),
		})
	}
	return nil
}

// averageRevisionCost returns the mean revision cost, or a small floor
// when there is no history to project from.
func averageRevisionCost(history []models.RevisionRecord) float64 {
	if len(history) == 0 {
		return 0.01
	}
	var total float64
	for _, r := range history {
		total += r.Cost
	}
	return total / float64(len(history))
}
