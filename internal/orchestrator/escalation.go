package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ghostpirates/crew/pkg/models"
)

// ResolutionAction is the human's answer to an escalation.
type ResolutionAction string

const (
	// ResolutionApprove clears the failure; the task resumes from its
	// last checkpoint.
	ResolutionApprove ResolutionAction = "approve"
	// ResolutionClarify supplies extra context and resumes the task.
	ResolutionClarify ResolutionAction = "clarify"
	// ResolutionReassign moves the task to a different worker.
	ResolutionReassign ResolutionAction = "reassign"
	// ResolutionAbort abandons the task.
	ResolutionAbort ResolutionAction = "abort"
)

// EscalationRequest is what the human escalation sink receives.
type EscalationRequest struct {
	TaskID            string
	TeamID            string
	Category          models.FailureCategory
	Priority          models.EscalationPriority
	Intervention      models.InterventionType
	RecommendedAction models.RecoveryAction
	// Evidence is the human-readable failure summary.
	Evidence string
	// SunkCost is the cumulative cost already spent on the task.
	SunkCost float64
}

// EscalationResolution is the asynchronous human response.
type EscalationResolution struct {
	Action ResolutionAction
	// Message carries clarification text or the reassignment target.
	Message   string
	Timestamp time.Time
}

// EscalationHandler hands failures to a human decision-maker and waits
// for an asynchronous resolution. One escalation may be pending per task.
type EscalationHandler struct {
	emitter *EventEmitter
	logger  *DebugLogger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan EscalationResolution
}

// NewEscalationHandler creates an EscalationHandler. A non-positive
// timeout waits indefinitely (until context cancellation).
func NewEscalationHandler(emitter *EventEmitter, logger *DebugLogger, timeout time.Duration) *EscalationHandler {
	return &EscalationHandler{
		emitter: emitter,
		logger:  logger,
		timeout: timeout,
		pending: make(map[string]chan EscalationResolution),
	}
}

// Raise surfaces a failure and blocks until the human resolves it, the
// timeout passes, or ctx is cancelled. Timeout defaults to abort: a task
// nobody answers for should not hold its capacity slot forever.
func (h *EscalationHandler) Raise(ctx context.Context, req EscalationRequest) (EscalationResolution, error) {
	h.mu.Lock()
	if _, exists := h.pending[req.TaskID]; exists {
		h.mu.Unlock()
		return EscalationResolution{}, fmt.Errorf("escalation already pending for task %s", req.TaskID)
	}
	ch := make(chan EscalationResolution, 1)
	h.pending[req.TaskID] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.pending, req.TaskID)
		h.mu.Unlock()
	}()

	h.logger.Log("escalation raised: task=%s category=%s priority=%s intervention=%s",
		req.TaskID, req.Category, req.Priority, req.Intervention)
	h.emitter.Emit(models.Event{
		Type:    models.EventEscalationRaised,
		TeamID:  req.TeamID,
		TaskID:  req.TaskID,
		Payload: fmt.Sprintf("%s/%s: %s", req.Category, req.Intervention, req.Evidence),
	})

	var timeoutCh <-chan time.Time
	if h.timeout > 0 {
		timer := time.NewTimer(h.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-ctx.Done():
		return EscalationResolution{}, ctx.Err()
	case res := <-ch:
		h.logger.Log("escalation resolved: task=%s action=%s", req.TaskID, res.Action)
		return res, nil
	case <-timeoutCh:
		h.logger.Log("escalation timed out for task %s, defaulting to abort", req.TaskID)
		return EscalationResolution{
			Action:    ResolutionAbort,
			Message:   fmt.Sprintf("no response within %s", h.timeout),
			Timestamp: time.Now(),
		}, nil
	}
}

// Resolve delivers the human's answer to a pending escalation.
func (h *EscalationHandler) Resolve(taskID string, res EscalationResolution) error {
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now()
	}

	h.mu.Lock()
	ch, ok := h.pending[taskID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("no escalation pending for task %s", taskID)
	}

	select {
	case ch <- res:
		return nil
	default:
		return fmt.Errorf("escalation for task %s already resolved", taskID)
	}
}

// Pending lists task IDs with an unresolved escalation.
func (h *EscalationHandler) Pending() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.pending))
	for id := range h.pending {
		ids = append(ids, id)
	}
	return ids
}
