// Package orchestrator coordinates teams: goal decomposition, assignment,
// dispatch, review, and recovery.
package orchestrator

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ghostpirates/crew/internal/state"
	"github.com/ghostpirates/crew/pkg/models"
)

// EventEmitter persists audit events and fans them out to subscribers.
// Persistence is unconditional; the subscriber channel is best-effort and
// drops under sustained backpressure rather than stalling orchestration.
type EventEmitter struct {
	store        state.EventStore
	events       chan models.Event
	droppedCount atomic.Uint64
	logger       *DebugLogger
}

// NewEventEmitter creates an EventEmitter with the given buffer size.
func NewEventEmitter(store state.EventStore, bufferSize int, logger *DebugLogger) *EventEmitter {
	return &EventEmitter{
		store:  store,
		events: make(chan models.Event, bufferSize),
		logger: logger,
	}
}

// Emit appends the event to the audit log and offers it to subscribers.
// If the channel is full it retries briefly, then drops the event.
func (e *EventEmitter) Emit(ev models.Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	if e.store != nil {
		if err := e.store.AppendEvent(&ev); err != nil {
			e.logger.Log("event append failed: type=%s task=%s: %v", ev.Type, ev.TaskID, err)
		}
	}

	select {
	case e.events <- ev:
		return
	default:
	}

	select {
	case e.events <- ev:
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // log every 10th drop to avoid spam
			log.Printf("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, ev.Type)
		}
	}
}

// DroppedCount returns the total number of events dropped from the
// subscriber channel. Persisted events are never dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events for subscribers.
func (e *EventEmitter) Events() <-chan models.Event {
	return e.events
}

// Close closes the subscriber channel.
func (e *EventEmitter) Close() {
	close(e.events)
}
