package calibration

import (
	"sync"
	"time"

	"github.com/simon020286/go-calibration/models"
)

// eventBus manages event distribution to registered listeners (private).
// Listeners are called synchronously, in registration order, so the log
// stream follows execution order.
type eventBus struct {
	listeners []models.EventListener
	mutex     sync.RWMutex
	now       func() time.Time
}

// newEventBus creates a new eventBus instance (private)
func newEventBus(now func() time.Time) *eventBus {
	if now == nil {
		now = time.Now
	}
	return &eventBus{
		listeners: make([]models.EventListener, 0),
		now:       now,
	}
}

// addListener registers a new listener
func (eb *eventBus) addListener(listener models.EventListener) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	eb.listeners = append(eb.listeners, listener)
}

// Emit sends an event to all registered listeners
func (eb *eventBus) Emit(eventType models.EventType, data map[string]interface{}) {
	eb.mutex.RLock()
	listeners := make([]models.EventListener, len(eb.listeners))
	copy(listeners, eb.listeners)
	eb.mutex.RUnlock()

	event := models.Event{
		Type:      eventType,
		Timestamp: eb.now(),
		Data:      data,
	}

	for _, listener := range listeners {
		listener.OnEvent(event)
	}
}

// EmitSessionStarted emits a session start event
func (eb *eventBus) EmitSessionStarted(station, uri string) {
	eb.Emit(models.EventSessionStarted, map[string]interface{}{
		"station": station,
		"uri":     uri,
	})
}

// EmitSessionCompleted emits a session completion event
func (eb *eventBus) EmitSessionCompleted(duration time.Duration) {
	eb.Emit(models.EventSessionCompleted, map[string]interface{}{
		"duration": duration,
	})
}

// EmitSessionFailed emits a session failure event
func (eb *eventBus) EmitSessionFailed(err error) {
	eb.Emit(models.EventSessionFailed, map[string]interface{}{
		"error": err,
	})
}

// EmitStepStarted emits a step attempt start event
func (eb *eventBus) EmitStepStarted(ordinal int, name string, attempt int) {
	eb.Emit(models.EventStepStarted, map[string]interface{}{
		"ordinal":   ordinal,
		"procedure": name,
		"attempt":   attempt,
	})
}

// EmitStepFinished emits a step attempt completion event
func (eb *eventBus) EmitStepFinished(ordinal int, name string, attempt int, result models.Result, duration time.Duration) {
	eb.Emit(models.EventStepFinished, map[string]interface{}{
		"ordinal":      ordinal,
		"procedure":    name,
		"attempt":      attempt,
		"passed":       result.Passed,
		"reason":       result.Reason,
		"measurements": result.Measurements,
		"duration":     duration,
	})
}

// EmitStepRetrying emits a retry event, sent before the recovery action
func (eb *eventBus) EmitStepRetrying(ordinal int, attempt int, reason error) {
	eb.Emit(models.EventStepRetrying, map[string]interface{}{
		"ordinal": ordinal,
		"attempt": attempt,
		"reason":  reason,
	})
}

// EmitStepExhausted emits the event sent when a step used all its attempts
func (eb *eventBus) EmitStepExhausted(ordinal int, attempts int, reason error) {
	eb.Emit(models.EventStepExhausted, map[string]interface{}{
		"ordinal":  ordinal,
		"attempts": attempts,
		"reason":   reason,
	})
}

// EmitRecoveryFailed emits a recovery error event
func (eb *eventBus) EmitRecoveryFailed(ordinal int, err error) {
	eb.Emit(models.EventRecoveryFailed, map[string]interface{}{
		"ordinal": ordinal,
		"error":   err,
	})
}
