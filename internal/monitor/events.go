package monitor

import (
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-heal/internal/models"
)

// EventKind names a pipeline notification.
type EventKind string

const (
	EventCaptured EventKind = "captured"
	EventAlert    EventKind = "alert"
	EventResolved EventKind = "resolved"
	EventFlush    EventKind = "flush"
)

// Event is delivered to subscribed listeners.
type Event struct {
	Kind       EventKind
	Time       time.Time
	Record     *models.ErrorRecord
	Correction *models.CorrectionResult
	// Flushed is the number of records persisted by a flush event.
	Flushed int
	Err     error
}

// Listener receives pipeline events. Calls are synchronous; slow listeners
// delay the caller.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function into a Listener.
type ListenerFunc func(Event)

// OnEvent implements Listener.
func (f ListenerFunc) OnEvent(e Event) { f(e) }

// Subscribe registers l and returns a function that removes it.
func (o *Orchestrator) Subscribe(l Listener) func() {
	o.listenersMu.Lock()
	id := o.nextListener
	o.nextListener++
	o.listeners[id] = l
	o.listenersMu.Unlock()

	return func() {
		o.listenersMu.Lock()
		delete(o.listeners, id)
		o.listenersMu.Unlock()
	}
}

func (o *Orchestrator) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = o.now()
	}
	o.listenersMu.RLock()
	listeners := make([]Listener, 0, len(o.listeners))
	for _, l := range o.listeners {
		listeners = append(listeners, l)
	}
	o.listenersMu.RUnlock()

	for _, l := range listeners {
		o.deliver(l, e)
	}
}

func (o *Orchestrator) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("listener panicked",
				slog.String("event", string(e.Kind)),
				slog.Any("panic", r))
		}
	}()
	l.OnEvent(e)
}
