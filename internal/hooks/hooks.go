// Package hooks dispatches scoutbot lifecycle events to in-process handlers
// and configured shell commands.
package hooks

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/scoutbot/internal/logging"
)

// Event names for the hook system.
const (
	EventSessionStart    = "session_start"
	EventSessionEnd      = "session_end"
	EventPipelineStart   = "pipeline_start"
	EventPipelineDone    = "pipeline_done"
	EventReportDelivered = "report_delivered"
	EventGatewayStart    = "gateway_start"
	EventGatewayStop     = "gateway_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventSessionStart,
	EventSessionEnd,
	EventPipelineStart,
	EventPipelineDone,
	EventReportDelivered,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload carries event data to hook handlers. Data keys are event specific;
// dialogue events always carry "user".
type Payload struct {
	Event string         `json:"event"`
	At    time.Time      `json:"at,omitzero"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler handles one hook event. A returned error or a panic is logged and
// does not stop the other handlers.
type Handler func(ctx context.Context, p Payload) error

// Manager keeps the handlers of each event and dispatches to them.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	inflight sync.WaitGroup
	now      func() time.Time
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		now:      time.Now,
		log:      log.Sub("hooks"),
	}
}

// On registers handler for event under name.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes every handler called name from event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := slices.DeleteFunc(slices.Clone(m.handlers[event]), func(h namedHandler) bool {
		return h.name == name
	})
	if len(kept) == 0 {
		delete(m.handlers, event)
		return
	}
	m.handlers[event] = kept
}

// snapshot returns the handlers of event and the payload to hand them, or
// nil when nobody listens.
func (m *Manager) snapshot(event string, data map[string]any) ([]namedHandler, Payload) {
	m.mu.RLock()
	handlers := slices.Clone(m.handlers[event])
	m.mu.RUnlock()
	return handlers, Payload{Event: event, At: m.now().UTC(), Data: data}
}

// Emit runs the handlers of event one after another in registration order.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	handlers, payload := m.snapshot(event, data)
	for _, h := range handlers {
		m.call(ctx, h, payload)
	}
}

// EmitAsync runs every handler of event on its own goroutine and returns
// immediately. Wait blocks until they are done.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	handlers, payload := m.snapshot(event, data)
	for _, h := range handlers {
		m.inflight.Add(1)
		go func(h namedHandler) {
			defer m.inflight.Done()
			m.call(ctx, h, payload)
		}(h)
	}
}

// Wait blocks until every handler started by EmitAsync has returned.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

func (m *Manager) call(ctx context.Context, h namedHandler, p Payload) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return h.handler(ctx, p)
	}()
	if err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", h.name).
			Msg("hook handler failed")
	}
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the events with at least one handler, sorted.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	slices.Sort(events)
	return events
}
