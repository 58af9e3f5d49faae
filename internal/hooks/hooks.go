// Package hooks lets users react to colloquy lifecycle events: discussions
// being created or reloaded, welcome messages stored, language packs
// generated, clients coming and going, and the gateway starting or stopping.
package hooks

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/colloquy/internal/logging"
)

// Event names for the hook system.
const (
	EventDiscussionCreated   = "discussion_created"
	EventDiscussionLoaded    = "discussion_loaded"
	EventMessageAdded        = "message_added"
	EventLanguagePackCreated = "language_pack_created"
	EventClientConnected     = "client_connected"
	EventClientDisconnected  = "client_disconnected"
	EventGatewayStart        = "gateway_start"
	EventGatewayStop         = "gateway_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventDiscussionCreated,
	EventDiscussionLoaded,
	EventMessageAdded,
	EventLanguagePackCreated,
	EventClientConnected,
	EventClientDisconnected,
	EventGatewayStart,
	EventGatewayStop,
}

// Known reports whether event is one colloquy emits.
func Known(event string) bool {
	return slices.Contains(AllEvents, event)
}

// Payload is what a handler receives; command hooks read it as JSON on stdin.
type Payload struct {
	Event string         `json:"event"`
	Time  time.Time      `json:"time"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler reacts to one event. Errors are logged by the Manager and never
// reach the code that emitted the event.
type Handler func(ctx context.Context, p Payload) error

type registration struct {
	name string
	fn   Handler
}

// Manager fans events out to handlers. The zero *Manager (nil) swallows
// everything, so optional components can emit unconditionally.
type Manager struct {
	mu    sync.RWMutex
	byEvt map[string][]registration
	wg    sync.WaitGroup
	now   func() time.Time
	log   *logging.Logger
}

func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		byEvt: map[string][]registration{},
		now:   time.Now,
		log:   log.Sub("hooks"),
	}
}

// On registers fn for event. Unknown event names are allowed with a warning.
func (m *Manager) On(event, name string, fn Handler) {
	if !Known(event) {
		m.log.Warn().Str("event", event).Str("handler", name).Msg("hook registered for unknown event")
	}
	m.mu.Lock()
	m.byEvt[event] = append(m.byEvt[event], registration{name: name, fn: fn})
	m.mu.Unlock()
}

// Count reports how many handlers event has.
func (m *Manager) Count(event string) int {
	return len(m.snapshot(event))
}

func (m *Manager) snapshot(event string) []registration {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.byEvt[event])
}

// Emit runs event's handlers in registration order and waits for them.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	m.dispatch(ctx, event, data, false)
}

// EmitAsync runs each handler on its own goroutine. Wait drains them.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	m.dispatch(ctx, event, data, true)
}

func (m *Manager) dispatch(ctx context.Context, event string, data map[string]any, async bool) {
	regs := m.snapshot(event)
	if len(regs) == 0 {
		return
	}
	p := Payload{Event: event, Time: m.now(), Data: data}
	for _, r := range regs {
		if !async {
			m.call(ctx, r, p)
			continue
		}
		m.wg.Go(func() { m.call(ctx, r, p) })
	}
}

func (m *Manager) call(ctx context.Context, r registration, p Payload) {
	err := r.fn(ctx, p)
	if err == nil {
		return
	}
	m.log.Warn().Err(err).Str("event", p.Event).Str("handler", r.name).Msg("hook failed")
}

// Wait returns once every handler started by EmitAsync has finished.
func (m *Manager) Wait() {
	if m != nil {
		m.wg.Wait()
	}
}
