package events

import (
	"github.com/rs/zerolog"
)

// Manager wraps a Bus with structured logging of every emitted event —
// the single place components call to both notify subscribers and leave an
// operator-log trail.
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager over bus.
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Emit publishes a typed event and logs it.
func (m *Manager) Emit(data EventData, module string) {
	m.bus.Emit(Event{Type: data.EventType(), Module: module, Data: data})

	m.log.Info().
		Str("event_type", string(data.EventType())).
		Str("module", module).
		Interface("data", data).
		Msg("event emitted")
}

// EmitError emits a classified ErrorOccurred event.
func (m *Manager) EmitError(module string, errKind string, err error, context map[string]interface{}) {
	m.Emit(&ErrorEventData{ErrKind: errKind, Error: err.Error(), Context: context}, module)
}

// Subscribe returns a channel of future events and an unsubscribe func.
func (m *Manager) Subscribe(bufSize int) (<-chan Event, func()) {
	return m.bus.Subscribe(bufSize)
}
