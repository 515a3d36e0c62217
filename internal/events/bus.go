// Package events implements TaskForge's in-process event bus (spec.md §6):
// the fixed channel list every engine emits lifecycle notifications on,
// consumed by internal/orchestration and optionally relayed over a
// websocket (ws.go).
package events

import "sync"

// Channel names the fixed event channel list of spec.md §6.
type Channel string

const (
	TaskSubmitted     Channel = "taskSubmitted"
	TaskAssigned      Channel = "taskAssigned"
	ExecutionCompleted Channel = "executionCompleted"
	ExecutionCancelled Channel = "executionCancelled"
	TaskTimeout       Channel = "taskTimeout"
	TaskWarning       Channel = "taskWarning"
	ExecutionRetry    Channel = "executionRetry"
	AgentRegistered   Channel = "agentRegistered"
	AgentUnregistered Channel = "agentUnregistered"
	AgentStatusUpdated Channel = "agentStatusUpdated"
	LockAcquired      Channel = "lockAcquired"
	LockReleased      Channel = "lockReleased"
	SecurityEvent     Channel = "securityEvent"
	BackupCreated     Channel = "backupCreated"
	MetricsCollected  Channel = "metricsCollected"
	GraphReady        Channel = "graph.ready"        // not emitted or subscribed to; orchestration glue polls Graph.ReadyTasks instead
	ReplanSuggested   Channel = "replanSuggested"     // SPEC_FULL.md §12 supplemented feature
)

// Event is one notification carried on the bus.
type Event struct {
	Channel Channel
	Payload map[string]any
}

// Handler receives events published on channels it subscribed to.
type Handler func(Event)

// Bus is a minimal in-process pub/sub: Emit fans an event out to every
// subscriber of its channel, synchronously and in subscription order.
// Grounded on the teacher's own event-shape conventions (string channel +
// map payload) rather than a generic typed-channel library, since no pack
// repo imports a dedicated in-process pub/sub package for this shape —
// channels/mutexes are idiomatic enough that the ecosystem doesn't offer
// much beyond what's here.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Channel][]Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Channel][]Handler)}
}

// Subscribe registers h to be called for every event emitted on ch.
func (b *Bus) Subscribe(ch Channel, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[ch] = append(b.handlers[ch], h)
}

// Emit publishes an event, invoking every subscriber of its channel.
func (b *Bus) Emit(ch Channel, payload map[string]any) {
	b.mu.RLock()
	handlers := append([]Handler{}, b.handlers[ch]...)
	b.mu.RUnlock()
	event := Event{Channel: ch, Payload: payload}
	for _, h := range handlers {
		h(event)
	}
}
