package security

import (
	"sync"
	"time"

	"taskforge/internal/logging"
)

// EventType classifies an audit event. Adapted from the teacher's
// AuditEventType (internal/logging/audit.go), trimmed from the coding
// agent's Mangle-predicate-shaped taxonomy down to the Security Gate's own
// concerns (spec.md §4.1).
type EventType string

const (
	EventSecurity EventType = "security"
	EventLock     EventType = "lock"
	EventStorage  EventType = "storage"
)

// Severity ranks an audit event; SeverityHigh events are also logged at
// Warn level. GC drops old events of every severity alike.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Event is one append-only audit record.
type Event struct {
	Type      EventType
	Severity  Severity
	Action    string
	Result    string
	Details   map[string]any
	Timestamp time.Time
}

// AuditLog is an append-only ring with daily GC of events older than the
// configured retention window.
type AuditLog struct {
	mu            sync.Mutex
	events        []Event
	retentionDays int
	log           *logging.Logger
}

// NewAuditLog builds an audit ring with the given retention window in days.
func NewAuditLog(retentionDays int) *AuditLog {
	return &AuditLog{
		retentionDays: retentionDays,
		log:           logging.Get(logging.CategorySecurity),
	}
}

// Log appends an audit event and mirrors it to the security logger;
// severities above SeverityMedium are also logged at Warn level
// (spec.md §7: "violations and failures above severity medium are audited").
func (a *AuditLog) Log(typ EventType, sev Severity, action, result string, details map[string]any) {
	a.mu.Lock()
	a.events = append(a.events, Event{
		Type: typ, Severity: sev, Action: action, Result: result,
		Details: details, Timestamp: time.Now(),
	})
	a.mu.Unlock()

	if sev == SeverityHigh {
		a.log.Warn("audit %s/%s action=%s result=%s details=%v", typ, sev, action, result, details)
	} else {
		a.log.Debug("audit %s/%s action=%s result=%s details=%v", typ, sev, action, result, details)
	}
}

// Events returns a snapshot of all retained events.
func (a *AuditLog) Events() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Event, len(a.events))
	copy(out, a.events)
	return out
}

// GC drops events older than the retention window and returns how many it
// dropped. It runs only when called; no loop in the engine schedules it.
func (a *AuditLog) GC() int {
	cutoff := time.Now().AddDate(0, 0, -a.retentionDays)
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.events[:0]
	dropped := 0
	for _, e := range a.events {
		if e.Timestamp.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	a.events = kept
	return dropped
}
