package validation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semops-labs/som/core/pkg/contracts"
)

const defaultLogCapacity = 10000

// LogEntry is one validation outcome. Category is the first error's
// category; valid entries carry none.
type LogEntry struct {
	ID        string                      `json:"id"`
	Timestamp time.Time                   `json:"timestamp"`
	EventID   string                      `json:"event_id"`
	Valid     bool                        `json:"valid"`
	Category  contracts.ErrorCategory     `json:"category,omitempty"`
	Errors    []contracts.ValidationError `json:"errors,omitempty"`
}

// LogFilter narrows ValidationLog output. Zero fields match everything.
type LogFilter struct {
	From     time.Time
	To       time.Time
	Category contracts.ErrorCategory
	EventID  string
}

type validationLog struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
}

func newValidationLog(capacity int) *validationLog {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &validationLog{capacity: capacity}
}

func (l *validationLog) append(eventID string, at time.Time, result *contracts.ValidationResult) {
	entry := LogEntry{
		ID:        uuid.NewString(),
		Timestamp: at,
		EventID:   eventID,
		Valid:     result.Valid,
	}
	if len(result.Errors) > 0 {
		entry.Category = result.Errors[0].Category
		entry.Errors = append(entry.Errors, result.Errors...)
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if overflow := len(l.entries) - l.capacity; overflow > 0 {
		l.entries = l.entries[overflow:]
	}
	l.mu.Unlock()
}

func (l *validationLog) list(filter *LogFilter) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]LogEntry, 0, len(l.entries))
	for _, entry := range l.entries {
		if filter != nil {
			if !filter.From.IsZero() && entry.Timestamp.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && entry.Timestamp.After(filter.To) {
				continue
			}
			if filter.Category != "" && entry.Category != filter.Category {
				continue
			}
			if filter.EventID != "" && entry.EventID != filter.EventID {
				continue
			}
		}
		out = append(out, entry)
	}
	return out
}

// ValidationLog returns log entries oldest first, optionally filtered by
// time range, category, and event id.
func (e *Engine) ValidationLog(filter *LogFilter) []LogEntry {
	return e.log.list(filter)
}
