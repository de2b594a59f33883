package monitoring

import (
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// AlertType identifies the rule that raised an alert.
type AlertType string

const (
	AlertValidationFailure      AlertType = "validation_failure"
	AlertPerformanceDegradation AlertType = "performance_degradation"
	AlertSystemError            AlertType = "system_error"
	AlertBusinessRule           AlertType = "business_rule"
)

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is one tripped threshold. Value carries the observed measurement,
// Threshold the configured trip point.
type Alert struct {
	ID         string        `json:"id"`
	Type       AlertType     `json:"type"`
	Severity   AlertSeverity `json:"severity"`
	Message    string        `json:"message"`
	Value      float64       `json:"value"`
	Threshold  float64       `json:"threshold"`
	RaisedAt   time.Time     `json:"raised_at"`
	Resolved   bool          `json:"resolved"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

// AlertHandler receives each dispatched alert. Handlers run synchronously
// in registration order and must confine themselves to side effects; the
// monitor hands each handler its own copy.
type AlertHandler func(a *Alert)

type handlerEntry struct {
	id uint64
	fn AlertHandler
}

// RegisterAlertHandler registers a handler and returns its handle. Delivery
// follows registration order.
func (m *Monitor) RegisterAlertHandler(fn AlertHandler) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextHandle++
	m.handlers = append(m.handlers, handlerEntry{id: m.nextHandle, fn: fn})
	return m.nextHandle
}

// UnregisterAlertHandler removes a handler by handle. Returns false for an
// unknown handle.
func (m *Monitor) UnregisterAlertHandler(handle uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, h := range m.handlers {
		if h.id == handle {
			m.handlers = append(m.handlers[:i], m.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// ActiveAlerts returns unresolved alerts in raise order.
func (m *Monitor) ActiveAlerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if !a.Resolved {
			out = append(out, *a)
		}
	}
	return out
}

// ResolveAlert marks an alert resolved. Returns false for an unknown or
// already resolved id.
func (m *Monitor) ResolveAlert(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.alerts {
		if a.ID == id && !a.Resolved {
			at := m.clock()
			a.Resolved = true
			a.ResolvedAt = &at
			return true
		}
	}
	return false
}

// raiseLocked records an alert unless one of the same type is already
// active. It returns a copy for handler delivery, or nil when the raise is
// deduplicated or the per-type dispatch limit denies it.
func (m *Monitor) raiseLocked(t AlertType, sev AlertSeverity, msg string, value, threshold float64) *Alert {
	for _, a := range m.alerts {
		if a.Type == t && !a.Resolved {
			return nil
		}
	}

	a := &Alert{
		ID:        uuid.NewString(),
		Type:      t,
		Severity:  sev,
		Message:   msg,
		Value:     value,
		Threshold: threshold,
		RaisedAt:  m.clock(),
	}
	m.alerts = append(m.alerts, a)

	slog.Warn("alert raised",
		"alert_id", a.ID,
		"type", a.Type,
		"severity", a.Severity,
		"value", a.Value,
		"threshold", a.Threshold)
	if m.bridge != nil {
		m.bridge.alertRaised(string(t), string(sev))
	}

	if !m.limiterLocked(t).Allow() {
		return nil
	}
	out := *a
	return &out
}

// limiterLocked returns the dispatch limiter for an alert type, creating it
// on first use.
func (m *Monitor) limiterLocked(t AlertType) *rate.Limiter {
	lim, ok := m.limiters[t]
	if !ok {
		if m.alertEvery <= 0 {
			lim = rate.NewLimiter(rate.Inf, 0)
		} else {
			lim = rate.NewLimiter(rate.Every(m.alertEvery), 1)
		}
		m.limiters[t] = lim
	}
	return lim
}

func (m *Monitor) cloneHandlers() []handlerEntry {
	return slices.Clone(m.handlers)
}

// deliver hands each alert to every handler. A panicking handler is logged
// and skipped; it never propagates into the monitor.
func (m *Monitor) deliver(handlers []handlerEntry, alerts []Alert) {
	for i := range alerts {
		for _, h := range handlers {
			func() {
				defer func() {
					if r := recover(); r != nil {
						slog.Error("alert handler panicked",
							"handle", h.id,
							"alert_id", alerts[i].ID,
							"panic", r)
					}
				}()
				a := alerts[i]
				h.fn(&a)
			}()
		}
	}
}
