// Package validation is the cross-cutting validation engine: detailed event
// validation with heuristic error categorization, atomic batch validation,
// temporal constraint checks against the store's acceptance policy, and
// compensating event construction for corrections.
package validation

import (
	"strings"
	"time"

	"github.com/semops-labs/som/core/pkg/constraints"
	"github.com/semops-labs/som/core/pkg/contracts"
)

// EventLookup resolves recorded events by id. The event store satisfies it.
type EventLookup interface {
	Get(id string) (*contracts.Event, bool)
}

// Documents reports which documents are in force at an instant. The
// document registry satisfies it.
type Documents interface {
	InForce(at time.Time) []*contracts.Document
}

// ConstraintValidator runs registered event constraints. The constraint
// engine satisfies it.
type ConstraintValidator interface {
	ValidateEvent(e *contracts.Event, vctx *constraints.Context) *contracts.ValidationResult
}

// EnhancedResult augments a validation result with the documents in force
// at the event's occurrence and the instant validation ran.
type EnhancedResult struct {
	contracts.ValidationResult
	DocumentsInForce []string  `json:"documents_in_force,omitempty"`
	ValidatedAt      time.Time `json:"validated_at"`
}

// BatchResult is the all-or-nothing outcome of validating a batch. Errors
// maps batch index to that event's failures; a batch with any entry is
// invalid and nothing from it may be committed.
type BatchResult struct {
	Valid  bool                                `json:"valid"`
	Errors map[int][]contracts.ValidationError `json:"errors,omitempty"`
}

// Engine is the validation engine.
type Engine struct {
	events      EventLookup
	docs        Documents
	constraints ConstraintValidator
	submitter   Submitter

	maxAge  time.Duration
	maxLead time.Duration
	skew    time.Duration

	log   *validationLog
	clock func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithBounds overrides the temporal acceptance policy: maximum event age,
// maximum occurrence lead, and tolerated clock skew for recorded events.
func WithBounds(maxAge, maxLead, skew time.Duration) Option {
	return func(e *Engine) {
		e.maxAge = maxAge
		e.maxLead = maxLead
		e.skew = skew
	}
}

// WithDocuments wires the document registry for in-force reporting.
func WithDocuments(d Documents) Option {
	return func(e *Engine) { e.docs = d }
}

// WithConstraintEngine folds registered event constraints into detailed
// validation.
func WithConstraintEngine(c ConstraintValidator) Option {
	return func(e *Engine) { e.constraints = c }
}

// WithSubmitter wires the event store for compensating event emission.
func WithSubmitter(s Submitter) Option {
	return func(e *Engine) { e.submitter = s }
}

// WithLogCapacity bounds the validation log. Oldest entries are evicted.
func WithLogCapacity(n int) Option {
	return func(e *Engine) { e.log = newValidationLog(n) }
}

// NewEngine builds a validation engine over the given event lookup.
func NewEngine(events EventLookup, opts ...Option) *Engine {
	e := &Engine{
		events:  events,
		maxAge:  365 * 24 * time.Hour,
		maxLead: time.Hour,
		skew:    5 * time.Minute,
		log:     newValidationLog(defaultLogCapacity),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ValidateEventWithDetails runs temporal and constraint validation,
// categorizes every error, reports the documents in force at the event's
// occurrence, and appends a log entry.
func (e *Engine) ValidateEventWithDetails(ev *contracts.Event) *EnhancedResult {
	now := e.clock()

	result := e.ValidateTemporalConstraints(ev)
	if e.constraints != nil {
		result.Merge(e.constraints.ValidateEvent(ev, nil))
	}
	for i := range result.Errors {
		if result.Errors[i].Category == "" {
			result.Errors[i].Category = categorize(result.Errors[i].ViolatedRule)
		}
	}

	enhanced := &EnhancedResult{
		ValidationResult: *result,
		ValidatedAt:      now,
	}
	if e.docs != nil {
		for _, d := range e.docs.InForce(ev.OccurredAt) {
			enhanced.DocumentsInForce = append(enhanced.DocumentsInForce, d.ID)
		}
	}

	e.log.append(ev.ID, now, result)
	return enhanced
}

// ValidateBatch validates every event with its own temporal context. The
// batch is valid only when every element is; the caller treats it as
// atomic and commits nothing otherwise.
func (e *Engine) ValidateBatch(events []*contracts.Event) *BatchResult {
	batch := &BatchResult{Valid: true, Errors: make(map[int][]contracts.ValidationError)}
	for i, ev := range events {
		result := e.ValidateEventWithDetails(ev)
		if !result.Valid {
			batch.Valid = false
			batch.Errors[i] = result.Errors
		}
	}
	return batch
}

// ValidateTemporalConstraints checks the event against the temporal
// acceptance policy: occurrence within the submission window, recorded
// time consistent with occurrence up to lead plus skew, causal
// predecessors recorded and not later than the event, and a well-formed
// validity window.
func (e *Engine) ValidateTemporalConstraints(ev *contracts.Event) *contracts.ValidationResult {
	now := e.clock()
	result := contracts.OK()

	fail := func(rule, message string, category contracts.ErrorCategory) {
		result.AddError(contracts.ValidationError{
			Message:      message,
			ViolatedRule: rule,
			Category:     category,
			Timestamp:    now,
			Context:      map[string]any{"event_id": ev.ID},
		})
	}

	if ev.OccurredAt.Before(now.Add(-e.maxAge)) {
		fail("event_occurrence_too_old", "event occurred before the acceptance window", contracts.CategoryTemporal)
	}
	if ev.OccurredAt.After(now.Add(e.maxLead)) {
		fail("event_occurrence_in_future", "event occurrence exceeds the future lead bound", contracts.CategoryTemporal)
	}
	if !ev.RecordedAt.IsZero() && ev.RecordedAt.Before(ev.OccurredAt.Add(-(e.maxLead+e.skew))) {
		fail("event_recorded_before_occurrence", "recorded time precedes occurrence beyond lead and skew", contracts.CategoryTemporal)
	}

	for _, id := range ev.CausalLinks.All() {
		predecessor, ok := e.events.Get(id)
		if !ok {
			fail("causal_predecessor_unknown", "causal link references an unrecorded event "+id, contracts.CategoryConsistency)
			continue
		}
		if predecessor.OccurredAt.After(ev.OccurredAt) {
			fail("causal_predecessor_out_of_order", "causal predecessor "+id+" occurred after this event", contracts.CategoryTemporal)
		}
	}

	if ev.ValidityWindow != nil && ev.ValidityWindow.End.Before(ev.ValidityWindow.Start) {
		fail("validity_window_inverted", "validity window ends before it starts", contracts.CategoryTemporal)
	}

	return result
}

// categorize maps a violated-rule string onto an error category. Temporal
// wording wins over consistency wording, then authorization; everything
// else is a plain validation failure.
func categorize(rule string) contracts.ErrorCategory {
	r := strings.ToLower(rule)
	switch {
	case strings.Contains(r, "time") || strings.Contains(r, "date") || strings.Contains(r, "temporal"):
		return contracts.CategoryTemporal
	case strings.Contains(r, "cycle") || strings.Contains(r, "circular") || strings.Contains(r, "orphan"):
		return contracts.CategoryConsistency
	case strings.Contains(r, "permission") || strings.Contains(r, "authorization") || strings.Contains(r, "access"):
		return contracts.CategoryAuthorization
	default:
		return contracts.CategoryValidation
	}
}
