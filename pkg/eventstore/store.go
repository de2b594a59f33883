// Package eventstore implements the append-only event log of the semantic
// core. Events carry both an occurrence time and a recording time; the store
// stamps ids and recording times, validates temporal bounds and causal
// links, and maintains by-subject, by-actor, and by-type indices. There is
// no update or delete; corrections arrive as compensating events.
package eventstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semops-labs/som/core/pkg/contracts"
)

// Journal persists accepted events beyond process memory. The in-memory
// indices stay authoritative; the journal is written before commit so a
// persistence failure leaves no partial state.
type Journal interface {
	AppendEvent(ctx context.Context, e *contracts.Event) error
}

// Recorder receives ingestion measurements. The monitoring package
// satisfies it.
type Recorder interface {
	RecordEventIngestion(latencyMs float64, success bool, errMsg string)
}

// SubmitParams carries the caller-supplied half of an event. The store
// synthesizes ID and RecordedAt.
type SubmitParams struct {
	Type           contracts.EventType
	OccurredAt     time.Time
	Actor          string
	Subjects       []string
	Payload        map[string]any
	SourceSystem   string
	SourceDocument string
	ValidityWindow *contracts.ValidityWindow
	CausalLinks    contracts.CausalLinks
}

// Store is the append-only event log. Writes serialize through submitMu so
// recording times are monotonic and subscriber delivery follows recording
// order; reads take the inner RWMutex only.
type Store struct {
	submitMu sync.Mutex

	mu        sync.RWMutex
	events    map[string]*contracts.Event
	order     []string
	bySubject map[string][]string
	byActor   map[string][]string
	byType    map[contracts.EventType][]string

	subs   []subscriber
	nextID uint64

	lastRecorded time.Time
	maxAge       time.Duration
	maxLead      time.Duration
	clock        func() time.Time

	journal  Journal
	recorder Recorder
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithBounds overrides the occurrence acceptance window.
func WithBounds(maxAge, maxLead time.Duration) Option {
	return func(s *Store) { s.maxAge, s.maxLead = maxAge, maxLead }
}

// WithJournal attaches a persistence journal.
func WithJournal(j Journal) Option {
	return func(s *Store) { s.journal = j }
}

// WithRecorder attaches an ingestion metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

// New creates an empty event store. Defaults: occurrences accepted within
// [now − 1 year, now + 1 hour].
func New(opts ...Option) *Store {
	s := &Store{
		events:    make(map[string]*contracts.Event),
		bySubject: make(map[string][]string),
		byActor:   make(map[string][]string),
		byType:    make(map[contracts.EventType][]string),
		maxAge:    365 * 24 * time.Hour,
		maxLead:   time.Hour,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates and appends one event, returning the stored form. A
// failed validation returns a nil event and the failing result; the error
// return is reserved for journal failures.
func (s *Store) Submit(ctx context.Context, params SubmitParams) (*contracts.Event, *contracts.ValidationResult, error) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	started := s.clock()

	result := s.validate(params)
	if !result.Valid {
		s.record(started, false, result.FirstError())
		return nil, result, nil
	}

	recordedAt := s.clock()
	if recordedAt.Before(s.lastRecorded) {
		recordedAt = s.lastRecorded
	}

	e := &contracts.Event{
		ID:             uuid.NewString(),
		Type:           params.Type,
		OccurredAt:     params.OccurredAt,
		RecordedAt:     recordedAt,
		Actor:          params.Actor,
		Subjects:       slices.Clone(params.Subjects),
		Payload:        maps.Clone(params.Payload),
		SourceSystem:   params.SourceSystem,
		SourceDocument: params.SourceDocument,
		CausalLinks: contracts.CausalLinks{
			PrecededBy: slices.Clone(params.CausalLinks.PrecededBy),
			CausedBy:   slices.Clone(params.CausalLinks.CausedBy),
		},
	}
	if params.ValidityWindow != nil {
		w := *params.ValidityWindow
		e.ValidityWindow = &w
	}

	if s.journal != nil {
		if err := s.journal.AppendEvent(ctx, e); err != nil {
			s.record(started, false, err.Error())
			return nil, nil, fmt.Errorf("journal append: %w", err)
		}
	}

	s.mu.Lock()
	s.events[e.ID] = e
	s.order = append(s.order, e.ID)
	s.lastRecorded = recordedAt
	for _, subject := range e.Subjects {
		s.bySubject[subject] = append(s.bySubject[subject], e.ID)
	}
	if e.Actor != "" {
		s.byActor[e.Actor] = append(s.byActor[e.Actor], e.ID)
	}
	s.byType[e.Type] = append(s.byType[e.Type], e.ID)
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	s.notify(subs, cloneEvent(e))
	s.record(started, true, "")

	return cloneEvent(e), contracts.OK(), nil
}

// validate applies the event invariants against the current clock.
func (s *Store) validate(params SubmitParams) *contracts.ValidationResult {
	result := contracts.OK()
	now := s.clock()

	if params.Type == "" {
		result.AddError(contracts.ValidationError{
			Message:      "event type is required",
			ViolatedRule: "event_type_required",
			Category:     contracts.CategoryValidation,
			Timestamp:    now,
		})
	}
	if params.Actor == "" {
		result.AddError(contracts.ValidationError{
			Message:      "event actor is required",
			ViolatedRule: "event_actor_required",
			Category:     contracts.CategoryValidation,
			Timestamp:    now,
		})
	}
	if params.OccurredAt.IsZero() {
		result.AddError(contracts.ValidationError{
			Message:      "occurred_at is required",
			ViolatedRule: "event_occurrence_required",
			Category:     contracts.CategoryValidation,
			Timestamp:    now,
		})
		return result
	}

	if params.OccurredAt.Before(now.Add(-s.maxAge)) {
		result.AddError(contracts.ValidationError{
			Message:      fmt.Sprintf("occurred_at %s is older than the %s acceptance window", params.OccurredAt.Format(time.RFC3339), s.maxAge),
			ViolatedRule: "event_occurrence_too_old",
			Category:     contracts.CategoryTemporal,
			Timestamp:    now,
		})
	}
	if params.OccurredAt.After(now.Add(s.maxLead)) {
		result.AddError(contracts.ValidationError{
			Message:      fmt.Sprintf("occurred_at %s is further than %s in the future", params.OccurredAt.Format(time.RFC3339), s.maxLead),
			ViolatedRule: "event_occurrence_in_future",
			Category:     contracts.CategoryTemporal,
			Timestamp:    now,
		})
	}

	if params.ValidityWindow != nil && params.ValidityWindow.End.Before(params.ValidityWindow.Start) {
		result.AddError(contracts.ValidationError{
			Message:      "validity window end precedes start",
			ViolatedRule: "validity_window_inverted",
			Category:     contracts.CategoryTemporal,
			Timestamp:    now,
		})
	}

	s.mu.RLock()
	for _, predID := range params.CausalLinks.All() {
		pred, ok := s.events[predID]
		if !ok {
			result.AddError(contracts.ValidationError{
				Message:      fmt.Sprintf("causal predecessor %s does not exist", predID),
				ViolatedRule: "causal_predecessor_unknown",
				Category:     contracts.CategoryConsistency,
				Timestamp:    now,
				Context:      map[string]any{"predecessor_id": predID},
			})
			continue
		}
		if pred.OccurredAt.After(params.OccurredAt) {
			result.AddError(contracts.ValidationError{
				Message:      fmt.Sprintf("causal predecessor %s occurred after this event", predID),
				ViolatedRule: "causal_predecessor_out_of_order",
				Category:     contracts.CategoryTemporal,
				Timestamp:    now,
				Context:      map[string]any{"predecessor_id": predID},
			})
		}
	}
	s.mu.RUnlock()

	return result
}

// Get retrieves one event. The second return is false when the id is
// unknown; reads never fail.
func (s *Store) Get(id string) (*contracts.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, false
	}
	return cloneEvent(e), true
}

// ByHolon returns events whose subjects include the holon, in recording order.
func (s *Store) ByHolon(holonID string) []*contracts.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.bySubject[holonID])
}

// ByActor returns events attributed to the actor, in recording order.
func (s *Store) ByActor(actor string) []*contracts.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byActor[actor])
}

// ByType returns events of the type, in recording order.
func (s *Store) ByType(t contracts.EventType) []*contracts.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byType[t])
}

// Len returns the number of recorded events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) collect(ids []string) []*contracts.Event {
	out := make([]*contracts.Event, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.events[id]; ok {
			out = append(out, cloneEvent(e))
		}
	}
	return out
}

func (s *Store) record(started time.Time, success bool, errMsg string) {
	if s.recorder == nil {
		return
	}
	latency := float64(s.clock().Sub(started).Microseconds()) / 1000.0
	s.recorder.RecordEventIngestion(latency, success, errMsg)
}

// cloneEvent copies an event so stored state stays immutable.
func cloneEvent(e *contracts.Event) *contracts.Event {
	out := *e
	out.Subjects = slices.Clone(e.Subjects)
	out.Payload = maps.Clone(e.Payload)
	out.CausalLinks = contracts.CausalLinks{
		PrecededBy: slices.Clone(e.CausalLinks.PrecededBy),
		CausedBy:   slices.Clone(e.CausalLinks.CausedBy),
	}
	if e.ValidityWindow != nil {
		w := *e.ValidityWindow
		out.ValidityWindow = &w
	}
	return &out
}
