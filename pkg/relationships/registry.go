// Package relationships is the edge registry: directed, temporally-scoped
// relationships between holons. Creation is constraint-checked at the
// edge's effective start and recorded as an event; ending an edge is
// recorded as a second event causally linked to the first. Ended edges
// stay indexed and are excluded only by temporal filters.
package relationships

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semops-labs/som/core/pkg/constraints"
	"github.com/semops-labs/som/core/pkg/contracts"
	"github.com/semops-labs/som/core/pkg/eventstore"
)

var ErrRelationshipNotFound = errors.New("relationship not found")

// ConstraintValidator checks a candidate edge. The constraint engine
// satisfies it.
type ConstraintValidator interface {
	ValidateRelationship(r *contracts.Relationship, vctx *constraints.Context) *contracts.ValidationResult
}

// Events records edge lifecycle events. The event store satisfies it.
type Events interface {
	Submit(ctx context.Context, params eventstore.SubmitParams) (*contracts.Event, *contracts.ValidationResult, error)
}

// HolonLookup resolves endpoint holons. The holon registry satisfies it.
type HolonLookup interface {
	Get(id string) (*contracts.Holon, bool)
}

// Snapshots persists relationship state by id.
type Snapshots interface {
	SaveRelationship(ctx context.Context, r *contracts.Relationship) error
}

// Recorder receives relationship lifecycle counts. The monitoring package
// satisfies it.
type Recorder interface {
	RecordRelationshipCreated(relType string)
	RecordRelationshipEnded(relType string)
}

// CreateParams carries the caller-supplied half of an edge. AuthorityLevel
// defaults to authoritative; Actor defaults to the source holon. EventType
// names the AssignmentStarted-class event recorded for the edge; empty
// means AssignmentStarted itself.
type CreateParams struct {
	Type            contracts.RelationshipType
	SourceHolonID   string
	TargetHolonID   string
	Properties      map[string]any
	EffectiveStart  time.Time
	EffectiveEnd    *time.Time
	SourceSystem    string
	SourceDocuments []string
	AuthorityLevel  contracts.AuthorityLevel
	ConfidenceScore *float64
	Actor           string
	EventType       contracts.EventType
}

// EndParams ends an edge. EndDate becomes the immutable EffectiveEnd.
// EventType names the AssignmentEnded-class event; empty means
// AssignmentEnded itself.
type EndParams struct {
	ID           string
	EndDate      time.Time
	Reason       string
	Actor        string
	SourceSystem string
	EventType    contracts.EventType
}

// Filters narrow read queries. With EffectiveAt set, edges are matched by
// coverage of that instant regardless of whether they have since ended;
// without it, ended edges are excluded unless IncludeEnded is set.
type Filters struct {
	EffectiveAt    *time.Time
	IncludeEnded   bool
	AuthorityLevel contracts.AuthorityLevel
}

func (f Filters) match(r *contracts.Relationship) bool {
	if f.AuthorityLevel != "" && r.AuthorityLevel != f.AuthorityLevel {
		return false
	}
	if f.EffectiveAt != nil {
		return r.EffectiveAt(*f.EffectiveAt)
	}
	if r.Ended() && !f.IncludeEnded {
		return false
	}
	return true
}

// Registry is the thread-safe edge store.
type Registry struct {
	mu       sync.RWMutex
	rels     map[string]*contracts.Relationship
	bySource map[string][]string
	byTarget map[string][]string
	byType   map[contracts.RelationshipType][]string

	holons    HolonLookup
	validator ConstraintValidator
	events    Events
	snapshots Snapshots
	recorder  Recorder
	clock     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) { r.clock = clock }
}

// WithHolonLookup enables endpoint existence checks.
func WithHolonLookup(h HolonLookup) Option {
	return func(r *Registry) { r.holons = h }
}

// WithConstraintValidator wires constraint validation at creation time.
func WithConstraintValidator(v ConstraintValidator) Option {
	return func(r *Registry) { r.validator = v }
}

// WithSnapshots attaches a persistence seam.
func WithSnapshots(s Snapshots) Option {
	return func(r *Registry) { r.snapshots = s }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Registry) { r.recorder = rec }
}

// New creates a Registry. events is required: every edge mutation is
// recorded as an event.
func New(events Events, opts ...Option) *Registry {
	r := &Registry{
		rels:     make(map[string]*contracts.Relationship),
		bySource: make(map[string][]string),
		byTarget: make(map[string][]string),
		byType:   make(map[contracts.RelationshipType][]string),
		events:   events,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create validates and stores a new edge. Constraint validation runs at
// the edge's effective start. A failed validation stores nothing and
// returns the result; only infrastructure failures return an error.
func (r *Registry) Create(ctx context.Context, params CreateParams) (*contracts.Relationship, *contracts.ValidationResult, error) {
	result := r.validateParams(params)
	if !result.Valid {
		return nil, result, nil
	}

	authority := params.AuthorityLevel
	if authority == "" {
		authority = contracts.AuthorityAuthoritative
	}

	candidate := &contracts.Relationship{
		ID:              uuid.NewString(),
		Type:            params.Type,
		SourceHolonID:   params.SourceHolonID,
		TargetHolonID:   params.TargetHolonID,
		Properties:      maps.Clone(params.Properties),
		EffectiveStart:  params.EffectiveStart,
		SourceSystem:    params.SourceSystem,
		SourceDocuments: slices.Clone(params.SourceDocuments),
		AuthorityLevel:  authority,
		ConfidenceScore: params.ConfidenceScore,
	}
	if params.EffectiveEnd != nil {
		end := *params.EffectiveEnd
		candidate.EffectiveEnd = &end
	}

	if r.validator != nil {
		vres := r.validator.ValidateRelationship(candidate, &constraints.Context{Timestamp: params.EffectiveStart})
		if !vres.Valid {
			return nil, vres, nil
		}
		result.Merge(vres)
	}

	actor := params.Actor
	if actor == "" {
		actor = params.SourceHolonID
	}
	eventType := params.EventType
	if eventType == "" {
		eventType = contracts.EventAssignmentStarted
	}
	var sourceDocument string
	if len(params.SourceDocuments) > 0 {
		sourceDocument = params.SourceDocuments[0]
	}
	event, eventResult, err := r.events.Submit(ctx, eventstore.SubmitParams{
		Type:       eventType,
		OccurredAt: params.EffectiveStart,
		Actor:      actor,
		Subjects:   []string{params.SourceHolonID, params.TargetHolonID},
		Payload: map[string]any{
			"relationship_id":   candidate.ID,
			"relationship_type": string(params.Type),
			"source_holon_id":   params.SourceHolonID,
			"target_holon_id":   params.TargetHolonID,
		},
		SourceSystem:   params.SourceSystem,
		SourceDocument: sourceDocument,
	})
	if err != nil {
		return nil, result, fmt.Errorf("record creation event: %w", err)
	}
	if !eventResult.Valid {
		return nil, eventResult, nil
	}
	candidate.CreatedBy = event.ID

	if r.snapshots != nil {
		if err := r.snapshots.SaveRelationship(ctx, candidate); err != nil {
			return nil, result, fmt.Errorf("relationship snapshot: %w", err)
		}
	}

	r.mu.Lock()
	r.rels[candidate.ID] = candidate
	r.bySource[candidate.SourceHolonID] = append(r.bySource[candidate.SourceHolonID], candidate.ID)
	r.byTarget[candidate.TargetHolonID] = append(r.byTarget[candidate.TargetHolonID], candidate.ID)
	r.byType[candidate.Type] = append(r.byType[candidate.Type], candidate.ID)
	r.mu.Unlock()

	if r.recorder != nil {
		r.recorder.RecordRelationshipCreated(string(candidate.Type))
	}
	return cloneRelationship(candidate), result, nil
}

func (r *Registry) validateParams(params CreateParams) *contracts.ValidationResult {
	result := contracts.OK()
	now := r.clock()

	fail := func(rule, message string, category contracts.ErrorCategory, holons ...string) {
		result.AddError(contracts.ValidationError{
			Message:        message,
			ViolatedRule:   rule,
			AffectedHolons: holons,
			Category:       category,
			Timestamp:      now,
		})
	}

	if !contracts.ValidRelationshipType(params.Type) {
		fail("relationship_type_unknown", fmt.Sprintf("unknown relationship type %q", params.Type), contracts.CategoryValidation)
	}
	if params.SourceHolonID == "" || params.TargetHolonID == "" {
		fail("relationship_endpoints_required", "source and target holon ids are required", contracts.CategoryValidation)
	}
	if params.EffectiveStart.IsZero() {
		fail("relationship_effective_start_required", "effective start is required", contracts.CategoryTemporal)
	}
	if params.EffectiveEnd != nil && params.EffectiveEnd.Before(params.EffectiveStart) {
		fail("relationship_effective_end_precedes_start", "effective end precedes start", contracts.CategoryTemporal)
	}

	if r.holons != nil && params.SourceHolonID != "" && params.TargetHolonID != "" {
		if _, ok := r.holons.Get(params.SourceHolonID); !ok {
			fail("relationship_source_orphan", fmt.Sprintf("source holon %s does not exist", params.SourceHolonID), contracts.CategoryConsistency, params.SourceHolonID)
		}
		if _, ok := r.holons.Get(params.TargetHolonID); !ok {
			fail("relationship_target_orphan", fmt.Sprintf("target holon %s does not exist", params.TargetHolonID), contracts.CategoryConsistency, params.TargetHolonID)
		}
	}
	return result
}

// Get retrieves one edge. The second return is false when the id is
// unknown; reads never fail.
func (r *Registry) Get(id string) (*contracts.Relationship, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rel, ok := r.rels[id]
	if !ok {
		return nil, false
	}
	return cloneRelationship(rel), true
}

// From returns edges whose source is the holon, newest-registration last.
// An empty relType matches all types.
func (r *Registry) From(holonID string, relType contracts.RelationshipType, f Filters) []*contracts.Relationship {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.bySource[holonID], relType, f)
}

// To returns edges whose target is the holon.
func (r *Registry) To(holonID string, relType contracts.RelationshipType, f Filters) []*contracts.Relationship {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.byTarget[holonID], relType, f)
}

// ByType returns all edges of one type.
func (r *Registry) ByType(relType contracts.RelationshipType, f Filters) []*contracts.Relationship {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.byType[relType], "", f)
}

func (r *Registry) collect(ids []string, relType contracts.RelationshipType, f Filters) []*contracts.Relationship {
	out := make([]*contracts.Relationship, 0, len(ids))
	for _, id := range ids {
		rel := r.rels[id]
		if relType != "" && rel.Type != relType {
			continue
		}
		if !f.match(rel) {
			continue
		}
		out = append(out, cloneRelationship(rel))
	}
	return out
}

// End stamps the edge's immutable effective end and records the ending
// event, causally preceded by the creation event. Ending twice or ending
// before the start is a temporal failure.
func (r *Registry) End(ctx context.Context, params EndParams) (*contracts.Relationship, *contracts.ValidationResult, error) {
	r.mu.RLock()
	rel, ok := r.rels[params.ID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrRelationshipNotFound, params.ID)
	}

	now := r.clock()
	if rel.Ended() {
		return nil, contracts.Failed(contracts.ValidationError{
			Message:      fmt.Sprintf("relationship %s already ended", params.ID),
			ViolatedRule: "relationship_already_ended",
			Category:     contracts.CategoryTemporal,
			Timestamp:    now,
		}), nil
	}
	if params.EndDate.Before(rel.EffectiveStart) {
		return nil, contracts.Failed(contracts.ValidationError{
			Message:      "end date precedes effective start",
			ViolatedRule: "relationship_end_precedes_start",
			Category:     contracts.CategoryTemporal,
			Timestamp:    now,
		}), nil
	}

	eventType := params.EventType
	if eventType == "" {
		eventType = contracts.EventAssignmentEnded
	}
	_, eventResult, err := r.events.Submit(ctx, eventstore.SubmitParams{
		Type:       eventType,
		OccurredAt: params.EndDate,
		Actor:      params.Actor,
		Subjects:   []string{rel.SourceHolonID, rel.TargetHolonID},
		Payload: map[string]any{
			"relationship_id":   rel.ID,
			"relationship_type": string(rel.Type),
			"reason":            params.Reason,
		},
		SourceSystem: params.SourceSystem,
		CausalLinks:  contracts.CausalLinks{PrecededBy: []string{rel.CreatedBy}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("record ending event: %w", err)
	}
	if !eventResult.Valid {
		return nil, eventResult, nil
	}

	end := params.EndDate
	updated := cloneRelationship(rel)
	updated.EffectiveEnd = &end

	if r.snapshots != nil {
		if err := r.snapshots.SaveRelationship(ctx, updated); err != nil {
			return nil, nil, fmt.Errorf("relationship snapshot: %w", err)
		}
	}

	r.mu.Lock()
	rel.EffectiveEnd = &end
	r.mu.Unlock()
	if r.recorder != nil {
		r.recorder.RecordRelationshipEnded(string(rel.Type))
	}
	return updated, contracts.OK(), nil
}

// Len returns the number of stored edges.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rels)
}

func cloneRelationship(rel *contracts.Relationship) *contracts.Relationship {
	out := *rel
	out.Properties = maps.Clone(rel.Properties)
	out.SourceDocuments = slices.Clone(rel.SourceDocuments)
	if rel.EffectiveEnd != nil {
		end := *rel.EffectiveEnd
		out.EffectiveEnd = &end
	}
	if rel.ConfidenceScore != nil {
		score := *rel.ConfidenceScore
		out.ConfidenceScore = &score
	}
	return &out
}
