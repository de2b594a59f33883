// Package holons implements the typed entity store. Holons are addressed
// only by id; status changes never delete. An inactive holon stays
// queryable and simply fails activity predicates.
package holons

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semops-labs/som/core/pkg/contracts"
)

var ErrHolonNotFound = errors.New("holon not found")

// EventLookup verifies that creator event ids reference recorded events.
// The event store satisfies it.
type EventLookup interface {
	Get(id string) (*contracts.Event, bool)
}

// Snapshots persists holon state by id. The store package satisfies it.
type Snapshots interface {
	SaveHolon(ctx context.Context, h *contracts.Holon) error
}

// Recorder receives holon lifecycle measurements. The monitoring package
// satisfies it.
type Recorder interface {
	RecordHolonCreated(holonType string, active bool)
	RecordHolonStatusChange(holonType string, toActive bool)
}

// CreateParams carries the caller-supplied half of a holon. The registry
// assigns the id, stamps creation time, and sets status active.
type CreateParams struct {
	Type            contracts.HolonType
	Properties      map[string]any
	CreatedBy       string // event id
	SourceDocuments []string
}

// Registry is the thread-safe holon store.
type Registry struct {
	mu     sync.RWMutex
	holons map[string]*contracts.Holon
	byType map[contracts.HolonType][]string

	clock     func() time.Time
	events    EventLookup
	snapshots Snapshots
	recorder  Recorder
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) { r.clock = clock }
}

// WithEventLookup enables creator-event existence checks.
func WithEventLookup(events EventLookup) Option {
	return func(r *Registry) { r.events = events }
}

// WithSnapshots attaches a persistence seam.
func WithSnapshots(s Snapshots) Option {
	return func(r *Registry) { r.snapshots = s }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Registry) { r.recorder = rec }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		holons: make(map[string]*contracts.Holon),
		byType: make(map[contracts.HolonType][]string),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create stores a new holon. Every holon carries at least one source
// document and a creator event; when an event lookup is wired the creator
// must already be recorded.
func (r *Registry) Create(ctx context.Context, params CreateParams) (*contracts.Holon, error) {
	if !contracts.ValidHolonType(params.Type) {
		return nil, fmt.Errorf("unknown holon type %q", params.Type)
	}
	if len(params.SourceDocuments) == 0 {
		return nil, errors.New("holon requires at least one source document")
	}
	if params.CreatedBy == "" {
		return nil, errors.New("holon requires a creator event id")
	}
	if r.events != nil {
		if _, ok := r.events.Get(params.CreatedBy); !ok {
			return nil, fmt.Errorf("creator event %s does not exist", params.CreatedBy)
		}
	}

	h := &contracts.Holon{
		ID:              uuid.NewString(),
		Type:            params.Type,
		Properties:      maps.Clone(params.Properties),
		CreatedAt:       r.clock(),
		CreatedBy:       params.CreatedBy,
		Status:          contracts.HolonActive,
		SourceDocuments: slices.Clone(params.SourceDocuments),
	}
	if h.Properties == nil {
		h.Properties = make(map[string]any)
	}

	if r.snapshots != nil {
		if err := r.snapshots.SaveHolon(ctx, h); err != nil {
			return nil, fmt.Errorf("holon snapshot: %w", err)
		}
	}

	r.mu.Lock()
	r.holons[h.ID] = h
	r.byType[h.Type] = append(r.byType[h.Type], h.ID)
	r.mu.Unlock()

	if r.recorder != nil {
		r.recorder.RecordHolonCreated(string(h.Type), true)
	}
	return cloneHolon(h), nil
}

// Get retrieves one holon. The second return is false when the id is
// unknown; reads never fail.
func (r *Registry) Get(id string) (*contracts.Holon, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.holons[id]
	if !ok {
		return nil, false
	}
	return cloneHolon(h), true
}

// ByType returns holons of the type in creation order, all statuses.
func (r *Registry) ByType(t contracts.HolonType) []*contracts.Holon {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byType[t]
	out := make([]*contracts.Holon, 0, len(ids))
	for _, id := range ids {
		if h, ok := r.holons[id]; ok {
			out = append(out, cloneHolon(h))
		}
	}
	return out
}

// MarkInactive flips the holon to inactive. Domain managers use it to roll
// back when downstream validation fails.
func (r *Registry) MarkInactive(ctx context.Context, id, reason string) error {
	return r.setStatus(ctx, id, contracts.HolonInactive, reason)
}

// MarkActive flips the holon back to active.
func (r *Registry) MarkActive(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, contracts.HolonActive, "")
}

func (r *Registry) setStatus(ctx context.Context, id string, status contracts.HolonStatus, reason string) error {
	r.mu.Lock()
	h, ok := r.holons[id]
	if !ok {
		r.mu.Unlock()
		return ErrHolonNotFound
	}
	prev := h.Status
	h.Status = status
	snapshot := cloneHolon(h)
	r.mu.Unlock()

	if prev != status {
		slog.Info("holon status changed",
			"holon_id", id,
			"type", h.Type,
			"from", prev,
			"to", status,
			"reason", reason)
		if r.recorder != nil {
			r.recorder.RecordHolonStatusChange(string(h.Type), status == contracts.HolonActive)
		}
	}

	if r.snapshots != nil {
		if err := r.snapshots.SaveHolon(ctx, snapshot); err != nil {
			return fmt.Errorf("holon snapshot: %w", err)
		}
	}
	return nil
}

// Len returns the number of stored holons, any status.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.holons)
}

func cloneHolon(h *contracts.Holon) *contracts.Holon {
	out := *h
	out.Properties = maps.Clone(h.Properties)
	out.SourceDocuments = slices.Clone(h.SourceDocuments)
	return &out
}
