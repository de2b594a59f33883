// Package documents implements the registry of versioned authoritative
// sources. Documents carry a period of force; constraints and governance
// decisions ground themselves in documents by id. There is no history
// rewrite; supersession happens through new document versions.
package documents

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semops-labs/som/core/pkg/contracts"
	"github.com/semops-labs/som/core/pkg/documents/blob"
)

var ErrDocumentNotFound = errors.New("document not found")

// Journal persists registered documents beyond process memory.
type Journal interface {
	AppendDocument(ctx context.Context, d *contracts.Document) error
}

// RegisterParams carries the caller-supplied half of a document.
type RegisterParams struct {
	ReferenceNumbers       []string
	Title                  string
	DocumentType           string
	Version                string
	EffectiveStart         time.Time
	EffectiveEnd           *time.Time
	ClassificationMetadata map[string]string
	Content                string
}

// Registry is the thread-safe document store.
type Registry struct {
	mu    sync.RWMutex
	docs  map[string]*contracts.Document
	order []string

	clock   func() time.Time
	blobs   blob.Store
	offload int
	journal Journal
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) { r.clock = clock }
}

// WithBlobStore offloads content larger than threshold bytes to the blob
// store, keeping only the digest inline.
func WithBlobStore(s blob.Store, threshold int) Option {
	return func(r *Registry) { r.blobs, r.offload = s, threshold }
}

// WithJournal attaches a persistence seam.
func WithJournal(j Journal) Option {
	return func(r *Registry) { r.journal = j }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		docs:  make(map[string]*contracts.Document),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores a new document version created by the given event.
func (r *Registry) Register(ctx context.Context, params RegisterParams, createdByEvent string) (*contracts.Document, error) {
	if params.Title == "" {
		return nil, errors.New("document title is required")
	}
	if params.DocumentType == "" {
		return nil, errors.New("document type is required")
	}
	if params.EffectiveStart.IsZero() {
		return nil, errors.New("document effective start is required")
	}
	if params.EffectiveEnd != nil && params.EffectiveEnd.Before(params.EffectiveStart) {
		return nil, errors.New("document effective end precedes start")
	}
	if createdByEvent == "" {
		return nil, errors.New("document requires a creator event id")
	}

	d := &contracts.Document{
		ID:                     uuid.NewString(),
		ReferenceNumbers:       slices.Clone(params.ReferenceNumbers),
		Title:                  params.Title,
		DocumentType:           params.DocumentType,
		Version:                params.Version,
		EffectiveDates:         contracts.EffectiveDates{Start: params.EffectiveStart},
		ClassificationMetadata: maps.Clone(params.ClassificationMetadata),
		Content:                params.Content,
		CreatedByEvent:         createdByEvent,
	}
	if params.EffectiveEnd != nil {
		end := *params.EffectiveEnd
		d.EffectiveDates.End = &end
	}

	if r.blobs != nil && len(params.Content) > r.offload {
		digest, err := r.blobs.Put(ctx, []byte(params.Content))
		if err != nil {
			return nil, fmt.Errorf("content offload: %w", err)
		}
		d.ContentDigest = digest
		d.Content = ""
	}

	if r.journal != nil {
		if err := r.journal.AppendDocument(ctx, d); err != nil {
			return nil, fmt.Errorf("journal append: %w", err)
		}
	}

	r.mu.Lock()
	r.docs[d.ID] = d
	r.order = append(r.order, d.ID)
	r.mu.Unlock()

	return cloneDocument(d), nil
}

// Get retrieves one document. The second return is false when the id is
// unknown; reads never fail.
func (r *Registry) Get(id string) (*contracts.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.docs[id]
	if !ok {
		return nil, false
	}
	return cloneDocument(d), true
}

// InForce returns documents whose period of force covers the instant, in
// registration order.
func (r *Registry) InForce(at time.Time) []*contracts.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*contracts.Document, 0)
	for _, id := range r.order {
		if d := r.docs[id]; d.InForceAt(at) {
			out = append(out, cloneDocument(d))
		}
	}
	return out
}

// Content resolves the document's opaque content, fetching offloaded
// content from the blob store when needed.
func (r *Registry) Content(ctx context.Context, id string) (string, error) {
	r.mu.RLock()
	d, ok := r.docs[id]
	r.mu.RUnlock()
	if !ok {
		return "", ErrDocumentNotFound
	}
	if d.ContentDigest == "" {
		return d.Content, nil
	}
	if r.blobs == nil {
		return "", fmt.Errorf("document %s content is offloaded but no blob store is wired", id)
	}
	data, err := r.blobs.Get(ctx, d.ContentDigest)
	if err != nil {
		return "", fmt.Errorf("content fetch: %w", err)
	}
	return string(data), nil
}

// LinkConstraints records that the given constraints ground themselves in
// the document. Links are idempotent.
func (r *Registry) LinkConstraints(docID string, constraintIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.docs[docID]
	if !ok {
		return ErrDocumentNotFound
	}
	for _, cid := range constraintIDs {
		if !slices.Contains(d.LinkedConstraints, cid) {
			d.LinkedConstraints = append(d.LinkedConstraints, cid)
		}
	}
	return nil
}

// ConstraintsFor returns the constraint ids linked to the document.
func (r *Registry) ConstraintsFor(docID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.docs[docID]
	if !ok {
		return nil
	}
	return slices.Clone(d.LinkedConstraints)
}

// Len returns the number of registered documents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

func cloneDocument(d *contracts.Document) *contracts.Document {
	out := *d
	out.ReferenceNumbers = slices.Clone(d.ReferenceNumbers)
	out.ClassificationMetadata = maps.Clone(d.ClassificationMetadata)
	out.LinkedConstraints = slices.Clone(d.LinkedConstraints)
	if d.EffectiveDates.End != nil {
		end := *d.EffectiveDates.End
		out.EffectiveDates.End = &end
	}
	return &out
}
