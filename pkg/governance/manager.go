// Package governance runs schema-change proposals through completeness
// validation, collision and impact analysis, and decision. Every decision
// is recorded as a canonical decision document in the document registry;
// approved changes apply through the schema catalog.
package governance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semops-labs/som/core/pkg/canonical"
	"github.com/semops-labs/som/core/pkg/contracts"
	"github.com/semops-labs/som/core/pkg/documents"
	"github.com/semops-labs/som/core/pkg/schema"
)

var (
	ErrProposalNotFound = errors.New("proposal not found")
	ErrProposalDecided  = errors.New("proposal already decided")
	ErrProposalInvalid  = errors.New("proposal failed validation")
)

// DecisionDocuments registers decision records. The document registry
// satisfies it.
type DecisionDocuments interface {
	Register(ctx context.Context, params documents.RegisterParams, createdByEvent string) (*contracts.Document, error)
}

// Journal persists proposals on creation and on decision.
type Journal interface {
	AppendProposal(ctx context.Context, p *contracts.SchemaChangeProposal) error
}

// Manager is the governance engine.
type Manager struct {
	mu        sync.RWMutex
	proposals map[string]*contracts.SchemaChangeProposal
	order     []string

	schema  *schema.Registry
	docs    DecisionDocuments
	journal Journal
	clock   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithJournal attaches a persistence seam.
func WithJournal(j Journal) Option {
	return func(m *Manager) { m.journal = j }
}

// NewManager wires governance to the schema catalog and the document
// registry that will hold decision records.
func NewManager(catalog *schema.Registry, docs DecisionDocuments, opts ...Option) *Manager {
	m := &Manager{
		proposals: make(map[string]*contracts.SchemaChangeProposal),
		schema:    catalog,
		docs:      docs,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateProposal accepts a partially-filled proposal, stamps identity and
// lifecycle fields, and stores it in proposed status. Completeness is
// checked by ValidateProposal, not here.
func (m *Manager) CreateProposal(ctx context.Context, partial contracts.SchemaChangeProposal) (*contracts.SchemaChangeProposal, error) {
	switch partial.ProposalType {
	case contracts.ProposalAddHolonType, contracts.ProposalAddConstraint,
		contracts.ProposalAddMeasure, contracts.ProposalAddLens,
		contracts.ProposalModifyType, contracts.ProposalDeprecateType:
	default:
		return nil, fmt.Errorf("unknown proposal type %q", partial.ProposalType)
	}

	p := partial
	p.ID = uuid.NewString()
	p.Status = contracts.ProposalProposed
	p.CreatedAt = m.clock()
	p.DecisionDocumentID = ""
	p.DecisionRationale = ""
	p.DecidedAt = nil
	p.DecidedBy = ""

	if m.journal != nil {
		if err := m.journal.AppendProposal(ctx, &p); err != nil {
			return nil, fmt.Errorf("journal append: %w", err)
		}
	}

	m.mu.Lock()
	m.proposals[p.ID] = &p
	m.order = append(m.order, p.ID)
	m.mu.Unlock()

	return cloneProposal(&p), nil
}

// GetProposal retrieves one proposal. The second return is false when the
// id is unknown.
func (m *Manager) GetProposal(id string) (*contracts.SchemaChangeProposal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.proposals[id]
	if !ok {
		return nil, false
	}
	return cloneProposal(p), true
}

// ByStatus returns proposals with the given status in creation order.
func (m *Manager) ByStatus(status contracts.ProposalStatus) []*contracts.SchemaChangeProposal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*contracts.SchemaChangeProposal, 0)
	for _, id := range m.order {
		if p := m.proposals[id]; p.Status == status {
			out = append(out, cloneProposal(p))
		}
	}
	return out
}

// PerformCollisionAnalysis checks a proposed holon type definition against
// the schema catalog.
func (m *Manager) PerformCollisionAnalysis(def *contracts.HolonTypeDefinition) *contracts.CollisionAnalysis {
	return m.schema.DetectHolonCollision(def)
}

// PerformImpactAnalysis estimates the blast radius of a proposal. Type
// modifications and deprecations are breaking; additions are not.
func (m *Manager) PerformImpactAnalysis(p *contracts.SchemaChangeProposal) *contracts.ImpactAnalysis {
	analysis := &contracts.ImpactAnalysis{}

	switch p.ProposalType {
	case contracts.ProposalAddHolonType:
		if p.HolonTypeDefinition != nil {
			collisions := p.CollisionAnalysis
			if collisions == nil {
				collisions = m.schema.DetectHolonCollision(p.HolonTypeDefinition)
			}
			analysis.AffectedTypes = slices.Clone(collisions.NameCollisions)
		}
		analysis.Summary = "adds a holon type; existing types are unchanged"

	case contracts.ProposalAddConstraint:
		if def := p.ConstraintDefinition; def != nil {
			for _, t := range def.Scope.HolonTypes {
				analysis.AffectedTypes = append(analysis.AffectedTypes, string(t))
			}
			for _, t := range def.Scope.RelationshipTypes {
				analysis.AffectedTypes = append(analysis.AffectedTypes, string(t))
			}
			for _, t := range def.Scope.EventTypes {
				analysis.AffectedTypes = append(analysis.AffectedTypes, string(t))
			}
		}
		analysis.Summary = "adds a constraint over the in-scope types"

	case contracts.ProposalAddMeasure, contracts.ProposalAddLens:
		analysis.Summary = "registration only; no schema types affected"

	case contracts.ProposalModifyType, contracts.ProposalDeprecateType:
		analysis.Breaking = true
		if p.TargetType != "" {
			analysis.AffectedTypes = append(analysis.AffectedTypes, p.TargetType)
			target := contracts.HolonType(p.TargetType)
			for _, rel := range m.schema.RelationshipTypes() {
				if slices.Contains(rel.SourceTypes, target) || slices.Contains(rel.TargetTypes, target) {
					analysis.AffectedTypes = append(analysis.AffectedTypes, rel.Type)
				}
			}
		}
		analysis.Summary = fmt.Sprintf("breaking change to %s and its relationship types", p.TargetType)
	}

	analysis.AffectedCount = len(analysis.AffectedTypes)
	return analysis
}

// ApproveProposal re-validates, marks the proposal approved, registers the
// decision document, and applies the change through the schema catalog.
// eventID is the decision event recorded by the caller.
func (m *Manager) ApproveProposal(ctx context.Context, id, decidedBy, rationale, eventID string) (*contracts.SchemaChangeProposal, *contracts.ValidationResult, error) {
	return m.decide(ctx, id, decidedBy, rationale, eventID, contracts.ProposalApproved)
}

// RejectProposal records a rejection. The decision document is still
// created; nothing is applied.
func (m *Manager) RejectProposal(ctx context.Context, id, decidedBy, rationale, eventID string) (*contracts.SchemaChangeProposal, *contracts.ValidationResult, error) {
	return m.decide(ctx, id, decidedBy, rationale, eventID, contracts.ProposalRejected)
}

func (m *Manager) decide(ctx context.Context, id, decidedBy, rationale, eventID string, status contracts.ProposalStatus) (*contracts.SchemaChangeProposal, *contracts.ValidationResult, error) {
	m.mu.RLock()
	p, ok := m.proposals[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrProposalNotFound, id)
	}
	if p.Decided() {
		return nil, nil, fmt.Errorf("%w: %s is %s", ErrProposalDecided, id, p.Status)
	}

	result := m.ValidateProposal(p)
	if !result.Valid {
		return nil, result, fmt.Errorf("%w: %s", ErrProposalInvalid, result.FirstError())
	}

	decidedAt := m.clock()
	decided := cloneProposal(p)
	decided.Status = status
	decided.DecisionRationale = rationale
	decided.DecidedAt = &decidedAt
	decided.DecidedBy = decidedBy

	doc, err := m.registerDecisionDocument(ctx, decided, eventID)
	if err != nil {
		return nil, result, fmt.Errorf("decision document: %w", err)
	}
	decided.DecisionDocumentID = doc.ID

	if m.journal != nil {
		if err := m.journal.AppendProposal(ctx, decided); err != nil {
			return nil, result, fmt.Errorf("journal append: %w", err)
		}
	}

	m.mu.Lock()
	m.proposals[id] = decided
	m.mu.Unlock()

	if status == contracts.ProposalApproved {
		if err := m.apply(decided); err != nil {
			return cloneProposal(decided), result, fmt.Errorf("apply approved proposal: %w", err)
		}
	}
	return cloneProposal(decided), result, nil
}

// registerDecisionDocument writes the decision record. Content is the
// canonical JSON encoding of the decision provenance, so identical
// decisions hash identically.
func (m *Manager) registerDecisionDocument(ctx context.Context, p *contracts.SchemaChangeProposal, eventID string) (*contracts.Document, error) {
	content, err := canonical.MarshalString(map[string]any{
		"proposalId":         p.ID,
		"proposalType":       string(p.ProposalType),
		"decision":           string(p.Status),
		"rationale":          p.DecisionRationale,
		"decidedBy":          p.DecidedBy,
		"decidedAt":          p.DecidedAt.UTC().Format(time.RFC3339Nano),
		"referenceDocuments": p.ReferenceDocuments,
		"impactAnalysis":     p.ImpactAnalysis,
		"collisionAnalysis":  p.CollisionAnalysis,
	})
	if err != nil {
		return nil, fmt.Errorf("encode decision content: %w", err)
	}

	return m.docs.Register(ctx, documents.RegisterParams{
		ReferenceNumbers: []string{p.ID},
		Title:            fmt.Sprintf("Schema change decision %s", p.ID),
		DocumentType:     contracts.DocTypeDecisionRecord,
		Version:          "1.0",
		EffectiveStart:   *p.DecidedAt,
		Content:          content,
	}, eventID)
}

// apply pushes an approved change into the schema catalog. Constraint,
// measure, and lens payloads are registration-only here; their engines
// consume them downstream.
func (m *Manager) apply(p *contracts.SchemaChangeProposal) error {
	changeType := schema.ChangeNonBreaking
	if p.ImpactAnalysis != nil && p.ImpactAnalysis.Breaking {
		changeType = schema.ChangeBreaking
	}

	switch p.ProposalType {
	case contracts.ProposalAddHolonType:
		def := p.HolonTypeDefinition
		if _, exists := m.schema.HolonType(def.Type); exists {
			return fmt.Errorf("holon type %s already registered", def.Type)
		}
		version, err := m.schema.CreateVersion(changeType,
			fmt.Sprintf("add holon type %s", def.Type), p.ReferenceDocuments[0])
		if err != nil {
			return err
		}
		stamped := *def
		stamped.IntroducedInVersion = version.Version
		stamped.SchemaVersionID = version.ID
		return m.schema.RegisterHolonType(&stamped)

	case contracts.ProposalModifyType:
		_, err := m.schema.CreateVersion(changeType,
			fmt.Sprintf("modify type %s", p.TargetType), p.ReferenceDocuments[0])
		return err

	case contracts.ProposalDeprecateType:
		_, err := m.schema.CreateVersion(changeType,
			fmt.Sprintf("deprecate type %s", p.TargetType), p.ReferenceDocuments[0])
		return err
	}
	return nil
}

func cloneProposal(p *contracts.SchemaChangeProposal) *contracts.SchemaChangeProposal {
	out := *p
	out.ReferenceDocuments = slices.Clone(p.ReferenceDocuments)
	out.ExampleUseCases = slices.Clone(p.ExampleUseCases)
	if p.CollisionAnalysis != nil {
		ca := *p.CollisionAnalysis
		ca.NameCollisions = slices.Clone(p.CollisionAnalysis.NameCollisions)
		ca.PropertyOverlaps = slices.Clone(p.CollisionAnalysis.PropertyOverlaps)
		out.CollisionAnalysis = &ca
	}
	if p.ImpactAnalysis != nil {
		ia := *p.ImpactAnalysis
		ia.AffectedTypes = slices.Clone(p.ImpactAnalysis.AffectedTypes)
		out.ImpactAnalysis = &ia
	}
	if p.HolonTypeDefinition != nil {
		def := *p.HolonTypeDefinition
		out.HolonTypeDefinition = &def
	}
	if p.ConstraintDefinition != nil {
		def := *p.ConstraintDefinition
		out.ConstraintDefinition = &def
	}
	if p.MeasureDefinition != nil {
		def := *p.MeasureDefinition
		out.MeasureDefinition = &def
	}
	if p.LensDefinition != nil {
		def := *p.LensDefinition
		out.LensDefinition = &def
	}
	if p.DecidedAt != nil {
		at := *p.DecidedAt
		out.DecidedAt = &at
	}
	return &out
}
