// Package store provides the reference persistence seams: four append-only
// logs (events, documents, decision records, proposals) and three snapshot
// stores (holons, relationships, constraints). Registries stay the source
// of truth at runtime; everything here is rebuildable input for them.
package store

import (
	"context"
	"errors"

	"github.com/semops-labs/som/core/pkg/contracts"
)

// ErrDuplicateAppend reports an append whose id is already in the log.
var ErrDuplicateAppend = errors.New("duplicate append")

// EventLog is the append-only event record. Appending an id twice fails
// with ErrDuplicateAppend.
type EventLog interface {
	AppendEvent(ctx context.Context, e *contracts.Event) error
	Events(ctx context.Context) ([]*contracts.Event, error)
}

// DocumentLog is the append-only record of ordinary documents. Decision
// records route to the DecisionLog instead.
type DocumentLog interface {
	AppendDocument(ctx context.Context, d *contracts.Document) error
	Documents(ctx context.Context) ([]*contracts.Document, error)
}

// DecisionLog is the append-only record of governance decision documents.
type DecisionLog interface {
	AppendDecision(ctx context.Context, d *contracts.Document) error
	Decisions(ctx context.Context) ([]*contracts.Document, error)
}

// ProposalLog is the append-only record of proposal states. A proposal
// appears once per lifecycle step: on creation and again on decision.
type ProposalLog interface {
	AppendProposal(ctx context.Context, p *contracts.SchemaChangeProposal) error
	Proposals(ctx context.Context) ([]*contracts.SchemaChangeProposal, error)
}

// HolonSnapshots keeps the latest state of each holon by id.
type HolonSnapshots interface {
	SaveHolon(ctx context.Context, h *contracts.Holon) error
	Holons(ctx context.Context) ([]*contracts.Holon, error)
}

// RelationshipSnapshots keeps the latest state of each edge by id.
type RelationshipSnapshots interface {
	SaveRelationship(ctx context.Context, r *contracts.Relationship) error
	Relationships(ctx context.Context) ([]*contracts.Relationship, error)
}

// ConstraintSnapshots keeps the latest declarative state of each constraint
// by id. Validators are not persisted; the engine recompiles them from the
// definition on rebuild.
type ConstraintSnapshots interface {
	SaveConstraint(ctx context.Context, c *contracts.Constraint) error
	Constraints(ctx context.Context) ([]*contracts.Constraint, error)
}
