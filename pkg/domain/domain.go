// Package domain implements the managers that orchestrate the registries
// for one slice of the model each: personnel, qualifications, missions,
// objectives, and initiatives. Every create follows the same sequence:
// completeness checks, reference checks, a domain event, the holon, then
// its edges. Registries are never left half-mutated; a failure after the
// holon exists marks it inactive before returning.
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/semops-labs/som/core/pkg/config"
	"github.com/semops-labs/som/core/pkg/constraints"
	"github.com/semops-labs/som/core/pkg/contracts"
	"github.com/semops-labs/som/core/pkg/eventstore"
	"github.com/semops-labs/som/core/pkg/holons"
	"github.com/semops-labs/som/core/pkg/relationships"
)

// ConstraintValidator checks newly created holons. The constraint engine
// satisfies it.
type ConstraintValidator interface {
	ValidateHolon(h *contracts.Holon, vctx *constraints.Context) *contracts.ValidationResult
}

// Core bundles the registries a manager mutates. All managers in this
// package share one Core so cross-domain references resolve against the
// same graph.
type Core struct {
	events      *eventstore.Store
	holons      *holons.Registry
	rels        *relationships.Registry
	constraints ConstraintValidator
	cfg         *config.Config
	clock       func() time.Time
}

// CoreOption configures a Core.
type CoreOption func(*Core)

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) CoreOption {
	return func(c *Core) { c.clock = clock }
}

// WithConfig overrides the default configuration.
func WithConfig(cfg *config.Config) CoreOption {
	return func(c *Core) { c.cfg = cfg }
}

// WithConstraintValidator wires constraint validation of created holons.
func WithConstraintValidator(v ConstraintValidator) CoreOption {
	return func(c *Core) { c.constraints = v }
}

// NewCore wires the managers' shared registries.
func NewCore(events *eventstore.Store, hr *holons.Registry, rr *relationships.Registry, opts ...CoreOption) *Core {
	c := &Core{
		events: events,
		holons: hr,
		rels:   rr,
		cfg:    config.DefaultConfig(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// createRequest is the shared create sequence's input: the domain event to
// record and the holon it creates.
type createRequest struct {
	eventType       contracts.EventType
	occurredAt      time.Time
	actor           string
	subjects        []string
	payload         map[string]any
	holonType       contracts.HolonType
	properties      map[string]any
	sourceDocuments []string
	sourceSystem    string
}

// createHolon runs steps three through five of the create sequence: record
// the event, create the holon referencing it, constraint-check the holon.
// A constraint failure marks the holon inactive and returns the result.
func (c *Core) createHolon(ctx context.Context, req createRequest) (*contracts.Holon, *contracts.ValidationResult, error) {
	occurredAt := req.occurredAt
	if occurredAt.IsZero() {
		occurredAt = c.clock()
	}
	sourceSystem := req.sourceSystem
	if sourceSystem == "" {
		sourceSystem = c.cfg.SourceSystem
	}
	var sourceDocument string
	if len(req.sourceDocuments) > 0 {
		sourceDocument = req.sourceDocuments[0]
	}

	event, result, err := c.events.Submit(ctx, eventstore.SubmitParams{
		Type:           req.eventType,
		OccurredAt:     occurredAt,
		Actor:          req.actor,
		Subjects:       req.subjects,
		Payload:        req.payload,
		SourceSystem:   sourceSystem,
		SourceDocument: sourceDocument,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("record %s event: %w", req.eventType, err)
	}
	if !result.Valid {
		return nil, result, nil
	}

	holon, err := c.holons.Create(ctx, holons.CreateParams{
		Type:            req.holonType,
		Properties:      req.properties,
		CreatedBy:       event.ID,
		SourceDocuments: req.sourceDocuments,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create %s holon: %w", req.holonType, err)
	}

	if c.constraints != nil {
		vres := c.constraints.ValidateHolon(holon, &constraints.Context{Timestamp: occurredAt})
		if !vres.Valid {
			if rbErr := c.holons.MarkInactive(ctx, holon.ID, "constraint validation failed"); rbErr != nil {
				return nil, vres, fmt.Errorf("roll back holon %s: %w", holon.ID, rbErr)
			}
			return nil, vres, nil
		}
	}
	return holon, contracts.OK(), nil
}

// linkEdges runs step six: create the required edges. The first failure
// marks the new holon inactive and stops.
func (c *Core) linkEdges(ctx context.Context, holonID string, edges []relationships.CreateParams) (*contracts.ValidationResult, error) {
	for _, edge := range edges {
		_, result, err := c.rels.Create(ctx, edge)
		if err != nil {
			if rbErr := c.holons.MarkInactive(ctx, holonID, "relationship creation failed"); rbErr != nil {
				return nil, fmt.Errorf("roll back holon %s: %w", holonID, rbErr)
			}
			return nil, fmt.Errorf("create %s edge: %w", edge.Type, err)
		}
		if !result.Valid {
			if rbErr := c.holons.MarkInactive(ctx, holonID, "relationship creation failed"); rbErr != nil {
				return nil, fmt.Errorf("roll back holon %s: %w", holonID, rbErr)
			}
			return result, nil
		}
	}
	return contracts.OK(), nil
}

// requireHolon appends a Consistency error when the id does not resolve to
// a holon of the wanted type. role names the reference in rules and
// messages.
func (c *Core) requireHolon(result *contracts.ValidationResult, id string, want contracts.HolonType, role string) *contracts.Holon {
	h, ok := c.holons.Get(id)
	if !ok {
		result.AddError(contracts.ValidationError{
			Message:        fmt.Sprintf("%s %s does not exist", role, id),
			ViolatedRule:   role + "_not_found",
			AffectedHolons: []string{id},
			Category:       contracts.CategoryConsistency,
			Timestamp:      c.clock(),
		})
		return nil
	}
	if h.Type != want {
		result.AddError(contracts.ValidationError{
			Message:        fmt.Sprintf("%s %s is a %s, want %s", role, id, h.Type, want),
			ViolatedRule:   role + "_type_mismatch",
			AffectedHolons: []string{id},
			Category:       contracts.CategoryConsistency,
			Timestamp:      c.clock(),
		})
		return nil
	}
	return h
}

// fail appends a Validation-category error.
func (c *Core) fail(result *contracts.ValidationResult, rule, message string, affected ...string) {
	c.failAs(result, contracts.CategoryValidation, rule, message, affected...)
}

func (c *Core) failAs(result *contracts.ValidationResult, category contracts.ErrorCategory, rule, message string, affected ...string) {
	result.AddError(contracts.ValidationError{
		Message:        message,
		ViolatedRule:   rule,
		AffectedHolons: affected,
		Category:       category,
		Timestamp:      c.clock(),
	})
}

// dependsOnReaches reports whether goal is reachable from start over
// DEPENDS_ON edges, ended edges included. Used to keep dependency graphs
// acyclic before inserting a new edge.
func (c *Core) dependsOnReaches(start, goal string) bool {
	seen := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == goal {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, edge := range c.rels.From(id, contracts.RelDependsOn, relationships.Filters{IncludeEnded: true}) {
			stack = append(stack, edge.TargetHolonID)
		}
	}
	return false
}

// addDependency inserts a DEPENDS_ON edge between two holons of the same
// type after rejecting self-reference and cycles.
func (c *Core) addDependency(ctx context.Context, sourceID, targetID string, holonType contracts.HolonType, role string, params EdgeParams) (*contracts.Relationship, *contracts.ValidationResult, error) {
	result := contracts.OK()
	source := c.requireHolon(result, sourceID, holonType, role)
	target := c.requireHolon(result, targetID, holonType, role+"_dependency")
	if !result.Valid {
		return nil, result, nil
	}

	if sourceID == targetID {
		c.failAs(result, contracts.CategoryConsistency, role+"_dependency_self_reference",
			fmt.Sprintf("%s %s cannot depend on itself", role, sourceID), sourceID)
		return nil, result, nil
	}
	if c.dependsOnReaches(targetID, sourceID) {
		c.failAs(result, contracts.CategoryConsistency, role+"_dependency_cycle",
			fmt.Sprintf("dependency would close a cycle between %s and %s", source.ID, target.ID),
			sourceID, targetID)
		return nil, result, nil
	}

	return c.rels.Create(ctx, relationships.CreateParams{
		Type:            contracts.RelDependsOn,
		SourceHolonID:   sourceID,
		TargetHolonID:   targetID,
		EffectiveStart:  c.effectiveStart(params.EffectiveStart),
		SourceSystem:    c.sourceSystem(params.SourceSystem),
		SourceDocuments: params.SourceDocuments,
		Actor:           params.Actor,
	})
}

// EdgeParams carries the common inputs of the edge-adding operations.
type EdgeParams struct {
	EffectiveStart  time.Time
	SourceDocuments []string
	Actor           string
	SourceSystem    string
}

func (c *Core) effectiveStart(t time.Time) time.Time {
	if t.IsZero() {
		return c.clock()
	}
	return t
}

func (c *Core) sourceSystem(s string) string {
	if s == "" {
		return c.cfg.SourceSystem
	}
	return s
}
