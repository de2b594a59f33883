package domain

import (
	"context"
	"strings"

	"github.com/semops-labs/som/core/pkg/contracts"
	"github.com/semops-labs/som/core/pkg/relationships"
)

// ObjectiveManager handles lines of effort, measures, and the objectives
// grounded in both.
type ObjectiveManager struct {
	core *Core
}

// NewObjectiveManager creates an ObjectiveManager over the shared core.
func NewObjectiveManager(core *Core) *ObjectiveManager {
	return &ObjectiveManager{core: core}
}

// CreateLOEParams carries a new line of effort plus provenance.
type CreateLOEParams struct {
	Properties      contracts.LOEProperties
	SourceDocuments []string
	Actor           string
	SourceSystem    string
}

// CreateLOE creates a Line of Effort holon.
func (m *ObjectiveManager) CreateLOE(ctx context.Context, params CreateLOEParams) (*contracts.Holon, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	p := params.Properties

	if strings.TrimSpace(p.Name) == "" {
		c.fail(result, "loe_name_required", "name is required")
	}
	if p.TimeframeStart.IsZero() {
		c.fail(result, "loe_timeframe_start_required", "timeframe start is required")
	}
	if p.TimeframeEnd != nil && p.TimeframeEnd.Before(p.TimeframeStart) {
		c.failAs(result, contracts.CategoryTemporal, "loe_timeframe_inverted", "timeframe end precedes start")
	}
	if !result.Valid {
		return nil, result, nil
	}

	return c.createHolon(ctx, createRequest{
		eventType:       contracts.EventLOECreated,
		actor:           params.Actor,
		payload:         map[string]any{"name": p.Name},
		holonType:       contracts.HolonLOE,
		properties:      p.PropertyMap(),
		sourceDocuments: params.SourceDocuments,
		sourceSystem:    params.SourceSystem,
	})
}

// DefineMeasureParams carries a new measure plus provenance.
type DefineMeasureParams struct {
	Properties      contracts.MeasureProperties
	SourceDocuments []string
	Actor           string
	SourceSystem    string
}

// DefineMeasure creates a Measure holon.
func (m *ObjectiveManager) DefineMeasure(ctx context.Context, params DefineMeasureParams) (*contracts.Holon, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	if strings.TrimSpace(params.Properties.Name) == "" {
		c.fail(result, "measure_name_required", "name is required")
		return nil, result, nil
	}

	return c.createHolon(ctx, createRequest{
		eventType:       contracts.EventMeasureDefined,
		actor:           params.Actor,
		payload:         map[string]any{"name": params.Properties.Name},
		holonType:       contracts.HolonMeasure,
		properties:      params.Properties.PropertyMap(),
		sourceDocuments: params.SourceDocuments,
		sourceSystem:    params.SourceSystem,
	})
}

// CreateObjectiveParams carries a new objective and its mandatory links:
// exactly one owner, exactly one line of effort, at least one measure.
type CreateObjectiveParams struct {
	Properties      contracts.ObjectiveProperties
	OwnerID         string
	LOEID           string
	MeasureIDs      []string
	SourceDocuments []string
	Actor           string
	SourceSystem    string
}

// CreateObjective creates an Objective holon plus its OWNED_BY,
// GROUPED_UNDER, and per-measure MEASURED_BY edges. A failure while
// creating edges marks the objective inactive before returning.
func (m *ObjectiveManager) CreateObjective(ctx context.Context, params CreateObjectiveParams) (*contracts.Holon, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	p := params.Properties

	if strings.TrimSpace(p.Title) == "" {
		c.fail(result, "objective_title_required", "title is required")
	}
	if len(params.MeasureIDs) == 0 {
		c.fail(result, "objective_measure_required", "at least one measure is required")
	}
	if params.OwnerID == "" {
		c.fail(result, "objective_owner_required", "exactly one owner is required")
	}
	if params.LOEID == "" {
		c.fail(result, "objective_loe_required", "exactly one line of effort is required")
	}
	if !result.Valid {
		return nil, result, nil
	}

	owner, ok := c.holons.Get(params.OwnerID)
	switch {
	case !ok:
		c.failAs(result, contracts.CategoryConsistency, "owner_not_found",
			"owner "+params.OwnerID+" does not exist", params.OwnerID)
	case owner.Type != contracts.HolonPerson && owner.Type != contracts.HolonOrganization:
		c.failAs(result, contracts.CategoryConsistency, "owner_type_mismatch",
			"owner "+params.OwnerID+" must be a Person or Organization", params.OwnerID)
	}
	c.requireHolon(result, params.LOEID, contracts.HolonLOE, "loe")
	for _, measureID := range params.MeasureIDs {
		c.requireHolon(result, measureID, contracts.HolonMeasure, "measure")
	}
	if !result.Valid {
		return nil, result, nil
	}

	objective, createResult, err := c.createHolon(ctx, createRequest{
		eventType: contracts.EventObjectiveCreated,
		actor:     params.Actor,
		payload: map[string]any{
			"title":    p.Title,
			"owner_id": params.OwnerID,
			"loe_id":   params.LOEID,
		},
		holonType:       contracts.HolonObjective,
		properties:      p.PropertyMap(),
		sourceDocuments: params.SourceDocuments,
		sourceSystem:    params.SourceSystem,
	})
	if err != nil || !createResult.Valid {
		return nil, createResult, err
	}

	start := c.clock()
	edges := []relationships.CreateParams{
		{
			Type:            contracts.RelOwnedBy,
			SourceHolonID:   objective.ID,
			TargetHolonID:   params.OwnerID,
			EffectiveStart:  start,
			SourceSystem:    c.sourceSystem(params.SourceSystem),
			SourceDocuments: params.SourceDocuments,
			Actor:           params.Actor,
		},
		{
			Type:            contracts.RelGroupedUnder,
			SourceHolonID:   objective.ID,
			TargetHolonID:   params.LOEID,
			EffectiveStart:  start,
			SourceSystem:    c.sourceSystem(params.SourceSystem),
			SourceDocuments: params.SourceDocuments,
			Actor:           params.Actor,
		},
	}
	for _, measureID := range params.MeasureIDs {
		edges = append(edges, relationships.CreateParams{
			Type:            contracts.RelMeasuredBy,
			SourceHolonID:   objective.ID,
			TargetHolonID:   measureID,
			EffectiveStart:  start,
			SourceSystem:    c.sourceSystem(params.SourceSystem),
			SourceDocuments: params.SourceDocuments,
			Actor:           params.Actor,
		})
	}
	edgeResult, err := c.linkEdges(ctx, objective.ID, edges)
	if err != nil {
		return nil, nil, err
	}
	if !edgeResult.Valid {
		return nil, edgeResult, nil
	}
	return objective, contracts.OK(), nil
}

// AddObjectiveDependency records that one objective depends on another.
// Self-references and cycles are rejected.
func (m *ObjectiveManager) AddObjectiveDependency(ctx context.Context, objectiveID, dependsOnID string, params EdgeParams) (*contracts.Relationship, *contracts.ValidationResult, error) {
	return m.core.addDependency(ctx, objectiveID, dependsOnID, contracts.HolonObjective, "objective", params)
}
