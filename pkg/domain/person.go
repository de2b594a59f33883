package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/semops-labs/som/core/pkg/contracts"
	"github.com/semops-labs/som/core/pkg/relationships"
)

// PersonManager handles personnel: registration, position assignments, and
// qualification awards.
type PersonManager struct {
	core *Core
}

// NewPersonManager creates a PersonManager over the shared core.
func NewPersonManager(core *Core) *PersonManager {
	return &PersonManager{core: core}
}

// RegisterPersonParams carries a new person plus provenance.
type RegisterPersonParams struct {
	Properties      contracts.PersonProperties
	SourceDocuments []string
	Actor           string
	SourceSystem    string
}

// RegisterPerson creates a Person holon after completeness checks. The
// identity fields are all required; category comes from a closed set.
func (m *PersonManager) RegisterPerson(ctx context.Context, params RegisterPersonParams) (*contracts.Holon, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	p := params.Properties

	if p.EDIPI == "" {
		c.fail(result, "person_edipi_required", "edipi is required")
	}
	if len(p.ServiceNumbers) == 0 {
		c.fail(result, "person_service_number_required", "at least one service number is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		c.fail(result, "person_name_required", "name is required")
	}
	if p.DateOfBirth.IsZero() {
		c.fail(result, "person_date_of_birth_required", "date of birth is required")
	}
	if p.ServiceBranch == "" {
		c.fail(result, "person_service_branch_required", "service branch is required")
	}
	if p.DesignatorRating == "" {
		c.fail(result, "person_designator_rating_required", "designator or rating is required")
	}
	if !contracts.ValidPersonCategory(p.Category) {
		c.fail(result, "person_category_invalid",
			fmt.Sprintf("category %q is not one of active_duty, reserve, civilian, contractor", p.Category))
	}
	if !result.Valid {
		return nil, result, nil
	}

	return c.createHolon(ctx, createRequest{
		eventType: contracts.EventPersonRegistered,
		actor:     params.Actor,
		payload: map[string]any{
			"edipi": p.EDIPI,
			"name":  p.Name,
		},
		holonType:       contracts.HolonPerson,
		properties:      p.PropertyMap(),
		sourceDocuments: params.SourceDocuments,
		sourceSystem:    params.SourceSystem,
	})
}

// AssignParams assigns a person to a position from EffectiveStart.
type AssignParams struct {
	PersonID        string
	PositionID      string
	EffectiveStart  time.Time
	SourceDocuments []string
	Actor           string
	SourceSystem    string
}

// AssignToPosition creates an OCCUPIES edge. Two gates run at the
// assignment's effective start: the person may not already occupy the
// configured maximum of positions, and every qualification required for
// the position must be held by the person.
func (m *PersonManager) AssignToPosition(ctx context.Context, params AssignParams) (*contracts.Relationship, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	c.requireHolon(result, params.PersonID, contracts.HolonPerson, "person")
	c.requireHolon(result, params.PositionID, contracts.HolonPosition, "position")
	if !result.Valid {
		return nil, result, nil
	}

	start := c.effectiveStart(params.EffectiveStart)
	occupied := c.rels.From(params.PersonID, contracts.RelOccupies, relationships.Filters{EffectiveAt: &start})
	limit := c.cfg.MaxConcurrentPositions
	if len(occupied) >= limit {
		c.failAs(result, contracts.CategoryConsistency, "concurrent_position_limit",
			fmt.Sprintf("person %s already occupies %d position(s) at %s; limit is %d",
				params.PersonID, len(occupied), start.Format(time.RFC3339), limit),
			params.PersonID)
		return nil, result, nil
	}

	if missing := m.missingQualifications(params.PersonID, params.PositionID, start); len(missing) > 0 {
		c.failAs(result, contracts.CategoryConsistency, "qualification_coverage_missing",
			fmt.Sprintf("person %s lacks qualification(s) required for position %s: %s",
				params.PersonID, params.PositionID, strings.Join(missing, ", ")),
			missing...)
		return nil, result, nil
	}

	return c.rels.Create(ctx, relationships.CreateParams{
		Type:            contracts.RelOccupies,
		SourceHolonID:   params.PersonID,
		TargetHolonID:   params.PositionID,
		EffectiveStart:  start,
		SourceSystem:    c.sourceSystem(params.SourceSystem),
		SourceDocuments: params.SourceDocuments,
		Actor:           params.Actor,
	})
}

// missingQualifications returns the ids of qualifications REQUIRED_FOR the
// position at the instant that are not HELD_BY the person then.
func (m *PersonManager) missingQualifications(personID, positionID string, at time.Time) []string {
	c := m.core
	var missing []string
	for _, req := range c.rels.To(positionID, contracts.RelRequiredFor, relationships.Filters{EffectiveAt: &at}) {
		qualID := req.SourceHolonID
		held := false
		for _, h := range c.rels.From(qualID, contracts.RelHeldBy, relationships.Filters{EffectiveAt: &at}) {
			if h.TargetHolonID == personID {
				held = true
				break
			}
		}
		if !held {
			missing = append(missing, qualID)
		}
	}
	return missing
}

// AwardParams records that a person earned a qualification at AwardedAt.
type AwardParams struct {
	PersonID        string
	QualificationID string
	AwardedAt       time.Time
	SourceDocuments []string
	Actor           string
	SourceSystem    string
}

// AwardQualification creates a HELD_BY edge recorded through a
// QualificationAwarded event. The edge's creation event is the anchor for
// later expiration or revocation.
func (m *PersonManager) AwardQualification(ctx context.Context, params AwardParams) (*contracts.Relationship, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	c.requireHolon(result, params.PersonID, contracts.HolonPerson, "person")
	c.requireHolon(result, params.QualificationID, contracts.HolonQualification, "qualification")
	if !result.Valid {
		return nil, result, nil
	}

	return c.rels.Create(ctx, relationships.CreateParams{
		Type:            contracts.RelHeldBy,
		SourceHolonID:   params.QualificationID,
		TargetHolonID:   params.PersonID,
		EffectiveStart:  c.effectiveStart(params.AwardedAt),
		SourceSystem:    c.sourceSystem(params.SourceSystem),
		SourceDocuments: params.SourceDocuments,
		Actor:           params.Actor,
		EventType:       contracts.EventQualificationAwarded,
	})
}

// RevokeParams revokes a held qualification effective RevokedAt.
type RevokeParams struct {
	PersonID        string
	QualificationID string
	RevokedAt       time.Time
	Reason          string
	Actor           string
	SourceSystem    string
}

// RevokeQualification ends the person's open HELD_BY edge for the
// qualification and records a QualificationRevoked event causally linked
// to the award.
func (m *PersonManager) RevokeQualification(ctx context.Context, params RevokeParams) (*contracts.Relationship, *contracts.ValidationResult, error) {
	return m.core.endHeldBy(ctx, params.QualificationID, params.PersonID, params.RevokedAt,
		params.Reason, params.Actor, params.SourceSystem, contracts.EventQualificationRevoked)
}

// endHeldBy locates the open HELD_BY edge from qualification to person and
// ends it with the given event type.
func (c *Core) endHeldBy(ctx context.Context, qualificationID, personID string, at time.Time, reason, actor, sourceSystem string, eventType contracts.EventType) (*contracts.Relationship, *contracts.ValidationResult, error) {
	result := contracts.OK()
	var open *contracts.Relationship
	for _, edge := range c.rels.From(qualificationID, contracts.RelHeldBy, relationships.Filters{}) {
		if edge.TargetHolonID == personID {
			open = edge
			break
		}
	}
	if open == nil {
		c.failAs(result, contracts.CategoryConsistency, "held_qualification_not_found",
			fmt.Sprintf("person %s holds no open %s edge for qualification %s",
				personID, contracts.RelHeldBy, qualificationID),
			personID, qualificationID)
		return nil, result, nil
	}

	return c.rels.End(ctx, relationships.EndParams{
		ID:           open.ID,
		EndDate:      c.effectiveStart(at),
		Reason:       reason,
		Actor:        actor,
		SourceSystem: c.sourceSystem(sourceSystem),
		EventType:    eventType,
	})
}

// EndAssignmentParams ends a person's occupancy of a position.
type EndAssignmentParams struct {
	PersonID     string
	PositionID   string
	EndDate      time.Time
	Reason       string
	Actor        string
	SourceSystem string
}

// EndAssignment ends the open OCCUPIES edge between the person and the
// position.
func (m *PersonManager) EndAssignment(ctx context.Context, params EndAssignmentParams) (*contracts.Relationship, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	var open *contracts.Relationship
	for _, edge := range c.rels.From(params.PersonID, contracts.RelOccupies, relationships.Filters{}) {
		if edge.TargetHolonID == params.PositionID {
			open = edge
			break
		}
	}
	if open == nil {
		c.failAs(result, contracts.CategoryConsistency, "assignment_not_found",
			fmt.Sprintf("person %s has no open assignment to position %s", params.PersonID, params.PositionID),
			params.PersonID, params.PositionID)
		return nil, result, nil
	}

	return c.rels.End(ctx, relationships.EndParams{
		ID:           open.ID,
		EndDate:      c.effectiveStart(params.EndDate),
		Reason:       params.Reason,
		Actor:        params.Actor,
		SourceSystem: c.sourceSystem(params.SourceSystem),
	})
}
