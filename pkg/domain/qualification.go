package domain

import (
	"context"
	"strings"
	"time"

	"github.com/semops-labs/som/core/pkg/contracts"
)

// QualificationManager handles qualification definitions, their
// prerequisite graph, and expirations.
type QualificationManager struct {
	core *Core
}

// NewQualificationManager creates a QualificationManager over the shared
// core.
func NewQualificationManager(core *Core) *QualificationManager {
	return &QualificationManager{core: core}
}

// DefineQualificationParams carries a new qualification plus provenance.
type DefineQualificationParams struct {
	Properties      contracts.QualificationProperties
	SourceDocuments []string
	Actor           string
	SourceSystem    string
}

// DefineQualification creates a Qualification holon. At least one of the
// four identifiers must be set, and the validity period and renewal rules
// are required.
func (m *QualificationManager) DefineQualification(ctx context.Context, params DefineQualificationParams) (*contracts.Holon, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	p := params.Properties

	if strings.TrimSpace(p.Name) == "" {
		c.fail(result, "qualification_name_required", "name is required")
	}
	if p.NEC == "" && p.PQSID == "" && p.CourseCode == "" && p.CertificationID == "" {
		c.fail(result, "qualification_identifier_required",
			"at least one of nec, pqs_id, course_code, certification_id is required")
	}
	if p.ValidityPeriodDays <= 0 {
		c.fail(result, "qualification_validity_period_required", "validity period must be positive")
	}
	if strings.TrimSpace(p.RenewalRules) == "" {
		c.fail(result, "qualification_renewal_rules_required", "renewal rules are required")
	}
	if !result.Valid {
		return nil, result, nil
	}

	return c.createHolon(ctx, createRequest{
		eventType: contracts.EventQualificationDefined,
		actor:     params.Actor,
		payload: map[string]any{
			"name": p.Name,
		},
		holonType:       contracts.HolonQualification,
		properties:      p.PropertyMap(),
		sourceDocuments: params.SourceDocuments,
		sourceSystem:    params.SourceSystem,
	})
}

// SetPrerequisite records that earning the qualification requires holding
// the prerequisite first. Self-prerequisites and edges that would close a
// cycle in the prerequisite graph are rejected.
func (m *QualificationManager) SetPrerequisite(ctx context.Context, qualificationID, prerequisiteID string, params EdgeParams) (*contracts.Relationship, *contracts.ValidationResult, error) {
	return m.core.addDependency(ctx, qualificationID, prerequisiteID, contracts.HolonQualification, "qualification", params)
}

// ExpireParams expires a held qualification effective ExpiredAt.
type ExpireParams struct {
	PersonID        string
	QualificationID string
	ExpiredAt       time.Time
	Actor           string
	SourceSystem    string
}

// ExpireQualification ends the person's open HELD_BY edge and records a
// QualificationExpired event causally linked to the awarding event.
func (m *QualificationManager) ExpireQualification(ctx context.Context, params ExpireParams) (*contracts.Relationship, *contracts.ValidationResult, error) {
	return m.core.endHeldBy(ctx, params.QualificationID, params.PersonID, params.ExpiredAt,
		"expired", params.Actor, params.SourceSystem, contracts.EventQualificationExpired)
}
