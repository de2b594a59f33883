package contracts

import (
	"encoding/json"
	"time"
)

// ProposalType enumerates the kinds of schema change a proposal can carry.
type ProposalType string

const (
	ProposalAddHolonType  ProposalType = "add_holon_type"
	ProposalAddConstraint ProposalType = "add_constraint"
	ProposalAddMeasure    ProposalType = "add_measure"
	ProposalAddLens       ProposalType = "add_lens"
	ProposalModifyType    ProposalType = "modify_type"
	ProposalDeprecateType ProposalType = "deprecate_type"
)

// ProposalStatus is the lifecycle state of a proposal. Approved and
// rejected are terminal.
type ProposalStatus string

const (
	ProposalProposed ProposalStatus = "proposed"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

// PropertyDefinition describes one property of a proposed type.
type PropertyDefinition struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// HolonTypeDefinition is the payload of an add_holon_type proposal and the
// registered form of a holon type in the schema registry. PropertySchema is
// a JSON Schema applied to holon properties of this type.
type HolonTypeDefinition struct {
	Type                string               `json:"type"`
	Description         string               `json:"description"`
	SourceDocuments     []string             `json:"source_documents"`
	RequiredProperties  []PropertyDefinition `json:"required_properties,omitempty"`
	OptionalProperties  []PropertyDefinition `json:"optional_properties,omitempty"`
	PropertySchema      json.RawMessage      `json:"property_schema,omitempty"`
	IntroducedInVersion string               `json:"introduced_in_version,omitempty"`
	SchemaVersionID     string               `json:"schema_version_id,omitempty"`
}

// RelationshipTypeDefinition is the registered form of a relationship type.
type RelationshipTypeDefinition struct {
	Type                string               `json:"type"`
	Description         string               `json:"description"`
	SourceTypes         []HolonType          `json:"source_types,omitempty"`
	TargetTypes         []HolonType          `json:"target_types,omitempty"`
	SourceDocuments     []string             `json:"source_documents"`
	Properties          []PropertyDefinition `json:"properties,omitempty"`
	PropertySchema      json.RawMessage      `json:"property_schema,omitempty"`
	IntroducedInVersion string               `json:"introduced_in_version,omitempty"`
	SchemaVersionID     string               `json:"schema_version_id,omitempty"`
}

// ConstraintDefinition is the payload of an add_constraint proposal.
// Definition is the human-readable rule text; ValidationLogic is the
// executable expression handed to the constraint engine on approval.
type ConstraintDefinition struct {
	Name              string          `json:"name"`
	Type              ConstraintType  `json:"type,omitempty"`
	Definition        string          `json:"definition"`
	ValidationLogic   string          `json:"validation_logic"`
	Scope             ConstraintScope `json:"scope,omitempty"`
	DefiningDocuments []string        `json:"defining_documents"`
}

// MeasureDefinition is the payload of an add_measure proposal.
type MeasureDefinition struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Calculation       string   `json:"calculation"`
	Outputs           []string `json:"outputs"`
	DefiningDocuments []string `json:"defining_documents"`
}

// LensDefinition is the payload of an add_lens proposal.
type LensDefinition struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Logic             string   `json:"logic"`
	Outputs           []string `json:"outputs"`
	DefiningDocuments []string `json:"defining_documents"`
}

// PropertyOverlap reports a shared property between a proposed type and an
// existing one.
type PropertyOverlap struct {
	ExistingType string `json:"existing_type"`
	Property     string `json:"property"`
}

// CollisionAnalysis is the outcome of comparing a proposed definition
// against registered types.
type CollisionAnalysis struct {
	HasCollisions    bool              `json:"has_collisions"`
	NameCollisions   []string          `json:"name_collisions,omitempty"`
	PropertyOverlaps []PropertyOverlap `json:"property_overlaps,omitempty"`
	Notes            string            `json:"notes,omitempty"`
}

// ImpactAnalysis estimates the blast radius of a proposal. Breaking drives
// the major-versus-minor schema version bump on approval.
type ImpactAnalysis struct {
	Breaking      bool     `json:"breaking"`
	AffectedTypes []string `json:"affected_types,omitempty"`
	AffectedCount int      `json:"affected_count"`
	Summary       string   `json:"summary,omitempty"`
}

// SchemaChangeProposal carries one proposed change through governance.
// Exactly one payload field matching ProposalType is populated; TargetType
// names the subject of modify_type and deprecate_type proposals.
type SchemaChangeProposal struct {
	ID                 string             `json:"id"`
	ProposalType       ProposalType       `json:"proposal_type"`
	Status             ProposalStatus     `json:"status"`
	ReferenceDocuments []string           `json:"reference_documents"`
	ExampleUseCases    []string           `json:"example_use_cases,omitempty"`
	CollisionAnalysis  *CollisionAnalysis `json:"collision_analysis,omitempty"`
	ImpactAnalysis     *ImpactAnalysis    `json:"impact_analysis,omitempty"`

	HolonTypeDefinition  *HolonTypeDefinition  `json:"holon_type_definition,omitempty"`
	ConstraintDefinition *ConstraintDefinition `json:"constraint_definition,omitempty"`
	MeasureDefinition    *MeasureDefinition    `json:"measure_definition,omitempty"`
	LensDefinition       *LensDefinition       `json:"lens_definition,omitempty"`
	TargetType           string                `json:"target_type,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by,omitempty"`

	DecisionDocumentID string     `json:"decision_document_id,omitempty"`
	DecisionRationale  string     `json:"decision_rationale,omitempty"`
	DecidedAt          *time.Time `json:"decided_at,omitempty"`
	DecidedBy          string     `json:"decided_by,omitempty"`
}

// Decided reports whether the proposal reached a terminal status.
func (p *SchemaChangeProposal) Decided() bool {
	return p.Status == ProposalApproved || p.Status == ProposalRejected
}
