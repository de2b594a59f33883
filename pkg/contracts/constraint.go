package contracts

import (
	"time"
)

// ConstraintType categorizes what a constraint governs.
type ConstraintType string

const (
	ConstraintStructural ConstraintType = "structural"
	ConstraintPolicy     ConstraintType = "policy"
	ConstraintTemporal   ConstraintType = "temporal"
)

// ConstraintScope names the holon, relationship, and event types a
// constraint applies to. Any subset may be populated.
type ConstraintScope struct {
	HolonTypes        []HolonType        `json:"holon_types,omitempty"`
	RelationshipTypes []RelationshipType `json:"relationship_types,omitempty"`
	EventTypes        []EventType        `json:"event_types,omitempty"`
}

// InheritanceRules let a constraint flow down to other holon types and
// declare whether a direct constraint of the same name may replace it.
type InheritanceRules struct {
	InheritsFrom       []HolonType `json:"inherits_from"`
	CanOverride        bool        `json:"can_override"`
	OverridePrecedence int         `json:"override_precedence"`
}

// Validator is the evaluation half of a constraint. The engine dispatches
// through this interface; vars binds "holon", "relationship", or "event" to
// the subject's map form, and at is the effective validation timestamp.
// A nil or empty slice means the subject passes.
type Validator interface {
	Validate(vars map[string]any, at time.Time) []ValidationError
}

// Constraint pairs declarative metadata with a registered validator.
// SourceDocuments ground its authority; Precedence breaks name collisions
// during inheritance merge (higher wins).
type Constraint struct {
	ID               string            `json:"id"`
	Type             ConstraintType    `json:"type"`
	Name             string            `json:"name"`
	Definition       string            `json:"definition"`
	Scope            ConstraintScope   `json:"scope"`
	EffectiveDates   *EffectiveDates   `json:"effective_dates,omitempty"`
	SourceDocuments  []string          `json:"source_documents"`
	Precedence       int               `json:"precedence"`
	InheritanceRules *InheritanceRules `json:"inheritance_rules,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`

	Validator Validator `json:"-"`
}

// EffectiveAtTime reports whether the constraint applies at the instant.
// A constraint without effective dates always applies.
func (c *Constraint) EffectiveAtTime(at time.Time) bool {
	if c.EffectiveDates == nil {
		return true
	}
	return c.EffectiveDates.Covers(at)
}
