package contracts

import (
	"time"
)

// RelationshipType enumerates the closed set of edge types.
type RelationshipType string

const (
	RelOccupies     RelationshipType = "OCCUPIES"
	RelHasQual      RelationshipType = "HAS_QUAL"
	RelRequiredFor  RelationshipType = "REQUIRED_FOR"
	RelHeldBy       RelationshipType = "HELD_BY"
	RelUses         RelationshipType = "USES"
	RelSupports     RelationshipType = "SUPPORTS"
	RelOwnedBy      RelationshipType = "OWNED_BY"
	RelGroupedUnder RelationshipType = "GROUPED_UNDER"
	RelDependsOn    RelationshipType = "DEPENDS_ON"
	RelPartOf       RelationshipType = "PART_OF"
	RelAlignedTo    RelationshipType = "ALIGNED_TO"
	RelMeasuredBy   RelationshipType = "MEASURED_BY"
)

// RelationshipTypes returns the closed set in declaration order.
func RelationshipTypes() []RelationshipType {
	return []RelationshipType{
		RelOccupies, RelHasQual, RelRequiredFor, RelHeldBy, RelUses,
		RelSupports, RelOwnedBy, RelGroupedUnder, RelDependsOn, RelPartOf,
		RelAlignedTo, RelMeasuredBy,
	}
}

// ValidRelationshipType reports whether t belongs to the closed set.
func ValidRelationshipType(t RelationshipType) bool {
	for _, known := range RelationshipTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// AuthorityLevel grades how an assertion entered the model.
type AuthorityLevel string

const (
	// AuthorityAuthoritative marks directly asserted facts.
	AuthorityAuthoritative AuthorityLevel = "authoritative"
	// AuthorityDerived marks facts computed from other assertions.
	AuthorityDerived AuthorityLevel = "derived"
	// AuthorityInferred marks heuristic facts carrying a confidence score.
	AuthorityInferred AuthorityLevel = "inferred"
)

// Relationship is a directed, temporally-scoped edge between two holons.
// EffectiveEnd is immutable once set; ended edges stay in the indices and
// are excluded only by temporal filters.
type Relationship struct {
	ID              string           `json:"id"`
	Type            RelationshipType `json:"type"`
	SourceHolonID   string           `json:"source_holon_id"`
	TargetHolonID   string           `json:"target_holon_id"`
	Properties      map[string]any   `json:"properties,omitempty"`
	EffectiveStart  time.Time        `json:"effective_start"`
	EffectiveEnd    *time.Time       `json:"effective_end,omitempty"`
	SourceSystem    string           `json:"source_system"`
	SourceDocuments []string         `json:"source_documents,omitempty"`
	CreatedBy       string           `json:"created_by"` // event id
	AuthorityLevel  AuthorityLevel   `json:"authority_level"`
	ConfidenceScore *float64         `json:"confidence_score,omitempty"`
}

// EffectiveAt reports whether the edge is in effect at the instant:
// start ≤ at, and at ≤ end when an end is set.
func (r *Relationship) EffectiveAt(at time.Time) bool {
	if at.Before(r.EffectiveStart) {
		return false
	}
	if r.EffectiveEnd != nil && at.After(*r.EffectiveEnd) {
		return false
	}
	return true
}

// Ended reports whether the edge has an effective end.
func (r *Relationship) Ended() bool {
	return r.EffectiveEnd != nil
}
