// Package contracts holds the shared domain types of the semantic core:
// holons, relationships, events, documents, constraints, validation results,
// and schema-change proposals. Engines exchange these types; none of them
// owns another; ownership is one-way by id reference.
package contracts

import (
	"time"
)

// HolonType enumerates the closed set of entity types the core models.
type HolonType string

const (
	HolonPerson        HolonType = "Person"
	HolonPosition      HolonType = "Position"
	HolonOrganization  HolonType = "Organization"
	HolonQualification HolonType = "Qualification"
	HolonMission       HolonType = "Mission"
	HolonCapability    HolonType = "Capability"
	HolonAsset         HolonType = "Asset"
	HolonObjective     HolonType = "Objective"
	HolonLOE           HolonType = "LOE"
	HolonInitiative    HolonType = "Initiative"
	HolonTask          HolonType = "Task"
	HolonSystem        HolonType = "System"
	HolonMeasure       HolonType = "Measure"
)

// HolonTypes returns the closed set in declaration order.
func HolonTypes() []HolonType {
	return []HolonType{
		HolonPerson, HolonPosition, HolonOrganization, HolonQualification,
		HolonMission, HolonCapability, HolonAsset, HolonObjective, HolonLOE,
		HolonInitiative, HolonTask, HolonSystem, HolonMeasure,
	}
}

// ValidHolonType reports whether t belongs to the closed set.
func ValidHolonType(t HolonType) bool {
	for _, known := range HolonTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// HolonStatus is the lifecycle state of a holon.
type HolonStatus string

const (
	HolonActive   HolonStatus = "active"
	HolonInactive HolonStatus = "inactive"
	HolonArchived HolonStatus = "archived"
)

// Holon is a typed entity in the semantic model. Holons own nothing; events
// and relationships reference them by id. Inactive holons remain queryable,
// they simply fail activity predicates.
type Holon struct {
	ID              string         `json:"id"`
	Type            HolonType      `json:"type"`
	Properties      map[string]any `json:"properties"`
	CreatedAt       time.Time      `json:"created_at"`
	CreatedBy       string         `json:"created_by"` // event id
	Status          HolonStatus    `json:"status"`
	SourceDocuments []string       `json:"source_documents"`
}

// IsActive reports whether the holon currently passes activity predicates.
func (h *Holon) IsActive() bool {
	return h.Status == HolonActive
}
