package contracts

import (
	"time"
)

// EffectiveDates is a period of force. End may be open.
type EffectiveDates struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// Covers reports whether the instant lies within the period:
// start ≤ at, and at ≤ end when an end is set.
func (d EffectiveDates) Covers(at time.Time) bool {
	if at.Before(d.Start) {
		return false
	}
	if d.End != nil && at.After(*d.End) {
		return false
	}
	return true
}

// DocTypeDecisionRecord marks governance decision documents. Persistence
// keeps them in their own log, apart from ordinary sources of record.
const DocTypeDecisionRecord = "decision_record"

// Document is a versioned authoritative source of record. Documents ground
// constraints and governance decisions; there is no history rewrite, only
// new versions.
type Document struct {
	ID                     string            `json:"id"`
	ReferenceNumbers       []string          `json:"reference_numbers,omitempty"`
	Title                  string            `json:"title"`
	DocumentType           string            `json:"document_type"`
	Version                string            `json:"version"`
	EffectiveDates         EffectiveDates    `json:"effective_dates"`
	ClassificationMetadata map[string]string `json:"classification_metadata,omitempty"`
	// Content is opaque to the core. Large content may be offloaded to a
	// blob store; ContentDigest then addresses it.
	Content           string   `json:"content,omitempty"`
	ContentDigest     string   `json:"content_digest,omitempty"`
	CreatedByEvent    string   `json:"created_by_event"`
	LinkedConstraints []string `json:"linked_constraints,omitempty"`
}

// InForceAt reports whether the document's period of force covers the instant.
func (d *Document) InForceAt(at time.Time) bool {
	return d.EffectiveDates.Covers(at)
}
