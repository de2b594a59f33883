package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/semops-labs/som/core/pkg/contracts"
)

// foldName reduces a type or property name to its collision-comparison
// form: NFC-normalized, lowercased, with separators and decoration removed.
// "Line-Of-Effort", "line_of_effort", and "LineOfEffort" all collide.
func foldName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(norm.NFC.String(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DetectHolonCollision compares a proposed holon type definition against
// the registered catalog. Name collisions are case and decoration
// insensitive; property overlaps are reported for review but do not by
// themselves mark the analysis as colliding.
func (r *Registry) DetectHolonCollision(def *contracts.HolonTypeDefinition) *contracts.CollisionAnalysis {
	r.mu.RLock()
	defer r.mu.RUnlock()

	analysis := &contracts.CollisionAnalysis{}
	folded := foldName(def.Type)
	proposedProps := foldProperties(append(def.RequiredProperties, def.OptionalProperties...))

	for _, name := range r.holonOrder {
		existing := r.holonDefs[name]
		if foldName(existing.Type) == folded {
			analysis.NameCollisions = append(analysis.NameCollisions, existing.Type)
		}
		existingProps := foldProperties(append(existing.RequiredProperties, existing.OptionalProperties...))
		for prop, original := range proposedProps {
			if _, shared := existingProps[prop]; shared {
				analysis.PropertyOverlaps = append(analysis.PropertyOverlaps, contracts.PropertyOverlap{
					ExistingType: existing.Type,
					Property:     original,
				})
			}
		}
	}

	analysis.HasCollisions = len(analysis.NameCollisions) > 0
	analysis.Notes = collisionNotes(analysis)
	return analysis
}

// DetectRelationshipCollision is the relationship-type counterpart.
func (r *Registry) DetectRelationshipCollision(def *contracts.RelationshipTypeDefinition) *contracts.CollisionAnalysis {
	r.mu.RLock()
	defer r.mu.RUnlock()

	analysis := &contracts.CollisionAnalysis{}
	folded := foldName(def.Type)
	proposedProps := foldProperties(def.Properties)

	for _, name := range r.relOrder {
		existing := r.relDefs[name]
		if foldName(existing.Type) == folded {
			analysis.NameCollisions = append(analysis.NameCollisions, existing.Type)
		}
		existingProps := foldProperties(existing.Properties)
		for prop, original := range proposedProps {
			if _, shared := existingProps[prop]; shared {
				analysis.PropertyOverlaps = append(analysis.PropertyOverlaps, contracts.PropertyOverlap{
					ExistingType: existing.Type,
					Property:     original,
				})
			}
		}
	}

	analysis.HasCollisions = len(analysis.NameCollisions) > 0
	analysis.Notes = collisionNotes(analysis)
	return analysis
}

// foldProperties maps folded property names back to their original spelling.
func foldProperties(props []contracts.PropertyDefinition) map[string]string {
	out := make(map[string]string, len(props))
	for _, p := range props {
		out[foldName(p.Name)] = p.Name
	}
	return out
}

func collisionNotes(a *contracts.CollisionAnalysis) string {
	if len(a.NameCollisions) == 0 && len(a.PropertyOverlaps) == 0 {
		return "no collisions detected"
	}
	return fmt.Sprintf("%d name collision(s), %d property overlap(s)",
		len(a.NameCollisions), len(a.PropertyOverlaps))
}

// normalizeForSchema round-trips a property map through JSON so typed
// values (time.Time and friends) validate as their wire representation.
func normalizeForSchema(props map[string]any) any {
	raw, err := json.Marshal(props)
	if err != nil {
		return props
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return props
	}
	return out
}
