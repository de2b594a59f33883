package constraints

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/semops-labs/som/core/pkg/contracts"
)

// celValidator evaluates one compiled constraint program. Evaluation is
// fail closed: an eval error or a non-boolean result counts as a violation.
type celValidator struct {
	id       string
	name     string
	category contracts.ErrorCategory
	program  cel.Program
}

func (v *celValidator) Validate(vars map[string]any, at time.Time) []contracts.ValidationError {
	input := map[string]any{
		"holon":        map[string]any{},
		"relationship": map[string]any{},
		"event":        map[string]any{},
		"now":          at,
	}
	for k, val := range vars {
		input[k] = val
	}

	out, _, err := v.program.Eval(input)
	if err != nil {
		return []contracts.ValidationError{{
			ConstraintID: v.id,
			Message:      fmt.Sprintf("constraint %q evaluation failed: %v", v.name, err),
			ViolatedRule: v.name,
			Category:     v.category,
			Timestamp:    at,
		}}
	}
	if passed, ok := out.Value().(bool); ok && passed {
		return nil
	}
	return []contracts.ValidationError{{
		ConstraintID: v.id,
		Message:      fmt.Sprintf("constraint %q violated", v.name),
		ViolatedRule: v.name,
		Category:     v.category,
		Timestamp:    at,
	}}
}

// holonVars exposes a holon to CEL as a map. Property access reads
// holon.properties.<key>.
func holonVars(h *contracts.Holon) map[string]any {
	props := h.Properties
	if props == nil {
		props = map[string]any{}
	}
	return map[string]any{
		"id":               h.ID,
		"type":             string(h.Type),
		"properties":       props,
		"status":           string(h.Status),
		"created_at":       h.CreatedAt,
		"source_documents": h.SourceDocuments,
	}
}

func relationshipVars(r *contracts.Relationship) map[string]any {
	props := r.Properties
	if props == nil {
		props = map[string]any{}
	}
	vars := map[string]any{
		"id":              r.ID,
		"type":            string(r.Type),
		"source_holon_id": r.SourceHolonID,
		"target_holon_id": r.TargetHolonID,
		"properties":      props,
		"effective_start": r.EffectiveStart,
		"authority_level": string(r.AuthorityLevel),
		"source_system":   r.SourceSystem,
		"ended":           r.Ended(),
	}
	if r.EffectiveEnd != nil {
		vars["effective_end"] = *r.EffectiveEnd
	}
	return vars
}

func eventVars(e *contracts.Event) map[string]any {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	subjects := e.Subjects
	if subjects == nil {
		subjects = []string{}
	}
	return map[string]any{
		"id":            e.ID,
		"type":          string(e.Type),
		"occurred_at":   e.OccurredAt,
		"actor":         e.Actor,
		"subjects":      subjects,
		"payload":       payload,
		"source_system": e.SourceSystem,
	}
}
