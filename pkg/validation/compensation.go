package validation

import (
	"context"
	"fmt"
	"maps"

	"github.com/semops-labs/som/core/pkg/contracts"
	"github.com/semops-labs/som/core/pkg/eventstore"
)

// Submitter records compensating events. The event store satisfies it.
type Submitter interface {
	Submit(ctx context.Context, params eventstore.SubmitParams) (*contracts.Event, *contracts.ValidationResult, error)
}

// CompensationMetadata authorizes and explains a correction.
type CompensationMetadata struct {
	AuthorizedBy   string `json:"authorized_by"`
	Reason         string `json:"reason"`
	CorrectionType string `json:"correction_type"`
}

// compensationTarget maps an original event type to its compensating type.
// Cancellations always compensate as TaskCancelled; unrecognized types fall
// back to a generic correction.
func compensationTarget(t contracts.EventType, correctionType string) contracts.EventType {
	if correctionType == "cancellation" {
		return contracts.EventTaskCancelled
	}
	switch t {
	case contracts.EventAssignmentStarted:
		return contracts.EventAssignmentEnded
	case contracts.EventQualificationAwarded:
		return contracts.EventQualificationRevoked
	case contracts.EventTaskStarted:
		return contracts.EventTaskCompleted
	case contracts.EventMissionLaunched:
		return contracts.EventMissionCompleted
	default:
		return contracts.EventAssignmentCorrected
	}
}

// CreateCompensatingEvent corrects a recorded event by emitting its
// compensating counterpart. The original is never mutated; the new event
// carries the correction provenance in its payload and is causally linked
// to the original.
func (e *Engine) CreateCompensatingEvent(ctx context.Context, originalID string, metadata CompensationMetadata, correctionPayload map[string]any) (*contracts.Event, *contracts.ValidationResult, error) {
	if e.submitter == nil {
		return nil, nil, fmt.Errorf("no event submitter wired")
	}

	original, ok := e.events.Get(originalID)
	if !ok {
		result := contracts.Failed(contracts.ValidationError{
			Message:      fmt.Sprintf("original event %s not found", originalID),
			ViolatedRule: "compensation_original_missing",
			Category:     contracts.CategoryIntegration,
			Timestamp:    e.clock(),
		})
		return nil, result, nil
	}

	payload := make(map[string]any, len(correctionPayload)+1)
	maps.Copy(payload, correctionPayload)
	payload["compensatingMetadata"] = map[string]any{
		"originalEventId": original.ID,
		"reason":          metadata.Reason,
		"correctionType":  metadata.CorrectionType,
		"originalPayload": original.Payload,
	}

	return e.submitter.Submit(ctx, eventstore.SubmitParams{
		Type:           compensationTarget(original.Type, metadata.CorrectionType),
		OccurredAt:     e.clock(),
		Actor:          metadata.AuthorizedBy,
		Subjects:       original.Subjects,
		Payload:        payload,
		SourceSystem:   original.SourceSystem,
		SourceDocument: original.SourceDocument,
		CausalLinks:    contracts.CausalLinks{CausedBy: []string{original.ID}},
	})
}
