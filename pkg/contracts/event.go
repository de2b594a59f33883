package contracts

import (
	"time"
)

// EventType enumerates the closed set of domain events.
type EventType string

const (
	EventObjectiveCreated       EventType = "ObjectiveCreated"
	EventKeyResultDefined       EventType = "KeyResultDefined"
	EventAssignmentStarted      EventType = "AssignmentStarted"
	EventAssignmentEnded        EventType = "AssignmentEnded"
	EventAssignmentCorrected    EventType = "AssignmentCorrected"
	EventQualificationAwarded   EventType = "QualificationAwarded"
	EventQualificationExpired   EventType = "QualificationExpired"
	EventQualificationRevoked   EventType = "QualificationRevoked"
	EventMissionPlanned         EventType = "MissionPlanned"
	EventMissionLaunched        EventType = "MissionLaunched"
	EventMissionCompleted       EventType = "MissionCompleted"
	EventMissionPhaseTransition EventType = "MissionPhaseTransition"
	EventPositionCreated        EventType = "PositionCreated"
	EventPositionModified       EventType = "PositionModified"
	EventOrganizationCreated    EventType = "OrganizationCreated"
	EventSystemDeployed         EventType = "SystemDeployed"
	EventTaskCreated            EventType = "TaskCreated"
	EventTaskStarted            EventType = "TaskStarted"
	EventTaskCompleted          EventType = "TaskCompleted"
	EventTaskCancelled          EventType = "TaskCancelled"
	EventTaskTransitioned       EventType = "TaskTransitioned"
	EventLOECreated             EventType = "LOECreated"
	EventPersonRegistered       EventType = "PersonRegistered"
	EventQualificationDefined   EventType = "QualificationDefined"
	EventInitiativeCreated      EventType = "InitiativeCreated"
	EventInitiativeTransitioned EventType = "InitiativeTransitioned"
	EventCapabilityRegistered   EventType = "CapabilityRegistered"
	EventAssetRegistered        EventType = "AssetRegistered"
	EventMeasureDefined         EventType = "MeasureDefined"
	EventProposalDecided        EventType = "ProposalDecided"
)

// ValidityWindow is the span during which an event's payload is in effect.
type ValidityWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CausalLinks reference earlier events this one follows from. PrecededBy
// marks ordering without implication; CausedBy marks direct causation.
type CausalLinks struct {
	PrecededBy []string `json:"preceded_by,omitempty"`
	CausedBy   []string `json:"caused_by,omitempty"`
}

// All returns the union of both link lists.
func (c CausalLinks) All() []string {
	out := make([]string, 0, len(c.PrecededBy)+len(c.CausedBy))
	out = append(out, c.PrecededBy...)
	out = append(out, c.CausedBy...)
	return out
}

// Event is an immutable fact. OccurredAt is when the fact happened in the
// world; RecordedAt is when the store accepted it. Corrections never mutate
// an event; they arrive as compensating events linked through CausalLinks.
type Event struct {
	ID             string          `json:"id"`
	Type           EventType       `json:"type"`
	OccurredAt     time.Time       `json:"occurred_at"`
	RecordedAt     time.Time       `json:"recorded_at"`
	Actor          string          `json:"actor"` // holon id
	Subjects       []string        `json:"subjects"`
	Payload        map[string]any  `json:"payload,omitempty"`
	SourceSystem   string          `json:"source_system"`
	SourceDocument string          `json:"source_document,omitempty"`
	ValidityWindow *ValidityWindow `json:"validity_window,omitempty"`
	CausalLinks    CausalLinks     `json:"causal_links"`
}
