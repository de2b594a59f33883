package contracts

import (
	"encoding/json"
	"fmt"
	"time"
)

// HolonProperties is the typed form of a holon's property map. The map
// remains the protocol-boundary representation; inside the core each holon
// type decodes into its own record so invariants are checkable without
// casts. PropertyMap re-encodes for storage and validation.
type HolonProperties interface {
	HolonType() HolonType
	PropertyMap() map[string]any
}

// PersonCategory is the closed set of personnel categories.
type PersonCategory string

const (
	PersonActiveDuty PersonCategory = "active_duty"
	PersonReserve    PersonCategory = "reserve"
	PersonCivilian   PersonCategory = "civilian"
	PersonContractor PersonCategory = "contractor"
)

// ValidPersonCategory reports whether c belongs to the closed set.
func ValidPersonCategory(c PersonCategory) bool {
	switch c {
	case PersonActiveDuty, PersonReserve, PersonCivilian, PersonContractor:
		return true
	}
	return false
}

// MissionType is the closed set of mission types.
type MissionType string

const (
	MissionTraining  MissionType = "training"
	MissionRealWorld MissionType = "real_world"
)

// ValidMissionType reports whether t belongs to the closed set.
func ValidMissionType(t MissionType) bool {
	return t == MissionTraining || t == MissionRealWorld
}

// TaskPriority is the closed set of task priorities.
type TaskPriority string

const (
	PriorityCritical TaskPriority = "critical"
	PriorityHigh     TaskPriority = "high"
	PriorityMedium   TaskPriority = "medium"
	PriorityLow      TaskPriority = "low"
)

// ValidTaskPriority reports whether p belongs to the closed set.
func ValidTaskPriority(p TaskPriority) bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// TaskStatus is the closed set of task statuses. Completed and cancelled
// are terminal.
type TaskStatus string

const (
	TaskCreated   TaskStatus = "created"
	TaskAssigned  TaskStatus = "assigned"
	TaskStarted   TaskStatus = "started"
	TaskBlocked   TaskStatus = "blocked"
	TaskCompleted TaskStatus = "completed"
	TaskCancelled TaskStatus = "cancelled"
)

// ValidTaskStatus reports whether s belongs to the closed set.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskCreated, TaskAssigned, TaskStarted, TaskBlocked, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

// InitiativeStage is the closed set of initiative stages. Completed and
// cancelled are terminal.
type InitiativeStage string

const (
	StageProposed  InitiativeStage = "proposed"
	StageApproved  InitiativeStage = "approved"
	StagePlanned   InitiativeStage = "planned"
	StageActive    InitiativeStage = "active"
	StagePaused    InitiativeStage = "paused"
	StageCompleted InitiativeStage = "completed"
	StageCancelled InitiativeStage = "cancelled"
)

// ValidInitiativeStage reports whether s belongs to the closed set.
func ValidInitiativeStage(s InitiativeStage) bool {
	switch s {
	case StageProposed, StageApproved, StagePlanned, StageActive, StagePaused, StageCompleted, StageCancelled:
		return true
	}
	return false
}

// PersonProperties are the typed properties of a Person holon.
type PersonProperties struct {
	EDIPI            string         `json:"edipi"`
	ServiceNumbers   []string       `json:"service_numbers"`
	Name             string         `json:"name"`
	DateOfBirth      time.Time      `json:"date_of_birth"`
	ServiceBranch    string         `json:"service_branch"`
	DesignatorRating string         `json:"designator_rating"`
	Category         PersonCategory `json:"category"`
}

func (PersonProperties) HolonType() HolonType { return HolonPerson }

// PositionProperties are the typed properties of a Position holon.
type PositionProperties struct {
	Title      string `json:"title"`
	BilletCode string `json:"billet_code,omitempty"`
	Paygrade   string `json:"paygrade,omitempty"`
	Location   string `json:"location,omitempty"`
}

func (PositionProperties) HolonType() HolonType { return HolonPosition }

// OrganizationProperties are the typed properties of an Organization holon.
type OrganizationProperties struct {
	Name    string `json:"name"`
	UIC     string `json:"uic,omitempty"`
	Echelon string `json:"echelon,omitempty"`
}

func (OrganizationProperties) HolonType() HolonType { return HolonOrganization }

// QualificationProperties are the typed properties of a Qualification holon.
// At least one of NEC, PQSID, CourseCode, CertificationID identifies it.
type QualificationProperties struct {
	Name               string `json:"name"`
	NEC                string `json:"nec,omitempty"`
	PQSID              string `json:"pqs_id,omitempty"`
	CourseCode         string `json:"course_code,omitempty"`
	CertificationID    string `json:"certification_id,omitempty"`
	ValidityPeriodDays int    `json:"validity_period_days"`
	RenewalRules       string `json:"renewal_rules"`
}

func (QualificationProperties) HolonType() HolonType { return HolonQualification }

// MissionProperties are the typed properties of a Mission holon.
type MissionProperties struct {
	OperationName   string      `json:"operation_name"`
	OperationNumber string      `json:"operation_number"`
	MissionType     MissionType `json:"mission_type"`
	Classification  string      `json:"classification"`
	StartDate       time.Time   `json:"start_date"`
	EndDate         *time.Time  `json:"end_date,omitempty"`
	Phase           string      `json:"phase,omitempty"`
}

func (MissionProperties) HolonType() HolonType { return HolonMission }

// CapabilityProperties are the typed properties of a Capability holon.
type CapabilityProperties struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

func (CapabilityProperties) HolonType() HolonType { return HolonCapability }

// AssetProperties are the typed properties of an Asset holon.
type AssetProperties struct {
	Name         string `json:"name"`
	AssetType    string `json:"asset_type,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

func (AssetProperties) HolonType() HolonType { return HolonAsset }

// ObjectiveProperties are the typed properties of an Objective holon.
type ObjectiveProperties struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	TargetDate  *time.Time `json:"target_date,omitempty"`
}

func (ObjectiveProperties) HolonType() HolonType { return HolonObjective }

// LOEProperties are the typed properties of a Line of Effort holon.
type LOEProperties struct {
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	SponsorEchelon string     `json:"sponsor_echelon,omitempty"`
	TimeframeStart time.Time  `json:"timeframe_start"`
	TimeframeEnd   *time.Time `json:"timeframe_end,omitempty"`
}

func (LOEProperties) HolonType() HolonType { return HolonLOE }

// InitiativeProperties are the typed properties of an Initiative holon.
type InitiativeProperties struct {
	Name    string          `json:"name"`
	Scope   string          `json:"scope"`
	Sponsor string          `json:"sponsor"`
	Stage   InitiativeStage `json:"stage"`
}

func (InitiativeProperties) HolonType() HolonType { return HolonInitiative }

// TaskProperties are the typed properties of a Task holon.
type TaskProperties struct {
	Description string       `json:"description"`
	TaskType    string       `json:"task_type"`
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`
	DueDate     time.Time    `json:"due_date"`
	Assignee    string       `json:"assignee,omitempty"`
}

func (TaskProperties) HolonType() HolonType { return HolonTask }

// SystemProperties are the typed properties of a System holon.
type SystemProperties struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

func (SystemProperties) HolonType() HolonType { return HolonSystem }

// MeasureProperties are the typed properties of a Measure holon.
type MeasureProperties struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Calculation string   `json:"calculation,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Outputs     []string `json:"outputs,omitempty"`
}

func (MeasureProperties) HolonType() HolonType { return HolonMeasure }

func (p PersonProperties) PropertyMap() map[string]any        { return toMap(p) }
func (p PositionProperties) PropertyMap() map[string]any      { return toMap(p) }
func (p OrganizationProperties) PropertyMap() map[string]any  { return toMap(p) }
func (p QualificationProperties) PropertyMap() map[string]any { return toMap(p) }
func (p MissionProperties) PropertyMap() map[string]any       { return toMap(p) }
func (p CapabilityProperties) PropertyMap() map[string]any    { return toMap(p) }
func (p AssetProperties) PropertyMap() map[string]any         { return toMap(p) }
func (p ObjectiveProperties) PropertyMap() map[string]any     { return toMap(p) }
func (p LOEProperties) PropertyMap() map[string]any           { return toMap(p) }
func (p InitiativeProperties) PropertyMap() map[string]any    { return toMap(p) }
func (p TaskProperties) PropertyMap() map[string]any          { return toMap(p) }
func (p SystemProperties) PropertyMap() map[string]any        { return toMap(p) }
func (p MeasureProperties) PropertyMap() map[string]any       { return toMap(p) }

// DecodeProperties decodes a boundary property map into the typed record
// for the holon type. Unknown keys are dropped; missing keys decode to zero
// values, leaving completeness checks to the domain managers.
func DecodeProperties(t HolonType, props map[string]any) (HolonProperties, error) {
	var target HolonProperties
	switch t {
	case HolonPerson:
		target = &PersonProperties{}
	case HolonPosition:
		target = &PositionProperties{}
	case HolonOrganization:
		target = &OrganizationProperties{}
	case HolonQualification:
		target = &QualificationProperties{}
	case HolonMission:
		target = &MissionProperties{}
	case HolonCapability:
		target = &CapabilityProperties{}
	case HolonAsset:
		target = &AssetProperties{}
	case HolonObjective:
		target = &ObjectiveProperties{}
	case HolonLOE:
		target = &LOEProperties{}
	case HolonInitiative:
		target = &InitiativeProperties{}
	case HolonTask:
		target = &TaskProperties{}
	case HolonSystem:
		target = &SystemProperties{}
	case HolonMeasure:
		target = &MeasureProperties{}
	default:
		return nil, fmt.Errorf("unknown holon type %q", t)
	}

	raw, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("failed to encode properties: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("failed to decode %s properties: %w", t, err)
	}
	return deref(target), nil
}

// deref returns the value form so callers can type-switch on structs.
func deref(p HolonProperties) HolonProperties {
	switch v := p.(type) {
	case *PersonProperties:
		return *v
	case *PositionProperties:
		return *v
	case *OrganizationProperties:
		return *v
	case *QualificationProperties:
		return *v
	case *MissionProperties:
		return *v
	case *CapabilityProperties:
		return *v
	case *AssetProperties:
		return *v
	case *ObjectiveProperties:
		return *v
	case *LOEProperties:
		return *v
	case *InitiativeProperties:
		return *v
	case *TaskProperties:
		return *v
	case *SystemProperties:
		return *v
	case *MeasureProperties:
		return *v
	}
	return p
}

func toMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}
