package domain

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/semops-labs/som/core/pkg/contracts"
	"github.com/semops-labs/som/core/pkg/eventstore"
	"github.com/semops-labs/som/core/pkg/relationships"
)

// taskTransitions is the task status machine. Absent keys are terminal.
var taskTransitions = map[contracts.TaskStatus][]contracts.TaskStatus{
	contracts.TaskCreated:  {contracts.TaskAssigned, contracts.TaskCancelled},
	contracts.TaskAssigned: {contracts.TaskStarted, contracts.TaskCancelled},
	contracts.TaskStarted:  {contracts.TaskBlocked, contracts.TaskCompleted, contracts.TaskCancelled},
	contracts.TaskBlocked:  {contracts.TaskStarted, contracts.TaskCancelled},
}

// initiativeTransitions is the initiative stage machine. Absent keys are
// terminal.
var initiativeTransitions = map[contracts.InitiativeStage][]contracts.InitiativeStage{
	contracts.StageProposed: {contracts.StageApproved, contracts.StageCancelled},
	contracts.StageApproved: {contracts.StagePlanned, contracts.StageCancelled},
	contracts.StagePlanned:  {contracts.StageActive, contracts.StageCancelled},
	contracts.StageActive:   {contracts.StagePaused, contracts.StageCompleted, contracts.StageCancelled},
	contracts.StagePaused:   {contracts.StageActive, contracts.StageCancelled},
}

// InitiativeManager handles initiatives, their tasks, and both state
// machines. Statuses are event-sourced: the holon keeps its creation-time
// properties and every later transition is an event folded at read time.
type InitiativeManager struct {
	core *Core
}

// NewInitiativeManager creates an InitiativeManager over the shared core.
func NewInitiativeManager(core *Core) *InitiativeManager {
	return &InitiativeManager{core: core}
}

// CreateInitiativeParams carries a new initiative plus provenance.
type CreateInitiativeParams struct {
	Properties      contracts.InitiativeProperties
	SourceDocuments []string
	Actor           string
	SourceSystem    string
}

// CreateInitiative creates an Initiative holon. Name, scope, and sponsor
// must be non-empty after trimming; the stage comes from the closed set.
func (m *InitiativeManager) CreateInitiative(ctx context.Context, params CreateInitiativeParams) (*contracts.Holon, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	p := params.Properties

	if strings.TrimSpace(p.Name) == "" {
		c.fail(result, "initiative_name_required", "name is required")
	}
	if strings.TrimSpace(p.Scope) == "" {
		c.fail(result, "initiative_scope_required", "scope is required")
	}
	if strings.TrimSpace(p.Sponsor) == "" {
		c.fail(result, "initiative_sponsor_required", "sponsor is required")
	}
	if !contracts.ValidInitiativeStage(p.Stage) {
		c.fail(result, "initiative_stage_invalid", fmt.Sprintf("stage %q is not in the closed set", p.Stage))
	}
	if !result.Valid {
		return nil, result, nil
	}

	return c.createHolon(ctx, createRequest{
		eventType:       contracts.EventInitiativeCreated,
		actor:           params.Actor,
		payload:         map[string]any{"name": p.Name, "stage": string(p.Stage)},
		holonType:       contracts.HolonInitiative,
		properties:      p.PropertyMap(),
		sourceDocuments: params.SourceDocuments,
		sourceSystem:    params.SourceSystem,
	})
}

// AlignToObjective records that the initiative advances the objective.
func (m *InitiativeManager) AlignToObjective(ctx context.Context, initiativeID, objectiveID string, params EdgeParams) (*contracts.Relationship, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	c.requireHolon(result, initiativeID, contracts.HolonInitiative, "initiative")
	c.requireHolon(result, objectiveID, contracts.HolonObjective, "objective")
	if !result.Valid {
		return nil, result, nil
	}

	return c.rels.Create(ctx, relationships.CreateParams{
		Type:            contracts.RelAlignedTo,
		SourceHolonID:   initiativeID,
		TargetHolonID:   objectiveID,
		EffectiveStart:  c.effectiveStart(params.EffectiveStart),
		SourceSystem:    c.sourceSystem(params.SourceSystem),
		SourceDocuments: params.SourceDocuments,
		Actor:           params.Actor,
	})
}

// CreateTaskParams carries a new task plus provenance.
type CreateTaskParams struct {
	Properties      contracts.TaskProperties
	SourceDocuments []string
	Actor           string
	SourceSystem    string
}

// CreateTask creates a Task holon. Description and type must be non-empty
// after trimming; priority and status come from their closed sets; a due
// date is required.
func (m *InitiativeManager) CreateTask(ctx context.Context, params CreateTaskParams) (*contracts.Holon, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	p := params.Properties

	if strings.TrimSpace(p.Description) == "" {
		c.fail(result, "task_description_required", "description is required")
	}
	if strings.TrimSpace(p.TaskType) == "" {
		c.fail(result, "task_type_required", "task type is required")
	}
	if !contracts.ValidTaskPriority(p.Priority) {
		c.fail(result, "task_priority_invalid",
			fmt.Sprintf("priority %q is not one of critical, high, medium, low", p.Priority))
	}
	if !contracts.ValidTaskStatus(p.Status) {
		c.fail(result, "task_status_invalid", fmt.Sprintf("status %q is not in the closed set", p.Status))
	}
	if p.DueDate.IsZero() {
		c.fail(result, "task_due_date_required", "due date is required")
	}
	if !result.Valid {
		return nil, result, nil
	}

	return c.createHolon(ctx, createRequest{
		eventType:       contracts.EventTaskCreated,
		actor:           params.Actor,
		payload:         map[string]any{"description": p.Description, "status": string(p.Status)},
		holonType:       contracts.HolonTask,
		properties:      p.PropertyMap(),
		sourceDocuments: params.SourceDocuments,
		sourceSystem:    params.SourceSystem,
	})
}

// AttachTaskToInitiative records that the task is part of the initiative.
func (m *InitiativeManager) AttachTaskToInitiative(ctx context.Context, taskID, initiativeID string, params EdgeParams) (*contracts.Relationship, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	c.requireHolon(result, taskID, contracts.HolonTask, "task")
	c.requireHolon(result, initiativeID, contracts.HolonInitiative, "initiative")
	if !result.Valid {
		return nil, result, nil
	}

	return c.rels.Create(ctx, relationships.CreateParams{
		Type:            contracts.RelPartOf,
		SourceHolonID:   taskID,
		TargetHolonID:   initiativeID,
		EffectiveStart:  c.effectiveStart(params.EffectiveStart),
		SourceSystem:    c.sourceSystem(params.SourceSystem),
		SourceDocuments: params.SourceDocuments,
		Actor:           params.Actor,
	})
}

// AddTaskDependency records that one task depends on another. The task
// dependency graph stays acyclic.
func (m *InitiativeManager) AddTaskDependency(ctx context.Context, taskID, dependsOnID string, params EdgeParams) (*contracts.Relationship, *contracts.ValidationResult, error) {
	return m.core.addDependency(ctx, taskID, dependsOnID, contracts.HolonTask, "task", params)
}

// TransitionParams moves a task or initiative to a new state.
type TransitionParams struct {
	ID           string
	Reason       string
	OccurredAt   time.Time
	Actor        string
	SourceSystem string
}

// TransitionTask moves the task to the requested status when the status
// machine allows it. Completed and cancelled tasks are immutable.
func (m *InitiativeManager) TransitionTask(ctx context.Context, to contracts.TaskStatus, params TransitionParams) (*contracts.Event, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	if c.requireHolon(result, params.ID, contracts.HolonTask, "task") == nil {
		return nil, result, nil
	}
	if !contracts.ValidTaskStatus(to) {
		c.fail(result, "task_status_invalid", fmt.Sprintf("status %q is not in the closed set", to))
		return nil, result, nil
	}

	current, _ := m.TaskStatus(params.ID)
	allowed, ok := taskTransitions[current]
	if !ok {
		c.fail(result, "task_status_terminal",
			fmt.Sprintf("task %s is in terminal status %s", params.ID, current), params.ID)
		return nil, result, nil
	}
	if !slices.Contains(allowed, to) {
		c.fail(result, "task_transition_invalid",
			fmt.Sprintf("cannot transition task from %s to %s", current, to), params.ID)
		return nil, result, nil
	}

	eventType := contracts.EventTaskTransitioned
	switch to {
	case contracts.TaskStarted:
		eventType = contracts.EventTaskStarted
	case contracts.TaskCompleted:
		eventType = contracts.EventTaskCompleted
	case contracts.TaskCancelled:
		eventType = contracts.EventTaskCancelled
	}

	payload := map[string]any{
		"from_status": string(current),
		"to_status":   string(to),
	}
	if params.Reason != "" {
		payload["reason"] = params.Reason
	}
	var links contracts.CausalLinks
	if prev := m.lastTransition(params.ID, taskTransitionTypes); prev != "" {
		links.PrecededBy = []string{prev}
	}
	return c.events.Submit(ctx, eventstore.SubmitParams{
		Type:         eventType,
		OccurredAt:   c.effectiveStart(params.OccurredAt),
		Actor:        params.Actor,
		Subjects:     []string{params.ID},
		Payload:      payload,
		SourceSystem: c.sourceSystem(params.SourceSystem),
		CausalLinks:  links,
	})
}

// TransitionInitiative moves the initiative to the requested stage when
// the stage machine allows it. Completed and cancelled initiatives are
// immutable.
func (m *InitiativeManager) TransitionInitiative(ctx context.Context, to contracts.InitiativeStage, params TransitionParams) (*contracts.Event, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	if c.requireHolon(result, params.ID, contracts.HolonInitiative, "initiative") == nil {
		return nil, result, nil
	}
	if !contracts.ValidInitiativeStage(to) {
		c.fail(result, "initiative_stage_invalid", fmt.Sprintf("stage %q is not in the closed set", to))
		return nil, result, nil
	}

	current, _ := m.InitiativeStage(params.ID)
	allowed, ok := initiativeTransitions[current]
	if !ok {
		c.fail(result, "initiative_stage_terminal",
			fmt.Sprintf("initiative %s is in terminal stage %s", params.ID, current), params.ID)
		return nil, result, nil
	}
	if !slices.Contains(allowed, to) {
		c.fail(result, "initiative_transition_invalid",
			fmt.Sprintf("cannot transition initiative from %s to %s", current, to), params.ID)
		return nil, result, nil
	}

	payload := map[string]any{
		"from_stage": string(current),
		"to_stage":   string(to),
	}
	if params.Reason != "" {
		payload["reason"] = params.Reason
	}
	var links contracts.CausalLinks
	if prev := m.lastTransition(params.ID, initiativeTransitionTypes); prev != "" {
		links.PrecededBy = []string{prev}
	}
	return c.events.Submit(ctx, eventstore.SubmitParams{
		Type:         contracts.EventInitiativeTransitioned,
		OccurredAt:   c.effectiveStart(params.OccurredAt),
		Actor:        params.Actor,
		Subjects:     []string{params.ID},
		Payload:      payload,
		SourceSystem: c.sourceSystem(params.SourceSystem),
		CausalLinks:  links,
	})
}

var taskTransitionTypes = map[contracts.EventType]bool{
	contracts.EventTaskTransitioned: true,
	contracts.EventTaskStarted:      true,
	contracts.EventTaskCompleted:    true,
	contracts.EventTaskCancelled:    true,
}

var initiativeTransitionTypes = map[contracts.EventType]bool{
	contracts.EventInitiativeTransitioned: true,
}

// TaskStatus folds the task's transition events over its creation-time
// status. The second return is false when the id is not a task.
func (m *InitiativeManager) TaskStatus(taskID string) (contracts.TaskStatus, bool) {
	h, ok := m.core.holons.Get(taskID)
	if !ok || h.Type != contracts.HolonTask {
		return "", false
	}
	status := contracts.TaskCreated
	if s, ok := h.Properties["status"].(string); ok && s != "" {
		status = contracts.TaskStatus(s)
	}
	for _, ev := range m.core.events.ByHolon(taskID) {
		if !taskTransitionTypes[ev.Type] {
			continue
		}
		if s, ok := ev.Payload["to_status"].(string); ok {
			status = contracts.TaskStatus(s)
		}
	}
	return status, true
}

// InitiativeStage folds the initiative's transition events over its
// creation-time stage. The second return is false when the id is not an
// initiative.
func (m *InitiativeManager) InitiativeStage(initiativeID string) (contracts.InitiativeStage, bool) {
	h, ok := m.core.holons.Get(initiativeID)
	if !ok || h.Type != contracts.HolonInitiative {
		return "", false
	}
	stage := contracts.StageProposed
	if s, ok := h.Properties["stage"].(string); ok && s != "" {
		stage = contracts.InitiativeStage(s)
	}
	for _, ev := range m.core.events.ByHolon(initiativeID) {
		if !initiativeTransitionTypes[ev.Type] {
			continue
		}
		if s, ok := ev.Payload["to_stage"].(string); ok {
			stage = contracts.InitiativeStage(s)
		}
	}
	return stage, true
}

// lastTransition returns the id of the holon's most recent transition
// event of the given types, or empty.
func (m *InitiativeManager) lastTransition(holonID string, types map[contracts.EventType]bool) string {
	var last string
	for _, ev := range m.core.events.ByHolon(holonID) {
		if types[ev.Type] {
			last = ev.ID
		}
	}
	return last
}
