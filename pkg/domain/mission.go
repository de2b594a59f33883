package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/semops-labs/som/core/pkg/contracts"
	"github.com/semops-labs/som/core/pkg/eventstore"
	"github.com/semops-labs/som/core/pkg/relationships"
)

// MissionManager handles missions, the capabilities they use, the assets
// supporting them, and the mission lifecycle events.
type MissionManager struct {
	core *Core
}

// NewMissionManager creates a MissionManager over the shared core.
func NewMissionManager(core *Core) *MissionManager {
	return &MissionManager{core: core}
}

// PlanMissionParams carries a new mission plus provenance.
type PlanMissionParams struct {
	Properties      contracts.MissionProperties
	SourceDocuments []string
	Actor           string
	SourceSystem    string
}

// PlanMission creates a Mission holon via a MissionPlanned event.
func (m *MissionManager) PlanMission(ctx context.Context, params PlanMissionParams) (*contracts.Holon, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	p := params.Properties

	if strings.TrimSpace(p.OperationName) == "" {
		c.fail(result, "mission_operation_name_required", "operation name is required")
	}
	if strings.TrimSpace(p.OperationNumber) == "" {
		c.fail(result, "mission_operation_number_required", "operation number is required")
	}
	if !contracts.ValidMissionType(p.MissionType) {
		c.fail(result, "mission_type_invalid",
			fmt.Sprintf("mission type %q is not one of training, real_world", p.MissionType))
	}
	if p.Classification == "" {
		c.fail(result, "mission_classification_required", "classification is required")
	}
	if p.StartDate.IsZero() {
		c.fail(result, "mission_start_date_required", "start date is required")
	}
	if p.EndDate != nil && p.EndDate.Before(p.StartDate) {
		c.failAs(result, contracts.CategoryTemporal, "mission_end_precedes_start", "end date precedes start date")
	}
	if !result.Valid {
		return nil, result, nil
	}

	return c.createHolon(ctx, createRequest{
		eventType: contracts.EventMissionPlanned,
		actor:     params.Actor,
		payload: map[string]any{
			"operation_name":   p.OperationName,
			"operation_number": p.OperationNumber,
		},
		holonType:       contracts.HolonMission,
		properties:      p.PropertyMap(),
		sourceDocuments: params.SourceDocuments,
		sourceSystem:    params.SourceSystem,
	})
}

// RegisterCapabilityParams carries a new capability plus provenance.
type RegisterCapabilityParams struct {
	Properties      contracts.CapabilityProperties
	SourceDocuments []string
	Actor           string
	SourceSystem    string
}

// RegisterCapability creates a Capability holon.
func (m *MissionManager) RegisterCapability(ctx context.Context, params RegisterCapabilityParams) (*contracts.Holon, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	if strings.TrimSpace(params.Properties.Name) == "" {
		c.fail(result, "capability_name_required", "name is required")
		return nil, result, nil
	}

	return c.createHolon(ctx, createRequest{
		eventType:       contracts.EventCapabilityRegistered,
		actor:           params.Actor,
		payload:         map[string]any{"name": params.Properties.Name},
		holonType:       contracts.HolonCapability,
		properties:      params.Properties.PropertyMap(),
		sourceDocuments: params.SourceDocuments,
		sourceSystem:    params.SourceSystem,
	})
}

// RegisterAssetParams carries a new asset plus provenance.
type RegisterAssetParams struct {
	Properties      contracts.AssetProperties
	SourceDocuments []string
	Actor           string
	SourceSystem    string
}

// RegisterAsset creates an Asset holon.
func (m *MissionManager) RegisterAsset(ctx context.Context, params RegisterAssetParams) (*contracts.Holon, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	if strings.TrimSpace(params.Properties.Name) == "" {
		c.fail(result, "asset_name_required", "name is required")
		return nil, result, nil
	}

	return c.createHolon(ctx, createRequest{
		eventType:       contracts.EventAssetRegistered,
		actor:           params.Actor,
		payload:         map[string]any{"name": params.Properties.Name},
		holonType:       contracts.HolonAsset,
		properties:      params.Properties.PropertyMap(),
		sourceDocuments: params.SourceDocuments,
		sourceSystem:    params.SourceSystem,
	})
}

// AttachCapability records that the mission uses the capability from the
// edge's effective start.
func (m *MissionManager) AttachCapability(ctx context.Context, missionID, capabilityID string, params EdgeParams) (*contracts.Relationship, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	c.requireHolon(result, missionID, contracts.HolonMission, "mission")
	c.requireHolon(result, capabilityID, contracts.HolonCapability, "capability")
	if !result.Valid {
		return nil, result, nil
	}

	return c.rels.Create(ctx, relationships.CreateParams{
		Type:            contracts.RelUses,
		SourceHolonID:   missionID,
		TargetHolonID:   capabilityID,
		EffectiveStart:  c.effectiveStart(params.EffectiveStart),
		SourceSystem:    c.sourceSystem(params.SourceSystem),
		SourceDocuments: params.SourceDocuments,
		Actor:           params.Actor,
	})
}

// AttachAsset records that the asset supports the mission.
func (m *MissionManager) AttachAsset(ctx context.Context, assetID, missionID string, params EdgeParams) (*contracts.Relationship, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	c.requireHolon(result, assetID, contracts.HolonAsset, "asset")
	c.requireHolon(result, missionID, contracts.HolonMission, "mission")
	if !result.Valid {
		return nil, result, nil
	}

	return c.rels.Create(ctx, relationships.CreateParams{
		Type:            contracts.RelSupports,
		SourceHolonID:   assetID,
		TargetHolonID:   missionID,
		EffectiveStart:  c.effectiveStart(params.EffectiveStart),
		SourceSystem:    c.sourceSystem(params.SourceSystem),
		SourceDocuments: params.SourceDocuments,
		Actor:           params.Actor,
	})
}

// PhaseTransitionParams records one phase change of a mission.
type PhaseTransitionParams struct {
	MissionID    string
	FromPhase    string
	ToPhase      string
	Reason       string
	OccurredAt   time.Time
	Actor        string
	SourceSystem string
}

// RecordPhaseTransition appends a MissionPhaseTransition event subjected
// to the mission.
func (m *MissionManager) RecordPhaseTransition(ctx context.Context, params PhaseTransitionParams) (*contracts.Event, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	c.requireHolon(result, params.MissionID, contracts.HolonMission, "mission")
	if params.FromPhase == "" || params.ToPhase == "" {
		c.fail(result, "mission_phase_required", "from and to phases are required")
	}
	if !result.Valid {
		return nil, result, nil
	}

	payload := map[string]any{
		"from_phase": params.FromPhase,
		"to_phase":   params.ToPhase,
	}
	if params.Reason != "" {
		payload["reason"] = params.Reason
	}
	return c.events.Submit(ctx, eventstore.SubmitParams{
		Type:         contracts.EventMissionPhaseTransition,
		OccurredAt:   c.effectiveStart(params.OccurredAt),
		Actor:        params.Actor,
		Subjects:     []string{params.MissionID},
		Payload:      payload,
		SourceSystem: c.sourceSystem(params.SourceSystem),
	})
}

// PhaseHistory returns the ids of the mission's phase transition events in
// recording order.
func (m *MissionManager) PhaseHistory(missionID string) []string {
	var ids []string
	for _, ev := range m.core.events.ByHolon(missionID) {
		if ev.Type == contracts.EventMissionPhaseTransition {
			ids = append(ids, ev.ID)
		}
	}
	return ids
}

// LaunchMission records a MissionLaunched event.
func (m *MissionManager) LaunchMission(ctx context.Context, missionID string, occurredAt time.Time, actor, sourceSystem string) (*contracts.Event, *contracts.ValidationResult, error) {
	return m.lifecycleEvent(ctx, missionID, contracts.EventMissionLaunched, occurredAt, actor, sourceSystem)
}

// CompleteMission records a MissionCompleted event, preceded by the launch
// when one was recorded.
func (m *MissionManager) CompleteMission(ctx context.Context, missionID string, occurredAt time.Time, actor, sourceSystem string) (*contracts.Event, *contracts.ValidationResult, error) {
	return m.lifecycleEvent(ctx, missionID, contracts.EventMissionCompleted, occurredAt, actor, sourceSystem)
}

func (m *MissionManager) lifecycleEvent(ctx context.Context, missionID string, eventType contracts.EventType, occurredAt time.Time, actor, sourceSystem string) (*contracts.Event, *contracts.ValidationResult, error) {
	c := m.core
	result := contracts.OK()
	c.requireHolon(result, missionID, contracts.HolonMission, "mission")
	if !result.Valid {
		return nil, result, nil
	}

	var links contracts.CausalLinks
	if eventType == contracts.EventMissionCompleted {
		for _, ev := range c.events.ByHolon(missionID) {
			if ev.Type == contracts.EventMissionLaunched {
				links.PrecededBy = []string{ev.ID}
			}
		}
	}
	return c.events.Submit(ctx, eventstore.SubmitParams{
		Type:         eventType,
		OccurredAt:   c.effectiveStart(occurredAt),
		Actor:        actor,
		Subjects:     []string{missionID},
		SourceSystem: c.sourceSystem(sourceSystem),
		CausalLinks:  links,
	})
}
