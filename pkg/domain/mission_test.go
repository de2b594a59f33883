package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semops-labs/som/core/pkg/contracts"
)

func validMission(name string) PlanMissionParams {
	return PlanMissionParams{
		Properties: contracts.MissionProperties{
			OperationName:   name,
			OperationNumber: "OP-2026-014",
			MissionType:     contracts.MissionTraining,
			Classification:  "UNCLASSIFIED",
			StartDate:       testBase.AddDate(0, 1, 0),
		},
		SourceDocuments: []string{"doc-op-1"},
		Actor:           "planner-1",
		SourceSystem:    "test",
	}
}

func TestMissionManager_PlanMission(t *testing.T) {
	core := newTestCore(t)
	mm := NewMissionManager(core)

	mission, result, err := mm.PlanMission(context.Background(), validMission("STEEL RESOLVE"))
	require.NoError(t, err)
	require.True(t, result.Valid)
	assert.Equal(t, contracts.HolonMission, mission.Type)

	events := core.events.ByType(contracts.EventMissionPlanned)
	require.Len(t, events, 1)
	assert.Equal(t, "STEEL RESOLVE", events[0].Payload["operation_name"])
}

func TestMissionManager_PlanMissionCompleteness(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*PlanMissionParams)
		rule   string
	}{
		{"blank operation name", func(p *PlanMissionParams) { p.Properties.OperationName = " " }, "mission_operation_name_required"},
		{"blank operation number", func(p *PlanMissionParams) { p.Properties.OperationNumber = "" }, "mission_operation_number_required"},
		{"bad type", func(p *PlanMissionParams) { p.Properties.MissionType = "simulated" }, "mission_type_invalid"},
		{"missing classification", func(p *PlanMissionParams) { p.Properties.Classification = "" }, "mission_classification_required"},
		{"missing start", func(p *PlanMissionParams) { p.Properties.StartDate = time.Time{} }, "mission_start_date_required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mm := NewMissionManager(newTestCore(t))
			params := validMission("INCOMPLETE")
			tc.mutate(&params)
			mission, result, err := mm.PlanMission(context.Background(), params)
			require.NoError(t, err)
			require.Nil(t, mission)
			require.False(t, result.Valid)
			assert.Contains(t, ruleNames(result), tc.rule)
		})
	}
}

func TestMissionManager_EndPrecedesStart(t *testing.T) {
	mm := NewMissionManager(newTestCore(t))
	params := validMission("BACKWARDS")
	end := params.Properties.StartDate.AddDate(0, 0, -1)
	params.Properties.EndDate = &end

	_, result, err := mm.PlanMission(context.Background(), params)
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Equal(t, contracts.CategoryTemporal, result.Errors[0].Category)
}

func TestMissionManager_AttachCapabilityAndAsset(t *testing.T) {
	core := newTestCore(t)
	mm := NewMissionManager(core)
	ctx := context.Background()

	mission, _, err := mm.PlanMission(ctx, validMission("ATTACHMENTS"))
	require.NoError(t, err)
	capability, result, err := mm.RegisterCapability(ctx, RegisterCapabilityParams{
		Properties: contracts.CapabilityProperties{Name: "Airborne ISR"},
		Actor:      "planner-1",
	})
	require.NoError(t, err)
	require.True(t, result.Valid)
	asset, result, err := mm.RegisterAsset(ctx, RegisterAssetParams{
		Properties: contracts.AssetProperties{Name: "P-8A 429", SerialNumber: "168429"},
		Actor:      "planner-1",
	})
	require.NoError(t, err)
	require.True(t, result.Valid)

	uses, result, err := mm.AttachCapability(ctx, mission.ID, capability.ID, EdgeParams{})
	require.NoError(t, err)
	require.True(t, result.Valid)
	assert.Equal(t, contracts.RelUses, uses.Type)
	assert.Equal(t, mission.ID, uses.SourceHolonID)

	supports, result, err := mm.AttachAsset(ctx, asset.ID, mission.ID, EdgeParams{})
	require.NoError(t, err)
	require.True(t, result.Valid)
	assert.Equal(t, contracts.RelSupports, supports.Type)
	assert.Equal(t, asset.ID, supports.SourceHolonID)
	assert.Equal(t, mission.ID, supports.TargetHolonID)
}

func TestMissionManager_PhaseTransitionsAndHistory(t *testing.T) {
	core := newTestCore(t)
	mm := NewMissionManager(core)
	ctx := context.Background()

	mission, _, err := mm.PlanMission(ctx, validMission("PHASED"))
	require.NoError(t, err)

	_, result, err := mm.RecordPhaseTransition(ctx, PhaseTransitionParams{
		MissionID: mission.ID,
		FromPhase: "planning",
		ToPhase:   "rehearsal",
		Actor:     "cdr-1",
	})
	require.NoError(t, err)
	require.True(t, result.Valid)

	second, result, err := mm.RecordPhaseTransition(ctx, PhaseTransitionParams{
		MissionID: mission.ID,
		FromPhase: "rehearsal",
		ToPhase:   "execution",
		Reason:    "commander's approval",
		Actor:     "cdr-1",
	})
	require.NoError(t, err)
	require.True(t, result.Valid)
	assert.Equal(t, "commander's approval", second.Payload["reason"])

	history := mm.PhaseHistory(mission.ID)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[1])

	_, result, err = mm.RecordPhaseTransition(ctx, PhaseTransitionParams{
		MissionID: mission.ID,
		FromPhase: "",
		ToPhase:   "execution",
	})
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Equal(t, "mission_phase_required", result.Errors[0].ViolatedRule)
}

func TestMissionManager_CompleteLinksBackToLaunch(t *testing.T) {
	core := newTestCore(t)
	mm := NewMissionManager(core)
	ctx := context.Background()

	mission, _, err := mm.PlanMission(ctx, validMission("FULL CYCLE"))
	require.NoError(t, err)

	launched, result, err := mm.LaunchMission(ctx, mission.ID, testBase, "cdr-1", "test")
	require.NoError(t, err)
	require.True(t, result.Valid)
	assert.Equal(t, contracts.EventMissionLaunched, launched.Type)

	completed, result, err := mm.CompleteMission(ctx, mission.ID, testBase.Add(30*time.Minute), "cdr-1", "test")
	require.NoError(t, err)
	require.True(t, result.Valid)
	assert.Equal(t, contracts.EventMissionCompleted, completed.Type)
	assert.Contains(t, completed.CausalLinks.PrecededBy, launched.ID)
}

func TestMissionManager_LifecycleUnknownMission(t *testing.T) {
	mm := NewMissionManager(newTestCore(t))

	ev, result, err := mm.LaunchMission(context.Background(), "mission-ghost", testBase, "cdr-1", "test")
	require.NoError(t, err)
	require.Nil(t, ev)
	require.False(t, result.Valid)
	assert.Contains(t, ruleNames(result), "mission_not_found")
}
