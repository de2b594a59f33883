package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semops-labs/som/core/pkg/contracts"
	"github.com/semops-labs/som/core/pkg/relationships"
)

// seedObjectiveRefs creates the owner, LOE, and measure an objective links
// to.
func seedObjectiveRefs(t *testing.T, core *Core, om *ObjectiveManager) (owner, loe, measure *contracts.Holon) {
	t.Helper()
	ctx := context.Background()

	owner = seedHolon(t, core, contracts.HolonOrganization, contracts.EventOrganizationCreated,
		map[string]any{"name": "Task Group 7"})

	loe, result, err := om.CreateLOE(ctx, CreateLOEParams{
		Properties: contracts.LOEProperties{
			Name:           "Readiness",
			TimeframeStart: testBase.AddDate(0, -6, 0),
		},
		Actor: "admin-1",
	})
	require.NoError(t, err)
	require.True(t, result.Valid)

	measure, result, err = om.DefineMeasure(ctx, DefineMeasureParams{
		Properties: contracts.MeasureProperties{Name: "Qualified watchstanders", Unit: "percent"},
		Actor:      "admin-1",
	})
	require.NoError(t, err)
	require.True(t, result.Valid)
	return owner, loe, measure
}

func TestObjectiveManager_CreateObjectiveRequiresLinks(t *testing.T) {
	core := newTestCore(t)
	om := NewObjectiveManager(core)
	ctx := context.Background()
	owner, loe, measure := seedObjectiveRefs(t, core, om)

	noMeasure := CreateObjectiveParams{
		Properties: contracts.ObjectiveProperties{Title: "Improve watchbill depth"},
		OwnerID:    owner.ID,
		LOEID:      loe.ID,
		Actor:      "admin-1",
	}
	holon, result, err := om.CreateObjective(ctx, noMeasure)
	require.NoError(t, err)
	require.Nil(t, holon)
	require.False(t, result.Valid)
	assert.Contains(t, result.Errors[0].Message, "at least one measure")

	noOwner := noMeasure
	noOwner.MeasureIDs = []string{measure.ID}
	noOwner.OwnerID = ""
	_, result, err = om.CreateObjective(ctx, noOwner)
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Contains(t, result.Errors[0].Message, "owner")

	complete := noOwner
	complete.OwnerID = owner.ID
	objective, result, err := om.CreateObjective(ctx, complete)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.NotNil(t, objective)

	assert.Len(t, core.rels.From(objective.ID, contracts.RelOwnedBy, relationships.Filters{}), 1)
	assert.Len(t, core.rels.From(objective.ID, contracts.RelGroupedUnder, relationships.Filters{}), 1)
	measured := core.rels.From(objective.ID, contracts.RelMeasuredBy, relationships.Filters{})
	require.Len(t, measured, 1)
	assert.Equal(t, measure.ID, measured[0].TargetHolonID)
}

func TestObjectiveManager_CreateObjectiveChecksReferences(t *testing.T) {
	core := newTestCore(t)
	om := NewObjectiveManager(core)
	ctx := context.Background()
	owner, loe, measure := seedObjectiveRefs(t, core, om)

	_, result, err := om.CreateObjective(ctx, CreateObjectiveParams{
		Properties: contracts.ObjectiveProperties{Title: "Dangling refs"},
		OwnerID:    owner.ID,
		LOEID:      "loe-missing",
		MeasureIDs: []string{measure.ID},
	})
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Contains(t, ruleNames(result), "loe_not_found")

	// A measure id pointing at a non-measure holon is a type mismatch.
	_, result, err = om.CreateObjective(ctx, CreateObjectiveParams{
		Properties: contracts.ObjectiveProperties{Title: "Wrong measure type"},
		OwnerID:    owner.ID,
		LOEID:      loe.ID,
		MeasureIDs: []string{owner.ID},
	})
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Contains(t, ruleNames(result), "measure_type_mismatch")
}

func TestObjectiveManager_OwnerMustBePersonOrOrganization(t *testing.T) {
	core := newTestCore(t)
	om := NewObjectiveManager(core)
	ctx := context.Background()
	_, loe, measure := seedObjectiveRefs(t, core, om)
	position := seedPosition(t, core, "Not An Owner")

	_, result, err := om.CreateObjective(ctx, CreateObjectiveParams{
		Properties: contracts.ObjectiveProperties{Title: "Position-owned"},
		OwnerID:    position.ID,
		LOEID:      loe.ID,
		MeasureIDs: []string{measure.ID},
	})
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Contains(t, ruleNames(result), "owner_type_mismatch")
}

func TestObjectiveManager_LOETimeframe(t *testing.T) {
	core := newTestCore(t)
	om := NewObjectiveManager(core)

	end := testBase.AddDate(-1, 0, 0)
	holon, result, err := om.CreateLOE(context.Background(), CreateLOEParams{
		Properties: contracts.LOEProperties{
			Name:           "Inverted",
			TimeframeStart: testBase,
			TimeframeEnd:   &end,
		},
	})
	require.NoError(t, err)
	require.Nil(t, holon)
	require.False(t, result.Valid)
	assert.Equal(t, contracts.CategoryTemporal, result.Errors[0].Category)
	assert.Equal(t, "loe_timeframe_inverted", result.Errors[0].ViolatedRule)
}

func TestObjectiveManager_DependencyCycleRejected(t *testing.T) {
	core := newTestCore(t)
	om := NewObjectiveManager(core)
	ctx := context.Background()
	owner, loe, measure := seedObjectiveRefs(t, core, om)

	createObjective := func(title string) *contracts.Holon {
		objective, result, err := om.CreateObjective(ctx, CreateObjectiveParams{
			Properties: contracts.ObjectiveProperties{Title: title},
			OwnerID:    owner.ID,
			LOEID:      loe.ID,
			MeasureIDs: []string{measure.ID},
			Actor:      "admin-1",
		})
		require.NoError(t, err)
		require.True(t, result.Valid)
		return objective
	}
	a := createObjective("A")
	b := createObjective("B")

	_, result, err := om.AddObjectiveDependency(ctx, a.ID, b.ID, EdgeParams{})
	require.NoError(t, err)
	require.True(t, result.Valid)

	_, result, err = om.AddObjectiveDependency(ctx, b.ID, a.ID, EdgeParams{})
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Equal(t, "objective_dependency_cycle", result.Errors[0].ViolatedRule)
}
