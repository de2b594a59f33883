package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semops-labs/som/core/pkg/contracts"
	"github.com/semops-labs/som/core/pkg/relationships"
)

func TestPersonManager_RegisterPerson(t *testing.T) {
	core := newTestCore(t)
	pm := NewPersonManager(core)

	person := registerPerson(t, pm)
	assert.Equal(t, contracts.HolonPerson, person.Type)
	assert.Equal(t, "Riley Shaw", person.Properties["name"])
	assert.Equal(t, contracts.HolonActive, person.Status)

	events := core.events.ByType(contracts.EventPersonRegistered)
	require.Len(t, events, 1)
	assert.Equal(t, person.CreatedBy, events[0].ID)
	assert.Equal(t, "1234567890", events[0].Payload["edipi"])
}

func TestPersonManager_RegisterPersonCompleteness(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RegisterPersonParams)
		rule   string
	}{
		{"missing edipi", func(p *RegisterPersonParams) { p.Properties.EDIPI = "" }, "person_edipi_required"},
		{"missing service numbers", func(p *RegisterPersonParams) { p.Properties.ServiceNumbers = nil }, "person_service_number_required"},
		{"blank name", func(p *RegisterPersonParams) { p.Properties.Name = "   " }, "person_name_required"},
		{"missing dob", func(p *RegisterPersonParams) { p.Properties.DateOfBirth = time.Time{} }, "person_date_of_birth_required"},
		{"missing branch", func(p *RegisterPersonParams) { p.Properties.ServiceBranch = "" }, "person_service_branch_required"},
		{"missing rating", func(p *RegisterPersonParams) { p.Properties.DesignatorRating = "" }, "person_designator_rating_required"},
		{"bad category", func(p *RegisterPersonParams) { p.Properties.Category = "retired" }, "person_category_invalid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			core := newTestCore(t)
			pm := NewPersonManager(core)

			params := validPerson()
			tc.mutate(&params)
			holon, result, err := pm.RegisterPerson(context.Background(), params)
			require.NoError(t, err)
			require.Nil(t, holon)
			require.False(t, result.Valid)
			assert.Contains(t, ruleNames(result), tc.rule)
			assert.Empty(t, core.holons.ByType(contracts.HolonPerson), "no holon on rejection")
		})
	}
}

func TestPersonManager_AssignToPosition(t *testing.T) {
	core := newTestCore(t)
	pm := NewPersonManager(core)
	person := registerPerson(t, pm)
	position := seedPosition(t, core, "Watch Officer")

	rel, result, err := pm.AssignToPosition(context.Background(), AssignParams{
		PersonID:   person.ID,
		PositionID: position.ID,
		Actor:      "admin-1",
	})
	require.NoError(t, err)
	require.True(t, result.Valid)
	assert.Equal(t, contracts.RelOccupies, rel.Type)
	assert.Equal(t, person.ID, rel.SourceHolonID)
	assert.Equal(t, position.ID, rel.TargetHolonID)
	assert.True(t, rel.EffectiveStart.Equal(testBase))
}

func TestPersonManager_AssignUnknownEndpoints(t *testing.T) {
	core := newTestCore(t)
	pm := NewPersonManager(core)
	person := registerPerson(t, pm)

	_, result, err := pm.AssignToPosition(context.Background(), AssignParams{
		PersonID:   person.ID,
		PositionID: "position-missing",
	})
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Equal(t, contracts.CategoryConsistency, result.Errors[0].Category)
	assert.Contains(t, ruleNames(result), "position_not_found")
}

func TestPersonManager_ConcurrentPositionLimit(t *testing.T) {
	core := newTestCore(t)
	pm := NewPersonManager(core)
	person := registerPerson(t, pm)

	for i := 0; i < core.cfg.MaxConcurrentPositions; i++ {
		position := seedPosition(t, core, "Billet")
		_, result, err := pm.AssignToPosition(context.Background(), AssignParams{
			PersonID:   person.ID,
			PositionID: position.ID,
		})
		require.NoError(t, err)
		require.True(t, result.Valid)
	}

	fourth := seedPosition(t, core, "One Too Many")
	rel, result, err := pm.AssignToPosition(context.Background(), AssignParams{
		PersonID:   person.ID,
		PositionID: fourth.ID,
	})
	require.NoError(t, err)
	require.Nil(t, rel)
	require.False(t, result.Valid)
	assert.Equal(t, "concurrent_position_limit", result.Errors[0].ViolatedRule)
	assert.Equal(t, contracts.CategoryConsistency, result.Errors[0].Category)
}

func TestPersonManager_LimitFreesAfterAssignmentEnds(t *testing.T) {
	core := newTestCore(t)
	pm := NewPersonManager(core)
	person := registerPerson(t, pm)

	var positions []*contracts.Holon
	for i := 0; i < core.cfg.MaxConcurrentPositions; i++ {
		position := seedPosition(t, core, "Billet")
		positions = append(positions, position)
		_, result, err := pm.AssignToPosition(context.Background(), AssignParams{
			PersonID: person.ID, PositionID: position.ID,
			EffectiveStart: testBase.AddDate(0, -1, 0),
		})
		require.NoError(t, err)
		require.True(t, result.Valid)
	}

	_, result, err := pm.EndAssignment(context.Background(), EndAssignmentParams{
		PersonID:   person.ID,
		PositionID: positions[0].ID,
		EndDate:    testBase.AddDate(0, 0, -7),
		Reason:     "rotation",
		Actor:      "admin-1",
	})
	require.NoError(t, err)
	require.True(t, result.Valid)

	next := seedPosition(t, core, "Relief Billet")
	rel, result, err := pm.AssignToPosition(context.Background(), AssignParams{
		PersonID: person.ID, PositionID: next.ID,
	})
	require.NoError(t, err)
	require.True(t, result.Valid, "ended assignments do not count against the limit")
	require.NotNil(t, rel)
}

func TestPersonManager_QualificationCoverageGate(t *testing.T) {
	core := newTestCore(t)
	pm := NewPersonManager(core)
	qm := NewQualificationManager(core)
	person := registerPerson(t, pm)
	position := seedPosition(t, core, "Reactor Operator")

	qual, result, err := qm.DefineQualification(context.Background(), validQualification("Reactor Ops"))
	require.NoError(t, err)
	require.True(t, result.Valid)

	// Qualification required for the position from well before any
	// assignment under test.
	_, result, err = core.rels.Create(context.Background(), relationships.CreateParams{
		Type:           contracts.RelRequiredFor,
		SourceHolonID:  qual.ID,
		TargetHolonID:  position.ID,
		EffectiveStart: testBase.AddDate(0, -3, 0),
		SourceSystem:   "test",
	})
	require.NoError(t, err)
	require.True(t, result.Valid)

	rel, result, err := pm.AssignToPosition(context.Background(), AssignParams{
		PersonID:   person.ID,
		PositionID: position.ID,
	})
	require.NoError(t, err)
	require.Nil(t, rel)
	require.False(t, result.Valid)
	assert.Equal(t, "qualification_coverage_missing", result.Errors[0].ViolatedRule)
	assert.Contains(t, result.Errors[0].AffectedHolons, qual.ID)

	_, result, err = pm.AwardQualification(context.Background(), AwardParams{
		PersonID:        person.ID,
		QualificationID: qual.ID,
		AwardedAt:       testBase.AddDate(0, -1, 0),
	})
	require.NoError(t, err)
	require.True(t, result.Valid)

	rel, result, err = pm.AssignToPosition(context.Background(), AssignParams{
		PersonID:   person.ID,
		PositionID: position.ID,
	})
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.NotNil(t, rel)
}

func TestPersonManager_AwardAndRevokeQualification(t *testing.T) {
	core := newTestCore(t)
	pm := NewPersonManager(core)
	qm := NewQualificationManager(core)
	person := registerPerson(t, pm)

	qual, result, err := qm.DefineQualification(context.Background(), validQualification("Small Arms"))
	require.NoError(t, err)
	require.True(t, result.Valid)

	awardedAt := testBase.AddDate(0, -2, 0)
	awarded, result, err := pm.AwardQualification(context.Background(), AwardParams{
		PersonID:        person.ID,
		QualificationID: qual.ID,
		AwardedAt:       awardedAt,
	})
	require.NoError(t, err)
	require.True(t, result.Valid)
	assert.Equal(t, contracts.RelHeldBy, awarded.Type)

	awardEvents := core.events.ByType(contracts.EventQualificationAwarded)
	require.Len(t, awardEvents, 1)
	assert.Equal(t, awarded.CreatedBy, awardEvents[0].ID)

	revokedAt := testBase.AddDate(0, 0, -7)
	ended, result, err := pm.RevokeQualification(context.Background(), RevokeParams{
		PersonID:        person.ID,
		QualificationID: qual.ID,
		RevokedAt:       revokedAt,
		Reason:          "disqualifying incident",
		Actor:           "admin-1",
	})
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.NotNil(t, ended.EffectiveEnd)
	assert.True(t, ended.EffectiveEnd.Equal(revokedAt))

	revoked := core.events.ByType(contracts.EventQualificationRevoked)
	require.Len(t, revoked, 1)
	assert.Contains(t, revoked[0].CausalLinks.All(), awardEvents[0].ID,
		"revocation links back to the awarding event")
}

func TestPersonManager_RevokeWithoutAward(t *testing.T) {
	core := newTestCore(t)
	pm := NewPersonManager(core)
	qm := NewQualificationManager(core)
	person := registerPerson(t, pm)
	qual, _, err := qm.DefineQualification(context.Background(), validQualification("Unheld"))
	require.NoError(t, err)

	rel, result, err := pm.RevokeQualification(context.Background(), RevokeParams{
		PersonID:        person.ID,
		QualificationID: qual.ID,
	})
	require.NoError(t, err)
	require.Nil(t, rel)
	require.False(t, result.Valid)
	assert.Equal(t, "held_qualification_not_found", result.Errors[0].ViolatedRule)
}

func TestPersonManager_EndUnknownAssignment(t *testing.T) {
	core := newTestCore(t)
	pm := NewPersonManager(core)
	person := registerPerson(t, pm)
	position := seedPosition(t, core, "Never Assigned")

	rel, result, err := pm.EndAssignment(context.Background(), EndAssignmentParams{
		PersonID:   person.ID,
		PositionID: position.ID,
	})
	require.NoError(t, err)
	require.Nil(t, rel)
	require.False(t, result.Valid)
	assert.Equal(t, "assignment_not_found", result.Errors[0].ViolatedRule)
}
