package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/semops-labs/som/core/pkg/constraints"
	"github.com/semops-labs/som/core/pkg/contracts"
	"github.com/semops-labs/som/core/pkg/eventstore"
	"github.com/semops-labs/som/core/pkg/holons"
	"github.com/semops-labs/som/core/pkg/relationships"
)

var testBase = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestCore(t *testing.T, opts ...CoreOption) *Core {
	t.Helper()
	clock := func() time.Time { return testBase }
	events := eventstore.New(eventstore.WithClock(clock))
	hr := holons.New(holons.WithClock(clock), holons.WithEventLookup(events))
	rr := relationships.New(events,
		relationships.WithClock(clock),
		relationships.WithHolonLookup(hr))
	base := []CoreOption{WithClock(clock)}
	return NewCore(events, hr, rr, append(base, opts...)...)
}

// seedHolon creates a holon outside the managers for fixture types the
// managers do not create themselves.
func seedHolon(t *testing.T, core *Core, typ contracts.HolonType, eventType contracts.EventType, props map[string]any) *contracts.Holon {
	t.Helper()
	ev, result, err := core.events.Submit(context.Background(), eventstore.SubmitParams{
		Type:         eventType,
		OccurredAt:   testBase.AddDate(0, -6, 0),
		Actor:        "admin-1",
		SourceSystem: "test",
	})
	require.NoError(t, err)
	require.True(t, result.Valid)

	h, err := core.holons.Create(context.Background(), holons.CreateParams{
		Type:            typ,
		Properties:      props,
		CreatedBy:       ev.ID,
		SourceDocuments: []string{"doc-seed-1"},
	})
	require.NoError(t, err)
	return h
}

func seedPosition(t *testing.T, core *Core, title string) *contracts.Holon {
	t.Helper()
	return seedHolon(t, core, contracts.HolonPosition, contracts.EventPositionCreated,
		map[string]any{"title": title})
}

func validPerson() RegisterPersonParams {
	return RegisterPersonParams{
		Properties: contracts.PersonProperties{
			EDIPI:            "1234567890",
			ServiceNumbers:   []string{"SN-0001"},
			Name:             "Riley Shaw",
			DateOfBirth:      time.Date(1991, 3, 12, 0, 0, 0, 0, time.UTC),
			ServiceBranch:    "Navy",
			DesignatorRating: "IT1",
			Category:         contracts.PersonActiveDuty,
		},
		SourceDocuments: []string{"doc-pers-1"},
		Actor:           "admin-1",
		SourceSystem:    "test",
	}
}

// registerPerson creates a valid person through the manager and fails the
// test on any rejection.
func registerPerson(t *testing.T, pm *PersonManager) *contracts.Holon {
	t.Helper()
	h, result, err := pm.RegisterPerson(context.Background(), validPerson())
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.NotNil(t, h)
	return h
}

// ruleNames flattens a result's violated rules for containment asserts.
func ruleNames(result *contracts.ValidationResult) []string {
	rules := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		rules = append(rules, e.ViolatedRule)
	}
	return rules
}

type rejectAllHolons struct{}

func (rejectAllHolons) ValidateHolon(h *contracts.Holon, _ *constraints.Context) *contracts.ValidationResult {
	return contracts.Failed(contracts.ValidationError{
		Message:        "rejected",
		ViolatedRule:   "test_reject_all",
		AffectedHolons: []string{h.ID},
		Category:       contracts.CategoryValidation,
		Timestamp:      testBase,
	})
}

func TestCore_ConstraintFailureMarksHolonInactive(t *testing.T) {
	core := newTestCore(t, WithConstraintValidator(rejectAllHolons{}))
	pm := NewPersonManager(core)

	holon, result, err := pm.RegisterPerson(context.Background(), validPerson())
	require.NoError(t, err)
	require.Nil(t, holon)
	require.False(t, result.Valid)
	require.Equal(t, "test_reject_all", result.Errors[0].ViolatedRule)

	people := core.holons.ByType(contracts.HolonPerson)
	require.Len(t, people, 1)
	require.Equal(t, contracts.HolonInactive, people[0].Status, "a rejected holon is rolled back, not deleted")
}
