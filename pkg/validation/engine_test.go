package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semops-labs/som/core/pkg/constraints"
	"github.com/semops-labs/som/core/pkg/contracts"
	"github.com/semops-labs/som/core/pkg/documents"
	"github.com/semops-labs/som/core/pkg/eventstore"
)

var testBase = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func testClock() func() time.Time {
	return func() time.Time { return testBase }
}

func newTestStore() *eventstore.Store {
	return eventstore.New(eventstore.WithClock(testClock()))
}

func submitEvent(t *testing.T, store *eventstore.Store, params eventstore.SubmitParams) *contracts.Event {
	t.Helper()
	ev, result, err := store.Submit(context.Background(), params)
	require.NoError(t, err)
	require.True(t, result.Valid, result.FirstError())
	return ev
}

func TestEngine_ValidateTemporalConstraints(t *testing.T) {
	store := newTestStore()
	engine := NewEngine(store, WithClock(testClock()))

	cases := []struct {
		name  string
		event contracts.Event
		rule  string
	}{
		{
			name:  "two years in the past",
			event: contracts.Event{ID: "e", OccurredAt: testBase.AddDate(-2, 0, 0)},
			rule:  "event_occurrence_too_old",
		},
		{
			name:  "two hours in the future",
			event: contracts.Event{ID: "e", OccurredAt: testBase.Add(2 * time.Hour)},
			rule:  "event_occurrence_in_future",
		},
		{
			name: "recorded long before occurrence",
			event: contracts.Event{
				ID:         "e",
				OccurredAt: testBase,
				RecordedAt: testBase.Add(-(2 * time.Hour)),
			},
			rule: "event_recorded_before_occurrence",
		},
		{
			name: "inverted validity window",
			event: contracts.Event{
				ID:         "e",
				OccurredAt: testBase,
				ValidityWindow: &contracts.ValidityWindow{
					Start: testBase,
					End:   testBase.Add(-time.Minute),
				},
			},
			rule: "validity_window_inverted",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := engine.ValidateTemporalConstraints(&tc.event)
			require.False(t, result.Valid)
			assert.Equal(t, tc.rule, result.Errors[0].ViolatedRule)
			assert.Equal(t, contracts.CategoryTemporal, result.Errors[0].Category)
		})
	}

	// Thirty minutes of lead and recording within skew both pass.
	ok := contracts.Event{
		ID:         "e",
		OccurredAt: testBase.Add(30 * time.Minute),
		RecordedAt: testBase,
	}
	assert.True(t, engine.ValidateTemporalConstraints(&ok).Valid)
}

func TestEngine_ValidateTemporalConstraints_CausalLinks(t *testing.T) {
	store := newTestStore()
	engine := NewEngine(store, WithClock(testClock()))

	first := submitEvent(t, store, eventstore.SubmitParams{
		Type:       contracts.EventTaskCreated,
		OccurredAt: testBase.Add(-time.Hour),
		Actor:      "person-1",
		Subjects:   []string{"task-1"},
	})

	// Well-ordered link passes.
	follow := contracts.Event{
		ID:          "e",
		OccurredAt:  testBase,
		CausalLinks: contracts.CausalLinks{PrecededBy: []string{first.ID}},
	}
	assert.True(t, engine.ValidateTemporalConstraints(&follow).Valid)

	// Unknown predecessor is a consistency failure.
	unknown := contracts.Event{
		ID:          "e",
		OccurredAt:  testBase,
		CausalLinks: contracts.CausalLinks{CausedBy: []string{"evt-missing"}},
	}
	result := engine.ValidateTemporalConstraints(&unknown)
	require.False(t, result.Valid)
	assert.Equal(t, "causal_predecessor_unknown", result.Errors[0].ViolatedRule)
	assert.Equal(t, contracts.CategoryConsistency, result.Errors[0].Category)

	// A predecessor that occurred later is a temporal failure.
	backwards := contracts.Event{
		ID:          "e",
		OccurredAt:  testBase.Add(-2 * time.Hour),
		CausalLinks: contracts.CausalLinks{PrecededBy: []string{first.ID}},
	}
	result = engine.ValidateTemporalConstraints(&backwards)
	require.False(t, result.Valid)
	assert.Equal(t, "causal_predecessor_out_of_order", result.Errors[0].ViolatedRule)
	assert.Equal(t, contracts.CategoryTemporal, result.Errors[0].Category)
}

type ruleEmitter struct {
	rules []string
}

func (r *ruleEmitter) ValidateEvent(e *contracts.Event, vctx *constraints.Context) *contracts.ValidationResult {
	result := contracts.OK()
	for _, rule := range r.rules {
		result.AddError(contracts.ValidationError{
			Message:      "synthetic failure",
			ViolatedRule: rule,
		})
	}
	return result
}

func TestEngine_ValidateEventWithDetails_Categorization(t *testing.T) {
	store := newTestStore()
	emitter := &ruleEmitter{rules: []string{
		"window_date_check",
		"org_cycle_check",
		"actor_access_check",
		"payload_shape",
	}}
	engine := NewEngine(store, WithClock(testClock()), WithConstraintEngine(emitter))

	ev := &contracts.Event{ID: "evt-1", Type: contracts.EventTaskCreated, OccurredAt: testBase}
	result := engine.ValidateEventWithDetails(ev)

	require.Len(t, result.Errors, 4)
	assert.Equal(t, contracts.CategoryTemporal, result.Errors[0].Category)
	assert.Equal(t, contracts.CategoryConsistency, result.Errors[1].Category)
	assert.Equal(t, contracts.CategoryAuthorization, result.Errors[2].Category)
	assert.Equal(t, contracts.CategoryValidation, result.Errors[3].Category)
	assert.Equal(t, testBase, result.ValidatedAt)
}

func TestEngine_ValidateEventWithDetails_DocumentsInForce(t *testing.T) {
	store := newTestStore()
	docs := documents.New(documents.WithClock(testClock()))

	end := testBase.AddDate(0, 6, 0)
	inForce, err := docs.Register(context.Background(), documents.RegisterParams{
		Title:          "Watchstanding Manual",
		DocumentType:   "instruction",
		Version:        "2.1",
		EffectiveStart: testBase.AddDate(-1, 0, 0),
		EffectiveEnd:   &end,
		Content:        "watch qualification requirements",
	}, "evt-reg-1")
	require.NoError(t, err)

	_, err = docs.Register(context.Background(), documents.RegisterParams{
		Title:          "Superseded Manual",
		DocumentType:   "instruction",
		Version:        "1.0",
		EffectiveStart: testBase.AddDate(-3, 0, 0),
		EffectiveEnd:   &[]time.Time{testBase.AddDate(-2, 0, 0)}[0],
		Content:        "old requirements",
	}, "evt-reg-2")
	require.NoError(t, err)

	engine := NewEngine(store, WithClock(testClock()), WithDocuments(docs))
	ev := &contracts.Event{ID: "evt-1", Type: contracts.EventTaskCreated, OccurredAt: testBase}

	result := engine.ValidateEventWithDetails(ev)
	assert.True(t, result.Valid)
	assert.Equal(t, []string{inForce.ID}, result.DocumentsInForce)
}

func TestEngine_ValidateBatch(t *testing.T) {
	store := newTestStore()
	engine := NewEngine(store, WithClock(testClock()))

	good := &contracts.Event{ID: "a", OccurredAt: testBase}
	bad := &contracts.Event{ID: "b", OccurredAt: testBase.AddDate(-2, 0, 0)}
	alsoGood := &contracts.Event{ID: "c", OccurredAt: testBase.Add(-time.Hour)}

	batch := engine.ValidateBatch([]*contracts.Event{good, bad, alsoGood})
	require.False(t, batch.Valid)
	require.Len(t, batch.Errors, 1)
	require.Contains(t, batch.Errors, 1)
	assert.Equal(t, "event_occurrence_too_old", batch.Errors[1][0].ViolatedRule)

	batch = engine.ValidateBatch([]*contracts.Event{good, alsoGood})
	assert.True(t, batch.Valid)
	assert.Empty(t, batch.Errors)
}

func TestEngine_CreateCompensatingEvent(t *testing.T) {
	store := newTestStore()
	engine := NewEngine(store, WithClock(testClock()), WithSubmitter(store))

	original := submitEvent(t, store, eventstore.SubmitParams{
		Type:           contracts.EventAssignmentStarted,
		OccurredAt:     testBase.Add(-24 * time.Hour),
		Actor:          "person-1",
		Subjects:       []string{"person-1", "position-7"},
		Payload:        map[string]any{"start_date": "2026-01-14"},
		SourceSystem:   "som-core",
		SourceDocument: "doc-orders-1",
	})

	comp, result, err := engine.CreateCompensatingEvent(context.Background(), original.ID,
		CompensationMetadata{
			AuthorizedBy:   "chief-5",
			Reason:         "wrong start date",
			CorrectionType: "date_correction",
		},
		map[string]any{"corrected_start_date": "2026-01-10"})
	require.NoError(t, err)
	require.True(t, result.Valid, result.FirstError())
	require.NotNil(t, comp)

	assert.Equal(t, contracts.EventAssignmentEnded, comp.Type)
	assert.Equal(t, "chief-5", comp.Actor)
	assert.Equal(t, original.Subjects, comp.Subjects)
	assert.Equal(t, []string{original.ID}, comp.CausalLinks.CausedBy)
	assert.Equal(t, "doc-orders-1", comp.SourceDocument)

	meta, ok := comp.Payload["compensatingMetadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, original.ID, meta["originalEventId"])
	assert.Equal(t, "wrong start date", meta["reason"])
	assert.Equal(t, "date_correction", meta["correctionType"])
	assert.Equal(t, "2026-01-10", comp.Payload["corrected_start_date"])

	// The original is untouched.
	stored, ok := store.Get(original.ID)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"start_date": "2026-01-14"}, stored.Payload)
	_, hasMeta := stored.Payload["compensatingMetadata"]
	assert.False(t, hasMeta)
}

func TestEngine_CompensationTable(t *testing.T) {
	cases := []struct {
		original   contracts.EventType
		correction string
		want       contracts.EventType
	}{
		{contracts.EventAssignmentStarted, "", contracts.EventAssignmentEnded},
		{contracts.EventQualificationAwarded, "", contracts.EventQualificationRevoked},
		{contracts.EventTaskStarted, "", contracts.EventTaskCompleted},
		{contracts.EventMissionLaunched, "", contracts.EventMissionCompleted},
		{contracts.EventObjectiveCreated, "", contracts.EventAssignmentCorrected},
		{contracts.EventTaskStarted, "cancellation", contracts.EventTaskCancelled},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, compensationTarget(tc.original, tc.correction),
			"%s/%s", tc.original, tc.correction)
	}
}

func TestEngine_CompensateMissingOriginal(t *testing.T) {
	store := newTestStore()
	engine := NewEngine(store, WithClock(testClock()), WithSubmitter(store))

	ev, result, err := engine.CreateCompensatingEvent(context.Background(), "evt-missing",
		CompensationMetadata{AuthorizedBy: "chief-5", Reason: "cleanup"}, nil)
	require.NoError(t, err)
	require.Nil(t, ev)
	require.False(t, result.Valid)
	assert.Equal(t, contracts.CategoryIntegration, result.Errors[0].Category)
	assert.Equal(t, "compensation_original_missing", result.Errors[0].ViolatedRule)
}

func TestEngine_ValidationLog(t *testing.T) {
	store := newTestStore()
	engine := NewEngine(store, WithClock(testClock()), WithLogCapacity(3))

	engine.ValidateEventWithDetails(&contracts.Event{ID: "evt-1", OccurredAt: testBase})
	engine.ValidateEventWithDetails(&contracts.Event{ID: "evt-2", OccurredAt: testBase.AddDate(-2, 0, 0)})
	engine.ValidateEventWithDetails(&contracts.Event{ID: "evt-3", OccurredAt: testBase})

	entries := engine.ValidationLog(nil)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].Valid)
	assert.False(t, entries[1].Valid)
	assert.Equal(t, contracts.CategoryTemporal, entries[1].Category)

	// Filter by category and by event id.
	temporal := engine.ValidationLog(&LogFilter{Category: contracts.CategoryTemporal})
	require.Len(t, temporal, 1)
	assert.Equal(t, "evt-2", temporal[0].EventID)

	byEvent := engine.ValidationLog(&LogFilter{EventID: "evt-3"})
	require.Len(t, byEvent, 1)

	// Capacity evicts the oldest entry.
	engine.ValidateEventWithDetails(&contracts.Event{ID: "evt-4", OccurredAt: testBase})
	entries = engine.ValidationLog(nil)
	require.Len(t, entries, 3)
	assert.Equal(t, "evt-2", entries[0].EventID)

	// Time-range filters exclude everything outside the window.
	none := engine.ValidationLog(&LogFilter{From: testBase.Add(time.Minute)})
	assert.Empty(t, none)
}
