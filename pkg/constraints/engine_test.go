package constraints

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semops-labs/som/core/pkg/contracts"
)

var testBase = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testBase })}, opts...)
	e, err := New(opts...)
	require.NoError(t, err)
	return e
}

func registerHolonConstraint(t *testing.T, e *Engine, name, definition string, types ...contracts.HolonType) string {
	t.Helper()
	id, err := e.Register(context.Background(), RegisterParams{
		Type:            contracts.ConstraintStructural,
		Name:            name,
		Definition:      definition,
		Scope:           contracts.ConstraintScope{HolonTypes: types},
		SourceDocuments: []string{"doc-policy-1"},
	})
	require.NoError(t, err)
	return id
}

func TestEngine_RegisterAndGet(t *testing.T) {
	e := newTestEngine(t)

	id, err := e.Register(context.Background(), RegisterParams{
		Type:            contracts.ConstraintPolicy,
		Name:            "person_name_required",
		Definition:      `holon.properties.name != ""`,
		Scope:           contracts.ConstraintScope{HolonTypes: []contracts.HolonType{contracts.HolonPerson}},
		SourceDocuments: []string{"doc-hr-manual"},
		Precedence:      10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	c, ok := e.Get(id)
	require.True(t, ok)
	assert.Equal(t, contracts.ConstraintPolicy, c.Type)
	assert.Equal(t, "person_name_required", c.Name)
	assert.Equal(t, []string{"doc-hr-manual"}, c.SourceDocuments)
	assert.Equal(t, testBase, c.CreatedAt)
	assert.NotNil(t, c.Validator)

	_, ok = e.Get("no-such-constraint")
	assert.False(t, ok)
}

func TestEngine_RegisterValidation(t *testing.T) {
	e := newTestEngine(t)

	cases := []struct {
		name   string
		params RegisterParams
		want   string
	}{
		{
			name: "missing name",
			params: RegisterParams{
				Type:            contracts.ConstraintPolicy,
				Definition:      "true",
				SourceDocuments: []string{"doc-1"},
			},
			want: "name is required",
		},
		{
			name: "missing definition",
			params: RegisterParams{
				Type:            contracts.ConstraintPolicy,
				Name:            "empty",
				SourceDocuments: []string{"doc-1"},
			},
			want: "definition is required",
		},
		{
			name: "unknown type",
			params: RegisterParams{
				Type:            contracts.ConstraintType("aspirational"),
				Name:            "wishful",
				Definition:      "true",
				SourceDocuments: []string{"doc-1"},
			},
			want: "unknown constraint type",
		},
		{
			name: "no grounding document",
			params: RegisterParams{
				Type:       contracts.ConstraintPolicy,
				Name:       "ungrounded",
				Definition: "true",
			},
			want: "grounding document",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Register(context.Background(), tc.params)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestEngine_RegisterRejectsNondeterministicDefinitions(t *testing.T) {
	e := newTestEngine(t)

	for _, definition := range []string{
		`now() > timestamp("2026-01-01T00:00:00Z")`,
		`holon.properties.score > 0.5`,
	} {
		_, err := e.Register(context.Background(), RegisterParams{
			Type:            contracts.ConstraintPolicy,
			Name:            "nondeterministic",
			Definition:      definition,
			SourceDocuments: []string{"doc-1"},
		})
		require.Error(t, err, definition)
		assert.Contains(t, err.Error(), "not deterministic")
	}
}

func TestEngine_RegisterRejectsUndeclaredVariables(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Register(context.Background(), RegisterParams{
		Type:            contracts.ConstraintPolicy,
		Name:            "bad_reference",
		Definition:      `payload.size() > 0`,
		SourceDocuments: []string{"doc-1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compilation failed")
}

func TestEngine_ValidateHolon(t *testing.T) {
	e := newTestEngine(t)
	id := registerHolonConstraint(t, e, "person_name_required",
		`holon.properties.name != ""`, contracts.HolonPerson)

	holon := &contracts.Holon{
		ID:         "holon-1",
		Type:       contracts.HolonPerson,
		Properties: map[string]any{"name": "Avery Quinn"},
		Status:     contracts.HolonActive,
	}
	result := e.ValidateHolon(holon, nil)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)

	holon.Properties["name"] = ""
	result = e.ValidateHolon(holon, nil)
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, id, result.Errors[0].ConstraintID)
	assert.Equal(t, "person_name_required", result.Errors[0].ViolatedRule)
	assert.Equal(t, contracts.CategoryValidation, result.Errors[0].Category)
	assert.Equal(t, testBase, result.Errors[0].Timestamp)
}

func TestEngine_ValidateHolonFailsClosedOnEvalError(t *testing.T) {
	e := newTestEngine(t)
	registerHolonConstraint(t, e, "rank_positive",
		`holon.properties.rank > 0`, contracts.HolonPerson)

	// rank is absent, so evaluation errors and the constraint counts as
	// violated rather than silently passing.
	holon := &contracts.Holon{
		ID:         "holon-1",
		Type:       contracts.HolonPerson,
		Properties: map[string]any{},
	}
	result := e.ValidateHolon(holon, nil)
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "evaluation failed")
}

func TestEngine_EffectiveDateGating(t *testing.T) {
	e := newTestEngine(t)

	start := testBase.AddDate(0, 0, -10)
	end := testBase.AddDate(0, 0, -5)
	_, err := e.Register(context.Background(), RegisterParams{
		Type:            contracts.ConstraintStructural,
		Name:            "expired_rule",
		Definition:      "false",
		Scope:           contracts.ConstraintScope{HolonTypes: []contracts.HolonType{contracts.HolonPerson}},
		EffectiveDates:  &contracts.EffectiveDates{Start: start, End: &end},
		SourceDocuments: []string{"doc-1"},
	})
	require.NoError(t, err)

	holon := &contracts.Holon{ID: "holon-1", Type: contracts.HolonPerson}

	// Outside the window the constraint does not apply.
	result := e.ValidateHolon(holon, nil)
	assert.True(t, result.Valid)

	// Inside the window it fires.
	inside := testBase.AddDate(0, 0, -7)
	result = e.ValidateHolon(holon, &Context{Timestamp: inside})
	assert.False(t, result.Valid)

	// ApplicableToHolonType mirrors the same gating; nil means no gating.
	assert.Len(t, e.ApplicableToHolonType(contracts.HolonPerson, nil), 1)
	assert.Empty(t, e.ApplicableToHolonType(contracts.HolonPerson, &testBase))
	assert.Len(t, e.ApplicableToHolonType(contracts.HolonPerson, &inside), 1)
}

func TestEngine_InheritanceOverride(t *testing.T) {
	e := newTestEngine(t)

	// Organization-wide rule that Person inherits: rank must be present.
	_, err := e.Register(context.Background(), RegisterParams{
		Type:            contracts.ConstraintStructural,
		Name:            "rank_required",
		Definition:      `has(holon.properties.rank)`,
		Scope:           contracts.ConstraintScope{HolonTypes: []contracts.HolonType{contracts.HolonOrganization}},
		SourceDocuments: []string{"doc-org-policy"},
		Precedence:      50,
		InheritanceRules: &contracts.InheritanceRules{
			InheritsFrom:       []contracts.HolonType{contracts.HolonPerson},
			CanOverride:        true,
			OverridePrecedence: 100,
		},
	})
	require.NoError(t, err)

	holon := &contracts.Holon{
		ID:         "holon-1",
		Type:       contracts.HolonPerson,
		Properties: map[string]any{"name": "Avery Quinn"},
	}

	// The inherited rule fires for Person holons.
	result := e.ValidateHolon(holon, nil)
	require.False(t, result.Valid)
	assert.Equal(t, "rank_required", result.Errors[0].ViolatedRule)

	// A direct Person rule of the same name below the override threshold
	// does not displace the inherited one.
	_, err = e.Register(context.Background(), RegisterParams{
		Type:            contracts.ConstraintStructural,
		Name:            "rank_required",
		Definition:      "true",
		Scope:           contracts.ConstraintScope{HolonTypes: []contracts.HolonType{contracts.HolonPerson}},
		SourceDocuments: []string{"doc-person-policy"},
		Precedence:      99,
	})
	require.NoError(t, err)
	result = e.ValidateHolon(holon, nil)
	assert.False(t, result.Valid)

	// At or above the threshold the direct rule wins and the holon passes.
	_, err = e.Register(context.Background(), RegisterParams{
		Type:            contracts.ConstraintStructural,
		Name:            "rank_required",
		Definition:      "true",
		Scope:           contracts.ConstraintScope{HolonTypes: []contracts.HolonType{contracts.HolonPerson}},
		SourceDocuments: []string{"doc-person-policy"},
		Precedence:      100,
	})
	require.NoError(t, err)
	result = e.ValidateHolon(holon, nil)
	assert.True(t, result.Valid)
}

func TestEngine_InheritanceWithoutOverridePermission(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Register(context.Background(), RegisterParams{
		Type:            contracts.ConstraintStructural,
		Name:            "locked_rule",
		Definition:      "false",
		Scope:           contracts.ConstraintScope{HolonTypes: []contracts.HolonType{contracts.HolonOrganization}},
		SourceDocuments: []string{"doc-org-policy"},
		InheritanceRules: &contracts.InheritanceRules{
			InheritsFrom: []contracts.HolonType{contracts.HolonPerson},
			CanOverride:  false,
		},
	})
	require.NoError(t, err)

	_, err = e.Register(context.Background(), RegisterParams{
		Type:            contracts.ConstraintStructural,
		Name:            "locked_rule",
		Definition:      "true",
		Scope:           contracts.ConstraintScope{HolonTypes: []contracts.HolonType{contracts.HolonPerson}},
		SourceDocuments: []string{"doc-person-policy"},
		Precedence:      1000,
	})
	require.NoError(t, err)

	holon := &contracts.Holon{ID: "holon-1", Type: contracts.HolonPerson}
	result := e.ValidateHolon(holon, nil)
	assert.False(t, result.Valid, "inherited rule without override permission must keep firing")
}

func TestEngine_ValidateRelationship(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Register(context.Background(), RegisterParams{
		Type:            contracts.ConstraintPolicy,
		Name:            "occupancy_must_be_authoritative",
		Definition:      `relationship.authority_level == "authoritative"`,
		Scope:           contracts.ConstraintScope{RelationshipTypes: []contracts.RelationshipType{contracts.RelOccupies}},
		SourceDocuments: []string{"doc-1"},
	})
	require.NoError(t, err)

	rel := &contracts.Relationship{
		ID:             "rel-1",
		Type:           contracts.RelOccupies,
		SourceHolonID:  "person-1",
		TargetHolonID:  "position-1",
		EffectiveStart: testBase,
		AuthorityLevel: contracts.AuthorityAuthoritative,
	}
	assert.True(t, e.ValidateRelationship(rel, nil).Valid)

	rel.AuthorityLevel = contracts.AuthorityInferred
	result := e.ValidateRelationship(rel, nil)
	require.False(t, result.Valid)
	assert.Equal(t, "occupancy_must_be_authoritative", result.Errors[0].ViolatedRule)
}

func TestEngine_ValidateEventUsesOccurrenceTime(t *testing.T) {
	e := newTestEngine(t, WithClock(func() time.Time { return testBase.AddDate(0, 2, 0) }))

	// Effective only in January 2026. The engine clock is March, but the
	// event occurred in January, so the constraint still applies.
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := e.Register(context.Background(), RegisterParams{
		Type:            contracts.ConstraintTemporal,
		Name:            "assignment_actor_required",
		Definition:      `event.actor != ""`,
		Scope:           contracts.ConstraintScope{EventTypes: []contracts.EventType{contracts.EventAssignmentStarted}},
		EffectiveDates:  &contracts.EffectiveDates{Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), End: &end},
		SourceDocuments: []string{"doc-1"},
	})
	require.NoError(t, err)

	ev := &contracts.Event{
		ID:         "evt-1",
		Type:       contracts.EventAssignmentStarted,
		OccurredAt: testBase,
	}
	result := e.ValidateEvent(ev, nil)
	require.False(t, result.Valid)
	assert.Equal(t, contracts.CategoryTemporal, result.Errors[0].Category)
	assert.Equal(t, testBase, result.Errors[0].Timestamp, "violation is stamped at the occurrence time")

	// An explicit context timestamp outside the window disables the rule.
	outside := testBase.AddDate(1, 0, 0)
	result = e.ValidateEvent(ev, &Context{Timestamp: outside})
	assert.True(t, result.Valid)
}

func TestEngine_NowBindsToValidationTimestamp(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Register(context.Background(), RegisterParams{
		Type:            contracts.ConstraintTemporal,
		Name:            "no_future_occurrence",
		Definition:      `event.occurred_at <= now`,
		Scope:           contracts.ConstraintScope{EventTypes: []contracts.EventType{contracts.EventTaskCreated}},
		SourceDocuments: []string{"doc-1"},
	})
	require.NoError(t, err)

	ev := &contracts.Event{ID: "evt-1", Type: contracts.EventTaskCreated, OccurredAt: testBase}

	// Default effectiveness time is the occurrence itself, so the bound
	// now equals occurred_at and the rule passes.
	assert.True(t, e.ValidateEvent(ev, nil).Valid)

	earlier := testBase.Add(-time.Hour)
	result := e.ValidateEvent(ev, &Context{Timestamp: earlier})
	assert.False(t, result.Valid)
}

type fakeLinker struct {
	linked map[string][]string
	fail   string
}

func (f *fakeLinker) LinkConstraints(docID string, constraintIDs []string) error {
	if docID == f.fail {
		return fmt.Errorf("document %s not found", docID)
	}
	if f.linked == nil {
		f.linked = make(map[string][]string)
	}
	f.linked[docID] = append(f.linked[docID], constraintIDs...)
	return nil
}

func TestEngine_LinksSourceDocuments(t *testing.T) {
	linker := &fakeLinker{}
	e := newTestEngine(t, WithDocumentLinker(linker))

	id, err := e.Register(context.Background(), RegisterParams{
		Type:            contracts.ConstraintPolicy,
		Name:            "grounded",
		Definition:      "true",
		SourceDocuments: []string{"doc-a", "doc-b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, linker.linked["doc-a"])
	assert.Equal(t, []string{id}, linker.linked["doc-b"])
}

func TestEngine_UnknownDocumentAbortsRegistration(t *testing.T) {
	linker := &fakeLinker{fail: "doc-missing"}
	e := newTestEngine(t, WithDocumentLinker(linker))

	_, err := e.Register(context.Background(), RegisterParams{
		Type:            contracts.ConstraintPolicy,
		Name:            "dangling",
		Definition:      "true",
		SourceDocuments: []string{"doc-missing"},
	})
	require.Error(t, err)
	assert.Empty(t, e.constraints, "nothing may be committed when grounding fails")
}

type fakeRecorder struct {
	violations []string
}

func (f *fakeRecorder) RecordConstraintViolation(constraintType string) {
	f.violations = append(f.violations, constraintType)
}

func TestEngine_RecordsViolations(t *testing.T) {
	rec := &fakeRecorder{}
	e := newTestEngine(t, WithRecorder(rec))
	registerHolonConstraint(t, e, "always_fails", "false", contracts.HolonTask)

	holon := &contracts.Holon{ID: "holon-1", Type: contracts.HolonTask}
	e.ValidateHolon(holon, nil)
	e.ValidateHolon(holon, nil)

	assert.Equal(t, []string{"structural", "structural"}, rec.violations)
}

func TestEngine_PrecedenceOrdersExecution(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Register(context.Background(), RegisterParams{
		Type:            contracts.ConstraintStructural,
		Name:            "low",
		Definition:      "false",
		Scope:           contracts.ConstraintScope{HolonTypes: []contracts.HolonType{contracts.HolonAsset}},
		SourceDocuments: []string{"doc-1"},
		Precedence:      1,
	})
	require.NoError(t, err)
	_, err = e.Register(context.Background(), RegisterParams{
		Type:            contracts.ConstraintStructural,
		Name:            "high",
		Definition:      "false",
		Scope:           contracts.ConstraintScope{HolonTypes: []contracts.HolonType{contracts.HolonAsset}},
		SourceDocuments: []string{"doc-1"},
		Precedence:      9,
	})
	require.NoError(t, err)

	result := e.ValidateHolon(&contracts.Holon{ID: "h", Type: contracts.HolonAsset}, nil)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "high", result.Errors[0].ViolatedRule)
	assert.Equal(t, "low", result.Errors[1].ViolatedRule)
}
