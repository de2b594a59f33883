// Package constraints implements the constraint engine: document-grounded
// validators scoped to holon, relationship, and event types, with effective
// date gating, inheritance, and precedence merge. Validation logic is CEL;
// definitions are linted for determinism before they compile.
package constraints

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/decls"
	"github.com/google/cel-go/common/types"
	"github.com/google/uuid"

	"github.com/semops-labs/som/core/pkg/contracts"
)

var ErrConstraintNotFound = errors.New("constraint not found")

// DocumentLinker records the constraint ids grounded in each document.
// The document registry satisfies it.
type DocumentLinker interface {
	LinkConstraints(docID string, constraintIDs []string) error
}

// Snapshots persists constraint metadata by id.
type Snapshots interface {
	SaveConstraint(ctx context.Context, c *contracts.Constraint) error
}

// Recorder receives constraint violation counts. The monitoring package
// satisfies it.
type Recorder interface {
	RecordConstraintViolation(constraintType string)
}

// RegisterParams carries a constraint definition. Definition is CEL source
// that must evaluate to a boolean: true passes, anything else violates.
type RegisterParams struct {
	Type             contracts.ConstraintType
	Name             string
	Definition       string
	Scope            contracts.ConstraintScope
	EffectiveDates   *contracts.EffectiveDates
	SourceDocuments  []string
	Precedence       int
	InheritanceRules *contracts.InheritanceRules
}

// Context carries optional validation inputs. A zero Timestamp means the
// engine's current clock for holons and relationships, and the event's own
// occurrence time for events.
type Context struct {
	Timestamp time.Time
}

// Engine compiles, indexes, and dispatches constraints.
type Engine struct {
	mu          sync.RWMutex
	env         *cel.Env
	constraints map[string]*contracts.Constraint
	byType      map[contracts.ConstraintType][]string
	byHolon     map[contracts.HolonType][]string
	byRel       map[contracts.RelationshipType][]string
	byEvent     map[contracts.EventType][]string
	byInherits  map[contracts.HolonType][]string

	clock     func() time.Time
	docs      DocumentLinker
	snapshots Snapshots
	recorder  Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithDocumentLinker wires source-document linking at registration time.
func WithDocumentLinker(d DocumentLinker) Option {
	return func(e *Engine) { e.docs = d }
}

// WithSnapshots attaches a persistence seam.
func WithSnapshots(s Snapshots) Option {
	return func(e *Engine) { e.snapshots = s }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// New creates an engine with the standard validation environment. The
// environment exposes holon, relationship, and event as dynamic maps plus
// now as the effective validation timestamp.
func New(opts ...Option) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.VariableDecls(
			decls.NewVariable("holon", types.NewMapType(types.StringType, types.DynType)),
			decls.NewVariable("relationship", types.NewMapType(types.StringType, types.DynType)),
			decls.NewVariable("event", types.NewMapType(types.StringType, types.DynType)),
			decls.NewVariable("now", types.TimestampType),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	e := &Engine{
		env:         env,
		constraints: make(map[string]*contracts.Constraint),
		byType:      make(map[contracts.ConstraintType][]string),
		byHolon:     make(map[contracts.HolonType][]string),
		byRel:       make(map[contracts.RelationshipType][]string),
		byEvent:     make(map[contracts.EventType][]string),
		byInherits:  make(map[contracts.HolonType][]string),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Register lints, compiles, and indexes a constraint, then links its source
// documents. Returns the new constraint id.
func (e *Engine) Register(ctx context.Context, params RegisterParams) (string, error) {
	if params.Name == "" {
		return "", errors.New("constraint name is required")
	}
	if params.Definition == "" {
		return "", errors.New("constraint definition is required")
	}
	switch params.Type {
	case contracts.ConstraintStructural, contracts.ConstraintPolicy, contracts.ConstraintTemporal:
	default:
		return "", fmt.Errorf("unknown constraint type %q", params.Type)
	}
	if len(params.SourceDocuments) == 0 {
		return "", errors.New("constraint requires at least one grounding document")
	}

	issues, err := lintDeterminism(e.env, params.Definition)
	if err != nil {
		return "", fmt.Errorf("constraint parse failed: %w", err)
	}
	if len(issues) > 0 {
		return "", fmt.Errorf("constraint definition is not deterministic: %s", issues[0].Message)
	}

	ast, compileIssues := e.env.Compile(params.Definition)
	if compileIssues != nil && compileIssues.Err() != nil {
		return "", fmt.Errorf("constraint compilation failed: %w", compileIssues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return "", fmt.Errorf("program construction failed: %w", err)
	}

	c := &contracts.Constraint{
		ID:               uuid.NewString(),
		Type:             params.Type,
		Name:             params.Name,
		Definition:       params.Definition,
		Scope:            params.Scope,
		EffectiveDates:   params.EffectiveDates,
		SourceDocuments:  params.SourceDocuments,
		Precedence:       params.Precedence,
		InheritanceRules: params.InheritanceRules,
		CreatedAt:        e.clock(),
	}
	c.Validator = &celValidator{
		id:       c.ID,
		name:     c.Name,
		category: categoryFor(c.Type),
		program:  prg,
	}

	// Grounding documents must exist before the constraint does.
	if e.docs != nil {
		for _, docID := range c.SourceDocuments {
			if err := e.docs.LinkConstraints(docID, []string{c.ID}); err != nil {
				return "", fmt.Errorf("link source document %s: %w", docID, err)
			}
		}
	}
	if e.snapshots != nil {
		if err := e.snapshots.SaveConstraint(ctx, c); err != nil {
			return "", fmt.Errorf("constraint snapshot: %w", err)
		}
	}

	e.mu.Lock()
	e.constraints[c.ID] = c
	e.byType[c.Type] = append(e.byType[c.Type], c.ID)
	for _, ht := range c.Scope.HolonTypes {
		e.byHolon[ht] = append(e.byHolon[ht], c.ID)
	}
	for _, rt := range c.Scope.RelationshipTypes {
		e.byRel[rt] = append(e.byRel[rt], c.ID)
	}
	for _, et := range c.Scope.EventTypes {
		e.byEvent[et] = append(e.byEvent[et], c.ID)
	}
	if c.InheritanceRules != nil {
		for _, ht := range c.InheritanceRules.InheritsFrom {
			e.byInherits[ht] = append(e.byInherits[ht], c.ID)
		}
	}
	e.mu.Unlock()

	return c.ID, nil
}

// Get retrieves one constraint. The second return is false when the id is
// unknown.
func (e *Engine) Get(id string) (*contracts.Constraint, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	c, ok := e.constraints[id]
	if !ok {
		return nil, false
	}
	return c, true
}

// ApplicableToHolonType returns constraints directly scoped to the holon
// type. A nil timestamp skips effective-date gating.
func (e *Engine) ApplicableToHolonType(t contracts.HolonType, at *time.Time) []*contracts.Constraint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.effective(e.byHolon[t], at)
}

// ApplicableToRelationshipType returns constraints scoped to the
// relationship type.
func (e *Engine) ApplicableToRelationshipType(t contracts.RelationshipType, at *time.Time) []*contracts.Constraint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.effective(e.byRel[t], at)
}

// ApplicableToEventType returns constraints scoped to the event type.
func (e *Engine) ApplicableToEventType(t contracts.EventType, at *time.Time) []*contracts.Constraint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.effective(e.byEvent[t], at)
}

func (e *Engine) effective(ids []string, at *time.Time) []*contracts.Constraint {
	out := make([]*contracts.Constraint, 0, len(ids))
	for _, id := range ids {
		c := e.constraints[id]
		if at == nil || c.EffectiveAtTime(*at) {
			out = append(out, c)
		}
	}
	return out
}

// ValidateHolon runs the merged direct and inherited constraint set for the
// holon's type at the context timestamp (default: now).
func (e *Engine) ValidateHolon(h *contracts.Holon, vctx *Context) *contracts.ValidationResult {
	at := e.effectiveTime(vctx, time.Time{})

	e.mu.RLock()
	direct := e.effective(e.byHolon[h.Type], &at)
	inherited := e.effective(e.byInherits[h.Type], &at)
	e.mu.RUnlock()

	merged := mergeByPrecedence(direct, inherited)
	return e.run(merged, map[string]any{"holon": holonVars(h)}, at)
}

// ValidateRelationship runs the constraint set for the relationship's type.
// Inheritance does not apply to relationships.
func (e *Engine) ValidateRelationship(r *contracts.Relationship, vctx *Context) *contracts.ValidationResult {
	at := e.effectiveTime(vctx, time.Time{})

	e.mu.RLock()
	applicable := e.effective(e.byRel[r.Type], &at)
	e.mu.RUnlock()

	sortByPrecedence(applicable)
	return e.run(applicable, map[string]any{"relationship": relationshipVars(r)}, at)
}

// ValidateEvent runs the constraint set for the event's type. An explicit
// context timestamp wins; otherwise effectiveness is judged at the event's
// own occurrence time, never the wall clock.
func (e *Engine) ValidateEvent(ev *contracts.Event, vctx *Context) *contracts.ValidationResult {
	at := e.effectiveTime(vctx, ev.OccurredAt)

	e.mu.RLock()
	applicable := e.effective(e.byEvent[ev.Type], &at)
	e.mu.RUnlock()

	sortByPrecedence(applicable)
	return e.run(applicable, map[string]any{"event": eventVars(ev)}, at)
}

func (e *Engine) effectiveTime(vctx *Context, fallback time.Time) time.Time {
	if vctx != nil && !vctx.Timestamp.IsZero() {
		return vctx.Timestamp
	}
	if !fallback.IsZero() {
		return fallback
	}
	return e.clock()
}

func (e *Engine) run(cs []*contracts.Constraint, vars map[string]any, at time.Time) *contracts.ValidationResult {
	result := contracts.OK()
	for _, c := range cs {
		errs := c.Validator.Validate(vars, at)
		for _, verr := range errs {
			result.AddError(verr)
			if e.recorder != nil {
				e.recorder.RecordConstraintViolation(string(c.Type))
			}
		}
	}
	return result
}

// mergeByPrecedence applies the inheritance merge: inherited constraints
// seed the set keyed by name; a direct constraint replaces an inherited one
// of the same name only when the inherited entry allows overrides and the
// direct precedence clears the override threshold. The merged set runs in
// descending precedence order.
func mergeByPrecedence(direct, inherited []*contracts.Constraint) []*contracts.Constraint {
	merged := make(map[string]*contracts.Constraint, len(direct)+len(inherited))
	for _, c := range inherited {
		merged[c.Name] = c
	}
	for _, c := range direct {
		existing, ok := merged[c.Name]
		if !ok {
			merged[c.Name] = c
			continue
		}
		rules := existing.InheritanceRules
		if rules != nil && rules.CanOverride && c.Precedence >= rules.OverridePrecedence {
			merged[c.Name] = c
		}
	}

	out := make([]*contracts.Constraint, 0, len(merged))
	for _, c := range merged {
		out = append(out, c)
	}
	sortByPrecedence(out)
	return out
}

func sortByPrecedence(cs []*contracts.Constraint) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Precedence != cs[j].Precedence {
			return cs[i].Precedence > cs[j].Precedence
		}
		return cs[i].Name < cs[j].Name
	})
}

func categoryFor(t contracts.ConstraintType) contracts.ErrorCategory {
	if t == contracts.ConstraintTemporal {
		return contracts.CategoryTemporal
	}
	return contracts.CategoryValidation
}
