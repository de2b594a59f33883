// Package schema holds the versioned type catalog: holon and relationship
// type definitions tagged with the schema version that introduced them,
// semver version history, collision detection for proposed definitions, and
// JSON Schema validation of holon properties.
package schema

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/semops-labs/som/core/pkg/contracts"
)

var (
	ErrTypeNotFound      = errors.New("type definition not found")
	ErrTypeAlreadyExists = errors.New("type definition already registered")
)

// ChangeType classifies a schema version bump. Breaking changes increment
// the major version, everything else the minor.
type ChangeType string

const (
	ChangeBreaking    ChangeType = "breaking"
	ChangeNonBreaking ChangeType = "non_breaking"
)

// SchemaVersion is one entry in the version history.
type SchemaVersion struct {
	ID             string     `json:"id"`
	Version        string     `json:"version"`
	ChangeType     ChangeType `json:"change_type"`
	Description    string     `json:"description"`
	SourceDocument string     `json:"source_document"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Registry is the schema catalog. The baseline model (the built-in holon and
// relationship types) is seeded at version 1.0.0.
type Registry struct {
	mu         sync.RWMutex
	holonDefs  map[string]*contracts.HolonTypeDefinition
	relDefs    map[string]*contracts.RelationshipTypeDefinition
	holonOrder []string
	relOrder   []string

	versions []*SchemaVersion
	byID     map[string]*SchemaVersion
	current  *semver.Version
	latest   *SchemaVersion

	compiled map[string]*jsonschema.Schema

	clock func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) { r.clock = clock }
}

// NewRegistry builds a catalog seeded with the baseline model at 1.0.0.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		holonDefs: make(map[string]*contracts.HolonTypeDefinition),
		relDefs:   make(map[string]*contracts.RelationshipTypeDefinition),
		byID:      make(map[string]*SchemaVersion),
		compiled:  make(map[string]*jsonschema.Schema),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.current = semver.MustParse("1.0.0")
	r.latest = &SchemaVersion{
		ID:             uuid.NewString(),
		Version:        r.current.String(),
		ChangeType:     ChangeNonBreaking,
		Description:    "baseline semantic model",
		SourceDocument: "som-core-baseline",
		CreatedAt:      r.clock(),
	}
	r.versions = append(r.versions, r.latest)
	r.byID[r.latest.ID] = r.latest

	for _, def := range baselineHolonTypes() {
		r.stampLocked(&def.IntroducedInVersion, &def.SchemaVersionID)
		r.holonDefs[def.Type] = def
		r.holonOrder = append(r.holonOrder, def.Type)
	}
	for _, def := range baselineRelationshipTypes() {
		r.stampLocked(&def.IntroducedInVersion, &def.SchemaVersionID)
		r.relDefs[def.Type] = def
		r.relOrder = append(r.relOrder, def.Type)
	}
	return r
}

func (r *Registry) stampLocked(version, versionID *string) {
	if *version == "" {
		*version = r.current.String()
	}
	if *versionID == "" {
		*versionID = r.latest.ID
	}
}

// RegisterHolonType adds a definition to the catalog. Unstamped definitions
// inherit the current schema version. An optional property JSON Schema is
// compiled here and rejected if malformed.
func (r *Registry) RegisterHolonType(def *contracts.HolonTypeDefinition) error {
	if def.Type == "" {
		return errors.New("holon type name is required")
	}
	if len(def.SourceDocuments) == 0 {
		return fmt.Errorf("holon type %s requires at least one source document", def.Type)
	}

	var compiled *jsonschema.Schema
	if len(def.PropertySchema) > 0 {
		var err error
		compiled, err = compilePropertySchema(def.Type, def.PropertySchema)
		if err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.holonDefs[def.Type]; exists {
		return fmt.Errorf("%w: holon type %s", ErrTypeAlreadyExists, def.Type)
	}
	r.stampLocked(&def.IntroducedInVersion, &def.SchemaVersionID)
	r.holonDefs[def.Type] = def
	r.holonOrder = append(r.holonOrder, def.Type)
	if compiled != nil {
		r.compiled[def.Type] = compiled
	}
	return nil
}

// RegisterRelationshipType adds a relationship definition to the catalog.
func (r *Registry) RegisterRelationshipType(def *contracts.RelationshipTypeDefinition) error {
	if def.Type == "" {
		return errors.New("relationship type name is required")
	}
	if len(def.SourceDocuments) == 0 {
		return fmt.Errorf("relationship type %s requires at least one source document", def.Type)
	}

	var compiled *jsonschema.Schema
	if len(def.PropertySchema) > 0 {
		var err error
		compiled, err = compilePropertySchema(def.Type, def.PropertySchema)
		if err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.relDefs[def.Type]; exists {
		return fmt.Errorf("%w: relationship type %s", ErrTypeAlreadyExists, def.Type)
	}
	r.stampLocked(&def.IntroducedInVersion, &def.SchemaVersionID)
	r.relDefs[def.Type] = def
	r.relOrder = append(r.relOrder, def.Type)
	if compiled != nil {
		r.compiled[def.Type] = compiled
	}
	return nil
}

func compilePropertySchema(typeName string, raw []byte) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://som.schemas.local/types/%s.schema.json", typeName)
	if err := c.AddResource(schemaURL, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("property schema load failed for %s: %w", typeName, err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("property schema compile failed for %s: %w", typeName, err)
	}
	return compiled, nil
}

// HolonType looks up a holon type definition by name.
func (r *Registry) HolonType(name string) (*contracts.HolonTypeDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.holonDefs[name]
	return def, ok
}

// RelationshipType looks up a relationship type definition by name.
func (r *Registry) RelationshipType(name string) (*contracts.RelationshipTypeDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.relDefs[name]
	return def, ok
}

// HolonTypes returns all definitions in registration order.
func (r *Registry) HolonTypes() []*contracts.HolonTypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*contracts.HolonTypeDefinition, 0, len(r.holonOrder))
	for _, name := range r.holonOrder {
		out = append(out, r.holonDefs[name])
	}
	return out
}

// RelationshipTypes returns all definitions in registration order.
func (r *Registry) RelationshipTypes() []*contracts.RelationshipTypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*contracts.RelationshipTypeDefinition, 0, len(r.relOrder))
	for _, name := range r.relOrder {
		out = append(out, r.relDefs[name])
	}
	return out
}

// CreateVersion appends a version entry and advances the current version:
// breaking changes bump the major component, everything else the minor.
func (r *Registry) CreateVersion(changeType ChangeType, description, sourceDocument string) (*SchemaVersion, error) {
	switch changeType {
	case ChangeBreaking, ChangeNonBreaking:
	default:
		return nil, fmt.Errorf("unknown change type %q", changeType)
	}
	if description == "" {
		return nil, errors.New("version description is required")
	}
	if sourceDocument == "" {
		return nil, errors.New("version source document is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var next semver.Version
	if changeType == ChangeBreaking {
		next = r.current.IncMajor()
	} else {
		next = r.current.IncMinor()
	}

	v := &SchemaVersion{
		ID:             uuid.NewString(),
		Version:        next.String(),
		ChangeType:     changeType,
		Description:    description,
		SourceDocument: sourceDocument,
		CreatedAt:      r.clock(),
	}
	r.current = &next
	r.latest = v
	r.versions = append(r.versions, v)
	r.byID[v.ID] = v
	return v, nil
}

// CurrentVersion returns the current semver string.
func (r *Registry) CurrentVersion() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.String()
}

// Version looks up one version entry by id.
func (r *Registry) Version(id string) (*SchemaVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byID[id]
	return v, ok
}

// Versions returns the history oldest first.
func (r *Registry) Versions() []*SchemaVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*SchemaVersion, len(r.versions))
	copy(out, r.versions)
	return out
}

// ValidateProperties checks a property map against the type's compiled
// property schema when one exists, and otherwise against the presence of
// its declared required properties.
func (r *Registry) ValidateProperties(typeName string, props map[string]any) error {
	r.mu.RLock()
	compiled := r.compiled[typeName]
	def, ok := r.holonDefs[typeName]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrTypeNotFound, typeName)
	}
	if compiled != nil {
		if err := compiled.Validate(normalizeForSchema(props)); err != nil {
			return fmt.Errorf("properties of %s failed schema validation: %w", typeName, err)
		}
		return nil
	}
	for _, prop := range def.RequiredProperties {
		if _, present := props[prop.Name]; !present {
			return fmt.Errorf("properties of %s missing required property %q", typeName, prop.Name)
		}
	}
	return nil
}
