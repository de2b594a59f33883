package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/semops-labs/som/core/pkg/contracts"
)

// Dialect selects the SQL flavor for placeholders and DDL.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements every log and snapshot interface over database/sql.
// Rows hold the canonical JSON encoding of the value plus a few columns
// for keying and ordering; derived indices live in the registries and are
// rebuilt from here.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open handle and creates the tables.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("unknown dialect %q", dialect)
	}
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle, mainly for Close.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) migrate(ctx context.Context) error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == DialectPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS som_events (
			seq %s,
			id TEXT NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			occurred_at TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			payload TEXT NOT NULL
		)`, serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS som_documents (
			seq %s,
			id TEXT NOT NULL UNIQUE,
			document_type TEXT NOT NULL,
			effective_start TEXT NOT NULL,
			payload TEXT NOT NULL
		)`, serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS som_decisions (
			seq %s,
			id TEXT NOT NULL UNIQUE,
			proposal_id TEXT NOT NULL,
			payload TEXT NOT NULL
		)`, serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS som_proposals (
			seq %s,
			proposal_id TEXT NOT NULL,
			status TEXT NOT NULL,
			payload TEXT NOT NULL
		)`, serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS som_holons (
			seq %s,
			id TEXT NOT NULL UNIQUE,
			holon_type TEXT NOT NULL,
			status TEXT NOT NULL,
			payload TEXT NOT NULL
		)`, serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS som_relationships (
			seq %s,
			id TEXT NOT NULL UNIQUE,
			relationship_type TEXT NOT NULL,
			payload TEXT NOT NULL
		)`, serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS som_constraints (
			seq %s,
			id TEXT NOT NULL UNIQUE,
			constraint_type TEXT NOT NULL,
			payload TEXT NOT NULL
		)`, serial),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// bind rewrites ? placeholders to the dialect's form.
func (s *SQLStore) bind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// AppendEvent writes one accepted event to the log.
func (s *SQLStore) AppendEvent(ctx context.Context, e *contracts.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.ID, err)
	}

	_, err = s.db.ExecContext(ctx, s.bind(
		`INSERT INTO som_events (id, event_type, occurred_at, recorded_at, payload) VALUES (?, ?, ?, ?, ?)`),
		e.ID, string(e.Type), stamp(e.OccurredAt), stamp(e.RecordedAt), string(payload))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("event %s: %w", e.ID, ErrDuplicateAppend)
		}
		return fmt.Errorf("append event %s: %w", e.ID, err)
	}
	return nil
}

// Events returns the log in append order.
func (s *SQLStore) Events(ctx context.Context) ([]*contracts.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM som_events ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e contracts.Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("decode event row: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// AppendDocument writes one document to the log. Decision records shelve
// into the decision log instead.
func (s *SQLStore) AppendDocument(ctx context.Context, d *contracts.Document) error {
	if d.DocumentType == contracts.DocTypeDecisionRecord {
		return s.AppendDecision(ctx, d)
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", d.ID, err)
	}

	_, err = s.db.ExecContext(ctx, s.bind(
		`INSERT INTO som_documents (id, document_type, effective_start, payload) VALUES (?, ?, ?, ?)`),
		d.ID, d.DocumentType, stamp(d.EffectiveDates.Start), string(payload))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", d.ID, ErrDuplicateAppend)
		}
		return fmt.Errorf("append document %s: %w", d.ID, err)
	}
	return nil
}

// Documents returns the ordinary-document log in append order.
func (s *SQLStore) Documents(ctx context.Context) ([]*contracts.Document, error) {
	return s.readDocuments(ctx, `SELECT payload FROM som_documents ORDER BY seq`)
}

// AppendDecision writes one governance decision record.
func (s *SQLStore) AppendDecision(ctx context.Context, d *contracts.Document) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode decision %s: %w", d.ID, err)
	}

	proposalID := ""
	if len(d.ReferenceNumbers) > 0 {
		proposalID = d.ReferenceNumbers[0]
	}

	_, err = s.db.ExecContext(ctx, s.bind(
		`INSERT INTO som_decisions (id, proposal_id, payload) VALUES (?, ?, ?)`),
		d.ID, proposalID, string(payload))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("decision %s: %w", d.ID, ErrDuplicateAppend)
		}
		return fmt.Errorf("append decision %s: %w", d.ID, err)
	}
	return nil
}

// Decisions returns the decision log in append order.
func (s *SQLStore) Decisions(ctx context.Context) ([]*contracts.Document, error) {
	return s.readDocuments(ctx, `SELECT payload FROM som_decisions ORDER BY seq`)
}

func (s *SQLStore) readDocuments(ctx context.Context, query string) ([]*contracts.Document, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.Document
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var d contracts.Document
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			return nil, fmt.Errorf("decode document row: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// AppendProposal writes one proposal state. The same proposal id appears
// once per lifecycle step.
func (s *SQLStore) AppendProposal(ctx context.Context, p *contracts.SchemaChangeProposal) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode proposal %s: %w", p.ID, err)
	}

	_, err = s.db.ExecContext(ctx, s.bind(
		`INSERT INTO som_proposals (proposal_id, status, payload) VALUES (?, ?, ?)`),
		p.ID, string(p.Status), string(payload))
	if err != nil {
		return fmt.Errorf("append proposal %s: %w", p.ID, err)
	}
	return nil
}

// Proposals returns every appended proposal state in append order.
func (s *SQLStore) Proposals(ctx context.Context) ([]*contracts.SchemaChangeProposal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM som_proposals ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("read proposals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.SchemaChangeProposal
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var p contracts.SchemaChangeProposal
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decode proposal row: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// SaveHolon upserts the holon's latest state.
func (s *SQLStore) SaveHolon(ctx context.Context, h *contracts.Holon) error {
	payload, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode holon %s: %w", h.ID, err)
	}

	_, err = s.db.ExecContext(ctx, s.bind(
		`INSERT INTO som_holons (id, holon_type, status, payload) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET holon_type = excluded.holon_type, status = excluded.status, payload = excluded.payload`),
		h.ID, string(h.Type), string(h.Status), string(payload))
	if err != nil {
		return fmt.Errorf("save holon %s: %w", h.ID, err)
	}
	return nil
}

// Holons returns snapshots in first-save order.
func (s *SQLStore) Holons(ctx context.Context) ([]*contracts.Holon, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM som_holons ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("read holons: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.Holon
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var h contracts.Holon
		if err := json.Unmarshal([]byte(payload), &h); err != nil {
			return nil, fmt.Errorf("decode holon row: %w", err)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// SaveRelationship upserts the edge's latest state.
func (s *SQLStore) SaveRelationship(ctx context.Context, r *contracts.Relationship) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode relationship %s: %w", r.ID, err)
	}

	_, err = s.db.ExecContext(ctx, s.bind(
		`INSERT INTO som_relationships (id, relationship_type, payload) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET relationship_type = excluded.relationship_type, payload = excluded.payload`),
		r.ID, string(r.Type), string(payload))
	if err != nil {
		return fmt.Errorf("save relationship %s: %w", r.ID, err)
	}
	return nil
}

// Relationships returns snapshots in first-save order.
func (s *SQLStore) Relationships(ctx context.Context) ([]*contracts.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM som_relationships ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("read relationships: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.Relationship
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r contracts.Relationship
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("decode relationship row: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// SaveConstraint upserts the constraint's declarative state.
func (s *SQLStore) SaveConstraint(ctx context.Context, c *contracts.Constraint) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode constraint %s: %w", c.ID, err)
	}

	_, err = s.db.ExecContext(ctx, s.bind(
		`INSERT INTO som_constraints (id, constraint_type, payload) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET constraint_type = excluded.constraint_type, payload = excluded.payload`),
		c.ID, string(c.Type), string(payload))
	if err != nil {
		return fmt.Errorf("save constraint %s: %w", c.ID, err)
	}
	return nil
}

// Constraints returns snapshots in first-save order.
func (s *SQLStore) Constraints(ctx context.Context) ([]*contracts.Constraint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM som_constraints ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("read constraints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.Constraint
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var c contracts.Constraint
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return nil, fmt.Errorf("decode constraint row: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// RebuildProposals folds the proposal log to the latest state per id, in
// first-appended order.
func (s *SQLStore) RebuildProposals(ctx context.Context) ([]*contracts.SchemaChangeProposal, error) {
	states, err := s.Proposals(ctx)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]*contracts.SchemaChangeProposal, len(states))
	var order []string
	for _, p := range states {
		if _, seen := latest[p.ID]; !seen {
			order = append(order, p.ID)
		}
		latest[p.ID] = p
	}

	out := make([]*contracts.SchemaChangeProposal, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out, nil
}

// RebuildDocuments merges the document and decision logs ordered by the
// start of each document's period of force, ties broken by id.
func (s *SQLStore) RebuildDocuments(ctx context.Context) ([]*contracts.Document, error) {
	docs, err := s.Documents(ctx)
	if err != nil {
		return nil, err
	}
	decisions, err := s.Decisions(ctx)
	if err != nil {
		return nil, err
	}

	out := append(docs, decisions...)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.EffectiveDates.Start.Equal(b.EffectiveDates.Start) {
			return a.EffectiveDates.Start.Before(b.EffectiveDates.Start)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
