package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/semops-labs/som/core/pkg/config"
	"github.com/semops-labs/som/core/pkg/constraints"
	"github.com/semops-labs/som/core/pkg/contracts"
	"github.com/semops-labs/som/core/pkg/documents"
	"github.com/semops-labs/som/core/pkg/domain"
	"github.com/semops-labs/som/core/pkg/eventstore"
	"github.com/semops-labs/som/core/pkg/governance"
	"github.com/semops-labs/som/core/pkg/holons"
	"github.com/semops-labs/som/core/pkg/monitoring"
	"github.com/semops-labs/som/core/pkg/relationships"
	"github.com/semops-labs/som/core/pkg/schema"
	"github.com/semops-labs/som/core/pkg/store"
	"github.com/semops-labs/som/core/pkg/validation"
)

// coreHandles bundles every wired subsystem of one core instance.
type coreHandles struct {
	events     *eventstore.Store
	holons     *holons.Registry
	rels       *relationships.Registry
	documents  *documents.Registry
	engine     *constraints.Engine
	catalog    *schema.Registry
	governance *governance.Manager
	checker    *validation.Engine
	people     *domain.PersonManager
	quals      *domain.QualificationManager
}

// wireCore assembles the full core: event store, registries, constraint
// engine, schema catalog, governance, validation, and domain managers.
// A nil store runs everything in memory.
func wireCore(cfg *config.Config, mon *monitoring.Monitor, st *store.SQLStore) (*coreHandles, error) {
	evOpts := []eventstore.Option{
		eventstore.WithBounds(cfg.MaxEventAge(), cfg.MaxEventLead()),
		eventstore.WithRecorder(mon),
	}
	if st != nil {
		evOpts = append(evOpts, eventstore.WithJournal(st))
	}
	events := eventstore.New(evOpts...)

	var docOpts []documents.Option
	if st != nil {
		docOpts = append(docOpts, documents.WithJournal(st))
	}
	docs := documents.New(docOpts...)

	engOpts := []constraints.Option{
		constraints.WithDocumentLinker(docs),
		constraints.WithRecorder(mon),
	}
	if st != nil {
		engOpts = append(engOpts, constraints.WithSnapshots(st))
	}
	engine, err := constraints.New(engOpts...)
	if err != nil {
		return nil, fmt.Errorf("constraint engine: %w", err)
	}

	hrOpts := []holons.Option{
		holons.WithEventLookup(events),
		holons.WithRecorder(mon),
	}
	if st != nil {
		hrOpts = append(hrOpts, holons.WithSnapshots(st))
	}
	hr := holons.New(hrOpts...)

	rrOpts := []relationships.Option{
		relationships.WithHolonLookup(hr),
		relationships.WithConstraintValidator(engine),
		relationships.WithRecorder(mon),
	}
	if st != nil {
		rrOpts = append(rrOpts, relationships.WithSnapshots(st))
	}
	rels := relationships.New(events, rrOpts...)

	catalog := schema.NewRegistry()
	var govOpts []governance.Option
	if st != nil {
		govOpts = append(govOpts, governance.WithJournal(st))
	}
	gov := governance.NewManager(catalog, docs, govOpts...)

	checker := validation.NewEngine(events,
		validation.WithBounds(cfg.MaxEventAge(), cfg.MaxEventLead(), cfg.ClockSkew()),
		validation.WithDocuments(docs),
		validation.WithConstraintEngine(engine),
		validation.WithSubmitter(events),
		validation.WithLogCapacity(cfg.ValidationLogCapacity),
	)

	core := domain.NewCore(events, hr, rels,
		domain.WithConfig(cfg),
		domain.WithConstraintValidator(engine),
	)

	return &coreHandles{
		events:     events,
		holons:     hr,
		rels:       rels,
		documents:  docs,
		engine:     engine,
		catalog:    catalog,
		governance: gov,
		checker:    checker,
		people:     domain.NewPersonManager(core),
		quals:      domain.NewQualificationManager(core),
	}, nil
}

// runDemoCmd implements `som demo`: seed a small demonstration graph
// through the real write paths and print system health and metrics.
//
// Exit codes:
//
//	0 = demonstration completed
//	1 = an operation was rejected by validation
//	2 = runtime error
func runDemoCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("demo", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		configPath string
		dbPath     string
		jsonOutput bool
	)
	cmd.StringVar(&configPath, "config", "", "Path to YAML config (optional)")
	cmd.StringVar(&dbPath, "db", "", "Persist the demonstration graph to a SQLite store")
	cmd.BoolVar(&jsonOutput, "json", false, "Print only the final health and metrics JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: load config: %v\n", err)
			return 2
		}
		cfg = loaded
	}

	logger := log.New(stdout, "", 0)
	if jsonOutput {
		logger.SetOutput(io.Discard)
	}

	mon := monitoring.Init(cfg.Monitoring)
	defer mon.Shutdown()

	var st *store.SQLStore
	if dbPath != "" {
		opened, err := store.OpenSQLite(dbPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: open store: %v\n", err)
			return 2
		}
		st = opened
		defer func() { _ = st.DB().Close() }()
	}

	logger.Println("[demo] wiring core registries")
	h, err := wireCore(cfg, mon, st)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	actor := "demo-admin"

	// 1. Organization and its governing document.
	logger.Println("[demo] creating organization and doctrine")
	orgEvent, result, err := h.events.Submit(ctx, eventstore.SubmitParams{
		Type:         contracts.EventOrganizationCreated,
		OccurredAt:   time.Now().UTC(),
		Actor:        actor,
		SourceSystem: cfg.SourceSystem,
	})
	if code := checkStep(result, err, "record organization event", stderr); code != 0 {
		return code
	}
	org, err := h.holons.Create(ctx, holons.CreateParams{
		Type:            contracts.HolonOrganization,
		Properties:      map[string]any{"name": "Strike Group Seven", "uic": "N00207"},
		CreatedBy:       orgEvent.ID,
		SourceDocuments: []string{"doc-org-charter"},
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: create organization: %v\n", err)
		return 2
	}

	doctrine, err := h.documents.Register(ctx, documents.RegisterParams{
		ReferenceNumbers: []string{"SGINST 3500.1"},
		Title:            "Watchstation Qualification Doctrine",
		DocumentType:     "instruction",
		Version:          "A",
		EffectiveStart:   time.Now().UTC().Add(-time.Minute),
		Content:          "Watch supervisors hold the supervisor qualification before assignment.",
	}, orgEvent.ID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: register doctrine: %v\n", err)
		return 2
	}

	// 2. A policy constraint grounded in the doctrine.
	logger.Println("[demo] registering policy constraint")
	_, err = h.engine.Register(ctx, constraints.RegisterParams{
		Type:            contracts.ConstraintPolicy,
		Name:            "person_edipi_required",
		Definition:      `holon.properties.edipi != ""`,
		Scope:           contracts.ConstraintScope{HolonTypes: []contracts.HolonType{contracts.HolonPerson}},
		SourceDocuments: []string{doctrine.ID},
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: register constraint: %v\n", err)
		return 2
	}

	// 3. Position, qualification, and the requirement edge between them.
	logger.Println("[demo] defining position and required qualification")
	posEvent, result, err := h.events.Submit(ctx, eventstore.SubmitParams{
		Type:         contracts.EventPositionCreated,
		OccurredAt:   time.Now().UTC(),
		Actor:        actor,
		SourceSystem: cfg.SourceSystem,
	})
	if code := checkStep(result, err, "record position event", stderr); code != 0 {
		return code
	}
	position, err := h.holons.Create(ctx, holons.CreateParams{
		Type:            contracts.HolonPosition,
		Properties:      map[string]any{"title": "EW Watch Supervisor", "organization": org.ID},
		CreatedBy:       posEvent.ID,
		SourceDocuments: []string{doctrine.ID},
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: create position: %v\n", err)
		return 2
	}

	qual, result, err := h.quals.DefineQualification(ctx, domain.DefineQualificationParams{
		Properties: contracts.QualificationProperties{
			Name:               "EW Watch Supervisor",
			NEC:                "NEC-741A",
			ValidityPeriodDays: 730,
			RenewalRules:       "requalify via PQS board",
		},
		SourceDocuments: []string{doctrine.ID},
		Actor:           actor,
		SourceSystem:    cfg.SourceSystem,
	})
	if code := checkStep(result, err, "define qualification", stderr); code != 0 {
		return code
	}

	_, result, err = h.rels.Create(ctx, relationships.CreateParams{
		Type:            contracts.RelRequiredFor,
		SourceHolonID:   qual.ID,
		TargetHolonID:   position.ID,
		EffectiveStart:  time.Now().UTC().Add(-time.Minute),
		SourceDocuments: []string{doctrine.ID},
		Actor:           actor,
		SourceSystem:    cfg.SourceSystem,
	})
	if code := checkStep(result, err, "link qualification requirement", stderr); code != 0 {
		return code
	}

	// 4. Register a person, award the qualification, assign to the position.
	logger.Println("[demo] registering person and awarding qualification")
	person, result, err := h.people.RegisterPerson(ctx, domain.RegisterPersonParams{
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
		Actor:           actor,
		SourceSystem:    cfg.SourceSystem,
	})
	if code := checkStep(result, err, "register person", stderr); code != 0 {
		return code
	}

	_, result, err = h.people.AwardQualification(ctx, domain.AwardParams{
		PersonID:        person.ID,
		QualificationID: qual.ID,
		SourceDocuments: []string{doctrine.ID},
		Actor:           actor,
		SourceSystem:    cfg.SourceSystem,
	})
	if code := checkStep(result, err, "award qualification", stderr); code != 0 {
		return code
	}

	logger.Println("[demo] assigning person to position")
	assignment, result, err := h.people.AssignToPosition(ctx, domain.AssignParams{
		PersonID:        person.ID,
		PositionID:      position.ID,
		SourceDocuments: []string{doctrine.ID},
		Actor:           actor,
		SourceSystem:    cfg.SourceSystem,
	})
	if code := checkStep(result, err, "assign to position", stderr); code != 0 {
		return code
	}

	// 5. Governance: propose and approve a new holon type.
	logger.Println("[demo] proposing schema change")
	def := &contracts.HolonTypeDefinition{
		Type:            "Watchstation",
		Description:     "A manned watchstation aboard a unit.",
		SourceDocuments: []string{doctrine.ID},
		RequiredProperties: []contracts.PropertyDefinition{
			{Name: "station_name", Type: "string"},
			{Name: "watch_condition", Type: "string"},
		},
	}
	proposal, err := h.governance.CreateProposal(ctx, contracts.SchemaChangeProposal{
		ProposalType:        contracts.ProposalAddHolonType,
		ReferenceDocuments:  []string{doctrine.ID},
		ExampleUseCases:     []string{"track watch manning against required stations"},
		CollisionAnalysis:   h.governance.PerformCollisionAnalysis(def),
		HolonTypeDefinition: def,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: create proposal: %v\n", err)
		return 2
	}

	decisionEvent, result, err := h.events.Submit(ctx, eventstore.SubmitParams{
		Type:         contracts.EventProposalDecided,
		OccurredAt:   time.Now().UTC(),
		Actor:        actor,
		Payload:      map[string]any{"proposal_id": proposal.ID, "decision": "approved"},
		SourceSystem: cfg.SourceSystem,
	})
	if code := checkStep(result, err, "record proposal decision", stderr); code != 0 {
		return code
	}
	approved, result, err := h.governance.ApproveProposal(ctx,
		proposal.ID, actor, "fills the watchstation tracking gap", decisionEvent.ID)
	if code := checkStep(result, err, "approve proposal", stderr); code != 0 {
		return code
	}
	logger.Printf("[demo] schema version now %s (proposal %s approved)", h.catalog.CurrentVersion(), approved.ID)

	// 6. Validation: a stale submission is rejected, a recorded fact is
	// corrected by compensation rather than mutation.
	logger.Println("[demo] validating a stale event submission")
	stale := &contracts.Event{
		ID:         uuid.NewString(),
		Type:       contracts.EventAssignmentStarted,
		OccurredAt: time.Now().UTC().AddDate(-2, 0, 0),
		RecordedAt: time.Now().UTC(),
		Actor:      actor,
	}
	enhanced := h.checker.ValidateEventWithDetails(stale)
	if enhanced.Valid {
		_, _ = fmt.Fprintln(stderr, "Error: stale event passed validation")
		return 1
	}
	for _, verr := range enhanced.Errors {
		logger.Printf("[demo]   rejected: %s (%s)", verr.ViolatedRule, verr.Category)
	}

	logger.Println("[demo] correcting the registration by compensating event")
	compensation, result, err := h.checker.CreateCompensatingEvent(ctx, person.CreatedBy,
		validation.CompensationMetadata{
			AuthorizedBy:   actor,
			Reason:         "designator updated after advancement board",
			CorrectionType: "correction",
		},
		map[string]any{"designator_rating": "ITC"},
	)
	if code := checkStep(result, err, "compensating event", stderr); code != 0 {
		return code
	}
	logger.Printf("[demo]   %s corrects %s", compensation.ID, person.CreatedBy)

	// 7. Component health from live registry counts, then the summary.
	mon.UpdateComponentHealth("event_store", monitoring.Healthy, 0,
		fmt.Sprintf("%d events", h.events.Len()))
	mon.UpdateComponentHealth("holon_registry", monitoring.Healthy, 0,
		fmt.Sprintf("%d holons", h.holons.Len()))
	mon.UpdateComponentHealth("relationship_registry", monitoring.Healthy, 0,
		fmt.Sprintf("%d relationships", h.rels.Len()))
	mon.UpdateComponentHealth("document_registry", monitoring.Healthy, 0,
		fmt.Sprintf("%d documents", h.documents.Len()))

	summary := map[string]any{
		"health":   mon.SystemHealth(),
		"events":   mon.EventMetrics(),
		"queries":  mon.QueryMetrics(),
		"business": mon.BusinessMetrics(),
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: encode summary: %v\n", err)
		return 2
	}
	logger.Printf("[demo] assignment %s active; graph persisted=%v", assignment.ID, st != nil)
	_, _ = fmt.Fprintln(stdout, string(data))
	return 0
}

// checkStep folds the (result, err) pair every write path returns into an
// exit code: 2 for runtime errors, 1 for validation rejections, 0 to
// continue.
func checkStep(result *contracts.ValidationResult, err error, stage string, stderr io.Writer) int {
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %s: %v\n", stage, err)
		return 2
	}
	if result != nil && !result.Valid {
		_, _ = fmt.Fprintf(stderr, "Rejected: %s\n", stage)
		for _, verr := range result.Errors {
			_, _ = fmt.Fprintf(stderr, "  %s: %s\n", verr.ViolatedRule, verr.Message)
		}
		return 1
	}
	return 0
}
