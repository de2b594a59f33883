package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/semops-labs/som/core/pkg/contracts"
	"github.com/semops-labs/som/core/pkg/store"
)

// replayReport is the structured outcome of a store replay.
type replayReport struct {
	Events        int      `json:"events"`
	Documents     int      `json:"documents"`
	Decisions     int      `json:"decisions"`
	ProposalRows  int      `json:"proposal_rows"`
	Proposals     int      `json:"proposals"`
	Holons        int      `json:"holons"`
	Relationships int      `json:"relationships"`
	Constraints   int      `json:"constraints"`
	Issues        []string `json:"issues,omitempty"`
	Consistent    bool     `json:"consistent"`
}

// runReplayCmd implements `som replay`: rebuild state from a persisted
// store and check the logs for internal consistency.
//
// Exit codes:
//
//	0 = store replayed cleanly
//	1 = consistency issues found
//	2 = runtime error
func runReplayCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("replay", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath     string
		jsonOutput bool
	)
	cmd.StringVar(&dbPath, "db", "", "Path to SQLite store (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if dbPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --db is required")
		return 2
	}

	st, err := store.OpenSQLite(dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: open store: %v\n", err)
		return 2
	}
	defer func() { _ = st.DB().Close() }()

	report, err := replayStore(context.Background(), st)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		_, _ = fmt.Fprintf(stdout, "\n%sSOM Replay%s %s\n", ColorBold+ColorBlue, ColorReset, dbPath)
		_, _ = fmt.Fprintln(stdout, "──────────")
		_, _ = fmt.Fprintf(stdout, "  events         %d\n", report.Events)
		_, _ = fmt.Fprintf(stdout, "  documents      %d (+%d decisions)\n", report.Documents, report.Decisions)
		_, _ = fmt.Fprintf(stdout, "  proposals      %d (%d lifecycle rows)\n", report.Proposals, report.ProposalRows)
		_, _ = fmt.Fprintf(stdout, "  holons         %d\n", report.Holons)
		_, _ = fmt.Fprintf(stdout, "  relationships  %d\n", report.Relationships)
		_, _ = fmt.Fprintf(stdout, "  constraints    %d\n", report.Constraints)
		for _, issue := range report.Issues {
			_, _ = fmt.Fprintf(stdout, "  ❌ %s\n", issue)
		}
		if report.Consistent {
			_, _ = fmt.Fprintf(stdout, "\n%sStore replayed cleanly.%s\n", ColorBold, ColorReset)
		}
	}

	if !report.Consistent {
		return 1
	}
	return 0
}

// replayStore reads every log and snapshot back and cross-checks the
// references that must hold in a well-formed store: holons and
// relationships point at recorded events, decision documents at their
// decision events, and the event journal is in recording order.
func replayStore(ctx context.Context, st *store.SQLStore) (*replayReport, error) {
	events, err := st.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	docs, err := st.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}
	decisions, err := st.Decisions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read decisions: %w", err)
	}
	proposalRows, err := st.Proposals(ctx)
	if err != nil {
		return nil, fmt.Errorf("read proposals: %w", err)
	}
	proposals, err := st.RebuildProposals(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebuild proposals: %w", err)
	}
	hs, err := st.Holons(ctx)
	if err != nil {
		return nil, fmt.Errorf("read holons: %w", err)
	}
	rels, err := st.Relationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("read relationships: %w", err)
	}
	cs, err := st.Constraints(ctx)
	if err != nil {
		return nil, fmt.Errorf("read constraints: %w", err)
	}

	report := &replayReport{
		Events:        len(events),
		Documents:     len(docs),
		Decisions:     len(decisions),
		ProposalRows:  len(proposalRows),
		Proposals:     len(proposals),
		Holons:        len(hs),
		Relationships: len(rels),
		Constraints:   len(cs),
	}

	recorded := make(map[string]*contracts.Event, len(events))
	for i, e := range events {
		recorded[e.ID] = e
		if i > 0 && e.RecordedAt.Before(events[i-1].RecordedAt) {
			report.Issues = append(report.Issues,
				fmt.Sprintf("event %s recorded before its predecessor in the journal", e.ID))
		}
	}

	for _, h := range hs {
		if h.CreatedBy == "" {
			continue
		}
		if _, ok := recorded[h.CreatedBy]; !ok {
			report.Issues = append(report.Issues,
				fmt.Sprintf("holon %s references unrecorded event %s", h.ID, h.CreatedBy))
		}
	}
	for _, r := range rels {
		if r.CreatedBy == "" {
			continue
		}
		if _, ok := recorded[r.CreatedBy]; !ok {
			report.Issues = append(report.Issues,
				fmt.Sprintf("relationship %s references unrecorded event %s", r.ID, r.CreatedBy))
		}
	}
	for _, d := range decisions {
		if d.CreatedByEvent == "" {
			continue
		}
		if _, ok := recorded[d.CreatedByEvent]; !ok {
			report.Issues = append(report.Issues,
				fmt.Sprintf("decision %s references unrecorded event %s", d.ID, d.CreatedByEvent))
		}
	}

	report.Consistent = len(report.Issues) == 0
	return report, nil
}
