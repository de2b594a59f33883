package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"som", "frobnicate"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "Unknown command") {
		t.Errorf("stderr = %q, want unknown command notice", stderr.String())
	}
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"som", "help"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, want 0", code)
	}
	if !strings.Contains(stdout.String(), "som <command>") {
		t.Errorf("stdout = %q, want usage", stdout.String())
	}
}

func TestDoctor_DefaultsPass(t *testing.T) {
	t.Setenv("SOM_CONFIG", "")
	t.Setenv("SOM_DB", "")

	var stdout, stderr bytes.Buffer
	code := Run([]string{"som", "doctor"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "constraint_engine") {
		t.Errorf("stdout = %q, want constraint_engine check", out)
	}
	if !strings.Contains(out, "All checks passed.") {
		t.Errorf("stdout = %q, want pass notice", out)
	}
}

func TestReplay_RequiresDB(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"som", "replay"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "--db is required") {
		t.Errorf("stderr = %q, want missing flag notice", stderr.String())
	}
}

func TestDemoThenReplay_RoundTrip(t *testing.T) {
	dbPath := t.TempDir() + "/som.db"

	var stdout, stderr bytes.Buffer
	code := Run([]string{"som", "demo", "-db", dbPath, "-json"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("demo exit = %d, stderr = %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"health"`) {
		t.Errorf("demo stdout = %q, want health summary", stdout.String())
	}

	stdout.Reset()
	stderr.Reset()
	code = Run([]string{"som", "replay", "-db", dbPath, "-json"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("replay exit = %d, stderr = %s", code, stderr.String())
	}

	var report replayReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.Consistent {
		t.Errorf("issues = %v, want consistent store", report.Issues)
	}
	// The demonstration graph: organization, position, qualification, person.
	if report.Holons != 4 {
		t.Errorf("holons = %d, want 4", report.Holons)
	}
	// REQUIRED_FOR, HELD_BY, OCCUPIES.
	if report.Relationships != 3 {
		t.Errorf("relationships = %d, want 3", report.Relationships)
	}
	if report.Proposals != 1 {
		t.Errorf("proposals = %d, want 1", report.Proposals)
	}
	if report.Decisions != 1 {
		t.Errorf("decisions = %d, want 1", report.Decisions)
	}
	if report.Events == 0 {
		t.Error("events = 0, want the demonstration journal")
	}
}
