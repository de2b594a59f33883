package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/semops-labs/som/core/pkg/config"
	"github.com/semops-labs/som/core/pkg/constraints"
	"github.com/semops-labs/som/core/pkg/contracts"
	"github.com/semops-labs/som/core/pkg/monitoring"
	"github.com/semops-labs/som/core/pkg/store"
)

// runDoctorCmd implements `som doctor`: wiring and environment check.
//
// Exit codes:
//
//	0 = all checks pass
//	1 = one or more checks failed
//	2 = bad invocation
func runDoctorCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("doctor", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		configPath string
		dbPath     string
	)
	cmd.StringVar(&configPath, "config", os.Getenv("SOM_CONFIG"), "Path to YAML config (optional)")
	cmd.StringVar(&dbPath, "db", os.Getenv("SOM_DB"), "Path to SQLite store (optional)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	type checkResult struct {
		Name   string `json:"name"`
		Status string `json:"status"` // "ok", "warn", "fail"
		Detail string `json:"detail,omitempty"`
	}

	var results []checkResult
	allOK := true

	// Check 1: Go runtime
	results = append(results, checkResult{
		Name:   "go_runtime",
		Status: "ok",
		Detail: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	})

	// Check 2: configuration
	cfg := config.DefaultConfig()
	if configPath == "" {
		results = append(results, checkResult{
			Name:   "config",
			Status: "warn",
			Detail: "no config file (built-in defaults)",
		})
	} else if loaded, err := config.Load(configPath); err != nil {
		results = append(results, checkResult{
			Name:   "config",
			Status: "fail",
			Detail: err.Error(),
		})
		allOK = false
	} else {
		cfg = loaded
		results = append(results, checkResult{
			Name:   "config",
			Status: "ok",
			Detail: configPath,
		})
	}

	// Check 3: persistent store
	if dbPath == "" {
		results = append(results, checkResult{
			Name:   "store",
			Status: "warn",
			Detail: "SOM_DB not set (in-memory mode)",
		})
	} else if st, err := store.OpenSQLite(dbPath); err != nil {
		results = append(results, checkResult{
			Name:   "store",
			Status: "fail",
			Detail: err.Error(),
		})
		allOK = false
	} else {
		events, err := st.Events(context.Background())
		_ = st.DB().Close()
		if err != nil {
			results = append(results, checkResult{
				Name:   "store",
				Status: "fail",
				Detail: err.Error(),
			})
			allOK = false
		} else {
			results = append(results, checkResult{
				Name:   "store",
				Status: "ok",
				Detail: fmt.Sprintf("%s (%d events)", dbPath, len(events)),
			})
		}
	}

	// Check 4: constraint engine compiles and evaluates CEL
	celStatus, celDetail := probeConstraintEngine()
	results = append(results, checkResult{Name: "constraint_engine", Status: celStatus, Detail: celDetail})
	if celStatus == "fail" {
		allOK = false
	}

	// Check 5: monitoring
	mon := monitoring.New(cfg.Monitoring)
	mon.UpdateComponentHealth("doctor", monitoring.Healthy, 0, "probe")
	health := mon.SystemHealth()
	mon.Shutdown()
	if health.Status == monitoring.Unhealthy {
		results = append(results, checkResult{
			Name:   "monitoring",
			Status: "fail",
			Detail: string(health.Status),
		})
		allOK = false
	} else {
		results = append(results, checkResult{
			Name:   "monitoring",
			Status: "ok",
			Detail: string(health.Status),
		})
	}

	// Print results
	_, _ = fmt.Fprintf(stdout, "\n%sSOM Doctor%s\n", ColorBold+ColorBlue, ColorReset)
	_, _ = fmt.Fprintln(stdout, "──────────")
	for _, r := range results {
		icon := "✅"
		if r.Status == "warn" {
			icon = "⚠️ "
		} else if r.Status == "fail" {
			icon = "❌"
		}
		_, _ = fmt.Fprintf(stdout, "  %s  %-18s %s%s%s\n", icon, r.Name, ColorGray, r.Detail, ColorReset)
	}

	if allOK {
		_, _ = fmt.Fprintf(stdout, "\n%sAll checks passed.%s\n", ColorBold, ColorReset)
		return 0
	}
	return 1
}

// probeConstraintEngine registers a trivial CEL constraint and evaluates it
// against a synthetic holon, proving the CEL environment compiles and
// dispatches end to end.
func probeConstraintEngine() (status, detail string) {
	engine, err := constraints.New()
	if err != nil {
		return "fail", err.Error()
	}
	_, err = engine.Register(context.Background(), constraints.RegisterParams{
		Type:            contracts.ConstraintStructural,
		Name:            "doctor_probe",
		Definition:      `holon.status == "active"`,
		Scope:           contracts.ConstraintScope{HolonTypes: []contracts.HolonType{contracts.HolonSystem}},
		SourceDocuments: []string{"doc-doctor-probe"},
	})
	if err != nil {
		return "fail", err.Error()
	}

	probe := &contracts.Holon{
		ID:     "doctor-probe",
		Type:   contracts.HolonSystem,
		Status: contracts.HolonActive,
	}
	result := engine.ValidateHolon(probe, nil)
	if result == nil || !result.Valid {
		return "fail", "probe constraint rejected a conforming holon"
	}
	return "ok", "CEL compile and dispatch"
}
