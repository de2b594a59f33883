package main

import (
	"fmt"
	"io"
	"os"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runDoctorCmd(nil, stdout, stderr)
	}

	switch args[1] {
	case "doctor":
		return runDoctorCmd(args[2:], stdout, stderr)
	case "demo":
		return runDemoCmd(args[2:], stdout, stderr)
	case "replay":
		return runReplayCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorBlue  = "\033[34m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sSOM Core %s%s\n", ColorBold+ColorBlue, "v0.1.0", ColorReset)
	_, _ = fmt.Fprintf(w, "%sEvery fact is an event. Every view is a fold.%s\n", ColorGray, ColorReset)
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	_, _ = fmt.Fprintln(w, "  som <command> [flags]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sCOMMANDS:%s\n", ColorBold, ColorReset)
	printCommand(w, "doctor", "Check configuration, store, and engine wiring (default)")
	printCommand(w, "demo", "Seed a demonstration graph and print health (--db, --config, --json)")
	printCommand(w, "replay", "Rebuild registries from a persisted store (--db, --json)")
	printCommand(w, "help", "Show this help")
	_, _ = fmt.Fprintln(w, "")
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %s%-10s%s %s\n", ColorBold, name, ColorReset, desc)
}
