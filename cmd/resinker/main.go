// Command resinker runs, validates, and inspects a Resinker event-stream
// simulation specification (spec.md §6's CLI contract), grounded on
// cmd/slcli/main.go's shape: a bare subcommand dispatch over os.Args, one
// flag.FlagSet per subcommand, errors printed to stderr with a non-zero
// exit.
//
// Usage:
//
//	resinker run -c <spec.yaml> [-c <spec2.yaml> ...] [flags]
//	resinker validate -c <spec.yaml> [-c <spec2.yaml> ...]
//	resinker info -c <spec.yaml> [-c <spec2.yaml> ...]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/resink-ai/resinker/engine"
	"github.com/resink-ai/resinker/internal/specdef"
)

type specFiles []string

func (f *specFiles) String() string { return fmt.Sprint([]string(*f)) }
func (f *specFiles) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "validate":
		cmdValidate(os.Args[2:])
	case "info":
		cmdInfo(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Resinker - configuration-driven event-stream simulator

Usage:
  resinker <command> [arguments]

Commands:
  run -c <spec.yaml>...       Run a simulation to completion
  validate -c <spec.yaml>...  Check a specification's structural references
  info -c <spec.yaml>...      Print entity/event-type/scenario counts and
                              the resolved dependency graph

Examples:
  resinker run -c spec/onboarding.yaml -c spec/overlay.yaml --diag-addr :8090
  resinker validate -c spec/onboarding.yaml
  resinker info -c spec/onboarding.yaml`)
}

func loadSpecs(fs *flag.FlagSet, args []string) *specdef.Document {
	var files specFiles
	fs.Var(&files, "c", "specification file (repeatable; later files win on name collision)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one -c <spec.yaml> is required")
		os.Exit(1)
	}
	doc, err := specdef.LoadMerged(files)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return doc
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	diagAddr := fs.String("diag-addr", "", "bind address for the HTTP diagnostics server (disabled when empty)")
	seed := fs.Int64("seed", 0, "override simulation_settings.random_seed (0 means: use the spec's own seed)")
	logLevel := fs.String("log-level", "info", "debug|info|warn|error")
	logFormat := fs.String("log-format", "text", "text|json")
	heartbeatCron := fs.String("heartbeat-cron", "", "cron spec for the periodic status log (defaults to @every 30s)")

	var files specFiles
	fs.Var(&files, "c", "specification file (repeatable; later files win on name collision)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one -c <spec.yaml> is required")
		os.Exit(1)
	}
	doc, err := specdef.LoadMerged(files)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := engine.RunOptions{
		DiagnosticsAddr:   *diagAddr,
		LogLevel:          *logLevel,
		LogFormat:         *logFormat,
		HeartbeatCronSpec: *heartbeatCron,
	}
	if *seed != 0 {
		opts.Seed = seed
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// engine.Run's own controller also installs SIGINT/SIGTERM handling
	// around the scheduler loop; this handler additionally cancels ctx on
	// the first SIGINT/SIGTERM the process receives.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigCh; cancel() }()

	result, diagnostics, err := engine.Run(ctx, doc, opts)
	if diagnostics != nil {
		go func() {
			for range diagnostics {
				// internal/enginelog already writes every diagnostic to
				// stdout directly; draining here only prevents the
				// bounded channel from filling and dropping entries a
				// future consumer (a TUI, a remote watcher) might want.
			}
		}()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Run complete: %d events emitted in %s (%s)\n", result.EventsEmitted, result.DurationObserved, result.TerminationReason)
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	doc := loadSpecs(fs, args)

	errs := specdef.ValidateStructure(doc)
	if len(errs) == 0 {
		fmt.Println("OK: specification is structurally valid")
		return
	}
	fmt.Fprintf(os.Stderr, "Found %d structural error(s):\n", len(errs))
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "  - %v\n", e)
	}
	os.Exit(1)
}

func cmdInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	doc := loadSpecs(fs, args)

	fmt.Printf("Entities:     %d\n", len(doc.Entities))
	fmt.Printf("Event types:  %d\n", len(doc.EventTypes))
	fmt.Printf("Scenarios:    %d\n", len(doc.Scenarios))
	fmt.Printf("Source files: %v\n", doc.SourceFiles)

	fmt.Println("\nDependency graph (event type -> entities consumed):")
	for _, name := range doc.EventTypeOrder {
		et := doc.EventTypes[name]
		if len(et.ConsumesEntities) == 0 {
			fmt.Printf("  %s -> (none)\n", name)
			continue
		}
		kinds := make([]string, 0, len(et.ConsumesEntities))
		for _, ce := range et.ConsumesEntities {
			kinds = append(kinds, ce.Name)
		}
		fmt.Printf("  %s -> %v\n", name, kinds)
	}

	warnings := unreachableEventTypes(doc)
	if len(warnings) == 0 {
		return
	}
	fmt.Println("\nWarnings:")
	for _, w := range warnings {
		fmt.Printf("  - %s\n", w)
	}
}

// unreachableEventTypes flags event types that can never fire: a
// non-positive frequency_weight with no scenario step ever selecting it,
// or a consumes_entities clause on an entity kind nothing ever produces
// (SPEC_FULL.md §10 "info subcommand detail").
func unreachableEventTypes(doc *specdef.Document) []string {
	producedKinds := map[string]bool{}
	for name, count := range doc.SimulationSettings.InitialEntityCounts {
		if count > 0 {
			producedKinds[name] = true
		}
	}
	for _, et := range doc.EventTypes {
		if et.ProducesEntity != nil {
			producedKinds[et.ProducesEntity.Entity] = true
		}
		if et.ProducesOrUpdatesEntity != nil {
			producedKinds[et.ProducesOrUpdatesEntity.Entity] = true
		}
	}

	referencedByScenario := map[string]bool{}
	for _, sc := range doc.Scenarios {
		for _, step := range sc.Steps {
			referencedByScenario[step.EventType] = true
		}
	}

	var warnings []string
	for _, name := range doc.EventTypeOrder {
		et := doc.EventTypes[name]
		if et.FrequencyWeight <= 0 && !referencedByScenario[name] {
			warnings = append(warnings, fmt.Sprintf("%s: frequency_weight is 0 and no scenario step ever selects it", name))
			continue
		}
		for _, ce := range et.ConsumesEntities {
			if !producedKinds[ce.Name] {
				warnings = append(warnings, fmt.Sprintf("%s: consumes entity %q, which no initial_entity_counts entry or producing event type ever supplies", name, ce.Name))
			}
		}
	}
	sort.Strings(warnings)
	return warnings
}
