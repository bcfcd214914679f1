// Command statewire loads a JSON statechart definition, drives it
// through a scripted sequence of events, and can normalize a machine
// definition through the export/import round trip.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/basinlabs/statewire"
	"github.com/basinlabs/statewire/export"
	"github.com/basinlabs/statewire/internal/ir"
	"github.com/basinlabs/statewire/internal/parser"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(logger, os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "export":
		err = exportCommand(os.Args[2:])
	case "version":
		fmt.Println("statewire " + buildVersion())
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "statewire:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: statewire <command> [flags]")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  run       load a machine and drive it through a scripted event sequence")
	fmt.Fprintln(os.Stderr, "  validate  load a machine and report structural errors")
	fmt.Fprintln(os.Stderr, "  export    load a machine and re-emit it as normalized XState JSON")
	fmt.Fprintln(os.Stderr, "  version   print the build version")
}

func buildVersion() string {
	return "dev"
}

func loadDocument(path string) (*parser.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	doc, err := parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", path, err)
	}
	return doc, nil
}

func buildDynamicMachine(doc *parser.Document) (*ir.MachineConfig[map[string]any], error) {
	opts := parser.Options[map[string]any]{
		Context: map[string]any{},
		OnAmbiguousGuard: func(stateID, event string) {
			slog.Default().Warn("transition sets both guard and cond", "state", stateID, "event", event)
		},
	}
	machine, err := parser.Build(doc, opts)
	if err != nil {
		return nil, fmt.Errorf("build machine: %w", err)
	}
	if verr := ir.Validate(machine); verr != nil {
		return nil, fmt.Errorf("invalid machine: %w", verr)
	}
	return machine, nil
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("statewire-validate", flag.ContinueOnError)
	machinePath := fs.String("machine", "", "path to a JSON machine definition")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *machinePath == "" {
		return fmt.Errorf("-machine is required")
	}

	doc, err := loadDocument(*machinePath)
	if err != nil {
		return err
	}
	if _, err := buildDynamicMachine(doc); err != nil {
		return err
	}
	fmt.Printf("%s: valid\n", doc.ID)
	return nil
}

func exportCommand(args []string) error {
	fs := flag.NewFlagSet("statewire-export", flag.ContinueOnError)
	machinePath := fs.String("machine", "", "path to a JSON machine definition")
	pretty := fs.Bool("pretty", true, "pretty-print the normalized JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *machinePath == "" {
		return fmt.Errorf("-machine is required")
	}

	doc, err := loadDocument(*machinePath)
	if err != nil {
		return err
	}
	machine, err := buildDynamicMachine(doc)
	if err != nil {
		return err
	}

	exporter := export.NewXStateExporter(machine)
	opts := export.DefaultExportOptions()
	opts.PrettyPrint = *pretty
	opts.Output = os.Stdout
	return export.ExportMachine(exporter, opts)
}

func runCommand(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("statewire-run", flag.ContinueOnError)
	machinePath := fs.String("machine", "", "path to a JSON machine definition")
	events := fs.String("events", "", "comma-separated event names to send in order")
	timeout := fs.Duration("timeout", 2*time.Second, "per-event send timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *machinePath == "" {
		return fmt.Errorf("-machine is required")
	}

	doc, err := loadDocument(*machinePath)
	if err != nil {
		return err
	}
	machine, err := buildDynamicMachine(doc)
	if err != nil {
		return err
	}

	interp := statewire.NewInterpreter(machine,
		statewire.WithID[map[string]any](doc.ID),
		statewire.WithLogger[map[string]any](logger),
	)
	if err := interp.Start(); err != nil {
		return fmt.Errorf("start interpreter: %w", err)
	}
	defer interp.Stop()

	printSnapshot(interp.QuerySnapshot())

	for _, name := range splitEvents(*events) {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		err := interp.Send(ctx, statewire.Event{Name: statewire.EventType(name)})
		cancel()
		if err != nil {
			return fmt.Errorf("send %q: %w", name, err)
		}
		fmt.Printf("-- after %s --\n", name)
		printSnapshot(interp.QuerySnapshot())
		if interp.Done() {
			break
		}
	}
	return nil
}

func splitEvents(raw string) []string {
	if raw == "" {
		return nil
	}
	var names []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			names = append(names, part)
		}
	}
	return names
}

func printSnapshot(snap statewire.Snapshot[map[string]any]) {
	leaves := make([]string, len(snap.Leaves))
	for i, l := range snap.Leaves {
		leaves[i] = string(l)
	}
	ctxJSON, _ := json.Marshal(snap.Context)
	fmt.Printf("leaves: %s  done: %v  context: %s\n", strings.Join(leaves, ", "), snap.Done, ctxJSON)
}
