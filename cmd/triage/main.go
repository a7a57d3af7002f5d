// Package main provides a CLI for one-shot alert triage and rule validation.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"soc-triage/internal/classify"
	"soc-triage/internal/mitre"
	"soc-triage/internal/osint"
	"soc-triage/internal/pipeline"
	"soc-triage/internal/schema"
	"soc-triage/internal/store"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runTriageCmd(os.Args[2:])
	case "rules":
		runRulesCmd(os.Args[2:])
	case "-version", "--version", "-v":
		fmt.Printf("triage %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: triage <command> [flags] [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run     Process raw events from a file or stdin and print alerts\n")
	fmt.Fprintf(os.Stderr, "  rules   Validate a technique rules file\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	fmt.Fprintf(os.Stderr, "  -version  Show version and exit\n")
}

func runTriageCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	rulesPath := fs.String("rules", "", "Path to a technique rules file (built-in rules if empty)")
	pretty := fs.Bool("pretty", false, "Indent alert JSON output")
	fs.Parse(args)

	input := os.Stdin
	if fs.NArg() > 0 {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		input = f
	}

	var rules []mitre.Rule
	if *rulesPath != "" {
		var err error
		rules, err = mitre.LoadRules(*rulesPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	p := pipeline.New(
		classify.New(nil),
		osint.New(nil, nil, osint.DefaultConfig()),
		mitre.NewMapper(rules),
		store.NewLogStore(),
	)

	os.Exit(runEvents(p, input, os.Stdout, *pretty))
}

// runEvents processes one JSON raw event per line and prints one alert
// per line. Returns the exit code.
func runEvents(p *pipeline.Pipeline, in io.Reader, out io.Writer, pretty bool) int {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	enc := json.NewEncoder(out)
	if pretty {
		enc.SetIndent("", "  ")
	}

	exitCode := 0
	line := 0

	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var raw schema.RawEvent
		if err := json.Unmarshal(text, &raw); err != nil {
			fmt.Fprintf(os.Stderr, "line %d: invalid JSON: %v\n", line, err)
			exitCode = 1
			continue
		}

		alert, err := p.Run(context.Background(), raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", line, err)
			exitCode = 1
			continue
		}

		if err := enc.Encode(alert); err != nil {
			fmt.Fprintf(os.Stderr, "line %d: encode: %v\n", line, err)
			exitCode = 1
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read: %v\n", err)
		exitCode = 1
	}

	return exitCode
}

func runRulesCmd(args []string) {
	fs := flag.NewFlagSet("rules", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "Show each rule's mapping")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: a rules file path is required\n")
		fmt.Fprintf(os.Stderr, "Usage: triage rules [--verbose] <path>\n")
		os.Exit(1)
	}

	path := fs.Arg(0)
	rules, err := mitre.LoadRules(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID %s: %v\n", path, err)
		os.Exit(1)
	}

	fmt.Printf("OK %s: %d rules\n", path, len(rules))
	if *verbose {
		for _, r := range rules {
			fmt.Printf("  %-10s %-20s %s\n", r.Mapping.TechniqueID, r.Mapping.Tactic, r.Mapping.Technique)
		}
	}
}
