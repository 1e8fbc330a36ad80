package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Trindade2023/trindade-protocol/pkg/config"
	"github.com/Trindade2023/trindade-protocol/pkg/policy"
)

// runPolicyCmd implements `seasa policy`: it validates the active policy
// table and prints its identity, or the table itself with --yaml.
func runPolicyCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("policy", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		path       string
		printYAML  bool
		jsonOutput bool
	)
	cmd.StringVar(&path, "path", cfg.PolicyPath, "Policy file (default: embedded table)")
	cmd.BoolVar(&printYAML, "yaml", false, "Print the policy table")
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	var (
		p   *policy.Policy
		raw []byte
		err error
	)
	if path == "" {
		raw = policy.DefaultYAML()
		p, err = policy.Default()
	} else {
		if raw, err = os.ReadFile(path); err == nil {
			p, err = policy.Parse(raw)
		}
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	switch {
	case printYAML:
		_, _ = stdout.Write(raw)
	case jsonOutput:
		data, _ := json.MarshalIndent(map[string]any{
			"name":    p.Name,
			"version": p.Version,
			"hash":    p.Hash(),
			"policy":  p,
		}, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	default:
		source := path
		if source == "" {
			source = "embedded"
		}
		_, _ = fmt.Fprintf(stdout, "Policy:   %s\n", p.Name)
		_, _ = fmt.Fprintf(stdout, "Version:  %s\n", p.SemVer())
		_, _ = fmt.Fprintf(stdout, "Hash:     %s\n", p.Hash())
		_, _ = fmt.Fprintf(stdout, "Source:   %s\n", source)
		_, _ = fmt.Fprintf(stdout, "Triggers: %d\n", len(p.ExistentialTriggers))
		_, _ = fmt.Fprintf(stdout, "Domains:  %d\n", len(p.Domains))
	}
	return 0
}
