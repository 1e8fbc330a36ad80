package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Trindade2023/trindade-protocol/pkg/config"
	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
	"github.com/Trindade2023/trindade-protocol/pkg/pipeline"
)

// stdin is swapped in tests.
var stdin io.Reader = os.Stdin

// runProcessCmd implements `seasa process`.
//
// The request text is the remaining arguments, or stdin when the only
// argument is "-".
func runProcessCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("process", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		domainHint string
		profile    string
		jsonOutput bool
	)
	cmd.StringVar(&domainHint, "domain", "", "Domain hint (e.g. ENGINEERING, MATHEMATICS, MILITARY)")
	cmd.StringVar(&profile, "profile", "", "Force an operational profile (STANDARD, DEFENSE, EMERGENCY, RESEARCH)")
	cmd.BoolVar(&jsonOutput, "json", false, "Print the full decision record as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	text := strings.Join(cmd.Args(), " ")
	if text == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: read stdin: %v\n", err)
			return 2
		}
		text = strings.TrimSpace(string(raw))
	}

	opts := []pipeline.Option{pipeline.WithTimeBudget(cfg.TimeBudget)}
	if domainHint != "" {
		opts = append(opts, pipeline.WithDomainHint(contracts.Domain(strings.ToUpper(domainHint))))
	}
	if profile != "" {
		opts = append(opts, pipeline.WithProfile(contracts.Profile(strings.ToUpper(profile))))
	}

	ctx := context.Background()
	s, err := openSubsystems(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = s.Close(ctx) }()

	rec, err := s.orchestrator.Process(ctx, text, opts...)
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		_, _ = fmt.Fprintf(stderr, "Rejected: %v\n", err)
		return 1
	case err != nil:
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(rec, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}
	printDecision(stdout, rec)
	return 0
}

func printDecision(w io.Writer, rec *contracts.DecisionRecord) {
	color := ColorGreen
	switch rec.Status() {
	case "VETOED":
		color = ColorYellow
	case "CONTAINMENT_ACTIVE", "WIPED":
		color = ColorRed
	}
	_, _ = fmt.Fprintf(w, "%s%s%s %s\n", ColorBold+color, rec.Status(), ColorReset, rec.TransactionID)
	_, _ = fmt.Fprintf(w, "Criticality:  %s (%s)\n", rec.Criticality, rec.Criticality.Label())
	_, _ = fmt.Fprintf(w, "Domain:       %s\n", rec.Domain)
	_, _ = fmt.Fprintf(w, "Profile:      %s\n", rec.Profile)
	_, _ = fmt.Fprintf(w, "Risk:         %d (%s)\n", rec.Risk.Score(), rec.Risk.Status)
	_, _ = fmt.Fprintf(w, "Bias:         %.4f / %.4f\n", rec.Risk.BiasMetric, rec.Risk.BiasThreshold)
	_, _ = fmt.Fprintf(w, "Notarization: %s\n", rec.NotarizationStatus)
	if rec.Interlock != nil {
		_, _ = fmt.Fprintf(w, "Interlock:    %s %s\n", rec.Interlock.State, rec.Interlock.Message)
	}
	if rec.Audit != nil {
		_, _ = fmt.Fprintf(w, "Audit:        #%d %s\n", rec.Audit.Sequence, rec.Audit.Seal)
	}
	_, _ = fmt.Fprintf(w, "Logic hash:   %s\n", rec.LogicHash)
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, rec.Content.Body)
}
