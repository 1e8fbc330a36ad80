package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/Trindade2023/trindade-protocol/pkg/archive"
	"github.com/Trindade2023/trindade-protocol/pkg/audit"
	"github.com/Trindade2023/trindade-protocol/pkg/config"
)

type verifyReport struct {
	Source   string `json:"source"`
	Verified bool   `json:"verified"`
	Entries  int    `json:"entries"`
	HeadSeal string `json:"head_seal,omitempty"`
	Error    string `json:"error,omitempty"`
}

// runVerifyCmd implements `seasa verify`.
//
// Without --manifest it re-verifies the configured ledger end to end. With
// --manifest it fetches an archived segment and checks its digest, chain
// and Merkle root.
//
// Exit codes:
//
//	0 = verification passed
//	1 = verification failed
//	2 = runtime error
func runVerifyCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		backend    string
		dsn        string
		manifest   string
		archiveURL string
		jsonOutput bool
	)
	cmd.StringVar(&backend, "ledger", cfg.Ledger, "Ledger backend (memory, file, sqlite, postgres)")
	cmd.StringVar(&dsn, "dsn", cfg.LedgerDSN, "Ledger path or DSN")
	cmd.StringVar(&manifest, "manifest", "", "Verify an archived segment by manifest key instead")
	cmd.StringVar(&archiveURL, "archive", cfg.ArchiveURL, "Archive URL for --manifest")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	var report verifyReport
	if manifest != "" {
		store, err := archive.Open(ctx, archiveURL)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		report.Source = archiveURL + "#" + manifest
		m, entries, err := archive.NewExporter(store).Fetch(ctx, manifest)
		if err != nil {
			report.Error = err.Error()
		} else {
			report.Verified = true
			report.Entries = len(entries)
			report.HeadSeal = m.HeadSeal
		}
	} else {
		ledger, err := audit.Open(ctx, backend, dsn)
		if err != nil {
			// the file ledger refuses to open a broken chain
			report.Source = backend + ":" + dsn
			report.Error = err.Error()
			return emitVerify(stdout, report, jsonOutput)
		}
		defer func() { _ = ledger.Close() }()
		report.Source = backend + ":" + dsn

		entries, err := ledger.Entries(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		if err := audit.Verify(entries); err != nil {
			report.Error = err.Error()
		} else {
			report.Verified = true
			report.Entries = len(entries)
			_, report.HeadSeal = audit.Head(entries)
		}
	}
	return emitVerify(stdout, report, jsonOutput)
}

func emitVerify(w io.Writer, report verifyReport, jsonOutput bool) int {
	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(w, string(data))
	} else if report.Verified {
		_, _ = fmt.Fprintf(w, "%sAudit chain verification PASSED%s\n", ColorGreen, ColorReset)
		_, _ = fmt.Fprintf(w, "Source:  %s\n", report.Source)
		_, _ = fmt.Fprintf(w, "Entries: %d\n", report.Entries)
		_, _ = fmt.Fprintf(w, "Head:    %s\n", report.HeadSeal)
	} else {
		_, _ = fmt.Fprintf(w, "%sAudit chain verification FAILED%s\n", ColorRed, ColorReset)
		_, _ = fmt.Fprintf(w, "Source:  %s\n", report.Source)
		_, _ = fmt.Fprintf(w, "Reason:  %s\n", report.Error)
	}
	if !report.Verified {
		return 1
	}
	return 0
}
