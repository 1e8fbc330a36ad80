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
	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

// runExportCmd implements `seasa export`: a contiguous run of ledger
// entries is written to the archive with a Merkle-committed manifest.
func runExportCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		archiveURL string
		from, to   uint64
	)
	cmd.StringVar(&archiveURL, "archive", cfg.ArchiveURL, "Archive URL (s3://, gs://, file://)")
	cmd.Uint64Var(&from, "from", 1, "First sequence to export")
	cmd.Uint64Var(&to, "to", 0, "Last sequence to export (0 = head)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if archiveURL == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --archive or SEASA_ARCHIVE_URL is required")
		return 2
	}

	ctx := context.Background()
	ledger, err := audit.Open(ctx, cfg.Ledger, cfg.LedgerDSN)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = ledger.Close() }()

	entries, err := ledger.Entries(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	segment := selectRange(entries, from, to)
	if len(segment) == 0 {
		_, _ = fmt.Fprintf(stderr, "Error: no entries in [%d, %d]\n", from, to)
		return 1
	}

	store, err := archive.Open(ctx, archiveURL)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	m, err := archive.NewExporter(store).Export(ctx, segment)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	data, _ := json.MarshalIndent(struct {
		ManifestKey string `json:"manifest_key"`
		*archive.Manifest
	}{archive.ManifestKey(m.FirstSequence, m.LastSequence), m}, "", "  ")
	_, _ = fmt.Fprintln(stdout, string(data))
	return 0
}

func selectRange(entries []*contracts.AuditEntry, from, to uint64) []*contracts.AuditEntry {
	var out []*contracts.AuditEntry
	for _, e := range entries {
		if e.Sequence < from || (to != 0 && e.Sequence > to) {
			continue
		}
		out = append(out, e)
	}
	return out
}
