package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Trindade2023/trindade-protocol/pkg/config"
)

const version = "v0.3.0"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
//
// Exit codes:
//
//	0 = success
//	1 = rejected input or failed verification
//	2 = usage or runtime error
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	setupLogger(cfg, stderr)

	switch args[1] {
	case "process":
		return runProcessCmd(cfg, args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(cfg, args[2:], stdout, stderr)
	case "policy":
		return runPolicyCmd(cfg, args[2:], stdout, stderr)
	case "export":
		return runExportCmd(cfg, args[2:], stdout, stderr)
	case "version":
		_, _ = fmt.Fprintf(stdout, "seasa %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// setupLogger installs the process-wide slog handler from LOG_LEVEL and
// LOG_FORMAT. Logs go to stderr so stdout stays machine-readable.
func setupLogger(cfg *config.Config, w io.Writer) {
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// ANSI Colors
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[37m"
)

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sSEASA gate %s%s\n", ColorBold+ColorBlue, version, ColorReset)
	_, _ = fmt.Fprintf(w, "%sClassify, audit, and seal every decision.%s\n", ColorGray, ColorReset)
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	_, _ = fmt.Fprintln(w, "  seasa <command> [flags]")
	_, _ = fmt.Fprintln(w, "")

	printSection(w, "PIPELINE")
	printCommand(w, "process", "Run one request through the gate (--domain, --profile, --json)")
	printCommand(w, "policy", "Show the active policy table (--yaml)")

	printSection(w, "AUDIT")
	printCommand(w, "verify", "Verify the ledger chain or an archived segment (--manifest)")
	printCommand(w, "export", "Archive the ledger to object storage (--archive, --from, --to)")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	_, _ = fmt.Fprintln(w, "")

	printSection(w, "ENVIRONMENT")
	_, _ = fmt.Fprintln(w, "  SEASA_POLICY_PATH SEASA_LEDGER SEASA_LEDGER_DSN SEASA_REDIS_ADDR")
	_, _ = fmt.Fprintln(w, "  SEASA_NOTARY_SEED SEASA_COLLUSION_KEY SEASA_ARCHIVE_URL SEASA_TIME_BUDGET")
	_, _ = fmt.Fprintln(w, "  SEASA_EVIDENCE_RPS OTEL_ENABLED OTEL_EXPORTER_OTLP_ENDPOINT LOG_LEVEL LOG_FORMAT")
	_, _ = fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %s%-10s%s %s\n", ColorGreen, name, ColorReset, desc)
}
