package audit

import (
	"context"
	"fmt"

	"github.com/Trindade2023/trindade-protocol/pkg/config"
)

// Open builds the ledger backend named by backend ("memory", "file",
// "sqlite" or "postgres").
func Open(ctx context.Context, backend, dsn string) (Ledger, error) {
	switch backend {
	case config.LedgerMemory, "":
		return NewMemoryLedger(), nil
	case config.LedgerFile:
		return OpenFileLedger(dsn)
	case config.LedgerSQLite:
		return OpenSQLLedger(ctx, DialectSQLite, dsn)
	case config.LedgerPostgres:
		return OpenSQLLedger(ctx, DialectPostgres, dsn)
	default:
		return nil, fmt.Errorf("audit: unknown ledger backend %q", backend)
	}
}
