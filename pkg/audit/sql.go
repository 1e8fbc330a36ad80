package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

// Dialect selects the SQL driver and placeholder style.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		if d == DialectPostgres {
			ph[i] = fmt.Sprintf("$%d", i+1)
		} else {
			ph[i] = "?"
		}
	}
	return strings.Join(ph, ", ")
}

const ledgerSchema = `CREATE TABLE IF NOT EXISTS seasa_audit (
	sequence BIGINT PRIMARY KEY,
	transaction_id TEXT NOT NULL,
	logic_hash TEXT NOT NULL,
	previous_seal TEXT NOT NULL,
	seal TEXT NOT NULL UNIQUE,
	recorded_at TEXT NOT NULL,
	payload TEXT NOT NULL
)`

// SQLLedger stores the chain in a relational table. The full entry is kept
// as its JSON payload; the other columns exist for querying.
//
// Appends are serialized in-process by a mutex and across processes by the
// primary key on sequence: a concurrent writer that read the same head
// fails on insert instead of forking the chain.
type SQLLedger struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.Mutex
}

// NewSQLLedger wraps an open database. Call Init before first use.
func NewSQLLedger(db *sql.DB, dialect Dialect) *SQLLedger {
	return &SQLLedger{db: db, dialect: dialect}
}

// OpenSQLLedger opens dsn with the driver for dialect and creates the
// table if needed.
func OpenSQLLedger(ctx context.Context, dialect Dialect, dsn string) (*SQLLedger, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// every connection to ":memory:" is a separate database
		db.SetMaxOpenConns(1)
	}
	l := NewSQLLedger(db, dialect)
	if err := l.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (s *SQLLedger) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

func (s *SQLLedger) Append(ctx context.Context, e *contracts.AuditEntry) (_ *contracts.AuditEntry, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("audit: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		seq  int64
		prev string
	)
	row := tx.QueryRowContext(ctx, "SELECT sequence, seal FROM seasa_audit ORDER BY sequence DESC LIMIT 1")
	switch scanErr := row.Scan(&seq, &prev); {
	case errors.Is(scanErr, sql.ErrNoRows):
		seq, prev = 0, contracts.GenesisSeal
	case scanErr != nil:
		return nil, fmt.Errorf("audit: read head: %w", scanErr)
	}

	stored, err := link(e, uint64(seq)+1, prev)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("audit: encode entry: %w", err)
	}

	insert := "INSERT INTO seasa_audit (sequence, transaction_id, logic_hash, previous_seal, seal, recorded_at, payload) VALUES (" +
		s.dialect.placeholders(7) + ")"
	if _, err = tx.ExecContext(ctx, insert,
		int64(stored.Sequence), stored.TransactionID, stored.LogicHash, stored.PreviousSeal,
		stored.Seal, stored.Timestamp.UTC().Format(time.RFC3339Nano), string(payload),
	); err != nil {
		return nil, fmt.Errorf("audit: insert entry %d: %w", stored.Sequence, err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("audit: commit: %w", err)
	}
	return stored, nil
}

func (s *SQLLedger) Entries(ctx context.Context) ([]*contracts.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM seasa_audit ORDER BY sequence ASC")
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*contracts.AuditEntry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e contracts.AuditEntry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("audit: decode entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *SQLLedger) Close() error {
	return s.db.Close()
}
