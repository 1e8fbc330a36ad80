package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

const maxLineSize = 4 << 20

// FileLedger appends one JSON entry per line to a local file.
type FileLedger struct {
	path string

	mu   sync.Mutex
	f    *os.File
	seq  uint64
	head string
}

// OpenFileLedger opens or creates the ledger at path. An existing file is
// verified before new entries may be appended to it.
func OpenFileLedger(path string) (*FileLedger, error) {
	entries, err := ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := Verify(entries); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open ledger file: %w", err)
	}
	seq, head := Head(entries)
	return &FileLedger{path: path, f: f, seq: seq, head: head}, nil
}

// ReadFile decodes every entry in a JSONL ledger file without verifying it.
func ReadFile(path string) ([]*contracts.AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Decode reads JSONL entries from r.
func Decode(r io.Reader) ([]*contracts.AuditEntry, error) {
	var entries []*contracts.AuditEntry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e contracts.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("audit: line %d: %w", line, err)
		}
		entries = append(entries, &e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("audit: read ledger: %w", err)
	}
	return entries, nil
}

// Encode writes entries to w as JSONL.
func Encode(w io.Writer, entries []*contracts.AuditEntry) error {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func (l *FileLedger) Append(ctx context.Context, e *contracts.AuditEntry) (*contracts.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil, ErrClosed
	}
	stored, err := link(e, l.seq+1, l.head)
	if err != nil {
		return nil, err
	}
	line, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("audit: encode entry: %w", err)
	}
	if _, err := l.f.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("audit: write entry: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return nil, fmt.Errorf("audit: sync ledger: %w", err)
	}
	l.seq = stored.Sequence
	l.head = stored.Seal
	return stored, nil
}

func (l *FileLedger) Entries(ctx context.Context) ([]*contracts.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return entries, err
}

func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
