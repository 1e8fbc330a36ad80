package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Trindade2023/trindade-protocol/pkg/audit"
	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
	"github.com/Trindade2023/trindade-protocol/pkg/merkle"
)

const ManifestVersion = "1"

var (
	ErrEmptySegment     = errors.New("archive: nothing to export")
	ErrManifestMismatch = errors.New("archive: segment does not match manifest")
)

// Manifest commits to one exported segment.
type Manifest struct {
	Version       string    `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	FirstSequence uint64    `json:"first_sequence"`
	LastSequence  uint64    `json:"last_sequence"`
	EntryCount    int       `json:"entry_count"`
	AnchorSeal    string    `json:"anchor_seal"`
	HeadSeal      string    `json:"head_seal"`
	MerkleRoot    string    `json:"merkle_root"`
	SegmentKey    string    `json:"segment_key"`
	SegmentSHA256 string    `json:"segment_sha256"`
}

// Exporter writes ledger segments and their manifests to a store.
type Exporter struct {
	store  ObjectStore
	clock  func() time.Time
	logger *slog.Logger
}

func NewExporter(store ObjectStore) *Exporter {
	return &Exporter{
		store:  store,
		clock:  time.Now,
		logger: slog.Default().With("component", "archive"),
	}
}

func (e *Exporter) WithClock(clock func() time.Time) *Exporter {
	e.clock = clock
	return e
}

// ManifestKey returns the object key of the manifest for a segment.
func ManifestKey(first, last uint64) string {
	return fmt.Sprintf("segments/%020d-%020d.manifest.json", first, last)
}

func segmentKey(first, last uint64) string {
	return fmt.Sprintf("segments/%020d-%020d.jsonl", first, last)
}

// Export archives a contiguous run of entries. The run must link to its
// anchor (the previous entry's seal, or genesis) and every seal must verify.
func (e *Exporter) Export(ctx context.Context, entries []*contracts.AuditEntry) (*Manifest, error) {
	if len(entries) == 0 {
		return nil, ErrEmptySegment
	}
	if err := verifyRun(entries); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := audit.Encode(&buf, entries); err != nil {
		return nil, fmt.Errorf("archive: encode segment: %w", err)
	}
	seals := make([]string, len(entries))
	for i, en := range entries {
		seals[i] = en.Seal
	}

	first, last := entries[0].Sequence, entries[len(entries)-1].Sequence
	sum := sha256.Sum256(buf.Bytes())
	m := &Manifest{
		Version:       ManifestVersion,
		CreatedAt:     e.clock().UTC(),
		FirstSequence: first,
		LastSequence:  last,
		EntryCount:    len(entries),
		AnchorSeal:    entries[0].PreviousSeal,
		HeadSeal:      entries[len(entries)-1].Seal,
		MerkleRoot:    merkle.Build(seals).Root,
		SegmentKey:    segmentKey(first, last),
		SegmentSHA256: hex.EncodeToString(sum[:]),
	}

	if err := e.store.Put(ctx, m.SegmentKey, buf.Bytes(), "application/x-ndjson"); err != nil {
		return nil, err
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("archive: encode manifest: %w", err)
	}
	if err := e.store.Put(ctx, ManifestKey(first, last), raw, "application/json"); err != nil {
		return nil, err
	}

	e.logger.Info("ledger segment archived",
		"first_sequence", first,
		"last_sequence", last,
		"merkle_root", m.MerkleRoot,
	)
	return m, nil
}

// Fetch reads a manifest and its segment back and checks the digest, the
// chain and the Merkle root.
func (e *Exporter) Fetch(ctx context.Context, manifestKey string) (*Manifest, []*contracts.AuditEntry, error) {
	raw, err := e.store.Get(ctx, manifestKey)
	if err != nil {
		return nil, nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("archive: decode manifest: %w", err)
	}
	seg, err := e.store.Get(ctx, m.SegmentKey)
	if err != nil {
		return nil, nil, err
	}
	sum := sha256.Sum256(seg)
	if hex.EncodeToString(sum[:]) != m.SegmentSHA256 {
		return nil, nil, fmt.Errorf("%w: digest", ErrManifestMismatch)
	}
	entries, err := audit.Decode(bytes.NewReader(seg))
	if err != nil {
		return nil, nil, err
	}
	if len(entries) != m.EntryCount {
		return nil, nil, fmt.Errorf("%w: entry count", ErrManifestMismatch)
	}
	if err := verifyRun(entries); err != nil {
		return nil, nil, err
	}
	seals := make([]string, len(entries))
	for i, en := range entries {
		seals[i] = en.Seal
	}
	if merkle.Build(seals).Root != m.MerkleRoot {
		return nil, nil, fmt.Errorf("%w: merkle root", ErrManifestMismatch)
	}
	return &m, entries, nil
}

// verifyRun checks a contiguous slice that may start mid-chain.
func verifyRun(entries []*contracts.AuditEntry) error {
	prev := entries[0].PreviousSeal
	next := entries[0].Sequence
	for _, en := range entries {
		if en.Sequence != next || en.PreviousSeal != prev {
			return fmt.Errorf("%w: at sequence %d", audit.ErrChainBroken, en.Sequence)
		}
		seal, err := en.ComputeSeal()
		if err != nil {
			return err
		}
		if seal != en.Seal {
			return fmt.Errorf("%w: at sequence %d", audit.ErrSealMismatch, en.Sequence)
		}
		prev = en.Seal
		next++
	}
	return nil
}
