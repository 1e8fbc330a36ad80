package sharding

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/Trindade2023/trindade-protocol/pkg/canonicalize"
	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

// Correlator scores how correlated a complete set of shard outputs is, in
// [0,1).
type Correlator interface {
	Correlate(shards []contracts.Shard) (float64, error)
}

// KeyedCorrelator maps the canonical shard outputs through HMAC-SHA256.
// The same key and outputs always yield the same value; without the key the
// value cannot be predicted.
type KeyedCorrelator struct {
	key []byte
}

// NewKeyedCorrelator uses a caller-supplied key.
func NewKeyedCorrelator(key []byte) (*KeyedCorrelator, error) {
	if len(key) < 16 {
		return nil, fmt.Errorf("sharding: correlator key must be at least 16 bytes")
	}
	return &KeyedCorrelator{key: append([]byte(nil), key...)}, nil
}

// NewRandomCorrelator draws a fresh 32-byte key for this process.
func NewRandomCorrelator() (*KeyedCorrelator, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("sharding: correlator key: %w", err)
	}
	return &KeyedCorrelator{key: key}, nil
}

// Correlate implements Correlator.
func (k *KeyedCorrelator) Correlate(shards []contracts.Shard) (float64, error) {
	payload, err := canonicalize.JCS(shards)
	if err != nil {
		return 0, fmt.Errorf("sharding: canonicalize outputs: %w", err)
	}
	mac := hmac.New(sha256.New, k.key)
	mac.Write(payload)
	sum := mac.Sum(nil)
	// 53 high bits give an exact float64 in [0,1).
	return float64(binary.BigEndian.Uint64(sum[:8])>>11) / (1 << 53), nil
}

// FixedCorrelator reports a constant correlation.
type FixedCorrelator float64

// Correlate implements Correlator.
func (f FixedCorrelator) Correlate([]contracts.Shard) (float64, error) {
	return float64(f), nil
}
