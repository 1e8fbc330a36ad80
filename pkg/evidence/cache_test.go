package evidence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

type memCache struct {
	mu      sync.Mutex
	data    map[string]string
	readErr error
}

func newMemCache() *memCache { return &memCache{data: make(map[string]string)} }

func (m *memCache) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return redis.NewStringResult("", m.readErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memCache) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

type countingOracle struct {
	StaticOracle
	fetches atomic.Int32
}

func (c *countingOracle) Fetch(ctx context.Context, q string, tier contracts.EvidenceTier) (*contracts.Datum, error) {
	c.fetches.Add(1)
	return c.StaticOracle.Fetch(ctx, q, tier)
}

func TestCachedOracle_MissThenHit(t *testing.T) {
	inner := &countingOracle{StaticOracle: *NewReferenceOracle("ref", 0.85)}
	cache := newMemCache()
	o := NewCachedOracle("ref", inner, cache, time.Minute)
	ctx := context.Background()

	d1, err := o.Fetch(ctx, "Safety First", contracts.TierAxiomatic)
	require.NoError(t, err)
	d2, err := o.Fetch(ctx, "Safety First", contracts.TierAxiomatic)
	require.NoError(t, err)

	assert.Equal(t, int32(1), inner.fetches.Load())
	assert.Equal(t, d1, d2)
	assert.Len(t, cache.data, 1)
}

func TestCachedOracle_NegativeAnswersAreNotCached(t *testing.T) {
	inner := &countingOracle{StaticOracle: *NewReferenceOracle("ref", 0.85)}
	cache := newMemCache()
	o := NewCachedOracle("ref", inner, cache, time.Minute)

	_, err := o.Fetch(context.Background(), "q", contracts.TierEmpirical)
	assert.ErrorIs(t, err, ErrEvidenceUnavailable)
	assert.Empty(t, cache.data)
}

func TestCachedOracle_RedisFailureFallsThrough(t *testing.T) {
	inner := &countingOracle{StaticOracle: *NewReferenceOracle("ref", 0.85)}
	cache := newMemCache()
	cache.readErr = errors.New("connection refused")
	o := NewCachedOracle("ref", inner, cache, time.Minute)

	d, err := o.Fetch(context.Background(), "q", contracts.TierAxiomatic)
	require.NoError(t, err)
	assert.InDelta(t, 0.85, d.Confidence, 1e-9)
	assert.Equal(t, int32(1), inner.fetches.Load())
}

func TestCachedOracle_CorruptEntryIsRefetched(t *testing.T) {
	inner := &countingOracle{StaticOracle: *NewReferenceOracle("ref", 0.85)}
	cache := newMemCache()
	o := NewCachedOracle("ref", inner, cache, time.Minute)
	cache.data[o.key("q", contracts.TierAxiomatic)] = "{not json"

	d, err := o.Fetch(context.Background(), "q", contracts.TierAxiomatic)
	require.NoError(t, err)
	assert.Equal(t, "ref", d.Source)
	assert.Equal(t, int32(1), inner.fetches.Load())
}

func TestCachedOracle_InResolver(t *testing.T) {
	inner := &countingOracle{StaticOracle: *NewReferenceOracle("ref", 0.85)}
	reg := NewRegistry()
	require.NoError(t, reg.Register("ref", NewCachedOracle("ref", inner, newMemCache(), time.Minute)))
	r := NewResolver(reg)

	for i := 0; i < 3; i++ {
		d := r.Resolve(context.Background(), "Thermodynamics")
		assert.InDelta(t, 0.85, d.Confidence, 1e-9)
	}
	assert.Equal(t, int32(1), inner.fetches.Load())
}
