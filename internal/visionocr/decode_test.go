package visionocr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragctx/internal/apperr"
	"ragctx/internal/clock"
)

type fakeTransport struct {
	mu          sync.Mutex
	failUntil   int // number of calls that should fail before succeeding
	calls       int
	lastRegions []string
}

func (f *fakeTransport) Decode(_ context.Context, regionIDs []string, fidelity string) ([]DecodedRegion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastRegions = regionIDs
	if f.calls <= f.failUntil {
		return nil, apperr.UpstreamError(503, "unavailable")
	}
	out := make([]DecodedRegion, len(regionIDs))
	for i, id := range regionIDs {
		out[i] = DecodedRegion{RegionID: id, Text: "decoded:" + id, Fidelity: fidelity, Confidence: 0.8}
	}
	return out, nil
}

func (f *fakeTransport) Search(context.Context, string, int, map[string]string) ([]RegionMatch, error) {
	return nil, nil
}

func (f *fakeTransport) Index(context.Context, string, map[string]string, bool) (string, IndexJobStatus, error) {
	return "job-1", IndexQueued, nil
}

func (f *fakeTransport) JobStatus(context.Context, string) (IndexJobStatus, error) {
	return IndexRunning, nil
}

func testConfig() ClientConfig {
	return ClientConfig{
		Enabled:              true,
		MaxRegionsPerRequest: 10,
		DefaultFidelity:      "10x",
		CacheTTL:             time.Minute,
		CacheSize:            100,
		MaxConcurrentDecodes: 4,
		RetryAttempts:        2,
		RetryBackoff:         time.Millisecond,
		CircuitFailureThreshold: 3,
		CircuitResetTimeout:     time.Minute,
	}
}

func newTestDecoder(cfg ClientConfig, transport Transport, fc clock.Clock) (*Decoder, *Cache, *Breaker) {
	cache := NewCache(cfg.CacheTTL, cfg.CacheSize, fc)
	breaker := NewBreaker(cfg.CircuitFailureThreshold, cfg.CircuitResetTimeout, fc)
	d := NewDecoder(cfg, transport, cache, breaker, fc, nil, nil)
	d.sleep = func(time.Duration) {}
	return d, cache, breaker
}

func TestDecode_AllCacheHitsSkipsTransport(t *testing.T) {
	fc := clock.NewFixed(time.Unix(0, 0))
	cfg := testConfig()
	transport := &fakeTransport{}
	d, cache, _ := newTestDecoder(cfg, transport, fc)
	cache.Store("r1", "10x", DecodedRegion{RegionID: "r1", Text: "cached"})

	results, err := d.Decode(context.Background(), []string{"r1"}, "10x")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cached", results[0].Text)
	assert.Equal(t, 0, transport.calls)
}

func TestDecode_MissFetchesAndCaches(t *testing.T) {
	fc := clock.NewFixed(time.Unix(0, 0))
	cfg := testConfig()
	transport := &fakeTransport{}
	d, cache, _ := newTestDecoder(cfg, transport, fc)

	results, err := d.Decode(context.Background(), []string{"r1", "r2"}, "10x")
	require.NoError(t, err)
	require.Len(t, results, 2)

	cached, ok := cache.Get("r1", "10x")
	require.True(t, ok)
	assert.Equal(t, "decoded:r1", cached.Text)
}

func TestDecode_RetriesThenSucceeds(t *testing.T) {
	fc := clock.NewFixed(time.Unix(0, 0))
	cfg := testConfig()
	transport := &fakeTransport{failUntil: 2}
	d, _, breaker := newTestDecoder(cfg, transport, fc)

	results, err := d.Decode(context.Background(), []string{"r1"}, "10x")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 3, transport.calls)
	assert.Equal(t, StateClosed, breaker.StateOf(opDecode))
}

func TestDecode_ExhaustsRetriesAndReturnsError(t *testing.T) {
	fc := clock.NewFixed(time.Unix(0, 0))
	cfg := testConfig()
	cfg.RetryAttempts = 1
	cfg.CircuitFailureThreshold = 10
	transport := &fakeTransport{failUntil: 100}
	d, _, _ := newTestDecoder(cfg, transport, fc)

	results, err := d.Decode(context.Background(), []string{"r1"}, "10x")
	require.Error(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 2, transport.calls)
}

func TestDecode_BreakerOpenServesCacheOnly(t *testing.T) {
	fc := clock.NewFixed(time.Unix(0, 0))
	cfg := testConfig()
	transport := &fakeTransport{}
	d, cache, breaker := newTestDecoder(cfg, transport, fc)
	cache.Store("r1", "10x", DecodedRegion{RegionID: "r1", Text: "cached"})
	breaker.MarkFailure(opDecode)
	breaker.MarkFailure(opDecode)
	breaker.MarkFailure(opDecode)
	require.True(t, breaker.IsOpen(opDecode))

	results, err := d.Decode(context.Background(), []string{"r1", "r2"}, "10x")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cached", results[0].Text)
	assert.Equal(t, 0, transport.calls)
}

func TestDecode_BreakerOpenNoCacheReturnsCircuitOpen(t *testing.T) {
	fc := clock.NewFixed(time.Unix(0, 0))
	cfg := testConfig()
	transport := &fakeTransport{}
	d, _, breaker := newTestDecoder(cfg, transport, fc)
	breaker.MarkFailure(opDecode)
	breaker.MarkFailure(opDecode)
	breaker.MarkFailure(opDecode)
	require.True(t, breaker.IsOpen(opDecode))

	results, err := d.Decode(context.Background(), []string{"r1"}, "10x")
	require.Error(t, err)
	assert.Empty(t, results)
	assert.Equal(t, apperr.CodeUpstreamDisabled, apperr.CodeOf(err))
	assert.Equal(t, 0, transport.calls)
}

func TestDecode_DisabledReturnsUpstreamDisabled(t *testing.T) {
	fc := clock.NewFixed(time.Unix(0, 0))
	cfg := testConfig()
	cfg.Enabled = false
	transport := &fakeTransport{}
	d, _, _ := newTestDecoder(cfg, transport, fc)

	_, err := d.Decode(context.Background(), []string{"r1"}, "10x")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUpstreamDisabled, apperr.CodeOf(err))
}
