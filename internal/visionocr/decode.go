package visionocr

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"ragctx/internal/apperr"
	"ragctx/internal/clock"
	"ragctx/internal/obslog"
	"ragctx/internal/obsmetrics"
)

const (
	opDecode = "decode"
	opIndex  = "index"
	opStatus = "status"
	opSearch = "search"
)

// Decoder orchestrates the resilient decode sequence of §4.2: disabled
// check, cache split, breaker check, bounded concurrency, retry with
// exponential backoff, cache fill, and graceful degradation to whatever
// was already cached when the upstream cannot be reached.
type Decoder struct {
	cfg       ClientConfig
	transport Transport
	cache     *Cache
	breaker   *Breaker
	sem       *semaphore.Weighted
	clock     clock.Clock
	log       obslog.Logger
	metrics   obsmetrics.Metrics
	sleep     func(time.Duration)
}

// NewDecoder wires a Decoder from its component parts. A nil logger or
// metrics sink defaults to its no-op implementation.
func NewDecoder(cfg ClientConfig, transport Transport, cache *Cache, breaker *Breaker, c clock.Clock, log obslog.Logger, metrics obsmetrics.Metrics) *Decoder {
	if c == nil {
		c = clock.System{}
	}
	if log == nil {
		log = obslog.Noop{}
	}
	if metrics == nil {
		metrics = obsmetrics.Noop{}
	}
	weight := int64(cfg.MaxConcurrentDecodes)
	if weight <= 0 {
		weight = 1
	}
	return &Decoder{
		cfg:       cfg,
		transport: transport,
		cache:     cache,
		breaker:   breaker,
		sem:       semaphore.NewWeighted(weight),
		clock:     c,
		log:       log,
		metrics:   metrics,
		sleep:     time.Sleep,
	}
}

// MaxRegionsPerRequest reports the configured cap on region_ids per
// decode call, for the HTTP edge to validate against before dispatch.
func (d *Decoder) MaxRegionsPerRequest() int { return d.cfg.MaxRegionsPerRequest }

// Decode returns decoded regions for regionIDs at the given fidelity,
// serving whatever it can from cache and falling back to the upstream
// for misses. See §4.2 for the six-step sequence this implements.
func (d *Decoder) Decode(ctx context.Context, regionIDs []string, fidelity string) ([]DecodedRegion, error) {
	if !d.cfg.Enabled {
		return nil, apperr.UpstreamDisabled(opDecode)
	}

	hits, misses := d.cache.SplitHits(regionIDs, fidelity)
	if len(misses) == 0 {
		return hits, nil
	}

	if d.breaker.IsOpen(opDecode) {
		d.metrics.IncCounter("visionocr_circuit_rejected_total", map[string]string{"op": opDecode})
		if len(hits) == 0 {
			return nil, apperr.CircuitOpen(opDecode)
		}
		d.log.Info("decode circuit open, serving cached hits only", map[string]any{
			"misses": len(misses),
			"hits":   len(hits),
		})
		return hits, nil
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return hits, apperr.Internal("acquire decode concurrency permit", err)
	}
	defer d.sem.Release(1)

	results, err := d.retryDecode(ctx, misses, fidelity)
	if err != nil {
		d.log.Error("decode upstream exhausted retries", map[string]any{
			"misses": len(misses),
			"error":  err.Error(),
		})
		return hits, err
	}

	d.cache.StoreBatch(results, fidelity)
	return append(hits, results...), nil
}

func (d *Decoder) retryDecode(ctx context.Context, regionIDs []string, fidelity string) ([]DecodedRegion, error) {
	attempts := d.cfg.RetryAttempts + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			backoff := d.cfg.RetryBackoff << uint(attempt-2)
			d.metrics.IncCounter("visionocr_retry_total", map[string]string{"op": opDecode})
			d.sleep(backoff)
		}
		results, err := d.transport.Decode(ctx, regionIDs, fidelity)
		if err == nil {
			d.breaker.MarkSuccess(opDecode)
			return results, nil
		}
		lastErr = err
		d.breaker.MarkFailure(opDecode)
	}
	return nil, lastErr
}

// Search proxies a vision search query through the breaker, with no
// retry or cache involvement (search results are not individually
// cacheable the way decoded regions are).
func (d *Decoder) Search(ctx context.Context, query string, topK int, filters map[string]string) ([]RegionMatch, error) {
	if !d.cfg.Enabled {
		return nil, apperr.UpstreamDisabled(opSearch)
	}
	if d.breaker.IsOpen(opSearch) {
		return nil, apperr.CircuitOpen(opSearch)
	}
	matches, err := d.transport.Search(ctx, query, topK, filters)
	if err != nil {
		d.breaker.MarkFailure(opSearch)
		return nil, err
	}
	d.breaker.MarkSuccess(opSearch)
	return matches, nil
}

// IndexDocument enqueues an indexing job for docURL, under the "index"
// breaker label distinct from decode's.
func (d *Decoder) IndexDocument(ctx context.Context, docURL string, metadata map[string]string, forceReindex bool) (string, IndexJobStatus, error) {
	if !d.cfg.Enabled {
		return "", "", apperr.UpstreamDisabled(opIndex)
	}
	if d.breaker.IsOpen(opIndex) {
		return "", "", apperr.CircuitOpen(opIndex)
	}
	jobID, status, err := d.transport.Index(ctx, docURL, metadata, forceReindex)
	if err != nil {
		d.breaker.MarkFailure(opIndex)
		return "", "", err
	}
	d.breaker.MarkSuccess(opIndex)
	return jobID, status, nil
}

// JobStatus reports the lifecycle state of a previously enqueued
// indexing job, under the "status" breaker label.
func (d *Decoder) JobStatus(ctx context.Context, jobID string) (IndexJobStatus, error) {
	if !d.cfg.Enabled {
		return "", apperr.UpstreamDisabled(opStatus)
	}
	if d.breaker.IsOpen(opStatus) {
		return "", apperr.CircuitOpen(opStatus)
	}
	status, err := d.transport.JobStatus(ctx, jobID)
	if err != nil {
		d.breaker.MarkFailure(opStatus)
		return "", err
	}
	d.breaker.MarkSuccess(opStatus)
	return status, nil
}
