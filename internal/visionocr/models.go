// Package visionocr implements the resilient OCR decode path of §4.2: a
// per-region/fidelity LRU+TTL cache, bounded concurrency, exponential
// backoff retry, a per-operation circuit breaker, and graceful
// degradation. Naming follows the spec's generic "vision service" rather
// than any single upstream provider.
package visionocr

// Fidelity is one of the four OCR decoding fidelity tags (glossary).
type Fidelity string

const (
	Fidelity20x Fidelity = "20x"
	Fidelity10x Fidelity = "10x"
	Fidelity5x  Fidelity = "5x"
	Fidelity1x  Fidelity = "1x"
)

// ValidFidelity reports whether f is one of the four recognized tags.
func ValidFidelity(f string) bool {
	switch Fidelity(f) {
	case Fidelity20x, Fidelity10x, Fidelity5x, Fidelity1x:
		return true
	}
	return false
}

// DecodedRegion is the unified decode-result shape (§9 Open Questions: the
// spec resolves the source's two divergent shapes on this one, keeping
// Fidelity on the value even though it duplicates the cache key).
type DecodedRegion struct {
	RegionID   string  `json:"region_id"`
	Text       string  `json:"text"`
	Fidelity   string  `json:"fidelity"`
	Confidence float64 `json:"confidence"`
}

// BoundingBox describes a region's location on a page.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// RegionType classifies a search result region.
type RegionType string

const (
	RegionTable  RegionType = "table"
	RegionFigure RegionType = "figure"
	RegionCode   RegionType = "code"
	RegionText   RegionType = "text"
)

// RegionMatch is a single vision/search result (§6).
type RegionMatch struct {
	RegionID      string      `json:"region_id"`
	DocID         string      `json:"doc_id"`
	Page          int         `json:"page"`
	BBox          BoundingBox `json:"bbox"`
	Type          RegionType  `json:"type"`
	Score         float64     `json:"score"`
	WhyRelevant   string      `json:"why_relevant"`
	HasVT         bool        `json:"has_vt"`
	TokenEstimate int         `json:"token_estimate"`
}

// IndexJobStatus is the lifecycle of an enqueued indexing job (§6).
type IndexJobStatus string

const (
	IndexQueued    IndexJobStatus = "queued"
	IndexRunning   IndexJobStatus = "running"
	IndexSucceeded IndexJobStatus = "succeeded"
	IndexFailed    IndexJobStatus = "failed"
)
