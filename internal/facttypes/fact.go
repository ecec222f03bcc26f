// Package facttypes defines the fact-triple shape shared by the fact
// store and the HTTP edge: a subject-predicate-object assertion pinned
// to the document location it was extracted from (§5).
package facttypes

import "time"

// SourceAnchor pins a Fact to the exact location it was derived from, so
// a caller can verify a claim against the source document instead of
// trusting it blindly.
type SourceAnchor struct {
	DocID    string `json:"doc_id"`
	Page     int    `json:"page"`
	RegionID string `json:"region_id,omitempty"`
	Quote    string `json:"quote,omitempty"`
}

// Fact is a single subject-predicate-object triple with provenance and a
// confidence score (§5).
type Fact struct {
	ID           string       `json:"id"`
	Subject      string       `json:"subject"`
	Predicate    string       `json:"predicate"`
	Object       string       `json:"object"`
	DataType     string       `json:"data_type,omitempty"`
	SourceAnchor SourceAnchor `json:"source_anchor"`
	Confidence   float64      `json:"confidence"`
	ObservedAt   time.Time    `json:"observed_at"`
	Hash         string       `json:"hash"`
}

// TriplePattern is a conjunctive query over facts: any zero-value field
// is treated as "don't care" (§5 query semantics).
type TriplePattern struct {
	Subject       string
	Predicate     string
	Object        string
	DocID         string
	MinConfidence float64
	Limit         int
}
