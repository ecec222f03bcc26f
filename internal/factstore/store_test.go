package factstore

import (
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"

	"ragctx/internal/facttypes"
)

func TestFactFromPayload_RoundTripsKnownFields(t *testing.T) {
	observed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	payload := qdrant.NewValueMap(map[string]any{
		payloadHash:       "deadbeef",
		payloadSubject:    "acme corp",
		payloadPredicate:  "headquartered_in",
		payloadObject:     "seattle",
		payloadDataType:   "string",
		payloadDocID:      "doc-1",
		payloadPage:       int64(3),
		payloadRegionID:   "r9",
		payloadQuote:      "Acme Corp, headquartered in Seattle",
		payloadConfidence: 0.92,
		payloadObservedAt: observed.Format(time.RFC3339Nano),
	})

	f := factFromPayload(payload)
	assert.Equal(t, "deadbeef", f.Hash)
	assert.Equal(t, "acme corp", f.Subject)
	assert.Equal(t, "headquartered_in", f.Predicate)
	assert.Equal(t, "seattle", f.Object)
	assert.Equal(t, "doc-1", f.SourceAnchor.DocID)
	assert.Equal(t, 3, f.SourceAnchor.Page)
	assert.Equal(t, "r9", f.SourceAnchor.RegionID)
	assert.InDelta(t, 0.92, f.Confidence, 0.0001)
	assert.True(t, observed.Equal(f.ObservedAt))
}

func TestFactFromPayload_MissingFieldsDoNotPanic(t *testing.T) {
	payload := qdrant.NewValueMap(map[string]any{
		payloadSubject: "acme corp",
	})
	f := factFromPayload(payload)
	assert.Equal(t, "acme corp", f.Subject)
	assert.Equal(t, facttypes.Fact{}.Object, f.Object)
	assert.Zero(t, f.SourceAnchor.Page)
}

// TestFactFromPoint_DedupHitReturnsNonEmptyMatchingID is §8 scenario 5 at
// the point-decode level: a dedup hit must carry the same fact_id the
// original insert used, never an empty one.
func TestFactFromPoint_DedupHitReturnsNonEmptyMatchingID(t *testing.T) {
	hash := "deadbeefhash"
	payload := qdrant.NewValueMap(map[string]any{
		payloadHash:    hash,
		payloadSubject: "acme corp",
	})
	originalID := idFromHash(hash)

	withPointID := &qdrant.RetrievedPoint{
		Id:      qdrant.NewIDUUID(originalID),
		Payload: payload,
	}
	f1 := factFromPoint(withPointID, hash)
	assert.Equal(t, originalID, f1.ID)
	assert.NotEmpty(t, f1.ID)

	// Even if the point id were somehow unset, the id is a pure function
	// of the hash, so recovery must still land on the same value.
	withoutPointID := &qdrant.RetrievedPoint{Payload: payload}
	f2 := factFromPoint(withoutPointID, hash)
	assert.Equal(t, originalID, f2.ID)
	assert.NotEmpty(t, f2.ID)
}

func TestIDFromHash_IsDeterministic(t *testing.T) {
	assert.Equal(t, idFromHash("deadbeefhash"), idFromHash("deadbeefhash"))
	assert.NotEmpty(t, idFromHash("deadbeefhash"))
}
