// Package factstore persists extracted fact triples in Qdrant, using it
// purely as a filtered document store: facts carry a placeholder vector
// just to satisfy the collection schema and are always retrieved by
// payload filter, never by similarity search (§5, §9 Open Questions).
package factstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"ragctx/internal/apperr"
	"ragctx/internal/facttypes"
	"ragctx/internal/obslog"
)

const (
	payloadHash       = "hash"
	payloadSubject    = "subject"
	payloadPredicate  = "predicate"
	payloadObject     = "object"
	payloadDataType   = "data_type"
	payloadDocID      = "doc_id"
	payloadPage       = "page"
	payloadRegionID   = "region_id"
	payloadQuote      = "quote"
	payloadConfidence = "confidence"
	payloadObservedAt = "observed_at"
)

// Store is the fact triple store backed by a Qdrant collection.
type Store struct {
	client              *qdrant.Client
	collection          string
	vectorSize          int
	dedupEnabled        bool
	confidenceThreshold float64
	maxFactsPerQuery    int
	log                 obslog.Logger
}

// Config configures a Store; see internal/config.FactsConfig.
type Config struct {
	QdrantDSN           string
	CollectionName      string
	VectorSize          int
	DedupEnabled        bool
	ConfidenceThreshold float64
	MaxFactsPerQuery    int
}

// New connects to Qdrant, bootstraps the collection if absent, and
// returns a ready Store. Grounded on the teacher's qdrant_vector.go DSN
// parsing and collection-bootstrap logic, repointed at a filter-only
// fact schema instead of a similarity-search one.
func New(ctx context.Context, cfg Config, log obslog.Logger) (*Store, error) {
	if cfg.CollectionName == "" {
		return nil, apperr.Invalid("facts collection name is required")
	}
	if log == nil {
		log = obslog.Noop{}
	}
	parsed, err := url.Parse(cfg.QdrantDSN)
	if err != nil {
		return nil, apperr.Internal("parse qdrant dsn", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, apperr.Internal("parse qdrant port", err)
	}
	qcfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		qcfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		qcfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, apperr.Internal("create qdrant client", err)
	}

	vecSize := cfg.VectorSize
	if vecSize <= 0 {
		vecSize = 8
	}
	s := &Store{
		client:              client,
		collection:          cfg.CollectionName,
		vectorSize:          vecSize,
		dedupEnabled:        cfg.DedupEnabled,
		confidenceThreshold: cfg.ConfidenceThreshold,
		maxFactsPerQuery:    cfg.MaxFactsPerQuery,
		log:                 log,
	}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, apperr.Internal("ensure facts collection", err)
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// Close releases the underlying Qdrant connection.
func (s *Store) Close() error { return s.client.Close() }

func placeholderVector(size int) []float32 {
	return make([]float32, size)
}

// Insert hashes the triple, checks it against the dedup index if
// enabled (returning the stored fact and true on a hit), rejects it with
// a validation error if below the confidence threshold, and otherwise
// upserts it keyed by a deterministic UUID derived from the hash so
// re-extracting the same fact is idempotent (§5).
func (s *Store) Insert(ctx context.Context, f facttypes.Fact) (facttypes.Fact, bool, error) {
	f.Hash = facttypes.Hash(f.Subject, f.Predicate, f.Object, f.SourceAnchor)
	if f.ObservedAt.IsZero() {
		f.ObservedAt = time.Now().UTC()
	}
	if f.Confidence < 0 {
		f.Confidence = 0
	} else if f.Confidence > 1 {
		f.Confidence = 1
	}

	if s.dedupEnabled {
		existing, found, err := s.findByHash(ctx, f.Hash)
		if err != nil {
			return facttypes.Fact{}, false, err
		}
		if found {
			return existing, true, nil
		}
	}

	if f.Confidence < s.confidenceThreshold {
		return facttypes.Fact{}, false, apperr.Validationf("confidence %.2f below threshold %.2f", f.Confidence, s.confidenceThreshold)
	}

	f.ID = idFromHash(f.Hash)
	payload := qdrant.NewValueMap(map[string]any{
		payloadHash:       f.Hash,
		payloadSubject:    f.Subject,
		payloadPredicate:  f.Predicate,
		payloadObject:     f.Object,
		payloadDataType:   f.DataType,
		payloadDocID:      f.SourceAnchor.DocID,
		payloadPage:       int64(f.SourceAnchor.Page),
		payloadRegionID:   f.SourceAnchor.RegionID,
		payloadQuote:      f.SourceAnchor.Quote,
		payloadConfidence: f.Confidence,
		payloadObservedAt: f.ObservedAt.Format(time.RFC3339Nano),
	})
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(f.ID),
		Vectors: qdrant.NewVectorsDense(placeholderVector(s.vectorSize)),
		Payload: payload,
	}
	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         []*qdrant.PointStruct{point},
	}); err != nil {
		return facttypes.Fact{}, false, apperr.Internal("upsert fact", err)
	}
	return f, false, nil
}

func (s *Store) findByHash(ctx context.Context, hash string) (facttypes.Fact, bool, error) {
	limit := uint32(1)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadHash, hash)},
		},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return facttypes.Fact{}, false, apperr.Internal("scroll facts by hash", err)
	}
	if len(points) == 0 {
		return facttypes.Fact{}, false, nil
	}
	return factFromPoint(points[0], hash), true, nil
}

// factFromPoint decodes a scrolled point back into a Fact, including its
// stable ID: the point's own Qdrant id if present, or -- since that id is
// a pure function of the hash -- the hash-derived uuid as a fallback. A
// duplicate insert must report the same fact_id as the original (§3.5,
// §8 dedup scenario), so ID can never be left empty here.
func factFromPoint(point *qdrant.RetrievedPoint, hash string) facttypes.Fact {
	f := factFromPayload(point.Payload)
	f.ID = point.GetId().GetUuid()
	if f.ID == "" {
		f.ID = idFromHash(hash)
	}
	return f
}

// idFromHash is the deterministic UUIDv5-style id derived from a fact's
// content hash, used both for the initial insert and to recompute the
// same id when recovering a dedup hit (§3.5).
func idFromHash(hash string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(hash)).String()
}

// Query runs a conjunctive triple-pattern query directly against the
// payload index, capped at max_facts_per_query. Any pattern field left
// empty is treated as "don't care" (§5). MinConfidence is applied after
// the scroll: the Qdrant payload index matches strings exactly, so a
// numeric range is cheaper to apply client-side than to express as a
// filter condition here.
func (s *Store) Query(ctx context.Context, pattern facttypes.TriplePattern) ([]facttypes.Fact, error) {
	var must []*qdrant.Condition
	if pattern.Subject != "" {
		must = append(must, qdrant.NewMatch(payloadSubject, pattern.Subject))
	}
	if pattern.Predicate != "" {
		must = append(must, qdrant.NewMatch(payloadPredicate, pattern.Predicate))
	}
	if pattern.Object != "" {
		must = append(must, qdrant.NewMatch(payloadObject, pattern.Object))
	}
	if pattern.DocID != "" {
		must = append(must, qdrant.NewMatch(payloadDocID, pattern.DocID))
	}

	maxAllowed := s.maxFactsPerQuery
	if maxAllowed == 0 {
		maxAllowed = 100
	}
	reqLimit := pattern.Limit
	if reqLimit <= 0 || reqLimit > maxAllowed {
		reqLimit = maxAllowed
	}

	// Over-fetch against the confidence filter we apply client-side, capped
	// at the hard ceiling so a low min-confidence can't unbound the scroll.
	scrollLimit := uint32(maxAllowed)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         &qdrant.Filter{Must: must},
		Limit:          &scrollLimit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, apperr.Internal("scroll facts", err)
	}
	facts := make([]facttypes.Fact, 0, len(points))
	for _, p := range points {
		f := factFromPayload(p.Payload)
		if f.Confidence < pattern.MinConfidence {
			continue
		}
		facts = append(facts, f)
		if len(facts) >= reqLimit {
			break
		}
	}
	return facts, nil
}

// factFromPayload decodes a Qdrant payload back into a Fact, skipping
// (not erroring on) any field that is missing from the stored payload.
func factFromPayload(payload map[string]*qdrant.Value) facttypes.Fact {
	get := func(key string) string {
		if v, ok := payload[key]; ok && v != nil {
			return v.GetStringValue()
		}
		return ""
	}
	f := facttypes.Fact{
		Hash:      get(payloadHash),
		Subject:   get(payloadSubject),
		Predicate: get(payloadPredicate),
		Object:    get(payloadObject),
		DataType:  get(payloadDataType),
		SourceAnchor: facttypes.SourceAnchor{
			DocID:    get(payloadDocID),
			RegionID: get(payloadRegionID),
			Quote:    get(payloadQuote),
		},
	}
	if v, ok := payload[payloadPage]; ok && v != nil {
		f.SourceAnchor.Page = int(v.GetIntegerValue())
	}
	if v, ok := payload[payloadConfidence]; ok && v != nil {
		f.Confidence = v.GetDoubleValue()
	}
	if v, ok := payload[payloadObservedAt]; ok && v != nil {
		if t, err := time.Parse(time.RFC3339Nano, v.GetStringValue()); err == nil {
			f.ObservedAt = t
		}
	}
	return f
}
