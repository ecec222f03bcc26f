package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"ragctx/internal/apperr"
	"ragctx/internal/facttypes"
)

type insertFactRequest struct {
	Subject       string                  `json:"subject"`
	Predicate     string                  `json:"predicate"`
	Object        string                  `json:"object"`
	DataType      string                  `json:"datatype"`
	SourceDoc     string                  `json:"source_doc"`
	SourceAnchor  facttypes.SourceAnchor  `json:"source_anchor"`
	Confidence    float64                 `json:"confidence"`
}

type insertFactResponse struct {
	FactID    string `json:"fact_id"`
	Hash      string `json:"hash"`
	Duplicate bool   `json:"duplicate"`
}

func (s *Server) handleInsertFact(c echo.Context) error {
	var req insertFactRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Validationf("invalid request body: %v", err))
	}
	if req.Subject == "" || req.Predicate == "" || req.Object == "" {
		return s.writeError(c, apperr.Validation("subject, predicate, and object are required", nil))
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		return s.writeError(c, apperr.Validation("confidence must be in [0,1]", nil))
	}

	anchor := req.SourceAnchor
	if anchor.DocID == "" {
		anchor.DocID = req.SourceDoc
	}

	fact := facttypes.Fact{
		Subject:      req.Subject,
		Predicate:    req.Predicate,
		Object:       req.Object,
		DataType:     req.DataType,
		SourceAnchor: anchor,
		Confidence:   req.Confidence,
		ObservedAt:   time.Now().UTC(),
	}

	stored, duplicate, err := s.facts.Insert(c.Request().Context(), fact)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, insertFactResponse{FactID: stored.ID, Hash: stored.Hash, Duplicate: duplicate})
}

type queryFactsRequest struct {
	Query struct {
		Subject       string  `json:"subject"`
		Predicate     string  `json:"predicate"`
		Object        string  `json:"object"`
		SourceDoc     string  `json:"source_doc"`
		MinConfidence float64 `json:"min_confidence"`
		Limit         int     `json:"limit"`
	} `json:"query"`
}

func (s *Server) handleQueryFacts(c echo.Context) error {
	var req queryFactsRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Validationf("invalid request body: %v", err))
	}
	if req.Query.Limit > s.maxFactsPerQuery {
		return s.writeError(c, apperr.Validationf("limit exceeds max_facts_per_query (%d)", s.maxFactsPerQuery))
	}

	pattern := facttypes.TriplePattern{
		Subject:       req.Query.Subject,
		Predicate:     req.Query.Predicate,
		Object:        req.Query.Object,
		DocID:         req.Query.SourceDoc,
		MinConfidence: req.Query.MinConfidence,
		Limit:         req.Query.Limit,
	}
	facts, err := s.facts.Query(c.Request().Context(), pattern)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"facts": facts, "total": len(facts)})
}
