package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"ragctx/internal/apperr"
	"ragctx/internal/visionocr"
)

type visionSearchRequest struct {
	Query   string            `json:"query"`
	TopK    int               `json:"top_k"`
	Filters map[string]string `json:"filters"`
}

func (s *Server) handleVisionSearch(c echo.Context) error {
	var req visionSearchRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Validationf("invalid request body: %v", err))
	}
	if req.Query == "" {
		return s.writeError(c, apperr.Validation("query is required", nil))
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}
	if req.TopK > 50 {
		return s.writeError(c, apperr.Validation("top_k must be at most 50", nil))
	}

	regions, err := s.decoder.Search(c.Request().Context(), req.Query, req.TopK, req.Filters)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"regions": regions})
}

type visionDecodeRequest struct {
	RegionIDs []string `json:"region_ids"`
	Fidelity  string   `json:"fidelity"`
}

// useOCR parses the X-Use-OCR override header; absent or unparseable
// defaults to enabled (§6).
func useOCR(c echo.Context) bool {
	raw := strings.ToLower(strings.TrimSpace(c.Request().Header.Get("X-Use-OCR")))
	switch raw {
	case "false", "0":
		return false
	default:
		return true
	}
}

func (s *Server) handleVisionDecode(c echo.Context) error {
	var req visionDecodeRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Validationf("invalid request body: %v", err))
	}
	if len(req.RegionIDs) == 0 {
		return s.writeError(c, apperr.Validation("region_ids is required", nil))
	}
	if max := s.decoder.MaxRegionsPerRequest(); max > 0 && len(req.RegionIDs) > max {
		return s.writeError(c, apperr.Validationf("region_ids must have at most %d entries", max))
	}
	if !visionocr.ValidFidelity(req.Fidelity) {
		return s.writeError(c, apperr.Validation("fidelity must be one of 20x, 10x, 5x, 1x", nil))
	}
	if !useOCR(c) {
		return s.writeError(c, apperr.UpstreamDisabled("decode"))
	}

	results, err := s.decoder.Decode(c.Request().Context(), req.RegionIDs, req.Fidelity)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

type visionIndexRequest struct {
	DocURL       string            `json:"doc_url"`
	Metadata     map[string]string `json:"metadata"`
	ForceReindex bool              `json:"force_reindex"`
}

func (s *Server) handleVisionIndex(c echo.Context) error {
	var req visionIndexRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Validationf("invalid request body: %v", err))
	}
	if req.DocURL == "" {
		return s.writeError(c, apperr.Validation("doc_url is required", nil))
	}

	jobID, status, err := s.decoder.IndexDocument(c.Request().Context(), req.DocURL, req.Metadata, req.ForceReindex)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"job_id": jobID, "status": status})
}

func (s *Server) handleVisionJobStatus(c echo.Context) error {
	jobID := c.Param("id")
	if jobID == "" {
		return s.writeError(c, apperr.Validation("job id is required", nil))
	}
	status, err := s.decoder.JobStatus(c.Request().Context(), jobID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"job_id": jobID, "status": status})
}
