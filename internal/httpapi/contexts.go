package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"ragctx/internal/apperr"
	"ragctx/internal/ctxassembly"
)

type storeContextRequest struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Priority string            `json:"priority"`
}

type storeContextResponse struct {
	ID         string `json:"id"`
	TokenCount int    `json:"token_count"`
}

func priorityFromString(s string) ctxassembly.Priority {
	switch s {
	case "critical":
		return ctxassembly.PriorityCritical
	case "high":
		return ctxassembly.PriorityHigh
	case "low":
		return ctxassembly.PriorityLow
	default:
		return ctxassembly.PriorityMedium
	}
}

func (s *Server) handleStoreContext(c echo.Context) error {
	var req storeContextRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Validationf("invalid request body: %v", err))
	}
	if req.ID == "" || req.Content == "" {
		return s.writeError(c, apperr.Validation("id and content are required", nil))
	}
	if len(req.Content) > 1<<20 {
		return s.writeError(c, apperr.Validation("content exceeds the maximum artifact size", nil))
	}

	tokenCount := s.estimator.Estimate(req.Content)
	relevance := ctxassembly.NewRelevanceScore(0, 1, 0, ctxassembly.ReferenceDensity(0))
	artifact := ctxassembly.NewArtifact(req.ID, req.Content, req.Metadata, priorityFromString(req.Priority), relevance, tokenCount)
	s.repository.Put(artifact)

	return c.JSON(http.StatusOK, storeContextResponse{ID: req.ID, TokenCount: tokenCount})
}

type searchContextRequest struct {
	Query        string   `json:"query"`
	SystemPrompt string   `json:"system_prompt"`
	RunningBrief string   `json:"running_brief"`
	RecentTurns  []string `json:"recent_turns"`
}

type searchContextResponse struct {
	System       string              `json:"system"`
	RunningBrief string              `json:"running_brief"`
	RecentTurns  []string            `json:"recent_turns"`
	Artifacts    []artifactView      `json:"artifacts"`
	Allocation   ctxassembly.BudgetAllocation `json:"allocation"`
	Summarized   bool                `json:"summarized"`
}

type artifactView struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	Priority   int     `json:"priority"`
	Relevance  float64 `json:"relevance"`
	TokenCount int     `json:"token_count"`
}

func (s *Server) handleSearchContext(c echo.Context) error {
	var req searchContextRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Validationf("invalid request body: %v", err))
	}
	if req.Query == "" {
		return s.writeError(c, apperr.Validation("query is required", nil))
	}

	candidates := s.repository.All()
	scored := make([]ctxassembly.Artifact, len(candidates))
	for i, a := range candidates {
		rel := ctxassembly.NewRelevanceScore(
			ctxassembly.TaskRelevance(req.Query, a.Content),
			a.Relevance.Recency,
			a.Relevance.Complexity,
			a.Relevance.ReferenceDensity,
		)
		a.Relevance = rel
		scored[i] = a
	}

	result, err := s.assembler.Assemble(c.Request().Context(), ctxassembly.Request{
		SystemPrompt: req.SystemPrompt,
		RunningBrief: req.RunningBrief,
		RecentTurns:  req.RecentTurns,
		Artifacts:    scored,
		Query:        req.Query,
	})
	if err != nil {
		return s.writeError(c, err)
	}

	views := make([]artifactView, len(result.Artifacts))
	for i, a := range result.Artifacts {
		views[i] = artifactView{ID: a.ID, Content: a.Content, Priority: int(a.Priority), Relevance: a.Relevance.Total, TokenCount: a.TokenCount}
	}

	return c.JSON(http.StatusOK, searchContextResponse{
		System:       result.System,
		RunningBrief: result.RunningBrief,
		RecentTurns:  result.RecentTurns,
		Artifacts:    views,
		Allocation:   result.Allocation,
		Summarized:   result.Summarized,
	})
}
