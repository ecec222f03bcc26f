package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"ragctx/internal/apperr"
	"ragctx/internal/task"
)

type createTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Repo        string   `json:"repo"`
	BaseBranch  string   `json:"base_branch"`
	RiskTier    string   `json:"risk_tier"`
	Constraints []string `json:"constraints"`
	Acceptance  []string `json:"acceptance"`
	Metrics     struct {
		SLAMinutes    int `json:"sla_minutes"`
		MaxIterations int `json:"max_iterations"`
	} `json:"metrics"`
}

func (s *Server) handleCreateTask(c echo.Context) error {
	var req createTaskRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Validationf("invalid request body: %v", err))
	}
	if req.Title == "" || req.Repo == "" {
		return s.writeError(c, apperr.Validation("title and repo are required", nil))
	}
	if req.BaseBranch == "" {
		req.BaseBranch = "main"
	}
	if req.RiskTier == "" {
		req.RiskTier = "low"
	}
	if req.Metrics.SLAMinutes <= 0 {
		req.Metrics.SLAMinutes = 60
	}
	if req.Metrics.MaxIterations <= 0 {
		req.Metrics.MaxIterations = 8
	}

	now := time.Now().UTC()
	t := &task.Task{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Repo:        req.Repo,
		BaseBranch:  req.BaseBranch,
		Objective:   req.Title + "\n\n" + req.Description,
		RiskTier:    req.RiskTier,
		Constraints: req.Constraints,
		Acceptance:  req.Acceptance,
		Metrics: task.Metrics{
			SLAMinutes:    req.Metrics.SLAMinutes,
			MaxIterations: req.Metrics.MaxIterations,
		},
		Status:    task.StatusPending,
		Plan:      task.GeneratePlan(req.Title + "\n\n" + req.Description),
		CreatedAt: now,
		UpdatedAt: now,
	}
	taskID := t.ID
	s.tasks.Put(t)

	go func() {
		bg := context.Background()
		if err := s.orch.Execute(bg, taskID); err != nil {
			s.log.Error("autodev task failed", map[string]any{"task_id": taskID, "error": err.Error()})
		}
	}()

	// Respond with a fresh copy from the store rather than the local t:
	// the orchestrator goroutine above may already be mutating the same
	// object through Store.Update by the time this handler returns.
	out, err := s.tasks.Get(taskID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleListTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"tasks": s.tasks.List()})
}

func (s *Server) handleGetTask(c echo.Context) error {
	t, err := s.tasks.Get(c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// handleCancelTask flips Status to Cancelled through Store.Update so the
// terminal-state check and the write happen atomically against a
// concurrently executing orchestrator run (§5, §6: "cancel on a
// terminal status -> 400").
func (s *Server) handleCancelTask(c echo.Context) error {
	id := c.Param("id")
	var alreadyTerminal bool
	if err := s.tasks.Update(id, func(t *task.Task) {
		if t.Status.Terminal() {
			alreadyTerminal = true
			return
		}
		t.Status = task.StatusCancelled
		t.UpdatedAt = time.Now().UTC()
	}); err != nil {
		return s.writeError(c, err)
	}
	if alreadyTerminal {
		return s.writeError(c, apperr.Validation("task is already in a terminal state", nil))
	}

	t, err := s.tasks.Get(id)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}
