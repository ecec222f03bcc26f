package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragctx/internal/ctxassembly"
	"ragctx/internal/task"
	"ragctx/internal/tokenest"
)

func newTestServer() *Server {
	budget := ctxassembly.BudgetConfig{System: 100, RunningBrief: 100, RecentTurns: 100, RetrievedContext: 1000, Completion: 100, MaxTotal: 2000}
	estimator := tokenest.WordCount{}
	repo := ctxassembly.NewRepository()
	assembler := ctxassembly.New(budget, estimator, nil, nil, nil)
	tasks := task.NewStore()
	return New(Deps{
		Assembler:  assembler,
		Repository: repo,
		Estimator:  estimator,
		Tasks:      tasks,
	})
}

func doRequest(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleStoreContext_RequiresIDAndContent(t *testing.T) {
	s := newTestServer()
	rec := doRequest(s, http.MethodPost, "/api/v1/contexts", map[string]any{"id": "a1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "VALIDATION_ERROR", string(env.Code))
}

func TestHandleStoreContext_StoresArtifact(t *testing.T) {
	s := newTestServer()
	rec := doRequest(s, http.MethodPost, "/api/v1/contexts", map[string]any{
		"id":      "a1",
		"content": "the quick brown fox",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	all := s.repository.All()
	require.Len(t, all, 1)
	assert.Equal(t, "a1", all[0].ID)
	assert.Greater(t, all[0].TokenCount, 0)
}

func TestHandleSearchContext_RequiresQuery(t *testing.T) {
	s := newTestServer()
	rec := doRequest(s, http.MethodPost, "/api/v1/contexts/search", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateTask_RequiresTitleAndRepo(t *testing.T) {
	s := newTestServer()
	rec := doRequest(s, http.MethodPost, "/api/v1/autodev/tasks", map[string]any{"title": "do a thing"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetTask_NotFound(t *testing.T) {
	s := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/v1/autodev/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCancelTask_AlreadyTerminalReturnsBadRequest(t *testing.T) {
	s := newTestServer()
	now := time.Now().UTC()
	s.tasks.Put(&task.Task{ID: "t1", Status: task.StatusFailed, CreatedAt: now, UpdatedAt: now})

	rec := doRequest(s, http.MethodPost, "/api/v1/autodev/tasks/t1/cancel", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCancelTask_PendingBecomesCancelled(t *testing.T) {
	s := newTestServer()
	now := time.Now().UTC()
	s.tasks.Put(&task.Task{ID: "t2", Status: task.StatusPending, CreatedAt: now, UpdatedAt: now})

	rec := doRequest(s, http.MethodPost, "/api/v1/autodev/tasks/t2/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := s.tasks.Get("t2")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, updated.Status)
}

func TestHandleListTasks_ReturnsAll(t *testing.T) {
	s := newTestServer()
	now := time.Now().UTC()
	s.tasks.Put(&task.Task{ID: "t1", Status: task.StatusPending, CreatedAt: now, UpdatedAt: now})
	s.tasks.Put(&task.Task{ID: "t2", Status: task.StatusPending, CreatedAt: now, UpdatedAt: now})

	rec := doRequest(s, http.MethodGet, "/api/v1/autodev/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Tasks []task.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Tasks, 2)
}
