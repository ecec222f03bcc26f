// Package httpapi exposes the §6 HTTP surface over echo, the teacher's
// web framework, translating requests into calls against ctxassembly,
// visionocr, factstore, and task/autodev, and every error into the
// closed taxonomy's JSON envelope.
package httpapi

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"ragctx/internal/autodev"
	"ragctx/internal/ctxassembly"
	"ragctx/internal/factstore"
	"ragctx/internal/obslog"
	"ragctx/internal/obsmetrics"
	"ragctx/internal/task"
	"ragctx/internal/tokenest"
	"ragctx/internal/visionocr"
)

// Server wires the HTTP surface to every core component.
type Server struct {
	echo *echo.Echo

	assembler  *ctxassembly.Assembler
	repository *ctxassembly.Repository
	estimator  tokenest.Estimator
	decoder    *visionocr.Decoder
	facts      *factstore.Store
	tasks      *task.Store
	orch       *autodev.Orchestrator

	maxFactsPerQuery int

	log     obslog.Logger
	metrics obsmetrics.Metrics
}

// Deps bundles every component the Server dispatches to. Handlers do not
// check their components for nil: an endpoint whose component was left
// nil dereferences a nil pointer when it is called.
type Deps struct {
	Assembler  *ctxassembly.Assembler
	Repository *ctxassembly.Repository
	Estimator  tokenest.Estimator
	Decoder    *visionocr.Decoder
	Facts      *factstore.Store
	Tasks      *task.Store
	Orch       *autodev.Orchestrator

	MaxFactsPerQuery int

	Log     obslog.Logger
	Metrics obsmetrics.Metrics
}

// New builds the Server and registers every §6 route.
func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = obslog.Noop{}
	}
	if d.Metrics == nil {
		d.Metrics = obsmetrics.Noop{}
	}
	if d.MaxFactsPerQuery <= 0 {
		d.MaxFactsPerQuery = 100
	}
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		echo:       e,
		assembler:  d.Assembler,
		repository: d.Repository,
		estimator:  d.Estimator,
		decoder:    d.Decoder,
		facts:      d.Facts,
		tasks:      d.Tasks,
		orch:       d.Orch,
		log:        d.Log,
		metrics:    d.Metrics,

		maxFactsPerQuery: d.MaxFactsPerQuery,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.echo.Group("/api/v1")

	api.POST("/contexts", s.handleStoreContext)
	api.POST("/contexts/search", s.handleSearchContext)

	api.POST("/vision/search", s.handleVisionSearch)
	api.POST("/vision/decode", s.handleVisionDecode)
	api.POST("/vision/index", s.handleVisionIndex)
	api.GET("/vision/index/jobs/:id", s.handleVisionJobStatus)

	api.POST("/facts", s.handleInsertFact)
	api.POST("/facts/query", s.handleQueryFacts)

	api.POST("/autodev/tasks", s.handleCreateTask)
	api.GET("/autodev/tasks", s.handleListTasks)
	api.GET("/autodev/tasks/:id", s.handleGetTask)
	api.POST("/autodev/tasks/:id/cancel", s.handleCancelTask)
}

// Handler returns the root http.Handler for use with net/http.Server.
func (s *Server) Handler() *echo.Echo { return s.echo }
