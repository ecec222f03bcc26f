// Command ragctxd runs the context-assembly service: the token-budget
// context assembler, the resilient vision/OCR decode path, the fact
// store, and the autonomous task orchestrator, behind one HTTP server
// (§6), following the graceful-shutdown shape of cmd/webui in the
// teacher repo.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ragctx/internal/autodev"
	"ragctx/internal/autodev/tools"
	"ragctx/internal/config"
	"ragctx/internal/ctxassembly"
	"ragctx/internal/factstore"
	"ragctx/internal/httpapi"
	"ragctx/internal/obslog"
	"ragctx/internal/obsmetrics"
	"ragctx/internal/task"
	"ragctx/internal/tokenest"
	"ragctx/internal/visionocr"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obslog.New(os.Stdout, cfg.LogLevel)
	metrics := obsmetrics.NewOtel("ragctxd")

	estimator := tokenest.NewDefault()
	budget := ctxassembly.FromConfig(cfg.TokenBudget)
	summarizer := ctxassembly.FallbackSummarizer(ctxassembly.LLMSummarizerConfig{
		BaseURL:    cfg.Autodev.LLM.BaseURL,
		APIKey:     cfg.Autodev.LLM.APIKey,
		Model:      cfg.Autodev.LLM.Model,
		MaxRetries: 2,
	})
	assembler := ctxassembly.New(budget, estimator, summarizer, logger.With(map[string]any{"component": "ctxassembly"}), metrics)
	repository := ctxassembly.NewRepository()

	transport := visionocr.NewHTTPTransport(cfg.Vision.ServiceURL, cfg.Vision.APIKey, time.Duration(cfg.Vision.TimeoutMS)*time.Millisecond)
	decoder := visionocr.NewDecoder(
		visionocr.ClientConfig{
			Enabled:                 cfg.Vision.Enabled,
			ServiceURL:              cfg.Vision.ServiceURL,
			APIKey:                  cfg.Vision.APIKey,
			Timeout:                 time.Duration(cfg.Vision.TimeoutMS) * time.Millisecond,
			MaxRegionsPerRequest:    cfg.Vision.MaxRegionsPerRequest,
			DefaultFidelity:         cfg.Vision.DefaultFidelity,
			CacheTTL:                time.Duration(cfg.Vision.CacheTTLSeconds) * time.Second,
			CacheSize:               cfg.Vision.CacheSize,
			MaxConcurrentDecodes:    cfg.Vision.MaxConcurrentDecodes,
			RetryAttempts:           cfg.Vision.MaxRetries,
			RetryBackoff:            time.Duration(cfg.Vision.RetryBackoffMS) * time.Millisecond,
			CircuitFailureThreshold: cfg.Vision.CircuitThreshold,
			CircuitResetTimeout:     time.Duration(cfg.Vision.CircuitCooldownSecs) * time.Second,
		},
		transport,
		visionocr.NewCache(time.Duration(cfg.Vision.CacheTTLSeconds)*time.Second, cfg.Vision.CacheSize, nil),
		visionocr.NewBreaker(cfg.Vision.CircuitThreshold, time.Duration(cfg.Vision.CircuitCooldownSecs)*time.Second, nil),
		nil,
		logger.With(map[string]any{"component": "visionocr"}),
		metrics,
	)

	ctx := context.Background()
	factStore, err := factstore.New(ctx, factstore.Config{
		QdrantDSN:           cfg.Facts.QdrantDSN,
		CollectionName:      cfg.Facts.CollectionName,
		VectorSize:          cfg.Facts.VectorSize,
		DedupEnabled:        cfg.Facts.DedupEnabled,
		ConfidenceThreshold: cfg.Facts.ConfidenceThreshold,
		MaxFactsPerQuery:    cfg.Facts.MaxFactsPerQuery,
	}, logger.With(map[string]any{"component": "factstore"}))
	if err != nil {
		log.Fatalf("connect fact store: %v", err)
	}
	defer factStore.Close()

	registry := autodev.NewRegistry()
	gitCfg := tools.GitConfig{GitHubToken: cfg.Autodev.Git.GitHubToken, UserAgent: cfg.Autodev.Git.UserAgent}
	registry.Register(tools.GitClone{Cfg: gitCfg})
	registry.Register(tools.GitApply{Cfg: gitCfg})
	registry.Register(tools.GitPushPR{Cfg: gitCfg})
	registry.Register(tools.CodeSearch{MaxResults: cfg.Autodev.SearchMaxResults})
	registry.Register(tools.Codegen{Cfg: tools.CodegenConfig{
		Provider: cfg.Autodev.LLM.Provider,
		BaseURL:  cfg.Autodev.LLM.BaseURL,
		APIKey:   cfg.Autodev.LLM.APIKey,
		Model:    cfg.Autodev.LLM.Model,
	}})
	runnerCfg := tools.RunnerConfig{
		ContainerRuntime: "docker",
		Image:            cfg.Autodev.SandboxImage,
		BuildCommand:     "go build ./...",
		TestCommand:      "go test ./...",
	}
	registry.Register(tools.RunnerBuild{Cfg: runnerCfg})
	registry.Register(tools.RunnerTest{Cfg: runnerCfg})
	registry.Register(tools.StaticAnalyze{})
	registry.Register(tools.PolicyCheck{Cfg: tools.PolicyConfig{
		OPAURL:      cfg.Autodev.OPAURL,
		Package:     cfg.Autodev.PolicyPackage,
		AllowRepos:  cfg.Autodev.AllowlistRepos,
	}})

	workspaceBase := os.TempDir()
	taskStore := task.NewStore()
	orch := autodev.New(
		registry,
		taskStore,
		workspaceBase,
		cfg.Autodev.MaxStepRetries,
		2*time.Second,
		time.Duration(cfg.Autodev.RunnerTimeoutSecs)*time.Second,
		logger.With(map[string]any{"component": "autodev"}),
		metrics,
	)

	server := httpapi.New(httpapi.Deps{
		Assembler:  assembler,
		Repository: repository,
		Estimator:  estimator,
		Decoder:    decoder,
		Facts:      factStore,
		Tasks:      taskStore,
		Orch:       orch,
		Log:        logger,
		Metrics:    metrics,

		MaxFactsPerQuery: cfg.Facts.MaxFactsPerQuery,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: server.Handler()}

	go func() {
		log.Printf("ragctxd listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	} else {
		log.Printf("ragctxd stopped")
	}
}
