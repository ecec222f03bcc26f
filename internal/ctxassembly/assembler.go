package ctxassembly

import (
	"context"
	"sort"

	"ragctx/internal/apperr"
	"ragctx/internal/obslog"
	"ragctx/internal/obsmetrics"
	"ragctx/internal/tokenest"
)

// AdaptiveContext is the assembler's successful result: the packed
// components plus the realized BudgetAllocation.
type AdaptiveContext struct {
	System       string
	RunningBrief string
	RecentTurns  []string
	Artifacts    []Artifact
	Allocation   BudgetAllocation
	Summarized   bool
}

// Request bundles the assembler's inputs (§4.1).
type Request struct {
	SystemPrompt string
	RunningBrief string
	RecentTurns  []string
	Artifacts    []Artifact
	Query        string
}

// Assembler packs a Request into an AdaptiveContext under BudgetConfig,
// prioritizing artifacts and summarizing older material on overflow.
type Assembler struct {
	budget     BudgetConfig
	estimator  tokenest.Estimator
	summarizer Summarizer
	log        obslog.Logger
	metrics    obsmetrics.Metrics
}

// New constructs an Assembler. summarizer may be nil, in which case
// overflow that cannot be resolved without summarization fails immediately
// with BudgetExceeded.
func New(budget BudgetConfig, estimator tokenest.Estimator, summarizer Summarizer, log obslog.Logger, metrics obsmetrics.Metrics) *Assembler {
	if log == nil {
		log = obslog.Noop{}
	}
	if metrics == nil {
		metrics = obsmetrics.Noop{}
	}
	return &Assembler{budget: budget, estimator: estimator, summarizer: summarizer, log: log, metrics: metrics}
}

// Assemble runs prioritization, packing, and — on overflow — the
// summarize-then-retry loop of §4.1.
func (a *Assembler) Assemble(ctx context.Context, req Request) (AdaptiveContext, error) {
	if err := a.budget.Validate(); err != nil {
		return AdaptiveContext{}, err
	}

	artifacts := a.prioritize(req.Artifacts, req.Query)

	systemTok := a.estimator.Estimate(req.SystemPrompt)
	briefTok := a.estimator.Estimate(req.RunningBrief)
	turnsTok := 0
	for _, t := range req.RecentTurns {
		turnsTok += a.estimator.Estimate(t)
	}
	artifactTok := sumTokens(artifacts)

	total := systemTok + briefTok + turnsTok + artifactTok + a.budget.Completion
	if total <= a.budget.MaxTotal {
		alloc, err := newAllocation(systemTok, briefTok, turnsTok, artifactTok, a.budget.Completion, a.budget.MaxTotal)
		if err != nil {
			return AdaptiveContext{}, err
		}
		return AdaptiveContext{
			System:       req.SystemPrompt,
			RunningBrief: req.RunningBrief,
			RecentTurns:  req.RecentTurns,
			Artifacts:    artifacts,
			Allocation:   alloc,
		}, nil
	}

	a.metrics.IncCounter("ctxassembly_summarize_total", nil)
	return a.summarizeThenRetry(ctx, req, artifacts)
}

// prioritize sorts by Priority descending then RelevanceScore.Total
// descending (stable, preserving insertion order on ties), then truncates
// to RecommendedSnippetCount (§4.1.1).
func (a *Assembler) prioritize(artifacts []Artifact, query string) []Artifact {
	out := make([]Artifact, len(artifacts))
	for i, art := range artifacts {
		art.insertionOrder = i
		out[i] = art
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Relevance.Total > out[j].Relevance.Total
	})
	n := a.budget.RecommendedSnippetCount()
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func sumTokens(artifacts []Artifact) int {
	sum := 0
	for _, a := range artifacts {
		sum += a.TokenCount
	}
	return sum
}

// summarizeThenRetry implements §4.1 step 4: concatenate brief + all but
// the last turn, summarize to running_brief tokens, keep only the last
// turn, shrink artifacts to max(4, ceil(2*n/3)), and re-estimate once.
func (a *Assembler) summarizeThenRetry(ctx context.Context, req Request, artifacts []Artifact) (AdaptiveContext, error) {
	if a.summarizer == nil {
		return AdaptiveContext{}, apperr.BudgetExceeded(0, a.budget.MaxTotal)
	}

	toSummarize := make([]string, 0, len(req.RecentTurns)+1)
	toSummarize = append(toSummarize, req.RunningBrief)
	var lastTurn string
	hadTurns := len(req.RecentTurns) > 0
	if hadTurns {
		toSummarize = append(toSummarize, req.RecentTurns[:len(req.RecentTurns)-1]...)
		lastTurn = req.RecentTurns[len(req.RecentTurns)-1]
	}

	summary, err := a.summarizer.Summarize(ctx, toSummarize, a.budget.RunningBrief)
	if err != nil {
		return AdaptiveContext{}, apperr.Internal("summarization failed", err)
	}

	var keptTurns []string
	if hadTurns {
		keptTurns = []string{lastTurn}
	}

	shrunk := shrinkArtifacts(artifacts)

	systemTok := a.estimator.Estimate(req.SystemPrompt)
	briefTok := a.estimator.Estimate(summary)
	turnsTok := 0
	for _, t := range keptTurns {
		turnsTok += a.estimator.Estimate(t)
	}
	artifactTok := sumTokens(shrunk)

	total := systemTok + briefTok + turnsTok + artifactTok + a.budget.Completion
	if total > a.budget.MaxTotal {
		a.log.Error("budget exceeded after summarize-then-retry", map[string]any{"total": total, "max_total": a.budget.MaxTotal})
		return AdaptiveContext{}, apperr.BudgetExceeded(total, a.budget.MaxTotal)
	}

	alloc, err := newAllocation(systemTok, briefTok, turnsTok, artifactTok, a.budget.Completion, a.budget.MaxTotal)
	if err != nil {
		return AdaptiveContext{}, err
	}

	return AdaptiveContext{
		System:       req.SystemPrompt,
		RunningBrief: summary,
		RecentTurns:  keptTurns,
		Artifacts:    shrunk,
		Allocation:   alloc,
		Summarized:   true,
	}, nil
}

// shrinkArtifacts drops lowest-priority items first down to
// max(4, ceil(2*n/3)) per §4.1 step 4d. artifacts is assumed already
// sorted by priority/relevance descending (keep the prefix).
func shrinkArtifacts(artifacts []Artifact) []Artifact {
	n := len(artifacts)
	target := (2*n + 2) / 3 // ceil(2n/3)
	if target < 4 {
		target = 4
	}
	if target > n {
		target = n
	}
	return artifacts[:target]
}
