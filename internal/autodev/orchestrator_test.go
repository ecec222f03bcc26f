package autodev

import (
	"context"
	"testing"
	"time"

	"ragctx/internal/apperr"
	"ragctx/internal/obsmetrics"
	"ragctx/internal/task"
)

// fakeTool runs fn for every invocation, letting each test script the
// exact outputs/errors a step produces without a real git/container/LLM
// dependency.
type fakeTool struct {
	name string
	fn   func(input map[string]any, attempt int) (map[string]any, error)
	runs int
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Run(_ context.Context, _ *Workspace, input map[string]any) (map[string]any, error) {
	f.runs++
	return f.fn(input, f.runs)
}

func ok(out map[string]any) func(map[string]any, int) (map[string]any, error) {
	return func(map[string]any, int) (map[string]any, error) { return out, nil }
}

func newTestOrchestrator(t *testing.T, registry *Registry, store *task.Store) *Orchestrator {
	t.Helper()
	o := New(registry, store, t.TempDir(), 1, 0, 0, nil, nil)
	o.sleep = func(time.Duration) {} // don't actually sleep in tests
	return o
}

func buildRegistry(overrides map[string]*fakeTool) *Registry {
	defaults := map[string]*fakeTool{
		"git_clone":      {name: "git_clone", fn: ok(map[string]any{"repo_dir": "/repo"})},
		"code_search":    {name: "code_search", fn: ok(map[string]any{"hits": nil})},
		"codegen":        {name: "codegen", fn: ok(map[string]any{"diff": "--- a\n+++ b\n"})},
		"git_apply":      {name: "git_apply", fn: ok(map[string]any{"branch": "autodev/t1", "commit": "abc123", "files_changed": []string{"a.go"}})},
		"runner_build":   {name: "runner_build", fn: ok(map[string]any{"output": "build ok"})},
		"runner_test":    {name: "runner_test", fn: ok(map[string]any{"output": "tests ok"})},
		"static_analyze": {name: "static_analyze", fn: ok(map[string]any{"clean": true})},
		"policy_check":   {name: "policy_check", fn: ok(map[string]any{"allow": true})},
		"git_push_pr":    {name: "git_push_pr", fn: ok(map[string]any{"pr_url": "https://github.com/acme/widget/pull/1", "pr_number": 1})},
	}
	for name, tool := range overrides {
		defaults[name] = tool
	}
	r := NewRegistry()
	for _, tool := range defaults {
		r.Register(tool)
	}
	return r
}

// seedTask constructs and stores a pending Task under store so Execute
// can be driven by ID the way the HTTP handler drives it.
func seedTask(store *task.Store, id string) {
	store.Put(&task.Task{
		ID:         id,
		Title:      "fix bug",
		Repo:       "https://github.com/acme/widget.git",
		BaseBranch: "main",
		Objective:  `fix "off by one" bug`,
		RiskTier:   "low",
		Status:     task.StatusPending,
	})
}

func TestExecute_HappyPathReachesPrCreated(t *testing.T) {
	registry := buildRegistry(nil)
	store := task.NewStore()
	o := newTestOrchestrator(t, registry, store)
	mock := obsmetrics.NewMock()
	o.metrics = mock
	seedTask(store, "t1")

	if err := o.Execute(context.Background(), "t1"); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	tk, err := store.Get("t1")
	if err != nil {
		t.Fatalf("unexpected error fetching task: %v", err)
	}
	if tk.Status != task.StatusPrCreated {
		t.Fatalf("expected StatusPrCreated, got %v", tk.Status)
	}
	if tk.PRUrl != "https://github.com/acme/widget/pull/1" {
		t.Fatalf("expected pr url threaded onto task, got %q", tk.PRUrl)
	}
	for _, step := range tk.Plan.Steps {
		if step.Status != task.StepSucceeded {
			t.Fatalf("step %s: expected StepSucceeded, got %v", step.Name, step.Status)
		}
	}
	if mock.Count("autodev_pr_opened_total") != 1 {
		t.Fatalf("expected the pr-opened counter to increment once, got %d", mock.Count("autodev_pr_opened_total"))
	}
}

// TestExecute_PolicyDenialStopsBeforePublish is the spec's scenario 6:
// secrets found -> policy denies -> task fails -> git_push_pr never runs.
func TestExecute_PolicyDenialStopsBeforePublish(t *testing.T) {
	publish := &fakeTool{name: "git_push_pr", fn: ok(map[string]any{"pr_url": "should-not-happen"})}
	policy := &fakeTool{name: "policy_check", fn: func(map[string]any, int) (map[string]any, error) {
		return map[string]any{"allow": false, "deny_reasons": []string{"Secrets detected in changes"}}, nil
	}}
	registry := buildRegistry(map[string]*fakeTool{
		"policy_check": policy,
		"git_push_pr":  publish,
	})
	store := task.NewStore()
	o := newTestOrchestrator(t, registry, store)
	mock := obsmetrics.NewMock()
	o.metrics = mock
	seedTask(store, "t2")

	err := o.Execute(context.Background(), "t2")
	if err == nil {
		t.Fatal("expected policy denial to surface an error")
	}
	if apperr.CodeOf(err) != apperr.CodeInternal {
		t.Fatalf("expected a Policy error, got %v", err)
	}
	tk, getErr := store.Get("t2")
	if getErr != nil {
		t.Fatalf("unexpected error fetching task: %v", getErr)
	}
	if tk.Status != task.StatusFailed {
		t.Fatalf("expected StatusFailed, got %v", tk.Status)
	}
	if publish.runs != 0 {
		t.Fatalf("expected git_push_pr to never run, ran %d times", publish.runs)
	}
	if tk.PRUrl != "" {
		t.Fatalf("expected no PR url on a denied task, got %q", tk.PRUrl)
	}
}

func TestExecute_RetriesTransientStepFailure(t *testing.T) {
	flaky := &fakeTool{name: "runner_build", fn: func(_ map[string]any, attempt int) (map[string]any, error) {
		if attempt == 1 {
			return nil, apperr.Build("transient failure", nil)
		}
		return map[string]any{"output": "build ok"}, nil
	}}
	registry := buildRegistry(map[string]*fakeTool{"runner_build": flaky})
	store := task.NewStore()
	o := newTestOrchestrator(t, registry, store)
	seedTask(store, "t3")

	if err := o.Execute(context.Background(), "t3"); err != nil {
		t.Fatalf("expected eventual success after retry, got %v", err)
	}
	if flaky.runs != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", flaky.runs)
	}
}

func TestExecute_ExhaustedRetriesFailsTask(t *testing.T) {
	alwaysFails := &fakeTool{name: "runner_test", fn: func(map[string]any, int) (map[string]any, error) {
		return nil, apperr.TestFailed("tests never pass", nil)
	}}
	registry := buildRegistry(map[string]*fakeTool{"runner_test": alwaysFails})
	store := task.NewStore()
	o := newTestOrchestrator(t, registry, store)
	seedTask(store, "t4")

	err := o.Execute(context.Background(), "t4")
	if err == nil {
		t.Fatal("expected exhausted retries to fail the task")
	}
	tk, getErr := store.Get("t4")
	if getErr != nil {
		t.Fatalf("unexpected error fetching task: %v", getErr)
	}
	if tk.Status != task.StatusFailed {
		t.Fatalf("expected StatusFailed, got %v", tk.Status)
	}
	// maxStepRetries=1 means two attempts total.
	if alwaysFails.runs != 2 {
		t.Fatalf("expected 2 attempts before giving up, got %d", alwaysFails.runs)
	}
}

func TestExecute_SkipsRemainingStepsOnceCancelled(t *testing.T) {
	cloneRuns := 0
	store := task.NewStore()
	cancelling := &fakeTool{name: "git_clone"}
	cancelling.fn = func(map[string]any, int) (map[string]any, error) {
		cloneRuns++
		_ = store.Update("t5", func(st *task.Task) { st.Status = task.StatusCancelled })
		return map[string]any{"repo_dir": "/repo"}, nil
	}
	codegenCalled := &fakeTool{name: "codegen", fn: ok(map[string]any{"diff": "unused"})}
	registry := buildRegistry(map[string]*fakeTool{
		"git_clone": cancelling,
		"codegen":   codegenCalled,
	})
	o := newTestOrchestrator(t, registry, store)
	seedTask(store, "t5")

	if err := o.Execute(context.Background(), "t5"); err != nil {
		t.Fatalf("expected cancellation to end the run cleanly, got error: %v", err)
	}
	tk, err := store.Get("t5")
	if err != nil {
		t.Fatalf("unexpected error fetching task: %v", err)
	}
	if tk.Status != task.StatusCancelled {
		t.Fatalf("expected cancellation to survive to the final status, got %v", tk.Status)
	}
	if cloneRuns != 1 {
		t.Fatalf("expected clone to run exactly once, ran %d", cloneRuns)
	}
	if codegenCalled.runs != 0 {
		t.Fatalf("expected codegen to be skipped after cancellation, ran %d", codegenCalled.runs)
	}
	foundSkipped := false
	for _, step := range tk.Plan.Steps {
		if step.Name == "generate" && step.Status == task.StepSkipped {
			foundSkipped = true
		}
	}
	if !foundSkipped {
		t.Fatal("expected the generate step to be marked skipped after cancellation")
	}
}

func TestWireStepInput_ThreadsCodegenDiffIntoApply(t *testing.T) {
	tk := &task.Task{ID: "t6"}
	applyStep := task.Step{Name: "apply", ToolName: "git_apply"}
	outputs := map[string]map[string]any{
		"generate": {"diff": "--- a\n+++ b\n"},
	}
	wireStepInput(tk, &applyStep, outputs)
	if applyStep.Input["diff"] != "--- a\n+++ b\n" {
		t.Fatalf("expected codegen diff threaded into apply step, got %v", applyStep.Input["diff"])
	}
	if applyStep.Input["branch"] != "autodev/t6" {
		t.Fatalf("expected branch autodev/t6, got %v", applyStep.Input["branch"])
	}
}

func TestWireStepInput_ThreadsConstraintsIntoGenerate(t *testing.T) {
	tk := &task.Task{ID: "t7", Constraints: []string{"no new dependencies", "keep tests green"}}
	genStep := task.Step{Name: "generate", ToolName: "codegen"}
	wireStepInput(tk, &genStep, map[string]map[string]any{})
	constraints, ok := genStep.Input["constraints"].([]string)
	if !ok || len(constraints) != 2 {
		t.Fatalf("expected constraints threaded into generate step, got %v", genStep.Input["constraints"])
	}
}

func TestSplitOwnerRepo(t *testing.T) {
	cases := map[string][2]string{
		"https://github.com/acme/widget.git": {"acme", "widget"},
		"https://github.com/acme/widget":     {"acme", "widget"},
	}
	for url, want := range cases {
		owner, repo := splitOwnerRepo(url)
		if owner != want[0] || repo != want[1] {
			t.Fatalf("splitOwnerRepo(%q) = (%q, %q), want (%q, %q)", url, owner, repo, want[0], want[1])
		}
	}
}

// TestStore_UpdateSerializesConcurrentTaskMutation exercises the fix for
// the orchestrator/cancel data race directly: concurrent Updates against
// the same task must all land (none lost to an unsynchronized
// read-modify-write), and Get must never observe a torn Plan.
func TestStore_UpdateSerializesConcurrentTaskMutation(t *testing.T) {
	store := task.NewStore()
	seedTask(store, "race-1")
	if err := store.Update("race-1", func(st *task.Task) {
		st.Plan = &task.Plan{Steps: []task.Step{{Name: "clone", ToolName: "git_clone"}}}
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func(n int) {
			_ = store.Update("race-1", func(st *task.Task) {
				st.Plan.Steps[0].Attempt = n
			})
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 50; i++ {
		<-done
	}

	tk, err := store.Get("race-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tk.Plan.Steps) != 1 {
		t.Fatalf("expected exactly one step, got %d", len(tk.Plan.Steps))
	}
}
