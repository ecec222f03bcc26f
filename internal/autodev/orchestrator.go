// Package autodev implements the autonomous task orchestrator of §6: a
// fixed clone -> search -> generate -> apply -> build -> test ->
// analyze -> policy -> publish pipeline, executed against pluggable
// Tools with a fixed (non-exponential) per-step retry delay — unlike
// the vision decode path's exponential backoff, a failed build or test
// step is usually deterministic and retrying faster just wastes time.
package autodev

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ragctx/internal/apperr"
	"ragctx/internal/obslog"
	"ragctx/internal/obsmetrics"
	"ragctx/internal/task"
)

// Orchestrator drives a single Task's Plan to completion.
type Orchestrator struct {
	registry       *Registry
	store          *task.Store
	baseDir        string
	maxStepRetries int
	stepRetryDelay time.Duration
	stepTimeout    time.Duration
	log            obslog.Logger
	metrics        obsmetrics.Metrics
	sleep          func(time.Duration)
}

// New constructs an Orchestrator. store is the single lock boundary for
// all Task state (§5) — Execute reads and writes the running task
// exclusively through it, never through a Task pointer handed directly
// to a goroutine. maxStepRetries is additional attempts beyond the
// first; stepRetryDelay is the fixed (not exponential) delay between
// attempts (§6). stepTimeout bounds each individual attempt's wall-clock
// time (§5, §6 "per-step timeout" on the Tool contract); zero means no
// per-attempt deadline beyond the caller's own context.
func New(registry *Registry, store *task.Store, baseDir string, maxStepRetries int, stepRetryDelay time.Duration, stepTimeout time.Duration, log obslog.Logger, metrics obsmetrics.Metrics) *Orchestrator {
	if log == nil {
		log = obslog.Noop{}
	}
	if metrics == nil {
		metrics = obsmetrics.Noop{}
	}
	return &Orchestrator{
		registry:       registry,
		store:          store,
		baseDir:        baseDir,
		maxStepRetries: maxStepRetries,
		stepRetryDelay: stepRetryDelay,
		stepTimeout:    stepTimeout,
		log:            log,
		metrics:        metrics,
		sleep:          time.Sleep,
	}
}

// Execute runs the Task identified by taskID's Plan (generating one if
// absent) to a terminal Status, returning the terminal error if any.
// Every read or write of shared Task state goes through o.store, which
// serializes it against concurrent readers (GET/list handlers) and
// concurrent writers (a cancel request) under one lock. The workspace is
// always cleaned up before returning.
func (o *Orchestrator) Execute(ctx context.Context, taskID string) error {
	t, err := o.store.Get(taskID)
	if err != nil {
		return err
	}

	if t.Plan == nil {
		plan := task.GeneratePlan(t.Objective)
		t.Plan = plan
		if err := o.store.Update(taskID, func(st *task.Task) { st.Plan = plan }); err != nil {
			return err
		}
	}
	if err := o.store.Update(taskID, func(st *task.Task) {
		st.Status = task.StatusExecuting
	}); err != nil {
		return err
	}

	ws, err := NewWorkspace(o.baseDir, taskID)
	if err != nil {
		_ = o.store.Update(taskID, func(st *task.Task) {
			st.Status = task.StatusFailed
			st.Error = err.Error()
		})
		return err
	}
	defer ws.Cleanup()

	outputs := make(map[string]map[string]any, len(t.Plan.Steps))

	for i := range t.Plan.Steps {
		idx := i

		cur, err := o.store.Get(taskID)
		if err != nil {
			return err
		}
		if cur.Status == task.StatusCancelled {
			_ = o.store.Update(taskID, func(st *task.Task) {
				st.Plan.Steps[idx].Status = task.StepSkipped
			})
			continue
		}

		step := t.Plan.Steps[i]
		wireStepInput(&t, &step, outputs)
		_ = o.store.Update(taskID, func(st *task.Task) {
			st.Plan.Steps[idx].Input = step.Input
		})

		out, runErr := o.runStepWithRetry(ctx, ws, taskID, idx, step)
		if runErr != nil {
			_ = o.store.Update(taskID, func(st *task.Task) {
				st.Plan.Steps[idx].Status = task.StepFailed
				st.Plan.Steps[idx].Error = runErr.Error()
				st.Status = task.StatusFailed
				st.Error = runErr.Error()
			})
			o.log.Error("autodev step failed", map[string]any{"task_id": taskID, "step": step.Name, "error": runErr.Error()})
			return runErr
		}
		step.Output = out
		outputs[step.Name] = out
		_ = o.store.Update(taskID, func(st *task.Task) {
			st.Plan.Steps[idx].Output = out
			st.Plan.Steps[idx].Status = task.StepSucceeded
		})

		if step.Name == "policy" {
			if err := enforcePolicyDecision(out); err != nil {
				_ = o.store.Update(taskID, func(st *task.Task) {
					st.Plan.Steps[idx].Status = task.StepFailed
					st.Status = task.StatusFailed
					st.Error = err.Error()
				})
				return err
			}
		}
		if prURL, ok := out["pr_url"].(string); ok && prURL != "" {
			_ = o.store.Update(taskID, func(st *task.Task) { st.PRUrl = prURL })
			o.metrics.IncCounter("autodev_pr_opened_total", map[string]string{"repo": t.Repo})
		}
	}

	final, err := o.store.Get(taskID)
	if err != nil {
		return err
	}
	if final.Status == task.StatusCancelled {
		return nil
	}
	return o.store.Update(taskID, func(st *task.Task) { st.Status = task.StatusPrCreated })
}

// wireStepInput threads the Task itself and prior steps' outputs into
// the next step's input (§4.4's "special wiring": the codegen patch
// flows into git_apply, and build/test/analyze/codegen outputs flow
// into the policy step's PolicyInput). t is read-only here: Repo,
// Objective, Constraints, RiskTier, Title, and BaseBranch never change
// once a task starts executing, so the snapshot taken at the top of
// Execute stays valid for the whole run.
func wireStepInput(t *task.Task, step *task.Step, outputs map[string]map[string]any) {
	if step.Input == nil {
		step.Input = map[string]any{}
	}
	switch step.Name {
	case "clone":
		step.Input["repo_url"] = t.Repo
		step.Input["base_branch"] = t.BaseBranch
	case "search":
		step.Input["pattern"] = firstQuotedOrToken(t.Objective)
	case "generate":
		if search, ok := outputs["search"]; ok {
			step.Input["hits"] = search["hits"]
		}
		if len(t.Constraints) > 0 {
			step.Input["constraints"] = t.Constraints
		}
	case "apply":
		if gen, ok := outputs["generate"]; ok {
			step.Input["diff"] = gen["diff"]
		}
		step.Input["branch"] = "autodev/" + t.ID
	case "policy":
		step.Input["repo"] = t.Repo
		step.Input["risk_tier"] = t.RiskTier
		if apply, ok := outputs["apply"]; ok {
			step.Input["diff"] = apply["diff"]
			step.Input["files_changed"] = apply["files_changed"]
		}
		if _, testRan := outputs["test"]; testRan {
			step.Input["tests_passed"] = true
		}
		if analyze, ok := outputs["analyze"]; ok {
			if clean, ok := analyze["clean"].(bool); ok {
				step.Input["secrets_found"] = !clean
			}
		}
		if gen, ok := outputs["generate"]; ok {
			if deps, ok := gen["new_dependencies"].([]string); ok {
				step.Input["new_dependencies"] = deps
			}
		}
		if build, ok := outputs["build"]; ok {
			if n, ok := build["clippy_warnings"].(int); ok {
				step.Input["clippy_warnings"] = n
			}
		}
	case "publish":
		owner, repo := splitOwnerRepo(t.Repo)
		step.Input["owner"] = owner
		step.Input["repo"] = repo
		step.Input["branch"] = "autodev/" + t.ID
		step.Input["base_branch"] = t.BaseBranch
		step.Input["title"] = t.Title
		step.Input["body"] = t.Objective
	}
}

// firstQuotedOrToken extracts the first double-quoted term of s, or its
// first whitespace token if none is quoted (§4.4 heuristic plan, step 1).
func firstQuotedOrToken(s string) string {
	if start := strings.IndexByte(s, '"'); start >= 0 {
		if end := strings.IndexByte(s[start+1:], '"'); end >= 0 {
			return s[start+1 : start+1+end]
		}
	}
	fields := strings.Fields(s)
	if len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// splitOwnerRepo parses "owner/repo" from the last two path segments of
// a git URL, stripping a trailing ".git" (§4.4 git_pr contract).
func splitOwnerRepo(repoURL string) (owner, repo string) {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return "", trimmed
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}

// runStepWithRetry dispatches step's tool up to maxStepRetries+1 times,
// publishing each attempt's status/attempt-count/error through
// o.store.Update so a concurrent GET on the task observes live progress
// instead of racing on the Step fields directly.
func (o *Orchestrator) runStepWithRetry(ctx context.Context, ws *Workspace, taskID string, idx int, step task.Step) (map[string]any, error) {
	tool, err := o.registry.Get(step.ToolName)
	if err != nil {
		return nil, apperr.Internal("resolve tool", err)
	}

	attempts := o.maxStepRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		_ = o.store.Update(taskID, func(st *task.Task) {
			st.Plan.Steps[idx].Attempt = attempt
			st.Plan.Steps[idx].Status = task.StepRunning
		})

		attemptCtx := ctx
		var cancel context.CancelFunc
		if o.stepTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, o.stepTimeout)
		}
		out, err := tool.Run(attemptCtx, ws, step.Input)
		if cancel != nil {
			if attemptCtx.Err() == context.DeadlineExceeded {
				err = apperr.Timeout(fmt.Sprintf("%s exceeded step timeout", step.ToolName))
			}
			cancel()
		}
		if err == nil {
			return out, nil
		}
		lastErr = err
		errMsg := err.Error()
		_ = o.store.Update(taskID, func(st *task.Task) {
			st.Plan.Steps[idx].Error = errMsg
		})
		o.metrics.IncCounter("autodev_step_retry_total", map[string]string{"tool": step.ToolName})
		if attempt < attempts {
			o.sleep(o.stepRetryDelay)
		}
	}
	return nil, lastErr
}

// enforcePolicyDecision turns a policy tool's output map into a hard
// failure when the decision denies the change (§6, §7).
func enforcePolicyDecision(out map[string]any) error {
	allow, _ := out["allow"].(bool)
	if allow {
		return nil
	}
	var reasons []string
	if raw, ok := out["deny_reasons"].([]string); ok {
		reasons = raw
	} else if raw, ok := out["deny_reasons"].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				reasons = append(reasons, s)
			}
		}
	}
	return apperr.Policy(reasons)
}
