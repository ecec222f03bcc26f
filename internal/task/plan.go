package task

// GeneratePlan produces the fixed nine-step pipeline of §6: clone,
// search, generate, apply, build, test, analyze, policy, then push the
// branch and open a PR. The plan is heuristic rather than LLM-authored — every
// task walks the same pipeline, and each step's Tool decides how much
// work it actually has to do.
func GeneratePlan(objective string) *Plan {
	steps := []Step{
		{Name: "clone", ToolName: "git_clone", Status: StepPending},
		{Name: "search", ToolName: "code_search", Status: StepPending, Input: map[string]any{"objective": objective}},
		{Name: "generate", ToolName: "codegen", Status: StepPending, Input: map[string]any{"objective": objective}},
		{Name: "apply", ToolName: "git_apply", Status: StepPending},
		{Name: "build", ToolName: "runner_build", Status: StepPending},
		{Name: "test", ToolName: "runner_test", Status: StepPending},
		{Name: "analyze", ToolName: "static_analyze", Status: StepPending},
		{Name: "policy", ToolName: "policy_check", Status: StepPending},
		{Name: "publish", ToolName: "git_push_pr", Status: StepPending},
	}
	return &Plan{Steps: steps}
}
