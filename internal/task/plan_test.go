package task

import "testing"

func TestGeneratePlan_IsIdempotentForTheSameObjective(t *testing.T) {
	p1 := GeneratePlan(`fix "off by one" bug in parser`)
	p2 := GeneratePlan(`fix "off by one" bug in parser`)

	if len(p1.Steps) != len(p2.Steps) {
		t.Fatalf("step count differs: %d vs %d", len(p1.Steps), len(p2.Steps))
	}
	for i := range p1.Steps {
		a, b := p1.Steps[i], p2.Steps[i]
		if a.Name != b.Name || a.ToolName != b.ToolName {
			t.Fatalf("step %d diverged: %+v vs %+v", i, a, b)
		}
	}
}

func TestGeneratePlan_FixedNineStepPipeline(t *testing.T) {
	p := GeneratePlan("do the thing")
	wantTools := []string{
		"git_clone", "code_search", "codegen", "git_apply",
		"runner_build", "runner_test", "static_analyze", "policy_check", "git_push_pr",
	}
	if len(p.Steps) != len(wantTools) {
		t.Fatalf("expected %d steps, got %d", len(wantTools), len(p.Steps))
	}
	for i, tool := range wantTools {
		if p.Steps[i].ToolName != tool {
			t.Fatalf("step %d: expected tool %q, got %q", i, tool, p.Steps[i].ToolName)
		}
		if p.Steps[i].Status != StepPending {
			t.Fatalf("step %d: expected StepPending, got %v", i, p.Steps[i].Status)
		}
	}
}
