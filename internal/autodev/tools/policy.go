package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ragctx/internal/apperr"
	"ragctx/internal/autodev"
	"ragctx/internal/task"
)

// PolicyConfig points the policy step at an OPA endpoint; when OPAURL is
// empty the step falls back to the local rule set (§4.4) instead of
// failing the pipeline outright.
type PolicyConfig struct {
	OPAURL     string
	Package    string
	Timeout    time.Duration
	AllowRepos []string // empty means no allowlist restriction
}

// PolicyCheck evaluates whether the generated change is safe to publish.
type PolicyCheck struct {
	Cfg    PolicyConfig
	Client *http.Client
}

func (PolicyCheck) Name() string { return "policy_check" }

type opaRequest struct {
	Input task.PolicyInput `json:"input"`
}

type opaResponse struct {
	Result struct {
		Allow       bool     `json:"allow"`
		DenyReasons []string `json:"deny_reasons"`
		Warnings    []string `json:"warnings"`
	} `json:"result"`
}

func (t PolicyCheck) Run(ctx context.Context, ws *autodev.Workspace, input map[string]any) (map[string]any, error) {
	pi := task.PolicyInput{
		TaskID:       ws.TaskID,
		Repo:         stringOf(input["repo"]),
		RiskTier:     stringOf(input["risk_tier"]),
		Diff:         stringOf(input["diff"]),
		ClippyWarnings: intOf(input["clippy_warnings"]),
		TestsPassed:  boolOf(input["tests_passed"]),
		SecretsFound: boolOf(input["secrets_found"]),
	}
	if files, ok := input["files_changed"].([]string); ok {
		pi.FilesChanged = files
	}
	if deps, ok := input["new_dependencies"].([]string); ok {
		pi.NewDependencies = deps
	}

	var decision task.PolicyDecision
	var err error
	if t.Cfg.OPAURL != "" {
		decision, err = t.evaluateRemote(ctx, pi)
	} else {
		decision = t.evaluateLocal(pi)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"allow":        decision.Allow,
		"deny_reasons": decision.DenyReasons,
		"warnings":     decision.Warnings,
	}, nil
}

func (t PolicyCheck) evaluateRemote(ctx context.Context, pi task.PolicyInput) (task.PolicyDecision, error) {
	client := t.Client
	if client == nil {
		timeout := t.Cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	body, err := json.Marshal(opaRequest{Input: pi})
	if err != nil {
		return task.PolicyDecision{}, apperr.Json("marshal policy request", err)
	}
	url := fmt.Sprintf("%s/v1/data/%s", t.Cfg.OPAURL, strings.ReplaceAll(t.Cfg.Package, "::", "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return task.PolicyDecision{}, apperr.Internal("build policy request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return task.PolicyDecision{}, apperr.Internal("policy request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return task.PolicyDecision{}, apperr.UpstreamError(resp.StatusCode, "opa evaluation failed")
	}

	var out opaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return task.PolicyDecision{}, apperr.Json("decode policy response", err)
	}
	return task.PolicyDecision{
		Allow:       out.Result.Allow,
		DenyReasons: out.Result.DenyReasons,
		Warnings:    out.Result.Warnings,
	}, nil
}

// evaluateLocal applies the local rule set when no OPA endpoint is
// configured (§4.4): deny on high risk tier, failing tests, found
// secrets, any .sql file in the change, or (when AllowRepos is set) a
// repo outside the allowlist; warn on clippy warnings or new
// dependencies; allow otherwise.
func (t PolicyCheck) evaluateLocal(pi task.PolicyInput) task.PolicyDecision {
	var denyReasons, warnings []string

	if strings.EqualFold(pi.RiskTier, "high") {
		denyReasons = append(denyReasons, "risk tier is high")
	}
	if !pi.TestsPassed {
		denyReasons = append(denyReasons, "tests did not pass")
	}
	if pi.SecretsFound {
		denyReasons = append(denyReasons, "secrets were found in the change")
	}
	for _, f := range pi.FilesChanged {
		if strings.HasSuffix(f, ".sql") {
			denyReasons = append(denyReasons, fmt.Sprintf("changed file %q is a .sql file", f))
			break
		}
	}
	if len(t.Cfg.AllowRepos) > 0 && !contains(t.Cfg.AllowRepos, pi.Repo) {
		denyReasons = append(denyReasons, fmt.Sprintf("repo %q is not in the local allowlist", pi.Repo))
	}

	if pi.ClippyWarnings > 0 {
		warnings = append(warnings, fmt.Sprintf("%d clippy warnings", pi.ClippyWarnings))
	}
	if len(pi.NewDependencies) > 0 {
		warnings = append(warnings, fmt.Sprintf("%d new dependencies", len(pi.NewDependencies)))
	}

	return task.PolicyDecision{Allow: len(denyReasons) == 0, DenyReasons: denyReasons, Warnings: warnings}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func boolOf(v any) bool {
	b, _ := v.(bool)
	return b
}

func intOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
