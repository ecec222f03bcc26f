// Package tools provides the concrete autodev.Tool implementations the
// orchestrator's fixed pipeline dispatches to (§6): git operations,
// container build/test, code search, LLM code generation, static
// analysis, and policy evaluation.
package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	gogithub "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"ragctx/internal/apperr"
	"ragctx/internal/autodev"
)

// GitConfig carries the credentials and author identity git operations
// run under.
type GitConfig struct {
	GitHubToken string
	UserAgent   string
	AuthorName  string
	AuthorEmail string
}

// GitClone clones the task's target repository into the workspace.
type GitClone struct {
	Cfg GitConfig
}

func (GitClone) Name() string { return "git_clone" }

func (t GitClone) Run(ctx context.Context, ws *autodev.Workspace, input map[string]any) (map[string]any, error) {
	repoURL, _ := input["repo_url"].(string)
	if repoURL == "" {
		return nil, apperr.Invalid("git_clone requires repo_url")
	}
	baseBranch, _ := input["base_branch"].(string)
	auth := t.authMethod()
	opts := &git.CloneOptions{
		URL:          repoURL,
		Auth:         auth,
		Depth:        1,
		SingleBranch: baseBranch != "",
	}
	if baseBranch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(baseBranch)
	}
	_, err := git.PlainCloneContext(ctx, ws.RepoDir, false, opts)
	if err != nil {
		return nil, apperr.Git("clone repository", err)
	}
	return map[string]any{"repo_dir": ws.RepoDir}, nil
}

func (t GitClone) authMethod() *http.BasicAuth {
	if t.Cfg.GitHubToken == "" {
		return nil
	}
	return &http.BasicAuth{Username: "x-access-token", Password: t.Cfg.GitHubToken}
}

// GitApply applies a unified diff produced by the codegen step to the
// cloned working tree, then stages and commits it. Applying via the
// git CLI rather than go-git's limited patch support matches the
// codeeval subprocess pattern used elsewhere for external tool calls.
type GitApply struct {
	Cfg GitConfig
}

func (GitApply) Name() string { return "git_apply" }

func (t GitApply) Run(ctx context.Context, ws *autodev.Workspace, input map[string]any) (map[string]any, error) {
	diff, _ := input["diff"].(string)
	if strings.TrimSpace(diff) == "" {
		return nil, apperr.Invalid("git_apply requires a non-empty diff")
	}
	branch, _ := input["branch"].(string)
	if branch == "" {
		branch = "autodev/" + ws.TaskID
	}

	repo, err := git.PlainOpen(ws.RepoDir)
	if err != nil {
		return nil, apperr.Git("open repository", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, apperr.Git("open worktree", err)
	}
	headRef, err := repo.Head()
	if err != nil {
		return nil, apperr.Git("resolve head", err)
	}
	branchRef := plumbing.NewBranchReferenceName(branch)
	if err := wt.Checkout(&git.CheckoutOptions{Hash: headRef.Hash(), Branch: branchRef, Create: true}); err != nil {
		return nil, apperr.Git("create branch", err)
	}

	if err := t.applyPatch(ctx, ws.RepoDir, diff); err != nil {
		return nil, err
	}
	filesChanged := changedFiles(diff)

	if _, err := wt.Add("."); err != nil {
		return nil, apperr.Git("stage changes", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, apperr.Git("read worktree status", err)
	}
	if status.IsClean() {
		return nil, apperr.Git("nothing to commit after applying diff", nil)
	}
	sig := &object.Signature{Name: authorOr(t.Cfg.AuthorName, "ragctx-autodev"), Email: authorOr(t.Cfg.AuthorEmail, "autodev@ragctx.local")}
	commitHash, err := wt.Commit("autodev: apply generated change", &git.CommitOptions{Author: sig})
	if err != nil {
		return nil, apperr.Git("commit changes", err)
	}
	return map[string]any{
		"branch":        branch,
		"commit":        commitHash.String(),
		"files_changed": filesChanged,
		"diff":          diff,
	}, nil
}

// applyPatch tries `git apply --reject` first and, on failure, retries
// with -p1 (§4.4 git_apply contract).
func (t GitApply) applyPatch(ctx context.Context, repoDir, diff string) error {
	if err := runGitApply(ctx, repoDir, diff, "--reject"); err == nil {
		return nil
	}
	if err := runGitApply(ctx, repoDir, diff, "-p1"); err != nil {
		return apperr.Git(fmt.Sprintf("apply diff: %s", err.Error()), err)
	}
	return nil
}

func runGitApply(ctx context.Context, repoDir, diff string, extraArg string) error {
	cmd := exec.CommandContext(ctx, "git", "apply", "--whitespace=fix", extraArg, "-")
	cmd.Dir = repoDir
	cmd.Stdin = strings.NewReader(diff)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s", stderr.String())
	}
	return nil
}

func authorOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func changedFiles(diff string) []string {
	var files []string
	seen := map[string]struct{}{}
	for _, line := range strings.Split(diff, "\n") {
		if !strings.HasPrefix(line, "+++ b/") && !strings.HasPrefix(line, "--- a/") {
			continue
		}
		path := strings.TrimPrefix(strings.TrimPrefix(line, "+++ b/"), "--- a/")
		if path == "" || path == "/dev/null" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}
	return files
}

// GitPushPR pushes the committed branch and opens a pull request
// against the task's target repository.
type GitPushPR struct {
	Cfg GitConfig
}

func (GitPushPR) Name() string { return "git_push_pr" }

func (t GitPushPR) Run(ctx context.Context, ws *autodev.Workspace, input map[string]any) (map[string]any, error) {
	owner, _ := input["owner"].(string)
	repoName, _ := input["repo"].(string)
	branch, _ := input["branch"].(string)
	base, _ := input["base_branch"].(string)
	title, _ := input["title"].(string)
	body, _ := input["body"].(string)
	if owner == "" || repoName == "" {
		return nil, apperr.Invalid("git_push_pr requires owner and repo")
	}
	if branch == "" {
		branch = "autodev/" + ws.TaskID
	}
	if base == "" {
		base = "main"
	}

	repo, err := git.PlainOpen(ws.RepoDir)
	if err != nil {
		return nil, apperr.Git("open repository", err)
	}
	refSpec := config.RefSpec(fmt.Sprintf("HEAD:refs/heads/%s", branch))
	auth := GitClone{Cfg: t.Cfg}.authMethod()
	if err := repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{refSpec},
		Auth:       auth,
	}); err != nil {
		return nil, apperr.Git("push branch", err)
	}

	gh := gogithub.NewClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: t.Cfg.GitHubToken})))
	pr, _, err := gh.PullRequests.Create(ctx, owner, repoName, &gogithub.NewPullRequest{
		Title: gogithub.String(title),
		Head:  gogithub.String(branch),
		Base:  gogithub.String(base),
		Body:  gogithub.String(body),
	})
	if err != nil {
		return nil, apperr.Git("open pull request", err)
	}
	return map[string]any{"pr_url": pr.GetHTMLURL(), "pr_number": pr.GetNumber()}, nil
}
