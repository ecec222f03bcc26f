package tools

import (
	"bytes"
	"context"
	"fmt"

	"os/exec"

	"ragctx/internal/apperr"
	"ragctx/internal/autodev"
)

// RunnerConfig configures the sandboxed container used to build and
// test the workspace's repository, grounded on the temp-dir-plus-
// exec.Command pattern of the codeeval package but executed inside a
// container runtime instead of directly on the host.
type RunnerConfig struct {
	ContainerRuntime string // "docker" or "podman"
	Image            string
	BuildCommand     string
	TestCommand      string
}

func (c RunnerConfig) runtime() string {
	if c.ContainerRuntime == "" {
		return "docker"
	}
	return c.ContainerRuntime
}

func (c RunnerConfig) runInContainer(ctx context.Context, repoDir, shellCmd string) (string, error) {
	if shellCmd == "" {
		return "", nil
	}
	args := []string{
		"run", "--rm",
		"-v", fmt.Sprintf("%s:/workspace", repoDir),
		"-w", "/workspace",
		"--network", "none",
		c.Image,
		"sh", "-c", shellCmd,
	}
	cmd := exec.CommandContext(ctx, c.runtime(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// RunnerBuild builds the repository inside the configured sandbox image.
type RunnerBuild struct {
	Cfg RunnerConfig
}

func (RunnerBuild) Name() string { return "runner_build" }

func (t RunnerBuild) Run(ctx context.Context, ws *autodev.Workspace, _ map[string]any) (map[string]any, error) {
	out, err := t.Cfg.runInContainer(ctx, ws.RepoDir, t.Cfg.BuildCommand)
	if err != nil {
		return map[string]any{"output": out}, apperr.Build("container build failed", err)
	}
	return map[string]any{"output": out}, nil
}

// RunnerTest runs the repository's test suite inside the sandbox image.
type RunnerTest struct {
	Cfg RunnerConfig
}

func (RunnerTest) Name() string { return "runner_test" }

func (t RunnerTest) Run(ctx context.Context, ws *autodev.Workspace, _ map[string]any) (map[string]any, error) {
	out, err := t.Cfg.runInContainer(ctx, ws.RepoDir, t.Cfg.TestCommand)
	if err != nil {
		return map[string]any{"output": out}, apperr.TestFailed("container test run failed", err)
	}
	return map[string]any{"output": out}, nil
}
