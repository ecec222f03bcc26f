package autodev

import (
	"os"
	"path/filepath"

	"ragctx/internal/apperr"
)

// Workspace is the on-disk working directory for a single Task, rooted
// at <base>/autodev/<task.id>/repo so a crashed run leaves its tree
// inspectable instead of silently overwriting another task's files
// (§6).
type Workspace struct {
	TaskID  string
	Root    string // <base>/autodev/<task.id>
	RepoDir string // Root/repo
}

// NewWorkspace creates the on-disk tree for taskID under baseDir and
// returns a ready Workspace. Callers must call Cleanup when the task
// reaches a terminal state.
func NewWorkspace(baseDir, taskID string) (*Workspace, error) {
	root := filepath.Join(baseDir, "autodev", taskID)
	repoDir := filepath.Join(root, "repo")
	if err := os.MkdirAll(repoDir, 0o755); err != nil {
		return nil, apperr.Io("create workspace directory", err)
	}
	return &Workspace{TaskID: taskID, Root: root, RepoDir: repoDir}, nil
}

// Cleanup removes the workspace's entire on-disk tree.
func (w *Workspace) Cleanup() error {
	if err := os.RemoveAll(w.Root); err != nil {
		return apperr.Io("remove workspace directory", err)
	}
	return nil
}
