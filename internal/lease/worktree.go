package lease

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// createWorktree provisions a fresh checkout and branch for taskID. Leftovers
// from an earlier run of the same task are cleaned up first.
func (m *Manager) createWorktree(taskID string) (dir, branch string, err error) {
	if err := os.MkdirAll(m.worktreeDir, 0755); err != nil {
		return "", "", fmt.Errorf("creating worktree dir: %w", err)
	}

	branch = BranchName(taskID)
	m.cleanupExistingBranch(branch)

	dirName := fmt.Sprintf("%s-%s", sanitizeRef(taskID), randomSuffix())
	dir = filepath.Join(m.worktreeDir, dirName)

	// Refresh the base ref when a remote exists; local-only repos get HEAD.
	fetchCmd := exec.Command("git", "fetch", "origin", m.baseBranch)
	fetchCmd.Dir = m.repoDir
	fetchCmd.Run()

	base := "origin/" + m.baseBranch
	checkCmd := exec.Command("git", "rev-parse", "--verify", base)
	checkCmd.Dir = m.repoDir
	if checkCmd.Run() != nil {
		base = "HEAD"
	}

	cmd := exec.Command("git", "worktree", "add", "-b", branch, dir, base)
	cmd.Dir = m.repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", "", fmt.Errorf("git worktree add: %s: %w", out, err)
	}

	return dir, branch, nil
}

// cleanupExistingBranch removes any worktree and branch left over from an
// earlier run of the same task. Every step is best effort.
func (m *Manager) cleanupExistingBranch(branch string) {
	cmd := exec.Command("git", "worktree", "prune")
	cmd.Dir = m.repoDir
	cmd.Run()

	cmd = exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = m.repoDir
	out, _ := cmd.Output()

	// The branch line follows its worktree line within the same stanza.
	lines := strings.Split(string(out), "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, "worktree ") {
			continue
		}
		path := strings.TrimPrefix(line, "worktree ")
		for j := i + 1; j < len(lines) && j < i+4; j++ {
			if strings.TrimSpace(lines[j]) == "branch refs/heads/"+branch {
				rmCmd := exec.Command("git", "worktree", "remove", "--force", path)
				rmCmd.Dir = m.repoDir
				rmCmd.Run()
				break
			}
		}
	}

	// Orphan branches survive worktree removal, so delete unconditionally.
	cmd = exec.Command("git", "branch", "-D", branch)
	cmd.Dir = m.repoDir
	cmd.Run()
}

// removeWorktree tears down a lease's checkout and deletes its branch.
func (m *Manager) removeWorktree(dir, branch string) error {
	cmd := exec.Command("git", "worktree", "remove", "--force", dir)
	cmd.Dir = m.repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git worktree remove: %s: %w", out, err)
	}

	if branch != "" {
		cmd = exec.Command("git", "branch", "-D", branch)
		cmd.Dir = m.repoDir
		cmd.Run()
	}

	return nil
}

// CleanupStale removes worktrees under the worktree directory that no active
// lease owns, such as checkouts orphaned by an earlier process. It returns
// how many were removed.
func (m *Manager) CleanupStale() (int, error) {
	cmd := exec.Command("git", "worktree", "prune")
	cmd.Dir = m.repoDir
	cmd.Run()

	cmd = exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = m.repoDir
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("git worktree list: %w", err)
	}

	m.mu.Lock()
	held := make(map[string]bool, len(m.active))
	for _, l := range m.active {
		held[l.Dir] = true
	}
	m.mu.Unlock()

	removed := 0
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.HasPrefix(line, "worktree ") {
			continue
		}
		path := strings.TrimPrefix(line, "worktree ")
		if !strings.HasPrefix(path, m.worktreeDir) || held[path] {
			continue
		}
		rmCmd := exec.Command("git", "worktree", "remove", "--force", path)
		rmCmd.Dir = m.repoDir
		if rmCmd.Run() == nil {
			removed++
		}
	}

	return removed, nil
}

// BranchName returns the branch a task's work lands on.
func BranchName(taskID string) string {
	return "backlogpilot/" + sanitizeRef(taskID)
}

// sanitizeRef maps a task ID onto characters git accepts in ref names.
func sanitizeRef(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, id)
}

func randomSuffix() string {
	b := make([]byte, 3)
	rand.Read(b)
	return hex.EncodeToString(b)
}
