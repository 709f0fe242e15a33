package source

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecFunc runs git with args in dir, returning combined output. Injectable
// so tests can fake the network.
type ExecFunc func(ctx context.Context, dir string, args ...string) ([]byte, error)

func defaultGitExec(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w\n%s", strings.Join(args, " "), err, string(out))
	}
	return out, nil
}

// GitFetcher mirrors remote sources into a local cache directory, keyed by
// owner/repo. The mirror is derived state: deleting it only forces a fresh
// clone.
type GitFetcher struct {
	mirrorRoot string
	execGit    ExecFunc
}

func NewGitFetcher(mirrorRoot string) *GitFetcher {
	return &GitFetcher{mirrorRoot: mirrorRoot, execGit: defaultGitExec}
}

// EnsureLocal guarantees a local mirror of owner/repo at some revision,
// cloning on first use and fetch+resetting afterwards. It returns the mirror
// path and the revision token (the commit id at HEAD).
func (f *GitFetcher) EnsureLocal(ctx context.Context, owner, repo, url string) (string, string, error) {
	if owner == "" || repo == "" {
		return "", "", fmt.Errorf("SRC_FETCH: owner and repo are required")
	}
	dir := f.MirrorDir(owner, repo)
	if isGitRepo(dir) {
		if _, err := f.execGit(ctx, dir, "fetch", "--depth", "1", "origin", "HEAD"); err != nil {
			return "", "", fmt.Errorf("SRC_FETCH: fetch failed: %w", err)
		}
		if _, err := f.execGit(ctx, dir, "reset", "--hard", "FETCH_HEAD"); err != nil {
			return "", "", fmt.Errorf("SRC_FETCH: reset failed: %w", err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return "", "", fmt.Errorf("SRC_FETCH: %w", err)
		}
		if _, err := f.execGit(ctx, "", "clone", "--depth", "1", url, dir); err != nil {
			return "", "", fmt.Errorf("SRC_FETCH: clone failed: %w", err)
		}
	}
	rev, err := f.revision(ctx, dir)
	if err != nil {
		return "", "", err
	}
	return dir, rev, nil
}

// CurrentRevision reads the mirror's revision without touching the network.
// The second return is false when no mirror exists yet.
func (f *GitFetcher) CurrentRevision(ctx context.Context, owner, repo string) (string, bool) {
	dir := f.MirrorDir(owner, repo)
	if !isGitRepo(dir) {
		return "", false
	}
	rev, err := f.revision(ctx, dir)
	if err != nil {
		return "", false
	}
	return rev, true
}

// MirrorDir is the deterministic mirror location for a source.
func (f *GitFetcher) MirrorDir(owner, repo string) string {
	return filepath.Join(f.mirrorRoot, owner, repo)
}

func (f *GitFetcher) revision(ctx context.Context, dir string) (string, error) {
	out, err := f.execGit(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("SRC_FETCH: rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func isGitRepo(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && info.IsDir()
}
