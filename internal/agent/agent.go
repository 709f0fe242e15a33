package agent

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"skilldock/internal/fsutil"
	"skilldock/internal/skill"
	"skilldock/internal/store"
)

// Agent is one installation profile: a named tool with its own skill
// directories per scope and its own compatibility rules.
type Agent struct {
	Name       string
	GlobalDir  string
	ProjectDir string

	// toolVersion is the running skilldock version, checked against a
	// skill's declared minimum. Non-semver versions ("dev") disable the
	// check.
	toolVersion string
}

// Dir returns the skill base directory for a scope.
func (a *Agent) Dir(scope store.Scope) string {
	if scope == store.ScopeProject {
		return a.ProjectDir
	}
	return a.GlobalDir
}

// SkillPath is where a named skill lives for a scope.
func (a *Agent) SkillPath(name string, scope store.Scope) string {
	return filepath.Join(a.Dir(scope), name)
}

// IsCompatible reports whether the skill may be installed for this agent,
// with human-readable reasons when not.
func (a *Agent) IsCompatible(sk skill.Skill) (bool, []string) {
	var reasons []string
	if !sk.Compatibility.AllowsAgent(a.Name) {
		reasons = append(reasons, fmt.Sprintf("skill %s is not declared for agent %s", sk.Name, a.Name))
	}
	if min := minVersion(sk); min != "" && semver.IsValid(a.toolVersion) {
		if semver.Compare(a.toolVersion, min) < 0 {
			reasons = append(reasons, fmt.Sprintf("skill %s needs skilldock %s or newer (running %s)", sk.Name, min, a.toolVersion))
		}
	}
	return len(reasons) == 0, reasons
}

// InstallContent copies the skill's content from sourceDir into this agent's
// tree for the scope, replacing a previous managed install of the same name.
// It refuses to overwrite a directory skilldock does not own.
func (a *Agent) InstallContent(sk skill.Skill, sourceDir string, scope store.Scope) error {
	dest := a.SkillPath(sk.Name, scope)
	if info, err := os.Stat(dest); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("AGT_INSTALL: %s exists and is not a directory", dest)
		}
		if !fsutil.IsManagedDir(dest) {
			return fmt.Errorf("AGT_INSTALL: %s exists but is not managed by skilldock", dest)
		}
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("AGT_INSTALL: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("AGT_INSTALL: %w", err)
	}
	if err := copyDir(sourceDir, dest); err != nil {
		_ = os.RemoveAll(dest)
		return fmt.Errorf("AGT_INSTALL: %w", err)
	}
	m := fsutil.Marker{Skill: sk.Name, Agent: a.Name, InstalledAt: time.Now().UTC()}
	if err := fsutil.WriteMarker(dest, m); err != nil {
		_ = os.RemoveAll(dest)
		return fmt.Errorf("AGT_INSTALL: %w", err)
	}
	return nil
}

// UninstallContent removes the named skill's directory for the scope. It
// reports whether anything was held; an absent directory is (false, nil).
// Unmanaged directories are left alone.
func (a *Agent) UninstallContent(name string, scope store.Scope) (bool, error) {
	dest := a.SkillPath(name, scope)
	info, err := os.Stat(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("AGT_UNINSTALL: %w", err)
	}
	if !info.IsDir() || !fsutil.IsManagedDir(dest) {
		return false, fmt.Errorf("AGT_UNINSTALL: %s is not managed by skilldock", dest)
	}
	if err := os.RemoveAll(dest); err != nil {
		return false, fmt.Errorf("AGT_UNINSTALL: %w", err)
	}
	return true, nil
}

// Installed lists managed skill names present in this agent's tree for the
// scope, regardless of what the state store says. Used by doctor to spot
// drift.
func (a *Agent) Installed(scope store.Scope) []string {
	entries, err := os.ReadDir(a.Dir(scope))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && fsutil.IsManagedDir(filepath.Join(a.Dir(scope), e.Name())) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}

func minVersion(sk skill.Skill) string {
	if sk.Compatibility == nil {
		return ""
	}
	min := sk.Compatibility.MinVersion
	if min != "" && !strings.HasPrefix(min, "v") {
		min = "v" + min
	}
	if !semver.IsValid(min) {
		return ""
	}
	return min
}

func copyDir(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
