package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"skilldock/internal/agent"
	"skilldock/internal/cache"
	"skilldock/internal/config"
	"skilldock/internal/fsutil"
	"skilldock/internal/skill"
	"skilldock/internal/store"
)

// fakeFetcher serves a pre-built mirror directory without git or network.
type fakeFetcher struct {
	dir      string
	revision string
	err      error
	fetches  int
}

func (f *fakeFetcher) EnsureLocal(_ context.Context, _, _, _ string) (string, string, error) {
	f.fetches++
	if f.err != nil {
		return "", "", f.err
	}
	return f.dir, f.revision, nil
}

func (f *fakeFetcher) CurrentRevision(_ context.Context, _, _ string) (string, bool) {
	if f.fetches == 0 {
		return "", false
	}
	return f.revision, true
}

func (f *fakeFetcher) MirrorDir(_, _ string) string { return f.dir }

// testService wires a Service against temp roots, a scripted fetcher and a
// scripted skill list.
func testService(t *testing.T, fetcher *fakeFetcher, skills []skill.Skill) *Service {
	t.Helper()
	root := t.TempDir()
	home := filepath.Join(root, "home")
	project := filepath.Join(root, "project")
	discover := func(string) ([]skill.Skill, error) { return skills, nil }
	cfg := config.Config{
		SchemaVersion: config.SchemaVersion,
		DefaultAgent:  "claude",
		DefaultScope:  store.ScopeGlobal,
		Sources:       []config.SourceConfig{{Name: "acme/skills", Owner: "acme", Repo: "skills"}},
	}
	return &Service{
		ConfigPath:  filepath.Join(root, "config.json"),
		Config:      cfg,
		Store:       store.New(filepath.Join(root, "data")),
		Cache:       cache.New(filepath.Join(root, "index"), fetcher, discover),
		Agents:      agent.NewRegistry(home, project, "v1.0.0", nil),
		Fetcher:     fetcher,
		Home:        home,
		ProjectRoot: project,
		Version:     "v1.0.0",
	}
}

// writeMirrorSkill lays a skill directory into the fake mirror.
func writeMirrorSkill(t *testing.T, mirror, name string) {
	t.Helper()
	dir := filepath.Join(mirror, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("---\nname: "+name+"\n---\n"), 0o644); err != nil {
		t.Fatalf("write skill failed: %v", err)
	}
}

func TestInstallCommitsContentAndRecord(t *testing.T) {
	mirror := t.TempDir()
	writeMirrorSkill(t, mirror, "pdf-tools")
	fetcher := &fakeFetcher{dir: mirror, revision: "rev1"}
	svc := testService(t, fetcher, []skill.Skill{{Name: "pdf-tools", RelativePath: "pdf-tools"}})

	out, err := svc.Install(context.Background(), InstallRequest{Source: "acme/skills", Skill: "pdf-tools"})
	if err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if len(out.Installed) != 1 || out.Installed[0].Agent != "claude" || out.Revision != "rev1" {
		t.Fatalf("unexpected outcome %+v", out)
	}

	a, _ := svc.Agents.Get("claude")
	dest := a.SkillPath("pdf-tools", store.ScopeGlobal)
	if !fsutil.IsManagedDir(dest) {
		t.Fatalf("expected managed install at %s", dest)
	}
	records, err := svc.Store.All()
	if err != nil {
		t.Fatalf("load state failed: %v", err)
	}
	if len(records) != 1 || records[0].Revision != "rev1" || records[0].SourceOwner != "acme" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestInstallFailureRollsBackCompletedPairs(t *testing.T) {
	mirror := t.TempDir()
	writeMirrorSkill(t, mirror, "pdf-tools")
	fetcher := &fakeFetcher{dir: mirror, revision: "rev1"}
	svc := testService(t, fetcher, []skill.Skill{{Name: "pdf-tools", RelativePath: "pdf-tools"}})

	// The second agent's destination is an unmanaged directory, which the
	// installer refuses to replace.
	codex, _ := svc.Agents.Get("codex")
	blocked := codex.SkillPath("pdf-tools", store.ScopeGlobal)
	if err := os.MkdirAll(blocked, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(blocked, "notes.txt"), []byte("mine"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	_, err := svc.Install(context.Background(), InstallRequest{
		Source: "acme/skills",
		Skill:  "pdf-tools",
		Agents: []string{"claude", "codex", "cursor"},
	})
	if err == nil {
		t.Fatalf("expected install to fail")
	}

	records, lerr := svc.Store.All()
	if lerr != nil {
		t.Fatalf("load state failed: %v", lerr)
	}
	if len(records) != 0 {
		t.Fatalf("expected rollback to leave zero records, got %+v", records)
	}
	claude, _ := svc.Agents.Get("claude")
	if _, serr := os.Stat(claude.SkillPath("pdf-tools", store.ScopeGlobal)); !os.IsNotExist(serr) {
		t.Fatalf("expected first agent's content reversed")
	}
	if _, serr := os.Stat(filepath.Join(blocked, "notes.txt")); serr != nil {
		t.Fatalf("unmanaged directory should be untouched: %v", serr)
	}
	cursor, _ := svc.Agents.Get("cursor")
	if _, serr := os.Stat(cursor.SkillPath("pdf-tools", store.ScopeGlobal)); !os.IsNotExist(serr) {
		t.Fatalf("pair after the failure should never have been installed")
	}
}

func TestInstallSkipsIncompatibleAgents(t *testing.T) {
	mirror := t.TempDir()
	writeMirrorSkill(t, mirror, "claude-only")
	fetcher := &fakeFetcher{dir: mirror, revision: "rev1"}
	svc := testService(t, fetcher, []skill.Skill{{
		Name:          "claude-only",
		RelativePath:  "claude-only",
		Compatibility: &skill.Compatibility{Agents: []string{"claude"}},
	}})

	out, err := svc.Install(context.Background(), InstallRequest{
		Source: "acme/skills",
		Skill:  "claude-only",
		Agents: []string{"claude", "codex"},
	})
	if err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if len(out.Installed) != 1 || out.Installed[0].Agent != "claude" {
		t.Fatalf("unexpected installed %+v", out.Installed)
	}
	if len(out.Skipped) != 1 || out.Skipped[0].Agent != "codex" || len(out.Skipped[0].Reasons) == 0 {
		t.Fatalf("unexpected skipped %+v", out.Skipped)
	}
	records, _ := svc.Store.All()
	if len(records) != 1 || records[0].Agent != "claude" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestInstallReusesWarmCache(t *testing.T) {
	mirror := t.TempDir()
	writeMirrorSkill(t, mirror, "pdf-tools")
	fetcher := &fakeFetcher{dir: mirror, revision: "rev1"}
	svc := testService(t, fetcher, []skill.Skill{{Name: "pdf-tools", RelativePath: "pdf-tools"}})

	src := svc.Config.Sources[0]
	if _, _, _, err := svc.Cache.Refresh(context.Background(), src); err != nil {
		t.Fatalf("seed refresh failed: %v", err)
	}
	before := fetcher.fetches

	if _, err := svc.Install(context.Background(), InstallRequest{Source: "acme/skills", Skill: "pdf-tools"}); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if fetcher.fetches != before {
		t.Fatalf("expected no fetch against a warm cache, got %d extra", fetcher.fetches-before)
	}
}

func TestInstallUnknownSkillRetriesWithRefresh(t *testing.T) {
	mirror := t.TempDir()
	writeMirrorSkill(t, mirror, "new-skill")
	fetcher := &fakeFetcher{dir: mirror, revision: "rev2"}
	svc := testService(t, fetcher, []skill.Skill{{Name: "new-skill", RelativePath: "new-skill"}})

	// Seed a stale cache entry that predates the skill.
	stale := cache.New(filepath.Join(filepath.Dir(svc.ConfigPath), "index"), fetcher,
		func(string) ([]skill.Skill, error) { return []skill.Skill{{Name: "old-skill", RelativePath: "old-skill"}}, nil })
	if _, _, _, err := stale.Refresh(context.Background(), svc.Config.Sources[0]); err != nil {
		t.Fatalf("seed refresh failed: %v", err)
	}

	out, err := svc.Install(context.Background(), InstallRequest{Source: "acme/skills", Skill: "new-skill"})
	if err != nil {
		t.Fatalf("expected retry refresh to find the skill: %v", err)
	}
	if len(out.Installed) != 1 || out.Installed[0].Skill != "new-skill" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestInstallRequiresASelection(t *testing.T) {
	mirror := t.TempDir()
	fetcher := &fakeFetcher{dir: mirror, revision: "rev1"}
	svc := testService(t, fetcher, []skill.Skill{{Name: "a", RelativePath: "a"}})
	if _, err := svc.Install(context.Background(), InstallRequest{Source: "acme/skills"}); err == nil {
		t.Fatalf("expected selection error")
	}
}
