package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"skilldock/internal/cache"
	"skilldock/internal/skill"
	"skilldock/internal/store"
)

func TestUpdateReinstallsMovedRevision(t *testing.T) {
	mirror := t.TempDir()
	writeMirrorSkill(t, mirror, "pdf-tools")
	fetcher := &fakeFetcher{dir: mirror, revision: "rev1"}
	svc := testService(t, fetcher, []skill.Skill{{Name: "pdf-tools", RelativePath: "pdf-tools"}})
	installFixture(t, svc, "claude")

	fetcher.revision = "rev2"
	if err := os.WriteFile(filepath.Join(mirror, "pdf-tools", "extra.md"), []byte("new"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	out, err := svc.Update(context.Background(), "pdf-tools")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(out.Updated) != 1 || out.Updated[0].FromRevision != "rev1" || out.Updated[0].ToRevision != "rev2" {
		t.Fatalf("unexpected outcome %+v", out)
	}

	rec, ok, err := svc.Store.Find("pdf-tools", "claude", store.ScopeGlobal)
	if err != nil || !ok {
		t.Fatalf("record missing after update: %v", err)
	}
	if rec.Revision != "rev2" {
		t.Fatalf("expected record at rev2, got %q", rec.Revision)
	}
	a, _ := svc.Agents.Get("claude")
	if _, err := os.Stat(filepath.Join(a.SkillPath("pdf-tools", store.ScopeGlobal), "extra.md")); err != nil {
		t.Fatalf("expected refreshed content present: %v", err)
	}
}

func TestUpdateLeavesCurrentRevisionAlone(t *testing.T) {
	mirror := t.TempDir()
	writeMirrorSkill(t, mirror, "pdf-tools")
	fetcher := &fakeFetcher{dir: mirror, revision: "rev1"}
	svc := testService(t, fetcher, []skill.Skill{{Name: "pdf-tools", RelativePath: "pdf-tools"}})
	installFixture(t, svc, "claude")

	out, err := svc.Update(context.Background(), "pdf-tools")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(out.Updated) != 0 || len(out.Current) != 1 {
		t.Fatalf("expected no movement, got %+v", out)
	}
}

func TestUpdateNotInstalledErrors(t *testing.T) {
	mirror := t.TempDir()
	svc := testService(t, &fakeFetcher{dir: mirror, revision: "rev1"}, nil)
	if _, err := svc.Update(context.Background(), "ghost"); err == nil {
		t.Fatalf("expected error for a skill that is not installed")
	}
}

func TestUpdateKeepsSkillDroppedUpstream(t *testing.T) {
	mirror := t.TempDir()
	writeMirrorSkill(t, mirror, "pdf-tools")
	fetcher := &fakeFetcher{dir: mirror, revision: "rev1"}
	upstream := []skill.Skill{{Name: "pdf-tools", RelativePath: "pdf-tools"}}
	svc := testService(t, fetcher, nil)
	svc.Cache = cache.New(filepath.Join(filepath.Dir(svc.ConfigPath), "index"), fetcher,
		func(string) ([]skill.Skill, error) { return upstream, nil })
	installFixture(t, svc, "claude")

	// The source moves on without the skill.
	fetcher.revision = "rev2"
	upstream = nil

	out, err := svc.Update(context.Background(), "pdf-tools")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(out.Updated) != 0 || len(out.Current) != 1 {
		t.Fatalf("expected the install kept as-is, got %+v", out)
	}
	rec, ok, _ := svc.Store.Find("pdf-tools", "claude", store.ScopeGlobal)
	if !ok || rec.Revision != "rev1" {
		t.Fatalf("expected record pinned at rev1, got %+v ok=%v", rec, ok)
	}
}
