package app

import (
	"context"
	"os"
	"testing"

	"skilldock/internal/skill"
	"skilldock/internal/store"
)

func installFixture(t *testing.T, svc *Service, agents ...string) {
	t.Helper()
	_, err := svc.Install(context.Background(), InstallRequest{
		Source: "acme/skills",
		Skill:  "pdf-tools",
		Agents: agents,
	})
	if err != nil {
		t.Fatalf("fixture install failed: %v", err)
	}
}

func TestUninstallRemovesContentAndRecords(t *testing.T) {
	mirror := t.TempDir()
	writeMirrorSkill(t, mirror, "pdf-tools")
	svc := testService(t, &fakeFetcher{dir: mirror, revision: "rev1"}, []skill.Skill{{Name: "pdf-tools", RelativePath: "pdf-tools"}})
	installFixture(t, svc, "claude", "codex")

	out, err := svc.Uninstall("pdf-tools", []string{"claude", "codex"}, "", false)
	if err != nil {
		t.Fatalf("uninstall failed: %v", err)
	}
	if len(out.Removed) != 2 {
		t.Fatalf("expected 2 removals, got %+v", out)
	}
	records, _ := svc.Store.All()
	if len(records) != 0 {
		t.Fatalf("expected no records, got %+v", records)
	}
	a, _ := svc.Agents.Get("claude")
	if _, err := os.Stat(a.SkillPath("pdf-tools", store.ScopeGlobal)); !os.IsNotExist(err) {
		t.Fatalf("expected content gone")
	}
}

func TestUninstallRepairsDanglingRecord(t *testing.T) {
	mirror := t.TempDir()
	writeMirrorSkill(t, mirror, "pdf-tools")
	svc := testService(t, &fakeFetcher{dir: mirror, revision: "rev1"}, []skill.Skill{{Name: "pdf-tools", RelativePath: "pdf-tools"}})
	installFixture(t, svc, "claude")

	// Simulate content lost outside skilldock.
	a, _ := svc.Agents.Get("claude")
	if err := os.RemoveAll(a.SkillPath("pdf-tools", store.ScopeGlobal)); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	out, err := svc.Uninstall("pdf-tools", []string{"claude"}, "", false)
	if err != nil {
		t.Fatalf("uninstall failed: %v", err)
	}
	if len(out.Removed) != 0 || len(out.Repaired) != 1 {
		t.Fatalf("expected a repaired record, got %+v", out)
	}
	records, _ := svc.Store.All()
	if len(records) != 0 {
		t.Fatalf("expected record cleaned up, got %+v", records)
	}
}

func TestUninstallAllAgentsSweepsEveryTree(t *testing.T) {
	mirror := t.TempDir()
	writeMirrorSkill(t, mirror, "pdf-tools")
	svc := testService(t, &fakeFetcher{dir: mirror, revision: "rev1"}, []skill.Skill{{Name: "pdf-tools", RelativePath: "pdf-tools"}})
	installFixture(t, svc, "claude", "cursor")

	out, err := svc.Uninstall("pdf-tools", nil, "", true)
	if err != nil {
		t.Fatalf("uninstall failed: %v", err)
	}
	if len(out.Removed) != 2 {
		t.Fatalf("expected both installs swept, got %+v", out)
	}
}

func TestUninstallMissingSkillErrors(t *testing.T) {
	mirror := t.TempDir()
	svc := testService(t, &fakeFetcher{dir: mirror, revision: "rev1"}, nil)
	if _, err := svc.Uninstall("ghost", []string{"claude"}, "", false); err == nil {
		t.Fatalf("expected error for a skill that is not installed")
	}
}
