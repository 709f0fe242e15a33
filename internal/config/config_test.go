package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"skilldock/internal/store"
)

func TestEnsureCreatesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := Ensure(path)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if cfg.SchemaVersion != SchemaVersion || cfg.DefaultAgent == "" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}
}

func TestLoadCorruptConfigFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DefaultAgent != Default().DefaultAgent {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadMigratesV1AndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	v1 := `{
  "schemaVersion": 1,
  "defaultAgent": "codex",
  "sources": [{"name": "acme/skills", "owner": "acme", "repo": "skills"}]
}`
	if err := os.WriteFile(path, []byte(v1), 0o644); err != nil {
		t.Fatalf("write v1 config failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.SchemaVersion != SchemaVersion || cfg.DefaultScope != store.ScopeGlobal {
		t.Fatalf("expected migrated config, got %+v", cfg)
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var onDisk Config
	if err := json.Unmarshal(blob, &onDisk); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if onDisk.SchemaVersion != SchemaVersion {
		t.Fatalf("expected migration persisted, got %+v", onDisk)
	}
}

func TestValidateRejectsDuplicateSources(t *testing.T) {
	cfg := Default()
	cfg.Sources = append(cfg.Sources, cfg.Sources[0])
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected duplicate source to fail validation")
	}
}

func TestAddAndRemoveSource(t *testing.T) {
	cfg := Default()
	src := SourceConfig{Name: "acme/extras", Owner: "acme", Repo: "extras"}
	if err := AddSource(&cfg, src); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := AddSource(&cfg, src); err == nil {
		t.Fatalf("expected duplicate add to fail")
	}
	if !RemoveSource(&cfg, "acme/extras") {
		t.Fatalf("expected removal")
	}
	if RemoveSource(&cfg, "acme/extras") {
		t.Fatalf("expected second removal to be a no-op")
	}
}

func TestParseLocator(t *testing.T) {
	cases := []struct {
		in      string
		owner   string
		repo    string
		wantErr bool
	}{
		{"acme/skills", "acme", "skills", false},
		{"acme", "", "", true},
		{"acme/", "", "", true},
		{"/skills", "", "", true},
		{"a/b/c", "", "", true},
	}
	for _, c := range cases {
		owner, repo, err := ParseLocator(c.in)
		if c.wantErr {
			if err == nil {
				t.Fatalf("ParseLocator(%q): expected error", c.in)
			}
			continue
		}
		if err != nil || owner != c.owner || repo != c.repo {
			t.Fatalf("ParseLocator(%q) = %q %q %v", c.in, owner, repo, err)
		}
	}
}

func TestCloneURLDefaultsToGitHub(t *testing.T) {
	src := SourceConfig{Name: "acme/skills", Owner: "acme", Repo: "skills"}
	if got := src.CloneURL(); got != "https://github.com/acme/skills.git" {
		t.Fatalf("unexpected clone url %q", got)
	}
	src.URL = "https://git.example.com/skills.git"
	if got := src.CloneURL(); got != src.URL {
		t.Fatalf("expected explicit url to win, got %q", got)
	}
}
