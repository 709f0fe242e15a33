package fsutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAtomicWriteReplacesExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := AtomicWrite(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWrite(path, []byte("new"), 0o644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(blob) != "new" {
		t.Fatalf("expected replaced content, got %q", blob)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected tmp file to be gone, got %v", err)
	}
}

func TestAtomicWriteFailedRenameLeavesOriginalUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	if err := AtomicWrite(path, []byte("committed"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	// Turn the target into a non-empty directory so the rename cannot land.
	blocked := filepath.Join(dir, "blocked")
	if err := os.MkdirAll(filepath.Join(blocked, "x"), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := AtomicWrite(blocked, []byte("oops"), 0o644); err == nil {
		t.Fatalf("expected rename onto non-empty directory to fail")
	}
	blob, err := os.ReadFile(path)
	if err != nil || string(blob) != "committed" {
		t.Fatalf("expected original file untouched, got %q err %v", blob, err)
	}
}

func TestWriteJSONCreatesParentAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "doc.json")
	in := map[string]int{"a": 1}
	if err := WriteJSON(path, in); err != nil {
		t.Fatalf("write json failed: %v", err)
	}
	var out map[string]int
	if err := ReadJSON(path, &out); err != nil {
		t.Fatalf("read json failed: %v", err)
	}
	if out["a"] != 1 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestReadJSONMissingFileIsNotExist(t *testing.T) {
	var out map[string]int
	err := ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &out)
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestMarkerOwnership(t *testing.T) {
	dir := t.TempDir()
	if IsManagedDir(dir) {
		t.Fatalf("unmarked dir should not be managed")
	}
	m := Marker{Skill: "pdf-tools", Agent: "claude", InstalledAt: time.Now().UTC()}
	if err := WriteMarker(dir, m); err != nil {
		t.Fatalf("write marker failed: %v", err)
	}
	if !IsManagedDir(dir) {
		t.Fatalf("marked dir should be managed")
	}
	var got Marker
	if err := ReadJSON(filepath.Join(dir, MarkerName), &got); err != nil {
		t.Fatalf("read marker failed: %v", err)
	}
	if got.Skill != "pdf-tools" || got.Agent != "claude" {
		t.Fatalf("unexpected marker %+v", got)
	}
}
