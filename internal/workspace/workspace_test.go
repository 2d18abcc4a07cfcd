package workspace

import (
	"path/filepath"
	"testing"
)

func TestResolve_Path(t *testing.T) {
	dir := t.TempDir()
	info, err := Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if info.Path != dir {
		t.Errorf("Path = %q, want %q", info.Path, dir)
	}
	if info.Name != filepath.Base(dir) {
		t.Errorf("Name = %q", info.Name)
	}
}

func TestResolve_DefaultsToWorkingDir(t *testing.T) {
	info, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if info.Path == "" || info.Name == "" {
		t.Errorf("unexpected empty workspace: %+v", info)
	}
}

func TestDisplayName(t *testing.T) {
	if got := (Info{}).DisplayName(); got != "No workspace" {
		t.Errorf("DisplayName = %q", got)
	}
}
