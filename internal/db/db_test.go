package db

import (
	"path/filepath"
	"testing"
)

func tempDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open temp db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestState_GetMissing(t *testing.T) {
	st := tempDB(t).State("/ws")

	var v []string
	ok, err := st.Get("nothing", &v)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("Get reported a value for an unwritten key")
	}
}

func TestState_UpdateAndGet(t *testing.T) {
	st := tempDB(t).State("/ws")

	if err := st.Update("list", []string{"a", "b"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := st.Update("list", []string{"c"}); err != nil {
		t.Fatalf("second Update failed: %v", err)
	}

	var got []string
	ok, err := st.Get("list", &got)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if len(got) != 1 || got[0] != "c" {
		t.Errorf("Get = %v, want [c]", got)
	}
}

func TestState_EmptyListIsStored(t *testing.T) {
	st := tempDB(t).State("/ws")

	if err := st.Update("list", []string{}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	var got []string
	ok, err := st.Get("list", &got)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Error("an empty list must still count as written")
	}
}

func TestState_NilDeletes(t *testing.T) {
	st := tempDB(t).State("/ws")

	st.Update("k", 1)
	if err := st.Update("k", nil); err != nil {
		t.Fatalf("Update(nil) failed: %v", err)
	}
	var v int
	if ok, _ := st.Get("k", &v); ok {
		t.Error("key should be gone")
	}
}

func TestState_WorkspaceIsolation(t *testing.T) {
	d := tempDB(t)
	a, b := d.State("/a"), d.State("/b")

	if err := a.Update("k", "from-a"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	var v string
	if ok, _ := b.Get("k", &v); ok {
		t.Error("workspace b sees workspace a's key")
	}

	if err := b.Update("k", nil); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if ok, _ := a.Get("k", &v); !ok || v != "from-a" {
		t.Errorf("deleting in b touched a: ok=%v v=%q", ok, v)
	}
}
