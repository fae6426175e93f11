package history

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreAddAndReload(t *testing.T) {
	dir := t.TempDir()

	s := NewStore(dir)
	if err := s.Load(); err != nil {
		t.Fatalf("Failed to load empty history: %v", err)
	}
	if len(s.Entries()) != 0 {
		t.Fatalf("Expected empty history, got %v", s.Entries())
	}

	for _, p := range []string{"/music/a.ogg", "/music/b.ogg", "/music/a.ogg", ""} {
		if err := s.Add(p); err != nil {
			t.Fatalf("Failed to add %q: %v", p, err)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "history.json")); err != nil {
		t.Fatalf("History file was not created: %v", err)
	}

	s2 := NewStore(dir)
	if err := s2.Load(); err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	got := s2.Entries()
	want := []string{"/music/a.ogg", "/music/b.ogg"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Entry %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestStoreLoadDropsDuplicates(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`["/a.ogg", "", "/b.ogg", "/a.ogg"]`)
	if err := os.WriteFile(filepath.Join(dir, "history.json"), data, 0600); err != nil {
		t.Fatal(err)
	}

	s := NewStore(dir)
	if err := s.Load(); err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if got := s.Entries(); len(got) != 2 || got[0] != "/a.ogg" || got[1] != "/b.ogg" {
		t.Errorf("Expected [/a.ogg /b.ogg], got %v", got)
	}
}

func TestStoreLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "history.json"), []byte("not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := NewStore(dir).Load(); err == nil {
		t.Error("Expected error for corrupt history file")
	}
}

func TestStoreRemoveAndClear(t *testing.T) {
	s := NewStore(t.TempDir())
	s.Add("/a.ogg")
	s.Add("/b.ogg")

	if err := s.Remove("/a.ogg"); err != nil {
		t.Fatal(err)
	}
	if got := s.Entries(); len(got) != 1 || got[0] != "/b.ogg" {
		t.Errorf("Expected [/b.ogg], got %v", got)
	}

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if len(s.Entries()) != 0 {
		t.Errorf("Expected empty history after Clear, got %v", s.Entries())
	}
}

func TestStoreExisting(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.ogg")
	if err := os.WriteFile(present, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	s := NewStore(dir)
	s.Add(present)
	s.Add(filepath.Join(dir, "gone.ogg"))

	got := s.Existing()
	if len(got) != 1 || got[0] != present {
		t.Errorf("Expected only %s, got %v", present, got)
	}
}
