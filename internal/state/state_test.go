package state

import (
	"reflect"
	"testing"

	"github.com/morozRed/classlens/internal/session"
)

func TestSetArchiveTracksChanges(t *testing.T) {
	s := NewState()
	if !s.SetArchive("/jars/a.jar", "b3-1", 10, 8) {
		t.Fatalf("expected new archive to count as changed")
	}
	s.MarkIndexed("/jars/a.jar")
	if s.SetArchive("/jars/a.jar", "b3-1", 10, 8) {
		t.Fatalf("expected same version to be unchanged")
	}
	if s.Archives["/jars/a.jar"].IndexedAt.IsZero() {
		t.Fatalf("expected indexed mark kept for unchanged archive")
	}
	if !s.SetArchive("/jars/a.jar", "b3-2", 11, 9) {
		t.Fatalf("expected new version to count as changed")
	}
	if !s.Archives["/jars/a.jar"].IndexedAt.IsZero() {
		t.Fatalf("expected indexed mark dropped for changed archive")
	}
	if s.ActiveVersion() != "b3-2" {
		t.Fatalf("expected active version b3-2, got %q", s.ActiveVersion())
	}
	s.MarkIndexed("/jars/a.jar")
	s.ClearIndexed("/jars/a.jar")
	if !s.Archives["/jars/a.jar"].IndexedAt.IsZero() {
		t.Fatalf("expected indexed mark cleared")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	s := NewState()
	s.SetArchive("/jars/a.jar", "b3-1", 3, 2)
	tabs := session.New("a/A.class")
	tabs.Open("a/B.class")
	s.Session = tabs.Snapshot()
	if err := s.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Active != "/jars/a.jar" || loaded.ActiveVersion() != "b3-1" {
		t.Fatalf("unexpected active archive %q", loaded.Active)
	}
	if loaded.Session.Active != "a/B.class" || len(loaded.Session.Tabs) != 2 {
		t.Fatalf("unexpected session %+v", loaded.Session)
	}
}

func TestLoadMissingIsEmpty(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Version != CurrentStateVersion || len(s.Archives) != 0 {
		t.Fatalf("expected empty state, got %+v", s)
	}
}

func TestMissingArchivesAndForget(t *testing.T) {
	s := NewState()
	s.SetArchive("/jars/b.jar", "v", 1, 1)
	s.SetArchive("/jars/a.jar", "v", 1, 1)
	s.SetArchive("/jars/c.jar", "v", 1, 1)
	s.Session = session.Snapshot{Active: "x"}

	missing := s.MissingArchives(func(path string) bool { return path == "/jars/b.jar" })
	if !reflect.DeepEqual(missing, []string{"/jars/a.jar", "/jars/c.jar"}) {
		t.Fatalf("unexpected missing archives %v", missing)
	}

	s.Forget("/jars/c.jar")
	if s.Active != "" || s.Session.Active != "" {
		t.Fatalf("expected active selection cleared, got %q %+v", s.Active, s.Session)
	}
	if _, ok := s.Archives["/jars/c.jar"]; ok {
		t.Fatalf("expected archive forgotten")
	}
}

func TestMigrateStateDropsDanglingActive(t *testing.T) {
	s := &State{Version: "", Active: "/gone.jar"}
	migrateState(s)
	if s.Version != CurrentStateVersion || s.Active != "" || s.Archives == nil {
		t.Fatalf("unexpected migrated state %+v", s)
	}
}
