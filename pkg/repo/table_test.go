package repo

import (
	"reflect"
	"testing"
)

func TestTableAddAndList(t *testing.T) {
	table := NewTable()

	if err := table.Add("core", Spec{Kind: KindDir, Path: "/recipes/core"}, true, false); err != nil {
		t.Fatalf("Add core: %v", err)
	}
	if err := table.Add("extra", Spec{Kind: KindDummy}, false, false); err != nil {
		t.Fatalf("Add extra: %v", err)
	}

	if got := table.List(false); !reflect.DeepEqual(got, []string{"core", "extra"}) {
		t.Errorf("List(all) = %v", got)
	}
	if got := table.List(true); !reflect.DeepEqual(got, []string{"core"}) {
		t.Errorf("List(default) = %v", got)
	}
}

func TestTableAddDuplicate(t *testing.T) {
	table := NewTable()
	if err := table.Add("core", Spec{Kind: KindDummy}, false, false); err != nil {
		t.Fatalf("Add: %v", err)
	}

	err := table.Add("core", Spec{Kind: KindDummy}, false, false)
	if !IsDuplicate(err) {
		t.Errorf("expected duplicate error, got %v", err)
	}
}

func TestTableAddEmptyName(t *testing.T) {
	table := NewTable()
	if err := table.Add("", Spec{Kind: KindDummy}, false, false); err == nil {
		t.Errorf("expected error for empty name")
	}
}

func TestTableDefaultPrecedence(t *testing.T) {
	table := NewTable()
	for _, name := range []string{"a", "b", "c"} {
		if err := table.Add(name, Spec{Kind: KindDummy}, true, false); err != nil {
			t.Fatalf("Add %s: %v", name, err)
		}
	}
	if got := table.List(true); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("defaults = %v", got)
	}

	// "first" precedence puts the repo at the head of the list.
	if err := table.SetDefault("c", true, true); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	if got := table.List(true); !reflect.DeepEqual(got, []string{"c", "a", "b"}) {
		t.Errorf("defaults after promote = %v", got)
	}

	if err := table.SetDefault("a", false, false); err != nil {
		t.Fatalf("SetDefault remove: %v", err)
	}
	if got := table.List(true); !reflect.DeepEqual(got, []string{"c", "b"}) {
		t.Errorf("defaults after removal = %v", got)
	}

	if err := table.SetDefault("missing", true, false); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestTableRemove(t *testing.T) {
	table := NewTable()
	if err := table.Add("core", Spec{Kind: KindDummy}, true, false); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := table.Remove("core"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if table.Has("core") {
		t.Errorf("repository still present after removal")
	}
	if len(table.List(true)) != 0 {
		t.Errorf("removed repository still in default list")
	}

	if err := table.Remove("core"); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestTableRename(t *testing.T) {
	table := NewTable()
	if err := table.Add("old", Spec{Kind: KindDir, Path: "/r"}, true, false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := table.Add("other", Spec{Kind: KindDummy}, false, false); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := table.Rename("old", "new"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if table.Has("old") || !table.Has("new") {
		t.Errorf("rename did not move the entry")
	}
	if table.Repos["new"].Path != "/r" {
		t.Errorf("spec lost in rename")
	}
	if got := table.List(true); !reflect.DeepEqual(got, []string{"new"}) {
		t.Errorf("default list not renamed: %v", got)
	}

	if err := table.Rename("missing", "x"); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := table.Rename("new", "other"); !IsDuplicate(err) {
		t.Errorf("expected duplicate, got %v", err)
	}
}

func TestNewBackendInvalidSpec(t *testing.T) {
	if _, err := NewBackend("r", Spec{Kind: KindDir}); err == nil {
		t.Errorf("dir backend without path accepted")
	}
	if _, err := NewBackend("r", Spec{Kind: KindSSH, Host: "h"}); err == nil {
		t.Errorf("ssh backend without user accepted")
	}
	if _, err := NewBackend("r", Spec{Kind: "carrier-pigeon"}); err == nil {
		t.Errorf("unknown backend kind accepted")
	}
	if _, err := NewBackend("r", Spec{Kind: KindDummy}); err != nil {
		t.Errorf("dummy backend rejected: %v", err)
	}
}
