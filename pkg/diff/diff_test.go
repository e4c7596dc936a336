package diff

import (
	"testing"

	"promptforge/pkg/domain"
)

func TestChangesClassifiesEveryDifferingPathOnce(t *testing.T) {
	previous := domain.FileState{
		"/src/App.js":    "old app",
		"/src/index.js":  "index",
		"/src/styles.css": "body {}",
	}
	next := domain.FileState{
		"/src/App.js":   "new app",
		"/src/index.js": "index",
		"/src/Hook.js":  "hook",
	}

	changes := Changes(previous, next)

	byPath := map[string]domain.FileChange{}
	for _, change := range changes {
		if _, dup := byPath[change.Path]; dup {
			t.Fatalf("duplicate change for %q", change.Path)
		}
		byPath[change.Path] = change
	}
	if len(byPath) != 3 {
		t.Fatalf("expected 3 changes, got %d: %v", len(byPath), changes)
	}
	if c := byPath["/src/App.js"]; c.Status != domain.ChangeUpdated || c.PreviousContent != "old app" {
		t.Fatalf("unexpected App.js change: %+v", c)
	}
	if c := byPath["/src/Hook.js"]; c.Status != domain.ChangeNew || c.PreviousContent != "" {
		t.Fatalf("unexpected Hook.js change: %+v", c)
	}
	if c := byPath["/src/styles.css"]; c.Status != domain.ChangeDeleted || c.PreviousContent != "body {}" {
		t.Fatalf("unexpected styles.css change: %+v", c)
	}
	if _, present := byPath["/src/index.js"]; present {
		t.Fatalf("unchanged path must be omitted")
	}
}

func TestChangesAgainstEmptySnapshots(t *testing.T) {
	state := domain.FileState{"/a.js": "1", "/b.js": "2"}

	deleted := Changes(state, domain.FileState{})
	if len(deleted) != len(state) {
		t.Fatalf("expected %d deletions, got %d", len(state), len(deleted))
	}
	for _, change := range deleted {
		if change.Status != domain.ChangeDeleted {
			t.Fatalf("expected deleted, got %+v", change)
		}
		if change.PreviousContent != state[change.Path] {
			t.Fatalf("deleted change missing previous content: %+v", change)
		}
	}

	created := Changes(domain.FileState{}, state)
	if len(created) != len(state) {
		t.Fatalf("expected %d additions, got %d", len(state), len(created))
	}
	for _, change := range created {
		if change.Status != domain.ChangeNew {
			t.Fatalf("expected new, got %+v", change)
		}
	}
}

func TestChangesIdenticalSnapshotsEmpty(t *testing.T) {
	state := domain.FileState{"/a.js": "1"}
	if changes := Changes(state, state.Clone()); len(changes) != 0 {
		t.Fatalf("expected no changes, got %v", changes)
	}
	if changes := Changes(nil, nil); len(changes) != 0 {
		t.Fatalf("expected no changes for nil snapshots, got %v", changes)
	}
}

func TestStatusForDefaultsToNew(t *testing.T) {
	changes := []domain.FileChange{{Path: "/a.js", Status: domain.ChangeUpdated}}
	if got := StatusFor(changes, "/a.js"); got != domain.ChangeUpdated {
		t.Fatalf("expected updated, got %s", got)
	}
	if got := StatusFor(changes, "/missing.js"); got != domain.ChangeNew {
		t.Fatalf("expected new fallback, got %s", got)
	}
}
