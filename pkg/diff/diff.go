// Package diff computes the minimal change-set between two project
// snapshots.
package diff

import (
	"sort"

	"promptforge/pkg/domain"
)

// Changes compares a previous snapshot against a new one and classifies
// every differing path as new, updated, or deleted. Paths whose content is
// identical in both snapshots are omitted. The result is sorted by path so
// output is deterministic; callers must not rely on any particular order.
func Changes(previous, next domain.FileState) []domain.FileChange {
	paths := make(map[string]struct{}, len(previous)+len(next))
	for path := range previous {
		paths[path] = struct{}{}
	}
	for path := range next {
		paths[path] = struct{}{}
	}

	changes := make([]domain.FileChange, 0, len(paths))
	for path := range paths {
		prevContent, inPrev := previous[path]
		nextContent, inNext := next[path]
		switch {
		case inPrev && !inNext:
			changes = append(changes, domain.FileChange{
				Path:            path,
				Status:          domain.ChangeDeleted,
				PreviousContent: prevContent,
			})
		case !inPrev && inNext:
			changes = append(changes, domain.FileChange{
				Path:   path,
				Status: domain.ChangeNew,
			})
		case prevContent != nextContent:
			changes = append(changes, domain.FileChange{
				Path:            path,
				Status:          domain.ChangeUpdated,
				PreviousContent: prevContent,
			})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

// StatusFor returns the change status recorded for path, or ChangeNew when
// the path does not appear in the change-set.
func StatusFor(changes []domain.FileChange, path string) domain.ChangeStatus {
	for _, change := range changes {
		if change.Path == path {
			return change.Status
		}
	}
	return domain.ChangeNew
}
