package model

import (
	"slices"
)

// PageDiff lists how the pages of two runs of one site differ.
type PageDiff struct {
	// BaseRunID and RunID identify the compared runs.
	BaseRunID int64 `json:"base_run_id"`
	RunID     int64 `json:"run_id"`

	// Added are paths written only by the newer run.
	Added []string `json:"added"`

	// Removed are paths written only by the older run.
	Removed []string `json:"removed"`

	// Changed are paths whose content hash differs.
	Changed []string `json:"changed"`

	// Unchanged counts paths with identical content.
	Unchanged int `json:"unchanged"`
}

// HasChanges reports whether anything was added, removed or changed.
func (d *PageDiff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Changed) > 0
}

// DiffPages compares the pages of base with those of run by path and
// content hash. All result lists are sorted.
func DiffPages(base, run *Run) *PageDiff {
	diff := &PageDiff{
		BaseRunID: base.ID,
		RunID:     run.ID,
		Added:     make([]string, 0),
		Removed:   make([]string, 0),
		Changed:   make([]string, 0),
	}

	before := make(map[string]string, len(base.Pages))
	for _, p := range base.Pages {
		before[p.Path] = p.Hash
	}

	seen := make(map[string]struct{}, len(run.Pages))
	for _, p := range run.Pages {
		seen[p.Path] = struct{}{}
		hash, ok := before[p.Path]
		switch {
		case !ok:
			diff.Added = append(diff.Added, p.Path)
		case hash != p.Hash:
			diff.Changed = append(diff.Changed, p.Path)
		default:
			diff.Unchanged++
		}
	}
	for path := range before {
		if _, ok := seen[path]; !ok {
			diff.Removed = append(diff.Removed, path)
		}
	}

	slices.Sort(diff.Added)
	slices.Sort(diff.Removed)
	slices.Sort(diff.Changed)
	return diff
}
