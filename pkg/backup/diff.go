// Package backup implements diff-based versioned backups of an index's
// file set to remote storage, and restores from them. Only files absent
// from the most recent version are uploaded; each version's manifest still
// lists the complete file set, so a restore never walks a chain of diffs.
package backup

import "sort"

// DiffInfo is the three-way partition between the last backed-up file set
// and the current one. AlreadyUploaded and ToBeAdded are disjoint;
// AlreadyUploaded+ToBeRemoved is the previous version's full set and
// AlreadyUploaded+ToBeAdded the current one.
type DiffInfo struct {
	AlreadyUploaded map[string]struct{}
	ToBeAdded       map[string]struct{}
	ToBeRemoved     map[string]struct{}
}

// GenerateDiffInfo computes the partition between the previous version's
// file names and the current file names.
func GenerateDiffInfo(oldFileNames, currentFileNames []string) DiffInfo {
	old := toSet(oldFileNames)
	current := toSet(currentFileNames)

	diff := DiffInfo{
		AlreadyUploaded: make(map[string]struct{}),
		ToBeAdded:       make(map[string]struct{}),
		ToBeRemoved:     make(map[string]struct{}),
	}
	for name := range current {
		if _, ok := old[name]; ok {
			diff.AlreadyUploaded[name] = struct{}{}
		} else {
			diff.ToBeAdded[name] = struct{}{}
		}
	}
	for name := range old {
		if _, ok := current[name]; !ok {
			diff.ToBeRemoved[name] = struct{}{}
		}
	}
	return diff
}

// CurrentFileNames returns the new version's complete file listing,
// sorted for a deterministic manifest.
func (d DiffInfo) CurrentFileNames() []string {
	names := make([]string, 0, len(d.AlreadyUploaded)+len(d.ToBeAdded))
	for name := range d.AlreadyUploaded {
		names = append(names, name)
	}
	for name := range d.ToBeAdded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
