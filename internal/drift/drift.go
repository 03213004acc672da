// Package drift reconciles the live file set against the paths the chunk
// cache already knows.
package drift

import "sort"

// State is the outcome of one reconciliation. The four lists are disjoint and
// sorted. Every live path is in exactly one of Added, Modified or Unchanged.
type State struct {
	Added     []string `json:"added"`
	Modified  []string `json:"modified"`
	Deleted   []string `json:"deleted"`
	Unchanged []string `json:"unchanged"`
}

// HasChanges reports whether anything was added, modified or deleted.
func (s State) HasChanges() bool {
	return len(s.Added)+len(s.Modified)+len(s.Deleted) > 0
}

// Pending returns Added followed by Modified: the paths to process.
func (s State) Pending() []string {
	out := make([]string, 0, len(s.Added)+len(s.Modified))
	out = append(out, s.Added...)
	return append(out, s.Modified...)
}

// Detect performs the structural diff: added = live - known,
// deleted = known - live, unchanged = live ∩ known.
func Detect(live []string, known map[string]struct{}) State {
	return DetectWithIncremental(live, known, nil)
}

// DetectWithIncremental is Detect followed by a refinement: any path that is
// both known and dirty moves from Unchanged to Modified.
func DetectWithIncremental(live []string, known map[string]struct{}, dirty map[string]struct{}) State {
	var st State
	liveSet := make(map[string]struct{}, len(live))

	for _, p := range live {
		if _, dup := liveSet[p]; dup {
			continue
		}
		liveSet[p] = struct{}{}

		if _, ok := known[p]; !ok {
			st.Added = append(st.Added, p)
			continue
		}
		if _, ok := dirty[p]; ok {
			st.Modified = append(st.Modified, p)
			continue
		}
		st.Unchanged = append(st.Unchanged, p)
	}

	for p := range known {
		if _, ok := liveSet[p]; !ok {
			st.Deleted = append(st.Deleted, p)
		}
	}

	sort.Strings(st.Added)
	sort.Strings(st.Modified)
	sort.Strings(st.Deleted)
	sort.Strings(st.Unchanged)
	return st
}

// Set builds a lookup set from a slice.
func Set(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
