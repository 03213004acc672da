package drift

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect_StructuralDiff(t *testing.T) {
	st := Detect([]string{"b", "a", "c"}, Set([]string{"a", "c", "z"}))

	assert.Equal(t, []string{"b"}, st.Added)
	assert.Equal(t, []string{"z"}, st.Deleted)
	assert.Equal(t, []string{"a", "c"}, st.Unchanged)
	assert.Empty(t, st.Modified)
	assert.True(t, st.HasChanges())
}

func TestDetectWithIncremental_DirtyKnownBecomesModified(t *testing.T) {
	st := DetectWithIncremental(
		[]string{"a", "b", "c"},
		Set([]string{"a", "b"}),
		Set([]string{"b", "c"}), // c is dirty but new, so stays added
	)

	assert.Equal(t, []string{"c"}, st.Added)
	assert.Equal(t, []string{"b"}, st.Modified)
	assert.Equal(t, []string{"a"}, st.Unchanged)
	assert.Empty(t, st.Deleted)
	assert.Equal(t, []string{"c", "b"}, st.Pending())
}

func TestDetect_NoChanges(t *testing.T) {
	st := Detect([]string{"a"}, Set([]string{"a"}))
	assert.False(t, st.HasChanges())
}

func TestDetect_EmptyInputs(t *testing.T) {
	st := Detect(nil, nil)
	assert.False(t, st.HasChanges())
	assert.Empty(t, st.Unchanged)
}

func TestDetect_DisjointAndExhaustive(t *testing.T) {
	// Property: over random inputs the classification partitions the live set
	// and added never intersects deleted.
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		var live []string
		known := map[string]struct{}{}
		dirty := map[string]struct{}{}
		for i := 0; i < 30; i++ {
			p := fmt.Sprintf("p%02d", i)
			if rng.Intn(3) > 0 {
				live = append(live, p)
			}
			if rng.Intn(2) == 0 {
				known[p] = struct{}{}
			}
			if rng.Intn(4) == 0 {
				dirty[p] = struct{}{}
			}
		}

		st := DetectWithIncremental(live, known, dirty)

		counts := map[string]int{}
		for _, group := range [][]string{st.Added, st.Modified, st.Unchanged} {
			for _, p := range group {
				counts[p]++
			}
		}
		for _, p := range live {
			assert.Equal(t, 1, counts[p], "live path %s", p)
		}
		assert.Len(t, counts, len(live))

		deleted := Set(st.Deleted)
		for _, p := range st.Added {
			assert.NotContains(t, deleted, p)
		}
		assert.Equal(t, len(st.Added)+len(st.Modified)+len(st.Deleted) > 0, st.HasChanges())
	}
}
