package solve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spfs-io/spfs/ident"
)

// sliceBuildIterator yields a fixed, pre-built sequence of candidates, for
// tests that want to drive SortedBuildIterator without a real Repository.
type sliceBuildIterator struct {
	items  []*Spec
	cursor int
}

func (it *sliceBuildIterator) Next(ctx context.Context) (*Spec, PackageSource, bool, error) {
	if it.cursor >= len(it.items) {
		return nil, PackageSource{}, false, nil
	}
	spec := it.items[it.cursor]
	it.cursor++
	return spec, PackageSource{}, true, nil
}

func (it *sliceBuildIterator) Len() int      { return len(it.items) - it.cursor }
func (it *sliceBuildIterator) IsEmpty() bool { return it.cursor >= len(it.items) }

func binaryBuildSpec(t *testing.T, name string, digestByte byte, options map[string]string) *Spec {
	t.Helper()
	var chars [ident.DigestSize]byte
	for i := range chars {
		chars[i] = digestByte
	}
	return &Spec{
		Pkg: ident.BuildIdent{
			Name:    name,
			Version: ident.Version{Parts: []uint64{1, 0, 0}},
			Build:   ident.NewDigestBuild(chars),
		},
		Options: options,
	}
}

func sourceBuildSpec(name string) *Spec {
	return &Spec{
		Pkg: ident.BuildIdent{
			Name:    name,
			Version: ident.Version{Parts: []uint64{1, 0, 0}},
			Build:   ident.NewSourceBuild(),
		},
	}
}

func drainSortedNames(t *testing.T, it *SortedBuildIterator) []string {
	t.Helper()
	ctx := context.Background()
	var names []string
	for {
		spec, _, more, err := it.Next(ctx)
		require.NoError(t, err)
		if !more {
			break
		}
		names = append(names, spec.Pkg.Build.String())
	}
	return names
}

// TestSortedBuildIterator_PriorityHonored reproduces the worked example:
// three builds with options {gcc:9,python:3.7}, {gcc:11,python:3.7},
// {gcc:9,python:3.10} must yield (gcc=11,python=3.7), (gcc=9,python=3.10),
// (gcc=9,python=3.7), in that order.
func TestSortedBuildIterator_PriorityHonored(t *testing.T) {
	a := binaryBuildSpec(t, "pkg", 'A', map[string]string{"gcc": "9", "python": "3.7"})
	b := binaryBuildSpec(t, "pkg", 'B', map[string]string{"gcc": "11", "python": "3.7"})
	c := binaryBuildSpec(t, "pkg", 'C', map[string]string{"gcc": "9", "python": "3.10"})

	it := NewSortedBuildIterator(&sliceBuildIterator{items: []*Spec{a, b, c}})
	got := drainSortedNames(t, it)

	require.Equal(t,
		[]string{b.Pkg.Build.String(), c.Pkg.Build.String(), a.Pkg.Build.String()},
		got,
	)
}

// TestSortedBuildIterator_SourceBuildsAlwaysLast ensures source builds sort
// after every binary candidate regardless of where they appear in the
// unsorted input.
func TestSortedBuildIterator_SourceBuildsAlwaysLast(t *testing.T) {
	src := sourceBuildSpec("pkg")
	a := binaryBuildSpec(t, "pkg", 'A', map[string]string{"gcc": "9"})
	b := binaryBuildSpec(t, "pkg", 'B', map[string]string{"gcc": "11"})

	it := NewSortedBuildIterator(&sliceBuildIterator{items: []*Spec{src, a, b}})
	got := drainSortedNames(t, it)

	require.Len(t, got, 3)
	require.Equal(t, src.Pkg.Build.String(), got[2], "source build must sort last")
}

// TestSortedBuildIterator_MissingOptionKeyCollision pins the behavior when
// a candidate is simply missing a key other candidates vary on: its key
// column for that name is treated as the empty string, the same as
// OptionMap's default-on-miss lookup semantics, rather than excluding the
// candidate from the key entirely.
func TestSortedBuildIterator_MissingOptionKeyCollision(t *testing.T) {
	withGcc := binaryBuildSpec(t, "pkg", 'A', map[string]string{"gcc": "9"})
	without := binaryBuildSpec(t, "pkg", 'B', map[string]string{})

	it := NewSortedBuildIterator(&sliceBuildIterator{items: []*Spec{withGcc, without}})
	got := drainSortedNames(t, it)

	// key("") < key("9"): the missing-key build sorts first ascending.
	require.Equal(t, []string{without.Pkg.Build.String(), withGcc.Pkg.Build.String()}, got)
}

func TestSortedBuildIterator_LenAndIsEmptyBeforeLoad(t *testing.T) {
	inner := &sliceBuildIterator{items: []*Spec{binaryBuildSpec(t, "pkg", 'A', nil)}}
	it := NewSortedBuildIterator(inner)
	require.Equal(t, 1, it.Len())
	require.False(t, it.IsEmpty())
}

func TestSortedBuildIterator_EmptyInnerIsEmpty(t *testing.T) {
	it := NewSortedBuildIterator(&sliceBuildIterator{})
	ctx := context.Background()
	_, _, more, err := it.Next(ctx)
	require.NoError(t, err)
	require.False(t, more)
	require.True(t, it.IsEmpty())
}
