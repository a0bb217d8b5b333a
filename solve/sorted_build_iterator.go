package solve

import "context"

// SortedBuildIterator wraps another BuildIterator, draining it fully on
// first use and re-ordering its candidates by the dynamic build-option key
// computed in sortBuildOptionValues, rather than the source iterator's own
// order. This trades laziness for a deterministic order derived from the
// candidates' own option values.
type SortedBuildIterator struct {
	inner BuildIterator

	loaded bool
	items  []buildItem
	cursor int
}

// NewSortedBuildIterator wraps inner, deferring the drain-and-sort until
// the first call to Next.
func NewSortedBuildIterator(inner BuildIterator) *SortedBuildIterator {
	return &SortedBuildIterator{inner: inner}
}

func (it *SortedBuildIterator) load(ctx context.Context) error {
	if it.loaded {
		return nil
	}
	it.loaded = true
	for {
		spec, source, more, err := it.inner.Next(ctx)
		if err != nil {
			return err
		}
		if !more {
			break
		}
		it.items = append(it.items, buildItem{
			ident:      spec.Pkg,
			isSource:   spec.Pkg.IsSource(),
			deprecated: spec.Deprecated,
			options:    spec.Options,
			source:     source,
		})
	}
	sortBuildOptionValues(it.items)
	return nil
}

func (it *SortedBuildIterator) Next(ctx context.Context) (*Spec, PackageSource, bool, error) {
	if err := it.load(ctx); err != nil {
		return nil, PackageSource{}, false, err
	}
	if it.cursor >= len(it.items) {
		return nil, PackageSource{}, false, nil
	}
	item := it.items[it.cursor]
	it.cursor++
	spec := &Spec{Pkg: item.ident, Options: item.options, Deprecated: item.deprecated}
	return spec, item.source, true, nil
}

// Len reports the number of candidates remaining. Before the first Next
// call this is the inner iterator's own pre-sort estimate, since sorting
// requires a full drain.
func (it *SortedBuildIterator) Len() int {
	if !it.loaded {
		return it.inner.Len()
	}
	return len(it.items) - it.cursor
}

func (it *SortedBuildIterator) IsEmpty() bool {
	if !it.loaded {
		return it.inner.IsEmpty()
	}
	return it.cursor >= len(it.items)
}
