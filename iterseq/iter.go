// Package iterseq is the shared pull-based lazy sequence abstraction used
// by the object store, tag store and solver. It exists because several
// spfs components need finite-but-unbounded sequences (tag streams,
// directory listings, build lists) without materializing everything up
// front, and without a dependency on any particular async runtime --
// Next is called synchronously and may itself block on I/O.
package iterseq

import "context"

// Iterator yields a finite sequence of T. Next returns (zero, false, nil)
// once exhausted. A non-nil error short-circuits iteration; callers should
// stop calling Next after the first error. Implementations that hold
// locks or file handles must release them no later than the call that
// returns ok=false or a non-nil error.
type Iterator[T any] interface {
	Next(ctx context.Context) (T, bool, error)
}

// Func adapts a plain function into an Iterator.
type Func[T any] func(ctx context.Context) (T, bool, error)

// Next implements Iterator.
func (f Func[T]) Next(ctx context.Context) (T, bool, error) {
	return f(ctx)
}

// Slice returns an Iterator over a fixed, already-materialized slice.
func Slice[T any](items []T) Iterator[T] {
	i := 0
	return Func[T](func(ctx context.Context) (T, bool, error) {
		var zero T
		if i >= len(items) {
			return zero, false, nil
		}
		item := items[i]
		i++
		return item, true, nil
	})
}

// Collect drains it into a slice. Intended for tests and small, known-bounded
// sequences (a tag stream, a listing) -- not for walking an entire object
// store.
func Collect[T any](ctx context.Context, it Iterator[T]) ([]T, error) {
	var out []T
	for {
		item, ok, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, item)
	}
}

// Filter returns an Iterator yielding only the items of it for which keep
// returns true.
func Filter[T any](it Iterator[T], keep func(T) bool) Iterator[T] {
	return Func[T](func(ctx context.Context) (T, bool, error) {
		for {
			item, ok, err := it.Next(ctx)
			if err != nil || !ok {
				return item, ok, err
			}
			if keep(item) {
				return item, true, nil
			}
		}
	})
}

// Map returns an Iterator applying f to each item of it. Errors from f
// terminate the sequence.
func Map[T, U any](it Iterator[T], f func(T) (U, error)) Iterator[U] {
	return Func[U](func(ctx context.Context) (U, bool, error) {
		var zero U
		item, ok, err := it.Next(ctx)
		if err != nil || !ok {
			return zero, ok, err
		}
		mapped, err := f(item)
		if err != nil {
			return zero, false, err
		}
		return mapped, true, nil
	})
}
