// Package check implements the object-graph integrity checker: walking
// the Merkle DAG from a set of roots (or every known tag) and confirming
// every referenced object and payload is actually present. It never
// short-circuits on the first problem -- a single corrupt subtree should
// not hide every other finding in the same run.
package check

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/iterseq"
	"github.com/spfs-io/spfs/rterrors"
	"github.com/spfs-io/spfs/rtlog"
	"github.com/spfs-io/spfs/rtmetrics"
	"github.com/spfs-io/spfs/store"
	"github.com/spfs-io/spfs/track"
)

// DefaultConcurrency bounds how many objects are walked at once when no
// explicit concurrency is requested.
const DefaultConcurrency = 8

// Options configures a Run.
type Options struct {
	// Concurrency bounds the number of objects walked at once. Zero
	// uses DefaultConcurrency.
	Concurrency int
}

// Report collects every integrity problem found during a Run. A Report
// with no errors means the walked subtree(s) are fully intact.
type Report struct {
	mu     sync.Mutex
	Errors []error
}

func (r *Report) add(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err)
}

// Run walks every object reachable from roots and confirms each one is
// present, along with every Blob's payload. Errors are collected, not
// raised: a single rterrors.UnknownObject or rterrors.ObjectMissingPayload
// does not stop the walk from covering the rest of the graph.
func Run(ctx context.Context, backend store.Backend, roots []digest.Digest, opts Options) (*Report, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	report := &Report{}
	visited := newVisitedSet()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var walk func(d digest.Digest)
	walk = func(d digest.Digest) {
		if !visited.claim(d) {
			return
		}
		g.Go(func() error {
			checkOne(gctx, backend, d, report)
			children, err := childrenOf(gctx, backend, d, report)
			if err != nil {
				return nil
			}
			for _, c := range children {
				walk(c)
			}
			return nil
		})
	}

	for _, root := range roots {
		walk(root)
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

// RunAllTags walks every object reachable from every tag stream's current
// target in store, a convenience wrapper for the common "check everything
// this repository currently names" case.
func RunAllTags(ctx context.Context, backend store.Backend, tags track.Store, opts Options) (*Report, error) {
	streams := tags.IterTagStreams(ctx)
	var roots []digest.Digest
	for {
		entry, ok, err := streams.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		latest, err := iterseq.Collect(ctx, entry.Stream)
		if err != nil {
			return nil, err
		}
		if len(latest) > 0 {
			roots = append(roots, latest[0].Target)
		}
	}
	return Run(ctx, backend, roots, opts)
}

func checkOne(ctx context.Context, backend store.Backend, d digest.Digest, report *Report) {
	ok, err := backend.HasObject(ctx, d)
	if err != nil {
		rtlog.GetLogger(ctx, "digest", d).WithError(err).Warn("failed to check object presence")
		return
	}
	if !ok {
		report.add(rterrors.UnknownObject{Digest: d})
		rtmetrics.CheckErrors.WithValues("unknown_object").Inc()
	}
}

func childrenOf(ctx context.Context, backend store.Backend, d digest.Digest, report *Report) ([]digest.Digest, error) {
	obj, err := backend.ReadObject(ctx, d)
	if err != nil {
		// Already reported as UnknownObject by checkOne (or a genuine
		// read failure); nothing further to walk from here.
		return nil, err
	}
	if blob, ok := obj.(graph.Blob); ok {
		has, err := backend.HasPayload(ctx, blob.PayloadDigest)
		if err != nil {
			rtlog.GetLogger(ctx, "digest", blob.PayloadDigest).WithError(err).Warn("failed to check payload presence")
			return nil, err
		}
		if !has {
			report.add(rterrors.ObjectMissingPayload{Owner: d, Payload: blob.PayloadDigest})
			rtmetrics.CheckErrors.WithValues("missing_payload").Inc()
		}
		return nil, nil
	}
	return obj.Children(), nil
}

// visitedSet deduplicates walk targets across goroutines so a digest
// shared by multiple parents (a common manifest entry, a shared layer) is
// only checked once.
type visitedSet struct {
	mu   sync.Mutex
	seen map[digest.Digest]bool
}

func newVisitedSet() *visitedSet {
	return &visitedSet{seen: make(map[digest.Digest]bool)}
}

// claim reports whether d had not yet been seen, marking it seen either
// way.
func (v *visitedSet) claim(d digest.Digest) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.seen[d] {
		return false
	}
	v.seen[d] = true
	return true
}
