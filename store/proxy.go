package store

import (
	"context"
	"io"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/iterseq"
	"github.com/spfs-io/spfs/rterrors"
)

// Proxy reads through a priority-ordered list of backends, returning the
// first hit, and writes only to the first (highest-priority) backend.
// Grounded on the teacher's storagedriver middleware chaining pattern
// (registry/storage/driver/middleware), generalized from a single
// decorator to an ordered fan-out across independent backends.
type Proxy struct {
	backends []Backend
}

// NewProxy returns a Proxy reading through backends in order; backends[0]
// is the only one ever written to.
func NewProxy(backends ...Backend) *Proxy {
	return &Proxy{backends: backends}
}

func (p *Proxy) Name() string { return "proxy" }

func (p *Proxy) HasObject(ctx context.Context, d digest.Digest) (bool, error) {
	for _, b := range p.backends {
		ok, err := b.HasObject(ctx, d)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (p *Proxy) ReadObject(ctx context.Context, d digest.Digest) (graph.Object, error) {
	for _, b := range p.backends {
		obj, err := b.ReadObject(ctx, d)
		if err == nil {
			return obj, nil
		}
		if !isUnknownObject(err) {
			return nil, err
		}
	}
	return nil, rterrors.UnknownObject{Digest: d}
}

func (p *Proxy) WriteObject(ctx context.Context, obj graph.Object) error {
	if len(p.backends) == 0 {
		return ErrReadOnly
	}
	return p.backends[0].WriteObject(ctx, obj)
}

func (p *Proxy) HasPayload(ctx context.Context, d digest.Digest) (bool, error) {
	for _, b := range p.backends {
		ok, err := b.HasPayload(ctx, d)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (p *Proxy) ReadPayload(ctx context.Context, d digest.Digest) (io.ReadCloser, error) {
	for _, b := range p.backends {
		rc, err := b.ReadPayload(ctx, d)
		if err == nil {
			return rc, nil
		}
		if !isMissingPayload(err) {
			return nil, err
		}
	}
	return nil, rterrors.ObjectMissingPayload{Owner: d, Payload: d}
}

func (p *Proxy) WritePayload(ctx context.Context, r io.Reader) (digest.Digest, int64, error) {
	if len(p.backends) == 0 {
		return digest.Nil, 0, ErrReadOnly
	}
	return p.backends[0].WritePayload(ctx, r)
}

func (p *Proxy) IterObjects(ctx context.Context) iterseq.Iterator[digest.Digest] {
	return mergeDigestIterators(ctx, p.backends, Backend.IterObjects)
}

func (p *Proxy) IterPayloadDigests(ctx context.Context) iterseq.Iterator[digest.Digest] {
	return mergeDigestIterators(ctx, p.backends, Backend.IterPayloadDigests)
}

// mergeDigestIterators drains each backend's iterator in turn, deduping
// digests already seen from a higher-priority backend.
func mergeDigestIterators(ctx context.Context, backends []Backend, get func(Backend, context.Context) iterseq.Iterator[digest.Digest]) iterseq.Iterator[digest.Digest] {
	seen := make(map[digest.Digest]bool)
	idx := 0
	var cur iterseq.Iterator[digest.Digest]
	return iterseq.Func[digest.Digest](func(ctx context.Context) (digest.Digest, bool, error) {
		for {
			if cur == nil {
				if idx >= len(backends) {
					return digest.Nil, false, nil
				}
				cur = get(backends[idx], ctx)
				idx++
			}
			d, ok, err := cur.Next(ctx)
			if err != nil {
				return digest.Nil, false, err
			}
			if !ok {
				cur = nil
				continue
			}
			if seen[d] {
				continue
			}
			seen[d] = true
			return d, true, nil
		}
	})
}

func isUnknownObject(err error) bool {
	_, ok := err.(rterrors.UnknownObject)
	return ok
}

func isMissingPayload(err error) bool {
	_, ok := err.(rterrors.ObjectMissingPayload)
	return ok
}
