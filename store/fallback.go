package store

import (
	"context"
	"io"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/iterseq"
)

// PayloadFallback reads objects from Primary, and payloads from Primary
// first, falling back to Secondary only when Primary reports
// ObjectMissingPayload. This matches a repository that keeps small
// manifests locally but leaves large blob payloads on a slower/remote
// store until explicitly synced down: metadata lookups never pay the
// remote round trip, only payload reads do, and only when needed.
type PayloadFallback struct {
	Primary   Backend
	Secondary Backend
}

// NewPayloadFallback returns a PayloadFallback backend.
func NewPayloadFallback(primary, secondary Backend) *PayloadFallback {
	return &PayloadFallback{Primary: primary, Secondary: secondary}
}

func (f *PayloadFallback) Name() string { return "payload-fallback" }

func (f *PayloadFallback) HasObject(ctx context.Context, d digest.Digest) (bool, error) {
	return f.Primary.HasObject(ctx, d)
}

func (f *PayloadFallback) ReadObject(ctx context.Context, d digest.Digest) (graph.Object, error) {
	return f.Primary.ReadObject(ctx, d)
}

func (f *PayloadFallback) WriteObject(ctx context.Context, obj graph.Object) error {
	return f.Primary.WriteObject(ctx, obj)
}

func (f *PayloadFallback) HasPayload(ctx context.Context, d digest.Digest) (bool, error) {
	ok, err := f.Primary.HasPayload(ctx, d)
	if err != nil || ok {
		return ok, err
	}
	return f.Secondary.HasPayload(ctx, d)
}

func (f *PayloadFallback) ReadPayload(ctx context.Context, d digest.Digest) (io.ReadCloser, error) {
	rc, err := f.Primary.ReadPayload(ctx, d)
	if err == nil {
		return rc, nil
	}
	if !isMissingPayload(err) {
		return nil, err
	}
	return f.Secondary.ReadPayload(ctx, d)
}

func (f *PayloadFallback) WritePayload(ctx context.Context, r io.Reader) (digest.Digest, int64, error) {
	return f.Primary.WritePayload(ctx, r)
}

func (f *PayloadFallback) IterObjects(ctx context.Context) iterseq.Iterator[digest.Digest] {
	return f.Primary.IterObjects(ctx)
}

func (f *PayloadFallback) IterPayloadDigests(ctx context.Context) iterseq.Iterator[digest.Digest] {
	return mergeDigestIterators(ctx, []Backend{f.Primary, f.Secondary}, Backend.IterPayloadDigests)
}
