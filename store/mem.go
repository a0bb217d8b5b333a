package store

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/iterseq"
	"github.com/spfs-io/spfs/rterrors"
	"github.com/spfs-io/spfs/rtmetrics"
)

// MemBackend is an in-process Backend over plain maps, guarded by a single
// RWMutex. It exists for tests and for ephemeral/scratch repositories that
// never need to survive a process restart -- modeled on
// registry/storage/driver/inmemory, generalized from path-keyed blobs to
// digest-keyed objects and payloads.
type MemBackend struct {
	mu       sync.RWMutex
	objects  map[digest.Digest]graph.Object
	payloads map[digest.Digest][]byte
}

// NewMemBackend returns an empty MemBackend.
func NewMemBackend() *MemBackend {
	return &MemBackend{
		objects:  make(map[digest.Digest]graph.Object),
		payloads: make(map[digest.Digest][]byte),
	}
}

func (b *MemBackend) Name() string { return "mem" }

func (b *MemBackend) HasObject(ctx context.Context, d digest.Digest) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[d]
	return ok, nil
}

func (b *MemBackend) ReadObject(ctx context.Context, d digest.Digest) (graph.Object, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[d]
	if !ok {
		return nil, rterrors.UnknownObject{Digest: d}
	}
	return obj, nil
}

func (b *MemBackend) WriteObject(ctx context.Context, obj graph.Object) error {
	d := graph.Digest(obj)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[d] = obj
	return nil
}

func (b *MemBackend) HasPayload(ctx context.Context, d digest.Digest) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.payloads[d]
	return ok, nil
}

func (b *MemBackend) ReadPayload(ctx context.Context, d digest.Digest) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.payloads[d]
	if !ok {
		return nil, rterrors.ObjectMissingPayload{Owner: d, Payload: d}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *MemBackend) WritePayload(ctx context.Context, r io.Reader) (digest.Digest, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return digest.Nil, 0, err
	}
	d := digest.FromBytes(data)
	b.mu.Lock()
	b.payloads[d] = data
	b.mu.Unlock()
	rtmetrics.PayloadsWritten.WithValues(b.Name()).Inc()
	return d, int64(len(data)), nil
}

func (b *MemBackend) IterObjects(ctx context.Context) iterseq.Iterator[digest.Digest] {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]digest.Digest, 0, len(b.objects))
	for d := range b.objects {
		out = append(out, d)
	}
	return iterseq.Slice(out)
}

func (b *MemBackend) IterPayloadDigests(ctx context.Context) iterseq.Iterator[digest.Digest] {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]digest.Digest, 0, len(b.payloads))
	for d := range b.payloads {
		out = append(out, d)
	}
	return iterseq.Slice(out)
}
