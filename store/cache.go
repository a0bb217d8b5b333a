package store

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/rtmetrics"
)

// CachingBackend wraps a Backend with an in-memory LRU cache of decoded
// objects, keyed by digest. Since every object is content-addressed and
// therefore immutable once written, a cache entry never needs
// invalidation -- only eviction. Grounded on the teacher's blob
// descriptor cache (registry/storage/cache), narrowed from a descriptor
// cache to a decoded-object cache since spfs objects are small and cheap
// to keep around whole rather than re-reading and re-decoding on every
// lookup.
type CachingBackend struct {
	Backend
	objects *lru.Cache[digest.Digest, graph.Object]
}

// NewCachingBackend wraps backend with an LRU cache holding up to size
// decoded objects. Payload bytes are never cached; only the small
// decoded object records (Blob/Manifest/Layer/Platform) are.
func NewCachingBackend(backend Backend, size int) (*CachingBackend, error) {
	objects, err := lru.New[digest.Digest, graph.Object](size)
	if err != nil {
		return nil, err
	}
	return &CachingBackend{Backend: backend, objects: objects}, nil
}

func (c *CachingBackend) Name() string { return "cache+" + c.Backend.Name() }

func (c *CachingBackend) HasObject(ctx context.Context, d digest.Digest) (bool, error) {
	if _, ok := c.objects.Get(d); ok {
		rtmetrics.CacheHits.Inc()
		return true, nil
	}
	return c.Backend.HasObject(ctx, d)
}

func (c *CachingBackend) ReadObject(ctx context.Context, d digest.Digest) (graph.Object, error) {
	if obj, ok := c.objects.Get(d); ok {
		rtmetrics.CacheHits.Inc()
		return obj, nil
	}
	rtmetrics.CacheMisses.Inc()
	obj, err := c.Backend.ReadObject(ctx, d)
	if err != nil {
		return nil, err
	}
	c.objects.Add(d, obj)
	return obj, nil
}

func (c *CachingBackend) WriteObject(ctx context.Context, obj graph.Object) error {
	if err := c.Backend.WriteObject(ctx, obj); err != nil {
		return err
	}
	c.objects.Add(graph.Digest(obj), obj)
	return nil
}

// ReadPayload, WritePayload, HasPayload, IterObjects and
// IterPayloadDigests are not cache candidates (payloads can be large,
// and iteration must reflect the backend's true contents): they pass
// straight through to the embedded Backend via promotion.
var _ Backend = (*CachingBackend)(nil)
