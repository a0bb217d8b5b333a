package store

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/graph"
)

// countingBackend wraps a Backend and counts calls to ReadObject, so tests
// can assert a cache actually avoids repeat reads rather than just
// returning the right value.
type countingBackend struct {
	Backend
	reads int
}

func (b *countingBackend) ReadObject(ctx context.Context, d digest.Digest) (graph.Object, error) {
	b.reads++
	return b.Backend.ReadObject(ctx, d)
}

func TestCachingBackendServesRepeatedReadsFromCache(t *testing.T) {
	ctx := context.Background()
	counting := &countingBackend{Backend: NewMemBackend()}

	_, _, err := counting.WritePayload(ctx, bytes.NewReader(nil))
	require.NoError(t, err)

	blob := graph.Blob{PayloadDigest: digest.FromBytes([]byte("x")), Size: 1}
	require.NoError(t, counting.WriteObject(ctx, blob))
	d := graph.Digest(blob)

	cache, err := NewCachingBackend(counting, 8)
	require.NoError(t, err)

	first, err := cache.ReadObject(ctx, d)
	require.NoError(t, err)
	require.Equal(t, blob, first)
	require.Equal(t, 1, counting.reads)

	second, err := cache.ReadObject(ctx, d)
	require.NoError(t, err)
	require.Equal(t, blob, second)
	require.Equal(t, 1, counting.reads, "second read should be served from cache")
}

func TestCachingBackendHasObjectHitsCacheWithoutUnderlyingCall(t *testing.T) {
	ctx := context.Background()
	mem := NewMemBackend()
	blob := graph.Blob{PayloadDigest: digest.FromBytes([]byte("y")), Size: 1}
	require.NoError(t, mem.WriteObject(ctx, blob))
	d := graph.Digest(blob)

	cache, err := NewCachingBackend(mem, 8)
	require.NoError(t, err)

	_, err = cache.ReadObject(ctx, d)
	require.NoError(t, err)

	ok, err := cache.HasObject(ctx, d)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCachingBackendMissPropagatesError(t *testing.T) {
	ctx := context.Background()
	cache, err := NewCachingBackend(NewMemBackend(), 8)
	require.NoError(t, err)

	_, err = cache.ReadObject(ctx, digest.FromBytes([]byte("missing")))
	require.Error(t, err)
}

func TestCachingBackendWriteObjectPrimesCache(t *testing.T) {
	ctx := context.Background()
	counting := &countingBackend{Backend: NewMemBackend()}
	cache, err := NewCachingBackend(counting, 8)
	require.NoError(t, err)

	blob := graph.Blob{PayloadDigest: digest.FromBytes([]byte("z")), Size: 1}
	require.NoError(t, cache.WriteObject(ctx, blob))

	got, err := cache.ReadObject(ctx, graph.Digest(blob))
	require.NoError(t, err)
	require.Equal(t, blob, got)
	require.Equal(t, 0, counting.reads, "write should have primed the cache, no underlying read needed")
}

func TestCachingBackendName(t *testing.T) {
	cache, err := NewCachingBackend(NewMemBackend(), 8)
	require.NoError(t, err)
	require.Equal(t, "cache+mem", cache.Name())
}
