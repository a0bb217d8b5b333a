package ipfscid

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/store"
)

func writeBlob(t *testing.T, backend store.Backend, content []byte) digest.Digest {
	t.Helper()
	ctx := context.Background()
	payloadDigest, n, err := backend.WritePayload(ctx, bytes.NewReader(content))
	require.NoError(t, err)
	blob := graph.Blob{PayloadDigest: payloadDigest, Size: uint64(n)}
	require.NoError(t, backend.WriteObject(ctx, blob))
	return graph.Digest(blob)
}

func TestExport_PublishesObjectAndPayloadBlocks(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemBackend()
	d := writeBlob(t, backend, []byte("hello ipfs"))

	bs, mapping, err := Export(ctx, backend, []digest.Digest{d})
	require.NoError(t, err)

	objCID, ok := mapping[d]
	require.True(t, ok, "object digest must be present in the mapping")
	has, err := bs.Has(ctx, objCID)
	require.NoError(t, err)
	require.True(t, has)

	obj, err := backend.ReadObject(ctx, d)
	require.NoError(t, err)
	blob := obj.(graph.Blob)
	payloadCID, ok := mapping[blob.PayloadDigest]
	require.True(t, ok, "payload digest must be present in the mapping")

	block, err := bs.Get(ctx, payloadCID)
	require.NoError(t, err)
	require.Equal(t, []byte("hello ipfs"), block.RawData())
}

func TestExport_SharedChildPublishedOnce(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemBackend()
	shared := writeBlob(t, backend, []byte("shared"))

	manifestA := graph.NewManifest([]graph.Entry{{Name: "a", Kind: graph.EntryFile, Object: shared}})
	manifestB := graph.NewManifest([]graph.Entry{{Name: "b", Kind: graph.EntryFile, Object: shared}})
	require.NoError(t, backend.WriteObject(ctx, manifestA))
	require.NoError(t, backend.WriteObject(ctx, manifestB))

	roots := []digest.Digest{graph.Digest(manifestA), graph.Digest(manifestB)}
	_, mapping, err := Export(ctx, backend, roots)
	require.NoError(t, err)

	// shared blob + its payload + 2 manifests = 4 entries, not 5.
	require.Len(t, mapping, 4)
}

func TestExport_DistinctDigestsMapToDistinctCIDs(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemBackend()
	a := writeBlob(t, backend, []byte("one"))
	b := writeBlob(t, backend, []byte("two"))

	_, mapping, err := Export(ctx, backend, []digest.Digest{a, b})
	require.NoError(t, err)
	require.NotEqual(t, mapping[a], mapping[b])
}

func TestExport_UnknownRootErrors(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemBackend()

	_, _, err := Export(ctx, backend, []digest.Digest{digest.FromBytes([]byte("never written"))})
	require.Error(t, err)
}
