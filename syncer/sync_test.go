package syncer

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/store"
	"github.com/spfs-io/spfs/track"
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

func TestSync_CopiesMissingObjectAndPayload(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemBackend()
	dst := store.NewMemBackend()
	d := writeBlob(t, src, []byte("payload"))

	summary, err := Sync(ctx, src, dst, []digest.Digest{d}, MissingOnly{})
	require.NoError(t, err)
	require.Equal(t, 1, summary.ObjectsSynced)
	require.EqualValues(t, len("payload"), summary.BytesSynced)

	has, err := dst.HasObject(ctx, d)
	require.NoError(t, err)
	require.True(t, has)
}

func TestSync_PostOrderChildrenBeforeParent(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemBackend()
	dst := store.NewMemBackend()

	blobDigest := writeBlob(t, src, []byte("content"))
	manifest := graph.NewManifest([]graph.Entry{{Name: "f", Kind: graph.EntryFile, Object: blobDigest}})
	require.NoError(t, src.WriteObject(ctx, manifest))
	layer := graph.Layer{Manifest: graph.Digest(manifest)}
	require.NoError(t, src.WriteObject(ctx, layer))

	_, err := Sync(ctx, src, dst, []digest.Digest{graph.Digest(layer)}, MissingOnly{})
	require.NoError(t, err)

	for _, d := range []digest.Digest{blobDigest, graph.Digest(manifest), graph.Digest(layer)} {
		has, err := dst.HasObject(ctx, d)
		require.NoError(t, err)
		require.True(t, has, "child objects must be present at dst")
	}
}

func TestSync_MissingOnlyDoesNotRecopyPresentObjects(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemBackend()
	dst := store.NewMemBackend()
	d := writeBlob(t, src, []byte("payload"))

	_, err := Sync(ctx, src, dst, []digest.Digest{d}, MissingOnly{})
	require.NoError(t, err)

	summary, err := Sync(ctx, src, dst, []digest.Digest{d}, MissingOnly{})
	require.NoError(t, err)
	require.Equal(t, 0, summary.ObjectsSynced, "already-present object should not be recounted")
}

func TestSync_ResyncEverythingRecountsPresentObjects(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemBackend()
	dst := store.NewMemBackend()
	d := writeBlob(t, src, []byte("payload"))

	_, err := Sync(ctx, src, dst, []digest.Digest{d}, MissingOnly{})
	require.NoError(t, err)

	summary, err := Sync(ctx, src, dst, []digest.Digest{d}, ResyncEverything{})
	require.NoError(t, err)
	require.Equal(t, 1, summary.ObjectsSynced, "ResyncEverything re-copies even present objects")
}

func TestSync_SharedChildOnlySyncedOnce(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemBackend()
	dst := store.NewMemBackend()
	shared := writeBlob(t, src, []byte("shared"))

	manifestA := graph.NewManifest([]graph.Entry{{Name: "a", Kind: graph.EntryFile, Object: shared}})
	manifestB := graph.NewManifest([]graph.Entry{{Name: "b", Kind: graph.EntryFile, Object: shared}})
	require.NoError(t, src.WriteObject(ctx, manifestA))
	require.NoError(t, src.WriteObject(ctx, manifestB))

	roots := []digest.Digest{graph.Digest(manifestA), graph.Digest(manifestB)}
	summary, err := Sync(ctx, src, dst, roots, MissingOnly{})
	require.NoError(t, err)
	// shared blob + 2 manifests = 3 objects, not 4.
	require.Equal(t, 3, summary.ObjectsSynced)
}

func TestSyncTagStreams_PushesRecordsAndObjects(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemBackend()
	dst := store.NewMemBackend()
	srcTags := track.NewFSStore(t.TempDir())
	dstTags := track.NewFSStore(t.TempDir())

	d := writeBlob(t, src, []byte("payload"))
	require.NoError(t, srcTags.PushRawTag(ctx, track.NewTag("org", "name", d, digest.Nil, "", time.Now())))

	summary, err := SyncTagStreams(ctx, src, dst, srcTags, dstTags, MissingOnly{})
	require.NoError(t, err)
	require.Equal(t, 1, summary.ObjectsSynced)

	stream, err := dstTags.ReadTag(ctx, track.TagSpec{Org: "org", Name: "name"})
	require.NoError(t, err)
	tag, ok, err := stream.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, d, tag.Target)
}

func TestSyncTagStreams_SkipsAlreadyPushedRecords(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemBackend()
	dst := store.NewMemBackend()
	srcTags := track.NewFSStore(t.TempDir())
	dstTags := track.NewFSStore(t.TempDir())

	d := writeBlob(t, src, []byte("payload"))
	tag := track.NewTag("org", "name", d, digest.Nil, "", time.Now())
	require.NoError(t, srcTags.PushRawTag(ctx, tag))

	_, err := SyncTagStreams(ctx, src, dst, srcTags, dstTags, MissingOnly{})
	require.NoError(t, err)

	summary, err := SyncTagStreams(ctx, src, dst, srcTags, dstTags, MissingOnly{})
	require.NoError(t, err)
	require.Equal(t, 0, summary.ObjectsSynced, "re-running sync over an unchanged stream should push nothing new")
}
