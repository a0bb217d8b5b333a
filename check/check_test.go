package check

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/rterrors"
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

func TestRun_IntactGraphReportsNoErrors(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemBackend()
	d := writeBlob(t, backend, []byte("payload"))

	report, err := Run(ctx, backend, []digest.Digest{d}, Options{})
	require.NoError(t, err)
	require.Empty(t, report.Errors)
}

func TestRun_UnknownRootIsReported(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemBackend()

	report, err := Run(ctx, backend, []digest.Digest{digest.FromBytes([]byte("missing"))}, Options{})
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	require.IsType(t, rterrors.UnknownObject{}, report.Errors[0])
}

func TestRun_MissingPayloadIsReported(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemBackend()

	blob := graph.Blob{PayloadDigest: digest.FromBytes([]byte("never written")), Size: 4}
	require.NoError(t, backend.WriteObject(ctx, blob))
	d := graph.Digest(blob)

	report, err := Run(ctx, backend, []digest.Digest{d}, Options{})
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	require.IsType(t, rterrors.ObjectMissingPayload{}, report.Errors[0])
}

// TestRun_DoesNotShortCircuit confirms one corrupt subtree does not hide
// problems in an unrelated one: a platform stacking one intact layer and
// one layer pointing at an unknown manifest must report the unknown
// manifest, with no other errors from the intact half of the stack.
func TestRun_DoesNotShortCircuit(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemBackend()

	goodBlob := writeBlob(t, backend, []byte("good"))
	goodManifest := graph.NewManifest([]graph.Entry{{Name: "f", Kind: graph.EntryFile, Object: goodBlob}})
	require.NoError(t, backend.WriteObject(ctx, goodManifest))
	goodLayer := graph.Layer{Manifest: graph.Digest(goodManifest)}
	require.NoError(t, backend.WriteObject(ctx, goodLayer))

	brokenLayer := graph.Layer{Manifest: digest.FromBytes([]byte("never written manifest"))}
	require.NoError(t, backend.WriteObject(ctx, brokenLayer))

	platform := graph.Platform{Stack: []digest.Digest{graph.Digest(goodLayer), graph.Digest(brokenLayer)}}
	require.NoError(t, backend.WriteObject(ctx, platform))

	report, err := Run(ctx, backend, []digest.Digest{graph.Digest(platform)}, Options{})
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	require.IsType(t, rterrors.UnknownObject{}, report.Errors[0])
}

func TestRun_SharedChildCheckedOnce(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemBackend()
	shared := writeBlob(t, backend, []byte("shared"))

	manifestA := graph.NewManifest([]graph.Entry{{Name: "a", Kind: graph.EntryFile, Object: shared}})
	manifestB := graph.NewManifest([]graph.Entry{{Name: "b", Kind: graph.EntryFile, Object: shared}})
	require.NoError(t, backend.WriteObject(ctx, manifestA))
	require.NoError(t, backend.WriteObject(ctx, manifestB))

	roots := []digest.Digest{graph.Digest(manifestA), graph.Digest(manifestB)}
	report, err := Run(ctx, backend, roots, Options{Concurrency: 4})
	require.NoError(t, err)
	require.Empty(t, report.Errors)
}

func TestRunAllTags_WalksEveryStreamHead(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemBackend()
	tags := track.NewFSStore(t.TempDir())

	intact := writeBlob(t, backend, []byte("intact"))
	require.NoError(t, tags.PushRawTag(ctx, track.NewTag("org", "a", intact, digest.Nil, "", time.Now())))

	missing := digest.FromBytes([]byte("never written"))
	require.NoError(t, tags.PushRawTag(ctx, track.NewTag("org", "b", missing, digest.Nil, "", time.Now())))

	report, err := RunAllTags(ctx, backend, tags, Options{})
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	require.IsType(t, rterrors.UnknownObject{}, report.Errors[0])
}
