package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spfs-io/spfs/ident"
	"github.com/spfs-io/spfs/rterrors"
	"github.com/spfs-io/spfs/solve"
	"github.com/spfs-io/spfs/store"
	"github.com/spfs-io/spfs/track"
)

func newTestHandle(t *testing.T) *Handle {
	t.Helper()
	return New("test", store.NewMemBackend(), track.NewFSStore(t.TempDir()))
}

func testBuildIdent(t *testing.T, repoName, name, version string) ident.BuildIdent {
	t.Helper()
	v, err := ident.ParseVersion(version)
	require.NoError(t, err)
	var digestChars [ident.DigestSize]byte
	copy(digestChars[:], "ABCDEFGH")
	return ident.BuildIdent{
		RepositoryName: repoName,
		Name:           name,
		Version:        v,
		Build:          ident.NewDigestBuild(digestChars),
	}
}

func TestPublishAndReadSpecRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newTestHandle(t)
	id := testBuildIdent(t, h.Name(), "mypkg", "1.0.0")

	want := solve.Spec{Pkg: id, Deprecated: false, Options: map[string]string{"debug": "off"}}
	require.NoError(t, h.PublishSpec(ctx, id, want))

	got, err := h.ReadSpec(ctx, id)
	require.NoError(t, err)
	require.Equal(t, want.Deprecated, got.Deprecated)
	require.Equal(t, want.Options, got.Options)
}

func TestReadSpecUnpublishedIsNotFound(t *testing.T) {
	ctx := context.Background()
	h := newTestHandle(t)
	id := testBuildIdent(t, h.Name(), "mypkg", "1.0.0")

	_, err := h.ReadSpec(ctx, id)
	require.Error(t, err)
}

func TestPublishComponentAndGetPackage(t *testing.T) {
	ctx := context.Background()
	h := newTestHandle(t)
	id := testBuildIdent(t, h.Name(), "mypkg", "1.0.0")

	require.NoError(t, h.PublishSpec(ctx, id, solve.Spec{Pkg: id}))

	runDigest, err := h.writeBlob(ctx, []byte("run component payload"))
	require.NoError(t, err)
	require.NoError(t, h.PublishComponent(ctx, id, "run", runDigest))

	buildDigest, err := h.writeBlob(ctx, []byte("build component payload"))
	require.NoError(t, err)
	require.NoError(t, h.PublishComponent(ctx, id, "build", buildDigest))

	components, err := h.GetPackage(ctx, id)
	require.NoError(t, err)
	require.Len(t, components, 2)
	require.Equal(t, runDigest, components["run"])
	require.Equal(t, buildDigest, components["build"])
	require.NotContains(t, components, specTagName)
}

func TestGetPackageWithNoComponentsIsNotFound(t *testing.T) {
	ctx := context.Background()
	h := newTestHandle(t)
	id := testBuildIdent(t, h.Name(), "mypkg", "1.0.0")

	_, err := h.GetPackage(ctx, id)
	require.Error(t, err)
}

func TestListPackageVersions(t *testing.T) {
	ctx := context.Background()
	h := newTestHandle(t)

	for _, v := range []string{"1.0.0", "2.0.0"} {
		id := testBuildIdent(t, h.Name(), "mypkg", v)
		require.NoError(t, h.PublishSpec(ctx, id, solve.Spec{Pkg: id}))
	}

	versions, err := h.ListPackageVersions(ctx, "mypkg")
	require.NoError(t, err)
	require.Len(t, versions, 2)
}

func TestListPackageBuilds(t *testing.T) {
	ctx := context.Background()
	h := newTestHandle(t)
	id := testBuildIdent(t, h.Name(), "mypkg", "1.0.0")
	require.NoError(t, h.PublishSpec(ctx, id, solve.Spec{Pkg: id}))

	builds, err := h.ListPackageBuilds(ctx, id.Ident())
	require.NoError(t, err)
	require.Len(t, builds, 1)
	require.True(t, builds[0].Build.Equal(id.Build))
}

func TestResolveRefByFullDigest(t *testing.T) {
	ctx := context.Background()
	h := newTestHandle(t)

	d, err := h.writeBlob(ctx, []byte("content"))
	require.NoError(t, err)

	got, err := h.ResolveRef(ctx, d.String())
	require.NoError(t, err)
	require.Equal(t, d, got)
}

func TestResolveRefByUniquePrefix(t *testing.T) {
	ctx := context.Background()
	h := newTestHandle(t)

	d, err := h.writeBlob(ctx, []byte("some unique content"))
	require.NoError(t, err)

	got, err := h.ResolveRef(ctx, d.String()[:8])
	require.NoError(t, err)
	require.Equal(t, d, got)
}

func TestResolveRefByTag(t *testing.T) {
	ctx := context.Background()
	h := newTestHandle(t)
	id := testBuildIdent(t, h.Name(), "mypkg", "1.0.0")
	require.NoError(t, h.PublishSpec(ctx, id, solve.Spec{Pkg: id}))

	specDigest, err := h.readBuildTag(ctx, id, specTagName)
	require.NoError(t, err)

	got, err := h.ResolveRef(ctx, id.TagPath()+"/"+specTagName)
	require.NoError(t, err)
	require.Equal(t, specDigest, got)
}

func TestResolveRefUnknownReturnsUnknownReference(t *testing.T) {
	ctx := context.Background()
	h := newTestHandle(t)

	_, err := h.ResolveRef(ctx, "nothing/like/this")
	require.Error(t, err)
}

func TestResolveRefAmbiguousPrefixReturnsAmbiguousReference(t *testing.T) {
	ctx := context.Background()
	h := newTestHandle(t)

	_, err := h.writeBlob(ctx, []byte("first"))
	require.NoError(t, err)
	_, err = h.writeBlob(ctx, []byte("second"))
	require.NoError(t, err)

	_, err = h.ResolveRef(ctx, "")
	require.Error(t, err)
	var ambiguous rterrors.AmbiguousReference
	require.ErrorAs(t, err, &ambiguous)
}

func TestFindAliases(t *testing.T) {
	ctx := context.Background()
	h := newTestHandle(t)
	id := testBuildIdent(t, h.Name(), "mypkg", "1.0.0")
	require.NoError(t, h.PublishSpec(ctx, id, solve.Spec{Pkg: id}))

	aliases, err := h.FindAliases(ctx, id.TagPath()+"/"+specTagName)
	require.NoError(t, err)
	require.Contains(t, aliases, id.TagPath()+"/"+specTagName)
}

func TestGetShortenedDigestFallsBackWhenUnique(t *testing.T) {
	ctx := context.Background()
	h := newTestHandle(t)
	d, err := h.writeBlob(ctx, []byte("only object in the store"))
	require.NoError(t, err)

	short, err := h.GetShortenedDigest(ctx, d)
	require.NoError(t, err)
	require.NotEmpty(t, short)
	require.True(t, len(short) <= len(d.String()))
}

func TestRequireTagsErrorsWithoutTagStore(t *testing.T) {
	h := New("readonly", store.NewMemBackend(), nil)
	_, err := h.ListPackageVersions(context.Background(), "anything")
	require.Error(t, err)
}

func TestWriteBlobReadBlobPayloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newTestHandle(t)

	d, err := h.writeBlob(ctx, []byte("round trip me"))
	require.NoError(t, err)

	got, err := h.readBlobPayload(ctx, d)
	require.NoError(t, err)
	require.Equal(t, "round trip me", string(got))
}
