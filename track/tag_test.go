package track

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spfs-io/spfs/digest"
)

func TestTagEncodeDecodeRoundTrip(t *testing.T) {
	target := digest.FromBytes([]byte("target"))
	parent := digest.FromBytes([]byte("parent"))
	at := time.Unix(1700000000, 0).UTC()
	tag := NewTag("myorg", "myplatform", target, parent, "alice", at)

	var buf bytes.Buffer
	require.NoError(t, tag.Encode(&buf))

	got, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, tag, got)
}

func TestTagSpecVersionIsAlwaysZero(t *testing.T) {
	tag := NewTag("myorg", "myplatform", digest.Nil, digest.Nil, "", time.Now())
	require.Equal(t, TagSpec{Org: "myorg", Name: "myplatform", Version: 0}, tag.Spec())
}

func TestTagDigestIsStableAndContentAddressed(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	a := NewTag("myorg", "myplatform", digest.FromBytes([]byte("a")), digest.Nil, "alice", at)
	b := NewTag("myorg", "myplatform", digest.FromBytes([]byte("a")), digest.Nil, "alice", at)
	c := NewTag("myorg", "myplatform", digest.FromBytes([]byte("b")), digest.Nil, "alice", at)

	require.Equal(t, a.Digest(), b.Digest(), "identical tags hash identically")
	require.NotEqual(t, a.Digest(), c.Digest(), "different targets must hash differently")
}

func TestTagChaining(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	first := NewTag("myorg", "myplatform", digest.FromBytes([]byte("v1")), digest.Nil, "alice", at)
	second := NewTag("myorg", "myplatform", digest.FromBytes([]byte("v2")), first.Digest(), "alice", at.Add(time.Hour))

	require.Equal(t, first.Digest(), second.Parent)
}
