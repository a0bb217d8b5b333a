package digest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	d := FromBytes([]byte("hello world"))
	s := d.String()

	parsed, err := Parse(s)
	require.NoError(t, err)
	require.Equal(t, d, parsed)
}

func TestParseIsCaseInsensitive(t *testing.T) {
	d := FromBytes([]byte("hello world"))
	s := d.String()

	parsed, err := Parse(strings.ToLower(s))
	require.NoError(t, err)
	require.Equal(t, d, parsed)
}

func TestParseRejectsWrongLength(t *testing.T) {
	_, err := Parse("AA")
	require.ErrorIs(t, err, ErrInvalidDigest)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-valid-digest-at-all!!")
	require.ErrorIs(t, err, ErrInvalidDigest)
}

func TestNilIsZeroValue(t *testing.T) {
	var d Digest
	require.True(t, d.IsNil())
	require.Equal(t, Nil, d)

	d = FromBytes([]byte("x"))
	require.False(t, d.IsNil())
}

func TestFromReaderMatchesFromBytes(t *testing.T) {
	data := []byte("the quick brown fox")
	want := FromBytes(data)

	got, err := FromReader(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestHasherMatchesFromBytes(t *testing.T) {
	data := []byte("streamed in two writes")
	h := NewHasher()
	_, err := h.Write(data[:10])
	require.NoError(t, err)
	_, err = h.Write(data[10:])
	require.NoError(t, err)

	require.Equal(t, FromBytes(data), h.Digest())
}

func TestShortIsPrefixOfString(t *testing.T) {
	d := FromBytes([]byte("some content"))
	require.True(t, strings.HasPrefix(d.String(), d.Short()))
	require.Len(t, d.Short(), 8)
}

func TestShortenerLookupAndShorten(t *testing.T) {
	a := FromBytes([]byte("alpha"))
	b := FromBytes([]byte("bravo"))
	c := FromBytes([]byte("charlie"))
	s := NewShortener([]Digest{a, b, c})

	for _, d := range []Digest{a, b, c} {
		short := s.Shorten(d)
		require.True(t, strings.HasPrefix(d.String(), short))
		require.GreaterOrEqual(t, len(short), MinShortLen)

		got, err := s.Lookup(short)
		require.NoError(t, err)
		require.Equal(t, d, got)
	}
}

func TestShortenerLookupUnknownPrefix(t *testing.T) {
	s := NewShortener([]Digest{FromBytes([]byte("solo"))})
	_, err := s.Lookup("ZZZZZZZZ")
	require.ErrorIs(t, err, ErrPrefixNotFound)
}

func TestShortenerLookupAmbiguousPrefix(t *testing.T) {
	a := FromBytes([]byte("one"))
	b := FromBytes([]byte("two"))
	s := NewShortener([]Digest{a, b})
	_, err := s.Lookup("")
	require.ErrorIs(t, err, ErrAmbiguousPrefix)
}

func TestShortenerLookupFullDigestAlwaysResolves(t *testing.T) {
	a := FromBytes([]byte("unique content"))
	s := NewShortener([]Digest{a})
	got, err := s.Lookup(a.String())
	require.NoError(t, err)
	require.Equal(t, a, got)
}
