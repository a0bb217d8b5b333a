package encoding

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spfs-io/spfs/digest"
)

func TestWriteReadStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteString(&buf, "hello"))
	require.NoError(t, WriteString(&buf, ""))
	require.NoError(t, WriteString(&buf, "world"))

	br := NewByteReader(&buf)
	s, err := ReadString(br)
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	s, err = ReadString(br)
	require.NoError(t, err)
	require.Equal(t, "", s)

	s, err = ReadString(br)
	require.NoError(t, err)
	require.Equal(t, "world", s)
}

func TestWriteStringRejectsNulByte(t *testing.T) {
	var buf bytes.Buffer
	err := WriteString(&buf, "bad\x00string")
	require.ErrorIs(t, err, ErrInvalidString)
}

func TestWriteReadUintRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteUint(&buf, 0))
	require.NoError(t, WriteUint(&buf, 1))
	require.NoError(t, WriteUint(&buf, 1<<63))

	v, err := ReadUint(&buf)
	require.NoError(t, err)
	require.Equal(t, uint64(0), v)

	v, err = ReadUint(&buf)
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)

	v, err = ReadUint(&buf)
	require.NoError(t, err)
	require.Equal(t, uint64(1<<63), v)
}

func TestWriteReadDigestRoundTrip(t *testing.T) {
	d := digest.FromBytes([]byte("payload"))
	var buf bytes.Buffer
	require.NoError(t, WriteDigest(&buf, d))

	got, err := ReadDigest(&buf)
	require.NoError(t, err)
	require.Equal(t, d, got)
}

func TestReadDigestShortReadIsInvalid(t *testing.T) {
	buf := bytes.NewReader([]byte{1, 2, 3})
	_, err := ReadDigest(buf)
	require.ErrorIs(t, err, ErrInvalidDigest)
}

func TestWriteConsumeHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, "spfs-tag-v1"))
	require.NoError(t, ConsumeHeader(&buf, "spfs-tag-v1"))
}

func TestConsumeHeaderRejectsMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, "spfs-tag-v1"))
	err := ConsumeHeader(&buf, "spfs-tag-v2")
	require.Error(t, err)
	var headerErr ErrInvalidHeader
	require.ErrorAs(t, err, &headerErr)
	require.Equal(t, "spfs-tag-v2", headerErr.Expected)
}

func TestNewByteReaderReusesExistingBufioReader(t *testing.T) {
	inner := bufio.NewReaderSize(bytes.NewReader(nil), 4096)
	got := NewByteReader(inner)
	require.Same(t, inner, got)
}

func TestReadStringEOFAtStreamEnd(t *testing.T) {
	br := NewByteReader(bytes.NewReader(nil))
	_, err := ReadString(br)
	require.ErrorIs(t, err, io.EOF)
}
