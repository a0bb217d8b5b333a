// Package encoding implements the deterministic binary codec used to
// persist objects and tags. All multi-byte values are big-endian; strings
// are NUL-terminated. Encoding is deterministic so that identical inputs
// always produce byte-identical output, which content addressing depends
// on.
package encoding

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/spfs-io/spfs/digest"
)

// ErrInvalidHeader is returned when a stream does not begin with the
// expected header.
type ErrInvalidHeader struct {
	Expected string
	Got      string
}

func (e ErrInvalidHeader) Error() string {
	return fmt.Sprintf("invalid header: expected %q, got %q", e.Expected, e.Got)
}

// ErrInvalidDigest is returned when a digest cannot be read in full.
var ErrInvalidDigest = fmt.Errorf("invalid digest: short read")

// ErrInvalidString is returned when a string to be written contains a NUL
// byte, which would corrupt the NUL-terminated encoding.
var ErrInvalidString = fmt.Errorf("invalid string: contains null byte")

// WriteHeader writes name followed by a newline.
func WriteHeader(w io.Writer, name string) error {
	_, err := io.WriteString(w, name+"\n")
	return err
}

// ConsumeHeader reads len(name)+1 bytes and validates them against name
// followed by a newline.
func ConsumeHeader(r io.Reader, name string) error {
	buf := make([]byte, len(name)+1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if string(buf[:len(name)]) != name || buf[len(name)] != '\n' {
		return ErrInvalidHeader{Expected: name, Got: strings.TrimRight(string(buf), "\n")}
	}
	return nil
}

// WriteUint writes a 64-bit unsigned integer, big-endian.
func WriteUint(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint reads a 64-bit unsigned integer, big-endian.
func ReadUint(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteInt writes a 64-bit signed integer, big-endian.
func WriteInt(w io.Writer, v int64) error {
	return WriteUint(w, uint64(v))
}

// ReadInt reads a 64-bit signed integer, big-endian.
func ReadInt(r io.Reader) (int64, error) {
	v, err := ReadUint(r)
	return int64(v), err
}

// WriteDigest writes the digest's 32 raw bytes.
func WriteDigest(w io.Writer, d digest.Digest) error {
	_, err := w.Write(d[:])
	return err
}

// ReadDigest reads exactly 32 bytes into a Digest.
func ReadDigest(r io.Reader) (digest.Digest, error) {
	var d digest.Digest
	if _, err := io.ReadFull(r, d[:]); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return digest.Nil, ErrInvalidDigest
		}
		return digest.Nil, err
	}
	return d, nil
}

// WriteString writes s followed by a single NUL byte. Fails if s itself
// contains a NUL byte, since that would be indistinguishable from the
// terminator.
func WriteString(w io.Writer, s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return ErrInvalidString
	}
	if _, err := io.WriteString(w, s); err != nil {
		return err
	}
	_, err := w.Write([]byte{0})
	return err
}

// ReadString reads bytes until a NUL terminator. The reader must support
// ReadByte (wrap with bufio.NewReader if it doesn't).
func ReadString(r io.ByteReader) (string, error) {
	var b strings.Builder
	for {
		c, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if c == 0 {
			return b.String(), nil
		}
		b.WriteByte(c)
	}
}

// NewByteReader wraps r in a bufio.Reader if it does not already implement
// io.ByteReader, so ReadString can be used against arbitrary readers.
func NewByteReader(r io.Reader) *bufio.Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return br
	}
	return bufio.NewReader(r)
}
