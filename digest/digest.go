// Package digest implements the content-addressing primitive used throughout
// spfs: a fixed 32-byte hash with a stable textual encoding.
package digest

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"hash"
	"io"
	"strings"
)

// Size is the number of bytes in a Digest.
const Size = sha256.Size

// Digest is a 32-byte content hash. The zero value is the all-zero "null"
// digest and never addresses a real object.
type Digest [Size]byte

// Nil is the all-zero digest, used as the parent of the first tag in a
// stream and as the sentinel "no object" value.
var Nil Digest

// encoding is unpadded, uppercase base-32, matching the textual form used
// for object filenames on disk.
var textEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ErrInvalidDigest is returned when parsing a string that isn't a
// well-formed digest.
var ErrInvalidDigest = fmt.Errorf("invalid digest")

// FromBytes computes the digest of the given bytes.
func FromBytes(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// FromReader computes the digest of all bytes read from r.
func FromReader(r io.Reader) (Digest, error) {
	h := NewHasher()
	if _, err := io.Copy(h, r); err != nil {
		return Nil, err
	}
	return h.Digest(), nil
}

// Hasher incrementally computes a Digest, for callers that need to hash a
// payload while simultaneously writing it elsewhere -- a store backend
// streaming a payload to disk while computing its final digest in the
// same pass, via io.MultiWriter.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns a Hasher ready to accept Write calls.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

// Write implements io.Writer.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Digest returns the digest of all bytes written so far.
func (h *Hasher) Digest() Digest {
	var d Digest
	copy(d[:], h.h.Sum(nil))
	return d
}

// Parse decodes the textual form produced by String.
func Parse(s string) (Digest, error) {
	raw, err := textEncoding.DecodeString(strings.ToUpper(s))
	if err != nil {
		return Nil, fmt.Errorf("%w: %s", ErrInvalidDigest, err)
	}
	if len(raw) != Size {
		return Nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidDigest, Size, len(raw))
	}
	var d Digest
	copy(d[:], raw)
	return d, nil
}

// String returns the stable base-32 textual form of the digest.
func (d Digest) String() string {
	return textEncoding.EncodeToString(d[:])
}

// IsNil reports whether d is the all-zero digest.
func (d Digest) IsNil() bool {
	return d == Nil
}

// Short returns a fixed-length prefix of the digest's textual form. It is
// not guaranteed unique on its own -- callers that need an unambiguous
// short form should use a Shortener built from the full set of known
// digests in a repository.
func (d Digest) Short() string {
	s := d.String()
	if len(s) > MinShortLen {
		return s[:MinShortLen]
	}
	return s
}
