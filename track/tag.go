// Package track implements mutable named references ("tags") over the
// object store: append-only tag streams, cross-process locking for
// writers, and atomic rewrite/removal. Tags are how a repository exposes
// human-meaningful names (e.g. "myorg/myplatform") for immutable digests.
package track

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/encoding"
)

// Tag is one entry in a tag stream: a named reference to a digest, linked
// to the entry that preceded it.
type Tag struct {
	Org    string
	Name   string
	Target digest.Digest
	// Parent is the digest of the previous Tag record's encoding in this
	// stream, or the nil digest for the first entry.
	Parent digest.Digest
	User   string
	Time   time.Time
}

// NewTag builds a Tag pointed at target, chaining it onto parent (the
// digest of the previous tag in the stream, or digest.Nil for the first).
func NewTag(org, name string, target, parent digest.Digest, user string, at time.Time) Tag {
	return Tag{Org: org, Name: name, Target: target, Parent: parent, User: user, Time: at}
}

// Spec returns the (org, name, version=0) TagSpec this tag belongs to.
// Version is always 0 here since a bare Tag doesn't know its position in
// the stream; callers walking a stream attach the real version.
func (t Tag) Spec() TagSpec {
	return TagSpec{Org: t.Org, Name: t.Name, Version: 0}
}

// Digest returns the content address of this tag's encoding, used as the
// Parent link for the next tag pushed onto the same stream.
func (t Tag) Digest() digest.Digest {
	var buf bytes.Buffer
	_ = t.Encode(&buf)
	return digest.FromBytes(buf.Bytes())
}

// Encode writes the tag's deterministic binary form:
// org\0 name\0 target(32) parent(32) user\0 time_u64
func (t Tag) Encode(w io.Writer) error {
	if err := encoding.WriteString(w, t.Org); err != nil {
		return err
	}
	if err := encoding.WriteString(w, t.Name); err != nil {
		return err
	}
	if err := encoding.WriteDigest(w, t.Target); err != nil {
		return err
	}
	if err := encoding.WriteDigest(w, t.Parent); err != nil {
		return err
	}
	if err := encoding.WriteString(w, t.User); err != nil {
		return err
	}
	return encoding.WriteUint(w, uint64(t.Time.Unix()))
}

// Decode reads a Tag previously written by Encode.
func Decode(r io.Reader) (Tag, error) {
	br := encoding.NewByteReader(r)
	org, err := encoding.ReadString(br)
	if err != nil {
		return Tag{}, err
	}
	name, err := encoding.ReadString(br)
	if err != nil {
		return Tag{}, err
	}
	target, err := encoding.ReadDigest(br)
	if err != nil {
		return Tag{}, err
	}
	parent, err := encoding.ReadDigest(br)
	if err != nil {
		return Tag{}, err
	}
	user, err := encoding.ReadString(br)
	if err != nil {
		return Tag{}, err
	}
	unixTime, err := encoding.ReadUint(br)
	if err != nil {
		return Tag{}, err
	}
	return Tag{
		Org:    org,
		Name:   name,
		Target: target,
		Parent: parent,
		User:   user,
		Time:   time.Unix(int64(unixTime), 0).UTC(),
	}, nil
}

func (t Tag) String() string {
	return fmt.Sprintf("%s/%s@%s", t.Org, t.Name, t.Target.Short())
}
