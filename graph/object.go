// Package graph defines the Merkle DAG of persisted objects: Blob,
// Manifest, Layer and Platform. Objects are immutable once written; each
// object's digest is the hash of its own canonical encoding, so identical
// content always produces an identical address (invariant I1).
package graph

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/encoding"
)

// Kind identifies which of the four object variants an encoded object is.
type Kind string

const (
	KindBlob     Kind = "blob"
	KindManifest Kind = "manifest"
	KindLayer    Kind = "layer"
	KindPlatform Kind = "platform"
)

func header(k Kind) string {
	return "spfs/obj/" + string(k)
}

// Object is any of the four persisted object kinds. Implementations are
// comparable values, not pointers, so they can be stored in maps keyed by
// digest without indirection.
type Object interface {
	// Kind identifies this object's variant.
	Kind() Kind
	// encodeBody writes this object's canonical, deterministic body
	// (excluding the header) to w.
	encodeBody(w io.Writer) error
	// Children returns the digests this object directly references, in
	// the order a walk should visit them. Blob returns its payload
	// digest; Manifest returns its entries' object digests; Layer
	// returns its manifest; Platform returns its layer stack.
	Children() []digest.Digest
}

// Encode writes the full canonical encoding of obj, including its
// kind-tagged header, to w.
func Encode(w io.Writer, obj Object) error {
	if err := encoding.WriteHeader(w, header(obj.Kind())); err != nil {
		return err
	}
	return obj.encodeBody(w)
}

// Digest returns the content address of obj: the digest of its full
// canonical encoding (header included).
func Digest(obj Object) digest.Digest {
	var buf bytes.Buffer
	// An in-memory buffer is safe here: objects are bounded in size
	// (manifests list directory entries, not file contents).
	if err := Encode(&buf, obj); err != nil {
		// Encode only fails on encoding.ErrInvalidString from a
		// malformed entry name, which callers are expected to validate
		// before constructing an Object.
		panic(fmt.Sprintf("graph: object failed to encode: %v", err))
	}
	return digest.FromBytes(buf.Bytes())
}

// Blob is a pointer to payload bytes stored separately by their own
// digest.
type Blob struct {
	PayloadDigest digest.Digest
	Size          uint64
}

func (Blob) Kind() Kind { return KindBlob }

func (b Blob) encodeBody(w io.Writer) error {
	if err := encoding.WriteDigest(w, b.PayloadDigest); err != nil {
		return err
	}
	return encoding.WriteUint(w, b.Size)
}

func (b Blob) Children() []digest.Digest {
	return []digest.Digest{b.PayloadDigest}
}

func decodeBlob(r io.Reader) (Blob, error) {
	d, err := encoding.ReadDigest(r)
	if err != nil {
		return Blob{}, err
	}
	size, err := encoding.ReadUint(r)
	if err != nil {
		return Blob{}, err
	}
	return Blob{PayloadDigest: d, Size: size}, nil
}

// EntryKind is the type of filesystem node a Manifest entry represents.
type EntryKind string

const (
	EntryFile    EntryKind = "file"
	EntryDir     EntryKind = "dir"
	EntrySymlink EntryKind = "symlink"
	EntryMask    EntryKind = "mask"
)

// Entry is one named child of a Manifest directory.
type Entry struct {
	Name   string
	Mode   uint32
	Kind   EntryKind
	Object digest.Digest
	Size   uint64
}

// Manifest is a directory tree. Entries are kept sorted by name so that
// identical trees always encode identically, regardless of the order they
// were constructed in.
type Manifest struct {
	Entries []Entry
}

func (Manifest) Kind() Kind { return KindManifest }

// NewManifest returns a Manifest with entries sorted by name, satisfying
// the canonical-encoding requirement.
func NewManifest(entries []Entry) Manifest {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return Manifest{Entries: sorted}
}

func (m Manifest) encodeBody(w io.Writer) error {
	if err := encoding.WriteUint(w, uint64(len(m.Entries))); err != nil {
		return err
	}
	// Entries must already be in sorted order (NewManifest guarantees
	// this); encoding does not re-sort so that a hand-built Manifest
	// with misordered entries fails I1 loudly via a mismatched digest
	// rather than silently reordering someone's intended layout.
	for _, e := range m.Entries {
		if err := encoding.WriteString(w, e.Name); err != nil {
			return err
		}
		if err := encoding.WriteUint(w, uint64(e.Mode)); err != nil {
			return err
		}
		if err := encoding.WriteString(w, string(e.Kind)); err != nil {
			return err
		}
		if err := encoding.WriteDigest(w, e.Object); err != nil {
			return err
		}
		if err := encoding.WriteUint(w, e.Size); err != nil {
			return err
		}
	}
	return nil
}

func (m Manifest) Children() []digest.Digest {
	out := make([]digest.Digest, 0, len(m.Entries))
	for _, e := range m.Entries {
		if e.Kind == EntryMask {
			continue
		}
		out = append(out, e.Object)
	}
	return out
}

func decodeManifest(r io.Reader) (Manifest, error) {
	count, err := encoding.ReadUint(r)
	if err != nil {
		return Manifest{}, err
	}
	br := encoding.NewByteReader(r)
	entries := make([]Entry, 0, count)
	for i := uint64(0); i < count; i++ {
		name, err := encoding.ReadString(br)
		if err != nil {
			return Manifest{}, err
		}
		mode, err := encoding.ReadUint(br)
		if err != nil {
			return Manifest{}, err
		}
		kind, err := encoding.ReadString(br)
		if err != nil {
			return Manifest{}, err
		}
		obj, err := encoding.ReadDigest(br)
		if err != nil {
			return Manifest{}, err
		}
		size, err := encoding.ReadUint(br)
		if err != nil {
			return Manifest{}, err
		}
		entries = append(entries, Entry{
			Name:   name,
			Mode:   uint32(mode),
			Kind:   EntryKind(kind),
			Object: obj,
			Size:   size,
		})
	}
	return Manifest{Entries: entries}, nil
}

// Layer is a named pointer to a single Manifest.
type Layer struct {
	Manifest digest.Digest
}

func (Layer) Kind() Kind { return KindLayer }

func (l Layer) encodeBody(w io.Writer) error {
	return encoding.WriteDigest(w, l.Manifest)
}

func (l Layer) Children() []digest.Digest {
	return []digest.Digest{l.Manifest}
}

func decodeLayer(r io.Reader) (Layer, error) {
	d, err := encoding.ReadDigest(r)
	if err != nil {
		return Layer{}, err
	}
	return Layer{Manifest: d}, nil
}

// Platform is an ordered stack of layers. Earlier entries are bottom of
// the stack; later layers shadow files from earlier ones when the stack is
// flattened into a filesystem.
type Platform struct {
	Stack []digest.Digest
}

func (Platform) Kind() Kind { return KindPlatform }

func (p Platform) encodeBody(w io.Writer) error {
	if err := encoding.WriteUint(w, uint64(len(p.Stack))); err != nil {
		return err
	}
	for _, d := range p.Stack {
		if err := encoding.WriteDigest(w, d); err != nil {
			return err
		}
	}
	return nil
}

func (p Platform) Children() []digest.Digest {
	return p.Stack
}

func decodePlatform(r io.Reader) (Platform, error) {
	count, err := encoding.ReadUint(r)
	if err != nil {
		return Platform{}, err
	}
	stack := make([]digest.Digest, 0, count)
	for i := uint64(0); i < count; i++ {
		d, err := encoding.ReadDigest(r)
		if err != nil {
			return Platform{}, err
		}
		stack = append(stack, d)
	}
	return Platform{Stack: stack}, nil
}

// ErrUnknownKind is returned by Decode when an object's header names a
// kind this package does not recognize.
type ErrUnknownKind struct {
	Kind string
}

func (e ErrUnknownKind) Error() string {
	return fmt.Sprintf("graph: unknown object kind %q", e.Kind)
}

// Decode reads a full object, including its header, and returns the
// concrete variant.
func Decode(r io.Reader) (Object, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimSuffix(line, "\n")
	const prefix = "spfs/obj/"
	if !strings.HasPrefix(line, prefix) {
		return nil, encoding.ErrInvalidHeader{Expected: prefix + "<kind>", Got: line}
	}
	kind := Kind(strings.TrimPrefix(line, prefix))
	switch kind {
	case KindBlob:
		return decodeBlob(br)
	case KindManifest:
		return decodeManifest(br)
	case KindLayer:
		return decodeLayer(br)
	case KindPlatform:
		return decodePlatform(br)
	default:
		return nil, ErrUnknownKind{Kind: string(kind)}
	}
}
