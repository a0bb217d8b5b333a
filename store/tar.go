package store

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/iterseq"
	"github.com/spfs-io/spfs/rterrors"
)

// TarBackend serves objects and payloads out of a single tar archive,
// read into memory once at construction. It never accepts writes --
// archives are built by an external export step, not grown in place --
// matching how the teacher's registry treats any backend whose Writer it
// doesn't implement: WriteObject/WritePayload simply return ErrReadOnly.
type TarBackend struct {
	objects  map[digest.Digest][]byte
	payloads map[digest.Digest][]byte
}

// NewTarBackend reads every entry of r into memory, classifying entries by
// their "objects/" or "payloads/" path prefix (the layout NewFSBackend
// itself writes, so a directory tree tar'd up with those two top-level
// directories can be served directly).
func NewTarBackend(r io.Reader) (*TarBackend, error) {
	b := &TarBackend{
		objects:  make(map[digest.Digest][]byte),
		payloads: make(map[digest.Digest][]byte),
	}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		name := strings.TrimPrefix(hdr.Name, "./")
		switch {
		case strings.HasPrefix(name, "objects/"):
			d, err := digestFromTarPath(strings.TrimPrefix(name, "objects/"))
			if err == nil {
				b.objects[d] = data
			}
		case strings.HasPrefix(name, "payloads/"):
			d, err := digestFromTarPath(strings.TrimPrefix(name, "payloads/"))
			if err == nil {
				b.payloads[d] = data
			}
		}
	}
	return b, nil
}

func digestFromTarPath(p string) (digest.Digest, error) {
	return digest.Parse(strings.ReplaceAll(p, "/", ""))
}

func (b *TarBackend) Name() string { return "tar" }

func (b *TarBackend) HasObject(ctx context.Context, d digest.Digest) (bool, error) {
	_, ok := b.objects[d]
	return ok, nil
}

func (b *TarBackend) ReadObject(ctx context.Context, d digest.Digest) (graph.Object, error) {
	data, ok := b.objects[d]
	if !ok {
		return nil, rterrors.UnknownObject{Digest: d}
	}
	return graph.Decode(bytes.NewReader(data))
}

func (b *TarBackend) WriteObject(ctx context.Context, obj graph.Object) error {
	return ErrReadOnly
}

func (b *TarBackend) HasPayload(ctx context.Context, d digest.Digest) (bool, error) {
	_, ok := b.payloads[d]
	return ok, nil
}

func (b *TarBackend) ReadPayload(ctx context.Context, d digest.Digest) (io.ReadCloser, error) {
	data, ok := b.payloads[d]
	if !ok {
		return nil, rterrors.ObjectMissingPayload{Owner: d, Payload: d}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *TarBackend) WritePayload(ctx context.Context, r io.Reader) (digest.Digest, int64, error) {
	return digest.Nil, 0, ErrReadOnly
}

func (b *TarBackend) IterObjects(ctx context.Context) iterseq.Iterator[digest.Digest] {
	out := make([]digest.Digest, 0, len(b.objects))
	for d := range b.objects {
		out = append(out, d)
	}
	return iterseq.Slice(out)
}

func (b *TarBackend) IterPayloadDigests(ctx context.Context) iterseq.Iterator[digest.Digest] {
	out := make([]digest.Digest, 0, len(b.payloads))
	for d := range b.payloads {
		out = append(out, d)
	}
	return iterseq.Slice(out)
}
