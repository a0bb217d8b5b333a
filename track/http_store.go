package track

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/iterseq"
	"github.com/spfs-io/spfs/rterrors"
)

// Transport is the byte-oriented connection an HTTPStore speaks its wire
// protocol over, mirroring store.Transport so a single concrete HTTP
// client (e.g. repo.HTTPTransport) can back both an RPCBackend and an
// HTTPStore over the same repository address.
type Transport interface {
	Call(ctx context.Context, op byte, body io.Reader) (resp io.ReadCloser, found bool, err error)
}

type tagOp byte

const (
	tagOpLsTags tagOp = iota + 100
	tagOpFindTags
	tagOpIterTagStreams
	tagOpReadTag
	tagOpPushRawTag
	tagOpRemoveTag
	tagOpRemoveTagStream
)

// HTTPStore is a Store proxying every operation over a Transport to a
// remote tag store, the tag-side counterpart to store.RPCBackend.
type HTTPStore struct {
	transport Transport
}

// NewHTTPStore returns an HTTPStore speaking over t.
func NewHTTPStore(t Transport) *HTTPStore {
	return &HTTPStore{transport: t}
}

func (s *HTTPStore) call(ctx context.Context, op tagOp, body io.Reader) (io.ReadCloser, bool, error) {
	return s.transport.Call(ctx, byte(op), body)
}

func (s *HTTPStore) LsTags(ctx context.Context, path string) iterseq.Iterator[string] {
	var buf bytes.Buffer
	_ = encoding.WriteString(&buf, path)
	resp, _, err := s.call(ctx, tagOpLsTags, &buf)
	if err != nil {
		return iterseq.Func[string](func(context.Context) (string, bool, error) {
			return "", false, err
		})
	}
	br := encoding.NewByteReader(resp)
	return iterseq.Func[string](func(context.Context) (string, bool, error) {
		name, err := encoding.ReadString(br)
		if err != nil {
			resp.Close()
			if err == io.EOF {
				return "", false, nil
			}
			return "", false, err
		}
		return name, true, nil
	})
}

func (s *HTTPStore) FindTags(ctx context.Context, d digest.Digest) iterseq.Iterator[TagSpec] {
	resp, _, err := s.call(ctx, tagOpFindTags, digestReader(d))
	if err != nil {
		return iterseq.Func[TagSpec](func(context.Context) (TagSpec, bool, error) {
			return TagSpec{}, false, err
		})
	}
	br := encoding.NewByteReader(resp)
	return iterseq.Func[TagSpec](func(context.Context) (TagSpec, bool, error) {
		spec, err := readTagSpec(br)
		if err != nil {
			resp.Close()
			if err == io.EOF {
				return TagSpec{}, false, nil
			}
			return TagSpec{}, false, err
		}
		return spec, true, nil
	})
}

func (s *HTTPStore) IterTagStreams(ctx context.Context) iterseq.Iterator[TagSpecAndStream] {
	resp, _, err := s.call(ctx, tagOpIterTagStreams, nil)
	if err != nil {
		return iterseq.Func[TagSpecAndStream](func(context.Context) (TagSpecAndStream, bool, error) {
			return TagSpecAndStream{}, false, err
		})
	}
	br := encoding.NewByteReader(resp)
	return iterseq.Func[TagSpecAndStream](func(ctx context.Context) (TagSpecAndStream, bool, error) {
		spec, err := readTagSpec(br)
		if err != nil {
			resp.Close()
			if err == io.EOF {
				return TagSpecAndStream{}, false, nil
			}
			return TagSpecAndStream{}, false, err
		}
		n, err := encoding.ReadUint(br)
		if err != nil {
			resp.Close()
			return TagSpecAndStream{}, false, err
		}
		tags := make([]Tag, 0, n)
		for i := uint64(0); i < n; i++ {
			t, err := Decode(br)
			if err != nil {
				resp.Close()
				return TagSpecAndStream{}, false, err
			}
			tags = append(tags, t)
		}
		return TagSpecAndStream{Spec: spec, Stream: iterseq.Slice(tags)}, true, nil
	})
}

func (s *HTTPStore) ReadTag(ctx context.Context, spec TagSpec) (iterseq.Iterator[Tag], error) {
	var buf bytes.Buffer
	writeTagSpec(&buf, spec)
	resp, found, err := s.call(ctx, tagOpReadTag, &buf)
	if err != nil {
		return nil, err
	}
	if !found {
		resp.Close()
		return nil, rterrors.UnknownReference{Ref: spec.String()}
	}
	defer resp.Close()
	var tags []Tag
	br := encoding.NewByteReader(resp)
	for {
		t, err := Decode(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return iterseq.Slice(tags), nil
}

func (s *HTTPStore) PushRawTag(ctx context.Context, tag Tag) error {
	var buf bytes.Buffer
	if err := tag.Encode(&buf); err != nil {
		return err
	}
	resp, _, err := s.call(ctx, tagOpPushRawTag, &buf)
	if err != nil {
		return err
	}
	return resp.Close()
}

func (s *HTTPStore) RemoveTag(ctx context.Context, tag Tag) error {
	var buf bytes.Buffer
	if err := tag.Encode(&buf); err != nil {
		return err
	}
	resp, _, err := s.call(ctx, tagOpRemoveTag, &buf)
	if err != nil {
		return err
	}
	return resp.Close()
}

func (s *HTTPStore) RemoveTagStream(ctx context.Context, spec TagSpec) error {
	var buf bytes.Buffer
	writeTagSpec(&buf, spec)
	resp, _, err := s.call(ctx, tagOpRemoveTagStream, &buf)
	if err != nil {
		return err
	}
	return resp.Close()
}

func writeTagSpec(w io.Writer, spec TagSpec) {
	_ = encoding.WriteString(w, spec.Org)
	_ = encoding.WriteString(w, spec.Name)
	_ = encoding.WriteUint(w, spec.Version)
}

func readTagSpec(br *bufio.Reader) (TagSpec, error) {
	org, err := encoding.ReadString(br)
	if err != nil {
		return TagSpec{}, err
	}
	name, err := encoding.ReadString(br)
	if err != nil {
		return TagSpec{}, err
	}
	version, err := encoding.ReadUint(br)
	if err != nil {
		return TagSpec{}, err
	}
	return TagSpec{Org: org, Name: name, Version: version}, nil
}

func digestReader(d digest.Digest) io.Reader {
	return bytes.NewReader(d[:])
}
