package store

import (
	"bytes"
	"context"
	"io"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/iterseq"
	"github.com/spfs-io/spfs/rterrors"
)

// opCode names the operations an RPCBackend sends over a Transport.
type opCode byte

const (
	opHasObject opCode = iota + 1
	opReadObject
	opWriteObject
	opHasPayload
	opReadPayload
	opWritePayload
	opIterObjects
	opIterPayloadDigests
)

// Transport is the byte-oriented connection an RPCBackend speaks its wire
// protocol over: a single request writes a frame and reads exactly one
// response frame back. This is the same request/response shape as a
// client.Repository blob transfer in the teacher's registry client,
// narrowed to this package's digest-keyed operations instead of HTTP.
// found is false when the remote reports the object/payload does not
// exist, distinguishing "not found" from a transport-level error.
type Transport interface {
	Call(ctx context.Context, op byte, body io.Reader) (resp io.ReadCloser, found bool, err error)
}

// RPCBackend is a Backend proxying every operation over a Transport to a
// remote object store. It does not interpret object bytes itself beyond
// request/response framing -- encoding/decoding happens exactly as it
// does for any other backend, just carried over the wire instead of read
// from disk.
type RPCBackend struct {
	transport Transport
}

// NewRPCBackend returns an RPCBackend speaking over t.
func NewRPCBackend(t Transport) *RPCBackend {
	return &RPCBackend{transport: t}
}

func (b *RPCBackend) Name() string { return "rpc" }

func (b *RPCBackend) call(ctx context.Context, op opCode, req io.Reader) (io.ReadCloser, bool, error) {
	return b.transport.Call(ctx, byte(op), req)
}

func (b *RPCBackend) HasObject(ctx context.Context, d digest.Digest) (bool, error) {
	resp, found, err := b.call(ctx, opHasObject, digestReader(d))
	if err != nil {
		return false, err
	}
	resp.Close()
	return found, nil
}

func (b *RPCBackend) ReadObject(ctx context.Context, d digest.Digest) (graph.Object, error) {
	resp, found, err := b.call(ctx, opReadObject, digestReader(d))
	if err != nil {
		return nil, err
	}
	defer resp.Close()
	if !found {
		return nil, rterrors.UnknownObject{Digest: d}
	}
	return graph.Decode(resp)
}

func (b *RPCBackend) WriteObject(ctx context.Context, obj graph.Object) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(graph.Encode(pw, obj))
	}()
	resp, _, err := b.call(ctx, opWriteObject, pr)
	if err != nil {
		return err
	}
	return resp.Close()
}

func (b *RPCBackend) HasPayload(ctx context.Context, d digest.Digest) (bool, error) {
	resp, found, err := b.call(ctx, opHasPayload, digestReader(d))
	if err != nil {
		return false, err
	}
	resp.Close()
	return found, nil
}

func (b *RPCBackend) ReadPayload(ctx context.Context, d digest.Digest) (io.ReadCloser, error) {
	resp, found, err := b.call(ctx, opReadPayload, digestReader(d))
	if err != nil {
		return nil, err
	}
	if !found {
		resp.Close()
		return nil, rterrors.ObjectMissingPayload{Owner: d, Payload: d}
	}
	return resp, nil
}

func (b *RPCBackend) WritePayload(ctx context.Context, r io.Reader) (digest.Digest, int64, error) {
	resp, _, err := b.call(ctx, opWritePayload, r)
	if err != nil {
		return digest.Nil, 0, err
	}
	defer resp.Close()
	d, err := encoding.ReadDigest(resp)
	if err != nil {
		return digest.Nil, 0, err
	}
	size, err := encoding.ReadUint(resp)
	if err != nil {
		return digest.Nil, 0, err
	}
	return d, int64(size), nil
}

func (b *RPCBackend) IterObjects(ctx context.Context) iterseq.Iterator[digest.Digest] {
	return b.iterDigests(ctx, opIterObjects)
}

func (b *RPCBackend) IterPayloadDigests(ctx context.Context) iterseq.Iterator[digest.Digest] {
	return b.iterDigests(ctx, opIterPayloadDigests)
}

func (b *RPCBackend) iterDigests(ctx context.Context, op opCode) iterseq.Iterator[digest.Digest] {
	resp, _, err := b.call(ctx, op, nil)
	if err != nil {
		return iterseq.Func[digest.Digest](func(context.Context) (digest.Digest, bool, error) {
			return digest.Nil, false, err
		})
	}
	return iterseq.Func[digest.Digest](func(ctx context.Context) (digest.Digest, bool, error) {
		d, err := encoding.ReadDigest(resp)
		if err != nil {
			resp.Close()
			if err == io.EOF {
				return digest.Nil, false, nil
			}
			return digest.Nil, false, err
		}
		return d, true, nil
	})
}

func digestReader(d digest.Digest) io.Reader {
	return bytes.NewReader(d[:])
}
