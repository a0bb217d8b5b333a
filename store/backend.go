// Package store defines the Backend contract for persisting graph objects
// and their payloads, and the composite backends (proxy, fallback) built
// on top of it. It mirrors storagedriver.StorageDriver from the teacher
// registry, narrowed to spfs's digest-addressed shape: every read and
// write is keyed by a content digest rather than a path.
package store

import (
	"context"
	"io"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/iterseq"
)

// Backend is the storage contract a repository's object store is built
// on. Implementations: FS (local disk), Tar (read-only archive), RPC
// (remote byte-oriented transport), S3 (aws-sdk-go), Mem (in-process,
// for tests and ephemeral repositories), plus the composite Proxy and
// PayloadFallback backends that wrap other Backends.
type Backend interface {
	// Name identifies the backend kind for metrics labels (e.g. "fs",
	// "s3", "mem").
	Name() string

	// HasObject reports whether an object with the given digest is
	// present, without reading its payload.
	HasObject(ctx context.Context, d digest.Digest) (bool, error)

	// ReadObject decodes and returns the graph object stored at d.
	// Returns rterrors.UnknownObject if absent.
	ReadObject(ctx context.Context, d digest.Digest) (graph.Object, error)

	// WriteObject persists obj, keyed by its own digest. Writing is
	// idempotent: writing the same object twice is a no-op the second
	// time.
	WriteObject(ctx context.Context, obj graph.Object) error

	// HasPayload reports whether payload bytes are present for d.
	HasPayload(ctx context.Context, d digest.Digest) (bool, error)

	// ReadPayload opens the payload bytes stored under payload digest d
	// (a Blob's PayloadDigest). Returns rterrors.ObjectMissingPayload if
	// those bytes are not present.
	ReadPayload(ctx context.Context, d digest.Digest) (io.ReadCloser, error)

	// WritePayload streams r to storage, returning the digest of its
	// content and its size. Implementations must write to a temporary
	// location and atomically publish it, so a crash mid-write never
	// leaves a partial payload visible under its final digest.
	WritePayload(ctx context.Context, r io.Reader) (digest.Digest, int64, error)

	// IterObjects iterates every object digest known to this backend.
	IterObjects(ctx context.Context) iterseq.Iterator[digest.Digest]

	// IterPayloadDigests iterates every payload digest known to this
	// backend.
	IterPayloadDigests(ctx context.Context) iterseq.Iterator[digest.Digest]
}

// ErrReadOnly is returned by writes to backends that only serve reads:
// Tar, and a Proxy with no backends to write to.
var ErrReadOnly = readOnlyError{}

type readOnlyError struct{}

func (readOnlyError) Error() string { return "backend is read-only" }
