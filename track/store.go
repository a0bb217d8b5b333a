package track

import (
	"context"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/iterseq"
)

// TagSpecAndStream pairs a stream's identity with an iterator over its
// tags, newest first, as returned by IterTagStreams.
type TagSpecAndStream struct {
	Spec   TagSpec
	Stream iterseq.Iterator[Tag]
}

// Store is the tag-stream contract any repository backend must implement.
// Reads never block on a lock; writes (PushRawTag, RemoveTag,
// RemoveTagStream) serialize per (org, name) via an exclusive on-disk
// lock file.
type Store interface {
	// LsTags lists the immediate child names under path: stream names
	// (without the .tag extension) and subdirectory names (suffixed
	// with "/").
	LsTags(ctx context.Context, path string) iterseq.Iterator[string]

	// FindTags returns every TagSpec across every stream whose target
	// equals d. O(total tag records) -- it has to read every stream.
	FindTags(ctx context.Context, d digest.Digest) iterseq.Iterator[TagSpec]

	// IterTagStreams iterates every known stream.
	IterTagStreams(ctx context.Context) iterseq.Iterator[TagSpecAndStream]

	// ReadTag reads the full stream named by spec.Path(), newest first.
	// Returns rterrors.UnknownReference if the stream does not exist.
	ReadTag(ctx context.Context, spec TagSpec) (iterseq.Iterator[Tag], error)

	// PushRawTag appends tag to its stream under an exclusive lock.
	PushRawTag(ctx context.Context, tag Tag) error

	// RemoveTag removes exactly one record matching tag from its
	// stream, rewriting the stream file atomically.
	RemoveTag(ctx context.Context, tag Tag) error

	// RemoveTagStream deletes the stream named by spec entirely and
	// unwinds now-empty parent directories up to the tag root.
	RemoveTagStream(ctx context.Context, spec TagSpec) error
}
