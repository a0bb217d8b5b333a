// Package syncer replicates objects and payloads between two Backends,
// walking the object graph post-order (children fully copied before
// their parent) so a destination never exposes a parent object whose
// children haven't arrived yet. Replication is always digest-targeted:
// callers name which digests to sync, the syncer figures out the
// reachable subtree from there.
package syncer

import (
	"context"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/rterrors"
	"github.com/spfs-io/spfs/rtlog"
	"github.com/spfs-io/spfs/rtmetrics"
	"github.com/spfs-io/spfs/store"
	"github.com/spfs-io/spfs/track"
)

// Summary reports what a Sync actually moved.
type Summary struct {
	ObjectsSynced int
	BytesSynced   int64
	// Skipped counts subtrees abandoned due to a PayloadMismatch --
	// the rest of the graph is still synced, only the offending
	// subtree is abandoned.
	Skipped []rterrors.PayloadMismatch
}

// Sync copies the subtree reachable from each of digests from src to dst,
// applying policy to decide whether an already-present digest is
// re-copied anyway. Sync is safe to call in either direction: src and dst
// are just two Backends, nothing about either one designates it as
// "local" or "remote".
func Sync(ctx context.Context, src, dst store.Backend, digests []digest.Digest, policy Policy) (Summary, error) {
	s := &syncer{src: src, dst: dst, policy: policy, visited: make(map[digest.Digest]bool)}
	var summary Summary
	for _, d := range digests {
		if err := s.syncObject(ctx, d, &summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// SyncTagStreams copies every object reachable from srcTags's streams
// into dst, then re-pushes matching tag records into dstTags. Under
// ResyncTagStreams every record of every stream is re-pushed; any other
// policy skips a record that dstTags's stream already holds (same target
// and time). Under LatestTag only each stream's newest record is
// considered at all.
func SyncTagStreams(ctx context.Context, src, dst store.Backend, srcTags, dstTags track.Store, policy Policy) (Summary, error) {
	var summary Summary
	streams := srcTags.IterTagStreams(ctx)
	for {
		entry, ok, err := streams.Next(ctx)
		if err != nil {
			return summary, err
		}
		if !ok {
			break
		}
		var records []track.Tag
		for {
			tag, ok, err := entry.Stream.Next(ctx)
			if err != nil {
				return summary, err
			}
			if !ok {
				break
			}
			records = append(records, tag)
			if _, ok := policy.(LatestTag); ok {
				break
			}
		}
		// records is newest-first; push oldest-first so the
		// destination's parent chain comes out identical.
		for i := len(records) - 1; i >= 0; i-- {
			tag := records[i]
			if _, isResyncStreams := policy.(ResyncTagStreams); !isResyncStreams {
				existing, err := dstTags.ReadTag(ctx, tag.Spec())
				if err == nil {
					if alreadyPushed(ctx, existing, tag) {
						continue
					}
				} else if !isUnknownReference(err) {
					return summary, err
				}
			}
			sub, err := Sync(ctx, src, dst, []digest.Digest{tag.Target}, policy)
			if err != nil {
				return summary, err
			}
			summary.ObjectsSynced += sub.ObjectsSynced
			summary.BytesSynced += sub.BytesSynced
			summary.Skipped = append(summary.Skipped, sub.Skipped...)
			if err := dstTags.PushRawTag(ctx, tag); err != nil {
				return summary, err
			}
		}
	}
	return summary, nil
}

func alreadyPushed(ctx context.Context, existing interface {
	Next(ctx context.Context) (track.Tag, bool, error)
}, tag track.Tag) bool {
	for {
		t, ok, err := existing.Next(ctx)
		if err != nil || !ok {
			return false
		}
		if t.Target == tag.Target && t.Time.Equal(tag.Time) {
			return true
		}
	}
}

func isUnknownReference(err error) bool {
	_, ok := err.(rterrors.UnknownReference)
	return ok
}

type syncer struct {
	src, dst store.Backend
	policy   Policy
	visited  map[digest.Digest]bool
}

// syncObject copies one object and, first, all of its children
// (post-order): a parent is never written to dst until every object it
// references already is.
func (s *syncer) syncObject(ctx context.Context, d digest.Digest, summary *Summary) error {
	if s.visited[d] {
		return nil
	}
	s.visited[d] = true

	present, err := s.dst.HasObject(ctx, d)
	if err != nil {
		return err
	}
	if present && !s.policy.ShouldResync(ctx) {
		return nil
	}

	obj, err := s.src.ReadObject(ctx, d)
	if err != nil {
		return err
	}

	// A Blob's only child is its payload digest, which is not an object;
	// the payload is copied by syncPayload below instead.
	if _, isBlob := obj.(graph.Blob); !isBlob {
		for _, child := range obj.Children() {
			if err := s.syncObject(ctx, child, summary); err != nil {
				return err
			}
		}
	}

	if blob, ok := obj.(graph.Blob); ok {
		if err := s.syncPayload(ctx, blob, summary); err != nil {
			if mismatch, ok := err.(rterrors.PayloadMismatch); ok {
				summary.Skipped = append(summary.Skipped, mismatch)
				rtlog.GetLogger(ctx, "digest", d).Warn("abandoning subtree after payload mismatch")
				return nil
			}
			return err
		}
	}

	// Reached only when the object is missing at dst or the policy asked
	// for a resync, so both cases copy and count it.
	if err := s.dst.WriteObject(ctx, obj); err != nil {
		return err
	}
	summary.ObjectsSynced++
	rtmetrics.SyncedObjects.WithValues(s.policy.Name()).Inc()
	return nil
}

func (s *syncer) syncPayload(ctx context.Context, blob graph.Blob, summary *Summary) error {
	has, err := s.dst.HasPayload(ctx, blob.PayloadDigest)
	if err != nil {
		return err
	}
	if has && !s.policy.ShouldResync(ctx) {
		return nil
	}

	r, err := s.src.ReadPayload(ctx, blob.PayloadDigest)
	if err != nil {
		return err
	}
	defer r.Close()

	written, n, err := s.dst.WritePayload(ctx, r)
	if err != nil {
		return err
	}
	if written != blob.PayloadDigest {
		return rterrors.PayloadMismatch{Expected: blob.PayloadDigest, Actual: written}
	}
	summary.BytesSynced += n
	rtmetrics.SyncedBytes.Add(float64(n))
	return nil
}
