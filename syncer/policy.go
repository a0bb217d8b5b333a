package syncer

import "context"

// Policy decides whether a given digest, already present at the
// destination, should be re-synced anyway. Digests absent from the
// destination are always synced regardless of policy.
type Policy interface {
	// ShouldResync is asked for every digest the destination already
	// has. Returning true re-copies it (and, transitively, re-walks
	// its children) even though the destination already has a copy.
	ShouldResync(ctx context.Context) bool

	// Name identifies the policy for metrics labels.
	Name() string
}

// MissingOnly never re-syncs anything the destination already has. This
// is the default, cheapest policy: a sync only ever copies what's
// actually missing.
type MissingOnly struct{}

func (MissingOnly) ShouldResync(ctx context.Context) bool { return false }
func (MissingOnly) Name() string                          { return "missing_only" }

// ResyncEverything always re-copies every object, even ones already
// present at the destination. Useful for repairing a destination whose
// objects are suspected corrupt without deleting it first.
type ResyncEverything struct{}

func (ResyncEverything) ShouldResync(ctx context.Context) bool { return true }
func (ResyncEverything) Name() string                          { return "resync_everything" }

// LatestTag re-syncs only the object graph reachable from a tag stream's
// newest entry, even if an older entry already synced that digest. Policy
// itself only governs per-object resync, so LatestTag behaves like
// MissingOnly at the object level; the "newest only" restriction is
// enforced by SyncTagStreams, which reads only each stream's newest
// record under this policy.
type LatestTag struct{}

func (LatestTag) ShouldResync(ctx context.Context) bool { return false }
func (LatestTag) Name() string                          { return "latest_tag" }

// ResyncTagStreams re-pushes every tag record of every synced stream, even
// ones whose target object already exists at the destination. Like
// LatestTag, the per-object behavior is MissingOnly; the distinct
// resyncing of tag history itself happens in SyncTagStreams.
type ResyncTagStreams struct{}

func (ResyncTagStreams) ShouldResync(ctx context.Context) bool { return false }
func (ResyncTagStreams) Name() string                          { return "resync_tag_streams" }
