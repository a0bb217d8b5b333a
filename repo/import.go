package repo

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/syncer"
	"github.com/spfs-io/spfs/track"
)

// Import replicates everything reachable from src's tag streams into dst,
// then re-pushes the matching tag records -- the supplemented
// counterpart of exporting a repository to a tar archive (opened
// read-only via the tar:// address scheme) and bringing its contents
// into a live repository, grounded on the distilled CLI's "import a
// previously exported archive" command.
func Import(ctx context.Context, src, dst *Handle) (syncer.Summary, error) {
	if err := dst.requireTags(); err != nil {
		return syncer.Summary{}, err
	}
	srcTags := src.Tags
	if srcTags == nil {
		return syncer.Summary{}, fmt.Errorf("import source %q has no tags to import", src.name)
	}
	return syncer.SyncTagStreams(ctx, src.Store, dst.Store, srcTags, dst.Tags, syncer.MissingOnly{})
}

// repoMetaOrg/repoMetaName name the tag this process reads/writes to
// track a repository's own upgrade state, independent of any package tag
// tree.
const repoMetaOrg = "spfs"
const repoMetaName = "repo"

// repoMetaVersion is the current on-disk metadata version Upgrade brings
// a repository up to.
const repoMetaVersion = uint64(1)

// UpgradeStatus summarizes what Upgrade did.
type UpgradeStatus struct {
	// FromVersion is the repository's metadata version before this
	// call (0 if it had none).
	FromVersion uint64
	// ToVersion is repoMetaVersion.
	ToVersion uint64
}

// String renders a one-line summary, matching the style of the message
// the CLI logs after a repo upgrade.
func (s UpgradeStatus) String() string {
	if s.FromVersion == s.ToVersion {
		return fmt.Sprintf("repository already up to date (version %d)", s.ToVersion)
	}
	return fmt.Sprintf("repository upgraded from version %d to %d", s.FromVersion, s.ToVersion)
}

// Upgrade brings h's on-disk metadata up to the version this process
// understands. It is idempotent: calling it on an already-current
// repository is a no-op that reports FromVersion == ToVersion. Today
// there is a single metadata version, so upgrading only means writing the
// "spfs/repo" marker tag if it is missing; future versions would add
// migration steps here, each guarded by the version it starts from.
func (h *Handle) Upgrade(ctx context.Context) (UpgradeStatus, error) {
	if err := h.requireTags(); err != nil {
		return UpgradeStatus{}, err
	}
	current, err := h.metaVersion(ctx)
	if err != nil {
		return UpgradeStatus{}, err
	}
	if current == repoMetaVersion {
		return UpgradeStatus{FromVersion: current, ToVersion: repoMetaVersion}, nil
	}
	if err := h.writeMetaVersion(ctx, repoMetaVersion); err != nil {
		return UpgradeStatus{}, err
	}
	return UpgradeStatus{FromVersion: current, ToVersion: repoMetaVersion}, nil
}

// metaVersion reads the version recorded on the "spfs/repo" marker tag,
// or 0 if it has never been written.
func (h *Handle) metaVersion(ctx context.Context) (uint64, error) {
	spec := track.TagSpec{Org: repoMetaOrg, Name: repoMetaName}
	stream, err := h.Tags.ReadTag(ctx, spec)
	if err != nil {
		return 0, nil
	}
	tag, ok, err := stream.Next(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	payload, err := h.readBlobPayload(ctx, tag.Target)
	if err != nil {
		return 0, err
	}
	return encoding.ReadUint(bytes.NewReader(payload))
}

func (h *Handle) writeMetaVersion(ctx context.Context, version uint64) error {
	var body bytes.Buffer
	if err := encoding.WriteUint(&body, version); err != nil {
		return err
	}
	d, err := h.writeBlob(ctx, body.Bytes())
	if err != nil {
		return err
	}

	var parent digest.Digest
	if existing, err := h.Tags.ReadTag(ctx, track.TagSpec{Org: repoMetaOrg, Name: repoMetaName}); err == nil {
		if tag, ok, err := existing.Next(ctx); err == nil && ok {
			parent = tag.Digest()
		}
	}
	tag := track.NewTag(repoMetaOrg, repoMetaName, d, parent, "", time.Now())
	return h.Tags.PushRawTag(ctx, tag)
}
