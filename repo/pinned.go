package repo

import (
	"context"
	"time"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/ident"
	"github.com/spfs-io/spfs/solve"
)

// Pinned wraps a *Handle so that it only ever reports builds published
// before a fixed point in time, implementing a repository address's
// "?when=<duration-ago>" window: a lazily-synced mirror that shouldn't
// see a build until some grace period has passed for the sync to
// actually catch up. Pinned never writes -- it exists purely as a read
// filter over an otherwise-normal Handle.
type Pinned struct {
	inner *Handle
	at    time.Time
}

// NewPinned wraps inner so ListPackageBuilds only returns builds whose
// spec tag was written at or before at.
func NewPinned(inner *Handle, at time.Time) *Pinned {
	return &Pinned{inner: inner, at: at}
}

func (p *Pinned) ListPackageVersions(ctx context.Context, name string) ([]ident.Version, error) {
	return p.inner.ListPackageVersions(ctx, name)
}

// ListPackageBuilds filters out any build whose spec tag postdates the
// pin. A build with no readable spec tag is conservatively excluded.
func (p *Pinned) ListPackageBuilds(ctx context.Context, id ident.Ident) ([]ident.BuildIdent, error) {
	builds, err := p.inner.ListPackageBuilds(ctx, id)
	if err != nil {
		return nil, err
	}
	var kept []ident.BuildIdent
	for _, b := range builds {
		t, err := p.inner.specTagTime(ctx, b)
		if err != nil {
			continue
		}
		if !t.After(p.at) {
			kept = append(kept, b)
		}
	}
	return kept, nil
}

func (p *Pinned) ReadSpec(ctx context.Context, id ident.BuildIdent) (*solve.Spec, error) {
	return p.inner.ReadSpec(ctx, id)
}

func (p *Pinned) GetPackage(ctx context.Context, id ident.BuildIdent) (map[string]digest.Digest, error) {
	return p.inner.GetPackage(ctx, id)
}

// specTagTime returns the timestamp recorded on id's spec tag.
func (h *Handle) specTagTime(ctx context.Context, id ident.BuildIdent) (time.Time, error) {
	if err := h.requireTags(); err != nil {
		return time.Time{}, err
	}
	tag, err := h.readFullBuildTag(ctx, id, specTagName)
	if err != nil {
		return time.Time{}, err
	}
	return tag.Time, nil
}
