// Package repo implements the repository handle: the uniform surface a
// solver, syncer or CLI command drives regardless of what storage backend
// and tag store actually back a repository. Grounded on
// registry/storage/driver/factory's address-to-driver resolution pattern
// and on the distilled tagged-variant repository handle
// ({FS, Tar, Rpc, PayloadFallback, Proxy, Pinned}).
package repo

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/ident"
	"github.com/spfs-io/spfs/iterseq"
	"github.com/spfs-io/spfs/rterrors"
	"github.com/spfs-io/spfs/solve"
	"github.com/spfs-io/spfs/store"
	"github.com/spfs-io/spfs/track"
)

// specTagName is the fixed tag name under a build's tag path holding its
// published Spec, alongside one tag per published component.
const specTagName = "spec"

// Handle is a repository: a Backend for objects and payloads, and
// optionally a Store for tags (nil for read-only backends like Tar).
// Satisfies solve.Repository.
type Handle struct {
	name    string
	Store   store.Backend
	Tags    track.Store
}

// New returns a Handle named name (used as its RepositoryName in
// BuildIdents and as the label under which it appears to callers),
// backed by store and, optionally, tags.
func New(name string, backend store.Backend, tags track.Store) *Handle {
	return &Handle{name: name, Store: backend, Tags: tags}
}

// Name returns the repository's configured name.
func (h *Handle) Name() string { return h.name }

func (h *Handle) requireTags() error {
	if h.Tags == nil {
		return fmt.Errorf("repository %q has no tag support", h.name)
	}
	return nil
}

// ListPackageVersions lists every version published for name, in
// whatever order LsTags returns its subdirectories (callers needing a
// deterministic order, e.g. solve.PackageIterator, sort the result
// themselves).
func (h *Handle) ListPackageVersions(ctx context.Context, name string) ([]ident.Version, error) {
	if err := h.requireTags(); err != nil {
		return nil, err
	}
	entries, err := iterseq.Collect(ctx, h.Tags.LsTags(ctx, name))
	if err != nil {
		return nil, err
	}
	var versions []ident.Version
	for _, e := range entries {
		if !strings.HasSuffix(e, "/") {
			continue
		}
		v, err := ident.ParseVersion(strings.TrimSuffix(e, "/"))
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// ListPackageBuilds lists every build published under id (a bare name or
// name/version identifier; id.Build is ignored).
func (h *Handle) ListPackageBuilds(ctx context.Context, id ident.Ident) ([]ident.BuildIdent, error) {
	if err := h.requireTags(); err != nil {
		return nil, err
	}
	entries, err := iterseq.Collect(ctx, h.Tags.LsTags(ctx, id.TagPath()))
	if err != nil {
		return nil, err
	}
	var builds []ident.BuildIdent
	for _, e := range entries {
		if !strings.HasSuffix(e, "/") {
			continue
		}
		b, err := ident.ParseBuild(strings.TrimSuffix(e, "/"))
		if err != nil {
			continue
		}
		builds = append(builds, ident.BuildIdent{
			RepositoryName: h.name,
			Name:           id.Name,
			Version:        id.Version,
			Build:          b,
		})
	}
	return builds, nil
}

// buildTagPath is the tag-tree directory a build's spec and component
// tags live under.
func buildTagPath(id ident.BuildIdent) string {
	return id.TagPath()
}

// ReadSpec reads the published Spec for id. Returns
// rterrors.PackageNotFound if no spec has been published for this build.
func (h *Handle) ReadSpec(ctx context.Context, id ident.BuildIdent) (*solve.Spec, error) {
	if err := h.requireTags(); err != nil {
		return nil, err
	}
	d, err := h.readBuildTag(ctx, id, specTagName)
	if err != nil {
		return nil, err
	}
	payload, err := h.readBlobPayload(ctx, d)
	if err != nil {
		return nil, err
	}
	var stored storedSpec
	if err := yaml.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("corrupt spec for %s: %w", id, err)
	}
	return &solve.Spec{
		Pkg:        id,
		Deprecated: stored.Deprecated,
		Options:    stored.Options,
	}, nil
}

// storedSpec is the YAML-serialized form of a solve.Spec's payload; Pkg
// is reconstructed from the tag path rather than serialized, since it is
// redundant with where the spec is published.
type storedSpec struct {
	Deprecated bool              `yaml:"deprecated,omitempty"`
	Options    map[string]string `yaml:"options,omitempty"`
}

// PublishSpec writes spec's payload and tags it at id's spec path,
// overwriting any previously published spec for the same build.
func (h *Handle) PublishSpec(ctx context.Context, id ident.BuildIdent, spec solve.Spec) error {
	if err := h.requireTags(); err != nil {
		return err
	}
	body, err := yaml.Marshal(storedSpec{Deprecated: spec.Deprecated, Options: spec.Options})
	if err != nil {
		return err
	}
	d, err := h.writeBlob(ctx, body)
	if err != nil {
		return err
	}
	return h.pushBuildTag(ctx, id, specTagName, d)
}

// GetPackage returns the published components of id: every tag under its
// build path other than the spec tag, keyed by component name.
func (h *Handle) GetPackage(ctx context.Context, id ident.BuildIdent) (map[string]digest.Digest, error) {
	if err := h.requireTags(); err != nil {
		return nil, err
	}
	entries, err := iterseq.Collect(ctx, h.Tags.LsTags(ctx, buildTagPath(id)))
	if err != nil {
		return nil, err
	}
	found := false
	components := make(map[string]digest.Digest)
	for _, e := range entries {
		if strings.HasSuffix(e, "/") || e == specTagName {
			continue
		}
		d, err := h.readBuildTag(ctx, id, e)
		if err != nil {
			continue
		}
		components[e] = d
		found = true
	}
	if !found {
		return nil, rterrors.PackageNotFound{Name: id.String()}
	}
	return components, nil
}

// PublishComponent tags target under id's build path as component.
func (h *Handle) PublishComponent(ctx context.Context, id ident.BuildIdent, component string, target digest.Digest) error {
	if err := h.requireTags(); err != nil {
		return err
	}
	return h.pushBuildTag(ctx, id, component, target)
}

func (h *Handle) readFullBuildTag(ctx context.Context, id ident.BuildIdent, name string) (track.Tag, error) {
	spec := track.TagSpec{Org: buildTagPath(id), Name: name}
	stream, err := h.Tags.ReadTag(ctx, spec)
	if err != nil {
		if _, ok := err.(rterrors.UnknownReference); ok {
			return track.Tag{}, rterrors.PackageNotFound{Name: id.String()}
		}
		return track.Tag{}, err
	}
	tag, ok, err := stream.Next(ctx)
	if err != nil {
		return track.Tag{}, err
	}
	if !ok {
		return track.Tag{}, rterrors.PackageNotFound{Name: id.String()}
	}
	return tag, nil
}

func (h *Handle) readBuildTag(ctx context.Context, id ident.BuildIdent, name string) (digest.Digest, error) {
	tag, err := h.readFullBuildTag(ctx, id, name)
	if err != nil {
		return digest.Nil, err
	}
	return tag.Target, nil
}

func (h *Handle) pushBuildTag(ctx context.Context, id ident.BuildIdent, name string, target digest.Digest) error {
	org := buildTagPath(id)
	var parent digest.Digest
	if existing, err := h.Tags.ReadTag(ctx, track.TagSpec{Org: org, Name: name}); err == nil {
		if tag, ok, err := existing.Next(ctx); err == nil && ok {
			parent = tag.Digest()
		}
	}
	tag := track.NewTag(org, name, target, parent, "", time.Now())
	return h.Tags.PushRawTag(ctx, tag)
}

func (h *Handle) writeBlob(ctx context.Context, body []byte) (digest.Digest, error) {
	payloadDigest, size, err := h.Store.WritePayload(ctx, strings.NewReader(string(body)))
	if err != nil {
		return digest.Nil, err
	}
	blob := graph.Blob{PayloadDigest: payloadDigest, Size: uint64(size)}
	if err := h.Store.WriteObject(ctx, blob); err != nil {
		return digest.Nil, err
	}
	return graph.Digest(blob), nil
}

func (h *Handle) readBlobPayload(ctx context.Context, d digest.Digest) ([]byte, error) {
	obj, err := h.Store.ReadObject(ctx, d)
	if err != nil {
		return nil, err
	}
	blob, ok := obj.(graph.Blob)
	if !ok {
		return nil, fmt.Errorf("object %s is not a blob", d.Short())
	}
	rc, err := h.Store.ReadPayload(ctx, blob.PayloadDigest)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ResolveRef resolves ref to a concrete digest: a full or unambiguous
// partial digest, or a tag reference ("org/name" or "org/name~N").
func (h *Handle) ResolveRef(ctx context.Context, ref string) (digest.Digest, error) {
	if d, err := digest.Parse(ref); err == nil {
		return d, nil
	}
	if d, err := h.resolveDigestPrefix(ctx, ref); err == nil {
		return d, nil
	} else if ambiguous, ok := err.(rterrors.AmbiguousReference); ok {
		return digest.Nil, ambiguous
	}
	if err := h.requireTags(); err == nil {
		if spec, err := track.ParseTagSpec(ref); err == nil {
			stream, err := h.Tags.ReadTag(ctx, spec)
			if err == nil {
				tag, ok, err := stream.Next(ctx)
				for i := uint64(0); err == nil && ok && i < spec.Version; i++ {
					tag, ok, err = stream.Next(ctx)
				}
				if err == nil && ok {
					return tag.Target, nil
				}
			}
		}
	}
	return digest.Nil, rterrors.UnknownReference{Ref: ref}
}

func (h *Handle) resolveDigestPrefix(ctx context.Context, prefix string) (digest.Digest, error) {
	digests, err := iterseq.Collect(ctx, h.Store.IterObjects(ctx))
	if err != nil {
		return digest.Nil, err
	}
	found, err := digest.NewShortener(digests).Lookup(prefix)
	if err != nil {
		if err == digest.ErrPrefixNotFound {
			return digest.Nil, rterrors.UnknownReference{Ref: prefix}
		}
		return digest.Nil, rterrors.AmbiguousReference{Ref: prefix}
	}
	return found, nil
}

// FindAliases returns every tag (as "org/name" strings) whose target
// resolves from ref.
func (h *Handle) FindAliases(ctx context.Context, ref string) ([]string, error) {
	if err := h.requireTags(); err != nil {
		return nil, err
	}
	d, err := h.ResolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	specs, err := iterseq.Collect(ctx, h.Tags.FindTags(ctx, d))
	if err != nil {
		return nil, err
	}
	aliases := make([]string, 0, len(specs))
	for _, s := range specs {
		aliases = append(aliases, s.String())
	}
	return aliases, nil
}

// GetShortenedDigest returns the shortest prefix of d's textual form that
// remains unambiguous among every digest currently known to this
// repository's store.
func (h *Handle) GetShortenedDigest(ctx context.Context, d digest.Digest) (string, error) {
	digests, err := iterseq.Collect(ctx, h.Store.IterObjects(ctx))
	if err != nil {
		return "", err
	}
	return digest.NewShortener(digests).Shorten(d), nil
}
