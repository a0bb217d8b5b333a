package solve

import (
	"context"
	"sort"

	"github.com/spfs-io/spfs/ident"
	"github.com/spfs-io/spfs/rterrors"
	"github.com/spfs-io/spfs/rtlog"
)

// BuildIterator yields candidate (Spec, PackageSource) pairs for one
// package version, lazily.
type BuildIterator interface {
	Next(ctx context.Context) (*Spec, PackageSource, bool, error)
	Len() int
	IsEmpty() bool
}

// PackageIterator is a stateful cursor yielding, for one package name, the
// sequence of known versions (descending) paired with a BuildIterator for
// each.
type PackageIterator struct {
	name  string
	repos []Repository

	started     bool
	versions    []ident.Version
	versionRepo map[string]Repository
	builds      map[string]BuildIterator
	cursor      int
}

// NewPackageIterator returns a PackageIterator over name across repos.
// repos is given in descending priority order: earlier entries win when
// the same version appears in more than one, since buildVersionMap
// consults repos in reverse.
func NewPackageIterator(name string, repos []Repository) *PackageIterator {
	return &PackageIterator{
		name:        name,
		repos:       repos,
		versionRepo: make(map[string]Repository),
		builds:      make(map[string]BuildIterator),
	}
}

// AsyncClone returns an independent cursor at this iterator's start
// position. The build cache is deliberately not cloned: the backtracking
// solver forces each branch to reconstruct its own BuildIterators rather
// than share mutable state across branches.
func (p *PackageIterator) AsyncClone(ctx context.Context) (*PackageIterator, error) {
	clone := NewPackageIterator(p.name, p.repos)
	if !p.started {
		return clone, nil
	}
	versions, versionRepo, err := p.buildVersionMap(ctx)
	if err != nil {
		if _, ok := err.(rterrors.PackageNotFound); ok {
			return clone, nil
		}
		// cloning is best-effort: a transient lookup failure falls
		// back to the parent's already-built map rather than failing
		// the clone outright.
		rtlog.GetLogger(ctx, "package", p.name).WithError(err).Trace("clone encountered an error rebuilding version map")
		versions, versionRepo = p.versions, p.versionRepo
	}
	clone.started = true
	clone.versions = versions
	clone.versionRepo = versionRepo
	return clone, nil
}

// SetBuilds replaces the BuildIterator for version, letting the solver
// substitute a SortedBuildIterator after initial enumeration.
func (p *PackageIterator) SetBuilds(version ident.Version, builds BuildIterator) {
	p.builds[version.String()] = builds
}

func (p *PackageIterator) buildVersionMap(ctx context.Context) ([]ident.Version, map[string]Repository, error) {
	versionRepo := make(map[string]Repository)
	// consult lowest-priority (last) first so earlier, higher-priority
	// repos overwrite the mapping for any version they share.
	for i := len(p.repos) - 1; i >= 0; i-- {
		repo := p.repos[i]
		versions, err := repo.ListPackageVersions(ctx, p.name)
		if err != nil {
			return nil, nil, err
		}
		for _, v := range versions {
			versionRepo[v.String()] = repo
		}
	}
	if len(versionRepo) == 0 {
		return nil, nil, rterrors.PackageNotFound{Name: p.name}
	}
	versions := make([]ident.Version, 0, len(versionRepo))
	seen := make(map[string]bool)
	for i := len(p.repos) - 1; i >= 0; i-- {
		repo := p.repos[i]
		vs, _ := repo.ListPackageVersions(ctx, p.name)
		for _, v := range vs {
			if !seen[v.String()] {
				seen[v.String()] = true
				versions = append(versions, v)
			}
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Compare(versions[j]) < 0 })
	reverseVersions(versions)
	return versions, versionRepo, nil
}

func reverseVersions(v []ident.Version) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}

func (p *PackageIterator) start(ctx context.Context) error {
	versions, versionRepo, err := p.buildVersionMap(ctx)
	if err != nil {
		return err
	}
	p.versions = versions
	p.versionRepo = versionRepo
	p.started = true
	return nil
}

// Next yields the next (Ident, BuildIterator) pair, skipping versions
// whose build listing fails with InvalidPackageSpec (logged, not fatal)
// and versions whose build iterator is empty. Builds with an unreadable
// spec are skipped later, by the BuildIterator itself.
func (p *PackageIterator) Next(ctx context.Context) (ident.Ident, BuildIterator, bool, error) {
	if !p.started {
		if err := p.start(ctx); err != nil {
			return ident.Ident{}, nil, false, err
		}
	}
	for p.cursor < len(p.versions) {
		version := p.versions[p.cursor]
		p.cursor++
		repo, ok := p.versionRepo[version.String()]
		if !ok {
			return ident.Ident{}, nil, false, rterrors.InvalidPackageSpec{Ident: p.name, Reason: "version not found in version map"}
		}
		pkg := ident.New(p.name).WithVersion(version)
		builds, ok := p.builds[version.String()]
		if !ok {
			bi, err := NewRepositoryBuildIterator(ctx, pkg, repo)
			if err != nil {
				if _, ok := err.(rterrors.InvalidPackageSpec); ok {
					rtlog.GetLogger(ctx, "package", pkg).WithError(err).Warn("skipping version")
					continue
				}
				return ident.Ident{}, nil, false, err
			}
			builds = bi
			p.builds[version.String()] = builds
		}
		if builds.IsEmpty() {
			continue
		}
		return pkg, builds, true, nil
	}
	return ident.Ident{}, nil, false, nil
}

// RepositoryBuildIterator yields (Spec, PackageSource) tuples for one
// (repo, name, version), builds pre-sorted so source builds come last.
type RepositoryBuildIterator struct {
	repo   Repository
	builds []ident.BuildIdent
	cursor int
}

// NewRepositoryBuildIterator lists every build of pkg in repo, sorting so
// source builds sort last (stable otherwise).
func NewRepositoryBuildIterator(ctx context.Context, pkg ident.Ident, repo Repository) (*RepositoryBuildIterator, error) {
	builds, err := repo.ListPackageBuilds(ctx, pkg)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(builds, func(i, j int) bool {
		return !builds[i].IsSource() && builds[j].IsSource()
	})
	return &RepositoryBuildIterator{repo: repo, builds: builds}, nil
}

func (it *RepositoryBuildIterator) IsEmpty() bool { return it.cursor >= len(it.builds) }
func (it *RepositoryBuildIterator) Len() int       { return len(it.builds) - it.cursor }

func (it *RepositoryBuildIterator) Next(ctx context.Context) (*Spec, PackageSource, bool, error) {
	for it.cursor < len(it.builds) {
		build := it.builds[it.cursor]
		it.cursor++

		spec, err := it.repo.ReadSpec(ctx, build)
		if err != nil {
			if _, ok := err.(rterrors.PackageNotFound); ok {
				rtlog.GetLogger(ctx, "build", build).Warn("repository listed build with no spec")
				continue
			}
			return nil, PackageSource{}, false, err
		}

		components, err := it.repo.GetPackage(ctx, build)
		if err != nil {
			if _, ok := err.(rterrors.PackageNotFound); ok {
				components = nil
			} else {
				return nil, PackageSource{}, false, err
			}
		}

		if spec.Pkg.Build.Kind != build.Build.Kind || !spec.Pkg.Build.Equal(build.Build) {
			rtlog.GetLogger(ctx, "build", build).Warn("published spec is corrupt (build mismatch), repairing in memory")
			spec.Pkg.Build = build.Build
		}

		return spec, PackageSource{Repo: it.repo, Components: components}, true, nil
	}
	return nil, PackageSource{}, false, nil
}
