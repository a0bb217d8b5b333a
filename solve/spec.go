package solve

import (
	"context"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/ident"
)

// Spec is a package's build specification as read from a repository: the
// build identity, its resolved option values, and metadata the validator
// chain inspects.
type Spec struct {
	Pkg        ident.BuildIdent
	Deprecated bool
	Options    map[string]string
}

// PackageSource names where a candidate build's spec and components came
// from, for the solver to later resolve it into a filesystem layer.
type PackageSource struct {
	Repo       Repository
	Components map[string]digest.Digest
}

// Repository is the subset of a repository handle the solver needs:
// listing versions and builds, and reading a build's spec and components.
// Satisfied by repo.Handle.
type Repository interface {
	ListPackageVersions(ctx context.Context, name string) ([]ident.Version, error)
	ListPackageBuilds(ctx context.Context, id ident.Ident) ([]ident.BuildIdent, error)
	ReadSpec(ctx context.Context, id ident.BuildIdent) (*Spec, error)
	GetPackage(ctx context.Context, id ident.BuildIdent) (map[string]digest.Digest, error)
}
