package solve

import (
	"strings"

	"github.com/spfs-io/spfs/ident"
)

// PkgRequest constrains a package by name, optionally pinning an exact
// build. When Pin is set, Build is nil until RenderAllPins fills it in
// from the resolved build environment (a "fromBuildEnv" request).
type PkgRequest struct {
	Name  string
	Pin   bool
	Build *ident.BuildIdent
}

// VarRequest constrains a build option's value. Var may be either a bare
// option name or "package.option" to scope it to one package's options.
// Pin marks this as a "fromBuildEnv" request: Value is filled in later by
// RenderAllPins rather than being given up front.
type VarRequest struct {
	Var   string
	Value string
	Pin   bool
}

// Requirement is one entry of a RequirementSet: exactly one of Pkg or Var
// is set.
type Requirement struct {
	Pkg *PkgRequest
	Var *VarRequest
}

func (r Requirement) name() string {
	switch {
	case r.Pkg != nil:
		return r.Pkg.Name
	case r.Var != nil:
		return r.Var.Var
	default:
		return ""
	}
}

// RequirementSet is an ordered set of installation requirements, at most
// one per package/variable name -- the supplemented equivalent of
// RequirementsList, including its upsert-by-name and build-env pin
// rendering behavior.
type RequirementSet struct {
	items []Requirement
}

// NewRequirementSet returns an empty RequirementSet.
func NewRequirementSet() *RequirementSet {
	return &RequirementSet{}
}

// Items returns the requirements in insertion order. Callers must not
// mutate the returned slice.
func (rs *RequirementSet) Items() []Requirement {
	return rs.items
}

// Upsert adds req, replacing any existing requirement for the same name.
func (rs *RequirementSet) Upsert(req Requirement) {
	name := req.name()
	for i, other := range rs.items {
		if other.name() == name {
			rs.items[i] = req
			return
		}
	}
	rs.items = append(rs.items, req)
}

// ErrUnresolvedPin is returned by RenderAllPins when a pinned request
// cannot be rendered because its target package or option is not present
// in the resolved build environment.
type ErrUnresolvedPin struct {
	Reason string
}

func (e ErrUnresolvedPin) Error() string { return e.Reason }

// RenderAllPins resolves every "fromBuildEnv" pin in rs: a pinned
// PkgRequest picks up the exact build of the matching entry in resolved,
// and a pinned VarRequest picks up the matching entry's value from
// options (optionally scoped to one package via "package.option").
func (rs *RequirementSet) RenderAllPins(options map[string]string, resolved map[string]ident.BuildIdent) error {
	for i, req := range rs.items {
		switch {
		case req.Pkg != nil && req.Pkg.Pin:
			build, ok := resolved[req.Pkg.Name]
			if !ok {
				return ErrUnresolvedPin{Reason: "Cannot resolve fromBuildEnv, package not present: " + req.Pkg.Name +
					"\nIs it missing from your package build options?"}
			}
			rs.items[i].Pkg = &PkgRequest{Name: req.Pkg.Name, Build: &build}
		case req.Var != nil && req.Var.Pin:
			name := req.Var.Var
			var value string
			var found bool
			if pkg, opt, isScoped := splitVarName(name); isScoped {
				value, found = options[pkg+"."+opt]
			} else {
				value, found = options[name]
			}
			if !found {
				return ErrUnresolvedPin{Reason: "Cannot resolve fromBuildEnv, variable not set: " + name +
					"\nIs it missing from the package build options?"}
			}
			rs.items[i].Var = &VarRequest{Var: name, Value: value}
		}
	}
	return nil
}

func splitVarName(name string) (pkg, opt string, scoped bool) {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
