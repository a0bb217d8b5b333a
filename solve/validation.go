package solve

import (
	"fmt"

	"github.com/spfs-io/spfs/ident"
)

// Request is a single resolved installation constraint for one package
// name, as tracked by State. Build is non-nil when the request pins an
// exact build (e.g. "name/version/build" rather than a bare name or
// name/version).
type Request struct {
	Name  string
	Build *ident.Build
}

func buildsEqual(a, b *ident.Build) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// State is the subset of in-progress solver state a Validator consults: the
// merged set of requests accumulated so far, keyed by package name.
type State struct {
	Requests map[string]Request
}

// NewState returns an empty State.
func NewState() *State {
	return &State{Requests: make(map[string]Request)}
}

// ErrNoRequest is returned by GetMergedRequest when no request has been
// recorded for name.
type ErrNoRequest struct {
	Name string
}

func (e ErrNoRequest) Error() string {
	return fmt.Sprintf("no request exists for package %q", e.Name)
}

// GetMergedRequest returns the request accumulated so far for name.
func (s *State) GetMergedRequest(name string) (Request, error) {
	req, ok := s.Requests[name]
	if !ok {
		return Request{}, ErrNoRequest{Name: name}
	}
	return req, nil
}

// Compatibility is the result of a single Validator check: either
// compatible, or incompatible with a human-readable reason.
type Compatibility struct {
	Reason string
}

// Compatible reports whether this result allows the candidate.
func (c Compatibility) Compatible() bool { return c.Reason == "" }

func (c Compatibility) String() string {
	if c.Compatible() {
		return "compatible"
	}
	return c.Reason
}

// ok is the shared Compatible result every Validator returns when it finds
// no objection.
var ok = Compatibility{}

func incompatible(reason string) Compatibility {
	return Compatibility{Reason: reason}
}

// Validator inspects one candidate Spec against the accumulated solver
// State, deciding whether it may be considered for resolution.
type Validator interface {
	Validate(state *State, spec *Spec) (Compatibility, error)
}

// Deprecation rejects deprecated package versions unless the candidate's
// exact build was requested by name.
type Deprecation struct{}

func (Deprecation) Validate(state *State, spec *Spec) (Compatibility, error) {
	if !spec.Deprecated {
		return ok, nil
	}
	request, err := state.GetMergedRequest(spec.Pkg.Name)
	if err != nil {
		return Compatibility{}, err
	}
	if buildsEqual(request.Build, &spec.Pkg.Build) {
		return ok, nil
	}
	return incompatible("build is deprecated (and not requested exactly)"), nil
}

// binaryOnlyReason is shared by every BinaryOnly rejection, matching the
// teacher's single constant message for both causes.
const binaryOnlyReason = "only binary packages are allowed"

// BinaryOnly rejects source builds unless the candidate's exact source
// build was requested by name.
type BinaryOnly struct{}

func (BinaryOnly) Validate(state *State, spec *Spec) (Compatibility, error) {
	if !spec.Pkg.IsSource() {
		return ok, nil
	}
	request, err := state.GetMergedRequest(spec.Pkg.Name)
	if err != nil {
		return Compatibility{}, err
	}
	if buildsEqual(request.Build, &spec.Pkg.Build) {
		return ok, nil
	}
	return incompatible(binaryOnlyReason), nil
}

// DefaultValidators returns the validator chain used when none is
// configured explicitly.
func DefaultValidators() []Validator {
	return []Validator{Deprecation{}}
}

// ValidateAll runs every validator in chain against spec, short-circuiting
// on the first incompatibility.
func ValidateAll(chain []Validator, state *State, spec *Spec) (Compatibility, error) {
	for _, v := range chain {
		c, err := v.Validate(state, spec)
		if err != nil {
			return Compatibility{}, err
		}
		if !c.Compatible() {
			return c, nil
		}
	}
	return ok, nil
}
