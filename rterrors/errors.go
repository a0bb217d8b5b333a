// Package rterrors is the error taxonomy shared across the object store,
// tag store, solver and repository packages. Errors are typed so callers
// can recover specific fields with errors.As rather than parsing strings.
package rterrors

import (
	"fmt"

	"github.com/spfs-io/spfs/digest"
)

// UnknownObject is returned when a digest does not resolve to a stored
// object. Recoverable by syncing from a repository that has it.
type UnknownObject struct {
	Digest digest.Digest
}

func (e UnknownObject) Error() string {
	return fmt.Sprintf("unknown object: %s", e.Digest)
}

// ObjectMissingPayload is returned when a Blob's payload_digest does not
// resolve to stored payload bytes. Recoverable by syncing.
type ObjectMissingPayload struct {
	Owner   digest.Digest
	Payload digest.Digest
}

func (e ObjectMissingPayload) Error() string {
	return fmt.Sprintf("object %s missing payload %s", e.Owner, e.Payload)
}

// UnknownReference is returned when a tag or ref string does not resolve
// to anything in the repository.
type UnknownReference struct {
	Ref string
}

func (e UnknownReference) Error() string {
	return fmt.Sprintf("unknown reference: %s", e.Ref)
}

// InvalidReference is returned when a ref string cannot be parsed at all.
type InvalidReference struct {
	Ref    string
	Reason string
}

func (e InvalidReference) Error() string {
	return fmt.Sprintf("invalid reference %q: %s", e.Ref, e.Reason)
}

// AmbiguousReference is returned when a short digest or alias matches more
// than one candidate.
type AmbiguousReference struct {
	Ref        string
	Candidates []string
}

func (e AmbiguousReference) Error() string {
	return fmt.Sprintf("ambiguous reference %q: matches %v", e.Ref, e.Candidates)
}

// NothingToCommit is a sentinel signal for empty commits; callers
// pattern-match on it rather than treating it as a hard failure.
var NothingToCommit = fmt.Errorf("nothing to commit")

// InvalidPackageSpec is returned when a spec object fails to parse or is
// missing required fields. Skipped (logged) by iterators, surfaced at
// solver dead-ends.
type InvalidPackageSpec struct {
	Ident  string
	Reason string
}

func (e InvalidPackageSpec) Error() string {
	return fmt.Sprintf("invalid package spec for %s: %s", e.Ident, e.Reason)
}

// PackageNotFound is returned when a named package has no versions in any
// searched repository.
type PackageNotFound struct {
	Name string
}

func (e PackageNotFound) Error() string {
	return fmt.Sprintf("package not found: %s", e.Name)
}

// TagLocked is returned when a tag lock could not be acquired before
// timing out.
type TagLocked struct {
	Tag string
}

func (e TagLocked) Error() string {
	return fmt.Sprintf("tag locked, cannot edit: %s", e.Tag)
}

// PayloadMismatch is returned by the syncer when a destination's payload
// write returns a digest different from the Blob's declared payload
// digest. The subtree being synced is aborted without touching the
// destination further.
type PayloadMismatch struct {
	Expected digest.Digest
	Actual   digest.Digest
}

func (e PayloadMismatch) Error() string {
	return fmt.Sprintf("payload mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// CyclicGraph is returned when walking the object graph encounters a
// back-edge, which should be impossible under correct content addressing
// and signals storage corruption.
type CyclicGraph struct {
	Digest digest.Digest
}

func (e CyclicGraph) Error() string {
	return fmt.Sprintf("cyclic object graph detected at %s", e.Digest)
}
