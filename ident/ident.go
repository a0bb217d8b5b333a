package ident

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// namePattern matches a valid package name: lowercase letters, digits and
// hyphens, starting with a letter.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// ErrInvalidName is returned when a package name fails namePattern.
type ErrInvalidName struct {
	Name string
}

func (e ErrInvalidName) Error() string {
	return fmt.Sprintf("invalid package name: %q", e.Name)
}

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return ErrInvalidName{Name: name}
	}
	return nil
}

// Ident identifies either a specific package build or a bare name/version,
// depending on whether Build is set.
type Ident struct {
	Name    string
	Version Version
	// Build is nil when this Ident names only a package (optionally at
	// a version) and not a specific build.
	Build *Build
}

// New returns an Ident naming only name, with the zero Version and no
// build.
func New(name string) Ident {
	return Ident{Name: name}
}

// CanEmbed reports whether this identifier could own embedded packages --
// only identifiers for a Digest build can.
func (id Ident) CanEmbed() bool {
	return id.Build != nil && id.Build.CanEmbed()
}

// IsEmbedded reports whether this identifier names an embedded package
// build.
func (id Ident) IsEmbedded() bool {
	return id.Build != nil && id.Build.IsEmbedded()
}

// IsSource reports whether this identifier names a source build.
func (id Ident) IsSource() bool {
	return id.Build != nil && id.Build.IsSource()
}

// WithVersion returns a copy of id pointed at a different version.
func (id Ident) WithVersion(v Version) Ident {
	id.Version = v
	return id
}

// WithBuild returns a copy of id with its build replaced (nil clears it).
func (id Ident) WithBuild(b *Build) Ident {
	id.Build = b
	return id
}

// VersionAndBuild renders "version" or "version/build" the way
// String does, without the leading name, or "" if both are absent/zero.
func (id Ident) VersionAndBuild() string {
	if id.Build != nil {
		return fmt.Sprintf("%s/%s", id.Version, id.Build)
	}
	if id.Version.IsZero() {
		return ""
	}
	return id.Version.String()
}

// String renders the canonical "name[/version[/build]]" form.
func (id Ident) String() string {
	vb := id.VersionAndBuild()
	if vb == "" {
		return id.Name
	}
	return id.Name + "/" + vb
}

// MetadataPath renders the relative path used as an object-store key for
// this identifier.
func (id Ident) MetadataPath() string {
	p := id.Name
	if id.Build != nil {
		return path.Join(p, id.Version.MetadataPath(), id.Build.MetadataPath())
	}
	if id.Version.IsZero() {
		return p
	}
	return path.Join(p, id.Version.MetadataPath())
}

// TagPath renders the relative path used as a tag-stream key for this
// identifier.
func (id Ident) TagPath() string {
	p := id.Name
	if id.Build != nil {
		return path.Join(p, id.Version.TagPath(), id.Build.TagPath())
	}
	if id.Version.IsZero() {
		return p
	}
	return path.Join(p, id.Version.TagPath())
}

// ErrInvalidIdent is returned by Parse on malformed input.
type ErrInvalidIdent struct {
	Input  string
	Reason string
}

func (e ErrInvalidIdent) Error() string {
	return fmt.Sprintf("invalid identifier %q: %s", e.Input, e.Reason)
}

// Parse parses the ident grammar: name ("/" version ("/" build)?)?
func Parse(s string) (Ident, error) {
	parts := strings.SplitN(s, "/", 3)
	name := parts[0]
	if err := validateName(name); err != nil {
		return Ident{}, ErrInvalidIdent{Input: s, Reason: err.Error()}
	}
	id := Ident{Name: name}
	if len(parts) >= 2 {
		v, err := ParseVersion(parts[1])
		if err != nil {
			return Ident{}, ErrInvalidIdent{Input: s, Reason: err.Error()}
		}
		id.Version = v
	}
	if len(parts) == 3 {
		b, err := ParseBuild(parts[2])
		if err != nil {
			return Ident{}, ErrInvalidIdent{Input: s, Reason: err.Error()}
		}
		id.Build = &b
	}
	return id, nil
}

// BuildIdent is a fully qualified identifier: always has a build and a
// repository name.
type BuildIdent struct {
	RepositoryName string
	Name           string
	Version        Version
	Build          Build
}

// IsSource reports whether this build identifier names a source build.
func (bi BuildIdent) IsSource() bool { return bi.Build.IsSource() }

// Ident projects bi down to the repository-less Ident form.
func (bi BuildIdent) Ident() Ident {
	b := bi.Build
	return Ident{Name: bi.Name, Version: bi.Version, Build: &b}
}

// MetadataPath renders the relative path used as an object-store key for
// this build. The repository name is deliberately excluded -- metadata
// paths are relative to a single repository's own store.
func (bi BuildIdent) MetadataPath() string {
	return path.Join(bi.Name, bi.Version.MetadataPath(), bi.Build.MetadataPath())
}

// TagPath renders the relative path used as a tag-stream key for this
// build, excluding the repository name for the same reason as
// MetadataPath.
func (bi BuildIdent) TagPath() string {
	return path.Join(bi.Name, bi.Version.TagPath(), bi.Build.TagPath())
}

// String renders "repository_name/name/version/build".
func (bi BuildIdent) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", bi.RepositoryName, bi.Name, bi.Version, bi.Build)
}
