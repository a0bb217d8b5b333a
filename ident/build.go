package ident

import (
	"fmt"
	"regexp"
)

// DigestSize is the fixed length of a Digest build's character payload.
const DigestSize = 8

// BuildKind discriminates the three Build variants.
type BuildKind int

const (
	BuildSource BuildKind = iota
	BuildEmbedded
	BuildDigest
)

// Build is the tagged union Source | Embedded(src?) | Digest([8]byte).
// Equality includes both the variant and its payload. Only Digest builds
// may own embedded packages.
type Build struct {
	Kind BuildKind
	// EmbeddedSource is set only when Kind == BuildEmbedded and the
	// embedding package is known; empty otherwise.
	EmbeddedSource string
	// HasEmbeddedSource distinguishes Embedded(Unknown) from
	// Embedded(Ident(...)) when EmbeddedSource happens to be empty --
	// it is never empty in practice since an Ident always has a name,
	// but the explicit flag keeps the zero value unambiguous.
	HasEmbeddedSource bool
	// Digest holds the build's content-derived digest characters when
	// Kind == BuildDigest.
	Digest [DigestSize]byte
}

// NewSourceBuild returns the Source build variant.
func NewSourceBuild() Build { return Build{Kind: BuildSource} }

// NewEmbeddedBuild returns the Embedded build variant, optionally naming
// the embedding package identifier (pass "" for Embedded(Unknown)).
func NewEmbeddedBuild(source string) Build {
	return Build{Kind: BuildEmbedded, EmbeddedSource: source, HasEmbeddedSource: source != ""}
}

// NewDigestBuild returns the Digest build variant for the given 8-byte
// digest text.
func NewDigestBuild(digestChars [DigestSize]byte) Build {
	return Build{Kind: BuildDigest, Digest: digestChars}
}

// IsSource reports whether this is the Source build.
func (b Build) IsSource() bool { return b.Kind == BuildSource }

// IsEmbedded reports whether this is an Embedded build.
func (b Build) IsEmbedded() bool { return b.Kind == BuildEmbedded }

// CanEmbed reports whether a package built with b may itself own embedded
// packages -- only Digest builds can.
func (b Build) CanEmbed() bool { return b.Kind == BuildDigest }

// Equal reports whether b and o are the same variant with the same
// payload.
func (b Build) Equal(o Build) bool {
	if b.Kind != o.Kind {
		return false
	}
	switch b.Kind {
	case BuildEmbedded:
		return b.EmbeddedSource == o.EmbeddedSource
	case BuildDigest:
		return b.Digest == o.Digest
	default:
		return true
	}
}

const (
	srcToken      = "src"
	embeddedToken = "embedded"
)

// String renders the build's canonical textual form: "src",
// "embedded" or "embedded[<ident>]", or the raw 8 digest characters.
func (b Build) String() string {
	switch b.Kind {
	case BuildSource:
		return srcToken
	case BuildEmbedded:
		if b.HasEmbeddedSource {
			return fmt.Sprintf("%s[%s]", embeddedToken, b.EmbeddedSource)
		}
		return embeddedToken
	case BuildDigest:
		return string(b.Digest[:])
	default:
		return ""
	}
}

// MetadataPath renders the path segment used for this build's object-store
// key, identical to String for every variant.
func (b Build) MetadataPath() string { return b.String() }

// TagPath renders the path segment used for this build's tag-stream key,
// identical to String for every variant.
func (b Build) TagPath() string { return b.String() }

var embeddedWithSourcePattern = regexp.MustCompile(`^embedded\[(.+)\]$`)

// ErrInvalidBuild is returned by ParseBuild on malformed input.
type ErrInvalidBuild struct {
	Input string
}

func (e ErrInvalidBuild) Error() string {
	return fmt.Sprintf("invalid build: %q", e.Input)
}

// ParseBuild parses the build grammar: "src" | "embedded" |
// "embedded[ident]" | 8 digest characters.
func ParseBuild(s string) (Build, error) {
	switch {
	case s == srcToken:
		return NewSourceBuild(), nil
	case s == embeddedToken:
		return NewEmbeddedBuild(""), nil
	case embeddedWithSourcePattern.MatchString(s):
		m := embeddedWithSourcePattern.FindStringSubmatch(s)
		return NewEmbeddedBuild(m[1]), nil
	case len(s) == DigestSize:
		var d [DigestSize]byte
		copy(d[:], s)
		return NewDigestBuild(d), nil
	default:
		return Build{}, ErrInvalidBuild{Input: s}
	}
}
