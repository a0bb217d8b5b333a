// Package ident implements the package identifier grammar:
//
//	ident   := name ("/" version ("/" build)? )?
//	build   := "src" | "embedded" ("[" ident "]")? | digest-chars{8}
//	version := dotted-decimal ( ("-" | "+") segment )*
//	name    := /[a-z][a-z0-9-]*/
//
// grounded on crates/spk-schema/crates/ident/src/ident.rs and
// crates/spk-schema/crates/foundation/src/ident_build/build.rs, expressed
// as Go tagged unions the way manifest/versioned.go distinguishes schema
// kinds by a discriminant pair instead of an enum.
package ident

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a dotted-decimal release number with optional pre-release
// ("-") and build-metadata ("+") segments, e.g. "1.2.3-rc.1+git.abcdef".
type Version struct {
	Parts []uint64
	// Pre holds "-"-introduced segments in order; Post holds
	// "+"-introduced segments in order. Both may be empty.
	Pre  []string
	Post []string
}

// IsZero reports whether v is the default, unversioned value.
func (v Version) IsZero() bool {
	return len(v.Parts) == 0 && len(v.Pre) == 0 && len(v.Post) == 0
}

// String renders the canonical textual form.
func (v Version) String() string {
	var b strings.Builder
	for i, p := range v.Parts {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(p, 10))
	}
	if b.Len() == 0 {
		b.WriteByte('0')
	}
	for _, s := range v.Pre {
		b.WriteByte('-')
		b.WriteString(s)
	}
	for _, s := range v.Post {
		b.WriteByte('+')
		b.WriteString(s)
	}
	return b.String()
}

// MetadataPath renders the segment used as part of an object-store key
// for this version: dots replaced with slashes so each numeric component
// becomes its own directory level.
func (v Version) MetadataPath() string {
	parts := make([]string, len(v.Parts))
	for i, p := range v.Parts {
		parts[i] = strconv.FormatUint(p, 10)
	}
	return strings.Join(parts, "/")
}

// TagPath renders the segment used as part of a tag-stream path for this
// version: MetadataPath, with pre-release segments appended behind "-"
// and post-release segments behind "+", so those segments add no further
// path separators.
func (v Version) TagPath() string {
	path := v.MetadataPath()
	for _, s := range v.Pre {
		path += "-" + s
	}
	for _, s := range v.Post {
		path += "+" + s
	}
	return path
}

// Compare orders versions: dotted-decimal parts compared component by
// component (shorter is padded with zeros), then presence of a
// pre-release segment sorts lower than its absence (a pre-release is
// older than its final release), then lexicographic comparison of the
// Pre and Post segments themselves.
func (v Version) Compare(o Version) int {
	n := len(v.Parts)
	if len(o.Parts) > n {
		n = len(o.Parts)
	}
	for i := 0; i < n; i++ {
		a, b := partAt(v.Parts, i), partAt(o.Parts, i)
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	vPre, oPre := len(v.Pre) > 0, len(o.Pre) > 0
	if vPre != oPre {
		if vPre {
			return -1
		}
		return 1
	}
	if c := compareSegments(v.Pre, o.Pre); c != 0 {
		return c
	}
	return compareSegments(v.Post, o.Post)
}

func partAt(parts []uint64, i int) uint64 {
	if i < len(parts) {
		return parts[i]
	}
	return 0
}

func compareSegments(a, b []string) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var sa, sb string
		if i < len(a) {
			sa = a[i]
		}
		if i < len(b) {
			sb = b[i]
		}
		if sa != sb {
			return strings.Compare(sa, sb)
		}
	}
	return 0
}

// ErrInvalidVersion is returned by ParseVersion on malformed input.
type ErrInvalidVersion struct {
	Input  string
	Reason string
}

func (e ErrInvalidVersion) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Input, e.Reason)
}

// ParseVersion parses the dotted-decimal / pre-release / build-metadata
// grammar described in the package doc.
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return Version{}, nil
	}
	var v Version
	rest := s
	// split off "+"-segments first since they always trail "-"-segments
	// in the grammar, then split what remains on "-".
	if i := strings.IndexByte(rest, '+'); i >= 0 {
		for _, seg := range strings.Split(rest[i+1:], "+") {
			if seg == "" {
				return Version{}, ErrInvalidVersion{Input: s, Reason: "empty build-metadata segment"}
			}
			v.Post = append(v.Post, seg)
		}
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		for _, seg := range strings.Split(rest[i+1:], "-") {
			if seg == "" {
				return Version{}, ErrInvalidVersion{Input: s, Reason: "empty pre-release segment"}
			}
			v.Pre = append(v.Pre, seg)
		}
		rest = rest[:i]
	}
	if rest == "" {
		return Version{}, ErrInvalidVersion{Input: s, Reason: "missing dotted-decimal component"}
	}
	for _, part := range strings.Split(rest, ".") {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Version{}, ErrInvalidVersion{Input: s, Reason: "non-numeric version component " + strconv.Quote(part)}
		}
		v.Parts = append(v.Parts, n)
	}
	return v, nil
}
