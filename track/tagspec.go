package track

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/spfs-io/spfs/rterrors"
)

// TagSpec identifies one version within a tag stream: version 0 is the
// newest entry, version 1 the one before it, and so on.
type TagSpec struct {
	Org     string
	Name    string
	Version uint64
}

// NewTagSpec builds a TagSpec for the newest (version 0) entry of a
// stream.
func NewTagSpec(org, name string) TagSpec {
	return TagSpec{Org: org, Name: name}
}

// WithVersion returns a copy of s pointed at a different version within
// the same stream.
func (s TagSpec) WithVersion(v uint64) TagSpec {
	s.Version = v
	return s
}

// Path returns the org/name path used to locate this stream's file,
// independent of version (a version selects within the file, not the
// file itself).
func (s TagSpec) Path() string {
	return path.Join(s.Org, s.Name)
}

// String renders "org/name" for version 0, or "org/name~N" otherwise.
func (s TagSpec) String() string {
	if s.Version == 0 {
		return s.Path()
	}
	return fmt.Sprintf("%s~%d", s.Path(), s.Version)
}

// ParseTagSpec parses the String form back into a TagSpec. The input must
// have at least two path segments (an org and a name); everything but the
// last segment is the org, mirroring how repository tags nest under
// arbitrary organizational prefixes.
func ParseTagSpec(s string) (TagSpec, error) {
	version := uint64(0)
	if i := strings.LastIndexByte(s, '~'); i >= 0 {
		v, err := strconv.ParseUint(s[i+1:], 10, 64)
		if err != nil {
			return TagSpec{}, rterrors.InvalidReference{Ref: s, Reason: "invalid tag version suffix"}
		}
		version = v
		s = s[:i]
	}
	s = strings.Trim(s, "/")
	i := strings.LastIndexByte(s, '/')
	if i <= 0 || i == len(s)-1 {
		return TagSpec{}, rterrors.InvalidReference{Ref: s, Reason: "tag must be org/name"}
	}
	return TagSpec{Org: s[:i], Name: s[i+1:], Version: version}, nil
}
