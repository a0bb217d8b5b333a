package track

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTagSpecStringVersionZeroOmitsSuffix(t *testing.T) {
	spec := NewTagSpec("myorg", "myplatform")
	require.Equal(t, "myorg/myplatform", spec.String())
	require.Equal(t, "myorg/myplatform", spec.Path())
}

func TestTagSpecStringNonZeroVersionAddsSuffix(t *testing.T) {
	spec := NewTagSpec("myorg", "myplatform").WithVersion(3)
	require.Equal(t, "myorg/myplatform~3", spec.String())
	require.Equal(t, "myorg/myplatform", spec.Path(), "Path ignores version")
}

func TestParseTagSpecRoundTrip(t *testing.T) {
	for _, s := range []string{"myorg/myplatform", "myorg/myplatform~3", "a/b/c/myplatform~10"} {
		spec, err := ParseTagSpec(s)
		require.NoError(t, err, s)
		require.Equal(t, s, spec.String(), s)
	}
}

func TestParseTagSpecNestedOrg(t *testing.T) {
	spec, err := ParseTagSpec("a/b/c/name")
	require.NoError(t, err)
	require.Equal(t, "a/b/c", spec.Org)
	require.Equal(t, "name", spec.Name)
	require.Equal(t, uint64(0), spec.Version)
}

func TestParseTagSpecRejectsMissingOrg(t *testing.T) {
	_, err := ParseTagSpec("justaname")
	require.Error(t, err)
}

func TestParseTagSpecRejectsInvalidVersionSuffix(t *testing.T) {
	_, err := ParseTagSpec("org/name~notanumber")
	require.Error(t, err)
}

func TestParseTagSpecTrimsSlashes(t *testing.T) {
	spec, err := ParseTagSpec("/org/name/")
	require.NoError(t, err)
	require.Equal(t, "org", spec.Org)
	require.Equal(t, "name", spec.Name)
}
