package solve

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spfs-io/spfs/ident"
)

func specFor(name string, build ident.Build, deprecated bool) *Spec {
	return &Spec{
		Pkg:        ident.BuildIdent{Name: name, Build: build},
		Deprecated: deprecated,
	}
}

func TestDeprecation_AllowsNonDeprecated(t *testing.T) {
	state := NewState()
	c, err := (Deprecation{}).Validate(state, specFor("pkg", ident.NewSourceBuild(), false))
	require.NoError(t, err)
	require.True(t, c.Compatible())
}

func TestDeprecation_RejectsDeprecatedWithoutExactRequest(t *testing.T) {
	state := NewState()
	state.Requests["pkg"] = Request{Name: "pkg"}

	c, err := (Deprecation{}).Validate(state, specFor("pkg", ident.NewSourceBuild(), true))
	require.NoError(t, err)
	require.False(t, c.Compatible())
}

func TestDeprecation_AllowsDeprecatedWhenBuildRequestedExactly(t *testing.T) {
	build := ident.NewSourceBuild()
	state := NewState()
	state.Requests["pkg"] = Request{Name: "pkg", Build: &build}

	c, err := (Deprecation{}).Validate(state, specFor("pkg", build, true))
	require.NoError(t, err)
	require.True(t, c.Compatible())
}

func TestDeprecation_ErrorsWithoutMergedRequest(t *testing.T) {
	state := NewState()
	_, err := (Deprecation{}).Validate(state, specFor("pkg", ident.NewSourceBuild(), true))
	require.Error(t, err)
	require.IsType(t, ErrNoRequest{}, err)
}

func TestBinaryOnly_AllowsBinaryBuild(t *testing.T) {
	var digestChars [ident.DigestSize]byte
	state := NewState()
	c, err := (BinaryOnly{}).Validate(state, specFor("pkg", ident.NewDigestBuild(digestChars), false))
	require.NoError(t, err)
	require.True(t, c.Compatible())
}

func TestBinaryOnly_RejectsSourceWithoutExactRequest(t *testing.T) {
	state := NewState()
	state.Requests["pkg"] = Request{Name: "pkg"}

	c, err := (BinaryOnly{}).Validate(state, specFor("pkg", ident.NewSourceBuild(), false))
	require.NoError(t, err)
	require.False(t, c.Compatible())
	require.Equal(t, binaryOnlyReason, c.Reason)
}

func TestBinaryOnly_AllowsSourceWhenRequestedExactly(t *testing.T) {
	build := ident.NewSourceBuild()
	state := NewState()
	state.Requests["pkg"] = Request{Name: "pkg", Build: &build}

	c, err := (BinaryOnly{}).Validate(state, specFor("pkg", build, false))
	require.NoError(t, err)
	require.True(t, c.Compatible())
}

func TestValidateAll_ShortCircuitsOnFirstIncompatibility(t *testing.T) {
	state := NewState()
	state.Requests["pkg"] = Request{Name: "pkg"}

	chain := []Validator{Deprecation{}, BinaryOnly{}}
	c, err := ValidateAll(chain, state, specFor("pkg", ident.NewSourceBuild(), true))
	require.NoError(t, err)
	require.False(t, c.Compatible())
	require.NotEqual(t, binaryOnlyReason, c.Reason, "Deprecation should have rejected first")
}

func TestValidateAll_CompatibleWhenEveryValidatorAllows(t *testing.T) {
	state := NewState()
	c, err := ValidateAll(DefaultValidators(), state, specFor("pkg", ident.NewSourceBuild(), false))
	require.NoError(t, err)
	require.True(t, c.Compatible())
}

func TestGetMergedRequest_MissingReturnsErrNoRequest(t *testing.T) {
	state := NewState()
	_, err := state.GetMergedRequest("missing")
	var notFound ErrNoRequest
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "missing", notFound.Name)
}
