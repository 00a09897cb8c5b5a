package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutPresets(t *testing.T) {
	l, err := LayoutWithIdentifiers(1)
	require.NoError(t, err)
	assert.Equal(t, "[time]", l.String())
	assert.False(t, l.HasTrialID())

	l, err = LayoutWithIdentifiers(2)
	require.NoError(t, err)
	assert.Equal(t, "[time][trial]", l.String())
	assert.True(t, l.HasTrialID())

	l, err = LayoutWithIdentifiers(3)
	require.NoError(t, err)
	assert.Equal(t, "[time][iteration][trial]", l.String())

	_, err = LayoutWithIdentifiers(4)
	assert.Error(t, err)
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultLayout(), l)

	l, err = ParseLayout([]string{"Time", " trial "})
	require.NoError(t, err)
	assert.Equal(t, []Role{RoleTime, RoleTrial}, l.Roles)

	_, err = ParseLayout([]string{"trial"})
	assert.ErrorContains(t, err, "no time identifier")

	_, err = ParseLayout([]string{"time", "time"})
	assert.ErrorContains(t, err, "duplicate")

	_, err = ParseLayout([]string{"time", "cpu"})
	assert.ErrorContains(t, err, "unknown identifier role")
}
