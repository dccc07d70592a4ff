package ircu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetUserModeSelf(t *testing.T) {
	u := &User{nick: "alice", perm: UPermUser}

	require.NoError(t, SetUserMode(UModeWhoisInfo, u, u))
	assert.True(t, u.ModeIsSet(UModeWhoisInfo))

	assert.Equal(t, ErrModeAlreadySet, SetUserMode(UModeWhoisInfo, u, u))

	require.NoError(t, UnsetUserMode(UModeWhoisInfo, u, u))
	assert.False(t, u.ModeIsSet(UModeWhoisInfo))
}

func TestSetUserModeRequiresPermission(t *testing.T) {
	setter := &User{nick: "bob", perm: UPermUser}
	target := &User{nick: "carol", perm: UPermUser}

	assert.Equal(t, ErrInsuffPerms, SetUserMode(UModeNetOp, setter, target))

	admin := &User{nick: "root", perm: UPermAdmin}
	require.NoError(t, SetUserMode(UModeNetOp, admin, target))
	assert.True(t, target.ModeIsSet(UModeNetOp))
}

func TestSetUserModeUnknownMode(t *testing.T) {
	u := &User{nick: "alice", perm: UPermUser}
	assert.Equal(t, ErrUnknownMode, SetUserMode(1<<63, u, u))
}

func TestRenderUserModes(t *testing.T) {
	assert.Equal(t, "+", RenderUserModes(0))
	assert.Equal(t, "+i", RenderUserModes(UModeInvisible))
	assert.Equal(t, "+io", RenderUserModes(UModeInvisible|UModeNetOp))
}

func TestUserModeLettersRoundTrip(t *testing.T) {
	for letter, bit := range UModeLetters {
		rendered := RenderUserModes(bit)
		assert.Contains(t, rendered, string(letter), "letter %c must render back", letter)
	}
}
