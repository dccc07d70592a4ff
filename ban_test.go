package ircu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBanListAddBasic(t *testing.T) {
	var bl BanList
	var state BanOverlapState

	res := bl.Add(&state, "op", "*!*@evil.example.com", true, true, true, 1000)
	require.Equal(t, BanAdded, res)
	assert.Equal(t, 1, bl.Len())
	assert.Equal(t, "*!*@evil.example.com", bl.All()[0].Mask)
}

// Boundary scenario 2: a broader mask subsuming narrower existing bans
// sweeps them out of the list when apply=true, reporting them through
// the overlap state.
func TestBanListAddSubsumesExisting(t *testing.T) {
	var bl BanList
	var state BanOverlapState

	bl.Add(&state, "op", "*!*@foo.evil.example.com", true, true, true, 1000)
	bl.Add(&state, "op", "*!*@bar.evil.example.com", true, true, false, 1000)
	require.Equal(t, 2, bl.Len())

	res := bl.Add(&state, "op", "*!*@*.evil.example.com", true, true, true, 1000)
	require.Equal(t, BanAdded, res)

	// Both narrower bans were subsumed and removed.
	assert.Equal(t, 1, bl.Len())
	assert.Equal(t, "*!*@*.evil.example.com", bl.All()[0].Mask)

	removed := []string{}
	for b := state.NextRemovedOverlapped(); b != nil; b = state.NextRemovedOverlapped() {
		removed = append(removed, b.Mask)
	}
	assert.ElementsMatch(t, []string{"*!*@foo.evil.example.com", "*!*@bar.evil.example.com"}, removed)
}

// An existing broader ban rejects a new narrower, already-covered mask
// as redundant.
func TestBanListAddRejectsRedundant(t *testing.T) {
	var bl BanList
	var state BanOverlapState

	bl.Add(&state, "op", "*!*@*.evil.example.com", true, true, true, 1000)
	res := bl.Add(&state, "op", "*!*@foo.evil.example.com", true, true, true, 1000)
	assert.Equal(t, BanRejected, res)
	assert.Equal(t, 1, bl.Len())
}

// +b is idempotent: adding the exact same mask twice doesn't duplicate
// the list entry.
func TestBanListAddIdempotent(t *testing.T) {
	var bl BanList
	var state BanOverlapState

	bl.Add(&state, "op", "*!*@evil.example.com", true, true, true, 1000)
	res := bl.Add(&state, "op", "*!*@evil.example.com", true, true, true, 1000)
	assert.Equal(t, BanRejected, res)
	assert.Equal(t, 1, bl.Len())
}

// Boundary scenario 3: a burst-wipeout ban revived by an exact-match
// add is cleared without being re-emitted (Global invariant 6), and
// bypasses the local caps per the BURST_REVIVE Open Question
// resolution.
func TestBanListWipeoutRevival(t *testing.T) {
	var bl BanList
	var state BanOverlapState

	bl.Add(&state, "op", "*!*@evil.example.com", true, true, true, 1000)
	bl.MarkAllWipeout()
	assert.True(t, bl.bans[0].wipeout)

	res := bl.Add(&state, "op", "*!*@evil.example.com", true, true, true, 2000)
	assert.Equal(t, BanRevived, res)
	assert.False(t, bl.bans[0].wipeout)
	assert.Equal(t, 1, bl.Len())
}

func TestBanListSweepWipeout(t *testing.T) {
	var bl BanList
	var state BanOverlapState

	bl.Add(&state, "op", "*!*@a.example.com", true, true, true, 1000)
	bl.Add(&state, "op", "*!*@b.example.com", true, true, false, 1000)
	bl.MarkAllWipeout()

	// Revive only the first.
	bl.Add(&state, "op", "*!*@a.example.com", true, true, true, 2000)

	removed := bl.SweepWipeout()
	assert.Equal(t, []string{"*!*@b.example.com"}, removed)
	assert.Equal(t, 1, bl.Len())
	assert.Equal(t, "*!*@a.example.com", bl.All()[0].Mask)
}

func TestBanListDel(t *testing.T) {
	var bl BanList
	var state BanOverlapState

	bl.Add(&state, "op", "*!*@evil.example.com", true, true, true, 1000)
	assert.True(t, bl.Del("*!*@evil.example.com"))
	assert.Equal(t, 0, bl.Len())
	assert.False(t, bl.Del("*!*@evil.example.com"))
}

// Local adds respect MaxBans; server-relayed (local=false) adds bypass
// the cap.
func TestBanListLocalCapEnforced(t *testing.T) {
	var bl BanList
	var state BanOverlapState

	for i := 0; i < MaxBans; i++ {
		res := bl.Add(&state, "op", CanonicalMask(nickForIndex(i)), true, true, true, 1000)
		require.Equal(t, BanAdded, res)
	}

	res := bl.Add(&state, "op", CanonicalMask("oneMore"), true, true, true, 1000)
	assert.Equal(t, BanRejected, res)
	assert.Equal(t, MaxBans, bl.Len())
}

func TestBanListServerRelayBypassesCap(t *testing.T) {
	var bl BanList
	var state BanOverlapState

	for i := 0; i < MaxBans; i++ {
		bl.Add(&state, "op", CanonicalMask(nickForIndex(i)), true, true, true, 1000)
	}

	res := bl.Add(&state, "uplink.example.net", CanonicalMask("oneMore"), false, true, true, 1000)
	assert.Equal(t, BanAdded, res)
	assert.Equal(t, MaxBans+1, bl.Len())
}

func nickForIndex(i int) string {
	return string(rune('a'+i%26)) + string(rune('0'+i/26))
}
