package ircu

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	writes int
}

func (f *fakeSink) Write(buf *bytes.Buffer) { f.writes++ }

func TestMemberSetJoinIsIdempotent(t *testing.T) {
	ms := NewMemberSet()
	sink := &fakeSink{}

	m1 := ms.Join("Nick", "#chan", sink)
	m2 := ms.Join("nick", "#chan", sink)

	assert.Same(t, m1, m2, "Join must return the same Membership for a case-folded-equal nick")
	assert.Equal(t, 1, ms.Len())
}

func TestMemberSetGetRoundTrip(t *testing.T) {
	ms := NewMemberSet()
	sink := &fakeSink{}
	ms.Join("Nick", "#chan", sink)

	got := ms.Get("NICK")
	require.NotNil(t, got)
	assert.Equal(t, "Nick", got.User)
}

func TestMemberSetRemove(t *testing.T) {
	ms := NewMemberSet()
	ms.Join("nick", "#chan", &fakeSink{})
	ms.Remove("NICK")
	assert.Nil(t, ms.Get("nick"))
	assert.Equal(t, 0, ms.Len())
}

func TestMemberSetZombieCountAndNonZombieLen(t *testing.T) {
	ms := NewMemberSet()
	a := ms.Join("alice", "#chan", &fakeSink{})
	ms.Join("bob", "#chan", &fakeSink{})

	a.SetChanOp(true)
	a.Zombify()

	assert.Equal(t, 1, ms.ZombieCount())
	assert.Equal(t, 1, ms.NonZombieLen())
	assert.Equal(t, 2, ms.Len())

	// Zombify drops every other status flag.
	assert.False(t, a.IsChanOp())
	assert.True(t, a.IsZombie())
}

func TestMembershipBanCache(t *testing.T) {
	var m Membership

	assert.False(t, m.BanValid())
	m.SetBanned(true)
	assert.True(t, m.BanValid())
	assert.True(t, m.IsBanned())

	m.InvalidateBan()
	assert.False(t, m.BanValid())
	assert.False(t, m.IsBanned())
}

func TestMembershipSetChanOpClearsDeopped(t *testing.T) {
	var m Membership
	m.status |= MemberDeopped

	m.SetChanOp(true)
	assert.True(t, m.IsChanOp())
	assert.Equal(t, MemberStatus(0), m.status&MemberDeopped)
}

func TestMemberSetInvalidateAllBans(t *testing.T) {
	ms := NewMemberSet()
	a := ms.Join("alice", "#chan", &fakeSink{})
	b := ms.Join("bob", "#chan", &fakeSink{})
	a.SetBanned(true)
	b.SetBanned(false)

	ms.InvalidateAllBans()

	assert.False(t, a.BanValid())
	assert.False(t, b.BanValid())
}
