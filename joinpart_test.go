package ircu

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinBufLinesBasic(t *testing.T) {
	jb := NewJoinBuf("nick!user@host", false)
	jb.Add("#one")
	jb.Add("#two")

	lines := jb.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "#one,#two", lines[0])
}

func TestJoinBufLinesEmpty(t *testing.T) {
	jb := NewJoinBuf("nick!user@host", false)
	assert.Nil(t, jb.Lines())
}

func TestJoinBufLinesResetsAfterFlush(t *testing.T) {
	jb := NewJoinBuf("nick!user@host", false)
	jb.Add("#one")
	jb.Lines()
	assert.Nil(t, jb.Lines(), "a second Lines() call with nothing new added returns nil")
}

func TestJoinBufLinesBatchesAtMaxJoinArgs(t *testing.T) {
	jb := NewJoinBuf("nick!user@host", false)
	for i := 0; i < MaxJoinArgs+5; i++ {
		jb.Add("#chan" + string(rune('a'+i)))
	}

	lines := jb.Lines()
	require.GreaterOrEqual(t, len(lines), 2, "more than MaxJoinArgs entries must batch onto more than one line")
}

// Boundary scenario 5: a key-ring join succeeds when any comma-separated
// entry matches the channel's key.
func TestCanJoinKeyRing(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	ch.Modes().setKey(true, "secret")

	assert.Equal(t, CanJoinBadKey, CanJoin(ch, "nick!user@host", false, "wrong,alsowrong"))
	assert.Equal(t, CanJoinOK, CanJoin(ch, "nick!user@host", false, "wrong,secret"))
}

func TestCanJoinInviteOverridesEverything(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	ch.Modes().setSimple('i', true)
	ch.Modes().setKey(true, "secret")

	assert.Equal(t, CanJoinOK, CanJoin(ch, "nick!user@host", true, ""))
}

// CanJoin's precondition chain checks invite-only, then full, then
// banned, then bad-key, in that order — short-circuiting on the first
// failure even when later conditions would also fail.
func TestCanJoinPrecedenceOrder(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	ch.Modes().setSimple('i', true)
	ch.Modes().setLimit(true, 0)
	ch.Modes().setKey(true, "secret")

	assert.Equal(t, CanJoinInviteOnly, CanJoin(ch, "nick!user@host", false, ""))
}

func TestCanJoinFull(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	ch.Modes().setLimit(true, 1)
	ch.Members().Join("alice", ch.FoldedName(), nil)

	assert.Equal(t, CanJoinFull, CanJoin(ch, "bob!user@host", false, ""))
}

func TestCanJoinBanned(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	var state BanOverlapState
	ch.Bans().Add(&state, "op", "*!*@evil.example.com", true, true, true, 1000)

	assert.Equal(t, CanJoinBanned, CanJoin(ch, "nick!user@evil.example.com", false, ""))
}

func TestAddUserToChannelGrantsFoundingOp(t *testing.T) {
	store := NewChannelStore()
	res := AddUserToChannel(store, "#test", "alice", nil, AtTS(1000), false)

	assert.True(t, res.Created)
	assert.True(t, res.GrantOp)
	assert.True(t, res.Member.IsChanOp())
}

func TestAddUserToChannelDoesNotGrantOpToSubsequentJoiners(t *testing.T) {
	store := NewChannelStore()
	AddUserToChannel(store, "#test", "alice", nil, AtTS(1000), false)
	res := AddUserToChannel(store, "#test", "bob", nil, AtTS(1000), false)

	assert.False(t, res.Created)
	assert.False(t, res.GrantOp)
	assert.False(t, res.Member.IsChanOp())
}

func TestAddUserToChannelModelessSkipsOp(t *testing.T) {
	store := NewChannelStore()
	res := AddUserToChannel(store, "#test", "alice", nil, AtTS(1000), true)

	assert.True(t, res.Created)
	assert.False(t, res.GrantOp)
}

func TestRemoveUserFromChannelDestroysWhenEmpty(t *testing.T) {
	store := NewChannelStore()
	AddUserToChannel(store, "#test", "alice", nil, AtTS(1000), false)

	ch := store.Get("#test")
	RemoveUserFromChannel(store, ch, "alice")

	assert.Nil(t, store.Get("#test"))
}

// A quit parts every joined channel at once: remaining members hear
// the quit line, the quitter's memberships are removed, and a channel
// left empty is destroyed.
func TestPartAllForQuit(t *testing.T) {
	store := NewChannelStore()
	watcher := &fakeSink{}
	AddUserToChannel(store, "#shared", "alice", nil, AtTS(1000), false)
	AddUserToChannel(store, "#shared", "bob", watcher, AtTS(1000), false)
	AddUserToChannel(store, "#solo", "alice", nil, AtTS(1000), false)

	channels := map[string]*Channel{
		"#shared": store.Get("#shared"),
		"#solo":   store.Get("#solo"),
	}

	PartAllForQuit(store, channels, "alice", bytes.NewBufferString(":alice QUIT :gone\r\n"))

	assert.Equal(t, 1, watcher.writes, "the remaining member hears the quit")
	assert.Nil(t, store.Get("#shared").Members().Get("alice"))
	assert.Nil(t, store.Get("#solo"), "a channel emptied by the quit is destroyed")
}

// Boundary scenario 4: a KICK from a different server than the kicked
// user's home link zombifies rather than removing the membership, and
// tears the channel down once every member is a zombie.
func TestApplyKickZombifiesOnCrossServerKick(t *testing.T) {
	store := NewChannelStore()
	AddUserToChannel(store, "#test", "alice", nil, AtTS(1000), false)
	ch := store.Get("#test")
	AddUserToChannel(store, "#test", "bob", nil, AtTS(1000), false) // second member keeps the channel alive through the kick

	zombified, destroyed := ApplyKick(store, ch, "alice", false, "peerA", KickSource{FromServer: true, PeerID: "peerB"})

	assert.True(t, zombified)
	assert.False(t, destroyed)
	assert.True(t, ch.Members().Get("alice").IsZombie())
}

func TestApplyKickDestroysWhenAllZombies(t *testing.T) {
	store := NewChannelStore()
	AddUserToChannel(store, "#test", "alice", nil, AtTS(1000), false)
	ch := store.Get("#test")

	_, destroyed := ApplyKick(store, ch, "alice", false, "peerA", KickSource{FromServer: true, PeerID: "peerB"})

	assert.True(t, destroyed)
}

func TestApplyKickLocalUserRemovesDirectly(t *testing.T) {
	store := NewChannelStore()
	AddUserToChannel(store, "#test", "alice", nil, AtTS(1000), false)
	ch := store.Get("#test")

	zombified, _ := ApplyKick(store, ch, "alice", true, "", KickSource{})

	assert.False(t, zombified)
	assert.Nil(t, ch.Members().Get("alice"))
}

func TestApplyKickSamePeerCleanRemoval(t *testing.T) {
	store := NewChannelStore()
	AddUserToChannel(store, "#test", "alice", nil, AtTS(1000), false)
	ch := store.Get("#test")

	zombified, _ := ApplyKick(store, ch, "alice", false, "peerA", KickSource{FromServer: true, PeerID: "peerA"})

	assert.False(t, zombified)
	assert.Nil(t, ch.Members().Get("alice"))
}
