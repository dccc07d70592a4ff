package ircu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChannelWithMembers(creation ChanTS, nicks ...string) *Channel {
	ch := NewChannel("#test", creation)
	for _, n := range nicks {
		ch.Members().Join(n, ch.FoldedName(), nil)
	}
	return ch
}

func resolveVia(ch *Channel) func(string) *Membership {
	return func(nick string) *Membership { return ch.Members().Get(nick) }
}

func TestParseChannelModeSimpleLocalOp(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(1000), "op")
	req := ModeParseRequest{Channel: ch, Source: "op", IsOper: true}
	var state BanOverlapState

	res := ParseChannelMode(req, []string{"+mt"}, resolveVia(ch), &state)

	require.Empty(t, res.Errors)
	assert.True(t, ch.Modes().Has(ModeModerated))
	assert.True(t, ch.Modes().Has(ModeTopicLimit))
	assert.Equal(t, DecisionAccept, res.Decision)
}

func TestParseChannelModeNonOpRejected(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(1000), "bob")
	req := ModeParseRequest{Channel: ch, Source: "bob", IsOper: false}
	var state BanOverlapState

	res := ParseChannelMode(req, []string{"+m"}, resolveVia(ch), &state)

	assert.Contains(t, res.Errors, Error(ErrChanOpsNeeded))
	assert.False(t, ch.Modes().Has(ModeModerated))
}

// Boundary scenario 6: setting +p and +s in the same transition keeps
// only the most recently applied of the pair.
func TestParseChannelModePrivateSecretMutualExclusion(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(1000), "op")
	req := ModeParseRequest{Channel: ch, Source: "op", IsOper: true}
	var state BanOverlapState

	ParseChannelMode(req, []string{"+ps"}, resolveVia(ch), &state)

	assert.True(t, ch.Modes().Has(ModeSecret))
	assert.False(t, ch.Modes().Has(ModePrivate))
}

func TestParseChannelModeOpRequiresResolvableMember(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(1000), "op")
	req := ModeParseRequest{Channel: ch, Source: "op", IsOper: true}
	var state BanOverlapState

	res := ParseChannelMode(req, []string{"+o", "ghost"}, resolveVia(ch), &state)

	assert.Contains(t, res.Errors, Error(ErrNotOnChannel))
	assert.Equal(t, 0, res.Applied.Len())
}

func TestParseChannelModeBanAddAndInvalidatesCache(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(1000), "op", "bob")
	bob := ch.Members().Get("bob")
	bob.SetBanned(false)
	req := ModeParseRequest{Channel: ch, Source: "op", IsOper: true}
	var state BanOverlapState

	res := ParseChannelMode(req, []string{"+b", "*!*@evil.example.com"}, resolveVia(ch), &state)

	require.Empty(t, res.Errors)
	assert.Equal(t, 1, ch.Bans().Len())
	assert.False(t, bob.BanValid())
}

// Boundary scenario 1: a server-origin MODE carrying a newer timestamp
// that contains a deop earns badop HACK(2) and is bounced, without
// adopting the newer timestamp and without touching local state.
func TestParseChannelModeBounceOnNewerTimestampWithDeop(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(1000), "op")
	ch.Members().Get("op").SetChanOp(true)
	req := ModeParseRequest{Channel: ch, Source: "peer.example.net", FromServer: true, Now: 2000}
	var state BanOverlapState

	res := ParseChannelMode(req, []string{"-o", "op", "2000"}, resolveVia(ch), &state)

	assert.Equal(t, BadOpHack2, res.BadOp)
	assert.Equal(t, DecisionBounce, res.Decision)
	require.NotNil(t, res.Bounce)
	assert.Equal(t, ChanTS{at: 1000}, ch.Creation(), "local (older) timestamp must not be overwritten")
	assert.True(t, ch.Members().Get("op").IsChanOp(), "bounced deop must not strip the local op")
}

// The full scenario-1 shape: "-o A +o C" from a too-new peer, where C
// never resolved locally. The bounce reverses both elements.
func TestParseChannelModeBounceReversesEveryRequestedElement(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(1000), "A", "B")
	ch.Members().Get("A").SetChanOp(true)
	req := ModeParseRequest{Channel: ch, Source: "peer.example.net", FromServer: true, Now: 2000}
	var state BanOverlapState

	res := ParseChannelMode(req, []string{"-o+o", "A", "C", "2000"}, resolveVia(ch), &state)

	require.Equal(t, DecisionBounce, res.Decision)
	require.NotNil(t, res.Bounce)
	lines := res.Bounce.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "+o-o A C 0", lines[0])
	assert.True(t, ch.Members().Get("A").IsChanOp())
	assert.Nil(t, ch.Members().Get("C"), "the unresolved target must not be materialized")
}

// A bounced +b leaves the ban list untouched and re-asserts any ban
// the rejected mask would have subsumed, via the overlap iterator.
func TestParseChannelModeBounceReassertsOverlappedBans(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(1000), "op")
	var seed BanOverlapState
	require.Equal(t, BanAdded, ch.Bans().Add(&seed, "op", "*!*@foo.example", true, true, true, 900))

	req := ModeParseRequest{Channel: ch, Source: "peer.example.net", FromServer: true, Now: 2000}
	var state BanOverlapState

	res := ParseChannelMode(req, []string{"-o+b", "op", "*!*@*.example", "2000"}, resolveVia(ch), &state)

	require.Equal(t, DecisionBounce, res.Decision)
	require.Equal(t, 1, ch.Bans().Len(), "bounced add must not mutate the ban list")
	assert.Equal(t, "*!*@foo.example", ch.Bans().All()[0].Mask)

	rendered := res.Bounce.Lines()
	require.Len(t, rendered, 1)
	assert.Equal(t, "+o-b+b op *!*@*.example *!*@foo.example 0", rendered[0])
}

// A deopped source's changes bounce even when the timestamp is clean.
func TestParseChannelModeSourceDeoppedBounces(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(1000), "griefer", "victim")
	ch.Members().Get("victim").SetChanOp(true)
	ch.Members().Get("griefer").SetDeopped()
	req := ModeParseRequest{Channel: ch, Source: "griefer", FromServer: true, Now: 1500}
	var state BanOverlapState

	res := ParseChannelMode(req, []string{"-o", "victim", "1000"}, resolveVia(ch), &state)

	assert.Equal(t, DecisionBounce, res.Decision)
	assert.True(t, ch.Members().Get("victim").IsChanOp())
}

// Deopping a services pseudoclient is refused without Force, and
// escalated to a HACK(4) with it.
func TestParseChannelModeServiceDeopRefusedThenForced(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(1000), "op", "ChanServ")
	ch.Members().Get("ChanServ").SetChanOp(true)
	isService := func(nick string) bool { return nick == "ChanServ" }

	req := ModeParseRequest{Channel: ch, Source: "op", IsOper: true, IsService: isService}
	var state BanOverlapState
	res := ParseChannelMode(req, []string{"-o", "ChanServ"}, resolveVia(ch), &state)

	assert.Contains(t, res.Errors, Error(ErrChannelService))
	assert.True(t, ch.Members().Get("ChanServ").IsChanOp())

	req.Force = true
	state.Reset()
	res = ParseChannelMode(req, []string{"-o", "ChanServ"}, resolveVia(ch), &state)

	require.Empty(t, res.Errors)
	assert.False(t, ch.Members().Get("ChanServ").IsChanOp())
	assert.True(t, res.OperOverride)
	assert.Equal(t, BadOpHack4, res.BadOp)
}

// Deopping a local IRC operator on a local (&) channel is refused
// unless the oper is deopping themselves.
func TestParseChannelModeLocalOperDeopRefusedOnLocalChannel(t *testing.T) {
	ch := NewChannel("&staff", AtTS(1000))
	ch.Members().Join("op", ch.FoldedName(), nil)
	ch.Members().Join("ircop", ch.FoldedName(), nil)
	ch.Members().Get("ircop").SetChanOp(true)
	isLocalOper := func(nick string) bool { return nick == "ircop" }

	req := ModeParseRequest{Channel: ch, Source: "op", IsOper: true, IsLocalOper: isLocalOper}
	var state BanOverlapState
	res := ParseChannelMode(req, []string{"-o", "ircop"}, resolveVia(ch), &state)

	assert.Contains(t, res.Errors, Error(ErrOperOnLChan))
	assert.True(t, ch.Members().Get("ircop").IsChanOp())

	// Self-deop is always allowed.
	req = ModeParseRequest{Channel: ch, Source: "ircop", IsOper: true, IsLocalOper: isLocalOper}
	state.Reset()
	res = ParseChannelMode(req, []string{"-o", "ircop"}, resolveVia(ch), &state)

	require.Empty(t, res.Errors)
	assert.False(t, ch.Members().Get("ircop").IsChanOp())
}

// Only one key change and one limit change are honored per parse.
func TestParseChannelModeSingleKeyAndLimitPerParse(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(1000), "op")
	req := ModeParseRequest{Channel: ch, Source: "op", IsOper: true}
	var state BanOverlapState

	ParseChannelMode(req, []string{"+k+k+l+l", "first", "second", "10", "20"}, resolveVia(ch), &state)

	assert.Equal(t, "first", ch.Modes().Key())
	assert.Equal(t, 10, ch.Modes().Limit())
}

// Boundary scenario 2: a broader local +b removes the narrower ban it
// subsumes, and the parse emits both sides (-b old, +b new).
func TestParseChannelModeBanSubsumptionEmitsBothSides(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(1000), "op")
	var seed BanOverlapState
	require.Equal(t, BanAdded, ch.Bans().Add(&seed, "op", "*!*@foo.example", true, true, true, 900))

	req := ModeParseRequest{Channel: ch, Source: "op", IsOper: true, Now: 1100}
	var state BanOverlapState

	res := ParseChannelMode(req, []string{"+b", "*!*@*.example"}, resolveVia(ch), &state)

	require.Empty(t, res.Errors)
	require.Equal(t, 1, ch.Bans().Len())
	assert.Equal(t, "*!*@*.example", ch.Bans().All()[0].Mask)

	lines := res.Applied.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "+b-b *!*@*.example *!*@foo.example", lines[0])
}

// An op for a user homed on a different peer link than the MODE's
// origin is dropped outright (the net.break ride mitigation).
func TestParseChannelModeDropsCrossPartitionOp(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(1000), "rider")
	ch.Members().Get("rider").PeerID = "hub.east.example.net"

	req := ModeParseRequest{
		Channel:    ch,
		Source:     "hub.west.example.net",
		FromServer: true,
		OriginPeer: "hub.west.example.net",
		Now:        1000,
	}
	var state BanOverlapState

	res := ParseChannelMode(req, []string{"+o", "rider", "1000"}, resolveVia(ch), &state)

	assert.Equal(t, 0, res.Applied.Len())
	assert.False(t, ch.Members().Get("rider").IsChanOp())
}

// +o on an existing op is a no-op: nothing applied, nothing emitted.
func TestParseChannelModeOpIsIdempotent(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(1000), "op", "alice")
	ch.Members().Get("alice").SetChanOp(true)
	req := ModeParseRequest{Channel: ch, Source: "op", IsOper: true}
	var state BanOverlapState

	res := ParseChannelMode(req, []string{"+o", "alice"}, resolveVia(ch), &state)

	require.Empty(t, res.Errors)
	assert.Equal(t, 0, res.Applied.Len())
	assert.True(t, ch.Members().Get("alice").IsChanOp())
}

// A forced parse (OPMODE) is never bounced; the arbitration grade is
// escalated to HACK(4) instead.
func TestParseChannelModeForceNeverBounces(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(1000), "op")
	ch.Members().Get("op").SetChanOp(true)
	req := ModeParseRequest{Channel: ch, Source: "services.example.net", FromServer: true, Force: true, Now: 2000}
	var state BanOverlapState

	res := ParseChannelMode(req, []string{"-o", "op", "2000"}, resolveVia(ch), &state)

	assert.Equal(t, BadOpHack4, res.BadOp)
	assert.Equal(t, DecisionHackNotice, res.Decision)
	assert.False(t, ch.Members().Get("op").IsChanOp(), "a forced deop applies")
}

// A server-origin MODE carrying an equal-or-older timestamp is
// accepted outright.
func TestParseChannelModeAcceptsOlderTimestamp(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(2000), "op")
	req := ModeParseRequest{Channel: ch, Source: "peer.example.net", FromServer: true, Now: 1000}
	var state BanOverlapState

	res := ParseChannelMode(req, []string{"+m", "1000"}, resolveVia(ch), &state)

	assert.Equal(t, BadOpNone, res.BadOp)
	assert.Equal(t, DecisionAccept, res.Decision)
	assert.True(t, ch.Modes().Has(ModeModerated))
}

// A pending (unknown) local timestamp always adopts whatever the peer
// asserts.
func TestParseChannelModeAdoptsIntoPendingChannel(t *testing.T) {
	ch := newTestChannelWithMembers(PendingTS, "op")
	req := ModeParseRequest{Channel: ch, Source: "peer.example.net", FromServer: true, Now: 5000}
	var state BanOverlapState

	ParseChannelMode(req, []string{"+m", "5000"}, resolveVia(ch), &state)

	assert.False(t, ch.Creation().Pending())
	assert.Equal(t, int64(5000), ch.Creation().Seconds())
}

// A trusted services peer's badop grade is escalated to a forced
// override rather than bounced.
func TestParseChannelModeUWorldPromotion(t *testing.T) {
	ch := newTestChannelWithMembers(AtTS(1000), "op")
	req := ModeParseRequest{Channel: ch, Source: "services.example.net", FromServer: true, UWorld: true, Now: 2000}
	var state BanOverlapState

	res := ParseChannelMode(req, []string{"-o", "op", "2000"}, resolveVia(ch), &state)

	assert.Equal(t, BadOpHack4, res.BadOp)
}

func TestArbitrateTimestampZeroIsOpWipe(t *testing.T) {
	badop, adopt := ArbitrateTimestamp(AtTS(1000), 0, false, false)
	assert.Equal(t, BadOpHack2, badop)
	assert.False(t, adopt)
}

func TestBounceOfInvertsEveryChange(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	mb := NewModeBuf(ch, "op")
	mb.AddSimple('m', true)
	mb.AddParam('o', false, "alice")

	bounce := BounceOf(mb)
	require.Len(t, bounce.changes, 2)
	assert.True(t, bounce.changes[0].add == false)
	assert.True(t, bounce.changes[1].add == true)
}
