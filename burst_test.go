package ircu

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBurstHeaderAndModes(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	ch.Modes().setSimple('m', true)
	ch.Modes().setLimit(true, 50)

	lines := EncodeBurst(ch, map[string]string{})
	require.Len(t, lines, 1)
	assert.Equal(t, "#test 1000 +ml 50", lines[0])
}

// The four equivalence classes (op+voice, voice, op, neither) are each
// emitted together so the mode suffix changes at most once per class
// boundary within a single line.
func TestEncodeBurstGroupsByEquivalenceClass(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	members := map[string]string{}

	join := func(nick, numnick string, op, voice bool) {
		m := ch.Members().Join(nick, ch.FoldedName(), nil)
		m.SetChanOp(op)
		m.SetVoice(voice)
		members[FoldNick(nick)] = numnick
	}

	join("alice", "AAA", true, true)
	join("bob", "BBB", false, true)
	join("carol", "CCC", true, false)
	join("dave", "DDD", false, false)

	lines := EncodeBurst(ch, members)
	require.Len(t, lines, 1)
	body := lines[0]

	ovIdx := strings.Index(body, "AAA:ov")
	vIdx := strings.Index(body, "BBB:v")
	oIdx := strings.Index(body, "CCC:o")
	neitherIdx := strings.Index(body, "DDD")

	require.NotEqual(t, -1, ovIdx)
	require.NotEqual(t, -1, vIdx)
	require.NotEqual(t, -1, oIdx)
	require.NotEqual(t, -1, neitherIdx)
	assert.True(t, ovIdx < vIdx && vIdx < oIdx && oIdx < neitherIdx, "classes must appear op+voice, voice, op, neither")
}

func TestEncodeBurstSkipsZombiesAndUnmapped(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	members := map[string]string{}

	zombie := ch.Members().Join("ghost", ch.FoldedName(), nil)
	zombie.Zombify()
	members[FoldNick("ghost")] = "GGG"

	ch.Members().Join("nonumnick", ch.FoldedName(), nil)

	lines := EncodeBurst(ch, members)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "GGG")
}

func TestEncodeBurstIncludesBans(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	var state BanOverlapState
	ch.Bans().Add(&state, "op", "*!*@evil.example.com", true, true, true, 1000)

	lines := EncodeBurst(ch, map[string]string{})
	joined := strings.Join(lines, " ")
	assert.Contains(t, joined, "*!*@evil.example.com")
}

func TestEncodeBurstSplitsLongLines(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	members := map[string]string{}
	for i := 0; i < 100; i++ {
		nick := nickForIndex(i)
		ch.Members().Join(nick, ch.FoldedName(), nil)
		members[FoldNick(nick)] = nick + "NUM"
	}

	lines := EncodeBurst(ch, members)
	require.Greater(t, len(lines), 1)
	for _, l := range lines {
		assert.LessOrEqual(t, len(l), MaxBurstWireLength)
	}
}

// Reviving a wipeout ban via ApplyBurstBans leaves it off SweepWipeout's
// removal list (the burst ban-merge protocol of Boundary scenario 3,
// exercised here through the burst path rather than a bare BanList.Add).
func TestApplyBurstBansRevivesWipeout(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	var state BanOverlapState
	ch.Bans().Add(&state, "op", "*!*@old.example.com", true, true, true, 1000)
	ch.Bans().MarkAllWipeout()

	ApplyBurstBans(ch, "peer.example.net", []string{"*!*@old.example.com", "*!*@new.example.com"}, 2000)

	removed := ch.Bans().SweepWipeout()
	assert.Empty(t, removed)
	assert.Equal(t, 2, ch.Bans().Len())
}
