package ircu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeBufLinesBasic(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	mb := NewModeBuf(ch, "op")
	mb.AddSimple('m', true)
	mb.AddSimple('t', true)
	mb.AddParam('o', true, "alice")

	lines := mb.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "+mto alice", lines[0])
}

func TestModeBufLinesSignSwitch(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	mb := NewModeBuf(ch, "op")
	mb.AddSimple('m', true)
	mb.AddSimple('i', false)

	lines := mb.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "+m-i", lines[0])
}

func TestModeBufEmpty(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	mb := NewModeBuf(ch, "op")
	assert.Nil(t, mb.Lines())
	assert.Equal(t, 0, mb.Len())
}

// No flushed MODE line may exceed MaxModeWireLength, no matter how
// many changes are queued.
func TestModeBufLinesRespectMaxWireLength(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	mb := NewModeBuf(ch, "op")

	for i := 0; i < 100; i++ {
		mb.AddParam('b', true, "somewhat-long-nick!someuser@some.host.example.org")
	}

	lines := mb.Lines()
	require.Greater(t, len(lines), 1, "100 ban params must not fit on one line")
	for _, l := range lines {
		assert.LessOrEqual(t, len(l), MaxModeWireLength)
	}
}

// A bounce line carries the zero timestamp sentinel.
func TestModeBufBounceStampsZero(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	mb := NewModeBuf(ch, "op")
	mb.SetDest(DestBounce)
	mb.AddParam('o', true, "alice")

	lines := mb.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "+o alice 0", lines[0])
}

// DestDeOp appends a trailing -o stripping the source's own op.
func TestModeBufDeOpStripsSource(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	mb := NewModeBuf(ch, "griefer")
	mb.SetDest(DestBounce | DestDeOp)
	mb.AddParam('o', true, "alice")

	lines := mb.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "+o-o alice griefer 0", lines[0])
}

// A peer-addressed destination renders o/v arguments through the
// installed numeric-nick resolver.
func TestModeBufPeerDestinationUsesResolver(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	mb := NewModeBuf(ch, "op")
	mb.SetDest(DestServer)
	mb.SetResolver(func(nick string) string { return "AAB" })
	mb.AddParam('o', true, "alice")
	mb.AddParam('b', true, "*!*@host.example")

	lines := mb.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "+ob AAB *!*@host.example", lines[0], "nicks resolve, masks do not")
}

// WithDest shares the queued changes but renders for its own target.
func TestModeBufWithDestLogRendersNotice(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	mb := NewModeBuf(ch, "services.example.net")
	mb.AddParam('o', true, "alice")

	logLines := mb.WithDest(DestLog).Lines()
	require.Len(t, logLines, 1)
	assert.Equal(t, "services.example.net used OPMODE on #test: +o alice", logLines[0])

	chanLines := mb.Lines()
	require.Len(t, chanLines, 1)
	assert.Equal(t, "+o alice", chanLines[0])
}

// A flushed line carries at most MaxModeParams parameterised changes,
// regardless of how short the line is in bytes; simple modes don't
// count against the cap.
func TestModeBufLinesCapParameterisedChanges(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	mb := NewModeBuf(ch, "op")

	mb.AddSimple('m', true)
	for i := 0; i < MaxModeParams+2; i++ {
		mb.AddParam('o', true, "n")
	}

	lines := mb.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "+moooooo n n n n n n", lines[0])
	assert.Equal(t, "+oo n n", lines[1])
}

// Every queued change appears exactly once across the flushed lines.
func TestModeBufLinesPreservesAllChanges(t *testing.T) {
	ch := NewChannel("#test", AtTS(1000))
	mb := NewModeBuf(ch, "op")

	for i := 0; i < 50; i++ {
		mb.AddParam('o', true, "nick")
	}

	lines := mb.Lines()
	total := 0
	for _, l := range lines {
		for _, c := range l {
			if c == 'o' {
				total++
			}
		}
	}
	assert.Equal(t, 50, total)
}
