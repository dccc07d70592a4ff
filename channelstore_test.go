package ircu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldChannelNameCaseInsensitive(t *testing.T) {
	assert.Equal(t, FoldChannelName("#Test"), FoldChannelName("#TEST"))
	assert.Equal(t, "#test", FoldChannelName("#Test"))
}

func TestCleanChannelNameStripsForbiddenChars(t *testing.T) {
	assert.Equal(t, "#testchannel", CleanChannelName("#test channel"))
	assert.Equal(t, "#ab", CleanChannelName("#a,b"))
	assert.Equal(t, "#ab", CleanChannelName("#a:b"))
}

func TestCleanChannelNameTruncates(t *testing.T) {
	cleaned := CleanChannelName("#" + repeatByte('a', MaxChanLength+10))
	assert.LessOrEqual(t, len(cleaned), MaxChanLength)
}

func repeatByte(b byte, n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b
	}
	return string(buf)
}

func TestChannelStoreGetOrCreate(t *testing.T) {
	store := NewChannelStore()

	ch, created := store.GetOrCreate("#test", AtTS(1000))
	assert.True(t, created)
	require.NotNil(t, ch)

	again, created2 := store.GetOrCreate("#TEST", AtTS(2000))
	assert.False(t, created2)
	assert.Same(t, ch, again, "folded lookup must find the same channel regardless of case")
}

func TestChannelStoreGetMissing(t *testing.T) {
	store := NewChannelStore()
	assert.Nil(t, store.Get("#nonexistent"))
}

// A channel is torn down from the store the instant its reference
// count returns to zero.
func TestChannelStoreUnrefDestroysAtZero(t *testing.T) {
	store := NewChannelStore()
	ch, _ := store.GetOrCreate("#test", AtTS(1000))
	store.Ref(ch)
	store.Ref(ch)

	store.Unref(ch)
	assert.NotNil(t, store.Get("#test"), "channel survives while refs remain")

	store.Unref(ch)
	assert.Nil(t, store.Get("#test"), "channel is destroyed once refs reach zero")
}

// The listed flag never defers teardown: a channel whose refcount hits
// zero leaves the index by the end of the current event even while a
// LIST cursor has it marked (the cursor skips it on its next page).
func TestChannelStoreUnrefIgnoresListed(t *testing.T) {
	store := NewChannelStore()
	ch, _ := store.GetOrCreate("#test", AtTS(1000))
	store.Ref(ch)
	ch.SetListed(true)

	store.Unref(ch)
	assert.Nil(t, store.Get("#test"), "a listed channel is still destroyed at zero refs")
}

func TestChannelStoreUnrefPanicsOnOveruse(t *testing.T) {
	store := NewChannelStore()
	ch, _ := store.GetOrCreate("#test", AtTS(1000))
	store.Ref(ch)
	store.Unref(ch)

	assert.Panics(t, func() {
		store.Unref(ch)
	})
}

func TestChannelStoreSnapshotAndLen(t *testing.T) {
	store := NewChannelStore()
	store.GetOrCreate("#a", AtTS(1000))
	store.GetOrCreate("#b", AtTS(1000))

	assert.Equal(t, 2, store.Len())
	assert.Len(t, store.Snapshot(), 2)
}
