package ircu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCursorPaginates(t *testing.T) {
	store := NewChannelStore()
	for _, name := range []string{"#a", "#b", "#c"} {
		AddUserToChannel(store, name, "alice", nil, AtTS(1000), false)
	}

	cur := NewListCursor(store, ListFilter{})

	first, done := cur.Next(2)
	assert.Len(t, first, 2)
	assert.False(t, done)

	second, done := cur.Next(2)
	assert.Len(t, second, 1)
	assert.True(t, done)
}

func TestListCursorFiltersByUserCount(t *testing.T) {
	store := NewChannelStore()
	AddUserToChannel(store, "#small", "alice", nil, AtTS(1000), false)
	AddUserToChannel(store, "#big", "bob", nil, AtTS(1000), false)
	AddUserToChannel(store, "#big", "carol", nil, AtTS(1000), false)

	cur := NewListCursor(store, ListFilter{MinUsers: 2})
	matched, done := cur.Next(10)

	require.Len(t, matched, 1)
	assert.Equal(t, "#big", matched[0].Name())
	assert.True(t, done)
}

func TestListCursorFiltersByCreationWindow(t *testing.T) {
	store := NewChannelStore()
	AddUserToChannel(store, "#old", "alice", nil, AtTS(500), false)
	AddUserToChannel(store, "#new", "bob", nil, AtTS(5000), false)

	cur := NewListCursor(store, ListFilter{MinCreated: 1000})
	matched, _ := cur.Next(10)

	require.Len(t, matched, 1)
	assert.Equal(t, "#new", matched[0].Name())
}

// A channel destroyed mid-scan leaves the index immediately; the
// cursor's next page skips it instead of the store deferring the
// delete.
func TestListCursorSkipsChannelDestroyedMidScan(t *testing.T) {
	store := NewChannelStore()
	AddUserToChannel(store, "#alive", "alice", nil, AtTS(1000), false)
	AddUserToChannel(store, "#doomed", "bob", nil, AtTS(1000), false)

	cur := NewListCursor(store, ListFilter{})

	doomed := store.Get("#doomed")
	require.NotNil(t, doomed)
	RemoveUserFromChannel(store, doomed, "bob")
	assert.Nil(t, store.Get("#doomed"), "last part removes the channel by the end of the event")

	var names []string
	for {
		page, done := cur.Next(1)
		for _, ch := range page {
			names = append(names, ch.Name())
		}
		if done {
			break
		}
	}
	assert.Equal(t, []string{"#alive"}, names)

	cur.Close()
}

func TestListCursorCloseIsIdempotent(t *testing.T) {
	store := NewChannelStore()
	AddUserToChannel(store, "#test", "alice", nil, AtTS(1000), false)

	cur := NewListCursor(store, ListFilter{})
	cur.Next(1)
	cur.Close()
	assert.NotPanics(t, func() { cur.Close() })
}
