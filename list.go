/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package ircu

// ListFilter narrows a LIST scan (spec.md §4.12): zero-value fields
// mean "no bound".
type ListFilter struct {
	MinUsers int
	MaxUsers int
	MinCreated int64
	MaxCreated int64
	MinTopicSet int64
	MaxTopicSet int64
}

func (f ListFilter) matches(ch *Channel) bool {
	n := ch.Members().NonZombieLen()
	if f.MinUsers > 0 && n < f.MinUsers {
		return false
	}
	if f.MaxUsers > 0 && n > f.MaxUsers {
		return false
	}
	if f.MinCreated > 0 && ch.Creation().Seconds() < f.MinCreated {
		return false
	}
	if f.MaxCreated > 0 && ch.Creation().Seconds() > f.MaxCreated {
		return false
	}
	if f.MinTopicSet > 0 && ch.TopicSetAt() < f.MinTopicSet {
		return false
	}
	if f.MaxTopicSet > 0 && ch.TopicSetAt() > f.MaxTopicSet {
		return false
	}
	return true
}

// ListCursor is a resumable scan over a channel-store snapshot (spec.md
// §4.12). Each invocation of Next emits up to nr matching channels,
// saves its position, and marks the last channel returned LISTED. The
// snapshot's own pointers keep each Channel object valid between calls
// to Next; a channel destroyed mid-scan is torn out of the store the
// instant its last member leaves (channelstore.go Unref), and the
// cursor simply skips it on the next page rather than the store
// deferring the delete.
type ListCursor struct {
	store  *ChannelStore
	filter ListFilter

	snapshot []*Channel
	pos      int
	current  *Channel // the channel currently marked LISTED, if any
}

// NewListCursor starts a new cursor over every channel live in store
// at the moment of the call, matching filter.
func NewListCursor(store *ChannelStore, filter ListFilter) *ListCursor {
	return &ListCursor{store: store, filter: filter, snapshot: store.Snapshot()}
}

// Next returns up to nr channels matching the filter, advancing the
// cursor. channels is nil when nothing matched in this call; done
// reports whether the cursor has reached the end of its snapshot.
func (lc *ListCursor) Next(nr int) (channels []*Channel, done bool) {
	lc.clearCurrent()

	for lc.pos < len(lc.snapshot) && len(channels) < nr {
		ch := lc.snapshot[lc.pos]
		lc.pos++
		if lc.store.Get(ch.FoldedName()) != ch {
			// Destroyed (or replaced) since the snapshot was taken.
			continue
		}
		if !lc.filter.matches(ch) {
			continue
		}
		channels = append(channels, ch)
	}

	if len(channels) > 0 {
		last := channels[len(channels)-1]
		last.SetListed(true)
		lc.current = last
	}

	return channels, lc.pos >= len(lc.snapshot)
}

func (lc *ListCursor) clearCurrent() {
	if lc.current == nil {
		return
	}
	lc.current.SetListed(false)
	lc.current = nil
}

// Close clears any LISTED marker the cursor is still holding, e.g.
// when a client disconnects mid-LIST.
func (lc *ListCursor) Close() {
	lc.clearCurrent()
}
