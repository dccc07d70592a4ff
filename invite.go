/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package ircu

// Invite records that a user was invited onto a channel by a setter,
// overriding +i/+k/+l/ban checks for exactly one join (spec.md §4.6).
type Invite struct {
	Channel string
	Setter  string
}

// InviteList is the set of outstanding invites for a single user,
// oldest first, matching the original source's per-user singly linked
// invite list traversed by del_invite.
type InviteList struct {
	invites []Invite
}

// Add records a new invite, evicting the oldest invite if the user is
// already at MaxChannelsPerUser (spec.md Global invariant 7) and
// returning the evicted channel's name so the caller can drop the
// corresponding presence marker on that channel. Re-inviting to the
// same channel moves the existing entry to the back rather than
// duplicating it, and evicts nothing.
func (il *InviteList) Add(channel, setter string) (evicted string) {
	return il.add(channel, setter, true)
}

// AddUncapped records a new invite without enforcing MaxChannelsPerUser,
// for services pseudoclients (User.IsService) the original network
// exempts from the per-user cap.
func (il *InviteList) AddUncapped(channel, setter string) {
	il.add(channel, setter, false)
}

func (il *InviteList) add(channel, setter string, capped bool) (evicted string) {
	for i, inv := range il.invites {
		if inv.Channel == channel {
			il.invites = append(il.invites[:i], il.invites[i+1:]...)
			break
		}
	}

	if capped && len(il.invites) >= MaxChannelsPerUser {
		evicted = il.invites[0].Channel
		il.invites = il.invites[1:]
	}

	il.invites = append(il.invites, Invite{Channel: channel, Setter: setter})
	return evicted
}

// Remove deletes the invite for channel, if any, returning whether one
// was found. Called on JOIN, PART, KICK and channel mode -i, per
// del_invite's call sites in the original source.
func (il *InviteList) Remove(channel string) bool {
	for i, inv := range il.invites {
		if inv.Channel == channel {
			il.invites = append(il.invites[:i], il.invites[i+1:]...)
			return true
		}
	}
	return false
}

// Has reports whether the user currently holds an invite to channel.
func (il *InviteList) Has(channel string) bool {
	for _, inv := range il.invites {
		if inv.Channel == channel {
			return true
		}
	}
	return false
}

// All returns the current invites, oldest first. Callers must not
// mutate the returned slice.
func (il *InviteList) All() []Invite {
	return il.invites
}

// Len returns the number of outstanding invites.
func (il *InviteList) Len() int {
	return len(il.invites)
}

// InviteIndex is the cross-channel, per-user invite list a
// ChannelStore hosts (channelstore.go) so MaxChannelsPerUser (spec.md
// Global invariant 7) is enforced across every channel that has
// invited a user, rather than a fresh, always-length-one list scoped
// inside each Channel. Each Channel still keeps its own presence-only
// marker (Channel.invited) for "is nick invited here"; this index is
// the side that actually counts and evicts across channels.
type InviteIndex struct {
	byNick map[string]*InviteList // keyed by FoldNick
}

// NewInviteIndex returns an empty index.
func NewInviteIndex() *InviteIndex {
	return &InviteIndex{byNick: make(map[string]*InviteList)}
}

func (idx *InviteIndex) listFor(nick string) *InviteList {
	key := FoldNick(nick)
	il, ok := idx.byNick[key]
	if !ok {
		il = &InviteList{}
		idx.byNick[key] = il
	}
	return il
}

// prune drops nick's entry once their invite list is empty, so the
// index doesn't keep a dangling slot for every user who was ever
// invited and then joined or was un-invited.
func (idx *InviteIndex) prune(nick string) {
	key := FoldNick(nick)
	if il, ok := idx.byNick[key]; ok && il.Len() == 0 {
		delete(idx.byNick, key)
	}
}

// Channels returns the channels (case-folded) nick currently holds an
// invite to, oldest first.
func (idx *InviteIndex) Channels(nick string) []Invite {
	if il, ok := idx.byNick[FoldNick(nick)]; ok {
		return il.All()
	}
	return nil
}
