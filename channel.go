/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package ircu

import "bytes"

// Channel represents a single IRC channel's full state (spec.md §3):
// its canonicalized name, creation timestamp, topic, mode state, and
// member/ban lists. This replaces the original four-UserMap
// (Nicks/Ops/HalfOps/Voiced) design: op and voice are now per-member
// status bits on Membership (membership.go) rather than parallel
// membership sets a user could fall out of sync across.
type Channel struct {
	name   string // display-case name as first created/seen
	folded string // FoldChannelName(name), the store key

	creation ChanTS

	topic      string
	topicSetBy string
	topicSet   int64

	modes   ChannelModes
	members *MemberSet
	bans    BanList

	// invited is a presence-only set of who currently holds an invite
	// to this channel, keyed by FoldNick, valued by the setter's nick.
	// The per-user cap across channels (spec.md Global invariant 7) is
	// enforced by the cross-channel InviteIndex a ChannelStore hosts
	// (channelstore.go); this map only answers "does nick hold an
	// invite here", which is all CanJoin and the bare-MODE +I query
	// need from the channel's own side.
	invited map[string]string

	listed bool // true while a LIST cursor has this channel saved as its position

	refs int // live member count, see sub1_from_channel
}

// NewChannel creates an empty channel named name, created at ts.
func NewChannel(name string, ts ChanTS) *Channel {
	return &Channel{
		name:     name,
		folded:   FoldChannelName(name),
		creation: ts,
		members:  NewMemberSet(),
		invited:  make(map[string]string),
	}
}

func (c *Channel) Name() string         { return c.name }
func (c *Channel) FoldedName() string   { return c.folded }
func (c *Channel) Creation() ChanTS     { return c.creation }
func (c *Channel) Topic() string        { return c.topic }
func (c *Channel) TopicSetBy() string   { return c.topicSetBy }
func (c *Channel) TopicSetAt() int64    { return c.topicSet }
func (c *Channel) Modes() *ChannelModes { return &c.modes }
func (c *Channel) Members() *MemberSet  { return c.members }
func (c *Channel) Bans() *BanList       { return &c.bans }
func (c *Channel) Listed() bool         { return c.listed }
func (c *Channel) Refs() int            { return c.refs }

// SetListed toggles the LIST cursor's position marker.
func (c *Channel) SetListed(v bool) { c.listed = v }

// SetTopic records a new topic; topic changes don't interact with ban
// validity or membership.
func (c *Channel) SetTopic(topic, setBy string, at int64) {
	c.topic = topic
	c.topicSetBy = setBy
	c.topicSet = at
}

// AdoptTimestamp merges in a peer-asserted creation timestamp, per
// ChanTS.Older (spec.md §8, "creation_timestamp is non-increasing").
// Returns true if the channel's timestamp changed (callers use this to
// decide whether a HACK/bounce needs to clear local-only state, C9).
func (c *Channel) AdoptTimestamp(peer ChanTS) bool {
	older := c.creation.Older(peer)
	if older == c.creation {
		return false
	}
	c.creation = older
	return true
}

// IsInvited reports whether nick currently holds an invite to this
// channel. CanJoin uses this to waive +i/+k/+l for exactly one join.
func (c *Channel) IsInvited(nick string) bool {
	_, ok := c.invited[FoldNick(nick)]
	return ok
}

// markInvited records that nick holds an invite to this channel, set
// by setter. Only called by ChannelStore's invite coordinator
// (channelstore.go), which also updates the cross-channel index.
func (c *Channel) markInvited(nick, setter string) {
	c.invited[FoldNick(nick)] = setter
}

// clearInvited removes nick's invite to this channel, if any.
func (c *Channel) clearInvited(nick string) {
	delete(c.invited, FoldNick(nick))
}

// InvitedNicks returns the case-folded nicks currently holding an
// invite to this channel, for the bare MODE +I query.
func (c *Channel) InvitedNicks() []string {
	out := make([]string, 0, len(c.invited))
	for folded := range c.invited {
		out = append(out, folded)
	}
	return out
}

// Broadcast writes buf to every non-zombie member except excludeNick
// (pass "" to exclude no one). Zombies are skipped because they have
// no live connection to write to (spec.md §4.11).
func (c *Channel) Broadcast(buf *bytes.Buffer, excludeNick string) {
	exclude := FoldNick(excludeNick)
	for key, m := range c.members.members {
		if m.IsZombie() || m.Sink == nil {
			continue
		}
		if exclude != "" && key == exclude {
			continue
		}
		m.Sink.Write(buf)
	}
}

// GetNicks returns the channel's current non-zombie nicknames, each
// prefixed with its highest status symbol ('@' op, '+' voice),
// matching the NAMES rendering the teacher's replies.go expects.
func (c *Channel) GetNicks() []string {
	nicks := make([]string, 0, c.members.Len())
	for _, m := range c.members.members {
		if m.IsZombie() {
			continue
		}
		switch {
		case m.IsChanOp():
			nicks = append(nicks, "@"+m.User)
		case m.IsVoice():
			nicks = append(nicks, "+"+m.User)
		default:
			nicks = append(nicks, m.User)
		}
	}
	return nicks
}

// String renders the channel name, satisfying fmt.Stringer for log
// fields (matching the teacher's preference for %s-able domain types
// seen throughout message.go/user.go).
func (c *Channel) String() string {
	return c.name
}
