/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package ircu

import "bytes"

// MessageSink is the write side of a connection, satisfied by *Conn.
// Membership stores one so Channel.Broadcast can reach a member
// without the channel subsystem needing to know anything about
// sockets, heartbeats, or registration state.
type MessageSink interface {
	Write(*bytes.Buffer)
}

// MemberStatus is the per-membership status bitmask (spec.md §3,
// struct Membership), mirroring the original source's CHFL_* flags.
type MemberStatus uint16

const (
	MemberChanOp MemberStatus = 1 << iota
	MemberVoice
	MemberDeopped
	MemberServOpOk
	MemberZombie
	MemberBanValid
	MemberBanned
	MemberBurstJoin
	MemberBurstBanWipeout
)

// Membership is one user's relationship to one channel (spec.md §3).
// The original source links these into two intrusive doubly linked
// lists (per-channel member list, per-user channel list) so it can
// walk either side in O(1) without a map lookup; this module keeps the
// core single-threaded per spec.md §5's redesign, so a plain map keyed
// by the other side gives the same O(1) access find_member_link's
// shorter-list heuristic was approximating, without the intrusive-list
// bookkeeping (see DESIGN.md, "Intrusive list replacement").
type Membership struct {
	User    string // case-preserved nick at join time; updated on nick change
	Channel string // canonical (case-folded) channel name
	Sink    MessageSink

	// PeerID is the peer link this membership's user connection
	// arrived on, or "" if the user is local to this server. ApplyKick
	// compares this against a KICK's own origin link to decide whether
	// a cross-server kick zombifies the member or removes them
	// cleanly (spec.md §4.11).
	PeerID string

	status MemberStatus

	// oplevel tracks ircu-style "owner/admin depth" only insofar as
	// spec.md needs a simple op/voice model; it is left at zero and
	// nothing reads it.
	oplevel int
}

// IsChanOp reports whether the member currently holds channel op.
func (m *Membership) IsChanOp() bool { return m.status&MemberChanOp != 0 }

// IsVoice reports whether the member currently holds voice.
func (m *Membership) IsVoice() bool { return m.status&MemberVoice != 0 }

// IsZombie reports whether the member is a zombie: present in the
// member list for KICK/message-targeting purposes but unable to act
// (spec.md §4.11, make_zombie).
func (m *Membership) IsZombie() bool { return m.status&MemberZombie != 0 }

// IsBanned reports whether the member's cached ban-check result says
// they are currently banned. Only meaningful when BanValid is set;
// callers must re-check the ban list otherwise.
func (m *Membership) IsBanned() bool { return m.status&MemberBanned != 0 }

// BanValid reports whether the cached ban-check result is still
// trustworthy (invalidated by any +b/-b change, per spec.md §4.5).
func (m *Membership) BanValid() bool { return m.status&MemberBanValid != 0 }

// InvalidateBan clears the cached ban-check result, forcing the next
// message/mode check to recompute it against the current ban list.
func (m *Membership) InvalidateBan() {
	m.status &^= MemberBanValid | MemberBanned
}

// SetBanned caches a ban-check result.
func (m *Membership) SetBanned(banned bool) {
	m.status |= MemberBanValid
	if banned {
		m.status |= MemberBanned
	} else {
		m.status &^= MemberBanned
	}
}

// SetChanOp sets or clears channel op status.
func (m *Membership) SetChanOp(v bool) {
	if v {
		m.status |= MemberChanOp
		m.status &^= MemberDeopped
	} else {
		m.status &^= MemberChanOp
	}
}

// IsDeopped reports whether the member was stripped of op by the
// server (timestamp arbitration or a DestDeOp bounce). A deopped
// member's own MODE changes are bounced until a peer re-ops them.
func (m *Membership) IsDeopped() bool { return m.status&MemberDeopped != 0 }

// SetDeopped marks the member as server-deopped, clearing op status.
func (m *Membership) SetDeopped() {
	m.status |= MemberDeopped
	m.status &^= MemberChanOp
}

// SetVoice sets or clears voice status.
func (m *Membership) SetVoice(v bool) {
	if v {
		m.status |= MemberVoice
	} else {
		m.status &^= MemberVoice
	}
}

// MarkBurstJoin flags the membership as having arrived via a net burst
// rather than a live JOIN, per spec.md §4.10.
func (m *Membership) MarkBurstJoin() { m.status |= MemberBurstJoin }

// IsBurstJoin reports whether the membership arrived via a net burst.
func (m *Membership) IsBurstJoin() bool { return m.status&MemberBurstJoin != 0 }

// Zombify marks the membership as a zombie, per make_zombie in the
// original source: status is reduced to exactly MemberZombie, all
// other flags (op, voice, ban cache) are dropped since none of them
// mean anything for a member who can no longer act.
func (m *Membership) Zombify() {
	m.status = MemberZombie
}

// MemberSet is a channel's member list, keyed by case-folded nick.
type MemberSet struct {
	members map[string]*Membership
}

// NewMemberSet returns an empty member set.
func NewMemberSet() *MemberSet {
	return &MemberSet{members: make(map[string]*Membership)}
}

// Join adds (or returns the existing) membership for nick.
func (ms *MemberSet) Join(nick, channel string, sink MessageSink) *Membership {
	key := FoldNick(nick)
	if m, ok := ms.members[key]; ok {
		return m
	}
	m := &Membership{User: nick, Channel: channel, Sink: sink}
	ms.members[key] = m
	return m
}

// Get returns the membership for nick, or nil if not a member.
func (ms *MemberSet) Get(nick string) *Membership {
	return ms.members[FoldNick(nick)]
}

// Remove deletes the membership for nick outright (full PART/KICK,
// never just a zombie transition — callers wanting a zombie should
// call Membership.Zombify and keep the entry).
func (ms *MemberSet) Remove(nick string) {
	delete(ms.members, FoldNick(nick))
}

// Len returns the number of entries, including zombies.
func (ms *MemberSet) Len() int {
	return len(ms.members)
}

// NonZombieLen returns the number of non-zombie members, which is what
// channel mode +l and the MODE/NAMES counts should use.
func (ms *MemberSet) NonZombieLen() int {
	n := 0
	for _, m := range ms.members {
		if !m.IsZombie() {
			n++
		}
	}
	return n
}

// All returns every membership in unspecified order. Callers must not
// mutate the returned map.
func (ms *MemberSet) All() map[string]*Membership {
	return ms.members
}

// InvalidateAllBans clears the ban cache on every member, called after
// any ban list mutation (spec.md §4.5, "invalidates every member's
// cached ban-check result").
func (ms *MemberSet) InvalidateAllBans() {
	for _, m := range ms.members {
		m.InvalidateBan()
	}
}

// ZombieCount returns the number of zombie memberships, the Go
// equivalent of number_of_zombies in the original source.
func (ms *MemberSet) ZombieCount() int {
	n := 0
	for _, m := range ms.members {
		if m.IsZombie() {
			n++
		}
	}
	return n
}
