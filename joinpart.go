/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package ircu

import (
	"bytes"
	"strings"

	"github.com/RT-GIT-MANGA/ircu/shared/stringutils"
)

// JoinBuf batches JOIN/CREATE/PART entries for a single source the
// same way ModeBuf batches mode changes (spec.md §4.11): it flushes
// once the accumulated channel-name list would exceed a bounded wire
// size, or after MaxJoinArgs entries, whichever comes first.
type JoinBuf struct {
	source string
	create bool // true if this batch represents channel creations (JOIN that creates)

	names []string
}

// MaxJoinWireLength bounds a single flushed JOIN line's channel-name
// list length, analogous to MaxModeWireLength.
const MaxJoinWireLength = 400

// NewJoinBuf starts a new batch attributed to source. create marks
// whether every entry added is a channel-creating join (as opposed to
// joining an existing channel). Lines renders both kinds the same way;
// founding operator status is granted by AddUserToChannel, not here.
func NewJoinBuf(source string, create bool) *JoinBuf {
	return &JoinBuf{source: source, create: create}
}

// Add queues a channel name.
func (jb *JoinBuf) Add(channel string) {
	jb.names = append(jb.names, channel)
}

// Lines renders the queued channel names into one or more comma-joined
// wire arguments, each bounded by MaxJoinWireLength and at most
// MaxJoinArgs entries, and resets the batch.
func (jb *JoinBuf) Lines() []string {
	if len(jb.names) == 0 {
		return nil
	}

	var lines []string
	for start := 0; start < len(jb.names); start += MaxJoinArgs {
		end := start + MaxJoinArgs
		if end > len(jb.names) {
			end = len(jb.names)
		}
		lines = append(lines, stringutils.ChunkJoinStrings(MaxJoinWireLength, ",", jb.names[start:end]...)...)
	}

	jb.names = nil
	return lines
}

// CanJoinResult is the outcome of the can_join precondition chain.
type CanJoinResult int

const (
	CanJoinOK CanJoinResult = iota
	CanJoinInviteOnly
	CanJoinFull
	CanJoinBanned
	CanJoinBadKey
)

// CanJoin implements spec.md §4.11's can_join predicate: invite
// override wins outright; otherwise invite-only, then channel-full,
// then banned, then bad-key are checked in order, short-circuiting on
// the first failure. keyRing is the comma-separated key argument the
// client supplied, if any; any element matching the channel's key
// grants entry.
func CanJoin(ch *Channel, mask string, invited bool, keyRing string) CanJoinResult {
	if invited {
		return CanJoinOK
	}

	modes := ch.Modes()

	if modes.Has(ModeInviteOnly) {
		return CanJoinInviteOnly
	}

	if limit := modes.Limit(); limit > 0 && ch.Members().NonZombieLen() >= limit {
		return CanJoinFull
	}

	if IsBannedMask(ch, mask) {
		return CanJoinBanned
	}

	if key := modes.Key(); key != "" {
		if !keyRingMatches(keyRing, key) {
			return CanJoinBadKey
		}
	}

	return CanJoinOK
}

func keyRingMatches(ring, key string) bool {
	for _, candidate := range strings.Split(ring, ",") {
		if candidate == key {
			return true
		}
	}
	return false
}

// IsBannedMask reports whether mask (a canonical nick!user@host) is
// currently banned on ch: some ban subsumes it and no narrower
// exception exists. The original source tracks an exception list
// (+e) which spec.md's scope does not include, so this is a direct
// subsumption test over the ban list.
func IsBannedMask(ch *Channel, mask string) bool {
	for _, b := range ch.Bans().All() {
		if MaskSubsumes(b.Mask, mask) {
			return true
		}
	}
	return false
}

// JoinResult reports what AddUserToChannel actually did.
type JoinResult struct {
	Created  bool
	Member   *Membership
	GrantOp  bool // founding operator, per JoinBuf's create-time +o
}

// AddUserToChannel implements add_user_to_channel (spec.md §4.4/§4.11):
// adds nick to channel's member set, granting founding chanop if this
// join created the channel (and the channel isn't modeless, i.e. its
// name doesn't start with '+' or the modeless prefix the network
// reserves — left to the caller to decide since spec.md's channel
// grammar is otherwise name-agnostic here).
func AddUserToChannel(store *ChannelStore, name string, nick string, sink MessageSink, ts ChanTS, modeless bool) JoinResult {
	ch, created := store.GetOrCreate(name, ts)
	if ch.Members().Get(nick) == nil {
		store.Ref(ch)
	}

	m := ch.Members().Join(nick, ch.FoldedName(), sink)
	store.RemoveInvite(ch, nick)

	grantOp := created && !modeless
	if grantOp {
		m.SetChanOp(true)
	}

	return JoinResult{Created: created, Member: m, GrantOp: grantOp}
}

// RemoveUserFromChannel implements remove_user_from_channel (spec.md
// §4.4): a full PART/self-removal, never a zombie transition. Tears
// the channel down via ChannelStore.Unref once the last real member
// leaves, removing any zombies still on it.
func RemoveUserFromChannel(store *ChannelStore, ch *Channel, nick string) {
	ch.Members().Remove(nick)
	store.Unref(ch)
	if ch.Members().Len() > 0 && allZombies(ch) {
		destroyAll(store, ch)
	}
}

// PartAllForQuit removes nick from every channel in channels
// (typically a connection's joined-channel set), broadcasting quitLine
// to each channel's remaining members first. This is the
// channel-subsystem half of a disconnect (connection.go doQuit); the
// caller owns rendering the QUIT message itself.
func PartAllForQuit(store *ChannelStore, channels map[string]*Channel, nick string, quitLine *bytes.Buffer) {
	for _, ch := range channels {
		if quitLine != nil {
			ch.Broadcast(quitLine, nick)
		}
		RemoveUserFromChannel(store, ch, nick)
	}
}

// KickSource distinguishes who originated a kick, since that decides
// the zombification rule in spec.md §4.11.
type KickSource struct {
	FromServer bool
	PeerID     string // the peer link the KICK arrived on, or "" for a local command
}

// ApplyKick implements spec.md §4.11's zombification rule. localUser
// reports whether the kicked member's connection is local to this
// server; arrivedViaPeer is the peer the kicked user's own
// registration arrived on ("" if localUser is true). zombified reports
// that the member was zombified rather than removed; destroyed reports
// that the channel has been torn down (every remaining member was a
// zombie or the set is empty).
func ApplyKick(store *ChannelStore, ch *Channel, nick string, localUser bool, arrivedViaPeer string, src KickSource) (zombified, destroyed bool) {
	m := ch.Members().Get(nick)
	if m == nil {
		return false, false
	}

	switch {
	case localUser:
		// KICK applies directly; the caller forwards a PART upstream
		// if the KICK itself came from a server.
		RemoveUserFromChannel(store, ch, nick)
		return false, ch.Members().Len() == 0

	case src.FromServer && src.PeerID == arrivedViaPeer:
		// Kicker and kicked user's home link agree: a clean removal.
		RemoveUserFromChannel(store, ch, nick)
		return false, ch.Members().Len() == 0

	default:
		m.Zombify()
		if allZombies(ch) {
			destroyAll(store, ch)
			return true, true
		}
		return true, false
	}
}

func allZombies(ch *Channel) bool {
	for _, m := range ch.Members().All() {
		if !m.IsZombie() {
			return false
		}
	}
	return true
}

func destroyAll(store *ChannelStore, ch *Channel) {
	for nick := range ch.Members().All() {
		ch.Members().Remove(nick)
		store.Unref(ch)
	}
}
