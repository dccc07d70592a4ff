/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package ircu

// Ban is a single (mask, setter, timestamp) entry on a channel's ban
// list (spec.md §3).
type Ban struct {
	Mask   string
	Setter string
	Set    int64
	IPMask bool

	// overlapped is set during a dry-run (apply=false) add when a
	// broader new mask subsumes this ban; it marks entries the overlap
	// iterator will re-assert as +b on bounce.
	overlapped bool

	// wipeout marks a ban carried over from before a burst that hasn't
	// been confirmed by the peer's burst yet (§4.10).
	wipeout bool
}

// BanAddResult is the outcome of BanList.Add.
type BanAddResult int

const (
	// BanAdded means the mask was prepended to the list.
	BanAdded BanAddResult = iota
	// BanRejected means an existing ban already subsumes the new mask,
	// or the channel's ban caps would be exceeded.
	BanRejected
	// BanRevived means the mask matched an existing burst-wipeout ban;
	// the wipeout flag was cleared and nothing was added (Global
	// invariant 6).
	BanRevived
)

// BanOverlapState is the per-parse scratch the overlap iterator reads
// from. The original source kept this as module-level statics
// (next_ban/prev_ban/removed_bans_list); spec.md §9 asks for it to be
// threaded explicitly instead so more than one parse can be in flight
// (even though the single-threaded core never actually overlaps two
// parses, this keeps the invariant assertable rather than assumed).
type BanOverlapState struct {
	overlapped []*Ban
	removed    []*Ban
	overlapPos int
	removedPos int
}

// Reset clears the iterator state. Callers must call this with
// first=true on the first BanList.Add of a multi-ban operation; a
// fresh zero-value BanOverlapState is equally valid.
func (s *BanOverlapState) Reset() {
	*s = BanOverlapState{}
}

// NextOverlapped returns the next ban flagged overlapped by a dry-run
// add, or nil when exhausted. Pairs with BanList.Add(apply=false).
func (s *BanOverlapState) NextOverlapped() *Ban {
	if s.overlapPos >= len(s.overlapped) {
		return nil
	}
	b := s.overlapped[s.overlapPos]
	s.overlapPos++
	return b
}

// NextRemovedOverlapped returns the next ban actually removed by a
// subsuming add, or nil when exhausted. Pairs with
// BanList.Add(apply=true).
func (s *BanOverlapState) NextRemovedOverlapped() *Ban {
	if s.removedPos >= len(s.removed) {
		return nil
	}
	b := s.removed[s.removedPos]
	s.removedPos++
	return b
}

// BanList is a channel's ordered ban list (C5, newest first, matching
// the original source's prepend-on-add order).
type BanList struct {
	bans      []*Ban
	totalText int
}

// Len returns the number of bans currently on the list.
func (bl *BanList) Len() int {
	return len(bl.bans)
}

// TextLength returns the summed length of every ban mask on the list.
func (bl *BanList) TextLength() int {
	return bl.totalText
}

// All returns the ban list in current (newest-first) order. Callers
// must not mutate the returned slice.
func (bl *BanList) All() []*Ban {
	return bl.bans
}

// Add implements add_banid (spec.md §4.5). setter is the setting name
// recorded on a new ban; local distinguishes a locally-originated add
// (subject to the length/count caps) from a server-relayed one (caps
// bypassed, per the original source's MyUser(cptr) guard); apply is
// false for a dry-run (mode-parse validation pass before BOUNCE is
// known) and true to actually mutate the list; first must be true on
// the first call of a multi-ban parse and resets state.
func (bl *BanList) Add(state *BanOverlapState, setter string, mask string, local, apply, first bool, now int64) BanAddResult {
	if first {
		state.Reset()
	}

	for _, existing := range bl.bans {
		if existing.wipeout && existing.Mask == mask {
			existing.wipeout = false
			// No emission; Global invariant 6.
			return BanRevived
		}
	}

	textLen := len(mask)
	cnt := 0

	var kept []*Ban
	for _, existing := range bl.bans {
		textLen += len(existing.Mask)
		cnt++

		if !existing.wipeout && MaskSubsumes(existing.Mask, mask) {
			// An existing ban already covers the new mask: reject as redundant.
			return BanRejected
		}

		if MaskSubsumes(mask, existing.Mask) {
			// The new mask subsumes this existing ban.
			if apply {
				cnt--
				textLen -= len(existing.Mask)
				state.removed = append(state.removed, existing)
				continue // drop it from kept
			} else if !existing.wipeout {
				existing.overlapped = true
				state.overlapped = append(state.overlapped, existing)
			}
		} else if first {
			existing.overlapped = false
		}

		kept = append(kept, existing)
	}

	if local && len(state.removed) == 0 && (textLen > MaxBanLength || cnt >= MaxBans) {
		return BanRejected
	}

	bl.bans = kept

	if !apply {
		return BanAdded
	}

	ban := &Ban{
		Mask:   mask,
		Setter: setter,
		Set:    now,
		IPMask: isIPBanMask(mask),
	}
	bl.bans = append([]*Ban{ban}, bl.bans...)
	bl.totalText = sumMaskLen(bl.bans)

	return BanAdded
}

// Del implements del_banid (spec.md §4.5): removes an exact-match ban.
// Returns false if no such ban exists.
func (bl *BanList) Del(mask string) bool {
	for i, b := range bl.bans {
		if b.Mask == mask {
			bl.bans = append(bl.bans[:i], bl.bans[i+1:]...)
			bl.totalText = sumMaskLen(bl.bans)
			return true
		}
	}
	return false
}

// MarkAllWipeout flags every current ban as a burst-wipeout candidate
// (§4.10, called when a peer link bursts).
func (bl *BanList) MarkAllWipeout() {
	for _, b := range bl.bans {
		b.wipeout = true
	}
}

// SweepWipeout deletes every ban still flagged burst-wipeout after a
// burst completes, returning the deleted masks so callers can decide
// whether to announce them.
func (bl *BanList) SweepWipeout() []string {
	var removed []string
	kept := bl.bans[:0]
	for _, b := range bl.bans {
		if b.wipeout {
			removed = append(removed, b.Mask)
			continue
		}
		kept = append(kept, b)
	}
	bl.bans = kept
	bl.totalText = sumMaskLen(bl.bans)
	return removed
}

func isIPBanMask(mask string) bool {
	at := lastIndexByte(mask, '@')
	if at < 0 {
		return false
	}
	return IsIPMask(mask[at+1:])
}

func sumMaskLen(bans []*Ban) int {
	n := 0
	for _, b := range bans {
		n += len(b.Mask)
	}
	return n
}

func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}

