/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package ircu

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxBurstWireLength bounds a single emitted burst ('B') line,
// analogous to MaxModeWireLength/MaxJoinWireLength.
const MaxBurstWireLength = 480

// burstMember is one member entry pending serialization in a burst
// frame.
type burstMember struct {
	numnick string
	op      bool
	voice   bool
}

// EncodeBurst serializes ch's full state into one or more 'B' frame
// bodies (everything after "<srvnum> B "), per spec.md §4.10. members
// maps each present (non-zombie) member's nick to its numeric-nick
// token; membership flags are read from the channel's own member set.
//
// To keep wire lines bounded, members are iterated four times, each
// pass emitting only one membership-flag equivalence class in a fixed
// order — (op+voice), (voice), (op), (neither) — so that the mode
// suffix changes at most once per pass, matching the original
// encoder's grouping.
func EncodeBurst(ch *Channel, members map[string]string) []string {
	var classes [4][]burstMember
	for nick, m := range ch.Members().All() {
		if m.IsZombie() {
			continue
		}
		numnick, ok := members[nick]
		if !ok {
			continue
		}
		bm := burstMember{numnick: numnick, op: m.IsChanOp(), voice: m.IsVoice()}
		switch {
		case bm.op && bm.voice:
			classes[0] = append(classes[0], bm)
		case bm.voice:
			classes[1] = append(classes[1], bm)
		case bm.op:
			classes[2] = append(classes[2], bm)
		default:
			classes[3] = append(classes[3], bm)
		}
	}

	header := fmt.Sprintf("%s %d", ch.Name(), ch.Creation().Seconds())
	if modes := ch.Modes().String(); modes != "+" {
		header += " " + modes
		if ch.Modes().Has(ModeLimit) {
			header += " " + strconv.Itoa(ch.Modes().Limit())
		}
		if ch.Modes().Key() != "" {
			header += " " + ch.Modes().Key()
		}
	}

	bans := ch.Bans().All()

	var lines []string
	line := header
	wroteAnyMember := false

	emit := func(tok string) {
		sep := ","
		if !wroteAnyMember {
			sep = " "
		}
		if len(line)+len(sep)+len(tok) > MaxBurstWireLength {
			lines = append(lines, line)
			line = header
			wroteAnyMember = false
			sep = " "
		}
		line += sep + tok
		wroteAnyMember = true
	}

	for _, class := range classes {
		for _, bm := range class {
			tok := bm.numnick
			switch {
			case bm.op && bm.voice:
				tok += ":ov"
			case bm.voice:
				tok += ":v"
			case bm.op:
				tok += ":o"
			}
			emit(tok)
		}
	}

	if len(bans) > 0 {
		banTok := "%" + bans[0].Mask
		if len(line)+2+len(banTok) > MaxBurstWireLength {
			lines = append(lines, line)
			line = header
		}
		line += " :" + banTok
		for _, b := range bans[1:] {
			if len(line)+1+len(b.Mask) > MaxBurstWireLength {
				lines = append(lines, line)
				line = header + " :%"
			} else {
				line += " "
			}
			line += b.Mask
		}
	}

	lines = append(lines, line)
	return lines
}

// BurstMemberEntry is one decoded member token from a burst frame's
// comma-joined member list.
type BurstMemberEntry struct {
	NumericNick string
	Op          bool
	Voice       bool
}

// BurstFrame is a single 'B' line decoded back into its fields, the
// inverse of EncodeBurst.
type BurstFrame struct {
	Channel   string
	Timestamp int64
	Modes     string // e.g. "+ntk", "" if the channel carried no modes
	Limit     int
	Key       string
	Members   []BurstMemberEntry
	Bans      []string
}

// DecodeBurst parses one burst frame body (everything after "<srvnum>
// B "), reversing EncodeBurst field by field: channel, creation
// timestamp, an optional "+modes" token followed by its optional limit
// and key arguments, then one comma-joined member-list token, then a
// ban-list tail introduced by " :" with only its first mask carrying
// the '%' marker EncodeBurst writes.
//
// Channel names can't contain ':' (CleanChannelName strips it) and
// member tokens never contain a space before their own ':', so the
// first " :" substring in line unambiguously marks the start of the
// ban-list tail.
func DecodeBurst(line string) (*BurstFrame, error) {
	head := line
	var banPart string
	if idx := strings.Index(line, " :"); idx >= 0 {
		head = line[:idx]
		banPart = line[idx+2:]
	}

	fields := strings.Fields(head)
	if len(fields) < 2 {
		return nil, fmt.Errorf("ircu: burst frame missing channel/timestamp: %q", line)
	}

	frame := &BurstFrame{Channel: fields[0]}

	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("ircu: burst frame bad timestamp %q: %w", fields[1], err)
	}
	frame.Timestamp = ts

	rest := fields[2:]
	if len(rest) > 0 && strings.HasPrefix(rest[0], "+") {
		frame.Modes = rest[0]
		rest = rest[1:]

		if strings.ContainsRune(frame.Modes, 'l') {
			if len(rest) == 0 {
				return nil, fmt.Errorf("ircu: burst frame +l missing limit: %q", line)
			}
			n, err := strconv.Atoi(rest[0])
			if err != nil {
				return nil, fmt.Errorf("ircu: burst frame bad limit %q: %w", rest[0], err)
			}
			frame.Limit = n
			rest = rest[1:]
		}

		if strings.ContainsRune(frame.Modes, 'k') {
			if len(rest) == 0 {
				return nil, fmt.Errorf("ircu: burst frame +k missing key: %q", line)
			}
			frame.Key = rest[0]
			rest = rest[1:]
		}
	}

	if len(rest) > 0 {
		for _, tok := range strings.Split(rest[0], ",") {
			entry := BurstMemberEntry{NumericNick: tok}
			if i := strings.IndexByte(tok, ':'); i >= 0 {
				entry.NumericNick = tok[:i]
				switch tok[i+1:] {
				case "o":
					entry.Op = true
				case "v":
					entry.Voice = true
				case "ov":
					entry.Op = true
					entry.Voice = true
				}
			}
			frame.Members = append(frame.Members, entry)
		}
		rest = rest[1:]
	}

	if banPart != "" {
		for i, mask := range strings.Fields(banPart) {
			if i == 0 {
				mask = strings.TrimPrefix(mask, "%")
			}
			frame.Bans = append(frame.Bans, mask)
		}
	}

	return frame, nil
}

// ApplyBurstBans implements spec.md §4.10's ban-merge protocol: bans
// already on the channel were marked wipeout before the burst began
// (BanList.MarkAllWipeout); each incoming ban either revives an
// existing wipeout entry (no-op, no emission) or is freshly added.
// Call BanList.SweepWipeout once the burst frame is fully processed to
// delete whatever is still flagged.
func ApplyBurstBans(ch *Channel, setter string, masks []string, now int64) {
	var state BanOverlapState
	for i, mask := range masks {
		ch.Bans().Add(&state, setter, mask, false, true, i == 0, now)
	}
}
