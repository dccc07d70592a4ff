/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package ircu

import (
	"fmt"
	"strings"
)

// ModeBufDest selects where a ModeBuf's flushed lines are sent,
// mirroring the MODEBUF_DEST_* flags in cancel_mode/modebuf_flush in
// the original source.
type ModeBufDest uint16

const (
	DestChannel ModeBufDest = 1 << iota // local channel members
	DestServer                          // peer servers (MODE or burst form)
	DestHack2                           // HACK(2): bounced, reason unspecified
	DestHack3                           // HACK(3): bounced, TS collision
	DestHack4                           // HACK(4): bounced, not an op
	DestOpMode                          // OPMODE: a services/oper override, never bounced
	DestBounce                          // emit the inverse of what was asked, to the source
	DestDeOp                            // force a -o on the source alongside the bounce
	DestLog                             // WALLOPS-style notice to opers
)

// modeChange is a single +/-X entry queued in a ModeBuf.
type modeChange struct {
	letter byte
	add    bool
	arg    string // nick for o/v, mask for b, value for k/l; empty for p/s/m/t/i/n
}

// ModeBuf batches the individual mode changes produced by parsing one
// MODE command so they can be re-serialized as a minimal number of
// wire lines, each held under MaxModeWireLength bytes — mirroring
// struct ModeBuf / modebuf_flush / modebuf_flush_int in the original
// source (cancel_mode, lines 2349-2411, read in full).
type ModeBuf struct {
	channel *Channel
	source  string // nick or server name the change is attributed to
	dest    ModeBufDest

	// resolve, when set, converts a nick argument (o/v) into its
	// numeric-nick token for a destination that addresses peers
	// (DestServer and the HACK/OPMODE variants), per spec.md §6.
	resolve func(nick string) string

	changes []modeChange
}

// MaxModeWireLength bounds a single flushed MODE line's length,
// matching the original's use of BUFSIZE-derived MODEBUFLEN.
const MaxModeWireLength = 400

// NewModeBuf starts a new batch for channel attributed to source,
// destined for the channel's own members by default.
func NewModeBuf(channel *Channel, source string) *ModeBuf {
	return &ModeBuf{channel: channel, source: source, dest: DestChannel}
}

// Source returns the nick or server name the batch is attributed to.
func (mb *ModeBuf) Source() string { return mb.source }

// SetDest changes where this batch's flushed lines are addressed,
// per the ModeBufDest this parse decided on (spec.md §4.8/§4.9.1).
func (mb *ModeBuf) SetDest(d ModeBufDest) { mb.dest = d }

// SetResolver installs the nick-to-numeric-nick function Lines() uses
// when dest addresses a peer link, so 'o'/'v' arguments go out as the
// wire's numeric-nick tokens instead of display nicks.
func (mb *ModeBuf) SetResolver(fn func(string) string) { mb.resolve = fn }

// WithDest returns a shallow copy of mb re-targeted at d, sharing the
// same queued changes. Used to render the same parse result to more
// than one destination — e.g. the channel broadcast and an oper
// DestLog notice for the same OPMODE (spec.md §4.8).
func (mb *ModeBuf) WithDest(d ModeBufDest) *ModeBuf {
	clone := *mb
	clone.dest = d
	return &clone
}

// AddSimple queues a simple mode change (p, s, m, t, i, n).
func (mb *ModeBuf) AddSimple(letter byte, add bool) {
	mb.changes = append(mb.changes, modeChange{letter: letter, add: add})
}

// AddParam queues a mode change with a parameter (o, v, b, k, l).
func (mb *ModeBuf) AddParam(letter byte, add bool, arg string) {
	mb.changes = append(mb.changes, modeChange{letter: letter, add: add, arg: arg})
}

// Len returns the number of queued changes.
func (mb *ModeBuf) Len() int {
	return len(mb.changes)
}

// Lines renders the queued changes into one or more wire-ready
// strings, each at most MaxModeWireLength bytes, with the shape
// governed by dest (spec.md §4.8):
//
//   - DestLog renders a single human-readable notice instead of mode
//     syntax, for WALLOPS-style oper attention (no wire-length split,
//     since it never goes out as a MODE line).
//   - DestBounce appends the timestamp 0 (the original's
//     "unconditional wipe" sentinel per §4.9.1) to the final line.
//     BounceOf has already inverted every +X/-X before this is called.
//   - DestDeOp additionally forces a trailing "-o <source>" change,
//     so the bounce strips the offending op's own status.
//   - Any destination that addresses a peer link (DestServer and the
//     HACK2-4/DestOpMode variants) renders 'o'/'v' arguments through
//     the installed resolver (numeric nicks) instead of display nicks.
//
// Splitting itself mirrors modebuf_flush's bufpos accumulation: a line
// is cut exactly where the next parameter would overflow it, rather
// than capping the letter run and spilling all parameters onto a
// second line regardless of where they became necessary. Independently
// of byte length, a line carries at most MaxModeParams parameterised
// (o/v/b/k/l) changes — simple modes don't count — matching the
// original's opcnt >= MAXMODEPARAMS cut.
func (mb *ModeBuf) Lines() []string {
	if len(mb.changes) == 0 {
		return nil
	}

	if mb.dest&DestLog != 0 {
		return []string{mb.renderLog()}
	}

	changes := mb.changes
	if mb.dest&DestDeOp != 0 {
		changes = append(append([]modeChange(nil), changes...), modeChange{letter: 'o', add: false, arg: mb.source})
	}

	var lines []string
	i := 0
	for i < len(changes) {
		letters, params, consumed := mb.renderModeRun(changes[i:])
		line := letters + params
		if mb.dest&DestBounce != 0 && i+consumed >= len(changes) {
			line += " 0"
		}
		lines = append(lines, line)
		i += consumed
	}
	return lines
}

// addressesPeer reports whether dest's lines must carry numeric-nick
// tokens instead of display nicks, per spec.md §6.
func (mb *ModeBuf) addressesPeer() bool {
	return mb.dest&(DestServer|DestHack2|DestHack3|DestHack4|DestOpMode|DestBounce) != 0
}

func (mb *ModeBuf) renderModeRun(changes []modeChange) (letters, params string, consumed int) {
	var letterBuf strings.Builder
	var paramParts []string
	lastAdd := byte(0) // 0, '+', or '-'
	length := 0
	toPeer := mb.addressesPeer() && mb.resolve != nil

	for idx, ch := range changes {
		sign := byte('-')
		if ch.add {
			sign = '+'
		}

		arg := ch.arg
		if arg != "" && toPeer && (ch.letter == 'o' || ch.letter == 'v') {
			arg = mb.resolve(arg)
		}

		letterLen := 1
		if sign != lastAdd {
			letterLen = 2
		}
		paramLen := 0
		if arg != "" {
			paramLen = len(arg) + 1 // leading space
		}

		// A run is cut when the next parameter would overflow the wire
		// length, or when it would carry more than MaxModeParams
		// parameterised changes; simple modes never count against the
		// parameter cap.
		if length > 0 && length+letterLen+paramLen > MaxModeWireLength {
			return letterBuf.String(), strings.Join(withLeadingSpace(paramParts), ""), idx
		}
		if arg != "" && len(paramParts) >= MaxModeParams {
			return letterBuf.String(), strings.Join(withLeadingSpace(paramParts), ""), idx
		}

		if sign != lastAdd {
			letterBuf.WriteByte(sign)
			lastAdd = sign
		}
		letterBuf.WriteByte(ch.letter)
		if arg != "" {
			paramParts = append(paramParts, arg)
		}
		length += letterLen + paramLen
	}

	return letterBuf.String(), strings.Join(withLeadingSpace(paramParts), ""), len(changes)
}

// renderLog renders the queued changes as a single WALLOPS-style
// notice for DestLog, naming the source the batch is attributed to.
func (mb *ModeBuf) renderLog() string {
	var parts []string
	for _, ch := range mb.changes {
		sign := byte('-')
		if ch.add {
			sign = '+'
		}
		entry := string(sign) + string(ch.letter)
		if ch.arg != "" {
			entry += " " + ch.arg
		}
		parts = append(parts, entry)
	}
	return fmt.Sprintf("%s used OPMODE on %s: %s", mb.source, mb.channel.Name(), strings.Join(parts, " "))
}

func withLeadingSpace(params []string) []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = " " + p
	}
	return out
}
