/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package ircu

import "strings"

// Simple channel mode bitmask (spec.md §3/§4.7). ModeBan is parse-only:
// it never appears in the persisted bitmask, it just drives the mode
// parser's dispatch for 'b'.
const (
	ModePrivate uint32 = 1 << iota
	ModeSecret
	ModeModerated
	ModeTopicLimit
	ModeInviteOnly
	ModeNoExternal
	ModeVoice
	ModeKey
	ModeBan
	ModeLimit
)

var simpleModeLetters = map[byte]uint32{
	'p': ModePrivate,
	's': ModeSecret,
	'm': ModeModerated,
	't': ModeTopicLimit,
	'i': ModeInviteOnly,
	'n': ModeNoExternal,
}

// ChannelModes holds a channel's simple-mode bitmask plus its two
// parameterised modes (spec.md §4.7).
type ChannelModes struct {
	bits  uint32
	limit int
	key   string
}

// Has reports whether every bit in mask is set.
func (m *ChannelModes) Has(mask uint32) bool {
	return m.bits&mask == mask
}

// Limit returns the configured user limit, or 0 if unset.
func (m *ChannelModes) Limit() int {
	return m.limit
}

// Key returns the configured channel key, or "" if unset.
func (m *ChannelModes) Key() string {
	return m.key
}

// setSimple applies a single simple-mode character, enforcing the p/s
// mutual exclusion of spec.md Global invariant 4: setting one in the
// same transition clears the other.
func (m *ChannelModes) setSimple(c byte, add bool) (changed bool, ok bool) {
	bit, known := simpleModeLetters[c]
	if !known {
		return false, false
	}

	was := m.bits & bit
	if add {
		m.bits |= bit
		if bit == ModePrivate {
			m.bits &^= ModeSecret
		} else if bit == ModeSecret {
			m.bits &^= ModePrivate
		}
	} else {
		m.bits &^= bit
	}

	return (m.bits & bit) != was, true
}

// setLimit applies +l/-l. -l always succeeds and clears the stored
// value; +l sets it to n.
func (m *ChannelModes) setLimit(add bool, n int) {
	if add {
		m.bits |= ModeLimit
		m.limit = n
	} else {
		m.bits &^= ModeLimit
		m.limit = 0
	}
}

// setKey applies +k/-k. Keys are truncated at the first space, colon,
// or KeyLen, whichever comes first (spec.md §4.7).
func (m *ChannelModes) setKey(add bool, key string) {
	if add {
		m.bits |= ModeKey
		m.key = truncateKey(key)
	} else {
		m.bits &^= ModeKey
		m.key = ""
	}
}

func truncateKey(key string) string {
	if i := strings.IndexAny(key, " :"); i >= 0 {
		key = key[:i]
	}
	if len(key) > KeyLen {
		key = key[:KeyLen]
	}
	return key
}

// String renders the simple-mode letters currently set, in a fixed
// canonical order, matching channel_modes() in the original source.
func (m *ChannelModes) String() string {
	var b strings.Builder
	b.WriteByte('+')
	order := []byte{'p', 's', 'm', 't', 'i', 'n'}
	bitOf := func(c byte) uint32 { return simpleModeLetters[c] }
	for _, c := range order {
		if m.bits&bitOf(c) != 0 {
			b.WriteByte(c)
		}
	}
	if m.bits&ModeKey != 0 {
		b.WriteByte('k')
	}
	if m.bits&ModeLimit != 0 {
		b.WriteByte('l')
	}
	return b.String()
}
