/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package ircu

import "strings"

// numericNickAlphabet is the base-64 alphabet the original protocol
// uses for numeric nicks, matching convert2y/convert2n in the wire
// format (spec.md §6, "2-5 character base-64 numeric nicks").
const numericNickAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789[]"

// EncodeNumericNick renders n in the protocol's base-64 numeric-nick
// alphabet, left-padded with 'A' (value 0) to width chars, matching
// the server-number + client-number pair ircu packs into a 2-5
// character token for burst/propagation wire lines.
func EncodeNumericNick(n uint32, width int) string {
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = numericNickAlphabet[n&0x3f]
		n >>= 6
	}
	return string(out)
}

// DecodeNumericNick reverses EncodeNumericNick. Returns false if s
// contains a character outside the alphabet.
func DecodeNumericNick(s string) (uint32, bool) {
	var n uint32
	for i := 0; i < len(s); i++ {
		v := strings.IndexByte(numericNickAlphabet, s[i])
		if v < 0 {
			return 0, false
		}
		n = n<<6 | uint32(v)
	}
	return n, true
}

// NumericNick packs a server number and a per-server client number
// into the two-part token peers exchange in JOIN/burst member lists.
type NumericNick struct {
	Server uint32 // 0-4095 (2 chars)
	Client uint32 // 0-262143 (3 chars)
}

// String renders the 5-character combined numeric nick.
func (n NumericNick) String() string {
	return EncodeNumericNick(n.Server, 2) + EncodeNumericNick(n.Client, 3)
}

// ParseNumericNick splits a combined 5-character numeric nick back
// into its server/client parts. Returns false if s isn't exactly 5
// valid base-64 characters.
func ParseNumericNick(s string) (NumericNick, bool) {
	if len(s) != 5 {
		return NumericNick{}, false
	}
	srv, ok := DecodeNumericNick(s[:2])
	if !ok {
		return NumericNick{}, false
	}
	cli, ok := DecodeNumericNick(s[2:])
	if !ok {
		return NumericNick{}, false
	}
	return NumericNick{Server: srv, Client: cli}, true
}
