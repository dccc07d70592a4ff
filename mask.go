/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package ircu

import (
	"net"
	"strings"
)

// MaxMaskNickLen, MaxMaskUserLen, and MaxMaskHostLen bound the three
// components of a canonical ban mask, mirroring NICKLEN/USERLEN/HOSTLEN
// in the original ircd/channel.c make_nick_user_host().
const (
	MaxMaskNickLen = MaxNickLength
	MaxMaskUserLen = MaxUserLength
	MaxMaskHostLen = MaxVHostLength
)

// CanonicalMask returns the canonical nick!user@host form of a
// user-supplied ban mask per spec.md §4.1. It never mutates the input
// and always allocates a fresh result (see spec.md §9, "Open question —
// truncating the nick in pretty_mask").
func CanonicalMask(raw string) string {
	var nick, user, host string

	bang := strings.IndexByte(raw, '!')
	at := strings.IndexByte(raw, '@')

	switch {
	case bang >= 0 && at > bang:
		// xxx!yyy@zzz
		nick, user, host = raw[:bang], raw[bang+1:at], raw[at+1:]
	case bang >= 0:
		// xxx!yyy (no host)
		nick, user, host = raw[:bang], raw[bang+1:], "*"
	case at >= 0:
		// xxx@yyy (no user)
		nick, user, host = "*", raw[:at], raw[at+1:]
	case strings.IndexByte(raw, '.') >= 0:
		// xxx.yyy, read as a bare host pattern
		nick, user, host = "*", "*", raw
	default:
		// xxx, read as a bare nick
		nick, user, host = raw, "*", "*"
	}

	if nick == "" {
		nick = "*"
	}
	if user == "" {
		user = "*"
	}
	if host == "" {
		host = "*"
	}

	return truncRight(nick, MaxMaskNickLen) + "!" +
		truncLeft(user, MaxMaskUserLen) + "@" +
		truncLeft(host, MaxMaskHostLen)
}

// truncRight truncates s to at most n bytes, keeping the leading bytes.
func truncRight(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// truncLeft truncates s to at most n bytes, keeping the trailing bytes
// and prefixing a "*" so the mask still matches the same tail, per the
// "left-truncated with a leading *" rule of spec.md §4.1.
func truncLeft(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "*" + s[len(s)-n+1:]
}

// IsIPMask reports whether the last label of a host mask looks like a
// literal IPv4 address or CIDR range rather than a name pattern
// (check_if_ipmask in the original source). Wildcard digits ('*', '?')
// count as numeric for this purpose, matching the source's behavior of
// treating a mostly-numeric-and-wildcard label as an IP mask.
func IsIPMask(host string) bool {
	if host == "" {
		return false
	}

	// A literal CIDR or dotted-quad parses outright.
	if ip := net.ParseIP(strings.TrimSuffix(host, "*")); ip != nil {
		return true
	}

	labels := strings.Split(host, ".")
	numericLabels := 0
	for _, label := range labels {
		if label == "" {
			continue
		}
		if isNumericOrWild(label) {
			numericLabels++
		}
	}

	// An all-numeric (or wildcarded) dotted run of 2+ labels reads as an
	// IP mask, e.g. "123.45.*.* " or "10.0.0.0/8".
	return numericLabels >= 2 && numericLabels == nonEmptyLabels(labels)
}

func nonEmptyLabels(labels []string) int {
	n := 0
	for _, l := range labels {
		if l != "" {
			n++
		}
	}
	return n
}

func isNumericOrWild(label string) bool {
	// Allow a trailing CIDR suffix, e.g. "0/8".
	if slash := strings.IndexByte(label, '/'); slash >= 0 {
		label = label[:slash]
	}
	if label == "" {
		return false
	}
	for _, r := range label {
		if (r < '0' || r > '9') && r != '*' && r != '?' {
			return false
		}
	}
	return true
}
