/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package ircu

import "unicode"

// Match reports whether literal matches pattern, where pattern may
// contain '*' (zero or more characters) and '?' (exactly one
// character), case-insensitively. It mirrors the original ircd's
// match()/mmatch() pairing (spec.md §4.2): Match answers "does this one
// string match", MaskSubsumes answers "does every string the sub
// pattern could match also match the super pattern".
func Match(pattern, literal string) bool {
	return matchFold([]rune(pattern), []rune(literal))
}

func matchFold(pattern, literal []rune) bool {
	var p, l int
	var starP, starL int = -1, -1

	for l < len(literal) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || foldEq(pattern[p], literal[l])):
			p++
			l++
		case p < len(pattern) && pattern[p] == '*':
			starP = p
			starL = l
			p++
		case starP != -1:
			p = starP + 1
			starL++
			l = starL
		default:
			return false
		}
	}

	for p < len(pattern) && pattern[p] == '*' {
		p++
	}

	return p == len(pattern)
}

func foldEq(a, b rune) bool {
	return unicode.ToLower(a) == unicode.ToLower(b)
}

// MaskSubsumes reports whether every literal string matched by sub is
// also matched by super — i.e. super is at least as broad a pattern as
// sub — without enumerating matches. This is the ban-overlap test used
// throughout C5: add_banid in the original source calls this
// `mmatch(super, sub) == 0`.
//
// The algorithm walks both patterns together: a '*' in super can only
// subsume a run of literal characters, '?', or another '*' in sub; a
// '?' in super covers any single literal or '?' in sub; a literal
// character in super must be matched by the same literal (mod case)
// in sub.
func MaskSubsumes(super, sub string) bool {
	return subsumes([]rune(super), []rune(sub))
}

func subsumes(super, sub []rune) bool {
	var sp, bp int
	var starSP, starBP int = -1, -1

	for bp < len(sub) {
		switch {
		case sp < len(super) && super[sp] == '*':
			starSP = sp
			starBP = bp
			sp++
		case sp < len(super) && sub[bp] == '*':
			// super has a concrete token where sub has '*': super cannot
			// subsume an arbitrary-length wildcard run unless super's
			// token is itself '*', handled above. Fail unless super can
			// backtrack through an earlier star.
			if starSP == -1 {
				return false
			}
			sp = starSP + 1
			starBP++
			bp = starBP
		case sp < len(super) && (super[sp] == '?' || foldEq(super[sp], sub[bp])):
			sp++
			bp++
		case starSP != -1:
			sp = starSP + 1
			starBP++
			bp = starBP
		default:
			return false
		}
	}

	for sp < len(super) && super[sp] == '*' {
		sp++
	}

	return sp == len(super)
}
