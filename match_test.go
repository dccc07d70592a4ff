package ircu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		literal  string
		expected bool
	}{
		{"exact", "nick!user@host", "nick!user@host", true},
		{"case insensitive", "NICK!user@HOST", "nick!user@host", true},
		{"trailing star", "*!*@*.example.com", "evil!user@bad.example.com", true},
		{"leading star mismatch", "*!*@*.example.com", "evil!user@bad.example.org", false},
		{"question mark", "nick?", "nick1", true},
		{"question mark length", "nick?", "nick", false},
		{"star matches empty", "nick!*@host", "nick!@host", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Match(tt.pattern, tt.literal))
		})
	}
}

func TestMaskSubsumes(t *testing.T) {
	tests := []struct {
		name     string
		super    string
		sub      string
		expected bool
	}{
		{"broader wildcard subsumes narrower", "*!*@*.example.com", "*!*@foo.example.com", true},
		{"narrower does not subsume broader", "*!*@foo.example.com", "*!*@*.example.com", false},
		{"identical masks subsume each other", "nick!user@host", "nick!user@host", true},
		{"disjoint masks do not subsume", "*!*@foo.example.com", "*!*@bar.example.com", false},
		{"fully wild subsumes everything", "*!*@*", "nick!user@host", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskSubsumes(tt.super, tt.sub))
		})
	}
}

// No ban pair on a channel may mutually subsume without being the same
// mask, per spec.md's quantified invariant: (B1, B2) in the same
// channel never both subsume one another unless B1 == B2.
func TestMaskSubsumesAntisymmetric(t *testing.T) {
	masks := []string{"*!*@*.example.com", "*!*@foo.example.com", "nick!*@*", "*!user@host"}
	for _, a := range masks {
		for _, b := range masks {
			if a == b {
				continue
			}
			if MaskSubsumes(a, b) {
				assert.False(t, MaskSubsumes(b, a), "%q and %q mutually subsume", a, b)
			}
		}
	}
}
