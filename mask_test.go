package ircu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalMask(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"full mask", "nick!user@host.example", "nick!user@host.example"},
		{"no host", "nick!user", "nick!user@*"},
		{"no user", "nick@host.example", "*!nick@host.example"},
		{"bare host", "host.example", "*!*@host.example"},
		{"bare nick", "nick", "nick!*@*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanonicalMask(tt.input))
		})
	}
}

func TestCanonicalMaskRoundTrip(t *testing.T) {
	masks := []string{"nick!user@host.example", "nick@host", "a.b.c.d", "justanick"}
	for _, m := range masks {
		once := CanonicalMask(m)
		twice := CanonicalMask(once)
		assert.Equal(t, once, twice, "canonicalise(canonicalise(m)) must equal canonicalise(m)")
	}
}

func TestIsIPMask(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected bool
	}{
		{"literal ipv4", "192.168.1.1", true},
		{"wildcard ipv4", "192.168.*.*", true},
		{"cidr", "10.0.0.0/8", true},
		{"hostname", "irc.example.com", false},
		{"single label", "localhost", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsIPMask(tt.host))
		})
	}
}
