package allowlist

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowed(t *testing.T) {
	l, err := Parse([]string{"127.0.0.1/32", "10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name string
		ip   string
		want bool
	}{
		{"exact loopback match", "127.0.0.1", true},
		{"in 10/8", "10.1.2.3", true},
		{"outside both ranges", "8.8.8.8", false},
		{"loopback but not the allowed one", "127.0.0.2", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, l.Allowed(net.ParseIP(tc.ip)))
		})
	}
}

func TestParseRejectsInvalidCIDR(t *testing.T) {
	_, err := Parse([]string{"not-a-cidr"})
	require.Error(t, err)
}

func TestZeroValueAllowsNothing(t *testing.T) {
	var l List
	assert.False(t, l.Allowed(net.ParseIP("127.0.0.1")))
}
