package rfp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{in: "$1,250,000.00", want: 1250000, ok: true},
		{in: 5000.5, want: 5000.5, ok: true},
		{in: 42, want: 42, ok: true},
		{in: "0", ok: false},
		{in: "TBD", ok: false},
		{in: "", ok: false},
		{in: nil, ok: false},
		{in: -10.0, ok: false},
	}
	for _, tc := range cases {
		got := ParseAmount(tc.in)
		if !tc.ok {
			require.Nil(t, got, "%v", tc.in)
			continue
		}
		require.NotNil(t, got, "%v", tc.in)
		require.InDelta(t, tc.want, *got, 1e-9)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "abc", Truncate("abcdef", 3))
	require.Equal(t, "ab", Truncate("ab", 3))
	require.Equal(t, "ééé", Truncate("éééé", 3))
	require.Equal(t, "abc", Truncate("abc", 0))
}
