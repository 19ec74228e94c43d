package address

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		blob string
		want Address
	}{
		{
			name: "store settings address",
			blob: "123 Easy St.\nHonolulu, HI 96822\nUnited States of America",
			want: Address{Line1: "123 Easy St.", City: "Honolulu", State: "HI", Zip: "96822"},
		},
		{
			name: "multi word city",
			blob: "1 Market St\nSan Francisco, CA 94105",
			want: Address{Line1: "1 Market St", City: "San Francisco", State: "CA", Zip: "94105"},
		},
		{
			name: "windows line endings",
			blob: "PO Box 9999\r\nWalnut CA 91789\r\n",
			want: Address{Line1: "PO Box 9999", City: "Walnut", State: "CA", Zip: "91789"},
		},
		{
			name: "single line",
			blob: "123 Easy St.",
			want: Address{},
		},
		{
			name: "short second line",
			blob: "123 Easy St.\nHonolulu HI",
			want: Address{},
		},
		{
			name: "empty",
			blob: "",
			want: Address{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Parse(tc.blob)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseMalformedIsZero(t *testing.T) {
	require.True(t, Parse("\n\n").IsZero())
	require.False(t, Parse("a\nb c d").IsZero())
}
