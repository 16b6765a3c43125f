package poker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVoteValid(t *testing.T) {
	t.Parallel()

	for _, v := range Deck() {
		require.True(t, v.Valid(), "deck value %q", v)
	}
	require.True(t, VoteUnknown.Valid())
	require.True(t, VoteBreak.Valid())

	for _, v := range []Vote{"", "4", "100", "coffee", "-1", "5.5"} {
		require.False(t, v.Valid(), "literal %q", v)
	}
}

func TestVoteNumeric(t *testing.T) {
	t.Parallel()

	f, ok := Vote("0.5").Numeric()
	require.True(t, ok)
	require.Equal(t, 0.5, f)

	_, ok = VoteUnknown.Numeric()
	require.False(t, ok)

	// Parses as a float but is not in the deck.
	_, ok = Vote("4").Numeric()
	require.False(t, ok)
}

func TestRoundUpToDeck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{0.3, 0.5},
		{4.2, 5},
		{6.0, 8},
		{8, 8},
		{13.01, 21},
		{200, 89},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, RoundUpToDeck(tt.in), "input %v", tt.in)
	}
}
