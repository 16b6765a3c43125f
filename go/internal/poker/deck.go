package poker

import "strconv"

// Vote is a single estimate literal: either a deck value ("0", "0.5", "1",
// ... "89") or one of the sentinels.
type Vote string

const (
	// VoteUnknown means the participant cannot estimate the ticket.
	VoteUnknown Vote = "unknown"
	// VoteBreak asks for a coffee break instead of an estimate.
	VoteBreak Vote = "break"
)

// deckValues is the modified Fibonacci deck, in ascending order.
var deckValues = []float64{0, 0.5, 1, 2, 3, 5, 8, 13, 21, 34, 55, 89}

// Deck returns the accepted numeric vote literals in ascending order.
func Deck() []Vote {
	deck := make([]Vote, len(deckValues))
	for i, v := range deckValues {
		deck[i] = numericVote(v)
	}
	return deck
}

func numericVote(v float64) Vote {
	return Vote(strconv.FormatFloat(v, 'f', -1, 64))
}

// Numeric returns the vote's numeric value, or false for sentinels and
// literals outside the deck.
func (v Vote) Numeric() (float64, bool) {
	f, err := strconv.ParseFloat(string(v), 64)
	if err != nil {
		return 0, false
	}
	for _, d := range deckValues {
		if d == f {
			return f, true
		}
	}
	return 0, false
}

// IsSentinel reports whether the vote is one of the non-numeric sentinels.
func (v Vote) IsSentinel() bool {
	return v == VoteUnknown || v == VoteBreak
}

// Valid reports whether the literal is an accepted vote.
func (v Vote) Valid() bool {
	if v.IsSentinel() {
		return true
	}
	_, ok := v.Numeric()
	return ok
}

// RoundUpToDeck returns the smallest deck value >= f, clamping to the
// largest deck value. Used when pushing a revealed average to the tracker.
func RoundUpToDeck(f float64) float64 {
	for _, d := range deckValues {
		if d >= f {
			return d
		}
	}
	return deckValues[len(deckValues)-1]
}
