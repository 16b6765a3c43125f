package poker

import "time"

// RoundResult is the immutable record of one revealed round. Appended to
// the session history only at the instant of reveal.
type RoundResult struct {
	Ticket            string          `json:"ticket,omitempty"`
	IssueKey          string          `json:"issue_key,omitempty"`
	Votes             map[string]Vote `json:"votes"`
	Stats             TallyResult     `json:"stats"`
	DiscussionSeconds int             `json:"discussion_seconds"`
	RevealedAt        time.Time       `json:"revealed_at"`
}

// ParticipantStats is the per-participant slice of the running aggregate.
type ParticipantStats struct {
	Sum       float64 `json:"sum"`
	Count     int     `json:"count"`
	HighCount int     `json:"high_count"`
	LowCount  int     `json:"low_count"`
}

// Aggregate holds running per-session statistics, maintained incrementally
// round by round and never recomputed by replaying history.
type Aggregate struct {
	TotalRounds     int                          `json:"total_rounds"`
	ConsensusRounds int                          `json:"consensus_rounds"`
	PerParticipant  map[string]*ParticipantStats `json:"per_participant"`
}

// NewAggregate returns an empty aggregate.
func NewAggregate() Aggregate {
	return Aggregate{PerParticipant: make(map[string]*ParticipantStats)}
}

// RecordRound appends a revealed round to the history and folds it into
// the aggregate. The two updates are one mutation; callers hold the
// session lock.
//
// A round counts as a consensus round only when min == max over numeric
// votes (true variance-free agreement, not mere plurality). High/low
// counts are incremented only for rounds that exhibited variance.
func (s *Session) RecordRound(r RoundResult) {
	s.History = append(s.History, r)

	agg := &s.Aggregate
	agg.TotalRounds++

	min, max := r.Stats.Min, r.Stats.Max
	unanimous := min != nil && max != nil && *min == *max
	if unanimous {
		agg.ConsensusRounds++
	}

	for name, vote := range r.Votes {
		f, ok := vote.Numeric()
		if !ok {
			continue
		}
		stats := agg.PerParticipant[name]
		if stats == nil {
			stats = &ParticipantStats{}
			agg.PerParticipant[name] = stats
		}
		stats.Sum += f
		stats.Count++
		if !unanimous {
			if max != nil && f == *max {
				stats.HighCount++
			}
			if min != nil && f == *min {
				stats.LowCount++
			}
		}
	}
}
