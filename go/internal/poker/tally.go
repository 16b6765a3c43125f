package poker

// TallyResult is the statistics of one revealed round. Computed fresh on
// every reveal, never cached across rounds.
type TallyResult struct {
	Average      float64      `json:"average"`
	Min          *float64     `json:"min"`
	Max          *float64     `json:"max"`
	VoteCounts   map[Vote]int `json:"vote_counts"`
	TotalVotes   int          `json:"total_votes"`
	Consensus    Vote         `json:"consensus,omitempty"`
	HasConsensus bool         `json:"has_consensus"`
}

// Tally computes round statistics from a votes map.
//
// Average, min and max consider only numeric votes; sentinels still count
// toward VoteCounts and TotalVotes. Consensus is the unique vote literal
// with strictly the highest count; a tie for the highest count yields
// HasConsensus=false.
func Tally(votes map[string]Vote) TallyResult {
	result := TallyResult{
		VoteCounts: make(map[Vote]int),
		TotalVotes: len(votes),
	}

	var sum float64
	var numeric int
	for _, v := range votes {
		result.VoteCounts[v]++
		if f, ok := v.Numeric(); ok {
			sum += f
			numeric++
			if result.Min == nil || f < *result.Min {
				f := f
				result.Min = &f
			}
			if result.Max == nil || f > *result.Max {
				f := f
				result.Max = &f
			}
		}
	}
	if numeric > 0 {
		result.Average = sum / float64(numeric)
	}

	best, tied := 0, false
	for v, count := range result.VoteCounts {
		switch {
		case count > best:
			best, tied = count, false
			result.Consensus = v
		case count == best:
			tied = true
		}
	}
	result.HasConsensus = best > 0 && !tied
	if !result.HasConsensus {
		result.Consensus = ""
	}
	return result
}
