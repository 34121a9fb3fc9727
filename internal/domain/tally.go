package domain

import "sort"

// Result is one option's frozen outcome. Rows are written once, at lock.
type Result struct {
	DecisionID  string   `json:"decision_id"`
	OptionID    string   `json:"option_id"`
	TotalPoints int      `json:"total_points"`
	AverageRank *float64 `json:"average_rank,omitempty"`
	Rank        int      `json:"rank"`
	IsWinner    bool     `json:"is_winner"`
}

type tallyRow struct {
	option Option
	sum    int
	count  int
}

// Tally ranks the eligible options using votes. Options are visited in the
// order given and sorted stably, so ties keep that order. Votes for options
// that are not eligible are ignored. No eligible options gives no results.
// Under forced ranking an option nobody ranked gets no average and sorts after
// every ranked option; it is not treated as if its count were 1.
func Tally(mechanism Mechanism, options []Option, votes []Vote) []Result {
	eligible := EligibleOptions(options)
	if len(eligible) == 0 {
		return []Result{}
	}

	rows := make([]*tallyRow, 0, len(eligible))
	byID := make(map[string]*tallyRow, len(eligible))
	for _, o := range eligible {
		r := &tallyRow{option: o}
		rows = append(rows, r)
		byID[o.ID] = r
	}
	for _, v := range votes {
		r, ok := byID[v.OptionID]
		if !ok {
			continue
		}
		r.sum += v.Value
		r.count++
	}

	if mechanism == MechanismForcedRanking {
		return tallyRanking(rows)
	}
	return tallyPoints(rows)
}

func tallyPoints(rows []*tallyRow) []Result {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].sum > rows[j].sum
	})
	results := make([]Result, len(rows))
	for i, r := range rows {
		results[i] = Result{
			DecisionID:  r.option.DecisionID,
			OptionID:    r.option.ID,
			TotalPoints: r.sum,
			Rank:        i + 1,
			IsWinner:    i == 0,
		}
	}
	return results
}

// averageRank is undefined for an option nobody ranked
func (r *tallyRow) averageRank() (float64, bool) {
	if r.count == 0 {
		return 0, false
	}
	return float64(r.sum) / float64(r.count), true
}

func tallyRanking(rows []*tallyRow) []Result {
	sort.SliceStable(rows, func(i, j int) bool {
		ai, okI := rows[i].averageRank()
		aj, okJ := rows[j].averageRank()
		if okI != okJ {
			// ranked options come before options nobody ranked
			return okI
		}
		return ai < aj
	})
	n := len(rows)
	results := make([]Result, n)
	for i, r := range rows {
		res := Result{
			DecisionID:  r.option.DecisionID,
			OptionID:    r.option.ID,
			TotalPoints: n - i,
			Rank:        i + 1,
			IsWinner:    i == 0,
		}
		if avg, ok := r.averageRank(); ok {
			res.AverageRank = &avg
		}
		results[i] = res
	}
	return results
}
