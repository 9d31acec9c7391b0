package game

import (
	"sort"
	"time"
)

// Reasons attached to game_results.
const (
	ReasonPlayerFinished = "player_finished"
	ReasonAllFinished    = "all_finished"
	ReasonTimeExpired    = "time_expired"
	ReasonReconnect      = "reconnect"
)

// ResultEntry is one player's line in the results.
type ResultEntry struct {
	PlayerID   string `json:"playerId"`
	Name       string `json:"name"`
	Attempts   int    `json:"attempts"`
	DurationMs int64  `json:"durationMs"`
	Rank       int    `json:"rank,omitempty"`
}

// Results partitions the participants of a session.
type Results struct {
	Winners      []ResultEntry `json:"winners"`
	Losers       []ResultEntry `json:"losers"`
	StillPlaying []ResultEntry `json:"stillPlaying"`
	SharedSecret []int         `json:"sharedSecret"`
	Reason       string        `json:"reason"`
}

// ComputeResults ranks the participants and stores the outcome as LastResults.
// order lists player ids in join order and names maps ids to display names; order only
// settles the position of exact ties.
func (s *Session) ComputeResults(order []string, names map[string]string, reason string, now time.Time) *Results {
	res := &Results{
		Winners:      []ResultEntry{},
		Losers:       []ResultEntry{},
		StillPlaying: []ResultEntry{},
		SharedSecret: append([]int{}, s.Secret...),
		Reason:       reason,
	}

	seen := make(map[string]bool, len(s.Players))
	ids := make([]string, 0, len(s.Players))
	for _, id := range order {
		if _, ok := s.Players[id]; ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	var rest []string
	for id := range s.Players {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	ids = append(ids, rest...)

	for _, id := range ids {
		pd := s.Players[id]
		entry := ResultEntry{
			PlayerID:   id,
			Name:       names[id],
			Attempts:   len(pd.Attempts),
			DurationMs: pd.Duration(now).Milliseconds(),
		}
		switch {
		case pd.Won:
			res.Winners = append(res.Winners, entry)
		case pd.Finished:
			res.Losers = append(res.Losers, entry)
		default:
			res.StillPlaying = append(res.StillPlaying, entry)
		}
	}

	sort.SliceStable(res.Winners, func(i, j int) bool {
		a, b := res.Winners[i], res.Winners[j]
		if a.Attempts != b.Attempts {
			return a.Attempts < b.Attempts
		}
		return a.DurationMs < b.DurationMs
	})
	for i := range res.Winners {
		res.Winners[i].Rank = i + 1
	}
	// among losers, surviving longer ranks better
	sort.SliceStable(res.Losers, func(i, j int) bool {
		return res.Losers[i].DurationMs > res.Losers[j].DurationMs
	})

	s.LastResults = res
	return res
}
