package game

// MinRematchVotes is the number of accepting votes that starts a rematch.
const MinRematchVotes = 2

// RematchState tracks a pending rematch vote inside a finished session.
type RematchState struct {
	Requested   bool            `json:"requested"`
	RequestedBy string          `json:"requestedBy"`
	Votes       map[string]bool `json:"votes"`
	Countdown   int             `json:"countdown"`
}

// NewRematch opens a vote with the requester counted as accepting.
func NewRematch(requester string, countdown int) *RematchState {
	return &RematchState{
		Requested:   true,
		RequestedBy: requester,
		Votes:       map[string]bool{requester: true},
		Countdown:   countdown,
	}
}

// Vote records playerID's vote, replacing any earlier vote.
func (r *RematchState) Vote(playerID string, accepted bool) {
	r.Votes[playerID] = accepted
}

// Accepted counts accepting votes cast by the given members.
func (r *RematchState) Accepted(members []string) int {
	n := 0
	for _, id := range members {
		if r.Votes[id] {
			n++
		}
	}
	return n
}

// Passed reports whether enough of the given members accepted.
func (r *RematchState) Passed(members []string) bool {
	return r.Accepted(members) >= MinRematchVotes
}

// Tally returns a copy of the votes.
func (r *RematchState) Tally() map[string]bool {
	out := make(map[string]bool, len(r.Votes))
	for k, v := range r.Votes {
		out[k] = v
	}
	return out
}
