package models

// Player is a room member. TokenDigest is the digest of the session token issued on join;
// the token itself is only ever sent to the player it belongs to.
type Player struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsHost      bool   `json:"isHost"`
	IsReady     bool   `json:"isReady"`
	Connected   bool   `json:"connected"`
	TokenDigest []byte `json:"-"`

	// JoinSeq orders members by join time. It survives disconnects so that a
	// reconnecting player regains their place in host succession.
	JoinSeq uint64 `json:"-"`
}

// PlayerView is the public projection of a Player sent in roster updates.
type PlayerView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsHost    bool   `json:"isHost"`
	IsReady   bool   `json:"isReady"`
	Connected bool   `json:"connected"`
}

// View returns the public projection of p.
func (p *Player) View() PlayerView {
	return PlayerView{
		ID:        p.ID,
		Name:      p.Name,
		IsHost:    p.IsHost,
		IsReady:   p.IsReady,
		Connected: p.Connected,
	}
}
