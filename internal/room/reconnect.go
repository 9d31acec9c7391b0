// internal/room/reconnect.go
package room

import (
	"github.com/jason-s-yu/codebreak/internal/auth"
	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/jason-s-yu/codebreak/internal/protocol"
)

// Disconnect moves playerID from the connected roster to the disconnected record.
// current is consulted under the room lock and must report whether the closing
// connection is still the player's live one; a superseded connection closing
// late must not disconnect the player. Membership is kept indefinitely.
func (r *Room) Disconnect(playerID string, current func() bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.findActiveUnsafe(playerID)
	if i < 0 {
		return
	}
	if current != nil && !current() {
		return
	}

	p := r.Players[i]
	r.Players = append(r.Players[:i], r.Players[i+1:]...)
	p.Connected = false
	now := r.now()
	r.Disconnected[playerID] = &DisconnectedPlayer{Player: p, DisconnectTime: now}
	if len(r.Players) == 0 {
		r.idleSince = now
	}

	r.log.WithField("player", playerID).Info("player disconnected")
	r.broadcastUnsafe(protocol.New(protocol.TypePlayerDisconnected, protocol.Message{
		"playerId":   playerID,
		"playerName": p.Name,
	}))
	r.settleUnsafe()
}

// Reconnect resumes playerID's membership if token matches the one issued on join.
// attach binds the new connection and runs before any context is replayed.
func (r *Room) Reconnect(playerID, token string, attach func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return models.ErrInvalidSession
	}
	p, ok := r.memberUnsafe(playerID)
	if !ok || !auth.DigestEqual(p.TokenDigest, auth.Digest(token)) {
		return models.ErrInvalidSession
	}

	if _, wasAway := r.Disconnected[playerID]; wasAway {
		delete(r.Disconnected, playerID)
		p.Connected = true
		r.insertActiveUnsafe(p)
	}
	if attach != nil {
		attach()
	}

	r.sendUnsafe(playerID, r.rejoinContextUnsafe(p))
	if r.Game != nil {
		pd := r.Game.Players[playerID]
		if r.Game.Status == game.StatusFinished || (pd != nil && pd.Finished) {
			reason := game.ReasonReconnect
			if r.Game.Status == game.StatusFinished && r.Game.LastResults != nil {
				reason = r.Game.LastResults.Reason
			}
			r.sendUnsafe(playerID, protocol.GameResults(r.computeResultsUnsafe(reason)))
		}
	}

	r.broadcastExceptUnsafe(playerID, protocol.New(protocol.TypePlayerReconnected, protocol.Message{
		"playerId":   playerID,
		"playerName": p.Name,
	}))
	r.log.WithField("player", playerID).Info("player reconnected")
	r.settleUnsafe()
	return nil
}

// rejoinContextUnsafe is everything a returning client needs to rebuild its view.
func (r *Room) rejoinContextUnsafe(p *models.Player) protocol.Message {
	msg := protocol.Message{
		"roomId":       r.Code,
		"playerId":     p.ID,
		"playerName":   p.Name,
		"isHost":       p.IsHost,
		"hostId":       r.HostID,
		"players":      r.rosterUnsafe(),
		"readyPlayers": r.readyIDsUnsafe(),
		"settings":     r.Settings,
		"gameStatus":   "lobby",
	}
	if r.Game == nil {
		return protocol.New(protocol.TypeRoomRejoined, msg)
	}

	msg["gameStatus"] = r.Game.Status
	msg["sharedSecret"] = r.Game.Secret
	msg["maxAttempts"] = r.Game.MaxAttempts()
	if r.Game.Status == game.StatusPlaying || r.Game.Status == game.StatusFinished {
		msg["serverStartTime"] = r.Game.StartTime.UnixMilli()
	}
	msg["attempts"] = []game.Attempt{}
	msg["finished"] = false
	msg["won"] = false
	if pd, ok := r.Game.Players[p.ID]; ok {
		msg["attempts"] = pd.Attempts
		msg["finished"] = pd.Finished
		msg["won"] = pd.Won
	}
	if rs := r.Game.Rematch; rs != nil {
		msg["rematch"] = protocol.Message{
			"requestedBy": rs.RequestedBy,
			"votes":       rs.Tally(),
			"countdown":   rs.Countdown,
		}
	}
	return protocol.New(protocol.TypeRoomRejoined, msg)
}
