// internal/room/membership.go
package room

import (
	"github.com/jason-s-yu/codebreak/internal/auth"
	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/jason-s-yu/codebreak/internal/protocol"
	"github.com/sirupsen/logrus"
)

// member is a player about to be added to a room.
type member struct {
	ID    string
	Name  string
	Token string
}

func (r *Room) addPlayerUnsafe(m member, isHost bool) *models.Player {
	r.joinSeq++
	p := &models.Player{
		ID:          m.ID,
		Name:        m.Name,
		IsHost:      isHost,
		Connected:   true,
		TokenDigest: auth.Digest(m.Token),
		JoinSeq:     r.joinSeq,
	}
	r.Players = append(r.Players, p)
	if isHost {
		r.HostID = p.ID
	}
	if r.hooks.added != nil {
		r.hooks.added(p.ID)
	}
	return p
}

func (r *Room) welcomeUnsafe(typ string, p *models.Player, token string) {
	r.sendUnsafe(p.ID, protocol.New(typ, protocol.Message{
		"roomId":       r.Code,
		"playerId":     p.ID,
		"playerName":   p.Name,
		"sessionToken": token,
		"isHost":       p.IsHost,
		"hostId":       r.HostID,
		"players":      r.rosterUnsafe(),
		"readyPlayers": r.readyIDsUnsafe(),
		"settings":     r.Settings,
	}))
}

// openUnsafe seats the creator as host of a fresh room.
func (r *Room) openUnsafe(m member, attach func(playerID string)) {
	p := r.addPlayerUnsafe(m, true)
	if attach != nil {
		attach(p.ID)
	}
	r.welcomeUnsafe(protocol.TypeRoomCreated, p, m.Token)
	r.recordUnsafe(p.ID, ActionRoomCreated, map[string]interface{}{
		"host_name": p.Name,
		"settings":  r.Settings,
	})
	r.log.WithField("player", p.ID).Info("room created")
}

// Join adds a new player. Joining is only possible between games.
func (r *Room) Join(m member, attach func(playerID string)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return models.ErrRoomNotFound
	}
	if r.Game != nil {
		switch r.Game.Status {
		case game.StatusFinished:
			return models.ErrGameEnded
		default:
			return models.ErrGameInProgress
		}
	}
	if r.memberCountUnsafe() >= MaxPlayers {
		return models.ErrRoomFull
	}

	p := r.addPlayerUnsafe(m, false)
	if attach != nil {
		attach(p.ID)
	}
	r.welcomeUnsafe(protocol.TypeRoomJoined, p, m.Token)
	r.broadcastExceptUnsafe(p.ID, protocol.New(protocol.TypePlayersUpdated, protocol.Message{
		"players": r.rosterUnsafe(),
		"hostId":  r.HostID,
	}))
	r.log.WithFields(logrus.Fields{"player": p.ID, "members": r.memberCountUnsafe()}).Info("player joined")
	return nil
}

// dropPlayerUnsafe removes playerID from the room and its session and hands host
// rights on. When the last member goes the room is closed. Callers announce the
// removal themselves and then call settleUnsafe.
func (r *Room) dropPlayerUnsafe(playerID string) (*models.Player, bool) {
	var removed *models.Player
	if i := r.findActiveUnsafe(playerID); i >= 0 {
		removed = r.Players[i]
		r.Players = append(r.Players[:i], r.Players[i+1:]...)
		if len(r.Players) == 0 {
			r.idleSince = r.now()
		}
	} else if dp, ok := r.Disconnected[playerID]; ok {
		removed = dp.Player
		delete(r.Disconnected, playerID)
	} else {
		return nil, false
	}

	if r.Game != nil {
		r.Game.RemovePlayer(playerID)
	}
	r.notify.Release(playerID)
	if r.hooks.removed != nil {
		r.hooks.removed(playerID)
	}

	if r.memberCountUnsafe() == 0 {
		r.closeUnsafe("empty")
		return removed, true
	}
	if removed.IsHost {
		removed.IsHost = false
		r.succeedHostUnsafe(removed.ID)
	}
	return removed, true
}

// succeedHostUnsafe makes the earliest connected member host, or the earliest
// disconnected one when nobody is connected.
func (r *Room) succeedHostUnsafe(previous string) {
	var next *models.Player
	if len(r.Players) > 0 {
		next = r.Players[0]
	} else if members := r.membersUnsafe(); len(members) > 0 {
		next = members[0]
	}
	if next == nil {
		return
	}
	next.IsHost = true
	r.HostID = next.ID
	r.broadcastUnsafe(protocol.New(protocol.TypeHostChanged, protocol.Message{
		"hostId":         next.ID,
		"hostName":       next.Name,
		"previousHostId": previous,
	}))
	r.log.WithFields(logrus.Fields{"from": previous, "to": next.ID}).Info("host reassigned")
}

// settleUnsafe refreshes every client's roster and re-runs the checks that
// depend on who is present.
func (r *Room) settleUnsafe() {
	if r.closed {
		return
	}
	r.playersUpdatedUnsafe()
	if r.Game == nil {
		return
	}
	switch r.Game.Status {
	case game.StatusPreGameChallenge:
		r.checkChallengesUnsafe()
	case game.StatusPlaying:
		if r.Game.AllFinished() {
			r.finishGameUnsafe(game.ReasonAllFinished)
		}
	}
}

// Leave removes playerID at its own request.
func (r *Room) Leave(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.dropPlayerUnsafe(playerID); !ok {
		return models.ErrNotInRoom
	}
	r.log.WithField("player", playerID).Info("player left")
	r.settleUnsafe()
	return nil
}

// Kick removes targetID. Only the host may kick, and never itself.
func (r *Room) Kick(hostID, targetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if hostID != r.HostID {
		return models.ErrNotHost
	}
	if targetID == hostID {
		return models.ErrCannotKickSelf
	}
	target, ok := r.memberUnsafe(targetID)
	if !ok {
		return models.ErrPlayerNotFound
	}

	r.sendUnsafe(targetID, protocol.New(protocol.TypeKickedFromRoom, protocol.Message{
		"roomId": r.Code,
		"reason": "kicked",
	}))
	r.recordUnsafe(hostID, ActionPlayerKicked, map[string]interface{}{"player_id": targetID})
	r.dropPlayerUnsafe(targetID)
	r.broadcastUnsafe(protocol.New(protocol.TypePlayerKicked, protocol.Message{
		"playerId":   targetID,
		"playerName": target.Name,
	}))
	r.log.WithField("player", targetID).Info("player kicked")
	r.settleUnsafe()
	return nil
}

// TransferHost hands host rights from currentHostID to newHostID.
func (r *Room) TransferHost(currentHostID, newHostID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if currentHostID != r.HostID {
		return models.ErrNotHost
	}
	next, ok := r.memberUnsafe(newHostID)
	if !ok {
		return models.ErrPlayerNotFound
	}
	if newHostID == currentHostID {
		return nil
	}
	if prev, ok := r.memberUnsafe(currentHostID); ok {
		prev.IsHost = false
	}
	next.IsHost = true
	r.HostID = next.ID

	r.broadcastUnsafe(protocol.New(protocol.TypeHostChanged, protocol.Message{
		"hostId":         next.ID,
		"hostName":       next.Name,
		"previousHostId": currentHostID,
	}))
	r.playersUpdatedUnsafe()
	return nil
}

// ToggleReady flips playerID's ready flag. Only the server's current value is
// trusted.
func (r *Room) ToggleReady(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.findActiveUnsafe(playerID)
	if i < 0 {
		return models.ErrNotInRoom
	}
	r.Players[i].IsReady = !r.Players[i].IsReady
	r.readyUpdatedUnsafe()
	return nil
}

// clearAllReadyUnsafe resets every member's ready flag.
func (r *Room) clearAllReadyUnsafe() {
	for _, p := range r.membersUnsafe() {
		p.IsReady = false
	}
	r.readyUpdatedUnsafe()
}

// effectiveReadyUnsafe counts ready members, with the host always counted.
func (r *Room) effectiveReadyUnsafe() int {
	n := 0
	for _, p := range r.Players {
		if p.IsReady || p.ID == r.HostID {
			n++
		}
	}
	return n
}

// NotifyReady nudges every connected member that is not ready yet.
func (r *Room) NotifyReady(hostID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if hostID != r.HostID {
		return models.ErrNotHost
	}
	host, ok := r.memberUnsafe(hostID)
	if !ok {
		return models.ErrNotInRoom
	}
	msg := protocol.New(protocol.TypeReadyNotification, protocol.Message{
		"hostId":   hostID,
		"hostName": host.Name,
	})
	for _, p := range r.Players {
		if !p.IsReady && p.ID != hostID {
			r.sendUnsafe(p.ID, msg)
		}
	}
	return nil
}

// UpdateSettings merges patch into the room settings. Settings are locked while a
// round is being played.
func (r *Room) UpdateSettings(playerID string, patch game.SettingsPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if playerID != r.HostID {
		return models.ErrNotHost
	}
	if r.Game != nil && r.Game.Status == game.StatusPlaying {
		return models.ErrSettingsLocked
	}
	merged, err := r.Settings.Merge(patch)
	if err != nil {
		return err
	}
	r.Settings = merged
	r.broadcastUnsafe(protocol.New(protocol.TypeSettingsUpdated, protocol.Message{
		"settings": r.Settings,
	}))
	return nil
}
