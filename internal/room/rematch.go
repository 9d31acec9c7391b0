// internal/room/rematch.go
package room

import (
	"time"

	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/jason-s-yu/codebreak/internal/protocol"
	"github.com/sirupsen/logrus"
)

// RequestRematch opens a rematch vote on a finished game and starts the countdown.
func (r *Room) RequestRematch(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findActiveUnsafe(playerID) < 0 {
		return models.ErrNotInRoom
	}
	if r.Game == nil || r.Game.Status != game.StatusFinished {
		return models.ErrRematchNotAllowed
	}
	if r.Game.Rematch != nil {
		return models.ErrRematchRequested
	}

	rs := game.NewRematch(playerID, r.opts.RematchCountdown)
	r.Game.Rematch = rs
	requester, _ := r.memberUnsafe(playerID)
	r.broadcastUnsafe(protocol.New(protocol.TypeRematchRequested, protocol.Message{
		"requestedBy":   playerID,
		"requesterName": requester.Name,
		"countdown":     rs.Countdown,
		"votes":         rs.Tally(),
	}))
	r.scheduleRematchTickUnsafe()
	r.log.WithField("player", playerID).Info("rematch requested")
	return nil
}

func (r *Room) scheduleRematchTickUnsafe() {
	sessionID := r.Game.ID
	var t *time.Timer
	t = time.AfterFunc(r.opts.RematchTick, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.rematchTickUnsafe(sessionID, t)
	})
	r.rematchTimer = t
}

// rematchTickUnsafe advances the countdown by one step. Stale ticks do nothing.
func (r *Room) rematchTickUnsafe(sessionID string, t *time.Timer) {
	if r.closed || r.rematchTimer != t || r.Game == nil || r.Game.ID != sessionID || r.Game.Rematch == nil {
		return
	}
	r.rematchTimer = nil

	rs := r.Game.Rematch
	rs.Countdown--
	r.broadcastUnsafe(protocol.New(protocol.TypeRematchCountdown, protocol.Message{
		"countdown":     rs.Countdown,
		"votes":         rs.Tally(),
		"acceptedCount": rs.Accepted(r.activeIDsUnsafe()),
	}))
	if rs.Countdown <= 0 {
		r.resolveRematchUnsafe()
		return
	}
	r.scheduleRematchTickUnsafe()
}

// VoteRematch records playerID's vote. Two accepting votes resolve the vote at once.
func (r *Room) VoteRematch(playerID string, accepted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findActiveUnsafe(playerID) < 0 {
		return models.ErrNotInRoom
	}
	if r.Game == nil || r.Game.Rematch == nil {
		return models.ErrNoRematchPending
	}

	rs := r.Game.Rematch
	rs.Vote(playerID, accepted)
	r.broadcastUnsafe(protocol.New(protocol.TypeRematchVoteUpdate, protocol.Message{
		"playerId":      playerID,
		"accepted":      accepted,
		"votes":         rs.Tally(),
		"acceptedCount": rs.Accepted(r.activeIDsUnsafe()),
		"countdown":     rs.Countdown,
	}))
	if rs.Passed(r.activeIDsUnsafe()) {
		r.resolveRematchUnsafe()
	}
	return nil
}

// resolveRematchUnsafe either starts the rematch or cancels it. Only votes of
// connected members count. A passing vote removes every connected member who
// did not accept, except the host.
func (r *Room) resolveRematchUnsafe() {
	r.stopRematchTimerUnsafe()
	rs := r.Game.Rematch
	votes := rs.Tally()
	accepted := rs.Accepted(r.activeIDsUnsafe())

	if accepted < game.MinRematchVotes {
		r.Game.Rematch = nil
		r.broadcastUnsafe(protocol.New(protocol.TypeRematchCancelled, protocol.Message{
			"votes":         votes,
			"acceptedCount": accepted,
		}))
		r.log.WithField("accepted", accepted).Info("rematch cancelled")
		return
	}

	declined := []string{}
	for _, p := range append([]*models.Player{}, r.Players...) {
		if p.ID == r.HostID || votes[p.ID] {
			continue
		}
		r.sendUnsafe(p.ID, protocol.New(protocol.TypeKickedFromRoom, protocol.Message{
			"roomId": r.Code,
			"reason": "rematch_declined",
		}))
		r.dropPlayerUnsafe(p.ID)
		declined = append(declined, p.ID)
	}

	now := r.now()
	r.newSessionUnsafe(now)
	r.clearAllReadyUnsafe()
	r.beginPlayingUnsafe(now)
	r.recordUnsafe(rs.RequestedBy, ActionRematchStarted, map[string]interface{}{
		"players":  r.activeIDsUnsafe(),
		"declined": declined,
	})

	r.broadcastUnsafe(protocol.New(protocol.TypeRematchStarting, protocol.Message{
		"sharedSecret":    r.Game.Secret,
		"settings":        r.Settings,
		"serverStartTime": now.UnixMilli(),
		"players":         r.rosterUnsafe(),
		"hostId":          r.HostID,
		"removed":         declined,
	}))
	r.playersUpdatedUnsafe()
	r.log.WithFields(logrus.Fields{
		"game":    r.Game.ID,
		"removed": len(declined),
	}).Info("rematch started")
}
