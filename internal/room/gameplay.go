// internal/room/gameplay.go
package room

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/jason-s-yu/codebreak/internal/protocol"
	"github.com/sirupsen/logrus"
)

// CardPlay is a use_card request.
type CardPlay struct {
	TargetPlayerID string
	CardType       string
	CardID         string
	EffectDuration *int
	EffectValue    *int
}

// newSessionUnsafe replaces the current session with a fresh one for every
// connected member.
func (r *Room) newSessionUnsafe(now time.Time) {
	r.stopRoundTimerUnsafe()
	r.stopRematchTimerUnsafe()
	secret := game.GenerateSecret(r.opts.Random, r.Settings.NumDigits)
	r.Game = game.NewSession(uuid.NewString(), secret, r.Settings, r.activeIDsUnsafe(), now)
}

// StartGame starts a new session. Only the host may start, with at least two
// connected members and either forceStart, a restart after a finished game, or
// two ready members (the host always counts as ready).
func (r *Room) StartGame(playerID string, forceStart, isRestart bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if playerID != r.HostID {
		return models.ErrNotHost
	}
	restarting := false
	if r.Game != nil {
		switch r.Game.Status {
		case game.StatusPreGameChallenge, game.StatusPlaying:
			return models.ErrGameInProgress
		case game.StatusFinished:
			restarting = isRestart
		}
	}
	if len(r.Players) < 2 {
		return models.ErrNotEnoughPlayers
	}
	if !forceStart && !restarting && r.effectiveReadyUnsafe() < 2 {
		return models.ErrNotEnoughReady
	}

	now := r.now()
	r.newSessionUnsafe(now)
	r.clearAllReadyUnsafe()
	r.recordUnsafe(playerID, ActionGameStarted, map[string]interface{}{
		"players":       r.activeIDsUnsafe(),
		"num_digits":    r.Settings.NumDigits,
		"max_attempts":  r.Settings.MaxAttempts,
		"cards_enabled": r.Settings.CardsEnabled,
		"forced":        forceStart,
		"restart":       restarting,
	})

	msg := protocol.Message{
		"sharedSecret": r.Game.Secret,
		"settings":     r.Settings,
		"players":      r.rosterUnsafe(),
	}
	if r.Settings.CardsEnabled {
		r.Game.EnterChallenge()
		msg["status"] = r.Game.Status
		msg["selectedChallenge"] = r.Settings.SelectedChallenge
	} else {
		r.beginPlayingUnsafe(now)
		msg["status"] = r.Game.Status
		msg["serverStartTime"] = now.UnixMilli()
	}
	r.broadcastUnsafe(protocol.New(protocol.TypeGameStarted, msg))

	r.log.WithFields(logrus.Fields{
		"game":   r.Game.ID,
		"status": r.Game.Status,
		"forced": forceStart,
	}).Info("game started")
	return nil
}

// beginPlayingUnsafe moves the session into play and schedules a fresh round timer.
func (r *Room) beginPlayingUnsafe(now time.Time) {
	r.Game.BeginPlaying(now)
	r.startRoundTimerUnsafe()
}

func (r *Room) startRoundTimerUnsafe() {
	r.stopRoundTimerUnsafe()
	sessionID := r.Game.ID
	d := time.Duration(r.Settings.CardSettings.RoundDuration) * r.opts.RoundUnit

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.roundExpiredUnsafe(sessionID, t)
	})
	r.roundTimer = t
}

// roundExpiredUnsafe runs when a round timer fires. A timer that was superseded
// by a newer session or timer does nothing.
func (r *Room) roundExpiredUnsafe(sessionID string, t *time.Timer) {
	if r.closed || r.roundTimer != t || r.Game == nil || r.Game.ID != sessionID {
		return
	}
	r.roundTimer = nil
	if !r.Game.ExpireRound(r.now()) {
		return
	}
	r.log.WithField("game", sessionID).Info("round time expired")
	r.announceFinishUnsafe(game.ReasonTimeExpired)
}

// finishGameUnsafe ends the session once every participant has finished.
func (r *Room) finishGameUnsafe(reason string) {
	r.stopRoundTimerUnsafe()
	if !r.Game.Finish(r.now()) {
		return
	}
	r.announceFinishUnsafe(reason)
}

func (r *Room) announceFinishUnsafe(reason string) {
	res := r.computeResultsUnsafe(reason)
	r.broadcastUnsafe(protocol.GameResults(res))

	winners := make([]string, len(res.Winners))
	for i, w := range res.Winners {
		winners[i] = w.PlayerID
	}
	r.recordUnsafe("", ActionGameFinished, map[string]interface{}{
		"reason":        reason,
		"winners":       winners,
		"shared_secret": res.SharedSecret,
	})
	r.log.WithFields(logrus.Fields{
		"game":    r.Game.ID,
		"reason":  reason,
		"winners": len(res.Winners),
	}).Info("game finished")
}

func (r *Room) computeResultsUnsafe(reason string) *game.Results {
	order, names := r.namesUnsafe()
	return r.Game.ComputeResults(order, names, reason, r.now())
}

// CompleteChallenge records that playerID finished the pre-game challenge.
func (r *Room) CompleteChallenge(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Game == nil {
		return models.ErrNoGame
	}
	if err := r.Game.CompleteChallenge(playerID); err != nil {
		return err
	}
	r.checkChallengesUnsafe()
	return nil
}

// checkChallengesUnsafe starts play once every connected participant has
// completed the challenge.
func (r *Room) checkChallengesUnsafe() {
	var members []string
	for _, p := range r.Players {
		if _, ok := r.Game.Players[p.ID]; ok {
			members = append(members, p.ID)
		}
	}
	if !r.Game.ChallengesReady(members) {
		return
	}
	now := r.now()
	r.beginPlayingUnsafe(now)
	r.broadcastUnsafe(protocol.New(protocol.TypeGameStarting, protocol.Message{
		"serverStartTime": now.UnixMilli(),
	}))
	r.log.WithField("game", r.Game.ID).Info("challenges completed, round started")
}

// SubmitGuess records a guess for playerID.
func (r *Room) SubmitGuess(playerID string, guess []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Game == nil {
		return models.ErrNoGame
	}
	attempt, pd, err := r.Game.SubmitGuess(playerID, guess, r.now())
	if err != nil {
		return err
	}
	if pd == nil {
		r.log.WithField("player", playerID).Debug("guess from player without game data ignored")
		return nil
	}

	used := len(pd.Attempts)
	maxAttempts := r.Game.MaxAttempts()
	r.sendUnsafe(playerID, protocol.New(protocol.TypeGuessResult, protocol.Message{
		"guess":                attempt.Guess,
		"correctCount":         attempt.CorrectCount,
		"correctPositionCount": attempt.CorrectPositionCount,
		"attemptNumber":        used,
		"attemptsRemaining":    maxAttempts - used,
		"won":                  pd.Won,
		"finished":             pd.Finished,
	}))

	name := ""
	if p, ok := r.memberUnsafe(playerID); ok {
		name = p.Name
	}
	r.broadcastExceptUnsafe(playerID, protocol.New(protocol.TypePlayerAttempt, protocol.Message{
		"playerId":             playerID,
		"playerName":           name,
		"attemptNumber":        used,
		"correctCount":         attempt.CorrectCount,
		"correctPositionCount": attempt.CorrectPositionCount,
		"won":                  pd.Won,
		"finished":             pd.Finished,
	}))
	r.recordUnsafe(playerID, ActionGuess, map[string]interface{}{
		"guess":                  attempt.Guess,
		"correct_count":          attempt.CorrectCount,
		"correct_position_count": attempt.CorrectPositionCount,
		"attempt_number":         used,
	})

	if !pd.Finished {
		return nil
	}
	if !pd.Won {
		r.sendUnsafe(playerID, protocol.New(protocol.TypeMaxAttemptsReached, protocol.Message{
			"maxAttempts": maxAttempts,
		}))
	}
	r.recordUnsafe(playerID, ActionPlayerFinished, map[string]interface{}{
		"won":         pd.Won,
		"attempts":    used,
		"duration_ms": pd.Duration(r.now()).Milliseconds(),
	})

	if r.Game.AllFinished() {
		r.finishGameUnsafe(game.ReasonAllFinished)
		return nil
	}

	// partial standings go to everyone who can no longer play
	res := r.computeResultsUnsafe(game.ReasonPlayerFinished)
	msg := protocol.GameResults(res)
	for _, p := range r.Players {
		if data, ok := r.Game.Players[p.ID]; ok && data.Finished {
			r.sendUnsafe(p.ID, msg)
		}
	}
	return nil
}

// AttemptDetails sends targetID's attempt history to playerID. Histories stay
// hidden until the requester has finished or the game is over.
func (r *Room) AttemptDetails(playerID, targetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Game == nil {
		return models.ErrNoGame
	}
	target, ok := r.Game.Players[targetID]
	if !ok {
		return models.ErrPlayerNotFound
	}
	own := r.Game.Players[playerID]
	visible := r.Game.Status == game.StatusFinished ||
		playerID == targetID ||
		(own != nil && own.Finished)
	if !visible {
		return models.ErrDetailsHidden
	}

	name := ""
	if p, ok := r.memberUnsafe(targetID); ok {
		name = p.Name
	}
	r.sendUnsafe(playerID, protocol.New(protocol.TypePlayerDetails, protocol.Message{
		"playerId":   targetID,
		"playerName": name,
		"attempts":   target.Attempts,
		"won":        target.Won,
		"finished":   target.Finished,
		"durationMs": target.Duration(r.now()).Milliseconds(),
	}))
	return nil
}

// UseCard plays a card from playerID.
func (r *Room) UseCard(playerID string, play CardPlay) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Game == nil || r.Game.Status != game.StatusPlaying {
		return models.ErrNotPlaying
	}
	if !r.Settings.CardsEnabled {
		return models.ErrCardsDisabled
	}
	if !r.Settings.CardAllowed(play.CardType) {
		return models.ErrCardNotAllowed
	}
	pd, ok := r.Game.Players[playerID]
	if !ok {
		r.log.WithField("player", playerID).Debug("card from player without game data ignored")
		return nil
	}
	if pd.Finished {
		return models.ErrAlreadyFinished
	}
	if pd.UsedCards[play.CardID] {
		return models.ErrCardAlreadyUsed
	}
	if len(pd.UsedCards) >= r.Settings.CardSettings.CardsPerPlayer {
		return models.ErrNoCardsLeft
	}
	if play.TargetPlayerID != "" {
		if play.TargetPlayerID == playerID {
			return models.ErrInvalidTarget
		}
		target, ok := r.Game.Players[play.TargetPlayerID]
		if !ok || target.Finished {
			return models.ErrInvalidTarget
		}
	}

	pd.UsedCards[play.CardID] = true
	name := ""
	if p, ok := r.memberUnsafe(playerID); ok {
		name = p.Name
	}
	msg := protocol.Message{
		"playerId":       playerID,
		"playerName":     name,
		"cardType":       play.CardType,
		"cardId":         play.CardID,
		"cardsRemaining": r.Settings.CardSettings.CardsPerPlayer - len(pd.UsedCards),
	}
	if play.TargetPlayerID != "" {
		msg["targetPlayerId"] = play.TargetPlayerID
	}
	if play.EffectDuration != nil {
		msg["effectDuration"] = *play.EffectDuration
	}
	if play.EffectValue != nil {
		msg["effectValue"] = *play.EffectValue
	}
	r.broadcastUnsafe(protocol.New(protocol.TypeCardUsed, msg))
	return nil
}
