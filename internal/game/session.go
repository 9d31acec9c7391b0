// internal/game/session.go
package game

import (
	"time"

	"github.com/jason-s-yu/codebreak/internal/models"
)

// Status is the state of a game session.
type Status string

const (
	StatusWaiting          Status = "waiting"
	StatusPreGameChallenge Status = "pre_game_challenge"
	StatusPlaying          Status = "playing"
	StatusFinished         Status = "finished"
)

// Attempt is one recorded guess and its feedback. Attempts are never modified once recorded.
type Attempt struct {
	Guess                []int     `json:"guess"`
	CorrectCount         int       `json:"correctCount"`
	CorrectPositionCount int       `json:"correctPositionCount"`
	Timestamp            time.Time `json:"timestamp"`
}

// PlayerGameData is one participant's progress in a session.
// Finished never reverts to false and Won implies Finished.
type PlayerGameData struct {
	Attempts  []Attempt       `json:"attempts"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime,omitempty"`
	Won       bool            `json:"won"`
	Finished  bool            `json:"finished"`
	UsedCards map[string]bool `json:"-"`
}

// Duration is how long the player has played, up to EndTime when finished.
func (pd *PlayerGameData) Duration(now time.Time) time.Duration {
	end := now
	if pd.Finished {
		end = pd.EndTime
	}
	if end.Before(pd.StartTime) {
		return 0
	}
	return end.Sub(pd.StartTime)
}

// Session is the state machine for one round of play. It holds no lock;
// the owning room serializes every call.
type Session struct {
	ID                  string
	Secret              []int
	Status              Status
	Players             map[string]*PlayerGameData
	StartTime           time.Time
	EndTime             time.Time
	ChallengesCompleted map[string]bool
	LastResults         *Results
	Rematch             *RematchState

	numDigits   int
	maxAttempts int
}

// NewSession creates a session in the waiting state for the given participants.
func NewSession(id string, secret []int, settings RoomSettings, playerIDs []string, now time.Time) *Session {
	s := &Session{
		ID:                  id,
		Secret:              append([]int{}, secret...),
		Status:              StatusWaiting,
		Players:             make(map[string]*PlayerGameData, len(playerIDs)),
		StartTime:           now,
		ChallengesCompleted: make(map[string]bool),
		numDigits:           settings.NumDigits,
		maxAttempts:         settings.MaxAttempts,
	}
	for _, id := range playerIDs {
		s.Players[id] = &PlayerGameData{
			Attempts:  []Attempt{},
			StartTime: now,
			UsedCards: make(map[string]bool),
		}
	}
	return s
}

// MaxAttempts is the attempt limit captured when the session was created.
func (s *Session) MaxAttempts() int { return s.maxAttempts }

// EnterChallenge moves a waiting session into the pre-game challenge phase.
func (s *Session) EnterChallenge() {
	if s.Status == StatusWaiting {
		s.Status = StatusPreGameChallenge
	}
}

// BeginPlaying starts the round. Every participant's clock starts at now.
func (s *Session) BeginPlaying(now time.Time) {
	s.Status = StatusPlaying
	s.StartTime = now
	for _, pd := range s.Players {
		pd.StartTime = now
	}
}

// CompleteChallenge records that playerID finished the pre-game challenge.
func (s *Session) CompleteChallenge(playerID string) error {
	if s.Status != StatusPreGameChallenge {
		return models.ErrNotInChallenge
	}
	if _, ok := s.Players[playerID]; ok {
		s.ChallengesCompleted[playerID] = true
	}
	return nil
}

// ChallengesReady reports whether every id in members has completed the challenge.
func (s *Session) ChallengesReady(members []string) bool {
	if s.Status != StatusPreGameChallenge || len(members) == 0 {
		return false
	}
	for _, id := range members {
		if !s.ChallengesCompleted[id] {
			return false
		}
	}
	return true
}

// SubmitGuess records an attempt for playerID. A nil PlayerGameData with a nil error
// means the player has no data in this session and the guess was ignored.
func (s *Session) SubmitGuess(playerID string, guess []int, now time.Time) (Attempt, *PlayerGameData, error) {
	if s.Status != StatusPlaying {
		return Attempt{}, nil, models.ErrNotPlaying
	}
	pd, ok := s.Players[playerID]
	if !ok {
		return Attempt{}, nil, nil
	}
	if pd.Finished {
		return Attempt{}, nil, models.ErrAlreadyFinished
	}
	if len(pd.Attempts) >= s.maxAttempts {
		return Attempt{}, nil, models.ErrNoAttemptsLeft
	}
	if !ValidDigits(guess, len(s.Secret)) {
		return Attempt{}, nil, models.ErrInvalidGuess
	}

	fb := Evaluate(s.Secret, guess)
	attempt := Attempt{
		Guess:                append([]int{}, guess...),
		CorrectCount:         fb.CorrectCount,
		CorrectPositionCount: fb.CorrectPositionCount,
		Timestamp:            now,
	}
	pd.Attempts = append(pd.Attempts, attempt)

	if fb.CorrectPositionCount == len(s.Secret) {
		pd.Won = true
	}
	if pd.Won || len(pd.Attempts) >= s.maxAttempts {
		pd.Finished = true
		pd.EndTime = now
	}
	return attempt, pd, nil
}

// AllFinished reports whether every participant has finished.
func (s *Session) AllFinished() bool {
	for _, pd := range s.Players {
		if !pd.Finished {
			return false
		}
	}
	return true
}

// Finish marks the session finished. It returns false if it already was.
func (s *Session) Finish(now time.Time) bool {
	if s.Status == StatusFinished {
		return false
	}
	s.Status = StatusFinished
	s.EndTime = now
	return true
}

// ExpireRound force-finishes every unfinished participant as a loss and finishes the
// session. It is a no-op returning false unless the session is playing.
func (s *Session) ExpireRound(now time.Time) bool {
	if s.Status != StatusPlaying {
		return false
	}
	for _, pd := range s.Players {
		if !pd.Finished {
			pd.Finished = true
			pd.Won = false
			pd.EndTime = now
		}
	}
	return s.Finish(now)
}

// RemovePlayer drops every trace of playerID from the session.
func (s *Session) RemovePlayer(playerID string) {
	delete(s.Players, playerID)
	delete(s.ChallengesCompleted, playerID)
	if s.Rematch != nil {
		delete(s.Rematch.Votes, playerID)
	}
}
