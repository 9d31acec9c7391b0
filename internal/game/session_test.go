// internal/game/session_test.go
package game

import (
	"testing"
	"time"

	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRandom returns the given values in order, cycling when exhausted.
type fixedRandom struct {
	vals []int
	i    int
}

func (f *fixedRandom) Intn(n int) int {
	v := f.vals[f.i%len(f.vals)] % n
	f.i++
	return v
}

func newPlayingSession(t *testing.T, secret []int, maxAttempts int, players ...string) (*Session, time.Time) {
	t.Helper()
	settings := DefaultSettings()
	settings.NumDigits = len(secret)
	settings.MaxAttempts = maxAttempts
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("game-1", secret, settings, players, start)
	s.BeginPlaying(start)
	return s, start
}

func TestGenerateSecret(t *testing.T) {
	secret := GenerateSecret(&fixedRandom{vals: []int{3, 3, 9, 0}}, 4)
	assert.Equal(t, []int{3, 3, 9, 0}, secret)

	for i := 0; i < 100; i++ {
		s := GenerateSecret(CryptoRandom{}, 6)
		require.Len(t, s, 6)
		assert.True(t, ValidDigits(s, 6))
	}
}

func TestSubmitGuessWin(t *testing.T) {
	s, start := newPlayingSession(t, []int{1, 2, 3, 4}, 5, "a", "b")

	attempt, pd, err := s.SubmitGuess("a", []int{1, 2, 3, 4}, start.Add(10*time.Second))
	require.NoError(t, err)
	require.NotNil(t, pd)
	assert.Equal(t, 4, attempt.CorrectPositionCount)
	assert.True(t, pd.Won)
	assert.True(t, pd.Finished)
	assert.Equal(t, 10*time.Second, pd.Duration(start.Add(time.Hour)))

	_, _, err = s.SubmitGuess("a", []int{1, 2, 3, 4}, start.Add(11*time.Second))
	assert.ErrorIs(t, err, models.ErrAlreadyFinished)
	assert.False(t, s.AllFinished())
}

func TestSubmitGuessExhaustsAttempts(t *testing.T) {
	s, start := newPlayingSession(t, []int{1, 2, 3, 4}, 2, "a")

	_, pd, err := s.SubmitGuess("a", []int{0, 0, 0, 0}, start)
	require.NoError(t, err)
	assert.False(t, pd.Finished)

	_, pd, err = s.SubmitGuess("a", []int{0, 0, 0, 1}, start)
	require.NoError(t, err)
	assert.True(t, pd.Finished)
	assert.False(t, pd.Won)
	assert.Len(t, pd.Attempts, 2)
	assert.True(t, s.AllFinished())
}

func TestSubmitGuessRejections(t *testing.T) {
	s, start := newPlayingSession(t, []int{1, 2, 3, 4}, 3, "a")

	_, _, err := s.SubmitGuess("a", []int{1, 2, 3}, start)
	assert.ErrorIs(t, err, models.ErrInvalidGuess)
	_, _, err = s.SubmitGuess("a", []int{1, 2, 3, 10}, start)
	assert.ErrorIs(t, err, models.ErrInvalidGuess)

	// unknown player is ignored silently
	_, pd, err := s.SubmitGuess("ghost", []int{1, 2, 3, 4}, start)
	assert.NoError(t, err)
	assert.Nil(t, pd)

	// attempts list is full but the finished flag was lost: still rejected
	s.Players["a"].Attempts = make([]Attempt, 3)
	_, _, err = s.SubmitGuess("a", []int{1, 2, 3, 4}, start)
	assert.ErrorIs(t, err, models.ErrNoAttemptsLeft)

	s.Status = StatusFinished
	_, _, err = s.SubmitGuess("a", []int{1, 2, 3, 4}, start)
	assert.ErrorIs(t, err, models.ErrNotPlaying)
}

func TestChallengePhase(t *testing.T) {
	start := time.Now()
	s := NewSession("g", []int{1, 2, 3, 4}, DefaultSettings(), []string{"a", "b"}, start)

	err := s.CompleteChallenge("a")
	assert.ErrorIs(t, err, models.ErrNotInChallenge)

	s.EnterChallenge()
	assert.Equal(t, StatusPreGameChallenge, s.Status)
	members := []string{"a", "b"}

	require.NoError(t, s.CompleteChallenge("a"))
	assert.False(t, s.ChallengesReady(members))
	require.NoError(t, s.CompleteChallenge("a"))
	assert.False(t, s.ChallengesReady(members), "completing twice counts once")
	require.NoError(t, s.CompleteChallenge("b"))
	assert.True(t, s.ChallengesReady(members))
	assert.True(t, s.ChallengesReady([]string{"b"}), "only current members matter")

	later := start.Add(30 * time.Second)
	s.BeginPlaying(later)
	assert.Equal(t, StatusPlaying, s.Status)
	assert.Equal(t, later, s.Players["a"].StartTime)
}

func TestExpireRoundIsIdempotent(t *testing.T) {
	s, start := newPlayingSession(t, []int{1, 2, 3, 4}, 5, "a", "b")
	_, _, err := s.SubmitGuess("a", []int{1, 2, 3, 4}, start.Add(time.Second))
	require.NoError(t, err)

	end := start.Add(5 * time.Minute)
	assert.True(t, s.ExpireRound(end))
	assert.Equal(t, StatusFinished, s.Status)
	assert.True(t, s.Players["a"].Won, "winner keeps the win")
	assert.True(t, s.Players["b"].Finished)
	assert.False(t, s.Players["b"].Won)
	assert.Equal(t, end, s.Players["b"].EndTime)

	assert.False(t, s.ExpireRound(end.Add(time.Second)), "second expiry is a no-op")
	assert.Equal(t, end, s.EndTime)
}

func TestComputeResultsOrdering(t *testing.T) {
	s, start := newPlayingSession(t, []int{1, 2, 3, 4}, 3, "a", "b", "c", "d", "e")
	miss := []int{9, 9, 9, 9}
	win := []int{1, 2, 3, 4}

	// b wins in 1 attempt after 20s, c wins in 1 attempt after 10s, a wins in 2 attempts
	_, _, _ = s.SubmitGuess("b", win, start.Add(20*time.Second))
	_, _, _ = s.SubmitGuess("c", win, start.Add(10*time.Second))
	_, _, _ = s.SubmitGuess("a", miss, start.Add(1*time.Second))
	_, _, _ = s.SubmitGuess("a", win, start.Add(2*time.Second))
	// d loses quickly, e is still playing
	for i := 0; i < 3; i++ {
		_, _, _ = s.SubmitGuess("d", miss, start.Add(time.Duration(i+1)*time.Second))
	}
	_, _, _ = s.SubmitGuess("e", miss, start.Add(time.Second))

	names := map[string]string{"a": "Ann", "b": "Bob", "c": "Cat", "d": "Dan", "e": "Eve"}
	res := s.ComputeResults([]string{"a", "b", "c", "d", "e"}, names, ReasonPlayerFinished, start.Add(time.Minute))

	require.Len(t, res.Winners, 3)
	assert.Equal(t, "c", res.Winners[0].PlayerID)
	assert.Equal(t, 1, res.Winners[0].Rank)
	assert.Equal(t, "b", res.Winners[1].PlayerID)
	assert.Equal(t, 2, res.Winners[1].Rank)
	assert.Equal(t, "a", res.Winners[2].PlayerID)
	assert.Equal(t, 3, res.Winners[2].Rank)
	assert.Equal(t, "Cat", res.Winners[0].Name)

	require.Len(t, res.Losers, 1)
	assert.Equal(t, "d", res.Losers[0].PlayerID)
	assert.Zero(t, res.Losers[0].Rank)
	require.Len(t, res.StillPlaying, 1)
	assert.Equal(t, "e", res.StillPlaying[0].PlayerID)

	assert.Equal(t, []int{1, 2, 3, 4}, res.SharedSecret)
	assert.Same(t, res, s.LastResults)
}

func TestComputeResultsLosersByDuration(t *testing.T) {
	s, start := newPlayingSession(t, []int{1, 2, 3, 4}, 1, "a", "b")
	_, _, _ = s.SubmitGuess("a", []int{0, 0, 0, 0}, start.Add(5*time.Second))
	_, _, _ = s.SubmitGuess("b", []int{0, 0, 0, 0}, start.Add(50*time.Second))

	res := s.ComputeResults([]string{"a", "b"}, nil, ReasonAllFinished, start.Add(time.Minute))
	require.Len(t, res.Losers, 2)
	assert.Equal(t, "b", res.Losers[0].PlayerID, "longer survival ranks first among losers")
}

func TestRematchState(t *testing.T) {
	r := NewRematch("a", 10)
	members := []string{"a", "b", "c"}
	assert.Equal(t, 1, r.Accepted(members))
	assert.False(t, r.Passed(members))
	r.Vote("b", false)
	assert.False(t, r.Passed(members))
	r.Vote("b", true)
	assert.True(t, r.Passed(members))
	assert.False(t, r.Passed([]string{"b", "c"}), "votes of absent members do not count")

	tally := r.Tally()
	tally["c"] = true
	assert.NotContains(t, r.Votes, "c")
}

func TestRemovePlayer(t *testing.T) {
	s, _ := newPlayingSession(t, []int{1, 2, 3, 4}, 3, "a", "b")
	s.Rematch = NewRematch("b", 10)
	s.RemovePlayer("b")
	assert.NotContains(t, s.Players, "b")
	assert.NotContains(t, s.Rematch.Votes, "b")
}
