package room

import (
	"testing"
	"time"

	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/jason-s-yu/codebreak/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// finishedRoom plays a one-attempt game to the end: the host wins and everyone
// else misses.
func finishedRoom(t *testing.T, f *fixture, names ...string) (*Room, []Membership) {
	t.Helper()
	r, ms := f.lobby(t, names...)
	one := 1
	require.NoError(t, r.UpdateSettings(ms[0].PlayerID, game.SettingsPatch{MaxAttempts: &one}))
	require.NoError(t, r.StartGame(ms[0].PlayerID, true, false))
	secret := secretOf(r)
	require.NoError(t, r.SubmitGuess(ms[0].PlayerID, secret))
	for _, m := range ms[1:] {
		require.NoError(t, r.SubmitGuess(m.PlayerID, wrongGuess(secret)))
	}
	require.Equal(t, game.StatusFinished, statusOf(r))
	return r, ms
}

func TestRematchErrors(t *testing.T) {
	f := newFixture(t, Options{})
	r, ms := f.lobby(t, "Ann", "Bob")
	a, b := ms[0].PlayerID, ms[1].PlayerID

	assert.ErrorIs(t, r.RequestRematch(a), models.ErrRematchNotAllowed)
	assert.ErrorIs(t, r.VoteRematch(a, true), models.ErrNoRematchPending)
	require.NoError(t, r.StartGame(a, true, false))
	assert.ErrorIs(t, r.RequestRematch(a), models.ErrRematchNotAllowed)

	locked(r, func() bool { return r.Game.ExpireRound(r.now()) })
	assert.ErrorIs(t, r.VoteRematch(b, true), models.ErrNoRematchPending)
	require.NoError(t, r.RequestRematch(b))
	assert.ErrorIs(t, r.RequestRematch(a), models.ErrRematchRequested)
	assert.ErrorIs(t, r.RequestRematch("ghost"), models.ErrNotInRoom)

	msg, ok := f.notify.last(a, protocol.TypeRematchRequested)
	require.True(t, ok)
	assert.Equal(t, b, msg["requestedBy"])
	assert.Equal(t, 10, msg["countdown"])
}

func TestRematchEarlyAcceptStartsImmediately(t *testing.T) {
	f := newFixture(t, Options{RematchTick: time.Hour})
	r, ms := finishedRoom(t, f, "Ann", "Bob", "Cat")
	a, b, c := ms[0].PlayerID, ms[1].PlayerID, ms[2].PlayerID
	oldID := gameIDOf(r)

	require.NoError(t, r.RequestRematch(b))
	require.True(t, locked(r, func() bool { return r.rematchTimer != nil }))
	require.NoError(t, r.VoteRematch(a, true))

	assert.True(t, locked(r, func() bool { return r.rematchTimer == nil }), "countdown cancelled")
	assert.True(t, locked(r, func() bool { return r.roundTimer != nil }))
	assert.NotEqual(t, oldID, gameIDOf(r))
	assert.Equal(t, game.StatusPlaying, statusOf(r))

	kicked, ok := f.notify.last(c, protocol.TypeKickedFromRoom)
	require.True(t, ok)
	assert.Equal(t, "rematch_declined", kicked["reason"])
	_, ok = f.dir.RoomOf(c)
	assert.False(t, ok)
	assert.Zero(t, f.notify.count(c, protocol.TypeRematchStarting))

	for _, id := range []string{a, b} {
		msg, ok := f.notify.last(id, protocol.TypeRematchStarting)
		require.True(t, ok)
		assert.Equal(t, secretOf(r), msg["sharedSecret"])
		assert.Equal(t, []string{c}, msg["removed"])
	}
	participants := locked(r, func() int { return len(r.Game.Players) })
	assert.Equal(t, 2, participants)
	assert.Empty(t, playerData(r, a).Attempts)
	assert.Empty(t, playerData(r, b).Attempts)
	assert.Contains(t, f.rec.types(), ActionRematchStarted)
}

func TestRematchHostIsNeverRemoved(t *testing.T) {
	f := newFixture(t, Options{RematchTick: time.Hour})
	r, ms := finishedRoom(t, f, "Ann", "Bob", "Cat")
	a, b, c := ms[0].PlayerID, ms[1].PlayerID, ms[2].PlayerID

	require.NoError(t, r.RequestRematch(b))
	require.NoError(t, r.VoteRematch(a, false))
	require.NoError(t, r.VoteRematch(c, true))

	assert.Equal(t, game.StatusPlaying, statusOf(r))
	assert.Equal(t, []string{a, b, c}, locked(r, func() []string { return r.activeIDsUnsafe() }))
	assert.Equal(t, []string{a}, hostFlags(r))
	assert.Zero(t, f.notify.count(a, protocol.TypeKickedFromRoom))
}

func TestRematchCountdownExpiresWithoutEnoughVotes(t *testing.T) {
	f := newFixture(t, Options{RematchTick: 5 * time.Millisecond, RematchCountdown: 3})
	r, ms := finishedRoom(t, f, "Ann", "Bob")
	a, b := ms[0].PlayerID, ms[1].PlayerID
	oldID := gameIDOf(r)

	require.NoError(t, r.RequestRematch(b))
	require.NoError(t, r.VoteRematch(a, false))

	assert.Eventually(t, func() bool {
		return f.notify.count(a, protocol.TypeRematchCancelled) == 1
	}, time.Second, 5*time.Millisecond)

	countdowns := f.notify.ofType(a, protocol.TypeRematchCountdown)
	require.Len(t, countdowns, 3)
	assert.Equal(t, 2, countdowns[0]["countdown"])
	assert.Equal(t, 0, countdowns[2]["countdown"])

	assert.Equal(t, oldID, gameIDOf(r), "no new session")
	assert.Equal(t, game.StatusFinished, statusOf(r))
	assert.True(t, locked(r, func() bool { return r.Game.Rematch == nil && r.rematchTimer == nil }))
	assert.Len(t, locked(r, func() []string { return r.activeIDsUnsafe() }), 2, "nobody removed")

	// a fresh request is possible after cancellation
	require.NoError(t, r.RequestRematch(a))
}

func TestRestartCancelsPendingRematch(t *testing.T) {
	f := newFixture(t, Options{RematchTick: time.Hour})
	r, ms := finishedRoom(t, f, "Ann", "Bob")

	require.NoError(t, r.RequestRematch(ms[1].PlayerID))
	require.NoError(t, r.StartGame(ms[0].PlayerID, true, true))
	assert.True(t, locked(r, func() bool { return r.rematchTimer == nil }))
	assert.Equal(t, game.StatusPlaying, statusOf(r))
}

func TestRematchClearsReadyFlags(t *testing.T) {
	f := newFixture(t, Options{RematchTick: time.Hour})
	r, ms := finishedRoom(t, f, "Ann", "Bob")
	a, b := ms[0].PlayerID, ms[1].PlayerID

	require.NoError(t, r.ToggleReady(b))
	require.Equal(t, []string{b}, locked(r, func() []string { return r.readyIDsUnsafe() }))

	require.NoError(t, r.RequestRematch(b))
	require.NoError(t, r.VoteRematch(a, true))

	require.Equal(t, game.StatusPlaying, statusOf(r))
	assert.Empty(t, locked(r, func() []string { return r.readyIDsUnsafe() }))
	msg, ok := f.notify.last(a, protocol.TypeReadyPlayersUpdated)
	require.True(t, ok)
	assert.Equal(t, []string{}, msg["readyPlayers"])
}

func TestRematchIgnoresVotesOfDisconnectedPlayers(t *testing.T) {
	f := newFixture(t, Options{RematchTick: 5 * time.Millisecond, RematchCountdown: 2})
	r, ms := finishedRoom(t, f, "Ann", "Bob", "Cat")
	a, b, c := ms[0].PlayerID, ms[1].PlayerID, ms[2].PlayerID
	oldID := gameIDOf(r)

	require.NoError(t, r.RequestRematch(b))
	r.Disconnect(b, nil)
	require.NoError(t, r.VoteRematch(a, true))
	assert.Equal(t, oldID, gameIDOf(r), "one connected acceptor is not enough")

	assert.Eventually(t, func() bool {
		return f.notify.count(a, protocol.TypeRematchCancelled) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, game.StatusFinished, statusOf(r))
	assert.Zero(t, f.notify.count(c, protocol.TypeKickedFromRoom))
	_, ok := f.dir.RoomOf(c)
	assert.True(t, ok)
}
