// internal/models/errors.go
package models

import "errors"

// Kind groups errors by how a client should interpret them.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindForbidden      Kind = "forbidden"
	KindInvalidState   Kind = "invalid_state"
	KindExhausted      Kind = "exhausted"
	KindInvalidSession Kind = "invalid_session"
	KindInvalidRequest Kind = "invalid_request"
	KindInternal       Kind = "internal"
)

// Error is a client-facing error. Code is stable for clients, Message is shown to users.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	// Room errors
	ErrRoomNotFound   = newError(KindNotFound, "ROOM_NOT_FOUND", "Room not found")
	ErrPlayerNotFound = newError(KindNotFound, "PLAYER_NOT_FOUND", "Player not found")
	ErrRoomFull       = newError(KindInvalidState, "ROOM_FULL", "Room is full")
	ErrGameInProgress = newError(KindInvalidState, "GAME_IN_PROGRESS", "A game is already in progress")
	ErrGameEnded      = newError(KindInvalidState, "GAME_ENDED", "This game has ended; create a new room")
	ErrNotInRoom      = newError(KindInvalidState, "NOT_IN_ROOM", "You are not in a room")
	ErrAlreadyInRoom  = newError(KindInvalidState, "ALREADY_IN_ROOM", "You are already in a room")
	ErrNoRoomCode     = newError(KindInternal, "NO_ROOM_CODE", "Could not allocate a room code")

	// Host errors
	ErrNotHost        = newError(KindForbidden, "NOT_HOST", "Only the host can do that")
	ErrCannotKickSelf = newError(KindForbidden, "CANNOT_KICK_SELF", "You cannot kick yourself")
	ErrSettingsLocked = newError(KindInvalidState, "SETTINGS_LOCKED", "Settings cannot change while a game is being played")

	// Game errors
	ErrNotEnoughPlayers = newError(KindInvalidState, "NOT_ENOUGH_PLAYERS", "At least two players are needed")
	ErrNotEnoughReady   = newError(KindInvalidState, "NOT_ENOUGH_READY", "At least two players must be ready")
	ErrNoGame           = newError(KindInvalidState, "NO_GAME", "No game has been started")
	ErrNotPlaying       = newError(KindInvalidState, "NOT_PLAYING", "The game is not being played")
	ErrNotInChallenge   = newError(KindInvalidState, "NOT_IN_CHALLENGE", "There is no challenge phase running")
	ErrAlreadyFinished  = newError(KindInvalidState, "ALREADY_FINISHED", "You have already finished")
	ErrNoAttemptsLeft   = newError(KindExhausted, "NO_ATTEMPTS_LEFT", "You have no attempts left")
	ErrDetailsHidden    = newError(KindForbidden, "DETAILS_HIDDEN", "Finish your game before looking at other players")

	// Card errors
	ErrCardsDisabled   = newError(KindInvalidState, "CARDS_DISABLED", "Cards are disabled in this room")
	ErrCardNotAllowed  = newError(KindForbidden, "CARD_NOT_ALLOWED", "That card is not allowed in this room")
	ErrCardAlreadyUsed = newError(KindInvalidState, "CARD_ALREADY_USED", "That card has already been used")
	ErrNoCardsLeft     = newError(KindExhausted, "NO_CARDS_LEFT", "You have no cards left")
	ErrInvalidTarget   = newError(KindInvalidRequest, "INVALID_TARGET", "Invalid card target")

	// Rematch errors
	ErrRematchRequested  = newError(KindInvalidState, "ALREADY_REQUESTED", "A rematch has already been requested")
	ErrNoRematchPending  = newError(KindInvalidState, "NO_REMATCH_PENDING", "There is no rematch to vote on")
	ErrRematchNotAllowed = newError(KindInvalidState, "REMATCH_NOT_ALLOWED", "A rematch can only be requested after the game ends")

	// Session errors
	ErrInvalidSession = newError(KindInvalidSession, "INVALID_OR_EXPIRED_SESSION", "Your session is invalid or has expired")

	// Request errors
	ErrInvalidName     = newError(KindInvalidRequest, "INVALID_NAME", "Player name must be between 1 and 20 characters")
	ErrInvalidGuess    = newError(KindInvalidRequest, "INVALID_GUESS", "Guess must contain exactly the configured number of digits")
	ErrInvalidSettings = newError(KindInvalidRequest, "INVALID_SETTINGS", "Invalid room settings")
	ErrInvalidMessage  = newError(KindInvalidRequest, "INVALID_MESSAGE", "Invalid message")
	ErrUnknownMessage  = newError(KindInvalidRequest, "UNKNOWN_MESSAGE", "Unknown message type")
)

// KindOf returns the Kind of err, or KindInternal when err is not a client-facing error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError unwraps err to a client-facing error. Unknown errors become a generic internal error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(KindInternal, "INTERNAL_ERROR", "Something went wrong")
}

// CodeOf returns the client-facing code of err.
func CodeOf(err error) string {
	return AsError(err).Code
}
