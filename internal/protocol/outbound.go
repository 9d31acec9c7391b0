// internal/protocol/outbound.go
package protocol

import (
	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/models"
)

// Message is an outbound JSON object. Every message carries a "type" key.
type Message map[string]interface{}

// Type returns the message's type tag.
func (m Message) Type() string {
	t, _ := m["type"].(string)
	return t
}

// Outbound message types.
const (
	TypeRoomCreated         = "room_created"
	TypeRoomJoined          = "room_joined"
	TypeRoomRejoined        = "room_rejoined"
	TypeError               = "error"
	TypeSettingsUpdated     = "settings_updated"
	TypeReadyPlayersUpdated = "ready_players_updated"
	TypeReadyNotification   = "ready_notification"
	TypePlayersUpdated      = "players_updated"
	TypeHostChanged         = "host_changed"
	TypePlayerKicked        = "player_kicked"
	TypePlayerDisconnected  = "player_disconnected"
	TypePlayerReconnected   = "player_reconnected"
	TypeGameStarted         = "game_started"
	TypeGameStarting        = "game_starting"
	TypeGuessResult         = "guess_result"
	TypePlayerAttempt       = "player_attempt"
	TypeMaxAttemptsReached  = "max_attempts_reached"
	TypeGameResults         = "game_results"
	TypePlayerDetails       = "player_details"
	TypeRematchRequested    = "rematch_requested"
	TypeRematchCountdown    = "rematch_countdown"
	TypeRematchVoteUpdate   = "rematch_vote_update"
	TypeRematchStarting     = "rematch_starting"
	TypeRematchCancelled    = "rematch_cancelled"
	TypeKickedFromRoom      = "kicked_from_room"
	TypeCardUsed            = "card_used"
)

// New builds a message of the given type with the given fields.
func New(typ string, fields Message) Message {
	msg := Message{"type": typ}
	for k, v := range fields {
		msg[k] = v
	}
	return msg
}

// Error builds an error message from any error. Client-facing errors keep their code
// and message; anything else is reported as an internal error.
func Error(err error) Message {
	e := models.AsError(err)
	return Message{
		"type":    TypeError,
		"code":    e.Code,
		"message": e.Message,
	}
}

// GameResults builds a game_results message.
func GameResults(res *game.Results) Message {
	return Message{
		"type":         TypeGameResults,
		"winners":      res.Winners,
		"losers":       res.Losers,
		"stillPlaying": res.StillPlaying,
		"sharedSecret": res.SharedSecret,
		"reason":       res.Reason,
	}
}
