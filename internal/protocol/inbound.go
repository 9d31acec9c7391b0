// internal/protocol/inbound.go
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/models"
)

// Inbound message types.
const (
	TypeCreateRoom            = "create_room"
	TypeJoinRoom              = "join_room"
	TypeUpdateSettings        = "update_settings"
	TypeToggleReady           = "toggle_ready"
	TypeNotifyReady           = "notify_ready"
	TypeStartGame             = "start_game"
	TypeChallengesCompleted   = "challenges_completed"
	TypeSubmitGuess           = "submit_guess"
	TypeRequestAttemptDetails = "request_attempt_details"
	TypeRequestRematch        = "request_rematch"
	TypeRematchVote           = "rematch_vote"
	TypeReconnect             = "reconnect"
	TypeTransferHost          = "transfer_host"
	TypeKickPlayer            = "kick_player"
	TypeLeaveRoom             = "leave_room"
	TypeUseCard               = "use_card"
)

// Inbound is a decoded client message. The concrete type identifies the message kind.
type Inbound interface {
	Type() string
}

type CreateRoom struct {
	PlayerName string `json:"playerName"`
}

type JoinRoom struct {
	PlayerName string `json:"playerName"`
	RoomID     string `json:"roomId"`
}

type UpdateSettings struct {
	Settings game.SettingsPatch `json:"settings"`
}

type ToggleReady struct{}

type NotifyReady struct{}

type StartGame struct {
	ForceStart bool `json:"forceStart"`
	IsRestart  bool `json:"isRestart"`
}

type ChallengesCompleted struct{}

type SubmitGuess struct {
	Guess Digits `json:"guess"`
}

type RequestAttemptDetails struct {
	TargetPlayerID string `json:"targetPlayerId"`
}

type RequestRematch struct{}

type RematchVote struct {
	Accepted bool `json:"accepted"`
}

// Reconnect resumes a membership. PlayerID and PlayerName are informational only;
// the session token alone identifies the player.
type Reconnect struct {
	SessionToken string `json:"sessionToken"`
	RoomCode     string `json:"roomCode"`
	PlayerID     string `json:"playerId,omitempty"`
	PlayerName   string `json:"playerName,omitempty"`
}

type TransferHost struct {
	NewHostID string `json:"newHostId"`
}

type KickPlayer struct {
	TargetPlayerID string `json:"targetPlayerId"`
}

type LeaveRoom struct{}

type UseCard struct {
	TargetPlayerID string `json:"targetPlayerId,omitempty"`
	CardType       string `json:"cardType"`
	CardID         string `json:"cardId"`
	EffectDuration *int   `json:"effectDuration,omitempty"`
	EffectValue    *int   `json:"effectValue,omitempty"`
}

func (CreateRoom) Type() string            { return TypeCreateRoom }
func (JoinRoom) Type() string              { return TypeJoinRoom }
func (UpdateSettings) Type() string        { return TypeUpdateSettings }
func (ToggleReady) Type() string           { return TypeToggleReady }
func (NotifyReady) Type() string           { return TypeNotifyReady }
func (StartGame) Type() string             { return TypeStartGame }
func (ChallengesCompleted) Type() string   { return TypeChallengesCompleted }
func (SubmitGuess) Type() string           { return TypeSubmitGuess }
func (RequestAttemptDetails) Type() string { return TypeRequestAttemptDetails }
func (RequestRematch) Type() string        { return TypeRequestRematch }
func (RematchVote) Type() string           { return TypeRematchVote }
func (Reconnect) Type() string             { return TypeReconnect }
func (TransferHost) Type() string          { return TypeTransferHost }
func (KickPlayer) Type() string            { return TypeKickPlayer }
func (LeaveRoom) Type() string             { return TypeLeaveRoom }
func (UseCard) Type() string               { return TypeUseCard }

// Decode parses a raw client frame. Unknown types yield models.ErrUnknownMessage and
// malformed payloads yield models.ErrInvalidMessage.
func Decode(data []byte) (Inbound, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidMessage, err)
	}

	var msg Inbound
	switch envelope.Type {
	case TypeCreateRoom:
		msg = &CreateRoom{}
	case TypeJoinRoom:
		msg = &JoinRoom{}
	case TypeUpdateSettings:
		msg = &UpdateSettings{}
	case TypeToggleReady:
		return ToggleReady{}, nil
	case TypeNotifyReady:
		return NotifyReady{}, nil
	case TypeStartGame:
		msg = &StartGame{}
	case TypeChallengesCompleted:
		return ChallengesCompleted{}, nil
	case TypeSubmitGuess:
		msg = &SubmitGuess{}
	case TypeRequestAttemptDetails:
		msg = &RequestAttemptDetails{}
	case TypeRequestRematch:
		return RequestRematch{}, nil
	case TypeRematchVote:
		var v struct {
			Accepted *bool `json:"accepted"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidMessage, err)
		}
		if v.Accepted == nil {
			return nil, fmt.Errorf("%w: accepted is required", models.ErrInvalidMessage)
		}
		return RematchVote{Accepted: *v.Accepted}, nil
	case TypeReconnect:
		msg = &Reconnect{}
	case TypeTransferHost:
		msg = &TransferHost{}
	case TypeKickPlayer:
		msg = &KickPlayer{}
	case TypeLeaveRoom:
		return LeaveRoom{}, nil
	case TypeUseCard:
		msg = &UseCard{}
	case "":
		return nil, fmt.Errorf("%w: missing type", models.ErrInvalidMessage)
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownMessage, envelope.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrInvalidMessage, envelope.Type, err)
	}
	if err := validate(msg); err != nil {
		return nil, err
	}
	return deref(msg), nil
}

func validate(msg Inbound) error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s is required", models.ErrInvalidMessage, field)
	}
	switch m := msg.(type) {
	case *Reconnect:
		if strings.TrimSpace(m.SessionToken) == "" {
			return missing("sessionToken")
		}
	case *TransferHost:
		if m.NewHostID == "" {
			return missing("newHostId")
		}
	case *KickPlayer:
		if m.TargetPlayerID == "" {
			return missing("targetPlayerId")
		}
	case *RequestAttemptDetails:
		if m.TargetPlayerID == "" {
			return missing("targetPlayerId")
		}
	case *UseCard:
		if m.CardType == "" {
			return missing("cardType")
		}
		if m.CardID == "" {
			return missing("cardId")
		}
	}
	return nil
}

// deref returns value types so that handlers switch on one form only.
func deref(msg Inbound) Inbound {
	switch m := msg.(type) {
	case *CreateRoom:
		return *m
	case *JoinRoom:
		return *m
	case *UpdateSettings:
		return *m
	case *StartGame:
		return *m
	case *SubmitGuess:
		return *m
	case *RequestAttemptDetails:
		return *m
	case *Reconnect:
		return *m
	case *TransferHost:
		return *m
	case *KickPlayer:
		return *m
	case *UseCard:
		return *m
	}
	return msg
}

// Digits is a guess. It accepts either a JSON string of digit characters ("0123")
// or an array of integers. Characters other than 0-9 decode to -1 so that the
// guess is rejected as invalid rather than as malformed.
type Digits []int

func (d *Digits) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		out := make(Digits, 0, len(s))
		for _, r := range s {
			if r < '0' || r > '9' {
				out = append(out, -1)
				continue
			}
			out = append(out, int(r-'0'))
		}
		*d = out
		return nil
	}
	var ints []int
	if err := json.Unmarshal(b, &ints); err != nil {
		return fmt.Errorf("guess must be a digit string or an array of digits")
	}
	*d = ints
	return nil
}
