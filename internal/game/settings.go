// internal/game/settings.go
package game

import (
	"fmt"

	"github.com/jason-s-yu/codebreak/internal/models"
)

const (
	DefaultNumDigits      = 4
	DefaultMaxAttempts    = 10
	DefaultRoundDuration  = 5 // minutes
	DefaultCardsPerPlayer = 3
)

// CardSettings configures the card mechanics and round timing.
type CardSettings struct {
	RoundDuration  int `json:"roundDuration"`  // minutes per round
	CardsPerPlayer int `json:"cardsPerPlayer"` // how many cards each player may play per game
}

// RoomSettings holds everything the host can configure for a room.
type RoomSettings struct {
	NumDigits         int          `json:"numDigits"`
	MaxAttempts       int          `json:"maxAttempts"`
	CardsEnabled      bool         `json:"cardsEnabled"`
	CardSettings      CardSettings `json:"cardSettings"`
	SelectedChallenge string       `json:"selectedChallenge"`
	AllowedCards      []string     `json:"allowedCards"`
}

// DefaultSettings returns the settings a new room starts with.
func DefaultSettings() RoomSettings {
	return RoomSettings{
		NumDigits:    DefaultNumDigits,
		MaxAttempts:  DefaultMaxAttempts,
		CardsEnabled: false,
		CardSettings: CardSettings{
			RoundDuration:  DefaultRoundDuration,
			CardsPerPlayer: DefaultCardsPerPlayer,
		},
		AllowedCards: []string{},
	}
}

// CardSettingsPatch is a partial update of CardSettings. Nil fields are left unchanged.
type CardSettingsPatch struct {
	RoundDuration  *int `json:"roundDuration,omitempty"`
	CardsPerPlayer *int `json:"cardsPerPlayer,omitempty"`
}

// SettingsPatch is a partial update of RoomSettings as sent by the host.
// Nil fields are left unchanged. CardSettings is merged field by field, never replaced.
// AllowedCards replaces the whole list when present; an empty list clears it.
type SettingsPatch struct {
	NumDigits         *int               `json:"numDigits,omitempty"`
	MaxAttempts       *int               `json:"maxAttempts,omitempty"`
	CardsEnabled      *bool              `json:"cardsEnabled,omitempty"`
	CardSettings      *CardSettingsPatch `json:"cardSettings,omitempty"`
	SelectedChallenge *string            `json:"selectedChallenge,omitempty"`
	AllowedCards      []string           `json:"allowedCards,omitempty"`
}

// Merge applies p on top of s and validates the result. s is not modified.
func (s RoomSettings) Merge(p SettingsPatch) (RoomSettings, error) {
	out := s
	out.AllowedCards = append([]string{}, s.AllowedCards...)

	assignInt := func(field *int, val *int, name string, minVal, maxVal int) error {
		if val == nil {
			return nil
		}
		if *val < minVal || *val > maxVal {
			return fmt.Errorf("%w: %s must be between %d and %d", models.ErrInvalidSettings, name, minVal, maxVal)
		}
		*field = *val
		return nil
	}

	if err := assignInt(&out.NumDigits, p.NumDigits, "numDigits", 3, 8); err != nil {
		return s, err
	}
	if err := assignInt(&out.MaxAttempts, p.MaxAttempts, "maxAttempts", 1, 30); err != nil {
		return s, err
	}
	if p.CardsEnabled != nil {
		out.CardsEnabled = *p.CardsEnabled
	}
	if p.CardSettings != nil {
		cs, err := out.CardSettings.merge(*p.CardSettings)
		if err != nil {
			return s, err
		}
		out.CardSettings = cs
	}
	if p.SelectedChallenge != nil {
		out.SelectedChallenge = *p.SelectedChallenge
	}
	if p.AllowedCards != nil {
		out.AllowedCards = append([]string{}, p.AllowedCards...)
	}
	return out, nil
}

func (c CardSettings) merge(p CardSettingsPatch) (CardSettings, error) {
	out := c
	if p.RoundDuration != nil {
		if *p.RoundDuration < 1 || *p.RoundDuration > 60 {
			return c, fmt.Errorf("%w: roundDuration must be between 1 and 60 minutes", models.ErrInvalidSettings)
		}
		out.RoundDuration = *p.RoundDuration
	}
	if p.CardsPerPlayer != nil {
		if *p.CardsPerPlayer < 0 || *p.CardsPerPlayer > 10 {
			return c, fmt.Errorf("%w: cardsPerPlayer must be between 0 and 10", models.ErrInvalidSettings)
		}
		out.CardsPerPlayer = *p.CardsPerPlayer
	}
	return out, nil
}

// CardAllowed reports whether cardType may be played under these settings.
// An empty allow list permits every card type.
func (s RoomSettings) CardAllowed(cardType string) bool {
	if len(s.AllowedCards) == 0 {
		return true
	}
	for _, c := range s.AllowedCards {
		if c == cardType {
			return true
		}
	}
	return false
}
