// internal/room/codes.go
package room

import (
	"strings"
	"unicode/utf8"

	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/models"
)

// CodeAlphabet leaves out 0, O, 1 and I so codes can be read aloud.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the number of characters in a room code.
const CodeLength = 6

// MaxNameLength bounds player names, counted in characters after trimming.
const MaxNameLength = 20

// GenerateCode draws a room code from CodeAlphabet.
func GenerateCode(r game.Random) string {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(CodeAlphabet[r.Intn(len(CodeAlphabet))])
	}
	return b.String()
}

// NormalizeCode makes user-typed codes comparable.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateName trims name and checks its length.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 1 || n > MaxNameLength {
		return "", models.ErrInvalidName
	}
	return name, nil
}
