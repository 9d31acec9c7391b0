// internal/game/evaluator.go
package game

// Feedback is the result of comparing a guess against the secret.
// CorrectPositionCount counts digits in the right place; CorrectCount counts every
// guessed digit present in the secret, bounded by the secret's multiplicity of that digit.
type Feedback struct {
	CorrectCount         int `json:"correctCount"`
	CorrectPositionCount int `json:"correctPositionCount"`
}

// Evaluate scores guess against secret in two passes: exact matches first, then
// value-only matches among the remaining slots. Only the first min(len) positions count.
func Evaluate(secret, guess []int) Feedback {
	n := len(secret)
	if len(guess) < n {
		n = len(guess)
	}

	var fb Feedback
	remaining := make(map[int]int, n)
	unmatched := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if secret[i] == guess[i] {
			fb.CorrectPositionCount++
			continue
		}
		remaining[secret[i]]++
		unmatched = append(unmatched, guess[i])
	}

	valueOnly := 0
	for _, d := range unmatched {
		if remaining[d] > 0 {
			remaining[d]--
			valueOnly++
		}
	}

	fb.CorrectCount = fb.CorrectPositionCount + valueOnly
	return fb
}
