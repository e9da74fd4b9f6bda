// internal/game/engine.go
//
// Pure scoring engine for a bulls-and-cows duel.
// Responsibilities:
//   - Validate candidate codes (4 pairwise-distinct decimal digits).
//   - Score a guess against a secret (bulls = right digit, right place;
//     cows = right digit, wrong place).
//
// Notes:
//   - Validation lives here, at the trust boundary: client-side input
//     filtering is never trusted, so non-digit input is rejected on the
//     server regardless of what the UI allows.
//   - Score assumes both codes already passed IsValidCode; over that
//     domain it is pure and total.

package game

// CodeLength is the fixed length of secrets and guesses.
const CodeLength = 4

// Result is the score of one guess.
// Invariants: Bulls+Cows <= CodeLength; Bulls == CodeLength iff the
// guess equals the secret.
type Result struct {
	Bulls int
	Cows  int
}

// IsValidCode reports whether s is a legal secret or guess:
// exactly four characters, all decimal digits, no digit repeated.
func IsValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	var seen [10]bool
	for i := 0; i < CodeLength; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		d := c - '0'
		if seen[d] {
			return false
		}
		seen[d] = true
	}
	return true
}

// Score evaluates guess against secret. For each position: an exact
// match counts a bull; otherwise a digit that occurs anywhere in the
// secret counts a cow. Codes have distinct digits, so a single pass
// with a membership check is sufficient.
func Score(secret, guess string) Result {
	var res Result
	for i := 0; i < CodeLength; i++ {
		switch {
		case guess[i] == secret[i]:
			res.Bulls++
		case contains(secret, guess[i]):
			res.Cows++
		}
	}
	return res
}

// contains reports whether b occurs in s.
func contains(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}
