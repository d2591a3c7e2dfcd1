package register

import (
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/crypto/bcrypt"
)

const (
	senderLength = 12
	senderPrefix = "+1"
)

// checkSender validates the sender identifier: a US long code,
// country-code-prefixed and twelve characters long, that parses as a
// possible number. Returns the validated sender.
func checkSender(raw string) (string, bool) {
	if len(raw) != senderLength || !strings.HasPrefix(raw, senderPrefix) {
		return "", false
	}
	num, err := phonenumbers.Parse(raw, "US")
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return "", false
	}
	return raw, true
}

// logSafe truncates an arbitrary sender string before it reaches the logs.
func logSafe(raw string) string {
	if len(raw) > senderLength {
		return raw[:senderLength]
	}
	return raw
}

// passphraseMatches compares the message body against the shared secret
// after normalizing both: all whitespace stripped, case folded, trailing
// punctuation trimmed. Anything beyond those deviations is a mismatch.
func passphraseMatches(body, secret string) bool {
	return normalize(body) == normalize(secret)
}

func normalize(s string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimRight(strings.ToLower(stripped), ".!?")
}

// fingerprint produces a salted one-way hash of the sender identifier. A
// fresh salt per record means matching later requires comparing against
// every stored hash rather than a key lookup.
func fingerprint(sender string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(sender), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// fingerprintMatches reports whether the stored hash was derived from sender.
func fingerprintMatches(stored, sender string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(sender)) == nil
}
