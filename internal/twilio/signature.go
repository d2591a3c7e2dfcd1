package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"sort"
)

// Sign computes the Twilio request signature for a webhook: HMAC-SHA1 over
// the full external URL followed by every form parameter, sorted by key and
// concatenated as key+value, base64-encoded.
func Sign(authToken, webhookURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(webhookURL))
	for _, k := range keys {
		mac.Write([]byte(k))
		mac.Write([]byte(params[k]))
	}

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignatureValidator checks inbound webhook signatures against the
// configured auth token and external webhook URL.
type SignatureValidator struct {
	authToken  string
	webhookURL string
}

// NewSignatureValidator builds a validator for the given credentials.
func NewSignatureValidator(authToken, webhookURL string) *SignatureValidator {
	return &SignatureValidator{authToken: authToken, webhookURL: webhookURL}
}

// Valid reports whether header matches the expected signature for params.
// A missing header never validates.
func (v *SignatureValidator) Valid(header string, params map[string]string) bool {
	if header == "" {
		return false
	}
	expected := Sign(v.authToken, v.webhookURL, params)
	return subtle.ConstantTimeCompare([]byte(header), []byte(expected)) == 1
}
