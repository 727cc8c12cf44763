package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// NewReference generates a globally unique external reference with the
// given prefix, e.g. "PAY-9F2C41D08A3E4B6F91D7".
func NewReference(prefix string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return prefix + "-" + id[:20]
}

var utrPattern = regexp.MustCompile(`^[A-Za-z0-9]{8,30}$`)

// ValidUTR reports whether an external confirmation reference matches the
// bank UTR format contract: alphanumeric, 8 to 30 characters.
func ValidUTR(ref string) bool {
	return utrPattern.MatchString(ref)
}

// SignPayload generates a hex-encoded HMAC-SHA256 over the joined parts.
// Payment instructions carry this signature so callback handlers can verify
// the instruction data was not tampered with in transit.
func SignPayload(secret string, parts ...string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPayload checks a signature produced by SignPayload.
func VerifyPayload(secret, signature string, parts ...string) bool {
	return hmac.Equal([]byte(SignPayload(secret, parts...)), []byte(signature))
}
