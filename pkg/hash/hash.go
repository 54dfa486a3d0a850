// Package hash derives the pseudonymous identifiers stored in place of
// client addresses.
package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
)

// IP returns the keyed digest persisted on reports and security events.
// Equivalent spellings of one address hash the same.
func IP(ip, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(normalizeIP(ip)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Fingerprint is an unkeyed digest prefix of n hex chars for log lines.
func Fingerprint(s string, n int) string {
	sum := sha256.Sum256([]byte(s))
	out := hex.EncodeToString(sum[:])
	if n > 0 && n < len(out) {
		return out[:n]
	}
	return out
}

func normalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if parsed := net.ParseIP(ip); parsed != nil {
		return parsed.String()
	}
	return ip
}
