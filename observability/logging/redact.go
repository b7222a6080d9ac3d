package logging

import (
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// RedactedValue is the placeholder written in place of masked log values.
const RedactedValue = "[REDACTED]"

// Keys naming registry identifiers and outcomes. Party addresses are public
// on the ledger so they are logged as is.
var redactionAllowlist = map[string]struct{}{
	"service":    {},
	"env":        {},
	"message":    {},
	"severity":   {},
	"timestamp":  {},
	"error":      {},
	"kind":       {},
	"status":     {},
	"operation":  {},
	"outcome":    {},
	"method":     {},
	"route":      {},
	"path":       {},
	"request_id": {},
	"agreement":  {},
	"consumer":   {},
	"provider":   {},
	"arbiter":    {},
	"caller":     {},
	"recipient":  {},
	"role":       {},
	"decision":   {},
	"window":     {},
	"amount":     {},
	"type":       {},
}

// Keys carrying off-chain evidence references. They are fingerprinted so
// log lines about the same document can be correlated without exposing it.
var evidenceKeys = map[string]struct{}{
	"evidence":     {},
	"evidence_ref": {},
	"reference":    {},
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// MaskField returns a slog.Attr for key. Allowlisted keys pass through,
// evidence keys are fingerprinted and everything else is redacted. Empty
// values are kept empty.
func MaskField(key, value string) slog.Attr {
	normalized := normalizeKey(key)
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	if _, ok := redactionAllowlist[normalized]; ok {
		return slog.String(key, value)
	}
	if _, ok := evidenceKeys[normalized]; ok {
		return slog.String(key, FingerprintEvidence(value))
	}
	return slog.String(key, RedactedValue)
}

// FingerprintEvidence hides an evidence reference behind the first four bytes
// of its keccak256 digest. A URI scheme such as ipfs:// is kept.
func FingerprintEvidence(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	digest := crypto.Keccak256([]byte(ref))
	prefix := ""
	if scheme, _, ok := strings.Cut(ref, "://"); ok && scheme != "" && !strings.ContainsAny(scheme, " /") {
		prefix = strings.ToLower(scheme) + "://"
	}
	return prefix + RedactedValue + "#" + hex.EncodeToString(digest[:4])
}
