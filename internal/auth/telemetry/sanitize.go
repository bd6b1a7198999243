package telemetry

import (
	"strings"
)

// sensitiveFragments are matched case-insensitively against metadata keys.
// Matching keys are dropped entirely.
var sensitiveFragments = []string{"token", "password", "session", "secret"}

// Sanitize returns a copy of metadata with credential-bearing keys removed
// and email addresses redacted. Nested maps are sanitized recursively.
// The input is never modified.
func Sanitize(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}

	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		lower := strings.ToLower(k)
		if isSensitive(lower) {
			continue
		}

		switch val := v.(type) {
		case map[string]any:
			out[k] = Sanitize(val)
		case string:
			if strings.Contains(lower, "email") {
				out[k] = RedactEmail(val)
			} else {
				out[k] = val
			}
		default:
			out[k] = v
		}
	}
	return out
}

func isSensitive(lowerKey string) bool {
	for _, frag := range sensitiveFragments {
		if strings.Contains(lowerKey, frag) {
			return true
		}
	}
	return false
}

// RedactEmail keeps the first three characters of the local part and the
// domain: "jonathan@example.com" becomes "jon***@example.com". Values that
// are not email-shaped are fully masked.
func RedactEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***"
	}

	local, domainPart := email[:at], email[at+1:]
	keep := min(3, len(local))
	return local[:keep] + "***@" + domainPart
}
