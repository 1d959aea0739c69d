package logger

import (
	"log/slog"
	"strings"
)

// SanitizedUsername masks a username for logging, keeping the first and last
// character (e.g. "a****e"). Short names are masked entirely.
func SanitizedUsername(username string) string {
	if len(username) <= 2 {
		return strings.Repeat("*", len(username))
	}
	return string(username[0]) + strings.Repeat("*", len(username)-2) + string(username[len(username)-1])
}

// RedactedAttr returns a redacted slog attribute for sensitive values outside
// of development environments.
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

var sensitiveParams = []string{
	"password",
	"token",
	"secret",
	"challenge",
	"second_factor",
	"code",
	"auth",
}

// SanitizeQueryString reports whether a query string carries credential
// material and should be redacted wholesale from request logs.
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
