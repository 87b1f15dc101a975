package db

import (
	"regexp"
	"strings"
)

var kvPairRegex = regexp.MustCompile(`(?i)\b(host|user|password|dbname|port|sslmode)=`)

// NormalizeDSN accepts a URL style DSN (postgres://...), a lib/pq key=value
// list, or a sqlite path (sqlite: prefix or file:). It trims quotes and
// whitespace and, if given key=value form, returns it cleaned with a default
// sslmode when missing.
func NormalizeDSN(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "\"'")
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return s
	}
	if IsSQLiteDSN(s) {
		return s
	}
	if !kvPairRegex.MatchString(s) {
		return s
	}
	fields := strings.Fields(s)
	cleaned := strings.Join(fields, " ")
	if !strings.Contains(strings.ToLower(cleaned), "sslmode=") {
		cleaned += " sslmode=disable"
	}
	return cleaned
}

// IsSQLiteDSN reports whether the DSN targets the sqlite driver (dev/test path).
func IsSQLiteDSN(dsn string) bool {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	return strings.HasPrefix(lower, "sqlite:") ||
		strings.HasPrefix(lower, "file:") ||
		strings.HasSuffix(lower, ".db") ||
		lower == ":memory:"
}

// SQLitePath strips the sqlite: prefix if present.
func SQLitePath(dsn string) string {
	s := strings.TrimSpace(dsn)
	if strings.HasPrefix(strings.ToLower(s), "sqlite:") {
		return s[len("sqlite:"):]
	}
	return s
}
