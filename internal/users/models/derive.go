package models

import (
	"strings"
	"unicode"
)

// fallbackUsername is used when nothing usable remains after normalization.
const fallbackUsername = "user"

// DeriveUsername builds a username for a user that arrives without one.
// A display name wins: it is lower-cased and reduced to letters, digits,
// '.', '_' and '-'. Without a display name the email local-part is used.
func DeriveUsername(displayName, email string) string {
	if name := strings.TrimSpace(displayName); name != "" {
		if u := normalizeUsername(name); u != "" {
			return u
		}
		return fallbackUsername
	}
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if local == "" {
		return fallbackUsername
	}
	return local
}

func normalizeUsername(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SplitName returns the first whitespace-separated token as the given name
// and the remaining tokens, joined by single spaces, as the family name.
func SplitName(displayName string) (given, family string) {
	parts := strings.Fields(displayName)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
