package xui

import (
	"regexp"
	"strings"
	"unicode"
)

// newFormatRe matches labels produced by ClientEmail: anything followed
// by a dash and the 8-char uuid prefix.
var newFormatRe = regexp.MustCompile(`(?i)^.+-[a-f0-9]{8}$`)

// ClientEmail derives the panel display label for a client from the
// owner's Telegram name. The uuid prefix keeps labels unique; the name
// part is sanitized down to letters, digits, whitespace, '-', '_' and '.'.
func ClientEmail(uuid, firstName, lastName string) string {
	shortID := uuid
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	if firstName != "" {
		name := strings.TrimSpace(firstName)
		if lastName != "" {
			name += " " + lastName
		}
		name = strings.TrimSpace(sanitizeName(name))
		if name != "" {
			return name + "-" + shortID
		}
	}

	return "user-" + shortID
}

func sanitizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			b.WriteRune(r)
		case r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsNewFormatEmail reports whether a label already looks like the
// ClientEmail output. Legacy "tg_" labels carry a matching suffix by
// coincidence and still need migration.
func IsNewFormatEmail(email string) bool {
	return newFormatRe.MatchString(email) && !strings.HasPrefix(email, "tg_")
}
