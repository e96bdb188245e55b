package catalog

import (
	"strings"
	"unicode"
)

// SanitizeName replaces every run of non-alphanumeric characters with a single underscore.
// Leading and trailing underscores are trimmed.
func SanitizeName(s string) string {
	var b strings.Builder

	pending := false

	for _, r := range s {
		if isAlnum(r) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}

			pending = false

			b.WriteRune(r)

			continue
		}

		pending = true
	}

	return b.String()
}

// StripName drops every non-alphanumeric character.
func StripName(s string) string {
	return strings.Map(func(r rune) rune {
		if isAlnum(r) {
			return r
		}

		return -1
	}, s)
}

// ASCII only: names end up in Content-Disposition headers and zip entries.
func isAlnum(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}
