// Package email holds address helpers used when addressing notifications.
package email

import (
	"net/mail"
	"strings"
	"unicode"
)

// Normalize parses addr and returns the lowercased bare address.
func Normalize(addr string) (string, bool) {
	parsed, err := mail.ParseAddress(strings.TrimSpace(addr))
	if err != nil {
		return "", false
	}
	return strings.ToLower(parsed.Address), true
}

// DisplayName derives a salutation from the local part, e.g.
// "jane.doe+x@example.com" becomes "Jane Doe".
func DisplayName(addr string) string {
	local := addr
	if at := strings.IndexByte(addr, '@'); at >= 0 {
		local = addr[:at]
	}
	if plus := strings.IndexByte(local, '+'); plus > 0 {
		local = local[:plus]
	}
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	if len(parts) == 0 {
		return "there"
	}
	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
