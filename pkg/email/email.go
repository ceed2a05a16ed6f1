// Package email normalizes the email addresses principals sign in with.
package email

import (
	"net/mail"
	"strings"
	"unicode"

	dErrors "custody/pkg/domain-errors"
)

const maxLength = 254

// Normalize trims and lowercases an address and rejects anything that is not
// a bare addr-spec. Display-name forms like "Jane <jane@x>" are refused.
func Normalize(address string) (string, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return "", dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if len(address) > maxLength {
		return "", dErrors.New(dErrors.CodeValidation, "email is too long")
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address || parsed.Name != "" {
		return "", dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	return address, nil
}

// Mask hides most of the local part: "jane.doe@example.com" -> "j*******@example.com".
func Mask(address string) string {
	at := strings.IndexByte(address, '@')
	if at <= 0 {
		return "***"
	}
	runes := []rune(address[:at])
	return string(runes[0]) + strings.Repeat("*", len(runes)-1) + address[at:]
}

// DeriveDisplayName builds "First Last" from the local part when a principal
// registers without a display name.
func DeriveDisplayName(address string) string {
	first, last := DeriveNameFromEmail(address)
	if last == "" {
		return first
	}
	return first + " " + last
}

func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", ""
	}

	first := capitalize(parts[0])
	last := ""
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
