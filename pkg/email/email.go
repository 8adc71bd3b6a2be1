// Package email holds helpers for approver mailbox addresses.
package email

import (
	"strings"
	"unicode"

	"github.com/asaskevich/govalidator"
)

// IsValid reports whether contact is a single syntactically valid mailbox.
// Surrounding whitespace is ignored.
func IsValid(contact string) bool {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return false
	}
	return govalidator.IsEmail(contact)
}

// DisplayName derives a greeting name from the local part of an address,
// e.g. "ravi.kumar@plant.example" becomes "Ravi Kumar". Falls back to
// "Approver" when nothing usable remains.
func DisplayName(address string) string {
	localPart := strings.TrimSpace(address)
	if at := strings.IndexByte(localPart, '@'); at >= 0 {
		localPart = localPart[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if !hasLetter(p) {
			continue
		}
		names = append(names, capitalize(strings.ToLower(p)))
	}
	if len(names) == 0 {
		return "Approver"
	}
	return strings.Join(names, " ")
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
