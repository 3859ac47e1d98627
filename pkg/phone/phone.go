// Package phone normalizes phone numbers to E.164 so invitations and
// providers compare by a single canonical form.
package phone

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalid = errors.New("invalid_phone_number")

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

var separators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// Normalize strips common separators and validates the result as E.164.
// A leading "00" international prefix is rewritten to "+".
func Normalize(raw string) (string, error) {
	value := separators.Replace(strings.TrimSpace(raw))
	if strings.HasPrefix(value, "00") {
		value = "+" + strings.TrimPrefix(value, "00")
	}
	if !e164.MatchString(value) {
		return "", ErrInvalid
	}
	return value, nil
}

// Mask keeps the country prefix and the last four digits.
func Mask(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= 6 {
		return "****"
	}
	return value[:3] + "****" + value[len(value)-4:]
}
