package utils

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidPhone is returned when a mobile number cannot be normalized to a
// valid Indian E.164 form.
var ErrInvalidPhone = errors.New("invalid mobile number")

// Indian mobile numbers are 10 digits starting with 6-9 once the country
// code is stripped.
var nationalMobileRe = regexp.MustCompile(`^[6-9]\d{9}$`)

// NormalizeMobile converts any common spelling of an Indian mobile number
// ("9876543210", "+91 98765 43210", "09876543210", "919876543210") to the
// canonical "+919876543210". All storage and lookups use this form, so two
// spellings of the same number can never produce two accounts.
func NormalizeMobile(raw string) (string, error) {
	s := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '(' || r == ')' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	switch {
	case strings.HasPrefix(s, "+91"):
		s = s[3:]
	case strings.HasPrefix(s, "91") && len(s) == 12:
		s = s[2:]
	case strings.HasPrefix(s, "0") && len(s) == 11:
		s = s[1:]
	}
	if !nationalMobileRe.MatchString(s) {
		return "", ErrInvalidPhone
	}
	return "+91" + s, nil
}
