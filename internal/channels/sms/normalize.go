package sms

import (
	"errors"
	"strings"
)

var (
	ErrEmptyNumber     = errors.New("empty phone number")
	ErrMalformedNumber = errors.New("malformed phone number")
)

const (
	minDigits = 8
	maxDigits = 15 // E.164 upper bound
)

// Normalize converts a raw phone number to international +<digits> form.
// Accepted inputs: already-international (+81..., 0081...), or national with
// a leading zero resolved against defaultCountryCode (e.g. "81").
func Normalize(raw, defaultCountryCode string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if cleaned == "" {
		return "", ErrEmptyNumber
	}

	switch {
	case strings.HasPrefix(cleaned, "+"):
		cleaned = cleaned[1:]
	case strings.HasPrefix(cleaned, "00"):
		cleaned = cleaned[2:]
	case strings.HasPrefix(cleaned, "0") && defaultCountryCode != "":
		cleaned = defaultCountryCode + cleaned[1:]
	}

	if len(cleaned) < minDigits || len(cleaned) > maxDigits {
		return "", ErrMalformedNumber
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", ErrMalformedNumber
		}
	}
	return "+" + cleaned, nil
}

// CountryCode extracts the likely country prefix from a normalized number by
// longest-prefix match against the known set.
func CountryCode(normalized string, known []string) string {
	digits := strings.TrimPrefix(normalized, "+")
	best := ""
	for _, code := range known {
		if strings.HasPrefix(digits, code) && len(code) > len(best) {
			best = code
		}
	}
	return best
}
