package parse

import (
	"strings"
	"unicode"

	"horizons/internal/model"
)

// Resolve matches a reference token against the known horizons. Matching is
// case-insensitive and tiered; the first tier with a hit wins, scanning
// horizons in their given order:
//
//  1. name with internal whitespace removed equals the token
//  2. name with internal whitespace removed contains the token
//  3. name (whitespace preserved) starts with the token
func Resolve(token string, horizons []model.Horizon) (model.Horizon, bool) {
	token = strings.ToLower(token)
	if token == "" {
		return model.Horizon{}, false
	}

	for _, h := range horizons {
		if squashSpaces(strings.ToLower(h.Name)) == token {
			return h, true
		}
	}
	for _, h := range horizons {
		if strings.Contains(squashSpaces(strings.ToLower(h.Name)), token) {
			return h, true
		}
	}
	for _, h := range horizons {
		if strings.HasPrefix(strings.ToLower(h.Name), token) {
			return h, true
		}
	}
	return model.Horizon{}, false
}

// squashSpaces removes all whitespace from s.
func squashSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
