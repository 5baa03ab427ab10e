package validation

import (
	"errors"
	"regexp"
	"strings"
)

var zipPattern = regexp.MustCompile(`^\d{5}$`)

// ErrZipEmpty is returned when the ZIP code is empty after trim.
var ErrZipEmpty = errors.New("zip code is required")

// ErrZipInvalid is returned when the ZIP code is not exactly five digits.
var ErrZipInvalid = errors.New("zip code must be five digits")

// ErrCoordinatesOutOfRange is returned when latitude or longitude is outside
// the valid range.
var ErrCoordinatesOutOfRange = errors.New("coordinates out of range")

// ValidateZipCode trims the input and enforces the US five-digit ZIP format
// (^\d{5}$). Returns the trimmed string or an error suitable for 400
// INVALID_ZIP responses.
func ValidateZipCode(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrZipEmpty
	}
	if !IsZipCode(s) {
		return "", ErrZipInvalid
	}
	return s, nil
}

// IsZipCode reports whether s is exactly five ASCII digits.
func IsZipCode(s string) bool {
	return zipPattern.MatchString(s)
}

// ValidateCoordinates checks that latitude is within [-90, 90] and longitude
// within [-180, 180].
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrCoordinatesOutOfRange
	}
	return nil
}
