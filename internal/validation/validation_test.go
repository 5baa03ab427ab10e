package validation

import (
	"errors"
	"testing"
)

// TestValidateZipCode verifies the five-digit ZIP format contract: exactly
// five ASCII digits, nothing else.
func TestValidateZipCode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{
			name:  "valid zip",
			input: "10001",
			want:  "10001",
		},
		{
			name:  "valid zip with surrounding whitespace",
			input: "  90210  ",
			want:  "90210",
		},
		{
			name:    "four digits",
			input:   "1000",
			wantErr: ErrZipInvalid,
		},
		{
			name:    "six digits",
			input:   "100011",
			wantErr: ErrZipInvalid,
		},
		{
			name:    "letters",
			input:   "abcde",
			wantErr: ErrZipInvalid,
		},
		{
			name:    "mixed digits and letters",
			input:   "1000a",
			wantErr: ErrZipInvalid,
		},
		{
			name:    "zip+4 format rejected",
			input:   "10001-1234",
			wantErr: ErrZipInvalid,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: ErrZipEmpty,
		},
		{
			name:    "whitespace only",
			input:   "   ",
			wantErr: ErrZipEmpty,
		},
		{
			name:    "unicode digits rejected",
			input:   "１００１０",
			wantErr: ErrZipInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateZipCode(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ValidateZipCode(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateZipCode(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ValidateZipCode(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestValidateCoordinates verifies range checks on latitude and longitude.
func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lon     float64
		wantErr bool
	}{
		{name: "manhattan", lat: 40.7506, lon: -73.9971},
		{name: "boundary values", lat: 90, lon: -180},
		{name: "latitude too high", lat: 90.01, lon: 0, wantErr: true},
		{name: "longitude too low", lat: 0, lon: -180.5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCoordinates(tt.lat, tt.lon)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCoordinates(%v, %v) error = %v, wantErr %v", tt.lat, tt.lon, err, tt.wantErr)
			}
		})
	}
}
