package fields

import (
	"errors"
	"fmt"
	"strings"

	"github.com/moov-io/iso8583/padding"
)

var (
	// ErrInvalid is returned when a value does not satisfy its field format.
	ErrInvalid = errors.New("invalid field")
	// ErrTooLong is returned when a value exceeds its fixed field width.
	ErrTooLong = errors.New("field too long")
)

var zeroPadder = padding.Left('0')

// Numeric returns value left-padded with '0' to exactly width bytes.
// Empty values encode as all zeros; non-digits and overflow are rejected.
func Numeric(value string, width int) ([]byte, error) {
	v := strings.TrimSpace(value)
	if !IsDigits(v) {
		return nil, fmt.Errorf("%w: %q must contain digits only", ErrInvalid, value)
	}
	if len(v) > width {
		return nil, fmt.Errorf("%w: %q exceeds %d digits", ErrTooLong, value, width)
	}
	return zeroPadder.Pad([]byte(v), width), nil
}

// Text returns value right-padded with spaces to exactly width bytes.
func Text(value string, width int) ([]byte, error) {
	if len(value) > width {
		return nil, fmt.Errorf("%w: %q exceeds %d bytes", ErrTooLong, value, width)
	}
	out := make([]byte, width)
	copy(out, value)
	for i := len(value); i < width; i++ {
		out[i] = ' '
	}
	return out, nil
}

// Slice reads length bytes at offset as ASCII. Reads past the end of src are
// clipped; a read that starts out of range yields "".
func Slice(src []byte, offset, length int) string {
	if length <= 0 || offset < 0 || offset >= len(src) {
		return ""
	}
	end := offset + length
	if end > len(src) {
		end = len(src)
	}
	return string(src[offset:end])
}

// DigitsOnly drops every byte that is not an ASCII digit.
func DigitsOnly(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

func IsDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// LastN returns the trailing n bytes of s, or s itself when shorter.
func LastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// MaskPAN keeps the first 6 and last 4 characters of a card number and masks the
// rest. Terminals already send masked numbers; this guards storage and logs
// against ones that are not.
func MaskPAN(pan string) string {
	cleaned := NormalizePAN(pan)
	n := len(cleaned)
	if n == 0 {
		return ""
	}
	if n <= 4 {
		return strings.Repeat("*", n)
	}
	if n < 10 {
		return strings.Repeat("*", n-4) + cleaned[n-4:]
	}
	return cleaned[:6] + strings.Repeat("*", n-10) + cleaned[n-4:]
}

// NormalizePAN strips spaces, tabs and dashes.
func NormalizePAN(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-':
			return -1
		default:
			return r
		}
	}, s)
}
