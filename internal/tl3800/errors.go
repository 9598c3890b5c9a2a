package tl3800

import (
	"errors"

	"github.com/alovak/kioskpay/internal/fields"
)

var (
	// ErrNakExceeded is returned when the terminal rejected every send attempt.
	ErrNakExceeded = errors.New("tl3800: NAK retries exceeded")
	// ErrAckTimeout is returned when no ACK, NAK or STX arrived after a send.
	ErrAckTimeout = errors.New("tl3800: ack timeout")
	// ErrHeaderTimeout is returned when a frame header did not arrive in full.
	ErrHeaderTimeout = errors.New("tl3800: header timeout")
	// ErrShortBody is returned when a frame tail did not arrive in full.
	ErrShortBody = errors.New("tl3800: short body")
	// ErrMalformedFrame is returned when frame bytes fail structural checks.
	ErrMalformedFrame = errors.New("tl3800: malformed frame")
	// ErrFollowupTimeout is returned when the expected response never arrived
	// within the follow-up window.
	ErrFollowupTimeout = errors.New("tl3800: follow-up window exceeded")

	ErrInvalidField = fields.ErrInvalid
	ErrFieldTooLong = fields.ErrTooLong
)

// IsTimeout reports whether err is one of the exchange timeout failures.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrAckTimeout) ||
		errors.Is(err, ErrHeaderTimeout) ||
		errors.Is(err, ErrShortBody) ||
		errors.Is(err, ErrFollowupTimeout)
}
