// Package tl3800 speaks the TL3800 VAN terminal protocol: STX/ETX framed
// messages with a one-byte XOR checksum, exchanged under an ACK/NAK handshake.
package tl3800

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/moov-io/iso8583/encoding"

	"github.com/alovak/kioskpay/internal/fields"
	"github.com/alovak/kioskpay/internal/stamp"
)

// Control bytes.
const (
	STX byte = 0x02
	ETX byte = 0x03
	ACK byte = 0x06
	NAK byte = 0x15
)

// Header layout, offsets from STX.
const (
	HeaderLen     = 35
	TerminalIDLen = 16
	TimestampLen  = 14
	MaxDataLen    = 0xFFFF

	offTerminalID = 1
	offTimestamp  = offTerminalID + TerminalIDLen
	offJob        = offTimestamp + TimestampLen
	offResponse   = offJob + 1
	offDataLen    = offResponse + 1
)

// FrameLen returns the full wire length of a frame carrying dataLen payload bytes.
func FrameLen(dataLen int) int {
	return HeaderLen + dataLen + 2
}

// JobCode tags the operation a frame belongs to. Requests use upper case and
// the matching response uses the same letter in lower case.
type JobCode byte

const (
	JobDeviceCheck  JobCode = 'A'
	JobApprove      JobCode = 'B'
	JobCancel       JobCode = 'C'
	JobLastApproval JobCode = 'L'
	JobStatus       JobCode = 'S'
	// JobEvent marks unsolicited terminal pushes such as card insertion.
	JobEvent JobCode = '@'
)

// Response returns the job code the terminal answers a request with.
func (j JobCode) Response() JobCode {
	if j >= 'A' && j <= 'Z' {
		return j + ('a' - 'A')
	}
	return j
}

func (j JobCode) IsEvent() bool {
	return j == JobEvent
}

// Matches reports whether j and other name the same operation ignoring case.
// An event never matches anything.
func (j JobCode) Matches(other JobCode) bool {
	if j.IsEvent() || other.IsEvent() {
		return false
	}
	return lower(j) == lower(other)
}

func lower(j JobCode) JobCode {
	if j >= 'A' && j <= 'Z' {
		return j + ('a' - 'A')
	}
	return j
}

func (j JobCode) String() string {
	switch lower(j) {
	case 'a':
		return "DEVICE_CHECK(" + string(rune(j)) + ")"
	case 'b':
		return "APPROVE(" + string(rune(j)) + ")"
	case 'c':
		return "CANCEL(" + string(rune(j)) + ")"
	case 'l':
		return "LAST_APPROVAL(" + string(rune(j)) + ")"
	case 's':
		return "STATUS(" + string(rune(j)) + ")"
	case '@':
		return "EVENT"
	}
	if j >= 0x20 && j < 0x7f {
		return string(rune(j))
	}
	return fmt.Sprintf("0x%02X", byte(j))
}

// Frame is one protocol message.
type Frame struct {
	TerminalID string
	// Timestamp is YYYYMMDDhhmmss. MarshalBinary fills it with the current
	// time when empty.
	Timestamp    string
	Job          JobCode
	ResponseCode byte
	Data         []byte

	// Checksum is the trailing byte as received. MarshalBinary always
	// computes a fresh one.
	Checksum byte
	// Degraded is set when the frame was only salvaged by ParseLenient.
	Degraded bool
}

// OK reports whether the terminal signalled success.
func (f *Frame) OK() bool {
	return f.ResponseCode == 0
}

func (f *Frame) MarshalBinary() ([]byte, error) {
	id, err := asciiField("terminal id", f.TerminalID)
	if err != nil {
		return nil, err
	}
	idField, err := fields.Text(string(id), TerminalIDLen)
	if err != nil {
		return nil, fmt.Errorf("terminal id: %w", err)
	}

	ts := f.Timestamp
	if ts == "" {
		ts = stamp.Format14(time.Now())
	}
	if err := stamp.Validate14(ts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidField, err)
	}

	if len(f.Data) > MaxDataLen {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrFieldTooLong, len(f.Data), MaxDataLen)
	}

	out := make([]byte, FrameLen(len(f.Data)))
	out[0] = STX
	copy(out[offTerminalID:], idField)
	copy(out[offTimestamp:], ts)
	out[offJob] = byte(f.Job)
	out[offResponse] = f.ResponseCode
	binary.LittleEndian.PutUint16(out[offDataLen:], uint16(len(f.Data)))
	copy(out[HeaderLen:], f.Data)
	etx := HeaderLen + len(f.Data)
	out[etx] = ETX
	out[etx+1] = Checksum(out[:etx+1])
	return out, nil
}

// Checksum is the XOR of every byte in b. Frames carry the checksum of STX
// through ETX inclusive.
func Checksum(b []byte) byte {
	var c byte
	for _, x := range b {
		c ^= x
	}
	return c
}

// ParseStrict decodes exactly one well-formed frame.
func ParseStrict(b []byte) (*Frame, error) {
	if len(b) < HeaderLen+2 {
		return nil, fmt.Errorf("%w: %d bytes is shorter than an empty frame", ErrMalformedFrame, len(b))
	}
	if b[0] != STX {
		return nil, fmt.Errorf("%w: leading byte 0x%02X is not STX", ErrMalformedFrame, b[0])
	}
	dataLen := headerDataLen(b)
	if want := FrameLen(dataLen); len(b) != want {
		return nil, fmt.Errorf("%w: length %d, header declares %d", ErrMalformedFrame, len(b), want)
	}
	etx := HeaderLen + dataLen
	if b[etx] != ETX {
		return nil, fmt.Errorf("%w: byte 0x%02X at %d is not ETX", ErrMalformedFrame, b[etx], etx)
	}
	if sum := Checksum(b[:etx+1]); sum != b[etx+1] {
		return nil, fmt.Errorf("%w: checksum 0x%02X, computed 0x%02X", ErrMalformedFrame, b[etx+1], sum)
	}
	if _, err := asciiField("terminal id", string(b[offTerminalID:offTimestamp])); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	ts := string(b[offTimestamp:offJob])
	if err := stamp.Validate14(ts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	f := decodeHeader(b)
	f.Data = append([]byte(nil), b[HeaderLen:etx]...)
	f.Checksum = b[etx+1]
	return f, nil
}

// ParseLenient salvages a frame without checking the terminator, checksum or
// header text. The full declared payload must still be present; trailing bytes
// past the checksum are ignored.
func ParseLenient(b []byte) (*Frame, error) {
	if len(b) < HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes is shorter than a header", ErrMalformedFrame, len(b))
	}
	dataLen := headerDataLen(b)
	if len(b) < HeaderLen+dataLen {
		return nil, fmt.Errorf("%w: header declares %d payload bytes, have %d", ErrMalformedFrame, dataLen, len(b)-HeaderLen)
	}
	f := decodeHeader(b)
	f.Data = append([]byte(nil), b[HeaderLen:HeaderLen+dataLen]...)
	if sumAt := HeaderLen + dataLen + 1; sumAt < len(b) {
		f.Checksum = b[sumAt]
	}
	f.Degraded = true
	return f, nil
}

func decodeHeader(b []byte) *Frame {
	return &Frame{
		TerminalID:   trimPadding(string(b[offTerminalID:offTimestamp])),
		Timestamp:    string(b[offTimestamp:offJob]),
		Job:          JobCode(b[offJob]),
		ResponseCode: b[offResponse],
	}
}

func headerDataLen(header []byte) int {
	return int(binary.LittleEndian.Uint16(header[offDataLen : offDataLen+2]))
}

// trimPadding drops the trailing spaces MarshalBinary pads with, so a parsed
// frame marshals back to the same bytes.
func trimPadding(s string) string {
	end := len(s)
	for end > 0 && s[end-1] == ' ' {
		end--
	}
	return s[:end]
}

func asciiField(name, value string) ([]byte, error) {
	out, err := encoding.ASCII.Encode([]byte(value))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidField, name, err)
	}
	return out, nil
}
