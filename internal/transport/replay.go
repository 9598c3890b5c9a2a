package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Replay plays captured terminal bytes back to a client. Response bytes are
// grouped in segments and each Send releases the next one, the way a terminal
// only answers after hearing from the host. Everything sent is appended to the
// capture writer.
type Replay struct {
	mu       sync.Mutex
	segments [][]byte
	pending  []byte
	capture  io.Writer
	closer   io.Closer
	sends    [][]byte
	open     bool
	opens    int
}

// NewReplay builds a replay link from in-memory segments. capture may be nil.
func NewReplay(capture io.Writer, segments ...[]byte) *Replay {
	segs := make([][]byte, 0, len(segments))
	for _, s := range segments {
		segs = append(segs, append([]byte(nil), s...))
	}
	return &Replay{segments: segs, capture: capture}
}

// OpenReplayFile loads a captured binary fixture as a single segment and appends
// every Send to capturePath, if set. Release closes the capture file.
func OpenReplayFile(fixturePath, capturePath string) (*Replay, error) {
	data, err := os.ReadFile(fixturePath)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	if capturePath == "" {
		return NewReplay(nil, data), nil
	}
	out, err := os.OpenFile(capturePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening capture file: %w", err)
	}
	r := NewReplay(out, data)
	r.closer = out
	return r, nil
}

func (r *Replay) Open(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = true
	r.opens++
	return nil
}

// Close marks the link closed. Unread bytes stay queued so a fixture can span
// several exchanges; the capture file, if any, stays open until Release.
func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	return nil
}

// Release closes the capture file opened by OpenReplayFile.
func (r *Replay) Release() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (r *Replay) Send(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return ErrClosed
	}
	r.sends = append(r.sends, append([]byte(nil), p...))
	if r.capture != nil {
		if _, err := r.capture.Write(p); err != nil {
			return fmt.Errorf("writing capture: %w", err)
		}
	}
	if len(r.segments) > 0 {
		r.pending = append(r.pending, r.segments[0]...)
		r.segments = r.segments[1:]
	}
	return nil
}

func (r *Replay) RecvByte(timeout time.Duration) (byte, error) {
	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return 0, ErrClosed
	}
	if len(r.pending) == 0 {
		r.mu.Unlock()
		time.Sleep(timeout)
		return 0, ErrTimeout
	}
	b := r.pending[0]
	r.pending = r.pending[1:]
	r.mu.Unlock()
	return b, nil
}

func (r *Replay) RecvFull(buf []byte, timeout time.Duration) (int, error) {
	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return 0, ErrClosed
	}
	n := copy(buf, r.pending)
	r.pending = r.pending[n:]
	r.mu.Unlock()
	if n < len(buf) {
		time.Sleep(timeout)
		return n, ErrTimeout
	}
	return n, nil
}

// Sends returns a copy of every payload written so far.
func (r *Replay) Sends() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.sends))
	for i, s := range r.sends {
		out[i] = append([]byte(nil), s...)
	}
	return out
}

// Opens reports how many times Open was called.
func (r *Replay) Opens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

// IsOpen reports whether the link is currently open.
func (r *Replay) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

var _ Transport = (*Replay)(nil)
