package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// TCP is a socket link to a terminal reachable at Addr.
type TCP struct {
	Addr           string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration

	conn net.Conn
	r    *bufio.Reader
}

func NewTCP(addr string, connectTimeout, writeTimeout time.Duration) *TCP {
	return &TCP{Addr: addr, ConnectTimeout: connectTimeout, WriteTimeout: writeTimeout}
}

func (t *TCP) Open(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	d := net.Dialer{Timeout: t.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return fmt.Errorf("dialing terminal %s: %w", t.Addr, err)
	}
	t.conn = conn
	t.r = bufio.NewReader(conn)
	return nil
}

func (t *TCP) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.r = nil
	return err
}

func (t *TCP) Send(p []byte) error {
	if t.conn == nil {
		return ErrClosed
	}
	if t.WriteTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.WriteTimeout)); err != nil {
			return fmt.Errorf("setting write deadline: %w", err)
		}
	}
	if _, err := t.conn.Write(p); err != nil {
		return fmt.Errorf("writing %d bytes: %w", len(p), err)
	}
	return nil
}

func (t *TCP) RecvByte(timeout time.Duration) (byte, error) {
	if t.conn == nil {
		return 0, ErrClosed
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("setting read deadline: %w", err)
	}
	b, err := t.r.ReadByte()
	if err != nil {
		return 0, mapReadErr(err)
	}
	return b, nil
}

func (t *TCP) RecvFull(buf []byte, timeout time.Duration) (int, error) {
	if t.conn == nil {
		return 0, ErrClosed
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("setting read deadline: %w", err)
	}
	n, err := io.ReadFull(t.r, buf)
	if err != nil {
		return n, mapReadErr(err)
	}
	return n, nil
}

func mapReadErr(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrPeerClosed, err)
	}
	return err
}

var _ Transport = (*TCP)(nil)
