package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReplayReleasesSegmentPerSend(t *testing.T) {
	var capture bytes.Buffer
	r := NewReplay(&capture, []byte{0x06, 0x02}, []byte{0x03})
	require.NoError(t, r.Open(context.Background()))

	// nothing is readable before the host speaks
	_, err := r.RecvByte(time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, r.Send([]byte("req")))
	b, err := r.RecvByte(time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, byte(0x06), b)

	buf := make([]byte, 2)
	n, err := r.RecvFull(buf, time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, 1, n)

	require.NoError(t, r.Send([]byte{0x06}))
	n, err = r.RecvFull(buf[:1], time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte(0x03), buf[0])

	require.Equal(t, "req\x06", capture.String())
	require.Len(t, r.Sends(), 2)
	require.NoError(t, r.Close())
	require.False(t, r.IsOpen())
	require.ErrorIs(t, r.Send([]byte{1}), ErrClosed)
}

func TestOpenReplayFile(t *testing.T) {
	dir := t.TempDir()
	fixture := filepath.Join(dir, "approve.bin")
	capture := filepath.Join(dir, "capture.bin")
	require.NoError(t, os.WriteFile(fixture, []byte{0x06}, 0o644))

	r, err := OpenReplayFile(fixture, capture)
	require.NoError(t, err)
	require.NoError(t, r.Open(context.Background()))
	require.NoError(t, r.Send([]byte{0x02, 0x03}))
	b, err := r.RecvByte(time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, byte(0x06), b)
	require.NoError(t, r.Close())
	require.NoError(t, r.Release())

	written, err := os.ReadFile(capture)
	require.NoError(t, err)
	require.Equal(t, []byte{0x02, 0x03}, written)
}

func TestTCPRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 3)
		if _, err := conn.Read(buf); err == nil {
			got <- buf
		}
		conn.Write([]byte{0x06, 'a', 'b'})
		time.Sleep(100 * time.Millisecond)
	}()

	tcp := NewTCP(ln.Addr().String(), time.Second, time.Second)
	require.NoError(t, tcp.Open(context.Background()))
	defer tcp.Close()

	require.NoError(t, tcp.Send([]byte("req")))
	require.Equal(t, []byte("req"), <-got)

	b, err := tcp.RecvByte(time.Second)
	require.NoError(t, err)
	require.Equal(t, byte(0x06), b)

	buf := make([]byte, 2)
	n, err := tcp.RecvFull(buf, time.Second)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "ab", string(buf))

	_, err = tcp.RecvByte(20 * time.Millisecond)
	require.True(t, errors.Is(err, ErrTimeout), "got %v", err)
}

func TestTCPPeerClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte{0x02, 'a'})
		conn.Close()
	}()

	tcp := NewTCP(ln.Addr().String(), time.Second, time.Second)
	require.NoError(t, tcp.Open(context.Background()))
	defer tcp.Close()

	b, err := tcp.RecvByte(time.Second)
	require.NoError(t, err)
	require.Equal(t, byte(0x02), b)

	buf := make([]byte, 4)
	n, err := tcp.RecvFull(buf, time.Second)
	require.ErrorIs(t, err, ErrPeerClosed)
	require.False(t, errors.Is(err, ErrTimeout))
	require.Equal(t, 1, n)

	_, err = tcp.RecvByte(time.Second)
	require.ErrorIs(t, err, ErrPeerClosed)
}

func TestTCPClosed(t *testing.T) {
	tcp := NewTCP("127.0.0.1:1", 10*time.Millisecond, 0)
	require.ErrorIs(t, tcp.Send([]byte{1}), ErrClosed)
	_, err := tcp.RecvByte(time.Millisecond)
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, tcp.Close())
}
