package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alovak/kioskpay/internal/tl3800"
	"github.com/alovak/kioskpay/terminal/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReplayDeviceCheck(t *testing.T) {
	dir := t.TempDir()
	resp, err := (&tl3800.Frame{TerminalID: "DPT0TEST03", Job: 'a'}).MarshalBinary()
	require.NoError(t, err)
	fixture := filepath.Join(dir, "device.bin")
	capture := filepath.Join(dir, "capture.bin")
	require.NoError(t, os.WriteFile(fixture, append([]byte{tl3800.ACK}, resp...), 0o644))

	out, err := execute(t, "replay", "--fixture", fixture, "--capture", capture, "--job", "device-check", "--log-level", "error")
	require.NoError(t, err)

	var got models.TerminalResponse
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, "DEVICE_CHECK(a)", got.Packet.Job)
	require.Equal(t, "DPT0TEST03", got.Packet.TerminalID)

	sent, err := os.ReadFile(capture)
	require.NoError(t, err)
	require.Equal(t, tl3800.STX, sent[0])
	require.Equal(t, byte(tl3800.JobDeviceCheck), sent[31])
}

func TestReplayUnknownJob(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(fixture, nil, 0o644))

	_, err := execute(t, "replay", "--fixture", fixture, "--job", "refund")
	require.ErrorContains(t, err, `unknown job "refund"`)
}

func TestDeviceCheckCallsServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tl3800/device-check" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(models.TerminalResponse{Packet: models.Packet{Job: "DEVICE_CHECK(a)"}})
	}))
	defer srv.Close()

	out, err := execute(t, "device-check", "--server", srv.URL)
	require.NoError(t, err)
	require.Contains(t, out, `"job": "DEVICE_CHECK(a)"`)
}

func TestBadLogLevel(t *testing.T) {
	_, err := execute(t, "replay", "--fixture", "x.bin", "--log-level", "loud")
	require.ErrorContains(t, err, "--log-level")
}
