package terminal_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alovak/kioskpay/terminal"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kioskpay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":8080"
timezone: UTC
terminal:
  addr: 10.0.0.7:5555
  id: DPT0KIOSK1
  ack_wait: 2s
  followup_window: 1m
  max_ack_retry: 5
`), 0o644))

	t.Setenv("TL3800_HOST", "10.0.0.9:5555")
	t.Setenv("TL3800_RESP_WAIT", "20s")

	config, err := terminal.LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, ":8080", config.HTTPAddr)
	require.Equal(t, "UTC", config.Timezone)
	require.Equal(t, "DPT0KIOSK1", config.Terminal.ID)
	require.Equal(t, "10.0.0.9:5555", config.Terminal.Addr)
	require.Equal(t, "tcp", config.Terminal.Transport)

	exchange := config.Terminal.Exchange()
	require.Equal(t, 2*time.Second, exchange.AckWait)
	require.Equal(t, 20*time.Second, exchange.RespWait)
	require.Equal(t, time.Minute, exchange.FollowupWindow)
	require.Equal(t, 5, exchange.MaxAckRetry)
	require.Equal(t, 120*time.Millisecond, exchange.DrainWindow)
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := terminal.LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, terminal.DefaultConfig().Terminal.Exchange(), config.Terminal.Exchange())
}

func TestLoadConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("TL3800_ACK_WAIT", "soon")
	_, err := terminal.LoadConfig("")
	require.ErrorContains(t, err, "TL3800_ACK_WAIT")
}
