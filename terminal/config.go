package terminal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alovak/kioskpay/internal/tl3800"
)

// Config is a configuration for the payment service
type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	// Timezone is an IANA name used for terminal timestamps (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone"`
	// MigrateOnStart creates the database schema when the pg backend is used.
	MigrateOnStart bool `yaml:"migrate_on_start"`

	Terminal TerminalConfig `yaml:"terminal"`
}

type TerminalConfig struct {
	// Transport is "tcp" or "replay".
	Transport string `yaml:"transport"`
	Addr      string `yaml:"addr"`
	ID        string `yaml:"id"`

	// ReplayFixture and ReplayCapture are used by the replay transport.
	ReplayFixture string `yaml:"replay_fixture"`
	ReplayCapture string `yaml:"replay_capture"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AckWait        time.Duration `yaml:"ack_wait"`
	RespWait       time.Duration `yaml:"resp_wait"`
	MaxAckRetry    int           `yaml:"max_ack_retry"`
	FollowupWindow time.Duration `yaml:"followup_window"`
	DrainWindow    time.Duration `yaml:"drain_window"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

func DefaultConfig() *Config {
	exchange := tl3800.DefaultConfig()
	return &Config{
		HTTPAddr: "localhost:9090",
		Timezone: "Asia/Seoul",
		Terminal: TerminalConfig{
			Transport:      "tcp",
			Addr:           "127.0.0.1:5555",
			ID:             "DPT0TEST03",
			ConnectTimeout: 3 * time.Second,
			WriteTimeout:   3 * time.Second,
			AckWait:        exchange.AckWait,
			RespWait:       exchange.RespWait,
			MaxAckRetry:    exchange.MaxAckRetry,
			FollowupWindow: exchange.FollowupWindow,
			DrainWindow:    exchange.DrainWindow,
			PollInterval:   exchange.PollInterval,
		},
	}
}

// LoadConfig reads an optional YAML file over the defaults and then applies
// environment overrides.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(raw, config); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	c.HTTPAddr = getenv("HTTP_ADDR", c.HTTPAddr)
	c.Timezone = getenv("KIOSK_TZ", c.Timezone)
	c.Terminal.Transport = getenv("TL3800_TRANSPORT", c.Terminal.Transport)
	c.Terminal.Addr = getenv("TL3800_HOST", c.Terminal.Addr)
	c.Terminal.ID = getenv("TL3800_TERMINAL_ID", c.Terminal.ID)
	c.Terminal.ReplayFixture = getenv("TL3800_REPLAY_FIXTURE", c.Terminal.ReplayFixture)
	c.Terminal.ReplayCapture = getenv("TL3800_REPLAY_CAPTURE", c.Terminal.ReplayCapture)

	if v := os.Getenv("TL3800_MAX_ACK_RETRY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TL3800_MAX_ACK_RETRY: %w", err)
		}
		c.Terminal.MaxAckRetry = n
	}
	durations := map[string]*time.Duration{
		"TL3800_ACK_WAIT":        &c.Terminal.AckWait,
		"TL3800_RESP_WAIT":       &c.Terminal.RespWait,
		"TL3800_FOLLOWUP_WINDOW": &c.Terminal.FollowupWindow,
	}
	for k, d := range durations {
		v := os.Getenv(k)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		*d = parsed
	}
	return nil
}

// Exchange returns the protocol time budgets.
func (t TerminalConfig) Exchange() tl3800.Config {
	return tl3800.Config{
		AckWait:        t.AckWait,
		RespWait:       t.RespWait,
		MaxAckRetry:    t.MaxAckRetry,
		FollowupWindow: t.FollowupWindow,
		DrainWindow:    t.DrainWindow,
		PollInterval:   t.PollInterval,
	}
}
