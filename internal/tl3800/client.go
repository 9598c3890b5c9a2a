package tl3800

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"github.com/alovak/kioskpay/internal/transport"
)

// Config holds the exchange time budgets.
type Config struct {
	// AckWait is the first wait for ACK, NAK or an immediate STX.
	AckWait time.Duration
	// RespWait bounds the late handshake poll and every header or tail read.
	RespWait time.Duration
	// MaxAckRetry is how many times a NAKed request is resent.
	MaxAckRetry int
	// FollowupWindow bounds the wait for the expected response once an event
	// or an unrelated frame arrived first.
	FollowupWindow time.Duration
	// DrainWindow bounds the discard of stale bytes before each send.
	DrainWindow time.Duration
	// PollInterval is the read granularity while waiting for a single byte.
	PollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		AckWait:        3 * time.Second,
		RespWait:       15 * time.Second,
		MaxAckRetry:    3,
		FollowupWindow: 180 * time.Second,
		DrainWindow:    120 * time.Millisecond,
		PollInterval:   50 * time.Millisecond,
	}
}

// Budget is the longest one Exchange can run: every send polled for its full
// handshake, a first frame read at RespWait per stage, then the whole
// follow-up window. Time spent queued behind other callers is not included.
func (c Config) Budget() time.Duration {
	sends := time.Duration(c.MaxAckRetry + 1)
	return sends*(c.DrainWindow+c.AckWait+c.RespWait) + 3*c.RespWait + c.FollowupWindow
}

// Observer is notified of exchange outcomes.
type Observer interface {
	ExchangeDone(job JobCode, elapsed time.Duration, err error)
	NakReceived(job JobCode)
	EventDiscarded()
	DegradedFrame(job JobCode)
}

type nopObserver struct{}

func (nopObserver) ExchangeDone(JobCode, time.Duration, error) {}
func (nopObserver) NakReceived(JobCode)                        {}
func (nopObserver) EventDiscarded()                            {}
func (nopObserver) DegradedFrame(JobCode)                      {}

// Client runs request/response exchanges. It keeps no state between calls.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	observer Observer
}

func NewClient(cfg Config, logger *slog.Logger, observer Observer) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Client{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "tl3800")),
		observer: observer,
	}
}

// Exchange sends req over an open link and returns the terminal's response to
// it. Events and unrelated frames received on the way are discarded.
func (c *Client) Exchange(link transport.Transport, req *Frame) (*Frame, error) {
	raw, err := req.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", req.Job, err)
	}

	x := &exchange{
		Client:   c,
		link:     link,
		job:      req.Job,
		expected: req.Job.Response(),
		logger:   c.logger.With(slog.String("job", req.Job.String())),
	}
	start := time.Now()
	resp, err := x.run(raw)
	c.observer.ExchangeDone(req.Job, time.Since(start), err)
	if err != nil {
		x.logger.Warn("exchange failed", slog.String("error", err.Error()))
		return nil, err
	}
	x.logger.Info("exchange done",
		slog.Int("response_code", int(resp.ResponseCode)),
		slog.Int("data_len", len(resp.Data)),
		slog.Bool("degraded", resp.Degraded),
		slog.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

// exchange is the state of one Exchange call.
type exchange struct {
	*Client
	link     transport.Transport
	job      JobCode
	expected JobCode
	logger   *slog.Logger
}

func (x *exchange) run(raw []byte) (*Frame, error) {
	for attempt := 1; ; attempt++ {
		x.drain()

		x.logger.Info("send", slog.Int("attempt", attempt), slog.Int("len", len(raw)))
		x.logger.Debug("send frame", slog.String("hex", hex.EncodeToString(raw)))
		if err := x.link.Send(raw); err != nil {
			return nil, fmt.Errorf("sending request: %w", err)
		}

		sym, err := x.awaitControl()
		if err != nil {
			return nil, err
		}
		switch sym {
		case NAK:
			x.observer.NakReceived(x.job)
			if attempt <= x.cfg.MaxAckRetry {
				x.logger.Warn("NAK, resending", slog.Int("retry", attempt), slog.Int("max_retry", x.cfg.MaxAckRetry))
				continue
			}
			return nil, fmt.Errorf("%w: %d attempts", ErrNakExceeded, attempt)
		case STX:
			x.logger.Debug("immediate STX")
			return x.awaitResponse(true)
		default:
			x.logger.Debug("ACK")
			return x.awaitResponse(false)
		}
	}
}

// drain discards bytes left over from an earlier exchange.
func (x *exchange) drain() {
	deadline := time.Now().Add(x.cfg.DrainWindow)
	dropped := 0
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if _, err := x.link.RecvByte(min(remaining, 20*time.Millisecond)); err != nil {
			break
		}
		dropped++
	}
	if dropped > 0 {
		x.logger.Warn("drained stale bytes", slog.Int("count", dropped))
	}
}

// awaitControl waits AckWait for a handshake symbol, then polls RespWait more.
func (x *exchange) awaitControl() (byte, error) {
	sym, err := x.pollControl(x.cfg.AckWait)
	if err == nil || !errors.Is(err, transport.ErrTimeout) {
		return sym, err
	}
	x.logger.Debug("no ACK yet, polling", slog.Duration("ack_wait", x.cfg.AckWait), slog.Duration("resp_wait", x.cfg.RespWait))
	sym, err = x.pollControl(x.cfg.RespWait)
	if errors.Is(err, transport.ErrTimeout) {
		return 0, fmt.Errorf("%w after %s", ErrAckTimeout, x.cfg.AckWait+x.cfg.RespWait)
	}
	return sym, err
}

func (x *exchange) pollControl(wait time.Duration) (byte, error) {
	deadline := time.Now().Add(wait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, transport.ErrTimeout
		}
		b, err := x.link.RecvByte(min(remaining, x.cfg.PollInterval))
		if errors.Is(err, transport.ErrTimeout) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("awaiting ack: %w", err)
		}
		switch b {
		case ACK, NAK, STX:
			return b, nil
		}
		x.logger.Debug("skip byte", slog.String("byte", fmt.Sprintf("0x%02X", b)))
	}
}

// awaitResponse reads the first frame after the handshake. Failures here are
// final; once an event or an unrelated frame shows up the follow-up window
// takes over.
func (x *exchange) awaitResponse(stxSeen bool) (*Frame, error) {
	f, err := x.readFrame(stxSeen, time.Time{})
	if err != nil {
		return nil, err
	}
	if f.Job.Matches(x.expected) {
		return f, nil
	}
	if f.Job.IsEvent() {
		x.logger.Warn("event before response, waiting", slog.String("expect", x.expected.String()))
	} else {
		x.logger.Warn("unexpected first frame, waiting",
			slog.String("got", f.Job.String()),
			slog.String("expect", x.expected.String()),
		)
	}
	return x.followUp()
}

func (x *exchange) followUp() (*Frame, error) {
	deadline := time.Now().Add(x.cfg.FollowupWindow)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		f, err := x.readFrame(false, deadline)
		if err != nil {
			if !retryableInWindow(err) {
				return nil, err
			}
			x.logger.Debug("follow-up try failed", slog.String("error", err.Error()))
			continue
		}
		if f.Job.IsEvent() {
			x.logger.Info("event ignored")
			continue
		}
		if f.Job.Matches(x.expected) {
			return f, nil
		}
		x.logger.Warn("unexpected frame, still waiting",
			slog.String("got", f.Job.String()),
			slog.String("expect", x.expected.String()),
		)
	}
	return nil, fmt.Errorf("%w: no %s within %s", ErrFollowupTimeout, x.expected, x.cfg.FollowupWindow)
}

func retryableInWindow(err error) bool {
	return errors.Is(err, ErrHeaderTimeout) ||
		errors.Is(err, ErrShortBody) ||
		errors.Is(err, ErrMalformedFrame)
}

// readFrame waits for the next frame. Every read is bounded by RespWait and,
// when limit is set, by limit. Event frames are consumed without an
// acknowledgement and returned carrying only their job code.
func (x *exchange) readFrame(stxSeen bool, limit time.Time) (*Frame, error) {
	header := make([]byte, HeaderLen)
	header[0] = STX
	if !stxSeen {
		if err := x.awaitSTX(x.readWait(limit)); err != nil {
			return nil, err
		}
	}
	n, err := x.link.RecvFull(header[1:], x.readWait(limit))
	if err != nil {
		if errors.Is(err, transport.ErrTimeout) {
			return nil, fmt.Errorf("%w: got %d of %d header bytes", ErrHeaderTimeout, n+1, HeaderLen)
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	x.logger.Debug("header", slog.String("hex", hex.EncodeToString(header)))

	job := JobCode(header[offJob])
	tail := make([]byte, headerDataLen(header)+2)

	if job.IsEvent() {
		m, err := x.link.RecvFull(tail, x.readWait(limit))
		x.observer.EventDiscarded()
		x.logger.Info("event discarded", slog.Int("data_len", len(tail)-2), slog.Int("read", m))
		if err != nil && !errors.Is(err, transport.ErrTimeout) {
			return nil, fmt.Errorf("reading event tail: %w", err)
		}
		return &Frame{Job: JobEvent}, nil
	}

	m, err := x.link.RecvFull(tail, x.readWait(limit))
	if err != nil {
		if !errors.Is(err, transport.ErrTimeout) {
			return nil, fmt.Errorf("reading tail: %w", err)
		}
		x.reply(NAK)
		x.logger.Warn("short body, NAK sent", slog.Int("got", m), slog.Int("need", len(tail)))
		return nil, fmt.Errorf("%w: got %d of %d tail bytes", ErrShortBody, m, len(tail))
	}

	raw := append(header, tail...)
	x.logger.Info("recv", slog.String("job", job.String()), slog.Int("len", len(raw)))
	x.logger.Debug("recv frame", slog.String("hex", hex.EncodeToString(raw)))

	f, err := ParseStrict(raw)
	if err != nil {
		x.logger.Warn("strict parse failed, trying lenient", slog.String("error", err.Error()))
		var lerr error
		if f, lerr = ParseLenient(raw); lerr != nil {
			x.reply(NAK)
			return nil, lerr
		}
		x.observer.DegradedFrame(x.job)
	}
	x.reply(ACK)
	return f, nil
}

func (x *exchange) readWait(limit time.Time) time.Duration {
	if limit.IsZero() {
		return x.cfg.RespWait
	}
	return max(min(x.cfg.RespWait, time.Until(limit)), time.Millisecond)
}

func (x *exchange) awaitSTX(wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: no STX within %s", ErrHeaderTimeout, wait)
		}
		b, err := x.link.RecvByte(min(remaining, x.cfg.PollInterval))
		if errors.Is(err, transport.ErrTimeout) {
			continue
		}
		if err != nil {
			return fmt.Errorf("awaiting frame: %w", err)
		}
		if b == STX {
			return nil
		}
		x.logger.Debug("skip byte", slog.String("byte", fmt.Sprintf("0x%02X", b)))
	}
}

// reply sends a control byte. A failed write is logged; the frame already
// received stays valid.
func (x *exchange) reply(b byte) {
	if err := x.link.Send([]byte{b}); err != nil {
		x.logger.Warn("control byte not sent", slog.String("byte", fmt.Sprintf("0x%02X", b)), slog.String("error", err.Error()))
	}
}
