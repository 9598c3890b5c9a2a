package tl3800

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alovak/kioskpay/internal/transport"
)

// terminalSim answers every request frame with ACK and the frame returned by
// respond. It flags any Open that happens while the link is already open.
type terminalSim struct {
	respond func(req *Frame) []byte

	mu      sync.Mutex
	pending []byte
	open    bool
	overlap bool
	opens   int
	jobs    []JobCode
}

func (s *terminalSim) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		s.overlap = true
	}
	s.open = true
	s.opens++
	return nil
}

func (s *terminalSim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.pending = nil
	return nil
}

func (s *terminalSim) Send(p []byte) error {
	if len(p) < HeaderLen {
		return nil
	}
	req, err := ParseStrict(p)
	if err != nil {
		return err
	}

	// let a concurrent caller try to sneak in
	time.Sleep(2 * time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, req.Job)
	s.pending = append(s.pending, ACK)
	s.pending = append(s.pending, s.respond(req)...)
	return nil
}

func (s *terminalSim) RecvByte(timeout time.Duration) (byte, error) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		time.Sleep(timeout)
		return 0, transport.ErrTimeout
	}
	b := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()
	return b, nil
}

func (s *terminalSim) RecvFull(buf []byte, timeout time.Duration) (int, error) {
	s.mu.Lock()
	n := copy(buf, s.pending)
	s.pending = s.pending[n:]
	s.mu.Unlock()
	if n < len(buf) {
		time.Sleep(timeout)
		return n, transport.ErrTimeout
	}
	return n, nil
}

func echoSim() *terminalSim {
	return &terminalSim{respond: func(req *Frame) []byte {
		raw, _ := (&Frame{
			TerminalID: req.TerminalID,
			Timestamp:  req.Timestamp,
			Job:        req.Job.Response(),
			Data:       approvalPayload("0000005000", "20251208", "202639", ""),
		}).MarshalBinary()
		return raw
	}}
}

func TestGatewaySerializesCallers(t *testing.T) {
	sim := echoSim()
	g := NewGateway(sim, NewClient(testConfig(), nil, nil), NewRequests(testTerminalID), nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			switch i % 3 {
			case 0:
				_, err = g.DeviceCheck(context.Background())
			case 1:
				_, err = g.Approve(context.Background(), ApproveRequest{Amount: "1000", NoSign: true})
			default:
				_, err = g.Status(context.Background())
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.False(t, sim.overlap)
	require.Equal(t, 8, sim.opens)
	require.Len(t, sim.jobs, 8)
	require.False(t, sim.open)
}

func TestGatewayClosesOnFailure(t *testing.T) {
	link := transport.NewReplay(nil)
	g := NewGateway(link, NewClient(testConfig(), nil, nil), NewRequests(testTerminalID), nil)

	_, err := g.DeviceCheck(context.Background())
	require.ErrorIs(t, err, ErrAckTimeout)
	require.Equal(t, 1, link.Opens())
	require.False(t, link.IsOpen())
}

func TestGatewayValidationSkipsTerminal(t *testing.T) {
	link := transport.NewReplay(nil)
	g := NewGateway(link, NewClient(testConfig(), nil, nil), NewRequests(testTerminalID), nil)

	_, err := g.Approve(context.Background(), ApproveRequest{Amount: "12,000"})
	require.ErrorIs(t, err, ErrInvalidField)
	require.Zero(t, link.Opens())
}

func TestGatewayQueuedCallerGivesUp(t *testing.T) {
	link := transport.NewReplay(nil)
	g := NewGateway(link, NewClient(testConfig(), nil, nil), NewRequests(testTerminalID), nil)

	require.NoError(t, g.lock.Lock(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.LastApproval(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, link.Opens())
	g.lock.Unlock()
}

func TestGatewayCancel(t *testing.T) {
	sim := echoSim()
	g := NewGateway(sim, NewClient(testConfig(), nil, nil), NewRequests(testTerminalID), nil)

	approval, err := g.Cancel(context.Background(), CancelRequest{
		Amount:     "5000",
		NoSign:     true,
		ApprovalNo: "30012345",
		OrgDate:    "20251208",
		OrgTime:    "202639",
	})
	require.NoError(t, err)
	require.Equal(t, JobCode('c'), approval.Frame.Job)
	require.Equal(t, []JobCode{JobCancel}, sim.jobs)
	require.Equal(t, "30012345", approval.Info.ApprovalNo)
}
