package tl3800

import (
	"context"
	"fmt"

	"golang.org/x/exp/slog"

	"github.com/alovak/kioskpay/internal/transport"
)

// Approval is a response frame together with its decoded fields.
type Approval struct {
	Frame *Frame
	Info  ApprovalInfo
}

// Gateway owns the single terminal link. Calls are served one at a time in
// arrival order; each opens the link, runs one exchange and closes it again.
type Gateway struct {
	link     transport.Transport
	client   *Client
	requests *Requests
	lock     FairLock
	logger   *slog.Logger
}

func NewGateway(link transport.Transport, client *Client, requests *Requests, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		link:     link,
		client:   client,
		requests: requests,
		logger:   logger.With(slog.String("component", "gateway")),
	}
}

func (g *Gateway) DeviceCheck(ctx context.Context) (*Frame, error) {
	return g.call(ctx, func() (*Frame, error) { return g.requests.DeviceCheck(), nil })
}

func (g *Gateway) Status(ctx context.Context) (*Frame, error) {
	return g.call(ctx, func() (*Frame, error) { return g.requests.Status(), nil })
}

func (g *Gateway) Approve(ctx context.Context, req ApproveRequest) (*Approval, error) {
	return g.approval(g.call(ctx, func() (*Frame, error) { return g.requests.Approve(req) }))
}

func (g *Gateway) Cancel(ctx context.Context, req CancelRequest) (*Approval, error) {
	return g.approval(g.call(ctx, func() (*Frame, error) { return g.requests.Cancel(req) }))
}

func (g *Gateway) LastApproval(ctx context.Context) (*Approval, error) {
	return g.approval(g.call(ctx, func() (*Frame, error) { return g.requests.LastApproval(), nil }))
}

func (g *Gateway) approval(f *Frame, err error) (*Approval, error) {
	if err != nil {
		return nil, err
	}
	info := ParseApproval(f)
	if info.Diagnostics != 0 {
		g.logger.Warn("approval fields recovered",
			slog.String("job", f.Job.String()),
			slog.String("diagnostics", info.Diagnostics.String()),
		)
	}
	return &Approval{Frame: f, Info: info}, nil
}

// call holds the lock for the whole open, exchange and close sequence. ctx
// only bounds the wait in the queue and the dial; a sent request always runs
// to completion.
func (g *Gateway) call(ctx context.Context, build func() (*Frame, error)) (*Frame, error) {
	if err := g.lock.Lock(ctx); err != nil {
		return nil, fmt.Errorf("waiting for terminal: %w", err)
	}
	defer g.lock.Unlock()

	req, err := build()
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	if err := g.link.Open(ctx); err != nil {
		return nil, fmt.Errorf("opening terminal link: %w", err)
	}
	defer func() {
		if err := g.link.Close(); err != nil {
			g.logger.Warn("closing terminal link", slog.String("error", err.Error()))
		}
	}()

	return g.client.Exchange(g.link, req)
}
