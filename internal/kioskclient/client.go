// Package kioskclient calls a running kioskpay server.
package kioskclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alovak/kioskpay/internal/tl3800"
	"github.com/alovak/kioskpay/terminal/models"
)

type Client struct {
	Base string
	HTTP *http.Client
}

// DefaultTimeout covers one exchange under the default terminal timings plus
// a margin. A request queued behind other callers can take longer; pass a
// client with a larger timeout when the terminal is shared.
var DefaultTimeout = tl3800.DefaultConfig().Budget() + 30*time.Second

// New returns a client for base. A nil hc uses DefaultTimeout.
func New(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{Base: strings.TrimRight(base, "/"), HTTP: hc}
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status=%d body=%s", e.Code, e.Body)
}

func (c *Client) DeviceCheck(ctx context.Context) (*models.TerminalResponse, error) {
	return request[models.TerminalResponse](ctx, c, http.MethodPost, "/api/tl3800/device-check", nil)
}

func (c *Client) Status(ctx context.Context) (*models.TerminalResponse, error) {
	return request[models.TerminalResponse](ctx, c, http.MethodPost, "/api/tl3800/status", nil)
}

func (c *Client) Approve(ctx context.Context, req models.ApproveRequest) (*models.TerminalResponse, error) {
	return request[models.TerminalResponse](ctx, c, http.MethodPost, "/api/tl3800/approve", req)
}

func (c *Client) Cancel(ctx context.Context, req models.CancelRequest) (*models.TerminalResponse, error) {
	return request[models.TerminalResponse](ctx, c, http.MethodPost, "/api/tl3800/cancel", req)
}

func (c *Client) LastApproval(ctx context.Context) (*models.TerminalResponse, error) {
	return request[models.TerminalResponse](ctx, c, http.MethodPost, "/api/tl3800/last-approval", nil)
}

func (c *Client) Pay(ctx context.Context, req models.PayRequest) (*models.PayResponse, error) {
	return request[models.PayResponse](ctx, c, http.MethodPost, "/pay", req)
}

// ReportSuccess posts an approval a local agent ran against its own terminal.
func (c *Client) ReportSuccess(ctx context.Context, report models.PaySuccessReport) (*models.Payment, error) {
	return request[models.Payment](ctx, c, http.MethodPost, "/api/pay/success", report)
}

func (c *Client) ReportFailure(ctx context.Context, report models.PayFailureReport) (*models.PaymentIssue, error) {
	return request[models.PaymentIssue](ctx, c, http.MethodPost, "/api/pay/failure", report)
}

func (c *Client) CancelPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return request[models.Payment](ctx, c, http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/cancel", nil)
}

// Payments lists payments, filtered by phone when it is not empty.
func (c *Client) Payments(ctx context.Context, phone string) ([]models.Payment, error) {
	target := "/payments"
	if phone != "" {
		target += "?" + url.Values{"phone": {phone}}.Encode()
	}
	var out []models.Payment
	if err := c.do(ctx, http.MethodGet, target, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Issues(ctx context.Context) ([]models.PaymentIssue, error) {
	var out []models.PaymentIssue
	if err := c.do(ctx, http.MethodGet, "/payment-issues", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateIssueStatus(ctx context.Context, issueID string, status models.IssueStatus) (*models.PaymentIssue, error) {
	return request[models.PaymentIssue](ctx, c, http.MethodPatch, "/payment-issues/"+url.PathEscape(issueID), models.UpdateIssueStatus{Status: status})
}

func request[T any](ctx context.Context, c *Client, method, path string, body any) (*T, error) {
	var out T
	if err := c.do(ctx, method, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %w", method, path, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))})
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
