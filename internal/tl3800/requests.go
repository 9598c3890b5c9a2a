package tl3800

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/alovak/kioskpay/internal/fields"
	"github.com/alovak/kioskpay/internal/stamp"
)

// ApproveRequest carries the amounts of a purchase. Amount fields are decimal
// digit strings.
type ApproveRequest struct {
	// TranType defaults to "1" (approval).
	TranType    string
	Amount      string
	Tax         string
	Svc         string
	Installment string
	NoSign      bool
}

// CancelRequest identifies the original transaction to reverse.
type CancelRequest struct {
	CancelType  string
	TranType    string
	Amount      string
	Tax         string
	Svc         string
	Installment string
	NoSign      bool
	ApprovalNo  string
	// OrgDate is YYYYMMDD and OrgTime is hhmmss of the original approval.
	OrgDate string
	OrgTime string
	Extra   string
}

const (
	approvePayloadLen = 30
	maxCancelExtra    = 99
)

// Requests builds request frames addressed to one terminal.
type Requests struct {
	terminalID string
	now        func() time.Time
}

func NewRequests(terminalID string) *Requests {
	return &Requests{terminalID: terminalID, now: time.Now}
}

func (r *Requests) frame(job JobCode, data []byte) *Frame {
	return &Frame{
		TerminalID: r.terminalID,
		Timestamp:  stamp.Format14(r.now()),
		Job:        job,
		Data:       data,
	}
}

func (r *Requests) DeviceCheck() *Frame {
	return r.frame(JobDeviceCheck, nil)
}

func (r *Requests) LastApproval() *Frame {
	return r.frame(JobLastApproval, nil)
}

func (r *Requests) Status() *Frame {
	return r.frame(JobStatus, nil)
}

func (r *Requests) Approve(req ApproveRequest) (*Frame, error) {
	data, err := ApprovePayload(req)
	if err != nil {
		return nil, err
	}
	return r.frame(JobApprove, data), nil
}

func (r *Requests) Cancel(req CancelRequest) (*Frame, error) {
	data, err := CancelPayload(req)
	if err != nil {
		return nil, err
	}
	return r.frame(JobCancel, data), nil
}

// ApprovePayload lays out tranType(1) amount(10) tax(8) svc(8) installment(2)
// and the signature flag(1).
func ApprovePayload(req ApproveRequest) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(approvePayloadLen)

	w := payloadWriter{buf: &buf}
	w.flag("tran type", req.TranType, "1")
	writeAmounts(&w, req.Amount, req.Tax, req.Svc, req.Installment)
	w.raw(signFlag(req.NoSign))
	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

// CancelPayload lays out the approve fields preceded by cancelType(1), then
// approvalNo(12, space padded) orgDate(8) orgTime(6) extraLen(2) and extra.
func CancelPayload(req CancelRequest) ([]byte, error) {
	if err := stamp.ValidateDate8(req.OrgDate); err != nil {
		return nil, fmt.Errorf("%w: original date: %v", ErrInvalidField, err)
	}
	if err := stamp.ValidateTime6(req.OrgTime); err != nil {
		return nil, fmt.Errorf("%w: original time: %v", ErrInvalidField, err)
	}
	if len(req.Extra) > maxCancelExtra {
		return nil, fmt.Errorf("%w: extra of %d bytes exceeds %d", ErrFieldTooLong, len(req.Extra), maxCancelExtra)
	}

	var buf bytes.Buffer
	w := payloadWriter{buf: &buf}
	w.flag("cancel type", req.CancelType, "1")
	w.flag("tran type", req.TranType, "1")
	writeAmounts(&w, req.Amount, req.Tax, req.Svc, req.Installment)
	w.raw(signFlag(req.NoSign))
	w.text("approval number", strings.TrimSpace(req.ApprovalNo), 12)
	w.raw(req.OrgDate)
	w.raw(req.OrgTime)
	w.numeric("extra length", fmt.Sprint(len(req.Extra)), 2)
	w.ascii("extra", req.Extra)
	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

func writeAmounts(w *payloadWriter, amount, tax, svc, installment string) {
	w.numeric("amount", amount, 10)
	w.numeric("tax", tax, 8)
	w.numeric("service charge", svc, 8)
	w.numeric("installment", installment, 2)
}

func signFlag(noSign bool) string {
	if noSign {
		return "1"
	}
	return "2"
}

// payloadWriter appends fixed-width fields and keeps the first error.
type payloadWriter struct {
	buf *bytes.Buffer
	err error
}

func (w *payloadWriter) numeric(name, value string, width int) {
	if w.err != nil {
		return
	}
	b, err := fields.Numeric(value, width)
	if err != nil {
		w.err = fmt.Errorf("%s: %w", name, err)
		return
	}
	w.buf.Write(b)
}

func (w *payloadWriter) text(name, value string, width int) {
	if w.err != nil {
		return
	}
	if _, err := asciiField(name, value); err != nil {
		w.err = err
		return
	}
	b, err := fields.Text(value, width)
	if err != nil {
		w.err = fmt.Errorf("%s: %w", name, err)
		return
	}
	w.buf.Write(b)
}

// flag writes a one-character code, falling back to def when value is blank.
func (w *payloadWriter) flag(name, value, def string) {
	v := strings.TrimSpace(value)
	if v == "" {
		v = def
	}
	w.text(name, v, 1)
}

func (w *payloadWriter) ascii(name, value string) {
	if w.err != nil {
		return
	}
	b, err := asciiField(name, value)
	if err != nil {
		w.err = err
		return
	}
	w.buf.Write(b)
}

func (w *payloadWriter) raw(value string) {
	if w.err != nil {
		return
	}
	w.buf.WriteString(value)
}
