package models

import "time"

type PaymentStatus string

const (
	PaymentApproved PaymentStatus = "APPROVED"
	PaymentCanceled PaymentStatus = "CANCELED"
)

type Payment struct {
	ID         string    `json:"id"`
	ApprovedAt time.Time `json:"approved_at"`
	// ApprovalNoRaw keeps the terminal's padded value; ApprovalNo is trimmed.
	ApprovalNoRaw    string        `json:"approval_no_raw"`
	ApprovalNo       string        `json:"approval_no"`
	Amount           int64         `json:"amount"`
	Vat              int64         `json:"vat"`
	Svc              int64         `json:"svc"`
	Installment      string        `json:"installment"`
	CardMasked       string        `json:"card_masked"`
	MediaType        string        `json:"media_type"`
	VanTransactionID string        `json:"van_transaction_id"`
	TerminalNo       string        `json:"terminal_no"`
	PhoneNumber      string        `json:"phone_number,omitempty"`
	Status           PaymentStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
}

type IssueStatus string

const (
	IssueUnresolved IssueStatus = "UNRESOLVED"
	IssueInProgress IssueStatus = "IN_PROGRESS"
	IssueResolved   IssueStatus = "RESOLVED"
)

func (s IssueStatus) Valid() bool {
	switch s {
	case IssueUnresolved, IssueInProgress, IssueResolved:
		return true
	}
	return false
}

// PaymentIssue records a payment attempt that did not end in an approval.
type PaymentIssue struct {
	ID          string      `json:"id"`
	OccurredAt  time.Time   `json:"occurred_at"`
	Amount      int64       `json:"amount"`
	Message     string      `json:"message"`
	PhoneNumber string      `json:"phone_number,omitempty"`
	Status      IssueStatus `json:"status"`
}

type PayRequest struct {
	Amount int64 `json:"amount"`
	// Installment is two digits, "00" for a lump sum.
	Installment string `json:"installment"`
	PhoneNumber string `json:"phone_number"`
}

type PayResponse struct {
	Success   bool   `json:"success"`
	PaymentID string `json:"payment_id,omitempty"`
	IssueID   string `json:"issue_id,omitempty"`
	Message   string `json:"message"`
}

type UpdateIssueStatus struct {
	Status IssueStatus `json:"status"`
}

// PaySuccessReport is posted by a local agent that ran an approval itself.
// TLPacketHex is the full response frame, STX through checksum.
type PaySuccessReport struct {
	PayRequest     PayRequest `json:"pay_request"`
	ApprovedAmount int64      `json:"approved_amount"`
	TLPacketHex    string     `json:"tl_packet_hex"`
}

// PayFailureReport is posted by a local agent when an approval failed. The
// packet is optional; without it the issue is timed at receipt.
type PayFailureReport struct {
	PayRequest      PayRequest `json:"pay_request"`
	RequestedAmount int64      `json:"requested_amount"`
	Reason          string     `json:"reason"`
	RespCode        *int       `json:"resp_code,omitempty"`
	TLPacketHex     string     `json:"tl_packet_hex,omitempty"`
}
