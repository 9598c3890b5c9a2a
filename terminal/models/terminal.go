package models

import "time"

type ApproveRequest struct {
	TranType string `json:"tran_type,omitempty"`
	Amount   string `json:"amount"`
	Tax      string `json:"tax,omitempty"`
	Svc      string `json:"svc,omitempty"`
	Inst     string `json:"inst,omitempty"`
	NoSign   bool   `json:"no_sign"`
}

type CancelRequest struct {
	CancelType string `json:"cancel_type,omitempty"`
	TranType   string `json:"tran_type,omitempty"`
	Amount     string `json:"amount"`
	Tax        string `json:"tax,omitempty"`
	Svc        string `json:"svc,omitempty"`
	Inst       string `json:"inst,omitempty"`
	NoSign     bool   `json:"no_sign"`
	ApprovalNo string `json:"approval_no"`
	// OrgDate is YYYYMMDD and OrgTime hhmmss of the original approval.
	OrgDate string `json:"org_date"`
	OrgTime string `json:"org_time"`
	Extra   string `json:"extra,omitempty"`
}

// Packet is the JSON view of a response frame.
type Packet struct {
	TerminalID   string `json:"terminal_id"`
	Timestamp    string `json:"timestamp"`
	Job          string `json:"job"`
	ResponseCode int    `json:"response_code"`
	DataLen      int    `json:"data_len"`
	DataHex      string `json:"data_hex"`
	Degraded     bool   `json:"degraded,omitempty"`
}

type Approval struct {
	ResponseCode     int       `json:"response_code"`
	TranType         string    `json:"tran_type"`
	MediaType        string    `json:"media_type"`
	CardNoMasked     string    `json:"card_no_masked"`
	ApprovedAmount   int64     `json:"approved_amount"`
	VatAmount        int64     `json:"vat_amount"`
	SvcAmount        int64     `json:"svc_amount"`
	Installment      string    `json:"installment"`
	ApprovalNo       string    `json:"approval_no"`
	ApprovedAt       time.Time `json:"approved_at"`
	VanTransactionID string    `json:"van_transaction_id"`
	MerchantNo       string    `json:"merchant_no"`
	TerminalNo       string    `json:"terminal_no"`
	IssuerInfo       string    `json:"issuer_info,omitempty"`
	AcquirerInfo     string    `json:"acquirer_info,omitempty"`
	Diagnostics      string    `json:"diagnostics,omitempty"`
}

type TerminalResponse struct {
	Packet   Packet    `json:"packet"`
	Approval *Approval `json:"approval,omitempty"`
}
