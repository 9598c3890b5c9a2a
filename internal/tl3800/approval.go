package tl3800

import (
	"strconv"
	"strings"
	"time"

	"github.com/alovak/kioskpay/internal/fields"
	"github.com/alovak/kioskpay/internal/stamp"
)

// Approval response payload layout.
const (
	offTranType     = 0
	offMediaType    = 1
	offCardNo       = 2
	offAmount       = 22
	offVat          = 32
	offSvc          = 40
	offInstallment  = 48
	offApprovalNo   = 50
	offApprovedDate = 62
	offApprovedTime = 70
	offVanTxID      = 76
	offMerchantNo   = 88
	offTerminalNo   = 103
	offIssuer       = 117
	offAcquirer     = 137
	offVanExtra     = 157
)

// Diagnostics records the recoveries ParseApproval applied.
type Diagnostics uint16

const (
	// DiagShortPayload: the payload ended before the fixed field table.
	DiagShortPayload Diagnostics = 1 << iota
	// DiagAmountCleaned: non-digit characters were dropped from an amount.
	DiagAmountCleaned
	// DiagAmountInvalid: an amount was blank or did not fit and reads as 0.
	DiagAmountInvalid
	// DiagDateScanned: the approval time was found outside its fixed offset.
	DiagDateScanned
	// DiagDateDefaulted: no approval time was found and the parse time was used.
	DiagDateDefaulted
)

var diagNames = []struct {
	flag Diagnostics
	name string
}{
	{DiagShortPayload, "short_payload"},
	{DiagAmountCleaned, "amount_cleaned"},
	{DiagAmountInvalid, "amount_invalid"},
	{DiagDateScanned, "date_scanned"},
	{DiagDateDefaulted, "date_defaulted"},
}

func (d Diagnostics) Has(flag Diagnostics) bool {
	return d&flag != 0
}

func (d Diagnostics) String() string {
	if d == 0 {
		return "none"
	}
	var names []string
	for _, n := range diagNames {
		if d.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// ApprovalInfo is the business view of an approval, cancel or last approval
// response.
type ApprovalInfo struct {
	TerminalID   string
	ResponseCode int

	TranType  string
	MediaType string
	// CardNoMasked is masked again locally in case the terminal sent digits.
	CardNoMasked string

	ApprovedAmount int64
	VatAmount      int64
	SvcAmount      int64
	Installment    string

	ApprovalNoRaw string
	ApprovalNo    string
	ApprovedAt    time.Time

	VanTransactionID string
	MerchantNo       string
	TerminalNo       string
	// TerminalSeqNo is the trailing 4 characters of TerminalNo.
	TerminalSeqNo string

	IssuerInfo   string
	AcquirerInfo string
	VanExtra     string

	Diagnostics Diagnostics
}

// MediaName spells out the media type code.
func (a ApprovalInfo) MediaName() string {
	switch a.MediaType {
	case "1":
		return "IC"
	case "2":
		return "MS"
	case "3":
		return "RF"
	}
	return a.MediaType
}

// ParseApproval decodes f.Data. It never fails; fields it cannot read are left
// empty and the recovery is recorded in Diagnostics.
func ParseApproval(f *Frame) ApprovalInfo {
	return ParseApprovalAt(f, time.Now())
}

// ParseApprovalAt is ParseApproval with now as the fallback approval time.
func ParseApprovalAt(f *Frame, now time.Time) ApprovalInfo {
	d := f.Data
	info := ApprovalInfo{
		TerminalID:   strings.TrimSpace(f.TerminalID),
		ResponseCode: int(f.ResponseCode),
	}
	if len(d) < offVanExtra {
		info.Diagnostics |= DiagShortPayload
	}

	info.TranType = fields.Slice(d, offTranType, 1)
	info.MediaType = fields.Slice(d, offMediaType, 1)
	info.CardNoMasked = fields.MaskPAN(strings.TrimSpace(fields.Slice(d, offCardNo, 20)))

	info.ApprovedAmount = info.amount(d, offAmount, 10)
	info.VatAmount = info.amount(d, offVat, 8)
	info.SvcAmount = info.amount(d, offSvc, 8)
	info.Installment = strings.TrimSpace(fields.Slice(d, offInstallment, 2))

	info.ApprovalNoRaw = fields.Slice(d, offApprovalNo, 12)
	info.ApprovalNo = strings.TrimSpace(info.ApprovalNoRaw)
	info.ApprovedAt = info.approvedAt(d, now)

	info.VanTransactionID = strings.TrimSpace(fields.Slice(d, offVanTxID, 12))
	info.MerchantNo = strings.TrimSpace(fields.Slice(d, offMerchantNo, 15))
	info.TerminalNo = strings.TrimSpace(fields.Slice(d, offTerminalNo, 14))
	info.TerminalSeqNo = fields.LastN(info.TerminalNo, 4)

	info.IssuerInfo = strings.TrimSpace(fields.Slice(d, offIssuer, 20))
	info.AcquirerInfo = strings.TrimSpace(fields.Slice(d, offAcquirer, 20))
	if len(d) > offVanExtra {
		info.VanExtra = strings.TrimSpace(strings.ReplaceAll(string(d[offVanExtra:]), "\x00", " "))
	}
	return info
}

func (a *ApprovalInfo) amount(d []byte, offset, length int) int64 {
	raw := fields.Slice(d, offset, length)
	digits := fields.DigitsOnly(raw)
	if digits == "" {
		a.Diagnostics |= DiagAmountInvalid
		return 0
	}
	if len(digits) != len(raw) && strings.TrimSpace(raw) != digits {
		a.Diagnostics |= DiagAmountCleaned
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		a.Diagnostics |= DiagAmountInvalid
		return 0
	}
	return v
}

func (a *ApprovalInfo) approvedAt(d []byte, now time.Time) time.Time {
	loc := stamp.DefaultLocation()
	fixed := fields.DigitsOnly(fields.Slice(d, offApprovedDate, 8) + fields.Slice(d, offApprovedTime, 6))
	if len(fixed) >= 14 && stamp.Plausible14(fixed[:14]) {
		if t, err := stamp.Parse14(fixed[:14], loc); err == nil {
			return t
		}
	}
	if t, ok := stamp.Scan(string(d), loc); ok {
		a.Diagnostics |= DiagDateScanned
		return t
	}
	a.Diagnostics |= DiagDateDefaulted
	return now.In(loc)
}
