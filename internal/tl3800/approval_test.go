package tl3800

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// approvalPayload lays out a b response payload field by field.
func approvalPayload(amount, date, time6, extra string) []byte {
	var sb strings.Builder
	sb.WriteString("1") // tran type
	sb.WriteString("1") // media IC
	sb.WriteString(pad("536510******1234", 20))
	sb.WriteString(amount)
	sb.WriteString("00000454") // vat
	sb.WriteString("00000000") // svc
	sb.WriteString("00")       // installment
	sb.WriteString(pad("30012345", 12))
	sb.WriteString(date)
	sb.WriteString(time6)
	sb.WriteString("251208000123") // van tx id
	sb.WriteString(pad("00987654321", 15))
	sb.WriteString("DPT0TEST010042")
	sb.WriteString(pad("SHINHAN", 20))
	sb.WriteString(pad("SHINHAN ACQ", 20))
	sb.WriteString(extra)
	return []byte(sb.String())
}

func pad(s string, width int) string {
	return s + strings.Repeat(" ", width-len(s))
}

func TestParseApproval(t *testing.T) {
	f := &Frame{
		TerminalID: testTerminalID,
		Job:        'b',
		Data:       approvalPayload("0000005000", "20251208", "202639", "THANK YOU"),
	}
	got := ParseApprovalAt(f, time.Now())

	want := ApprovalInfo{
		TerminalID:       testTerminalID,
		TranType:         "1",
		MediaType:        "1",
		CardNoMasked:     "536510******1234",
		ApprovedAmount:   5000,
		VatAmount:        454,
		SvcAmount:        0,
		Installment:      "00",
		ApprovalNoRaw:    "30012345    ",
		ApprovalNo:       "30012345",
		ApprovedAt:       time.Date(2025, 12, 8, 20, 26, 39, 0, time.UTC),
		VanTransactionID: "251208000123",
		MerchantNo:       "00987654321",
		TerminalNo:       "DPT0TEST010042",
		TerminalSeqNo:    "0042",
		IssuerInfo:       "SHINHAN",
		AcquirerInfo:     "SHINHAN ACQ",
		VanExtra:         "THANK YOU",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("approval mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "IC", got.MediaName())
	require.Equal(t, "none", got.Diagnostics.String())
}

func TestParseApprovalAmounts(t *testing.T) {
	f := &Frame{Data: approvalPayload("0001000   ", "20251208", "202639", "")}
	info := ParseApprovalAt(f, time.Now())
	require.Equal(t, int64(1000), info.ApprovedAmount)
	require.Zero(t, info.Diagnostics)

	f = &Frame{Data: approvalPayload("          ", "20251208", "202639", "")}
	info = ParseApprovalAt(f, time.Now())
	require.Equal(t, int64(0), info.ApprovedAmount)
	require.True(t, info.Diagnostics.Has(DiagAmountInvalid))

	f = &Frame{Data: approvalPayload("0001,000 W", "20251208", "202639", "")}
	info = ParseApprovalAt(f, time.Now())
	require.Equal(t, int64(1000), info.ApprovedAmount)
	require.True(t, info.Diagnostics.Has(DiagAmountCleaned))
}

func TestParseApprovalDateFallbacks(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	// fixed offsets hold garbage but the stamp appears in the trailing message
	f := &Frame{Data: approvalPayload("0000005000", "        ", "      ", "AT 20251209101112 OK")}
	info := ParseApprovalAt(f, now)
	require.True(t, info.ApprovedAt.Equal(time.Date(2025, 12, 9, 10, 11, 12, 0, time.UTC)), "got %v", info.ApprovedAt)
	require.True(t, info.Diagnostics.Has(DiagDateScanned))

	f = &Frame{Data: approvalPayload("0000005000", "99999999", "999999", "")}
	info = ParseApprovalAt(f, now)
	require.True(t, info.ApprovedAt.Equal(now))
	require.True(t, info.Diagnostics.Has(DiagDateDefaulted))
}

func TestParseApprovalShortPayload(t *testing.T) {
	full := approvalPayload("0000005000", "20251208", "202639", "")
	for _, n := range []int{0, 1, 21, 30, 55, 100, 156} {
		info := ParseApprovalAt(&Frame{Data: full[:n]}, time.Now())
		require.True(t, info.Diagnostics.Has(DiagShortPayload), "len %d", n)
	}

	info := ParseApprovalAt(&Frame{Data: full[:60]}, time.Now())
	require.Equal(t, int64(5000), info.ApprovedAmount)
	require.Equal(t, "30012345  ", info.ApprovalNoRaw)
	require.Empty(t, info.TerminalNo)
	require.Empty(t, info.VanExtra)
}

func TestDiagnosticsString(t *testing.T) {
	d := DiagShortPayload | DiagDateDefaulted
	require.Equal(t, "short_payload,date_defaulted", d.String())
}
