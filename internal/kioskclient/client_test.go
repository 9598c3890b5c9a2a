package kioskclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/alovak/kioskpay/internal/tl3800"
	"github.com/alovak/kioskpay/terminal/models"
)

func TestClient(t *testing.T) {
	var gotPay models.PayRequest
	var gotPhone string

	r := chi.NewRouter()
	r.Post("/api/tl3800/device-check", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.TerminalResponse{Packet: models.Packet{Job: "DEVICE_CHECK(a)", TerminalID: "DPT0TEST03"}})
	})
	r.Post("/pay", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPay)
		json.NewEncoder(w).Encode(models.PayResponse{Success: true, PaymentID: "p-1", Message: "payment approved"})
	})
	r.Get("/payments", func(w http.ResponseWriter, r *http.Request) {
		gotPhone = r.URL.Query().Get("phone")
		json.NewEncoder(w).Encode([]models.Payment{{ID: "p-1", Amount: 5000}})
	})
	r.Post("/api/pay/success", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.Payment{ID: "p-2", ApprovalNo: "30012345"})
	})
	r.Post("/api/pay/failure", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.PaymentIssue{ID: "i-1", Message: "[respCode=49] card declined"})
	})
	r.Post("/api/tl3800/approve", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "exchange: ack timeout", http.StatusGatewayTimeout)
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	c := New(srv.URL+"/", nil)
	ctx := context.Background()

	dc, err := c.DeviceCheck(ctx)
	require.NoError(t, err)
	require.Equal(t, "DPT0TEST03", dc.Packet.TerminalID)

	pay, err := c.Pay(ctx, models.PayRequest{Amount: 5000, Installment: "00", PhoneNumber: "01012345678"})
	require.NoError(t, err)
	require.True(t, pay.Success)
	require.Equal(t, int64(5000), gotPay.Amount)

	payments, err := c.Payments(ctx, "01012345678")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, "01012345678", gotPhone)

	reported, err := c.ReportSuccess(ctx, models.PaySuccessReport{ApprovedAmount: 5000, TLPacketHex: "02"})
	require.NoError(t, err)
	require.Equal(t, "p-2", reported.ID)

	issue, err := c.ReportFailure(ctx, models.PayFailureReport{RequestedAmount: 5000, Reason: "card declined"})
	require.NoError(t, err)
	require.Equal(t, "i-1", issue.ID)

	_, err = c.Approve(ctx, models.ApproveRequest{Amount: "5000"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusGatewayTimeout, statusErr.Code)
	require.Equal(t, "exchange: ack timeout", statusErr.Body)
}

func TestDefaultTimeoutCoversExchange(t *testing.T) {
	require.Greater(t, DefaultTimeout, tl3800.DefaultConfig().Budget())
	require.Equal(t, DefaultTimeout, New("http://localhost", nil).HTTP.Timeout)
}
