package terminal

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alovak/kioskpay/internal/tl3800"
	"github.com/alovak/kioskpay/internal/transport"
	"github.com/alovak/kioskpay/terminal/models"
)

// API is a HTTP API for the payment service
type API struct {
	svc *Service
}

func NewAPI(svc *Service) *API {
	return &API{
		svc: svc,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Route("/api/tl3800", func(r chi.Router) {
		r.Post("/device-check", a.deviceCheck)
		r.Post("/status", a.status)
		r.Post("/approve", a.approve)
		r.Post("/cancel", a.cancel)
		r.Post("/last-approval", a.lastApproval)
	})

	r.Post("/pay", a.pay)
	r.Route("/api/pay", func(r chi.Router) {
		r.Post("/success", a.reportSuccess)
		r.Post("/failure", a.reportFailure)
	})
	r.Route("/payments", func(r chi.Router) {
		r.Get("/", a.listPayments)
		r.Post("/{paymentID}/cancel", a.cancelPayment)
	})
	r.Route("/payment-issues", func(r chi.Router) {
		r.Get("/", a.listIssues)
		r.Patch("/{issueID}", a.updateIssueStatus)
	})
}

func (a *API) deviceCheck(w http.ResponseWriter, r *http.Request) {
	f, err := a.svc.DeviceCheck(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.TerminalResponse{Packet: PacketView(f)})
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	f, err := a.svc.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.TerminalResponse{Packet: PacketView(f)})
}

func (a *API) approve(w http.ResponseWriter, r *http.Request) {
	req := models.ApproveRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	approval, err := a.svc.Approve(r.Context(), tl3800.ApproveRequest{
		TranType:    req.TranType,
		Amount:      req.Amount,
		Tax:         req.Tax,
		Svc:         req.Svc,
		Installment: req.Inst,
		NoSign:      req.NoSign,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ApprovalResponse(approval))
}

func (a *API) cancel(w http.ResponseWriter, r *http.Request) {
	req := models.CancelRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	approval, err := a.svc.Cancel(r.Context(), tl3800.CancelRequest{
		CancelType:  req.CancelType,
		TranType:    req.TranType,
		Amount:      req.Amount,
		Tax:         req.Tax,
		Svc:         req.Svc,
		Installment: req.Inst,
		NoSign:      req.NoSign,
		ApprovalNo:  req.ApprovalNo,
		OrgDate:     req.OrgDate,
		OrgTime:     req.OrgTime,
		Extra:       req.Extra,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ApprovalResponse(approval))
}

func (a *API) lastApproval(w http.ResponseWriter, r *http.Request) {
	approval, err := a.svc.LastApproval(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ApprovalResponse(approval))
}

func (a *API) pay(w http.ResponseWriter, r *http.Request) {
	req := models.PayRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := a.svc.Pay(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) reportSuccess(w http.ResponseWriter, r *http.Request) {
	report := models.PaySuccessReport{}
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	payment, err := a.svc.ReportSuccess(r.Context(), report)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (a *API) reportFailure(w http.ResponseWriter, r *http.Request) {
	report := models.PayFailureReport{}
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	issue, err := a.svc.ReportFailure(r.Context(), report)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (a *API) listPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := a.svc.ListPayments(r.Context(), r.URL.Query().Get("phone"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (a *API) cancelPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := a.svc.CancelPayment(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (a *API) listIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := a.svc.ListIssues(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

func (a *API) updateIssueStatus(w http.ResponseWriter, r *http.Request) {
	req := models.UpdateIssueStatus{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	issue, err := a.svc.UpdateIssueStatus(r.Context(), chi.URLParam(r, "issueID"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, tl3800.ErrInvalidField),
		errors.Is(err, tl3800.ErrFieldTooLong):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case tl3800.IsTimeout(err):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrTerminal),
		errors.Is(err, tl3800.ErrNakExceeded),
		errors.Is(err, tl3800.ErrMalformedFrame),
		errors.Is(err, transport.ErrPeerClosed):
		return http.StatusBadGateway
	case errors.Is(err, ErrConflict), errors.Is(err, ErrDeclined):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PacketView is the JSON view of a response frame.
func PacketView(f *tl3800.Frame) models.Packet {
	return models.Packet{
		TerminalID:   f.TerminalID,
		Timestamp:    f.Timestamp,
		Job:          f.Job.String(),
		ResponseCode: int(f.ResponseCode),
		DataLen:      len(f.Data),
		DataHex:      hex.EncodeToString(f.Data),
		Degraded:     f.Degraded,
	}
}

// ApprovalResponse pairs the frame view with its decoded approval fields.
func ApprovalResponse(a *tl3800.Approval) models.TerminalResponse {
	info := a.Info
	return models.TerminalResponse{
		Packet: PacketView(a.Frame),
		Approval: &models.Approval{
			ResponseCode:     info.ResponseCode,
			TranType:         info.TranType,
			MediaType:        info.MediaName(),
			CardNoMasked:     info.CardNoMasked,
			ApprovedAmount:   info.ApprovedAmount,
			VatAmount:        info.VatAmount,
			SvcAmount:        info.SvcAmount,
			Installment:      info.Installment,
			ApprovalNo:       info.ApprovalNo,
			ApprovedAt:       info.ApprovedAt,
			VanTransactionID: info.VanTransactionID,
			MerchantNo:       info.MerchantNo,
			TerminalNo:       info.TerminalNo,
			IssuerInfo:       info.IssuerInfo,
			AcquirerInfo:     info.AcquirerInfo,
			Diagnostics:      diagnostics(info.Diagnostics),
		},
	}
}

func diagnostics(d tl3800.Diagnostics) string {
	if d == 0 {
		return ""
	}
	return d.String()
}
