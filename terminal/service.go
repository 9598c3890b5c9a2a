package terminal

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/alovak/kioskpay/internal/fields"
	"github.com/alovak/kioskpay/internal/stamp"
	"github.com/alovak/kioskpay/internal/tl3800"
	"github.com/alovak/kioskpay/terminal/models"
)

var (
	// ErrTerminal wraps a failed exchange with the terminal, or an approval
	// that could not be stored.
	ErrTerminal = errors.New("terminal error")
	// ErrDeclined is returned when the terminal answers with a non-zero code.
	ErrDeclined       = errors.New("declined by terminal")
	ErrInvalidRequest = errors.New("invalid request")
)

// Terminal is the set of terminal operations the service needs.
// *tl3800.Gateway implements it.
type Terminal interface {
	DeviceCheck(ctx context.Context) (*tl3800.Frame, error)
	Status(ctx context.Context) (*tl3800.Frame, error)
	Approve(ctx context.Context, req tl3800.ApproveRequest) (*tl3800.Approval, error)
	Cancel(ctx context.Context, req tl3800.CancelRequest) (*tl3800.Approval, error)
	LastApproval(ctx context.Context) (*tl3800.Approval, error)
}

type Service struct {
	terminal Terminal
	repo     *Repository
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(terminal Terminal, repo *Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		terminal: terminal,
		repo:     repo,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) DeviceCheck(ctx context.Context) (*tl3800.Frame, error) {
	return s.terminal.DeviceCheck(ctx)
}

func (s *Service) Status(ctx context.Context) (*tl3800.Frame, error) {
	return s.terminal.Status(ctx)
}

func (s *Service) Approve(ctx context.Context, req tl3800.ApproveRequest) (*tl3800.Approval, error) {
	return s.terminal.Approve(ctx, req)
}

func (s *Service) Cancel(ctx context.Context, req tl3800.CancelRequest) (*tl3800.Approval, error) {
	return s.terminal.Cancel(ctx, req)
}

func (s *Service) LastApproval(ctx context.Context) (*tl3800.Approval, error) {
	return s.terminal.LastApproval(ctx)
}

// Pay runs an approval for the kiosk. An approved payment is stored; a decline
// is stored as an issue and reported with Success=false; a terminal failure is
// stored as an issue and returned as ErrTerminal. An approval that cannot be
// stored is kept as an issue carrying its approval number.
func (s *Service) Pay(ctx context.Context, req models.PayRequest) (*models.PayResponse, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	inst := req.Installment
	if inst == "" {
		inst = "00"
	}
	if len(inst) != 2 || !fields.IsDigits(inst) {
		return nil, fmt.Errorf("%w: installment must be two digits", ErrInvalidRequest)
	}

	logger := s.logger.With(slog.Int64("amount", req.Amount), slog.String("inst", inst))
	logger.Info("pay request")

	approval, err := s.terminal.Approve(ctx, tl3800.ApproveRequest{
		Amount:      strconv.FormatInt(req.Amount, 10),
		Tax:         "0",
		Svc:         "0",
		Installment: inst,
		NoSign:      true,
	})
	if err != nil {
		if errors.Is(err, tl3800.ErrInvalidField) || errors.Is(err, tl3800.ErrFieldTooLong) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		issue, ierr := s.saveIssue(ctx, s.now(), req.Amount, req.PhoneNumber, "[exception] "+err.Error())
		if ierr != nil {
			logger.Error("saving issue", "err", ierr)
		} else {
			logger.Warn("pay failed", slog.String("issue_id", issue.ID), slog.Any("err", err))
		}
		return nil, fmt.Errorf("%w: %w", ErrTerminal, err)
	}

	info := approval.Info
	if info.ResponseCode != 0 {
		issue, err := s.saveIssue(ctx, s.now(), req.Amount, req.PhoneNumber, fmt.Sprintf("[terminal declined] code=%d", info.ResponseCode))
		if err != nil {
			return nil, fmt.Errorf("saving issue: %w", err)
		}
		logger.Warn("pay declined", slog.String("issue_id", issue.ID), slog.Int("code", info.ResponseCode))
		return &models.PayResponse{IssueID: issue.ID, Message: issue.Message}, nil
	}

	payment := s.paymentFrom(info, req.PhoneNumber, req.Amount)
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		// the card is already charged; keep the approval as an issue
		msg := fmt.Sprintf("[exception] approved but not stored approval=%s van_tx=%s amount=%d: %v",
			payment.ApprovalNo, payment.VanTransactionID, payment.Amount, err)
		issue, ierr := s.saveIssue(ctx, s.now(), payment.Amount, req.PhoneNumber, msg)
		if ierr != nil {
			logger.Error("saving issue for approved payment", slog.String("approval_no", payment.ApprovalNo), slog.Any("err", ierr))
		} else {
			logger.Error("approved payment not stored", slog.String("issue_id", issue.ID), slog.String("approval_no", payment.ApprovalNo), slog.Any("err", err))
		}
		return nil, fmt.Errorf("%w: storing approval %s: %w", ErrTerminal, payment.ApprovalNo, err)
	}

	logger.Info("pay approved", slog.String("payment_id", payment.ID), slog.String("approval_no", payment.ApprovalNo))
	return &models.PayResponse{Success: true, PaymentID: payment.ID, Message: "payment approved"}, nil
}

// paymentFrom builds an approved payment from parsed approval fields. fallback
// is used when the terminal left the amount blank.
func (s *Service) paymentFrom(info tl3800.ApprovalInfo, phone string, fallback int64) *models.Payment {
	payment := &models.Payment{
		ID:               uuid.New().String(),
		ApprovedAt:       info.ApprovedAt,
		ApprovalNoRaw:    info.ApprovalNoRaw,
		ApprovalNo:       info.ApprovalNo,
		Amount:           info.ApprovedAmount,
		Vat:              info.VatAmount,
		Svc:              info.SvcAmount,
		Installment:      info.Installment,
		CardMasked:       info.CardNoMasked,
		MediaType:        info.MediaName(),
		VanTransactionID: info.VanTransactionID,
		TerminalNo:       info.TerminalNo,
		PhoneNumber:      phone,
		Status:           models.PaymentApproved,
		CreatedAt:        s.now(),
	}
	if payment.Amount == 0 {
		payment.Amount = fallback
	}
	return payment
}

func (s *Service) saveIssue(ctx context.Context, at time.Time, amount int64, phone, message string) (*models.PaymentIssue, error) {
	issue := &models.PaymentIssue{
		ID:          uuid.New().String(),
		OccurredAt:  at,
		Amount:      amount,
		Message:     message,
		PhoneNumber: phone,
		Status:      models.IssueUnresolved,
	}
	if err := s.repo.CreateIssue(ctx, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// ReportSuccess stores a payment approved by a local agent. The packet must
// pass the strict frame checks and carry response code 0.
func (s *Service) ReportSuccess(ctx context.Context, report models.PaySuccessReport) (*models.Payment, error) {
	frame, err := decodePacket(report.TLPacketHex)
	if err != nil {
		return nil, err
	}
	info := tl3800.ParseApprovalAt(frame, s.now())
	if info.ResponseCode != 0 {
		return nil, fmt.Errorf("%w: packet carries response code %d", ErrInvalidRequest, info.ResponseCode)
	}

	payment := s.paymentFrom(info, report.PayRequest.PhoneNumber, report.ApprovedAmount)
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("saving payment: %w", err)
	}
	s.logger.Info("payment reported",
		slog.String("payment_id", payment.ID),
		slog.String("approval_no", payment.ApprovalNo),
		slog.String("van_tx", payment.VanTransactionID),
		slog.String("diagnostics", info.Diagnostics.String()))
	return payment, nil
}

// ReportFailure stores an issue reported by a local agent. The issue is timed
// from the packet when one is attached and readable, and from now otherwise.
func (s *Service) ReportFailure(ctx context.Context, report models.PayFailureReport) (*models.PaymentIssue, error) {
	if strings.TrimSpace(report.Reason) == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidRequest)
	}

	at := s.now()
	if report.TLPacketHex != "" {
		frame, err := decodePacket(report.TLPacketHex)
		if err != nil {
			s.logger.Warn("failure report packet unreadable, using receipt time", slog.Any("err", err))
		} else if info := tl3800.ParseApprovalAt(frame, at); !info.Diagnostics.Has(tl3800.DiagDateDefaulted) {
			at = info.ApprovedAt
		}
	}

	message := report.Reason
	if report.RespCode != nil {
		message = fmt.Sprintf("[respCode=%d] %s", *report.RespCode, report.Reason)
	}

	issue, err := s.saveIssue(ctx, at, report.RequestedAmount, report.PayRequest.PhoneNumber, message)
	if err != nil {
		return nil, fmt.Errorf("saving issue: %w", err)
	}
	s.logger.Warn("payment failure reported", slog.String("issue_id", issue.ID), slog.String("message", message))
	return issue, nil
}

func decodePacket(packetHex string) (*tl3800.Frame, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(packetHex))
	if err != nil {
		return nil, fmt.Errorf("%w: packet hex: %w", ErrInvalidRequest, err)
	}
	frame, err := tl3800.ParseStrict(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return frame, nil
}

// CancelPayment voids a stored payment at the terminal and marks it canceled.
func (s *Service) CancelPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("finding payment: %w", err)
	}
	if payment.Status == models.PaymentCanceled {
		return nil, fmt.Errorf("payment %s already canceled: %w", paymentID, ErrConflict)
	}

	approvedAt := payment.ApprovedAt.In(stamp.DefaultLocation())
	approval, err := s.terminal.Cancel(ctx, tl3800.CancelRequest{
		Amount:      strconv.FormatInt(payment.Amount, 10),
		Tax:         strconv.FormatInt(payment.Vat, 10),
		Svc:         strconv.FormatInt(payment.Svc, 10),
		Installment: payment.Installment,
		NoSign:      true,
		ApprovalNo:  payment.ApprovalNo,
		OrgDate:     stamp.Date8(approvedAt),
		OrgTime:     stamp.Time6(approvedAt),
	})
	if err != nil {
		if errors.Is(err, tl3800.ErrInvalidField) || errors.Is(err, tl3800.ErrFieldTooLong) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTerminal, err)
	}
	if code := approval.Info.ResponseCode; code != 0 {
		return nil, fmt.Errorf("%w: code=%d", ErrDeclined, code)
	}

	if err := s.repo.UpdatePaymentStatus(ctx, paymentID, models.PaymentCanceled); err != nil {
		return nil, fmt.Errorf("updating payment: %w", err)
	}
	payment.Status = models.PaymentCanceled
	s.logger.Info("payment canceled", slog.String("payment_id", paymentID), slog.String("approval_no", payment.ApprovalNo))
	return payment, nil
}

func (s *Service) ListPayments(ctx context.Context, phone string) ([]*models.Payment, error) {
	payments, err := s.repo.ListPayments(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	return payments, nil
}

func (s *Service) ListIssues(ctx context.Context) ([]*models.PaymentIssue, error) {
	issues, err := s.repo.ListIssues(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing issues: %w", err)
	}
	return issues, nil
}

func (s *Service) UpdateIssueStatus(ctx context.Context, issueID string, status models.IssueStatus) (*models.PaymentIssue, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}
	issue, err := s.repo.UpdateIssueStatus(ctx, issueID, status)
	if err != nil {
		return nil, fmt.Errorf("updating issue: %w", err)
	}
	return issue, nil
}
