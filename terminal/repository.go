package terminal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgconn"
	"github.com/lib/pq"

	"github.com/alovak/kioskpay/terminal/models"
)

var (
	ErrNotFound = fmt.Errorf("not found")
	ErrConflict = fmt.Errorf("conflict")
)

//go:embed schema.sql
var schema string

// Repository stores payments and issues in memory, or in PostgreSQL when
// built with NewPGRepository.
type Repository struct {
	Payments []*models.Payment
	Issues   []*models.PaymentIssue

	mu sync.RWMutex
	db *sql.DB
}

func NewRepository() *Repository {
	return &Repository{
		Payments: make([]*models.Payment, 0),
		Issues:   make([]*models.PaymentIssue, 0),
	}
}

// NewPGRepository constructs a db-backed repository.
func NewPGRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the schema if it does not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

func (r *Repository) CreatePayment(ctx context.Context, p *models.Payment) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, existing := range r.Payments {
			if existing.ApprovalNo == p.ApprovalNo && existing.ApprovedAt.Equal(p.ApprovedAt) {
				return fmt.Errorf("approval %s exists: %w", p.ApprovalNo, ErrConflict)
			}
		}
		cp := *p
		r.Payments = append(r.Payments, &cp)
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kioskpay.payments(payment_id, approved_at, approval_no_raw, approval_no, amount, vat, svc,
			installment, card_masked, media_type, van_transaction_id, terminal_no, phone_number, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, p.ID, p.ApprovedAt, p.ApprovalNoRaw, p.ApprovalNo, p.Amount, p.Vat, p.Svc,
		p.Installment, p.CardMasked, p.MediaType, p.VanTransactionID, p.TerminalNo, p.PhoneNumber, string(p.Status), p.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("approval %s exists: %w", p.ApprovalNo, ErrConflict)
	}
	return err
}

const paymentColumns = `payment_id, approved_at, approval_no_raw, approval_no, amount, vat, svc,
	installment, card_masked, media_type, van_transaction_id, terminal_no, phone_number, status, created_at`

func scanPayment(row interface{ Scan(...any) error }) (*models.Payment, error) {
	var p models.Payment
	var status string
	err := row.Scan(&p.ID, &p.ApprovedAt, &p.ApprovalNoRaw, &p.ApprovalNo, &p.Amount, &p.Vat, &p.Svc,
		&p.Installment, &p.CardMasked, &p.MediaType, &p.VanTransactionID, &p.TerminalNo, &p.PhoneNumber, &status, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = models.PaymentStatus(status)
	return &p, nil
}

func (r *Repository) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, p := range r.Payments {
			if p.ID == id {
				cp := *p
				return &cp, nil
			}
		}
		return nil, ErrNotFound
	}
	p, err := scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM kioskpay.payments WHERE payment_id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListPayments returns payments newest first. An empty phone lists all.
func (r *Repository) ListPayments(ctx context.Context, phone string) ([]*models.Payment, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		out := make([]*models.Payment, 0, len(r.Payments))
		for _, p := range r.Payments {
			if phone == "" || p.PhoneNumber == phone {
				cp := *p
				out = append(out, &cp)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].ApprovedAt.After(out[j].ApprovedAt) })
		return out, nil
	}

	query := `SELECT ` + paymentColumns + ` FROM kioskpay.payments`
	args := []any{}
	if phone != "" {
		query += ` WHERE phone_number=$1`
		args = append(args, phone)
	}
	query += ` ORDER BY approved_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, p := range r.Payments {
			if p.ID == id {
				p.Status = status
				return nil
			}
		}
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `UPDATE kioskpay.payments SET status=$2 WHERE payment_id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) CreateIssue(ctx context.Context, issue *models.PaymentIssue) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		cp := *issue
		r.Issues = append(r.Issues, &cp)
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kioskpay.payment_issues(issue_id, occurred_at, amount, message, phone_number, status)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, issue.ID, issue.OccurredAt, issue.Amount, issue.Message, issue.PhoneNumber, string(issue.Status))
	return err
}

// ListIssues returns issues newest first.
func (r *Repository) ListIssues(ctx context.Context) ([]*models.PaymentIssue, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		out := make([]*models.PaymentIssue, 0, len(r.Issues))
		for _, i := range r.Issues {
			cp := *i
			out = append(out, &cp)
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT issue_id, occurred_at, amount, message, phone_number, status
		FROM kioskpay.payment_issues ORDER BY occurred_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.PaymentIssue, 0)
	for rows.Next() {
		var i models.PaymentIssue
		var status string
		if err := rows.Scan(&i.ID, &i.OccurredAt, &i.Amount, &i.Message, &i.PhoneNumber, &status); err != nil {
			return nil, err
		}
		i.Status = models.IssueStatus(status)
		out = append(out, &i)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateIssueStatus(ctx context.Context, id string, status models.IssueStatus) (*models.PaymentIssue, error) {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, i := range r.Issues {
			if i.ID == id {
				i.Status = status
				cp := *i
				return &cp, nil
			}
		}
		return nil, ErrNotFound
	}
	var i models.PaymentIssue
	var st string
	err := r.db.QueryRowContext(ctx, `
		UPDATE kioskpay.payment_issues SET status=$2 WHERE issue_id=$1
		RETURNING issue_id, occurred_at, amount, message, phone_number, status
	`, id, string(status)).Scan(&i.ID, &i.OccurredAt, &i.Amount, &i.Message, &i.PhoneNumber, &st)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	i.Status = models.IssueStatus(st)
	return &i, nil
}

// Ping returns DB readiness
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	return false
}
