package terminal_test

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/alovak/kioskpay/terminal"
	"github.com/alovak/kioskpay/terminal/models"
)

// TestPGRepositoryPayments runs the pay flow against PostgreSQL.
// Skips unless DB_DSN is provided and REPO_BACKEND=pg.
func TestPGRepositoryPayments(t *testing.T) {
	if os.Getenv("REPO_BACKEND") != "pg" {
		t.Skip("REPO_BACKEND != pg; skipping DB integration test")
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("DB_DSN not set; skipping DB integration test")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping())

	ctx := context.Background()
	repo := terminal.NewPGRepository(db)
	require.NoError(t, repo.Migrate(ctx))

	phone := "010" + uuid.New().String()[:8]
	svc := terminal.NewService(&fakeTerminal{}, repo, nil)

	resp, err := svc.Pay(ctx, models.PayRequest{Amount: 5000, PhoneNumber: phone})
	require.NoError(t, err)
	require.True(t, resp.Success)
	t.Cleanup(func() {
		db.Exec(`delete from kioskpay.payments where payment_id=$1`, resp.PaymentID)
	})

	// same approval number and time again violates the unique constraint
	_, err = svc.Pay(ctx, models.PayRequest{Amount: 5000, PhoneNumber: phone})
	require.ErrorIs(t, err, terminal.ErrConflict)

	payments, err := svc.ListPayments(ctx, phone)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, "30012345", payments[0].ApprovalNo)

	canceled, err := svc.CancelPayment(ctx, resp.PaymentID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentCanceled, canceled.Status)

	stored, err := repo.GetPayment(ctx, resp.PaymentID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentCanceled, stored.Status)
}
