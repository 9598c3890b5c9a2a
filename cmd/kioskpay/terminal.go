package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/alovak/kioskpay/internal/kioskclient"
	"github.com/alovak/kioskpay/terminal/models"
)

// terminalCmds are thin wrappers over a running server's HTTP API.
func terminalCmds() []*cobra.Command {
	simple := func(use, short string, call func(*kioskclient.Client, context.Context) (any, error)) *cobra.Command {
		cmd := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				out, err := call(clientFor(cmd), cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			},
		}
		addServerFlag(cmd)
		return cmd
	}

	return []*cobra.Command{
		simple("device-check", "Check that the terminal answers", func(c *kioskclient.Client, ctx context.Context) (any, error) {
			return c.DeviceCheck(ctx)
		}),
		simple("status", "Query the terminal status", func(c *kioskclient.Client, ctx context.Context) (any, error) {
			return c.Status(ctx)
		}),
		simple("last-approval", "Fetch the last approval stored on the terminal", func(c *kioskclient.Client, ctx context.Context) (any, error) {
			return c.LastApproval(ctx)
		}),
		simple("payments", "List stored payments", func(c *kioskclient.Client, ctx context.Context) (any, error) {
			return c.Payments(ctx, "")
		}),
		simple("issues", "List payment issues", func(c *kioskclient.Client, ctx context.Context) (any, error) {
			return c.Issues(ctx)
		}),
		approveCmd(),
		cancelCmd(),
		payCmd(),
	}
}

func addServerFlag(cmd *cobra.Command) {
	cmd.Flags().String("server", "http://localhost:9090", "kioskpay server base URL")
	cmd.Flags().Duration("timeout", kioskclient.DefaultTimeout, "HTTP timeout; raise it when other kiosks share the terminal")
}

func clientFor(cmd *cobra.Command) *kioskclient.Client {
	server, _ := cmd.Flags().GetString("server")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return kioskclient.New(server, &http.Client{Timeout: timeout})
}

func approveCmd() *cobra.Command {
	var req models.ApproveRequest
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Request a card approval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Amount == "" {
				return fmt.Errorf("--amount is required")
			}
			out, err := clientFor(cmd).Approve(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	addServerFlag(cmd)
	cmd.Flags().StringVar(&req.Amount, "amount", "", "amount in won")
	cmd.Flags().StringVar(&req.Tax, "tax", "0", "VAT amount")
	cmd.Flags().StringVar(&req.Svc, "svc", "0", "service charge")
	cmd.Flags().StringVar(&req.Inst, "inst", "00", "installment months, 00 for lump sum")
	cmd.Flags().BoolVar(&req.NoSign, "no-sign", true, "skip the signature pad")
	return cmd
}

func cancelCmd() *cobra.Command {
	var req models.CancelRequest
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a previous approval at the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Amount == "" || req.ApprovalNo == "" || req.OrgDate == "" || req.OrgTime == "" {
				return fmt.Errorf("--amount, --approval-no, --org-date and --org-time are required")
			}
			out, err := clientFor(cmd).Cancel(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	addServerFlag(cmd)
	cmd.Flags().StringVar(&req.Amount, "amount", "", "original amount")
	cmd.Flags().StringVar(&req.Tax, "tax", "0", "original VAT amount")
	cmd.Flags().StringVar(&req.Svc, "svc", "0", "original service charge")
	cmd.Flags().StringVar(&req.Inst, "inst", "00", "original installment months")
	cmd.Flags().StringVar(&req.ApprovalNo, "approval-no", "", "approval number to cancel")
	cmd.Flags().StringVar(&req.OrgDate, "org-date", "", "original approval date, YYYYMMDD")
	cmd.Flags().StringVar(&req.OrgTime, "org-time", "", "original approval time, hhmmss")
	cmd.Flags().BoolVar(&req.NoSign, "no-sign", true, "skip the signature pad")
	return cmd
}

func payCmd() *cobra.Command {
	var req models.PayRequest
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Run the kiosk pay flow and store the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := clientFor(cmd).Pay(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	addServerFlag(cmd)
	cmd.Flags().Int64Var(&req.Amount, "amount", 0, "amount in won")
	cmd.Flags().StringVar(&req.Installment, "inst", "00", "installment months")
	cmd.Flags().StringVar(&req.PhoneNumber, "phone", "", "customer phone number")
	return cmd
}
