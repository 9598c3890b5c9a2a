package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alovak/kioskpay/internal/tl3800"
	"github.com/alovak/kioskpay/internal/transport"
	"github.com/alovak/kioskpay/terminal"
	"github.com/alovak/kioskpay/terminal/models"
)

type replayOptions struct {
	fixture    string
	capture    string
	job        string
	terminalID string
	amount     string
	approvalNo string
	orgDate    string
	orgTime    string
}

func replayCmd() *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run one exchange against captured terminal bytes",
		Long: `Run one exchange against a binary fixture instead of a live terminal.

The fixture holds the raw bytes the terminal sent (ACK, events, response
frame). Every byte the client sends is appended to the capture file.

Examples:
  kioskpay replay --fixture testdata/approve.bin --job approve --amount 5000
  kioskpay replay --fixture device.bin --capture out.bin --job device-check`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.fixture, "fixture", "", "binary fixture with the terminal's bytes")
	cmd.Flags().StringVar(&opts.capture, "capture", "", "file to append sent bytes to")
	cmd.Flags().StringVar(&opts.job, "job", "device-check", "device-check, status, approve, cancel or last-approval")
	cmd.Flags().StringVar(&opts.terminalID, "terminal-id", terminal.DefaultConfig().Terminal.ID, "terminal id written into requests")
	cmd.Flags().StringVar(&opts.amount, "amount", "", "amount for approve and cancel")
	cmd.Flags().StringVar(&opts.approvalNo, "approval-no", "", "approval number for cancel")
	cmd.Flags().StringVar(&opts.orgDate, "org-date", "", "original date for cancel, YYYYMMDD")
	cmd.Flags().StringVar(&opts.orgTime, "org-time", "", "original time for cancel, hhmmss")
	cmd.MarkFlagRequired("fixture")
	return cmd
}

func runReplay(cmd *cobra.Command, opts replayOptions) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	link, err := transport.OpenReplayFile(opts.fixture, opts.capture)
	if err != nil {
		return err
	}
	defer link.Release()

	client := tl3800.NewClient(tl3800.DefaultConfig(), logger, nil)
	gateway := tl3800.NewGateway(link, client, tl3800.NewRequests(opts.terminalID), logger)
	ctx := cmd.Context()

	var out models.TerminalResponse
	switch opts.job {
	case "device-check":
		f, err := gateway.DeviceCheck(ctx)
		if err != nil {
			return err
		}
		out.Packet = terminal.PacketView(f)
	case "status":
		f, err := gateway.Status(ctx)
		if err != nil {
			return err
		}
		out.Packet = terminal.PacketView(f)
	case "approve":
		a, err := gateway.Approve(ctx, tl3800.ApproveRequest{Amount: opts.amount, NoSign: true})
		if err != nil {
			return err
		}
		out = terminal.ApprovalResponse(a)
	case "cancel":
		a, err := gateway.Cancel(ctx, tl3800.CancelRequest{
			Amount:     opts.amount,
			NoSign:     true,
			ApprovalNo: opts.approvalNo,
			OrgDate:    opts.orgDate,
			OrgTime:    opts.orgTime,
		})
		if err != nil {
			return err
		}
		out = terminal.ApprovalResponse(a)
	case "last-approval":
		a, err := gateway.LastApproval(ctx)
		if err != nil {
			return err
		}
		out = terminal.ApprovalResponse(a)
	default:
		return fmt.Errorf("unknown job %q", opts.job)
	}
	return printJSON(cmd.OutOrStdout(), out)
}
