package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"plow/internal/app"
	"plow/internal/modules/dispatch"
	"plow/internal/modules/job"
	"plow/internal/modules/queue"
	"plow/internal/types"
)

func GetCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "get [job-id]",
		Short: "Show a job with its transactions and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd, func(ctx context.Context, a *app.App) error {
				id := types.ID(args[0])
				j, err := a.Service.Get(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to load job: %w", err)
				}
				txns, err := a.Service.Transactions(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to load transactions: %w", err)
				}
				events, err := a.Service.Events(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to load events: %w", err)
				}
				if env.asJSON {
					return printJSON(env.Out, map[string]any{
						"job":          j,
						"transactions": txns.Transactions,
						"entries":      txns.Entries,
						"events":       events,
					})
				}
				printJob(env.Out, j)
				if len(txns.Transactions) > 0 {
					fmt.Fprintln(env.Out, "\nTransactions:")
					w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
					fmt.Fprintln(w, "  ID\tSTATUS\tAMOUNT\tFEE\tPAYOUT")
					for _, t := range txns.Transactions {
						fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", t.ID, t.Status,
							formatMinor(t.Amount, t.Currency), formatMinor(t.PlatformFee, t.Currency), formatMinor(t.PayoutAmount, t.Currency))
					}
					w.Flush()
				}
				if len(txns.Entries) > 0 {
					fmt.Fprintln(env.Out, "\nLedger:")
					for _, e := range txns.Entries {
						fmt.Fprintf(env.Out, "  %s  %-8s %d\n", e.CreatedAt.Format(time.RFC3339), e.Kind, e.Amount)
					}
				}
				if len(events) > 0 {
					fmt.Fprintln(env.Out, "\nHistory:")
					for _, e := range events {
						actor := "system"
						if e.ActorID != nil {
							actor = string(*e.ActorID)
						}
						from := string(e.FromStatus)
						if from == "" {
							from = "-"
						}
						fmt.Fprintf(env.Out, "  %s  %s → %s by %s\n", e.CreatedAt.Format(time.RFC3339), from, statusColor(e.ToStatus).Sprint(e.ToStatus), actor)
					}
				}
				return nil
			})
		},
	}
}

func QueueCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue [operator-id]",
		Short: "Show an operator's active job and queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("policy")
			policy, err := queue.ParsePolicy(raw)
			if err != nil {
				return err
			}
			return env.run(cmd, func(ctx context.Context, a *app.App) error {
				v, err := a.Service.OperatorQueue(ctx, types.ID(args[0]), policy)
				if err != nil {
					return fmt.Errorf("failed to build queue: %w", err)
				}
				if env.asJSON {
					return printJSON(env.Out, v)
				}
				fmt.Fprintf(env.Out, "Operator %s (%s)\n", v.OperatorID, v.Policy)
				if v.Active != nil {
					fmt.Fprintf(env.Out, "  Active: %s %s\n", v.Active.ID, statusColor(v.Active.Status).Sprint(v.Active.Status))
				} else {
					fmt.Fprintln(env.Out, "  Active: none")
				}
				w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
				for _, e := range v.Queued {
					dist := "?"
					if e.DistanceKm != nil {
						dist = fmt.Sprintf("%.1fkm", *e.DistanceKm)
					}
					fmt.Fprintf(w, "  %d.\t%s\t%s\t%s\n", e.Position, e.Job.ID, e.Job.Details.Address, dist)
				}
				w.Flush()
				for _, j := range v.InReview {
					fmt.Fprintf(env.Out, "  In review: %s\n", j.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("policy", string(queue.PolicyFCFS), "ordering policy (fcfs or nearest)")
	return cmd
}

func ReopenCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reopen [job-id]",
		Short: "Return a cancelled job to pending",
		Long:  "Return a cancelled job to pending. Card jobs are re-authorized with --payment-method.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, err := env.adminID()
			if err != nil {
				return err
			}
			pm, _ := cmd.Flags().GetString("payment-method")
			return env.run(cmd, func(ctx context.Context, a *app.App) error {
				j, err := a.Service.Reopen(ctx, dispatch.ReopenCommand{
					JobID:            types.ID(args[0]),
					AdminID:          admin,
					PaymentMethodRef: pm,
				})
				if err != nil {
					return fmt.Errorf("failed to reopen job: %w", err)
				}
				if env.asJSON {
					return printJSON(env.Out, j)
				}
				fmt.Fprintf(env.Out, "%s Reopened job %s\n", green.Sprint("✓"), j.ID)
				printJob(env.Out, j)
				return nil
			})
		},
	}
	cmd.Flags().String("payment-method", "", "payment method reference for a fresh hold")
	return cmd
}

func RefundCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refund [job-id]",
		Short: "Refund a paid card job and cancel it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, err := env.adminID()
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			return env.run(cmd, func(ctx context.Context, a *app.App) error {
				j, err := a.Service.Refund(ctx, dispatch.RefundCommand{
					JobID:   types.ID(args[0]),
					AdminID: admin,
					Reason:  reason,
				})
				if err != nil {
					return fmt.Errorf("failed to refund job: %w", err)
				}
				if env.asJSON {
					return printJSON(env.Out, j)
				}
				fmt.Fprintf(env.Out, "%s Refunded job %s\n", green.Sprint("✓"), j.ID)
				printJob(env.Out, j)
				return nil
			})
		},
	}
	cmd.Flags().String("reason", "", "reason recorded on the job")
	return cmd
}

func printJob(out io.Writer, j *job.Job) {
	fmt.Fprintf(out, "Job %s\n", j.ID)
	fmt.Fprintf(out, "  Status:  %s\n", statusColor(j.Status).Sprint(j.Status))
	fmt.Fprintf(out, "  Payment: %s (%s)\n", paymentColor(j.PaymentStatus).Sprint(j.PaymentStatus), j.PaymentMethod)
	fmt.Fprintf(out, "  Client:  %s\n", j.ClientID)
	if j.OperatorID != nil {
		fmt.Fprintf(out, "  Operator: %s\n", *j.OperatorID)
	}
	fmt.Fprintf(out, "  Address: %s\n", j.Details.Address)
	fmt.Fprintf(out, "  Price:   %s\n", formatMinor(j.Details.Price.Amount, j.Details.Price.Currency))
	if j.CancelReason != "" {
		fmt.Fprintf(out, "  Reason:  %s\n", j.CancelReason)
	}
}

func formatMinor(amount int64, currency string) string {
	return types.Money{Amount: amount, Currency: currency}.String()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
