package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"plow/internal/ai"
	"plow/internal/app"
	"plow/internal/types"
)

// ReviewCmd runs the configured evidence reviewer against a job without
// changing it, to check a photo before an operator submits it.
func ReviewCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "review [job-id] [evidence-url]",
		Short: "Dry-run evidence review for a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd, func(ctx context.Context, a *app.App) error {
				j, err := a.Service.Get(ctx, types.ID(args[0]))
				if err != nil {
					return fmt.Errorf("failed to load job: %w", err)
				}
				services := make([]string, 0, len(j.Details.Services))
				for _, s := range j.Details.Services {
					services = append(services, string(s))
				}
				v, err := a.Reviewer.Review(ctx, ai.EvidenceRequest{
					JobID:       string(j.ID),
					EvidenceRef: args[1],
					Services:    services,
					Address:     j.Details.Address,
					Notes:       j.Details.Notes,
				})
				if err != nil {
					return fmt.Errorf("review failed: %w", err)
				}
				if env.asJSON {
					return printJSON(env.Out, v)
				}
				verdict := red.Sprint("REJECTED")
				if v.Approved {
					verdict = green.Sprint("APPROVED")
				}
				fmt.Fprintf(env.Out, "%s (confidence %.2f)\n", verdict, v.Confidence)
				if v.Reason != "" {
					fmt.Fprintf(env.Out, "  %s\n", v.Reason)
				}
				return nil
			})
		},
	}
}
