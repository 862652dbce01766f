// README: plowctl commands: operator support tooling that runs against the same stores as the API.
package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"plow/internal/app"
	"plow/internal/config"
	"plow/internal/infra"
	"plow/internal/modules/job"
	"plow/internal/types"
)

// Opener builds the application the commands act on.
type Opener func(ctx context.Context) (*app.App, error)

// Env is what every command needs. Tests swap Open and Out.
type Env struct {
	Open Opener
	Out  io.Writer

	admin  string
	asJSON bool
}

// DefaultEnv wires commands to the configured stores. Logging goes to stderr
// at warn level so command output stays readable.
func DefaultEnv() *Env {
	return &Env{
		Out: os.Stdout,
		Open: func(ctx context.Context) (*app.App, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			log := infra.NewLogger("warn", "text")
			log.SetOutput(os.Stderr)
			return app.Build(ctx, cfg, log)
		},
	}
}

func RootCmd(env *Env) *cobra.Command {
	root := &cobra.Command{
		Use:           "plowctl",
		Short:         "Administer snow-removal jobs and their escrow",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&env.admin, "as", os.Getenv("PLOW_CTL_ADMIN"), "administrator ID used for privileged commands")
	root.PersistentFlags().BoolVar(&env.asJSON, "json", false, "print JSON instead of text")

	root.AddCommand(GetCmd(env))
	root.AddCommand(QueueCmd(env))
	root.AddCommand(ReopenCmd(env))
	root.AddCommand(RefundCmd(env))
	root.AddCommand(ReviewCmd(env))
	return root
}

func (e *Env) run(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := e.Open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func (e *Env) adminID() (types.ID, error) {
	if e.admin == "" {
		return "", errors.New("no administrator ID\nHint: pass --as or set PLOW_CTL_ADMIN")
	}
	return types.ID(e.admin), nil
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	cyan   = color.New(color.FgCyan)
)

func statusColor(s job.Status) *color.Color {
	switch s {
	case job.StatusCompleted:
		return green
	case job.StatusCancelled:
		return red
	case job.StatusPending:
		return cyan
	default:
		return yellow
	}
}

func paymentColor(s job.PaymentStatus) *color.Color {
	switch s {
	case job.PaymentPaid:
		return green
	case job.PaymentFailed:
		return red
	default:
		return yellow
	}
}
