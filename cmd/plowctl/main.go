// README: plowctl entry point; support tooling for reopening, refunding and inspecting jobs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"plow/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.RootCmd(cli.DefaultEnv()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
