// Command versync runs sync scenarios and inspects session journals.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/versync/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "versync:", err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
