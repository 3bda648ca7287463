package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runCLI(ctx, newCommandContext(nil), nil, nil); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(1)
	}
}

// runCLI runs the command tree and always releases the application, so
// retries dispatched before a failing step finish before the process exits.
func runCLI(ctx context.Context, cc *commandContext, args []string, out io.Writer) error {
	cmd := newRootCommand(cc)
	if args != nil {
		cmd.SetArgs(args)
	}
	if out != nil {
		cmd.SetOut(out)
		cmd.SetErr(out)
	}
	err := cmd.ExecuteContext(ctx)
	return errors.Join(err, cc.close())
}
