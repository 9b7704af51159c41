package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run executes the command tree, then closes whatever the command opened,
// including when the command failed.
func run(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if rt != nil {
		err = errors.Join(err, rt.Close())
	}
	return err
}
