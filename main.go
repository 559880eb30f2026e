package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lance6716/plan-replayer/cmd"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	var sig os.Signal
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		select {
		case <-ctx.Done():
			return
		case sig = <-sigCh:
			cancel()
		}
	}()

	err := cmd.Execute(ctx)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) && sig != nil {
		fmt.Fprintf(os.Stderr, "cancel plan-replayer by user signal %s\n", sig.String())
	} else {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
	}
	cancel()
	os.Exit(1)
}
