/*
Package main is the entry point for the stompchat terminal client.

It wires operating system interrupt signals (SIGINT, SIGTERM) into the command context so that
an interactive chat disconnects cleanly, then hands control to the command line.
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"stompchat/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
