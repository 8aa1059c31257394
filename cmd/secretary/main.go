// Command secretary builds a persona from a mail export and extracts memos
// from single messages onto a memoboard.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrypster/secretary/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
