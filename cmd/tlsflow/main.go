// Command tlsflow drives handshakes from workflow traces, as a client, as a
// server, or as a relay between the two.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runRoot(ctx, newRootCommand(os.Stdout)); err != nil {
		stop()
		os.Exit(1)
	}
}
