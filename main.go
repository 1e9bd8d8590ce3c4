// gateslam verifies VPN Gate relays and records the egress addresses
// they expose.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gateslam/cmd"
	ncerr "gateslam/internal/errors"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)

	err := cmd.Execute(ctx, os.Args[1:])
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateslam: %v\n", err)
		os.Exit(ncerr.ExitCode(err))
	}
}
