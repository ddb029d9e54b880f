// Command pool-deployer creates stable-swap pools through the factory of a network and verifies
// them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/stableswap-ng/pool-deployer/deployer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := newRootCmd(os.Getenv(configPathEnv))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, failureLine(err))
		stop()
		os.Exit(1) //nolint:gocritic // stop is called explicitly above
	}
}

// failureLine leads with the category of deployment errors so that scripts can branch on it.
func failureLine(err error) string {
	var derr *deployer.Error
	if !errors.As(err, &derr) {
		return fmt.Sprintf("error: %v", err)
	}

	return fmt.Sprintf("%s: %v", deployer.Category(err), err)
}
