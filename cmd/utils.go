package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// handleSignals cancels the context on SIGINT or SIGTERM. It returns when a
// signal arrives or ctx is done.
func handleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logrus.WithField("signal", sig).Info("Signal received")
		cancel()
	case <-ctx.Done():
	}
}
