// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: GPL-3.0-only

// Package process contains helpers for running the main process of the NSM binaries.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"
)

// ShutdownTimeout bounds how long [HTTPServeContext] waits for open requests on shutdown.
const ShutdownTimeout = 10 * time.Second

// SignalContext returns a context that is canceled when sig is received.
// The signal is only watched until its first occurrence, so a second one
// terminates the process. The returned cancel function stops watching.
func SignalContext(ctx context.Context, sig os.Signal) (context.Context, context.CancelFunc) {
	return signalContext(ctx, sig, os.Stderr)
}

func signalContext(ctx context.Context, sig os.Signal, out io.Writer) (context.Context, context.CancelFunc) {
	sigCtx, stop := signal.NotifyContext(ctx, sig)
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		defer stop()
		select {
		case <-sigCtx.Done():
			if ctx.Err() == nil {
				fmt.Fprintln(out, "\rSignal caught. Press ctrl+c again to terminate immediately.")
			}
		case <-done:
		}
	}()

	cancel := func() {
		select {
		case <-done:
		default:
			close(done)
		}
		<-stopped
	}
	return sigCtx, cancel
}

// HTTPServeContext serves server on listener until ctx is canceled or serving fails.
// On cancellation the server is shut down gracefully within [ShutdownTimeout].
// A server stopped through ctx returns nil.
func HTTPServeContext(ctx context.Context, server *http.Server, listener net.Listener, log *slog.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "endpoint", listener.Addr().String())
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
