package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

const forceExitTimeout = 10 * time.Second

// handleSignal calls cancel on the first exit signal. A second signal, or a run that does not stop within
// forceExitTimeout, exits the process. The returned function stops listening.
func handleSignal(cancel func()) (stop func()) {
	sc := make(chan os.Signal, 1)
	signal.Notify(sc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	done := make(chan struct{})
	go func() {
		var sig os.Signal
		select {
		case sig = <-sc:
		case <-done:
			return
		}
		log.Info("Got signal to exit", zap.String("signal", sig.String()))
		cancel()

		select {
		case sig = <-sc:
			log.Warn("Got signal again, exit directly", zap.String("signal", sig.String()))
		case <-time.After(forceExitTimeout):
			log.Warn("Workload did not stop in time, force exit", zap.Duration("timeout", forceExitTimeout))
		case <-done:
			return
		}
		log.Sync()
		os.Exit(1)
	}()

	return func() {
		signal.Stop(sc)
		close(done)
	}
}
