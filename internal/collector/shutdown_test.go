package collector

import (
	"context"
	"os"
	"runtime"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

// TestSetupSignalHandler sends a real SIGINT to the test process
func TestSetupSignalHandler(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Signal tests not supported on Windows")
	}

	var shutdownCalled atomic.Bool

	ctx := SetupSignalHandler(nil, func(ctx context.Context) {
		// The context must still be live while shutdown runs
		if ctx.Err() == nil {
			shutdownCalled.Store(true)
		}
	})

	select {
	case <-ctx.Done():
		t.Error("Context should not be cancelled initially")
	default:
	}

	p, _ := os.FindProcess(os.Getpid())
	p.Signal(os.Interrupt)

	select {
	case <-ctx.Done():
	case <-time.After(1 * time.Second):
		t.Error("Context should be cancelled after signal")
	}

	if !shutdownCalled.Load() {
		t.Error("Shutdown function should have been called before cancellation")
	}
}

// TestWatchSignals_NilShutdown tests that nil shutdown func doesn't panic
func TestWatchSignals_NilShutdown(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	ctx := watchSignals(sigCh, nil, nil, func() {})

	sigCh <- syscall.SIGTERM

	select {
	case <-ctx.Done():
	case <-time.After(1 * time.Second):
		t.Error("Context should be cancelled after signal")
	}
}

// TestWatchSignals_SecondSignalForcesExit tests the force-exit path
func TestWatchSignals_SecondSignalForcesExit(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	exited := make(chan struct{})
	ctx := watchSignals(sigCh, nil, nil, func() { close(exited) })

	sigCh <- syscall.SIGINT
	<-ctx.Done()

	select {
	case <-exited:
		t.Fatal("First signal should not force exit")
	default:
	}

	sigCh <- syscall.SIGINT
	select {
	case <-exited:
	case <-time.After(1 * time.Second):
		t.Error("Second signal should force exit")
	}
}
