// Package testutil provides shared test helpers for stores, loggers and polling.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/basket/internal/storage"
)

// TestStore opens a store of the given driver in a temp dir that is cleaned up.
func TestStore(t *testing.T, driver string) storage.Store {
	t.Helper()
	path := t.TempDir()
	if driver == storage.DriverSQLite {
		path = filepath.Join(path, "basket-test.db")
	}
	store, err := storage.Open(driver, path)
	if err != nil {
		t.Fatalf("open %s store: %v", driver, err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Logger returns a logger that discards everything below error.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
