// Package storage defines the durable key-value facility for list drafts.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverFS     = "fs"
	DriverBadger = "badger"
)

// Record describes one stored draft without its body.
type Record struct {
	ID        string
	Checksum  string
	UpdatedAt time.Time
}

// Store is the interface for draft persistence. Every Put either fully lands or does not.
type Store interface {
	// Get returns the serialized draft for id, or apperr.ErrNotFound.
	Get(ctx context.Context, id string) ([]byte, error)
	// Put replaces the serialized draft for id.
	Put(ctx context.Context, id string, data []byte) error
	// Delete removes the draft for id. Deleting a missing id returns apperr.ErrNotFound.
	Delete(ctx context.Context, id string) error
	// List returns every stored draft record.
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Open returns the Store for driver rooted at path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverSQLite, "":
		return OpenSQLite(path)
	case DriverFS:
		return NewFS(path)
	case DriverBadger:
		return OpenBadger(BadgerConfig{Path: path, SyncWrites: true})
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}
