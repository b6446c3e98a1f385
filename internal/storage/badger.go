package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/starford/basket/internal/apperr"
)

const badgerPrefix = "draft/"

// BadgerConfig configures the embedded badger store.
type BadgerConfig struct {
	// Path is the database directory; ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// Badger implements Store on an embedded badger database.
type Badger struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// OpenBadger opens a badger database for drafts.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("storage: badger path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("storage: mkdir badger dir: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func badgerKey(id string) []byte { return []byte(badgerPrefix + id) }

// Get returns the stored body for id.
func (b *Badger) Get(_ context.Context, id string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(id))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", id, err)
	}
	return out, nil
}

// Put writes the body for id in a single transaction.
func (b *Badger) Put(_ context.Context, id string, data []byte) error {
	if err := validID(id); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(id), data)
	})
	if err != nil {
		return fmt.Errorf("storage: put %s: %w", id, err)
	}
	return nil
}

// Delete removes the body for id.
func (b *Badger) Delete(_ context.Context, id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(badgerKey(id)); err != nil {
			return err
		}
		return txn.Delete(badgerKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", id, err)
	}
	return nil
}

// List returns a record for every stored draft.
func (b *Badger) List(_ context.Context) ([]Record, error) {
	var out []Record
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(badgerPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, Record{
				ID:       strings.TrimPrefix(string(item.Key()), badgerPrefix),
				Checksum: Checksum(val),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Close closes the badger database.
func (b *Badger) Close() error {
	return b.db.Close()
}
