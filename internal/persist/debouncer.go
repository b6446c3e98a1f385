// Package persist coalesces bursts of draft mutations into single durable writes.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/basket/internal/apperr"
	"github.com/starford/basket/internal/models"
	"github.com/starford/basket/internal/storage"
)

// DefaultDelay is the quiet interval before a scheduled write lands.
const DefaultDelay = 350 * time.Millisecond

// Writer is the subset of storage.Store the debouncer needs.
type Writer interface {
	Put(ctx context.Context, id string, data []byte) error
}

// Options configures a Debouncer.
type Options struct {
	Delay   time.Duration
	Timeout time.Duration
	Logger  *slog.Logger
	// OnError is called after a failed write. The draft stays dirty until the next write.
	OnError func(id string, err error)
	// OnWritten is called after each fired write; skipped is true when the content
	// matched the last durable write.
	OnWritten func(id string, skipped bool)
}

// Debouncer owns the timer for one list. Schedule never blocks on storage.
type Debouncer struct {
	store Writer
	opts  Options

	mu      sync.Mutex
	timer   *time.Timer
	pending *models.ListDraft
	stopped bool

	// writeMu serializes writes so a newer draft never lands before an older one.
	writeMu sync.Mutex
	lastSum string
}

// New creates a Debouncer writing through store.
func New(store Writer, opts Options) *Debouncer {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Debouncer{store: store, opts: opts}
}

// MarkClean records data as already durable so an identical first write is skipped.
func (d *Debouncer) MarkClean(data []byte) {
	d.writeMu.Lock()
	d.lastSum = storage.Checksum(data)
	d.writeMu.Unlock()
}

// Schedule replaces the pending draft and restarts the quiet interval.
func (d *Debouncer) Schedule(draft *models.ListDraft) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = draft.Clone()
	if d.timer == nil {
		d.timer = time.AfterFunc(d.opts.Delay, d.fire)
	} else {
		d.timer.Reset(d.opts.Delay)
	}
}

// Pending reports whether a draft is waiting to be written.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Flush writes any pending draft immediately.
func (d *Debouncer) Flush(ctx context.Context) error {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	return d.writePending(ctx)
}

// Stop cancels the timer and drops future schedules. A pending draft is not written.
// Stop returns after any write already in progress has finished.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
	d.mu.Unlock()

	d.writeMu.Lock()
	d.writeMu.Unlock() //nolint:staticcheck // waits out an in-flight write
}

func (d *Debouncer) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
	defer cancel()
	if err := d.writePending(ctx); err != nil && d.opts.OnError == nil {
		d.opts.Logger.Error("persist: write failed", slog.String("error", err.Error()))
	}
}

func (d *Debouncer) writePending(ctx context.Context) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	draft := d.pending
	d.pending = nil
	d.mu.Unlock()
	if draft == nil {
		return nil
	}

	data, err := Encode(draft)
	if err != nil {
		return d.fail(draft, err)
	}
	sum := storage.Checksum(data)
	if sum == d.lastSum {
		d.opts.Logger.Debug("persist: unchanged, skipping write", slog.String("list_id", draft.ID))
		d.written(draft.ID, true)
		return nil
	}
	if err := d.store.Put(ctx, draft.ID, data); err != nil {
		return d.fail(draft, err)
	}
	d.lastSum = sum
	d.opts.Logger.Debug("persist: draft written", slog.String("list_id", draft.ID), slog.Int("bytes", len(data)))
	d.written(draft.ID, false)
	return nil
}

// fail keeps draft dirty unless a newer one was scheduled meanwhile.
func (d *Debouncer) fail(draft *models.ListDraft, cause error) error {
	d.mu.Lock()
	if d.pending == nil && !d.stopped {
		d.pending = draft
	}
	d.mu.Unlock()

	err := fmt.Errorf("%w: %s: %w", apperr.ErrPersistenceFailure, draft.ID, cause)
	if d.opts.OnError != nil {
		d.opts.OnError(draft.ID, err)
	}
	return err
}

func (d *Debouncer) written(id string, skipped bool) {
	if d.opts.OnWritten != nil {
		d.opts.OnWritten(id, skipped)
	}
}
