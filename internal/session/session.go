// Package session owns the in-memory state of open lists.
//
// Every edit runs the same pipeline under the session lock: apply the change,
// recompute the signature, clear a stale optimization, then schedule persistence.
// The remote optimize call is the only step that runs without the lock.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/starford/basket/internal/apperr"
	"github.com/starford/basket/internal/kpi"
	"github.com/starford/basket/internal/metrics"
	"github.com/starford/basket/internal/models"
	"github.com/starford/basket/internal/optimizer"
	"github.com/starford/basket/internal/persist"
	"github.com/starford/basket/internal/signature"
	"github.com/starford/basket/internal/sse"
)

// Session is the controller for one open list. It owns the draft, the debounce
// timer and the optimize in-flight flag.
type Session struct {
	deps *Deps

	mu        sync.Mutex
	draft     *models.ListDraft
	detector  detector
	inFlight  bool
	persister *persist.Debouncer
}

func newSession(deps *Deps, draft *models.ListDraft, stored []byte) *Session {
	s := &Session{deps: deps, draft: draft}
	s.persister = persist.New(deps.Store, persist.Options{
		Delay:     deps.PersistDelay,
		Logger:    deps.Logger,
		OnError:   s.persistFailed,
		OnWritten: s.persisted,
	})
	if stored != nil {
		s.persister.MarkClean(stored)
	}

	if draft.Optimization != nil {
		s.detector.commit(draft.Optimization.Signature)
		if s.detector.observe(draft) {
			deps.Logger.Warn("session: stored optimization is stale, cleared on load", slog.String("list_id", draft.ID))
			deps.Metrics.Invalidated()
			s.persister.Schedule(draft)
		}
	}
	draft.DisplayStatus = draft.Derived()
	return s
}

// ID returns the list id.
func (s *Session) ID() string { return s.draft.ID }

// Snapshot returns a deep copy of the current draft.
func (s *Session) Snapshot() *models.ListDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

// KPIs derives the display metrics from the current state.
func (s *Session) KPIs() kpi.KPIs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return kpi.Derive(s.draft.Optimization, s.draft.Items)
}

// CommittedSignature returns the signature of the cached optimization, or "".
func (s *Session) CommittedSignature() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detector.committed()
}

// Optimizing reports whether an optimize call is in flight.
func (s *Session) Optimizing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// ListUpdate is a set of list-level changes applied as one edit. Nil fields are left alone.
type ListUpdate struct {
	Name         *string
	MaxStores    *int
	Status       *string
	ClearChecked bool
}

// Update validates every field of u and then applies them together, so a
// request either changes the list once or not at all.
func (s *Session) Update(u ListUpdate) (*models.ListDraft, error) {
	var name string
	if u.Name != nil {
		name = strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", apperr.ErrInvalidInput)
		}
	}
	var status models.Status
	if u.Status != nil {
		st, err := models.ParseBaseStatus(*u.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
		}
		status = st
	}
	return s.mutate(func(d *models.ListDraft) error {
		if u.Name != nil {
			d.Name = name
		}
		if u.MaxStores != nil {
			d.MaxStores = models.ClampMaxStores(*u.MaxStores)
		}
		if u.Status != nil {
			d.Status = status
		}
		if u.ClearChecked {
			for i := range d.Items {
				d.Items[i].IsChecked = false
			}
		}
		return nil
	})
}

// Rename sets the list name.
func (s *Session) Rename(name string) (*models.ListDraft, error) {
	return s.Update(ListUpdate{Name: &name})
}

// SetMaxStores sets the store cap, clamped to the supported range.
func (s *Session) SetMaxStores(n int) (*models.ListDraft, error) {
	return s.Update(ListUpdate{MaxStores: &n})
}

// SetStatus applies an explicit user override of the base status.
func (s *Session) SetStatus(status string) (*models.ListDraft, error) {
	return s.Update(ListUpdate{Status: &status})
}

// ClearChecked unchecks every item.
func (s *Session) ClearChecked() (*models.ListDraft, error) {
	return s.Update(ListUpdate{ClearChecked: true})
}

// AddItem adds a product, or increments the quantity of an existing one.
func (s *Session) AddItem(canonicalID int64, productName string, quantity float64) (*models.ListDraft, error) {
	if canonicalID <= 0 {
		return nil, fmt.Errorf("%w: canonical_id must be positive", apperr.ErrInvalidInput)
	}
	if err := validQuantity(quantity); err != nil {
		return nil, err
	}
	productName = strings.TrimSpace(productName)
	return s.mutate(func(d *models.ListDraft) error {
		if i := d.FindItem(canonicalID); i >= 0 {
			d.Items[i].Quantity += quantity
			if d.Items[i].ProductName == "" {
				d.Items[i].ProductName = productName
			}
			return nil
		}
		d.Items = append(d.Items, models.ListItem{
			CanonicalID: canonicalID,
			ProductName: productName,
			Quantity:    quantity,
		})
		return nil
	})
}

// ItemUpdate is a set of changes to one item. Nil fields are left alone.
type ItemUpdate struct {
	Quantity    *float64
	IsChecked   *bool
	ProductName *string
}

// UpdateItem applies u to the item as one edit. The quantity is validated
// before anything changes.
func (s *Session) UpdateItem(canonicalID int64, u ItemUpdate) (*models.ListDraft, error) {
	if u.Quantity != nil {
		if err := validQuantity(*u.Quantity); err != nil {
			return nil, err
		}
	}
	return s.mutateItem(canonicalID, func(it *models.ListItem) {
		if u.Quantity != nil {
			it.Quantity = *u.Quantity
		}
		if u.IsChecked != nil {
			it.IsChecked = *u.IsChecked
		}
		if u.ProductName != nil {
			it.ProductName = strings.TrimSpace(*u.ProductName)
		}
	})
}

// SetQuantity replaces an item's quantity.
func (s *Session) SetQuantity(canonicalID int64, quantity float64) (*models.ListDraft, error) {
	return s.UpdateItem(canonicalID, ItemUpdate{Quantity: &quantity})
}

// SetChecked marks an item bought or not. Never affects the cached optimization.
func (s *Session) SetChecked(canonicalID int64, checked bool) (*models.ListDraft, error) {
	return s.UpdateItem(canonicalID, ItemUpdate{IsChecked: &checked})
}

// RenameItem replaces the display name snapshot. Never affects the cached optimization.
func (s *Session) RenameItem(canonicalID int64, productName string) (*models.ListDraft, error) {
	return s.UpdateItem(canonicalID, ItemUpdate{ProductName: &productName})
}

// RemoveItem deletes an item from the list.
func (s *Session) RemoveItem(canonicalID int64) (*models.ListDraft, error) {
	return s.mutate(func(d *models.ListDraft) error {
		i := d.FindItem(canonicalID)
		if i < 0 {
			return fmt.Errorf("item %d: %w", canonicalID, apperr.ErrNotFound)
		}
		d.Items = append(d.Items[:i], d.Items[i+1:]...)
		return nil
	})
}

// Optimize sends the current items to the optimizer and commits the result.
// Failures leave the draft untouched, including any previously cached result.
func (s *Session) Optimize(ctx context.Context) (*models.ListDraft, error) {
	s.mu.Lock()
	if len(s.draft.Items) == 0 {
		s.mu.Unlock()
		s.deps.Metrics.Optimize(metrics.OutcomeEmpty, 0)
		return nil, apperr.ErrEmptyList
	}
	if s.inFlight {
		s.mu.Unlock()
		s.deps.Metrics.Optimize(metrics.OutcomeInProgress, 0)
		return nil, apperr.ErrOptimizationInProgress
	}
	s.inFlight = true
	items := append([]models.ListItem(nil), s.draft.Items...)
	maxStores := models.ClampMaxStores(s.draft.MaxStores)
	s.mu.Unlock()

	req := optimizer.Request{MaxStores: maxStores, Items: make([]optimizer.RequestItem, 0, len(items))}
	for _, it := range items {
		req.Items = append(req.Items, optimizer.RequestItem{CanonicalID: it.CanonicalID, Quantity: it.Quantity})
	}

	start := time.Now()
	resp, err := s.deps.Optimizer.Optimize(ctx, req)
	elapsed := time.Since(start)
	if err == nil && resp == nil {
		err = fmt.Errorf("%w: empty response", apperr.ErrTransportFailure)
	}
	if err != nil {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
		return nil, s.optimizeFailed(err, elapsed)
	}

	cache := optimizer.Normalize(resp, s.deps.Now())
	sig := signature.Compute(items, maxStores)
	cache.Signature = sig

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	s.draft.Optimization = cache
	s.draft.Status = models.StatusOptimized
	s.detector.commit(sig)
	s.deps.Metrics.Optimize(metrics.OutcomeSuccess, elapsed)
	s.deps.Logger.Info("session: optimization committed",
		slog.String("list_id", s.draft.ID),
		slog.Int("stores", len(cache.Allocations)),
		slog.Duration("elapsed", elapsed))
	s.afterChange(sse.KindOptimized)
	return s.draft.Clone(), nil
}

// Flush writes any pending change immediately.
func (s *Session) Flush(ctx context.Context) error {
	return s.persister.Flush(ctx)
}

func (s *Session) optimizeFailed(err error, elapsed time.Duration) error {
	if errors.Is(err, apperr.ErrOptimizerRejected) {
		s.deps.Metrics.Optimize(metrics.OutcomeRejected, elapsed)
		s.deps.Logger.Info("session: optimizer rejected list",
			slog.String("list_id", s.draft.ID),
			slog.String("message", err.Error()))
		return err
	}
	if !errors.Is(err, apperr.ErrTransportFailure) {
		err = fmt.Errorf("%w: %w", apperr.ErrTransportFailure, err)
	}
	s.deps.Metrics.Optimize(metrics.OutcomeTransport, elapsed)
	s.deps.Logger.Warn("session: optimize failed",
		slog.String("list_id", s.draft.ID),
		slog.String("error", err.Error()))
	return err
}

func (s *Session) mutate(fn func(d *models.ListDraft) error) (*models.ListDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.draft); err != nil {
		return nil, err
	}
	s.afterChange(sse.KindUpdated)
	return s.draft.Clone(), nil
}

func (s *Session) mutateItem(canonicalID int64, fn func(it *models.ListItem)) (*models.ListDraft, error) {
	return s.mutate(func(d *models.ListDraft) error {
		i := d.FindItem(canonicalID)
		if i < 0 {
			return fmt.Errorf("item %d: %w", canonicalID, apperr.ErrNotFound)
		}
		fn(&d.Items[i])
		return nil
	})
}

// afterChange runs the post-edit pipeline and publishes kind, or an
// invalidation when the edit made the cached optimization stale. Caller holds s.mu.
func (s *Session) afterChange(kind string) {
	s.draft.UpdatedAt = s.deps.Now()
	invalidated := s.detector.observe(s.draft)
	s.draft.DisplayStatus = s.draft.Derived()
	if invalidated {
		s.deps.Metrics.Invalidated()
		s.deps.Logger.Info("session: optimization invalidated", slog.String("list_id", s.draft.ID))
		s.deps.publish(sse.KindInvalidated, s.draft.ID)
	} else {
		s.deps.publish(kind, s.draft.ID)
	}
	s.persister.Schedule(s.draft)
}

func (s *Session) persistFailed(id string, err error) {
	s.deps.Metrics.Persisted("failed")
	s.deps.Logger.Error("session: persist failed", slog.String("list_id", id), slog.String("error", err.Error()))
	s.deps.publish(sse.KindPersistFailed, id)
}

func (s *Session) persisted(_ string, skipped bool) {
	if skipped {
		s.deps.Metrics.Persisted("skipped")
		return
	}
	s.deps.Metrics.Persisted("written")
}

func validQuantity(q float64) error {
	if math.IsNaN(q) || math.IsInf(q, 0) || q <= 0 {
		return fmt.Errorf("%w: quantity must be a positive number", apperr.ErrInvalidInput)
	}
	return nil
}
