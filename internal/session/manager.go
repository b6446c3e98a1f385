package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/basket/internal/apperr"
	"github.com/starford/basket/internal/metrics"
	"github.com/starford/basket/internal/models"
	"github.com/starford/basket/internal/optimizer"
	"github.com/starford/basket/internal/persist"
	"github.com/starford/basket/internal/sse"
	"github.com/starford/basket/internal/storage"
)

// EventSink receives list change notifications. *sse.Broker implements it.
type EventSink interface {
	PublishListEvent(kind, listID string)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Store        storage.Store
	Optimizer    optimizer.Client
	Metrics      *metrics.Metrics
	Events       EventSink
	Logger       *slog.Logger
	PersistDelay time.Duration
	Now          func() time.Time
}

func (d *Deps) publish(kind, listID string) {
	if d.Events != nil {
		d.Events.PublishListEvent(kind, listID)
	}
}

// NewItem is one line of a list being created in bulk.
type NewItem struct {
	CanonicalID int64
	ProductName string
	Quantity    float64
}

// Manager opens, creates and deletes sessions. At most one Session exists per list id.
type Manager struct {
	deps *Deps

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a Manager. Store and Optimizer are required.
func NewManager(deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{deps: &deps, sessions: make(map[string]*Session)}
}

// Create starts a new empty list.
func (m *Manager) Create(ctx context.Context, name string, maxStores int) (*Session, error) {
	return m.Import(ctx, name, maxStores, nil)
}

// Import creates a list pre-filled with items. Repeated ids are merged.
func (m *Manager) Import(_ context.Context, name string, maxStores int, items []NewItem) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", apperr.ErrInvalidInput)
	}
	if maxStores == 0 {
		maxStores = models.DefaultStores
	}
	now := m.deps.Now()
	draft := &models.ListDraft{
		ID:        uuid.NewString(),
		Name:      name,
		MaxStores: models.ClampMaxStores(maxStores),
		Items:     []models.ListItem{},
		Status:    models.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, it := range items {
		if it.CanonicalID <= 0 {
			return nil, fmt.Errorf("%w: canonical_id must be positive", apperr.ErrInvalidInput)
		}
		if err := validQuantity(it.Quantity); err != nil {
			return nil, err
		}
		if i := draft.FindItem(it.CanonicalID); i >= 0 {
			draft.Items[i].Quantity += it.Quantity
			continue
		}
		draft.Items = append(draft.Items, models.ListItem{
			CanonicalID: it.CanonicalID,
			ProductName: strings.TrimSpace(it.ProductName),
			Quantity:    it.Quantity,
		})
	}

	s := newSession(m.deps, draft, nil)
	if err := m.register(s); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.afterChange(sse.KindUpdated)
	s.mu.Unlock()
	m.deps.Logger.Info("session: list created",
		slog.String("list_id", draft.ID),
		slog.Int("items", len(draft.Items)))
	return s, nil
}

// Open returns the session for id, loading it from storage on first use.
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.New("session: manager closed")
	}
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	data, err := m.deps.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	draft, err := persist.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}
	if draft.ID != id {
		return nil, fmt.Errorf("session: load %s: stored id %q does not match", id, draft.ID)
	}

	s := newSession(m.deps, draft, data)
	m.mu.Lock()
	defer m.mu.Unlock()
	// Another caller may have loaded the same list meanwhile; keep the first one.
	if existing, ok := m.sessions[id]; ok {
		s.persister.Stop()
		return existing, nil
	}
	m.sessions[id] = s
	m.deps.Metrics.SessionsOpen(len(m.sessions))
	return s, nil
}

// List returns a summary of every known list, most recently updated first.
// Open sessions report their in-memory state, including changes not yet written.
func (m *Manager) List(ctx context.Context) ([]models.ListSummary, error) {
	records, err := m.deps.Store.List(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	open := make(map[string]*Session, len(m.sessions))
	for id, s := range m.sessions {
		open[id] = s
	}
	m.mu.Unlock()

	out := make([]models.ListSummary, 0, len(records)+len(open))
	for _, rec := range records {
		if _, ok := open[rec.ID]; ok {
			continue
		}
		data, err := m.deps.Store.Get(ctx, rec.ID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return nil, err
		}
		draft, err := persist.Decode(data)
		if err != nil {
			m.deps.Logger.Warn("session: skipping unreadable draft",
				slog.String("list_id", rec.ID),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, summarize(draft))
	}
	for _, s := range open {
		out = append(out, summarize(s.Snapshot()))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes a list from memory and storage.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, wasOpen := m.sessions[id]
	delete(m.sessions, id)
	m.deps.Metrics.SessionsOpen(len(m.sessions))
	m.mu.Unlock()

	if wasOpen {
		s.persister.Stop()
	}
	err := m.deps.Store.Delete(ctx, id)
	if err != nil && !(wasOpen && errors.Is(err, apperr.ErrNotFound)) {
		return err
	}
	m.deps.publish(sse.KindDeleted, id)
	m.deps.Logger.Info("session: list deleted", slog.String("list_id", id))
	return nil
}

// Close flushes every open session and refuses further opens.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
		s.persister.Stop()
	}
	return errors.Join(errs...)
}

func (m *Manager) register(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("session: manager closed")
	}
	if _, ok := m.sessions[s.draft.ID]; ok {
		return fmt.Errorf("list %s: %w", s.draft.ID, apperr.ErrAlreadyExists)
	}
	m.sessions[s.draft.ID] = s
	m.deps.Metrics.SessionsOpen(len(m.sessions))
	return nil
}

func summarize(d *models.ListDraft) models.ListSummary {
	return models.ListSummary{
		ID:        d.ID,
		Name:      d.Name,
		ItemCount: len(d.Items),
		Status:    d.Derived(),
		Optimized: d.Optimization != nil,
		UpdatedAt: d.UpdatedAt,
	}
}
