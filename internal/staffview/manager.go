package staffview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"cafeteria-system/internal/common/logger"
)

// ErrViewNotFound is returned for unknown or already-closed view handles.
var ErrViewNotFound = errors.New("view not found")

type Config struct {
	RefreshInterval time.Duration
	StalePolicy     StalePolicy
}

// Manager tracks the views opened by staff sessions. Each view stays
// exclusive to its session; the manager only maps handles to views and
// tears everything down on shutdown.
type Manager struct {
	source OrderSource
	lg     *logger.Logger
	cfg    Config

	mu    sync.Mutex
	views map[string]*View
}

func NewManager(source OrderSource, lg *logger.Logger, cfg Config) *Manager {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 20 * time.Second
	}
	if cfg.StalePolicy == "" {
		cfg.StalePolicy = PolicySurface
	}
	return &Manager{source: source, lg: lg, cfg: cfg, views: make(map[string]*View)}
}

// Open creates a view for the outlet, performs the initial load and
// starts its poll loop. Returns the view handle.
func (m *Manager) Open(ctx context.Context, outletID string) (string, *View, error) {
	view := newView(outletID, m.source, m.lg, m.cfg.RefreshInterval, m.cfg.StalePolicy)
	if err := view.open(ctx); err != nil {
		return "", nil, err
	}

	id := uuid.NewString()
	m.mu.Lock()
	m.views[id] = view
	m.mu.Unlock()

	m.lg.Info("staff_view_opened", map[string]any{"view_id": id, "outlet_id": outletID})
	return id, view, nil
}

func (m *Manager) Get(id string) (*View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	view, ok := m.views[id]
	if !ok {
		return nil, ErrViewNotFound
	}
	return view, nil
}

// Close tears one view down and forgets its handle.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	view, ok := m.views[id]
	delete(m.views, id)
	m.mu.Unlock()
	if !ok {
		return ErrViewNotFound
	}
	view.Close()
	m.lg.Info("staff_view_closed", map[string]any{"view_id": id, "outlet_id": view.OutletID()})
	return nil
}

// CloseAll stops every open view; used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	views := make([]*View, 0, len(m.views))
	for _, v := range m.views {
		views = append(views, v)
	}
	m.views = make(map[string]*View)
	m.mu.Unlock()

	for _, v := range views {
		v.Close()
	}
}
