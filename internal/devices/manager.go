package devices

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KevinKickass/OpenPoolCore/internal/controller"
	"github.com/KevinKickass/OpenPoolCore/internal/procon"
	"github.com/KevinKickass/OpenPoolCore/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Defaults apply to controllers whose profile leaves a setting empty.
type Defaults struct {
	Timeout              time.Duration
	PollInterval         time.Duration
	ForbidDosageRelayOff bool
}

type Manager struct {
	loader      *Loader
	defaults    Defaults
	controllers map[uuid.UUID]*controller.Controller
	pollers     map[uuid.UUID]*controller.Poller
	intervals   map[uuid.UUID]time.Duration
	listeners   []controller.Listener
	mu          sync.RWMutex
	logger      *zap.Logger
}

func NewManager(searchPaths []string, defaults Defaults, logger *zap.Logger) (*Manager, error) {
	loader, err := NewLoader(searchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create controller loader: %w", err)
	}

	return &Manager{
		loader:      loader,
		defaults:    defaults,
		controllers: make(map[uuid.UUID]*controller.Controller),
		pollers:     make(map[uuid.UUID]*controller.Poller),
		intervals:   make(map[uuid.UUID]time.Duration),
		logger:      logger,
	}, nil
}

// AddListener attaches l to every controller added afterwards.
func (m *Manager) AddListener(l controller.Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// LoadFile loads all enabled controllers from a controllers YAML file.
func (m *Manager) LoadFile(path string) ([]*controller.Controller, error) {
	file, err := m.loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load controllers %s: %w", path, err)
	}

	var loaded []*controller.Controller
	for _, profile := range file.Controllers {
		if profile.Disabled {
			m.logger.Info("Controller disabled, skipping", zap.String("name", profile.Name))
			continue
		}
		c, err := m.AddController(profile)
		if err != nil {
			return loaded, err
		}
		loaded = append(loaded, c)
	}
	return loaded, nil
}

// AddController creates a controller from its profile.
func (m *Manager) AddController(profile types.ControllerProfile) (*controller.Controller, error) {
	timeout, err := profile.TimeoutOr(m.defaults.Timeout)
	if err != nil {
		return nil, fmt.Errorf("controller %s: %w", profile.Name, err)
	}
	interval, err := profile.PollIntervalOr(m.defaults.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("controller %s: %w", profile.Name, err)
	}

	client, err := controller.NewClient(profile.BaseURL, profile.Username, profile.Password(), timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", profile.Name, err)
	}

	engine := procon.Engine{ForbidDosageRelayOff: m.defaults.ForbidDosageRelayOff}
	if profile.ForbidDosageRelayOff != nil {
		engine.ForbidDosageRelayOff = *profile.ForbidDosageRelayOff
	}

	c := controller.New(profile.Name, client, engine, m.logger)

	m.mu.Lock()
	if _, exists := m.findByName(profile.Name); exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("controller already loaded: %s", profile.Name)
	}
	for _, l := range m.listeners {
		c.AddListener(l)
	}
	m.controllers[c.ID] = c
	m.intervals[c.ID] = interval
	m.mu.Unlock()

	m.logger.Info("Controller loaded",
		zap.String("name", profile.Name),
		zap.String("base_url", client.BaseURL()),
		zap.Duration("poll_interval", interval))

	return c, nil
}

// StartPoller starts the poller of a controller using its configured interval.
func (m *Manager) StartPoller(id uuid.UUID) error {
	m.mu.RLock()
	c, exists := m.controllers[id]
	interval := m.intervals[id]
	_, running := m.pollers[id]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("controller not found: %s", id)
	}
	if running {
		return nil
	}

	poller := controller.NewPoller(c, interval, m.logger)
	if err := poller.Start(); err != nil {
		return fmt.Errorf("failed to start poller: %w", err)
	}

	m.mu.Lock()
	m.pollers[id] = poller
	m.mu.Unlock()

	return nil
}

// StartAll starts a poller for every loaded controller.
func (m *Manager) StartAll() error {
	for _, c := range m.ListControllers() {
		if err := m.StartPoller(c.ID); err != nil {
			return err
		}
	}
	return nil
}

// GetController returns controller by ID
func (m *Manager) GetController(id uuid.UUID) (*controller.Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, exists := m.controllers[id]
	return c, exists
}

// GetControllerByName returns controller by name
func (m *Manager) GetControllerByName(name string) (*controller.Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findByName(name)
}

// findByName expects m.mu to be held.
func (m *Manager) findByName(name string) (*controller.Controller, bool) {
	for _, c := range m.controllers {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Lookup accepts a controller name or runtime ID.
func (m *Manager) Lookup(ref string) (*controller.Controller, bool) {
	if c, ok := m.GetControllerByName(ref); ok {
		return c, true
	}
	if id, err := uuid.Parse(ref); err == nil {
		return m.GetController(id)
	}
	return nil, false
}

// ListControllers returns all controllers sorted by name.
func (m *Manager) ListControllers() []*controller.Controller {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*controller.Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

// Count returns the number of loaded and reachable controllers.
func (m *Manager) Count() (total, reachable int) {
	for _, c := range m.ListControllers() {
		total++
		if c.Info().Reachable {
			reachable++
		}
	}
	return total, reachable
}

// StopAll stops all pollers
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	pollers := m.pollers
	m.pollers = make(map[uuid.UUID]*controller.Poller)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, poller := range pollers {
			poller.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stopping pollers: %w", ctx.Err())
	}
}
