package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenPoolCore/internal/procon"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CommandKind classifies commands sent to a controller.
type CommandKind string

const (
	CommandRelay  CommandKind = "relay"
	CommandDosage CommandKind = "dosage"
	CommandDMX    CommandKind = "dmx"
)

// CommandEvent describes a command after it was sent (or rejected).
type CommandEvent struct {
	ID         uuid.UUID   `json:"id"`
	Controller string      `json:"controller"`
	Kind       CommandKind `json:"kind"`
	RelayID    int         `json:"relay_id,omitempty"`
	Action     string      `json:"action,omitempty"`
	Target     string      `json:"target,omitempty"`
	Duration   int         `json:"duration,omitempty"`
	Channel    int         `json:"channel,omitempty"`
	Value      int         `json:"value,omitempty"`
	Payload    string      `json:"payload,omitempty"`
	Error      string      `json:"error,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Succeeded reports whether the command reached the controller.
func (e CommandEvent) Succeeded() bool { return e.Error == "" }

// Listener receives controller events. Implementations must not block.
type Listener interface {
	SnapshotUpdated(c *Controller, s *procon.Snapshot)
	RefreshFailed(c *Controller, err error)
	CommandExecuted(c *Controller, ev CommandEvent)
}

// Info is the runtime summary of a controller.
type Info struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	BaseURL    string    `json:"base_url"`
	Reachable  bool      `json:"reachable"`
	LastUpdate time.Time `json:"last_update,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	Version    string    `json:"version,omitempty"`
}

// Controller is a single pool controller together with its last known state.
type Controller struct {
	ID     uuid.UUID
	Name   string
	Client *Client

	engine    procon.Engine
	logger    *zap.Logger
	listeners []Listener

	mu         sync.RWMutex
	snapshot   *procon.Snapshot
	lastUpdate time.Time
	lastErr    error
}

func New(name string, client *Client, engine procon.Engine, logger *zap.Logger) *Controller {
	return &Controller{
		ID:     uuid.New(),
		Name:   name,
		Client: client,
		engine: engine,
		logger: logger.With(zap.String("controller", name)),
	}
}

// AddListener registers l for all future events. Not safe to call once
// polling has started.
func (c *Controller) AddListener(l Listener) {
	c.listeners = append(c.listeners, l)
}

// Refresh fetches and decodes the status feed and caches the result.
func (c *Controller) Refresh(ctx context.Context) (*procon.Snapshot, error) {
	raw, err := c.Client.GetState(ctx)
	if err != nil {
		c.setError(err)
		return nil, fmt.Errorf("fetch state from %s: %w", c.Name, err)
	}

	snapshot, err := procon.Decode(raw)
	if err != nil {
		c.setError(err)
		return nil, fmt.Errorf("decode state from %s: %w", c.Name, err)
	}

	c.mu.Lock()
	c.snapshot = snapshot
	c.lastUpdate = time.Now()
	c.lastErr = nil
	c.mu.Unlock()

	for _, l := range c.listeners {
		l.SnapshotUpdated(c, snapshot)
	}
	return snapshot, nil
}

func (c *Controller) setError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	for _, l := range c.listeners {
		l.RefreshFailed(c, err)
	}
}

// Snapshot returns the cached snapshot or nil if none was fetched yet.
func (c *Controller) Snapshot() *procon.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Current returns the cached snapshot, fetching one if there is none.
func (c *Controller) Current(ctx context.Context) (*procon.Snapshot, error) {
	if s := c.Snapshot(); s != nil {
		return s, nil
	}
	return c.Refresh(ctx)
}

func (c *Controller) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Controller) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info := Info{
		ID:         c.ID,
		Name:       c.Name,
		BaseURL:    c.Client.BaseURL(),
		Reachable:  c.snapshot != nil && c.lastErr == nil,
		LastUpdate: c.lastUpdate,
	}
	if c.lastErr != nil {
		info.LastError = c.lastErr.Error()
	}
	if c.snapshot != nil {
		info.Version = c.snapshot.Version()
	}
	return info
}

func (c *Controller) SwitchOn(ctx context.Context, relayID int) error {
	return c.SwitchRelay(ctx, relayID, procon.TurnOn)
}

func (c *Controller) SwitchOff(ctx context.Context, relayID int) error {
	return c.SwitchRelay(ctx, relayID, procon.TurnOff)
}

func (c *Controller) SetAuto(ctx context.Context, relayID int) error {
	return c.SwitchRelay(ctx, relayID, procon.SetAuto)
}

// SwitchRelay reads the live relay states and posts the ENA payload that
// applies action to relayID only.
func (c *Controller) SwitchRelay(ctx context.Context, relayID int, action procon.RelayAction) error {
	ev := c.newEvent(CommandRelay)
	ev.RelayID = relayID
	ev.Action = action.String()

	snapshot, err := c.Refresh(ctx)
	if err != nil {
		return c.finish(ev, err)
	}

	payload, err := c.engine.RelayPayload(snapshot, relayID, action)
	if err != nil {
		return c.finish(ev, err)
	}
	ev.Payload = payload

	if _, err := c.Client.PostUsrCfg(ctx, payload); err != nil {
		return c.finish(ev, fmt.Errorf("switch relay %d: %w", relayID, err))
	}

	c.logger.Info("Relay switched",
		zap.Int("relay", relayID),
		zap.String("action", action.String()),
		zap.String("payload", payload))
	return c.finish(ev, nil)
}

// StartDosage triggers a manual dosage pulse of the given length in seconds.
func (c *Controller) StartDosage(ctx context.Context, target procon.DosageTarget, seconds int) error {
	ev := c.newEvent(CommandDosage)
	ev.Target = target.String()
	ev.Duration = seconds

	query, err := procon.DosagePayload(target, seconds)
	if err != nil {
		return c.finish(ev, err)
	}
	ev.Payload = query

	if _, err := c.Client.Command(ctx, query); err != nil {
		return c.finish(ev, fmt.Errorf("start %s dosage: %w", target, err))
	}

	c.logger.Info("Dosage started",
		zap.String("target", target.String()),
		zap.Int("seconds", seconds))
	return c.finish(ev, nil)
}

// DMX fetches the current DMX channel levels.
func (c *Controller) DMX(ctx context.Context) (*procon.DMXState, error) {
	raw, err := c.Client.GetDMX(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch dmx from %s: %w", c.Name, err)
	}
	state, err := procon.DecodeDMX(raw)
	if err != nil {
		return nil, fmt.Errorf("decode dmx from %s: %w", c.Name, err)
	}
	return state, nil
}

// SetDMXChannel changes one channel and writes all 16 channels back.
func (c *Controller) SetDMXChannel(ctx context.Context, channel, value int) (*procon.DMXState, error) {
	ev := c.newEvent(CommandDMX)
	ev.Channel = channel
	ev.Value = value

	current, err := c.DMX(ctx)
	if err != nil {
		return nil, c.finish(ev, err)
	}

	updated, err := current.WithChannel(channel, value)
	if err != nil {
		return nil, c.finish(ev, err)
	}
	ev.Payload = updated.Payload()

	if _, err := c.Client.PostUsrCfg(ctx, ev.Payload); err != nil {
		return nil, c.finish(ev, fmt.Errorf("set dmx channel %d: %w", channel, err))
	}
	return updated, c.finish(ev, nil)
}

func (c *Controller) newEvent(kind CommandKind) CommandEvent {
	return CommandEvent{
		ID:         uuid.New(),
		Controller: c.Name,
		Kind:       kind,
		Timestamp:  time.Now(),
	}
}

func (c *Controller) finish(ev CommandEvent, err error) error {
	if err != nil {
		ev.Error = err.Error()
		c.logger.Warn("Command failed",
			zap.String("kind", string(ev.Kind)),
			zap.Error(err))
	}
	for _, l := range c.listeners {
		l.CommandExecuted(c, ev)
	}
	return err
}
