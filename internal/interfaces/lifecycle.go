package interfaces

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenPoolCore/internal/config"
	"github.com/KevinKickass/OpenPoolCore/internal/devices"
	"github.com/KevinKickass/OpenPoolCore/internal/storage"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State                string    `json:"state"`
	StartedAt            time.Time `json:"started_at"`
	ControllerCount      int       `json:"controller_count"`
	ReachableControllers int       `json:"reachable_controllers"`
	HistoryEnabled       bool      `json:"history_enabled"`
	WebSocketClients     int       `json:"websocket_clients"`
	LastError            string    `json:"last_error,omitempty"`
}

type LifecycleManager interface {
	Config() *config.Config
	ControllerManager() *devices.Manager
	// History returns nil when the database is disabled.
	History() storage.HistoryReader
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
