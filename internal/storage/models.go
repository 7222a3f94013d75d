package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SnapshotRecord is a stored status feed snapshot.
type SnapshotRecord struct {
	ID         int64           `json:"id"`
	Controller string          `json:"controller"`
	Version    string          `json:"version"`
	CPUTime    int64           `json:"cpu_time"`
	DeviceTime string          `json:"device_time"`
	Data       json.RawMessage `json:"data"` // JSONB
	CreatedAt  time.Time       `json:"created_at"`
}

// CommandRecord is an audit row for a command sent to a controller.
type CommandRecord struct {
	ID         uuid.UUID       `json:"id"`
	Controller string          `json:"controller"`
	Kind       string          `json:"kind"`
	Payload    string          `json:"payload"`
	Details    json.RawMessage `json:"details"` // JSONB
	Error      string          `json:"error,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
}
