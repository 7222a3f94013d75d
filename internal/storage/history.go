package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/KevinKickass/OpenPoolCore/internal/controller"
	"github.com/KevinKickass/OpenPoolCore/internal/procon"
	"github.com/jackc/pgx/v5"
)

const maxListLimit = 1000

// SaveSnapshot stores s for the named controller.
func (p *PostgresClient) SaveSnapshot(ctx context.Context, name string, s *procon.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO controller_snapshots (controller, version, cpu_time, device_time, data)
		VALUES ($1, $2, $3, $4, $5)
	`, name, s.Version(), s.CPUTime(), s.Time(), data)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshots returns up to limit snapshots of a controller, newest first.
func (p *PostgresClient) LatestSnapshots(ctx context.Context, name string, limit int) ([]SnapshotRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, controller, version, cpu_time, device_time, data, created_at
		FROM controller_snapshots
		WHERE controller = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, name, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SnapshotRecord, error) {
		var r SnapshotRecord
		err := row.Scan(&r.ID, &r.Controller, &r.Version, &r.CPUTime, &r.DeviceTime, &r.Data, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshots: %w", err)
	}
	return records, nil
}

// SaveCommand stores the audit row of a command event.
func (p *PostgresClient) SaveCommand(ctx context.Context, ev controller.CommandEvent) error {
	details, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO controller_commands (id, controller, kind, payload, details, error, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.Controller, string(ev.Kind), ev.Payload, details, ev.Error, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert command: %w", err)
	}
	return nil
}

// ListCommands returns up to limit commands of a controller, newest first.
func (p *PostgresClient) ListCommands(ctx context.Context, name string, limit int) ([]CommandRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, controller, kind, payload, details, error, executed_at
		FROM controller_commands
		WHERE controller = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`, name, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (CommandRecord, error) {
		var r CommandRecord
		err := row.Scan(&r.ID, &r.Controller, &r.Kind, &r.Payload, &r.Details, &r.Error, &r.ExecutedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan commands: %w", err)
	}
	return records, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
