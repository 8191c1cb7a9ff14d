package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/torcorrelate/internal/model"
)

// SnapshotMetadata describes a stored snapshot without its relays.
type SnapshotMetadata struct {
	ID          string    `json:"snapshot_id"`
	Digest      string    `json:"digest"`
	CapturedAt  time.Time `json:"captured_at"`
	TotalRelays int       `json:"total_relays"`
	GuardRelays int       `json:"guard_relays"`
	ExitRelays  int       `json:"exit_relays"`
}

// SaveSnapshot stores a snapshot unless one with the same digest exists.
// It returns the id under which the relays are stored and whether a new row
// was written. A repeated fetch of an unchanged consensus therefore returns
// the id of the first capture.
func (cdb *CaseDB) SaveSnapshot(ctx context.Context, s *model.TopologySnapshot) (string, bool, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", false, fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	query := `
	INSERT INTO snapshots (id, digest, captured_at, total_relays, guard_relays, exit_relays, snapshot_json)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING
	`

	result, err := cdb.db.ExecContext(ctx, query,
		s.ID,
		s.Digest,
		formatTimestamp(s.CreatedAt),
		s.TotalRelays,
		s.GuardCount,
		s.ExitCount,
		string(data),
	)
	if err != nil {
		return "", false, fmt.Errorf("failed to save snapshot: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("failed to save snapshot: %w", err)
	}
	if n == 1 {
		return s.ID, true, nil
	}

	var existing string
	if err := cdb.db.QueryRowContext(ctx, `SELECT id FROM snapshots WHERE digest = ?`, s.Digest).Scan(&existing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A different consensus was captured in the same second.
			return "", false, fmt.Errorf("failed to save snapshot: id %s is already taken", s.ID)
		}
		return "", false, fmt.Errorf("failed to look up snapshot by digest: %w", err)
	}
	return existing, false, nil
}

// GetSnapshot loads a snapshot by id.
func (cdb *CaseDB) GetSnapshot(ctx context.Context, id string) (*model.TopologySnapshot, error) {
	var data string
	err := cdb.db.QueryRowContext(ctx, `SELECT snapshot_json FROM snapshots WHERE id = ?`, id).Scan(&data)
	if err != nil {
		return nil, notFound(err, "snapshot", id)
	}
	return decodeSnapshot(data)
}

// LatestSnapshot loads the most recently captured snapshot.
func (cdb *CaseDB) LatestSnapshot(ctx context.Context) (*model.TopologySnapshot, error) {
	query := `
	SELECT snapshot_json FROM snapshots
	ORDER BY captured_at DESC
	LIMIT 1
	`

	var data string
	if err := cdb.db.QueryRowContext(ctx, query).Scan(&data); err != nil {
		return nil, notFound(err, "snapshot", "latest")
	}
	return decodeSnapshot(data)
}

// ListSnapshots returns snapshot metadata, newest first.
func (cdb *CaseDB) ListSnapshots(ctx context.Context) ([]SnapshotMetadata, error) {
	query := `
	SELECT id, digest, captured_at, total_relays, guard_relays, exit_relays
	FROM snapshots
	ORDER BY captured_at DESC
	`

	rows, err := cdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	results := []SnapshotMetadata{}
	for rows.Next() {
		var meta SnapshotMetadata
		var captured string
		if err := rows.Scan(&meta.ID, &meta.Digest, &captured,
			&meta.TotalRelays, &meta.GuardRelays, &meta.ExitRelays); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		meta.CapturedAt = parseTimestamp(captured)
		results = append(results, meta)
	}

	return results, rows.Err()
}

func decodeSnapshot(data string) (*model.TopologySnapshot, error) {
	var s model.TopologySnapshot
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &s, nil
}
