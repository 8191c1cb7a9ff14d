package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nao1215/torcorrelate/internal/model"
)

// SaveObservations stores observations under caseNumber in one transaction.
// An observation that is already stored is replaced, so re-importing a file
// is idempotent. The observation's own CaseNumber is overwritten when
// caseNumber is non-empty.
func (cdb *CaseDB) SaveObservations(ctx context.Context, caseNumber string, obs []model.TrafficObservation) error {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO observations (id, case_number, type, observed_at, relay_fingerprint, observation_json)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		case_number = excluded.case_number,
		type = excluded.type,
		observed_at = excluded.observed_at,
		relay_fingerprint = excluded.relay_fingerprint,
		observation_json = excluded.observation_json
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare observation insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		if err := o.Validate(); err != nil {
			return err
		}
		if caseNumber != "" {
			o.CaseNumber = caseNumber
		}
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to serialize observation %s: %w", o.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			o.ID,
			o.CaseNumber,
			string(o.Type),
			formatTimestamp(o.Timestamp),
			o.RelayFingerprint,
			string(data),
		); err != nil {
			return fmt.Errorf("failed to save observation %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit observations: %w", err)
	}
	return nil
}

// ListObservations returns the observations of a case ordered by timestamp.
// An empty caseNumber lists observations that were stored without one.
func (cdb *CaseDB) ListObservations(ctx context.Context, caseNumber string) ([]model.TrafficObservation, error) {
	query := `
	SELECT observation_json FROM observations
	WHERE case_number = ?
	ORDER BY observed_at, id
	`

	rows, err := cdb.db.QueryContext(ctx, query, caseNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}
	defer rows.Close()

	results := []model.TrafficObservation{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		var o model.TrafficObservation
		if err := json.Unmarshal([]byte(data), &o); err != nil {
			return nil, fmt.Errorf("failed to parse observation: %w", err)
		}
		results = append(results, o)
	}

	return results, rows.Err()
}
