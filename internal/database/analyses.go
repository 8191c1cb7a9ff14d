package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nao1215/torcorrelate/internal/model"
)

// AnalysisMetadata summarizes a stored run without loading its report.
type AnalysisMetadata struct {
	RunID          string    `json:"run_id"`
	CaseNumber     string    `json:"case_number,omitempty"`
	ProfileID      string    `json:"profile_id"`
	SnapshotID     string    `json:"snapshot_id,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	TotalPairs     int       `json:"total_session_pairs"`
	TotalClusters  int       `json:"total_clusters"`
	HighConfidence int       `json:"high_confidence_pairs"`
}

// SaveAnalysis stores or replaces an analysis run.
func (cdb *CaseDB) SaveAnalysis(ctx context.Context, r *model.AnalysisReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to serialize analysis: %w", err)
	}

	query := `
	INSERT INTO analyses (run_id, case_number, profile_id, snapshot_id, started_at,
		total_pairs, total_clusters, high_confidence, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		total_pairs = excluded.total_pairs,
		total_clusters = excluded.total_clusters,
		high_confidence = excluded.high_confidence,
		report_json = excluded.report_json
	`

	_, err = cdb.db.ExecContext(ctx, query,
		r.RunID,
		r.CaseNumber,
		r.Profile.ID,
		r.SnapshotID,
		formatTimestamp(r.StartedAt),
		r.Summary.TotalPairs,
		r.Summary.TotalClusters,
		r.Summary.ConfidenceDistribution.High,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// GetAnalysis loads a run by id.
func (cdb *CaseDB) GetAnalysis(ctx context.Context, runID string) (*model.AnalysisReport, error) {
	var data string
	err := cdb.db.QueryRowContext(ctx, `SELECT report_json FROM analyses WHERE run_id = ?`, runID).Scan(&data)
	if err != nil {
		return nil, notFound(err, "analysis", runID)
	}

	var r model.AnalysisReport
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}
	return &r, nil
}

// ListAnalyses returns run metadata, newest first. An empty caseNumber lists
// every case.
func (cdb *CaseDB) ListAnalyses(ctx context.Context, caseNumber string) ([]AnalysisMetadata, error) {
	query := `
	SELECT run_id, case_number, profile_id, snapshot_id, started_at,
		total_pairs, total_clusters, high_confidence
	FROM analyses
	`
	args := make([]any, 0, 1)
	if caseNumber != "" {
		query += " WHERE case_number = ?"
		args = append(args, caseNumber)
	}
	query += " ORDER BY started_at DESC"

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	results := []AnalysisMetadata{}
	for rows.Next() {
		var meta AnalysisMetadata
		var started string
		var snapshotID *string
		if err := rows.Scan(&meta.RunID, &meta.CaseNumber, &meta.ProfileID, &snapshotID, &started,
			&meta.TotalPairs, &meta.TotalClusters, &meta.HighConfidence); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		if snapshotID != nil {
			meta.SnapshotID = *snapshotID
		}
		meta.StartedAt = parseTimestamp(started)
		results = append(results, meta)
	}

	return results, rows.Err()
}
