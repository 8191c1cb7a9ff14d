package database

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/torcorrelate/internal/model"
)

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CaseDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func testSnapshot(t *testing.T, captured time.Time, weights ...int64) *model.TopologySnapshot {
	t.Helper()

	relays := make([]model.Relay, 0, len(weights))
	for i, w := range weights {
		r, _ := model.NewRelay(
			strings.Repeat(string(rune('A'+i)), 40),
			"relay"+string(rune('a'+i)),
			"192.0."+string(rune('0'+i))+".1",
			9001,
			[]string{"Guard", "Running", "Valid"},
		)
		r.ConsensusWeight = w
		r.ObservedBandwidth = w * 100
		relays = append(relays, r)
	}
	return model.NewTopologySnapshot(captured, relays)
}

func testObservation(id string, typ model.ObservationType, at time.Time) model.TrafficObservation {
	return model.TrafficObservation{
		ID:               id,
		Type:             typ,
		Timestamp:        at,
		ObservedIP:       "203.0.113.9",
		RelayFingerprint: strings.Repeat("A", 40),
		BytesTransferred: model.Int64(1024),
		Source:           model.DefaultObservationSource,
		CreatedAt:        at,
	}
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent-db")

		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error when CreateIfNotExists=false and database does not exist")
		}
		if !strings.Contains(err.Error(), "database not found") {
			t.Errorf("expected informative error, got %q", err.Error())
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created when CreateIfNotExists=false")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "existing-db")

		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		snap := testSnapshot(t, testBase, 10)
		if _, _, err := db1.SaveSnapshot(t.Context(), snap); err != nil {
			t.Fatalf("failed to save snapshot: %v", err)
		}
		db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to open existing database: %v", err)
		}
		defer db2.Close()

		if _, err := db2.GetSnapshot(t.Context(), snap.ID); err != nil {
			t.Errorf("data did not persist: %v", err)
		}
	})
}

// TestDefaultOptions tests default database options.
func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if !opts.CreateIfNotExists {
		t.Error("expected CreateIfNotExists to be true by default")
	}
	if !opts.EnableWAL {
		t.Error("expected EnableWAL to be true by default")
	}
}

func TestSnapshots(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()

	first := testSnapshot(t, testBase, 10, 20)
	id, created, err := db.SaveSnapshot(ctx, first)
	if err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if !created || id != first.ID {
		t.Errorf("SaveSnapshot() = %q, %v; want %q, true", id, created, first.ID)
	}

	t.Run("identical digest is not stored twice", func(t *testing.T) {
		again := testSnapshot(t, testBase.Add(time.Hour), 10, 20)
		id, created, err := db.SaveSnapshot(ctx, again)
		if err != nil {
			t.Fatalf("SaveSnapshot() error = %v", err)
		}
		if created {
			t.Error("expected duplicate digest to be skipped")
		}
		if id != first.ID {
			t.Errorf("expected existing id %q, got %q", first.ID, id)
		}
	})

	changed := testSnapshot(t, testBase.Add(2*time.Hour), 10, 25)
	if _, created, err := db.SaveSnapshot(ctx, changed); err != nil || !created {
		t.Fatalf("SaveSnapshot(changed) = %v, %v", created, err)
	}

	t.Run("get round trips relays", func(t *testing.T) {
		got, err := db.GetSnapshot(ctx, first.ID)
		if err != nil {
			t.Fatalf("GetSnapshot() error = %v", err)
		}
		if got.TotalRelays != 2 || len(got.Relays) != 2 {
			t.Errorf("relays = %d/%d, want 2", got.TotalRelays, len(got.Relays))
		}
		if !got.Relays[0].IsGuard() {
			t.Error("flags were not preserved")
		}
		if got.Digest != first.Digest {
			t.Error("digest changed after round trip")
		}
	})

	t.Run("latest is the newest capture", func(t *testing.T) {
		got, err := db.LatestSnapshot(ctx)
		if err != nil {
			t.Fatalf("LatestSnapshot() error = %v", err)
		}
		if got.ID != changed.ID {
			t.Errorf("LatestSnapshot() = %q, want %q", got.ID, changed.ID)
		}
	})

	t.Run("list is newest first", func(t *testing.T) {
		list, err := db.ListSnapshots(ctx)
		if err != nil {
			t.Fatalf("ListSnapshots() error = %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("ListSnapshots() returned %d entries, want 2", len(list))
		}
		if list[0].ID != changed.ID || list[1].ID != first.ID {
			t.Errorf("unexpected order: %s, %s", list[0].ID, list[1].ID)
		}
		if !list[1].CapturedAt.Equal(testBase) {
			t.Errorf("CapturedAt = %v, want %v", list[1].CapturedAt, testBase)
		}
	})

	t.Run("missing snapshot is ErrNotFound", func(t *testing.T) {
		if _, err := db.GetSnapshot(ctx, "snapshot-19700101-000000"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestLatestSnapshot_Empty(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	if _, err := db.LatestSnapshot(t.Context()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	list, err := db.ListSnapshots(t.Context())
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil list, got %v", list)
	}
}

func TestObservations(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()

	obs := []model.TrafficObservation{
		testObservation("exit-1", model.ObservationExit, testBase.Add(2*time.Second)),
		testObservation("entry-1", model.ObservationEntry, testBase),
	}
	if err := db.SaveObservations(ctx, "CASE-1", obs); err != nil {
		t.Fatalf("SaveObservations() error = %v", err)
	}

	other := []model.TrafficObservation{testObservation("entry-9", model.ObservationEntry, testBase)}
	if err := db.SaveObservations(ctx, "CASE-2", other); err != nil {
		t.Fatalf("SaveObservations() error = %v", err)
	}

	got, err := db.ListObservations(ctx, "CASE-1")
	if err != nil {
		t.Fatalf("ListObservations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListObservations() returned %d, want 2", len(got))
	}
	if got[0].ID != "entry-1" || got[1].ID != "exit-1" {
		t.Errorf("expected timestamp order, got %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].CaseNumber != "CASE-1" {
		t.Errorf("CaseNumber = %q, want CASE-1", got[0].CaseNumber)
	}
	if got[0].BytesTransferred == nil || *got[0].BytesTransferred != 1024 {
		t.Errorf("BytesTransferred not preserved: %v", got[0].BytesTransferred)
	}

	t.Run("re-import replaces by id", func(t *testing.T) {
		updated := testObservation("entry-1", model.ObservationEntry, testBase)
		updated.Notes = "re-imported"
		if err := db.SaveObservations(ctx, "CASE-1", []model.TrafficObservation{updated}); err != nil {
			t.Fatalf("SaveObservations() error = %v", err)
		}
		got, err := db.ListObservations(ctx, "CASE-1")
		if err != nil {
			t.Fatalf("ListObservations() error = %v", err)
		}
		if len(got) != 2 || got[0].Notes != "re-imported" {
			t.Errorf("unexpected observations after re-import: %+v", got)
		}
	})

	t.Run("invalid observation rolls back the batch", func(t *testing.T) {
		bad := []model.TrafficObservation{
			testObservation("entry-new", model.ObservationEntry, testBase),
			{ID: "broken", Type: "sideways", Timestamp: testBase},
		}
		err := db.SaveObservations(ctx, "CASE-3", bad)
		if !errors.Is(err, model.ErrInvalidObservation) {
			t.Fatalf("expected ErrInvalidObservation, got %v", err)
		}
		got, err := db.ListObservations(ctx, "CASE-3")
		if err != nil {
			t.Fatalf("ListObservations() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected rollback, found %d observations", len(got))
		}
	})
}

func TestAnalyses(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()

	older := model.NewAnalysisReport("CASE-1", nil)
	older.StartedAt = testBase
	older.Profile = model.StandardProfile()
	older.SnapshotID = "snapshot-20250601-110000"
	older.Pairs = []model.SessionPair{{ID: "pair-e1-x1", CorrelationStrength: 82, Confidence: model.ConfidenceHigh}}
	older.Summary = model.Summarize(older.Pairs, nil)

	newer := model.NewAnalysisReport("CASE-2", nil)
	newer.StartedAt = testBase.Add(time.Hour)
	newer.Profile = model.StandardProfile()

	for _, r := range []*model.AnalysisReport{older, newer} {
		if err := db.SaveAnalysis(ctx, r); err != nil {
			t.Fatalf("SaveAnalysis() error = %v", err)
		}
	}

	t.Run("get round trips the report", func(t *testing.T) {
		got, err := db.GetAnalysis(ctx, older.RunID)
		if err != nil {
			t.Fatalf("GetAnalysis() error = %v", err)
		}
		if got.CaseNumber != "CASE-1" || len(got.Pairs) != 1 {
			t.Errorf("unexpected report: %+v", got)
		}
		if p, ok := got.FindPair("pair-e1-x1"); !ok || p.Confidence != model.ConfidenceHigh {
			t.Errorf("pair confidence not preserved: %+v", p)
		}
	})

	t.Run("list all newest first", func(t *testing.T) {
		list, err := db.ListAnalyses(ctx, "")
		if err != nil {
			t.Fatalf("ListAnalyses() error = %v", err)
		}
		if len(list) != 2 || list[0].RunID != newer.RunID {
			t.Fatalf("unexpected list: %+v", list)
		}
		if list[1].HighConfidence != 1 || list[1].TotalPairs != 1 {
			t.Errorf("summary columns = %+v", list[1])
		}
		if list[1].SnapshotID != older.SnapshotID {
			t.Errorf("SnapshotID = %q", list[1].SnapshotID)
		}
	})

	t.Run("list filtered by case", func(t *testing.T) {
		list, err := db.ListAnalyses(ctx, "CASE-2")
		if err != nil {
			t.Fatalf("ListAnalyses() error = %v", err)
		}
		if len(list) != 1 || list[0].RunID != newer.RunID {
			t.Errorf("unexpected list: %+v", list)
		}
	})

	t.Run("saving again replaces the run", func(t *testing.T) {
		newer.Error = "cluster step failed"
		if err := db.SaveAnalysis(ctx, newer); err != nil {
			t.Fatalf("SaveAnalysis() error = %v", err)
		}
		got, err := db.GetAnalysis(ctx, newer.RunID)
		if err != nil {
			t.Fatalf("GetAnalysis() error = %v", err)
		}
		if got.Error != "cluster step failed" {
			t.Errorf("Error = %q", got.Error)
		}
	})

	t.Run("missing run is ErrNotFound", func(t *testing.T) {
		if _, err := db.GetAnalysis(ctx, "no-such-run"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2025-06-01T12:00:00.5Z", want: testBase.Add(500 * time.Millisecond)},
		{in: "2025-06-01T12:00:00Z", want: testBase},
		{in: "2025-06-01 12:00:00", want: testBase},
		{in: "not a time", want: time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := parseTimestamp(tt.in); !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
