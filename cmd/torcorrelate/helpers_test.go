package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/torcorrelate/internal/database"
	"github.com/nao1215/torcorrelate/internal/model"
	"github.com/nao1215/torcorrelate/internal/synthetic"
)

// testCaptured is the capture time of seeded snapshots.
var testCaptured = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// execute runs the root command with args and returns stdout and stderr.
// Tests that call it are not parallel because commands replace the default
// slog logger.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return stdout.String(), stderr.String(), err
}

// testEnv is an isolated config file and case database.
type testEnv struct {
	dir    string
	dbDir  string
	config string
}

// newTestEnv creates an environment with the given config file content.
// An empty file keeps every default and shields tests from a
// ~/.torcorrelate on the machine running them.
func newTestEnv(t *testing.T, configYAML string) testEnv {
	t.Helper()

	dir := t.TempDir()
	env := testEnv{
		dir:    dir,
		dbDir:  filepath.Join(dir, "db"),
		config: filepath.Join(dir, "config.yaml"),
	}
	if err := os.WriteFile(env.config, []byte(configYAML), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return env
}

// args prefixes command arguments with the environment's global flags.
func (e testEnv) args(args ...string) []string {
	return append([]string{"--config", e.config, "--db-dir", e.dbDir}, args...)
}

// seedSnapshot stores the demo snapshot and returns it.
func (e testEnv) seedSnapshot(t *testing.T) *model.TopologySnapshot {
	t.Helper()

	db, err := database.Open(e.dbDir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	snap := synthetic.DemoSnapshot(7, testCaptured)
	if _, _, err := db.SaveSnapshot(t.Context(), snap); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}
	return snap
}

// relayByNickname finds a demo relay.
func relayByNickname(t *testing.T, snap *model.TopologySnapshot, nickname string) model.Relay {
	t.Helper()

	for _, r := range snap.Relays {
		if r.Nickname == nickname {
			return r
		}
	}
	t.Fatalf("relay %s not in snapshot", nickname)
	return model.Relay{}
}

// writeJSON marshals v into a file under dir.
func writeJSON(t *testing.T, dir, name string, v any) string {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal %s: %v", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// decodeFile reads a JSON file into T.
func decodeFile[T any](t *testing.T, path string) T {
	t.Helper()

	var v T
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("failed to decode %s: %v\n%s", path, err, data)
	}
	return v
}

// sessionObservations builds n entry/exit pairs through guard, ten minutes
// apart, with exits 0.5s after their entries. Ids start with prefix.
func sessionObservations(prefix, guard string, start time.Time, n int) []model.TrafficObservation {
	obs := make([]model.TrafficObservation, 0, 2*n)
	for i := range n {
		at := start.Add(time.Duration(i) * 10 * time.Minute)
		volume := int64(1_000_000 + i*50_000)
		obs = append(obs,
			model.TrafficObservation{
				ID:               fmt.Sprintf("%s-entry-%d", prefix, i),
				Type:             model.ObservationEntry,
				Timestamp:        at,
				ObservedIP:       "203.0.113.50",
				RelayFingerprint: guard,
				BytesTransferred: model.Int64(volume),
			},
			model.TrafficObservation{
				ID:               fmt.Sprintf("%s-exit-%d", prefix, i),
				Type:             model.ObservationExit,
				Timestamp:        at.Add(500 * time.Millisecond),
				ObservedIP:       "192.0.2.80",
				BytesTransferred: model.Int64(volume + 1000),
			},
		)
	}
	return obs
}
