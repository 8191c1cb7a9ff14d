package main

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/nao1215/torcorrelate/internal/api"
	"github.com/nao1215/torcorrelate/internal/config"
	"github.com/nao1215/torcorrelate/internal/database"
	"github.com/nao1215/torcorrelate/internal/report"
)

func TestCircuit(t *testing.T) {
	env := newTestEnv(t, "")
	snap := env.seedSnapshot(t)

	guard := relayByNickname(t, snap, "DemoGuardA")
	middle := relayByNickname(t, snap, "DemoGuardB")
	exit := relayByNickname(t, snap, "DemoExitA")
	nearExit := relayByNickname(t, snap, "DemoExitNear")

	t.Run("valid circuit", func(t *testing.T) {
		stdout, _, err := execute(t, env.args("circuit", guard.Fingerprint, middle.Fingerprint, exit.Fingerprint)...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "Result:   valid") {
			t.Errorf("expected a valid circuit, got %q", stdout)
		}
	})

	t.Run("lower-case fingerprints are accepted", func(t *testing.T) {
		_, _, err := execute(t, env.args("circuit",
			strings.ToLower(guard.Fingerprint), middle.Fingerprint, exit.Fingerprint)...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("same subnet is reported", func(t *testing.T) {
		stdout, _, err := execute(t, env.args("circuit", guard.Fingerprint, middle.Fingerprint, nearExit.Fingerprint)...)
		if !errors.Is(err, errInvalidCircuit) {
			t.Fatalf("expected errInvalidCircuit, got %v", err)
		}
		if !strings.Contains(stdout, "guard and exit in same /16 subnet") {
			t.Errorf("expected subnet violation, got %q", stdout)
		}
	})

	t.Run("json", func(t *testing.T) {
		stdout, _, err := execute(t, env.args("circuit", "--json", exit.Fingerprint, middle.Fingerprint, guard.Fingerprint)...)
		if !errors.Is(err, errInvalidCircuit) {
			t.Fatalf("expected errInvalidCircuit, got %v", err)
		}
		var resp api.CircuitResponse
		if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, stdout)
		}
		if resp.Valid || resp.SnapshotID != snap.ID {
			t.Errorf("unexpected response %+v", resp)
		}
		if !slices.Contains(resp.Violations, "first relay is not a guard") {
			t.Errorf("expected guard violation in %v", resp.Violations)
		}
		if resp.GuardSelectionProbability != 0 {
			t.Errorf("an exit-only relay has no guard probability, got %v", resp.GuardSelectionProbability)
		}
	})

	t.Run("no snapshot", func(t *testing.T) {
		empty := newTestEnv(t, "")
		_, _, err := execute(t, empty.args("circuit", guard.Fingerprint, middle.Fingerprint, exit.Fingerprint)...)
		if !errors.Is(err, database.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestProfiles(t *testing.T) {
	env := newTestEnv(t, `
profile: night-shift
profiles:
  night-shift:
    time: 0.5
    volume: 0.3
    pattern: 0.2
    created_by: analyst-7
`)

	t.Run("list marks the active profile", func(t *testing.T) {
		stdout, _, err := execute(t, env.args("profiles")...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"standard", "time-focused", "volume-focused", "pattern-focused", "custom-night-shift"} {
			if !strings.Contains(stdout, want) {
				t.Errorf("expected %q in list\n%s", want, stdout)
			}
		}
		for _, line := range strings.Split(stdout, "\n") {
			if strings.Contains(line, "custom-night-shift") && !strings.HasPrefix(line, "*") {
				t.Errorf("expected the custom profile to be marked active: %q", line)
			}
			if strings.Contains(line, "standard") && strings.HasPrefix(line, "*") {
				t.Errorf("standard must not be marked active: %q", line)
			}
		}
	})

	t.Run("list as json", func(t *testing.T) {
		stdout, _, err := execute(t, env.args("profiles", "--json")...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var resp api.ProfilesResponse
		if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if resp.Count != 5 || resp.Active != "custom-night-shift" {
			t.Errorf("count = %d, active = %q", resp.Count, resp.Active)
		}
	})

	t.Run("show preset", func(t *testing.T) {
		stdout, _, err := execute(t, env.args("profiles", "time-focused")...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "0.60") {
			t.Errorf("expected the time weight in output\n%s", stdout)
		}
		if got := field(stdout, "Active:"); got != "false" {
			t.Errorf("Active = %q, want false", got)
		}
	})

	t.Run("show custom", func(t *testing.T) {
		stdout, _, err := execute(t, env.args("profiles", "night-shift")...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := field(stdout, "Created by:"); got != "analyst-7" {
			t.Errorf("Created by = %q, want analyst-7", got)
		}
		if got := field(stdout, "Active:"); got != "true" {
			t.Errorf("Active = %q, want true", got)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := execute(t, env.args("profiles", "custom")...)
		if !errors.Is(err, config.ErrUnknownProfile) {
			t.Errorf("expected ErrUnknownProfile, got %v", err)
		}
	})
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, "")
	snap := env.seedSnapshot(t)
	guard := relayByNickname(t, snap, "DemoGuardC")

	stdout, _, err := execute(t, env.args("stats")...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "No analyses stored") {
		t.Errorf("expected empty message, got %q", stdout)
	}

	input := writeJSON(t, env.dir, "CASE-S.json", sessionObservations("s", guard.Fingerprint, testCaptured, 4))
	out := filepath.Join(env.dir, "run.json")
	if _, _, err := execute(t, env.args("analyze", "--json", "-o", out, input)...); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	runID := decodeFile[report.JSONReport](t, out).Report.RunID

	t.Run("list", func(t *testing.T) {
		stdout, _, err := execute(t, env.args("stats", "--case", "CASE-S")...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, runID) {
			t.Errorf("expected run %s in list\n%s", runID, stdout)
		}

		stdout, _, err = execute(t, env.args("stats", "--case", "OTHER")...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(stdout, runID) {
			t.Errorf("case filter ignored\n%s", stdout)
		}
	})

	t.Run("show", func(t *testing.T) {
		stdout, _, err := execute(t, env.args("stats", runID)...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{runID, "CASE-S", "Session pairs:", "Repetition weighting:"} {
			if !strings.Contains(stdout, want) {
				t.Errorf("expected %q in output\n%s", want, stdout)
			}
		}
	})

	t.Run("show json", func(t *testing.T) {
		stdout, _, err := execute(t, env.args("stats", runID, "--json")...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var resp api.SummaryResponse
		if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if resp.Summary.TotalPairs != 4 {
			t.Errorf("total pairs = %d, want 4", resp.Summary.TotalPairs)
		}
		if resp.Repetition == nil || !resp.Repetition.Enabled {
			t.Errorf("expected repetition stats, got %+v", resp.Repetition)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		_, _, err := execute(t, env.args("stats", "no-such-run")...)
		if !errors.Is(err, database.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

// field returns the value printed after label on its own line.
func field(output, label string) string {
	for _, line := range strings.Split(output, "\n") {
		if rest, ok := strings.CutPrefix(line, label); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
