package model

import (
	"encoding/hex"
	"strconv"
	"time"

	"golang.org/x/crypto/sha3"
)

// Consensus validity intervals used when a snapshot is captured from
// directory data that does not carry its own validity window.
const (
	snapshotFreshFor = 30 * time.Minute
	snapshotValidFor = time.Hour
)

// TopologySnapshot is a point-in-time view of the relay population.
// It is treated as immutable once built; analyzers index it but never modify it.
type TopologySnapshot struct {
	// ID is derived from the capture time: snapshot-YYYYMMDD-HHMMSS.
	ID string `json:"snapshot_id"`

	ValidAfter  time.Time `json:"valid_after"`
	FreshUntil  time.Time `json:"fresh_until"`
	ValidUntil  time.Time `json:"valid_until"`
	CreatedAt   time.Time `json:"created_at"`
	Relays      []Relay   `json:"relays"`
	TotalRelays int       `json:"total_relays"`
	GuardCount  int       `json:"guard_relays"`
	ExitCount   int       `json:"exit_relays"`

	// TotalBandwidth and AverageBandwidth are observed bandwidth in bytes per second.
	TotalBandwidth   int64   `json:"total_bandwidth"`
	AverageBandwidth float64 `json:"avg_bandwidth"`

	// Digest is a SHA3-256 over fingerprints and consensus weights.
	// Two captures of an unchanged consensus share the same digest.
	Digest string `json:"digest"`
}

// SnapshotID formats the snapshot identifier for a capture time.
func SnapshotID(captured time.Time) string {
	return "snapshot-" + captured.UTC().Format("20060102-150405")
}

// NewTopologySnapshot builds a snapshot and computes all of its aggregates.
func NewTopologySnapshot(captured time.Time, relays []Relay) *TopologySnapshot {
	captured = captured.UTC()
	s := &TopologySnapshot{
		ID:          SnapshotID(captured),
		ValidAfter:  captured,
		FreshUntil:  captured.Add(snapshotFreshFor),
		ValidUntil:  captured.Add(snapshotValidFor),
		CreatedAt:   captured,
		Relays:      relays,
		TotalRelays: len(relays),
	}

	for _, r := range relays {
		if r.IsGuard() {
			s.GuardCount++
		}
		if r.IsExit() {
			s.ExitCount++
		}
		s.TotalBandwidth += r.ObservedBandwidth
	}
	if len(relays) > 0 {
		s.AverageBandwidth = float64(s.TotalBandwidth) / float64(len(relays))
	}
	s.Digest = SnapshotDigest(relays)

	return s
}

// SnapshotDigest hashes the identity and weight of every relay in order.
func SnapshotDigest(relays []Relay) string {
	h := sha3.New256()
	for _, r := range relays {
		h.Write([]byte(r.Fingerprint))
		h.Write([]byte{':'})
		h.Write([]byte(strconv.FormatInt(r.ConsensusWeight, 10)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
