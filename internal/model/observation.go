package model

import (
	"fmt"
	"time"
)

// ObservationType tells on which side of the relay fabric traffic was seen.
type ObservationType string

const (
	// ObservationEntry is traffic seen entering the network (client to guard).
	ObservationEntry ObservationType = "entry_observed"

	// ObservationExit is traffic seen leaving the network (exit to destination).
	ObservationExit ObservationType = "exit_observed"

	// ObservationSynthetic marks generated data used for testing and demos.
	ObservationSynthetic ObservationType = "synthetic"
)

// Valid reports whether t is one of the known observation types.
func (t ObservationType) Valid() bool {
	switch t {
	case ObservationEntry, ObservationExit, ObservationSynthetic:
		return true
	default:
		return false
	}
}

// TrafficObservation is a single metadata-only record of traffic at one vantage point.
// It holds timing, volume and endpoint metadata and has no field for payload content.
//
// Optional numeric fields are pointers so that "unknown" and "zero" stay distinct:
// a nil BytesTransferred means the volume was not measured, while 0 means nothing
// was transferred.
type TrafficObservation struct {
	ID        string          `json:"observation_id"`
	Type      ObservationType `json:"observation_type"`
	Timestamp time.Time       `json:"timestamp"`

	// DurationSeconds is the observed session length.
	DurationSeconds *float64 `json:"duration,omitempty"`

	ObservedIP   string `json:"observed_ip"`
	ObservedPort *int   `json:"observed_port,omitempty"`

	// RelayFingerprint is set when the relay at the vantage point is known.
	// For entry observations it becomes the hypothesized guard.
	RelayFingerprint string `json:"relay_fingerprint,omitempty"`

	BytesTransferred *int64 `json:"bytes_transferred,omitempty"`
	PacketCount      *int64 `json:"packets_count,omitempty"`

	// InterPacketTimings are gaps between packets in milliseconds.
	InterPacketTimings []float64 `json:"inter_packet_timings,omitempty"`

	CaseNumber     string    `json:"case_number,omitempty"`
	InvestigatorID string    `json:"investigator_id,omitempty"`
	Source         string    `json:"source"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// DefaultObservationSource is used when an observation does not name its source.
const DefaultObservationSource = "manual"

// Validate checks the fields every observation must carry.
func (o TrafficObservation) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: observation id is empty", ErrInvalidObservation)
	}
	if !o.Type.Valid() {
		return fmt.Errorf("%w: observation %s has unknown type %q", ErrInvalidObservation, o.ID, o.Type)
	}
	if o.Timestamp.IsZero() {
		return fmt.Errorf("%w: observation %s has no timestamp", ErrInvalidObservation, o.ID)
	}
	if o.BytesTransferred != nil && *o.BytesTransferred < 0 {
		return fmt.Errorf("%w: observation %s has negative byte count", ErrInvalidObservation, o.ID)
	}
	return nil
}

// SplitObservations separates entry and exit observations.
// Synthetic observations are not assigned to either side.
func SplitObservations(all []TrafficObservation) (entries, exits []TrafficObservation) {
	entries = make([]TrafficObservation, 0, len(all)/2)
	exits = make([]TrafficObservation, 0, len(all)/2)
	for _, o := range all {
		switch o.Type {
		case ObservationEntry:
			entries = append(entries, o)
		case ObservationExit:
			exits = append(exits, o)
		case ObservationSynthetic:
		}
	}
	return entries, exits
}

// Int64 returns a pointer to v. It keeps observation literals readable.
func Int64(v int64) *int64 {
	return &v
}
