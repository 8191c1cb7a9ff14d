package model

import (
	"slices"
	"time"
)

// RelayFlag is a consensus flag assigned to a relay by the directory authorities.
type RelayFlag string

// Relay flags that carry meaning for path selection.
// Flags not listed here are dropped when a relay is built from directory data.
const (
	FlagAuthority RelayFlag = "Authority"
	FlagBadExit   RelayFlag = "BadExit"
	FlagExit      RelayFlag = "Exit"
	FlagFast      RelayFlag = "Fast"
	FlagGuard     RelayFlag = "Guard"
	FlagHSDir     RelayFlag = "HSDir"
	FlagRunning   RelayFlag = "Running"
	FlagStable    RelayFlag = "Stable"
	FlagValid     RelayFlag = "Valid"
	FlagV2Dir     RelayFlag = "V2Dir"
)

// knownFlags lists every flag ParseRelayFlag accepts.
var knownFlags = []RelayFlag{
	FlagAuthority, FlagBadExit, FlagExit, FlagFast, FlagGuard,
	FlagHSDir, FlagRunning, FlagStable, FlagValid, FlagV2Dir,
}

// ParseRelayFlag converts a directory flag name into a RelayFlag.
// The second return value is false for flags this package does not model.
func ParseRelayFlag(s string) (RelayFlag, bool) {
	f := RelayFlag(s)
	if slices.Contains(knownFlags, f) {
		return f, true
	}
	return "", false
}

// Relay is a single relay as published in a consensus.
//
// Design decision: guard and exit capability are derived from Flags on every
// call instead of being stored. A relay loaded back from the case database or
// decoded from JSON therefore can never disagree with its own flag set.
type Relay struct {
	// Fingerprint is the 40 character upper-case hex identity digest.
	Fingerprint string `json:"fingerprint"`

	// Nickname is the operator chosen relay name.
	Nickname string `json:"nickname"`

	// Address is the primary OR address (IPv4 or IPv6, without brackets).
	Address string `json:"address"`

	ORPort  int `json:"or_port"`
	DirPort int `json:"dir_port,omitempty"`

	Flags []RelayFlag `json:"flags"`

	// ObservedBandwidth and AdvertisedBandwidth are in bytes per second.
	ObservedBandwidth   int64 `json:"observed_bandwidth"`
	AdvertisedBandwidth int64 `json:"advertised_bandwidth"`

	// ConsensusWeight is the relative weight used by clients for path selection.
	ConsensusWeight int64 `json:"consensus_weight"`

	CountryCode string `json:"country_code,omitempty"`
	ASNumber    string `json:"as_number,omitempty"`
	ASName      string `json:"as_name,omitempty"`

	Platform          string `json:"platform,omitempty"`
	Version           string `json:"version,omitempty"`
	Contact           string `json:"contact,omitempty"`
	ExitPolicySummary string `json:"exit_policy_summary,omitempty"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// LastChangedAddress is when the relay last changed its address or OR port.
	LastChangedAddress time.Time `json:"last_changed_address_or_port,omitzero"`
}

// NewRelay builds a relay from raw directory flag names.
// Unknown flag names are returned separately so callers can log them.
func NewRelay(fingerprint, nickname, address string, orPort int, flagNames []string) (Relay, []string) {
	r := Relay{
		Fingerprint: fingerprint,
		Nickname:    nickname,
		Address:     address,
		ORPort:      orPort,
		Flags:       make([]RelayFlag, 0, len(flagNames)),
	}

	var unknown []string
	for _, name := range flagNames {
		f, ok := ParseRelayFlag(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if !slices.Contains(r.Flags, f) {
			r.Flags = append(r.Flags, f)
		}
	}
	return r, unknown
}

// HasFlag reports whether the relay carries the given flag.
func (r Relay) HasFlag(f RelayFlag) bool {
	return slices.Contains(r.Flags, f)
}

// IsGuard reports whether the relay may be used as the first hop.
func (r Relay) IsGuard() bool {
	return r.HasFlag(FlagGuard)
}

// IsExit reports whether the relay may be used as the last hop.
// A relay flagged BadExit is never an exit even when it also carries Exit.
func (r Relay) IsExit() bool {
	return r.HasFlag(FlagExit) && !r.HasFlag(FlagBadExit)
}

// IsUsable reports whether the relay is both Running and Valid.
func (r Relay) IsUsable() bool {
	return r.HasFlag(FlagRunning) && r.HasFlag(FlagValid)
}

// ShortFingerprint returns the first 16 characters of the fingerprint for display.
func (r Relay) ShortFingerprint() string {
	return ShortFingerprint(r.Fingerprint)
}

// ShortFingerprint truncates a fingerprint to 16 characters.
func ShortFingerprint(fp string) string {
	if len(fp) <= 16 {
		return fp
	}
	return fp[:16]
}
