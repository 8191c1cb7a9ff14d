package onionoo

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/torcorrelate/internal/model"
)

// timeLayout is the timestamp format used throughout Onionoo documents.
const timeLayout = "2006-01-02 15:04:05"

// detailFields is the field list requested from the details endpoint.
var detailFields = []string{
	"nickname", "fingerprint", "or_addresses", "dir_address",
	"first_seen", "last_seen", "last_changed_address_or_port",
	"flags", "country", "as", "as_name", "consensus_weight",
	"observed_bandwidth", "advertised_bandwidth",
	"platform", "version", "contact", "exit_policy_summary",
}

// detailsDocument is the subset of the details response we decode.
type detailsDocument struct {
	Version         string          `json:"version"`
	RelaysPublished string          `json:"relays_published"`
	Relays          []relayDocument `json:"relays"`
}

type relayDocument struct {
	Nickname                 string              `json:"nickname"`
	Fingerprint              string              `json:"fingerprint"`
	ORAddresses              []string            `json:"or_addresses"`
	DirAddress               string              `json:"dir_address"`
	FirstSeen                string              `json:"first_seen"`
	LastSeen                 string              `json:"last_seen"`
	LastChangedAddressOrPort string              `json:"last_changed_address_or_port"`
	Flags                    []string            `json:"flags"`
	Country                  string              `json:"country"`
	AS                       string              `json:"as"`
	ASName                   string              `json:"as_name"`
	ConsensusWeight          int64               `json:"consensus_weight"`
	ObservedBandwidth        int64               `json:"observed_bandwidth"`
	AdvertisedBandwidth      int64               `json:"advertised_bandwidth"`
	Platform                 string              `json:"platform"`
	Version                  string              `json:"version"`
	Contact                  string              `json:"contact"`
	ExitPolicySummary        map[string][]string `json:"exit_policy_summary"`
}

// parseTime parses an Onionoo timestamp. Empty input yields the zero time.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// splitORAddress splits "1.2.3.4:9001" or "[2001:db8::1]:9001" into address
// and port. IPv6 addresses are returned without brackets.
func splitORAddress(s string) (string, int, error) {
	ap, err := netip.ParseAddrPort(s)
	if err == nil {
		return ap.Addr().String(), int(ap.Port()), nil
	}

	// Fall back for hostnames, which netip does not accept.
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
	}
	port, err := strconv.Atoi(s[i+1:])
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
	}
	return strings.Trim(s[:i], "[]"), port, nil
}

// formatPolicySummary renders {"accept":["80","443"]} as "accept 80,443".
func formatPolicySummary(p map[string][]string) string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+strings.Join(p[k], ","))
	}
	return strings.Join(parts, "; ")
}

// toRelay converts a relay document. The second return value lists flags
// that the model does not know.
func (d relayDocument) toRelay() (model.Relay, []string, error) {
	if len(d.ORAddresses) == 0 {
		return model.Relay{}, nil, fmt.Errorf("%w: relay %s has no OR addresses", ErrMalformedAddress, d.Fingerprint)
	}
	addr, port, err := splitORAddress(d.ORAddresses[0])
	if err != nil {
		return model.Relay{}, nil, err
	}

	r, unknown := model.NewRelay(strings.ToUpper(d.Fingerprint), d.Nickname, addr, port, d.Flags)

	if d.DirAddress != "" {
		if _, dirPort, err := splitORAddress(d.DirAddress); err == nil {
			r.DirPort = dirPort
		}
	}

	r.ObservedBandwidth = d.ObservedBandwidth
	r.AdvertisedBandwidth = d.AdvertisedBandwidth
	r.ConsensusWeight = d.ConsensusWeight
	r.CountryCode = d.Country
	r.ASNumber = d.AS
	r.ASName = d.ASName
	r.Platform = d.Platform
	r.Version = d.Version
	r.Contact = d.Contact
	r.ExitPolicySummary = formatPolicySummary(d.ExitPolicySummary)

	if r.FirstSeen, err = parseTime(d.FirstSeen); err != nil {
		return model.Relay{}, unknown, err
	}
	if r.LastSeen, err = parseTime(d.LastSeen); err != nil {
		return model.Relay{}, unknown, err
	}
	if r.LastChangedAddress, err = parseTime(d.LastChangedAddressOrPort); err != nil {
		return model.Relay{}, unknown, err
	}
	return r, unknown, nil
}

// decodeDetails parses a details response body.
func decodeDetails(data []byte) (*detailsDocument, error) {
	var doc detailsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode details document: %w", err)
	}
	return &doc, nil
}
