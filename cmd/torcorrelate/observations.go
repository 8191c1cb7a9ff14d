package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/torcorrelate/internal/model"
)

// caseFile is the object form of an observation file.
type caseFile struct {
	CaseNumber   string                     `json:"case_number"`
	Observations []model.TrafficObservation `json:"observations"`
}

// readCaseFile loads observations from a JSON file. Two layouts are accepted:
// a bare array of observations, or an object with case_number and
// observations. Without a case number the file name minus extension is used.
func readCaseFile(path string, now time.Time) (string, []model.TrafficObservation, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided input path is intentional
	if err != nil {
		return "", nil, fmt.Errorf("failed to read observation file: %w", err)
	}

	var cf caseFile
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
		return "", nil, fmt.Errorf("observation file %s is empty", path)
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &cf.Observations); err != nil {
			return "", nil, fmt.Errorf("failed to parse observation file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(trimmed, &cf); err != nil {
			return "", nil, fmt.Errorf("failed to parse observation file %s: %w", path, err)
		}
	}

	if cf.CaseNumber == "" {
		base := filepath.Base(path)
		cf.CaseNumber = strings.TrimSuffix(base, filepath.Ext(base))
	}
	normalizeObservations(cf.Observations, now)
	return cf.CaseNumber, cf.Observations, nil
}

// normalizeObservations fills in the source and creation time when absent.
func normalizeObservations(obs []model.TrafficObservation, now time.Time) {
	for i := range obs {
		if obs[i].Source == "" {
			obs[i].Source = model.DefaultObservationSource
		}
		if obs[i].CreatedAt.IsZero() {
			obs[i].CreatedAt = now.UTC()
		}
	}
}
