/*
Copyright (c) The handover-core Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package measurement

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultOutputDir matches the configuration surface's measurement_output_dir.
const DefaultOutputDir = "./measurement_results"

// snapshot is the full JSON export payload (§4.6 Export: "JSON (full event
// list + stats + report)").
type snapshot struct {
	Events  []HandoverEvent       `json:"events"`
	Stats   map[string]SchemeStats `json:"stats"`
	Report  CompareReport          `json:"report"`
}

// resolveOutputDir returns dir if writable, else falls back to the system
// temp location with a warning (§4.6, §6 "fallback $TMPDIR").
func resolveOutputDir(dir string) string {
	if dir == "" {
		dir = DefaultOutputDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warningf("measurement: output dir %q not writable (%v), falling back to temp", dir, err)
		return os.TempDir()
	}
	probe := filepath.Join(dir, ".write_probe")
	if f, err := os.Create(probe); err != nil {
		log.Warningf("measurement: output dir %q not writable (%v), falling back to temp", dir, err)
		return os.TempDir()
	} else {
		f.Close()
		os.Remove(probe)
	}
	return dir
}

// ExportJSON writes the full event list, per-scheme stats, and a compare
// report to <dir>/<name>.json, falling back to a temp dir if dir isn't
// writable. It returns the path actually written.
func (s *Store) ExportJSON(dir, name string) (string, error) {
	dir = resolveOutputDir(dir)
	if name == "" {
		name = "handover_measurements.json"
	}
	path := filepath.Join(dir, name)

	statsByScheme := s.Analyse(false)
	stats := make(map[string]SchemeStats, len(statsByScheme))
	for scheme, st := range statsByScheme {
		stats[scheme.String()] = st
	}

	snap := snapshot{
		Events: s.Events(),
		Stats:  stats,
		Report: s.CompareReport(),
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("measurement: marshaling snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("measurement: writing %s: %w", path, err)
	}
	return path, nil
}

var csvHeader = []string{
	"id", "ue_id", "source_gnb", "target_gnb", "scheme",
	"start", "end", "latency_ms", "result",
}

// ExportCSV writes every stored event as a flat CSV file (§4.6 Export:
// "CSV (flat events)"), with the same writable-dir fallback as ExportJSON.
func (s *Store) ExportCSV(dir, name string) (string, error) {
	dir = resolveOutputDir(dir)
	if name == "" {
		name = "handover_events.csv"
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("measurement: creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("measurement: writing csv header: %w", err)
	}
	for _, e := range s.Events() {
		row := []string{
			e.ID, e.UEID, e.SourceGNB, e.TargetGNB, e.Scheme.String(),
			e.Start.Format(time.RFC3339Nano), e.End.Format(time.RFC3339Nano),
			strconv.FormatFloat(e.LatencyMS, 'f', -1, 64), e.Result.String(),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("measurement: writing csv row for %s: %w", e.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("measurement: flushing csv: %w", err)
	}
	return path, nil
}

// ImportJSON reads back a file written by ExportJSON, for the round-trip
// property named in §8 ("Export-then-reimport of events yields an
// identical in-memory list").
func ImportJSON(path string) ([]HandoverEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("measurement: reading %s: %w", path, err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("measurement: unmarshaling %s: %w", path, err)
	}
	return snap.Events, nil
}
