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

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ntn-constellation/handover-core/bridge"
	"github.com/ntn-constellation/handover-core/dataplane"
	"github.com/ntn-constellation/handover-core/eventbus"
	"github.com/ntn-constellation/handover-core/measurement"
	"github.com/ntn-constellation/handover-core/position"
	syncpkg "github.com/ntn-constellation/handover-core/sync"
)

// planeDrift is one plane's drift-monitoring snapshot for /status.
type planeDrift struct {
	Plane          string  `json:"plane"`
	SmoothedMS     float64 `json:"smoothed_ms"`
	MeanMS         float64 `json:"mean_ms"`
	StddevMS       float64 `json:"stddev_ms"`
	SampleCount    int     `json:"sample_count"`
	DriftRateMSHr  float64 `json:"drift_rate_ms_per_hour"`
}

// driftSnapshot reports each plane's PI-servo-smoothed offset (§ supplemented
// feature 3) alongside its running mean/stddev, for the monitoring endpoint.
func driftSnapshot(coord *syncpkg.Coordinator) []planeDrift {
	planes := []syncpkg.Plane{syncpkg.AccessNet, syncpkg.CoreNet, syncpkg.SatelliteNet, syncpkg.GroundStation}
	out := make([]planeDrift, len(planes))
	for i, p := range planes {
		mean, stddev, count := coord.DriftStats(p)
		out[i] = planeDrift{
			Plane:         p.String(),
			SmoothedMS:    coord.SmoothedOffsetMS(p),
			MeanMS:        mean,
			StddevMS:      stddev,
			SampleCount:   count,
			DriftRateMSHr: coord.DriftRateMSPerHour(p),
		}
	}
	return out
}

// decideRequest is the JSON body external collaborators POST to /decide
// (§6: "External collaborators speak JSON over HTTP").
type decideRequest struct {
	UEID               string  `json:"ue_id"`
	LatitudeDeg        float64 `json:"latitude_deg"`
	LongitudeDeg       float64 `json:"longitude_deg"`
	AltitudeKM         float64 `json:"altitude_km"`
	CandidateSatellite string  `json:"candidate_satellite"`
	SourceGNB          string  `json:"source_gnb"`
	TargetGNB          string  `json:"target_gnb"`
	Scheme             string  `json:"scheme"` // Baseline, GS-Assisted, SMN-Assisted, Proposed; default Proposed
}

type modeSwitchRequest struct {
	Mode   string `json:"mode"`
	Reason string `json:"reason"`
}

type exportRequest struct {
	Dir    string `json:"dir"`
	Format string `json:"format"` // json or csv, default json
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseScheme(s string) measurement.Scheme {
	for _, sc := range measurement.Schemes {
		if sc.String() == s {
			return sc
		}
	}
	return measurement.Proposed
}

// registerRoutes wires the operator-facing HTTP surface that cmd/handoverctl
// drives: one endpoint per IntegrationBridge decision plus one per
// MeasurementCore/mode-switch operation.
func (d *daemonBuild) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/decide", d.handleDecide)
	mux.HandleFunc("/modes/switch", d.handleModeSwitch)
	mux.HandleFunc("/stats", d.handleStats)
	mux.HandleFunc("/compare", d.handleCompare)
	mux.HandleFunc("/export", d.handleExport)
}

// handleDecide runs one external request through the active mode (C6),
// applies the resulting handover to the data plane (supplemented
// DataPlaneBridge), records the outcome in MeasurementCore (C7), and
// publishes a "handover.decided" event on the bus (C8).
func (d *daemonBuild) handleDecide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("handoverd: only POST is supported"))
		return
	}
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("handoverd: decoding request: %w", err))
		return
	}

	decision, err := d.br.Decide(r.Context(), bridge.Request{
		UEID: req.UEID,
		Position: position.GeoPosition{
			LatLon: position.LatLon{Lat: req.LatitudeDeg, Lon: req.LongitudeDeg},
			AltKM:  req.AltitudeKM,
		},
		CandidateSatellite: req.CandidateSatellite,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	start := time.Now()
	outcome, applyErr := d.dpb.ApplyHandover(r.Context(), dataplane.HandoverCommand{
		UEID:              decision.UEID,
		SourceSatelliteID: decision.SatelliteID,
		TargetSatelliteID: decision.NextSatelliteID,
		HandoverInstant:   decision.HandoverInstant,
		Reason:            decision.FusionNote,
	})

	result := measurement.Success
	if applyErr != nil || !outcome.Success {
		result = measurement.Failure
	}
	event := measurement.HandoverEvent{
		ID:        fmt.Sprintf("ho-%d", time.Now().UnixNano()),
		UEID:      decision.UEID,
		SourceGNB: req.SourceGNB,
		TargetGNB: req.TargetGNB,
		Scheme:    parseScheme(req.Scheme),
		Start:     start,
		End:       time.Now(),
		LatencyMS: outcome.LatencyMS,
		Result:    result,
	}
	d.store.Record(event)

	payload := map[string]any{
		"ue_id":             decision.UEID,
		"satellite_id":      decision.SatelliteID,
		"next_satellite_id": decision.NextSatelliteID,
		"source":            decision.Source.String(),
		"confidence":        decision.Confidence,
	}
	if _, err := d.bus.Publish("handover.decided", payload, "handoverd", eventbus.Normal, decision.UEID, time.Minute); err != nil {
		log.Warningf("handoverd: publishing handover.decided for %q: %v", decision.UEID, err)
	}

	if applyErr != nil {
		writeError(w, http.StatusBadGateway, fmt.Errorf("handoverd: applying handover: %w", applyErr))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decision": decision, "outcome": outcome})
}

func (d *daemonBuild) handleModeSwitch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("handoverd: only POST is supported"))
		return
	}
	var req modeSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("handoverd: decoding request: %w", err))
		return
	}
	mode, ok := bridge.ParseMode(req.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("handoverd: unknown mode %q", req.Mode))
		return
	}
	if err := d.br.SwitchMode(r.Context(), mode, req.Reason); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": d.br.Mode().String()})
}

func (d *daemonBuild) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := d.store.Analyse(false)
	out := make(map[string]measurement.SchemeStats, len(stats))
	for scheme, st := range stats {
		if name := r.URL.Query().Get("scheme"); name != "" && name != scheme.String() {
			continue
		}
		out[scheme.String()] = st
	}
	writeJSON(w, http.StatusOK, out)
}

func (d *daemonBuild) handleCompare(w http.ResponseWriter, r *http.Request) {
	report, ok := d.store.Reproduce()
	writeJSON(w, http.StatusOK, map[string]any{"report": report, "reproduced": ok})
}

func (d *daemonBuild) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("handoverd: only POST is supported"))
		return
	}
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("handoverd: decoding request: %w", err))
		return
	}

	var path string
	var err error
	switch req.Format {
	case "csv":
		path, err = d.store.ExportCSV(req.Dir, "")
	default:
		path, err = d.store.ExportJSON(req.Dir, "")
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}
