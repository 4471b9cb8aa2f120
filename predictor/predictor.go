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

/*
Package predictor implements the geographic-block fast-access predictor
(Algorithm-2): given a time t and a UE/satellite set, it assigns every UE its
best serving satellite in roughly O(|U|+|S|) instead of the naive O(|U|*|S|)
scan, by bucketing satellites into a lat/lon block grid and only scoring the
candidates that cover a UE's block or its 8-neighbourhood.
*/
package predictor

import (
	"context"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ntn-constellation/handover-core/access"
	"github.com/ntn-constellation/handover-core/position"
)

// Strategy controls how aggressively a UE is reassigned on each tick.
type Strategy int

const (
	// Flexible keeps a UE on its current satellite unless that satellite
	// stops being available at the prediction instant.
	Flexible Strategy = iota
	// Consistent re-evaluates the optimal serving satellite on every tick.
	Consistent
)

func (s Strategy) String() string {
	if s == Consistent {
		return "Consistent"
	}
	return "Flexible"
}

// ueProfile is what the predictor remembers about a registered UE between
// calls to Predict.
type ueProfile struct {
	position           position.GeoPosition
	strategy           Strategy
	currentSatelliteID string
}

// DefaultBlockSizeDeg matches the configuration surface's block_size_deg.
const DefaultBlockSizeDeg = 10.0

// DefaultMinElevationDeg is the visibility/coverage floor used both to size
// satellite coverage discs and to test whether a UE's current satellite is
// still available.
const DefaultMinElevationDeg = 10.0

// Predictor owns the UE registry and the per-tick block grid. One instance
// is meant to be driven by a single caller at a time (typically C4's tick
// loop); RegisterUE/UpdateStrategy/UpdatePosition may be called from other
// goroutines between ticks since they only touch the UE registry.
type Predictor struct {
	provider position.Provider
	scorer   *access.Scorer

	blockSizeDeg    float64
	minElevationDeg float64

	mu    sync.Mutex
	ues   map[string]*ueProfile
	last  map[string]string // previous tick's A', used when the provider fails entirely
	stale bool

	globalScans int64 // count of fallback global scans (§4.2 step 6 metric)
}

// New creates a Predictor. scorer may be nil, in which case access.NewDefault
// is used.
func New(provider position.Provider, scorer *access.Scorer, blockSizeDeg, minElevationDeg float64) *Predictor {
	if scorer == nil {
		scorer = access.NewDefault()
	}
	if blockSizeDeg <= 0 {
		blockSizeDeg = DefaultBlockSizeDeg
	}
	if minElevationDeg <= 0 {
		minElevationDeg = DefaultMinElevationDeg
	}
	return &Predictor{
		provider:        provider,
		scorer:          scorer,
		blockSizeDeg:    blockSizeDeg,
		minElevationDeg: minElevationDeg,
		ues:             make(map[string]*ueProfile),
		last:            make(map[string]string),
	}
}

// RegisterUE adds or overwrites a UE's profile. Idempotent: calling it twice
// with the same arguments leaves the same state as calling it once.
func (p *Predictor) RegisterUE(ue string, pos position.GeoPosition, strategy Strategy, currentSatelliteID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ues[ue] = &ueProfile{position: pos, strategy: strategy, currentSatelliteID: currentSatelliteID}
}

// UpdateStrategy changes a registered UE's access strategy. A no-op if the UE
// isn't registered.
func (p *Predictor) UpdateStrategy(ue string, strategy Strategy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prof, ok := p.ues[ue]; ok {
		prof.strategy = strategy
	}
}

// UpdatePosition updates a UE's last known position without touching its
// strategy or current satellite.
func (p *Predictor) UpdatePosition(ue string, pos position.GeoPosition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prof, ok := p.ues[ue]; ok {
		prof.position = pos
	}
}

// Stale reports whether the last Predict call had to fall back to the
// previous tick's result because the PositionProvider failed entirely.
func (p *Predictor) Stale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stale
}

// GlobalScans returns how many times Predict had to fall back to a global
// scan because a UE's block neighbourhood had no covering satellite.
func (p *Predictor) GlobalScans() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.globalScans
}

// registeredIDs snapshots the currently registered UE ids.
func (p *Predictor) registeredIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.ues))
	for id := range p.ues {
		ids = append(ids, id)
	}
	return ids
}

// RegisteredUEIDs is the exported form of registeredIDs, for callers (C4)
// that need to drive Predict across every known UE.
func (p *Predictor) RegisteredUEIDs() []string {
	return p.registeredIDs()
}

// Registration is a read-only snapshot of one UE's registry entry.
type Registration struct {
	UEID               string
	Position           position.GeoPosition
	Strategy           Strategy
	CurrentSatelliteID string
}

// Registrations snapshots every registered UE.
func (p *Predictor) Registrations() []Registration {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Registration, 0, len(p.ues))
	for id, prof := range p.ues {
		out = append(out, Registration{
			UEID:               id,
			Position:           prof.position,
			Strategy:           prof.strategy,
			CurrentSatelliteID: prof.currentSatelliteID,
		})
	}
	return out
}

func (p *Predictor) profile(ue string) (ueProfile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prof, ok := p.ues[ue]
	if !ok {
		return ueProfile{}, false
	}
	return *prof, true
}

// available reports whether obs still satisfies the availability predicate
// (visible and at or above the minimum service elevation) used throughout
// §4.2 to decide whether a Flexible UE needs reassignment.
func (p *Predictor) available(obs position.Observation) bool {
	return !obs.Failed && obs.Visible && obs.ElevationDeg >= p.minElevationDeg
}

// Predict computes A(t): the best serving satellite for every UE in ueIDs
// (or every registered UE if ueIDs is nil), drawn from satelliteIDs, at
// instant t. It follows Algorithm-2 (§4.2) step by step.
func (p *Predictor) Predict(ctx context.Context, ueIDs []string, satelliteIDs []string, t time.Time) (map[string]string, error) {
	if ueIDs == nil {
		ueIDs = p.registeredIDs()
	}

	// Step 1: resolve S'(t) for every requested satellite, batched. A
	// per-satellite failure degrades that one entry (Observation.Failed);
	// only a wholesale provider failure degrades the whole tick.
	ctx, cancel := position.WithCallTimeout(ctx)
	defer cancel()
	satObs, err := p.provider.BatchPosition(ctx, satelliteIDs, t, nil)
	if err != nil {
		log.Warningf("predictor: position provider failed entirely, returning previous tick: %v", err)
		p.mu.Lock()
		p.stale = true
		prev := make(map[string]string, len(p.last))
		for k, v := range p.last {
			prev[k] = v
		}
		p.mu.Unlock()
		return prev, nil
	}

	live := make(map[string]position.Observation, len(satObs))
	for id, obs := range satObs {
		if !obs.Failed {
			live[id] = obs
		}
	}

	// Step 2: partition U into settled A' entries and candidates needing a
	// fresh scoring pass.
	result := make(map[string]string, len(ueIDs))
	var candidates []string
	for _, ue := range ueIDs {
		prof, ok := p.profile(ue)
		if !ok {
			continue
		}
		if prof.strategy == Flexible && prof.currentSatelliteID != "" {
			if obs, ok := live[prof.currentSatelliteID]; ok && p.available(obs) {
				result[ue] = prof.currentSatelliteID
				continue
			}
		}
		candidates = append(candidates, ue)
	}

	if len(candidates) == 0 {
		p.commit(result)
		return result, nil
	}

	// Step 3-4: rebuild the block grid for this tick and assign each live
	// satellite to every block within its coverage disc.
	g := newGrid(p.blockSizeDeg)
	for id, obs := range live {
		radius := coverageRadiusKM(obs.Position.AltKM, p.minElevationDeg)
		g.assignSatellite(id, obs.Position.LatLon, radius)
	}

	// Step 5: resolve each candidate UE from its block neighbourhood.
	var needGlobalScan []string
	for _, ue := range candidates {
		prof, _ := p.profile(ue)
		b := g.locate(prof.position.LatLon)
		neighbourIDs := collectSatelliteIDs(g.neighbourhood(b))
		if len(neighbourIDs) == 0 {
			needGlobalScan = append(needGlobalScan, ue)
			continue
		}
		best, ok := p.selectBest(prof, neighbourIDs, live)
		if !ok {
			needGlobalScan = append(needGlobalScan, ue)
			continue
		}
		result[ue] = best
	}

	// Step 6: anything that found no local candidate falls back to a full
	// scan over every live satellite.
	if len(needGlobalScan) > 0 {
		p.mu.Lock()
		p.globalScans++
		p.mu.Unlock()
		allIDs := make([]string, 0, len(live))
		for id := range live {
			allIDs = append(allIDs, id)
		}
		for _, ue := range needGlobalScan {
			prof, _ := p.profile(ue)
			if best, ok := p.selectBest(prof, allIDs, live); ok {
				result[ue] = best
			}
		}
	}

	p.commit(result)
	return result, nil
}

func (p *Predictor) commit(result map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stale = false
	p.last = result
}

// selectBest scores every candidate satellite id against one UE profile and
// returns the winner via the scorer's deterministic tie-break.
func (p *Predictor) selectBest(prof ueProfile, candidateIDs []string, live map[string]position.Observation) (string, bool) {
	currentHeading := math.NaN()
	if prof.currentSatelliteID != "" {
		if obs, ok := live[prof.currentSatelliteID]; ok {
			currentHeading = obs.HeadingDeg
		}
	}
	inputs := make(map[string]access.Input, len(candidateIDs))
	for _, id := range candidateIDs {
		obs, ok := live[id]
		if !ok {
			continue
		}
		inputs[id] = access.Input{
			Satellite:         obs,
			CoverageRadiusKM:  coverageRadiusKM(obs.Position.AltKM, p.minElevationDeg),
			UEPosition:        prof.position,
			CurrentHeadingDeg: currentHeading,
		}
	}
	id, _, ok := p.scorer.Best(inputs)
	return id, ok
}

func collectSatelliteIDs(blocks []*block) []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range blocks {
		for _, id := range b.coveringSatellites {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
