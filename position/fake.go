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

package position

import (
	"context"
	"sync"
	"time"
)

// Track is a function from time to an Observation. StaticProvider uses one
// per satellite so tests can script exact fly-over / hand-over geometry
// without depending on a real SGP4 propagator.
type Track func(t time.Time) Observation

// StaticProvider is a deterministic, in-memory Provider for tests and for
// running the daemon without a real TLE/SGP4 backend wired in. It is
// intentionally part of this package's public surface (not a _test.go file)
// because every other package in this module needs a Provider double to
// exercise its own logic.
type StaticProvider struct {
	mu     sync.RWMutex
	tracks map[string]Track
	names  map[string]string // arbitrary identifier -> canonical id
	fail   map[string]bool
}

// NewStaticProvider creates an empty StaticProvider; use Register to add
// satellites.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		tracks: map[string]Track{},
		names:  map[string]string{},
		fail:   map[string]bool{},
	}
}

// Register adds (or replaces) a satellite's track and makes it resolvable
// under its own canonical id and any number of aliases.
func (p *StaticProvider) Register(satelliteID string, track Track, aliases ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks[satelliteID] = track
	p.names[satelliteID] = satelliteID
	for _, a := range aliases {
		p.names[a] = satelliteID
	}
}

// SetFailing forces BatchPosition to report a per-satellite failure for the
// given id, regardless of its registered track, until cleared.
func (p *StaticProvider) SetFailing(satelliteID string, failing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if failing {
		p.fail[satelliteID] = true
	} else {
		delete(p.fail, satelliteID)
	}
}

// BatchPosition implements Provider.
func (p *StaticProvider) BatchPosition(_ context.Context, satelliteIDs []string, t time.Time, _ *GeoPosition) (map[string]Observation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]Observation, len(satelliteIDs))
	for _, id := range satelliteIDs {
		if p.fail[id] {
			out[id] = Observation{SatelliteID: id, Failed: true, Reason: "forced failure"}
			continue
		}
		track, ok := p.tracks[id]
		if !ok {
			out[id] = Observation{SatelliteID: id, Failed: true, Reason: "unknown satellite"}
			continue
		}
		obs := track(t)
		obs.SatelliteID = id
		out[id] = obs
	}
	return out, nil
}

// ResolveSatelliteID implements Provider.
func (p *StaticProvider) ResolveSatelliteID(_ context.Context, identifier string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.names[identifier]
	if !ok {
		return "", errNotFound
	}
	return id, nil
}

// ConstantTrack returns a Track that always reports the same observation,
// useful for satellites that stay put for the duration of a test.
func ConstantTrack(obs Observation) Track {
	return func(time.Time) Observation { return obs }
}
