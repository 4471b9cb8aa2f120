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

package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/ntn-constellation/handover-core/position"
)

// Catalog is the minimal thing the scheduler needs beyond a PositionProvider:
// the (slow-changing) full list of satellite ids in the constellation, used
// only to derive a small regional candidate list per UE — never handed to
// the predictor wholesale.
type Catalog interface {
	AllSatelliteIDs(ctx context.Context) ([]string, error)
}

// StaticCatalog is a Catalog backed by a fixed slice, for tests and for
// deployments where the constellation roster doesn't change at runtime.
type StaticCatalog []string

// AllSatelliteIDs implements Catalog.
func (c StaticCatalog) AllSatelliteIDs(context.Context) ([]string, error) {
	return []string(c), nil
}

// regionalCandidates resolves at most `max` satellite ids near pos at
// instant t, each at or above minElevationDeg, sorted by descending
// elevation. This is the "pre-filtered regional candidate list" §4.3
// requires C4 to pass instead of the full catalog.
func regionalCandidates(ctx context.Context, provider position.Provider, catalog Catalog, pos position.GeoPosition, t time.Time, max int, minElevationDeg float64) ([]string, error) {
	all, err := catalog.AllSatelliteIDs(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := position.WithCallTimeout(ctx)
	defer cancel()
	obs, err := provider.BatchPosition(ctx, all, t, &pos)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		id   string
		elev float64
	}
	var candidates []candidate
	for id, o := range obs {
		if o.Failed || !o.Visible || o.ElevationDeg < minElevationDeg {
			continue
		}
		candidates = append(candidates, candidate{id: id, elev: o.ElevationDeg})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].elev != candidates[j].elev {
			return candidates[i].elev > candidates[j].elev
		}
		return candidates[i].id < candidates[j].id
	})
	if len(candidates) > max {
		candidates = candidates[:max]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out, nil
}
