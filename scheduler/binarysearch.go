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
	"fmt"
	"math"
	"time"

	"github.com/ntn-constellation/handover-core/access"
	"github.com/ntn-constellation/handover-core/position"
)

// timeBudget bounds how long one binary search may run in wall-clock terms,
// on top of the iteration cap (§9 Design Notes: "also require a time
// budget; whichever fires first wins", guarding against a pathological
// PositionProvider wedging the tick loop).
const timeBudget = 200 * time.Millisecond

// searchResult is what binarySearchHandoverTime produces; BinarySearchState
// itself (§3) is deliberately not a long-lived type — it exists only for the
// duration of one search.
type searchResult struct {
	instant    time.Time
	converged  bool
	iterations int
	noHandover bool
}

// bestOfTwo resolves which of source/target scores higher for one UE at
// instant t, restricted to exactly those two satellites — C4 must never
// hand the binary search the full catalog (§4.3).
func (s *Scheduler) bestOfTwo(ctx context.Context, pos position.GeoPosition, source, target string, t time.Time) (string, error) {
	ctx, cancel := position.WithCallTimeout(ctx)
	defer cancel()
	obs, err := s.provider.BatchPosition(ctx, []string{source, target}, t, &pos)
	if err != nil {
		return "", fmt.Errorf("resolving %s/%s at %s: %w", source, target, t, err)
	}
	inputs := make(map[string]access.Input, 2)
	for _, id := range []string{source, target} {
		o, ok := obs[id]
		if !ok || o.Failed {
			continue
		}
		inputs[id] = access.Input{
			Satellite:         o,
			CoverageRadiusKM:  0, // only used for stability sub-score; both candidates compared on equal footing here
			UEPosition:        pos,
			CurrentHeadingDeg: math.NaN(),
		}
	}
	best, _, ok := s.scorer.Best(inputs)
	if !ok {
		return "", fmt.Errorf("no usable observation for %s or %s at %s", source, target, t)
	}
	return best, nil
}

// binarySearchHandoverTime implements Algorithm-1 lines 8-11 (§4.3): find
// the first instant in [tStart, tEnd] at which target overtakes source as
// the best-access satellite, to within BinarySearchPrecision.
func (s *Scheduler) binarySearchHandoverTime(ctx context.Context, pos position.GeoPosition, source, target string, tStart, tEnd time.Time) (searchResult, error) {
	if source == target {
		return searchResult{noHandover: true}, nil
	}

	bestAtStart, err := s.bestOfTwo(ctx, pos, source, target, tStart)
	if err != nil {
		return searchResult{}, err
	}
	bestAtEnd, err := s.bestOfTwo(ctx, pos, source, target, tEnd)
	if err != nil {
		// retry once per §4.3 edge case ("stale data for both endpoints:
		// retry once")
		bestAtEnd, err = s.bestOfTwo(ctx, pos, source, target, tEnd)
		if err != nil {
			return searchResult{}, fmt.Errorf("stale_position: %w", err)
		}
	}

	if bestAtStart != source || bestAtEnd != target {
		// precondition doesn't hold: either target already dominates at
		// tStart, or source still dominates at tEnd. No handover to pin
		// down in this window.
		return searchResult{noHandover: true}, nil
	}

	// Degenerate bracket: the window is already at or below the target
	// precision, so there is nothing to bisect. Report the start of the
	// window as the result (the boundary case named in the testable
	// properties), counted as a single iteration.
	if tEnd.Sub(tStart) <= s.boundedPrecision() {
		return searchResult{instant: tStart, converged: true, iterations: 1}, nil
	}

	deadline := time.Now().Add(timeBudget)
	iterations := 0
	for tEnd.Sub(tStart) > s.boundedPrecision() {
		if iterations >= s.cfg.MaxBinarySearchIterations {
			return searchResult{instant: tEnd, converged: false, iterations: iterations}, nil
		}
		if time.Now().After(deadline) {
			return searchResult{instant: tEnd, converged: false, iterations: iterations}, nil
		}
		mid := tStart.Add(tEnd.Sub(tStart) / 2)
		best, err := s.bestOfTwo(ctx, pos, source, target, mid)
		if err != nil {
			return searchResult{instant: tEnd, converged: false, iterations: iterations}, nil
		}
		if best == source {
			tStart = mid
		} else {
			tEnd = mid
		}
		iterations++
	}
	return searchResult{instant: tEnd, converged: true, iterations: iterations}, nil
}

func (s *Scheduler) boundedPrecision() time.Duration {
	if s.cfg.BinarySearchPrecision <= 0 {
		return 10 * time.Millisecond
	}
	return s.cfg.BinarySearchPrecision
}
