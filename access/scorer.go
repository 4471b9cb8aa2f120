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
Package access implements the pure scoring function (C2) that turns a
(UE, satellite, t) tuple into an access-quality value in [0, 100]. It never
talks to a PositionProvider itself — callers (predictor, scheduler) hand it
already-resolved observations.
*/
package access

import (
	"math"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/ntn-constellation/handover-core/position"
)

// Weights is the linear combination used to fold the four sub-scores into
// one. Defaults match spec.md §4.1.
type Weights struct {
	Distance  float64
	Elevation float64
	Stability float64
	Direction float64
}

// DefaultWeights are the weights named in the spec.
var DefaultWeights = Weights{Distance: 0.40, Elevation: 0.30, Stability: 0.20, Direction: 0.10}

// Tunables holds the constants spec.md §9 flags as "implementation should
// treat these as tunable constants and surface them in configuration" —
// the heading-bonus window and the distance/elevation curve endpoints.
type Tunables struct {
	MinServiceElevationDeg float64
	DistanceNearKM         float64 // 100 score at or below this range
	DistanceFarKM          float64 // 0 score at or above this range
	ElevationFloorDeg      float64 // 0 score at or below this elevation
	HeadingBonusWindowDeg  float64 // candidate within this many degrees of current heading gets the direction bonus
	StabilityReferenceKM   float64 // coverage radius that maps to a stability score of 100
}

// DefaultTunables match the literals spec.md §4.1 names.
var DefaultTunables = Tunables{
	MinServiceElevationDeg: 10,
	DistanceNearKM:         400,
	DistanceFarKM:          2000,
	ElevationFloorDeg:      10,
	HeadingBonusWindowDeg:  30,
	StabilityReferenceKM:   2000,
}

// Input bundles everything the scorer needs about one candidate satellite
// and the UE it is being scored against.
type Input struct {
	Satellite       position.Observation
	CoverageRadiusKM float64
	UEPosition      position.GeoPosition
	// CurrentHeadingDeg is the orbital heading of the UE's current serving
	// satellite, if any. NaN means "no current serving satellite".
	CurrentHeadingDeg float64
}

// Breakdown is the per-component score, returned alongside the final value
// so callers (and tests) can inspect why a score came out the way it did.
type Breakdown struct {
	Distance  float64
	Elevation float64
	Stability float64
	Direction float64
	Total     float64
}

// Scorer computes access-quality scores. It holds no per-call state; the
// only state is configuration, so a single Scorer is safe to share and
// reuse across goroutines.
type Scorer struct {
	weights  Weights
	tunables Tunables
}

// New creates a Scorer with the given weights/tunables.
func New(weights Weights, tunables Tunables) *Scorer {
	return &Scorer{weights: weights, tunables: tunables}
}

// NewDefault creates a Scorer using spec.md's defaults.
func NewDefault() *Scorer {
	return New(DefaultWeights, DefaultTunables)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// piecewiseLinear maps x from [xLo, xHi] onto [yLo, yHi] affinely and
// clamps the result, regardless of whether the slope is positive or
// negative.
func piecewiseLinear(x, xLo, xHi, yLo, yHi float64) float64 {
	if xHi == xLo {
		return yLo
	}
	t := (x - xLo) / (xHi - xLo)
	v := yLo + t*(yHi-yLo)
	lo, hi := yLo, yHi
	if lo > hi {
		lo, hi = hi, lo
	}
	return clamp(v, lo, hi)
}

// Score implements §4.1's decision rules in order. It never panics and
// never returns an error: invalid inputs (NaN, missing elevation) score 0
// and are logged as a warning, matching the spec's "never raises" contract.
func (s *Scorer) Score(in Input) Breakdown {
	sat := in.Satellite
	if !sat.Visible || sat.ElevationDeg < s.tunables.MinServiceElevationDeg {
		return Breakdown{}
	}
	if invalid(sat.ElevationDeg) || invalid(sat.RangeKM) || invalid(sat.VelocityKMS) {
		log.Warningf("access: invalid observation for satellite %q, scoring 0", sat.SatelliteID)
		return Breakdown{}
	}

	distance := piecewiseLinear(sat.RangeKM, s.tunables.DistanceNearKM, s.tunables.DistanceFarKM, 100, 0)
	elevation := piecewiseLinear(sat.ElevationDeg, s.tunables.ElevationFloorDeg, 90, 0, 100)

	coverage := in.CoverageRadiusKM
	stability := clamp(100*coverage/s.tunables.StabilityReferenceKM, 0, 100)

	direction := 0.0
	if !invalid(in.CurrentHeadingDeg) {
		delta := headingDelta(sat.HeadingDeg, in.CurrentHeadingDeg)
		if delta <= s.tunables.HeadingBonusWindowDeg {
			direction = 100
		}
	}

	total := s.weights.Distance*distance + s.weights.Elevation*elevation +
		s.weights.Stability*stability + s.weights.Direction*direction

	return Breakdown{
		Distance:  distance,
		Elevation: elevation,
		Stability: stability,
		Direction: direction,
		Total:     clamp(total, 0, 100),
	}
}

func invalid(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// headingDelta returns the absolute angular difference between two
// headings in degrees, in [0, 180].
func headingDelta(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// Best picks the satellite with the highest score among candidates. The
// winner is computed in two explicit passes so the result never depends on
// Go's randomized map-iteration order: first the global max score, then,
// among every candidate within 5% of that max (§4.2 step 5c's direction-bonus
// optimisation), the one whose heading is closest to CurrentHeadingDeg, with
// lexicographically smaller satellite id as the final fallback
// (deterministic, §4.1).
func (s *Scorer) Best(inputs map[string]Input) (bestID string, bestScore Breakdown, ok bool) {
	type scored struct {
		id    string
		score Breakdown
		input Input
	}
	ids := make([]string, 0, len(inputs))
	for id := range inputs {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return "", Breakdown{}, false
	}
	sort.Strings(ids)

	candidates := make([]scored, len(ids))
	maxScore := math.Inf(-1)
	for i, id := range ids {
		c := scored{id: id, score: s.Score(inputs[id]), input: inputs[id]}
		candidates[i] = c
		if c.score.Total > maxScore {
			maxScore = c.score.Total
		}
	}

	var tied []scored
	for _, c := range candidates {
		if withinPercent(c.score.Total, maxScore, 0.05) {
			tied = append(tied, c)
		}
	}
	sort.Slice(tied, func(i, j int) bool {
		di, dj := headingRank(tied[i].input), headingRank(tied[j].input)
		if di != dj {
			return di < dj
		}
		return tied[i].id < tied[j].id
	})

	best := tied[0]
	return best.id, best.score, true
}

// headingRank orders a near-tied candidate by how close its heading is to
// the UE's current serving satellite; candidates with no current heading to
// compare against sort last, deferring to the id fallback.
func headingRank(in Input) float64 {
	if invalid(in.CurrentHeadingDeg) {
		return math.Inf(1)
	}
	return headingDelta(in.Satellite.HeadingDeg, in.CurrentHeadingDeg)
}

// withinPercent reports whether a is within pct of b (relative to the
// larger of the two), guarding against division by zero.
func withinPercent(a, b, pct float64) bool {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return true
	}
	return math.Abs(a-b)/denom <= pct
}
