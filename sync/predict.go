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

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/ntn-constellation/handover-core/position"
)

// DefaultTwoPointDelta is C5's own two-point spacing. The spec fixes this
// default but requires every caller configure it explicitly rather than
// assume a shared constant (§9: the source's delta varies 2-5 min across
// modules; this is the one true default).
const DefaultTwoPointDelta = 2 * time.Minute

const (
	defaultAccessProbabilityThreshold = 0.7
	defaultTargetPrecisionMS          = 30.0
	defaultMaxIterations              = 10
	minBracket                        = 10 * time.Second
	maxErrorBoundMS                   = 50.0
)

// evaluateAccessFeasibility estimates, at instant t, how likely the UE is to
// have access to sat and how confident that estimate is. It stands in for
// the orbital-geometry feasibility check named in §4.4 step 4: elevation
// margin above the service floor drives both the probability and the error
// bound, since a satellite well above the horizon is both more likely to
// still be in view and easier to predict precisely.
func (c *Coordinator) evaluateAccessFeasibility(ctx context.Context, uePos position.GeoPosition, sat string, t time.Time) (probability, errorMS float64, err error) {
	ctx, cancel := position.WithCallTimeout(ctx)
	defer cancel()
	obs, err := c.provider.BatchPosition(ctx, []string{sat}, t, &uePos)
	if err != nil {
		return 0, maxErrorBoundMS * 4, fmt.Errorf("evaluating feasibility for %s at %s: %w", sat, t, err)
	}
	o, ok := obs[sat]
	if !ok || o.Failed {
		return 0, maxErrorBoundMS * 4, fmt.Errorf("no observation for %s at %s", sat, t)
	}
	margin := o.ElevationDeg - c.minElevationDeg
	probability = clamp01(0.5 + margin/60.0)
	errorMS = 1000.0 / (1.0 + absf(margin))
	return probability, errorMS, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// PredictSatelliteAccess implements §4.4's PredictSatelliteAccess: a
// two-point estimate of the next access instant between ue and sat, refined
// by a bounded binary search, with a composed confidence score.
func (c *Coordinator) PredictSatelliteAccess(ctx context.Context, uePos position.GeoPosition, sat string, horizon time.Duration) (Prediction, error) {
	now := time.Now()
	delta := c.twoPointDelta
	if delta <= 0 {
		delta = DefaultTwoPointDelta
	}

	ctx1, cancel1 := position.WithCallTimeout(ctx)
	obsNow, err := c.provider.BatchPosition(ctx1, []string{sat}, now, &uePos)
	cancel1()
	if err != nil {
		return Prediction{}, fmt.Errorf("first-point observation: %w", err)
	}
	ctx2, cancel2 := position.WithCallTimeout(ctx)
	obsDelta, err := c.provider.BatchPosition(ctx2, []string{sat}, now.Add(delta), &uePos)
	cancel2()
	if err != nil {
		return Prediction{}, fmt.Errorf("second-point observation: %w", err)
	}
	o1, o2 := obsNow[sat], obsDelta[sat]
	if o1.Failed || o2.Failed {
		return Prediction{}, fmt.Errorf("satellite %s unavailable for two-point prediction", sat)
	}

	rate := (o2.ElevationDeg - o1.ElevationDeg) / delta.Seconds()

	lo := now.Add(1 * time.Minute)
	hi := now.Add(horizon)
	if hi.Before(lo) {
		hi = lo
	}

	initial := now.Add(horizon / 2)
	if rate > 0 {
		secondsAhead := (c.minElevationDeg - o1.ElevationDeg) / rate
		candidate := now.Add(time.Duration(secondsAhead * float64(time.Second)))
		if candidate.After(lo) && candidate.Before(hi) {
			initial = candidate
		}
	}
	_ = initial // computed but not used: the search below always bisects [lo, hi] from its midpoint

	iterations := 0
	converged := false
	var lastProb, lastErr float64
	for hi.Sub(lo) > minBracket {
		if iterations >= defaultMaxIterations {
			break
		}
		mid := lo.Add(hi.Sub(lo) / 2)
		prob, errMS, err := c.evaluateAccessFeasibility(ctx, uePos, sat, mid)
		if err != nil {
			break
		}
		lastProb, lastErr = prob, errMS
		iterations++
		if prob >= defaultAccessProbabilityThreshold {
			hi = mid
		} else {
			lo = mid
		}
		if errMS <= defaultTargetPrecisionMS {
			converged = true
			break
		}
	}
	if hi.Sub(lo) <= minBracket {
		converged = true
	}

	baseError := lastErr
	if baseError == 0 {
		baseError = defaultTargetPrecisionMS
	}
	errorBound := baseError
	if !converged {
		errorBound = baseError * 1.5
	}
	rangeContribution := absf(o2.RangeKM-o1.RangeKM) * 0.01
	errorBound += rangeContribution
	if errorBound > maxErrorBoundMS {
		errorBound = maxErrorBoundMS
	}

	timeConsistency := clamp01(1 - hi.Sub(lo).Seconds()/horizon.Seconds())
	convergenceScore := 0.0
	if converged {
		convergenceScore = 1.0
	}
	errorBoundScore := clamp01(1 - errorBound/maxErrorBoundMS)
	confidence := 0.3*timeConsistency + 0.3*convergenceScore + 0.2*errorBoundScore + 0.2*lastProb

	return Prediction{
		Instant:      hi,
		Confidence:   confidence,
		ErrorBoundMS: errorBound,
		Converged:    converged,
		Iterations:   iterations,
	}, nil
}
