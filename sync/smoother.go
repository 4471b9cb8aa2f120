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

import "time"

// pKp and pKi are the proportional and integral gains. They're the same
// "aggressive" scale servo.PiServo.makePiFast uses for its kp/ki scale,
// since offsets here are taken every SyncInterval rather than every PTP
// sync message, so there's no benefit to the slow/fast gain split a PHC
// servo needs.
const (
	pKp = 0.7
	pKi = 0.3
)

// OffsetSmoother damps sample-to-sample jitter in a plane's clock-offset
// readings, adapted from servo.PiServo's proportional-integral correction
// (Sample()'s kp*offset + drift + ki*offset term) down to this package's
// millisecond, float64 offsets: no ring-buffer spike filter, since
// Coordinator.checkDrift already compares the raw worst offset against
// MaxClockDriftMS and would rather react to a real spike than have it
// filtered out.
type OffsetSmoother struct {
	drift    float64
	estimate float64
	lastTime time.Time
	primed   bool
}

// NewOffsetSmoother creates an OffsetSmoother with no prior samples.
func NewOffsetSmoother() *OffsetSmoother {
	return &OffsetSmoother{}
}

// Sample feeds one raw offset reading (ms) taken at "at" and returns the
// smoothed estimate.
func (o *OffsetSmoother) Sample(offsetMS float64, at time.Time) float64 {
	if !o.primed {
		o.drift = offsetMS
		o.lastTime = at
		o.primed = true
		o.estimate = o.drift
		return o.estimate
	}
	dt := at.Sub(o.lastTime).Seconds()
	o.lastTime = at
	if dt <= 0 {
		return o.estimate
	}
	kiTerm := pKi * offsetMS * dt
	o.drift += kiTerm
	o.estimate = pKp*offsetMS + o.drift
	return o.estimate
}

// Value returns the last smoothed estimate without consuming a new sample.
func (o *OffsetSmoother) Value() float64 {
	return o.estimate
}
