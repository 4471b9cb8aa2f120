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
	"sync"
)

// ManualDriftSource is a reference DriftSource that reports whatever offset
// was last recorded for a plane via Record, defaulting to zero. It is used
// by cmd/handoverd when no vendor-specific clock-discipline telemetry feed
// is configured, and by tests that want to script drift without a fake.
type ManualDriftSource struct {
	mu      sync.RWMutex
	offsets map[Plane]float64
}

// NewManualDriftSource creates an all-zero ManualDriftSource.
func NewManualDriftSource() *ManualDriftSource {
	return &ManualDriftSource{offsets: make(map[Plane]float64, len(allPlanes))}
}

// Record sets the offset, in ms, CurrentOffsetMS will report for plane.
func (m *ManualDriftSource) Record(plane Plane, offsetMS float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offsets[plane] = offsetMS
}

// CurrentOffsetMS implements DriftSource.
func (m *ManualDriftSource) CurrentOffsetMS(_ context.Context, plane Plane) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.offsets[plane], nil
}
