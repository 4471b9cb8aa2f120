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

package bridge

import (
	"sync"
	"time"
)

const hourlyBuckets = 24

// hourlyBucket aggregates requests seen within one hour slot. stamp
// identifies which hour (truncated to the hour) the bucket currently holds;
// a bucket whose stamp has aged out of the 24h window is reset in place
// before being reused, giving the "24-hour sliding-window" §4.5 names
// without keeping an unbounded event list.
type hourlyBucket struct {
	stamp   time.Time
	count   int64
	success int64
	totalMS float64
}

// modeMetrics is the per-mode metrics record §4.5 requires: running
// averages plus 24 hourly buckets.
type modeMetrics struct {
	mu sync.Mutex

	count       int64
	successes   int64
	failures    int64
	totalMS     float64
	buckets     [hourlyBuckets]hourlyBucket
}

func newModeMetrics() *modeMetrics {
	return &modeMetrics{}
}

func (m *modeMetrics) record(d time.Duration, success bool, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.count++
	if success {
		m.successes++
	} else {
		m.failures++
	}
	ms := float64(d.Microseconds()) / 1000.0
	m.totalMS += ms

	hour := at.Truncate(time.Hour)
	idx := int(at.Unix()/3600) % hourlyBuckets
	if idx < 0 {
		idx += hourlyBuckets
	}
	b := &m.buckets[idx]
	if !b.stamp.Equal(hour) {
		*b = hourlyBucket{stamp: hour}
	}
	b.count++
	if success {
		b.success++
	}
	b.totalMS += ms
}

// Snapshot is a read-only view of one mode's metrics.
type Snapshot struct {
	Count          int64
	Successes      int64
	Failures       int64
	AvgResponseMS  float64
	Last24hCount   int64
	Last24hSuccess int64
	Last24hAvgMS   float64
}

func (m *modeMetrics) snapshot(now time.Time) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{Count: m.count, Successes: m.successes, Failures: m.failures}
	if m.count > 0 {
		s.AvgResponseMS = m.totalMS / float64(m.count)
	}

	cutoff := now.Add(-24 * time.Hour)
	var windowCount, windowSuccess int64
	var windowMS float64
	for _, b := range m.buckets {
		if b.count == 0 || b.stamp.Before(cutoff) {
			continue
		}
		windowCount += b.count
		windowSuccess += b.success
		windowMS += b.totalMS
	}
	s.Last24hCount = windowCount
	s.Last24hSuccess = windowSuccess
	if windowCount > 0 {
		s.Last24hAvgMS = windowMS / float64(windowCount)
	}
	return s
}
