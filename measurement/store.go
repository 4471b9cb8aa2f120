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

package measurement

import (
	"math"
	"sort"
	"sync"

	"github.com/eclesh/welford"
)

// DefaultRetention bounds the event log the way the configuration surface's
// event_store_max bounds the bus's retention (§4.6 "retention bounded by
// count or time"), but scoped to this component's own log, not the bus's.
const DefaultRetention = 100000

// Store is C7. It owns the HandoverEvent log exclusively; readers only ever
// see immutable snapshots (§3 Ownership).
type Store struct {
	mu        sync.Mutex
	events    []HandoverEvent
	retention int

	dirty bool // invalidation bit, flipped by Record
	cache map[Scheme]SchemeStats
}

// New creates a Store with the given retention bound (0 means
// DefaultRetention).
func New(retention int) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{retention: retention, dirty: true}
}

// Record appends event, evicting the oldest entry if retention is exceeded
// (§4.6 Record()).
func (s *Store) Record(event HandoverEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if len(s.events) > s.retention {
		s.events = s.events[len(s.events)-s.retention:]
	}
	s.dirty = true
}

// Events returns an immutable copy of every stored event, in insertion
// order (§5 "events are statistically analysed in insertion order").
func (s *Store) Events() []HandoverEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HandoverEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Analyse computes per-scheme statistics, recomputing only when the
// invalidation bit is set or forceRefresh is true (§4.6 Analyse()).
func (s *Store) Analyse(forceRefresh bool) map[Scheme]SchemeStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !forceRefresh && !s.dirty && s.cache != nil {
		out := make(map[Scheme]SchemeStats, len(s.cache))
		for k, v := range s.cache {
			out[k] = v
		}
		return out
	}

	byScheme := make(map[Scheme][]HandoverEvent, len(Schemes))
	for _, e := range s.events {
		byScheme[e.Scheme] = append(byScheme[e.Scheme], e)
	}

	result := make(map[Scheme]SchemeStats, len(Schemes))
	for _, scheme := range Schemes {
		result[scheme] = computeStats(byScheme[scheme])
	}
	s.cache = result
	s.dirty = false

	out := make(map[Scheme]SchemeStats, len(result))
	for k, v := range result {
		out[k] = v
	}
	return out
}

// computeStats implements §4.6's statistics definitions: for zero events
// every numeric field is 0, never NaN/Inf.
func computeStats(events []HandoverEvent) SchemeStats {
	if len(events) == 0 {
		return SchemeStats{}
	}

	latencies := make([]float64, len(events))
	stat := welford.New()
	var successes int
	for i, e := range events {
		latencies[i] = e.LatencyMS
		stat.Add(e.LatencyMS)
		if e.Result == Success {
			successes++
		}
	}
	sort.Float64s(latencies)

	return SchemeStats{
		Count:        len(events),
		SuccessCount: successes,
		Mean:         stat.Mean(),
		Stddev:       sampleStddev(latencies, stat.Mean()),
		Min:          latencies[0],
		Max:          latencies[len(latencies)-1],
		P95:          percentile(latencies, 0.95),
		P99:          percentile(latencies, 0.99),
		SuccessRate:  float64(successes) / float64(len(events)),
	}
}

// sampleStddev computes the sample (n-1) standard deviation directly from
// the sorted sample; welford.Stats already tracks a running variance, but
// percentile computation requires the full sorted sample anyway so this
// keeps the two numbers consistent with each other.
func sampleStddev(sorted []float64, mean float64) float64 {
	if len(sorted) < 2 {
		return 0
	}
	var sumSq float64
	for _, v := range sorted {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(sorted)-1))
}

// percentile computes the p-th percentile (0 < p < 1) of an already-sorted
// sample via linear interpolation (§4.6).
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// CompareReport computes Proposed-vs-Baseline deltas and the paper's
// reproduction verdict (§4.6).
func (s *Store) CompareReport() CompareReport {
	stats := s.Analyse(false)
	baseline := stats[Baseline]
	proposed := stats[Proposed]

	var reduction float64
	if baseline.Mean > 0 {
		reduction = (baseline.Mean - proposed.Mean) / baseline.Mean * 100
	}

	overall := proposed.Mean > 0 && proposed.Mean <= ProposedLatencyTargetMS &&
		proposed.SuccessRate >= ProposedSuccessRateTarget &&
		proposed.Count >= ProposedMinEventCount

	return CompareReport{
		BaselineLatencyMeanMS:      baseline.Mean,
		ProposedLatencyMeanMS:      proposed.Mean,
		LatencyReductionPercent:    reduction,
		ProposedSuccessRate:        proposed.SuccessRate,
		ProposedEventCount:         proposed.Count,
		OverallReproductionSuccess: overall,
	}
}

// Reproduce implements the SPEC_FULL-supplemented verification harness: the
// same verdict as CompareReport's OverallReproductionSuccess, but with the
// specific failing criterion named instead of a bare boolean.
func (s *Store) Reproduce() (*ReproductionReport, bool) {
	stats := s.Analyse(false)
	proposed := stats[Proposed]
	report := s.CompareReport()

	r := &ReproductionReport{
		CompareReport:        report,
		LatencyTargetMet:     proposed.Mean > 0 && proposed.Mean <= ProposedLatencyTargetMS,
		SuccessRateTargetMet: proposed.SuccessRate >= ProposedSuccessRateTarget,
		SampleSizeTargetMet:  proposed.Count >= ProposedMinEventCount,
	}
	switch {
	case !r.SampleSizeTargetMet:
		r.FailureReason = "fewer than the minimum required Proposed-scheme samples"
	case !r.LatencyTargetMet:
		r.FailureReason = "Proposed-scheme mean latency above target"
	case !r.SuccessRateTargetMet:
		r.FailureReason = "Proposed-scheme success rate below target"
	}
	return r, r.FailureReason == ""
}
