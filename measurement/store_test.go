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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAnalyseEmptySchemeIsAllZero(t *testing.T) {
	s := New(0)
	stats := s.Analyse(false)
	require.Equal(t, SchemeStats{}, stats[Baseline])
}

func TestAnalyseStatsSanity(t *testing.T) {
	s := New(0)
	now := time.Now()
	latencies := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	for i, l := range latencies {
		s.Record(HandoverEvent{
			ID: fmt.Sprintf("evt-%d", i), Scheme: Proposed, Result: Success,
			Start: now, End: now.Add(time.Duration(l) * time.Millisecond), LatencyMS: l,
		})
	}
	stats := s.Analyse(false)[Proposed]
	require.Equal(t, 10, stats.Count)
	require.Equal(t, 10, stats.SuccessCount)
	require.Equal(t, 1.0, stats.SuccessRate)
	require.LessOrEqual(t, stats.Min, stats.P95)
	require.LessOrEqual(t, stats.P95, stats.P99)
	require.LessOrEqual(t, stats.P99, stats.Max)
	require.InDelta(t, 55, stats.Mean, 0.001)
}

func TestAnalyseIsLazilyCached(t *testing.T) {
	s := New(0)
	s.Record(HandoverEvent{ID: "e1", Scheme: Baseline, Result: Success, LatencyMS: 250})
	first := s.Analyse(false)
	s.Record(HandoverEvent{ID: "e2", Scheme: Baseline, Result: Success, LatencyMS: 250})
	stale := s.Analyse(false) // dirty bit flipped by the second Record, recomputes
	require.NotEqual(t, first[Baseline].Count, stale[Baseline].Count)
}

func TestCompareReportReproductionSuccess(t *testing.T) {
	s := New(0)
	for i := 0; i < 20; i++ {
		s.Record(HandoverEvent{ID: fmt.Sprintf("b-%d", i), Scheme: Baseline, Result: Success, LatencyMS: 250})
		s.Record(HandoverEvent{ID: fmt.Sprintf("p-%d", i), Scheme: Proposed, Result: Success, LatencyMS: 25})
	}
	report := s.CompareReport()
	require.True(t, report.OverallReproductionSuccess)
	require.InDelta(t, 90, report.LatencyReductionPercent, 1)

	repro, ok := s.Reproduce()
	require.True(t, ok)
	require.Empty(t, repro.FailureReason)
}

func TestReproduceNamesFailingCriterion(t *testing.T) {
	s := New(0)
	for i := 0; i < 20; i++ {
		s.Record(HandoverEvent{ID: fmt.Sprintf("b-%d", i), Scheme: Baseline, Result: Success, LatencyMS: 250})
		s.Record(HandoverEvent{ID: fmt.Sprintf("p-%d", i), Scheme: Proposed, Result: Failure, LatencyMS: 25})
	}
	repro, ok := s.Reproduce()
	require.False(t, ok)
	require.False(t, repro.SuccessRateTargetMet)
	require.NotEmpty(t, repro.FailureReason)
}

func TestRecordRetentionBound(t *testing.T) {
	s := New(3)
	for i := 0; i < 5; i++ {
		s.Record(HandoverEvent{ID: fmt.Sprintf("e-%d", i), Scheme: Baseline, LatencyMS: float64(i)})
	}
	events := s.Events()
	require.Len(t, events, 3)
	require.Equal(t, "e-2", events[0].ID)
	require.Equal(t, "e-4", events[2].ID)
}

func TestExportImportRoundTrip(t *testing.T) {
	s := New(0)
	now := time.Now()
	s.Record(HandoverEvent{ID: "evt-1", UEID: "ue-1", Scheme: Proposed, Result: Success, Start: now, End: now, LatencyMS: 25})

	dir := t.TempDir()
	path, err := s.ExportJSON(dir, "out.json")
	require.NoError(t, err)

	imported, err := ImportJSON(path)
	require.NoError(t, err)
	require.Len(t, imported, 1)
	require.Equal(t, "evt-1", imported[0].ID)
}

func TestExportCSVWritesHeaderAndRows(t *testing.T) {
	s := New(0)
	s.Record(HandoverEvent{ID: "evt-1", Scheme: Baseline, Result: Success, LatencyMS: 250})
	dir := t.TempDir()
	path, err := s.ExportCSV(dir, "")
	require.NoError(t, err)
	require.FileExists(t, path)
}
