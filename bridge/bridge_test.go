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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ntn-constellation/handover-core/position"
	"github.com/ntn-constellation/handover-core/predictor"
	"github.com/ntn-constellation/handover-core/scheduler"
	syncpkg "github.com/ntn-constellation/handover-core/sync"
)

type stubNodes struct{}

func (stubNodes) AccessNodes() []string       { return []string{"acc-1"} }
func (stubNodes) CoreNodes() []string         { return []string{"core-1"} }
func (stubNodes) SatelliteNodes() []string    { return []string{"sat-1"} }
func (stubNodes) GroundStationNodes() []string { return []string{"gs-1"} }
func (stubNodes) SyncNode(context.Context, string, time.Time) (float64, error) {
	return 5.0, nil
}

type stubDrift struct{}

func (stubDrift) CurrentOffsetMS(context.Context, syncpkg.Plane) (float64, error) { return 1.0, nil }

func newTestBridge(t *testing.T) (*Bridge, *position.StaticProvider) {
	t.Helper()
	p := position.NewStaticProvider()
	p.Register("sat-a", position.ConstantTrack(position.Observation{
		Position:     position.GeoPosition{LatLon: position.LatLon{Lat: 24, Lon: 120}, AltKM: 550},
		ElevationDeg: 45,
		RangeKM:      1200,
		Visible:      true,
	}))

	pred := predictor.New(p, nil, predictor.DefaultBlockSizeDeg, predictor.DefaultMinElevationDeg)
	pred.RegisterUE("ue-1", position.GeoPosition{LatLon: position.LatLon{Lat: 24, Lon: 120}}, predictor.Flexible, "sat-a")

	sched := scheduler.New(p, pred, nil, scheduler.StaticCatalog{"sat-a"}, scheduler.DefaultConfig())
	coord := syncpkg.New(p, syncpkg.DefaultConfig())

	cfg := DefaultConfig()
	cfg.FallbackTimeout = 200 * time.Millisecond
	b := New(sched, coord, stubNodes{}, stubDrift{}, syncpkg.LEO, cfg)
	return b, p
}

func TestDecidePaperOnlyUsesSchedulerEntry(t *testing.T) {
	b, _ := newTestBridge(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Start(ctx))
	defer b.Stop()

	require.Eventually(t, func() bool {
		status := b.scheduler.Status()
		return len(status.R) == 1
	}, time.Second, 10*time.Millisecond)

	d, err := b.Decide(ctx, Request{UEID: "ue-1", Position: position.GeoPosition{LatLon: position.LatLon{Lat: 24, Lon: 120}}})
	require.NoError(t, err)
	require.Equal(t, "sat-a", d.SatelliteID)
	require.Equal(t, PaperOnly, d.Source)
}

func TestSwitchModeNoopWhenSame(t *testing.T) {
	b, _ := newTestBridge(t)
	before := b.LastModeSwitch()
	require.NoError(t, b.SwitchMode(context.Background(), PaperOnly, "manual"))
	require.Equal(t, before, b.LastModeSwitch())
	require.Empty(t, b.ModeHistory())
}

func TestSwitchModeRestartsRunningPaths(t *testing.T) {
	b, _ := newTestBridge(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Start(ctx))
	defer b.Stop()

	require.NoError(t, b.SwitchMode(ctx, Hybrid, "manual"))
	require.Equal(t, Hybrid, b.Mode())
	require.Len(t, b.ModeHistory(), 1)
	require.Equal(t, PaperOnly, b.ModeHistory()[0].From)
	require.Equal(t, Hybrid, b.ModeHistory()[0].To)

	// scheduler should have restarted: another decide should still work.
	_, err := b.Decide(ctx, Request{UEID: "ue-1", Position: position.GeoPosition{LatLon: position.LatLon{Lat: 24, Lon: 120}}, CandidateSatellite: "sat-a"})
	_ = err // enhanced path may or may not converge fast; we only assert no panic/deadlock above
}

func TestFallbackModeActivatesOnEnhancedFailure(t *testing.T) {
	b, _ := newTestBridge(t)
	b.cfg.InitialMode = Fallback
	b.mode = int32(Fallback)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Start(ctx))
	defer b.Stop()

	require.Eventually(t, func() bool {
		status := b.scheduler.Status()
		return len(status.R) == 1
	}, time.Second, 10*time.Millisecond)

	// no CandidateSatellite set => runEnhanced always errors immediately,
	// exercising the "failure" arm of runFallback rather than the timeout
	// arm, but still incrementing fallback_activations.
	d, err := b.Decide(ctx, Request{UEID: "ue-1", Position: position.GeoPosition{LatLon: position.LatLon{Lat: 24, Lon: 120}}})
	require.NoError(t, err)
	require.Equal(t, Fallback, d.Source)
	require.Equal(t, int64(1), b.FallbackActivations())
}

func TestMetricsRecordedPerMode(t *testing.T) {
	b, _ := newTestBridge(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Start(ctx))
	defer b.Stop()

	require.Eventually(t, func() bool {
		status := b.scheduler.Status()
		return len(status.R) == 1
	}, time.Second, 10*time.Millisecond)
	_, _ = b.Decide(ctx, Request{UEID: "ue-1", Position: position.GeoPosition{LatLon: position.LatLon{Lat: 24, Lon: 120}}})
	snap := b.Metrics(PaperOnly)
	require.Equal(t, int64(1), snap.Count)
	require.Equal(t, int64(1), snap.Successes)
}
