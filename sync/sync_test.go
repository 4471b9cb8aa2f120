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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ntn-constellation/handover-core/position"
)

func TestPredictSatelliteAccessConverges(t *testing.T) {
	p := position.NewStaticProvider()
	// elevation rises steadily from well below to well above the service
	// floor over the course of the horizon, so the search should converge
	// on a crossing instant rather than exhaust its iteration budget.
	start := time.Now()
	p.Register("sat-a", func(t time.Time) position.Observation {
		elapsed := t.Sub(start).Seconds()
		return position.Observation{
			ElevationDeg: -20 + elapsed/3,
			RangeKM:      1000,
			Visible:      true,
		}
	})

	c := New(p, DefaultConfig())
	c.minElevationDeg = 10
	c.twoPointDelta = 2 * time.Minute

	pred, err := c.PredictSatelliteAccess(context.Background(), position.GeoPosition{}, "sat-a", 30*time.Minute)
	require.NoError(t, err)
	require.False(t, pred.Instant.IsZero())
	require.GreaterOrEqual(t, pred.Confidence, 0.0)
	require.LessOrEqual(t, pred.Confidence, 1.0)
	require.LessOrEqual(t, pred.ErrorBoundMS, maxErrorBoundMS)
}

func TestPredictSatelliteAccessUnavailableSatellite(t *testing.T) {
	p := position.NewStaticProvider()
	c := New(p, DefaultConfig())

	_, err := c.PredictSatelliteAccess(context.Background(), position.GeoPosition{}, "missing", 10*time.Minute)
	require.Error(t, err)
}

// fakeNodeCoordinator is a minimal NodeCoordinator double covering all four
// planes with a handful of nodes each.
type fakeNodeCoordinator struct {
	mu      sync.Mutex
	synced  []string
	failFor map[string]bool
}

func (f *fakeNodeCoordinator) AccessNodes() []string        { return []string{"acc-1"} }
func (f *fakeNodeCoordinator) CoreNodes() []string           { return []string{"core-1"} }
func (f *fakeNodeCoordinator) SatelliteNodes() []string      { return []string{"sat-1"} }
func (f *fakeNodeCoordinator) GroundStationNodes() []string  { return []string{"gs-1"} }

func (f *fakeNodeCoordinator) SyncNode(_ context.Context, nodeID string, _ time.Time) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[nodeID] {
		return 0, context.DeadlineExceeded
	}
	f.synced = append(f.synced, nodeID)
	return 5.0, nil
}

// fakeDriftSource reports a scripted offset per plane.
type fakeDriftSource struct {
	mu      sync.Mutex
	offsets map[Plane]float64
}

func (f *fakeDriftSource) CurrentOffsetMS(_ context.Context, p Plane) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offsets[p], nil
}

func TestEstablishSignalingFreeSyncPublishesSyncPoint(t *testing.T) {
	p := position.NewStaticProvider()
	c := New(p, DefaultConfig())
	nodes := &fakeNodeCoordinator{failFor: map[string]bool{}}
	drift := &fakeDriftSource{offsets: map[Plane]float64{}}

	err := c.EstablishSignalingFreeSync(context.Background(), nodes, drift, LEO)
	require.NoError(t, err)
	defer c.Stop()

	sp := c.Current()
	require.Equal(t, Synchronized, sp.State)
	require.False(t, sp.AccessNetTime.IsZero())
	require.ElementsMatch(t, []string{"acc-1", "core-1", "sat-1", "gs-1"}, nodes.synced)
}

func TestEstablishSignalingFreeSyncToleratesPartialNodeFailure(t *testing.T) {
	p := position.NewStaticProvider()
	c := New(p, DefaultConfig())
	nodes := &fakeNodeCoordinator{failFor: map[string]bool{"sat-1": true}}
	drift := &fakeDriftSource{offsets: map[Plane]float64{}}

	err := c.EstablishSignalingFreeSync(context.Background(), nodes, drift, LEO)
	require.NoError(t, err)
	defer c.Stop()

	sp := c.Current()
	require.Equal(t, Synchronized, sp.State)
	require.NotContains(t, nodes.synced, "sat-1")
}

func TestCheckDriftRecalibratesPastLimit(t *testing.T) {
	p := position.NewStaticProvider()
	cfg := DefaultConfig()
	cfg.MaxClockDriftMS = 10
	c := New(p, cfg)
	nodes := &fakeNodeCoordinator{failFor: map[string]bool{}}
	drift := &fakeDriftSource{offsets: map[Plane]float64{CoreNet: 100}}

	require.NoError(t, c.EstablishSignalingFreeSync(context.Background(), nodes, drift, LEO))
	defer c.Stop()

	before := len(nodes.synced)
	c.checkDrift(context.Background(), nodes, drift, LEO)
	require.Greater(t, len(nodes.synced), before, "recalibration should resynchronize every node again")

	// the 100ms reading was recorded before recalibration reset every
	// plane's offset back to 0.
	mean, _, count := c.DriftStats(CoreNet)
	require.Equal(t, 100.0, mean)
	require.Equal(t, 1, count)
	_, worst := c.offsets.MaxAbs()
	require.Equal(t, 0.0, worst)
}

func TestCheckDriftWithinLimitDoesNotRecalibrate(t *testing.T) {
	p := position.NewStaticProvider()
	cfg := DefaultConfig()
	cfg.MaxClockDriftMS = 50
	c := New(p, cfg)
	nodes := &fakeNodeCoordinator{failFor: map[string]bool{}}
	drift := &fakeDriftSource{offsets: map[Plane]float64{CoreNet: 5}}

	require.NoError(t, c.EstablishSignalingFreeSync(context.Background(), nodes, drift, LEO))
	defer c.Stop()

	before := len(nodes.synced)
	c.checkDrift(context.Background(), nodes, drift, LEO)
	require.Equal(t, before, len(nodes.synced))
}

func TestClockOffsetsDriftRateIsSlopeBetweenOldestAndNewest(t *testing.T) {
	offsets := NewClockOffsets()
	base := time.Now()
	offsets.setAt(CoreNet, 0, base)
	offsets.setAt(CoreNet, 5, base.Add(time.Hour))

	rate := offsets.DriftRateMSPerHour(CoreNet)
	require.InDelta(t, 5.0, rate, 0.001)
	require.Len(t, offsets.OffsetHistory(CoreNet), 2)
}

func TestClockOffsetsDriftRateZeroWithSingleSample(t *testing.T) {
	offsets := NewClockOffsets()
	offsets.Set(AccessNet, 3)
	require.Equal(t, 0.0, offsets.DriftRateMSPerHour(AccessNet))
}

func TestClockOffsetsMaxAbs(t *testing.T) {
	offsets := NewClockOffsets()
	offsets.Set(AccessNet, -3)
	offsets.Set(CoreNet, 12)
	offsets.Set(SatelliteNet, 7)

	plane, worst := offsets.MaxAbs()
	require.Equal(t, CoreNet, plane)
	require.Equal(t, 12.0, worst)

	offsets.Reset()
	_, worst = offsets.MaxAbs()
	require.Equal(t, 0.0, worst)
}
