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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ntn-constellation/handover-core/position"
	"github.com/ntn-constellation/handover-core/predictor"
)

// crossoverTrack reports sat-A as the clearly-better satellite before
// crossover and sat-B after, letting binary search pin down the exact
// switch instant deterministically (seed scenario S2's shape).
func crossoverTrack(id string, highBefore bool, crossover time.Time) position.Track {
	return func(t time.Time) position.Observation {
		before := t.Before(crossover)
		elev := 20.0
		rangeKM := 1800.0
		if before == highBefore {
			elev = 70.0
			rangeKM = 600.0
		}
		return position.Observation{
			SatelliteID:  id,
			Position:     position.GeoPosition{LatLon: position.LatLon{Lat: 24, Lon: 120}, AltKM: 550},
			ElevationDeg: elev,
			RangeKM:      rangeKM,
			Visible:      true,
		}
	}
}

func TestBinarySearchHandoverTime(t *testing.T) {
	now := time.Now()
	crossover := now.Add(4 * time.Second)

	p := position.NewStaticProvider()
	p.Register("sat-a", crossoverTrack("sat-a", true, crossover))
	p.Register("sat-b", crossoverTrack("sat-b", false, crossover))

	pred := predictor.New(p, nil, predictor.DefaultBlockSizeDeg, predictor.DefaultMinElevationDeg)
	cfg := DefaultConfig()
	cfg.BinarySearchPrecision = 10 * time.Millisecond
	sch := New(p, pred, nil, StaticCatalog{"sat-a", "sat-b"}, cfg)

	pos := position.GeoPosition{LatLon: position.LatLon{Lat: 24, Lon: 120}}
	result, err := sch.binarySearchHandoverTime(context.Background(), pos, "sat-a", "sat-b", now, now.Add(10*time.Second))
	require.NoError(t, err)
	require.True(t, result.converged)
	require.InDelta(t, crossover.UnixMilli(), result.instant.UnixMilli(), 20)
	require.LessOrEqual(t, result.iterations, 10)
}

func TestBinarySearchDegenerateBracket(t *testing.T) {
	now := time.Now()
	p := position.NewStaticProvider()
	p.Register("sat-a", position.ConstantTrack(position.Observation{ElevationDeg: 70, RangeKM: 600, Visible: true}))
	p.Register("sat-b", position.ConstantTrack(position.Observation{ElevationDeg: 20, RangeKM: 1800, Visible: true}))

	pred := predictor.New(p, nil, predictor.DefaultBlockSizeDeg, predictor.DefaultMinElevationDeg)
	cfg := DefaultConfig()
	cfg.BinarySearchPrecision = 10 * time.Millisecond
	sch := New(p, pred, nil, StaticCatalog{"sat-a", "sat-b"}, cfg)

	pos := position.GeoPosition{}
	// source already dominates across the whole (degenerate) window, so this
	// exercises the "no handover in window" edge case instead.
	result, err := sch.binarySearchHandoverTime(context.Background(), pos, "sat-a", "sat-b", now, now.Add(10*time.Millisecond))
	require.NoError(t, err)
	require.True(t, result.noHandover)
}

func TestSchedulerStartStopIdempotent(t *testing.T) {
	p := position.NewStaticProvider()
	pred := predictor.New(p, nil, predictor.DefaultBlockSizeDeg, predictor.DefaultMinElevationDeg)
	sch := New(p, pred, nil, StaticCatalog{}, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sch.Start(ctx))
	err := sch.Start(ctx)
	require.Error(t, err)
	require.IsType(t, &ErrStateMachineViolation{}, err)

	require.NoError(t, sch.Stop())
	err = sch.Stop()
	require.Error(t, err)
}

func TestSchedulerPeriodicUpdateFlexibleUEStaysPut(t *testing.T) {
	p := position.NewStaticProvider()
	p.Register("sat-a", position.ConstantTrack(position.Observation{
		Position:     position.GeoPosition{LatLon: position.LatLon{Lat: 24.15, Lon: 120.67}, AltKM: 550},
		ElevationDeg: 45,
		RangeKM:      1200,
		Visible:      true,
	}))
	pred := predictor.New(p, nil, predictor.DefaultBlockSizeDeg, predictor.DefaultMinElevationDeg)
	pred.RegisterUE("ue-1", position.GeoPosition{LatLon: position.LatLon{Lat: 24.15, Lon: 120.67}}, predictor.Flexible, "sat-a")

	cfg := DefaultConfig()
	cfg.DeltaT = 5 * time.Second
	sch := New(p, pred, nil, StaticCatalog{"sat-a"}, cfg)

	now := time.Now()
	require.NoError(t, sch.periodicUpdate(context.Background(), now))

	status := sch.Status()
	require.Len(t, status.R, 1)
	require.Equal(t, "sat-a", status.R[0].SatelliteID)
	require.Empty(t, status.R[0].NextSatelliteID)
	require.Empty(t, status.Tp)
}

func TestUpdateUEQueuesNonBlocking(t *testing.T) {
	p := position.NewStaticProvider()
	pred := predictor.New(p, nil, predictor.DefaultBlockSizeDeg, predictor.DefaultMinElevationDeg)
	sch := New(p, pred, nil, StaticCatalog{}, DefaultConfig())
	sch.UpdateUE("ue-1")
	require.Len(t, sch.ueChanges, 1)
}
