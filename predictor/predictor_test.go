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

package predictor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ntn-constellation/handover-core/position"
)

func sat(p *position.StaticProvider, id string, lat, lon, elev, rangeKM float64, aliases ...string) {
	p.Register(id, position.ConstantTrack(position.Observation{
		SatelliteID:  id,
		Position:     position.GeoPosition{LatLon: position.LatLon{Lat: lat, Lon: lon}, AltKM: 550},
		ElevationDeg: elev,
		RangeKM:      rangeKM,
		Visible:      true,
	}), aliases...)
}

// S1 — Flexible UE stays put when its current satellite remains available.
func TestPredictFlexibleUEStaysPut(t *testing.T) {
	p := position.NewStaticProvider()
	sat(p, "sat-a", 24.15, 120.67, 45, 1200)
	sat(p, "sat-b", 40, 40, 45, 1200)

	pr := New(p, nil, DefaultBlockSizeDeg, DefaultMinElevationDeg)
	pr.RegisterUE("ue-1", position.GeoPosition{LatLon: position.LatLon{Lat: 24.15, Lon: 120.67}}, Flexible, "sat-a")

	result, err := pr.Predict(context.Background(), nil, []string{"sat-a", "sat-b"}, time.Now())
	require.NoError(t, err)
	require.Equal(t, "sat-a", result["ue-1"])
	require.False(t, pr.Stale())
}

// S3 — three UEs in the same block, only local candidates should be used
// (no spurious global scan).
func TestPredictAlgorithm2LocalBlock(t *testing.T) {
	p := position.NewStaticProvider()
	sat(p, "sat-near-1", 24, 120, 60, 700)
	sat(p, "sat-near-2", 25, 121, 55, 800)
	sat(p, "sat-far", -60, -60, 80, 600)

	pr := New(p, nil, DefaultBlockSizeDeg, DefaultMinElevationDeg)
	for i, ue := range []string{"ue-1", "ue-2", "ue-3"} {
		pr.RegisterUE(ue, position.GeoPosition{LatLon: position.LatLon{Lat: 24 + float64(i), Lon: 120 + float64(i)}}, Consistent, "")
	}

	result, err := pr.Predict(context.Background(), nil, []string{"sat-near-1", "sat-near-2", "sat-far"}, time.Now())
	require.NoError(t, err)
	require.Len(t, result, 3)
	for _, ue := range []string{"ue-1", "ue-2", "ue-3"} {
		require.Contains(t, []string{"sat-near-1", "sat-near-2"}, result[ue])
	}
	require.Zero(t, pr.GlobalScans())
}

func TestPredictEmptySatelliteSetReturnsEmptyAssignments(t *testing.T) {
	p := position.NewStaticProvider()
	pr := New(p, nil, DefaultBlockSizeDeg, DefaultMinElevationDeg)
	pr.RegisterUE("ue-1", position.GeoPosition{LatLon: position.LatLon{Lat: 0, Lon: 0}}, Consistent, "")

	result, err := pr.Predict(context.Background(), nil, nil, time.Now())
	require.NoError(t, err)
	require.Empty(t, result["ue-1"])
}

// erroringProvider always fails BatchPosition wholesale, simulating the
// PositionProvider being entirely unreachable.
type erroringProvider struct{}

func (erroringProvider) BatchPosition(context.Context, []string, time.Time, *position.GeoPosition) (map[string]position.Observation, error) {
	return nil, errBoom
}
func (erroringProvider) ResolveSatelliteID(context.Context, string) (string, error) {
	return "", errBoom
}

var errBoom = errTest("provider unreachable")

type errTest string

func (e errTest) Error() string { return string(e) }

func TestPredictWholesaleProviderFailureReturnsPreviousTick(t *testing.T) {
	p := position.NewStaticProvider()
	sat(p, "sat-a", 0, 0, 45, 1000)
	pr := New(p, nil, DefaultBlockSizeDeg, DefaultMinElevationDeg)
	pr.RegisterUE("ue-1", position.GeoPosition{LatLon: position.LatLon{Lat: 0, Lon: 0}}, Consistent, "")

	first, err := pr.Predict(context.Background(), nil, []string{"sat-a"}, time.Now())
	require.NoError(t, err)
	require.Equal(t, "sat-a", first["ue-1"])

	pr.provider = erroringProvider{}
	second, err := pr.Predict(context.Background(), nil, []string{"sat-a"}, time.Now())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.True(t, pr.Stale())
}

func TestPredictPerSatelliteFailureExcludesOnlyThatSatellite(t *testing.T) {
	p := position.NewStaticProvider()
	sat(p, "sat-a", 0, 0, 45, 1000)
	pr := New(p, nil, DefaultBlockSizeDeg, DefaultMinElevationDeg)
	pr.RegisterUE("ue-1", position.GeoPosition{LatLon: position.LatLon{Lat: 0, Lon: 0}}, Consistent, "")

	p.SetFailing("sat-a", true)
	result, err := pr.Predict(context.Background(), nil, []string{"sat-a"}, time.Now())
	require.NoError(t, err)
	require.Empty(t, result["ue-1"])
	require.False(t, pr.Stale())
}

func TestRegisterUEIdempotent(t *testing.T) {
	p := position.NewStaticProvider()
	pr := New(p, nil, DefaultBlockSizeDeg, DefaultMinElevationDeg)
	pos := position.GeoPosition{LatLon: position.LatLon{Lat: 1, Lon: 2}}
	pr.RegisterUE("ue-1", pos, Flexible, "sat-a")
	pr.RegisterUE("ue-1", pos, Flexible, "sat-a")
	prof, ok := pr.profile("ue-1")
	require.True(t, ok)
	require.Equal(t, "sat-a", prof.currentSatelliteID)
}
