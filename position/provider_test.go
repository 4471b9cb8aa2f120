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

package position

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStaticProviderBatchPosition(t *testing.T) {
	p := NewStaticProvider()
	p.Register("sat-a", ConstantTrack(Observation{
		Position:     GeoPosition{LatLon: LatLon{Lat: 24.1, Lon: 120.6}, AltKM: 550},
		ElevationDeg: 45,
		Visible:      true,
	}), "NORAD-11111")

	ctx := context.Background()
	obs, err := p.BatchPosition(ctx, []string{"sat-a", "sat-unknown"}, time.Now(), nil)
	require.NoError(t, err)
	require.True(t, obs["sat-a"].Visible)
	require.False(t, obs["sat-a"].Failed)
	require.True(t, obs["sat-unknown"].Failed)

	id, err := p.ResolveSatelliteID(ctx, "NORAD-11111")
	require.NoError(t, err)
	require.Equal(t, "sat-a", id)

	_, err = p.ResolveSatelliteID(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound())
}

func TestStaticProviderSetFailing(t *testing.T) {
	p := NewStaticProvider()
	p.Register("sat-a", ConstantTrack(Observation{Visible: true, ElevationDeg: 50}))
	p.SetFailing("sat-a", true)

	obs, err := p.BatchPosition(context.Background(), []string{"sat-a"}, time.Now(), nil)
	require.NoError(t, err)
	require.True(t, obs["sat-a"].Failed)

	p.SetFailing("sat-a", false)
	obs, err = p.BatchPosition(context.Background(), []string{"sat-a"}, time.Now(), nil)
	require.NoError(t, err)
	require.False(t, obs["sat-a"].Failed)
}
