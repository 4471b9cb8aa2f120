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
	"fmt"
	"math"

	"github.com/ntn-constellation/handover-core/position"
)

const earthRadiusKM = 6371.0

// kmPerDegree is the rough great-circle distance one degree of latitude
// spans; used only to turn a coverage radius in km into a search window in
// degrees before falling back to a proper haversine check.
const kmPerDegree = 111.32

// block is a rectangle of the lat/lon grid, plus whatever satellites cover
// it on the current tick. The grid is rebuilt in full each tick; nothing
// here survives across ticks.
type block struct {
	id                 string
	row, col           int
	latMin, latMax     float64
	lonMin, lonMax     float64
	center             position.LatLon
	coveringSatellites []string
}

// grid tiles the globe in blockSizeDeg x blockSizeDeg cells. It is rebuilt
// wholesale, cell layout included, on every Predict call; nothing is cached
// between calls, even when the block size is unchanged.
type grid struct {
	blockSizeDeg float64
	rows, cols   int
	cells        []*block
}

func newGrid(blockSizeDeg float64) *grid {
	rows := int(math.Ceil(180.0 / blockSizeDeg))
	cols := int(math.Ceil(360.0 / blockSizeDeg))
	g := &grid{blockSizeDeg: blockSizeDeg, rows: rows, cols: cols}
	g.cells = make([]*block, 0, rows*cols)
	for r := 0; r < rows; r++ {
		latMin := -90.0 + float64(r)*blockSizeDeg
		latMax := latMin + blockSizeDeg
		for c := 0; c < cols; c++ {
			lonMin := -180.0 + float64(c)*blockSizeDeg
			lonMax := lonMin + blockSizeDeg
			g.cells = append(g.cells, &block{
				id:     fmt.Sprintf("b_%d_%d", r, c),
				row:    r,
				col:    c,
				latMin: latMin, latMax: latMax,
				lonMin: lonMin, lonMax: lonMax,
				center: position.LatLon{Lat: (latMin + latMax) / 2, Lon: (lonMin + lonMax) / 2},
			})
		}
	}
	return g
}

func (g *grid) cellAt(row, col int) *block {
	row = ((row % g.rows) + g.rows) % g.rows
	col = ((col % g.cols) + g.cols) % g.cols
	return g.cells[row*g.cols+col]
}

func (g *grid) locate(p position.LatLon) *block {
	row := int(math.Floor((p.Lat + 90.0) / g.blockSizeDeg))
	col := int(math.Floor((p.Lon + 180.0) / g.blockSizeDeg))
	if row >= g.rows {
		row = g.rows - 1
	}
	if col >= g.cols {
		col = g.cols - 1
	}
	if row < 0 {
		row = 0
	}
	if col < 0 {
		col = 0
	}
	return g.cellAt(row, col)
}

// neighbourhood returns b plus its 8 edge/corner-adjacent cells, wrapping
// around the antimeridian and clamping at the poles.
func (g *grid) neighbourhood(b *block) []*block {
	out := make([]*block, 0, 9)
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			out = append(out, g.cellAt(b.row+dr, b.col+dc))
		}
	}
	return out
}

// assignSatellite marks every block whose center lies within coverageRadiusKM
// plus half a block's width of the satellite's sub-point as covered by it. The degree-box prefilter
// keeps this from scanning the whole grid for every satellite; the haversine
// check inside it keeps the disc reasonably circular near the poles.
func (g *grid) assignSatellite(satelliteID string, subPoint position.LatLon, coverageRadiusKM float64) {
	degRadius := coverageRadiusKM/kmPerDegree + g.blockSizeDeg
	for _, b := range g.cells {
		if math.Abs(normalizedLonDelta(b.center.Lon, subPoint.Lon)) > degRadius+g.blockSizeDeg {
			continue
		}
		if math.Abs(b.center.Lat-subPoint.Lat) > degRadius {
			continue
		}
		if haversineKM(b.center, subPoint) <= coverageRadiusKM+g.blockSizeDeg*kmPerDegree/2 {
			b.coveringSatellites = append(b.coveringSatellites, satelliteID)
		}
	}
}

func normalizedLonDelta(a, b float64) float64 {
	d := math.Mod(a-b+540, 360) - 180
	return d
}

// haversineKM is the great-circle distance between two lat/lon points.
func haversineKM(a, b position.LatLon) float64 {
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// coverageRadiusKM derives how far a satellite's beam reaches along the
// ground given its altitude and the constellation's minimum service
// elevation, via the standard horizon-angle relation for a circular orbit.
func coverageRadiusKM(altKM, minElevationDeg float64) float64 {
	if altKM <= 0 {
		return 0
	}
	elev := minElevationDeg * math.Pi / 180
	ratio := earthRadiusKM / (earthRadiusKM + altKM) * math.Cos(elev)
	if ratio > 1 {
		ratio = 1
	}
	lambda := math.Acos(ratio) - elev
	if lambda < 0 {
		lambda = 0
	}
	return earthRadiusKM * lambda
}
