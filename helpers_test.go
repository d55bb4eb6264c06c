/*
Copyright © 2020 the UMPost authors.
This file is part of UMPost.

UMPost is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

UMPost is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with UMPost.  If not, see <http://www.gnu.org/licenses/>.
*/

package umpost

import (
	"math"
	"testing"

	"github.com/ctessum/sparse"
)

const testTolerance = 1.e-8

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

func absDifferent(a, b float64) bool {
	return math.Abs(a-b) > testTolerance || math.IsNaN(a) != math.IsNaN(b)
}

func latCoord(points ...float64) *Coord {
	return &Coord{Name: LatCoord, Units: "degrees", Points: points}
}

func lonCoord(points ...float64) *Coord {
	return &Coord{Name: LonCoord, Units: "degrees", Points: points, Circular: isCircular(points)}
}

// levelCube returns a 30-day mean cube on model levels, where
// level_height is an auxiliary coordinate, filled with values of f at
// each grid point.
func levelCube(name, units string, heights []float64, lat, lon *Coord, f func(z, y, x float64) float64) *Cube {
	levels := make([]float64, len(heights))
	for i := range levels {
		levels[i] = float64(i + 1)
	}
	c := &Cube{
		StandardName: name,
		Units:        units,
		Attributes:   map[string]string{},
		CellMethods:  []CellMethod{{Method: "mean", Coords: []string{TimeCoord}, Comment: "interval: 1 hour"}},
		DimCoords: []*Coord{
			{Name: ModelLevel, Units: "1", Points: levels},
			lat.Copy(),
			lon.Copy(),
		},
		AuxCoords: []*AuxCoord{
			{Coord: &Coord{Name: LevelHeight, Units: "m", Points: append([]float64(nil), heights...)}, Dims: []int{0}},
		},
		Data: sparse.ZerosDense(len(heights), len(lat.Points), len(lon.Points)),
	}
	for k, z := range heights {
		for j, y := range lat.Points {
			for i, x := range lon.Points {
				c.Data.Set(f(z, y, x), k, j, i)
			}
		}
	}
	return c
}

// surfaceCube returns a 30-day mean 2-D cube filled with values of f.
func surfaceCube(name, units string, lat, lon *Coord, f func(y, x float64) float64) *Cube {
	c := &Cube{
		StandardName: name,
		Units:        units,
		Attributes:   map[string]string{},
		CellMethods:  []CellMethod{{Method: "mean", Coords: []string{TimeCoord}}},
		DimCoords:    []*Coord{lat.Copy(), lon.Copy()},
		Data:         sparse.ZerosDense(len(lat.Points), len(lon.Points)),
	}
	for j, y := range lat.Points {
		for i, x := range lon.Points {
			c.Data.Set(f(y, x), j, i)
		}
	}
	return c
}

func compareCoords(t *testing.T, name string, have, want *Coord) {
	t.Helper()
	if have == nil {
		t.Errorf("%s: missing coordinate %s", name, want.Name)
		return
	}
	if have.Name != want.Name || have.Units != want.Units {
		t.Errorf("%s: coordinate %s (%s) != %s (%s)", name, have.Name, have.Units, want.Name, want.Units)
	}
	if len(have.Points) != len(want.Points) {
		t.Errorf("%s: coordinate %s points %v != %v", name, want.Name, have.Points, want.Points)
		return
	}
	for i := range want.Points {
		if absDifferent(have.Points[i], want.Points[i]) {
			t.Errorf("%s: coordinate %s points %v != %v", name, want.Name, have.Points, want.Points)
			break
		}
	}
	if len(have.Bounds) != len(want.Bounds) {
		t.Errorf("%s: coordinate %s bounds %v != %v", name, want.Name, have.Bounds, want.Bounds)
		return
	}
	for i := range want.Bounds {
		if absDifferent(have.Bounds[i][0], want.Bounds[i][0]) || absDifferent(have.Bounds[i][1], want.Bounds[i][1]) {
			t.Errorf("%s: coordinate %s bounds %v != %v", name, want.Name, have.Bounds, want.Bounds)
			break
		}
	}
}

func compareData(t *testing.T, name string, have *sparse.DenseArray, want []float64, tolerance float64) {
	t.Helper()
	if len(have.Elements) != len(want) {
		t.Errorf("%s: data length %d != %d", name, len(have.Elements), len(want))
		return
	}
	for i, w := range want {
		h := have.Elements[i]
		if math.IsNaN(w) && math.IsNaN(h) {
			continue
		}
		if math.Abs(h-w) > tolerance*math.Max(1, math.Abs(w)) {
			t.Errorf("%s: element %d: %g != %g", name, i, h, w)
		}
	}
}
