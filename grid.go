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
	"fmt"
	"math"

	"github.com/ctessum/sparse"
)

// ReplaceZCoord returns a copy of c in which the auxiliary coordinate
// with the given name (typically LevelHeight) has been promoted to be
// the dimension coordinate of the vertical axis, replacing the model
// level number. If c does not have a suitable vertical coordinate, an
// unchanged copy is returned.
func ReplaceZCoord(c *Cube, name string) (*Cube, error) {
	o := c.Copy()
	aux := o.auxCoord(name)
	if aux == nil || len(aux.Dims) != 1 {
		return o, nil
	}
	d := aux.Dims[0]
	old := o.DimCoords[d]
	if old.Name != ModelLevel && old.Name != HybridHeight {
		return o, nil
	}
	if !strictlyMonotonic(aux.Points) {
		return nil, fmt.Errorf("umpost: cube %s: coordinate %s is not monotonic so it can't be a dimension coordinate",
			c.Name(), name)
	}
	o.removeAuxCoord(name)
	o.DimCoords[d] = aux.Coord
	o.AuxCoords = append(o.AuxCoords, &AuxCoord{Coord: old, Dims: []int{d}})
	return o, nil
}

// EnsureBounds adds bounds to any of the named coordinates of c that
// don't already have them. Bounds are placed halfway between points
// and the outer bounds are extended by half a grid spacing. Latitude
// bounds are limited to the poles.
func EnsureBounds(c *Cube, names ...string) {
	for _, n := range names {
		coord := c.Coord(n)
		if coord == nil || coord.HasBounds() || len(coord.Points) < 2 {
			continue
		}
		coord.Bounds = guessBounds(coord.Points)
		if coord.Name == LatCoord {
			for i, b := range coord.Bounds {
				coord.Bounds[i] = [2]float64{clip(b[0], -90, 90), clip(b[1], -90, 90)}
			}
		}
	}
}

func guessBounds(p []float64) [][2]float64 {
	n := len(p)
	b := make([][2]float64, n)
	for i := 0; i < n; i++ {
		var lo, hi float64
		if i == 0 {
			lo = p[0] - (p[1]-p[0])/2
		} else {
			lo = (p[i-1] + p[i]) / 2
		}
		if i == n-1 {
			hi = p[n-1] + (p[n-1]-p[n-2])/2
		} else {
			hi = (p[i] + p[i+1]) / 2
		}
		b[i] = [2]float64{lo, hi}
	}
	return b
}

func clip(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }

// RollPM180 returns a copy of c whose longitudes run from -180 to 180
// instead of from 0 to 360. The data are rolled by half of the number of
// longitudes, so the longitude grid should be evenly spaced. Cubes
// without longitudes of 180 or more are copied unchanged.
func RollPM180(c *Cube) *Cube {
	o := c.Copy()
	d := o.CoordDim(LonCoord)
	if d < 0 {
		return o
	}
	lon := o.DimCoords[d]
	if !anyAtLeast(lon.Points, 180) {
		return o
	}
	shift := len(lon.Points) / 2
	o.Data = rollAxis(o.Data, d, shift)
	for i := range lon.Points {
		lon.Points[i] -= 180
	}
	for i := range lon.Bounds {
		lon.Bounds[i][0] -= 180
		lon.Bounds[i][1] -= 180
	}
	for _, a := range o.AuxCoords {
		if len(a.Dims) == 1 && a.Dims[0] == d {
			a.Points = rollSlice(a.Points, shift)
		}
	}
	return o
}

func anyAtLeast(s []float64, v float64) bool {
	for _, x := range s {
		if x >= v {
			return true
		}
	}
	return false
}

// axisLayout returns the number of elements before, along and after
// the given axis of an array with the given shape.
func axisLayout(shape []int, axis int) (outer, n, inner int) {
	outer, inner = 1, 1
	for i := 0; i < axis; i++ {
		outer *= shape[i]
	}
	for i := axis + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	return outer, shape[axis], inner
}

// rollAxis shifts the elements of a along axis by shift places, moving
// elements that fall off the end to the beginning.
func rollAxis(a *sparse.DenseArray, axis, shift int) *sparse.DenseArray {
	out := sparse.ZerosDense(a.Shape...)
	outer, n, inner := axisLayout(a.Shape, axis)
	if n == 0 {
		return out
	}
	for o := 0; o < outer; o++ {
		for i := 0; i < n; i++ {
			dst := (i + shift) % n
			if dst < 0 {
				dst += n
			}
			copy(out.Elements[(o*n+dst)*inner:(o*n+dst+1)*inner],
				a.Elements[(o*n+i)*inner:(o*n+i+1)*inner])
		}
	}
	return out
}

func rollSlice(s []float64, shift int) []float64 {
	n := len(s)
	o := make([]float64, n)
	for i, v := range s {
		o[((i+shift)%n+n)%n] = v
	}
	return o
}

func strictlyMonotonic(s []float64) bool {
	return strictlyIncreasing(s) || strictlyDecreasing(s)
}

func strictlyIncreasing(s []float64) bool {
	for i := 1; i < len(s); i++ {
		if !(s[i] > s[i-1]) {
			return false
		}
	}
	return true
}

func strictlyDecreasing(s []float64) bool {
	for i := 1; i < len(s); i++ {
		if !(s[i] < s[i-1]) {
			return false
		}
	}
	return true
}
