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

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

const fullCircle = 360.

// interpWeight describes the interpolated value at one target point as
// (1-w)*src[i0] + w*src[i1]. w outside of [0, 1] means extrapolation.
type interpWeight struct {
	i0, i1 int
	w      float64
}

// interpWeights calculates linear interpolation weights from the
// source coordinate points src to the target points dst. src must be
// strictly monotonic. If circular is true, src is treated as a
// longitude that wraps around every 360 degrees; otherwise target points
// beyond the ends of src are extrapolated from the two end points.
func interpWeights(src, dst []float64, circular bool) ([]interpWeight, error) {
	n := len(src)
	if n == 0 {
		return nil, fmt.Errorf("umpost: can't interpolate from an empty coordinate")
	}
	if !strictlyMonotonic(src) {
		return nil, fmt.Errorf("umpost: can't interpolate from non-monotonic coordinate %v", src)
	}
	// xs are the source points in increasing order and idx are their
	// positions in the original coordinate.
	xs := make([]float64, n)
	idx := make([]int, n)
	reversed := n > 1 && src[1] < src[0]
	for i := range src {
		j := i
		if reversed {
			j = n - 1 - i
		}
		xs[i] = src[j]
		idx[i] = j
	}
	o := make([]interpWeight, len(dst))
	for j, v := range dst {
		if n == 1 {
			o[j] = interpWeight{i0: idx[0], i1: idx[0]}
			continue
		}
		var i0, i1 int
		var x0, x1 float64
		switch {
		case circular:
			v = xs[0] + wrap(v-xs[0], fullCircle)
			if v >= xs[n-1] {
				i0, i1 = n-1, 0
				x0, x1 = xs[n-1], xs[0]+fullCircle
			} else {
				i0 = floats.Within(xs, v)
				i1 = i0 + 1
				x0, x1 = xs[i0], xs[i1]
			}
		case v < xs[0]:
			i0, i1 = 0, 1
			x0, x1 = xs[0], xs[1]
		case v >= xs[n-1]:
			i0, i1 = n-2, n-1
			x0, x1 = xs[n-2], xs[n-1]
		default:
			i0 = floats.Within(xs, v)
			i1 = i0 + 1
			x0, x1 = xs[i0], xs[i1]
		}
		o[j] = interpWeight{i0: idx[i0], i1: idx[i1], w: (v - x0) / (x1 - x0)}
	}
	return o, nil
}

// wrap returns v modulo period, in the range [0, period).
func wrap(v, period float64) float64 {
	for v < 0 {
		v += period
	}
	for v >= period {
		v -= period
	}
	return v
}

// interpAxis interpolates a along the given axis using weights,
// returning a new array whose length along axis is len(weights).
func interpAxis(a *sparse.DenseArray, axis int, weights []interpWeight) *sparse.DenseArray {
	shape := append([]int(nil), a.Shape...)
	outer, n, inner := axisLayout(a.Shape, axis)
	m := len(weights)
	shape[axis] = m
	out := sparse.ZerosDense(shape...)
	for o := 0; o < outer; o++ {
		for j, wt := range weights {
			dst := out.Elements[(o*m+j)*inner : (o*m+j+1)*inner]
			s0 := a.Elements[(o*n+wt.i0)*inner : (o*n+wt.i0+1)*inner]
			s1 := a.Elements[(o*n+wt.i1)*inner : (o*n+wt.i1+1)*inner]
			switch wt.w {
			case 0:
				copy(dst, s0)
			case 1:
				copy(dst, s1)
			default:
				for k := range dst {
					dst[k] = (1-wt.w)*s0[k] + wt.w*s1[k]
				}
			}
		}
	}
	return out
}

// dropAuxCoordsOn removes the auxiliary coordinates of c that span
// data axis d.
func (c *Cube) dropAuxCoordsOn(d int) {
	var keep []*AuxCoord
	for _, a := range c.AuxCoords {
		spans := false
		for _, ad := range a.Dims {
			if ad == d {
				spans = true
			}
		}
		if !spans {
			keep = append(keep, a)
		}
	}
	c.AuxCoords = keep
}

// InterpolateVertical linearly interpolates c along its coordName
// dimension coordinate to the points of the coordinate with the same
// name in target. Values above and below the source levels are
// extrapolated. Cubes without a coordName dimension are copied
// unchanged.
func InterpolateVertical(c, target *Cube, coordName string) (*Cube, error) {
	o := c.Copy()
	d := o.CoordDim(coordName)
	if d < 0 {
		return o, nil
	}
	td := target.CoordDim(coordName)
	if td < 0 {
		return nil, fmt.Errorf("umpost: target cube %s has no %s dimension", target.Name(), coordName)
	}
	tz := target.DimCoords[td]
	if o.DimCoords[d].Equal(tz) {
		return o, nil
	}
	w, err := interpWeights(o.DimCoords[d].Points, tz.Points, false)
	if err != nil {
		return nil, fmt.Errorf("umpost: interpolating %s vertically: %v", c.Name(), err)
	}
	o.Data = interpAxis(o.Data, d, w)
	o.DimCoords[d] = tz.Copy()
	o.dropAuxCoordsOn(d)
	for _, a := range target.AuxCoords {
		if len(a.Dims) == 1 && a.Dims[0] == td {
			o.AuxCoords = append(o.AuxCoords, &AuxCoord{Coord: a.Coord.Copy(), Dims: []int{d}})
		}
	}
	return o, nil
}

// RegridHorizontal bilinearly interpolates c onto the latitudes and
// longitudes of target. Circular longitudes wrap around the globe and
// points outside of the source grid are extrapolated.
func RegridHorizontal(c, target *Cube) (*Cube, error) {
	o := c.Copy()
	for _, name := range []string{LatCoord, LonCoord} {
		d := o.CoordDim(name)
		if d < 0 {
			return nil, fmt.Errorf("umpost: regridding %s: no %s dimension", c.Name(), name)
		}
		tc := target.Coord(name)
		if tc == nil {
			return nil, fmt.Errorf("umpost: regridding %s: target cube %s has no %s coordinate",
				c.Name(), target.Name(), name)
		}
		sc := o.DimCoords[d]
		if sc.Equal(tc) {
			continue
		}
		w, err := interpWeights(sc.Points, tc.Points, name == LonCoord && sc.Circular)
		if err != nil {
			return nil, fmt.Errorf("umpost: regridding %s along %s: %v", c.Name(), name, err)
		}
		o.Data = interpAxis(o.Data, d, w)
		o.DimCoords[d] = tc.Copy()
		o.dropAuxCoordsOn(d)
	}
	return o, nil
}

// Regrid3D interpolates c to the vertical coordinate coordName of
// target and then to the horizontal grid of target.
func Regrid3D(c, target *Cube, coordName string) (*Cube, error) {
	v, err := InterpolateVertical(c, target, coordName)
	if err != nil {
		return nil, err
	}
	return RegridHorizontal(v, target)
}
