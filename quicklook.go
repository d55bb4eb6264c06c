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
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Dimensions of quick-look images.
const (
	QuickLookWidth  = 8 * vg.Inch
	QuickLookHeight = 4.5 * vg.Inch
	colorBarHeight  = 0.6 * vg.Inch
)

// horizontalSlice is the latitude-longitude slice of a cube at index
// 0 of every other dimension. It implements plotter.GridXYZ.
type horizontalSlice struct {
	c          *Cube
	latd, lond int
	index      []int
}

func newHorizontalSlice(c *Cube) (*horizontalSlice, error) {
	latd, lond := c.CoordDim(LatCoord), c.CoordDim(LonCoord)
	if latd < 0 || lond < 0 {
		return nil, fmt.Errorf("umpost: cube %s has no horizontal grid", c.Name())
	}
	return &horizontalSlice{c: c, latd: latd, lond: lond, index: make([]int, len(c.Data.Shape))}, nil
}

func (h *horizontalSlice) Dims() (c, r int) {
	return h.c.Data.Shape[h.lond], h.c.Data.Shape[h.latd]
}

func (h *horizontalSlice) Z(c, r int) float64 {
	h.index[h.lond], h.index[h.latd] = c, r
	return h.c.Data.Get(h.index...)
}

func (h *horizontalSlice) X(c int) float64 { return h.c.DimCoords[h.lond].Points[c] }
func (h *horizontalSlice) Y(r int) float64 { return h.c.DimCoords[h.latd].Points[r] }

// limits returns the range of the non-missing values in h.
func (h *horizontalSlice) limits() (min, max float64, err error) {
	min, max = math.Inf(1), math.Inf(-1)
	nc, nr := h.Dims()
	for i := 0; i < nc; i++ {
		for j := 0; j < nr; j++ {
			v := h.Z(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			min, max = math.Min(min, v), math.Max(max, v)
		}
	}
	if min > max {
		return 0, 0, fmt.Errorf("umpost: cube %s has no valid values", h.c.Name())
	}
	if min == max {
		max = min + 1
	}
	return min, max, nil
}

// QuickLook draws a map of the horizontal slice of c at index 0 of
// every other dimension with a color bar underneath, and writes it to
// w as a PNG image.
func QuickLook(w io.Writer, c *Cube) error {
	g, err := newHorizontalSlice(c)
	if err != nil {
		return err
	}
	min, max, err := g.limits()
	if err != nil {
		return err
	}
	if nc, nr := g.Dims(); nc < 2 || nr < 2 {
		return fmt.Errorf("umpost: cube %s is too small to map", c.Name())
	}

	cm := moreland.ExtendedBlackBody()
	cm.SetMin(min)
	cm.SetMax(max)

	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = c.Name()
	p.X.Label.Text = LonCoord
	p.Y.Label.Text = LatCoord
	hm := plotter.NewHeatMap(g, cm.Palette(255))
	hm.Min, hm.Max = min, max
	p.Add(hm)

	bar, err := plot.New()
	if err != nil {
		return err
	}
	bar.Add(&plotter.ColorBar{ColorMap: cm})
	bar.HideY()
	bar.X.Padding = 0
	bar.X.Label.Text = c.Units

	img := vgimg.New(QuickLookWidth, QuickLookHeight)
	dc := draw.New(img)
	top, bottom := splitVertical(dc, colorBarHeight)
	p.Draw(top)
	bar.Draw(bottom)
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return fmt.Errorf("umpost: writing quick-look image of %s: %v", c.Name(), err)
	}
	return nil
}

// splitVertical splits c into a top part and a bottom part of height y.
func splitVertical(c draw.Canvas, y vg.Length) (top, bottom draw.Canvas) {
	return draw.Crop(c, 0, 0, y, 0), draw.Crop(c, 0, 0, 0, c.Min.Y-c.Max.Y+y)
}
