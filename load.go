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
	"os"
	"sort"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// Variable attributes that are consumed while loading and are not
// copied into Cube.Attributes.
var reservedAttrs = map[string]bool{
	"standard_name": true,
	"long_name":     true,
	"units":         true,
	"cell_methods":  true,
	"coordinates":   true,
	"bounds":        true,
	"_FillValue":    true,
	"missing_value": true,
	"grid_mapping":  true,
}

// LoadFile reads all of the data variables in the NetCDF file at path
// into cubes.
func LoadFile(path string) (CubeList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("umpost: loading file: %v", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("umpost: loading file: %v", err)
	}
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("umpost: opening %s as netcdf: %v", path, err)
	}
	l := &ncfLoader{f: ff, numRecs: int(ff.Header.NumRecs(fi.Size()))}
	cubes, err := l.cubes()
	if err != nil {
		return nil, fmt.Errorf("umpost: loading %s: %v", path, err)
	}
	return cubes, nil
}

type ncfLoader struct {
	f       *cdf.File
	numRecs int
}

// cubes returns every variable in the file that is not a coordinate,
// bounds, or grid mapping variable as a cube.
func (l *ncfLoader) cubes() (CubeList, error) {
	h := l.f.Header
	notData := make(map[string]bool)
	for _, v := range h.Variables() {
		dims := h.Dimensions(v)
		if len(dims) == 0 || (len(dims) == 1 && dims[0] == v) {
			notData[v] = true
		}
		if _, ok := h.ZeroValue(v, 0).(string); ok {
			notData[v] = true
		}
		for _, a := range []string{"bounds", "grid_mapping"} {
			if s, ok := h.GetAttribute(v, a).(string); ok {
				notData[s] = true
			}
		}
		if s, ok := h.GetAttribute(v, "coordinates").(string); ok {
			for _, c := range strings.Fields(s) {
				notData[c] = true
			}
		}
	}
	var o CubeList
	for _, v := range h.Variables() {
		if notData[v] {
			continue
		}
		c, err := l.cube(v)
		if err != nil {
			return nil, err
		}
		o = append(o, c)
	}
	return o, nil
}

func (l *ncfLoader) cube(v string) (*Cube, error) {
	h := l.f.Header
	data, err := l.read(v)
	if err != nil {
		return nil, err
	}
	c := &Cube{
		StandardName: l.stringAttr(v, "standard_name"),
		LongName:     l.stringAttr(v, "long_name"),
		VarName:      v,
		Units:        l.stringAttr(v, "units"),
		Attributes:   make(map[string]string),
		Data:         data,
	}
	if cm := l.stringAttr(v, "cell_methods"); cm != "" {
		if c.CellMethods, err = ParseCellMethods(cm); err != nil {
			return nil, err
		}
	}
	for _, a := range h.Attributes(v) {
		if reservedAttrs[a] {
			continue
		}
		if s, ok := h.GetAttribute(v, a).(string); ok {
			c.Attributes[a] = s
		}
	}
	dims := h.Dimensions(v)
	for _, d := range dims {
		coord, err := l.dimCoord(d)
		if err != nil {
			return nil, err
		}
		c.DimCoords = append(c.DimCoords, coord)
	}
	if s := l.stringAttr(v, "coordinates"); s != "" {
		for _, av := range strings.Fields(s) {
			a, err := l.auxCoord(av, dims)
			if err != nil {
				return nil, err
			}
			if a != nil {
				c.AuxCoords = append(c.AuxCoords, a)
			}
		}
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

// dimCoord returns the coordinate for dimension d. Dimensions without
// a coordinate variable are labeled by their indices.
func (l *ncfLoader) dimCoord(d string) (*Coord, error) {
	if dims := l.f.Header.Dimensions(d); len(dims) == 1 && dims[0] == d {
		return l.coord(d)
	}
	n := l.length(d)
	c := &Coord{Name: d, Units: "1", Points: make([]float64, n)}
	for i := range c.Points {
		c.Points[i] = float64(i)
	}
	return c, nil
}

// auxCoord returns the auxiliary coordinate stored in variable v,
// which must only span dimensions in dataDims. Variables that aren't
// in the file are ignored.
func (l *ncfLoader) auxCoord(v string, dataDims []string) (*AuxCoord, error) {
	h := l.f.Header
	if len(h.Lengths(v)) == 0 && h.ZeroValue(v, 0) == nil {
		return nil, nil
	}
	a := &AuxCoord{}
	for _, d := range h.Dimensions(v) {
		found := false
		for i, dd := range dataDims {
			if d == dd {
				a.Dims = append(a.Dims, i)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("auxiliary coordinate %s spans dimension %s which its data variable doesn't", v, d)
		}
	}
	var err error
	if a.Coord, err = l.coord(v); err != nil {
		return nil, err
	}
	return a, nil
}

// coord reads variable v as a coordinate, including its bounds.
func (l *ncfLoader) coord(v string) (*Coord, error) {
	data, err := l.read(v)
	if err != nil {
		return nil, err
	}
	c := &Coord{
		Name:   l.coordName(v),
		Units:  l.stringAttr(v, "units"),
		Points: data.Elements,
	}
	if b := l.stringAttr(v, "bounds"); b != "" {
		bd, err := l.read(b)
		if err != nil {
			return nil, err
		}
		if len(bd.Elements) != 2*len(c.Points) {
			return nil, fmt.Errorf("bounds variable %s has %d values for %d points", b, len(bd.Elements), len(c.Points))
		}
		c.Bounds = make([][2]float64, len(c.Points))
		for i := range c.Bounds {
			c.Bounds[i] = [2]float64{bd.Elements[2*i], bd.Elements[2*i+1]}
		}
	}
	if c.Name == LonCoord {
		c.Circular = isCircular(c.Points)
	}
	return c, nil
}

// coordName returns the name of coordinate variable v. Coordinates
// whose long name matches the variable name, such as level_height,
// keep that name; others are named by their standard name.
func (l *ncfLoader) coordName(v string) string {
	ln := l.stringAttr(v, "long_name")
	if ln == v {
		return v
	}
	if sn := l.stringAttr(v, "standard_name"); sn != "" {
		return sn
	}
	if ln != "" {
		return ln
	}
	return v
}

// isCircular reports whether evenly spaced longitudes p cover the
// whole globe.
func isCircular(p []float64) bool {
	n := len(p)
	if n < 2 {
		return false
	}
	d := (p[n-1] - p[0]) / float64(n-1)
	for i := 1; i < n; i++ {
		if math.Abs(p[i]-p[i-1]-d) > 1e-4*math.Abs(d) {
			return false
		}
	}
	return math.Abs(math.Abs(d)*float64(n)-fullCircle) < 1e-4*fullCircle
}

func (l *ncfLoader) stringAttr(v, a string) string {
	s, _ := l.f.Header.GetAttribute(v, a).(string)
	return strings.TrimRight(s, "\x00")
}

// length returns the length of dimension d.
func (l *ncfLoader) length(d string) int {
	h := l.f.Header
	for i, dd := range h.Dimensions("") {
		if dd == d {
			n := h.Lengths("")[i]
			if n == 0 {
				return l.numRecs
			}
			return n
		}
	}
	return 0
}

// read reads all of the values of variable v, converting them to
// float64. Fill values are replaced with NaN.
func (l *ncfLoader) read(v string) (*sparse.DenseArray, error) {
	h := l.f.Header
	shape := append([]int(nil), h.Lengths(v)...)
	if h.IsRecordVariable(v) {
		shape[0] = l.numRecs
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	var data *sparse.DenseArray
	if len(shape) == 0 {
		data = sparse.ZerosDense(1)
	} else {
		data = sparse.ZerosDense(shape...)
	}
	if n == 0 {
		return data, nil
	}
	begin, end := make([]int, len(shape)), make([]int, len(shape))
	for i, d := range shape {
		end[i] = d - 1
	}
	r := l.f.Reader(v, begin, end)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("reading variable %s: %v", v, err)
	}
	switch b := buf.(type) {
	case []float64:
		copy(data.Elements, b)
	case []float32:
		for i, val := range b {
			data.Elements[i] = float64(val)
		}
	case []int32:
		for i, val := range b {
			data.Elements[i] = float64(val)
		}
	case []int16:
		for i, val := range b {
			data.Elements[i] = float64(val)
		}
	case []uint8:
		for i, val := range b {
			data.Elements[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("variable %s has unsupported type %T", v, buf)
	}
	for _, a := range []string{"_FillValue", "missing_value"} {
		fill, ok := firstFloat(h.GetAttribute(v, a))
		if !ok {
			continue
		}
		for i, val := range data.Elements {
			if val == fill {
				data.Elements[i] = math.NaN()
			}
		}
	}
	return data, nil
}

// firstFloat returns the first value of a numeric attribute.
func firstFloat(a interface{}) (float64, bool) {
	switch v := a.(type) {
	case []float64:
		if len(v) > 0 {
			return v[0], true
		}
	case []float32:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	case []int32:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	case []int16:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	}
	return 0, false
}

// LoadFiles loads each of the given files and merges cubes of the same
// field along the time axis. The files should be sorted in time order.
func LoadFiles(paths ...string) (CubeList, error) {
	var all CubeList
	for _, p := range paths {
		c, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, c...)
	}
	return mergeTime(all)
}

// mergeKey identifies cubes that may hold the same field at different
// times.
func mergeKey(c *Cube) string {
	s, _ := c.STASH()
	return strings.Join([]string{c.Name(), s.String(), formatCellMethods(c.CellMethods), c.Units}, "|")
}

// mergeTime concatenates cubes that only differ in time.
func mergeTime(cubes CubeList) (CubeList, error) {
	var groups []CubeList
	for _, c := range cubes {
		placed := false
		for i, g := range groups {
			if mergeKey(g[0]) == mergeKey(c) && sameSpace(g[0], c) {
				groups[i] = append(g, c)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, CubeList{c})
		}
	}
	o := make(CubeList, 0, len(groups))
	for _, g := range groups {
		if len(g) == 1 {
			o = append(o, g[0])
			continue
		}
		if !timeMergeable(g) {
			// Fields without time, such as orography, are repeated
			// in every file.
			o = append(o, dropDuplicates(g)...)
			continue
		}
		c, err := concatenateTime(g)
		if err != nil {
			return nil, err
		}
		o = append(o, c)
	}
	return o, nil
}

// timeMergeable returns whether every cube in g has a time coordinate
// that it can be concatenated along.
func timeMergeable(g CubeList) bool {
	for _, c := range g {
		if d := c.CoordDim(TimeCoord); d > 0 {
			return false
		} else if d == 0 {
			continue
		}
		t := c.auxCoord(TimeCoord)
		if t == nil || len(t.Dims) != 0 || len(t.Points) != 1 {
			return false
		}
	}
	return true
}

// dropDuplicates returns the cubes in g, leaving out any whose data
// and coordinates are the same as those of an earlier cube.
func dropDuplicates(g CubeList) CubeList {
	var o CubeList
	for _, c := range g {
		dup := false
		for _, k := range o {
			if sameCube(k, c) {
				dup = true
				break
			}
		}
		if !dup {
			o = append(o, c)
		}
	}
	return o
}

func sameCube(a, b *Cube) bool {
	if len(a.DimCoords) != len(b.DimCoords) || len(a.AuxCoords) != len(b.AuxCoords) ||
		len(a.Data.Elements) != len(b.Data.Elements) {
		return false
	}
	for i := range a.DimCoords {
		if !sameCoord(a.DimCoords[i], b.DimCoords[i]) {
			return false
		}
	}
	for i := range a.AuxCoords {
		if !sameCoord(a.AuxCoords[i].Coord, b.AuxCoords[i].Coord) || !sameInts(a.AuxCoords[i].Dims, b.AuxCoords[i].Dims) {
			return false
		}
	}
	for i, v := range a.Data.Elements {
		w := b.Data.Elements[i]
		if v != w && !(math.IsNaN(v) && math.IsNaN(w)) {
			return false
		}
	}
	return true
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// timeLeading returns a copy of c with time as its first dimension,
// promoting a scalar time coordinate if necessary. It returns nil if
// that isn't possible.
func timeLeading(c *Cube) *Cube {
	if c.CoordDim(TimeCoord) == 0 {
		return c.Copy()
	}
	if c.CoordDim(TimeCoord) > 0 {
		return nil
	}
	t := c.auxCoord(TimeCoord)
	if t == nil || len(t.Dims) != 0 || len(t.Points) != 1 {
		return nil
	}
	o := c.Copy()
	o.removeAuxCoord(TimeCoord)
	o.DimCoords = append([]*Coord{t.Coord.Copy()}, o.DimCoords...)
	for _, a := range o.AuxCoords {
		for i := range a.Dims {
			a.Dims[i]++
		}
	}
	o.Data = newDense(o.Data.Elements, append([]int{1}, o.Data.Shape...)...)
	return o
}

// newDense returns an array with the given shape holding a copy of
// elements. Arrays must be created by the sparse package so that their
// size and bounds checks are set up.
func newDense(elements []float64, shape ...int) *sparse.DenseArray {
	a := sparse.ZerosDense(shape...)
	copy(a.Elements, elements)
	return a
}

// spaceCoords returns the dimension coordinates of c other than time.
func spaceCoords(c *Cube) []*Coord {
	var o []*Coord
	for _, d := range c.DimCoords {
		if d.Name != TimeCoord {
			o = append(o, d)
		}
	}
	return o
}

func sameSpace(a, b *Cube) bool {
	sa, sb := spaceCoords(a), spaceCoords(b)
	if len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if !sa[i].Equal(sb[i]) {
			return false
		}
	}
	return true
}

// concatenateTime joins cubes along their time dimension. Scalar
// coordinates that vary among the cubes, such as the forecast period,
// become auxiliary coordinates along time.
func concatenateTime(g CubeList) (*Cube, error) {
	parts := make(CubeList, len(g))
	for i, c := range g {
		if parts[i] = timeLeading(c); parts[i] == nil {
			return nil, fmt.Errorf("umpost: cube %s can't be merged along time", c.Name())
		}
	}
	sort.SliceStable(parts, func(i, j int) bool {
		return parts[i].DimCoords[0].Points[0] < parts[j].DimCoords[0].Points[0]
	})
	o := parts[0].Copy()
	t := o.DimCoords[0]
	t.Points = nil
	t.Bounds = nil
	withBounds := true
	var elements []float64
	for _, p := range parts {
		pt := p.DimCoords[0]
		t.Points = append(t.Points, pt.Points...)
		if pt.HasBounds() {
			t.Bounds = append(t.Bounds, pt.Bounds...)
		} else {
			withBounds = false
		}
		elements = append(elements, p.Data.Elements...)
	}
	if !withBounds {
		t.Bounds = nil
	}
	if !strictlyIncreasing(t.Points) {
		return nil, fmt.Errorf("umpost: merging %s: time points %v are not strictly increasing", o.Name(), t.Points)
	}
	shape := append([]int{len(t.Points)}, o.Data.Shape[1:]...)
	o.Data = newDense(elements, shape...)

	var aux []*AuxCoord
	for _, a := range o.AuxCoords {
		switch {
		case len(a.Dims) == 0:
			points, varies := scalarSeries(parts, a.Name)
			if points == nil {
				continue // missing from some of the cubes
			}
			if varies {
				a = &AuxCoord{Coord: &Coord{Name: a.Name, Units: a.Units, Points: points}, Dims: []int{0}}
			}
		case len(a.Dims) == 1 && a.Dims[0] == 0:
			points := auxSeries(parts, a.Name)
			if points == nil {
				continue
			}
			a = &AuxCoord{Coord: &Coord{Name: a.Name, Units: a.Units, Points: points}, Dims: []int{0}}
		default:
			if spansDim(a, 0) {
				continue
			}
		}
		aux = append(aux, a)
	}
	o.AuxCoords = aux
	if err := o.check(); err != nil {
		return nil, err
	}
	return o, nil
}

func spansDim(a *AuxCoord, d int) bool {
	for _, ad := range a.Dims {
		if ad == d {
			return true
		}
	}
	return false
}

// scalarSeries returns one value per time point of the scalar
// coordinate name, and whether the values vary.
func scalarSeries(parts CubeList, name string) ([]float64, bool) {
	var o []float64
	varies := false
	for _, p := range parts {
		a := p.auxCoord(name)
		if a == nil || len(a.Dims) != 0 || len(a.Points) != 1 {
			return nil, false
		}
		for range p.DimCoords[0].Points {
			o = append(o, a.Points[0])
		}
		if a.Points[0] != o[0] {
			varies = true
		}
	}
	return o, varies
}

// auxSeries concatenates the auxiliary coordinate name, which spans
// only the time dimension, across parts.
func auxSeries(parts CubeList, name string) []float64 {
	var o []float64
	for _, p := range parts {
		a := p.auxCoord(name)
		if a == nil || len(a.Dims) != 1 || a.Dims[0] != 0 {
			return nil
		}
		o = append(o, a.Points...)
	}
	return o
}
