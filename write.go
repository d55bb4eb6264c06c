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
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/cdf"
)

// Conventions is the CF version that output files follow.
const Conventions = "CF-1.7"

const boundsDim = "bnds"

// Coordinates that are labeled with a CF standard name rather than a
// long name in output files.
var standardCoordNames = map[string]string{
	TimeCoord:    "T",
	LatCoord:     "Y",
	LonCoord:     "X",
	HybridHeight: "Z",
}

// ncfAttr is a variable or global attribute.
type ncfAttr struct {
	name  string
	value interface{}
}

// ncfVar is a variable to be written to an output file.
type ncfVar struct {
	name    string
	dims    []string
	attrs   []ncfAttr
	values  []float64
	float32 bool
}

type writtenCoord struct {
	coord *Coord
	dims  []string
	name  string
}

// ncfLayout maps cubes to the dimensions and variables of a NetCDF
// file, sharing coordinates among cubes where possible.
type ncfLayout struct {
	dims    []string
	lengths []int
	vars    []*ncfVar
	coords  []writtenCoord
	taken   map[string]bool
}

func newNCFLayout() *ncfLayout {
	return &ncfLayout{taken: map[string]bool{boundsDim: true}}
}

// uniqueName returns name, or name with the first free suffix
// "_0", "_1", ... if name is already used.
func (l *ncfLayout) uniqueName(name string) string {
	name = strings.Replace(name, " ", "_", -1)
	n := name
	for i := 0; l.taken[n]; i++ {
		n = name + "_" + strconv.Itoa(i)
	}
	l.taken[n] = true
	return n
}

func sameCoord(a, b *Coord) bool {
	if !a.Equal(b) || a.Units != b.Units || a.HasBounds() != b.HasBounds() {
		return false
	}
	for i := range a.Bounds {
		if a.Bounds[i] != b.Bounds[i] {
			return false
		}
	}
	return true
}

func sameDims(a, b []string) bool {
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

// coordVar adds a variable holding coordinate c with the given
// dimensions, or returns the name of an identical one already added.
// If dims is nil, c is a dimension coordinate and a new dimension is
// created for it.
func (l *ncfLayout) coordVar(c *Coord, dims []string) string {
	isDim := dims == nil
	for _, w := range l.coords {
		if sameCoord(w.coord, c) && (isDim && len(w.dims) == 1 && w.dims[0] == w.name || !isDim && sameDims(w.dims, dims)) {
			return w.name
		}
	}
	name := l.uniqueName(c.Name)
	if isDim {
		dims = []string{name}
		l.dims = append(l.dims, name)
		l.lengths = append(l.lengths, len(c.Points))
	}
	v := &ncfVar{name: name, dims: dims, values: c.Points}
	if axis, ok := standardCoordNames[c.Name]; ok {
		v.attrs = append(v.attrs, ncfAttr{"standard_name", c.Name}, ncfAttr{"axis", axis})
	} else {
		v.attrs = append(v.attrs, ncfAttr{"long_name", c.Name})
	}
	if c.Units != "" {
		v.attrs = append(v.attrs, ncfAttr{"units", c.Units})
	}
	l.vars = append(l.vars, v)
	if c.HasBounds() {
		b := &ncfVar{
			name:   l.uniqueName(name + "_bnds"),
			dims:   append(append([]string(nil), dims...), boundsDim),
			values: make([]float64, 0, 2*len(c.Bounds)),
		}
		for _, bb := range c.Bounds {
			b.values = append(b.values, bb[0], bb[1])
		}
		v.attrs = append(v.attrs, ncfAttr{"bounds", b.name})
		l.vars = append(l.vars, b)
	}
	l.coords = append(l.coords, writtenCoord{coord: c, dims: dims, name: name})
	return name
}

// add adds cube c and its coordinates to the layout.
func (l *ncfLayout) add(c *Cube) error {
	if err := c.check(); err != nil {
		return err
	}
	dims := make([]string, len(c.DimCoords))
	for i, d := range c.DimCoords {
		dims[i] = l.coordVar(d, nil)
	}
	var coordinates []string
	for _, a := range c.AuxCoords {
		ad := make([]string, len(a.Dims))
		for i, d := range a.Dims {
			ad[i] = dims[d]
		}
		coordinates = append(coordinates, l.coordVar(a.Coord, ad))
	}
	name := c.VarName
	if name == "" {
		name = c.Name()
	}
	v := &ncfVar{
		name:    l.uniqueName(name),
		dims:    dims,
		values:  c.Data.Elements,
		float32: true,
	}
	if c.StandardName != "" {
		v.attrs = append(v.attrs, ncfAttr{"standard_name", c.StandardName})
	}
	if c.LongName != "" {
		v.attrs = append(v.attrs, ncfAttr{"long_name", c.LongName})
	}
	if c.Units != "" {
		v.attrs = append(v.attrs, ncfAttr{"units", c.Units})
	}
	if s, err := c.STASH(); err == nil {
		v.attrs = append(v.attrs, ncfAttr{stashSourceAttr, s.String()})
	}
	if len(c.CellMethods) > 0 {
		v.attrs = append(v.attrs, ncfAttr{"cell_methods", formatCellMethods(c.CellMethods)})
	}
	keys := make([]string, 0, len(c.Attributes))
	for k := range c.Attributes {
		if k != stashAttr && k != stashSourceAttr && !reservedAttrs[k] && c.Attributes[k] != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		v.attrs = append(v.attrs, ncfAttr{k, c.Attributes[k]})
	}
	if len(coordinates) > 0 {
		v.attrs = append(v.attrs, ncfAttr{"coordinates", strings.Join(coordinates, " ")})
	}
	l.vars = append(l.vars, v)
	return nil
}

// attrValue converts a global attribute value to a type that can be
// stored in a NetCDF file.
func attrValue(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return []float64{t}, nil
	case float32:
		return []float32{t}, nil
	case int:
		return []int32{int32(t)}, nil
	case int32:
		return []int32{t}, nil
	case []float64, []float32, []int32:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	}
	return nil, fmt.Errorf("umpost: unsupported attribute type %T", v)
}

// Write writes cubes to w as a NetCDF file, along with the given
// global attributes. Coordinates that are the same for several cubes
// are only written once.
func Write(w *os.File, cubes CubeList, globalAttrs map[string]interface{}) error {
	l := newNCFLayout()
	for _, c := range cubes {
		if err := l.add(c); err != nil {
			return fmt.Errorf("umpost: writing netcdf file: %v", err)
		}
	}
	dims, lengths := l.dims, l.lengths
	for _, v := range l.vars {
		if len(v.dims) > 0 && v.dims[len(v.dims)-1] == boundsDim {
			dims = append(dims, boundsDim)
			lengths = append(lengths, 2)
			break
		}
	}
	h := cdf.NewHeader(dims, lengths)
	h.AddAttribute("", "Conventions", Conventions)

	// Sort the names so they write in the same order every time.
	names := make([]string, 0, len(globalAttrs))
	for n := range globalAttrs {
		if n != "Conventions" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	for _, n := range names {
		val, err := attrValue(globalAttrs[n])
		if err != nil {
			return fmt.Errorf("%v: global attribute %s", err, n)
		}
		h.AddAttribute("", n, val)
	}

	for _, v := range l.vars {
		if v.float32 {
			h.AddVariable(v.name, v.dims, []float32{0})
		} else {
			h.AddVariable(v.name, v.dims, []float64{0})
		}
		for _, a := range v.attrs {
			h.AddAttribute(v.name, a.name, a.value)
		}
	}
	h.Define()

	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return err
	}
	for _, v := range l.vars {
		if err = writeNCF(f, v); err != nil {
			return fmt.Errorf("umpost: writing variable %s to netcdf file: %v", v.name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

func writeNCF(f *cdf.File, v *ncfVar) error {
	end := f.Header.Lengths(v.name)
	// Check that data matches dimensions.
	n := 1
	for _, l := range end {
		n *= l
	}
	if len(v.values) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(v.values))
	}
	start := make([]int, len(end))
	w := f.Writer(v.name, start, end)
	var data interface{} = v.values
	if v.float32 {
		data32 := make([]float32, len(v.values))
		for i, e := range v.values {
			data32[i] = float32(e)
		}
		data = data32
	}
	nw, err := w.Write(data)
	if err == io.EOF && nw == n {
		// Scalar variables end exactly where the data does.
		return nil
	}
	return err
}
