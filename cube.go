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

// Package umpost post-processes global Unified Model (UM) output:
// it loads a time series of NetCDF output files, extracts a fixed set
// of fields, puts them on a common vertical and horizontal grid,
// converts units and writes a single consolidated NetCDF file.
package umpost

import (
	"fmt"
	"strings"

	"github.com/ctessum/sparse"
)

// Names of the coordinates that the UM writes.
const (
	TimeCoord       = "time"
	LatCoord        = "latitude"
	LonCoord        = "longitude"
	LevelHeight     = "level_height"
	ModelLevel      = "model_level_number"
	HybridHeight    = "atmosphere_hybrid_height_coordinate"
	unknownCubeName = "unknown"
)

// Coord is a labeled coordinate along one or more data dimensions.
type Coord struct {
	Name   string
	Units  string
	Points []float64

	// Bounds holds the lower and upper cell edges for each point.
	// It is nil if the coordinate has no bounds.
	Bounds [][2]float64

	// Circular is true for longitudes that wrap around the globe.
	Circular bool
}

// Copy returns a deep copy of c.
func (c *Coord) Copy() *Coord {
	o := &Coord{
		Name:     c.Name,
		Units:    c.Units,
		Points:   append([]float64(nil), c.Points...),
		Circular: c.Circular,
	}
	if c.Bounds != nil {
		o.Bounds = append([][2]float64(nil), c.Bounds...)
	}
	return o
}

// HasBounds reports whether c has cell bounds.
func (c *Coord) HasBounds() bool { return len(c.Bounds) == len(c.Points) && len(c.Bounds) > 0 }

// Equal reports whether c and o have the same name and points.
func (c *Coord) Equal(o *Coord) bool {
	if c.Name != o.Name || len(c.Points) != len(o.Points) {
		return false
	}
	for i, p := range c.Points {
		if p != o.Points[i] {
			return false
		}
	}
	return true
}

// AuxCoord is a coordinate that spans the listed data dimensions but
// does not label any of them.
type AuxCoord struct {
	*Coord
	Dims []int
}

// CellMethod describes a statistical operation that has been applied
// over one or more coordinates, e.g. "time: mean".
type CellMethod struct {
	Method string
	Coords []string

	// Qualifiers holds "where", "over" and "within" clauses in the
	// order they appear, e.g. "where land".
	Qualifiers []string

	// Comment holds anything in parentheses after the method,
	// e.g. "interval: 1 hour".
	Comment string
}

// cellMethodKeywords start a clause that qualifies the preceding
// method and take one argument.
var cellMethodKeywords = map[string]bool{"where": true, "over": true, "within": true}

func (m CellMethod) String() string {
	s := strings.Join(m.Coords, ": ") + ": " + m.Method
	for _, q := range m.Qualifiers {
		s += " " + q
	}
	if m.Comment != "" {
		s += " (" + m.Comment + ")"
	}
	return s
}

// ParseCellMethods parses a CF cell_methods attribute such as
// "time: mean (interval: 1 hour) area: sum".
func ParseCellMethods(s string) ([]CellMethod, error) {
	var out []CellMethod
	var names []string
	fields := tokenizeCellMethods(s)
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case strings.HasPrefix(f, "("):
			if len(out) == 0 {
				return nil, fmt.Errorf("umpost: cell_methods %q: comment before method", s)
			}
			out[len(out)-1].Comment = strings.TrimSuffix(strings.TrimPrefix(f, "("), ")")
		case strings.HasSuffix(f, ":"):
			names = append(names, strings.TrimSuffix(f, ":"))
		case cellMethodKeywords[f] && len(names) == 0 && len(out) > 0:
			if i+1 >= len(fields) || strings.HasSuffix(fields[i+1], ":") || strings.HasPrefix(fields[i+1], "(") {
				return nil, fmt.Errorf("umpost: cell_methods %q: %q needs an argument", s, f)
			}
			last := &out[len(out)-1]
			last.Qualifiers = append(last.Qualifiers, f+" "+fields[i+1])
			i++
		default:
			if len(names) == 0 {
				return nil, fmt.Errorf("umpost: cell_methods %q: method %q has no coordinate", s, f)
			}
			out = append(out, CellMethod{Method: f, Coords: names})
			names = nil
		}
	}
	if len(names) != 0 {
		return nil, fmt.Errorf("umpost: cell_methods %q: missing method", s)
	}
	return out, nil
}

// tokenizeCellMethods splits on spaces but keeps parenthesized
// comments together.
func tokenizeCellMethods(s string) []string {
	var out []string
	var cur strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			depth--
			cur.WriteRune(r)
		case r == ' ' && depth == 0:
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func formatCellMethods(m []CellMethod) string {
	s := make([]string, len(m))
	for i, mm := range m {
		s[i] = mm.String()
	}
	return strings.Join(s, " ")
}

// Cube is a multi-dimensional field with its coordinates and metadata.
type Cube struct {
	StandardName string
	LongName     string
	VarName      string
	Units        string

	// Attributes holds string-valued metadata such as the STASH code.
	Attributes map[string]string

	CellMethods []CellMethod

	// DimCoords holds one coordinate per data axis, in order.
	DimCoords []*Coord
	AuxCoords []*AuxCoord

	Data *sparse.DenseArray
}

// Name returns the standard name of the cube, falling back to the
// long name, variable name, and finally "unknown".
func (c *Cube) Name() string {
	switch {
	case c.StandardName != "":
		return c.StandardName
	case c.LongName != "":
		return c.LongName
	case c.VarName != "":
		return c.VarName
	}
	return unknownCubeName
}

func (c *Cube) String() string {
	dims := make([]string, len(c.DimCoords))
	for i, d := range c.DimCoords {
		dims[i] = fmt.Sprintf("%s: %d", d.Name, len(d.Points))
	}
	return fmt.Sprintf("%s / (%s) (%s)", c.Name(), c.Units, strings.Join(dims, "; "))
}

// Copy returns a deep copy of c.
func (c *Cube) Copy() *Cube {
	o := &Cube{
		StandardName: c.StandardName,
		LongName:     c.LongName,
		VarName:      c.VarName,
		Units:        c.Units,
		Attributes:   make(map[string]string, len(c.Attributes)),
		CellMethods:  copyCellMethods(c.CellMethods),
		DimCoords:    make([]*Coord, len(c.DimCoords)),
		AuxCoords:    make([]*AuxCoord, len(c.AuxCoords)),
	}
	for k, v := range c.Attributes {
		o.Attributes[k] = v
	}
	for i, d := range c.DimCoords {
		o.DimCoords[i] = d.Copy()
	}
	for i, a := range c.AuxCoords {
		o.AuxCoords[i] = &AuxCoord{Coord: a.Coord.Copy(), Dims: append([]int(nil), a.Dims...)}
	}
	if c.Data != nil {
		o.Data = c.Data.Copy()
	}
	return o
}

func copyCellMethods(m []CellMethod) []CellMethod {
	if m == nil {
		return nil
	}
	o := make([]CellMethod, len(m))
	for i, mm := range m {
		o[i] = mm
		o[i].Coords = append([]string(nil), mm.Coords...)
		o[i].Qualifiers = append([]string(nil), mm.Qualifiers...)
	}
	return o
}

// CoordDim returns the index of the data axis labeled by the dimension
// coordinate with the given name, or -1 if there is none.
func (c *Cube) CoordDim(name string) int {
	for i, d := range c.DimCoords {
		if d.Name == name {
			return i
		}
	}
	return -1
}

// Coord returns the dimension or auxiliary coordinate with the given
// name, or nil if there is none.
func (c *Cube) Coord(name string) *Coord {
	if i := c.CoordDim(name); i >= 0 {
		return c.DimCoords[i]
	}
	if a := c.auxCoord(name); a != nil {
		return a.Coord
	}
	return nil
}

func (c *Cube) auxCoord(name string) *AuxCoord {
	for _, a := range c.AuxCoords {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func (c *Cube) removeAuxCoord(name string) {
	for i, a := range c.AuxCoords {
		if a.Name == name {
			c.AuxCoords = append(c.AuxCoords[:i], c.AuxCoords[i+1:]...)
			return
		}
	}
}

// Shape returns the shape of the data.
func (c *Cube) Shape() []int { return c.Data.Shape }

// check makes sure that the coordinates match the data.
func (c *Cube) check() error {
	if len(c.DimCoords) != len(c.Data.Shape) {
		return fmt.Errorf("umpost: cube %s has %d dimension coordinates but %d-d data",
			c.Name(), len(c.DimCoords), len(c.Data.Shape))
	}
	for i, d := range c.DimCoords {
		if len(d.Points) != c.Data.Shape[i] {
			return fmt.Errorf("umpost: cube %s: coordinate %s has length %d but dimension %d has length %d",
				c.Name(), d.Name, len(d.Points), i, c.Data.Shape[i])
		}
	}
	for _, a := range c.AuxCoords {
		n := 1
		for _, d := range a.Dims {
			if d < 0 || d >= len(c.Data.Shape) {
				return fmt.Errorf("umpost: cube %s: auxiliary coordinate %s spans invalid dimension %d",
					c.Name(), a.Name, d)
			}
			n *= c.Data.Shape[d]
		}
		if len(a.Points) != n {
			return fmt.Errorf("umpost: cube %s: auxiliary coordinate %s has %d points but spans %d",
				c.Name(), a.Name, len(a.Points), n)
		}
	}
	return nil
}

// CubeList is an ordered collection of cubes.
type CubeList []*Cube

// Extract returns the cubes that satisfy all of the given constraints,
// in their original order.
func (cl CubeList) Extract(constraints ...Constraint) CubeList {
	var o CubeList
	for _, c := range cl {
		ok := true
		for _, con := range constraints {
			if !con(c) {
				ok = false
				break
			}
		}
		if ok {
			o = append(o, c)
		}
	}
	return o
}

// ExtractStrict returns the single cube that satisfies all of the given
// constraints. It returns an error if there is not exactly one match.
func (cl CubeList) ExtractStrict(constraints ...Constraint) (*Cube, error) {
	o := cl.Extract(constraints...)
	if len(o) != 1 {
		return nil, fmt.Errorf("umpost: expected exactly one matching cube but found %d", len(o))
	}
	return o[0], nil
}

// Names returns the names of the cubes in cl.
func (cl CubeList) Names() []string {
	o := make([]string, len(cl))
	for i, c := range cl {
		o[i] = c.Name()
	}
	return o
}
