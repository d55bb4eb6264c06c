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
	"regexp"
	"strconv"
	"strings"

	"github.com/ctessum/unit"
)

// unitSymbol is a scale factor to SI base units plus the dimensions of
// a unit symbol.
type unitSymbol struct {
	scale float64
	dims  unit.Dimensions
}

var (
	angle = unit.Dimensions{unit.AngleDim: 1}
	force = unit.Dimensions{unit.MassDim: 1, unit.LengthDim: 1, unit.TimeDim: -2}
)

// unitSymbols are the unit symbols that appear in UM and CF metadata.
var unitSymbols = map[string]unitSymbol{
	"1":             {1, unit.Dimless},
	"percent":       {0.01, unit.Dimless},
	"%":             {0.01, unit.Dimless},
	"m":             {1, unit.Meter},
	"km":            {1e3, unit.Meter},
	"cm":            {1e-2, unit.Meter},
	"mm":            {1e-3, unit.Meter},
	"s":             {1, unit.Second},
	"min":           {60, unit.Second},
	"h":             {3600, unit.Second},
	"hour":          {3600, unit.Second},
	"hours":         {3600, unit.Second},
	"day":           {86400, unit.Second},
	"days":          {86400, unit.Second},
	"kg":            {1, unit.Kilogram},
	"g":             {1e-3, unit.Kilogram},
	"K":             {1, unit.Kelvin},
	"Pa":            {1, unit.Pascal},
	"hPa":           {100, unit.Pascal},
	"W":             {1, unit.Watt},
	"J":             {1, unit.Joule},
	"N":             {1, force},
	"rad":           {1, angle},
	"degree":        {math.Pi / 180, angle},
	"degrees":       {math.Pi / 180, angle},
	"degrees_north": {math.Pi / 180, angle},
	"degrees_east":  {math.Pi / 180, angle},
}

var unitTermRegexp = regexp.MustCompile(`^([A-Za-z_%]+|1)(?:\^|\*\*)?([+-]?\d+)?$`)

// ParseUnit parses a unit string in the UDUNITS style used by UM output,
// for example "m s^-1", "kg m-2 s-1", "W/m2" or "0.00083 K s^-1".
// The value of the returned unit is the factor that converts a
// quantity in the parsed unit to SI base units.
func ParseUnit(s string) (*unit.Unit, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("umpost: empty unit string")
	}
	parts := strings.Split(s, "/")
	if len(parts) > 2 {
		return nil, fmt.Errorf("umpost: unit %q has more than one '/'", s)
	}
	scale := 1.
	dims := make(unit.Dimensions)
	for pi, part := range parts {
		sign := 1
		if pi == 1 {
			sign = -1
		}
		fields := strings.Fields(part)
		if len(fields) == 0 {
			return nil, fmt.Errorf("umpost: invalid unit %q", s)
		}
		for _, f := range fields {
			if v, err := strconv.ParseFloat(f, 64); err == nil {
				if sign < 0 {
					v = 1 / v
				}
				scale *= v
				continue
			}
			for _, term := range strings.Split(f, ".") {
				if err := addUnitTerm(term, sign, &scale, dims); err != nil {
					return nil, fmt.Errorf("umpost: unit %q: %v", s, err)
				}
			}
		}
	}
	return unit.New(scale, dims), nil
}

// addUnitTerm parses a single term such as "m", "s-1" or "m^2",
// raised to the power sign, and accumulates it into scale and dims.
func addUnitTerm(term string, sign int, scale *float64, dims unit.Dimensions) error {
	m := unitTermRegexp.FindStringSubmatch(term)
	if m == nil {
		return fmt.Errorf("invalid term %q", term)
	}
	sym, ok := unitSymbols[m[1]]
	if !ok {
		return fmt.Errorf("unknown symbol %q", m[1])
	}
	exp := 1
	if m[2] != "" {
		// The regular expression only matches integers.
		exp, _ = strconv.Atoi(m[2])
	}
	exp *= sign
	*scale *= math.Pow(sym.scale, float64(exp))
	for d, p := range sym.dims {
		dims[d] += p * exp
	}
	return nil
}

// ConversionFactor returns the factor that converts values in units
// from to units to.
func ConversionFactor(from, to string) (float64, error) {
	uf, err := ParseUnit(from)
	if err != nil {
		return math.NaN(), err
	}
	ut, err := ParseUnit(to)
	if err != nil {
		return math.NaN(), err
	}
	if !unit.DimensionsMatch(uf, ut) {
		return math.NaN(), fmt.Errorf("umpost: cannot convert %q (%v) to %q (%v)",
			from, uf.Dimensions(), to, ut.Dimensions())
	}
	return uf.Value() / ut.Value(), nil
}

// ConvertUnits converts the data in c to the given units.
func (c *Cube) ConvertUnits(to string) error {
	f, err := ConversionFactor(c.Units, to)
	if err != nil {
		return fmt.Errorf("umpost: converting units of %s: %v", c.Name(), err)
	}
	if f != 1 {
		c.Data.Scale(f)
	}
	c.Units = to
	return nil
}

// SetUnits changes the units label of c without changing the data.
func (c *Cube) SetUnits(u string) error {
	if _, err := ParseUnit(u); err != nil {
		return fmt.Errorf("umpost: setting units of %s: %v", c.Name(), err)
	}
	c.Units = u
	return nil
}
