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
	"sort"

	"github.com/tealeg/xlsx"
)

// Sheet names in summary spreadsheets.
const (
	MeansSheet      = "global_means"
	AttributesSheet = "attributes"
)

// WriteSummary writes a spreadsheet to w with the global mean of each
// cube of r (see Summary) in one sheet and the global attributes of r
// in another. Cubes without a global mean are listed with an empty
// mean cell.
func (r *Run) WriteSummary(w io.Writer) error {
	means := r.Summary()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(MeansSheet)
	if err != nil {
		return fmt.Errorf("umpost: creating summary: %v", err)
	}
	addRow(sheet, "name", "units", "mean")
	for _, c := range r.Cubes {
		row := sheet.AddRow()
		row.AddCell().SetString(c.Name())
		row.AddCell().SetString(c.Units)
		cell := row.AddCell()
		if m, ok := means[c.Name()]; ok {
			cell.SetFloat(m)
		}
	}

	sheet, err = f.AddSheet(AttributesSheet)
	if err != nil {
		return fmt.Errorf("umpost: creating summary: %v", err)
	}
	attrs := r.Attributes()
	names := make([]string, 0, len(attrs))
	for n := range attrs {
		names = append(names, n)
	}
	sort.Strings(names)
	addRow(sheet, "attribute", "value")
	for _, n := range names {
		row := sheet.AddRow()
		row.AddCell().SetString(n)
		cell := row.AddCell()
		switch v := attrs[n].(type) {
		case float64:
			cell.SetFloat(v)
		case string:
			cell.SetString(v)
		default:
			cell.SetString(fmt.Sprint(v))
		}
	}
	return f.Write(w)
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
