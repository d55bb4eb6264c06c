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

// Constraint is a function that decides whether a cube should be
// selected.
type Constraint func(*Cube) bool

// NameConstraint selects cubes whose name is any of names.
func NameConstraint(names ...string) Constraint {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(c *Cube) bool { return set[c.Name()] }
}

// MeanConstraint selects cubes that have been averaged, i.e. that have
// a "mean" cell method.
func MeanConstraint(c *Cube) bool {
	for _, m := range c.CellMethods {
		if m.Method == "mean" {
			return true
		}
	}
	return false
}

// STASHItemConstraint selects cubes whose STASH item number is any
// of items, regardless of the STASH section. Cubes without a valid
// STASH code are not selected.
func STASHItemConstraint(items ...int) Constraint {
	return func(c *Cube) bool {
		s, err := c.STASH()
		if err != nil {
			return false
		}
		for _, i := range items {
			if s.Item == i {
				return true
			}
		}
		return false
	}
}
