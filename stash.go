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
	"regexp"
	"strconv"
)

// Attribute keys that can hold a STASH code.
const (
	stashAttr       = "STASH"
	stashSourceAttr = "um_stash_source"
)

var stashRegexp = regexp.MustCompile(`^m(\d{2})s(\d{2})i(\d{3})$`)

// STASH identifies a UM diagnostic by model, section and item number.
type STASH struct {
	Model, Section, Item int
}

// ParseSTASH parses a STASH code in the form "m01s30i181".
func ParseSTASH(s string) (STASH, error) {
	m := stashRegexp.FindStringSubmatch(s)
	if m == nil {
		return STASH{}, fmt.Errorf("umpost: invalid STASH code %q", s)
	}
	// The regular expression only matches digits.
	model, _ := strconv.Atoi(m[1])
	section, _ := strconv.Atoi(m[2])
	item, _ := strconv.Atoi(m[3])
	return STASH{Model: model, Section: section, Item: item}, nil
}

func (s STASH) String() string {
	return fmt.Sprintf("m%02ds%02di%03d", s.Model, s.Section, s.Item)
}

// STASH returns the STASH code of c.
func (c *Cube) STASH() (STASH, error) {
	for _, k := range []string{stashAttr, stashSourceAttr} {
		if v, ok := c.Attributes[k]; ok {
			return ParseSTASH(v)
		}
	}
	return STASH{}, fmt.Errorf("umpost: cube %s has no STASH code", c.Name())
}
