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
along with UMPost.  If not, see <http://www.gnu.org/licenses/>.*/

package hash

import (
	"math"
	"testing"
)

type files struct {
	Name  string
	Paths []string
	Step  float64
}

func TestHash(t *testing.T) {
	a := files{Name: "earth_base", Paths: []string{"umglaa.pb000000000_00"}, Step: 1200}
	b := files{Name: "earth_base", Paths: []string{"umglaa.pb000000000_00"}, Step: 1200}
	c := files{Name: "earth_base", Paths: []string{"umglaa.pc000000000_00"}, Step: 1200}
	if Hash(a) != Hash(b) {
		t.Errorf("equal objects have different hashes: %s != %s", Hash(a), Hash(b))
	}
	if Hash(a) == Hash(c) {
		t.Errorf("different objects have the same hash %s", Hash(a))
	}
	if len(Hash(a)) != 32 {
		t.Errorf("hash %s should have 32 characters", Hash(a))
	}
	if Hash(a, c) == Hash(c, a) {
		t.Error("hash should depend on the order of the objects")
	}
}

func TestHashNaN(t *testing.T) {
	a := files{Name: "x", Step: math.NaN()}
	if Hash(a) != Hash(a) {
		t.Error("hash with NaN is not deterministic")
	}
}
