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
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/sirupsen/logrus"
)

func TestGlobalMean(t *testing.T) {
	lat, lon := latCoord(-45, 45), lonCoord(0, 90, 180, 270)
	tests := []struct {
		name string
		f    func(y, x float64) float64
		want float64
	}{
		{name: "constant", f: func(y, x float64) float64 { return 5 }, want: 5},
		{name: "antisymmetric", f: func(y, x float64) float64 { return y }, want: 0},
		{name: "hemispheres", f: func(y, x float64) float64 {
			if y > 0 {
				return 1
			}
			return 3
		}, want: 2},
		{name: "nan", f: func(y, x float64) float64 {
			if x == 0 {
				return math.NaN()
			}
			return 7
		}, want: 7},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m, err := GlobalMean(surfaceCube("x", "1", lat, lon, test.f), 6371000)
			if err != nil {
				t.Fatal(err)
			}
			if absDifferent(m, test.want) {
				t.Errorf("%g != %g", m, test.want)
			}
		})
	}

	// Polar cells are smaller than equatorial ones.
	c := surfaceCube("x", "1", latCoord(-60, 0, 60), lon, func(y, x float64) float64 {
		if y == 0 {
			return 1
		}
		return 0
	})
	if m, err := GlobalMean(c, 1); err != nil || m <= 1./3 {
		t.Errorf("mean %g should be weighted toward the equator (%v)", m, err)
	}

	// Only the first level is used.
	l := levelCube("x", "1", []float64{1, 2}, lat, lon, func(z, y, x float64) float64 { return z })
	if m, err := GlobalMean(l, 1); err != nil || absDifferent(m, 1) {
		t.Errorf("level mean %g (%v)", m, err)
	}

	if _, err := GlobalMean(surfaceCube("x", "1", lat, lon, func(y, x float64) float64 { return math.NaN() }), 1); err == nil {
		t.Error("all-missing cube should fail")
	}
	if _, err := GlobalMean(surfaceCube("x", "1", latCoord(0), lon, func(y, x float64) float64 { return 1 }), 1); err == nil {
		t.Error("single latitude without bounds should fail")
	}
}

func TestRun(t *testing.T) {
	dir, err := ioutil.TempDir("", "umpost")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "umglaa.pb000000000_00")
	f, err := os.Create(input)
	if err != nil {
		t.Fatal(err)
	}
	if err = Write(f, processInput(), nil); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err = NewRun(nil, "earth_base", "earth", DefaultPlanets(), DefaultTimestep, nil); err == nil {
		t.Error("run without files should fail")
	}
	if _, err = NewRun([]string{input}, "mars_base", "mars", DefaultPlanets(), DefaultTimestep, nil); err == nil {
		t.Error("run on an unknown planet should fail")
	}

	r, err := NewRun([]string{input}, "earth_base", "earth", DefaultPlanets(), DefaultTimestep, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Cubes) != 10 {
		t.Fatalf("loaded %d cubes: %v", len(r.Cubes), r.Cubes.Names())
	}
	if err = r.ProcData(Processor(DefaultReferenceCube)); err != nil {
		t.Fatal(err)
	}
	if len(r.Cubes) != 8 {
		t.Fatalf("processed into %d cubes: %v", len(r.Cubes), r.Cubes.Names())
	}
	err = r.Derive(map[string]string{"toa_double": "toa_incoming_shortwave_flux * 2"},
		map[string]string{"toa_double": "W m-2"})
	if err != nil {
		t.Fatal(err)
	}

	summary := r.Summary()
	for name, want := range map[string]float64{
		"specific_humidity":   10,
		"surface_temperature": 135,
		"dT":                  1,
		"toa_double":          2722,
	} {
		if absDifferent(summary[name], want) {
			t.Errorf("%s: global mean %g != %g", name, summary[name], want)
		}
	}

	out := filepath.Join(dir, "earth_base.nc")
	if err = r.Write(out); err != nil {
		t.Fatal(err)
	}
	cubes, err := LoadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cubes.Names(), r.Cubes.Names()) {
		t.Errorf("saved %v but processed %v", cubes.Names(), r.Cubes.Names())
	}

	of, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer of.Close()
	ff, err := cdf.Open(of)
	if err != nil {
		t.Fatal(err)
	}
	for a, want := range map[string]interface{}{
		"name":           "earth_base",
		"planet":         "earth",
		"timestep":       []float64{DefaultTimestep},
		"planet_radius":  []float64{6371000},
		"created_with":   "umpost v" + Version,
		"source_hash":    r.Attributes()["source_hash"],
		"planet_gravity": []float64{9.80665},
	} {
		if have := ff.Header.GetAttribute("", a); !reflect.DeepEqual(have, want) {
			t.Errorf("attribute %s: %#v != %#v", a, have, want)
		}
	}
}

func TestRunAttributes(t *testing.T) {
	p := DefaultPlanets()
	r1 := &Run{Name: "earth_base", PlanetKey: "earth", Planet: p["earth"], Timestep: 1200,
		Files: []string{"/a/umglaa.pb000000000_00"}}
	r2 := &Run{Name: "earth_base", PlanetKey: "earth", Planet: p["earth"], Timestep: 1200,
		Files: []string{"/b/umglaa.pb000000000_00"}}
	r3 := &Run{Name: "earth_base", PlanetKey: "earth", Planet: p["earth"], Timestep: 600,
		Files: []string{"/a/umglaa.pb000000000_00"}}
	if r1.Attributes()["source_hash"] != r2.Attributes()["source_hash"] {
		t.Error("hash shouldn't depend on the input directory")
	}
	if r1.Attributes()["source_hash"] == r3.Attributes()["source_hash"] {
		t.Error("hash should depend on the timestep")
	}

	withOptions := func(opts map[string]string, planet *Planet) *Run {
		return &Run{Name: "earth_base", PlanetKey: "earth", Planet: planet, Timestep: 1200,
			Files: []string{"/a/umglaa.pb000000000_00"}, Options: opts}
	}
	base := withOptions(map[string]string{"RefCube": "specific_humidity"}, p["earth"]).Attributes()["source_hash"]
	if h := withOptions(map[string]string{"RefCube": "specific_humidity"}, p["earth"]).Attributes()["source_hash"]; h != base {
		t.Error("hash should be repeatable")
	}
	if h := withOptions(map[string]string{"RefCube": "air_pressure"}, p["earth"]).Attributes()["source_hash"]; h == base {
		t.Error("hash should depend on the reference cube")
	}
	big := *p["earth"]
	big.Radius *= 2
	if h := withOptions(map[string]string{"RefCube": "specific_humidity"}, &big).Attributes()["source_hash"]; h == base {
		t.Error("hash should depend on the planet constants")
	}

	// Derived variables are part of the hash.
	r4 := withOptions(map[string]string{}, p["earth"])
	log := logrus.New()
	log.Out = ioutil.Discard
	r4.Log = log
	lat, lon := latCoord(-45, 45), lonCoord(0, 90, 180, 270)
	r4.Cubes = CubeList{surfaceCube("surface_temperature", "K", lat, lon, func(y, x float64) float64 { return 280 })}
	before := r4.Attributes()["source_hash"]
	if err := r4.Derive(map[string]string{"ts2": "surface_temperature * 2"}, nil); err != nil {
		t.Fatal(err)
	}
	if r4.Attributes()["source_hash"] == before {
		t.Error("hash should depend on derived variables")
	}

	if d := r1.Attributes()["planet_description"]; d != "Earth" {
		t.Errorf("planet_description = %v", d)
	}
}
