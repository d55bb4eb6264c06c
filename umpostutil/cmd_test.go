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

package umpostutil

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/umpost"
	"github.com/tealeg/xlsx"
)

// writeTestRun writes two days of model output for the run with the
// given label into dataDir.
func writeTestRun(t *testing.T, dataDir, label string) {
	t.Helper()
	dir := filepath.Join(dataDir, label)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		t.Fatal(err)
	}
	mean := []umpost.CellMethod{{Method: "mean", Coords: []string{umpost.TimeCoord}}}
	for i, name := range []string{"umglaa.pb000000000_00", "umglaa.pb000000001_00"} {
		hour := float64(24 * (i + 1))
		lat := &umpost.Coord{Name: umpost.LatCoord, Units: "degrees", Points: []float64{-45, 45}}
		lon := &umpost.Coord{Name: umpost.LonCoord, Units: "degrees", Points: []float64{0, 90, 180, 270}}
		tc := &umpost.AuxCoord{Coord: &umpost.Coord{Name: umpost.TimeCoord, Units: "hours since 1970-01-01 00:00:00", Points: []float64{hour}}}
		q := &umpost.Cube{
			StandardName: "specific_humidity",
			Units:        "kg kg^-1",
			Attributes:   map[string]string{"STASH": "m01s00i010"},
			CellMethods:  mean,
			DimCoords: []*umpost.Coord{
				{Name: umpost.ModelLevel, Units: "1", Points: []float64{1, 2}},
				lat, lon,
			},
			AuxCoords: []*umpost.AuxCoord{
				{Coord: &umpost.Coord{Name: umpost.LevelHeight, Units: "m", Points: []float64{20, 80}}, Dims: []int{0}},
				tc,
			},
			Data: sparse.ZerosDense(2, 2, 4),
		}
		ts := &umpost.Cube{
			StandardName: "surface_temperature",
			Units:        "K",
			Attributes:   map[string]string{"STASH": "m01s00i024"},
			CellMethods:  mean,
			DimCoords:    []*umpost.Coord{lat, lon},
			AuxCoords:    []*umpost.AuxCoord{tc},
			Data:         sparse.ZerosDense(2, 4),
		}
		for j := range q.Data.Elements {
			q.Data.Elements[j] = 0.001
		}
		for j := range ts.Data.Elements {
			ts.Data.Elements[j] = 280 + hour
		}
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if err := umpost.Write(f, umpost.CubeList{q, ts}, nil); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}
}

func TestProc(t *testing.T) {
	dataDir, err := ioutil.TempDir("", "umpost")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dataDir)
	writeTestRun(t, dataDir, "earth_base")

	cfg := InitializeConfig()
	cfg.Set("planet", "earth")
	cfg.Set("run", "base")
	cfg.Set("DataDir", dataDir)
	cfg.Set("DerivedVariables", `{"q_gkg": "specific_humidity * 1000"}`)
	cfg.Set("DerivedUnits", map[string]interface{}{"q_gkg": "g kg^-1"})
	out := bytes.NewBuffer(nil)
	cfg.Root.SetOutput(out)
	cfg.Root.SetArgs([]string{"proc"})
	if err := cfg.Root.Execute(); err != nil {
		t.Fatal(err)
	}

	outFile := filepath.Join(dataDir, "earth_base", "_processed", "earth_base.nc")
	cubes, err := umpost.LoadFile(outFile)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"specific_humidity", "surface_temperature", "q_gkg"}; strings.Join(cubes.Names(), " ") != strings.Join(want, " ") {
		t.Errorf("saved cubes %v != %v", cubes.Names(), want)
	}
	ts, err := cubes.ExtractStrict(umpost.NameConstraint("surface_temperature"))
	if err != nil {
		t.Fatal(err)
	}
	if s := ts.Shape(); len(s) != 3 || s[0] != 2 {
		t.Errorf("surface_temperature should have 2 times but has shape %v", s)
	}
	if lon := ts.Coord(umpost.LonCoord); lon.Points[0] != -180 || !lon.HasBounds() {
		t.Errorf("longitude %+v", lon)
	}

	summary, err := xlsx.OpenFile(filepath.Join(dataDir, "earth_base", "_processed", "earth_base_summary.xlsx"))
	if err != nil {
		t.Fatal(err)
	}
	if rows := summary.Sheet[umpost.MeansSheet].Rows; len(rows) != 4 {
		t.Errorf("summary has %d rows", len(rows))
	}
	if _, err := os.Stat(filepath.Join(dataDir, "earth_base", "_processed", "earth_base_surface_temperature.png")); !os.IsNotExist(err) {
		t.Error("quick-look maps should only be saved when requested")
	}

	log, err := ioutil.ReadFile(filepath.Join(dataDir, "earth_base", "_processed", "earth_base.log"))
	if err != nil {
		t.Fatal(err)
	}
	for _, msg := range []string{"label = earth_base", "Saved to " + outFile} {
		if !strings.Contains(string(log), msg) {
			t.Errorf("log file doesn't contain %q:\n%s", msg, log)
		}
		if !strings.Contains(out.String(), msg) {
			t.Errorf("command output doesn't contain %q:\n%s", msg, out.String())
		}
	}
}

func TestProcStartDay(t *testing.T) {
	dataDir, err := ioutil.TempDir("", "umpost")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dataDir)
	writeTestRun(t, dataDir, "earth_base")
	outDir := filepath.Join(dataDir, "out")

	cfg := InitializeConfig()
	cfg.Root.SetOutput(ioutil.Discard)
	cfg.Set("DataDir", dataDir)
	cfg.Set("OutputDir", outDir)
	cfg.Root.SetArgs([]string{"proc", "--planet=earth", "--run=base", "--startday=1"})
	if err := cfg.Root.Execute(); err != nil {
		t.Fatal(err)
	}
	cubes, err := umpost.LoadFile(filepath.Join(outDir, "earth_base.nc"))
	if err != nil {
		t.Fatal(err)
	}
	ts, err := cubes.ExtractStrict(umpost.NameConstraint("surface_temperature"))
	if err != nil {
		t.Fatal(err)
	}
	if s := ts.Shape(); len(s) != 2 {
		t.Errorf("only one file should be loaded but shape is %v", s)
	}

	// There are no files after day 1.
	cfg.Root.SetArgs([]string{"proc", "--planet=earth", "--run=base", "--startday=2"})
	if err := cfg.Root.Execute(); err == nil {
		t.Error("processing without any files should fail")
	}
}

func TestProcMissingKeys(t *testing.T) {
	cfg := InitializeConfig()
	cfg.Root.SetOutput(ioutil.Discard)
	cfg.Root.SetArgs([]string{"proc", "--run=base"})
	if err := cfg.Root.Execute(); err == nil || !strings.Contains(err.Error(), "planet") {
		t.Errorf("missing planet should fail: %v", err)
	}
}

func TestVersion(t *testing.T) {
	cfg := InitializeConfig()
	out := bytes.NewBuffer(nil)
	cfg.Root.SetOutput(out)
	cfg.Root.SetArgs([]string{"version"})
	if err := cfg.Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if want := "UMPost v" + umpost.Version; !strings.Contains(out.String(), want) {
		t.Errorf("%q doesn't contain %q", out.String(), want)
	}
}
