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
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/umpost/internal/hash"
	"gonum.org/v1/gonum/floats"
)

// Version is the version of this program.
const Version = "0.1.0"

// Run holds the output of one model simulation.
type Run struct {
	// Name labels the run, for example "earth_base".
	Name string

	// PlanetKey is the planet configuration key and Planet holds
	// its constants.
	PlanetKey string
	Planet    *Planet

	// Timestep is the model time step [s].
	Timestep float64

	// Files are the model output files the run was loaded from.
	Files []string

	Cubes CubeList

	// Options holds the settings, other than the ones above, that
	// change the processed output, such as the reference cube. They
	// are included in the source hash. Derive adds its expressions.
	Options map[string]string

	// Log receives status messages. If it is nil, messages are
	// discarded.
	Log logrus.FieldLogger
}

// NewRun loads the given model output files into a new run.
func NewRun(files []string, name, planetKey string, planets Planets, timestep float64, log logrus.FieldLogger) (*Run, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("umpost: run %s has no input files", name)
	}
	if log == nil {
		l := logrus.New()
		l.Out = ioutil.Discard
		log = l
	}
	p, err := planets.Get(planetKey)
	if err != nil {
		return nil, err
	}
	r := &Run{
		Name:      name,
		PlanetKey: planetKey,
		Planet:    p,
		Timestep:  timestep,
		Files:     files,
		Options:   make(map[string]string),
		Log:       log,
	}
	r.Log.WithFields(logrus.Fields{
		"run":   name,
		"files": len(files),
	}).Info("loading model output")
	if r.Cubes, err = LoadFiles(files...); err != nil {
		return nil, err
	}
	r.Log.WithField("cubes", len(r.Cubes)).Debug("loaded cubes")
	return r, nil
}

// ProcData replaces the cubes of r with the result of fn.
func (r *Run) ProcData(fn ProcessFunc) error {
	cubes, err := fn(r.Cubes, r.Timestep)
	if err != nil {
		return fmt.Errorf("umpost: processing run %s: %v", r.Name, err)
	}
	r.Log.WithFields(logrus.Fields{
		"before": len(r.Cubes),
		"after":  len(cubes),
	}).Info("processed cubes")
	r.Cubes = cubes
	return nil
}

// Derive adds cubes calculated from exprs to r. See the Derive
// function for details.
func (r *Run) Derive(exprs, units map[string]string) error {
	if len(exprs) == 0 {
		return nil
	}
	cubes, err := Derive(r.Cubes, exprs, units)
	if err != nil {
		return err
	}
	if r.Options == nil {
		r.Options = make(map[string]string)
	}
	for name, e := range exprs {
		r.Options["derived:"+name] = e + " [" + units[name] + "]"
	}
	for _, c := range cubes[len(r.Cubes):] {
		r.Log.WithField("cube", c.Name()).Info("derived variable")
	}
	r.Cubes = cubes
	return nil
}

// Summary calculates the area-weighted global mean of the first time
// and lowest level of each cube that has latitude and longitude
// dimensions. The means are logged at the debug level.
func (r *Run) Summary() map[string]float64 {
	o := make(map[string]float64)
	for _, c := range r.Cubes {
		m, err := GlobalMean(c, r.Planet.Radius)
		if err != nil {
			r.Log.WithField("cube", c.Name()).Debug(err)
			continue
		}
		o[c.Name()] = m
		r.Log.WithFields(logrus.Fields{
			"cube":  c.Name(),
			"units": c.Units,
			"mean":  m,
		}).Debug("global mean")
	}
	return o
}

// GlobalMean returns the mean of the horizontal slice of c at index 0
// of every other dimension, weighted by the area of each grid cell on
// a sphere with the given radius. NaN values are ignored.
func GlobalMean(c *Cube, radius float64) (float64, error) {
	latd, lond := c.CoordDim(LatCoord), c.CoordDim(LonCoord)
	if latd < 0 || lond < 0 {
		return math.NaN(), fmt.Errorf("umpost: cube %s has no horizontal grid", c.Name())
	}
	lat, lon := c.DimCoords[latd].Copy(), c.DimCoords[lond].Copy()
	for _, co := range []*Coord{lat, lon} {
		if !co.HasBounds() {
			if len(co.Points) < 2 {
				return math.NaN(), fmt.Errorf("umpost: cube %s: can't calculate cell areas with one %s", c.Name(), co.Name)
			}
			co.Bounds = guessBounds(co.Points)
		}
	}
	index := make([]int, len(c.Data.Shape))
	var weights, values []float64
	for i, lb := range lat.Bounds {
		s0 := math.Sin(clip(lb[0], -90, 90) * math.Pi / 180)
		s1 := math.Sin(clip(lb[1], -90, 90) * math.Pi / 180)
		for j, ob := range lon.Bounds {
			index[latd], index[lond] = i, j
			v := c.Data.Get(index...)
			if math.IsNaN(v) {
				continue
			}
			w := radius * radius * math.Abs(s1-s0) * math.Abs(ob[1]-ob[0]) * math.Pi / 180
			weights = append(weights, w)
			values = append(values, v)
		}
	}
	if len(values) == 0 || floats.Sum(weights) == 0 {
		return math.NaN(), fmt.Errorf("umpost: cube %s has no valid values", c.Name())
	}
	return floats.Dot(weights, values) / floats.Sum(weights), nil
}

// provenance describes where the output of a run came from.
type provenance struct {
	Name, Planet string
	Constants    Planet
	Timestep     float64
	Files        []string

	// Options holds sorted "key=value" pairs. gob doesn't encode
	// maps in a fixed order.
	Options []string
}

// Attributes returns the global attributes for the output file of r.
func (r *Run) Attributes() map[string]interface{} {
	files := make([]string, len(r.Files))
	for i, f := range r.Files {
		files[i] = filepath.Base(f)
	}
	a := r.Planet.attributes()
	a["name"] = r.Name
	a["planet"] = r.PlanetKey
	a["timestep"] = r.Timestep
	a["created_with"] = "umpost v" + Version
	options := make([]string, 0, len(r.Options))
	for k, v := range r.Options {
		options = append(options, k+"="+v)
	}
	sort.Strings(options)
	a["source_hash"] = hash.Hash(provenance{
		Name:      r.Name,
		Planet:    r.PlanetKey,
		Constants: *r.Planet,
		Timestep:  r.Timestep,
		Files:     files,
		Options:   options,
	})
	return a
}

// Write writes the cubes of r to a NetCDF file at path.
func (r *Run) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("umpost: creating output file: %v", err)
	}
	if err := Write(f, r.Cubes, r.Attributes()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
