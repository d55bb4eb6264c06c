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
	"strconv"
)

// SingleLevelVars are the surface and top-of-atmosphere fields that
// are kept without regridding.
var SingleLevelVars = []string{
	"surface_temperature",
	"toa_incoming_shortwave_flux",
	"toa_outgoing_longwave_flux",
	"toa_outgoing_longwave_flux_assuming_clear_sky",
	"toa_outgoing_shortwave_flux",
	"toa_outgoing_shortwave_flux_assuming_clear_sky",
	"surface_downwelling_shortwave_flux_in_air",
	"upwelling_shortwave_flux_in_air",
	"surface_downwelling_longwave_flux_in_air",
	"upwelling_longwave_flux_in_air",
	"surface_upward_sensible_heat_flux",
	"surface_upward_latent_heat_flux",
	"convective_rainfall_flux",
	"convective_snowfall_flux",
	"high_type_cloud_area_fraction",
	"low_type_cloud_area_fraction",
	"medium_type_cloud_area_fraction",
	"stratiform_rainfall_flux",
	"stratiform_snowfall_flux",
}

// MultiLevelVars are the fields that are interpolated to the levels
// of the reference cube.
var MultiLevelVars = []string{
	"air_potential_temperature",
	"air_pressure",
	"specific_humidity",
	"mass_fraction_of_cloud_liquid_water_in_air",
	"mass_fraction_of_cloud_ice_in_air",
	"upward_air_velocity",
}

// HorizontalWindVars are the horizontal wind components.
var HorizontalWindVars = []string{"x_wind", "y_wind"}

// STASH items of the increments.
const (
	TemperatureIncrement      = 181
	MoistureIncrement         = 182
	RadiativeHeatingIncrement = 233
)

// Defaults for ProcessCubes and the proc command.
const (
	DefaultReferenceCube = "specific_humidity"
	DefaultTimestep      = 1200.
)

const (
	windUnits                 = "m s^-1"
	temperatureIncrementUnits = "K"
	moistureIncrementUnits    = "kg kg^-1"
	perSecond                 = " s^-1"
)

// ProcessFunc transforms the cubes of a run. timestep is the model
// time step in seconds.
type ProcessFunc func(cubes CubeList, timestep float64) (CubeList, error)

// Processor returns a ProcessFunc that runs ProcessCubes using the
// cube named refName as the regridding target.
func Processor(refName string) ProcessFunc {
	return func(cubes CubeList, timestep float64) (CubeList, error) {
		return ProcessCubes(cubes, timestep, refName)
	}
}

// ProcessCubes selects the fields of interest from cubes, interpolates
// the multi-level fields to the vertical levels and horizontal grid of
// the cube named refName, converts increments to rates, and rolls all
// fields to longitudes between -180 and 180. The input cubes are not
// modified.
func ProcessCubes(cubes CubeList, timestep float64, refName string) (CubeList, error) {
	if timestep <= 0 {
		return nil, fmt.Errorf("umpost: invalid timestep %g", timestep)
	}
	var o CubeList

	// Multi-level fields, which are 30-day averages.
	for _, c := range cubes.Extract(NameConstraint(MultiLevelVars...), MeanConstraint) {
		o = append(o, c.Copy())
	}

	for _, c := range cubes.Extract(NameConstraint(HorizontalWindVars...)) {
		c = c.Copy()
		if err := c.SetUnits(windUnits); err != nil {
			return nil, err
		}
		o = append(o, c)
	}

	for _, c := range cubes.Extract(STASHItemConstraint(TemperatureIncrement, MoistureIncrement, RadiativeHeatingIncrement)) {
		inc, err := convertIncrement(c.Copy(), timestep)
		if err != nil {
			return nil, err
		}
		o = append(o, inc)
	}

	ref, err := o.ExtractStrict(NameConstraint(refName))
	if err != nil {
		return nil, fmt.Errorf("umpost: finding reference cube %s: %v", refName, err)
	}
	if ref, err = ReplaceZCoord(ref, LevelHeight); err != nil {
		return nil, err
	}

	for i, c := range o {
		if c, err = ReplaceZCoord(c, LevelHeight); err != nil {
			return nil, err
		}
		if o[i], err = Regrid3D(c, ref, LevelHeight); err != nil {
			return nil, err
		}
	}

	o = append(o, cubes.Extract(NameConstraint(SingleLevelVars...), MeanConstraint)...)

	for i, c := range o {
		o[i] = RollPM180(c)
		EnsureBounds(o[i], LatCoord, LonCoord)
	}
	return o, nil
}

// convertIncrement labels increment c with its units. Temperature
// and moisture increments accumulated over one time step are converted
// to rates per second.
func convertIncrement(c *Cube, timestep float64) (*Cube, error) {
	s, err := c.STASH()
	if err != nil {
		return nil, err
	}
	u := moistureIncrementUnits
	if s.Item == TemperatureIncrement || s.Item == RadiativeHeatingIncrement {
		u = temperatureIncrementUnits
	}
	if s.Item == RadiativeHeatingIncrement {
		if err := c.SetUnits(u + perSecond); err != nil {
			return nil, err
		}
		return c, nil
	}
	perStep := strconv.FormatFloat(1/timestep, 'g', -1, 64)
	if err := c.SetUnits(perStep + " " + u + perSecond); err != nil {
		return nil, err
	}
	if err := c.ConvertUnits(u + perSecond); err != nil {
		return nil, err
	}
	return c, nil
}
