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
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Planet holds the physical constants of a planet.
type Planet struct {
	Description string

	// Radius is the mean radius of the planet [m].
	Radius float64

	// Gravity is the surface gravitational acceleration [m s^-2].
	Gravity float64

	// Day is the length of a solar day [s].
	Day float64

	// StellarConstant is the flux of stellar radiation at the top of the
	// atmosphere [W m^-2].
	StellarConstant float64 `toml:"stellar_constant"`
}

// defaultPlanets holds the constants of the planets that are commonly
// simulated with the UM. TRAPPIST-1e and Proxima b are tidally locked,
// so their day length equals their orbital period.
const defaultPlanets = `
[earth]
description = "Earth"
radius = 6371000.0
gravity = 9.80665
day = 86400.0
stellar_constant = 1361.0

[trap1e]
description = "TRAPPIST-1e"
radius = 5804071.0
gravity = 9.1454
day = 527040.0
stellar_constant = 900.0

[proxb]
description = "Proxima Centauri b"
radius = 7160000.0
gravity = 10.9
day = 966470.4
stellar_constant = 881.7
`

// Planets maps planet configuration keys to their constants.
type Planets map[string]*Planet

// DefaultPlanets returns the built-in planet constants.
func DefaultPlanets() Planets {
	p, err := ReadPlanets(strings.NewReader(defaultPlanets))
	if err != nil {
		panic(err)
	}
	return p
}

// ReadPlanets reads a TOML table of planet constants from r.
func ReadPlanets(r io.Reader) (Planets, error) {
	var raw map[string]Planet
	if _, err := toml.DecodeReader(r, &raw); err != nil {
		return nil, fmt.Errorf("umpost: reading planet constants: %v", err)
	}
	p := make(Planets, len(raw))
	for k, v := range raw {
		v := v
		if err := v.check(); err != nil {
			return nil, fmt.Errorf("umpost: planet %s: %v", k, err)
		}
		p[k] = &v
	}
	return p, nil
}

// LoadPlanets returns the built-in planet constants, overridden and
// extended by the ones in the TOML file at path, if path is not empty.
func LoadPlanets(path string) (Planets, error) {
	p := DefaultPlanets()
	if path == "" {
		return p, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("umpost: opening planet file: %v", err)
	}
	defer f.Close()
	user, err := ReadPlanets(f)
	if err != nil {
		return nil, err
	}
	for k, v := range user {
		p[k] = v
	}
	return p, nil
}

// Get returns the constants for the planet with the given key.
func (p Planets) Get(key string) (*Planet, error) {
	pl, ok := p[key]
	if !ok {
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("umpost: unknown planet %q; valid options are %v", key, keys)
	}
	return pl, nil
}

func (p *Planet) check() error {
	if p.Radius <= 0 {
		return fmt.Errorf("radius must be positive but is %g", p.Radius)
	}
	if p.Gravity < 0 || p.Day < 0 || p.StellarConstant < 0 {
		return fmt.Errorf("constants must not be negative")
	}
	return nil
}

// attributes returns the planet constants as global file attributes.
func (p *Planet) attributes() map[string]interface{} {
	return map[string]interface{}{
		"planet_description":      p.Description,
		"planet_radius":           p.Radius,
		"planet_gravity":          p.Gravity,
		"planet_day":              p.Day,
		"planet_stellar_constant": p.StellarConstant,
	}
}
