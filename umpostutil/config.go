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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
)

// procConfig unmarshals the configuration of the proc command.
func (cfg *Cfg) procConfig() (*Proc, error) {
	planet, err := checkKey("planet", cfg.GetString("planet"))
	if err != nil {
		return nil, err
	}
	run, err := checkKey("run", cfg.GetString("run"))
	if err != nil {
		return nil, err
	}
	timestep := cfg.GetFloat64("Timestep")
	if !(timestep > 0) {
		return nil, fmt.Errorf("umpost: Timestep=%g but should be >0", timestep)
	}
	derived, err := getStringMapString("DerivedVariables", cfg)
	if err != nil {
		return nil, err
	}
	derivedUnits, err := getStringMapString("DerivedUnits", cfg)
	if err != nil {
		return nil, err
	}
	p := &Proc{
		Planet:           planet,
		RunKey:           run,
		StartDay:         cfg.GetInt("startday"),
		DataDir:          os.ExpandEnv(cfg.GetString("DataDir")),
		OutputDir:        os.ExpandEnv(cfg.GetString("OutputDir")),
		FileGlob:         cfg.GetString("FileGlob"),
		FileRegex:        cfg.GetString("FileRegex"),
		Timestep:         timestep,
		RefCube:          cfg.GetString("RefCube"),
		PlanetFile:       os.ExpandEnv(cfg.GetString("PlanetFile")),
		DerivedVariables: checkDerivedVars(derived),
		DerivedUnits:     derivedUnits,
		LogFile:          os.ExpandEnv(cfg.GetString("LogFile")),
		QuickLook:        cfg.GetBool("QuickLook"),
		Verbose:          cfg.GetBool("verbose"),
	}
	return p, nil
}

// checkKey makes sure that a planet or run key is specified and can be
// used in a file name.
func checkKey(name, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("umpost: you need to specify the %s key (for example: --%s=<key>)", name, name)
	}
	if strings.ContainsAny(v, `/\`) {
		return "", fmt.Errorf("umpost: %s key %q must not contain path separators", name, v)
	}
	return v, nil
}

// checkDerivedVars removes end lines from derived variable
// expressions.
func checkDerivedVars(vars map[string]string) map[string]string {
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		vars[k] = strings.Replace(v, "\n", " ", -1)
	}
	return vars
}

// checkOutputDir fills in the default output directory if one isn't
// specified and creates it if it doesn't exist and isn't in blob
// storage.
func checkOutputDir(outdir, inputDir string) (string, error) {
	if outdir == "" {
		outdir = filepath.Join(inputDir, "_processed")
	}
	if IsBlob(outdir) {
		return outdir, nil
	}
	if err := os.MkdirAll(outdir, os.ModePerm); err != nil {
		return outdir, fmt.Errorf("umpost: creating output directory: %v", err)
	}
	return outdir, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return logFile
}

// getStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func getStringMapString(varName string, cfg *Cfg) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case nil:
		return make(map[string]string), nil
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if strings.TrimSpace(v) == "" {
			return o, nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("umpost: parsing config variable %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("umpost: invalid type for config variable %s: %#v", varName, i)
	}
}
