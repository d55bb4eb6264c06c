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

// Package umpostutil holds the command-line interface of UMPost.
package umpostutil

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/umpost"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information and the commands that use it.
type Cfg struct {
	*viper.Viper

	// Root is the main command.
	Root *cobra.Command

	procCmd, versionCmd *cobra.Command
}

type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

// InitializeConfig creates the commands and configuration options of
// the program.
func InitializeConfig() *Cfg {
	cfg := &Cfg{Viper: viper.New()}

	cfg.Root = &cobra.Command{
		Use:   "umpost",
		Short: "Post-process global Unified Model output.",
		Long: `UMPost post-processes global Unified Model (UM) output for easier analysis.
Use the subcommands specified below to access the program functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'UMPOST_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return cfg.setConfig() },
	}

	cfg.versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  "version prints the version number of this version of UMPost.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("UMPost v%s\n", umpost.Version)
		},
		DisableAutoGenTag: true,
	}

	cfg.procCmd = &cobra.Command{
		Use:   "proc",
		Short: "Process the output of a model run.",
		Long: `proc loads the output files of a global UM run, extracts the
fields of interest, interpolates them to a common grid, converts units,
rolls longitudes to -180 to 180 degrees, and saves the result as a single
NetCDF file along with a spreadsheet of global means.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cfg.procConfig()
			if err != nil {
				return err
			}
			return p.Run(cmd.OutOrStdout())
		},
		DisableAutoGenTag: true,
	}

	cfg.Root.AddCommand(cfg.versionCmd)
	cfg.Root.AddCommand(cfg.procCmd)

	options := []option{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name: "planet",
			usage: `
              planet specifies the planet configuration key, for example
              "earth", "trap1e" or "proxb".`,
			shorthand:  "p",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.procCmd.Flags()},
		},
		{
			name: "run",
			usage: `
              run specifies the run key. Together with the planet it forms
              the run label "<planet>_<run>".`,
			shorthand:  "r",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.procCmd.Flags()},
		},
		{
			name: "startday",
			usage: `
              startday specifies that only files with timestamps greater than or
              equal to this value should be loaded.`,
			shorthand:  "s",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{cfg.procCmd.Flags()},
		},
		{
			name: "DataDir",
			usage: `
              DataDir is the directory holding model output. Input files are
              read from <DataDir>/<planet>_<run>. It can include environment variables.`,
			defaultVal: "${HOME}/data/um",
			flagsets:   []*pflag.FlagSet{cfg.procCmd.Flags()},
		},
		{
			name: "OutputDir",
			usage: `
              OutputDir is the directory where the processed file is saved. If
              it is left blank, a directory called "_processed" within the
              input directory is used. It is created if it doesn't exist.
              It can include environment variables. It can also be a blob
              storage location in the format "provider://bucket/dir", where
              provider is "gs", "s3" or "file".`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.procCmd.Flags()},
		},
		{
			name: "FileGlob",
			usage: `
              FileGlob is the glob pattern of the input files.`,
			defaultVal: umpost.DefaultFileGlob,
			flagsets:   []*pflag.FlagSet{cfg.procCmd.Flags()},
		},
		{
			name: "FileRegex",
			usage: `
              FileRegex is a regular expression that input file names must
              start with. Its group named "timestamp" is compared to startday.`,
			defaultVal: umpost.DefaultFileRegex,
			flagsets:   []*pflag.FlagSet{cfg.procCmd.Flags()},
		},
		{
			name: "Timestep",
			usage: `
              Timestep is the model time step in seconds.`,
			defaultVal: umpost.DefaultTimestep,
			flagsets:   []*pflag.FlagSet{cfg.procCmd.Flags()},
		},
		{
			name: "RefCube",
			usage: `
              RefCube is the name of the field whose grid all multi-level
              fields are interpolated to.`,
			defaultVal: umpost.DefaultReferenceCube,
			flagsets:   []*pflag.FlagSet{cfg.procCmd.Flags()},
		},
		{
			name: "PlanetFile",
			usage: `
              PlanetFile is the path to an optional TOML file with planet
              constants that add to or override the built-in ones.
              It can include environment variables, and it can be a URL
              or a blob storage location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.procCmd.Flags()},
		},
		{
			name: "DerivedVariables",
			usage: `
              DerivedVariables maps the names of new fields to expressions
              of the names of processed fields, which are calculated before
              the output is saved.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{cfg.procCmd.Flags()},
		},
		{
			name: "DerivedUnits",
			usage: `
              DerivedUnits maps the names of derived fields to their units.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{cfg.procCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. It can include
              environment variables. If LogFile is left blank, the logfile will be saved
              next to the output file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.procCmd.Flags()},
		},
		{
			name: "QuickLook",
			usage: `
              QuickLook specifies whether to save a PNG map of the first time
              and lowest level of each processed field next to the output file.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{cfg.procCmd.Flags()},
		},
		{
			name: "verbose",
			usage: `
              verbose specifies whether to print debugging messages.`,
			shorthand:  "v",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
	}

	// Set the prefix for configuration environment variables.
	cfg.SetEnvPrefix("UMPOST")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
	cfg.AutomaticEnv()
	return cfg
}

// setConfig finds and reads in the configuration file, if there is one.
func (cfg *Cfg) setConfig() error {
	if cfgpath := cfg.GetString("config"); cfgpath != "" {
		cfg.SetConfigFile(cfgpath)
		if err := cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("umpost: problem reading configuration file: %v", err)
		}
	}
	return nil
}
