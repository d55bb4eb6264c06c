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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/umpost"
)

// Proc holds the settings for processing the output of one model run.
type Proc struct {
	// Planet and RunKey are the planet configuration and run keys.
	Planet, RunKey string

	// StartDay is the smallest file timestamp to load.
	StartDay int

	// DataDir holds one input directory per run.
	DataDir string

	// OutputDir is where the processed file is saved. If it is
	// empty, "_processed" within the input directory is used. It
	// may be a blob storage location such as "s3://bucket/dir".
	OutputDir string

	FileGlob, FileRegex string

	// Timestep is the model time step [s].
	Timestep float64

	// RefCube is the name of the regridding target field.
	RefCube string

	// PlanetFile is an optional TOML file of planet constants. It
	// may be a URL or a blob storage location.
	PlanetFile string

	// DerivedVariables and DerivedUnits specify additional fields
	// to calculate.
	DerivedVariables, DerivedUnits map[string]string

	// LogFile is where log messages are saved in addition to
	// the command output.
	LogFile string

	// QuickLook specifies whether to save a map of each processed
	// field as a PNG image.
	QuickLook bool

	// Verbose turns on debugging messages.
	Verbose bool
}

// Label returns the run label "<planet>_<run>".
func (p *Proc) Label() string { return p.Planet + "_" + p.RunKey }

// InputDir returns the directory holding the input files.
func (p *Proc) InputDir() string { return filepath.Join(p.DataDir, p.Label()) }

// newLogger returns a logger writing to w.
func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	l := logrus.New()
	l.Out = w
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		DisableSorting:  true,
	}
	l.Level = logrus.InfoLevel
	if verbose {
		l.Level = logrus.DebugLevel
	}
	return l
}

// Run loads the model output files, processes them, and saves the
// result to <OutputDir>/<label>.nc along with a spreadsheet of global
// means and, optionally, quick-look maps. Log messages are written to
// stdout and to the log file. Output for blob storage is written to a
// temporary directory first and uploaded at the end.
func (p *Proc) Run(stdout io.Writer) error {
	startTime := time.Now()
	ctx := context.TODO()

	label := p.Label()
	outdir, err := checkOutputDir(p.OutputDir, p.InputDir())
	if err != nil {
		return err
	}
	tr := new(transfer)
	defer tr.cleanup()
	outputPath := joinPath(outdir, label+".nc")
	outputFile, err := tr.maybeUpload(outputPath)
	if err != nil {
		return err
	}
	logFile, err := tr.maybeUpload(checkLogFile(p.LogFile, outputPath))
	if err != nil {
		return err
	}

	logfile, err := os.Create(logFile)
	if err != nil {
		return fmt.Errorf("umpost: problem creating log file: %v", err)
	}
	defer logfile.Close()
	log := newLogger(io.MultiWriter(stdout, logfile), p.Verbose)
	log.Infof("label = %s", label)

	files, err := umpost.FilenameList(p.InputDir(), p.FileGlob, p.StartDay, p.FileRegex, umpost.DefaultRegexKey)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("umpost: no files in %s match %s with timestamps >= %d", p.InputDir(), p.FileGlob, p.StartDay)
	}
	log.Debugf("fnames = %s ... %s", files[0], files[len(files)-1])

	planetFile, err := tr.maybeDownload(ctx, p.PlanetFile)
	if err != nil {
		return err
	}
	planets, err := umpost.LoadPlanets(planetFile)
	if err != nil {
		return err
	}
	r, err := umpost.NewRun(files, label, p.Planet, planets, p.Timestep, log)
	if err != nil {
		return err
	}
	r.Options["RefCube"] = p.RefCube
	if err = r.ProcData(umpost.Processor(p.RefCube)); err != nil {
		return err
	}
	if err = r.Derive(p.DerivedVariables, p.DerivedUnits); err != nil {
		return err
	}

	if err = r.Write(outputFile); err != nil {
		return err
	}
	log.Infof("Saved to %s", outputPath)

	summaryPath := joinPath(outdir, label+"_summary.xlsx")
	if err = createFile(tr, summaryPath, r.WriteSummary); err != nil {
		return err
	}
	log.Debugf("Saved summary to %s", summaryPath)

	if p.QuickLook {
		for _, c := range r.Cubes {
			c := c
			path := joinPath(outdir, label+"_"+strings.Replace(c.Name(), " ", "_", -1)+".png")
			err := createFile(tr, path, func(w io.Writer) error { return umpost.QuickLook(w, c) })
			if err != nil {
				log.WithField("cube", c.Name()).Debug(err)
				continue
			}
			log.Debugf("Saved map to %s", path)
		}
	}

	log.Infof("Execution time: %.1fs", time.Since(startTime).Seconds())
	return tr.uploadOutput(ctx)
}

// createFile creates the file at path, which may be a blob storage
// location, and fills it using write.
func createFile(tr *transfer, path string, write func(io.Writer) error) error {
	local, err := tr.maybeUpload(path)
	if err != nil {
		return err
	}
	f, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("umpost: creating %s: %v", path, err)
	}
	if err = write(f); err != nil {
		f.Close()
		os.Remove(local)
		tr.forget(local)
		return err
	}
	return f.Close()
}
