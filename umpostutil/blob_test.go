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
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spatialmodel/umpost"
)

// newTestBucket creates a directory to be used as a "file://" bucket.
// Bucket names are relative to the working directory.
func newTestBucket(t *testing.T) (name string, cleanup func()) {
	t.Helper()
	dir, err := ioutil.TempDir(".", "bucket")
	if err != nil {
		t.Fatal(err)
	}
	return "file://" + filepath.Base(dir), func() { os.RemoveAll(dir) }
}

func TestIsBlob(t *testing.T) {
	for path, want := range map[string]bool{
		"gs://bucket/out":     true,
		"s3://bucket/out":     true,
		"file://bucket/out":   true,
		"/home/user/out":      false,
		"https://example.com": false,
	} {
		if have := IsBlob(path); have != want {
			t.Errorf("%s: %v != %v", path, have, want)
		}
	}
}

func TestJoinPath(t *testing.T) {
	if p := joinPath("s3://bucket/out/", "earth_base.nc"); p != "s3://bucket/out/earth_base.nc" {
		t.Error(p)
	}
	if p := joinPath("out", "earth_base.nc"); p != filepath.Join("out", "earth_base.nc") {
		t.Error(p)
	}
}

func TestMaybeDownload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/planets.toml" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "[earth]\nradius = 1.0\n")
	}))
	defer ts.Close()
	ctx := context.Background()

	tr := new(transfer)
	defer tr.cleanup()
	path, err := tr.maybeDownload(ctx, ts.URL+"/planets.toml")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "planets.toml" {
		t.Errorf("downloaded to %s", path)
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "[earth]\nradius = 1.0\n" {
		t.Errorf("downloaded %q", b)
	}

	if _, err := tr.maybeDownload(ctx, ts.URL+"/missing.toml"); err == nil {
		t.Error("missing file should fail")
	}
	for _, p := range []string{"", "blob_test.go", "no_such_file.toml"} {
		if have, err := tr.maybeDownload(ctx, p); err != nil || have != p {
			t.Errorf("%q: %q %v", p, have, err)
		}
	}

	// Downloads are removed along with the temporary directory.
	tr.cleanup()
	if _, err := os.Stat(filepath.Dir(path)); !os.IsNotExist(err) {
		t.Errorf("download directory still exists: %v", err)
	}
}

func TestUploadDownload(t *testing.T) {
	bucket, cleanup := newTestBucket(t)
	defer cleanup()
	ctx := context.Background()

	tr := new(transfer)
	defer tr.cleanup()
	local, err := tr.maybeUpload(bucket + "/earth_base.log")
	if err != nil {
		t.Fatal(err)
	}
	if IsBlob(local) || filepath.Base(local) != "earth_base.log" {
		t.Errorf("local path %s", local)
	}
	if same, err := tr.maybeUpload("earth_base.log"); err != nil || same != "earth_base.log" {
		t.Errorf("local files shouldn't be uploaded: %s %v", same, err)
	}
	if _, err := tr.maybeUpload(bucket); err == nil {
		t.Error("blob path without a file name should fail")
	}
	if err := ioutil.WriteFile(local, []byte("label = earth_base"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := tr.uploadOutput(ctx); err != nil {
		t.Fatal(err)
	}

	in := new(transfer)
	defer in.cleanup()
	path, err := in.maybeDownload(ctx, bucket+"/earth_base.log")
	if err != nil {
		t.Fatal(err)
	}
	if path == local {
		t.Error("download overwrote the local copy of the upload")
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "label = earth_base" {
		t.Errorf("downloaded %q", b)
	}

	if _, err := in.maybeDownload(ctx, bucket+"/missing.log"); err == nil {
		t.Error("missing blob should fail")
	}
	if _, err := OpenBucket(ctx, "ftp://bucket"); err == nil {
		t.Error("unknown provider should fail")
	}
}

func TestProcBlob(t *testing.T) {
	dataDir, err := ioutil.TempDir("", "umpost")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dataDir)
	writeTestRun(t, dataDir, "mars_base")
	bucket, cleanup := newTestBucket(t)
	defer cleanup()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `
[mars]
description = "Mars"
radius = 3389500.0
gravity = 3.72
day = 88775.0
stellar_constant = 586.2
`)
	}))
	defer ts.Close()

	cfg := InitializeConfig()
	cfg.Root.SetOutput(ioutil.Discard)
	cfg.Set("DataDir", dataDir)
	cfg.Set("OutputDir", bucket)
	cfg.Set("PlanetFile", ts.URL+"/planets.toml")
	cfg.Root.SetArgs([]string{"proc", "--planet=mars", "--run=base", "--QuickLook"})
	if err := cfg.Root.Execute(); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	tr := new(transfer)
	defer tr.cleanup()
	for _, name := range []string{
		"mars_base.nc", "mars_base.log", "mars_base_summary.xlsx",
		"mars_base_surface_temperature.png",
	} {
		path, err := tr.maybeDownload(ctx, bucket+"/"+name)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if name != "mars_base.nc" {
			continue
		}
		cubes, err := umpost.LoadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if len(cubes) != 2 {
			t.Errorf("saved cubes %v", cubes.Names())
		}
	}
	if _, err := os.Stat(filepath.Join(dataDir, "mars_base", "_processed")); !os.IsNotExist(err) {
		t.Error("nothing should be saved in the input directory")
	}
}
