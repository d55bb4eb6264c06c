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
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/google/go-cloud/blob"
	"github.com/google/go-cloud/blob/fileblob"
	"github.com/google/go-cloud/blob/gcsblob"
	"github.com/google/go-cloud/blob/s3blob"
	"github.com/google/go-cloud/gcp"
)

// blobSchemes are the storage providers OpenBucket understands: "gs"
// for Google Cloud Storage, "s3" for AWS S3 and "file" for a directory
// on the local file system, which is mostly useful for testing.
var blobSchemes = []string{"gs", "s3", "file"}

// IsBlob reports whether path, such as an output directory or a planet
// file, is in blob storage rather than on the local file system.
func IsBlob(path string) bool {
	for _, s := range blobSchemes {
		if strings.HasPrefix(path, s+"://") {
			return true
		}
	}
	return false
}

// OpenBucket opens the bucket at location, given as "<scheme>://<bucket>",
// where the scheme is one of gs, s3 or file.
func OpenBucket(ctx context.Context, location string) (*blob.Bucket, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("umpostutil: bucket %s: %v", location, err)
	}
	name := u.Hostname()
	switch u.Scheme {
	case "gs":
		return gsBucket(ctx, name)
	case "s3":
		return s3Bucket(ctx, name)
	case "file":
		return fileblob.NewBucket(name)
	}
	return nil, fmt.Errorf("umpostutil: bucket %s: unsupported storage provider %q", location, u.Scheme)
}

// gsBucket opens a Google Cloud Storage bucket using the application
// default credentials.
func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("umpostutil: Google Cloud credentials: %v", err)
	}
	client, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, fmt.Errorf("umpostutil: Google Cloud client: %v", err)
	}
	return gcsblob.OpenBucket(ctx, name, client)
}

// defaultS3Region is used when AWS_REGION isn't set.
const defaultS3Region = "us-east-2"

// s3Bucket opens an AWS S3 bucket with the key pair in
// AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	cfg := aws.NewConfig().WithCredentials(credentials.NewEnvCredentials())
	if os.Getenv("AWS_REGION") == "" {
		cfg = cfg.WithRegion(defaultS3Region)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("umpostutil: AWS session: %v", err)
	}
	return s3blob.OpenBucket(ctx, sess, name)
}

// splitBlob returns the bucket and key of a blob path.
func splitBlob(path string) (bucket, key string, err error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", err
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("umpostutil: blob path %s has no file name", path)
	}
	return u.Scheme + "://" + u.Host, key, nil
}

// joinPath joins a directory, which may be a blob storage location,
// and a file name.
func joinPath(dir, name string) string {
	if IsBlob(dir) {
		return strings.TrimSuffix(dir, "/") + "/" + name
	}
	return filepath.Join(dir, name)
}

// transfer keeps local copies of files that live in blob storage or
// on the web. Output meant for blob storage is written to a temporary
// directory and uploaded by uploadOutput; downloaded input is saved
// in the same directory. cleanup removes the directory.
type transfer struct {
	// uploads pairs the local path of each output file with the
	// blob storage path it goes to.
	uploads [][2]string
	dir     string
}

// tempDir returns the temporary directory of t, creating it if needed.
func (t *transfer) tempDir() (string, error) {
	if t.dir == "" {
		dir, err := ioutil.TempDir("", "umpost")
		if err != nil {
			return "", fmt.Errorf("umpostutil: creating temporary directory: %v", err)
		}
		t.dir = dir
	}
	return t.dir, nil
}

// maybeDownload returns path unchanged if it is empty or a local file.
// A URL or blob is downloaded and the path of the local copy is
// returned instead.
func (t *transfer) maybeDownload(ctx context.Context, path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return path, nil
	}
	switch {
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		return t.downloadHTTP(path)
	case IsBlob(path):
		return t.downloadBlob(ctx, path)
	}
	return path, nil
}

// save copies r to a file called name in the temporary directory.
func (t *transfer) save(r io.Reader, name string) (string, error) {
	dir, err := t.tempDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	w, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("umpostutil: creating file for download: %v", err)
	}
	if _, err = io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("umpostutil: downloading %s: %v", name, err)
	}
	return path, w.Close()
}

func (t *transfer) downloadHTTP(path string) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	resp, err := http.Get(path)
	if err != nil {
		return "", fmt.Errorf("umpostutil: downloading %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("umpostutil: downloading %s: %s", path, resp.Status)
	}
	return t.save(resp.Body, filepath.Base(u.Path))
}

func (t *transfer) downloadBlob(ctx context.Context, path string) (string, error) {
	bucketName, key, err := splitBlob(path)
	if err != nil {
		return "", err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return "", err
	}
	r, err := bucket.NewReader(ctx, key)
	if err != nil {
		return "", fmt.Errorf("umpostutil: opening %s: %v", path, err)
	}
	defer r.Close()
	return t.save(r, filepath.Base(key))
}

// maybeUpload returns path unchanged unless it is in blob storage, in
// which case it returns a path in the temporary directory and
// uploadOutput copies the file there to path.
func (t *transfer) maybeUpload(path string) (string, error) {
	if !IsBlob(path) {
		return path, nil
	}
	if _, _, err := splitBlob(path); err != nil {
		return "", err
	}
	dir, err := t.tempDir()
	if err != nil {
		return "", err
	}
	local := filepath.Join(dir, filepath.Base(path))
	t.uploads = append(t.uploads, [2]string{local, path})
	return local, nil
}

// forget stops local from being uploaded.
func (t *transfer) forget(local string) {
	for i, f := range t.uploads {
		if f[0] == local {
			t.uploads = append(t.uploads[:i], t.uploads[i+1:]...)
			return
		}
	}
}

// uploadOutput copies the files registered with maybeUpload to blob
// storage.
func (t *transfer) uploadOutput(ctx context.Context) error {
	for _, f := range t.uploads {
		if err := uploadFile(ctx, f[0], f[1]); err != nil {
			return err
		}
	}
	return nil
}

func uploadFile(ctx context.Context, local, path string) error {
	r, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("umpostutil: opening %s for upload: %v", local, err)
	}
	defer r.Close()
	bucketName, key, err := splitBlob(path)
	if err != nil {
		return err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return err
	}
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("umpostutil: uploading %s: %v", path, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("umpostutil: uploading %s: %v", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("umpostutil: uploading %s: %v", path, err)
	}
	return nil
}

// cleanup removes the temporary directory along with any downloads
// and local copies of uploads.
func (t *transfer) cleanup() {
	if t.dir != "" {
		os.RemoveAll(t.dir)
		t.dir = ""
	}
}
