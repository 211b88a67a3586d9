/*
Copyright © 2024 the aerosol authors.
This file is part of aerosol.

aerosol is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

aerosol is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with aerosol.  If not, see <http://www.gnu.org/licenses/>.
*/

package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
)

// readBlob copies the given blob from the given bucket into the local file
// at dst.
func readBlob(ctx context.Context, bucket *blob.Bucket, key, dst string) error {
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("cloud: reading blob key %s: %v", key, err)
	}
	defer r.Close()
	w, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("cloud: creating file for download: %v", err)
	}
	if _, err = io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("cloud: reading blob key %s: %v", key, err)
	}
	return w.Close()
}

// writeBlob copies the local file src to the given key in the given bucket.
func writeBlob(ctx context.Context, bucket *blob.Bucket, key, src string) error {
	r, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("cloud: opening file '%s' for upload: %v", src, err)
	}
	defer r.Close()
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("cloud: creating writer for blob %s: %v", key, err)
	}
	if _, err = io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("cloud: copying blob %s: %v", key, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("cloud: writing blob %s: %v", key, err)
	}
	return nil
}

// DownloadDir mirrors the blobs directly under the blob directory dir into
// a new temporary local directory and returns the local directory path.
// Subdirectories are not descended into. If dir is not a blob path it is
// returned unchanged.
func DownloadDir(ctx context.Context, dir string, log logrus.FieldLogger) (string, error) {
	if !IsBlob(dir) {
		return dir, nil
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	bucketName, prefix, err := splitBlob(dir, true)
	if err != nil {
		return "", err
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return "", err
	}
	defer bucket.Close()

	local, err := os.MkdirTemp("", "aerosol")
	if err != nil {
		return "", fmt.Errorf("cloud: creating temporary download directory: %v", err)
	}
	iter := bucket.List(&blob.ListOptions{
		Prefix:    prefix,
		Delimiter: "/",
	})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("cloud: listing blobs in %s: %v", dir, err)
		}
		if obj.IsDir {
			continue
		}
		log.WithFields(logrus.Fields{
			"bucket": bucketName,
			"key":    obj.Key,
		}).Debug("downloading blob")
		if err := readBlob(ctx, bucket, obj.Key, filepath.Join(local, path.Base(obj.Key))); err != nil {
			return "", err
		}
	}
	return local, nil
}

// Download copies the blob file at p into a new temporary local directory
// and returns the local path. Shapefiles are downloaded together with their
// associated files that exist. If p is not a blob path it is returned
// unchanged.
func Download(ctx context.Context, p string) (string, error) {
	if !IsBlob(p) {
		return p, nil
	}
	bucketName, key, err := splitBlob(p, false)
	if err != nil {
		return "", err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return "", err
	}
	defer bucket.Close()
	dir, err := os.MkdirTemp("", "aerosol")
	if err != nil {
		return "", fmt.Errorf("cloud: creating temporary download directory: %v", err)
	}
	keys := expandShp(key)
	for i, k := range keys {
		if i > 0 {
			ok, err := bucket.Exists(ctx, k)
			if err != nil {
				return "", fmt.Errorf("cloud: checking blob %s: %v", k, err)
			}
			if !ok {
				continue
			}
		}
		if err := readBlob(ctx, bucket, k, filepath.Join(dir, path.Base(k))); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, path.Base(keys[0])), nil
}

// Uploader defers writing outputs to blob storage: MaybeUpload hands out
// local paths and Upload copies the files written there to their
// destinations.
type Uploader struct {
	// files is a set of file path pairs. The first of each pair
	// is a local file path and the second is a blob storage
	// path where it should be uploaded to.
	files [][2]string
	dir   string
}

// MaybeUpload checks whether the given output file path refers to
// a blob storage location. If it does, then a temporary file location
// is returned. The file will then be uploaded to blob storage when
// the Upload method is run.
func (u *Uploader) MaybeUpload(p string) (string, error) {
	if !IsBlob(p) {
		return p, nil
	}
	if u.dir == "" {
		var err error
		if u.dir, err = os.MkdirTemp("", "aerosol"); err != nil {
			return "", fmt.Errorf("cloud: creating temporary upload directory: %v", err)
		}
	}
	files := expandShp(p)
	for _, f := range files {
		u.files = append(u.files, [2]string{
			filepath.Join(u.dir, path.Base(f)),
			f,
		})
	}
	return filepath.Join(u.dir, path.Base(files[0])), nil
}

// Upload copies every file registered with MaybeUpload to blob storage.
// Files that were never written locally (e.g., a missing .prj) are skipped.
func (u *Uploader) Upload(ctx context.Context) error {
	for _, files := range u.files {
		if _, err := os.Stat(files[0]); os.IsNotExist(err) {
			continue
		}
		bucketName, key, err := splitBlob(files[1], false)
		if err != nil {
			return err
		}
		bucket, err := OpenBucket(ctx, bucketName)
		if err != nil {
			return fmt.Errorf("cloud: opening bucket to upload file '%s': %v", files[1], err)
		}
		err = writeBlob(ctx, bucket, key, files[0])
		bucket.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// expandShp returns the given file + associated [.dbf, .shx, .prj]
// files if the given file has the .shp extension, and returns the given
// file otherwise
func expandShp(filename string) []string {
	o := []string{filename}
	ext := path.Ext(filename)
	if ext != ".shp" {
		return o
	}
	for _, newExt := range []string{".dbf", ".shx", ".prj"} {
		o = append(o, filename[0:len(filename)-4]+newExt)
	}
	return o
}
