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
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestIsBlob(t *testing.T) {
	for path, want := range map[string]bool{
		"gs://bucket/omps":       true,
		"s3://bucket/omps/a.nc":  true,
		"file:///tmp/omps":       true,
		"/data/omps":             false,
		"https://example.com/x":  false,
		"omps/OMPS-NPP-LP.nc":    false,
		"gsutil://something/odd": false,
	} {
		if have := IsBlob(path); have != want {
			t.Errorf("IsBlob(%q) = %v; want %v", path, have, want)
		}
	}
}

func TestOpenBucketInvalid(t *testing.T) {
	if _, err := OpenBucket(context.Background(), "ftp://bucket"); err == nil {
		t.Error("expected an error for an unsupported provider")
	}
}

func TestDownloadDir(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	files := map[string]string{
		"OMPS-NPP-LP-USask-AER-201901-v1.3.nc": "a",
		"OMPS-NPP-LP-USask-AER-201902-v1.3.nc": "bb",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(src, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(src, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "nested", "skip.nc"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	log, hook := test.NewNullLogger()
	log.Level = logrus.DebugLevel
	local, err := DownloadDir(ctx, "file://"+src, log)
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(local)
	entries, err := os.ReadDir(local)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
		b, err := os.ReadFile(filepath.Join(local, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != files[e.Name()] {
			t.Errorf("%s = %q; want %q", e.Name(), b, files[e.Name()])
		}
	}
	sort.Strings(names)
	want := []string{"OMPS-NPP-LP-USask-AER-201901-v1.3.nc", "OMPS-NPP-LP-USask-AER-201902-v1.3.nc"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("downloaded %v; want %v", names, want)
	}
	if n := len(hook.AllEntries()); n != 2 {
		t.Errorf("%d log entries; want 2", n)
	}

	if p, err := DownloadDir(ctx, src, nil); err != nil || p != src {
		t.Errorf("local directory: %q, %v", p, err)
	}
}

func TestUploadDownload(t *testing.T) {
	ctx := context.Background()
	dst := t.TempDir()
	var u Uploader
	local, err := u.MaybeUpload("file://" + filepath.Join(dst, "aod.shp"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(local) != "aod.shp" {
		t.Fatalf("local path = %s", local)
	}
	for _, ext := range []string{".shp", ".dbf", ".shx"} {
		if err := os.WriteFile(local[:len(local)-4]+ext, []byte(ext), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := u.Upload(ctx); err != nil {
		t.Fatal(err)
	}
	for _, ext := range []string{".shp", ".dbf", ".shx"} {
		b, err := os.ReadFile(filepath.Join(dst, "aod"+ext))
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != ext {
			t.Errorf("aod%s = %q", ext, b)
		}
	}
	if _, err := os.Stat(filepath.Join(dst, "aod.prj")); !os.IsNotExist(err) {
		t.Error("unwritten .prj file should not be uploaded")
	}

	p, err := Download(ctx, "file://"+filepath.Join(dst, "aod.shp"))
	if err != nil {
		t.Fatal(err)
	}
	if b, err := os.ReadFile(p); err != nil || string(b) != ".shp" {
		t.Errorf("downloaded %s: %q, %v", p, b, err)
	}

	if p, err := u.MaybeUpload("aod.nc"); err != nil || p != "aod.nc" {
		t.Errorf("local output: %q, %v", p, err)
	}
}
