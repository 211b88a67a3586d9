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

package aerosol

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"gonum.org/v1/gonum/floats"
)

var usaskAltitude = []float64{10.5, 11.5, 12.5, 13.5}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

// writeUSaskFile writes a monthly USask-style file holding one profile
// for each of times. Extinction at profile i and level k is
// 1e-3*(i+1) and its standard error is a tenth of that.
func writeUSaskFile(t *testing.T, dir, month string, times ...time.Time) {
	nt, nz := len(times), len(usaskAltitude)
	d := NewDataset()
	tv := zeros(nt)
	lat, lon, trop, orbit := zeros(nt), zeros(nt), zeros(nt), zeros(nt)
	ext, extErr := zeros(nt, nz), zeros(nt, nz)
	for i, tt := range times {
		tv.Elements[i] = epochSeconds(tt)
		lat.Elements[i] = float64(10*i - 10)
		lon.Elements[i] = float64(20 * i)
		trop.Elements[i] = 11
		orbit.Elements[i] = float64(40000 + tt.Day())
		for k := 0; k < nz; k++ {
			ext.Elements[i*nz+k] = 1e-3 * float64(i+1)
			extErr.Elements[i*nz+k] = 1e-4 * float64(i+1)
		}
	}
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(d.AddVariable(TimeDim, []string{TimeDim}, "", TimeUnits, tv))
	must(d.AddVariable(AltitudeDim, []string{AltitudeDim}, "", "km", array([]int{nz}, usaskAltitude...)))
	must(d.AddVariable("latitude", []string{TimeDim}, "", "degrees_north", lat))
	must(d.AddVariable("longitude", []string{TimeDim}, "", "degrees_east", lon))
	must(d.AddVariable(TropopauseVar, []string{TimeDim}, "", "km", trop))
	must(d.AddVariable("orbit", []string{TimeDim}, "", "", orbit))
	must(d.AddVariable(usaskExtinction, []string{TimeDim, AltitudeDim}, "", "km-1", ext))
	must(d.AddVariable(usaskExtinctionError, []string{TimeDim, AltitudeDim}, "", "km-1", extErr))
	must(d.AddVariable("retrieval_flag", []string{TimeDim}, "", "", zeros(nt)))
	must(d.WriteFile(filepath.Join(dir, "OMPS-NPP-LP-USask-AER-"+month+"-v1.3.nc")))
}

func usaskTestDir(t *testing.T) string {
	dir := t.TempDir()
	writeUSaskFile(t, dir, "202001", day(2020, 1, 20), day(2020, 1, 5), day(2020, 1, 10))
	writeUSaskFile(t, dir, "202002", day(2020, 2, 25), day(2020, 2, 3))
	return dir
}

func epochs(times ...time.Time) []float64 {
	o := make([]float64, len(times))
	for i, t := range times {
		o[i] = epochSeconds(t)
	}
	return o
}

func TestLoadUSask(t *testing.T) {
	dir := usaskTestDir(t)
	d, err := LoadUSask(dir, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	want := epochs(day(2020, 1, 5), day(2020, 1, 10), day(2020, 1, 20), day(2020, 2, 3), day(2020, 2, 25))
	if have := d.Vars[TimeDim].Data.Elements; !floats.Equal(have, want) {
		t.Errorf("time = %v; want %v", have, want)
	}
	wantNames := []string{AltitudeDim, ExtinctionVar, "extinction_error", "latitude", "longitude", "orbit", TimeDim, TropopauseVar}
	if names := d.Names(); !reflect.DeepEqual(names, wantNames) {
		t.Errorf("names = %v; want %v", names, wantNames)
	}
	// The first Jan 5 profile was the second in its file.
	if have := d.Vars[ExtinctionVar].Data.Elements[0]; different(have, 2e-3, testTolerance) {
		t.Errorf("extinction = %g; want 0.002", have)
	}
	if u := d.Vars[ExtinctionVar].Units; u != "km-1" {
		t.Errorf("units = %q", u)
	}

	o, err := AODAboveTropopause(d)
	if err != nil {
		t.Fatal(err)
	}
	// Jan 5: 0.002 km-1 from 11 to 13.5 km.
	if have := o.Vars[AODVar].Data.Elements[0]; different(have, 0.005, 1e-6) {
		t.Errorf("AOD = %g; want 0.005", have)
	}
}

func TestLoadUSaskTimeRange(t *testing.T) {
	dir := usaskTestDir(t)
	d, err := LoadUSask(dir, LoadOptions{MinTime: day(2020, 1, 8), MaxTime: day(2020, 2, 3)})
	if err != nil {
		t.Fatal(err)
	}
	want := epochs(day(2020, 1, 10), day(2020, 1, 20), day(2020, 2, 3))
	if have := d.Vars[TimeDim].Data.Elements; !floats.Equal(have, want) {
		t.Errorf("time = %v; want %v", have, want)
	}

	// The February file is not read.
	log, hook := test.NewNullLogger()
	log.Level = logrus.DebugLevel
	d, err = LoadUSask(dir, LoadOptions{MaxTime: day(2020, 1, 31), Log: log})
	if err != nil {
		t.Fatal(err)
	}
	if n := d.Dims()[TimeDim]; n != 3 {
		t.Errorf("%d profiles; want 3", n)
	}
	reads := 0
	for _, e := range hook.AllEntries() {
		if e.Message == "reading OMPS USask file" {
			reads++
		}
	}
	if reads != 1 {
		t.Errorf("read %d files; want 1", reads)
	}
}

func TestLoadUSaskAssociative(t *testing.T) {
	dir := usaskTestDir(t)
	all, err := LoadUSask(dir, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	jan, err := LoadUSask(dir, LoadOptions{MaxTime: day(2020, 1, 31)})
	if err != nil {
		t.Fatal(err)
	}
	feb, err := LoadUSask(dir, LoadOptions{MinTime: day(2020, 2, 1)})
	if err != nil {
		t.Fatal(err)
	}
	joined, err := Concat(TimeDim, jan, feb)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(joined.Names(), all.Names()) {
		t.Fatalf("names = %v; want %v", joined.Names(), all.Names())
	}
	for _, name := range all.Names() {
		if !floats.Equal(joined.Vars[name].Data.Elements, all.Vars[name].Data.Elements) {
			t.Errorf("%s: %v != %v", name, joined.Vars[name].Data.Elements, all.Vars[name].Data.Elements)
		}
	}
}

func TestLoadUSaskQualityMask(t *testing.T) {
	dir := t.TempDir()
	writeUSaskFile(t, dir, "202001", day(2020, 1, 1))
	path := filepath.Join(dir, "OMPS-NPP-LP-USask-AER-202001-v1.3.nc")
	d, err := OpenNCF(path)
	if err != nil {
		t.Fatal(err)
	}
	e := d.Vars[usaskExtinctionError].Data.Elements
	e[0] = 0      // not positive
	e[1] = 2e-3   // larger than the extinction
	e[2] = 1e-3   // equal to the extinction
	e[3] = 0.5e-3 // valid
	if err := d.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	o, err := LoadUSask(dir, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	ext := o.Vars[ExtinctionVar].Data.Elements
	for i := 0; i < 3; i++ {
		if !math.IsNaN(ext[i]) {
			t.Errorf("extinction[%d] = %g; want NaN", i, ext[i])
		}
	}
	if ext[3] != 1e-3 {
		t.Errorf("extinction[3] = %g; want 0.001", ext[3])
	}
}

func TestLoadUSaskBadFiles(t *testing.T) {
	dir := usaskTestDir(t)
	if err := os.WriteFile(filepath.Join(dir, "OMPS-NPP-LP-USask-AER-202001-broken.nc"), []byte("not netcdf"), 0644); err != nil {
		t.Fatal(err)
	}
	log, hook := test.NewNullLogger()
	d, err := LoadUSask(dir, LoadOptions{Log: log})
	if err != nil {
		t.Fatal(err)
	}
	if n := d.Dims()[TimeDim]; n != 5 {
		t.Errorf("%d profiles; want 5", n)
	}
	skipped := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			skipped++
		}
	}
	if skipped != 1 {
		t.Errorf("%d files skipped; want 1", skipped)
	}

	broken := t.TempDir()
	if err := os.WriteFile(filepath.Join(broken, "a.nc"), []byte("not netcdf"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadUSask(broken, LoadOptions{Log: log}); !errors.Is(err, ErrNoFiles) {
		t.Errorf("error = %v; want ErrNoFiles", err)
	}
}

func TestLoadUSaskNoFiles(t *testing.T) {
	if _, err := LoadUSask(t.TempDir(), LoadOptions{}); !errors.Is(err, ErrNoFiles) {
		t.Errorf("error = %v; want ErrNoFiles", err)
	}
	if _, err := LoadUSask(filepath.Join(t.TempDir(), "missing"), LoadOptions{}); !os.IsNotExist(err) {
		t.Errorf("error = %v; want not exist", err)
	}
}

func TestUSaskFileMonth(t *testing.T) {
	m, ok := usaskFileMonth("/data/OMPS-NPP-LP-USask-AER-202003m-v1.3.nc")
	if !ok || !m.Equal(day(2020, 3, 1)) {
		t.Errorf("month = %v, %v", m, ok)
	}
	if _, ok := usaskFileMonth("omps_2020.nc"); ok {
		t.Error("parsed a month from a name without one")
	}
}

func TestLoadIUP(t *testing.T) {
	dir := t.TempDir()
	const nm, nz = 4, 3
	vals := func(v ...float64) *sparse.DenseArray { return array([]int{nm}, v...) }
	d := NewDataset()
	ext, extErr, grid := zeros(nm, nz), zeros(nm, nz), zeros(nm, nz)
	for i := 0; i < nm; i++ {
		for k := 0; k < nz; k++ {
			// Levels are stored top down.
			ext.Elements[i*nz+k] = float64(10*i + (nz - k))
			extErr.Elements[i*nz+k] = 0.1
			grid.Elements[i*nz+k] = float64(30 - 10*k)
		}
	}
	meas, lev := "Num_Measurements", "Num_Alt_Levs"
	for _, v := range []struct {
		name string
		dims []string
		data *sparse.DenseArray
	}{
		{"Aer_Extinct_Coeff", []string{meas, lev}, ext},
		{"AEC_Uncert", []string{meas, lev}, extErr},
		{"Alt_Grid", []string{meas, lev}, grid},
		{"Solar_Zenith_Angle", []string{meas}, vals(80, 81, 82, 83)},
		{"Average_Latitude", []string{meas}, vals(1, 2, 3, 4)},
		{"Average_Longitude", []string{meas}, vals(5, 6, 7, 8)},
		{"Month", []string{meas}, vals(3, 3, 3, 3)},
		{"Day", []string{meas}, vals(2, 1, 2, 1)},
		{"UTC_Hours", []string{meas}, vals(6, 24, 6, 12)},
		{"UTC_Minutes", []string{meas}, vals(30, 0, 30, 0)},
		{"UTC_Seconds", []string{meas}, vals(1.5, 0, 1.5, 0)},
	} {
		if err := d.AddVariable(v.name, v.dims, "", "", v.data); err != nil {
			t.Fatal(err)
		}
	}
	d.Vars["Alt_Grid"].Units = "km"
	if err := d.WriteFile(filepath.Join(dir, "OMPS_Limb_AER_V2_1_2020.nc")); err != nil {
		t.Fatal(err)
	}

	o, err := LoadIUP(dir, LoadOptions{MinTime: day(2019, 6, 1), MaxTime: day(2020, 12, 31)})
	if err != nil {
		t.Fatal(err)
	}
	want := epochs(time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC), time.Date(2020, 3, 2, 6, 30, 1, 5e8, time.UTC))
	if have := o.Vars[TimeDim].Data.Elements; !floats.Equal(have, want) {
		t.Errorf("time = %v; want %v", have, want)
	}
	if have := o.Vars[AltitudeDim].Data.Elements; !floats.Equal(have, []float64{10, 20, 30}) {
		t.Errorf("altitude = %v", have)
	}
	// Measurement 3 at the first time, then measurement 0.
	if have := o.Vars[ExtinctionVar].Data.Elements; !floats.Equal(have, []float64{31, 32, 33, 1, 2, 3}) {
		t.Errorf("extinction = %v", have)
	}
	wantNames := []string{"SZA", AltitudeDim, ExtinctionVar, "extinction_error", "latitude", "longitude", TimeDim}
	if names := o.Names(); !reflect.DeepEqual(names, wantNames) {
		t.Errorf("names = %v; want %v", names, wantNames)
	}

	if _, err := LoadIUP(dir, LoadOptions{MinTime: day(2015, 1, 1), MaxTime: day(2016, 1, 1)}); !errors.Is(err, ErrNoFiles) {
		t.Errorf("error = %v; want ErrNoFiles", err)
	}
	all, err := LoadIUP(dir, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if n := all.Dims()[TimeDim]; n != 2 {
		t.Errorf("%d profiles; want 2", n)
	}

	// A year whose records are all at hour 24 is skipped.
	late := d.Copy()
	for i := range late.Vars["UTC_Hours"].Data.Elements {
		late.Vars["UTC_Hours"].Data.Elements[i] = 24
	}
	if err := late.WriteFile(filepath.Join(dir, "OMPS_Limb_AER_V2_1_2021.nc")); err != nil {
		t.Fatal(err)
	}
	log, hook := test.NewNullLogger()
	all, err = LoadIUP(dir, LoadOptions{MinTime: day(2020, 1, 1), MaxTime: day(2021, 12, 31), Log: log})
	if err != nil {
		t.Fatal(err)
	}
	if n := all.Dims()[TimeDim]; n != 2 {
		t.Errorf("%d profiles; want 2", n)
	}
	if e := hook.LastEntry(); e == nil || e.Level != logrus.InfoLevel {
		t.Errorf("last log entry = %v", e)
	}
	skipped := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			skipped = true
		}
	}
	if !skipped {
		t.Error("the hour-24 year was not logged as skipped")
	}
	if err := os.Remove(filepath.Join(dir, "OMPS_Limb_AER_V2_1_2020.nc")); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadIUP(dir, LoadOptions{}); !errors.Is(err, ErrNoFiles) {
		t.Errorf("error = %v; want ErrNoFiles", err)
	}
}

func TestLoadNASA(t *testing.T) {
	dir := t.TempDir()
	alt := []float64{0, 10, 20, 30, 40, 50}
	wl := []float64{510, 600, 745}
	const nt, nc = 2, 3
	nz, nw := len(alt), len(wl)
	ext := zeros(nt, nc, nz, nw)
	for i := range ext.Elements {
		ext.Elements[i] = float64(i)
	}
	d := NewDataset()
	for _, v := range []struct {
		name string
		dims []string
		data *sparse.DenseArray
	}{
		{TimeDim, []string{TimeDim}, array([]int{nt}, epochs(day(2021, 1, 2), day(2021, 1, 1))...)},
		{"crosstrack", []string{"crosstrack"}, array([]int{nc}, 0, 1, 2)},
		{AltitudeDim, []string{AltitudeDim}, array([]int{nz}, alt...)},
		{"wavelength", []string{"wavelength"}, array([]int{nw}, wl...)},
		{"RetrievedExtCoeff", []string{TimeDim, "crosstrack", AltitudeDim, "wavelength"}, ext},
		{"TropopauseAltitude", []string{TimeDim, "crosstrack"}, array([]int{nt, nc}, 15, 16, 17, 18, 19, 20)},
	} {
		if err := d.AddVariable(v.name, v.dims, "", "", v.data); err != nil {
			t.Fatal(err)
		}
	}
	d.Vars[TimeDim].Units = TimeUnits
	if err := d.WriteFile(filepath.Join(dir, "omps_nasa_2021.nc")); err != nil {
		t.Fatal(err)
	}

	w, ct := 700.0, 1
	o, err := LoadNASA(dir, NASAOptions{Wavelength: &w, Crosstrack: &ct})
	if err != nil {
		t.Fatal(err)
	}
	e := o.Vars[ExtinctionVar]
	if !reflect.DeepEqual(e.Dims, []string{TimeDim, AltitudeDim}) {
		t.Fatalf("extinction dims = %v", e.Dims)
	}
	if have := o.Vars[AltitudeDim].Data.Elements; !floats.Equal(have, alt[:5]) {
		t.Errorf("altitude = %v", have)
	}
	// Sorted by time: the second record comes first.
	idx := func(ti, ci, zi, wi int) float64 { return float64(((ti*nc+ci)*nz+zi)*nw + wi) }
	if have, want := e.Data.Elements[0], idx(1, 1, 0, 2); have != want {
		t.Errorf("extinction[0] = %g; want %g", have, want)
	}
	if have := o.Vars[TropopauseVar].Data.Elements; !floats.Equal(have, []float64{19, 16}) {
		t.Errorf("tropopause = %v", have)
	}

	all, err := LoadNASA(dir, NASAOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if dims := all.Vars[ExtinctionVar].Dims; len(dims) != 4 {
		t.Errorf("extinction dims = %v", dims)
	}
	bad := 7
	if _, err := LoadNASA(dir, NASAOptions{Crosstrack: &bad}); err == nil {
		t.Error("expected an error for a missing crosstrack position")
	}
}
