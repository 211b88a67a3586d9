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
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Variable names in the USask OMPS files.
const (
	usaskExtinction      = "volume_extinction_coefficient_in_air_due_to_ambient_aerosol_particles"
	usaskExtinctionError = "volume_extinction_coefficient_in_air_due_to_ambient_aerosol_particles_standard_error"
)

// usaskVars are the variables kept by LoadUSask, after renaming.
var usaskVars = []string{
	"extinction",
	"extinction_error",
	"latitude",
	"longitude",
	"tropopause_altitude",
	"pressure",
	"temperature",
	"orbit",
}

// LoadOptions hold settings common to the loaders.
type LoadOptions struct {
	// MinTime and MaxTime bound the profiles that are loaded.
	// Zero values are unbounded.
	MinTime, MaxTime time.Time

	// Log receives progress and skipped-file messages. If nil,
	// the logrus standard logger is used.
	Log logrus.FieldLogger
}

func (o LoadOptions) logger() logrus.FieldLogger {
	if o.Log == nil {
		return logrus.StandardLogger()
	}
	return o.Log
}

// LoadUSask loads the monthly USask OMPS-LP aerosol files in dir.
//
// Files whose month, taken from the sixth '-'-separated field of the file
// name, cannot overlap [opts.MinTime, opts.MaxTime] are not read. Files
// that cannot be read are logged and skipped. The profiles are concatenated
// along time and sorted, the extinction variables are renamed to
// "extinction" and "extinction_error", and extinction is set to NaN where
// its standard error is not positive or is at least as large as the
// extinction itself.
func LoadUSask(dir string, opts LoadOptions) (*Dataset, error) {
	log := opts.logger()
	files, err := ncFiles(dir)
	if err != nil {
		return nil, err
	}
	var data []*Dataset
	for _, file := range files {
		if start, ok := usaskFileMonth(file); ok {
			if !opts.MinTime.IsZero() && start.AddDate(0, 0, 32).Before(opts.MinTime) {
				continue
			}
			if !opts.MaxTime.IsZero() && start.After(opts.MaxTime) {
				continue
			}
		}
		log.WithFields(logrus.Fields{"file": file}).Debug("reading OMPS USask file")
		d, err := OpenNCF(file)
		if err == nil {
			d, err = d.SortBy(TimeDim)
		}
		if err != nil {
			log.WithFields(logrus.Fields{"file": file, "error": err}).Error("skipping unreadable file")
			continue
		}
		data = append(data, d)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no readable files for the requested times in %s", ErrNoFiles, dir)
	}
	omps, err := Concat(TimeDim, data...)
	if err != nil {
		return nil, fmt.Errorf("aerosol: load USask: %w", err)
	}
	if omps, err = omps.SortBy(TimeDim); err != nil {
		return nil, fmt.Errorf("aerosol: load USask: %w", err)
	}
	for from, to := range map[string]string{
		usaskExtinction:      ExtinctionVar,
		usaskExtinctionError: "extinction_error",
	} {
		if omps.Has(from) {
			if err := omps.Rename(from, to); err != nil {
				return nil, fmt.Errorf("aerosol: load USask: %w", err)
			}
		}
	}
	if omps, err = omps.Subset(present(omps, usaskVars)...); err != nil {
		return nil, fmt.Errorf("aerosol: load USask: %w", err)
	}
	if !omps.Has(ExtinctionVar) {
		return nil, fmt.Errorf("aerosol: load USask: %w: %s", ErrMissingVariable, usaskExtinction)
	}
	if omps, err = SelTime(omps, opts.MinTime, opts.MaxTime); err != nil {
		return nil, fmt.Errorf("aerosol: load USask: %w", err)
	}
	if err := maskExtinction(omps); err != nil {
		return nil, fmt.Errorf("aerosol: load USask: %w", err)
	}
	log.WithFields(logrus.Fields{"files": len(data), "profiles": omps.Dims()[TimeDim]}).Info("loaded OMPS USask data")
	return omps, nil
}

// maskExtinction sets extinction to NaN where extinction_error is not
// positive or the relative error is at least 1.
func maskExtinction(d *Dataset) error {
	errVar, ok := d.Vars["extinction_error"]
	if !ok {
		return nil
	}
	ext := d.Vars[ExtinctionVar]
	if !sameShape(ext.Data.Shape, errVar.Data.Shape) {
		return fmt.Errorf("%w: extinction has shape %v but extinction_error has shape %v",
			ErrShapeMismatch, ext.Data.Shape, errVar.Data.Shape)
	}
	for i, e := range errVar.Data.Elements {
		if !(e > 0) || !(e/ext.Data.Elements[i] < 1) {
			ext.Data.Elements[i] = math.NaN()
		}
	}
	return nil
}

// usaskFileMonth returns the first instant of the month encoded in
// the sixth '-'-separated field of a USask file name.
func usaskFileMonth(file string) (time.Time, bool) {
	fields := strings.Split(filepath.Base(file), "-")
	if len(fields) < 6 || len(fields[5]) < 6 {
		return time.Time{}, false
	}
	t, err := time.Parse("200601", fields[5][:6])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ncFiles returns the sorted NetCDF files in dir.
func ncFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.nc"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no *.nc files in %s", ErrNoFiles, dir)
	}
	sort.Strings(files)
	return files, nil
}

// present returns the names that are variables in d.
func present(d *Dataset, names []string) []string {
	var o []string
	for _, n := range names {
		if d.Has(n) {
			o = append(o, n)
		}
	}
	return o
}

// NASAOptions hold settings for LoadNASA.
type NASAOptions struct {
	LoadOptions

	// Wavelength, if not nil, selects the nearest wavelength.
	Wavelength *float64

	// Crosstrack, if not nil, selects one cross-track position.
	Crosstrack *int
}

// nasaMaxAltitude is the top of the altitude range kept by LoadNASA.
const nasaMaxAltitude = 41.0

// LoadNASA loads yearly NASA OMPS-LP aerosol files in dir. Each file is
// limited to altitudes between 0 and 41 km and, optionally, to one
// wavelength and cross-track position. "RetrievedExtCoeff" is renamed to
// "extinction" and "TropopauseAltitude" to "tropopause_altitude".
func LoadNASA(dir string, opts NASAOptions) (*Dataset, error) {
	log := opts.logger()
	files, err := ncFiles(dir)
	if err != nil {
		return nil, err
	}
	data := make([]*Dataset, 0, len(files))
	for _, file := range files {
		log.WithFields(logrus.Fields{"file": file}).Debug("reading OMPS NASA file")
		d, err := OpenNCF(file)
		if err != nil {
			return nil, err
		}
		if d, err = nasaSubselect(d, opts); err != nil {
			return nil, fmt.Errorf("aerosol: load NASA: %s: %w", file, err)
		}
		data = append(data, d)
	}
	omps, err := Concat(TimeDim, data...)
	if err != nil {
		return nil, fmt.Errorf("aerosol: load NASA: %w", err)
	}
	if omps, err = omps.SortBy(TimeDim); err != nil {
		return nil, fmt.Errorf("aerosol: load NASA: %w", err)
	}
	if !opts.MinTime.IsZero() && !opts.MaxTime.IsZero() {
		if omps, err = SelTime(omps, opts.MinTime, opts.MaxTime); err != nil {
			return nil, fmt.Errorf("aerosol: load NASA: %w", err)
		}
	}
	for from, to := range map[string]string{
		"RetrievedExtCoeff":  ExtinctionVar,
		"TropopauseAltitude": TropopauseVar,
	} {
		if err := omps.Rename(from, to); err != nil {
			return nil, fmt.Errorf("aerosol: load NASA: %w", err)
		}
	}
	log.WithFields(logrus.Fields{"files": len(data), "profiles": omps.Dims()[TimeDim]}).Info("loaded OMPS NASA data")
	return omps, nil
}

func nasaSubselect(d *Dataset, opts NASAOptions) (*Dataset, error) {
	d, err := d.SelRange(AltitudeDim, 0, nasaMaxAltitude)
	if err != nil {
		return nil, err
	}
	if opts.Wavelength != nil {
		if d, err = d.SelNearest("wavelength", *opts.Wavelength); err != nil {
			return nil, err
		}
	}
	if opts.Crosstrack != nil {
		ct := *opts.Crosstrack
		idx := ct
		if c, err := d.Coord("crosstrack"); err == nil {
			idx = -1
			for i, v := range c {
				if v == float64(ct) {
					idx = i
				}
			}
			if idx < 0 {
				return nil, fmt.Errorf("aerosol: no crosstrack position %d", ct)
			}
		}
		if d, err = d.Squeeze("crosstrack", idx); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// iupVars maps the IUP variable names kept by LoadIUP to their new names.
var iupVars = map[string]string{
	"Average_Latitude":   "latitude",
	"Average_Longitude":  "longitude",
	"Aer_Extinct_Coeff":  ExtinctionVar,
	"AEC_Uncert":         "extinction_error",
	"Solar_Zenith_Angle": "SZA",
}

// iupFilePrefix is the name of the yearly IUP files before the year.
const iupFilePrefix = "OMPS_Limb_AER_V2_1_"

// LoadIUP loads the yearly IUP Bremen OMPS-LP aerosol files
// (OMPS_Limb_AER_V2_1_<year>.nc) in dir for each year between
// opts.MinTime and opts.MaxTime. Missing years are skipped. Measurement
// times are built from the Month, Day and UTC_* variables, records at
// hour 24 are dropped, and duplicate times are removed.
func LoadIUP(dir string, opts LoadOptions) (*Dataset, error) {
	log := opts.logger()
	years, err := iupYears(dir, opts)
	if err != nil {
		return nil, err
	}
	var data []*Dataset
	for _, year := range years {
		file := filepath.Join(dir, fmt.Sprintf("%s%d.nc", iupFilePrefix, year))
		d, err := OpenNCF(file)
		if os.IsNotExist(err) {
			log.WithFields(logrus.Fields{"year": year}).Debug("no IUP file for year")
			continue
		} else if err != nil {
			return nil, err
		}
		if d, err = iupProfiles(d, year); errors.Is(err, ErrNoFiles) {
			log.WithFields(logrus.Fields{"file": file, "error": err}).Warn("skipping IUP file")
			continue
		} else if err != nil {
			return nil, fmt.Errorf("aerosol: load IUP: %s: %w", file, err)
		}
		data = append(data, d)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no IUP files for the requested years in %s", ErrNoFiles, dir)
	}
	omps, err := Concat(TimeDim, data...)
	if err != nil {
		return nil, fmt.Errorf("aerosol: load IUP: %w", err)
	}
	if omps, err = SelTime(omps, opts.MinTime, opts.MaxTime); err != nil {
		return nil, fmt.Errorf("aerosol: load IUP: %w", err)
	}
	if omps, err = omps.SortBy(AltitudeDim); err != nil {
		return nil, fmt.Errorf("aerosol: load IUP: %w", err)
	}
	if omps, err = omps.SortBy(TimeDim); err != nil {
		return nil, fmt.Errorf("aerosol: load IUP: %w", err)
	}
	if omps, err = omps.Unique(TimeDim); err != nil {
		return nil, fmt.Errorf("aerosol: load IUP: %w", err)
	}
	log.WithFields(logrus.Fields{"files": len(data), "profiles": omps.Dims()[TimeDim]}).Info("loaded OMPS IUP data")
	return omps, nil
}

// iupYears returns the years to load: every year between the time
// bounds, or the years of every IUP file in dir if a bound is unset.
func iupYears(dir string, opts LoadOptions) ([]int, error) {
	if !opts.MinTime.IsZero() && !opts.MaxTime.IsZero() {
		var years []int
		for y := opts.MinTime.Year(); y <= opts.MaxTime.Year(); y++ {
			years = append(years, y)
		}
		return years, nil
	}
	files, err := filepath.Glob(filepath.Join(dir, iupFilePrefix+"*.nc"))
	if err != nil {
		return nil, err
	}
	var years []int
	for _, f := range files {
		s := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(f), iupFilePrefix), ".nc")
		y, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		if (!opts.MinTime.IsZero() && y < opts.MinTime.Year()) || (!opts.MaxTime.IsZero() && y > opts.MaxTime.Year()) {
			continue
		}
		years = append(years, y)
	}
	if len(years) == 0 {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: no %s*.nc files in %s", ErrNoFiles, iupFilePrefix, dir)
	}
	sort.Ints(years)
	return years, nil
}

// iupProfiles converts one year of IUP data to a profile dataset
// with time and altitude dimensions.
func iupProfiles(d *Dataset, year int) (*Dataset, error) {
	for _, v := range []string{"Month", "Day", "UTC_Hours", "UTC_Minutes", "UTC_Seconds", "Alt_Grid"} {
		if !d.Has(v) {
			return nil, fmt.Errorf("%w: %s", ErrMissingVariable, v)
		}
	}
	hours := d.Vars["UTC_Hours"]
	if len(hours.Dims) != 1 {
		return nil, fmt.Errorf("%w: UTC_Hours has dimensions %v", ErrShapeMismatch, hours.Dims)
	}
	measDim := hours.Dims[0]
	var good []int
	for i, h := range hours.Data.Elements {
		if h != 24 {
			good = append(good, i)
		}
	}
	if len(good) == 0 {
		return nil, fmt.Errorf("%w: every record of %d is at UTC hour 24", ErrNoFiles, year)
	}
	d, err := d.Isel(measDim, good)
	if err != nil {
		return nil, err
	}

	month := d.Vars["Month"].Data.Elements
	day := d.Vars["Day"].Data.Elements
	hour := d.Vars["UTC_Hours"].Data.Elements
	minute := d.Vars["UTC_Minutes"].Data.Elements
	second := d.Vars["UTC_Seconds"].Data.Elements
	times := zeros(len(good))
	for i := range times.Elements {
		sec, frac := math.Modf(second[i])
		t := time.Date(year, time.Month(int(month[i])), int(day[i]), int(hour[i]), int(minute[i]),
			int(sec), int(math.Round(frac*1e6))*1000, time.UTC)
		times.Elements[i] = epochSeconds(t)
	}

	grid := d.Vars["Alt_Grid"]
	altDim := grid.Dims[len(grid.Dims)-1]
	nz := grid.Data.Shape[len(grid.Data.Shape)-1]
	alt := zeros(nz)
	copy(alt.Elements, grid.Data.Elements[:nz])

	o := NewDataset()
	for k, a := range d.Attributes {
		o.Attributes[k] = a
	}
	for from, to := range iupVars {
		v, ok := d.Vars[from]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingVariable, from)
		}
		o.Vars[to] = v.copyWith(clone(v.Data))
	}
	if err := o.Rename(measDim, TimeDim); err != nil {
		return nil, err
	}
	if err := o.Rename(altDim, AltitudeDim); err != nil {
		return nil, err
	}
	if err := o.AddVariable(TimeDim, []string{TimeDim}, "measurement time", TimeUnits, times); err != nil {
		return nil, err
	}
	if err := o.AddVariable(AltitudeDim, []string{AltitudeDim}, "altitude", grid.Units, alt); err != nil {
		return nil, err
	}
	return o.SortBy(TimeDim)
}
