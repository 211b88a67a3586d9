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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
)

// Dimension names in the NASA daily files.
const (
	nasaAlongTrack = "DimAlongTrack"
	nasaCrossTrack = "DimCrossTrack"
	nasaAltitude   = "DimAltitudeLevel"
	nasaWavelength = "DimWavelengthRetGrid"
)

// nasaDailyVars are the variables copied from the NASA daily files into
// the yearly files.
var nasaDailyVars = []string{
	"RetrievedExtCoeff",
	"RetrievedExtCoeff_NOFILT",
	"ExtCoeffError",
	"CloudHeight",
	"Latitude",
	"Longitude",
	"SingleScatteringAngle",
	"SolarZenithAngle",
	"CloudType",
	"TropopauseAltitude",
	"Residual",
}

// YearlyOptions hold settings for CreateNASAYearlyFiles.
type YearlyOptions struct {
	// StartYear and EndYear bound the years that are processed.
	// Zero values are unbounded.
	StartYear, EndYear int

	// Version is used in the output file names. The default is "v21".
	Version string

	// Log receives progress messages. If nil, the logrus standard
	// logger is used.
	Log logrus.FieldLogger
}

// CreateNASAYearlyFiles combines the NASA OMPS-LP daily aerosol files in
// the year directories of dataDir (dataDir/<year>/*.nc) into one file
// per year in outputDir, named omps_nasa_<year>_aer_<version>.nc, which
// LoadNASA reads. It returns the paths of the files it wrote.
//
// The daily files must be NetCDF classic files with the variables of the
// ProfileFields, GeolocationFields and AncillaryData groups at the root,
// as written by "ncks -G : -3". Measurement times are built from Date and
// SecondsInDay, Altitude and Wavelength become the altitude and
// wavelength coordinates, and the along-track and cross-track dimensions
// are renamed to time and crosstrack.
func CreateNASAYearlyFiles(dataDir, outputDir string, opts YearlyOptions) ([]string, error) {
	log := LoadOptions{Log: opts.Log}.logger()
	version := opts.Version
	if version == "" {
		version = "v21"
	}
	if _, err := os.Stat(dataDir); err != nil {
		return nil, err
	}
	files, err := filepath.Glob(filepath.Join(dataDir, "*", "*.nc"))
	if err != nil {
		return nil, err
	}
	byYear := make(map[int][]string)
	for _, f := range files {
		year, err := strconv.Atoi(filepath.Base(filepath.Dir(f)))
		if err != nil {
			log.WithFields(logrus.Fields{"file": f}).Debug("skipping file outside a year directory")
			continue
		}
		if (opts.StartYear != 0 && year < opts.StartYear) || (opts.EndYear != 0 && year > opts.EndYear) {
			continue
		}
		byYear[year] = append(byYear[year], f)
	}
	if len(byYear) == 0 {
		return nil, fmt.Errorf("%w: no daily files for the requested years in %s", ErrNoFiles, dataDir)
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, year := range years {
		days := byYear[year]
		sort.Strings(days)
		data := make([]*Dataset, len(days))
		for i, f := range days {
			log.WithFields(logrus.Fields{"file": f}).Debug("reading OMPS NASA daily file")
			if data[i], err = readNASADaily(f); err != nil {
				return nil, fmt.Errorf("aerosol: yearly files: %s: %w", f, err)
			}
		}
		d, err := Concat(TimeDim, data...)
		if err != nil {
			return nil, fmt.Errorf("aerosol: yearly files: %d: %w", year, err)
		}
		if d, err = d.SortBy(TimeDim); err != nil {
			return nil, fmt.Errorf("aerosol: yearly files: %d: %w", year, err)
		}
		path := filepath.Join(outputDir, fmt.Sprintf("omps_nasa_%d_aer_%s.nc", year, version))
		if err := d.WriteFile(path); err != nil {
			return nil, fmt.Errorf("aerosol: yearly files: %w", err)
		}
		log.WithFields(logrus.Fields{
			"year":     year,
			"files":    len(days),
			"profiles": d.Dims()[TimeDim],
		}).Info("wrote OMPS NASA yearly file")
		written = append(written, path)
	}
	return written, nil
}

// readNASADaily reads one flattened NASA daily file and relabels it.
func readNASADaily(file string) (*Dataset, error) {
	d, err := OpenNCF(file)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{"Date", "SecondsInDay", "Altitude", "Wavelength", "RetrievedExtCoeff"} {
		if !d.Has(name) {
			return nil, fmt.Errorf("%w: %s", ErrMissingVariable, name)
		}
	}
	times, err := nasaTimes(d.Vars["Date"], d.Vars["SecondsInDay"])
	if err != nil {
		return nil, err
	}
	coords := make(map[string]*Variable)
	for name, dim := range map[string]string{"Altitude": nasaAltitude, "Wavelength": nasaWavelength} {
		v := d.Vars[name]
		if len(v.Dims) != 1 || v.Dims[0] != dim {
			return nil, fmt.Errorf("%w: %s has dimensions %v; want [%s]", ErrShapeMismatch, name, v.Dims, dim)
		}
		coords[dim] = v
	}

	o, err := d.Subset(present(d, nasaDailyVars)...)
	if err != nil {
		return nil, err
	}
	dims := o.Dims()
	for _, r := range []struct{ from, to string }{
		{nasaAlongTrack, TimeDim},
		{nasaAltitude, AltitudeDim},
		{nasaWavelength, "wavelength"},
		{nasaCrossTrack, "crosstrack"},
		{"Latitude", "latitude"},
		{"Longitude", "longitude"},
	} {
		if _, isDim := dims[r.from]; !isDim && !o.Has(r.from) {
			continue
		}
		if err := o.Rename(r.from, r.to); err != nil {
			return nil, err
		}
	}
	if err := o.AddVariable(TimeDim, []string{TimeDim}, "measurement time", TimeUnits, times); err != nil {
		return nil, err
	}
	alt := coords[nasaAltitude]
	if err := o.AddVariable(AltitudeDim, []string{AltitudeDim}, "altitude", alt.Units, clone(alt.Data)); err != nil {
		return nil, err
	}
	wl := coords[nasaWavelength]
	if err := o.AddVariable("wavelength", []string{"wavelength"}, "wavelength", wl.Units, clone(wl.Data)); err != nil {
		return nil, err
	}
	return o, nil
}

// nasaTimes returns the measurement times from a YYYYMMDD date, either one
// value for the file or one per measurement, and the seconds into the day.
func nasaTimes(date, seconds *Variable) (*sparse.DenseArray, error) {
	if len(seconds.Dims) != 1 || seconds.Dims[0] != nasaAlongTrack {
		return nil, fmt.Errorf("%w: SecondsInDay has dimensions %v; want [%s]", ErrShapeMismatch, seconds.Dims, nasaAlongTrack)
	}
	n := len(seconds.Data.Elements)
	dates := date.Data.Elements
	if len(dates) != 1 && len(dates) != n {
		return nil, fmt.Errorf("%w: Date has %d values for %d measurements", ErrShapeMismatch, len(dates), n)
	}
	times := zeros(n)
	for i, s := range seconds.Data.Elements {
		dv := dates[0]
		if len(dates) == n {
			dv = dates[i]
		}
		day, err := time.Parse("20060102", fmt.Sprintf("%08d", int(dv)))
		if err != nil {
			return nil, fmt.Errorf("aerosol: invalid Date %v: %w", dv, err)
		}
		times.Elements[i] = epochSeconds(day) + s
	}
	return times, nil
}
