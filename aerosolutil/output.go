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

package aerosolutil

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
	"github.com/lar555/aerosol"
	"github.com/tealeg/xlsx"
)

// writers holds the output writer for each supported file extension.
var writers = map[string]func(*aerosol.Dataset, string) error{
	".nc":   writeNCF,
	".ncf":  writeNCF,
	".csv":  writeCSV,
	".xlsx": writeXLSX,
	".shp":  writeShp,
}

// WriteOutput writes d to path in the format given by the path's
// extension. Tabular formats (.csv, .xlsx, .shp) hold one row per profile
// and one column per variable that is indexed only by time.
func WriteOutput(d *aerosol.Dataset, path string) error {
	w, ok := writers[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return fmt.Errorf("aerosol: unsupported output format `%s`", filepath.Ext(path))
	}
	return w(d, path)
}

func writeNCF(d *aerosol.Dataset, path string) error { return d.WriteFile(path) }

// table is a Dataset flattened to one row per time.
type table struct {
	times   []time.Time // nil if there is no time dimension.
	columns []string
	values  [][]float64 // [column][row]
}

func (t *table) rows() int {
	if len(t.values) == 0 {
		return len(t.times)
	}
	return len(t.values[0])
}

func (t *table) column(name string) ([]float64, error) {
	for i, c := range t.columns {
		if c == name {
			return t.values[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", aerosol.ErrMissingVariable, name)
}

// tabulate flattens the time-only and scalar variables of d. Scalars are
// repeated on every row. Variables with other dimensions cause an error
// when they are the AOD, and are otherwise skipped.
func tabulate(d *aerosol.Dataset) (*table, error) {
	t := new(table)
	n := 1
	if d.Has(aerosol.TimeDim) {
		var err error
		if t.times, err = d.Times(); err != nil {
			return nil, err
		}
		n = len(t.times)
	}
	for _, name := range d.Names() {
		if name == aerosol.TimeDim {
			continue
		}
		v := d.Vars[name]
		switch {
		case len(v.Dims) == 0:
			col := make([]float64, n)
			for i := range col {
				col[i] = v.Data.Elements[0]
			}
			t.columns = append(t.columns, name)
			t.values = append(t.values, col)
		case len(v.Dims) == 1 && v.Dims[0] == aerosol.TimeDim:
			t.columns = append(t.columns, name)
			t.values = append(t.values, v.Data.Elements)
		case name == aerosol.AODVar:
			return nil, fmt.Errorf("%w: %s has dimensions %v; tabular output needs %s only (use .nc output)",
				aerosol.ErrShapeMismatch, name, v.Dims, aerosol.TimeDim)
		}
	}
	return t, nil
}

// header returns the table's column names, with the time first.
func (t *table) header() []string {
	if t.times == nil {
		return t.columns
	}
	return append([]string{aerosol.TimeDim}, t.columns...)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeCSV(d *aerosol.Dataset, path string) error {
	t, err := tabulate(d)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("aerosol: creating output file: %v", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(t.header()); err != nil {
		f.Close()
		return err
	}
	for i := 0; i < t.rows(); i++ {
		var rec []string
		if t.times != nil {
			rec = append(rec, formatTime(t.times[i]))
		}
		for _, col := range t.values {
			rec = append(rec, formatFloat(col[i]))
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeXLSX(d *aerosol.Dataset, path string) error {
	t, err := tabulate(d)
	if err != nil {
		return err
	}
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(aerosol.AODVar)
	if err != nil {
		return err
	}
	row := sheet.AddRow()
	for _, h := range t.header() {
		row.AddCell().SetString(h)
	}
	for i := 0; i < t.rows(); i++ {
		row = sheet.AddRow()
		if t.times != nil {
			row.AddCell().SetString(formatTime(t.times[i]))
		}
		for _, col := range t.values {
			cell := row.AddCell()
			if !math.IsNaN(col[i]) {
				cell.SetFloat(col[i])
			}
		}
	}
	return f.Save(path)
}

// shpNames are the shapefile field names of columns whose names are
// longer than a DBF field name allows.
var shpNames = map[string]string{
	aerosol.TropopauseVar: "trop_alt",
	"extinction_error":    "ext_err",
	"temperature":         "temp",
}

// maxShpField is the maximum length of a DBF field name.
const maxShpField = 10

// shpFieldNames returns the shapefile field name for each column.
func shpFieldNames(columns []string) ([]string, error) {
	o := make([]string, len(columns))
	seen := map[string]string{aerosol.TimeDim: aerosol.TimeDim}
	for i, c := range columns {
		n, ok := shpNames[c]
		if !ok {
			n = c
		}
		if len(n) > maxShpField {
			n = n[:maxShpField]
		}
		if prev, ok := seen[n]; ok {
			return nil, fmt.Errorf("aerosol: shapefile field name %s is used by both %s and %s", n, prev, c)
		}
		seen[n] = c
		o[i] = n
	}
	return o, nil
}

// wgs84 is the .prj content for longitude-latitude point output.
const wgs84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.0174532925199433]]`

// writeShp writes a point shapefile with one point per profile located at
// the profile's longitude and latitude.
func writeShp(d *aerosol.Dataset, path string) error {
	t, err := tabulate(d)
	if err != nil {
		return err
	}
	lon, err := t.column("longitude")
	if err != nil {
		return err
	}
	lat, err := t.column("latitude")
	if err != nil {
		return err
	}
	var fields []goshp.Field
	if t.times != nil {
		fields = append(fields, goshp.StringField(aerosol.TimeDim, 30))
	}
	names, err := shpFieldNames(t.columns)
	if err != nil {
		return err
	}
	for _, c := range names {
		fields = append(fields, goshp.FloatField(c, 24, 12))
	}
	e, err := shp.NewEncoderFromFields(path, goshp.POINT, fields...)
	if err != nil {
		return fmt.Errorf("aerosol: creating shapefile: %v", err)
	}
	for i := 0; i < t.rows(); i++ {
		var vals []interface{}
		if t.times != nil {
			vals = append(vals, formatTime(t.times[i]))
		}
		for _, col := range t.values {
			vals = append(vals, col[i])
		}
		if err := e.EncodeFields(geom.Point{X: lon[i], Y: lat[i]}, vals...); err != nil {
			e.Close()
			return err
		}
	}
	e.Close()
	return os.WriteFile(strings.TrimSuffix(path, filepath.Ext(path))+".prj", []byte(wgs84), 0o644)
}
