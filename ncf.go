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
	"math"
	"os"
	"sort"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// scalarDim is the dimension given to zero-dimensional variables
// in netcdf files.
const scalarDim = "scalar"

// Attributes that are applied to the data when it is read rather than
// carried along with the variable.
var decodeAttributes = map[string]bool{
	"_FillValue":    true,
	"missing_value": true,
	"scale_factor":  true,
	"add_offset":    true,
	"description":   true,
	"units":         true,
}

// ReadNCF reads every numeric variable from a NetCDF classic file.
// Fill and missing values become NaN, packed data is unpacked, and a
// "time" variable with CF units is converted to seconds since 1970.
// Character variables are skipped.
func ReadNCF(rw cdf.ReaderWriterAt) (*Dataset, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("aerosol: open netcdf: %w", err)
	}
	var fileSize int64
	if s, ok := rw.(interface{ Stat() (os.FileInfo, error) }); ok {
		if fi, err := s.Stat(); err == nil {
			fileSize = fi.Size()
		}
	}
	d := NewDataset()
	for _, a := range f.Header.Attributes("") {
		d.Attributes[a] = f.Header.GetAttribute("", a)
	}
	for _, name := range f.Header.Variables() {
		lengths := append([]int(nil), f.Header.Lengths(name)...)
		if f.Header.IsRecordVariable(name) {
			lengths[0] = int(f.Header.NumRecs(fileSize))
		}
		vals, ok, err := readNCFVar(f, name, lengths)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		dims := f.Header.Dimensions(name)
		if len(dims) == 1 && dims[0] == scalarDim {
			dims, lengths = nil, nil
		}
		v := &Variable{
			Dims:       dims,
			Attributes: make(map[string]interface{}),
		}
		for _, a := range f.Header.Attributes(name) {
			val := f.Header.GetAttribute(name, a)
			if !decodeAttributes[a] {
				v.Attributes[a] = val
			}
		}
		if s, ok := f.Header.GetAttribute(name, "units").(string); ok {
			v.Units = strings.TrimRight(s, "\x00")
		}
		if s, ok := f.Header.GetAttribute(name, "description").(string); ok {
			v.Description = strings.TrimRight(s, "\x00")
		} else if s, ok := f.Header.GetAttribute(name, "long_name").(string); ok {
			v.Description = strings.TrimRight(s, "\x00")
		}
		decodeValues(vals, f.Header, name)
		if name == "time" && strings.Contains(v.Units, " since ") {
			if err := toEpochSeconds(vals, v.Units); err != nil {
				return nil, fmt.Errorf("aerosol: read netcdf variable %s: %w", name, err)
			}
			v.Units = TimeUnits
		}
		v.Data = zeros(lengths...)
		copy(v.Data.Elements, vals)
		d.Vars[name] = v
	}
	return d, nil
}

// readNCFVar reads variable name as float64 values. It returns false for
// variables that do not hold numbers.
func readNCFVar(f *cdf.File, name string, lengths []int) ([]float64, bool, error) {
	n := size(lengths)
	if n == 0 {
		return []float64{}, true, nil
	}
	var begin, end []int
	if len(lengths) > 0 {
		begin, end = make([]int, len(lengths)), lengths
	}
	r := f.Reader(name, begin, end)
	buf := r.Zero(n)
	if _, ok := buf.(string); ok {
		return nil, false, nil
	}
	if _, err := r.Read(buf); err != nil {
		return nil, false, fmt.Errorf("aerosol: read netcdf variable %s: %w", name, err)
	}
	vals, ok := toFloats(buf)
	return vals, ok, nil
}

// toFloats converts a netcdf data buffer to float64 values.
func toFloats(buf interface{}) ([]float64, bool) {
	var o []float64
	switch b := buf.(type) {
	case []float64:
		o = append(o, b...)
	case []float32:
		o = make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
	case []int32:
		o = make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
	case []int16:
		o = make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
	case []uint8:
		o = make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
	default:
		return nil, false
	}
	return o, true
}

// attrFloat returns the first value of a numeric attribute.
func attrFloat(a interface{}) (float64, bool) {
	v, ok := toFloats(a)
	if !ok || len(v) == 0 {
		return 0, false
	}
	return v[0], true
}

// decodeValues replaces fill values with NaN and applies
// scale_factor and add_offset.
func decodeValues(vals []float64, h *cdf.Header, name string) {
	var fills []float64
	for _, a := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrFloat(h.GetAttribute(name, a)); ok {
			fills = append(fills, v)
		}
	}
	scale, hasScale := attrFloat(h.GetAttribute(name, "scale_factor"))
	offset, hasOffset := attrFloat(h.GetAttribute(name, "add_offset"))
	for i, v := range vals {
		// Default fill value for unwritten floating point data.
		if math.Abs(v) > 9.9e36 {
			vals[i] = math.NaN()
			continue
		}
		for _, fv := range fills {
			if v == fv {
				v = math.NaN()
				break
			}
		}
		if hasScale {
			v *= scale
		}
		if hasOffset {
			v += offset
		}
		vals[i] = v
	}
}

// OpenNCF reads the NetCDF classic file at path.
func OpenNCF(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, err := ReadNCF(f)
	if err != nil {
		return nil, fmt.Errorf("%w (file %s)", err, path)
	}
	return d, nil
}

// Write writes d to netcdf file w. Variables are stored as float64 in
// name order.
func (d *Dataset) Write(w cdf.ReaderWriterAt) error {
	names := d.Names()

	var dimNames []string
	var dimLengths []int
	seen := make(map[string]int)
	addDim := func(name string, n int) error {
		if m, ok := seen[name]; ok {
			if m != n {
				return fmt.Errorf("%w: dimension %s has lengths %d and %d", ErrShapeMismatch, name, m, n)
			}
			return nil
		}
		seen[name] = n
		dimNames = append(dimNames, name)
		dimLengths = append(dimLengths, n)
		return nil
	}
	for _, name := range names {
		v := d.Vars[name]
		if len(v.Dims) == 0 {
			if err := addDim(scalarDim, 1); err != nil {
				return err
			}
		}
		for i, dim := range v.Dims {
			if err := addDim(dim, v.Data.Shape[i]); err != nil {
				return err
			}
		}
	}

	h := cdf.NewHeader(dimNames, dimLengths)
	for _, a := range sortedKeys(d.Attributes) {
		if val, ok := attrValue(d.Attributes[a]); ok {
			h.AddAttribute("", a, val)
		}
	}
	for _, name := range names {
		v := d.Vars[name]
		dims := v.Dims
		if len(dims) == 0 {
			dims = []string{scalarDim}
		}
		h.AddVariable(name, dims, []float64{0})
		if v.Description != "" {
			h.AddAttribute(name, "description", v.Description)
		}
		if v.Units != "" {
			h.AddAttribute(name, "units", v.Units)
		}
		for _, a := range sortedKeys(v.Attributes) {
			if decodeAttributes[a] {
				continue
			}
			if val, ok := attrValue(v.Attributes[a]); ok {
				h.AddAttribute(name, a, val)
			}
		}
	}
	h.Define()

	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return fmt.Errorf("aerosol: create netcdf: %w", err)
	}
	for _, name := range names {
		if err = writeNCF(f, name, d.Vars[name].Data); err != nil {
			return fmt.Errorf("aerosol: writing variable %s to netcdf file: %w", name, err)
		}
	}
	if ff, ok := w.(*os.File); ok {
		if err := cdf.UpdateNumRecs(ff); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile writes d to a new NetCDF classic file at path.
func (d *Dataset) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := d.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeNCF(f *cdf.File, name string, data *sparse.DenseArray) error {
	if len(data.Elements) != size(data.Shape) {
		return fmt.Errorf("dims are %d but array length is %d", size(data.Shape), len(data.Elements))
	}
	if len(data.Elements) == 0 {
		return nil
	}
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	_, err := w.Write(data.Elements)
	return err
}

// attrValue converts a to one of the attribute types netcdf supports.
func attrValue(a interface{}) (interface{}, bool) {
	switch v := a.(type) {
	case string, []uint8, []int16, []int32, []float32, []float64:
		return v, true
	case float64:
		return []float64{v}, true
	case float32:
		return []float32{v}, true
	case int:
		return []int32{int32(v)}, true
	case int32:
		return []int32{v}, true
	case []int:
		o := make([]int32, len(v))
		for i, x := range v {
			o[i] = int32(x)
		}
		return o, true
	}
	return nil, false
}

func sortedKeys(m map[string]interface{}) []string {
	o := make([]string, 0, len(m))
	for k := range m {
		o = append(o, k)
	}
	sort.Strings(o)
	return o
}
