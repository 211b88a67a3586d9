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

// Package aerosol loads satellite aerosol extinction profiles and
// integrates them into aerosol optical depth above the tropopause.
package aerosol

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ctessum/sparse"
)

// Version gives the version number.
const Version = "0.3.0"

var (
	// ErrMissingVariable is returned when a requested variable is not in a Dataset.
	ErrMissingVariable = errors.New("aerosol: missing variable")

	// ErrMissingDimension is returned when a required dimension or its
	// coordinate variable is absent.
	ErrMissingDimension = errors.New("aerosol: missing dimension")

	// ErrShapeMismatch is returned when variables do not have compatible
	// dimensions.
	ErrShapeMismatch = errors.New("aerosol: shape mismatch")

	// ErrNoFiles is returned by the loaders when no input files match.
	ErrNoFiles = errors.New("aerosol: no matching files")
)

// Variable is a labeled array.
type Variable struct {
	Dims        []string               // dimension names, one per axis of Data
	Description string                 // variable description
	Units       string                 // variable units
	Attributes  map[string]interface{} // other netcdf attributes
	Data        *sparse.DenseArray     // variable data
}

// Dataset is a collection of variables that share named dimensions.
// A variable whose only dimension has the same name as the variable
// is the coordinate variable for that dimension.
type Dataset struct {
	Vars       map[string]*Variable
	Attributes map[string]interface{}
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		Vars:       make(map[string]*Variable),
		Attributes: make(map[string]interface{}),
	}
}

// AddVariable adds data for a new variable to d, replacing any existing
// variable with the same name. The length of each dimension must agree
// with the other variables in d.
func (d *Dataset) AddVariable(name string, dims []string, description, units string, data *sparse.DenseArray) error {
	if len(dims) != len(data.Shape) {
		return fmt.Errorf("%w: variable %s has %d dimension names but %d axes",
			ErrShapeMismatch, name, len(dims), len(data.Shape))
	}
	if len(data.Elements) != size(data.Shape) {
		return fmt.Errorf("%w: variable %s has shape %v but %d elements",
			ErrShapeMismatch, name, data.Shape, len(data.Elements))
	}
	lengths := d.dimLengths(name)
	for i, dim := range dims {
		if n, ok := lengths[dim]; ok && n != data.Shape[i] {
			return fmt.Errorf("%w: variable %s dimension %s has length %d but the dataset has %d",
				ErrShapeMismatch, name, dim, data.Shape[i], n)
		}
	}
	if d.Vars == nil {
		d.Vars = make(map[string]*Variable)
	}
	d.Vars[name] = &Variable{
		Dims:        append([]string(nil), dims...),
		Description: description,
		Units:       units,
		Attributes:  make(map[string]interface{}),
		Data:        data,
	}
	return nil
}

// Var returns the named variable.
func (d *Dataset) Var(name string) (*Variable, error) {
	v, ok := d.Vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingVariable, name)
	}
	return v, nil
}

// Has returns whether d holds variable name.
func (d *Dataset) Has(name string) bool {
	_, ok := d.Vars[name]
	return ok
}

// Names returns the variable names in sorted order.
func (d *Dataset) Names() []string {
	names := make([]string, 0, len(d.Vars))
	for n := range d.Vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Dims returns the length of every dimension in d.
func (d *Dataset) Dims() map[string]int {
	return d.dimLengths("")
}

// dimLengths returns dimension lengths, ignoring variable skip.
func (d *Dataset) dimLengths(skip string) map[string]int {
	o := make(map[string]int)
	for name, v := range d.Vars {
		if name == skip {
			continue
		}
		for i, dim := range v.Dims {
			o[dim] = v.Data.Shape[i]
		}
	}
	return o
}

// DimLen returns the length of dimension dim.
func (d *Dataset) DimLen(dim string) (int, error) {
	n, ok := d.Dims()[dim]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingDimension, dim)
	}
	return n, nil
}

// Coord returns the values of the one-dimensional coordinate variable
// for dimension dim.
func (d *Dataset) Coord(dim string) ([]float64, error) {
	v, ok := d.Vars[dim]
	if !ok || len(v.Dims) != 1 || v.Dims[0] != dim {
		return nil, fmt.Errorf("%w: no coordinate variable for %s", ErrMissingDimension, dim)
	}
	return v.Data.Elements, nil
}

// Copy returns a deep copy of d.
func (d *Dataset) Copy() *Dataset {
	o := NewDataset()
	for k, a := range d.Attributes {
		o.Attributes[k] = a
	}
	for name, v := range d.Vars {
		o.Vars[name] = v.copyWith(clone(v.Data))
	}
	return o
}

// copyWith returns a copy of v's metadata holding data.
func (v *Variable) copyWith(data *sparse.DenseArray) *Variable {
	o := &Variable{
		Dims:        append([]string(nil), v.Dims...),
		Description: v.Description,
		Units:       v.Units,
		Attributes:  make(map[string]interface{}, len(v.Attributes)),
		Data:        data,
	}
	for k, a := range v.Attributes {
		o.Attributes[k] = a
	}
	return o
}

// axis returns the position of dim in v.Dims, or -1.
func (v *Variable) axis(dim string) int {
	for i, dd := range v.Dims {
		if dd == dim {
			return i
		}
	}
	return -1
}

// Rename renames variable or dimension oldName to newName in place.
// When oldName is a dimension, every variable using it is relabeled.
func (d *Dataset) Rename(oldName, newName string) error {
	_, isVar := d.Vars[oldName]
	_, isDim := d.Dims()[oldName]
	if !isVar && !isDim {
		return fmt.Errorf("aerosol: rename %s: %w", oldName, ErrMissingVariable)
	}
	if oldName == newName {
		return nil
	}
	if d.Has(newName) {
		return fmt.Errorf("aerosol: rename %s: variable %s already exists", oldName, newName)
	}
	if isVar {
		d.Vars[newName] = d.Vars[oldName]
		delete(d.Vars, oldName)
	}
	if isDim {
		for _, v := range d.Vars {
			for i, dim := range v.Dims {
				if dim == oldName {
					v.Dims[i] = newName
				}
			}
		}
	}
	return nil
}

// Subset returns a dataset holding only the named variables and the
// coordinate variables of their dimensions.
func (d *Dataset) Subset(names ...string) (*Dataset, error) {
	o := NewDataset()
	for k, a := range d.Attributes {
		o.Attributes[k] = a
	}
	for _, name := range names {
		v, err := d.Var(name)
		if err != nil {
			return nil, err
		}
		o.Vars[name] = v.copyWith(clone(v.Data))
		for _, dim := range v.Dims {
			if c, ok := d.Vars[dim]; ok && !o.Has(dim) {
				o.Vars[dim] = c.copyWith(clone(c.Data))
			}
		}
	}
	return o, nil
}

// Drop returns a copy of d without the named variables. Names that are
// not present are ignored.
func (d *Dataset) Drop(names ...string) *Dataset {
	o := d.Copy()
	for _, n := range names {
		delete(o.Vars, n)
	}
	return o
}

// Isel returns a new dataset holding the elements at positions idx
// along dimension dim, in the order given.
func (d *Dataset) Isel(dim string, idx []int) (*Dataset, error) {
	n, err := d.DimLen(dim)
	if err != nil {
		return nil, err
	}
	for _, i := range idx {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("aerosol: index %d out of range for dimension %s with length %d", i, dim, n)
		}
	}
	o := NewDataset()
	for k, a := range d.Attributes {
		o.Attributes[k] = a
	}
	for name, v := range d.Vars {
		ax := v.axis(dim)
		if ax < 0 {
			o.Vars[name] = v.copyWith(clone(v.Data))
			continue
		}
		o.Vars[name] = v.copyWith(take(v.Data, ax, idx))
	}
	return o, nil
}

// Squeeze selects position i of dimension dim and removes the dimension.
// The coordinate variable of dim becomes a scalar.
func (d *Dataset) Squeeze(dim string, i int) (*Dataset, error) {
	o, err := d.Isel(dim, []int{i})
	if err != nil {
		return nil, err
	}
	for _, v := range o.Vars {
		ax := v.axis(dim)
		if ax < 0 {
			continue
		}
		v.Dims = append(v.Dims[:ax:ax], v.Dims[ax+1:]...)
		shape := append(append([]int(nil), v.Data.Shape[:ax]...), v.Data.Shape[ax+1:]...)
		v.Data = reshape(v.Data, shape)
	}
	return o, nil
}

// SelRange returns the elements along dim whose coordinate value is
// within [lo, hi]. A NaN bound is unbounded.
func (d *Dataset) SelRange(dim string, lo, hi float64) (*Dataset, error) {
	c, err := d.Coord(dim)
	if err != nil {
		return nil, err
	}
	var idx []int
	for i, v := range c {
		if (!math.IsNaN(lo) && !(v >= lo)) || (!math.IsNaN(hi) && !(v <= hi)) {
			continue
		}
		idx = append(idx, i)
	}
	return d.Isel(dim, idx)
}

// SelNearest selects the position along dim whose coordinate is closest
// to val and removes the dimension.
func (d *Dataset) SelNearest(dim string, val float64) (*Dataset, error) {
	c, err := d.Coord(dim)
	if err != nil {
		return nil, err
	}
	best, bestDist := -1, math.Inf(1)
	for i, v := range c {
		if dist := math.Abs(v - val); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("aerosol: no %s coordinate near %g", dim, val)
	}
	return d.Squeeze(dim, best)
}

// SortBy returns d with dimension dim ordered by increasing coordinate
// value. The sort is stable and missing coordinates go last.
func (d *Dataset) SortBy(dim string) (*Dataset, error) {
	c, err := d.Coord(dim)
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(c))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := c[idx[i]], c[idx[j]]
		if math.IsNaN(b) {
			return !math.IsNaN(a)
		}
		return a < b
	})
	return d.Isel(dim, idx)
}

// Unique returns d keeping only the first position of each distinct
// coordinate value along dim.
func (d *Dataset) Unique(dim string) (*Dataset, error) {
	c, err := d.Coord(dim)
	if err != nil {
		return nil, err
	}
	seen := make(map[float64]bool, len(c))
	var idx []int
	for i, v := range c {
		if seen[v] {
			continue
		}
		seen[v] = true
		idx = append(idx, i)
	}
	return d.Isel(dim, idx)
}

// Times returns the time coordinate as time.Time values.
// Missing times are returned as the zero time.
func (d *Dataset) Times() ([]time.Time, error) {
	v, err := d.Var("time")
	if err != nil {
		return nil, err
	}
	scale, ref, err := parseTimeUnits(v.Units)
	if err != nil {
		return nil, err
	}
	o := make([]time.Time, len(v.Data.Elements))
	for i, t := range v.Data.Elements {
		if math.IsNaN(t) {
			continue
		}
		o[i] = ref.Add(time.Duration(t * scale * float64(time.Second))).UTC()
	}
	return o, nil
}

// size returns the number of elements in an array with the given shape.
func size(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// strides splits shape around axis into the number of blocks before the
// axis, the axis length, and the block length after it.
func strides(shape []int, axis int) (outer, n, inner int) {
	return size(shape[:axis]), shape[axis], size(shape[axis+1:])
}

// zeros returns an array of zeros with the given shape, including
// zero-dimensional arrays holding one element.
func zeros(shape ...int) *sparse.DenseArray {
	if len(shape) == 0 {
		a := sparse.ZerosDense(1)
		a.Shape = []int{}
		return a
	}
	return sparse.ZerosDense(shape...)
}

// clone returns a copy of a that shares no memory with it.
func clone(a *sparse.DenseArray) *sparse.DenseArray {
	o := zeros(append([]int(nil), a.Shape...)...)
	copy(o.Elements, a.Elements)
	return o
}

// reshape returns a copy of a with a new shape of the same size.
func reshape(a *sparse.DenseArray, shape []int) *sparse.DenseArray {
	o := zeros(shape...)
	copy(o.Elements, a.Elements)
	return o
}

// take returns the elements of a at positions idx along axis.
func take(a *sparse.DenseArray, axis int, idx []int) *sparse.DenseArray {
	outer, n, inner := strides(a.Shape, axis)
	shape := append([]int(nil), a.Shape...)
	shape[axis] = len(idx)
	o := zeros(shape...)
	m := len(idx)
	for b := 0; b < outer; b++ {
		for j, k := range idx {
			dst := (b*m + j) * inner
			src := (b*n + k) * inner
			copy(o.Elements[dst:dst+inner], a.Elements[src:src+inner])
		}
	}
	return o
}
