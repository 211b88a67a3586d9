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

	"github.com/ctessum/sparse"
)

// Concat joins datasets end to end along dimension dim.
// Every variable that has dimension dim in the first dataset must be
// present in all of them with matching lengths along the other dimensions.
// Variables without dim are taken from the first dataset and must have the
// same shape everywhere they appear.
func Concat(dim string, ds ...*Dataset) (*Dataset, error) {
	if len(ds) == 0 {
		return nil, errors.New("aerosol: concat: no datasets")
	}
	first := ds[0]
	o := NewDataset()
	for k, a := range first.Attributes {
		o.Attributes[k] = a
	}
	for _, name := range first.Names() {
		v := first.Vars[name]
		ax := v.axis(dim)
		if ax < 0 {
			for i, dd := range ds[1:] {
				other, ok := dd.Vars[name]
				if ok && !sameShape(other.Data.Shape, v.Data.Shape) {
					return nil, fmt.Errorf("%w: concat: variable %s in dataset %d has shape %v; want %v",
						ErrShapeMismatch, name, i+1, other.Data.Shape, v.Data.Shape)
				}
			}
			o.Vars[name] = v.copyWith(clone(v.Data))
			continue
		}
		parts := make([]*sparse.DenseArray, len(ds))
		for i, dd := range ds {
			other, ok := dd.Vars[name]
			if !ok {
				return nil, fmt.Errorf("aerosol: concat: dataset %d: %w: %s", i, ErrMissingVariable, name)
			}
			if other.axis(dim) != ax || len(other.Dims) != len(v.Dims) {
				return nil, fmt.Errorf("%w: concat: variable %s in dataset %d has dimensions %v; want %v",
					ErrShapeMismatch, name, i, other.Dims, v.Dims)
			}
			for j, s := range other.Data.Shape {
				if j != ax && s != v.Data.Shape[j] {
					return nil, fmt.Errorf("%w: concat: variable %s in dataset %d has shape %v; want %v",
						ErrShapeMismatch, name, i, other.Data.Shape, v.Data.Shape)
				}
			}
			parts[i] = other.Data
		}
		o.Vars[name] = v.copyWith(join(ax, parts))
	}
	return o, nil
}

// join concatenates arrays along axis.
func join(axis int, parts []*sparse.DenseArray) *sparse.DenseArray {
	shape := append([]int(nil), parts[0].Shape...)
	total := 0
	for _, p := range parts {
		total += p.Shape[axis]
	}
	shape[axis] = total
	o := zeros(shape...)
	outer, _, inner := strides(shape, axis)
	pos := 0
	for b := 0; b < outer; b++ {
		for _, p := range parts {
			n := p.Shape[axis] * inner
			copy(o.Elements[pos:pos+n], p.Elements[b*n:(b+1)*n])
			pos += n
		}
	}
	return o
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
