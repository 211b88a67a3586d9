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
	"time"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/geom"
)

// TruncateBelowTropopause returns a copy of d where extinction at or
// below kmAbove above the tropopause is replaced by fill.
func TruncateBelowTropopause(d *Dataset, kmAbove, fill float64) (*Dataset, error) {
	o := d.Copy()
	err := mapProfiles(o, func(alt, ext []float64, trop float64) {
		for k := range ext {
			if !(alt[k] > trop+kmAbove) {
				ext[k] = fill
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("aerosol: truncate below tropopause: %w", err)
	}
	return o, nil
}

// TruncateBelowMaxValue returns a copy of d where, in each profile,
// extinction is set to NaN at or below 0.1 above the highest positive
// altitude whose extinction is at least filterVal. This removes clouds
// and other spurious retrievals at the bottom of the profile. Profiles
// where no level reaches filterVal only lose levels at or below zero.
func TruncateBelowMaxValue(d *Dataset, filterVal float64) (*Dataset, error) {
	o := d.Copy()
	err := mapProfiles(o, func(alt, ext []float64, _ float64) {
		minAlt := 0.0
		for k, e := range ext {
			if e >= filterVal && alt[k] > 0 && alt[k]+0.1 > minAlt {
				minAlt = alt[k] + 0.1
			}
		}
		for k := range ext {
			if !(alt[k] > minAlt) {
				ext[k] = math.NaN()
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("aerosol: truncate below max value: %w", err)
	}
	return o, nil
}

// mapProfiles calls f on each extinction profile of d, in place, with
// the altitude grid and the profile's tropopause altitude. The
// tropopause is NaN when d has no tropopause variable.
func mapProfiles(d *Dataset, f func(alt, ext []float64, trop float64)) error {
	ext, err := d.Var(ExtinctionVar)
	if err != nil {
		return err
	}
	ax := ext.axis(AltitudeDim)
	if ax < 0 {
		return fmt.Errorf("%w: %s has no %s dimension", ErrMissingDimension, ExtinctionVar, AltitudeDim)
	}
	alt, err := d.Coord(AltitudeDim)
	if err != nil {
		return err
	}
	outDims := append(append([]string(nil), ext.Dims[:ax]...), ext.Dims[ax+1:]...)
	outShape := append(append([]int(nil), ext.Data.Shape[:ax]...), ext.Data.Shape[ax+1:]...)
	var tropIndex []int
	trop, hasTrop := d.Vars[TropopauseVar]
	if hasTrop {
		if tropIndex, err = broadcastIndex(outDims, outShape, trop); err != nil {
			return err
		}
	}
	outer, n, inner := strides(ext.Data.Shape, ax)
	y := make([]float64, n)
	for b := 0; b < outer; b++ {
		for i := 0; i < inner; i++ {
			for k := range y {
				y[k] = ext.Data.Elements[(b*n+k)*inner+i]
			}
			t := math.NaN()
			if hasTrop {
				t = trop.Data.Elements[tropIndex[b*inner+i]]
			}
			f(alt, y, t)
			for k, v := range y {
				ext.Data.Elements[(b*n+k)*inner+i] = v
			}
		}
	}
	return nil
}

// Where returns the profiles of d for which the boolean expression expr
// is true. The expression may refer to any variable whose only dimension
// is time, for example "latitude > -10 && latitude < 10".
func Where(d *Dataset, expr string) (*Dataset, error) {
	expression, err := govaluate.NewEvaluableExpressionWithFunctions(expr, filterFunctions)
	if err != nil {
		return nil, fmt.Errorf("aerosol: filter expression %q: %w", expr, err)
	}
	n, err := d.DimLen(TimeDim)
	if err != nil {
		return nil, err
	}
	vars := make(map[string][]float64)
	for _, name := range expression.Vars() {
		v, err := d.Var(name)
		if err != nil {
			return nil, fmt.Errorf("aerosol: filter expression %q: %w", expr, err)
		}
		if len(v.Dims) != 1 || v.Dims[0] != TimeDim {
			return nil, fmt.Errorf("%w: filter expression %q: variable %s has dimensions %v; want [%s]",
				ErrShapeMismatch, expr, name, v.Dims, TimeDim)
		}
		vars[name] = v.Data.Elements
	}
	var idx []int
	params := make(map[string]interface{}, len(vars))
	for i := 0; i < n; i++ {
		for name, vals := range vars {
			params[name] = vals[i]
		}
		result, err := expression.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("aerosol: filter expression %q: %w", expr, err)
		}
		keep, ok := result.(bool)
		if !ok {
			return nil, fmt.Errorf("aerosol: filter expression %q evaluates to %T; want bool", expr, result)
		}
		if keep {
			idx = append(idx, i)
		}
	}
	return d.Isel(TimeDim, idx)
}

var filterFunctions = map[string]govaluate.ExpressionFunction{
	"abs": func(arg ...interface{}) (interface{}, error) {
		v, err := floatArg("abs", arg)
		if err != nil {
			return nil, err
		}
		return math.Abs(v), nil
	},
	"isnan": func(arg ...interface{}) (interface{}, error) {
		v, err := floatArg("isnan", arg)
		if err != nil {
			return nil, err
		}
		return math.IsNaN(v), nil
	},
}

// floatArg returns the single numeric argument of filter function name.
func floatArg(name string, arg []interface{}) (float64, error) {
	if len(arg) != 1 {
		return 0, fmt.Errorf("aerosol: got %d arguments for function '%s', but needs 1", len(arg), name)
	}
	v, ok := arg[0].(float64)
	if !ok {
		return 0, fmt.Errorf("aerosol: function '%s' needs a number but got %T", name, arg[0])
	}
	return v, nil
}

// Within returns the profiles of d whose longitude and latitude are
// inside or on the edge of region.
func Within(d *Dataset, region geom.Polygonal) (*Dataset, error) {
	lat, err := d.Var("latitude")
	if err != nil {
		return nil, err
	}
	lon, err := d.Var("longitude")
	if err != nil {
		return nil, err
	}
	for _, v := range []*Variable{lat, lon} {
		if len(v.Dims) != 1 || v.Dims[0] != TimeDim {
			return nil, fmt.Errorf("%w: latitude and longitude must have dimensions [%s]", ErrShapeMismatch, TimeDim)
		}
	}
	var idx []int
	for i, y := range lat.Data.Elements {
		p := geom.Point{X: lon.Data.Elements[i], Y: y}
		if p.Within(region) != geom.Outside {
			idx = append(idx, i)
		}
	}
	return d.Isel(TimeDim, idx)
}

// SelTime returns the profiles of d between min and max, inclusive.
// A zero time is unbounded.
func SelTime(d *Dataset, min, max time.Time) (*Dataset, error) {
	lo, hi := math.NaN(), math.NaN()
	if !min.IsZero() {
		lo = epochSeconds(min)
	}
	if !max.IsZero() {
		hi = epochSeconds(max)
	}
	return d.SelRange(TimeDim, lo, hi)
}
