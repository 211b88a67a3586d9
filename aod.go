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
	"sort"

	"gonum.org/v1/gonum/interp"
)

// Names of the variables and dimensions the integrator works with.
const (
	ExtinctionVar = "extinction"
	TropopauseVar = "tropopause_altitude"
	AltitudeDim   = "altitude"
	TimeDim       = "time"
	AODVar        = "AOD"
)

// AODAboveTropopause integrates extinction over altitude from the
// tropopause to the top of each profile in d.
//
// d must hold an "extinction" variable with an "altitude" dimension,
// the "altitude" coordinate variable, and a "tropopause_altitude"
// variable whose dimensions are a subset of the other dimensions of
// extinction. The cumulative integral of each profile is computed with
// the trapezoidal rule and then linearly interpolated at the tropopause,
// so that a tropopause between grid points contributes the partial
// layer above it. The result holds an "AOD" variable over every
// dimension of extinction except altitude, along with the variables of d
// that do not depend on altitude. Profiles whose tropopause is missing or
// outside the altitude range, or whose extinction above the tropopause is
// missing, are NaN.
func AODAboveTropopause(d *Dataset) (*Dataset, error) {
	ext, ok := d.Vars[ExtinctionVar]
	if !ok {
		return nil, fmt.Errorf("aerosol: AOD: %w: %s", ErrMissingVariable, ExtinctionVar)
	}
	ax := ext.axis(AltitudeDim)
	if ax < 0 {
		return nil, fmt.Errorf("%w: AOD: %s has dimensions %v, which do not include %s",
			ErrMissingDimension, ExtinctionVar, ext.Dims, AltitudeDim)
	}
	alt, err := d.Coord(AltitudeDim)
	if err != nil {
		return nil, fmt.Errorf("aerosol: AOD: %w", err)
	}
	if len(alt) != ext.Data.Shape[ax] {
		return nil, fmt.Errorf("%w: AOD: %d altitudes but %s has %d levels",
			ErrShapeMismatch, len(alt), ExtinctionVar, ext.Data.Shape[ax])
	}
	ascending, err := altitudeOrder(alt)
	if err != nil {
		return nil, err
	}
	trop, ok := d.Vars[TropopauseVar]
	if !ok {
		return nil, fmt.Errorf("%w: AOD: %w: %s", ErrShapeMismatch, ErrMissingVariable, TropopauseVar)
	}

	outDims := append(append([]string(nil), ext.Dims[:ax]...), ext.Dims[ax+1:]...)
	outShape := append(append([]int(nil), ext.Data.Shape[:ax]...), ext.Data.Shape[ax+1:]...)
	tropIndex, err := broadcastIndex(outDims, outShape, trop)
	if err != nil {
		return nil, fmt.Errorf("aerosol: AOD: %s: %w", TropopauseVar, err)
	}

	x := make([]float64, len(alt))
	copy(x, alt)
	if !ascending {
		reverse(x)
	}
	scale, units := integralUnits(ext.Units, d.Vars[AltitudeDim].Units)

	out := zeros(outShape...)
	y := make([]float64, len(alt))
	outer, n, inner := strides(ext.Data.Shape, ax)
	for b := 0; b < outer; b++ {
		for i := 0; i < inner; i++ {
			for k := 0; k < n; k++ {
				y[k] = ext.Data.Elements[(b*n+k)*inner+i]
			}
			if !ascending {
				reverse(y)
			}
			p := b*inner + i
			out.Elements[p] = ProfileAOD(x, y, trop.Data.Elements[tropIndex[p]]) * scale
		}
	}

	o := NewDataset()
	for k, a := range d.Attributes {
		o.Attributes[k] = a
	}
	for name, v := range d.Vars {
		if v.axis(AltitudeDim) >= 0 || name == AltitudeDim {
			continue
		}
		o.Vars[name] = v.copyWith(clone(v.Data))
	}
	if err := o.AddVariable(AODVar, outDims, "aerosol optical depth above the tropopause", units, out); err != nil {
		return nil, err
	}
	o.Vars[AODVar].Attributes["method"] = string(CDFTropopause)
	return o, nil
}

// ProfileAOD returns the integral of ext over ascending altitudes alt
// from trop to the last altitude. It returns NaN if trop is NaN or
// outside [alt[0], alt[len(alt)-1]], or if any extinction value needed
// for the integral is NaN.
func ProfileAOD(alt, ext []float64, trop float64) float64 {
	n := len(alt)
	if n == 0 || math.IsNaN(trop) || trop < alt[0] || trop > alt[n-1] {
		return math.NaN()
	}
	if n == 1 {
		if math.IsNaN(ext[0]) {
			return math.NaN()
		}
		return 0
	}
	// Start the cumulative integral at the level at or below the
	// tropopause. Levels further down only shift it by a constant.
	j0 := sort.Search(n, func(i int) bool { return alt[i] > trop }) - 1
	if j0 > n-2 {
		j0 = n - 2
	}
	for _, e := range ext[j0:] {
		if math.IsNaN(e) {
			return math.NaN()
		}
	}
	cdf := CumulativeTrapezoid(alt[j0:], ext[j0:])
	var pl interp.PiecewiseLinear
	if err := pl.Fit(alt[j0:], cdf); err != nil {
		return math.NaN()
	}
	return cdf[len(cdf)-1] - pl.Predict(trop)
}

// CumulativeTrapezoid returns the running trapezoidal integral of y
// over x, starting from zero at x[0].
func CumulativeTrapezoid(x, y []float64) []float64 {
	if len(x) != len(y) {
		panic(fmt.Errorf("aerosol: CumulativeTrapezoid: x and y lengths %d and %d differ", len(x), len(y)))
	}
	o := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		o[i] = o[i-1] + (y[i]+y[i-1])*(x[i]-x[i-1])/2
	}
	return o
}

// altitudeOrder returns whether alt is strictly increasing. It returns
// an error if alt is neither strictly increasing nor strictly decreasing.
func altitudeOrder(alt []float64) (bool, error) {
	up, down := true, true
	for i := 1; i < len(alt); i++ {
		if !(alt[i] > alt[i-1]) {
			up = false
		}
		if !(alt[i] < alt[i-1]) {
			down = false
		}
	}
	if len(alt) > 0 && math.IsNaN(alt[0]) {
		up, down = false, false
	}
	switch {
	case up:
		return true, nil
	case down:
		return false, nil
	}
	return false, fmt.Errorf("aerosol: %s coordinate is not strictly monotonic", AltitudeDim)
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

// broadcastIndex returns, for each element of an array with dimensions
// dims and shape shape, the index of the corresponding element of src.
// The dimensions of src must be a subset of dims with the same lengths.
func broadcastIndex(dims []string, shape []int, src *Variable) ([]int, error) {
	srcStride := make([]int, len(dims))
	stride := 1
	for j := len(src.Dims) - 1; j >= 0; j-- {
		pos := -1
		for i, dd := range dims {
			if dd == src.Dims[j] {
				pos = i
			}
		}
		if pos < 0 {
			return nil, fmt.Errorf("%w: dimension %s is not one of %v", ErrShapeMismatch, src.Dims[j], dims)
		}
		if shape[pos] != src.Data.Shape[j] {
			return nil, fmt.Errorf("%w: dimension %s has length %d; want %d",
				ErrShapeMismatch, src.Dims[j], src.Data.Shape[j], shape[pos])
		}
		srcStride[pos] = stride
		stride *= src.Data.Shape[j]
	}
	o := make([]int, size(shape))
	for flat := range o {
		rem, idx := flat, 0
		for i := len(shape) - 1; i >= 0; i-- {
			idx += (rem % shape[i]) * srcStride[i]
			rem /= shape[i]
		}
		o[flat] = idx
	}
	return o, nil
}
