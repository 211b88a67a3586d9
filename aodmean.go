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

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// AODMethod specifies how MeanAOD treats the tropopause.
type AODMethod string

const (
	// CDFTropopause sets extinction at or below the local tropopause to
	// zero, averages over time and sums over altitude.
	CDFTropopause AODMethod = "cdf"

	// AverageTropopause drops extinction at or below the time-averaged
	// tropopause, averages over time and sums over altitude.
	AverageTropopause AODMethod = "average"

	// LocalTropopause drops extinction at or below the local tropopause,
	// averages over time and sums over altitude.
	LocalTropopause AODMethod = "local"

	// PerProfile drops extinction at or below the local tropopause, sums
	// each profile over altitude and averages the columns over time.
	PerProfile AODMethod = "profile"
)

// DefaultMaxAltitude is the default upper altitude for MeanAOD, in km.
const DefaultMaxAltitude = 35.0

// ParseAODMethod returns the method named s.
func ParseAODMethod(s string) (AODMethod, error) {
	switch m := AODMethod(s); m {
	case CDFTropopause, AverageTropopause, LocalTropopause, PerProfile:
		return m, nil
	}
	return "", fmt.Errorf("aerosol: invalid AOD method %q; valid methods are cdf, average, local and profile", s)
}

// MeanAOD reduces the profiles in d to a time-averaged aerosol optical
// depth above the tropopause, using levels at or below maxAltitude.
// The result holds an "AOD" variable over the dimensions of extinction
// other than time and altitude. Column sums are weighted by the
// thickness of each altitude level and skip missing values; a column or
// mean with no valid values is NaN.
func MeanAOD(d *Dataset, method AODMethod, maxAltitude float64) (*Dataset, error) {
	if _, err := ParseAODMethod(string(method)); err != nil {
		return nil, err
	}
	d, err := d.SelRange(AltitudeDim, math.NaN(), maxAltitude)
	if err != nil {
		return nil, fmt.Errorf("aerosol: mean AOD: %w", err)
	}
	ext, err := d.Var(ExtinctionVar)
	if err != nil {
		return nil, fmt.Errorf("aerosol: mean AOD: %w", err)
	}
	ax := ext.axis(AltitudeDim)
	if ax < 0 {
		return nil, fmt.Errorf("%w: mean AOD: %s has no %s dimension", ErrMissingDimension, ExtinctionVar, AltitudeDim)
	}
	if ext.axis(TimeDim) < 0 {
		return nil, fmt.Errorf("%w: mean AOD: %s has no %s dimension", ErrMissingDimension, ExtinctionVar, TimeDim)
	}
	alt := d.Vars[AltitudeDim].Data.Elements
	trop, ok := d.Vars[TropopauseVar]
	if !ok {
		return nil, fmt.Errorf("%w: mean AOD: %w: %s", ErrShapeMismatch, ErrMissingVariable, TropopauseVar)
	}

	// Profiles are indexed over every dimension but altitude and
	// grouped over every dimension but time.
	profDims := append(append([]string(nil), ext.Dims[:ax]...), ext.Dims[ax+1:]...)
	profShape := append(append([]int(nil), ext.Data.Shape[:ax]...), ext.Data.Shape[ax+1:]...)
	var grpDims []string
	var grpShape []int
	for i, dim := range profDims {
		if dim != TimeDim {
			grpDims = append(grpDims, dim)
			grpShape = append(grpShape, profShape[i])
		}
	}
	tropIndex, err := broadcastIndex(profDims, profShape, trop)
	if err != nil {
		return nil, fmt.Errorf("aerosol: mean AOD: %s: %w", TropopauseVar, err)
	}
	grpIndex, err := broadcastIndex(profDims, profShape, &Variable{Dims: grpDims, Data: zeros(grpShape...)})
	if err != nil {
		return nil, err
	}
	ng := size(grpShape)
	nz := len(alt)

	threshold := make([]float64, len(tropIndex))
	for p, ti := range tropIndex {
		threshold[p] = trop.Data.Elements[ti]
	}
	if method == AverageTropopause {
		tropByGroup := make([][]float64, ng)
		for p, t := range threshold {
			if !math.IsNaN(t) {
				tropByGroup[grpIndex[p]] = append(tropByGroup[grpIndex[p]], t)
			}
		}
		for p := range threshold {
			threshold[p] = mean(tropByGroup[grpIndex[p]])
		}
	}
	fill := math.NaN()
	if method == CDFTropopause {
		fill = 0
	}

	dz := layerThickness(alt)
	levels := make([][][]float64, ng) // group, level, valid values
	columns := make([][]float64, ng)  // group, valid profile columns
	for g := range levels {
		levels[g] = make([][]float64, nz)
	}
	y := make([]float64, nz)
	outer, _, inner := strides(ext.Data.Shape, ax)
	for b := 0; b < outer; b++ {
		for i := 0; i < inner; i++ {
			p := b*inner + i
			g := grpIndex[p]
			for k := 0; k < nz; k++ {
				y[k] = ext.Data.Elements[(b*nz+k)*inner+i]
				if !(alt[k] > threshold[p]) {
					y[k] = fill
				}
			}
			if method == PerProfile {
				if c := column(dz, y); !math.IsNaN(c) {
					columns[g] = append(columns[g], c)
				}
				continue
			}
			for k, v := range y {
				if !math.IsNaN(v) {
					levels[g][k] = append(levels[g][k], v)
				}
			}
		}
	}

	out := zeros(grpShape...)
	for g := range out.Elements {
		if method == PerProfile {
			out.Elements[g] = mean(columns[g])
			continue
		}
		profile := make([]float64, nz)
		for k := range profile {
			profile[k] = mean(levels[g][k])
		}
		out.Elements[g] = column(dz, profile)
	}

	scale, units := integralUnits(ext.Units, d.Vars[AltitudeDim].Units)
	floats.Scale(scale, out.Elements)

	o := NewDataset()
	for k, a := range d.Attributes {
		o.Attributes[k] = a
	}
	for name, v := range d.Vars {
		if v.axis(AltitudeDim) >= 0 || v.axis(TimeDim) >= 0 {
			continue
		}
		o.Vars[name] = v.copyWith(clone(v.Data))
	}
	if err := o.AddVariable(AODVar, grpDims, "time-averaged aerosol optical depth above the tropopause", units, out); err != nil {
		return nil, err
	}
	o.Vars[AODVar].Attributes["method"] = string(method)
	o.Vars[AODVar].Attributes["max_altitude"] = maxAltitude
	return o, nil
}

// layerThickness returns the thickness of each level of a grid, taken
// as the distance between the midpoints to its neighbors.
func layerThickness(alt []float64) []float64 {
	n := len(alt)
	dz := make([]float64, n)
	if n < 2 {
		for i := range dz {
			dz[i] = 1
		}
		return dz
	}
	dz[0] = math.Abs(alt[1] - alt[0])
	dz[n-1] = math.Abs(alt[n-1] - alt[n-2])
	for i := 1; i < n-1; i++ {
		dz[i] = math.Abs(alt[i+1]-alt[i-1]) / 2
	}
	return dz
}

// column returns the thickness-weighted sum of the valid values in y,
// or NaN if there are none.
func column(dz, y []float64) float64 {
	var w, v []float64
	for k, yy := range y {
		if !math.IsNaN(yy) {
			w = append(w, dz[k])
			v = append(v, yy)
		}
	}
	if len(v) == 0 {
		return math.NaN()
	}
	return floats.Dot(w, v)
}

// mean returns the mean of x, or NaN if x is empty.
func mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}
