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
	"strings"

	"github.com/ctessum/unit"
)

// lengthUnits maps unit strings to their value in meters (power 1) or
// per meter (power -1).
var lengthUnits = map[string]struct {
	scale float64
	power int
}{
	"m":  {1, 1},
	"km": {1000, 1},
	"cm": {0.01, 1},

	"m-1": {1, -1}, "m^-1": {1, -1}, "m**-1": {1, -1}, "1/m": {1, -1}, "/m": {1, -1},
	"km-1": {1e-3, -1}, "km^-1": {1e-3, -1}, "km**-1": {1e-3, -1}, "1/km": {1e-3, -1}, "/km": {1e-3, -1},
	"cm-1": {100, -1}, "cm^-1": {100, -1}, "1/cm": {100, -1},
}

// parseLength returns the unit for a length or inverse length unit string.
func parseLength(s string) (*unit.Unit, bool) {
	l, ok := lengthUnits[strings.TrimSpace(s)]
	if !ok {
		return nil, false
	}
	return unit.New(l.scale, unit.Dimensions{unit.LengthDim: l.power}), true
}

// integralUnits returns the factor that converts the product of
// values with extinction units ext and altitude units alt to a
// dimensionless optical depth, and the units of the result.
// Unrecognised or inconsistent units give a factor of 1.
func integralUnits(ext, alt string) (float64, string) {
	e, ok1 := parseLength(ext)
	a, ok2 := parseLength(alt)
	if !ok1 || !ok2 {
		return 1, strings.TrimSpace(ext + " " + alt)
	}
	p := unit.Mul(e, a)
	if err := p.Check(unit.Dimless); err != nil {
		return 1, strings.TrimSpace(ext + " " + alt)
	}
	return p.Value(), "1"
}
