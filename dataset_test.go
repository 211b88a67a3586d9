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
	"math"
	"reflect"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats"
)

// gridDataset returns a dataset with extinction(time, altitude) equal to
// 10*time index + altitude index.
func gridDataset(t testing.TB, times, alt []float64) *Dataset {
	ext := make([][]float64, len(times))
	trop := make([]float64, len(times))
	for i := range ext {
		ext[i] = make([]float64, len(alt))
		for k := range alt {
			ext[i][k] = float64(10*i + k)
		}
		trop[i] = alt[0]
	}
	d := profileDataset(t, alt, ext, trop)
	copy(d.Vars[TimeDim].Data.Elements, times)
	return d
}

func TestAddVariableShape(t *testing.T) {
	d := gridDataset(t, []float64{0, 60}, []float64{1, 2, 3})
	err := d.AddVariable("bad", []string{TimeDim}, "", "", array([]int{3}, 1, 2, 3))
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("error = %v; want ErrShapeMismatch", err)
	}
	err = d.AddVariable("bad", []string{TimeDim, AltitudeDim}, "", "", array([]int{2}, 1, 2))
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("error = %v; want ErrShapeMismatch", err)
	}
	if err := d.AddVariable(ExtinctionVar, []string{"x"}, "", "", array([]int{5})); err != nil {
		t.Errorf("replacing a variable: %v", err)
	}
}

func TestDatasetAccessors(t *testing.T) {
	d := gridDataset(t, []float64{0, 60}, []float64{1, 2, 3})
	want := []string{AltitudeDim, ExtinctionVar, TimeDim, TropopauseVar}
	if names := d.Names(); !reflect.DeepEqual(names, want) {
		t.Errorf("names = %v; want %v", names, want)
	}
	if n, err := d.DimLen(AltitudeDim); err != nil || n != 3 {
		t.Errorf("altitude length = %d, %v", n, err)
	}
	if _, err := d.DimLen("wavelength"); !errors.Is(err, ErrMissingDimension) {
		t.Errorf("error = %v; want ErrMissingDimension", err)
	}
	if _, err := d.Var("pressure"); !errors.Is(err, ErrMissingVariable) {
		t.Errorf("error = %v; want ErrMissingVariable", err)
	}
	if _, err := d.Coord(TropopauseVar); !errors.Is(err, ErrMissingDimension) {
		t.Errorf("error = %v; want ErrMissingDimension", err)
	}
}

func TestCopyIsIndependent(t *testing.T) {
	d := gridDataset(t, []float64{0, 60}, []float64{1, 2, 3})
	c := d.Copy()
	c.Vars[ExtinctionVar].Data.Elements[0] = -1
	c.Vars[ExtinctionVar].Dims[0] = "x"
	if d.Vars[ExtinctionVar].Data.Elements[0] != 0 || d.Vars[ExtinctionVar].Dims[0] != TimeDim {
		t.Error("modifying a copy changed the original")
	}
}

func TestRename(t *testing.T) {
	d := gridDataset(t, []float64{0, 60}, []float64{1, 2, 3})
	if err := d.Rename(AltitudeDim, "z"); err != nil {
		t.Fatal(err)
	}
	if !d.Has("z") || d.Has(AltitudeDim) {
		t.Error("coordinate variable not renamed")
	}
	if dims := d.Vars[ExtinctionVar].Dims; dims[1] != "z" {
		t.Errorf("extinction dims = %v", dims)
	}
	if err := d.Rename("z", TimeDim); err == nil {
		t.Error("expected error renaming onto an existing variable")
	}
	if err := d.Rename("nothing", "x"); !errors.Is(err, ErrMissingVariable) {
		t.Errorf("error = %v; want ErrMissingVariable", err)
	}
}

func TestSubset(t *testing.T) {
	d := gridDataset(t, []float64{0, 60}, []float64{1, 2, 3})
	s, err := d.Subset(ExtinctionVar)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{AltitudeDim, ExtinctionVar, TimeDim}
	if names := s.Names(); !reflect.DeepEqual(names, want) {
		t.Errorf("names = %v; want %v", names, want)
	}
	if _, err := d.Subset("pressure"); !errors.Is(err, ErrMissingVariable) {
		t.Errorf("error = %v; want ErrMissingVariable", err)
	}
	if dd := d.Drop(TropopauseVar, "nothing"); dd.Has(TropopauseVar) || !d.Has(TropopauseVar) {
		t.Error("drop")
	}
}

func TestIselAndSqueeze(t *testing.T) {
	d := gridDataset(t, []float64{0, 60, 120}, []float64{1, 2, 3})
	s, err := d.Isel(TimeDim, []int{2, 0})
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{20, 21, 22, 0, 1, 2}
	if !floats.Equal(s.Vars[ExtinctionVar].Data.Elements, want) {
		t.Errorf("extinction = %v; want %v", s.Vars[ExtinctionVar].Data.Elements, want)
	}
	if !floats.Equal(s.Vars[TimeDim].Data.Elements, []float64{120, 0}) {
		t.Errorf("time = %v", s.Vars[TimeDim].Data.Elements)
	}
	if _, err := d.Isel(TimeDim, []int{3}); err == nil {
		t.Error("expected out of range error")
	}

	a, err := d.Isel(AltitudeDim, []int{1})
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(a.Vars[ExtinctionVar].Data.Elements, []float64{1, 11, 21}) {
		t.Errorf("extinction = %v", a.Vars[ExtinctionVar].Data.Elements)
	}

	q, err := d.Squeeze(AltitudeDim, 2)
	if err != nil {
		t.Fatal(err)
	}
	ext := q.Vars[ExtinctionVar]
	if !reflect.DeepEqual(ext.Dims, []string{TimeDim}) || !reflect.DeepEqual(ext.Data.Shape, []int{3}) {
		t.Errorf("squeezed extinction has dims %v and shape %v", ext.Dims, ext.Data.Shape)
	}
	if !floats.Equal(ext.Data.Elements, []float64{2, 12, 22}) {
		t.Errorf("extinction = %v", ext.Data.Elements)
	}
	if alt := q.Vars[AltitudeDim]; len(alt.Dims) != 0 || len(alt.Data.Elements) != 1 || alt.Data.Elements[0] != 3 {
		t.Errorf("altitude = %+v", alt)
	}
}

func TestSelRangeAndNearest(t *testing.T) {
	d := gridDataset(t, []float64{0, 60, 120}, []float64{1, 2, 3, 4})
	s, err := d.SelRange(AltitudeDim, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(s.Vars[AltitudeDim].Data.Elements, []float64{2, 3}) {
		t.Errorf("altitude = %v", s.Vars[AltitudeDim].Data.Elements)
	}
	s, err = d.SelRange(AltitudeDim, math.NaN(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(s.Vars[AltitudeDim].Data.Elements, []float64{1, 2}) {
		t.Errorf("altitude = %v", s.Vars[AltitudeDim].Data.Elements)
	}
	n, err := d.SelNearest(TimeDim, 70)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(n.Vars[ExtinctionVar].Data.Elements, []float64{10, 11, 12, 13}) {
		t.Errorf("extinction = %v", n.Vars[ExtinctionVar].Data.Elements)
	}
}

func TestSortByAndUnique(t *testing.T) {
	d := gridDataset(t, []float64{120, 0, math.NaN(), 60, 0}, []float64{1, 2})
	s, err := d.SortBy(TimeDim)
	if err != nil {
		t.Fatal(err)
	}
	times := s.Vars[TimeDim].Data.Elements
	if !floats.Equal(times[:4], []float64{0, 0, 60, 120}) || !math.IsNaN(times[4]) {
		t.Errorf("sorted times = %v", times)
	}
	// Stable: the first time-0 profile was at index 1.
	if !floats.Equal(s.Vars[ExtinctionVar].Data.Elements[:4], []float64{10, 11, 40, 41}) {
		t.Errorf("sorted extinction = %v", s.Vars[ExtinctionVar].Data.Elements)
	}
	u, err := s.Unique(TimeDim)
	if err != nil {
		t.Fatal(err)
	}
	if n := u.Dims()[TimeDim]; n != 4 {
		t.Errorf("unique times = %v", u.Vars[TimeDim].Data.Elements)
	}
	if !floats.Equal(u.Vars[ExtinctionVar].Data.Elements[:4], []float64{10, 11, 30, 31}) {
		t.Errorf("unique extinction = %v", u.Vars[ExtinctionVar].Data.Elements)
	}
}

func TestTimes(t *testing.T) {
	d := gridDataset(t, []float64{0, 86400.5}, []float64{1})
	times, err := d.Times()
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(1970, 1, 2, 0, 0, 0, 5e8, time.UTC)
	if !times[1].Equal(want) {
		t.Errorf("time = %v; want %v", times[1], want)
	}
}

func TestConcat(t *testing.T) {
	alt := []float64{1, 2, 3}
	a := gridDataset(t, []float64{0, 60}, alt)
	b := gridDataset(t, []float64{120}, alt)
	c, err := Concat(TimeDim, a, b)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(c.Vars[TimeDim].Data.Elements, []float64{0, 60, 120}) {
		t.Errorf("time = %v", c.Vars[TimeDim].Data.Elements)
	}
	want := []float64{0, 1, 2, 10, 11, 12, 0, 1, 2}
	if !floats.Equal(c.Vars[ExtinctionVar].Data.Elements, want) {
		t.Errorf("extinction = %v; want %v", c.Vars[ExtinctionVar].Data.Elements, want)
	}
	if !floats.Equal(c.Vars[AltitudeDim].Data.Elements, alt) {
		t.Errorf("altitude = %v", c.Vars[AltitudeDim].Data.Elements)
	}

	// Along an inner axis.
	c, err = Concat(AltitudeDim, a, a)
	if err != nil {
		t.Fatal(err)
	}
	want = []float64{0, 1, 2, 0, 1, 2, 10, 11, 12, 10, 11, 12}
	if !floats.Equal(c.Vars[ExtinctionVar].Data.Elements, want) {
		t.Errorf("extinction = %v; want %v", c.Vars[ExtinctionVar].Data.Elements, want)
	}

	if _, err := Concat(TimeDim, a, gridDataset(t, []float64{120}, []float64{1, 2})); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("error = %v; want ErrShapeMismatch", err)
	}
	if _, err := Concat(TimeDim, a, a.Drop(ExtinctionVar)); !errors.Is(err, ErrMissingVariable) {
		t.Errorf("error = %v; want ErrMissingVariable", err)
	}
	if _, err := Concat(TimeDim); err == nil {
		t.Error("expected error for no datasets")
	}
}

func TestConcatAssociative(t *testing.T) {
	alt := []float64{1, 2, 3}
	a := gridDataset(t, []float64{0, 60}, alt)
	b := gridDataset(t, []float64{120, 180}, alt)
	c := gridDataset(t, []float64{240}, alt)
	ab, err := Concat(TimeDim, a, b)
	if err != nil {
		t.Fatal(err)
	}
	left, err := Concat(TimeDim, ab, c)
	if err != nil {
		t.Fatal(err)
	}
	bc, err := Concat(TimeDim, b, c)
	if err != nil {
		t.Fatal(err)
	}
	right, err := Concat(TimeDim, a, bc)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range left.Names() {
		if !floats.Equal(left.Vars[name].Data.Elements, right.Vars[name].Data.Elements) {
			t.Errorf("%s: %v != %v", name, left.Vars[name].Data.Elements, right.Vars[name].Data.Elements)
		}
	}
}
