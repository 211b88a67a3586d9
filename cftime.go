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
	"strings"
	"time"
)

// TimeUnits is the units attribute of every time variable this package
// creates.
const TimeUnits = "seconds since 1970-01-01 00:00:00"

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-1-2 15:4:5",
	"2006-01-02",
	"2006-1-2",
}

// parseTimeUnits parses units of the form "<unit> since <date>" and
// returns the number of seconds per unit and the reference time.
func parseTimeUnits(units string) (float64, time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, fmt.Errorf("aerosol: invalid time units %q", units)
	}
	var scale float64
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "seconds", "second", "secs", "sec", "s":
		scale = 1
	case "minutes", "minute", "mins", "min":
		scale = 60
	case "hours", "hour", "hrs", "hr", "h":
		scale = 3600
	case "days", "day", "d":
		scale = 86400
	default:
		return 0, time.Time{}, fmt.Errorf("aerosol: invalid time units %q", units)
	}
	ref := strings.TrimSpace(parts[1])
	ref = strings.TrimSuffix(ref, " UTC")
	ref = strings.TrimSuffix(ref, "Z")
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, ref); err == nil {
			return scale, t.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("aerosol: invalid reference time in time units %q", units)
}

// toEpochSeconds converts values in the given CF time units to seconds
// since 1970-01-01 in place.
func toEpochSeconds(vals []float64, units string) error {
	scale, ref, err := parseTimeUnits(units)
	if err != nil {
		return err
	}
	offset := float64(ref.Unix()) + float64(ref.Nanosecond())/1e9
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		vals[i] = v*scale + offset
	}
	return nil
}

// epochSeconds returns t as seconds since 1970-01-01.
func epochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
