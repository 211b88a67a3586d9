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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/lar555/aerosol/cloud"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// LoadConfig holds the settings that select and filter OMPS profiles.
type LoadConfig struct {
	InputDir string
	Loader   string

	StartTime, EndTime time.Time

	// Wavelength and Crosstrack are only used by the "nasa" loader.
	Wavelength *float64
	Crosstrack *int

	Filter string
	Mask   geom.Polygonal

	// MaxExtinction ≤ 0 disables TruncateBelowMaxValue.
	MaxExtinction float64

	TruncateTropopause bool
	TropopauseBuffer   float64
}

var loaderNames = map[string]bool{"usask": true, "nasa": true, "iup": true}

// loadConfig unmarshals a viper configuration for loading profiles.
func loadConfig(ctx context.Context, cfg *viper.Viper) (*LoadConfig, error) {
	c := LoadConfig{
		InputDir:           os.ExpandEnv(cfg.GetString("InputDir")),
		Loader:             strings.ToLower(os.ExpandEnv(cfg.GetString("Loader"))),
		Filter:             os.ExpandEnv(cfg.GetString("Filter")),
		MaxExtinction:      cfg.GetFloat64("MaxExtinction"),
		TruncateTropopause: cfg.GetBool("TruncateTropopause"),
		TropopauseBuffer:   cfg.GetFloat64("TropopauseBuffer"),
	}
	if c.InputDir == "" {
		return nil, fmt.Errorf("aerosol: you need to specify the InputDir configuration variable")
	}
	if !loaderNames[c.Loader] {
		return nil, fmt.Errorf("aerosol: Loader must be one of usask, nasa, or iup, but is `%s`", c.Loader)
	}
	var err error
	if c.StartTime, err = parseTime(cfg.GetString("StartTime")); err != nil {
		return nil, fmt.Errorf("aerosol: StartTime: %v", err)
	}
	if c.EndTime, err = parseTime(cfg.GetString("EndTime")); err != nil {
		return nil, fmt.Errorf("aerosol: EndTime: %v", err)
	}
	if !c.StartTime.IsZero() && !c.EndTime.IsZero() && c.EndTime.Before(c.StartTime) {
		return nil, fmt.Errorf("aerosol: EndTime %v is before StartTime %v", c.EndTime, c.StartTime)
	}
	if w := cfg.GetFloat64("Wavelength"); w > 0 {
		c.Wavelength = &w
	}
	if x := cfg.GetInt("Crosstrack"); x >= 0 {
		c.Crosstrack = &x
	}
	if c.Mask, err = parseMask(ctx, os.ExpandEnv(cfg.GetString("Mask"))); err != nil {
		return nil, fmt.Errorf("aerosol: Mask: %v", err)
	}
	return &c, nil
}

// parseTime parses a configured time. An empty string is the zero time.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(os.ExpandEnv(s))
	if s == "" {
		return time.Time{}, nil
	}
	t, err := cast.ToTimeE(s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// parseMask reads a region from a GeoJSON geometry string, a GeoJSON file,
// or a polygon shapefile. An empty string is no region.
func parseMask(ctx context.Context, s string) (geom.Polygonal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasSuffix(s, ".shp") {
		return readShpMask(ctx, s)
	}
	data := []byte(s)
	if !strings.HasPrefix(s, "{") {
		path, err := cloud.Download(ctx, s)
		if err != nil {
			return nil, err
		}
		if data, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}
	g, err := geojson.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding GeoJSON: %v", err)
	}
	p, ok := g.(geom.Polygonal)
	if !ok {
		return nil, fmt.Errorf("geometry type %T is not a polygon", g)
	}
	return p, nil
}

// readShpMask combines the polygons in a shapefile into one region.
func readShpMask(ctx context.Context, path string) (geom.Polygonal, error) {
	path, err := cloud.Download(ctx, path)
	if err != nil {
		return nil, err
	}
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	var mp geom.MultiPolygon
	for {
		g, _, more := d.DecodeRowFields()
		if !more {
			break
		}
		switch t := g.(type) {
		case geom.Polygon:
			mp = append(mp, t)
		case geom.MultiPolygon:
			mp = append(mp, t...)
		default:
			return nil, fmt.Errorf("shapefile %s: geometry type %T is not a polygon", path, g)
		}
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("shapefile %s: %v", path, err)
	}
	if len(mp) == 0 {
		return nil, fmt.Errorf("shapefile %s contains no polygons", path)
	}
	return mp, nil
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expand any environment variables.
func checkOutputFile(ctx context.Context, f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="aod.nc")`)
	}
	f = os.ExpandEnv(f)
	if _, ok := writers[strings.ToLower(filepath.Ext(f))]; !ok {
		return f, fmt.Errorf("aerosol: unsupported OutputFile format `%s`", filepath.Ext(f))
	}
	if cloud.IsBlob(f) {
		return f, nil
	}
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("aerosol: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// newLogger creates a logger writing to w and, if logFile is not empty, to
// logFile. The returned function closes logFile.
func newLogger(w io.Writer, level, logFile string) (*logrus.Logger, func() error, error) {
	lvl, err := logrus.ParseLevel(os.ExpandEnv(level))
	if err != nil {
		return nil, nil, fmt.Errorf("aerosol: LogLevel: %v", err)
	}
	log := logrus.New()
	log.Level = lvl
	log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	log.Out = w
	closer := func() error { return nil }
	if logFile = os.ExpandEnv(logFile); logFile != "" {
		f, err := os.Create(logFile)
		if err != nil {
			return nil, nil, fmt.Errorf("aerosol: creating log file: %v", err)
		}
		log.Out = io.MultiWriter(w, f)
		closer = f.Close
	}
	return log, closer, nil
}
