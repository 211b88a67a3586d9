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
	"math"
	"os"

	"github.com/lar555/aerosol"
	"github.com/lar555/aerosol/cloud"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// run loads and filters the configured profiles, applies f to them, and
// writes the result to the configured OutputFile.
func run(cmd *cobra.Command, f func(*aerosol.Dataset) (*aerosol.Dataset, error)) error {
	ctx := context.Background()
	log, closeLog, err := newLogger(cmd.OutOrStdout(), Cfg.GetString("LogLevel"), Cfg.GetString("LogFile"))
	if err != nil {
		return err
	}
	defer closeLog()

	c, err := loadConfig(ctx, Cfg)
	if err != nil {
		return err
	}
	outputFile, err := checkOutputFile(ctx, Cfg.GetString("OutputFile"))
	if err != nil {
		return err
	}

	d, err := Load(ctx, c, log)
	if err != nil {
		return err
	}
	o, err := f(d)
	if err != nil {
		return err
	}

	var u cloud.Uploader
	localFile, err := u.MaybeUpload(outputFile)
	if err != nil {
		return err
	}
	if err := WriteOutput(o, localFile); err != nil {
		return err
	}
	if err := u.Upload(ctx); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"file":      outputFile,
		"variables": len(o.Vars),
	}).Info("wrote output")
	return nil
}

// Load reads the profiles selected by c and applies its filters in the
// order: expression filter, region mask, maximum-value truncation, and
// tropopause truncation.
func Load(ctx context.Context, c *LoadConfig, log logrus.FieldLogger) (*aerosol.Dataset, error) {
	dir, err := cloud.DownloadDir(ctx, c.InputDir, log)
	if err != nil {
		return nil, err
	}
	opts := aerosol.LoadOptions{
		MinTime: c.StartTime,
		MaxTime: c.EndTime,
		Log:     log,
	}
	var d *aerosol.Dataset
	switch c.Loader {
	case "usask":
		d, err = aerosol.LoadUSask(dir, opts)
	case "nasa":
		d, err = aerosol.LoadNASA(dir, aerosol.NASAOptions{
			LoadOptions: opts,
			Wavelength:  c.Wavelength,
			Crosstrack:  c.Crosstrack,
		})
	case "iup":
		d, err = aerosol.LoadIUP(dir, opts)
	default:
		err = fmt.Errorf("aerosol: invalid loader `%s`", c.Loader)
	}
	if err != nil {
		return nil, err
	}

	if c.Filter != "" {
		if d, err = aerosol.Where(d, c.Filter); err != nil {
			return nil, err
		}
	}
	if c.Mask != nil {
		if d, err = aerosol.Within(d, c.Mask); err != nil {
			return nil, err
		}
	}
	if c.MaxExtinction > 0 {
		if d, err = aerosol.TruncateBelowMaxValue(d, c.MaxExtinction); err != nil {
			return nil, err
		}
	}
	if c.TruncateTropopause {
		if d, err = aerosol.TruncateBelowTropopause(d, c.TropopauseBuffer, math.NaN()); err != nil {
			return nil, err
		}
	}
	n, _ := d.DimLen(aerosol.TimeDim)
	log.WithFields(logrus.Fields{
		"loader":   c.Loader,
		"profiles": n,
	}).Info("selected profiles")
	return d, nil
}

// yearly combines the configured NASA daily files into yearly files.
func yearly(cmd *cobra.Command) error {
	log, closeLog, err := newLogger(cmd.OutOrStdout(), Cfg.GetString("LogLevel"), Cfg.GetString("LogFile"))
	if err != nil {
		return err
	}
	defer closeLog()

	in := os.ExpandEnv(Cfg.GetString("InputDir"))
	out := os.ExpandEnv(Cfg.GetString("OutputDir"))
	if in == "" || out == "" {
		return fmt.Errorf("aerosol: you need to specify the InputDir and OutputDir configuration variables")
	}
	if cloud.IsBlob(in) || cloud.IsBlob(out) {
		return fmt.Errorf("aerosol: InputDir and OutputDir must be local directories for the yearly command")
	}
	files, err := aerosol.CreateNASAYearlyFiles(in, out, aerosol.YearlyOptions{
		StartYear: Cfg.GetInt("StartYear"),
		EndYear:   Cfg.GetInt("EndYear"),
		Version:   os.ExpandEnv(Cfg.GetString("FileVersion")),
		Log:       log,
	})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"dir":   out,
		"files": len(files),
	}).Info("wrote yearly files")
	return nil
}
