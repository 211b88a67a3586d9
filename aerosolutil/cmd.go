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

// Package aerosolutil contains the command line interface for the aerosol
// tools.
package aerosolutil

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/lar555/aerosol"
	"github.com/lnashier/viper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

var options []option

func init() {
	loaders := []*pflag.FlagSet{loadCmd.Flags(), aodCmd.Flags(), meanCmd.Flags()}
	inputs := []*pflag.FlagSet{loadCmd.Flags(), aodCmd.Flags(), meanCmd.Flags(), yearlyCmd.Flags()}

	// Options are the configuration options available to aerosol.
	options = []option{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of log messages to print:
              one of debug, info, warning, or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to a file that log messages are
              additionally written to. If empty, messages are only
              written to standard output.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "InputDir",
			usage: `
              InputDir is the directory containing the OMPS input files.
              It can be a local directory or a blob storage location
              (file://, gs://, or s3://), which is downloaded before use.
              For the yearly command it must be a local directory holding
              one subdirectory of daily files per year.
              It can include environment variables.`,
			shorthand:  "i",
			defaultVal: "${OMPS_DATA}",
			flagsets:   inputs,
		},
		{
			name: "Loader",
			usage: `
              Loader is the OMPS data product to read: "usask" for the
              monthly USask files, "nasa" for the yearly NASA files, or
              "iup" for the yearly IUP Bremen files.`,
			defaultVal: "usask",
			flagsets:   loaders,
		},
		{
			name: "StartTime",
			usage: `
              StartTime is the earliest profile time to load, for example
              "2019-01-01" or "2019-01-01T06:00:00Z". If empty, there is
              no lower bound.`,
			defaultVal: "",
			flagsets:   loaders,
		},
		{
			name: "EndTime",
			usage: `
              EndTime is the latest profile time to load. If empty, there is
              no upper bound.`,
			defaultVal: "",
			flagsets:   loaders,
		},
		{
			name: "Wavelength",
			usage: `
              Wavelength selects the nearest wavelength [nm] from NASA files.
              Values ≤ 0 keep all wavelengths.`,
			defaultVal: 0.0,
			flagsets:   loaders,
		},
		{
			name: "Crosstrack",
			usage: `
              Crosstrack selects one cross-track position from NASA files.
              Negative values keep all positions.`,
			defaultVal: -1,
			flagsets:   loaders,
		},
		{
			name: "Filter",
			usage: `
              Filter is a boolean expression over per-profile variables;
              only profiles where it is true are kept, for example
              "latitude > -10 && latitude < 10".`,
			defaultVal: "",
			flagsets:   loaders,
		},
		{
			name: "Mask",
			usage: `
              Mask is a region that profiles must fall within. It can be a
              GeoJSON geometry, the path to a GeoJSON file, or the path to a
              polygon shapefile (.shp), including blob storage locations.`,
			defaultVal: "",
			flagsets:   loaders,
		},
		{
			name: "MaxExtinction",
			usage: `
              MaxExtinction removes, from each profile, the highest
              level where extinction is at least this value and everything
              below it. Values ≤ 0 disable the filter.`,
			defaultVal: 0.0,
			flagsets:   loaders,
		},
		{
			name: "TruncateTropopause",
			usage: `
              TruncateTropopause specifies whether to set extinction at and
              below the tropopause (plus TropopauseBuffer) to missing.
              It is not allowed with the aod command, which already
              integrates from the tropopause.`,
			defaultVal: false,
			flagsets:   loaders,
		},
		{
			name: "TropopauseBuffer",
			usage: `
              TropopauseBuffer is the distance [km] above the tropopause
              that is also removed when TruncateTropopause is true.`,
			defaultVal: 0.0,
			flagsets:   loaders,
		},
		{
			name: "Method",
			usage: `
              Method is the time-averaged AOD estimator: "cdf", "average",
              "local", or "profile".`,
			defaultVal: string(aerosol.CDFTropopause),
			flagsets:   []*pflag.FlagSet{meanCmd.Flags()},
		},
		{
			name: "MaxAltitude",
			usage: `
              MaxAltitude is the top altitude [km] of the averaged AOD column.`,
			defaultVal: aerosol.DefaultMaxAltitude,
			flagsets:   []*pflag.FlagSet{meanCmd.Flags()},
		},
		{
			name: "OutputDir",
			usage: `
              OutputDir is the local directory where the yearly NASA files
              are written. It is created if it does not exist and can include
              environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{yearlyCmd.Flags()},
		},
		{
			name: "StartYear",
			usage: `
              StartYear is the first year of daily files to combine.`,
			defaultVal: 2011,
			flagsets:   []*pflag.FlagSet{yearlyCmd.Flags()},
		},
		{
			name: "EndYear",
			usage: `
              EndYear is the last year of daily files to combine.`,
			defaultVal: 2023,
			flagsets:   []*pflag.FlagSet{yearlyCmd.Flags()},
		},
		{
			name: "FileVersion",
			usage: `
              FileVersion is the product version used in the yearly file
              names (omps_nasa_<year>_aer_<FileVersion>.nc).`,
			defaultVal: "v21",
			flagsets:   []*pflag.FlagSet{yearlyCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path to the output file. The format is chosen
              by extension: .nc or .ncf for NetCDF, .csv, .xlsx, or .shp for
              a point shapefile. It can be a blob storage location and can
              include environment variables.`,
			shorthand:  "o",
			defaultVal: "aerosol.nc",
			flagsets:   loaders,
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("AEROSOL")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(loadCmd)
	Root.AddCommand(aodCmd)
	Root.AddCommand(meanCmd)
	Root.AddCommand(configCmd)
	Root.AddCommand(yearlyCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("aerosol: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "aerosol",
	Short: "Stratospheric aerosol optical depth from OMPS limb profiles.",
	Long: `aerosol loads OMPS limb-scatter aerosol extinction profiles and
computes the aerosol optical depth (AOD) above the tropopause.
Use the subcommands specified below to access the functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'AEROSOL_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of aerosol.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("aerosol v%s\n", aerosol.Version)
	},
	DisableAutoGenTag: true,
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load and filter extinction profiles.",
	Long: `load reads the OMPS files in InputDir, applies the configured
filters, and writes the resulting profiles to OutputFile in NetCDF format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(d *aerosol.Dataset) (*aerosol.Dataset, error) { return d, nil })
	},
	DisableAutoGenTag: true,
}

var aodCmd = &cobra.Command{
	Use:   "aod",
	Short: "Calculate AOD above the tropopause for each profile.",
	Long: `aod reads and filters the OMPS files in InputDir and integrates
extinction from the tropopause to the top of each profile, using the
cumulative integral of the profile interpolated to the tropopause altitude.
The result is written to OutputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// The integral needs the extinction in the layer that holds the
		// tropopause, which truncation removes.
		if Cfg.GetBool("TruncateTropopause") {
			return fmt.Errorf("aerosol: TruncateTropopause cannot be used with the aod command")
		}
		return run(cmd, aerosol.AODAboveTropopause)
	},
	DisableAutoGenTag: true,
}

var meanCmd = &cobra.Command{
	Use:   "mean",
	Short: "Calculate time-averaged AOD.",
	Long: `mean reads and filters the OMPS files in InputDir and estimates the
AOD of the time-averaged profile between the tropopause and MaxAltitude
with the estimator chosen by Method:

	cdf: mean extinction with levels below each profile's tropopause set to zero
	average: mean extinction above the mean tropopause
	local: mean extinction above each profile's tropopause
	profile: mean of the per-profile AOD`,
	RunE: func(cmd *cobra.Command, args []string) error {
		method, err := aerosol.ParseAODMethod(Cfg.GetString("Method"))
		if err != nil {
			return err
		}
		maxAlt := Cfg.GetFloat64("MaxAltitude")
		return run(cmd, func(d *aerosol.Dataset) (*aerosol.Dataset, error) {
			return aerosol.MeanAOD(d, method, maxAlt)
		})
	},
	DisableAutoGenTag: true,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the configuration.",
	Long: `config prints the effective configuration, combining defaults, the
configuration file, environment variables, and command-line arguments,
in TOML format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := make(map[string]interface{})
		for _, option := range options {
			if option.name == "config" {
				continue
			}
			settings[option.name] = Cfg.Get(option.name)
		}
		return toml.NewEncoder(cmd.OutOrStdout()).Encode(settings)
	},
	DisableAutoGenTag: true,
}

var yearlyCmd = &cobra.Command{
	Use:   "yearly",
	Short: "Combine NASA daily files into yearly files.",
	Long: `yearly combines the NASA OMPS-LP daily aerosol files in the year
subdirectories of InputDir into one file per year in OutputDir, which the
"nasa" Loader reads. The daily files must be NetCDF classic files with their
groups flattened, for example by "ncks -G : -3".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return yearly(cmd)
	},
	DisableAutoGenTag: true,
}
