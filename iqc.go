// Copyright 2025 The IQC Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/caodac/iqc/apiserver"
	"github.com/caodac/iqc/cnf"
	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/fatih/color"
)

const (
	actionEstimate = "estimate"
	actionImport   = "import"
	actionServer   = "server"
	actionREPL     = "repl"
	actionVersion  = "version"
	actionHelp     = "help"
)

const (
	exitErrorGeneralFailure = iota + 1
	exitErrorInvalidConfig
	exitErrorImportFailed
	exitErrorEstimationFailed
	exitErrorREPLFailed
)

var (
	version   string
	buildDate string
	gitCommit string
)

// VersionInfo provides a detailed information about the actual build
type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"buildDate"`
	GitCommit string `json:"gitCommit"`
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("%s (build date: %s, commit: %s)", v.Version, v.BuildDate, v.GitCommit)
}

func topLevelUsage() {
	fmt.Fprintf(os.Stderr, "IQC - outlier tolerant metabolic stability estimator\n")
	fmt.Fprintf(os.Stderr, "-----------------------------\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "\t%s\t\tshow version info\n", actionVersion)
	fmt.Fprintf(os.Stderr, "\t%s\testimate samples of a CSV/TXT export and print ranked fits\n", actionEstimate)
	fmt.Fprintf(os.Stderr, "\t%s\t\tarchive a dataset file and cache its estimates\n", actionImport)
	fmt.Fprintf(os.Stderr, "\t%s\t\trun the HTTP API server\n", actionServer)
	fmt.Fprintf(os.Stderr, "\t%s\t\tinteractive curator shell\n", actionREPL)
	fmt.Fprintf(os.Stderr, "\nUse `iqc help ACTION` for information about a specific action\n\n")
}

// setup loads the configuration (or creates a default one if confPath
// is empty), sets up logging and validates the config.
func setup(confPath string) *cnf.Conf {
	var conf *cnf.Conf
	if confPath != "" {
		conf = cnf.LoadConfig(confPath)

	} else {
		conf = cnf.DefaultConf()
	}
	if conf.Logging.Level == "" {
		conf.Logging.Level = "warn"
	}
	logging.SetupLogging(conf.Logging)
	if err := cnf.ValidateAndDefaults(conf); err != nil {
		color.New(errColor).Fprintf(os.Stderr, "invalid configuration: %s\n", err)
		os.Exit(exitErrorInvalidConfig)
	}
	return conf
}

func cleanVersionInfo(v string) string {
	return strings.TrimLeft(strings.Trim(v, "'"), "v")
}

func runActionVersion(ver VersionInfo) {
	fmt.Fprintln(os.Stderr, "IQC version: ", ver)
}

func runActionServer(conf *cnf.Conf) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	apiserver.Run(ctx, conf)
}

func main() {
	version := VersionInfo{
		Version:   cleanVersionInfo(version),
		BuildDate: cleanVersionInfo(buildDate),
		GitCommit: cleanVersionInfo(gitCommit),
	}

	cmdVersion := flag.NewFlagSet(actionVersion, flag.ExitOnError)
	cmdVersion.Usage = func() {
		cmdVersion.PrintDefaults()
	}

	cmdHelp := flag.NewFlagSet(actionHelp, flag.ExitOnError)
	cmdHelp.Usage = func() {
		topLevelUsage()
	}

	cmdEstimate := flag.NewFlagSet(actionEstimate, flag.ExitOnError)
	estConfPath := cmdEstimate.String("conf", "", "path to a JSON config file (optional)")
	estTopN := cmdEstimate.Int("top", 3, "number of best results to print for each sample (0 = all)")
	estJSON := cmdEstimate.Bool("json", false, "print results as JSON lines (one line per sample)")
	estProgress := cmdEstimate.Bool("progress", true, "show a progress bar")
	estOutliers := cmdEstimate.Int("max-outliers", -1, "max. number of measures allowed to be dropped (-1 = use config)")
	estReplicates := cmdEstimate.Bool("replicates", false, "search over raw replicate measures instead of time-aggregated ones")
	estUnit := cmdEstimate.String("unit", "", "CLint unit (mL/pmol/min or mL/nmol/hr)")
	estConc := cmdEstimate.Float64("conc", 0, "CYP concentration in pmol/mL")
	estTransform := cmdEstimate.String("transform", "", "CLint transform (ratio or log)")
	estT0 := cmdEstimate.Float64("t0-correction", 0, "factor applied to T0 responses (0 = use config)")
	cmdEstimate.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\t%s %s [options] data_file.[csv|txt]\n\t",
			filepath.Base(os.Args[0]), actionEstimate)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		cmdEstimate.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEstimate all the samples of an assay export and print ranked fits\n")
	}

	cmdImport := flag.NewFlagSet(actionImport, flag.ExitOnError)
	importName := cmdImport.String("name", "", "dataset name (default: the file name)")
	cmdImport.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\t%s %s [options] config.json data_file.[csv|txt]\n\t",
			filepath.Base(os.Args[0]), actionImport)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		cmdImport.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nArchive a dataset file and cache its estimates\n")
	}

	cmdServer := flag.NewFlagSet(actionServer, flag.ExitOnError)
	cmdServer.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\t%s %s config.json\n\t",
			filepath.Base(os.Args[0]), actionServer)
		fmt.Fprintf(os.Stderr, "\nRun IQC as an HTTP API server\n")
	}

	cmdREPL := flag.NewFlagSet(actionREPL, flag.ExitOnError)
	replCurator := cmdREPL.String("curator", os.Getenv("USER"), "curator name stored with annotations")
	cmdREPL.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\t%s %s [options] config.json\n\t",
			filepath.Base(os.Args[0]), actionREPL)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		cmdREPL.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nInteractive shell for reviewing and annotating estimates\n")
	}

	action := actionHelp
	if len(os.Args) > 1 {
		action = os.Args[1]
	}

	switch action {
	case actionHelp:
		var subj string
		if len(os.Args) > 2 {
			cmdHelp.Parse(os.Args[2:])
			subj = cmdHelp.Arg(0)
		}
		if subj == "" {
			topLevelUsage()
			return
		}
		switch subj {
		case actionEstimate:
			cmdEstimate.Usage()
		case actionImport:
			cmdImport.Usage()
		case actionServer:
			cmdServer.Usage()
		case actionREPL:
			cmdREPL.Usage()
		default:
			topLevelUsage()
		}
	case actionVersion:
		cmdVersion.Parse(os.Args[2:])
		runActionVersion(version)
	case actionEstimate:
		cmdEstimate.Parse(os.Args[2:])
		if cmdEstimate.NArg() < 1 {
			cmdEstimate.Usage()
			os.Exit(exitErrorGeneralFailure)
		}
		conf := setup(*estConfPath)
		if *estOutliers >= 0 {
			conf.Estimator.MaxOutliers = estOutliers
		}
		if *estReplicates {
			conf.Estimator.UseReplicates = true
		}
		if *estT0 > 0 {
			conf.T0Correction = *estT0
		}
		runActionEstimate(
			conf,
			cmdEstimate.Arg(0),
			estimateOptions{
				TopN:         *estTopN,
				JSONLines:    *estJSON,
				ShowProgress: *estProgress && !*estJSON,
				Unit:         *estUnit,
				Conc:         *estConc,
				Transform:    *estTransform,
			},
		)
	case actionImport:
		cmdImport.Parse(os.Args[2:])
		if cmdImport.NArg() < 2 {
			cmdImport.Usage()
			os.Exit(exitErrorGeneralFailure)
		}
		conf := setup(cmdImport.Arg(0))
		runActionImport(conf, cmdImport.Arg(1), *importName)
	case actionServer:
		cmdServer.Parse(os.Args[2:])
		conf := setup(cmdServer.Arg(0))
		runActionServer(conf)
	case actionREPL:
		cmdREPL.Parse(os.Args[2:])
		conf := setup(cmdREPL.Arg(0))
		runActionREPL(conf, *replCurator)
	default:
		fmt.Fprintf(os.Stderr, "Unknown action, please use 'help' to get more information\n")
		os.Exit(exitErrorGeneralFailure)
	}
}
