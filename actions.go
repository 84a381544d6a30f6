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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/caodac/iqc/apiserver"
	"github.com/caodac/iqc/assay"
	"github.com/caodac/iqc/clearance"
	"github.com/caodac/iqc/cnf"
	"github.com/caodac/iqc/dataimport"
	"github.com/caodac/iqc/estimator"
	"github.com/czcorpus/cnc-gokit/collections"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

const (
	errColor = color.FgHiRed

	outcomeOK               = "ok"
	outcomeInsufficientData = "insufficient data"
	outcomeFailed           = "failed"
	outcomeSkipped          = "skipped (standard or blank)"
)

type estimateOptions struct {
	TopN         int
	JSONLines    bool
	ShowProgress bool

	// Unit, Conc and Transform override the configured
	// clearance settings if set
	Unit      string
	Conc      float64
	Transform string
}

func (opts estimateOptions) calculator(conf *cnf.Conf) (clearance.Calculator, error) {
	cc := conf.Clearance
	if opts.Unit != "" {
		cc.Unit = clearance.Unit(opts.Unit)
	}
	if opts.Conc > 0 {
		cc.CYPConc = opts.Conc
	}
	if opts.Transform != "" {
		cc.Transform = opts.Transform
	}
	return cc.Calculator()
}

type resultRecord struct {
	Rank      int      `json:"rank"`
	ID        string   `json:"id"`
	Config    string   `json:"config"`
	Score     *float64 `json:"score"`
	Slope     *float64 `json:"slope"`
	Intercept *float64 `json:"intercept"`
	R2        *float64 `json:"r2"`
	MSE       *float64 `json:"mse"`
	CLint     *float64 `json:"clint"`
	HalfLife  *float64 `json:"halfLife"`
}

type sampleRecord struct {
	Sample  string         `json:"sample"`
	Error   string         `json:"error,omitempty"`
	Results []resultRecord `json:"results"`
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func newSampleRecord(se estimator.SampleEstimate, topN int) sampleRecord {
	ans := sampleRecord{
		Sample:  se.Sample.Name,
		Results: make([]resultRecord, 0, topN),
	}
	if se.Err != nil {
		ans.Error = se.Err.Error()
		return ans
	}
	for i, res := range se.Results {
		if topN > 0 && i >= topN {
			break
		}
		ans.Results = append(ans.Results, resultRecord{
			Rank:      res.Rank,
			ID:        res.ID(),
			Config:    res.ConfigLabel(),
			Score:     nullable(res.Score),
			Slope:     nullable(res.Model.Slope),
			Intercept: nullable(res.Model.Intercept),
			R2:        nullable(res.Model.R2()),
			MSE:       nullable(res.Model.MSE),
			CLint:     nullable(res.CLint),
			HalfLife:  nullable(res.HalfLife),
		})
	}
	return ans
}

func outcome(se estimator.SampleEstimate) string {
	if se.Err == nil {
		return outcomeOK
	}
	if errors.Is(se.Err, estimator.ErrInsufficientData) {
		return outcomeInsufficientData
	}
	return outcomeFailed
}

func fmtValue(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4g", v)
}

func writeSampleText(w io.Writer, se estimator.SampleEstimate, topN int, unit clearance.Unit) {
	titleColor := color.New(color.FgHiMagenta).SprintFunc()
	fmt.Fprintf(w, "%s\n", titleColor(se.Sample.Name))
	if se.Err != nil {
		color.New(errColor).Fprintf(w, "  %s\n", se.Err)
		return
	}
	fmt.Fprintf(w, "  %-4s %-10s %-8s %-10s %-7s %-12s %-8s %s\n",
		"rank", "score", "r2", "slope", "mse", "CLint", "t1/2", "config")
	for i, res := range se.Results {
		if topN > 0 && i >= topN {
			break
		}
		fmt.Fprintf(w, "  %-4d %-10s %-8s %-10s %-7s %-12s %-8s %s\n",
			res.Rank,
			fmtValue(res.Score),
			fmtValue(res.Model.R2()),
			fmtValue(res.Model.Slope),
			fmtValue(res.Model.MSE),
			fmtValue(res.CLint),
			fmtValue(res.HalfLife),
			res.ConfigLabel(),
		)
	}
	fmt.Fprintf(w, "  (CLint in %s, t1/2 in min.)\n", unit)
}

// writeSummary prints number of samples per estimation outcome,
// the most frequent outcome first. Skipped samples are listed
// by name below the counts.
func writeSummary(w io.Writer, estimates []estimator.SampleEstimate, skipped []string) {
	counts := make(map[string]int)
	for _, se := range estimates {
		counts[outcome(se)]++
	}
	if len(skipped) > 0 {
		counts[outcomeSkipped] = len(skipped)
	}
	entries := collections.MapToEntriesSorted(
		counts,
		func(a, b collections.MapEntry[string, int]) int {
			return b.V - a.V
		},
	)
	fmt.Fprintln(w, "----------------------------------------------------")
	fmt.Fprintln(w, "number of samples: ", len(estimates)+len(skipped))
	for _, entry := range entries {
		switch entry.K {
		case outcomeOK:
			color.New(color.FgGreen).Fprintf(w, "%s: %d\n", entry.K, entry.V)
		case outcomeSkipped:
			color.New(color.FgYellow).Fprintf(w, "%s: %d\n", entry.K, entry.V)
		default:
			color.New(errColor).Fprintf(w, "%s: %d\n", entry.K, entry.V)
		}
	}
	if len(skipped) > 0 {
		fmt.Fprintf(w, "skipped: %s\n", strings.Join(skipped, ", "))
	}
	fmt.Fprintln(w, "----------------------------------------------------")
}

func sampleNames(samples []*assay.Sample) []string {
	ans := make([]string, len(samples))
	for i, s := range samples {
		ans[i] = s.Name
	}
	return ans
}

func writeEstimates(
	w io.Writer,
	estimates []estimator.SampleEstimate,
	skipped []string,
	opts estimateOptions,
	unit clearance.Unit,
) error {
	if opts.JSONLines {
		enc := json.NewEncoder(w)
		for _, se := range estimates {
			if err := enc.Encode(newSampleRecord(se, opts.TopN)); err != nil {
				return fmt.Errorf("failed to write estimates: %w", err)
			}
		}
		return nil
	}
	for _, se := range estimates {
		writeSampleText(w, se, opts.TopN, unit)
	}
	writeSummary(w, estimates, skipped)
	return nil
}

func runActionEstimate(conf *cnf.Conf, srcPath string, opts estimateOptions) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	calc, err := opts.calculator(conf)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorInvalidConfig)
	}
	samples, err := dataimport.ReadFile(
		srcPath,
		dataimport.Options{
			T0Correction: conf.T0Correction,
			StandardName: conf.StandardName,
		},
	)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorImportFailed)
	}
	samples, skipped := dataimport.Analytes(samples)
	skippedNames := sampleNames(skipped)
	log.Info().
		Str("file", srcPath).
		Int("samples", len(samples)).
		Strs("skipped", skippedNames).
		Msg("loaded assay data")

	est := estimator.New(conf.Estimator.Settings())
	var onDone func(estimator.SampleEstimate)
	var bar *progressbar.ProgressBar
	if opts.ShowProgress {
		bar = progressbar.Default(int64(len(samples)), "estimating samples")
		onDone = func(estimator.SampleEstimate) {
			bar.Add(1)
		}
	}
	estimates, err := est.EstimateAll(ctx, samples, conf.Estimator.NumWorkers, onDone)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorEstimationFailed)
	}
	for _, se := range estimates {
		calc.Apply(se.Results)
	}
	if err := writeEstimates(os.Stdout, estimates, skippedNames, opts, calc.Unit); err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorGeneralFailure)
	}
}

func runActionImport(conf *cnf.Conf, srcPath, name string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if name == "" {
		name = filepath.Base(srcPath)
	}
	calc, err := conf.Clearance.Calculator()
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorInvalidConfig)
	}
	datasets, closeDatasets, err := apiserver.OpenDatasets(ctx, conf)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorImportFailed)
	}
	defer closeDatasets()

	f, err := os.Open(srcPath)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorImportFailed)
	}
	defer f.Close()

	est := estimator.New(conf.Estimator.Settings())
	report, estimates, err := datasets.Import(ctx, name, f, est, calc)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorImportFailed)
	}
	fmt.Printf("dataset:     %s\n", report.Entry.Name)
	fmt.Printf("fingerprint: %s\n", report.Entry.FingerprintHex())
	fmt.Printf("size:        %d bytes\n", report.Entry.Size)
	fmt.Printf("duration:    %s\n", report.Duration)
	writeSummary(os.Stdout, estimates, report.Skipped)
}
