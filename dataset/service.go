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

// Package dataset ties together archiving, parsing, estimation
// and caching of uploaded assay datasets.
package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/caodac/iqc/archive"
	"github.com/caodac/iqc/assay"
	"github.com/caodac/iqc/clearance"
	"github.com/caodac/iqc/dataimport"
	"github.com/caodac/iqc/datastore"
	"github.com/caodac/iqc/estimator"
	"github.com/rs/zerolog/log"
)

var ErrSampleNotFound = errors.New("sample not found")

// Report summarizes an imported dataset
type Report struct {
	Entry archive.Entry `json:"entry"`

	// NumSamples is the number of estimated samples
	NumSamples int `json:"numSamples"`

	// Failed lists samples which could not be estimated
	// (e.g. due to insufficient data)
	Failed []string `json:"failed"`

	// Skipped lists internal standard and blank samples
	// which are never estimated
	Skipped []string `json:"skipped"`

	Duration time.Duration `json:"duration"`
}

type Service struct {
	Archive archive.Store

	// Cache is optional
	Cache *datastore.DB

	NumWorkers  int
	ReadOptions dataimport.Options

	// OnSampleDone is called (possibly concurrently) once
	// a sample is estimated
	OnSampleDone func(estimator.SampleEstimate)
}

// parse reads the dataset and returns samples to be estimated along
// with the skipped ones (see dataimport.Analytes)
func (srv *Service) parse(name string, data []byte) ([]*assay.Sample, []*assay.Sample, error) {
	rd, err := dataimport.NewReader(name, bytes.NewReader(data), srv.ReadOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse dataset %s: %w", name, err)
	}
	samples, err := dataimport.ReadAll(rd, srv.ReadOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse dataset %s: %w", name, err)
	}
	analytes, skipped := dataimport.Analytes(samples)
	return analytes, skipped, nil
}

func (srv *Service) estimate(
	ctx context.Context,
	entry archive.Entry,
	samples []*assay.Sample,
	est *estimator.Estimator,
	calc clearance.Calculator,
) ([]estimator.SampleEstimate, error) {
	ans, err := est.EstimateAll(ctx, samples, srv.NumWorkers, srv.OnSampleDone)
	if err != nil {
		return nil, err
	}
	for _, se := range ans {
		calc.Apply(se.Results)
	}
	if srv.Cache != nil {
		info := datastore.DatasetInfo{
			Name:        entry.Name,
			Fingerprint: entry.Fingerprint,
			Size:        entry.Size,
			Settings:    est.Settings,
		}
		if err := srv.Cache.StoreEstimates(info, ans); err != nil {
			log.Error().Err(err).Str("dataset", entry.Name).Msg("failed to cache estimates")
		}
	}
	return ans, nil
}

// Import archives the dataset file, parses and estimates it. Parsing
// happens before the file is archived so invalid files are never stored.
func (srv *Service) Import(
	ctx context.Context,
	name string,
	src io.Reader,
	est *estimator.Estimator,
	calc clearance.Calculator,
) (Report, []estimator.SampleEstimate, error) {
	t0 := time.Now()
	if err := archive.ValidateName(name); err != nil {
		return Report{}, nil, err
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return Report{}, nil, fmt.Errorf("failed to import dataset %s: %w", name, err)
	}
	samples, skipped, err := srv.parse(name, data)
	if err != nil {
		return Report{}, nil, err
	}
	entry, err := srv.Archive.Put(ctx, name, bytes.NewReader(data))
	if err != nil {
		return Report{}, nil, err
	}
	if entry.Fingerprint == 0 {
		entry.Fingerprint = archive.Fingerprint(data)
	}
	estimates, err := srv.estimate(ctx, entry, samples, est, calc)
	if err != nil {
		return Report{}, nil, err
	}
	report := Report{
		Entry:      entry,
		NumSamples: len(samples),
		Failed:     make([]string, 0, 10),
		Skipped:    make([]string, len(skipped)),
		Duration:   time.Since(t0),
	}
	for i, smpl := range skipped {
		report.Skipped[i] = smpl.Name
	}
	for _, se := range estimates {
		if se.Err != nil {
			report.Failed = append(report.Failed, se.Sample.Name)
		}
	}
	log.Info().
		Str("dataset", name).
		Int("samples", report.NumSamples).
		Int("failed", len(report.Failed)).
		Strs("skipped", report.Skipped).
		Dur("duration", report.Duration).
		Msg("dataset imported")
	return report, estimates, nil
}

// Estimates returns estimates of all the dataset samples except for internal
// standards and blanks. Cached values are used when available, otherwise
// the archived file is re-processed.
func (srv *Service) Estimates(
	ctx context.Context,
	name string,
	est *estimator.Estimator,
	calc clearance.Calculator,
) ([]estimator.SampleEstimate, error) {
	if srv.Cache != nil {
		_, ans, err := srv.Cache.LoadEstimates(name, est, calc)
		if err == nil {
			return ans, nil
		}
		if !errors.Is(err, datastore.ErrNotFound) {
			log.Error().Err(err).Str("dataset", name).Msg("failed to load cached estimates")
		}
	}
	rd, entry, err := srv.Archive.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rd)
	rd.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", name, err)
	}
	if entry.Fingerprint == 0 {
		entry.Fingerprint = archive.Fingerprint(data)
	}
	samples, _, err := srv.parse(name, data)
	if err != nil {
		return nil, err
	}
	return srv.estimate(ctx, entry, samples, est, calc)
}

// SampleEstimate returns estimates of a single sample of a dataset
func (srv *Service) SampleEstimate(
	ctx context.Context,
	name, sample string,
	est *estimator.Estimator,
	calc clearance.Calculator,
) (estimator.SampleEstimate, error) {
	if srv.Cache != nil {
		ans, err := srv.Cache.LoadSample(name, sample, est, calc)
		if err == nil {
			return ans, nil
		}
	}
	all, err := srv.Estimates(ctx, name, est, calc)
	if err != nil {
		return estimator.SampleEstimate{}, err
	}
	for _, se := range all {
		if se.Sample.Name == sample {
			return se, nil
		}
	}
	return estimator.SampleEstimate{}, fmt.Errorf("%s in %s: %w", sample, name, ErrSampleNotFound)
}

func (srv *Service) List(ctx context.Context) ([]archive.Entry, error) {
	return srv.Archive.List(ctx)
}

func (srv *Service) Open(ctx context.Context, name string) (io.ReadCloser, archive.Entry, error) {
	return srv.Archive.Get(ctx, name)
}

// Delete removes both the archived file and cached estimates
func (srv *Service) Delete(ctx context.Context, name string) error {
	if err := srv.Archive.Delete(ctx, name); err != nil {
		return err
	}
	if srv.Cache != nil {
		if err := srv.Cache.DeleteDataset(name); err != nil && !errors.Is(err, datastore.ErrNotFound) {
			return err
		}
	}
	return nil
}
