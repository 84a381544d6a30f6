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

package estimator

import (
	"context"
	"errors"

	"github.com/caodac/iqc/assay"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// SampleEstimate is an outcome of estimation for a single sample
// within a batch. Either Results or Err is set.
type SampleEstimate struct {
	Sample  *assay.Sample
	Results []*Result
	Err     error
}

// Best returns the top ranked result or nil
func (se SampleEstimate) Best() *Result {
	if len(se.Results) == 0 {
		return nil
	}
	return se.Results[0]
}

// EstimateAll estimates the samples using up to numWorkers goroutines.
// Per-sample failures (e.g. ErrInsufficientData) are stored in the
// respective SampleEstimate and do not stop the batch. The returned
// slice keeps the order of the input. The only returned error is
// a context cancellation. The onDone callback (if not nil) is called
// once a sample is processed, possibly from multiple goroutines.
func (e *Estimator) EstimateAll(
	ctx context.Context,
	samples []*assay.Sample,
	numWorkers int,
	onDone func(SampleEstimate),
) ([]SampleEstimate, error) {
	ans := make([]SampleEstimate, len(samples))
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(max(1, numWorkers))
	for i, smpl := range samples {
		if grpCtx.Err() != nil {
			break
		}
		grp.Go(func() error {
			if err := grpCtx.Err(); err != nil {
				return err
			}
			results, err := e.Estimate(smpl)
			ans[i] = SampleEstimate{Sample: smpl, Results: results, Err: err}
			if err != nil {
				if errors.Is(err, ErrInsufficientData) {
					log.Warn().Err(err).Str("sample", smpl.Name).Msg("skipping sample")

				} else {
					log.Error().Err(err).Str("sample", smpl.Name).Msg("failed to estimate sample")
				}
			}
			if onDone != nil {
				onDone(ans[i])
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return ans, err
	}
	return ans, ctx.Err()
}
