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

// Package estimator searches for the best supported exponential decay
// model of a sample while tolerating a limited number of outlier
// measurements. All the admissible subsets of measures are enumerated
// (in the Gray code order), fitted with a log-linear regression,
// scored and ranked.
package estimator

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/caodac/iqc/assay"
	"github.com/caodac/iqc/fitscore"
	"github.com/caodac/iqc/graycode"
	"github.com/caodac/iqc/regression"
)

const (
	DefaultMaxOutliers   = 2
	DefaultMaxSearchSize = 10

	// MinPoints is the minimum number of measures a meaningful
	// fit requires
	MinPoints = 3
)

var ErrInsufficientData = errors.New("insufficient data")

// Settings configures the combinatorial search
type Settings struct {

	// MaxOutliers is the maximum number of measures which can be
	// dropped from a configuration
	MaxOutliers int `json:"maxOutliers" msgpack:"maxOutliers"`

	// MaxSearchSize limits the number of measures considered
	// for inclusion. Measures beyond the limit are ignored.
	MaxSearchSize int `json:"maxSearchSize" msgpack:"maxSearchSize"`

	// UseReplicates makes the estimator search over raw per-replicate
	// measures instead of time-aggregated ones.
	UseReplicates bool `json:"useReplicates" msgpack:"useReplicates"`
}

func (s Settings) String() string {
	return fmt.Sprintf("outliers=%d,size=%d,replicates=%t", s.MaxOutliers, s.MaxSearchSize, s.UseReplicates)
}

func DefaultSettings() Settings {
	return Settings{
		MaxOutliers:   DefaultMaxOutliers,
		MaxSearchSize: DefaultMaxSearchSize,
	}
}

// Estimator is stateless across samples and safe for concurrent use
// as long as its Scorer is.
type Estimator struct {
	Settings Settings
	Scorer   fitscore.Scorer
}

// Candidates returns the measures the search runs over. By default,
// these are the time-aggregated measures of the sample. With UseReplicates,
// all the usable raw measures are returned in their insertion order.
func (e *Estimator) Candidates(sample *assay.Sample) []*assay.Measure {
	if !e.Settings.UseReplicates {
		return sample.MedianMeasures()
	}
	sample.Freeze()
	ans := make([]*assay.Measure, 0, sample.Size())
	for _, m := range sample.Measures() {
		if m.Usable() {
			ans = append(ans, m)
		}
	}
	return ans
}

// MinInclude returns the minimum number of measures an admissible
// configuration over size slots must include. At most MaxOutliers
// measures can be dropped but never below MinPoints.
func (e *Estimator) MinInclude(size int) int {
	return max(MinPoints, size-max(0, e.Settings.MaxOutliers))
}

func (e *Estimator) searchSize(numCandidates int) int {
	if e.Settings.MaxSearchSize > 0 {
		return min(numCandidates, e.Settings.MaxSearchSize, graycode.MaxBits)
	}
	return min(numCandidates, graycode.MaxBits)
}

// SearchSpace returns the usable candidate measures limited to the
// search size. Configurations of the sample's results index into
// the returned slice.
func (e *Estimator) SearchSpace(sample *assay.Sample) ([]*assay.Measure, error) {
	candidates := make([]*assay.Measure, 0, sample.Size())
	for _, m := range e.Candidates(sample) {
		if m.Usable() {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) < MinPoints {
		return nil, fmt.Errorf(
			"too few measures (%d) for a meaningful fit of %s: %w",
			len(candidates), sample.Name, ErrInsufficientData,
		)
	}
	return candidates[:e.searchSize(len(candidates))], nil
}

// Estimate runs the search over a single sample and returns all the
// admissible results sorted by score in descending order (NaN scores go
// last) with ranks assigned. Less than MinPoints usable measures produce
// ErrInsufficientData. The sample is frozen if it is not yet.
func (e *Estimator) Estimate(sample *assay.Sample) ([]*Result, error) {
	measures, err := e.SearchSpace(sample)
	if err != nil {
		return nil, err
	}
	size := len(measures)
	minInclude := e.MinInclude(size)

	results := make([]*Result, 0, 64)
	gc := graycode.New(size)
	for config := range gc.All() {
		if graycode.Count(config) < minInclude {
			continue
		}
		res, err := e.evaluate(sample, measures, config)
		if err != nil {
			return nil, fmt.Errorf("failed to estimate %s: %w", sample.Name, err)
		}
		results = append(results, res)
	}
	Rank(results)
	return results, nil
}

func (e *Estimator) evaluate(sample *assay.Sample, measures []*assay.Measure, config []int) (*Result, error) {
	points := make([]regression.Point, 0, len(config))
	included := make([]*assay.Measure, 0, len(config))
	for i, v := range config {
		if v == 0 {
			continue
		}
		t, _ := measures[i].Minutes()
		points = append(points, regression.Point{Time: t, Response: *measures[i].Response})
		included = append(included, measures[i])
	}
	model := regression.FitLogLinear(points)
	res := newResult(sample, measures, config, model)
	score, err := e.scorer().Score(model, included)
	if err != nil {
		return nil, err
	}
	res.Score = score
	return res, nil
}

func (e *Estimator) scorer() fitscore.Scorer {
	if e.Scorer == nil {
		return fitscore.NewLeastSquaresScorer()
	}
	return e.Scorer
}

// CompareScores orders scores descending with NaN values last.
func CompareScores(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	}
	return cmp.Compare(b, a)
}

// Rank sorts results by their score (best first) and sets
// their ranks to 1..len(results). Ties keep their original order.
func Rank(results []*Result) {
	slices.SortStableFunc(results, func(r1, r2 *Result) int {
		return CompareScores(r1.Score, r2.Score)
	})
	for i, r := range results {
		r.Rank = i + 1
	}
}

func New(settings Settings) *Estimator {
	return &Estimator{
		Settings: settings,
		Scorer:   fitscore.NewLeastSquaresScorer(),
	}
}
