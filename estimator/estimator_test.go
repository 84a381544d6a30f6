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
	"math"
	"testing"
	"time"

	"github.com/caodac/iqc/assay"
	"github.com/caodac/iqc/fitscore"
	"github.com/caodac/iqc/regression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var panelTimes = []float64{0, 5, 10, 15, 30, 60}

func makeSample(name string, times []float64, responses []*float64) *assay.Sample {
	s := assay.NewSample(name)
	for i, t := range times {
		s.Add(&assay.Measure{
			Name:     name,
			Time:     assay.Float(t),
			TimeUnit: time.Minute,
			Response: responses[i],
		})
	}
	return s
}

func values(v ...float64) []*float64 {
	ans := make([]*float64, len(v))
	for i := range v {
		ans[i] = assay.Float(v[i])
	}
	return ans
}

// exactDecaySample halves the response every 5 minutes, so ln(response)
// is linear in time over the whole panel. The vector 1, .5, .25, ... halving
// per sample is not: the panel is not evenly spaced, its full fit has slope
// of about -0.054 and X[0,1,2,3,4] ranks first.
func exactDecaySample(name string) *assay.Sample {
	resp := make([]float64, len(panelTimes))
	for i, t := range panelTimes {
		resp[i] = math.Pow(0.5, t/5)
	}
	return makeSample(name, panelTimes, values(resp...))
}

func assertRanked(t *testing.T, results []*Result) {
	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
		if i > 0 && !math.IsNaN(r.Score) {
			assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
		}
	}
}

func TestExactDecayFullConfigRanksFirst(t *testing.T) {
	est := New(DefaultSettings())
	results, err := est.Estimate(exactDecaySample("X"))
	require.NoError(t, err)
	// C(6,4) + C(6,5) + C(6,6)
	assert.Len(t, results, 22)
	assertRanked(t, results)

	best := results[0]
	assert.Equal(t, "X[0,1,2,3,4,5]", best.ID())
	assert.Equal(t, "1 2 3 4 5 6", best.ConfigLabel())
	assert.InDelta(t, math.Log(0.5)/5, best.Model.Slope, 1e-9)
	assert.InDelta(t, 1.0, best.Model.R2(), 1e-9)
	assert.InDelta(t, 0.0, best.Model.MSE, 1e-9)
	assert.InDelta(t, 1.0, best.Score, 1e-9)
}

func TestMinIncludeKeepsThreePointFloor(t *testing.T) {
	sample := exactDecaySample("X")

	est := New(Settings{MaxOutliers: 2, MaxSearchSize: 10})
	assert.Equal(t, 4, est.MinInclude(6))
	results, err := est.Estimate(sample)
	require.NoError(t, err)
	assert.Len(t, results, 22)
	for _, r := range results {
		assert.GreaterOrEqual(t, len(r.Positions()), 4)
	}

	// C(6,3) + C(6,4) + C(6,5) + C(6,6), the floor of three points wins
	for _, outliers := range []int{3, 5} {
		est = New(Settings{MaxOutliers: outliers, MaxSearchSize: 10})
		assert.Equal(t, MinPoints, est.MinInclude(6))
		results, err = est.Estimate(sample)
		require.NoError(t, err)
		assert.Len(t, results, 42)
	}
}

func TestOutlierIsExcluded(t *testing.T) {
	est := New(Settings{MaxOutliers: 1, MaxSearchSize: 10})
	results, err := est.Estimate(
		makeSample("Y", panelTimes, values(1.0, 0.5, 0.25, 50.0, 0.06, 0.03)))
	require.NoError(t, err)
	assert.Len(t, results, 7)
	assertRanked(t, results)
	assert.Equal(t, "Y[0,1,2,4,5]", results[0].ID())

	var full *Result
	for _, r := range results {
		if len(r.Positions()) == 6 {
			full = r
		}
	}
	require.NotNil(t, full)
	assert.Greater(t, results[0].Score, full.Score)
}

func TestThreePointsGiveSingleConfiguration(t *testing.T) {
	for _, outliers := range []int{0, 1, 2, 5} {
		est := New(Settings{MaxOutliers: outliers, MaxSearchSize: 10})
		results, err := est.Estimate(makeSample("Z", []float64{0, 5, 10}, values(1, 0.7, 0.5)))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, []int{1, 1, 1}, results[0].Config)
		assert.Equal(t, 3, est.MinInclude(3))
	}
}

func TestInsufficientData(t *testing.T) {
	est := New(DefaultSettings())
	_, err := est.Estimate(makeSample("N", panelTimes, make([]*float64, len(panelTimes))))
	assert.ErrorIs(t, err, ErrInsufficientData)

	blanks := assay.NewSample("B")
	for _, tm := range panelTimes {
		blanks.Add(&assay.Measure{Time: assay.Float(tm), Response: assay.Float(1), Blank: true})
	}
	_, err = est.Estimate(blanks)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = est.Estimate(makeSample("T", []float64{0, 5}, values(1, 0.5)))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestNullResponsesAreSkipped(t *testing.T) {
	resp := values(1.0, 0.5, 0.25, 0.125)
	resp = append(resp, nil, nil)
	est := New(DefaultSettings())
	results, err := est.Estimate(makeSample("S", panelTimes, resp))
	require.NoError(t, err)
	assert.Len(t, results[0].Measures, 4)
	assert.Equal(t, "S[0,1,2,3]", results[0].ID())
}

func TestEstimateIsIdempotent(t *testing.T) {
	est := New(DefaultSettings())
	smpl := makeSample("I", panelTimes, values(1.0, 0.6, 0.45, 0.2, 0.11, 0.02))
	r1, err := est.Estimate(smpl)
	require.NoError(t, err)
	r2, err := est.Estimate(smpl)
	require.NoError(t, err)
	require.Equal(t, len(r1), len(r2))
	for i := range r1 {
		assert.Equal(t, r1[i].ID(), r2[i].ID())
		assert.Equal(t, r1[i].Score, r2[i].Score)
		assert.Equal(t, r1[i].Rank, r2[i].Rank)
	}
}

func TestConstantResponseKeepsNaNScores(t *testing.T) {
	est := New(DefaultSettings())
	results, err := est.Estimate(makeSample("C", panelTimes, values(2, 2, 2, 2, 2, 2)))
	require.NoError(t, err)
	assert.Len(t, results, 22)
	for _, r := range results {
		assert.True(t, math.IsNaN(r.Score))
		assert.Equal(t, 0.0, r.Model.Slope)
	}
}

func TestNaNScoresGoLast(t *testing.T) {
	results := []*Result{
		{Score: math.NaN()},
		{Score: 0.2},
		{Score: math.NaN()},
		{Score: 0.7},
	}
	Rank(results)
	assert.Equal(t, 0.7, results[0].Score)
	assert.Equal(t, 0.2, results[1].Score)
	assert.True(t, math.IsNaN(results[2].Score))
	assert.Equal(t, 4, results[3].Rank)
}

func TestSearchSizeIsCapped(t *testing.T) {
	times := []float64{0, 5, 10, 15, 30, 60, 90, 120}
	resp := make([]float64, len(times))
	for i, tm := range times {
		resp[i] = math.Exp(-0.01 * tm)
	}
	est := New(Settings{MaxOutliers: 1, MaxSearchSize: 5})
	results, err := est.Estimate(makeSample("L", times, values(resp...)))
	require.NoError(t, err)
	assert.Len(t, results, 6)
	for _, r := range results {
		assert.Len(t, r.Measures, 5)
		assert.Len(t, r.Config, 5)
	}
}

func TestReplicateCandidates(t *testing.T) {
	s := assay.NewSample("R")
	for repl := 0; repl < 2; repl++ {
		for _, tm := range []float64{0, 5, 10} {
			s.Add(&assay.Measure{
				Time:      assay.Float(tm),
				Response:  assay.Float(math.Exp(-0.05 * tm)),
				Replicate: repl,
			})
		}
	}
	s.Add(&assay.Measure{Blank: true, Replicate: 1})

	est := New(Settings{MaxOutliers: 0, MaxSearchSize: 10})
	assert.Len(t, est.Candidates(s), 3)

	est.Settings.UseReplicates = true
	assert.Len(t, est.Candidates(s), 6)
	results, err := est.Estimate(s)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 6, results[0].Model.N)
}

type failingScorer struct{}

func (fs failingScorer) Score(model regression.Model, included []*assay.Measure) (float64, error) {
	return math.NaN(), fitscore.ErrUnsupportedModel
}

func TestScorerFailureIsReported(t *testing.T) {
	est := &Estimator{Settings: DefaultSettings(), Scorer: failingScorer{}}
	_, err := est.Estimate(exactDecaySample("F"))
	assert.ErrorIs(t, err, fitscore.ErrUnsupportedModel)
}

func TestEstimateAllRecoversPerSample(t *testing.T) {
	samples := []*assay.Sample{
		exactDecaySample("A"),
		makeSample("B", []float64{0}, values(1)),
		exactDecaySample("C"),
	}
	est := New(DefaultSettings())
	var done int
	ans, err := est.EstimateAll(context.Background(), samples, 1, func(se SampleEstimate) { done++ })
	require.NoError(t, err)
	require.Len(t, ans, 3)
	assert.Equal(t, 3, done)
	assert.Equal(t, "A", ans[0].Sample.Name)
	assert.NoError(t, ans[0].Err)
	assert.ErrorIs(t, ans[1].Err, ErrInsufficientData)
	assert.Nil(t, ans[1].Best())
	assert.Equal(t, "C[0,1,2,3,4,5]", ans[2].Best().ID())
}

func TestEstimateAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	est := New(DefaultSettings())
	_, err := est.EstimateAll(ctx, []*assay.Sample{exactDecaySample("A")}, 2, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseID(t *testing.T) {
	name, pos, err := ParseID("1-Phenyl[3]pyrazolone[0,2,3]")
	require.NoError(t, err)
	assert.Equal(t, "1-Phenyl[3]pyrazolone", name)
	assert.Equal(t, []int{0, 2, 3}, pos)
	assert.Equal(t, "1-Phenyl[3]pyrazolone[0,2,3]", FormatID(name, pos))

	_, _, err = ParseID("foo")
	assert.Error(t, err)
	_, _, err = ParseID("foo[a,b]")
	assert.Error(t, err)
}
