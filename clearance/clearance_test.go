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

package clearance

import (
	"math"
	"testing"
	"time"

	"github.com/caodac/iqc/assay"
	"github.com/caodac/iqc/estimator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatioCLint(t *testing.T) {
	calc := NewCalculator(UnitMLPerPmolMin, 20, nil)
	assert.InDelta(t, 0.005, calc.CLint(-0.1), 1e-12)

	calc.Unit = UnitMLPerNmolHr
	assert.InDelta(t, 300.0, calc.CLint(-0.1), 1e-9)
}

func TestLogCLint(t *testing.T) {
	calc := NewCalculator(UnitMLPerPmolMin, 20, LogTransform{})
	assert.InDelta(t, -math.Log(0.005), calc.CLint(-0.1), 1e-12)
}

func TestCLintUndefinedForNonDecay(t *testing.T) {
	calc := DefaultCalculator()
	assert.True(t, math.IsNaN(calc.CLint(0)))
	assert.True(t, math.IsNaN(calc.CLint(0.2)))
	assert.True(t, math.IsNaN(calc.CLint(math.NaN())))
	calc.Conc = 0
	assert.True(t, math.IsNaN(calc.CLint(-0.1)))
}

func TestHalfLife(t *testing.T) {
	assert.InDelta(t, 5.0, HalfLife(math.Log(0.5)/5), 1e-9)
	assert.True(t, math.IsNaN(HalfLife(1e-7)))
	assert.True(t, math.IsNaN(HalfLife(math.NaN())))
	// growth gives a negative value which is reported as is
	assert.Less(t, HalfLife(0.1), 0.0)
}

func TestTransformByName(t *testing.T) {
	tr, err := TransformByName("")
	require.NoError(t, err)
	assert.Equal(t, "ratio", tr.Name())
	tr, err = TransformByName("log")
	require.NoError(t, err)
	assert.Equal(t, "log", tr.Name())
	_, err = TransformByName("sqrt")
	assert.Error(t, err)
}

func TestUnitChangeKeepsScoresAndRanks(t *testing.T) {
	s := assay.NewSample("X")
	for i, r := range []float64{1.0, 0.6, 0.45, 0.2, 0.11, 0.02} {
		tm := []float64{0, 5, 10, 15, 30, 60}[i]
		s.Add(&assay.Measure{Time: assay.Float(tm), TimeUnit: time.Minute, Response: assay.Float(r)})
	}
	results, err := estimator.New(estimator.DefaultSettings()).Estimate(s)
	require.NoError(t, err)

	NewCalculator(UnitMLPerPmolMin, DefaultCYPConc, nil).Apply(results)
	scores := make([]float64, len(results))
	ranks := make([]int, len(results))
	clint := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.Score
		ranks[i] = r.Rank
		clint[i] = r.CLint
	}

	NewCalculator(UnitMLPerNmolHr, DefaultCYPConc, nil).Apply(results)
	for i, r := range results {
		assert.Equal(t, scores[i], r.Score)
		assert.Equal(t, ranks[i], r.Rank)
		if !math.IsNaN(clint[i]) {
			assert.InDelta(t, clint[i]*60000, r.CLint, 1e-9)
		}
	}
	assert.InDelta(t, -math.Ln2/results[0].Model.Slope, results[0].HalfLife, 1e-12)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultCalculator().Validate())
	assert.Error(t, NewCalculator("foo", 1, nil).Validate())
	assert.Error(t, NewCalculator(UnitMLPerPmolMin, -1, nil).Validate())
}
