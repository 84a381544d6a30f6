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

package assay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMeasure(t, resp float64, repl int) *Measure {
	return &Measure{
		Name:      "x",
		Time:      Float(t),
		TimeUnit:  time.Minute,
		Response:  Float(resp),
		Replicate: repl,
	}
}

func TestMedianMeasuresAveragesReplicates(t *testing.T) {
	s := NewSample("x")
	require.NoError(t, s.Add(newMeasure(5, 0.4, 0)))
	require.NoError(t, s.Add(newMeasure(0, 1.0, 0)))
	require.NoError(t, s.Add(newMeasure(0, 0.8, 1)))
	require.NoError(t, s.Add(newMeasure(5, 0.6, 1)))

	med := s.MedianMeasures()
	require.Len(t, med, 2)
	assert.Equal(t, 0.0, *med[0].Time)
	assert.InDelta(t, 0.9, *med[0].Response, 1e-12)
	assert.Equal(t, 5.0, *med[1].Time)
	assert.InDelta(t, 0.5, *med[1].Response, 1e-12)
	assert.Equal(t, []int{0, 1}, s.Replicates())
}

func TestMedianMeasuresSkipsBlankAndNulls(t *testing.T) {
	s := NewSample("x")
	require.NoError(t, s.Add(&Measure{Blank: true, Time: Float(0), Response: Float(100)}))
	require.NoError(t, s.Add(&Measure{Time: Float(10)}))                   // no response
	require.NoError(t, s.Add(&Measure{Response: Float(3)}))                // no time
	require.NoError(t, s.Add(&Measure{Time: Float(15), Response: Float(2)}))

	med := s.MedianMeasures()
	require.Len(t, med, 1)
	assert.Equal(t, 15.0, *med[0].Time)
	assert.Equal(t, 2.0, *med[0].Response)
}

func TestSingleReplicateReported(t *testing.T) {
	s := NewSample("x")
	require.NoError(t, s.Add(newMeasure(0, 1, 3)))
	require.NoError(t, s.Add(newMeasure(5, 1, 3)))
	assert.Equal(t, []int{3}, s.Replicates())
}

func TestAddAfterFreezeFails(t *testing.T) {
	s := NewSample("x")
	require.NoError(t, s.Add(newMeasure(0, 1, 0)))
	s.Freeze()
	err := s.Add(newMeasure(5, 1, 0))
	assert.ErrorIs(t, err, ErrSampleFrozen)
	assert.Equal(t, 1, s.Size())
}

func TestConcurrentMedianMeasures(t *testing.T) {
	s := NewSample("x")
	for i, resp := range []float64{1.0, 0.7, 0.5, 0.3} {
		require.NoError(t, s.Add(newMeasure(float64(i*5), resp, 0)))
		require.NoError(t, s.Add(newMeasure(float64(i*5), resp+0.1, 1)))
	}
	results := make([][]*Measure, 8)
	frozen := make([]bool, len(results))
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.MedianMeasures()
			frozen[i] = s.IsFrozen()
		}(i)
	}
	wg.Wait()

	for i := range results {
		assert.True(t, frozen[i])
		require.Len(t, results[i], 4)
		assert.Same(t, results[0][0], results[i][0])
	}
	assert.InDelta(t, 1.05, *results[0][0].Response, 1e-12)
	assert.ErrorIs(t, s.Add(newMeasure(30, 0.1, 0)), ErrSampleFrozen)
}

func TestMinutesConversion(t *testing.T) {
	m := &Measure{Time: Float(90), TimeUnit: time.Second}
	v, ok := m.Minutes()
	assert.True(t, ok)
	assert.InDelta(t, 1.5, v, 1e-12)

	_, ok = (&Measure{}).Minutes()
	assert.False(t, ok)
}

func TestUsable(t *testing.T) {
	assert.True(t, newMeasure(0, 1, 0).Usable())
	assert.False(t, newMeasure(0, 0, 0).Usable())
	assert.False(t, (&Measure{Blank: true, Time: Float(0), Response: Float(1)}).Usable())
	assert.False(t, (&Measure{Time: Float(0)}).Usable())
}
