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
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

var ErrSampleFrozen = errors.New("sample is frozen")

// Sample is a set of measures of one analyte. Measures are appended
// during ingestion and the sample must be frozen (see Freeze) before
// it is handed to an estimator. After that, the sample is read-only
// and safe for concurrent access.
type Sample struct {
	Name     string
	Comments string

	// Standard marks an internal standard sample
	Standard bool

	// Blank marks a blank (background) sample
	Blank bool

	measures   []*Measure
	replicates map[int]struct{}

	freezeOnce sync.Once
	frozen     atomic.Bool
	median     []*Measure
}

func NewSample(name string) *Sample {
	return &Sample{
		Name:       name,
		replicates: make(map[int]struct{}),
	}
}

// Add appends a measure. Insertion order is preserved.
func (s *Sample) Add(m *Measure) error {
	if s.frozen.Load() {
		return fmt.Errorf("cannot add measure to %s: %w", s.Name, ErrSampleFrozen)
	}
	if s.replicates == nil {
		s.replicates = make(map[int]struct{})
	}
	s.measures = append(s.measures, m)
	s.replicates[m.Replicate] = struct{}{}
	return nil
}

func (s *Sample) Size() int {
	return len(s.measures)
}

// At returns the i-th measure in insertion order.
func (s *Sample) At(i int) *Measure {
	return s.measures[i]
}

// Measures returns a copy of the measure list
func (s *Sample) Measures() []*Measure {
	return slices.Clone(s.measures)
}

// Replicates returns sorted distinct replicate identifiers
// found among the sample measures.
func (s *Sample) Replicates() []int {
	ans := make([]int, 0, len(s.replicates))
	for r := range s.replicates {
		ans = append(ans, r)
	}
	slices.Sort(ans)
	return ans
}

func (s *Sample) IsFrozen() bool {
	return s.frozen.Load()
}

// Freeze ends the ingestion phase of the sample and computes
// the median measures. Calling it more than once is a NOP.
func (s *Sample) Freeze() {
	s.freezeOnce.Do(func() {
		s.median = AggregateByTime(s.Name, s.measures)
		s.frozen.Store(true)
	})
}

// MedianMeasures returns one synthetic measure per distinct time value
// (ascending) with response averaged over all the replicates.
// The sample is frozen first if needed.
func (s *Sample) MedianMeasures() []*Measure {
	s.Freeze()
	return s.median
}

// AggregateByTime groups non-blank measures with a defined time by their
// time value and averages their defined responses. Time values without
// any defined response are not emitted.
func AggregateByTime(name string, measures []*Measure) []*Measure {
	type acc struct {
		sum float64
		n   int
	}
	groups := make(map[float64]*acc)
	for _, m := range measures {
		if m.Blank {
			continue
		}
		t, ok := m.Minutes()
		if !ok {
			continue
		}
		g, ok := groups[t]
		if !ok {
			g = &acc{}
			groups[t] = g
		}
		if m.Response != nil {
			g.sum += *m.Response
			g.n++
		}
	}
	times := make([]float64, 0, len(groups))
	for t, g := range groups {
		if g.n > 0 {
			times = append(times, t)
		}
	}
	slices.Sort(times)
	ans := make([]*Measure, len(times))
	for i, t := range times {
		g := groups[t]
		ans[i] = &Measure{
			Name:     name,
			Time:     Float(t),
			TimeUnit: time.Minute,
			Response: Float(g.sum / float64(g.n)),
		}
	}
	return ans
}
