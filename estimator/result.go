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
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/caodac/iqc/assay"
	"github.com/caodac/iqc/regression"
)

// Result is one scored configuration of a sample's measures.
type Result struct {
	Sample *assay.Sample

	// Measures is the array the configuration indexes into
	Measures []*assay.Measure

	// Config is a 0/1 inclusion vector over Measures
	Config []int

	Model *regression.LinearFit
	Score float64

	// Rank is 1-based position of the result within its sample
	Rank int

	// CLint and HalfLife are derived from the model slope
	// (see the clearance package). NaN means undefined.
	CLint    float64
	HalfLife float64
}

func newResult(sample *assay.Sample, measures []*assay.Measure, config []int, model *regression.LinearFit) *Result {
	cfg := make([]int, len(config))
	copy(cfg, config)
	return &Result{
		Sample:   sample,
		Measures: measures,
		Config:   cfg,
		Model:    model,
		Score:    math.NaN(),
		CLint:    math.NaN(),
		HalfLife: math.NaN(),
	}
}

// RestoreResult recreates a result from its stored parts. The measures
// must be the search space the configuration was created for
// (see Estimator.SearchSpace).
func RestoreResult(
	sample *assay.Sample,
	measures []*assay.Measure,
	config []int,
	model *regression.LinearFit,
	score float64,
	rank int,
) (*Result, error) {
	if len(config) != len(measures) {
		return nil, fmt.Errorf(
			"configuration of size %d does not match %d measures of %s",
			len(config), len(measures), sample.Name,
		)
	}
	ans := newResult(sample, measures, config, model)
	ans.Score = score
	ans.Rank = rank
	return ans, nil
}

// Positions returns 0-based indices of included measures.
func (r *Result) Positions() []int {
	ans := make([]int, 0, len(r.Config))
	for i, v := range r.Config {
		if v > 0 {
			ans = append(ans, i)
		}
	}
	return ans
}

// Included returns the measures selected by the configuration.
func (r *Result) Included() []*assay.Measure {
	ans := make([]*assay.Measure, 0, len(r.Config))
	for i, v := range r.Config {
		if v > 0 {
			ans = append(ans, r.Measures[i])
		}
	}
	return ans
}

// ID is a stable identifier of the result composed of the sample name
// and positions of included measures (e.g. "CompoundX[0,2,3]").
// The value is deterministic for the same input and it is used
// as a key for curator annotations.
func (r *Result) ID() string {
	return FormatID(r.Sample.Name, r.Positions())
}

// ConfigLabel lists 1-based positions of included measures
// separated by spaces.
func (r *Result) ConfigLabel() string {
	pos := r.Positions()
	chunks := make([]string, len(pos))
	for i, p := range pos {
		chunks[i] = strconv.Itoa(p + 1)
	}
	return strings.Join(chunks, " ")
}

// Slope returns the model slope or NaN if there is no model
func (r *Result) Slope() float64 {
	if r.Model == nil {
		return math.NaN()
	}
	return r.Model.Slope
}

func (r *Result) String() string {
	var sb strings.Builder
	sb.WriteString("Result{\n")
	fmt.Fprintf(&sb, " sample: %s\n", r.Sample.Name)
	fmt.Fprintf(&sb, " rank: %d\n", r.Rank)
	sb.WriteString(" measures:\n")
	for _, p := range r.Positions() {
		fmt.Fprintf(&sb, "  [%d] %s\n", p, r.Measures[p])
	}
	fmt.Fprintf(&sb, " model: %s\n", r.Model)
	fmt.Fprintf(&sb, " score: %01.4f\n}", r.Score)
	return sb.String()
}

// FormatID creates a result identifier from a sample name and 0-based
// positions of included measures.
func FormatID(sampleName string, positions []int) string {
	chunks := make([]string, len(positions))
	for i, p := range positions {
		chunks[i] = strconv.Itoa(p)
	}
	return sampleName + "[" + strings.Join(chunks, ",") + "]"
}

// ParseID splits a result identifier into the sample name and
// the positions of included measures.
func ParseID(id string) (string, []int, error) {
	open := strings.LastIndexByte(id, '[')
	if open < 0 || !strings.HasSuffix(id, "]") {
		return "", nil, fmt.Errorf("invalid result id %s", id)
	}
	name := id[:open]
	body := id[open+1 : len(id)-1]
	if body == "" {
		return name, []int{}, nil
	}
	items := strings.Split(body, ",")
	ans := make([]int, len(items))
	for i, item := range items {
		v, err := strconv.Atoi(item)
		if err != nil {
			return "", nil, fmt.Errorf("invalid result id %s: %w", id, err)
		}
		ans[i] = v
	}
	return name, ans, nil
}
