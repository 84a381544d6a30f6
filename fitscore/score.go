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

// Package fitscore defines heuristics for scoring fitted decay models.
package fitscore

import (
	"errors"
	"fmt"
	"math"

	"github.com/caodac/iqc/assay"
	"github.com/caodac/iqc/regression"
)

var ErrUnsupportedModel = errors.New("unsupported model type")

// Scorer maps a fitted model and the measures it was fitted on
// to a single quality score.
type Scorer interface {
	Score(model regression.Model, included []*assay.Measure) (float64, error)
}

// PanelEntry is a canonical time point (in minutes) and its weight
type PanelEntry struct {
	Time   int
	Weight float64
}

// Panel is a list of canonical time points. Measures taken at other
// times contribute zero weight to the score.
type Panel []PanelEntry

// DefaultPanel covers the T0, T5, T10, T15, T30 and T60 time points.
// Each subsequent point has half the weight of the previous one as
// early points carry most of the decay information.
var DefaultPanel = Panel{
	{Time: 0, Weight: 1},
	{Time: 5, Weight: 1 / 2.},
	{Time: 10, Weight: 1 / 4.},
	{Time: 15, Weight: 1 / 8.},
	{Time: 30, Weight: 1 / 16.},
	{Time: 60, Weight: 1 / 32.},
}

// Weight returns the weight of a time value. The time is truncated
// to whole minutes first.
func (p Panel) Weight(minutes float64) float64 {
	t := int(minutes)
	for _, e := range p {
		if e.Time == t {
			return e.Weight
		}
	}
	return 0
}

// BestScore is the raw score of an ideal fit using all the panel points
// (R = 1, MSE = 0). For the default panel this is 6 * 1.96875 = 11.8125.
func (p Panel) BestScore() float64 {
	var sum float64
	for _, e := range p {
		sum += e.Weight
	}
	return float64(len(p)) * sum
}

// LeastSquaresScorer scores linear fits as
//
//	score = (sum of weights of included times) * N * exp(-MSE) * R^2 / BestScore
//
// where N is the number of included measures. The score of a good
// fit falls into [0, 1] but it is not clamped, so it may exceed 1
// e.g. for repeated time points.
type LeastSquaresScorer struct {
	Panel Panel
}

func (s *LeastSquaresScorer) panel() Panel {
	if len(s.Panel) == 0 {
		return DefaultPanel
	}
	return s.Panel
}

func (s *LeastSquaresScorer) Score(model regression.Model, included []*assay.Measure) (float64, error) {
	lf, ok := model.(*regression.LinearFit)
	if !ok {
		return math.NaN(), fmt.Errorf("cannot score %T: %w", model, ErrUnsupportedModel)
	}
	panel := s.panel()
	var wsum float64
	for _, m := range included {
		if t, ok := m.Minutes(); ok {
			wsum += panel.Weight(t)
		}
	}
	raw := wsum * float64(len(included)) * math.Exp(-lf.MSE) * lf.R2()
	return raw / panel.BestScore(), nil
}

func NewLeastSquaresScorer() *LeastSquaresScorer {
	return &LeastSquaresScorer{Panel: DefaultPanel}
}
