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

package regression

import (
	"fmt"
	"math"
)

// LinearFit is an ordinary least squares fit of ln(response) on time.
//
// Degenerate inputs are not treated as errors. With less than two points
// or with zero variance of times, the slope and intercept are NaN.
// With constant responses, R is NaN. Those values are meant to propagate
// to scoring so they can be detected and filtered by callers.
type LinearFit struct {
	N               int     `msgpack:"n" json:"n"`
	Slope           float64 `msgpack:"slope" json:"slope"`
	Intercept       float64 `msgpack:"intercept" json:"intercept"`
	MSE             float64 `msgpack:"mse" json:"mse"`
	R               float64 `msgpack:"r" json:"r"`
	SlopeStdErr     float64 `msgpack:"slopeStdErr" json:"slopeStdErr"`
	InterceptStdErr float64 `msgpack:"interceptStdErr" json:"interceptStdErr"`
}

// R2 returns the coefficient of determination
func (lf *LinearFit) R2() float64 {
	return lf.R * lf.R
}

func (lf *LinearFit) Params() []Variable {
	return []Variable{
		{Name: VarSlope, Value: lf.Slope},
		{Name: VarIntercept, Value: lf.Intercept},
	}
}

func (lf *LinearFit) Metrics() []Variable {
	return []Variable{
		{Name: VarMSE, Value: lf.MSE},
		{Name: VarR, Value: lf.R},
		{Name: VarSlopeStdErr, Value: lf.SlopeStdErr},
		{Name: VarInterceptStdErr, Value: lf.InterceptStdErr},
	}
}

func (lf *LinearFit) Variable(name string) (Variable, bool) {
	for _, v := range lf.Params() {
		if v.Name == name {
			return v, true
		}
	}
	for _, v := range lf.Metrics() {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

func (lf *LinearFit) String() string {
	return fmt.Sprintf(
		"LinearFit{slope=%01.5f, intercept=%01.5f, MSE=%01.5f, R^2=%01.3f}",
		lf.Slope, lf.Intercept, lf.MSE, lf.R2(),
	)
}

// Point is a (time, response) pair. Response is in the original
// (not log-transformed) scale.
type Point struct {
	Time     float64
	Response float64
}

// FitLogLinear computes the OLS regression of ln(response) on time.
// Points with a non-positive or NaN response are skipped.
func FitLogLinear(points []Point) *LinearFit {
	xs := make([]float64, 0, len(points))
	ys := make([]float64, 0, len(points))
	for _, p := range points {
		if !(p.Response > 0) || math.IsNaN(p.Time) {
			continue
		}
		xs = append(xs, p.Time)
		ys = append(ys, math.Log(p.Response))
	}
	return FitLinear(xs, ys)
}

// FitLinear computes the OLS regression of ys on xs. Both slices
// must have the same length.
func FitLinear(xs, ys []float64) *LinearFit {
	n := len(xs)
	ans := &LinearFit{
		N:               n,
		Slope:           math.NaN(),
		Intercept:       math.NaN(),
		MSE:             math.NaN(),
		R:               math.NaN(),
		SlopeStdErr:     math.NaN(),
		InterceptStdErr: math.NaN(),
	}
	if n < 2 {
		return ans
	}

	var xMean, yMean float64
	for i := 0; i < n; i++ {
		xMean += xs[i]
		yMean += ys[i]
	}
	xMean /= float64(n)
	yMean /= float64(n)

	var sxx, sxy, syy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - xMean
		dy := ys[i] - yMean
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}

	// zero variance of x gives 0/0 = NaN here
	ans.Slope = sxy / sxx
	ans.Intercept = yMean - ans.Slope*xMean

	sse := math.Max(0, syy-sxy*sxy/sxx)
	if n > 2 {
		ans.MSE = sse / float64(n-2)
		ans.SlopeStdErr = math.Sqrt(ans.MSE / sxx)
		ans.InterceptStdErr = math.Sqrt(ans.MSE * (1/float64(n) + xMean*xMean/sxx))
	}

	r := math.Sqrt((syy - sse) / syy)
	if ans.Slope < 0 {
		r = -r
	}
	ans.R = r
	return ans
}
