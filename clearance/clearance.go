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

// Package clearance derives pharmacokinetic quantities (intrinsic
// clearance and half-life) from the slope of a fitted decay model.
// The calculation is pure so it can be re-applied with a different
// unit or enzyme concentration without re-running the search.
package clearance

import (
	"fmt"
	"math"

	"github.com/caodac/iqc/estimator"
)

const (
	// DefaultCYPConc is the default CYP enzyme concentration in pmol/mL
	DefaultCYPConc = 29.03

	// HalfLifeSlopeGuard is the minimum absolute slope for which
	// the half-life is defined
	HalfLifeSlopeGuard = 1e-6
)

// Unit is a CLint unit convention
type Unit string

const (
	UnitMLPerPmolMin Unit = "mL/pmol/min"
	UnitMLPerNmolHr  Unit = "mL/nmol/hr"
)

// Scale returns the multiplier converting a -slope/conc ratio
// (per minute, per pmol) to the unit.
func (u Unit) Scale() float64 {
	switch u {
	case UnitMLPerNmolHr:
		return 60 * 1000
	default:
		return 1
	}
}

func (u Unit) Validate() error {
	switch u {
	case UnitMLPerPmolMin, UnitMLPerNmolHr:
		return nil
	}
	return fmt.Errorf("unknown CLint unit %s", u)
}

// Transform maps a positive (already scaled) -slope/conc ratio
// to the reported CLint value.
type Transform interface {
	Name() string
	Apply(ratio float64) float64
}

// RatioTransform reports the ratio as it is.
type RatioTransform struct{}

func (t RatioTransform) Name() string {
	return "ratio"
}

func (t RatioTransform) Apply(ratio float64) float64 {
	return ratio
}

// LogTransform reports -ln(ratio).
type LogTransform struct{}

func (t LogTransform) Name() string {
	return "log"
}

func (t LogTransform) Apply(ratio float64) float64 {
	return -math.Log(ratio)
}

// TransformByName returns a transform by its name ("ratio" or "log").
// Empty name gives RatioTransform.
func TransformByName(name string) (Transform, error) {
	switch name {
	case "", "ratio":
		return RatioTransform{}, nil
	case "log":
		return LogTransform{}, nil
	}
	return nil, fmt.Errorf("unknown CLint transform %s", name)
}

// Calculator derives CLint and half-life from a slope
type Calculator struct {
	Unit      Unit
	Conc      float64
	Transform Transform
}

// CLint returns the intrinsic clearance for a slope. Only decaying
// fits (slope < 0) have a defined value, NaN is returned otherwise.
func (calc Calculator) CLint(slope float64) float64 {
	if !(slope < 0) || !(calc.Conc > 0) {
		return math.NaN()
	}
	tr := calc.Transform
	if tr == nil {
		tr = RatioTransform{}
	}
	return tr.Apply(-slope / calc.Conc * calc.Unit.Scale())
}

// HalfLife returns -ln(2)/slope (in minutes) or NaN for slopes
// too close to zero.
func HalfLife(slope float64) float64 {
	if !(math.Abs(slope) > HalfLifeSlopeGuard) {
		return math.NaN()
	}
	return -math.Ln2 / slope
}

// Apply (re)computes CLint and HalfLife of all the results.
// Scores and ranks are not touched.
func (calc Calculator) Apply(results []*estimator.Result) {
	for _, r := range results {
		slope := r.Slope()
		r.CLint = calc.CLint(slope)
		r.HalfLife = HalfLife(slope)
	}
}

func (calc Calculator) Validate() error {
	if err := calc.Unit.Validate(); err != nil {
		return err
	}
	if !(calc.Conc > 0) {
		return fmt.Errorf("invalid CYP concentration %01.3f", calc.Conc)
	}
	return nil
}

func NewCalculator(unit Unit, conc float64, transform Transform) Calculator {
	if transform == nil {
		transform = RatioTransform{}
	}
	return Calculator{Unit: unit, Conc: conc, Transform: transform}
}

func DefaultCalculator() Calculator {
	return NewCalculator(UnitMLPerPmolMin, DefaultCYPConc, RatioTransform{})
}
