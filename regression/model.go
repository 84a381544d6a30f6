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

import "fmt"

const (
	VarSlope           = "Slope"
	VarIntercept       = "Intercept"
	VarMSE             = "MSE"
	VarR               = "R"
	VarSlopeStdErr     = "SlopeStdErr"
	VarInterceptStdErr = "InterceptStdErr"
)

// Variable is a named model parameter or metric
type Variable struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func (v Variable) String() string {
	return fmt.Sprintf("%s=%01.5f", v.Name, v.Value)
}

// Model is a fitted model with its parameters (e.g. slope and intercept)
// and diagnostic metrics (e.g. mean squared error).
type Model interface {
	Params() []Variable
	Metrics() []Variable

	// Variable searches both parameters and metrics by name
	Variable(name string) (Variable, bool)
}
