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
	"fmt"
	"time"
)

// Measure is a single observed (or aggregated) time point
// of a metabolic stability assay.
//
// Time and Response are nullable. A nil value means "not available"
// (e.g. the N/F sentinel in exported files) and never zero.
type Measure struct {
	Name     string
	Comments string
	Flag     string

	Time     *float64
	TimeUnit time.Duration

	// RT is the retention time reported by the instrument.
	RT *float64

	// Area and ISArea are raw peak areas of the analyte
	// and of the internal standard.
	Area   *float64
	ISArea *float64

	// Response is the normalized peak area ratio (Area / ISArea).
	Response *float64

	Blank     bool
	Replicate int
}

// Float is a helper for filling in nullable numeric fields.
func Float(v float64) *float64 {
	return &v
}

// Minutes returns the measure time converted to minutes.
// The second value is false if there is no time information.
func (m *Measure) Minutes() (float64, bool) {
	if m.Time == nil {
		return 0, false
	}
	if m.TimeUnit == 0 || m.TimeUnit == time.Minute {
		return *m.Time, true
	}
	return *m.Time * float64(m.TimeUnit) / float64(time.Minute), true
}

// Usable tells whether the measure can enter a regression,
// i.e. it is not a blank and it has a time and a positive response.
func (m *Measure) Usable() bool {
	if m.Blank || m.Time == nil || m.Response == nil {
		return false
	}
	return *m.Response > 0
}

func fmtNullable(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%g", *v)
}

func (m *Measure) String() string {
	return fmt.Sprintf(
		"Measure{name=%s, time=%s, response=%s, rt=%s, area=%s, isArea=%s, blank=%t, replicate=%d, flag=%s}",
		m.Name,
		fmtNullable(m.Time),
		fmtNullable(m.Response),
		fmtNullable(m.RT),
		fmtNullable(m.Area),
		fmtNullable(m.ISArea),
		m.Blank,
		m.Replicate,
		m.Flag,
	)
}
