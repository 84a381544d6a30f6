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

package cnf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/caodac/iqc/annotation"
	"github.com/caodac/iqc/archive"
	"github.com/caodac/iqc/clearance"
	"github.com/caodac/iqc/estimator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	conf := DefaultConf()
	require.NoError(t, ValidateAndDefaults(conf))
	assert.Equal(t, estimator.DefaultSettings(), conf.Estimator.Settings())
	assert.Positive(t, conf.Estimator.NumWorkers)
	assert.Equal(t, clearance.DefaultCYPConc, conf.Clearance.CYPConc)
	assert.Equal(t, clearance.UnitMLPerPmolMin, conf.Clearance.Unit)
	assert.Equal(t, annotation.DriverMemory, conf.Annotations.Driver)
	assert.Equal(t, archive.DriverFS, conf.Archive.Driver)
	assert.NotEmpty(t, conf.Archive.Dir)
	assert.Equal(t, 8080, conf.ListenPort)
}

func TestZeroOutliersIsKept(t *testing.T) {
	zero := 0
	conf := &Conf{Estimator: EstimatorConf{MaxOutliers: &zero}}
	require.NoError(t, ValidateAndDefaults(conf))
	assert.Equal(t, 0, conf.Estimator.Settings().MaxOutliers)
}

func TestInvalidValues(t *testing.T) {
	neg := -1
	assert.Error(t, ValidateAndDefaults(&Conf{Estimator: EstimatorConf{MaxOutliers: &neg}}))
	assert.Error(t, ValidateAndDefaults(&Conf{Estimator: EstimatorConf{MaxSearchSize: 2}}))
	assert.Error(t, ValidateAndDefaults(&Conf{Clearance: ClearanceConf{Unit: "L/h"}}))
	assert.Error(t, ValidateAndDefaults(&Conf{Clearance: ClearanceConf{Transform: "sqrt"}}))
	assert.Error(t, ValidateAndDefaults(&Conf{Annotations: annotation.Conf{Driver: "sqlite"}}))
	assert.Error(t, ValidateAndDefaults(&Conf{T0Correction: -0.5}))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.json")
	data := `{
		"listenPort": 9090,
		"estimator": {"maxOutliers": 1, "maxSearchSize": 8, "numWorkers": 2},
		"clearance": {"unit": "mL/nmol/hr", "transform": "log", "cypConc": 20},
		"annotations": {"driver": "sqlite", "path": "/tmp/anno.db"},
		"t0Correction": 0.75
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	conf := LoadConfig(path)
	require.NoError(t, ValidateAndDefaults(conf))
	assert.Equal(t, path, conf.SrcPath())
	assert.Equal(t, 9090, conf.ListenPort)
	assert.Equal(t, estimator.Settings{MaxOutliers: 1, MaxSearchSize: 8}, conf.Estimator.Settings())
	assert.Equal(t, 2, conf.Estimator.NumWorkers)
	calc, err := conf.Clearance.Calculator()
	require.NoError(t, err)
	assert.Equal(t, "log", calc.Transform.Name())
	assert.Equal(t, clearance.UnitMLPerNmolHr, calc.Unit)
	assert.Equal(t, 0.75, conf.T0Correction)
}
