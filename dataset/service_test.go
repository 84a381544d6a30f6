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

package dataset

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/caodac/iqc/archive"
	"github.com/caodac/iqc/clearance"
	"github.com/caodac/iqc/datastore"
	"github.com/caodac/iqc/estimator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plate = `Sample,T0,T0-S,T5,T5-S,T10,T10-S,T15,T15-S,T30,T30-S,T60,T60-S
Verapamil-1,100,100,60,100,45,100,20,100,11,100,2,100
Verapamil-2,100,100,62,100,44,100,21,100,10,100,2,100
Stable-1,100,100,98,100,97,100,99,100,96,100,95,100
Sparse-1,100,100,N/F,100,N/F,100,N/F,100,N/F,100,20,100
`

const instrumentExport = `Quantify Compound Summary Report

Compound 1:  Verapamil

	Name	Sample Text	Primary Flags	RT	Area	IS Area	Response
1	run_01	T0	bb	1.01	1000.0	1000.0	1.0
2	run_02	T5	bb	1.01	600.0	1000.0	0.6
3	run_03	T10	bb	1.01	450.0	1000.0	0.45
4	run_04	T15	bb	1.01	200.0	1000.0	0.2
5	run_05	T30	bb	1.01	110.0	1000.0	0.11
6	run_06	T60	bb	1.01	20.0	1000.0	0.02

Compound 2:  Albendazole

	Name	Sample Text	Primary Flags	RT	Area	IS Area	Response
1	run_01	T0	bb	1.01	900.0	1000.0	0.9
2	run_02	T5	bb	1.01	880.0	1000.0	0.88
3	run_03	T10	bb	1.01	870.0	1000.0	0.87
4	run_04	T15	bb	1.01	860.0	1000.0	0.86
5	run_05	T30	bb	1.01	850.0	1000.0	0.85
6	run_06	T60	bb	1.01	840.0	1000.0	0.84

Compound 3: blank

	Name	Sample Text	Primary Flags	RT	Area	IS Area	Response
1	run_01	T0	bb	1.01	4.0	1000.0	0.004
2	run_02	T5	bb	1.01	3.0	1000.0	0.003
3	run_03	T10	bb	1.01	3.0	1000.0	0.003
4	run_04	T15	bb	1.01	2.0	1000.0	0.002
5	run_05	T30	bb	1.01	2.0	1000.0	0.002
6	run_06	T60	bb	1.01	1.0	1000.0	0.001
`

func newService(t *testing.T, withCache bool) *Service {
	arch, err := archive.NewFSStore(t.TempDir())
	require.NoError(t, err)
	srv := &Service{Archive: arch, NumWorkers: 2}
	if withCache {
		db, err := datastore.OpenDB(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		srv.Cache = db
	}
	return srv
}

func TestImport(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		srv := newService(t, withCache)
		var done atomic.Int32
		srv.OnSampleDone = func(estimator.SampleEstimate) { done.Add(1) }
		est := estimator.New(estimator.DefaultSettings())
		calc := clearance.DefaultCalculator()

		report, estimates, err := srv.Import(context.Background(), "plate-01.csv", strings.NewReader(plate), est, calc)
		require.NoError(t, err)
		assert.Equal(t, 3, report.NumSamples)
		assert.Equal(t, []string{"Sparse"}, report.Failed)
		assert.Equal(t, archive.Fingerprint([]byte(plate)), report.Entry.Fingerprint)
		assert.Equal(t, int32(3), done.Load())
		require.Len(t, estimates, 3)
		best := estimates[0].Best()
		require.NotNil(t, best)
		assert.Less(t, best.Model.Slope, 0.0)
		assert.Equal(t, calc.CLint(best.Model.Slope), best.CLint)

		again, err := srv.Estimates(context.Background(), "plate-01.csv", est, calc)
		require.NoError(t, err)
		require.Len(t, again, 3)
		assert.Equal(t, best.ID(), again[0].Best().ID())

		se, err := srv.SampleEstimate(context.Background(), "plate-01.csv", "Stable", est, calc)
		require.NoError(t, err)
		assert.Equal(t, "Stable", se.Sample.Name)
		_, err = srv.SampleEstimate(context.Background(), "plate-01.csv", "Unknown", est, calc)
		assert.ErrorIs(t, err, ErrSampleNotFound)

		entries, err := srv.List(context.Background())
		require.NoError(t, err)
		assert.Len(t, entries, 1)

		require.NoError(t, srv.Delete(context.Background(), "plate-01.csv"))
		_, err = srv.Estimates(context.Background(), "plate-01.csv", est, calc)
		assert.ErrorIs(t, err, archive.ErrNotFound)
	}
}

func TestImportInvalidFile(t *testing.T) {
	srv := newService(t, false)
	_, _, err := srv.Import(
		context.Background(),
		"bad.csv",
		strings.NewReader("Sample,T0\n"),
		estimator.New(estimator.DefaultSettings()),
		clearance.DefaultCalculator(),
	)
	assert.Error(t, err)
	entries, err := srv.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, _, err = srv.Import(
		context.Background(),
		"../bad.csv",
		strings.NewReader(plate),
		estimator.New(estimator.DefaultSettings()),
		clearance.DefaultCalculator(),
	)
	assert.ErrorIs(t, err, archive.ErrInvalidName)
}

func TestStandardAndBlankAreNotEstimated(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		srv := newService(t, withCache)
		var done atomic.Int32
		srv.OnSampleDone = func(estimator.SampleEstimate) { done.Add(1) }
		est := estimator.New(estimator.DefaultSettings())
		calc := clearance.DefaultCalculator()

		report, estimates, err := srv.Import(
			context.Background(), "run-01.txt", strings.NewReader(instrumentExport), est, calc)
		require.NoError(t, err)
		assert.Equal(t, 1, report.NumSamples)
		assert.Empty(t, report.Failed)
		assert.Equal(t, []string{"Albendazole", "blank"}, report.Skipped)
		assert.Equal(t, int32(1), done.Load())
		require.Len(t, estimates, 1)
		assert.Equal(t, "Verapamil", estimates[0].Sample.Name)
		assert.NotEmpty(t, estimates[0].Results)

		again, err := srv.Estimates(context.Background(), "run-01.txt", est, calc)
		require.NoError(t, err)
		require.Len(t, again, 1)
		assert.Equal(t, "Verapamil", again[0].Sample.Name)

		_, err = srv.SampleEstimate(context.Background(), "run-01.txt", "Albendazole", est, calc)
		assert.ErrorIs(t, err, ErrSampleNotFound)
	}
}
