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

package dataimport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caodac/iqc/assay"
	"github.com/rs/zerolog/log"
)

// Reader is a pull-style source of samples. Next returns io.EOF
// once there are no more samples.
type Reader interface {
	Next() (*assay.Sample, error)
}

type Options struct {

	// T0Correction multiplies the response of all the measures taken
	// at time zero. Zero value means no correction.
	T0Correction float64

	// StandardName is the name of the internal standard compound
	// in text exports (DefaultStandardName if empty)
	StandardName string
}

// Analytes splits samples into those subject to fitting and the skipped
// ones (internal standards and blanks). The order of samples is kept
// in both lists.
func Analytes(samples []*assay.Sample) ([]*assay.Sample, []*assay.Sample) {
	analytes := make([]*assay.Sample, 0, len(samples))
	skipped := make([]*assay.Sample, 0, 2)
	for _, s := range samples {
		if s.Standard || s.Blank {
			skipped = append(skipped, s)
			continue
		}
		analytes = append(analytes, s)
	}
	return analytes, skipped
}

// NewReader creates a reader based on a file name. Files with
// the ".csv" suffix are read by CSVReader, anything else is expected
// to be an instrument text export.
func NewReader(name string, src io.Reader, opts Options) (Reader, error) {
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		return NewCSVReader(src)
	}
	ans := NewTxtReader(src)
	if opts.StandardName != "" {
		ans.StandardName = opts.StandardName
	}
	return ans, nil
}

// ApplyT0Correction multiplies responses of T0 measures by the factor.
// The sample must not be frozen yet.
func ApplyT0Correction(sample *assay.Sample, factor float64) error {
	if sample.IsFrozen() {
		return fmt.Errorf("cannot correct T0 of %s: %w", sample.Name, assay.ErrSampleFrozen)
	}
	if factor == 0 || factor == 1 {
		return nil
	}
	for i := 0; i < sample.Size(); i++ {
		m := sample.At(i)
		if t, ok := m.Minutes(); ok && t == 0 && m.Response != nil {
			*m.Response *= factor
		}
	}
	return nil
}

// ReadAll reads all the samples, applies optional corrections
// and freezes them.
func ReadAll(rd Reader, opts Options) ([]*assay.Sample, error) {
	ans := make([]*assay.Sample, 0, 100)
	for {
		sample, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ans, err
		}
		if err := ApplyT0Correction(sample, opts.T0Correction); err != nil {
			return ans, err
		}
		sample.Freeze()
		ans = append(ans, sample)
	}
	return ans, nil
}

// ReadFile opens a dataset file and reads all its samples
func ReadFile(path string, opts Options) ([]*assay.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	defer f.Close()
	rd, err := NewReader(path, f, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	ans, err := ReadAll(rd, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	log.Info().Str("file", path).Int("samples", len(ans)).Msg("dataset loaded")
	return ans, nil
}
