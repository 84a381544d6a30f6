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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/caodac/iqc/assay"
	"github.com/rs/zerolog/log"
)

const (
	// NotFound is the sentinel the instrument software writes
	// for a missing peak
	NotFound = "N/F"

	csvNumColumns = 13
)

// CSVTimes are the time points (in minutes) expected in CSV exports
var CSVTimes = []int{0, 5, 10, 15, 30, 60}

// CSVReader reads exports of the form
//
//	Sample,T0,T0-S,T5,T5-S,T10,T10-S,T15,T15-S,T30,T30-S,T60,T60-S
//	Compound-1,2.76E7,1.74E9,4.38E7,1.73E9,...
//
// where each time point is a pair of analyte and standard areas.
// A numeric suffix "-N" of the sample name denotes replicate N,
// rows of the same base name are merged into one sample.
type CSVReader struct {
	src    *csv.Reader
	header []string
	line   int

	samples []*assay.Sample
	curr    int
	loaded  bool
}

// SplitReplicate strips the replicate suffix from a sample name
// and returns the base name along with the 0-based replicate index.
func SplitReplicate(name string) (string, int) {
	pos := strings.LastIndexByte(name, '-')
	if pos <= 0 {
		return name, 0
	}
	v, err := strconv.Atoi(name[pos+1:])
	if err != nil {
		return name, 0
	}
	return name[:pos], v - 1
}

func parseTimeColumn(h string) (int, error) {
	h = strings.TrimSpace(h)
	if !strings.HasPrefix(h, "T") {
		return 0, fmt.Errorf("invalid time column %s", h)
	}
	return strconv.Atoi(h[1:])
}

func (r *CSVReader) readRow(index map[string]*assay.Sample) (bool, error) {
	row, err := r.src.Read()
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	r.line++
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		log.Warn().Err(err).Int("line", r.line).Msg("skipping malformed CSV row")
		return true, nil

	} else if err != nil {
		return false, fmt.Errorf("failed to read CSV row %d: %w", r.line, err)
	}
	if len(row) != len(r.header) {
		log.Warn().
			Int("line", r.line).
			Int("tokens", len(row)).
			Int("expected", len(r.header)).
			Msg("invalid number of tokens")
		return true, nil
	}
	if row[0] == "" {
		return true, nil
	}
	name, repl := SplitReplicate(row[0])
	sample, ok := index[name]
	if !ok {
		sample = assay.NewSample(name)
		index[name] = sample
		r.samples = append(r.samples, sample)
	}
	for i, j := 0, 1; i < len(CSVTimes); i, j = i+1, j+2 {
		if row[j] == NotFound || row[j] == "" || row[j+1] == "" {
			continue
		}
		t, err := parseTimeColumn(r.header[j])
		if err != nil || t != CSVTimes[i] {
			log.Warn().
				Int("line", r.line).
				Str("column", r.header[j]).
				Int("expected", CSVTimes[i]).
				Msg("time point mismatch")
			continue
		}
		area, err1 := strconv.ParseFloat(strings.TrimSpace(row[j]), 64)
		std, err2 := strconv.ParseFloat(strings.TrimSpace(row[j+1]), 64)
		if err1 != nil || err2 != nil {
			log.Warn().
				Int("line", r.line).
				Str("area", row[j]).
				Str("std", row[j+1]).
				Msg("bogus number")
			continue
		}
		m := &assay.Measure{
			Name:      row[0],
			Time:      assay.Float(float64(CSVTimes[i])),
			TimeUnit:  time.Minute,
			Area:      assay.Float(area),
			ISArea:    assay.Float(std),
			Replicate: repl,
		}
		if std != 0 {
			m.Response = assay.Float(area / std)
		}
		if err := sample.Add(m); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r *CSVReader) load() error {
	index := make(map[string]*assay.Sample)
	for {
		more, err := r.readRow(index)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	r.loaded = true
	return nil
}

// Next returns the next (merged) sample in order of the first
// appearance of its name.
func (r *CSVReader) Next() (*assay.Sample, error) {
	if !r.loaded {
		if err := r.load(); err != nil {
			return nil, err
		}
	}
	if r.curr >= len(r.samples) {
		return nil, io.EOF
	}
	r.curr++
	return r.samples[r.curr-1], nil
}

func NewCSVReader(src io.Reader) (*CSVReader, error) {
	rd := csv.NewReader(src)
	rd.FieldsPerRecord = -1
	rd.LazyQuotes = true
	header, err := rd.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty CSV input")

	} else if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) != csvNumColumns {
		return nil, fmt.Errorf("invalid CSV header: %s", strings.Join(header, ","))
	}
	return &CSVReader{
		src:    rd,
		header: header,
		line:   1,
	}, nil
}
