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

package datastore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caodac/iqc/assay"
	"github.com/caodac/iqc/estimator"
	"github.com/caodac/iqc/regression"
	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// stored times are always in minutes
const timeUnit = time.Minute

const (
	DatasetPrefix  byte = 0x01
	EstimatePrefix byte = 0x02
)

var zstdDecoderPool = sync.Pool{
	New: func() any {
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
		}
		return decoder
	},
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
		}
		return encoder
	},
}

func compress(data []byte) []byte {
	encoder := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(encoder)
	return encoder.EncodeAll(data, nil)
}

func decompress(data []byte) ([]byte, error) {
	decoder := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(decoder)
	ans, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress value: %w", err)
	}
	return ans, nil
}

func encodeValue(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return compress(data), nil
}

func decodeValue(data []byte, v any) error {
	raw, err := decompress(data)
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode value: %w", err)
	}
	return nil
}

func encodeDatasetKey(name string) []byte {
	key := make([]byte, 1+len(name))
	key[0] = DatasetPrefix
	copy(key[1:], name)
	return key
}

// encodeEstimatePrefix creates a key prefix shared by all the cached
// estimates of a dataset
func encodeEstimatePrefix(dataset string) []byte {
	key := make([]byte, 9)
	key[0] = EstimatePrefix
	binary.BigEndian.PutUint64(key[1:], xxhash.Sum64String(dataset))
	return key
}

func encodeEstimateKey(dataset string, fingerprint uint64, settings estimator.Settings, sample string) []byte {
	key := make([]byte, 25+len(sample))
	copy(key, encodeEstimatePrefix(dataset))
	binary.BigEndian.PutUint64(key[9:], fingerprint)
	binary.BigEndian.PutUint64(key[17:], xxhash.Sum64String(settings.String()))
	copy(key[25:], sample)
	return key
}

type storedMeasure struct {
	Name      string   `msgpack:"name"`
	Comments  string   `msgpack:"comments"`
	Flag      string   `msgpack:"flag"`
	Time      *float64 `msgpack:"time"`
	RT        *float64 `msgpack:"rt"`
	Area      *float64 `msgpack:"area"`
	ISArea    *float64 `msgpack:"isArea"`
	Response  *float64 `msgpack:"response"`
	Blank     bool     `msgpack:"blank"`
	Replicate int      `msgpack:"replicate"`
}

type storedResult struct {
	Config []int                `msgpack:"config"`
	Model  regression.LinearFit `msgpack:"model"`
	Score  float64              `msgpack:"score"`
	Rank   int                  `msgpack:"rank"`
}

type storedSample struct {
	Name     string          `msgpack:"name"`
	Comments string          `msgpack:"comments"`
	Standard bool            `msgpack:"standard"`
	Blank    bool            `msgpack:"blank"`
	Measures []storedMeasure `msgpack:"measures"`
	Results  []storedResult  `msgpack:"results"`
	Err      string          `msgpack:"err"`

	InsufficientData bool `msgpack:"insufficientData"`
}

// restoredError represents a stored estimation failure
type restoredError struct {
	msg          string
	insufficient bool
}

func (err restoredError) Error() string {
	return err.msg
}

func (err restoredError) Unwrap() error {
	if err.insufficient {
		return estimator.ErrInsufficientData
	}
	return nil
}

func exportSample(se estimator.SampleEstimate) storedSample {
	ans := storedSample{
		Name:     se.Sample.Name,
		Comments: se.Sample.Comments,
		Standard: se.Sample.Standard,
		Blank:    se.Sample.Blank,
		Measures: make([]storedMeasure, se.Sample.Size()),
		Results:  make([]storedResult, len(se.Results)),
	}
	for i, m := range se.Sample.Measures() {
		ans.Measures[i] = storedMeasure{
			Name:      m.Name,
			Comments:  m.Comments,
			Flag:      m.Flag,
			RT:        m.RT,
			Area:      m.Area,
			ISArea:    m.ISArea,
			Response:  m.Response,
			Blank:     m.Blank,
			Replicate: m.Replicate,
		}
		if t, ok := m.Minutes(); ok {
			ans.Measures[i].Time = &t
		}
	}
	for i, r := range se.Results {
		ans.Results[i] = storedResult{
			Config: r.Config,
			Score:  r.Score,
			Rank:   r.Rank,
		}
		if r.Model != nil {
			ans.Results[i].Model = *r.Model
		}
	}
	if se.Err != nil {
		ans.Err = se.Err.Error()
		ans.InsufficientData = errors.Is(se.Err, estimator.ErrInsufficientData)
	}
	return ans
}

func (ss storedSample) importSample(est *estimator.Estimator) (estimator.SampleEstimate, error) {
	sample := assay.NewSample(ss.Name)
	sample.Comments = ss.Comments
	sample.Standard = ss.Standard
	sample.Blank = ss.Blank
	for _, m := range ss.Measures {
		sample.Add(&assay.Measure{
			Name:      m.Name,
			Comments:  m.Comments,
			Flag:      m.Flag,
			Time:      m.Time,
			TimeUnit:  timeUnit,
			RT:        m.RT,
			Area:      m.Area,
			ISArea:    m.ISArea,
			Response:  m.Response,
			Blank:     m.Blank,
			Replicate: m.Replicate,
		})
	}
	sample.Freeze()
	ans := estimator.SampleEstimate{Sample: sample}
	if ss.Err != "" {
		ans.Err = restoredError{msg: ss.Err, insufficient: ss.InsufficientData}
		return ans, nil
	}
	if len(ss.Results) == 0 {
		return ans, nil
	}
	measures, err := est.SearchSpace(sample)
	if err != nil {
		return ans, fmt.Errorf("failed to restore results of %s: %w", ss.Name, err)
	}
	ans.Results = make([]*estimator.Result, len(ss.Results))
	for i, sr := range ss.Results {
		model := sr.Model
		res, err := estimator.RestoreResult(sample, measures, sr.Config, &model, sr.Score, sr.Rank)
		if err != nil {
			return ans, fmt.Errorf("failed to restore results of %s: %w", ss.Name, err)
		}
		ans.Results[i] = res
	}
	return ans, nil
}
