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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/caodac/iqc/assay"
	"github.com/rs/zerolog/log"
)

const (
	DefaultStandardName = "albendazole"
	blankSampleName     = "blank"

	// rows with fewer columns are not measure rows
	txtMinRowColumns = 6
)

// TxtReader reads tab separated instrument exports where each compound
// block starts with a "Compound N: name" line followed by a header
// (Name, Sample Text, Primary Flags, RT, Area, IS Area, Response)
// and measure rows.
//
// A "Blank" row following timed measures starts a new replicate
// block.
type TxtReader struct {
	src  *bufio.Scanner
	line int

	// StandardName is the name of a compound used as the internal
	// standard (compared case insensitively)
	StandardName string

	pushback *string
}

func (r *TxtReader) nextLine() (string, bool, error) {
	if r.pushback != nil {
		ans := *r.pushback
		r.pushback = nil
		return ans, true, nil
	}
	if !r.src.Scan() {
		if err := r.src.Err(); err != nil {
			return "", false, fmt.Errorf("failed to read line %d: %w", r.line+1, err)
		}
		return "", false, nil
	}
	r.line++
	return strings.TrimRight(r.src.Text(), "\r"), true, nil
}

func (r *TxtReader) unread(line string) {
	r.pushback = &line
}

// Next returns the next compound block as a sample
func (r *TxtReader) Next() (*assay.Sample, error) {
	for {
		line, ok, err := r.nextLine()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, io.EOF
		}
		if !strings.HasPrefix(line, "Compound") {
			continue
		}
		tokens := strings.Split(line, ":")
		if len(tokens) != 2 {
			log.Warn().Int("line", r.line).Str("value", line).Msg("ignoring unknown Compound line")
			continue
		}
		return r.readCompound(strings.TrimSpace(tokens[1]))
	}
}

func parseOptFloat(v, column string, line int) *float64 {
	ans, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn().Int("line", line).Str("column", column).Str("value", v).Msg("bogus number")
		return nil
	}
	return &ans
}

// parseSampleTime parses values like "T15" or "T15 rep 2"
func parseSampleTime(v string) (float64, error) {
	end := strings.IndexByte(v, ' ')
	if end < 0 {
		end = len(v)
	}
	return strconv.ParseFloat(v[1:end], 64)
}

func (r *TxtReader) readCompound(compound string) (*assay.Sample, error) {
	sample := assay.NewSample(compound)
	if strings.EqualFold(compound, blankSampleName) {
		sample.Blank = true

	} else if strings.EqualFold(compound, r.StandardName) {
		sample.Standard = true
	}
	var header []string
	var replicate int
	var timedInBlock bool
	for {
		line, ok, err := r.nextLine()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		tokens := strings.Split(line, "\t")
		if header == nil {
			if strings.HasPrefix(line, "Compound") {
				r.unread(line)
				break
			}
			if len(tokens) > 1 {
				header = make([]string, len(tokens))
				for i, h := range tokens {
					header[i] = strings.ToLower(strings.TrimSpace(h))
				}
			}
			continue
		}
		if len(tokens) < txtMinRowColumns {
			if strings.HasPrefix(line, "Compound") {
				r.unread(line)
			}
			break
		}
		m := &assay.Measure{TimeUnit: time.Minute}
		for i, tok := range tokens {
			if i >= len(header) {
				break
			}
			v := strings.TrimSpace(tok)
			if v == "" {
				continue
			}
			switch header[i] {
			case "name":
				m.Name = v
			case "sample text":
				if strings.HasPrefix(v, "Blank") {
					m.Blank = true

				} else if strings.HasPrefix(v, "T") {
					t, err := parseSampleTime(v)
					if err != nil {
						log.Warn().Int("line", r.line).Str("value", v).Msg("bogus time")

					} else {
						m.Time = &t
					}
				}
				m.Comments = v
			case "primary flags":
				m.Flag = v
			case "rt":
				m.RT = parseOptFloat(v, header[i], r.line)
			case "area":
				m.Area = parseOptFloat(v, header[i], r.line)
			case "is area":
				m.ISArea = parseOptFloat(v, header[i], r.line)
			case "response":
				m.Response = parseOptFloat(v, header[i], r.line)
			}
		}
		if m.Response == nil && m.Area != nil && m.ISArea != nil && *m.ISArea != 0 {
			m.Response = assay.Float(*m.Area / *m.ISArea)
		}
		if m.Blank && timedInBlock {
			replicate++
			timedInBlock = false
		}
		if m.Time != nil {
			timedInBlock = true
		}
		m.Replicate = replicate
		if err := sample.Add(m); err != nil {
			return nil, err
		}
	}
	return sample, nil
}

func NewTxtReader(src io.Reader) *TxtReader {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &TxtReader{
		src:          sc,
		StandardName: DefaultStandardName,
	}
}
