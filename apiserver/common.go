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

package apiserver

import (
	"context"
	"math"

	"github.com/caodac/iqc/annotation"
	"github.com/caodac/iqc/assay"
	"github.com/caodac/iqc/cnf"
	"github.com/caodac/iqc/estimator"
	"github.com/gin-gonic/gin"
)

type service interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

// ------

// nullable converts undefined values (NaN, Inf) to JSON null
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

type point struct {
	Time      *float64 `json:"time"`
	Response  *float64 `json:"response"`
	Replicate int      `json:"replicate"`
	Included  bool     `json:"included"`
}

type result struct {
	ID              string            `json:"id"`
	Rank            int               `json:"rank"`
	Config          string            `json:"config"`
	Score           *float64          `json:"score"`
	N               int               `json:"n"`
	Slope           *float64          `json:"slope"`
	Intercept       *float64          `json:"intercept"`
	MSE             *float64          `json:"mse"`
	R               *float64          `json:"r"`
	R2              *float64          `json:"r2"`
	SlopeStdErr     *float64          `json:"slopeStdErr"`
	InterceptStdErr *float64          `json:"interceptStdErr"`
	CLint           *float64          `json:"clint"`
	HalfLife        *float64          `json:"halfLife"`
	Points          []point           `json:"points,omitempty"`
	Annotation      *annotation.State `json:"annotation,omitempty"`
}

func exportResult(r *estimator.Result, withPoints bool) result {
	ans := result{
		ID:       r.ID(),
		Rank:     r.Rank,
		Config:   r.ConfigLabel(),
		Score:    nullable(r.Score),
		CLint:    nullable(r.CLint),
		HalfLife: nullable(r.HalfLife),
	}
	if r.Model != nil {
		ans.N = r.Model.N
		ans.Slope = nullable(r.Model.Slope)
		ans.Intercept = nullable(r.Model.Intercept)
		ans.MSE = nullable(r.Model.MSE)
		ans.R = nullable(r.Model.R)
		ans.R2 = nullable(r.Model.R2())
		ans.SlopeStdErr = nullable(r.Model.SlopeStdErr)
		ans.InterceptStdErr = nullable(r.Model.InterceptStdErr)
	}
	if withPoints {
		ans.Points = make([]point, len(r.Measures))
		for i, m := range r.Measures {
			ans.Points[i] = point{
				Response:  m.Response,
				Replicate: m.Replicate,
				Included:  r.Config[i] > 0,
			}
			if t, ok := m.Minutes(); ok {
				ans.Points[i].Time = &t
			}
		}
	}
	return ans
}

type sampleSummary struct {
	Name        string  `json:"name"`
	NumMeasures int     `json:"numMeasures"`
	Replicates  []int   `json:"replicates"`
	Standard    bool    `json:"standard"`
	Blank       bool    `json:"blank"`
	NumResults  int     `json:"numResults"`
	Best        *result `json:"best"`
	Error       string  `json:"error,omitempty"`
}

func exportSummary(se estimator.SampleEstimate) sampleSummary {
	ans := sampleSummary{
		Name:        se.Sample.Name,
		NumMeasures: se.Sample.Size(),
		Replicates:  se.Sample.Replicates(),
		Standard:    se.Sample.Standard,
		Blank:       se.Sample.Blank,
		NumResults:  len(se.Results),
	}
	if best := se.Best(); best != nil {
		b := exportResult(best, false)
		ans.Best = &b
	}
	if se.Err != nil {
		ans.Error = se.Err.Error()
	}
	return ans
}

type measure struct {
	Name      string   `json:"name"`
	Time      *float64 `json:"time"`
	Response  *float64 `json:"response"`
	Area      *float64 `json:"area"`
	ISArea    *float64 `json:"isArea"`
	RT        *float64 `json:"rt"`
	Flag      string   `json:"flag,omitempty"`
	Comments  string   `json:"comments,omitempty"`
	Blank     bool     `json:"blank"`
	Replicate int      `json:"replicate"`
}

func exportMeasures(sample *assay.Sample) []measure {
	ans := make([]measure, sample.Size())
	for i, m := range sample.Measures() {
		ans[i] = measure{
			Name:      m.Name,
			Response:  m.Response,
			Area:      m.Area,
			ISArea:    m.ISArea,
			RT:        m.RT,
			Flag:      m.Flag,
			Comments:  m.Comments,
			Blank:     m.Blank,
			Replicate: m.Replicate,
		}
		if t, ok := m.Minutes(); ok {
			ans[i].Time = &t
		}
	}
	return ans
}

// -----

func corsMiddleware(conf *cnf.Conf) gin.HandlerFunc {
	return func(ctx *gin.Context) {

		var allowedOrigin string
		currOrigin := ctx.Request.Header.Get("Origin")
		for _, origin := range conf.CorsAllowedOrigins {
			if currOrigin == origin || origin == "*" {
				allowedOrigin = origin
				break
			}
		}
		if allowedOrigin != "" {
			ctx.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			ctx.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			ctx.Writer.Header().Set(
				"Access-Control-Allow-Headers",
				"Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With",
			)
			ctx.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		}

		if ctx.Request.Method == "OPTIONS" {
			ctx.AbortWithStatus(204)
			return
		}
		ctx.Next()
	}
}
