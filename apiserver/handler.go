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
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/caodac/iqc/annotation"
	"github.com/caodac/iqc/archive"
	"github.com/caodac/iqc/clearance"
	"github.com/caodac/iqc/dataset"
	"github.com/caodac/iqc/estimator"
	"github.com/czcorpus/cnc-gokit/unireq"
	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, archive.ErrNotFound), errors.Is(err, dataset.ErrSampleNotFound),
		errors.Is(err, annotation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, archive.ErrInvalidName):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// requestEstimator creates an estimator with settings optionally
// overridden by URL arguments. In case of invalid arguments, an error
// response is written and false is returned.
func (api *apiServer) requestEstimator(ctx *gin.Context) (*estimator.Estimator, bool) {
	settings := api.settings
	var ok bool
	settings.MaxOutliers, ok = unireq.GetURLIntArgOrFail(ctx, "maxOutliers", settings.MaxOutliers)
	if !ok {
		return nil, false
	}
	settings.MaxSearchSize, ok = unireq.GetURLIntArgOrFail(ctx, "maxSearchSize", settings.MaxSearchSize)
	if !ok {
		return nil, false
	}
	if v := ctx.Query("replicates"); v != "" {
		settings.UseReplicates = v == "1" || v == "true"
	}
	if settings.MaxOutliers < 0 || settings.MaxSearchSize < estimator.MinPoints {
		uniresp.RespondWithErrorJSON(
			ctx, fmt.Errorf("invalid estimator settings %s", settings), http.StatusBadRequest)
		return nil, false
	}
	return estimator.New(settings), true
}

// requestCalculator creates a clearance calculator with unit, CYP
// concentration and transform optionally overridden by URL arguments.
func (api *apiServer) requestCalculator(ctx *gin.Context) (clearance.Calculator, bool) {
	calc := api.calc
	if v := ctx.Query("unit"); v != "" {
		calc.Unit = clearance.Unit(v)
	}
	if v := ctx.Query("conc"); v != "" {
		conc, err := strconv.ParseFloat(v, 64)
		if err != nil {
			uniresp.RespondWithErrorJSON(ctx, fmt.Errorf("invalid conc: %w", err), http.StatusBadRequest)
			return calc, false
		}
		calc.Conc = conc
	}
	if v := ctx.Query("transform"); v != "" {
		tr, err := clearance.TransformByName(v)
		if err != nil {
			uniresp.RespondWithErrorJSON(ctx, err, http.StatusBadRequest)
			return calc, false
		}
		calc.Transform = tr
	}
	if err := calc.Validate(); err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusBadRequest)
		return calc, false
	}
	return calc, true
}

type uploadResponse struct {
	Name        string   `json:"name"`
	Fingerprint string   `json:"fingerprint"`
	Size        int64    `json:"size"`
	NumSamples  int      `json:"numSamples"`
	Failed      []string `json:"failed"`
	Skipped     []string `json:"skipped"`
	ProcTimeSec float64  `json:"procTimeSec"`
}

func (api *apiServer) handleUploadDataset(ctx *gin.Context) {
	est, ok := api.requestEstimator(ctx)
	if !ok {
		return
	}
	calc, ok := api.requestCalculator(ctx)
	if !ok {
		return
	}
	ctx.Request.Body = http.MaxBytesReader(
		ctx.Writer, ctx.Request.Body, int64(api.conf.MaxUploadSizeMB)<<20)
	fh, err := ctx.FormFile("file")
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, fmt.Errorf("missing dataset file: %w", err), http.StatusBadRequest)
		return
	}
	src, err := fh.Open()
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusBadRequest)
		return
	}
	defer src.Close()
	report, _, err := api.datasets.Import(ctx, fh.Filename, src, est, calc)
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			// parsing errors are caused by the client
			status = http.StatusUnprocessableEntity
		}
		uniresp.RespondWithErrorJSON(ctx, err, status)
		return
	}
	api.metrics.datasetsImported.Inc()
	api.metrics.importDuration.Observe(report.Duration.Seconds())
	uniresp.WriteJSONResponse(
		ctx.Writer,
		uploadResponse{
			Name:        report.Entry.Name,
			Fingerprint: report.Entry.FingerprintHex(),
			Size:        report.Entry.Size,
			NumSamples:  report.NumSamples,
			Failed:      report.Failed,
			Skipped:     report.Skipped,
			ProcTimeSec: report.Duration.Seconds(),
		},
	)
}

type datasetEntry struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Modified    time.Time `json:"modified"`
}

func (api *apiServer) handleListDatasets(ctx *gin.Context) {
	entries, err := api.datasets.List(ctx)
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	ans := make([]datasetEntry, len(entries))
	for i, e := range entries {
		ans[i] = datasetEntry{Name: e.Name, Size: e.Size, Modified: e.Modified}
		if e.Fingerprint != 0 {
			ans[i].Fingerprint = e.FingerprintHex()
		}
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"datasets": ans})
}

func (api *apiServer) handleDownloadDataset(ctx *gin.Context) {
	src, entry, err := api.datasets.Open(ctx, ctx.Param("name"))
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, errorStatus(err))
		return
	}
	defer src.Close()
	ctx.Header("Content-Type", "application/octet-stream")
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entry.Name))
	if entry.Size > 0 {
		ctx.Header("Content-Length", strconv.FormatInt(entry.Size, 10))
	}
	ctx.Status(http.StatusOK)
	if _, err := io.Copy(ctx.Writer, src); err != nil {
		log.Error().Err(err).Str("dataset", entry.Name).Msg("failed to send dataset")
	}
}

func (api *apiServer) handleDeleteDataset(ctx *gin.Context) {
	if err := api.datasets.Delete(ctx, ctx.Param("name")); err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, errorStatus(err))
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"ok": true})
}

func (api *apiServer) handleListSamples(ctx *gin.Context) {
	est, ok := api.requestEstimator(ctx)
	if !ok {
		return
	}
	calc, ok := api.requestCalculator(ctx)
	if !ok {
		return
	}
	estimates, err := api.datasets.Estimates(ctx, ctx.Param("name"), est, calc)
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, errorStatus(err))
		return
	}
	ans := make([]sampleSummary, len(estimates))
	for i, se := range estimates {
		ans[i] = exportSummary(se)
	}
	uniresp.WriteJSONResponse(
		ctx.Writer,
		map[string]any{
			"dataset":  ctx.Param("name"),
			"settings": est.Settings,
			"unit":     calc.Unit,
			"samples":  ans,
		},
	)
}

func (api *apiServer) handleSampleResults(ctx *gin.Context) {
	est, ok := api.requestEstimator(ctx)
	if !ok {
		return
	}
	calc, ok := api.requestCalculator(ctx)
	if !ok {
		return
	}
	limit, ok := unireq.GetURLIntArgOrFail(ctx, "limit", 0)
	if !ok {
		return
	}
	dsName := ctx.Param("name")
	se, err := api.datasets.SampleEstimate(ctx, dsName, ctx.Param("sample"), est, calc)
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, errorStatus(err))
		return
	}
	curated, err := api.annotations.ListDataset(ctx, dsName)
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	states := make(map[string]annotation.State)
	for _, ann := range curated {
		states[ann.ResultID] = annotation.State{
			Annotated: true,
			Save:      ann.Save,
			Curator:   ann.Curator,
			Created:   ann.Created,
		}
	}
	results := se.Results
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	ans := make([]result, len(results))
	for i, r := range results {
		ans[i] = exportResult(r, true)
		if st, ok := states[ans[i].ID]; ok {
			ans[i].Annotation = &st
		}
	}
	resp := map[string]any{
		"dataset":  dsName,
		"sample":   se.Sample.Name,
		"settings": est.Settings,
		"unit":     calc.Unit,
		"measures": exportMeasures(se.Sample),
		"results":  ans,
	}
	if se.Err != nil {
		resp["error"] = se.Err.Error()
	}
	uniresp.WriteJSONResponse(ctx.Writer, resp)
}

type annotationRequest struct {
	ResultID string `json:"resultId"`
	Save     bool   `json:"save"`
	Curator  string `json:"curator"`
	Comments string `json:"comments"`
}

func (api *apiServer) handleAddAnnotations(ctx *gin.Context) {
	var req []annotationRequest
	if err := ctx.BindJSON(&req); err != nil {
		uniresp.RespondWithErrorJSON(ctx, fmt.Errorf("invalid request: %w", err), http.StatusBadRequest)
		return
	}
	for _, item := range req {
		if _, _, err := estimator.ParseID(item.ResultID); err != nil {
			uniresp.RespondWithErrorJSON(ctx, err, http.StatusBadRequest)
			return
		}
		if item.Curator == "" {
			uniresp.RespondWithErrorJSON(
				ctx, fmt.Errorf("missing curator for %s", item.ResultID), http.StatusBadRequest)
			return
		}
	}
	ans := make([]annotation.Annotation, 0, len(req))
	for _, item := range req {
		ann, err := api.annotations.Add(ctx, annotation.Annotation{
			Dataset:  ctx.Param("dataset"),
			ResultID: item.ResultID,
			Save:     item.Save,
			Curator:  item.Curator,
			Comments: item.Comments,
		})
		if err != nil {
			uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
			return
		}
		api.metrics.observeAnnotation(ann.Save)
		ans = append(ans, ann)
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"annotations": ans})
}

func (api *apiServer) handleListAnnotations(ctx *gin.Context) {
	anns, err := api.annotations.ListDataset(ctx, ctx.Param("dataset"))
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"annotations": anns})
}

func (api *apiServer) handleListAllAnnotations(ctx *gin.Context) {
	var anns []annotation.Annotation
	var err error
	if prefix := ctx.Query("prefix"); prefix != "" {
		anns, err = api.annotations.ListPrefix(ctx, prefix)

	} else {
		anns, err = api.annotations.ListAll(ctx)
	}
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"annotations": anns})
}

func (api *apiServer) handleDeleteAnnotation(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, fmt.Errorf("invalid annotation id: %w", err), http.StatusBadRequest)
		return
	}
	if err := api.annotations.Delete(ctx, id); err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, errorStatus(err))
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"ok": true})
}
