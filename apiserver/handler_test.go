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
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/caodac/iqc/annotation"
	"github.com/caodac/iqc/archive"
	"github.com/caodac/iqc/cnf"
	"github.com/caodac/iqc/dataset"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plate = `Sample,T0,T0-S,T5,T5-S,T10,T10-S,T15,T15-S,T30,T30-S,T60,T60-S
Verapamil-1,100,100,60,100,45,100,20,100,11,100,2,100
Verapamil-2,100,100,62,100,44,100,21,100,10,100,2,100
Stable-1,100,100,98,100,97,100,99,100,96,100,95,100
Sparse-1,100,100,N/F,100,N/F,100,N/F,100,N/F,100,20,100
`

func newTestEngine(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	conf := &cnf.Conf{Archive: archive.Conf{Driver: archive.DriverFS, Dir: t.TempDir()}}
	require.NoError(t, cnf.ValidateAndDefaults(conf))
	arch, err := archive.NewFSStore(conf.Archive.Dir)
	require.NoError(t, err)
	srv := &dataset.Service{Archive: arch, NumWorkers: 2}
	api, err := newAPIServer(conf, srv, annotation.NewMemoryStore())
	require.NoError(t, err)
	return api.engine()
}

func doRequest(engine *gin.Engine, method, url string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, url, body)

	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func upload(t *testing.T, engine *gin.Engine, name, content string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return doRequest(engine, http.MethodPost, "/datasets", &buf, mw.FormDataContentType())
}

type resultsResponse struct {
	Sample  string   `json:"sample"`
	Unit    string   `json:"unit"`
	Results []result `json:"results"`
}

func TestUploadAndBrowse(t *testing.T) {
	engine := newTestEngine(t)

	w := upload(t, engine, "plate.csv", plate)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var up uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &up))
	assert.Equal(t, "plate.csv", up.Name)
	assert.Equal(t, 3, up.NumSamples)
	assert.Equal(t, []string{"Sparse"}, up.Failed)
	assert.Equal(t, archive.FormatFingerprint(archive.Fingerprint([]byte(plate))), up.Fingerprint)

	w = doRequest(engine, http.MethodGet, "/datasets", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"plate.csv"`)

	w = doRequest(engine, http.MethodGet, "/datasets/plate.csv", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, plate, w.Body.String())

	w = doRequest(engine, http.MethodGet, "/datasets/plate.csv/samples", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var samples struct {
		Samples []sampleSummary `json:"samples"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &samples))
	require.Len(t, samples.Samples, 3)
	assert.Equal(t, "Verapamil", samples.Samples[0].Name)
	assert.Equal(t, []int{0, 1}, samples.Samples[0].Replicates)
	require.NotNil(t, samples.Samples[0].Best)
	assert.Equal(t, 1, samples.Samples[0].Best.Rank)
	assert.Nil(t, samples.Samples[2].Best)
	assert.NotEmpty(t, samples.Samples[2].Error)

	w = doRequest(engine, http.MethodGet, "/datasets/plate.csv/samples/Verapamil/results?limit=3", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var res1 resultsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res1))
	require.Len(t, res1.Results, 3)
	assert.Equal(t, 1, res1.Results[0].Rank)
	require.NotNil(t, res1.Results[0].CLint)
	require.NotNil(t, res1.Results[0].Score)
	assert.Len(t, res1.Results[0].Points, 6)

	w = doRequest(engine, http.MethodGet, "/datasets/plate.csv/samples/Verapamil/results?limit=3&unit=mL/nmol/hr", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var res2 resultsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res2))
	assert.Equal(t, "mL/nmol/hr", res2.Unit)
	assert.Equal(t, res1.Results[0].ID, res2.Results[0].ID)
	assert.Equal(t, *res1.Results[0].Score, *res2.Results[0].Score)
	assert.InDelta(t, *res1.Results[0].CLint*60000, *res2.Results[0].CLint, 1e-6)

	w = doRequest(engine, http.MethodGet, "/datasets/plate.csv/samples/Unknown/results", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doRequest(engine, http.MethodGet, "/datasets/missing.csv/samples", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doRequest(engine, http.MethodGet, "/datasets/plate.csv/samples?maxOutliers=-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doRequest(engine, http.MethodGet, "/datasets/plate.csv/samples?unit=L", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(engine, http.MethodDelete, "/datasets/plate.csv", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = doRequest(engine, http.MethodGet, "/datasets/plate.csv", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadInvalid(t *testing.T) {
	engine := newTestEngine(t)
	w := upload(t, engine, "bad.csv", "Sample,T0\n")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = doRequest(engine, http.MethodPost, "/datasets", bytes.NewBufferString("x"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnnotations(t *testing.T) {
	engine := newTestEngine(t)
	require.Equal(t, http.StatusOK, upload(t, engine, "plate.csv", plate).Code)

	w := doRequest(engine, http.MethodGet, "/datasets/plate.csv/samples/Verapamil/results?limit=2", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var res resultsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Results, 2)
	assert.Nil(t, res.Results[0].Annotation)
	approvedID := res.Results[1].ID

	body := `[{"resultId": "` + approvedID + `", "save": true, "curator": "jdoe"}]`
	w = doRequest(engine, http.MethodPost, "/annotations/plate.csv", bytes.NewBufferString(body), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doRequest(engine, http.MethodGet, "/datasets/plate.csv/samples/Verapamil/results?limit=2", nil, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Nil(t, res.Results[0].Annotation)
	require.NotNil(t, res.Results[1].Annotation)
	assert.True(t, res.Results[1].Annotation.Save)
	assert.Equal(t, "jdoe", res.Results[1].Annotation.Curator)

	w = doRequest(engine, http.MethodGet, "/annotations/plate.csv", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Annotations []annotation.Annotation `json:"annotations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Annotations, 1)
	assert.Equal(t, approvedID, listed.Annotations[0].ResultID)

	w = doRequest(engine, http.MethodGet, "/annotations?prefix=pla", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), approvedID)

	w = doRequest(engine, http.MethodPost, "/annotations/plate.csv",
		bytes.NewBufferString(`[{"resultId": "nobrackets", "save": true, "curator": "jdoe"}]`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doRequest(engine, http.MethodPost, "/annotations/plate.csv",
		bytes.NewBufferString(`[{"resultId": "A[0,1,2]", "save": true}]`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(engine, http.MethodDelete, "/annotations/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doRequest(engine, http.MethodDelete, "/annotations/999", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doRequest(engine, http.MethodDelete, "/annotations/1", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(engine, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "iqc_datasets_imported_total 1"))
	assert.Contains(t, w.Body.String(), `iqc_annotations_stored_total{decision="approved"} 1`)
	// samples are re-estimated on each request as there is no cache
	assert.Contains(t, w.Body.String(), `iqc_samples_estimated_total{outcome="insufficient_data"}`)
	assert.Contains(t, w.Body.String(), `iqc_samples_estimated_total{outcome="ok"}`)
}

func TestReviewPage(t *testing.T) {
	engine := newTestEngine(t)
	w := upload(t, engine, "plate<1>.csv", plate)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doRequest(engine, http.MethodGet, "/review", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), `<option value="plate&lt;1&gt;.csv">`)
	assert.Contains(t, w.Body.String(), "29.03")
}

func TestReviewURLPrefix(t *testing.T) {
	api := &apiServer{conf: &cnf.Conf{ReviewPageURLPathPrefix: "iqc/"}}
	assert.Equal(t, "/iqc", api.reviewURLPrefix())
	api.conf.ReviewPageURLPathPrefix = ""
	assert.Equal(t, "", api.reviewURLPrefix())
}
