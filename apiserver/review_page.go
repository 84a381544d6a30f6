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
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
)

func (api *apiServer) reviewURLPrefix() string {
	urlPrefix := api.conf.ReviewPageURLPathPrefix
	if urlPrefix != "" && !strings.HasPrefix(urlPrefix, "/") {
		urlPrefix = "/" + urlPrefix
	}
	return strings.TrimSuffix(urlPrefix, "/")
}

// handleReviewPage serves a simple curator page listing samples
// of a dataset along with their ranked fits. Fits can be approved
// or rejected directly from the page.
func (api *apiServer) handleReviewPage(ctx *gin.Context) {
	entries, err := api.datasets.List(ctx)
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	var datasetOptions strings.Builder
	for _, entry := range entries {
		name := html.EscapeString(entry.Name)
		datasetOptions.WriteString(
			fmt.Sprintf(
				"<option value=\"%s\">%s (%s)</option>\n",
				name, name, entry.Modified.Format("2006-01-02 15:04"),
			),
		)
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>IQC - fit review</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
            background: #f2f4f8;
            margin: 0;
            padding: 20px;
        }
        .container {
            background: white;
            border-radius: 8px;
            box-shadow: 0 4px 20px rgba(0, 0, 0, 0.15);
            max-width: 1100px;
            margin: 0 auto;
            padding: 30px;
        }
        h1 {
            color: #333;
            font-size: 24px;
        }
        .toolbar {
            display: flex;
            gap: 12px;
            align-items: flex-end;
            margin-bottom: 20px;
        }
        label {
            display: block;
            color: #555;
            font-size: 13px;
            font-weight: 600;
            margin-bottom: 4px;
        }
        select, input[type="text"] {
            padding: 8px;
            border: 1px solid #ccc;
            border-radius: 4px;
        }
        button {
            padding: 6px 14px;
            border: none;
            border-radius: 4px;
            cursor: pointer;
            color: white;
            background: #3f51b5;
        }
        button.approve {
            background: #2e7d32;
        }
        button.reject {
            background: #c62828;
        }
        table {
            border-collapse: collapse;
            width: 100%%;
            font-size: 13px;
        }
        th, td {
            border-bottom: 1px solid #e0e0e0;
            padding: 6px 8px;
            text-align: left;
        }
        tr.sample {
            cursor: pointer;
        }
        tr.sample:hover {
            background: #f5f7ff;
        }
        .saved {
            color: #2e7d32;
            font-weight: 600;
        }
        .rejected {
            color: #c62828;
        }
        .error {
            color: #c62828;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>Metabolic stability fit review</h1>
        <div class="toolbar">
            <div>
                <label for="dataset">Dataset:</label>
                <select id="dataset">%s</select>
            </div>
            <div>
                <label for="unit">CLint unit:</label>
                <select id="unit">
                    <option value="mL/pmol/min">mL/pmol/min</option>
                    <option value="mL/nmol/hr">mL/nmol/hr</option>
                </select>
            </div>
            <div>
                <label for="conc">CYP conc. (pmol/mL):</label>
                <input type="text" id="conc" value="%g" size="8">
            </div>
            <div>
                <label for="curator">Curator:</label>
                <input type="text" id="curator" size="12">
            </div>
            <button id="loadBtn">Load samples</button>
        </div>
        <div id="message"></div>
        <table id="samples"></table>
        <h2 id="resultsTitle"></h2>
        <table id="results"></table>
    </div>

    <script>
        const urlPrefix = %q;
        const message = document.getElementById('message');

        function fmt(v) {
            return v === null || v === undefined ? '-' : Number(v).toPrecision(4);
        }

        function query() {
            const unit = document.getElementById('unit').value;
            const conc = document.getElementById('conc').value;
            return '?unit=' + encodeURIComponent(unit) + '&conc=' + encodeURIComponent(conc);
        }

        function cell(row, text, cls) {
            const td = document.createElement('td');
            td.textContent = text;
            if (cls) {
                td.className = cls;
            }
            row.appendChild(td);
            return td;
        }

        function header(table, names) {
            table.innerHTML = '';
            const row = table.insertRow();
            names.forEach(name => {
                const th = document.createElement('th');
                th.textContent = name;
                row.appendChild(th);
            });
        }

        async function getJSON(url, opts) {
            const response = await fetch(urlPrefix + url, opts);
            const data = await response.json();
            if (!response.ok) {
                throw new Error(data.error ? data.error.message || JSON.stringify(data.error) : response.statusText);
            }
            return data;
        }

        async function loadSamples() {
            const dataset = document.getElementById('dataset').value;
            message.textContent = '';
            document.getElementById('results').innerHTML = '';
            document.getElementById('resultsTitle').textContent = '';
            try {
                const data = await getJSON('/datasets/' + encodeURIComponent(dataset) + '/samples' + query());
                const table = document.getElementById('samples');
                header(table, ['sample', 'measures', 'fits', 'best fit', 'score', 'CLint (' + data.unit + ')', 't1/2 (min)']);
                data.samples.forEach(smpl => {
                    const row = table.insertRow();
                    row.className = 'sample';
                    cell(row, smpl.name);
                    cell(row, smpl.numMeasures);
                    cell(row, smpl.numResults);
                    if (smpl.best) {
                        cell(row, smpl.best.config);
                        cell(row, fmt(smpl.best.score));
                        cell(row, fmt(smpl.best.clint));
                        cell(row, fmt(smpl.best.halfLife));

                    } else {
                        const td = cell(row, smpl.error || 'no fit', 'error');
                        td.colSpan = 4;
                    }
                    row.addEventListener('click', () => loadResults(dataset, smpl.name));
                });
            } catch (error) {
                message.className = 'error';
                message.textContent = 'Failed to load samples: ' + error.message;
            }
        }

        async function loadResults(dataset, sample) {
            try {
                const data = await getJSON(
                    '/datasets/' + encodeURIComponent(dataset) + '/samples/' +
                    encodeURIComponent(sample) + '/results' + query());
                document.getElementById('resultsTitle').textContent = sample;
                const table = document.getElementById('results');
                header(table, ['rank', 'config', 'score', 'r2', 'slope', 'CLint', 't1/2', 'state', '']);
                data.results.forEach(res => {
                    const row = table.insertRow();
                    cell(row, res.rank);
                    cell(row, res.config);
                    cell(row, fmt(res.score));
                    cell(row, fmt(res.r2));
                    cell(row, fmt(res.slope));
                    cell(row, fmt(res.clint));
                    cell(row, fmt(res.halfLife));
                    if (res.annotation) {
                        cell(row, (res.annotation.save ? 'saved' : 'rejected') + ' (' + res.annotation.curator + ')',
                            res.annotation.save ? 'saved' : 'rejected');

                    } else {
                        cell(row, '');
                    }
                    const actions = cell(row, '');
                    [['approve', true], ['reject', false]].forEach(([label, save]) => {
                        const btn = document.createElement('button');
                        btn.textContent = label;
                        btn.className = label;
                        btn.addEventListener('click', () => annotate(dataset, sample, res.id, save));
                        actions.appendChild(btn);
                    });
                });
            } catch (error) {
                message.className = 'error';
                message.textContent = 'Failed to load results: ' + error.message;
            }
        }

        async function annotate(dataset, sample, resultId, save) {
            const curator = document.getElementById('curator').value.trim();
            if (!curator) {
                alert('Please fill in the curator name');
                return;
            }
            try {
                await getJSON('/annotations/' + encodeURIComponent(dataset), {
                    method: 'POST',
                    headers: {'Content-Type': 'application/json'},
                    body: JSON.stringify([{resultId: resultId, save: save, curator: curator}])
                });
                loadResults(dataset, sample);
            } catch (error) {
                message.className = 'error';
                message.textContent = 'Failed to store annotation: ' + error.message;
            }
        }

        document.getElementById('loadBtn').addEventListener('click', loadSamples);
    </script>
</body>
</html>`, datasetOptions.String(), api.calc.Conc, api.reviewURLPrefix())

	ctx.Header("Content-Type", "text/html; charset=utf-8")
	ctx.String(http.StatusOK, page)
}
