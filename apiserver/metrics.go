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
	"net/http"

	"github.com/caodac/iqc/estimator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "iqc"

type metrics struct {
	registry          *prometheus.Registry
	datasetsImported  prometheus.Counter
	samplesEstimated  *prometheus.CounterVec
	importDuration    prometheus.Histogram
	annotationsStored *prometheus.CounterVec
	resultsPerSample  prometheus.Histogram
}

func (m *metrics) observeSample(se estimator.SampleEstimate) {
	switch {
	case se.Err == nil:
		m.samplesEstimated.WithLabelValues("ok").Inc()
		m.resultsPerSample.Observe(float64(len(se.Results)))
	case errors.Is(se.Err, estimator.ErrInsufficientData):
		m.samplesEstimated.WithLabelValues("insufficient_data").Inc()
	default:
		m.samplesEstimated.WithLabelValues("error").Inc()
	}
}

func (m *metrics) observeAnnotation(save bool) {
	if save {
		m.annotationsStored.WithLabelValues("approved").Inc()

	} else {
		m.annotationsStored.WithLabelValues("rejected").Inc()
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func newMetrics() *metrics {
	ans := &metrics{
		registry: prometheus.NewRegistry(),
		datasetsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "datasets_imported_total",
			Help:      "Number of imported datasets",
		}),
		samplesEstimated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "samples_estimated_total",
				Help:      "Number of estimated samples by outcome",
			},
			[]string{"outcome"},
		),
		importDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "import_duration_seconds",
			Help:      "Time spent on parsing and estimating a dataset",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		annotationsStored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "annotations_stored_total",
				Help:      "Number of stored curator annotations by decision",
			},
			[]string{"decision"},
		),
		resultsPerSample: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "results_per_sample",
			Help:      "Number of admissible configurations per estimated sample",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	ans.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ans.datasetsImported,
		ans.samplesEstimated,
		ans.importDuration,
		ans.annotationsStored,
		ans.resultsPerSample,
	)
	return ans
}
