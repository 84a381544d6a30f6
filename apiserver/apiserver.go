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
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/caodac/iqc/annotation"
	"github.com/caodac/iqc/archive"
	"github.com/caodac/iqc/clearance"
	"github.com/caodac/iqc/cnf"
	"github.com/caodac/iqc/dataimport"
	"github.com/caodac/iqc/dataset"
	"github.com/caodac/iqc/datastore"
	"github.com/caodac/iqc/estimator"
	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// -----

type apiServer struct {
	conf        *cnf.Conf
	server      *http.Server
	datasets    *dataset.Service
	annotations annotation.Store
	settings    estimator.Settings
	calc        clearance.Calculator
	metrics     *metrics
}

func (api *apiServer) engine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logging.GinMiddleware())
	engine.Use(uniresp.AlwaysJSONContentType())
	engine.Use(corsMiddleware(api.conf))
	engine.NoMethod(uniresp.NoMethodHandler)
	engine.NoRoute(uniresp.NotFoundHandler)

	engine.POST("/datasets", api.handleUploadDataset)
	engine.GET("/datasets", api.handleListDatasets)
	engine.GET("/datasets/:name", api.handleDownloadDataset)
	engine.DELETE("/datasets/:name", api.handleDeleteDataset)
	engine.GET("/datasets/:name/samples", api.handleListSamples)
	engine.GET("/datasets/:name/samples/:sample/results", api.handleSampleResults)

	engine.POST("/annotations/:dataset", api.handleAddAnnotations)
	engine.GET("/annotations/:dataset", api.handleListAnnotations)
	engine.GET("/annotations", api.handleListAllAnnotations)
	engine.DELETE("/annotations/:id", api.handleDeleteAnnotation)

	engine.GET("/review", api.handleReviewPage)
	engine.GET("/metrics", gin.WrapH(api.metrics.handler()))
	return engine
}

func (api *apiServer) Start(ctx context.Context) {
	if !api.conf.Logging.Level.IsDebugMode() {
		gin.SetMode(gin.ReleaseMode)
	}
	log.Info().Msgf("starting to listen at %s:%d", api.conf.ListenAddress, api.conf.ListenPort)
	api.server = &http.Server{
		Handler:      api.engine(),
		Addr:         fmt.Sprintf("%s:%d", api.conf.ListenAddress, api.conf.ListenPort),
		WriteTimeout: api.conf.ServerWriteTimeout(),
		ReadTimeout:  api.conf.ServerReadTimeout(),
	}
	go func() {
		if err := api.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()
}

func (api *apiServer) Stop(ctx context.Context) error {
	log.Warn().Msg("shutting down IQC HTTP API server")
	return api.server.Shutdown(ctx)
}

func newAPIServer(
	conf *cnf.Conf,
	datasets *dataset.Service,
	annotations annotation.Store,
) (*apiServer, error) {
	calc, err := conf.Clearance.Calculator()
	if err != nil {
		return nil, err
	}
	ans := &apiServer{
		conf:        conf,
		datasets:    datasets,
		annotations: annotations,
		settings:    conf.Estimator.Settings(),
		calc:        calc,
		metrics:     newMetrics(),
	}
	datasets.OnSampleDone = ans.metrics.observeSample
	return ans, nil
}

// -------------------------

// OpenDatasets creates a dataset service based on the configuration.
// The returned cleanup function closes all the opened resources.
func OpenDatasets(ctx context.Context, conf *cnf.Conf) (*dataset.Service, func(), error) {
	arch, err := archive.Open(ctx, conf.Archive)
	if err != nil {
		return nil, func() {}, err
	}
	srv := &dataset.Service{
		Archive:    arch,
		NumWorkers: conf.Estimator.NumWorkers,
		ReadOptions: dataimport.Options{
			T0Correction: conf.T0Correction,
			StandardName: conf.StandardName,
		},
	}
	if conf.DatastorePath == "" {
		return srv, func() {}, nil
	}
	db, err := datastore.OpenDB(conf.DatastorePath)
	if err != nil {
		return nil, func() {}, err
	}
	srv.Cache = db
	return srv, func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close estimates datastore")
		}
	}, nil
}

func Run(
	ctx context.Context,
	conf *cnf.Conf,
) {
	datasets, closeDatasets, err := OpenDatasets(ctx, conf)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open datasets")
		return
	}
	defer closeDatasets()

	annotations, err := annotation.Open(ctx, conf.Annotations)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open annotation store")
		return
	}
	defer annotations.Close()

	server, err := newAPIServer(conf, datasets, annotations)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create API server")
		return
	}

	services := []service{server}
	for _, m := range services {
		m.Start(ctx)
	}
	<-ctx.Done()
	log.Warn().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, s := range services {
		wg.Add(1)
		go func(srv service) {
			defer wg.Done()
			if err := srv.Stop(shutdownCtx); err != nil {
				log.Error().Err(err).Type("service", srv).Msg("Error shutting down service")
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("Graceful shutdown completed")
	case <-shutdownCtx.Done():
		log.Warn().Msg("Shutdown timed out")
	}
}
