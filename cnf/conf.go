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

package cnf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caodac/iqc/annotation"
	"github.com/caodac/iqc/archive"
	"github.com/caodac/iqc/clearance"
	"github.com/caodac/iqc/estimator"
	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/rs/zerolog/log"
)

const (
	dfltServerReadTimeoutSecs  = 10
	dfltServerWriteTimeoutSecs = 30
	dfltListenAddress          = "127.0.0.1"
	dfltListenPort             = 8080
	dfltMaxUploadSizeMB        = 32
	dfltArchiveDirName         = "datasets"
)

type EstimatorConf struct {
	MaxOutliers   *int `json:"maxOutliers"`
	MaxSearchSize int  `json:"maxSearchSize"`
	UseReplicates bool `json:"useReplicates"`
	NumWorkers    int  `json:"numWorkers"`
}

// Settings returns estimator settings. The configuration must be
// already validated.
func (ec EstimatorConf) Settings() estimator.Settings {
	ans := estimator.DefaultSettings()
	if ec.MaxOutliers != nil {
		ans.MaxOutliers = *ec.MaxOutliers
	}
	if ec.MaxSearchSize > 0 {
		ans.MaxSearchSize = ec.MaxSearchSize
	}
	ans.UseReplicates = ec.UseReplicates
	return ans
}

type ClearanceConf struct {
	CYPConc   float64        `json:"cypConc"`
	Unit      clearance.Unit `json:"unit"`
	Transform string         `json:"transform"`
}

func (cc ClearanceConf) Calculator() (clearance.Calculator, error) {
	tr, err := clearance.TransformByName(cc.Transform)
	if err != nil {
		return clearance.Calculator{}, err
	}
	ans := clearance.NewCalculator(cc.Unit, cc.CYPConc, tr)
	return ans, ans.Validate()
}

type Conf struct {
	srcPath                 string
	Logging                 logging.LoggingConf `json:"logging"`
	ListenAddress           string              `json:"listenAddress"`
	ListenPort              int                 `json:"listenPort"`
	ServerReadTimeoutSecs   int                 `json:"serverReadTimeoutSecs"`
	ServerWriteTimeoutSecs  int                 `json:"serverWriteTimeoutSecs"`
	ReviewPageURLPathPrefix string              `json:"reviewPageURLPathPrefix"`
	CorsAllowedOrigins      []string            `json:"corsAllowedOrigins"`
	MaxUploadSizeMB         int                 `json:"maxUploadSizeMB"`

	Estimator   EstimatorConf   `json:"estimator"`
	Clearance   ClearanceConf   `json:"clearance"`
	Annotations annotation.Conf `json:"annotations"`
	Archive     archive.Conf    `json:"archive"`

	// DatastorePath is a Badger directory for caching computed
	// estimates. Empty value disables caching.
	DatastorePath string `json:"datastorePath"`

	// T0Correction is an optional factor applied to responses
	// of T0 measures during import (0 = no correction)
	T0Correction float64 `json:"t0Correction"`

	// StandardName is the internal standard compound name
	// in instrument text exports
	StandardName string `json:"standardName"`
}

func (conf *Conf) SrcPath() string {
	return conf.srcPath
}

func (conf *Conf) ServerReadTimeout() time.Duration {
	return time.Duration(conf.ServerReadTimeoutSecs) * time.Second
}

func (conf *Conf) ServerWriteTimeout() time.Duration {
	return time.Duration(conf.ServerWriteTimeoutSecs) * time.Second
}

func LoadConfig(path string) *Conf {
	if path == "" {
		log.Fatal().Msg("Cannot load config - path not specified")
	}
	rawData, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	var conf Conf
	conf.srcPath = path
	err = json.Unmarshal(rawData, &conf)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	return &conf
}

// DefaultConf creates a configuration for running without
// any config file (e.g. CLI estimation of a single file).
func DefaultConf() *Conf {
	return &Conf{}
}

func ValidateAndDefaults(conf *Conf) error {
	if conf.ListenAddress == "" {
		conf.ListenAddress = dfltListenAddress
		log.Warn().Str("address", dfltListenAddress).Msg("listenAddress not specified, using default")
	}
	if conf.ListenPort == 0 {
		conf.ListenPort = dfltListenPort
		log.Warn().Int("port", dfltListenPort).Msg("listenPort not specified, using default")
	}
	if conf.ServerReadTimeoutSecs == 0 {
		conf.ServerReadTimeoutSecs = dfltServerReadTimeoutSecs
		log.Warn().Msgf(
			"serverReadTimeoutSecs not specified, using default: %d",
			dfltServerReadTimeoutSecs,
		)
	}
	if conf.ServerWriteTimeoutSecs == 0 {
		conf.ServerWriteTimeoutSecs = dfltServerWriteTimeoutSecs
		log.Warn().Msgf(
			"serverWriteTimeoutSecs not specified, using default: %d",
			dfltServerWriteTimeoutSecs,
		)
	}
	if conf.MaxUploadSizeMB == 0 {
		conf.MaxUploadSizeMB = dfltMaxUploadSizeMB
	}

	if conf.Estimator.MaxOutliers == nil {
		v := estimator.DefaultMaxOutliers
		conf.Estimator.MaxOutliers = &v
		log.Warn().Int("value", v).Msg("estimator.maxOutliers not specified, using default")

	} else if *conf.Estimator.MaxOutliers < 0 {
		return fmt.Errorf("invalid estimator.maxOutliers: %d", *conf.Estimator.MaxOutliers)
	}
	if conf.Estimator.MaxSearchSize == 0 {
		conf.Estimator.MaxSearchSize = estimator.DefaultMaxSearchSize
		log.Warn().
			Int("value", estimator.DefaultMaxSearchSize).
			Msg("estimator.maxSearchSize not specified, using default")

	} else if conf.Estimator.MaxSearchSize < estimator.MinPoints {
		return fmt.Errorf("invalid estimator.maxSearchSize: %d", conf.Estimator.MaxSearchSize)
	}
	if conf.Estimator.NumWorkers <= 0 {
		conf.Estimator.NumWorkers = runtime.NumCPU()
		log.Warn().
			Int("value", conf.Estimator.NumWorkers).
			Msg("estimator.numWorkers not specified, using number of CPUs")
	}

	if conf.Clearance.CYPConc == 0 {
		conf.Clearance.CYPConc = clearance.DefaultCYPConc
		log.Warn().
			Float64("value", clearance.DefaultCYPConc).
			Msg("clearance.cypConc not specified, using default")
	}
	if conf.Clearance.Unit == "" {
		conf.Clearance.Unit = clearance.UnitMLPerPmolMin
	}
	if _, err := conf.Clearance.Calculator(); err != nil {
		return fmt.Errorf("invalid clearance configuration: %w", err)
	}

	if conf.Annotations.Driver == "" {
		conf.Annotations.Driver = annotation.DriverMemory
		log.Warn().Msg("annotations.driver not specified, annotations will not be persisted")
	}
	if err := conf.Annotations.Validate(); err != nil {
		return err
	}

	if conf.Archive.Driver == "" {
		conf.Archive.Driver = archive.DriverFS
	}
	if conf.Archive.Driver == archive.DriverFS && conf.Archive.Dir == "" {
		conf.Archive.Dir = filepath.Join(os.TempDir(), "iqc", dfltArchiveDirName)
		log.Warn().Str("dir", conf.Archive.Dir).Msg("archive.dir not specified, using default")
	}
	if err := conf.Archive.Validate(); err != nil {
		return err
	}

	if conf.T0Correction < 0 {
		return fmt.Errorf("invalid t0Correction: %01.2f", conf.T0Correction)
	}
	if conf.DatastorePath == "" {
		log.Warn().Msg("datastorePath not specified, estimates will not be cached")
	}
	return nil
}
