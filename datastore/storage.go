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

// Package datastore caches computed estimates of uploaded datasets
// in a Badger database. Derived clearance values are not stored,
// they are recomputed each time estimates are loaded.
package datastore

import (
	"errors"
	"fmt"
	"time"

	"github.com/caodac/iqc/clearance"
	"github.com/caodac/iqc/estimator"
	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
)

var ErrNotFound = errors.New("not found in datastore")

// DatasetInfo describes a cached dataset
type DatasetInfo struct {
	Name        string             `msgpack:"name" json:"name"`
	Fingerprint uint64             `msgpack:"fingerprint" json:"fingerprint"`
	Size        int64              `msgpack:"size" json:"size"`
	Created     time.Time          `msgpack:"created" json:"created"`
	Settings    estimator.Settings `msgpack:"settings" json:"settings"`
	Samples     []string           `msgpack:"samples" json:"samples"`
}

// DB is a wrapper around badger.DB providing methods
// for storing and retrieving estimates.
type DB struct {
	bdb *badger.DB
}

// Close closes the internal Badger database.
// It is possible to call the method on nil instance
// or on an uninitialized DB object, in which case
// it is a NOP.
func (db *DB) Close() error {
	if db != nil && db.bdb != nil {
		return db.bdb.Close()
	}
	return nil
}

func (db *DB) Flush() error {
	return db.bdb.DropAll()
}

func (db *DB) Size() (int64, int64) {
	return db.bdb.Size()
}

func (db *DB) readInfoTx(txn *badger.Txn, name string) (DatasetInfo, error) {
	var ans DatasetInfo
	item, err := txn.Get(encodeDatasetKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ans, fmt.Errorf("dataset %s: %w", name, ErrNotFound)

	} else if err != nil {
		return ans, fmt.Errorf("failed to read dataset %s: %w", name, err)
	}
	err = item.Value(func(val []byte) error {
		return decodeValue(val, &ans)
	})
	return ans, err
}

func (db *DB) deleteEstimatesTx(txn *badger.Txn, dataset string) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = encodeEstimatePrefix(dataset)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	keys := make([][]byte, 0, 100)
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// StoreEstimates saves the dataset information along with estimates of all
// its samples. Any previously cached estimates of a dataset with the same name
// but a different fingerprint are removed.
func (db *DB) StoreEstimates(info DatasetInfo, estimates []estimator.SampleEstimate) error {
	info.Samples = make([]string, len(estimates))
	for i, se := range estimates {
		info.Samples[i] = se.Sample.Name
	}
	if info.Created.IsZero() {
		info.Created = time.Now()
	}
	infoValue, err := encodeValue(info)
	if err != nil {
		return fmt.Errorf("failed to store dataset %s: %w", info.Name, err)
	}
	err = db.bdb.Update(func(txn *badger.Txn) error {
		prev, err := db.readInfoTx(txn, info.Name)
		if err == nil && prev.Fingerprint != info.Fingerprint {
			if err := db.deleteEstimatesTx(txn, info.Name); err != nil {
				return err
			}

		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := txn.Set(encodeDatasetKey(info.Name), infoValue); err != nil {
			return err
		}
		for _, se := range estimates {
			value, err := encodeValue(exportSample(se))
			if err != nil {
				return err
			}
			key := encodeEstimateKey(info.Name, info.Fingerprint, info.Settings, se.Sample.Name)
			if err := txn.Set(key, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store dataset %s: %w", info.Name, err)
	}
	log.Debug().
		Str("dataset", info.Name).
		Int("samples", len(estimates)).
		Str("settings", info.Settings.String()).
		Msg("stored estimates")
	return nil
}

func (db *DB) ReadDataset(name string) (DatasetInfo, error) {
	var ans DatasetInfo
	err := db.bdb.View(func(txn *badger.Txn) error {
		var err error
		ans, err = db.readInfoTx(txn, name)
		return err
	})
	return ans, err
}

// ListDatasets returns information about all the cached datasets
// sorted by their names.
func (db *DB) ListDatasets() ([]DatasetInfo, error) {
	ans := make([]DatasetInfo, 0, 20)
	err := db.bdb.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{DatasetPrefix}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var info DatasetInfo
			err := it.Item().Value(func(val []byte) error {
				return decodeValue(val, &info)
			})
			if err != nil {
				return err
			}
			ans = append(ans, info)
		}
		return nil
	})
	if err != nil {
		return []DatasetInfo{}, fmt.Errorf("failed to list datasets: %w", err)
	}
	return ans, nil
}

func (db *DB) DeleteDataset(name string) error {
	err := db.bdb.Update(func(txn *badger.Txn) error {
		if _, err := db.readInfoTx(txn, name); err != nil {
			return err
		}
		if err := db.deleteEstimatesTx(txn, name); err != nil {
			return err
		}
		return txn.Delete(encodeDatasetKey(name))
	})
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	return nil
}

func (db *DB) loadSampleTx(
	txn *badger.Txn,
	info DatasetInfo,
	est *estimator.Estimator,
	sample string,
	calc clearance.Calculator,
) (estimator.SampleEstimate, error) {
	var ans estimator.SampleEstimate
	item, err := txn.Get(encodeEstimateKey(info.Name, info.Fingerprint, est.Settings, sample))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ans, fmt.Errorf(
			"estimates of %s in %s (%s): %w", sample, info.Name, est.Settings, ErrNotFound)

	} else if err != nil {
		return ans, err
	}
	var ss storedSample
	err = item.Value(func(val []byte) error {
		return decodeValue(val, &ss)
	})
	if err != nil {
		return ans, err
	}
	ans, err = ss.importSample(est)
	if err != nil {
		return ans, err
	}
	calc.Apply(ans.Results)
	return ans, nil
}

// LoadEstimates loads cached estimates of all the dataset samples computed
// with the estimator settings. ErrNotFound is returned if the dataset
// or estimates for the settings are not available.
func (db *DB) LoadEstimates(
	name string,
	est *estimator.Estimator,
	calc clearance.Calculator,
) (DatasetInfo, []estimator.SampleEstimate, error) {
	var info DatasetInfo
	var ans []estimator.SampleEstimate
	err := db.bdb.View(func(txn *badger.Txn) error {
		var err error
		info, err = db.readInfoTx(txn, name)
		if err != nil {
			return err
		}
		ans = make([]estimator.SampleEstimate, len(info.Samples))
		for i, s := range info.Samples {
			ans[i], err = db.loadSampleTx(txn, info, est, s, calc)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return info, nil, fmt.Errorf("failed to load estimates: %w", err)
	}
	return info, ans, nil
}

// LoadSample loads cached estimates of a single sample.
func (db *DB) LoadSample(
	name, sample string,
	est *estimator.Estimator,
	calc clearance.Calculator,
) (estimator.SampleEstimate, error) {
	var ans estimator.SampleEstimate
	err := db.bdb.View(func(txn *badger.Txn) error {
		info, err := db.readInfoTx(txn, name)
		if err != nil {
			return err
		}
		ans, err = db.loadSampleTx(txn, info, est, sample, calc)
		return err
	})
	if err != nil {
		return ans, fmt.Errorf("failed to load sample: %w", err)
	}
	return ans, nil
}

func OpenDB(path string) (*DB, error) {
	opts := badger.DefaultOptions(path).
		WithValueLogFileSize(64 << 20).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open estimates datastore: %w", err)
	}
	log.Info().Str("path", path).Msg("opened estimates datastore")
	return &DB{bdb: db}, nil
}
