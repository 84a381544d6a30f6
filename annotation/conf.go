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

package annotation

import (
	"context"
	"fmt"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type Conf struct {
	Driver string `json:"driver"`

	// Path is the SQLite database file
	Path string `json:"path"`

	// DSN is the Postgres connection string
	DSN string `json:"dsn"`

	MySQL MySQLConf `json:"mysql"`
}

func (conf Conf) Validate() error {
	switch conf.Driver {
	case DriverMemory, DriverPostgres, DriverMySQL:
	case DriverSQLite:
		if conf.Path == "" {
			return fmt.Errorf("missing annotations.path for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown annotation store driver %s", conf.Driver)
	}
	return nil
}

// Open creates an annotation store based on the configured driver
func Open(ctx context.Context, conf Conf) (Store, error) {
	switch conf.Driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverSQLite:
		return NewSQLiteStore(ctx, conf.Path)
	case DriverMySQL:
		return NewMySQLStore(ctx, conf.MySQL)
	case DriverPostgres:
		return NewPostgresStore(ctx, conf.DSN)
	}
	return nil, fmt.Errorf("unknown annotation store driver %s", conf.Driver)
}
