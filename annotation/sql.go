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
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const (
	TableName = "iqc_validator_annotation"
)

type dialect struct {
	name      string
	driver    string
	idColumn  string
	returning bool
}

// placeholder returns n-th (1-based) query argument placeholder
func (d dialect) placeholder(n int) string {
	if d.driver == "pgx" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

var (
	dialectSQLite = dialect{
		name:     "sqlite",
		driver:   "sqlite3",
		idColumn: "anno_id INTEGER PRIMARY KEY AUTOINCREMENT",
	}
	dialectMySQL = dialect{
		name:     "mysql",
		driver:   "mysql",
		idColumn: "anno_id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY",
	}
	dialectPostgres = dialect{
		name:      "postgres",
		driver:    "pgx",
		idColumn:  "anno_id BIGSERIAL PRIMARY KEY",
		returning: true,
	}
)

// SQLStore keeps annotations in a single SQL table. The column
// `sample` holds the result ID.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func (store *SQLStore) init(ctx context.Context) error {
	_, err := store.db.ExecContext(
		ctx,
		"CREATE TABLE IF NOT EXISTS "+TableName+" ("+
			store.dialect.idColumn+", "+
			"dataset VARCHAR(255) NOT NULL, "+
			"sample VARCHAR(255) NOT NULL, "+
			"save BOOLEAN NOT NULL, "+
			"comments TEXT, "+
			"curator VARCHAR(255) NOT NULL, "+
			"created BIGINT NOT NULL"+
			")",
	)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", TableName, err)
	}
	log.Info().Str("table", TableName).Str("dialect", store.dialect.name).Msg("annotation table ready")
	return nil
}

func (store *SQLStore) Add(ctx context.Context, ann Annotation) (Annotation, error) {
	if ann.Created.IsZero() {
		ann.Created = time.Now()
	}
	ph := store.dialect.placeholder
	query := fmt.Sprintf(
		"INSERT INTO %s (dataset, sample, save, comments, curator, created) "+
			"VALUES (%s, %s, %s, %s, %s, %s)",
		TableName, ph(1), ph(2), ph(3), ph(4), ph(5), ph(6),
	)
	args := []any{
		ann.Dataset,
		ann.ResultID,
		ann.Save,
		sql.NullString{String: ann.Comments, Valid: ann.Comments != ""},
		ann.Curator,
		ann.Created.UnixMilli(),
	}
	if store.dialect.returning {
		row := store.db.QueryRowContext(ctx, query+" RETURNING anno_id", args...)
		if err := row.Scan(&ann.ID); err != nil {
			return ann, fmt.Errorf("failed to add annotation: %w", err)
		}
		return ann, nil
	}
	res, err := store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return ann, fmt.Errorf("failed to add annotation: %w", err)
	}
	ann.ID, err = res.LastInsertId()
	if err != nil {
		return ann, fmt.Errorf("failed to add annotation: %w", err)
	}
	return ann, nil
}

func (store *SQLStore) Delete(ctx context.Context, id int64) error {
	res, err := store.db.ExecContext(
		ctx,
		fmt.Sprintf("DELETE FROM %s WHERE anno_id = %s", TableName, store.dialect.placeholder(1)),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete annotation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete annotation %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("failed to delete annotation %d: %w", id, ErrNotFound)
	}
	return nil
}

func (store *SQLStore) list(ctx context.Context, where string, args ...any) ([]Annotation, error) {
	rows, err := store.db.QueryContext(
		ctx,
		fmt.Sprintf(
			"SELECT anno_id, dataset, sample, save, comments, curator, created "+
				"FROM %s WHERE %s ORDER BY created DESC, anno_id DESC",
			TableName, where,
		),
		args...,
	)
	if err != nil {
		return []Annotation{}, fmt.Errorf("failed to fetch annotations: %w", err)
	}
	defer rows.Close()
	ans := make([]Annotation, 0, 100)
	for rows.Next() {
		var ann Annotation
		var comments sql.NullString
		var created int64
		err := rows.Scan(
			&ann.ID,
			&ann.Dataset,
			&ann.ResultID,
			&ann.Save,
			&comments,
			&ann.Curator,
			&created,
		)
		if err != nil {
			return []Annotation{}, fmt.Errorf("failed to fetch annotations: %w", err)
		}
		if comments.Valid {
			ann.Comments = comments.String
		}
		ann.Created = time.UnixMilli(created)
		ans = append(ans, ann)
	}
	if err := rows.Err(); err != nil {
		return []Annotation{}, fmt.Errorf("failed to fetch annotations: %w", err)
	}
	return ans, nil
}

func (store *SQLStore) ListDataset(ctx context.Context, dataset string) ([]Annotation, error) {
	ans, err := store.list(ctx, "dataset = "+store.dialect.placeholder(1), dataset)
	if err != nil {
		return ans, err
	}
	return LatestPerSample(ans), nil
}

func (store *SQLStore) ListPrefix(ctx context.Context, prefix string) ([]Annotation, error) {
	n := utf8.RuneCountInString(prefix)
	if n == 0 {
		return store.ListAll(ctx)
	}
	return store.list(
		ctx,
		fmt.Sprintf("SUBSTR(dataset, 1, %d) = %s", n, store.dialect.placeholder(1)),
		prefix,
	)
}

func (store *SQLStore) ListAll(ctx context.Context) ([]Annotation, error) {
	return store.list(ctx, "1 = 1")
}

func (store *SQLStore) Close() error {
	return store.db.Close()
}

func openSQLStore(ctx context.Context, d dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s annotation store: %w", d.name, err)
	}
	store := &SQLStore{db: db, dialect: d}
	if err := store.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	return openSQLStore(ctx, dialectSQLite, "file:"+path)
}

type MySQLConf struct {
	Host   string `json:"host"`
	User   string `json:"user"`
	Passwd string `json:"passwd"`
	Name   string `json:"db"`
}

func NewMySQLStore(ctx context.Context, conf MySQLConf) (*SQLStore, error) {
	mconf := mysql.NewConfig()
	mconf.Net = "tcp"
	mconf.Addr = conf.Host
	mconf.User = conf.User
	mconf.Passwd = conf.Passwd
	mconf.DBName = conf.Name
	mconf.ParseTime = true
	mconf.Loc = time.Local
	return openSQLStore(ctx, dialectMySQL, mconf.FormatDSN())
}

func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("failed to open postgres annotation store: missing DSN")
	}
	return openSQLStore(ctx, dialectPostgres, dsn)
}
