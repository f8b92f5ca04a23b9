/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"github.com/yugabyte/yb-datamover/src/utils"
)

const (
	SQLITE_OPTIONS          = "?_txlock=exclusive&_timeout=30000"
	JSON_OBJECTS_TABLE_NAME = "json_objects"
)

func GetRegistryDBPath(workDir string) string {
	return filepath.Join(workDir, "metainfo", "meta.db")
}

// SqliteRepository keeps the registry in a sqlite file for single host deployments.
type SqliteRepository struct {
	db       *sql.DB
	notifier *notifier
}

func NewSqliteRepository(path string) (*SqliteRepository, error) {
	if err := utils.MkdirAll(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s%s", path, SQLITE_OPTIONS))
	if err != nil {
		return nil, fmt.Errorf("error while opening registry db: %w", err)
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			json_text TEXT);`, JSON_OBJECTS_TABLE_NAME)
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while initializing registry db with query-%s: %w", query, err)
	}
	log.Infof("opened registry db %s", path)
	return &SqliteRepository{db: db, notifier: newNotifier()}, nil
}

func (r *SqliteRepository) Persist(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(`INSERT INTO %s (key, json_text) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET json_text = excluded.json_text`, JSON_OBJECTS_TABLE_NAME)
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("error while running query on registry db - %s: %w", query, err)
	}
	r.notifier.publish(Event{Type: EVENT_PUT, Key: key, Value: value})
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func load(ctx context.Context, q queryer, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT json_text FROM %s WHERE key = ?`, JSON_OBJECTS_TABLE_NAME)
	var text string
	err := q.QueryRowContext(ctx, query, key).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error while running query on registry db - %s: %w", query, err)
	}
	return text, true, nil
}

func (r *SqliteRepository) Load(ctx context.Context, key string) (string, bool, error) {
	return load(ctx, r.db, key)
}

func (r *SqliteRepository) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, JSON_OBJECTS_TABLE_NAME)
	result, err := r.db.ExecContext(ctx, query, key)
	if err != nil {
		return fmt.Errorf("error while running query on registry db - %s: %w", query, err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		r.notifier.publish(Event{Type: EVENT_DELETE, Key: key})
	}
	return nil
}

func (r *SqliteRepository) DeletePrefix(ctx context.Context, prefix string) error {
	kvs, err := r.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range SortedKeys(kvs) {
		if err := r.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (r *SqliteRepository) List(ctx context.Context, prefix string) (map[string]string, error) {
	// substr avoids LIKE wildcards in the prefix.
	query := fmt.Sprintf(`SELECT key, json_text FROM %s WHERE substr(key, 1, ?) = ?`, JSON_OBJECTS_TABLE_NAME)
	rows, err := r.db.QueryContext(ctx, query, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("error while running query on registry db - %s: %w", query, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Errorf("failed to close rows of query %s: %v", query, err)
		}
	}()
	result := map[string]string{}
	for rows.Next() {
		var key, text string
		if err := rows.Scan(&key, &text); err != nil {
			return nil, fmt.Errorf("scan registry row: %w", err)
		}
		result[key] = text
	}
	return result, rows.Err()
}

func (r *SqliteRepository) Update(ctx context.Context, key string, fn func(current string, found bool) (string, error)) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("error while getting connection to registry db: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Errorf("failed to close connection to registry db: %v", err)
		}
	}()
	tx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("error while starting transaction on registry db: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Errorf("failed to rollback transaction on registry db: %v", err)
		}
	}()
	current, found, err := load(ctx, tx, key)
	if err != nil {
		return err
	}
	updated, err := fn(current, found)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (key, json_text) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET json_text = excluded.json_text`, JSON_OBJECTS_TABLE_NAME)
	if _, err := tx.ExecContext(ctx, query, key, updated); err != nil {
		return fmt.Errorf("error while running query on registry db - %s: %w", query, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error while committing transaction on registry db: %w", err)
	}
	r.notifier.publish(Event{Type: EVENT_PUT, Key: key, Value: updated})
	return nil
}

func (r *SqliteRepository) Watch(ctx context.Context, prefix string) (<-chan Event, error) {
	return r.notifier.subscribe(ctx, prefix), nil
}

func (r *SqliteRepository) Close() error {
	r.notifier.closeAll()
	return r.db.Close()
}
