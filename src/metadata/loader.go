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

package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/yugabyte/yb-datamover/src/dbtype"
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/sqlbuilder"
)

type Loader interface {
	Load(ctx context.Context, schema, table string) (*TableMetaData, error)
}

// CatalogLoader reads table metadata from the engine's catalog.
type CatalogLoader struct {
	db         *sql.DB
	descriptor *dbtype.Descriptor
	builder    sqlbuilder.PipelineSQLBuilder
}

func NewCatalogLoader(db *sql.DB, dbType string) (*CatalogLoader, error) {
	descriptor, err := dbtype.Get(dbType)
	if err != nil {
		return nil, err
	}
	builder, err := sqlbuilder.Get(dbType)
	if err != nil {
		return nil, err
	}
	return &CatalogLoader{db: db, descriptor: descriptor, builder: builder}, nil
}

func (l *CatalogLoader) Load(ctx context.Context, schema, table string) (*TableMetaData, error) {
	query, args := l.builder.BuildTableColumnsSQL(schema, table)
	query = l.descriptor.Rebind(query)
	log.Infof("loading metadata of %s.%s: %s", schema, table, query)
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	type pkColumn struct {
		name    string
		ordinal int
	}
	var columns []*ColumnMetaData
	var pk []pkColumn
	for rows.Next() {
		var name, typeName string
		var pkOrdinal, generated, visible int
		var scale sql.NullInt64
		if err := rows.Scan(&name, &typeName, &pkOrdinal, &generated, &scale, &visible); err != nil {
			return nil, fmt.Errorf("scan column metadata of %s.%s: %w", schema, table, err)
		}
		col := &ColumnMetaData{
			Name:          name,
			Ordinal:       len(columns) + 1,
			Type:          l.descriptor.ResolveColumnType(typeName),
			PrimaryKey:    pkOrdinal > 0,
			Generated:     generated != 0,
			CaseSensitive: isCaseSensitive(l.descriptor.DatabaseType, name),
			Visible:       visible != 0,
			Scale:         -1,
		}
		if scale.Valid {
			col.Scale = int(scale.Int64)
		}
		columns = append(columns, col)
		if pkOrdinal > 0 {
			pk = append(pk, pkColumn{name: name, ordinal: pkOrdinal})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column metadata of %s.%s: %w", schema, table, err)
	}
	if len(columns) == 0 {
		return nil, errs.NewParameterError("table %s.%s not found or has no columns", schema, table)
	}
	sort.Slice(pk, func(i, j int) bool { return pk[i].ordinal < pk[j].ordinal })
	pkNames := make([]string, len(pk))
	for i, c := range pk {
		pkNames[i] = c.name
	}
	return NewTableMetaData(l.descriptor.DatabaseType, schema, table, columns, pkNames), nil
}

// CachingLoader loads each table once until invalidated.
type CachingLoader struct {
	delegate Loader
	mu       sync.Mutex
	cache    map[string]*TableMetaData
}

func NewCachingLoader(delegate Loader) *CachingLoader {
	return &CachingLoader{delegate: delegate, cache: make(map[string]*TableMetaData)}
}

func cacheKey(schema, table string) string {
	return schema + "." + table
}

func (l *CachingLoader) Load(ctx context.Context, schema, table string) (*TableMetaData, error) {
	key := cacheKey(schema, table)
	l.mu.Lock()
	md, ok := l.cache[key]
	l.mu.Unlock()
	if ok {
		return md, nil
	}
	md, err := l.delegate.Load(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cache[key] = md
	l.mu.Unlock()
	return md, nil
}

func (l *CachingLoader) Invalidate(schema, table string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, cacheKey(schema, table))
}

func (l *CachingLoader) InvalidateAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]*TableMetaData)
}
