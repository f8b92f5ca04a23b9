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
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/dbtype"
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/position"
)

func openSqlite(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "source.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCatalogLoaderOnSqlite(t *testing.T) {
	db := openSqlite(t)
	_, err := db.Exec(`CREATE TABLE t_order (order_id INTEGER PRIMARY KEY, user_id INT, status VARCHAR(20), amount DECIMAL(10,2))`)
	require.NoError(t, err)

	loader, err := NewCatalogLoader(db, constants.SQLITE)
	require.NoError(t, err)
	md, err := loader.Load(context.Background(), "", "t_order")
	require.NoError(t, err)

	assert.Equal(t, []string{"order_id", "user_id", "status", "amount"}, md.ColumnNames())
	assert.Equal(t, []string{"order_id"}, md.PrimaryKeyColumns)
	assert.True(t, md.IsUniqueKey("ORDER_ID"))
	assert.False(t, md.IsUniqueKey("status"))

	col, kind, ok := md.DivisibleUniqueKey()
	require.True(t, ok)
	assert.Equal(t, "order_id", col.Name)
	assert.Equal(t, position.INT_KEY, kind)

	status, ok := md.Column("status")
	require.True(t, ok)
	assert.Equal(t, dbtype.VARCHAR, status.Type.Code)
	assert.Equal(t, -1, status.Scale)
	assert.True(t, status.Visible)
}

func TestCatalogLoaderUnknownTable(t *testing.T) {
	loader, err := NewCatalogLoader(openSqlite(t), constants.SQLITE)
	require.NoError(t, err)
	_, err = loader.Load(context.Background(), "", "missing")
	assert.True(t, errs.IsParameterError(err))
}

func TestCatalogLoaderRebindsAndOrdersCompositeKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"column_name", "udt_name", "pk_position", "is_generated", "numeric_scale", "is_visible"}).
		AddRow("id", "int8", 2, 0, 0, 1).
		AddRow("Region", "varchar", 1, 0, nil, 1).
		AddRow("total", "numeric", 0, 1, 2, 1)
	mock.ExpectQuery(`WHERE c.table_schema = \$1 AND c.table_name = \$2`).
		WithArgs("sales", "orders").
		WillReturnRows(rows)

	loader, err := NewCatalogLoader(db, constants.POSTGRESQL)
	require.NoError(t, err)
	md, err := loader.Load(context.Background(), "sales", "orders")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{"Region", "id"}, md.PrimaryKeyColumns)
	_, _, ok := md.DivisibleUniqueKey()
	assert.False(t, ok)

	region, ok := md.Column("Region")
	require.True(t, ok)
	assert.True(t, region.CaseSensitive)
	_, ok = md.Column("region")
	assert.False(t, ok)

	assert.Equal(t, []string{"id", "Region"}, md.InsertableColumnNames())
}

func TestDivisibleUniqueKeyKinds(t *testing.T) {
	build := func(col *ColumnMetaData) *TableMetaData {
		col.PrimaryKey = true
		return NewTableMetaData(constants.ORACLE, "S", "T", []*ColumnMetaData{col}, []string{col.Name})
	}
	_, kind, ok := build(&ColumnMetaData{Name: "ID", Type: dbtype.ColumnType{Code: dbtype.DECIMAL}, Scale: 0}).DivisibleUniqueKey()
	assert.True(t, ok)
	assert.Equal(t, position.INT_KEY, kind)

	_, _, ok = build(&ColumnMetaData{Name: "ID", Type: dbtype.ColumnType{Code: dbtype.DECIMAL}, Scale: 2}).DivisibleUniqueKey()
	assert.False(t, ok)

	_, _, ok = build(&ColumnMetaData{Name: "ID", Type: dbtype.ColumnType{Code: dbtype.BIGINT, Unsigned: true}}).DivisibleUniqueKey()
	assert.False(t, ok)

	_, kind, ok = build(&ColumnMetaData{Name: "CODE", Type: dbtype.ColumnType{Code: dbtype.VARCHAR}, Scale: -1}).DivisibleUniqueKey()
	assert.True(t, ok)
	assert.Equal(t, position.STRING_KEY, kind)
}

type countingLoader struct {
	calls int
	err   error
}

func (l *countingLoader) Load(ctx context.Context, schema, table string) (*TableMetaData, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return NewTableMetaData(constants.SQLITE, schema, table, nil, nil), nil
}

func TestCachingLoader(t *testing.T) {
	delegate := &countingLoader{}
	loader := NewCachingLoader(delegate)
	ctx := context.Background()

	first, err := loader.Load(ctx, "", "t1")
	require.NoError(t, err)
	second, err := loader.Load(ctx, "", "t1")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, delegate.calls)

	loader.Invalidate("", "t1")
	_, err = loader.Load(ctx, "", "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, delegate.calls)

	delegate.err = errors.New("boom")
	loader.InvalidateAll()
	_, err = loader.Load(ctx, "", "t1")
	assert.Error(t, err)
	_, err = loader.Load(ctx, "", "t1")
	assert.Error(t, err)
	assert.Equal(t, 4, delegate.calls)
}
