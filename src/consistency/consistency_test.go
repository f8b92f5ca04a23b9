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

package consistency

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/dbtype"
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/metadata"
)

func TestCanonical(t *testing.T) {
	assert.True(t, ValuesEqual("1.50", 1.5))
	assert.True(t, ValuesEqual("10", int32(10)))
	assert.True(t, ValuesEqual(int16(1), true))
	assert.True(t, ValuesEqual("1e+20", "100000000000000000000"))
	assert.True(t, ValuesEqual([]byte("abc"), "abc"))
	assert.True(t, ValuesEqual(nil, nil))
	assert.False(t, ValuesEqual(nil, ""))
	assert.False(t, ValuesEqual("1.5", "1.25"))
	assert.Equal(t, "N/A", Canonical("N/A"))

	utc := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.True(t, ValuesEqual(utc, utc.In(time.FixedZone("X", 3600))))
	assert.True(t, RowsEqual([]interface{}{int64(1), "a"}, []interface{}{int32(1), "a"}))
	assert.False(t, RowsEqual([]interface{}{int64(1)}, []interface{}{int64(1), nil}))
}

func TestRowDigestIsOrderIndependent(t *testing.T) {
	a, b := &RowDigest{}, &RowDigest{}
	a.Add([]interface{}{int64(1), "x"})
	a.Add([]interface{}{int64(2), "y"})
	b.Add([]interface{}{"2", "y"})
	b.Add([]interface{}{int32(1), "x"})
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.String(), b.String())

	b.Add([]interface{}{nil, "z"})
	assert.False(t, a.Equal(b))
}

func TestAggregate(t *testing.T) {
	_, err := Aggregate(nil)
	assert.True(t, errs.IsParameterError(err))

	ok := &TableResult{Table: "a", CountMatched: true, ContentMatched: true}
	matched, err := Aggregate(map[string]*TableResult{"a": ok})
	require.NoError(t, err)
	assert.True(t, matched)

	failed := &TableResult{Table: "b", CountMatched: true, ContentMatched: true, ErrorMessage: "no such table"}
	matched, err = Aggregate(map[string]*TableResult{"a": ok, "b": failed})
	require.NoError(t, err)
	assert.False(t, matched)
}

func openSqlite(t *testing.T, name string, statements ...string) Side {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	loader, err := metadata.NewCatalogLoader(db, constants.SQLITE)
	require.NoError(t, err)
	return Side{DB: db, DBType: constants.SQLITE, MetaLoader: loader}
}

func TestCheckSqliteTables(t *testing.T) {
	schema := []string{
		`CREATE TABLE t_order (order_id INTEGER PRIMARY KEY, status VARCHAR(20), amount DECIMAL(10,2))`,
		`CREATE TABLE t_log (line TEXT, level INT)`,
		`CREATE TABLE t_user (user_id INTEGER PRIMARY KEY, name TEXT)`,
	}
	source := openSqlite(t, "source.db", append(schema,
		`INSERT INTO t_order VALUES (1, 'NEW', 1.5), (2, 'PAID', 2.25), (3, 'NEW', 3), (4, 'NEW', 4), (5, 'DONE', 5)`,
		`INSERT INTO t_log VALUES ('a', 1), ('b', 2)`,
		`INSERT INTO t_user VALUES (1, 'ann'), (2, 'bob')`)...)
	target := openSqlite(t, "target.db", append(schema,
		`INSERT INTO t_order VALUES (1, 'NEW', 1.50), (2, 'PAID', 2.25), (3, 'NEW', 3), (4, 'NEW', 4), (5, 'DONE', 5)`,
		`INSERT INTO t_log VALUES ('b', 2), ('a', 1)`,
		`INSERT INTO t_user VALUES (1, 'ann'), (2, 'bobby')`)...)

	checker, err := NewChecker(CheckerConfig{JobID: "j1", PageSize: 2, Concurrency: 2}, source, target)
	require.NoError(t, err)
	results := checker.Check(context.Background(), []TablePair{
		{SourceTable: "t_order", TargetTable: "t_order"},
		{SourceTable: "t_log", TargetTable: "t_log"},
		{SourceTable: "t_user", TargetTable: "t_user"},
		{LogicTableName: "t_missing", SourceTable: "t_order", TargetTable: "t_missing"},
	})
	require.Len(t, results, 4)

	assert.True(t, results["t_order"].Matched(), results["t_order"].String())
	assert.Equal(t, ALGORITHM_KEYED_PAGINATION, results["t_order"].Algorithm)
	assert.EqualValues(t, 5, results["t_order"].SourceCount)

	assert.True(t, results["t_log"].Matched(), results["t_log"].String())
	assert.Equal(t, ALGORITHM_UNORDERED_DIGEST, results["t_log"].Algorithm)

	assert.True(t, results["t_user"].CountMatched)
	assert.False(t, results["t_user"].ContentMatched)

	assert.NotEmpty(t, results["t_missing"].ErrorMessage)
	assert.False(t, results["t_missing"].Matched())

	matched, err := Aggregate(results)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestCountMismatchSkipsContent(t *testing.T) {
	source := openSqlite(t, "source.db", `CREATE TABLE t (id INTEGER PRIMARY KEY)`, `INSERT INTO t VALUES (1), (2)`)
	target := openSqlite(t, "target.db", `CREATE TABLE t (id INTEGER PRIMARY KEY)`, `INSERT INTO t VALUES (1)`)
	checker, err := NewChecker(CheckerConfig{}, source, target)
	require.NoError(t, err)

	result := checker.CheckTable(context.Background(), TablePair{SourceTable: "t", TargetTable: "t"})
	assert.False(t, result.CountMatched)
	assert.False(t, result.ContentMatched)
	assert.Empty(t, result.Algorithm)
	assert.EqualValues(t, 2, result.SourceCount)
	assert.EqualValues(t, 1, result.TargetCount)
}

type staticLoader struct {
	md *metadata.TableMetaData
}

func (l staticLoader) Load(ctx context.Context, schema, table string) (*metadata.TableMetaData, error) {
	return l.md, nil
}

func TestDigestWhenFamiliesMatch(t *testing.T) {
	md := func(dbType string) *metadata.TableMetaData {
		return metadata.NewTableMetaData(dbType, "public", "t_order", []*metadata.ColumnMetaData{
			{Name: "order_id", Type: dbtype.ColumnType{Code: dbtype.BIGINT}, PrimaryKey: true, Visible: true},
			{Name: "status", Type: dbtype.ColumnType{Code: dbtype.VARCHAR}, Visible: true, Scale: -1},
		}, []string{"order_id"})
	}
	newMock := func() (*sql.DB, sqlmock.Sqlmock) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return db, mock
	}
	sourceDB, sourceMock := newMock()
	targetDB, targetMock := newMock()
	digestSQL := func(column string) string {
		return "SELECT COALESCE(SUM(('x' || SUBSTR(MD5(CAST(" + column + " AS TEXT)), 1, 8))::bit(32)::bigint), 0) AS checksum, COUNT(1) AS cnt FROM public.t_order"
	}
	for _, mock := range []sqlmock.Sqlmock{sourceMock, targetMock} {
		mock.ExpectQuery("SELECT COUNT(*) FROM public.t_order").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))
	}
	sourceMock.ExpectQuery(digestSQL("order_id")).WillReturnRows(sqlmock.NewRows([]string{"checksum", "cnt"}).AddRow("123", int64(3)))
	targetMock.ExpectQuery(digestSQL("order_id")).WillReturnRows(sqlmock.NewRows([]string{"checksum", "cnt"}).AddRow("123", int64(3)))
	sourceMock.ExpectQuery(digestSQL("status")).WillReturnRows(sqlmock.NewRows([]string{"checksum", "cnt"}).AddRow("456", int64(3)))
	targetMock.ExpectQuery(digestSQL("status")).WillReturnRows(sqlmock.NewRows([]string{"checksum", "cnt"}).AddRow("457", int64(3)))

	checker, err := NewChecker(CheckerConfig{},
		Side{DB: sourceDB, DBType: constants.POSTGRESQL, MetaLoader: staticLoader{md(constants.POSTGRESQL)}},
		Side{DB: targetDB, DBType: constants.YUGABYTEDB, MetaLoader: staticLoader{md(constants.YUGABYTEDB)}})
	require.NoError(t, err)
	result := checker.CheckTable(context.Background(), TablePair{
		SourceSchema: "public", SourceTable: "t_order", TargetSchema: "public", TargetTable: "t_order",
	})
	assert.Empty(t, result.ErrorMessage)
	assert.Equal(t, ALGORITHM_DIGEST, result.Algorithm)
	assert.True(t, result.CountMatched)
	assert.False(t, result.ContentMatched)
	assert.NoError(t, sourceMock.ExpectationsWereMet())
	assert.NoError(t, targetMock.ExpectationsWereMet())
}

func TestEstimatedCountFallsBackToExact(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT reltuples::bigint FROM pg_class WHERE oid='t_order'::regclass").
		WillReturnRows(sqlmock.NewRows([]string{"reltuples"}).AddRow(int64(-1)))
	mock.ExpectQuery("SELECT COUNT(*) FROM t_order").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	checker, err := NewChecker(CheckerConfig{EstimatedCount: true},
		Side{DB: db, DBType: constants.POSTGRESQL}, Side{DB: db, DBType: constants.POSTGRESQL})
	require.NoError(t, err)
	count, err := checker.count(context.Background(), checker.source, "", "t_order")
	require.NoError(t, err)
	assert.EqualValues(t, 42, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
