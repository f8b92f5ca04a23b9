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

package sqlbuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/position"
	"github.com/yugabyte/yb-datamover/src/record"
)

func mustGet(t *testing.T, dbType string) PipelineSQLBuilder {
	b, err := Get(dbType)
	require.NoError(t, err)
	return b
}

func newT2Record() *record.DataRecord {
	r := record.NewDataRecord(record.UPDATE, "t2", position.IntRange(1, 10), 5)
	r.AddColumn(record.Column{Name: "id", Value: int64(1), Updated: true, UniqueKey: true})
	r.AddColumn(record.Column{Name: "sc", Value: int64(2), Updated: true, UniqueKey: true})
	r.AddColumn(record.Column{Name: "c1", Value: "a", Updated: true})
	r.AddColumn(record.Column{Name: "c2", Value: "b", Updated: true})
	r.AddColumn(record.Column{Name: "c3", Value: nil, Updated: true})
	return r
}

func TestGetUnknownBuilder(t *testing.T) {
	_, err := Get("sqlserver")
	assert.True(t, errs.IsParameterError(err))
}

func TestDumpSQLFixturesForAllDialects(t *testing.T) {
	for _, dbType := range constants.SupportedDatabaseTypes {
		b := mustGet(t, dbType)
		assert.Equal(t, "SELECT * FROM t_order WHERE order_id>=? AND order_id<=? ORDER BY order_id ASC",
			b.BuildDivisibleDumpSQL("", "t_order", []string{"*"}, "order_id"), dbType)
		assert.Equal(t, "SELECT * FROM t_order WHERE order_id>=? ORDER BY order_id ASC",
			b.BuildDivisibleDumpSQLNoEnd("", "t_order", []string{"*"}, "order_id"), dbType)
		assert.Equal(t, "SELECT * FROM t_order ORDER BY order_id ASC",
			b.BuildIndivisibleDumpSQL("", "t_order", []string{"*"}, "order_id"), dbType)
		assert.Equal(t, "SELECT * FROM t_order", b.BuildNoUniqueKeyDumpSQL("", "t_order", []string{"*"}), dbType)
		assert.Equal(t, "SELECT order_id,user_id FROM t_order",
			b.BuildNoUniqueKeyDumpSQL("", "t_order", []string{"order_id", "user_id"}), dbType)
		assert.Equal(t, "SELECT COUNT(*) FROM t_order", b.BuildCountSQL("", "t_order"), dbType)
		assert.Equal(t, "SELECT MIN(order_id), MAX(order_id) FROM t_order",
			b.BuildUniqueKeyMinMaxSQL("", "t_order", "order_id"), dbType)
	}
}

func TestImportSQLFixturesForAllDialects(t *testing.T) {
	r := newT2Record()
	conditions := r.UniqueKeyColumns()
	for _, dbType := range constants.SupportedDatabaseTypes {
		b := mustGet(t, dbType)
		assert.Equal(t, "INSERT INTO t2(id,sc,c1,c2,c3) VALUES(?,?,?,?,?)", b.BuildInsertSQL("", r), dbType)
		assert.Equal(t, "UPDATE t2 SET c1 = ?,c2 = ?,c3 = ? WHERE id = ? AND sc = ?", b.BuildUpdateSQL("", r, conditions), dbType)
		assert.Equal(t, "DELETE FROM t2 WHERE id = ? AND sc = ?", b.BuildDeleteSQL("", r, conditions), dbType)
	}
	assert.Equal(t, []interface{}{"a", "b", nil, int64(1), int64(2)}, UpdateArgs(r, conditions))
}

func TestUpdateSetsOnlyUpdatedNonConditionColumns(t *testing.T) {
	r := newT2Record()
	r.Columns[3].Updated = false
	b := mustGet(t, constants.POSTGRESQL)
	assert.Equal(t, "UPDATE t2 SET c1 = ?,c3 = ? WHERE id = ? AND sc = ?", b.BuildUpdateSQL("", r, r.UniqueKeyColumns()))
	assert.Equal(t, []interface{}{"a", nil, int64(1), int64(2)}, UpdateArgs(r, r.UniqueKeyColumns()))
}

func TestSchemaQualificationAndQuoting(t *testing.T) {
	assert.Equal(t, `SELECT COUNT(*) FROM sales."Order"`, mustGet(t, constants.POSTGRESQL).BuildCountSQL("sales", "Order"))
	assert.Equal(t, "SELECT COUNT(*) FROM `order`", mustGet(t, constants.MYSQL).BuildCountSQL("sales", "order"))
	assert.Equal(t, "SELECT COUNT(*) FROM SALES.T_ORDER", mustGet(t, constants.ORACLE).BuildCountSQL("SALES", "T_ORDER"))
	assert.Equal(t, "SELECT COUNT(*) FROM t_order", mustGet(t, constants.SQLITE).BuildCountSQL("main", "t_order"))
	assert.Equal(t, `DROP TABLE IF EXISTS public.t_order`, mustGet(t, constants.YUGABYTEDB).BuildDropSQL("public", "t_order"))
	assert.Equal(t, `DROP TABLE SALES.T_ORDER CASCADE CONSTRAINTS`, mustGet(t, constants.ORACLE).BuildDropSQL("SALES", "T_ORDER"))
}

func TestQueryAllOrderingSQL(t *testing.T) {
	pg := mustGet(t, constants.POSTGRESQL)
	assert.Equal(t, "SELECT * FROM t_order ORDER BY order_id ASC LIMIT 100",
		pg.BuildQueryAllOrderingSQL("", "t_order", []string{"*"}, "order_id", true, 100))
	assert.Equal(t, "SELECT * FROM t_order WHERE order_id>? ORDER BY order_id ASC LIMIT 100",
		pg.BuildQueryAllOrderingSQL("", "t_order", []string{"*"}, "order_id", false, 100))
	assert.Equal(t, "SELECT * FROM t_order WHERE order_id>? ORDER BY order_id ASC FETCH FIRST 100 ROWS ONLY",
		mustGet(t, constants.ORACLE).BuildQueryAllOrderingSQL("", "t_order", []string{"*"}, "order_id", false, 100))
}

func TestUpsertSQL(t *testing.T) {
	r := newT2Record()
	sql, ok := mustGet(t, constants.POSTGRESQL).BuildUpsertSQL("", r)
	assert.True(t, ok)
	assert.Equal(t, "INSERT INTO t2(id,sc,c1,c2,c3) VALUES(?,?,?,?,?) ON CONFLICT (id,sc) DO UPDATE SET c1 = EXCLUDED.c1,c2 = EXCLUDED.c2,c3 = EXCLUDED.c3", sql)

	sql, ok = mustGet(t, constants.MYSQL).BuildUpsertSQL("", r)
	assert.True(t, ok)
	assert.Equal(t, "INSERT INTO t2(id,sc,c1,c2,c3) VALUES(?,?,?,?,?) ON DUPLICATE KEY UPDATE c1=VALUES(c1),c2=VALUES(c2),c3=VALUES(c3)", sql)

	sql, ok = mustGet(t, constants.SQLITE).BuildUpsertSQL("", r)
	assert.True(t, ok)
	assert.Equal(t, "INSERT INTO t2(id,sc,c1,c2,c3) VALUES(?,?,?,?,?) ON CONFLICT(id,sc) DO UPDATE SET c1 = excluded.c1,c2 = excluded.c2,c3 = excluded.c3", sql)

	_, ok = mustGet(t, constants.ORACLE).BuildUpsertSQL("", r)
	assert.False(t, ok)

	keyless := record.NewDataRecord(record.INSERT, "t3", position.Placeholder(), 1)
	keyless.AddColumn(record.Column{Name: "v", Value: 1})
	_, ok = mustGet(t, constants.POSTGRESQL).BuildUpsertSQL("", keyless)
	assert.False(t, ok)
}

func TestOptionalCapabilities(t *testing.T) {
	sql, ok := mustGet(t, constants.MYSQL).BuildCRC32SQL("", "t_order", "status")
	assert.True(t, ok)
	assert.Equal(t, "SELECT BIT_XOR(CAST(CRC32(status) AS UNSIGNED)) AS checksum, COUNT(1) AS cnt FROM t_order", sql)

	_, ok = mustGet(t, constants.SQLITE).BuildCRC32SQL("", "t_order", "status")
	assert.False(t, ok)
	assert.Empty(t, mustGet(t, constants.SQLITE).DigestFamily())
	assert.Equal(t, mustGet(t, constants.POSTGRESQL).DigestFamily(), mustGet(t, constants.YUGABYTEDB).DigestFamily())

	sql, ok = mustGet(t, constants.POSTGRESQL).BuildEstimatedCountSQL("public", "t_order")
	assert.True(t, ok)
	assert.Equal(t, "SELECT reltuples::bigint FROM pg_class WHERE oid='public.t_order'::regclass", sql)

	sql, ok = mustGet(t, constants.MYSQL).BuildEstimatedCountSQL("", "t_order")
	assert.True(t, ok)
	assert.Equal(t, "SELECT TABLE_ROWS FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = 't_order'", sql)

	_, ok = mustGet(t, constants.SQLITE).BuildEstimatedCountSQL("", "t_order")
	assert.False(t, ok)
}

func TestTableColumnsSQLArgs(t *testing.T) {
	_, args := mustGet(t, constants.POSTGRESQL).BuildTableColumnsSQL("", "t_order")
	assert.Equal(t, []interface{}{"public", "t_order"}, args)
	_, args = mustGet(t, constants.ORACLE).BuildTableColumnsSQL("SALES", "T_ORDER")
	assert.Equal(t, []interface{}{"SALES", "T_ORDER", "SALES", "T_ORDER"}, args)
	query, args := mustGet(t, constants.SQLITE).BuildTableColumnsSQL("", "t_order")
	assert.Contains(t, query, "pragma_table_xinfo(?)")
	assert.Equal(t, []interface{}{"t_order"}, args)
}
