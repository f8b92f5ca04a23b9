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

package codec

import (
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/dbtype"
)

var allTypes = []dbtype.ColumnType{
	{Code: dbtype.BOOLEAN},
	{Code: dbtype.BIT},
	{Code: dbtype.TINYINT},
	{Code: dbtype.TINYINT, Unsigned: true},
	{Code: dbtype.SMALLINT},
	{Code: dbtype.SMALLINT, Unsigned: true},
	{Code: dbtype.MEDIUMINT, Unsigned: true},
	{Code: dbtype.INTEGER},
	{Code: dbtype.INTEGER, Unsigned: true},
	{Code: dbtype.BIGINT},
	{Code: dbtype.BIGINT, Unsigned: true},
	{Code: dbtype.DECIMAL},
	{Code: dbtype.REAL},
	{Code: dbtype.DOUBLE},
	{Code: dbtype.DATE},
	{Code: dbtype.TIME},
	{Code: dbtype.TIMESTAMP_TZ},
	{Code: dbtype.VARCHAR},
	{Code: dbtype.CLOB},
	{Code: dbtype.BLOB},
	{Code: dbtype.ARRAY},
	{Code: dbtype.OTHER},
}

func queryOneRow(t *testing.T, values ...driver.Value) (*sql.Rows, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	columns := make([]string, len(values))
	for i := range values {
		columns[i] = string(rune('a' + i%26))
	}
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows(columns).AddRow(values...))
	rows, err := db.Query("SELECT * FROM t")
	require.NoError(t, err)
	require.True(t, rows.Next())
	return rows, func() {
		rows.Close()
		db.Close()
	}
}

func TestNullPrecedenceForEveryType(t *testing.T) {
	for _, dbType := range constants.SupportedDatabaseTypes {
		c, err := ForDatabaseType(dbType)
		require.NoError(t, err)
		nulls := make([]driver.Value, len(allTypes))
		rows, done := queryOneRow(t, nulls...)
		values, err := c.NewRowReader(allTypes).ReadRow(rows)
		done()
		require.NoError(t, err, dbType)
		for i, v := range values {
			assert.Nil(t, v, "%s: %s", dbType, allTypes[i].Code)
		}
	}
}

func TestStandardMapping(t *testing.T) {
	c, err := ForDatabaseType(constants.SQLITE)
	require.NoError(t, err)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	blob := []byte{1, 2}
	rows, done := queryOneRow(t,
		true, int64(1), int64(-5), int64(255), int64(-300), int64(65535), int64(16777215),
		int64(-7), int64(4294967295), int64(-9), []byte("18446744073709551615"), []byte("12.30"),
		float64(1.5), float64(2.25), ts, []byte("12:34:56"), ts, "abc", "long text", blob,
		"{1,2}", "plain")
	defer done()

	values, err := c.NewRowReader(allTypes).ReadRow(rows)
	require.NoError(t, err)
	expected := []interface{}{
		true, true, int16(-5), int16(255), int16(-300), int32(65535), int32(16777215),
		int32(-7), int64(4294967295), int64(-9), "18446744073709551615", "12.30",
		float32(1.5), float64(2.25), ts, "12:34:56", ts, "abc", "long text", []byte{1, 2},
		"{1,2}", "plain",
	}
	assert.Equal(t, expected, values)

	blob[0] = 9
	assert.Equal(t, []byte{1, 2}, values[19])
}

func TestMalformedUnsignedBigint(t *testing.T) {
	c, err := ForDatabaseType(constants.MYSQL)
	require.NoError(t, err)
	rows, done := queryOneRow(t, []byte("-1"))
	defer done()
	_, err = c.NewRowReader([]dbtype.ColumnType{{Code: dbtype.BIGINT, Name: "BIGINT", Unsigned: true}}).ReadRow(rows)
	assert.ErrorContains(t, err, "malformed unsigned bigint")
}

func TestIntegerOverflowIsAnError(t *testing.T) {
	c, err := ForDatabaseType(constants.POSTGRESQL)
	require.NoError(t, err)
	rows, done := queryOneRow(t, int64(70000))
	defer done()
	_, err = c.NewRowReader([]dbtype.ColumnType{{Code: dbtype.SMALLINT}}).ReadRow(rows)
	assert.Error(t, err)
}

func TestMySQLBitOverride(t *testing.T) {
	c, err := ForDatabaseType(constants.MYSQL)
	require.NoError(t, err)
	flag := dbtype.ColumnType{Code: dbtype.BIT, Name: "BIT", Length: 1}

	v, err := c.ReadValue(flag, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, true, v)
	v, err = c.ReadValue(flag, nil)
	require.NoError(t, err)
	assert.Nil(t, v)
	_, err = c.ReadValue(flag, []byte{5})
	assert.Error(t, err)

	// Wider and undeclared widths read as int64 for every value, including 0 and 1.
	for _, bits := range []dbtype.ColumnType{{Code: dbtype.BIT, Name: "BIT", Length: 8}, {Code: dbtype.BIT, Name: "BIT"}} {
		v, err = c.ReadValue(bits, []byte{1})
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)
		v, err = c.ReadValue(bits, []byte{5})
		require.NoError(t, err)
		assert.Equal(t, int64(5), v)
		v, err = c.ReadValue(bits, []byte{1, 0})
		require.NoError(t, err)
		assert.Equal(t, int64(256), v)
	}
}

func TestPostgresBitOverride(t *testing.T) {
	c, err := ForDatabaseType(constants.YUGABYTEDB)
	require.NoError(t, err)
	bit := dbtype.ColumnType{Code: dbtype.BIT, Name: "BIT"}
	v, err := c.ReadValue(bit, "1")
	require.NoError(t, err)
	assert.Equal(t, true, v)
	v, err = c.ReadValue(bit, "0101")
	require.NoError(t, err)
	assert.Equal(t, "0101", v)
}

func TestGenericBranchCopiesBytes(t *testing.T) {
	c, err := ForDatabaseType(constants.POSTGRESQL)
	require.NoError(t, err)
	src := []byte(`{"a":1}`)
	v, err := c.ReadValue(dbtype.ColumnType{Code: dbtype.OTHER, Name: "JSONB"}, src)
	require.NoError(t, err)
	src[0] = 'x'
	assert.Equal(t, []byte(`{"a":1}`), v)
}

func TestUnknownDatabaseType(t *testing.T) {
	_, err := ForDatabaseType("db2")
	assert.Error(t, err)
}
