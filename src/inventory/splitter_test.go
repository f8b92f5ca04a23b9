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

package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/dbtype"
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/metadata"
	"github.com/yugabyte/yb-datamover/src/position"
)

func encodeAll(positions []position.Position) []string {
	result := make([]string, len(positions))
	for i, p := range positions {
		result[i] = position.Encode(p)
	}
	return result
}

func TestSplitIntRange(t *testing.T) {
	assert.Equal(t, []string{"i,1,"}, encodeAll(splitIntRange(1, 10, 100)))
	assert.Equal(t, []string{"i,1,1", "i,2,"}, encodeAll(splitIntRange(1, 2, 1)))
	assert.Equal(t, []string{"i,0,9", "i,10,19", "i,20,"}, encodeAll(splitIntRange(0, 25, 10)))
	assert.Equal(t, []string{"i,-5,4", "i,5,"}, encodeAll(splitIntRange(-5, 5, 10)))
}

func TestSplitTableOnSqlite(t *testing.T) {
	db := openSqliteWith(t, "source.db",
		`CREATE TABLE t_order (order_id INTEGER PRIMARY KEY, status VARCHAR(20))`,
		`CREATE TABLE t_empty (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE t_code (code VARCHAR(10) PRIMARY KEY, label TEXT)`,
		`CREATE TABLE t_log (line TEXT)`,
		`INSERT INTO t_order VALUES (3, 'a'), (10, 'b'), (27, 'c')`)
	loader, err := metadata.NewCatalogLoader(db, constants.SQLITE)
	require.NoError(t, err)
	ctx := context.Background()

	split := func(table string) []string {
		md, err := loader.Load(ctx, "", table)
		require.NoError(t, err)
		positions, err := SplitTable(ctx, db, md, 10)
		require.NoError(t, err)
		return encodeAll(positions)
	}
	assert.Equal(t, []string{"i,3,12", "i,13,22", "i,23,"}, split("t_order"))
	assert.Equal(t, []string{"i,,"}, split("t_empty"))
	assert.Equal(t, []string{"s,,"}, split("t_code"))
	assert.Equal(t, []string{"u,,"}, split("t_log"))
}

func TestSplitTableRejectsNonPositiveSize(t *testing.T) {
	md := metadata.NewTableMetaData(constants.MYSQL, "", "t", []*metadata.ColumnMetaData{
		{Name: "id", Type: dbtype.ColumnType{Code: dbtype.BIGINT}, PrimaryKey: true, Visible: true},
	}, []string{"id"})
	_, err := SplitTable(context.Background(), nil, md, 0)
	assert.True(t, errs.IsParameterError(err))
}
