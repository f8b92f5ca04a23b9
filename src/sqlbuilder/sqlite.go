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
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/record"
)

type sqliteBuilder struct {
	*commonBuilder
}

func newSQLiteBuilder() *sqliteBuilder {
	return &sqliteBuilder{
		commonBuilder: &commonBuilder{dbType: constants.SQLITE, supportsSchema: false, limitClause: limitClause},
	}
}

func (b *sqliteBuilder) BuildUpsertSQL(schema string, r *record.DataRecord) (string, bool) {
	keys := r.UniqueKeyColumns()
	if len(keys) == 0 {
		return "", false
	}
	conflict := strings.Join(lo.Map(keys, func(c record.Column, _ int) string { return b.QuoteIdentifier(c.Name) }), ",")
	updates := lo.Map(nonKeyColumns(r), func(c record.Column, _ int) string {
		name := b.QuoteIdentifier(c.Name)
		return fmt.Sprintf("%s = excluded.%s", name, name)
	})
	action := "DO NOTHING"
	if len(updates) > 0 {
		action = "DO UPDATE SET " + strings.Join(updates, ",")
	}
	return fmt.Sprintf("%s ON CONFLICT(%s) %s", b.BuildInsertSQL(schema, r), conflict, action), true
}

func (b *sqliteBuilder) BuildEstimatedCountSQL(schema, table string) (string, bool) {
	return "", false
}

func (b *sqliteBuilder) BuildCRC32SQL(schema, table, column string) (string, bool) {
	return "", false
}

func (b *sqliteBuilder) DigestFamily() string {
	return ""
}

func (b *sqliteBuilder) BuildTableColumnsSQL(schema, table string) (string, []interface{}) {
	return "SELECT name, type, pk, CASE WHEN hidden IN (2, 3) THEN 1 ELSE 0 END, NULL, CASE WHEN hidden = 1 THEN 0 ELSE 1 END FROM pragma_table_xinfo(?) ORDER BY cid",
		[]interface{}{table}
}
