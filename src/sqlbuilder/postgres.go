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

	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/yugabyte/yb-datamover/src/record"
)

const DIGEST_FAMILY_PG_MD5 = "pg_md5"

// postgresBuilder serves PostgreSQL and YugabyteDB.
type postgresBuilder struct {
	*commonBuilder
}

func newPostgresBuilder(dbType string) *postgresBuilder {
	return &postgresBuilder{
		commonBuilder: &commonBuilder{dbType: dbType, supportsSchema: true, limitClause: limitClause},
	}
}

func (b *postgresBuilder) BuildUpsertSQL(schema string, r *record.DataRecord) (string, bool) {
	keys := r.UniqueKeyColumns()
	if len(keys) == 0 {
		return "", false
	}
	conflict := strings.Join(lo.Map(keys, func(c record.Column, _ int) string { return b.QuoteIdentifier(c.Name) }), ",")
	updates := lo.Map(nonKeyColumns(r), func(c record.Column, _ int) string {
		name := b.QuoteIdentifier(c.Name)
		return fmt.Sprintf("%s = EXCLUDED.%s", name, name)
	})
	action := "DO NOTHING"
	if len(updates) > 0 {
		action = "DO UPDATE SET " + strings.Join(updates, ",")
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) %s", b.BuildInsertSQL(schema, r), conflict, action), true
}

func (b *postgresBuilder) BuildEstimatedCountSQL(schema, table string) (string, bool) {
	return fmt.Sprintf("SELECT reltuples::bigint FROM pg_class WHERE oid=%s::regclass",
		pq.QuoteLiteral(b.QualifiedTableName(schema, table))), true
}

func (b *postgresBuilder) BuildCRC32SQL(schema, table, column string) (string, bool) {
	col := b.QuoteIdentifier(column)
	return fmt.Sprintf("SELECT COALESCE(SUM(('x' || SUBSTR(MD5(CAST(%s AS TEXT)), 1, 8))::bit(32)::bigint), 0) AS checksum, COUNT(1) AS cnt FROM %s",
		col, b.QualifiedTableName(schema, table)), true
}

func (b *postgresBuilder) DigestFamily() string {
	return DIGEST_FAMILY_PG_MD5
}

func (b *postgresBuilder) BuildTableColumnsSQL(schema, table string) (string, []interface{}) {
	query := `SELECT c.column_name, c.udt_name, COALESCE(kcu.ordinal_position, 0) AS pk_position,
	CASE WHEN c.is_generated = 'ALWAYS' THEN 1 ELSE 0 END AS is_generated, c.numeric_scale, 1 AS is_visible
FROM information_schema.columns c
LEFT JOIN information_schema.table_constraints tc
	ON tc.table_schema = c.table_schema AND tc.table_name = c.table_name AND tc.constraint_type = 'PRIMARY KEY'
LEFT JOIN information_schema.key_column_usage kcu
	ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
	AND kcu.table_name = c.table_name AND kcu.column_name = c.column_name
WHERE c.table_schema = ? AND c.table_name = ?
ORDER BY c.ordinal_position`
	if schema == "" {
		schema = "public"
	}
	return query, []interface{}{schema, table}
}
