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

const DIGEST_FAMILY_MYSQL_CRC32 = "mysql_crc32"

type mysqlBuilder struct {
	*commonBuilder
}

func newMySQLBuilder() *mysqlBuilder {
	return &mysqlBuilder{
		commonBuilder: &commonBuilder{dbType: constants.MYSQL, supportsSchema: false, limitClause: limitClause},
	}
}

func (b *mysqlBuilder) BuildUpsertSQL(schema string, r *record.DataRecord) (string, bool) {
	keys := r.UniqueKeyColumns()
	if len(keys) == 0 {
		return "", false
	}
	updateColumns := nonKeyColumns(r)
	if len(updateColumns) == 0 {
		updateColumns = keys
	}
	updates := lo.Map(updateColumns, func(c record.Column, _ int) string {
		name := b.QuoteIdentifier(c.Name)
		return fmt.Sprintf("%s=VALUES(%s)", name, name)
	})
	return fmt.Sprintf("%s ON DUPLICATE KEY UPDATE %s", b.BuildInsertSQL(schema, r), strings.Join(updates, ",")), true
}

func (b *mysqlBuilder) BuildEstimatedCountSQL(schema, table string) (string, bool) {
	return fmt.Sprintf("SELECT TABLE_ROWS FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = %s",
		quoteLiteral(table)), true
}

func (b *mysqlBuilder) BuildCRC32SQL(schema, table, column string) (string, bool) {
	return fmt.Sprintf("SELECT BIT_XOR(CAST(CRC32(%s) AS UNSIGNED)) AS checksum, COUNT(1) AS cnt FROM %s",
		b.QuoteIdentifier(column), b.QualifiedTableName(schema, table)), true
}

func (b *mysqlBuilder) DigestFamily() string {
	return DIGEST_FAMILY_MYSQL_CRC32
}

func (b *mysqlBuilder) BuildTableColumnsSQL(schema, table string) (string, []interface{}) {
	query := `SELECT c.COLUMN_NAME, c.COLUMN_TYPE, COALESCE(k.ORDINAL_POSITION, 0) AS pk_position,
	CASE WHEN c.EXTRA IN ('VIRTUAL GENERATED', 'STORED GENERATED') THEN 1 ELSE 0 END AS is_generated, c.NUMERIC_SCALE,
	CASE WHEN c.EXTRA LIKE '%INVISIBLE%' THEN 0 ELSE 1 END AS is_visible
FROM information_schema.COLUMNS c
LEFT JOIN information_schema.KEY_COLUMN_USAGE k
	ON k.TABLE_SCHEMA = c.TABLE_SCHEMA AND k.TABLE_NAME = c.TABLE_NAME
	AND k.COLUMN_NAME = c.COLUMN_NAME AND k.CONSTRAINT_NAME = 'PRIMARY'
WHERE c.TABLE_SCHEMA = DATABASE() AND c.TABLE_NAME = ?
ORDER BY c.ORDINAL_POSITION`
	return query, []interface{}{table}
}
