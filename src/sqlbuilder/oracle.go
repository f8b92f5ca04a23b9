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

	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/record"
)

const DIGEST_FAMILY_ORACLE_ORA_HASH = "oracle_ora_hash"

type oracleBuilder struct {
	*commonBuilder
}

func newOracleBuilder() *oracleBuilder {
	return &oracleBuilder{
		commonBuilder: &commonBuilder{
			dbType:         constants.ORACLE,
			supportsSchema: true,
			limitClause: func(limit int) string {
				return fmt.Sprintf("FETCH FIRST %d ROWS ONLY", limit)
			},
		},
	}
}

// MERGE needs a source row set per statement; the importer falls back to delete + insert.
func (b *oracleBuilder) BuildUpsertSQL(schema string, r *record.DataRecord) (string, bool) {
	return "", false
}

func (b *oracleBuilder) BuildDropSQL(schema, table string) string {
	return fmt.Sprintf("DROP TABLE %s CASCADE CONSTRAINTS", b.QualifiedTableName(schema, table))
}

func (b *oracleBuilder) BuildEstimatedCountSQL(schema, table string) (string, bool) {
	if schema == "" {
		return fmt.Sprintf("SELECT NUM_ROWS FROM USER_TABLES WHERE TABLE_NAME = %s", quoteLiteral(table)), true
	}
	return fmt.Sprintf("SELECT NUM_ROWS FROM ALL_TABLES WHERE OWNER = %s AND TABLE_NAME = %s",
		quoteLiteral(schema), quoteLiteral(table)), true
}

func (b *oracleBuilder) BuildCRC32SQL(schema, table, column string) (string, bool) {
	return fmt.Sprintf("SELECT SUM(ORA_HASH(%s)) AS checksum, COUNT(1) AS cnt FROM %s",
		b.QuoteIdentifier(column), b.QualifiedTableName(schema, table)), true
}

func (b *oracleBuilder) DigestFamily() string {
	return DIGEST_FAMILY_ORACLE_ORA_HASH
}

func (b *oracleBuilder) BuildTableColumnsSQL(schema, table string) (string, []interface{}) {
	query := `SELECT c.COLUMN_NAME, c.DATA_TYPE, NVL(pk.POSITION, 0) AS pk_position,
	CASE WHEN c.VIRTUAL_COLUMN = 'YES' THEN 1 ELSE 0 END AS is_generated, c.DATA_SCALE,
	CASE WHEN c.HIDDEN_COLUMN = 'YES' THEN 0 ELSE 1 END AS is_visible
FROM ALL_TAB_COLS c
LEFT JOIN (
	SELECT cc.COLUMN_NAME, cc.POSITION FROM ALL_CONSTRAINTS con
	JOIN ALL_CONS_COLUMNS cc ON cc.OWNER = con.OWNER AND cc.CONSTRAINT_NAME = con.CONSTRAINT_NAME
	WHERE con.CONSTRAINT_TYPE = 'P' AND con.OWNER = ? AND con.TABLE_NAME = ?
) pk ON pk.COLUMN_NAME = c.COLUMN_NAME
WHERE c.OWNER = ? AND c.TABLE_NAME = ? AND c.USER_GENERATED = 'YES'
ORDER BY c.COLUMN_ID`
	return query, []interface{}{schema, table, schema, table}
}
