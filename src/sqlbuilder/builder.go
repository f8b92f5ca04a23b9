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
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/record"
	"github.com/yugabyte/yb-datamover/src/utils/sqlname"
)

// PipelineSQLBuilder generates every statement the pipeline runs against one database type.
// All statements use '?' placeholders; callers rebind them with dbtype.Descriptor.Rebind.
// An empty schema means the table name is used unqualified.
type PipelineSQLBuilder interface {
	DatabaseType() string
	QuoteIdentifier(name string) string
	QualifiedTableName(schema, table string) string

	// Dump statements. A columns list of ["*"] is emitted literally.
	BuildDivisibleDumpSQL(schema, table string, columns []string, uniqueKey string) string
	BuildDivisibleDumpSQLNoEnd(schema, table string, columns []string, uniqueKey string) string
	BuildIndivisibleDumpSQL(schema, table string, columns []string, uniqueKey string) string
	BuildNoUniqueKeyDumpSQL(schema, table string, columns []string) string
	BuildUniqueKeyMinMaxSQL(schema, table, uniqueKey string) string

	// Import statements.
	BuildInsertSQL(schema string, r *record.DataRecord) string
	BuildUpsertSQL(schema string, r *record.DataRecord) (string, bool)
	BuildUpdateSQL(schema string, r *record.DataRecord, conditionColumns []record.Column) string
	BuildDeleteSQL(schema string, r *record.DataRecord, conditionColumns []record.Column) string
	BuildDropSQL(schema, table string) string

	// Consistency check statements.
	BuildCountSQL(schema, table string) string
	BuildEstimatedCountSQL(schema, table string) (string, bool)
	BuildCRC32SQL(schema, table, column string) (string, bool)
	DigestFamily() string
	BuildQueryAllOrderingSQL(schema, table string, columns []string, uniqueKey string, firstQuery bool, limit int) string

	// BuildTableColumnsSQL returns a catalog query yielding, in ordinal order, one row per
	// column: name, native type, primary key ordinal (0 if not part of it), generated (0/1)
	// numeric scale (NULL when not numeric) and visible (0/1).
	BuildTableColumnsSQL(schema, table string) (string, []interface{})
}

var builders = map[string]PipelineSQLBuilder{
	constants.POSTGRESQL: newPostgresBuilder(constants.POSTGRESQL),
	constants.YUGABYTEDB: newPostgresBuilder(constants.YUGABYTEDB),
	constants.MYSQL:      newMySQLBuilder(),
	constants.ORACLE:     newOracleBuilder(),
	constants.SQLITE:     newSQLiteBuilder(),
}

func Get(dbType string) (PipelineSQLBuilder, error) {
	b, ok := builders[strings.ToLower(dbType)]
	if !ok {
		return nil, errs.NewParameterError("no SQL builder for database type %q", dbType)
	}
	return b, nil
}

// UpdateArgs orders bind values to match BuildUpdateSQL.
func UpdateArgs(r *record.DataRecord, conditionColumns []record.Column) []interface{} {
	args := lo.Map(setColumns(r, conditionColumns), func(c record.Column, _ int) interface{} { return c.Value })
	return append(args, ConditionArgs(conditionColumns)...)
}

func ConditionArgs(conditionColumns []record.Column) []interface{} {
	return lo.Map(conditionColumns, func(c record.Column, _ int) interface{} { return c.Value })
}

func setColumns(r *record.DataRecord, conditionColumns []record.Column) []record.Column {
	conditionNames := lo.SliceToMap(conditionColumns, func(c record.Column) (string, bool) { return c.Name, true })
	return lo.Filter(r.Columns, func(c record.Column, _ int) bool { return c.Updated && !conditionNames[c.Name] })
}

// commonBuilder renders the statements whose syntax all supported engines share.
type commonBuilder struct {
	dbType         string
	supportsSchema bool
	limitClause    func(limit int) string
}

func (b *commonBuilder) DatabaseType() string {
	return b.dbType
}

func (b *commonBuilder) QuoteIdentifier(name string) string {
	return sqlname.MinQuote(b.dbType, name)
}

func (b *commonBuilder) QualifiedTableName(schema, table string) string {
	if !b.supportsSchema {
		schema = ""
	}
	return sqlname.NewObjectName(b.dbType, schema, table).Qualified.MinQuoted
}

func (b *commonBuilder) projection(columns []string) string {
	if len(columns) == 0 || (len(columns) == 1 && columns[0] == "*") {
		return "*"
	}
	return strings.Join(lo.Map(columns, func(c string, _ int) string { return b.QuoteIdentifier(c) }), ",")
}

func (b *commonBuilder) BuildDivisibleDumpSQL(schema, table string, columns []string, uniqueKey string) string {
	key := b.QuoteIdentifier(uniqueKey)
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s>=? AND %s<=? ORDER BY %s ASC",
		b.projection(columns), b.QualifiedTableName(schema, table), key, key, key)
}

func (b *commonBuilder) BuildDivisibleDumpSQLNoEnd(schema, table string, columns []string, uniqueKey string) string {
	key := b.QuoteIdentifier(uniqueKey)
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s>=? ORDER BY %s ASC",
		b.projection(columns), b.QualifiedTableName(schema, table), key, key)
}

func (b *commonBuilder) BuildIndivisibleDumpSQL(schema, table string, columns []string, uniqueKey string) string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s ASC",
		b.projection(columns), b.QualifiedTableName(schema, table), b.QuoteIdentifier(uniqueKey))
}

func (b *commonBuilder) BuildNoUniqueKeyDumpSQL(schema, table string, columns []string) string {
	return fmt.Sprintf("SELECT %s FROM %s", b.projection(columns), b.QualifiedTableName(schema, table))
}

func (b *commonBuilder) BuildUniqueKeyMinMaxSQL(schema, table, uniqueKey string) string {
	key := b.QuoteIdentifier(uniqueKey)
	return fmt.Sprintf("SELECT MIN(%s), MAX(%s) FROM %s", key, key, b.QualifiedTableName(schema, table))
}

func (b *commonBuilder) BuildInsertSQL(schema string, r *record.DataRecord) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(r.Columns)), ",")
	return fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s)",
		b.QualifiedTableName(schema, r.TableName), b.projection(r.ColumnNames()), placeholders)
}

func (b *commonBuilder) BuildUpdateSQL(schema string, r *record.DataRecord, conditionColumns []record.Column) string {
	sets := lo.Map(setColumns(r, conditionColumns), func(c record.Column, _ int) string {
		return b.QuoteIdentifier(c.Name) + " = ?"
	})
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		b.QualifiedTableName(schema, r.TableName), strings.Join(sets, ","), b.where(conditionColumns))
}

func (b *commonBuilder) BuildDeleteSQL(schema string, r *record.DataRecord, conditionColumns []record.Column) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s", b.QualifiedTableName(schema, r.TableName), b.where(conditionColumns))
}

func (b *commonBuilder) where(conditionColumns []record.Column) string {
	conditions := lo.Map(conditionColumns, func(c record.Column, _ int) string {
		return b.QuoteIdentifier(c.Name) + " = ?"
	})
	return strings.Join(conditions, " AND ")
}

func (b *commonBuilder) BuildDropSQL(schema, table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", b.QualifiedTableName(schema, table))
}

func (b *commonBuilder) BuildCountSQL(schema, table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", b.QualifiedTableName(schema, table))
}

func (b *commonBuilder) BuildQueryAllOrderingSQL(schema, table string, columns []string, uniqueKey string, firstQuery bool, limit int) string {
	key := b.QuoteIdentifier(uniqueKey)
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("SELECT %s FROM %s", b.projection(columns), b.QualifiedTableName(schema, table)))
	if !firstQuery {
		sb.WriteString(fmt.Sprintf(" WHERE %s>?", key))
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY %s ASC", key))
	if limit > 0 {
		sb.WriteString(" " + b.limitClause(limit))
	}
	return sb.String()
}

func limitClause(limit int) string {
	return fmt.Sprintf("LIMIT %d", limit)
}

func nonKeyColumns(r *record.DataRecord) []record.Column {
	return lo.Filter(r.Columns, func(c record.Column, _ int) bool { return !c.UniqueKey })
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
