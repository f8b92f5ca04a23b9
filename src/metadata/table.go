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
	"strings"

	"github.com/samber/lo"

	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/dbtype"
	"github.com/yugabyte/yb-datamover/src/position"
)

type ColumnMetaData struct {
	Name          string
	Ordinal       int
	Type          dbtype.ColumnType
	PrimaryKey    bool
	Generated     bool
	CaseSensitive bool
	Visible       bool
	// Scale is -1 when the catalog reports none.
	Scale int
}

// IsIntegral reports whether values of the column are whole numbers.
func (c *ColumnMetaData) IsIntegral() bool {
	return c.Type.Code.IsInteger() || (c.Type.Code.IsDecimal() && c.Scale == 0)
}

type TableMetaData struct {
	DatabaseType      string
	Schema            string
	Table             string
	Columns           []*ColumnMetaData
	PrimaryKeyColumns []string
}

func NewTableMetaData(dbType, schema, table string, columns []*ColumnMetaData, primaryKeyColumns []string) *TableMetaData {
	return &TableMetaData{
		DatabaseType:      dbType,
		Schema:            schema,
		Table:             table,
		Columns:           columns,
		PrimaryKeyColumns: primaryKeyColumns,
	}
}

// Column looks a column up by name. Names that are not case sensitive match ignoring case.
func (t *TableMetaData) Column(name string) (*ColumnMetaData, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	for _, c := range t.Columns {
		if !c.CaseSensitive && strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return nil, false
}

func (t *TableMetaData) ColumnNames() []string {
	return lo.Map(t.Columns, func(c *ColumnMetaData, _ int) string { return c.Name })
}

// InsertableColumnNames are the visible, non generated columns a row must provide on import.
func (t *TableMetaData) InsertableColumnNames() []string {
	cols := lo.Filter(t.Columns, func(c *ColumnMetaData, _ int) bool { return c.Visible && !c.Generated })
	return lo.Map(cols, func(c *ColumnMetaData, _ int) string { return c.Name })
}

func (t *TableMetaData) IsUniqueKey(name string) bool {
	c, ok := t.Column(name)
	return ok && c.PrimaryKey
}

// DivisibleUniqueKey returns the column inventory ranges are split on: a single column
// primary key of an integral or character type. Composite and other keys yield false.
func (t *TableMetaData) DivisibleUniqueKey() (*ColumnMetaData, position.KeyKind, bool) {
	if len(t.PrimaryKeyColumns) != 1 {
		return nil, "", false
	}
	c, ok := t.Column(t.PrimaryKeyColumns[0])
	if !ok {
		return nil, "", false
	}
	switch {
	case c.IsIntegral() && !(c.Type.Code == dbtype.BIGINT && c.Type.Unsigned):
		return c, position.INT_KEY, true
	case c.Type.Code.IsString():
		return c, position.STRING_KEY, true
	}
	return nil, "", false
}

func isCaseSensitive(dbType, name string) bool {
	switch dbType {
	case constants.POSTGRESQL, constants.YUGABYTEDB:
		return strings.ToLower(name) != name
	case constants.ORACLE:
		return strings.ToUpper(name) != name
	default:
		return false
	}
}
