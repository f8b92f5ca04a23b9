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

package dbtype

// SQLType is the engine-neutral type code every native column type is mapped to.
// The set mirrors the JDBC java.sql.Types constants the engines document their
// type mappings against, plus MEDIUMINT which needs its own unsigned promotion.
type SQLType int

const (
	OTHER SQLType = iota
	BOOLEAN
	BIT
	TINYINT
	SMALLINT
	MEDIUMINT
	INTEGER
	BIGINT
	DECIMAL
	NUMERIC
	REAL
	FLOAT
	DOUBLE
	DATE
	TIME
	TIMESTAMP
	TIMESTAMP_TZ
	CHAR
	VARCHAR
	LONGVARCHAR
	NCHAR
	NVARCHAR
	CLOB
	BINARY
	VARBINARY
	LONGVARBINARY
	BLOB
	ARRAY
)

var sqlTypeNames = map[SQLType]string{
	OTHER:         "OTHER",
	BOOLEAN:       "BOOLEAN",
	BIT:           "BIT",
	TINYINT:       "TINYINT",
	SMALLINT:      "SMALLINT",
	MEDIUMINT:     "MEDIUMINT",
	INTEGER:       "INTEGER",
	BIGINT:        "BIGINT",
	DECIMAL:       "DECIMAL",
	NUMERIC:       "NUMERIC",
	REAL:          "REAL",
	FLOAT:         "FLOAT",
	DOUBLE:        "DOUBLE",
	DATE:          "DATE",
	TIME:          "TIME",
	TIMESTAMP:     "TIMESTAMP",
	TIMESTAMP_TZ:  "TIMESTAMP_TZ",
	CHAR:          "CHAR",
	VARCHAR:       "VARCHAR",
	LONGVARCHAR:   "LONGVARCHAR",
	NCHAR:         "NCHAR",
	NVARCHAR:      "NVARCHAR",
	CLOB:          "CLOB",
	BINARY:        "BINARY",
	VARBINARY:     "VARBINARY",
	LONGVARBINARY: "LONGVARBINARY",
	BLOB:          "BLOB",
	ARRAY:         "ARRAY",
}

func (t SQLType) String() string {
	if name, ok := sqlTypeNames[t]; ok {
		return name
	}
	return "OTHER"
}

func (t SQLType) IsInteger() bool {
	switch t {
	case TINYINT, SMALLINT, MEDIUMINT, INTEGER, BIGINT:
		return true
	}
	return false
}

func (t SQLType) IsDecimal() bool {
	return t == DECIMAL || t == NUMERIC
}

func (t SQLType) IsString() bool {
	switch t {
	case CHAR, VARCHAR, LONGVARCHAR, NCHAR, NVARCHAR, CLOB:
		return true
	}
	return false
}

// ColumnType is a resolved native column type.
type ColumnType struct {
	Code     SQLType
	Name     string
	Unsigned bool
	// Length is the single declared width, as in BIT(8) or VARCHAR(20); 0 when none was declared.
	Length int
}

// standardTypes covers the native names shared by the supported engines. Dialect
// specific names and meanings live in each Descriptor's overrides.
var standardTypes = map[string]SQLType{
	"BOOLEAN":           BOOLEAN,
	"BOOL":              BOOLEAN,
	"BIT":               BIT,
	"TINYINT":           TINYINT,
	"SMALLINT":          SMALLINT,
	"INT2":              SMALLINT,
	"MEDIUMINT":         MEDIUMINT,
	"INT":               INTEGER,
	"INTEGER":           INTEGER,
	"INT4":              INTEGER,
	"BIGINT":            BIGINT,
	"INT8":              BIGINT,
	"DECIMAL":           DECIMAL,
	"NUMERIC":           NUMERIC,
	"NUMBER":            DECIMAL,
	"REAL":              REAL,
	"FLOAT4":            REAL,
	"FLOAT":             FLOAT,
	"DOUBLE":            DOUBLE,
	"DOUBLE PRECISION":  DOUBLE,
	"FLOAT8":            DOUBLE,
	"DATE":              DATE,
	"TIME":              TIME,
	"TIMESTAMP":         TIMESTAMP,
	"DATETIME":          TIMESTAMP,
	"TIMESTAMPTZ":       TIMESTAMP_TZ,
	"CHAR":              CHAR,
	"CHARACTER":         CHAR,
	"BPCHAR":            CHAR,
	"NCHAR":             NCHAR,
	"VARCHAR":           VARCHAR,
	"CHARACTER VARYING": VARCHAR,
	"NVARCHAR":          NVARCHAR,
	"TEXT":              LONGVARCHAR,
	"CLOB":              CLOB,
	"BINARY":            BINARY,
	"VARBINARY":         VARBINARY,
	"BLOB":              BLOB,
}
