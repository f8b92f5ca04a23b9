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

import (
	"strconv"
	"strings"

	"github.com/godror/godror"
	"github.com/samber/lo"

	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/errs"
)

type BindStyle int

const (
	BIND_QUESTION BindStyle = iota // ?
	BIND_DOLLAR                    // $1
	BIND_COLON                     // :1
)

// Descriptor is everything the pipeline needs to know about one database type
// that is not SQL text. SQL text is produced by the sqlbuilder package.
type Descriptor struct {
	DatabaseType   string
	DriverName     string
	BindStyle      BindStyle
	DefaultSchema  string
	SupportsSchema bool
	overrides      map[string]SQLType
}

var descriptors = map[string]*Descriptor{
	constants.POSTGRESQL: {
		DatabaseType:   constants.POSTGRESQL,
		DriverName:     "pgx",
		BindStyle:      BIND_DOLLAR,
		DefaultSchema:  "public",
		SupportsSchema: true,
		overrides: map[string]SQLType{
			"BYTEA":                    BLOB,
			"TIMESTAMP WITH TIME ZONE": TIMESTAMP_TZ,
			"TIMETZ":                   TIME,
		},
	},
	constants.YUGABYTEDB: {
		DatabaseType:   constants.YUGABYTEDB,
		DriverName:     "pgx",
		BindStyle:      BIND_DOLLAR,
		DefaultSchema:  "public",
		SupportsSchema: true,
		overrides: map[string]SQLType{
			"BYTEA":                    BLOB,
			"TIMESTAMP WITH TIME ZONE": TIMESTAMP_TZ,
			"TIMETZ":                   TIME,
		},
	},
	constants.MYSQL: {
		DatabaseType:   constants.MYSQL,
		DriverName:     "mysql",
		BindStyle:      BIND_QUESTION,
		SupportsSchema: false,
		overrides: map[string]SQLType{
			"YEAR":       SMALLINT,
			"TINYTEXT":   VARCHAR,
			"MEDIUMTEXT": LONGVARCHAR,
			"LONGTEXT":   LONGVARCHAR,
			"TINYBLOB":   VARBINARY,
			"MEDIUMBLOB": LONGVARBINARY,
			"LONGBLOB":   LONGVARBINARY,
			"ENUM":       CHAR,
			"SET":        CHAR,
		},
	},
	constants.ORACLE: {
		DatabaseType:   constants.ORACLE,
		DriverName:     "godror",
		BindStyle:      BIND_COLON,
		SupportsSchema: true,
		overrides: map[string]SQLType{
			"VARCHAR2":                       VARCHAR,
			"NVARCHAR2":                      NVARCHAR,
			"LONG":                           LONGVARCHAR,
			"NCLOB":                          CLOB,
			"RAW":                            VARBINARY,
			"LONG RAW":                       LONGVARBINARY,
			"BINARY_FLOAT":                   REAL,
			"BINARY_DOUBLE":                  DOUBLE,
			"DATE":                           TIMESTAMP,
			"TIMESTAMP WITH TIME ZONE":       TIMESTAMP_TZ,
			"TIMESTAMP WITH LOCAL TIME ZONE": TIMESTAMP_TZ,
		},
	},
	constants.SQLITE: {
		DatabaseType:   constants.SQLITE,
		DriverName:     "sqlite3",
		BindStyle:      BIND_QUESTION,
		SupportsSchema: false,
		overrides: map[string]SQLType{
			// sqlite integers are always 64 bit
			"INT":     BIGINT,
			"INTEGER": BIGINT,
			"":        OTHER,
		},
	},
}

func Get(dbType string) (*Descriptor, error) {
	d, ok := descriptors[strings.ToLower(dbType)]
	if !ok {
		return nil, errs.NewParameterError("unsupported database type %q. Supported types = %v", dbType, SupportedDatabaseTypes())
	}
	return d, nil
}

func SupportedDatabaseTypes() []string {
	return constants.SupportedDatabaseTypes
}

// ResolveColumnType maps the name reported by sql.ColumnType.DatabaseTypeName (or a
// catalog query) to a ColumnType. Length and precision suffixes are ignored.
func (d *Descriptor) ResolveColumnType(nativeName string) ColumnType {
	name := normalizeTypeName(nativeName)
	unsigned := false
	if strings.HasPrefix(name, "UNSIGNED ") {
		unsigned = true
		name = strings.TrimPrefix(name, "UNSIGNED ")
	}
	if strings.HasSuffix(name, " UNSIGNED") {
		unsigned = true
		name = strings.TrimSuffix(name, " UNSIGNED")
	}
	result := ColumnType{Name: name, Unsigned: unsigned, Code: OTHER, Length: declaredLength(nativeName)}
	if code, ok := d.overrides[name]; ok {
		result.Code = code
		return result
	}
	if code, ok := standardTypes[name]; ok {
		result.Code = code
		return result
	}
	if strings.HasPrefix(name, "_") || strings.HasSuffix(name, "[]") {
		result.Code = ARRAY
	}
	return result
}

func declaredLength(name string) int {
	open := strings.Index(name, "(")
	if open < 0 {
		return 0
	}
	closing := strings.Index(name[open:], ")")
	if closing < 0 {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(name[open+1 : open+closing]))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func normalizeTypeName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if i := strings.Index(name, "("); i >= 0 {
		closing := strings.Index(name[i:], ")")
		if closing >= 0 {
			name = name[:i] + name[i+closing+1:]
		} else {
			name = name[:i]
		}
	}
	return strings.Join(strings.Fields(name), " ")
}

// Rebind rewrites canonical '?' placeholders into the driver's bind style.
// Placeholders inside quoted literals and quoted identifiers are left alone.
func (d *Descriptor) Rebind(query string) string {
	if d.BindStyle == BIND_QUESTION {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	var quote rune
	for _, c := range query {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '?':
			n++
			if d.BindStyle == BIND_DOLLAR {
				sb.WriteString("$" + strconv.Itoa(n))
			} else {
				sb.WriteString(":" + strconv.Itoa(n))
			}
			continue
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

// QueryOptions returns extra driver arguments that make a streaming read fetch
// fetchSize rows per round trip. Engines whose drivers already stream get none.
func (d *Descriptor) QueryOptions(fetchSize int) []interface{} {
	if d.DatabaseType != constants.ORACLE || fetchSize <= 0 {
		return nil
	}
	return []interface{}{godror.FetchArraySize(fetchSize), godror.PrefetchCount(fetchSize + 1)}
}

func (d *Descriptor) IsPostgresFamily() bool {
	return lo.Contains([]string{constants.POSTGRESQL, constants.YUGABYTEDB}, d.DatabaseType)
}
