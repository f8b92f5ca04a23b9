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

package sqlname

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"github.com/samber/lo"
)

const (
	YUGABYTEDB = "yugabytedb"
	POSTGRESQL = "postgresql"
	ORACLE     = "oracle"
	MYSQL      = "mysql"
	SQLITE     = "sqlite"
)

var (
	simpleIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

	// Keywords that must always be quoted when used as identifiers. Not exhaustive per dialect,
	// only the words that show up as table or column names in practice.
	reservedKeywords = lo.SliceToMap([]string{
		"all", "alter", "and", "as", "asc", "between", "by", "case", "check", "column", "constraint",
		"create", "default", "delete", "desc", "distinct", "drop", "else", "end", "from", "grant", "group",
		"having", "in", "index", "insert", "into", "is", "join", "key", "like", "limit", "not", "null",
		"on", "or", "order", "primary", "references", "select", "set", "table", "then", "to", "union",
		"unique", "update", "user", "values", "when", "where", "with",
	}, func(s string) (string, bool) { return s, true })
)

// Identifier is a single (unqualified) SQL name in its three renderings for one dialect.
type Identifier struct {
	Quoted    string
	Unquoted  string
	MinQuoted string
}

func NewIdentifier(dbType, name string) Identifier {
	unquoted := unquote(name)
	return Identifier{
		Quoted:    quote(dbType, unquoted),
		Unquoted:  unquoted,
		MinQuoted: MinQuote(dbType, unquoted),
	}
}

type ObjectName struct {
	SchemaName  string
	Unqualified Identifier
	Qualified   Identifier
}

// NewObjectName builds a table name. An empty schemaName yields an unqualified name.
func NewObjectName(dbType, schemaName, tableName string) *ObjectName {
	unqualified := NewIdentifier(dbType, tableName)
	result := &ObjectName{
		SchemaName:  unquote(schemaName),
		Unqualified: unqualified,
		Qualified:   unqualified,
	}
	if schemaName != "" {
		schema := NewIdentifier(dbType, schemaName)
		result.Qualified = Identifier{
			Quoted:    schema.Quoted + "." + unqualified.Quoted,
			Unquoted:  schema.Unquoted + "." + unqualified.Unquoted,
			MinQuoted: schema.MinQuoted + "." + unqualified.MinQuoted,
		}
	}
	return result
}

// NewObjectNameWithQualifiedName accepts "table" or "schema.table".
func NewObjectNameWithQualifiedName(dbType, defaultSchemaName, objName string) *ObjectName {
	parts := strings.Split(objName, ".")
	switch len(parts) {
	case 1:
		return NewObjectName(dbType, defaultSchemaName, parts[0])
	case 2:
		return NewObjectName(dbType, parts[0], parts[1])
	default:
		panic(fmt.Sprintf("invalid qualified name: %s", objName))
	}
}

func (o *ObjectName) String() string {
	return o.Qualified.MinQuoted
}

func (o *ObjectName) Key() string {
	return o.Qualified.Unquoted
}

// MinQuote returns name as-is when the dialect reads it back unchanged without quotes.
//
// PostgreSQL and YugabyteDB fold unquoted names to lower case, so any upper case
// character forces quoting. Oracle folds to upper case; names written entirely in
// one case are left bare and mixed case is quoted. MySQL and SQLite keep the case.
func MinQuote(dbType, name string) string {
	name = unquote(name)
	if !simpleIdentifier.MatchString(name) || IsReservedKeyword(name) {
		return quote(dbType, name)
	}
	switch dbType {
	case POSTGRESQL, YUGABYTEDB:
		if !isAllLowercase(name) {
			return quote(dbType, name)
		}
	case ORACLE:
		if !isAllLowercase(name) && !isAllUppercase(name) {
			return quote(dbType, name)
		}
	case MYSQL, SQLITE:
	default:
		panic(fmt.Sprintf("unknown db type %q", dbType))
	}
	return name
}

func IsReservedKeyword(name string) bool {
	return reservedKeywords[strings.ToLower(name)]
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	return (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '`' && s[len(s)-1] == '`')
}

func quote(dbType, s string) string {
	switch dbType {
	case POSTGRESQL, YUGABYTEDB, SQLITE:
		return pq.QuoteIdentifier(s)
	case ORACLE:
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	case MYSQL:
		return "`" + strings.ReplaceAll(s, "`", "``") + "`"
	default:
		panic(fmt.Sprintf("unknown db type %q", dbType))
	}
}

func unquote(s string) string {
	if isQuoted(s) {
		return s[1 : len(s)-1]
	}
	return s
}

func isAllUppercase(s string) bool {
	for _, c := range s {
		if c >= 'a' && c <= 'z' {
			return false
		}
	}
	return true
}

func isAllLowercase(s string) bool {
	for _, c := range s {
		if c >= 'A' && c <= 'Z' {
			return false
		}
	}
	return true
}
