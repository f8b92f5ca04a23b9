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

package codec

import (
	"database/sql"
	"fmt"

	"github.com/yugabyte/yb-datamover/src/dbtype"
)

// Codec is the value reader for one database type. Obtain it once with ForDatabaseType.
type Codec struct {
	dbType string
}

func ForDatabaseType(dbType string) (*Codec, error) {
	d, err := dbtype.Get(dbType)
	if err != nil {
		return nil, err
	}
	return &Codec{dbType: d.DatabaseType}, nil
}

func (c *Codec) codecFor(col dbtype.ColumnType) valueCodec {
	if o, ok := dialectOverrides[c.dbType]; ok {
		if vc, ok := o(col); ok {
			return vc
		}
	}
	return standardCodec(col)
}

// NewRowReader prepares per-column conversions for one result set shape.
func (c *Codec) NewRowReader(columns []dbtype.ColumnType) *RowReader {
	codecs := make([]valueCodec, len(columns))
	for i, col := range columns {
		codecs[i] = c.codecFor(col)
	}
	return &RowReader{columns: columns, codecs: codecs}
}

// ReadValue converts a single already-scanned driver value. Used where values arrive
// outside of *sql.Rows, e.g. min/max key lookups.
func (c *Codec) ReadValue(col dbtype.ColumnType, src interface{}) (interface{}, error) {
	vc := c.codecFor(col)
	target := vc.newTarget()
	scanner, ok := target.(sql.Scanner)
	if !ok {
		*(target.(*interface{})) = src
		return vc.decode(target)
	}
	if err := scanner.Scan(src); err != nil {
		return nil, fmt.Errorf("convert %T value as %s: %w", src, col.Code, err)
	}
	return vc.decode(target)
}

type RowReader struct {
	columns []dbtype.ColumnType
	codecs  []valueCodec
}

func (r *RowReader) ColumnCount() int {
	return len(r.codecs)
}

// ReadRow scans the current row of rows and returns canonical values in column order.
func (r *RowReader) ReadRow(rows *sql.Rows) ([]interface{}, error) {
	targets := make([]interface{}, len(r.codecs))
	for i, vc := range r.codecs {
		targets[i] = vc.newTarget()
	}
	if err := rows.Scan(targets...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	values := make([]interface{}, len(r.codecs))
	for i, vc := range r.codecs {
		v, err := vc.decode(targets[i])
		if err != nil {
			return nil, fmt.Errorf("read column %d (%s %s): %w", i+1, r.columns[i].Name, r.columns[i].Code, err)
		}
		values[i] = v
	}
	return values, nil
}
