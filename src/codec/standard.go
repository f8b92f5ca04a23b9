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

/*
Package codec converts driver cell values into canonical Go values.

Canonical values by type code:

	BOOLEAN, BIT                          bool
	TINYINT, SMALLINT                     int16
	MEDIUMINT, INTEGER                    int32
	BIGINT                                int64
	DECIMAL, NUMERIC                      string holding the exact decimal text
	REAL                                  float32
	FLOAT, DOUBLE                         float64
	DATE, TIMESTAMP, TIMESTAMP_TZ         time.Time
	TIME                                  string (time of day, driver text form)
	character types                       string
	binary types                          []byte (owned copy)
	ARRAY                                 string (driver text form)
	anything else                         driver value as-is, byte slices copied

Unsigned integers are promoted to the smallest signed type that holds their whole range:
TINYINT to int16, SMALLINT and MEDIUMINT to int32, INTEGER to int64 and BIGINT to a
decimal string. SQL NULL is always nil regardless of the column type.
*/
package codec

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/yugabyte/yb-datamover/src/dbtype"
)

type valueCodec struct {
	newTarget func() interface{}
	decode    func(target interface{}) (interface{}, error)
}

func nullCodec[T any](convert func(T) (interface{}, error)) valueCodec {
	return valueCodec{
		newTarget: func() interface{} { return new(sql.Null[T]) },
		decode: func(target interface{}) (interface{}, error) {
			n := target.(*sql.Null[T])
			if !n.Valid {
				return nil, nil
			}
			return convert(n.V)
		},
	}
}

func identity[T any](v T) (interface{}, error) {
	return v, nil
}

func copyBytes(b []byte) (interface{}, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func unsignedBigint(s string) (interface{}, error) {
	if _, err := strconv.ParseUint(s, 10, 64); err != nil {
		return nil, fmt.Errorf("malformed unsigned bigint %q: %w", s, err)
	}
	return s, nil
}

var genericCodec = valueCodec{
	newTarget: func() interface{} { return new(interface{}) },
	decode: func(target interface{}) (interface{}, error) {
		v := *(target.(*interface{}))
		if b, ok := v.([]byte); ok {
			return copyBytes(b)
		}
		return v, nil
	},
}

func standardCodec(col dbtype.ColumnType) valueCodec {
	switch col.Code {
	case dbtype.BOOLEAN, dbtype.BIT:
		return nullCodec(identity[bool])
	case dbtype.TINYINT:
		return nullCodec(identity[int16])
	case dbtype.SMALLINT:
		if col.Unsigned {
			return nullCodec(identity[int32])
		}
		return nullCodec(identity[int16])
	case dbtype.MEDIUMINT:
		return nullCodec(identity[int32])
	case dbtype.INTEGER:
		if col.Unsigned {
			return nullCodec(identity[int64])
		}
		return nullCodec(identity[int32])
	case dbtype.BIGINT:
		if col.Unsigned {
			return nullCodec(unsignedBigint)
		}
		return nullCodec(identity[int64])
	case dbtype.DECIMAL, dbtype.NUMERIC:
		return nullCodec(identity[string])
	case dbtype.REAL:
		return nullCodec(identity[float32])
	case dbtype.FLOAT, dbtype.DOUBLE:
		return nullCodec(identity[float64])
	case dbtype.DATE, dbtype.TIMESTAMP, dbtype.TIMESTAMP_TZ:
		return nullCodec(identity[time.Time])
	case dbtype.TIME:
		return nullCodec(identity[string])
	case dbtype.CHAR, dbtype.VARCHAR, dbtype.LONGVARCHAR, dbtype.NCHAR, dbtype.NVARCHAR, dbtype.CLOB:
		return nullCodec(identity[string])
	case dbtype.BINARY, dbtype.VARBINARY, dbtype.LONGVARBINARY, dbtype.BLOB:
		return nullCodec(copyBytes)
	case dbtype.ARRAY:
		return nullCodec(identity[string])
	default:
		return genericCodec
	}
}
