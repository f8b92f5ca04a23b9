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
	"encoding/binary"
	"fmt"

	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/dbtype"
)

// An override returns false when the standard mapping applies.
type override func(col dbtype.ColumnType) (valueCodec, bool)

var dialectOverrides = map[string]override{
	constants.MYSQL:      mysqlOverride,
	constants.POSTGRESQL: postgresOverride,
	constants.YUGABYTEDB: postgresOverride,
}

// MySQL returns BIT(n) as big endian bytes. BIT(1) reads as bool, any other or
// undeclared width as int64.
func mysqlOverride(col dbtype.ColumnType) (valueCodec, bool) {
	if col.Code != dbtype.BIT {
		return valueCodec{}, false
	}
	return nullCodec(func(b []byte) (interface{}, error) {
		if len(b) > 8 {
			return nil, fmt.Errorf("bit value of %d bytes does not fit in 64 bits", len(b))
		}
		if col.Length == 1 {
			if len(b) != 1 || b[0] > 1 {
				return nil, fmt.Errorf("bit(1) value %x is not 0 or 1", b)
			}
			return b[0] == 1, nil
		}
		padded := make([]byte, 8)
		copy(padded[8-len(b):], b)
		return int64(binary.BigEndian.Uint64(padded)), nil
	}), true
}

// PostgreSQL bit strings are text like "0101"; only bit(1) maps cleanly to bool.
func postgresOverride(col dbtype.ColumnType) (valueCodec, bool) {
	if col.Code != dbtype.BIT {
		return valueCodec{}, false
	}
	return nullCodec(func(s string) (interface{}, error) {
		switch s {
		case "0":
			return false, nil
		case "1":
			return true, nil
		}
		return s, nil
	}), true
}
