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

package consistency

import (
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"math/big"
	"strconv"
	"time"
)

const nullToken = "\x00NULL"

// Canonical renders a codec value so that equal data read from different engines renders
// identically: numbers by exact rational value, booleans as 0 or 1, instants in UTC.
func Canonical(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return nullToken
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float32:
		return canonicalNumber(strconv.FormatFloat(float64(x), 'g', -1, 32))
	case float64:
		return canonicalNumber(strconv.FormatFloat(x, 'g', -1, 64))
	case string:
		return canonicalNumber(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// canonicalNumber normalises decimal text ("1.50", "1.5e0") to one form and leaves other text alone.
func canonicalNumber(s string) string {
	if s == "" || !looksNumeric(s) {
		return s
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return s
	}
	return r.RatString()
}

func looksNumeric(s string) bool {
	for i, c := range s {
		switch {
		case c >= '0' && c <= '9', c == '.':
		case (c == '-' || c == '+') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		case c == 'e' || c == 'E':
		default:
			return false
		}
	}
	return true
}

func ValuesEqual(a, b interface{}) bool {
	return Canonical(a) == Canonical(b)
}

func RowsEqual(a, b []interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !ValuesEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// RowDigest accumulates an order independent digest of a row stream.
type RowDigest struct {
	sum   uint64
	count int64
}

func (d *RowDigest) Add(row []interface{}) {
	h := fnv.New64a()
	for _, v := range row {
		h.Write([]byte(Canonical(v)))
		h.Write([]byte{0})
	}
	d.sum += h.Sum64()
	d.count++
}

func (d *RowDigest) Count() int64 {
	return d.count
}

func (d *RowDigest) String() string {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(d.sum >> (56 - 8*i))
	}
	return fmt.Sprintf("%s/%d", hex.EncodeToString(b[:]), d.count)
}

func (d *RowDigest) Equal(other *RowDigest) bool {
	return d.sum == other.sum && d.count == other.count
}
