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

package record

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yugabyte/yb-datamover/src/position"
)

func TestDataRecordColumnViews(t *testing.T) {
	r := NewDataRecord(UPDATE, "t2", position.IntRange(1, 10), 3)
	r.AddColumn(Column{Name: "id", Value: int64(1), UniqueKey: true})
	r.AddColumn(Column{Name: "c1", Value: "x", Updated: true})
	r.AddColumn(Column{Name: "c2", Value: nil})

	assert.Equal(t, []string{"id", "c1", "c2"}, r.ColumnNames())
	assert.Equal(t, []interface{}{int64(1), "x", nil}, r.Values())
	assert.Len(t, r.UniqueKeyColumns(), 1)
	assert.Equal(t, "c1", r.UpdatedColumns()[0].Name)
	assert.Equal(t, "i,1,10", r.Position().String())
}

func TestDataRecordsDropsTerminal(t *testing.T) {
	records := []Record{
		NewDataRecord(INSERT, "t", position.IntRange(1, 2), 0),
		NewFinishedRecord(position.Finished()),
	}
	assert.True(t, IsFinished(records[1]))
	assert.False(t, IsFinished(records[0]))
	assert.Len(t, DataRecords(records), 1)
}
