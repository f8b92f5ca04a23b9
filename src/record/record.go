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
	"fmt"

	"github.com/samber/lo"

	"github.com/yugabyte/yb-datamover/src/position"
)

type RecordType string

const (
	INSERT RecordType = "INSERT"
	UPDATE RecordType = "UPDATE"
	DELETE RecordType = "DELETE"
)

// Record is either a *DataRecord or a *FinishedRecord.
type Record interface {
	Position() position.Position
	sealed()
}

type Column struct {
	Name      string
	Value     interface{} // nil is SQL NULL
	Updated   bool
	UniqueKey bool
}

type DataRecord struct {
	Type      RecordType
	TableName string
	position  position.Position
	Columns   []Column
}

func NewDataRecord(typ RecordType, tableName string, pos position.Position, columnCount int) *DataRecord {
	return &DataRecord{
		Type:      typ,
		TableName: tableName,
		position:  pos,
		Columns:   make([]Column, 0, columnCount),
	}
}

func (r *DataRecord) Position() position.Position { return r.position }
func (r *DataRecord) sealed()                     {}

func (r *DataRecord) AddColumn(c Column) {
	r.Columns = append(r.Columns, c)
}

func (r *DataRecord) ColumnNames() []string {
	return lo.Map(r.Columns, func(c Column, _ int) string { return c.Name })
}

func (r *DataRecord) UniqueKeyColumns() []Column {
	return lo.Filter(r.Columns, func(c Column, _ int) bool { return c.UniqueKey })
}

func (r *DataRecord) UpdatedColumns() []Column {
	return lo.Filter(r.Columns, func(c Column, _ int) bool { return c.Updated })
}

func (r *DataRecord) Values() []interface{} {
	return lo.Map(r.Columns, func(c Column, _ int) interface{} { return c.Value })
}

func (r *DataRecord) String() string {
	return fmt.Sprintf("%s %s at %s (%d columns)", r.Type, r.TableName, r.position, len(r.Columns))
}

// FinishedRecord is the single terminal record a dumper emits per pass.
type FinishedRecord struct {
	position position.Position
}

func NewFinishedRecord(pos position.Position) *FinishedRecord {
	return &FinishedRecord{position: pos}
}

func (r *FinishedRecord) Position() position.Position { return r.position }
func (r *FinishedRecord) sealed()                     {}

func IsFinished(r Record) bool {
	_, ok := r.(*FinishedRecord)
	return ok
}

// DataRecords drops the terminal record, if any.
func DataRecords(records []Record) []*DataRecord {
	result := make([]*DataRecord, 0, len(records))
	for _, r := range records {
		if dr, ok := r.(*DataRecord); ok {
			result = append(result, dr)
		}
	}
	return result
}
