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

package errs

import (
	"fmt"
)

const (
	// steps
	INGEST_STEP_LOAD_METADATA = "load_metadata"
	INGEST_STEP_BEGIN_TXN     = "begin_txn"
	INGEST_STEP_QUERY         = "query"
	INGEST_STEP_READ_ROW      = "read_row"
	INGEST_STEP_PUSH          = "push"
	INGEST_STEP_APPLY_BATCH   = "apply_batch"
	INGEST_STEP_ACK           = "ack"
)

// IngestError wraps every failure raised while dumping or importing one table.
type IngestError struct {
	tableName string
	step      string
	err       error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest table %s: step=%s: %s", e.tableName, e.step, e.err.Error())
}

func (e *IngestError) TableName() string {
	return e.tableName
}

func (e *IngestError) Step() string {
	return e.step
}

func (e *IngestError) Unwrap() error {
	return e.err
}

func NewIngestError(tableName string, step string, err error) *IngestError {
	return &IngestError{
		tableName: tableName,
		step:      step,
		err:       err,
	}
}
