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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIngestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("dump: %w", NewIngestError("t_order", INGEST_STEP_READ_ROW, cause))

	var ie *IngestError
	assert.True(t, errors.As(err, &ie))
	assert.Equal(t, "t_order", ie.TableName())
	assert.Equal(t, INGEST_STEP_READ_ROW, ie.Step())
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ingest table t_order: step=read_row: connection reset")
}

func TestParameterErrors(t *testing.T) {
	assert.True(t, IsParameterError(NewParameterError("bad batch size %d", 0)))
	assert.True(t, IsParameterError(NewMissingStorageUnitError([]string{"ds_0"})))
	assert.True(t, IsParameterError(fmt.Errorf("schedule: %w", WrapParameterError(errors.New("x"), "decode"))))
	assert.False(t, IsParameterError(NewJobNotFoundError("j1")))
	assert.True(t, IsJobNotFoundError(fmt.Errorf("commit: %w", NewJobNotFoundError("j1"))))
}
