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
)

// ParameterError reports caller input that can never succeed as given.
type ParameterError struct {
	msg string
	err error
}

func (e *ParameterError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s", e.msg, e.err.Error())
	}
	return e.msg
}

func (e *ParameterError) Unwrap() error {
	return e.err
}

func NewParameterError(format string, args ...interface{}) *ParameterError {
	return &ParameterError{msg: fmt.Sprintf(format, args...)}
}

func WrapParameterError(err error, format string, args ...interface{}) *ParameterError {
	return &ParameterError{msg: fmt.Sprintf(format, args...), err: err}
}

func IsParameterError(err error) bool {
	var pe *ParameterError
	return errors.As(err, &pe)
}

// NewMissingStorageUnitError is returned when a job references an unregistered migration source.
func NewMissingStorageUnitError(sourceNames []string) *ParameterError {
	return NewParameterError("missing storage unit(s): %v. Register them with 'source register' first", sourceNames)
}

type JobNotFoundError struct {
	jobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("migration job %q not found", e.jobID)
}

func (e *JobNotFoundError) JobID() string {
	return e.jobID
}

func NewJobNotFoundError(jobID string) *JobNotFoundError {
	return &JobNotFoundError{jobID: jobID}
}

func IsJobNotFoundError(err error) bool {
	var je *JobNotFoundError
	return errors.As(err, &je)
}

// SubordinateCleanupError is logged and swallowed by commit and rollback.
type SubordinateCleanupError struct {
	jobID         string
	subordinateID string
	err           error
}

func (e *SubordinateCleanupError) Error() string {
	return fmt.Sprintf("cleanup subordinate job %s of %s: %s", e.subordinateID, e.jobID, e.err.Error())
}

func (e *SubordinateCleanupError) Unwrap() error {
	return e.err
}

func NewSubordinateCleanupError(jobID, subordinateID string, err error) *SubordinateCleanupError {
	return &SubordinateCleanupError{
		jobID:         jobID,
		subordinateID: subordinateID,
		err:           err,
	}
}
