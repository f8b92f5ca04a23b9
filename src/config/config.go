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

package config

import (
	"strings"

	goerrors "github.com/go-errors/errors"
	"github.com/samber/lo"
)

const (
	TRACE = "trace"
	DEBUG = "debug"
	INFO  = "info"
	WARN  = "warn"
	ERROR = "error"
	FATAL = "fatal"
	PANIC = "panic"
)

var (
	LogLevel       string
	validLogLevels = []string{TRACE, DEBUG, INFO, WARN, ERROR, FATAL, PANIC}

	validIsolationLevels = []string{"", "read_uncommitted", "read_committed", "repeatable_read", "serializable"}
)

func ValidateLogLevel() error {
	LogLevel = strings.ToLower(LogLevel)
	if !lo.Contains(validLogLevels, LogLevel) {
		return goerrors.Errorf("invalid log level: %s. Valid log levels = %v", LogLevel, validLogLevels)
	}
	return nil
}

func IsLogLevelDebugOrBelow() bool {
	return lo.Contains([]string{TRACE, DEBUG}, LogLevel)
}

// Tuning holds the per-job knobs a user may set on the command line or in the config file.
type Tuning struct {
	BatchSize            int
	ShardingSize         int64
	ChannelCapacity      int
	Concurrency          int
	RetryTimes           int
	ReadQPS              int
	WriteTPS             int
	TransactionIsolation string
}

func (t Tuning) Validate() error {
	if t.BatchSize <= 0 {
		return goerrors.Errorf("batch size must be greater than 0, got %d", t.BatchSize)
	}
	if t.ShardingSize <= 0 {
		return goerrors.Errorf("sharding size must be greater than 0, got %d", t.ShardingSize)
	}
	if t.ChannelCapacity <= 0 {
		return goerrors.Errorf("channel capacity must be greater than 0, got %d", t.ChannelCapacity)
	}
	if t.Concurrency <= 0 {
		return goerrors.Errorf("concurrency must be greater than 0, got %d", t.Concurrency)
	}
	if t.RetryTimes < 0 {
		return goerrors.Errorf("retry times cannot be negative, got %d", t.RetryTimes)
	}
	if t.ReadQPS < 0 || t.WriteTPS < 0 {
		return goerrors.Errorf("rate limits cannot be negative")
	}
	if !lo.Contains(validIsolationLevels, strings.ToLower(t.TransactionIsolation)) {
		return goerrors.Errorf("invalid transaction isolation %q. Valid values = %v", t.TransactionIsolation, validIsolationLevels[1:])
	}
	return nil
}
