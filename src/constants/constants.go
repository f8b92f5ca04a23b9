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

package constants

const (
	// Database types
	YUGABYTEDB = "yugabytedb"
	POSTGRESQL = "postgresql"
	ORACLE     = "oracle"
	MYSQL      = "mysql"
	SQLITE     = "sqlite"

	// Job states
	JOB_SCHEDULED   = "SCHEDULED"
	JOB_RUNNING     = "RUNNING"
	JOB_STOPPED     = "STOPPED"
	JOB_FINISHED    = "FINISHED"
	JOB_COMMITTED   = "COMMITTED"
	JOB_ROLLED_BACK = "ROLLED_BACK"

	// Inventory task states
	TASK_NOT_STARTED = "NOT_STARTED"
	TASK_RUNNING     = "RUNNING"
	TASK_STOPPED     = "STOPPED"
	TASK_FINISHED    = "FINISHED"

	// Check job states
	CHECK_RUNNING  = "RUNNING"
	CHECK_FINISHED = "FINISHED"
	CHECK_FAILED   = "FAILED"

	OBFUSCATE_STRING = "XXXXX"
)

const (
	DEFAULT_BATCH_SIZE       = 1000
	DEFAULT_SHARDING_SIZE    = 1000000
	DEFAULT_CHANNEL_CAPACITY = 64
	DEFAULT_CONCURRENCY      = 4
	DEFAULT_RETRY_TIMES      = 3
)

var SupportedDatabaseTypes = []string{POSTGRESQL, YUGABYTEDB, MYSQL, ORACLE, SQLITE}
