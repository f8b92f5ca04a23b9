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

package job

import (
	"strings"
	"time"

	"github.com/yugabyte/yb-datamover/src/config"
	"github.com/yugabyte/yb-datamover/src/consistency"
	"github.com/yugabyte/yb-datamover/src/datasource"
	"github.com/yugabyte/yb-datamover/src/registry"
)

// SourceTargetEntry maps one source table of a registered migration source to a logical target table.
type SourceTargetEntry struct {
	SourceName   string `json:"source_name"`
	SourceSchema string `json:"source_schema"`
	SourceTable  string `json:"source_table"`
	TargetTable  string `json:"target_table"`
}

type DataNode struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

func (n DataNode) String() string {
	if n.Schema == "" {
		return n.Table
	}
	return n.Schema + "." + n.Table
}

// TableRule lists the physical tables behind one logical target table.
type TableRule struct {
	LogicTable string     `json:"logic_table"`
	DataNodes  []DataNode `json:"data_nodes"`
}

// FirstDataNode is the table inventory rows are written to.
func (r *TableRule) FirstDataNode() DataNode {
	return r.DataNodes[0]
}

// JobConfiguration is written once by Schedule and never changed afterwards.
type JobConfiguration struct {
	JobID              string                                `json:"job_id"`
	SourceDatabaseType string                                `json:"source_database_type"`
	Sources            map[string]*datasource.ConnDescriptor `json:"sources"`
	TargetDatabaseName string                                `json:"target_database_name"`
	Target             *datasource.ConnDescriptor            `json:"target"`
	TargetRules        map[string]*TableRule                 `json:"target_rules"`
	Entries            []SourceTargetEntry                   `json:"entries"`
	Tuning             config.Tuning                         `json:"tuning"`
	CreatedAt          time.Time                             `json:"created_at"`
}

func (c *JobConfiguration) LogicTables() []string {
	tables := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		tables[i] = e.TargetTable
	}
	return tables
}

type JobStatus struct {
	JobID        string    `json:"job_id"`
	State        string    `json:"state"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// JobItemProgress is the resume point of one inventory task.
type JobItemProgress struct {
	TaskID          string `json:"task_id"`
	LogicTable      string `json:"logic_table"`
	SourceName      string `json:"source_name"`
	SourceSchema    string `json:"source_schema"`
	SourceTable     string `json:"source_table"`
	Position        string `json:"position"`
	RecordsImported int64  `json:"records_imported"`
	Status          string `json:"status"`
}

type JobInfo struct {
	JobID              string
	State              string
	ErrorMessage       string
	TargetDatabaseName string
	Tables             []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type CheckParams struct {
	EstimatedCount bool `json:"estimated_count"`
	SkipContent    bool `json:"skip_content"`
	PageSize       int  `json:"page_size"`
	Concurrency    int  `json:"concurrency"`
}

type CheckJob struct {
	CheckID      string                              `json:"check_id"`
	ParentJobID  string                              `json:"parent_job_id"`
	State        string                              `json:"state"`
	Params       CheckParams                         `json:"params"`
	Results      map[string]*consistency.TableResult `json:"results,omitempty"`
	Matched      bool                                `json:"matched"`
	ErrorMessage string                              `json:"error_message,omitempty"`
	CreatedAt    time.Time                           `json:"created_at"`
	FinishedAt   time.Time                           `json:"finished_at,omitempty"`
}

// AuditEntry outlives the job record and tells how the job was finalised.
type AuditEntry struct {
	JobID string    `json:"job_id"`
	State string    `json:"state"`
	At    time.Time `json:"at"`
}

type MigrationSource struct {
	Name       string                     `json:"name"`
	Descriptor *datasource.ConnDescriptor `json:"descriptor"`
}

type JobEvent struct {
	JobID string
	State string
}

const (
	jobsPrefix    = "/jobs/"
	sourcesPrefix = "/sources/"
	auditPrefix   = "/audit/"
	checkInfix    = "-check-"
)

func jobPrefix(jobID string) string        { return registry.Key("jobs", jobID) + "/" }
func configKey(jobID string) string        { return registry.Key("jobs", jobID, "config") }
func stateKey(jobID string) string         { return registry.Key("jobs", jobID, "state") }
func progressPrefix(jobID string) string   { return registry.Key("jobs", jobID, "progress") + "/" }
func checksPrefix(jobID string) string     { return registry.Key("jobs", jobID, "checks") + "/" }
func checkSequenceKey(jobID string) string { return registry.Key("jobs", jobID, "check-sequence") }
func sourceKey(name string) string         { return registry.Key("sources", name) }
func auditKey(jobID string) string         { return registry.Key("audit", jobID) }

func progressKey(jobID, taskID string) string {
	return registry.Key("jobs", jobID, "progress", taskID)
}

func checkKey(checkID string) string {
	return registry.Key("jobs", parentJobID(checkID), "checks", checkID)
}

// parentJobID extracts the job id from "<jobID>-check-<n>".
func parentJobID(checkID string) string {
	idx := strings.LastIndex(checkID, checkInfix)
	if idx <= 0 {
		return ""
	}
	return checkID[:idx]
}

// jobIDFromStateKey returns the job of a "/jobs/<id>/state" key.
func jobIDFromStateKey(key string) (string, bool) {
	if !strings.HasPrefix(key, jobsPrefix) || !strings.HasSuffix(key, "/state") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, jobsPrefix), "/state")
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
