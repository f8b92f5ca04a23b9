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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Rows read from source tables by inventory dumpers
	dumpRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yb_datamover_inventory_dumped_rows_total",
			Help: "Total rows read from source tables",
		},
		[]string{"job_id", "table_name"},
	)

	// Rows applied to target tables by importers
	importRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yb_datamover_inventory_imported_rows_total",
			Help: "Total rows applied to target tables",
		},
		[]string{"job_id", "table_name"},
	)

	importBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yb_datamover_inventory_imported_batches_total",
			Help: "Total batches committed to target tables",
		},
		[]string{"job_id", "table_name"},
	)

	importRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yb_datamover_inventory_import_retries_total",
			Help: "Total batch retries against target tables",
		},
		[]string{"job_id", "table_name"},
	)

	checkMismatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yb_datamover_consistency_check_mismatches_total",
			Help: "Total tables whose consistency check failed",
		},
		[]string{"job_id", "table_name"},
	)

	jobsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "yb_datamover_jobs",
			Help: "Migration jobs known to this process by state",
		},
		[]string{"state"},
	)
)

func RecordRowsDumped(jobID, tableName string, rows int) {
	dumpRowsTotal.WithLabelValues(jobID, tableName).Add(float64(rows))
}

func RecordBatchImported(jobID, tableName string, rows int) {
	importRowsTotal.WithLabelValues(jobID, tableName).Add(float64(rows))
	importBatchesTotal.WithLabelValues(jobID, tableName).Inc()
}

func RecordImportRetry(jobID, tableName string) {
	importRetriesTotal.WithLabelValues(jobID, tableName).Inc()
}

func RecordCheckMismatch(jobID, tableName string) {
	checkMismatchesTotal.WithLabelValues(jobID, tableName).Inc()
}

func SetJobStateCounts(counts map[string]int) {
	jobsByState.Reset()
	for state, n := range counts {
		jobsByState.WithLabelValues(state).Set(float64(n))
	}
}
