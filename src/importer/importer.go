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

package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/yugabyte/yb-datamover/src/channel"
	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/dbtype"
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/metadata"
	"github.com/yugabyte/yb-datamover/src/metrics"
	"github.com/yugabyte/yb-datamover/src/ratelimit"
	"github.com/yugabyte/yb-datamover/src/record"
	"github.com/yugabyte/yb-datamover/src/sqlbuilder"
)

const (
	defaultFetchTimeout  = 3 * time.Second
	defaultRetryInterval = 500 * time.Millisecond
)

type ImporterConfig struct {
	JobID  string
	TaskID string
	// Schema and Table name the target table the records are written to.
	Schema    string
	Table     string
	BatchSize int
	// RetryTimes is the number of extra attempts for a failed batch.
	RetryTimes    int
	RetryInterval time.Duration
	FetchTimeout  time.Duration
	// Upsert overwrites rows that already exist on the target, as needed when resuming a task.
	Upsert bool
}

type Importer struct {
	cfg        ImporterConfig
	db         *sql.DB
	descriptor *dbtype.Descriptor
	builder    sqlbuilder.PipelineSQLBuilder
	metaLoader metadata.Loader
	channel    channel.Channel
	limiter    ratelimit.Limiter

	imported atomic.Int64
	mu       sync.Mutex
	state    string
	stopped  bool
	cancel   context.CancelFunc
}

func NewImporter(cfg ImporterConfig, db *sql.DB, dbType string, metaLoader metadata.Loader,
	ch channel.Channel, limiter ratelimit.Limiter) (*Importer, error) {

	if cfg.BatchSize <= 0 {
		return nil, errs.NewParameterError("batch size must be greater than 0, got %d", cfg.BatchSize)
	}
	if cfg.RetryTimes < 0 {
		return nil, errs.NewParameterError("retry times must not be negative, got %d", cfg.RetryTimes)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	descriptor, err := dbtype.Get(dbType)
	if err != nil {
		return nil, err
	}
	builder, err := sqlbuilder.Get(dbType)
	if err != nil {
		return nil, err
	}
	return &Importer{
		cfg:        cfg,
		db:         db,
		descriptor: descriptor,
		builder:    builder,
		metaLoader: metaLoader,
		channel:    ch,
		limiter:    limiter,
		state:      constants.TASK_NOT_STARTED,
	}, nil
}

func (i *Importer) State() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *Importer) RecordsImported() int64 {
	return i.imported.Load()
}

func (i *Importer) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stopped = true
	if i.cancel != nil {
		i.cancel()
	}
}

func (i *Importer) start(cancel context.CancelFunc) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != constants.TASK_NOT_STARTED {
		return fmt.Errorf("importer %s already %s", i.cfg.TaskID, strings.ToLower(i.state))
	}
	i.state = constants.TASK_RUNNING
	i.cancel = cancel
	if i.stopped {
		cancel()
	}
	return nil
}

func (i *Importer) setState(state string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = state
}

// Run drains the channel until the FinishedRecord has been applied and acknowledged,
// the context is cancelled or a batch fails for good.
func (i *Importer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := i.start(cancel); err != nil {
		return err
	}
	err := i.run(ctx)
	switch {
	case err == nil:
		i.setState(constants.TASK_FINISHED)
	case ctx.Err() != nil || errors.Is(err, channel.ErrChannelClosed):
		i.setState(constants.TASK_STOPPED)
		log.Infof("task %s: import stopped after %d records", i.cfg.TaskID, i.RecordsImported())
		err = nil
	default:
		i.setState(constants.TASK_STOPPED)
		log.Errorf("task %s: import failed: %v", i.cfg.TaskID, err)
	}
	return err
}

func (i *Importer) run(ctx context.Context) error {
	md, err := i.metaLoader.Load(ctx, i.cfg.Schema, i.cfg.Table)
	if err != nil {
		return errs.NewIngestError(i.cfg.Table, errs.INGEST_STEP_LOAD_METADATA, err)
	}
	for {
		records, err := i.channel.Fetch(ctx, i.cfg.BatchSize, i.cfg.FetchTimeout)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			continue
		}
		dataRecords := record.DataRecords(records)
		if len(dataRecords) > 0 {
			if err := validateColumns(md, dataRecords); err != nil {
				return err
			}
			if err := i.applyWithRetry(ctx, dataRecords); err != nil {
				return err
			}
			i.imported.Add(int64(len(dataRecords)))
			metrics.RecordBatchImported(i.cfg.JobID, i.cfg.Table, len(dataRecords))
		}
		if err := i.channel.Ack(ctx, records); err != nil {
			return errs.NewIngestError(i.cfg.Table, errs.INGEST_STEP_ACK, err)
		}
		if record.IsFinished(records[len(records)-1]) {
			log.Infof("task %s: imported %d records into %s", i.cfg.TaskID, i.RecordsImported(), i.cfg.Table)
			return nil
		}
	}
}

// validateColumns requires every record to carry exactly the insertable columns of the target, in order.
func validateColumns(md *metadata.TableMetaData, records []*record.DataRecord) error {
	expected := md.InsertableColumnNames()
	for _, r := range records {
		if len(r.Columns) != len(expected) {
			return errs.NewParameterError("record of %s has %d columns but target table %s expects %d %v",
				r.TableName, len(r.Columns), md.Table, len(expected), expected)
		}
		for i, c := range r.Columns {
			col, ok := md.Column(c.Name)
			if !ok {
				return errs.NewParameterError("column %s of %s does not exist on target table %s",
					c.Name, r.TableName, md.Table)
			}
			if col.Name != expected[i] {
				return errs.NewParameterError("column %d of %s is %s but target table %s expects %s",
					i+1, r.TableName, c.Name, md.Table, expected[i])
			}
		}
	}
	return nil
}

func (i *Importer) applyWithRetry(ctx context.Context, records []*record.DataRecord) error {
	if err := ratelimit.Intercept(ctx, i.limiter, ratelimit.INSERT, len(records)); err != nil {
		return err
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = i.cfg.RetryInterval
	withMaxRetry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(i.cfg.RetryTimes)), ctx)
	operation := func() error {
		err := i.applyBatch(ctx, records)
		if errs.IsParameterError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(operation, withMaxRetry, func(err error, t time.Duration) {
		metrics.RecordImportRetry(i.cfg.JobID, i.cfg.Table)
		log.Warnf("task %s: retrying batch of %d records into %s in %s: %v",
			i.cfg.TaskID, len(records), i.cfg.Table, t, err)
	})
}

// applyBatch writes all records in one transaction.
func (i *Importer) applyBatch(ctx context.Context, records []*record.DataRecord) (err error) {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.NewIngestError(i.cfg.Table, errs.INGEST_STEP_BEGIN_TXN, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Warnf("task %s: rollback batch: %v", i.cfg.TaskID, rbErr)
			}
		}
	}()
	for _, r := range records {
		if err = i.applyRecord(ctx, tx, r); err != nil {
			return errs.NewIngestError(i.cfg.Table, errs.INGEST_STEP_APPLY_BATCH, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return errs.NewIngestError(i.cfg.Table, errs.INGEST_STEP_APPLY_BATCH, err)
	}
	return nil
}

func (i *Importer) applyRecord(ctx context.Context, tx *sql.Tx, r *record.DataRecord) error {
	// Records carry the source table name; statements always target the configured table.
	target := *r
	target.TableName = i.cfg.Table
	switch r.Type {
	case record.INSERT:
		if i.cfg.Upsert {
			return i.upsert(ctx, tx, &target)
		}
		return i.exec(ctx, tx, i.builder.BuildInsertSQL(i.cfg.Schema, &target), target.Values())
	case record.UPDATE:
		keys := target.UniqueKeyColumns()
		if len(keys) == 0 {
			return fmt.Errorf("update on %s without unique key columns", target.TableName)
		}
		return i.exec(ctx, tx, i.builder.BuildUpdateSQL(i.cfg.Schema, &target, keys), sqlbuilder.UpdateArgs(&target, keys))
	case record.DELETE:
		keys := target.UniqueKeyColumns()
		if len(keys) == 0 {
			return fmt.Errorf("delete on %s without unique key columns", target.TableName)
		}
		return i.exec(ctx, tx, i.builder.BuildDeleteSQL(i.cfg.Schema, &target, keys), sqlbuilder.ConditionArgs(keys))
	}
	return fmt.Errorf("unknown record type %q", r.Type)
}

// upsert falls back to delete and insert on engines without a native statement.
func (i *Importer) upsert(ctx context.Context, tx *sql.Tx, r *record.DataRecord) error {
	if query, ok := i.builder.BuildUpsertSQL(i.cfg.Schema, r); ok {
		return i.exec(ctx, tx, query, r.Values())
	}
	if keys := r.UniqueKeyColumns(); len(keys) > 0 {
		if err := i.exec(ctx, tx, i.builder.BuildDeleteSQL(i.cfg.Schema, r, keys), sqlbuilder.ConditionArgs(keys)); err != nil {
			return err
		}
	}
	return i.exec(ctx, tx, i.builder.BuildInsertSQL(i.cfg.Schema, r), r.Values())
}

func (i *Importer) exec(ctx context.Context, tx *sql.Tx, query string, args []interface{}) error {
	query = i.descriptor.Rebind(query)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec %q: %w", query, err)
	}
	return nil
}
