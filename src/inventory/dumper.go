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

package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/yugabyte/yb-datamover/src/channel"
	"github.com/yugabyte/yb-datamover/src/codec"
	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/dbtype"
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/metadata"
	"github.com/yugabyte/yb-datamover/src/metrics"
	"github.com/yugabyte/yb-datamover/src/position"
	"github.com/yugabyte/yb-datamover/src/ratelimit"
	"github.com/yugabyte/yb-datamover/src/record"
	"github.com/yugabyte/yb-datamover/src/sqlbuilder"
)

// terminalPushTimeout bounds how long a stopped dumper waits to hand over its last records.
const terminalPushTimeout = 30 * time.Second

type DumperConfig struct {
	JobID          string
	TaskID         string
	Schema         string
	Table          string
	LogicTableName string
	// Columns is the projection; empty means every column.
	Columns              []string
	Position             position.Position
	BatchSize            int
	QuerySQL             string
	TransactionIsolation string
}

// Dumper reads one table range in unique key order and pushes the rows to a channel.
// Every Run that starts from an unfinished position ends with exactly one *record.FinishedRecord,
// including runs that were stopped or failed. A finished position pushes nothing. Its position is position.Finished() on completion and the last
// pushed row's position otherwise.
type Dumper struct {
	cfg        DumperConfig
	db         *sql.DB
	descriptor *dbtype.Descriptor
	builder    sqlbuilder.PipelineSQLBuilder
	codec      *codec.Codec
	metaLoader metadata.Loader
	channel    channel.Channel
	limiter    ratelimit.Limiter

	mu      sync.Mutex
	state   string
	stopped bool
	cancel  context.CancelFunc
}

func NewDumper(cfg DumperConfig, db *sql.DB, dbType string, metaLoader metadata.Loader,
	ch channel.Channel, limiter ratelimit.Limiter) (*Dumper, error) {

	if cfg.BatchSize <= 0 {
		return nil, errs.NewParameterError("batch size must be greater than 0, got %d", cfg.BatchSize)
	}
	if cfg.Position == nil {
		return nil, errs.NewParameterError("dumper for %s has no position", cfg.Table)
	}
	descriptor, err := dbtype.Get(dbType)
	if err != nil {
		return nil, err
	}
	builder, err := sqlbuilder.Get(dbType)
	if err != nil {
		return nil, err
	}
	c, err := codec.ForDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	if cfg.LogicTableName == "" {
		cfg.LogicTableName = cfg.Table
	}
	return &Dumper{
		cfg:        cfg,
		db:         db,
		descriptor: descriptor,
		builder:    builder,
		codec:      c,
		metaLoader: metaLoader,
		channel:    ch,
		limiter:    limiter,
		state:      constants.TASK_NOT_STARTED,
	}, nil
}

func (d *Dumper) State() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Stop is safe to call from any goroutine, before, during or after Run.
func (d *Dumper) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Dumper) start(cancel context.CancelFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != constants.TASK_NOT_STARTED {
		return fmt.Errorf("dumper %s already %s", d.cfg.TaskID, strings.ToLower(d.state))
	}
	d.state = constants.TASK_RUNNING
	d.cancel = cancel
	if d.stopped {
		cancel()
	}
	return nil
}

func (d *Dumper) setState(state string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = state
}

func (d *Dumper) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := d.start(cancel); err != nil {
		return err
	}

	if position.IsFinished(d.cfg.Position) {
		log.Infof("task %s: position is finished, nothing to dump", d.cfg.TaskID)
		d.setState(constants.TASK_FINISHED)
		return nil
	}

	lastPosition, completed, err := d.dump(ctx)
	if err != nil && ctx.Err() != nil {
		log.Debugf("task %s: ignoring error after stop: %v", d.cfg.TaskID, err)
		err = nil
	}
	terminal := lastPosition
	switch {
	case err != nil:
		d.setState(constants.TASK_STOPPED)
		log.Errorf("task %s: dump failed at %s: %v", d.cfg.TaskID, lastPosition, err)
	case !completed:
		d.setState(constants.TASK_STOPPED)
		log.Infof("task %s: dump stopped at %s", d.cfg.TaskID, lastPosition)
	default:
		d.setState(constants.TASK_FINISHED)
		terminal = position.Finished()
	}
	if pushErr := d.pushTerminal(ctx, terminal); pushErr != nil && err == nil {
		err = errs.NewIngestError(d.cfg.LogicTableName, errs.INGEST_STEP_PUSH, pushErr)
	}
	return err
}

// pushTerminal hands over the final record even when ctx is already cancelled.
func (d *Dumper) pushTerminal(ctx context.Context, pos position.Position) error {
	return d.pushDetached(ctx, []record.Record{record.NewFinishedRecord(pos)})
}

func (d *Dumper) pushDetached(ctx context.Context, records []record.Record) error {
	if ctx.Err() == nil {
		return d.channel.Push(ctx, records)
	}
	pushCtx, cancel := context.WithTimeout(context.Background(), terminalPushTimeout)
	defer cancel()
	return d.channel.Push(pushCtx, records)
}

// dump returns the position of the last pushed row, or the starting position if none was pushed,
// and whether the whole result set was read.
func (d *Dumper) dump(ctx context.Context) (position.Position, bool, error) {
	lastPosition := d.cfg.Position
	table := d.cfg.LogicTableName
	md, err := d.metaLoader.Load(ctx, d.cfg.Schema, d.cfg.Table)
	if err != nil {
		return lastPosition, false, errs.NewIngestError(table, errs.INGEST_STEP_LOAD_METADATA, err)
	}
	query, args, err := d.buildQuery(md)
	if err != nil {
		return lastPosition, false, err
	}

	var querier interface {
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	} = d.db
	if d.cfg.TransactionIsolation != "" {
		tx, err := d.db.BeginTx(ctx, &sql.TxOptions{Isolation: isolationLevel(d.cfg.TransactionIsolation), ReadOnly: true})
		if err != nil {
			return lastPosition, false, errs.NewIngestError(table, errs.INGEST_STEP_BEGIN_TXN, err)
		}
		defer func() {
			if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
				log.Warnf("task %s: rollback read only transaction: %v", d.cfg.TaskID, err)
			}
		}()
		querier = tx
	}

	query = d.descriptor.Rebind(query)
	args = append(args, d.descriptor.QueryOptions(d.cfg.BatchSize)...)
	log.Infof("task %s: dumping %s with %q args %v", d.cfg.TaskID, table, query, args)
	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		if ctx.Err() != nil {
			return lastPosition, false, nil
		}
		return lastPosition, false, errs.NewIngestError(table, errs.INGEST_STEP_QUERY, err)
	}
	defer rows.Close()

	shape, err := d.resultShape(rows, md)
	if err != nil {
		return lastPosition, false, err
	}

	batch := make([]record.Record, 0, d.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := d.pushDetached(ctx, batch); err != nil {
			return errs.NewIngestError(table, errs.INGEST_STEP_PUSH, err)
		}
		lastPosition = batch[len(batch)-1].Position()
		metrics.RecordRowsDumped(d.cfg.JobID, table, len(batch))
		batch = make([]record.Record, 0, d.cfg.BatchSize)
		return nil
	}

	rowCount := 0
	interrupted := false
	for rows.Next() {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		values, err := shape.reader.ReadRow(rows)
		if err != nil {
			return lastPosition, false, errs.NewIngestError(table, errs.INGEST_STEP_READ_ROW, err)
		}
		pos, err := d.rowPosition(shape, values)
		if err != nil {
			return lastPosition, false, errs.NewIngestError(table, errs.INGEST_STEP_READ_ROW, err)
		}
		rec := record.NewDataRecord(record.INSERT, table, pos, shape.columnCount)
		for i, v := range values {
			if shape.skip[i] {
				continue
			}
			rec.AddColumn(record.Column{Name: shape.names[i], Value: v, Updated: true, UniqueKey: shape.uniqueKey[i]})
		}
		batch = append(batch, rec)
		rowCount++
		if len(batch) == d.cfg.BatchSize {
			if err := flush(); err != nil {
				return lastPosition, false, err
			}
			if err := ratelimit.Intercept(ctx, d.limiter, ratelimit.SELECT, d.cfg.BatchSize); err != nil && ctx.Err() == nil {
				return lastPosition, false, errs.NewIngestError(table, errs.INGEST_STEP_READ_ROW, err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() == nil {
			return lastPosition, false, errs.NewIngestError(table, errs.INGEST_STEP_READ_ROW, err)
		}
		interrupted = true
	}
	if err := flush(); err != nil {
		return lastPosition, false, err
	}
	log.Infof("task %s: dumped %d rows of %s", d.cfg.TaskID, rowCount, table)
	return lastPosition, !interrupted, nil
}

type resultShape struct {
	reader    *codec.RowReader
	names     []string
	uniqueKey []bool
	// skip marks generated or hidden columns a full projection reads but records leave out.
	skip        []bool
	columnCount int
	// keyIndex is -1 when rows carry placeholder positions.
	keyIndex int
	keyKind  position.KeyKind
	keyEnd   interface{}
}

func (d *Dumper) resultShape(rows *sql.Rows, md *metadata.TableMetaData) (*resultShape, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, errs.NewIngestError(d.cfg.LogicTableName, errs.INGEST_STEP_QUERY, err)
	}
	if len(d.cfg.Columns) > 0 && len(names) != len(d.cfg.Columns) {
		return nil, errs.NewParameterError("table %s: query returned %d columns but %d were requested",
			d.cfg.LogicTableName, len(names), len(d.cfg.Columns))
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, errs.NewIngestError(d.cfg.LogicTableName, errs.INGEST_STEP_QUERY, err)
	}
	types := make([]dbtype.ColumnType, len(columnTypes))
	uniqueKey := make([]bool, len(names))
	skip := make([]bool, len(names))
	columnCount := 0
	for i, ct := range columnTypes {
		types[i] = d.descriptor.ResolveColumnType(ct.DatabaseTypeName())
		col, ok := md.Column(names[i])
		if ok {
			// The catalog knows about unsigned and declared types the driver may not report.
			if col.Type.Unsigned {
				types[i].Unsigned = true
			}
			if types[i].Length == 0 {
				types[i].Length = col.Type.Length
			}
			if types[i].Code == dbtype.OTHER {
				types[i] = col.Type
			}
		}
		uniqueKey[i] = md.IsUniqueKey(names[i])
		skip[i] = ok && len(d.cfg.Columns) == 0 && (col.Generated || !col.Visible)
		if !skip[i] {
			columnCount++
		}
	}
	shape := &resultShape{
		reader:      d.codec.NewRowReader(types),
		names:       names,
		uniqueKey:   uniqueKey,
		skip:        skip,
		columnCount: columnCount,
		keyIndex:    -1,
	}
	rangePos, ok := d.cfg.Position.(*position.RangePosition)
	if !ok {
		return shape, nil
	}
	keyCol, _, ok := md.DivisibleUniqueKey()
	if !ok {
		return nil, errs.NewParameterError("table %s: range position %s needs a single column unique key", d.cfg.LogicTableName, rangePos)
	}
	for i, name := range names {
		if strings.EqualFold(name, keyCol.Name) {
			shape.keyIndex = i
		}
	}
	if shape.keyIndex < 0 {
		return nil, errs.NewParameterError("table %s: projection does not include unique key %s", d.cfg.LogicTableName, keyCol.Name)
	}
	shape.keyKind = rangePos.Kind()
	shape.keyEnd, _ = rangePos.End()
	return shape, nil
}

func (d *Dumper) rowPosition(shape *resultShape, values []interface{}) (position.Position, error) {
	if shape.keyIndex < 0 {
		return position.Placeholder(), nil
	}
	key := values[shape.keyIndex]
	if key == nil {
		return nil, fmt.Errorf("unique key column %s is NULL", shape.names[shape.keyIndex])
	}
	if shape.keyKind == position.INT_KEY {
		n, err := toInt64(key)
		if err != nil {
			return nil, err
		}
		key = n
	}
	return position.NewRange(shape.keyKind, key, shape.keyEnd)
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("unique key value %q is not an integer: %w", n, err)
		}
		return i, nil
	}
	return 0, fmt.Errorf("unique key value %v of type %T is not an integer", v, v)
}

func (d *Dumper) projection() []string {
	if len(d.cfg.Columns) == 0 {
		return []string{"*"}
	}
	return d.cfg.Columns
}

// buildQuery picks the statement for the task position: override SQL, unordered pass,
// full ordered scan, bounded range or open range.
func (d *Dumper) buildQuery(md *metadata.TableMetaData) (string, []interface{}, error) {
	if d.cfg.QuerySQL != "" {
		return d.cfg.QuerySQL, nil, nil
	}
	schema, table, columns := d.cfg.Schema, d.cfg.Table, d.projection()
	rangePos, ok := d.cfg.Position.(*position.RangePosition)
	if !ok {
		return d.builder.BuildNoUniqueKeyDumpSQL(schema, table, columns), nil, nil
	}
	keyCol, _, ok := md.DivisibleUniqueKey()
	if !ok {
		return "", nil, errs.NewParameterError("table %s: range position %s needs a single column unique key", d.cfg.LogicTableName, rangePos)
	}
	begin, hasBegin := rangePos.Begin()
	end, hasEnd := rangePos.End()
	switch {
	case !hasBegin && !hasEnd:
		return d.builder.BuildIndivisibleDumpSQL(schema, table, columns, keyCol.Name), nil, nil
	case hasEnd:
		if !hasBegin {
			begin = minimumKey(rangePos.Kind())
		}
		return d.builder.BuildDivisibleDumpSQL(schema, table, columns, keyCol.Name), []interface{}{begin, end}, nil
	default:
		return d.builder.BuildDivisibleDumpSQLNoEnd(schema, table, columns, keyCol.Name), []interface{}{begin}, nil
	}
}

func minimumKey(kind position.KeyKind) interface{} {
	if kind == position.INT_KEY {
		return int64(math.MinInt64)
	}
	return ""
}

func isolationLevel(name string) sql.IsolationLevel {
	switch strings.ToLower(name) {
	case "read_uncommitted":
		return sql.LevelReadUncommitted
	case "read_committed":
		return sql.LevelReadCommitted
	case "repeatable_read":
		return sql.LevelRepeatableRead
	case "serializable":
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}
