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
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yugabyte/yb-datamover/src/channel"
	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/importer"
	"github.com/yugabyte/yb-datamover/src/metadata"
	"github.com/yugabyte/yb-datamover/src/position"
	"github.com/yugabyte/yb-datamover/src/ratelimit"
	"github.com/yugabyte/yb-datamover/src/record"
)

// Endpoint is one side of an inventory task.
type Endpoint struct {
	DB         *sql.DB
	DBType     string
	MetaLoader metadata.Loader
	Limiter    ratelimit.Limiter
}

type TaskConfig struct {
	Dumper          DumperConfig
	Importer        importer.ImporterConfig
	ChannelCapacity int
}

// ProgressListener is told about every acknowledged batch with the position to resume from
// and the number of records imported so far.
type ProgressListener func(ctx context.Context, taskID string, pos position.Position, recordsImported int64) error

// Task moves one range of one table: a dumper and an importer joined by a memory channel.
type Task struct {
	ID       string
	dumper   *Dumper
	importer *importer.Importer
	channel  *channel.MemoryChannel
	acked    atomic.Int64
	// finished is set when the task starts from a finished position and has nothing to move.
	finished bool
}

func NewTask(cfg TaskConfig, source, target Endpoint, listener ProgressListener) (*Task, error) {
	task := &Task{ID: cfg.Dumper.TaskID, finished: position.IsFinished(cfg.Dumper.Position)}
	ackCallback := func(ctx context.Context, records []record.Record) error {
		imported := task.acked.Add(int64(len(record.DataRecords(records))))
		if listener == nil || len(records) == 0 {
			return nil
		}
		return listener(ctx, task.ID, records[len(records)-1].Position(), imported)
	}
	task.channel = channel.NewMemoryChannel(cfg.ChannelCapacity, ackCallback)

	var err error
	task.dumper, err = NewDumper(cfg.Dumper, source.DB, source.DBType, source.MetaLoader, task.channel, source.Limiter)
	if err != nil {
		return nil, err
	}
	if cfg.Importer.TaskID == "" {
		cfg.Importer.TaskID = cfg.Dumper.TaskID
	}
	task.importer, err = importer.NewImporter(cfg.Importer, target.DB, target.DBType, target.MetaLoader, task.channel, target.Limiter)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Run returns once both sides are done. A failed importer closes the channel so the dumper does not block.
func (t *Task) Run(ctx context.Context) error {
	if t.finished {
		log.Infof("task %s: already finished", t.ID)
		return t.dumper.Run(ctx)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.dumper.Run(gctx)
	})
	g.Go(func() error {
		err := t.importer.Run(gctx)
		if err != nil || t.importer.State() != constants.TASK_FINISHED {
			t.channel.Close()
		}
		return err
	})
	err := g.Wait()
	log.Infof("task %s: %s, %d records imported", t.ID, t.State(), t.RecordsImported())
	return err
}

// Stop ends the dump early. The importer still applies what was dumped and acknowledges the final position.
func (t *Task) Stop() {
	t.dumper.Stop()
}

func (t *Task) State() string {
	dumperState, importerState := t.dumper.State(), t.importer.State()
	switch {
	case t.finished:
		return dumperState
	case dumperState == constants.TASK_FINISHED && importerState == constants.TASK_FINISHED:
		return constants.TASK_FINISHED
	case dumperState == constants.TASK_RUNNING || importerState == constants.TASK_RUNNING:
		return constants.TASK_RUNNING
	case dumperState == constants.TASK_NOT_STARTED && importerState == constants.TASK_NOT_STARTED:
		return constants.TASK_NOT_STARTED
	default:
		return constants.TASK_STOPPED
	}
}

func (t *Task) RecordsImported() int64 {
	return t.acked.Load()
}
