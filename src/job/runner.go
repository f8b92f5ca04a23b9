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
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/importer"
	"github.com/yugabyte/yb-datamover/src/inventory"
	"github.com/yugabyte/yb-datamover/src/position"
	"github.com/yugabyte/yb-datamover/src/ratelimit"
	"github.com/yugabyte/yb-datamover/src/registry"
)

const stopPollInterval = 2 * time.Second

// runner drives the inventory tasks of one job in this process.
type runner struct {
	api       *API
	jobConfig *JobConfiguration

	stopped atomic.Bool
	mu      sync.Mutex
	tasks   map[string]*inventory.Task

	done chan struct{}
	err  error
}

func newRunner(a *API, jobConfig *JobConfiguration) *runner {
	return &runner{
		api:       a,
		jobConfig: jobConfig,
		tasks:     make(map[string]*inventory.Task),
		done:      make(chan struct{}),
	}
}

// run returns the state the job ends in: FINISHED when every task reached its finished position, STOPPED otherwise.
func (r *runner) run(ctx context.Context) (string, error) {
	jobID := r.jobConfig.JobID
	go r.watchStopRequests(ctx)

	items, err := r.loadOrSplitTasks(ctx)
	if err != nil {
		return constants.JOB_STOPPED, err
	}
	target, err := r.targetEndpoint(ctx)
	if err != nil {
		return constants.JOB_STOPPED, err
	}
	readLimiter := ratelimit.NewQPS(r.jobConfig.Tuning.ReadQPS)

	p := pool.New().WithMaxGoroutines(r.jobConfig.Tuning.Concurrency).WithContext(ctx).WithCancelOnError()
	for _, item := range items {
		pos, err := position.Decode(item.Position)
		if err != nil {
			return constants.JOB_STOPPED, fmt.Errorf("task %s: %w", item.TaskID, err)
		}
		if position.IsFinished(pos) {
			log.Infof("job %s: task %s already finished", jobID, item.TaskID)
			continue
		}
		p.Go(func(ctx context.Context) error {
			if r.stopped.Load() {
				return nil
			}
			return r.runTask(ctx, item, pos, readLimiter, target)
		})
	}
	err = p.Wait()

	items, loadErr := r.api.loadProgress(ctx, jobID)
	if err == nil {
		err = loadErr
	}
	if err != nil || r.stopped.Load() {
		return constants.JOB_STOPPED, err
	}
	for _, item := range items {
		if item.Position != position.Encode(position.Finished()) {
			return constants.JOB_STOPPED, nil
		}
	}
	return constants.JOB_FINISHED, nil
}

func (r *runner) runTask(ctx context.Context, item *JobItemProgress, pos position.Position,
	readLimiter ratelimit.Limiter, target inventory.Endpoint) error {
	jobID := r.jobConfig.JobID
	source, err := r.sourceEndpoint(ctx, item.SourceName, readLimiter)
	if err != nil {
		return err
	}
	node := r.jobConfig.TargetRules[item.LogicTable].FirstDataNode()
	tuning := r.jobConfig.Tuning
	cfg := inventory.TaskConfig{
		Dumper: inventory.DumperConfig{
			JobID:                jobID,
			TaskID:               item.TaskID,
			Schema:               item.SourceSchema,
			Table:                item.SourceTable,
			LogicTableName:       item.LogicTable,
			Position:             pos,
			BatchSize:            tuning.BatchSize,
			TransactionIsolation: tuning.TransactionIsolation,
		},
		Importer: importer.ImporterConfig{
			JobID:      jobID,
			TaskID:     item.TaskID,
			Schema:     node.Schema,
			Table:      node.Table,
			BatchSize:  tuning.BatchSize,
			RetryTimes: tuning.RetryTimes,
			Upsert:     item.Status != constants.TASK_NOT_STARTED,
		},
		ChannelCapacity: tuning.ChannelCapacity,
	}
	base := item.RecordsImported
	listener := func(ctx context.Context, taskID string, pos position.Position, imported int64) error {
		return registry.UpdateJSON(ctx, r.api.repo, progressKey(jobID, taskID), func(p *JobItemProgress) {
			p.Position = position.Encode(pos)
			p.RecordsImported = base + imported
			p.Status = constants.TASK_RUNNING
			if position.IsFinished(pos) {
				p.Status = constants.TASK_FINISHED
			}
		})
	}
	task, err := inventory.NewTask(cfg, source, target, listener)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.tasks[task.ID] = task
	r.mu.Unlock()
	if r.stopped.Load() {
		task.Stop()
	}
	log.Infof("job %s: starting task %s from %s into %s", jobID, task.ID, pos, node)
	runErr := task.Run(ctx)
	r.mu.Lock()
	delete(r.tasks, task.ID)
	r.mu.Unlock()

	err = registry.UpdateJSON(context.WithoutCancel(ctx), r.api.repo, progressKey(jobID, task.ID), func(p *JobItemProgress) {
		p.Status = task.State()
	})
	if runErr != nil {
		return fmt.Errorf("task %s: %w", task.ID, runErr)
	}
	return err
}

// loadOrSplitTasks returns the persisted progress of a restarted job, or splits every source table
// into tasks and persists their initial progress.
func (r *runner) loadOrSplitTasks(ctx context.Context) ([]*JobItemProgress, error) {
	jobID := r.jobConfig.JobID
	items, err := r.api.loadProgress(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		log.Infof("job %s: resuming %d tasks", jobID, len(items))
		return items, nil
	}
	for _, e := range r.jobConfig.Entries {
		source, err := r.sourceEndpoint(ctx, e.SourceName, nil)
		if err != nil {
			return nil, err
		}
		md, err := source.MetaLoader.Load(ctx, e.SourceSchema, e.SourceTable)
		if err != nil {
			return nil, fmt.Errorf("load metadata of %s.%s: %w", e.SourceSchema, e.SourceTable, err)
		}
		positions, err := inventory.SplitTable(ctx, source.DB, md, r.jobConfig.Tuning.ShardingSize)
		if err != nil {
			return nil, err
		}
		for i, pos := range positions {
			item := &JobItemProgress{
				TaskID:       taskID(e, i),
				LogicTable:   e.TargetTable,
				SourceName:   e.SourceName,
				SourceSchema: e.SourceSchema,
				SourceTable:  e.SourceTable,
				Position:     position.Encode(pos),
				Status:       constants.TASK_NOT_STARTED,
			}
			if err := registry.PersistJSON(ctx, r.api.repo, progressKey(jobID, item.TaskID), item); err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	log.Infof("job %s: split into %d tasks", jobID, len(items))
	return items, nil
}

func taskID(e SourceTargetEntry, index int) string {
	id := fmt.Sprintf("%s.%s.%s.%04d", e.SourceName, e.SourceSchema, e.SourceTable, index)
	return strings.ReplaceAll(id, "/", "_")
}

func (r *runner) sourceEndpoint(ctx context.Context, sourceName string, limiter ratelimit.Limiter) (inventory.Endpoint, error) {
	desc, ok := r.jobConfig.Sources[sourceName]
	if !ok {
		return inventory.Endpoint{}, fmt.Errorf("job %s has no migration source %s", r.jobConfig.JobID, sourceName)
	}
	db, err := r.api.manager.Get(ctx, desc)
	if err != nil {
		return inventory.Endpoint{}, err
	}
	loader, err := r.api.metaLoader(desc, db)
	if err != nil {
		return inventory.Endpoint{}, err
	}
	return inventory.Endpoint{DB: db, DBType: desc.DBType, MetaLoader: loader, Limiter: limiter}, nil
}

func (r *runner) targetEndpoint(ctx context.Context) (inventory.Endpoint, error) {
	desc := r.jobConfig.Target
	db, err := r.api.manager.Get(ctx, desc)
	if err != nil {
		return inventory.Endpoint{}, err
	}
	loader, err := r.api.metaLoader(desc, db)
	if err != nil {
		return inventory.Endpoint{}, err
	}
	limiter := ratelimit.NewTPS(r.jobConfig.Tuning.WriteTPS)
	return inventory.Endpoint{DB: db, DBType: desc.DBType, MetaLoader: loader, Limiter: limiter}, nil
}

// watchStopRequests stops the job when another process persists the STOPPED state. The registry
// is also polled because the sqlite registry only notifies watchers in this process.
func (r *runner) watchStopRequests(ctx context.Context) {
	jobID := r.jobConfig.JobID
	events, err := r.api.repo.Watch(ctx, stateKey(jobID))
	if err != nil {
		log.Warnf("job %s: cannot watch for stop requests: %v", jobID, err)
	}
	ticker := time.NewTicker(stopPollInterval)
	defer ticker.Stop()
	for {
		var value string
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Type != registry.EVENT_PUT {
				continue
			}
			value = ev.Value
		case <-ticker.C:
			text, found, err := r.api.repo.Load(ctx, stateKey(jobID))
			if err != nil || !found {
				continue
			}
			value = text
		}
		var s JobStatus
		if err := json.Unmarshal([]byte(value), &s); err == nil && s.State == constants.JOB_STOPPED && !r.stopped.Load() {
			log.Infof("job %s: stop requested through the registry", jobID)
			r.stop()
		}
	}
}

// stop lets every running task finish the rows already dumped and prevents queued tasks from starting.
func (r *runner) stop() {
	r.stopped.Store(true)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, task := range r.tasks {
		task.Stop()
	}
}

func (r *runner) finish(err error) {
	r.err = err
	close(r.done)
}
