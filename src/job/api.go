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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/yugabyte/yb-datamover/src/config"
	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/datasource"
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/lock"
	"github.com/yugabyte/yb-datamover/src/metadata"
	"github.com/yugabyte/yb-datamover/src/metrics"
	"github.com/yugabyte/yb-datamover/src/registry"
)

// jobNamespace seeds the content addressed job ids.
var jobNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://yugabyte.com/yb-datamover/jobs"))

// LockProvider returns the lock guarding one job. Start holds it while the job runs.
type LockProvider func(jobID string) (lock.Locker, error)

// API schedules, runs and finalises migration jobs. Job state lives in the registry so that
// any process sharing it can inspect, stop or finalise a job.
type API struct {
	repo     registry.Repository
	manager  *datasource.Manager
	topology TopologyLoader
	newLock  LockProvider
	defaults config.Tuning

	mu      sync.Mutex
	runners map[string]*runner
	loaders map[string]*metadata.CachingLoader
}

func NewAPI(repo registry.Repository, manager *datasource.Manager, topology TopologyLoader,
	lockProvider LockProvider, defaults config.Tuning) (*API, error) {
	if err := defaults.Validate(); err != nil {
		return nil, errs.WrapParameterError(err, "invalid job tuning")
	}
	return &API{
		repo:     repo,
		manager:  manager,
		topology: topology,
		newLock:  lockProvider,
		defaults: defaults,
		runners:  make(map[string]*runner),
		loaders:  make(map[string]*metadata.CachingLoader),
	}, nil
}

// Schedule creates a job moving the given source tables into targetDatabaseName and starts it.
// Scheduling the same migration twice yields the same job id.
func (a *API) Schedule(ctx context.Context, entries []SourceTargetEntry, targetDatabaseName string) (string, error) {
	jobConfig, err := a.buildJobConfiguration(ctx, entries, targetDatabaseName)
	if err != nil {
		return "", err
	}
	_, found, err := a.repo.Load(ctx, configKey(jobConfig.JobID))
	if err != nil {
		return "", fmt.Errorf("load job %s: %w", jobConfig.JobID, err)
	}
	if found {
		return "", errs.NewParameterError("job %s for the same migration already exists, commit or roll it back first", jobConfig.JobID)
	}
	if err := registry.PersistJSON(ctx, a.repo, configKey(jobConfig.JobID), jobConfig); err != nil {
		return "", err
	}
	if err := a.persistState(ctx, jobConfig.JobID, constants.JOB_SCHEDULED, ""); err != nil {
		return "", err
	}
	log.Infof("scheduled job %s: %d tables into %s", jobConfig.JobID, len(jobConfig.Entries), targetDatabaseName)
	return jobConfig.JobID, a.Start(ctx, jobConfig.JobID)
}

func (a *API) buildJobConfiguration(ctx context.Context, entries []SourceTargetEntry, targetDatabaseName string) (*JobConfiguration, error) {
	if len(entries) == 0 {
		return nil, errs.NewParameterError("no source tables to migrate")
	}
	if targetDatabaseName == "" {
		return nil, errs.NewParameterError("target database name is required")
	}
	targets := map[string]bool{}
	for _, e := range entries {
		if e.SourceName == "" || e.SourceTable == "" || e.TargetTable == "" {
			return nil, errs.NewParameterError("incomplete table mapping %+v", e)
		}
		if targets[e.TargetTable] {
			return nil, errs.NewParameterError("duplicate target table %s", e.TargetTable)
		}
		targets[e.TargetTable] = true
	}

	sources, err := a.loadSources(ctx, lo.Uniq(lo.Map(entries, func(e SourceTargetEntry, _ int) string { return e.SourceName })))
	if err != nil {
		return nil, err
	}
	names := lo.Keys(sources)
	sort.Strings(names)
	sourceType := ""
	for _, name := range names {
		t := sources[name].DBType
		if sourceType == "" {
			sourceType = t
			continue
		}
		if databaseFamily(t) != databaseFamily(sourceType) {
			return nil, errs.NewParameterError("migration sources mix database types %s and %s", sourceType, t)
		}
	}

	jobConfig := &JobConfiguration{
		SourceDatabaseType: sourceType,
		Sources:            sources,
		TargetDatabaseName: targetDatabaseName,
		Entries:            make([]SourceTargetEntry, len(entries)),
		Tuning:             a.defaults,
	}
	for i, e := range entries {
		if e.SourceSchema == "" {
			e.SourceSchema = sources[e.SourceName].DefaultSchema()
		}
		jobConfig.Entries[i] = e
	}
	topology, err := a.topology.Load(ctx, targetDatabaseName, jobConfig.LogicTables())
	if err != nil {
		return nil, err
	}
	jobConfig.Target = topology.Descriptor
	jobConfig.TargetRules = topology.Rules
	jobConfig.JobID, err = computeJobID(jobConfig)
	if err != nil {
		return nil, err
	}
	jobConfig.CreatedAt = time.Now().UTC()
	return jobConfig, nil
}

// computeJobID hashes everything that identifies a migration: the table mapping, the target and its layout.
// Entries are hashed in target table order so the id does not depend on the order they were listed in.
func computeJobID(c *JobConfiguration) (string, error) {
	entries := slices.Clone(c.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].TargetTable < entries[j].TargetTable })
	layout := struct {
		SourceDatabaseType string                `json:"source_database_type"`
		TargetDatabaseName string                `json:"target_database_name"`
		Entries            []SourceTargetEntry   `json:"entries"`
		TargetRules        map[string]*TableRule `json:"target_rules"`
	}{c.SourceDatabaseType, c.TargetDatabaseName, entries, c.TargetRules}
	bytes, err := json.Marshal(layout)
	if err != nil {
		return "", fmt.Errorf("marshal job layout: %w", err)
	}
	return strings.ReplaceAll(uuid.NewSHA1(jobNamespace, bytes).String(), "-", ""), nil
}

func databaseFamily(dbType string) string {
	if dbType == constants.YUGABYTEDB {
		return constants.POSTGRESQL
	}
	return dbType
}

// Start runs a scheduled or stopped job in the background. It fails if another process holds the job lock.
func (a *API) Start(ctx context.Context, jobID string) error {
	jobConfig, err := a.loadJobConfiguration(ctx, jobID)
	if err != nil {
		return err
	}
	status, err := a.loadStatus(ctx, jobID)
	if err != nil {
		return err
	}
	if status.State == constants.JOB_FINISHED {
		log.Infof("job %s already finished", jobID)
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.runners[jobID]; ok {
		return errs.NewParameterError("job %s is already running", jobID)
	}
	locker, err := a.newLock(jobID)
	if err != nil {
		return fmt.Errorf("create lock for job %s: %w", jobID, err)
	}
	if err := locker.TryLock(ctx); err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return errs.NewParameterError("job %s is running in another process", jobID)
		}
		return fmt.Errorf("lock job %s: %w", jobID, err)
	}
	if err := a.persistState(ctx, jobID, constants.JOB_RUNNING, ""); err != nil {
		a.unlock(locker, jobID)
		return err
	}

	r := newRunner(a, jobConfig)
	a.runners[jobID] = r
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		defer cancel()
		state, runErr := r.run(runCtx)
		message := ""
		if runErr != nil {
			message = runErr.Error()
			log.Errorf("job %s: %v", jobID, runErr)
		}
		if err := a.persistState(runCtx, jobID, state, message); err != nil {
			log.Errorf("job %s: persist state %s: %v", jobID, state, err)
		}
		a.unlock(locker, jobID)
		a.mu.Lock()
		delete(a.runners, jobID)
		a.mu.Unlock()
		r.finish(runErr)
		log.Infof("job %s: %s", jobID, state)
	}()
	return nil
}

func (a *API) unlock(locker lock.Locker, jobID string) {
	if err := locker.Unlock(context.Background()); err != nil {
		log.Warnf("unlock job %s: %v", jobID, err)
	}
}

// Wait blocks until the job started by this process returns. It returns at once for jobs not running here.
func (a *API) Wait(ctx context.Context, jobID string) error {
	a.mu.Lock()
	r, ok := a.runners[jobID]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop asks a running job to stop and waits for it when it runs in this process. A job running
// in another process sees the STOPPED state through the registry and stops itself.
func (a *API) Stop(ctx context.Context, jobID string) error {
	status, err := a.loadStatus(ctx, jobID)
	if err != nil {
		return err
	}
	a.mu.Lock()
	r, ok := a.runners[jobID]
	a.mu.Unlock()
	if ok {
		log.Infof("stopping job %s", jobID)
		r.stop()
		<-r.done
		return nil
	}
	switch status.State {
	case constants.JOB_RUNNING, constants.JOB_SCHEDULED:
		return a.persistState(ctx, jobID, constants.JOB_STOPPED, "")
	}
	return nil
}

func (a *API) Status(ctx context.Context, jobID string) (*JobInfo, error) {
	jobConfig, err := a.loadJobConfiguration(ctx, jobID)
	if err != nil {
		return nil, err
	}
	status, err := a.loadStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return newJobInfo(jobConfig, status), nil
}

func newJobInfo(c *JobConfiguration, s *JobStatus) *JobInfo {
	return &JobInfo{
		JobID:              c.JobID,
		State:              s.State,
		ErrorMessage:       s.ErrorMessage,
		TargetDatabaseName: c.TargetDatabaseName,
		Tables:             c.LogicTables(),
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

// List returns every job that is not finalised, oldest first.
func (a *API) List(ctx context.Context) ([]*JobInfo, error) {
	kvs, err := a.repo.List(ctx, jobsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var infos []*JobInfo
	for _, key := range registry.SortedKeys(kvs) {
		if !strings.HasSuffix(key, "/config") {
			continue
		}
		var c JobConfiguration
		if err := json.Unmarshal([]byte(kvs[key]), &c); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", key, err)
		}
		var s JobStatus
		if text, ok := kvs[stateKey(c.JobID)]; ok {
			if err := json.Unmarshal([]byte(text), &s); err != nil {
				return nil, fmt.Errorf("unmarshal %s: %w", stateKey(c.JobID), err)
			}
		}
		infos = append(infos, newJobInfo(&c, &s))
	}
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos, nil
}

// Progress lists the inventory tasks of a job ordered by task id.
func (a *API) Progress(ctx context.Context, jobID string) ([]*JobItemProgress, error) {
	if _, err := a.loadJobConfiguration(ctx, jobID); err != nil {
		return nil, err
	}
	return a.loadProgress(ctx, jobID)
}

func (a *API) loadProgress(ctx context.Context, jobID string) ([]*JobItemProgress, error) {
	kvs, err := a.repo.List(ctx, progressPrefix(jobID))
	if err != nil {
		return nil, fmt.Errorf("list progress of job %s: %w", jobID, err)
	}
	items := make([]*JobItemProgress, 0, len(kvs))
	for _, key := range registry.SortedKeys(kvs) {
		item := &JobItemProgress{}
		if err := json.Unmarshal([]byte(kvs[key]), item); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", key, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// WatchJobs streams job state changes until ctx is done.
func (a *API) WatchJobs(ctx context.Context) (<-chan JobEvent, error) {
	events, err := a.repo.Watch(ctx, jobsPrefix)
	if err != nil {
		return nil, fmt.Errorf("watch jobs: %w", err)
	}
	out := make(chan JobEvent)
	go func() {
		defer close(out)
		for ev := range events {
			jobID, ok := jobIDFromStateKey(ev.Key)
			if !ok || ev.Type != registry.EVENT_PUT {
				continue
			}
			var s JobStatus
			if err := json.Unmarshal([]byte(ev.Value), &s); err != nil {
				log.Warnf("ignoring malformed job state %s: %v", ev.Key, err)
				continue
			}
			select {
			case out <- JobEvent{JobID: jobID, State: s.State}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (a *API) loadJobConfiguration(ctx context.Context, jobID string) (*JobConfiguration, error) {
	c, found, err := registry.LoadJSON[JobConfiguration](ctx, a.repo, configKey(jobID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errs.NewJobNotFoundError(jobID)
	}
	return c, nil
}

func (a *API) loadStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	s, found, err := registry.LoadJSON[JobStatus](ctx, a.repo, stateKey(jobID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errs.NewJobNotFoundError(jobID)
	}
	return s, nil
}

func (a *API) persistState(ctx context.Context, jobID, state, message string) error {
	s := &JobStatus{JobID: jobID, State: state, ErrorMessage: message, UpdatedAt: time.Now().UTC()}
	if err := registry.PersistJSON(ctx, a.repo, stateKey(jobID), s); err != nil {
		return fmt.Errorf("persist state of job %s: %w", jobID, err)
	}
	a.refreshStateMetrics(ctx)
	return nil
}

func (a *API) refreshStateMetrics(ctx context.Context) {
	kvs, err := a.repo.List(ctx, jobsPrefix)
	if err != nil {
		log.Warnf("refresh job state metrics: %v", err)
		return
	}
	counts := map[string]int{}
	for key, value := range kvs {
		if _, ok := jobIDFromStateKey(key); !ok {
			continue
		}
		var s JobStatus
		if err := json.Unmarshal([]byte(value), &s); err == nil {
			counts[s.State]++
		}
	}
	metrics.SetJobStateCounts(counts)
}

// metaLoader returns the shared metadata cache of one physical database.
func (a *API) metaLoader(desc *datasource.ConnDescriptor, db *sql.DB) (*metadata.CachingLoader, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := desc.Key()
	if l, ok := a.loaders[key]; ok {
		return l, nil
	}
	catalog, err := metadata.NewCatalogLoader(db, desc.DBType)
	if err != nil {
		return nil, err
	}
	l := metadata.NewCachingLoader(catalog)
	a.loaders[key] = l
	return l, nil
}

// Close stops every job running in this process.
func (a *API) Close() {
	a.mu.Lock()
	runners := lo.Values(a.runners)
	a.mu.Unlock()
	for _, r := range runners {
		r.stop()
		<-r.done
	}
}
