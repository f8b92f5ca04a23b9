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
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/lock"
	"github.com/yugabyte/yb-datamover/src/registry"
	"github.com/yugabyte/yb-datamover/src/sqlbuilder"
)

// Commit accepts the migrated data: the job and its checks are removed and the target metadata reloaded.
func (a *API) Commit(ctx context.Context, jobID string) error {
	jobConfig, release, err := a.prepareFinalise(ctx, jobID)
	if err != nil {
		return err
	}
	defer release()

	a.dropChecks(ctx, jobID)
	a.refreshTargetMetadata(ctx, jobConfig)
	return a.finalise(ctx, jobID, constants.JOB_COMMITTED)
}

// Rollback drops every target table of the job. A table that cannot be dropped does not stop the
// others; the job record is kept in that case so the rollback can be retried.
func (a *API) Rollback(ctx context.Context, jobID string) error {
	jobConfig, release, err := a.prepareFinalise(ctx, jobID)
	if err != nil {
		return err
	}
	defer release()

	a.dropChecks(ctx, jobID)
	if err := a.dropTargetTables(ctx, jobConfig); err != nil {
		return fmt.Errorf("rollback job %s: %w", jobID, err)
	}
	return a.finalise(ctx, jobID, constants.JOB_ROLLED_BACK)
}

// prepareFinalise stops the job and holds its lock until release is called.
func (a *API) prepareFinalise(ctx context.Context, jobID string) (*JobConfiguration, func(), error) {
	jobConfig, err := a.loadJobConfiguration(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if err := a.Stop(ctx, jobID); err != nil {
		return nil, nil, err
	}
	locker, err := a.newLock(jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("create lock for job %s: %w", jobID, err)
	}
	if err := locker.TryLock(ctx); err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil, nil, errs.NewParameterError("job %s is still running in another process", jobID)
		}
		return nil, nil, fmt.Errorf("lock job %s: %w", jobID, err)
	}
	return jobConfig, func() { a.unlock(locker, jobID) }, nil
}

func (a *API) finalise(ctx context.Context, jobID, state string) error {
	if err := a.repo.DeletePrefix(ctx, jobPrefix(jobID)); err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	if err := registry.PersistJSON(ctx, a.repo, auditKey(jobID), &AuditEntry{JobID: jobID, State: state, At: time.Now().UTC()}); err != nil {
		return err
	}
	a.refreshStateMetrics(ctx)
	log.Infof("job %s: %s", jobID, state)
	return nil
}

// dropChecks removes the check jobs of a job. Failures are logged and otherwise ignored.
func (a *API) dropChecks(ctx context.Context, jobID string) {
	kvs, err := a.repo.List(ctx, checksPrefix(jobID))
	if err != nil {
		log.Warnf("%v", errs.NewSubordinateCleanupError(jobID, "*", err))
		return
	}
	var result *multierror.Error
	for _, key := range registry.SortedKeys(kvs) {
		if err := a.repo.Delete(ctx, key); err != nil {
			result = multierror.Append(result, errs.NewSubordinateCleanupError(jobID, key, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		log.Warnf("job %s: ignoring check cleanup failures: %v", jobID, err)
	}
}

func (a *API) refreshTargetMetadata(ctx context.Context, jobConfig *JobConfiguration) {
	db, err := a.manager.Get(ctx, jobConfig.Target)
	if err != nil {
		log.Warnf("job %s: refresh target metadata: %v", jobConfig.JobID, err)
		return
	}
	loader, err := a.metaLoader(jobConfig.Target, db)
	if err != nil {
		log.Warnf("job %s: refresh target metadata: %v", jobConfig.JobID, err)
		return
	}
	for _, rule := range jobConfig.TargetRules {
		for _, node := range rule.DataNodes {
			loader.Invalidate(node.Schema, node.Table)
			if _, err := loader.Load(ctx, node.Schema, node.Table); err != nil {
				log.Warnf("job %s: reload metadata of %s: %v", jobConfig.JobID, node, err)
			}
		}
	}
}

func (a *API) dropTargetTables(ctx context.Context, jobConfig *JobConfiguration) error {
	db, err := a.manager.Get(ctx, jobConfig.Target)
	if err != nil {
		return err
	}
	builder, err := sqlbuilder.Get(jobConfig.Target.DBType)
	if err != nil {
		return err
	}
	loader, err := a.metaLoader(jobConfig.Target, db)
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, logicTable := range jobConfig.LogicTables() {
		for _, node := range jobConfig.TargetRules[logicTable].DataNodes {
			query := builder.BuildDropSQL(node.Schema, node.Table)
			log.Infof("job %s: %s", jobConfig.JobID, query)
			if _, err := db.ExecContext(ctx, query); err != nil {
				result = multierror.Append(result, fmt.Errorf("drop %s: %w", node, err))
				continue
			}
			loader.Invalidate(node.Schema, node.Table)
		}
	}
	return result.ErrorOrNil()
}
