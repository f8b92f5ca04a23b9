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
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/consistency"
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/ratelimit"
	"github.com/yugabyte/yb-datamover/src/registry"
)

// CreateCheck compares the source and target tables of a finished job and stores the outcome as a
// check job named "<jobID>-check-<n>".
func (a *API) CreateCheck(ctx context.Context, jobID string, params CheckParams) (*CheckJob, error) {
	jobConfig, err := a.loadJobConfiguration(ctx, jobID)
	if err != nil {
		return nil, err
	}
	status, err := a.loadStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if status.State != constants.JOB_FINISHED {
		return nil, errs.NewParameterError("job %s is %s, only finished jobs can be checked", jobID, status.State)
	}
	seq, err := a.nextCheckSequence(ctx, jobID)
	if err != nil {
		return nil, err
	}
	check := &CheckJob{
		CheckID:     fmt.Sprintf("%s%s%d", jobID, checkInfix, seq),
		ParentJobID: jobID,
		State:       constants.CHECK_RUNNING,
		Params:      params,
		CreatedAt:   time.Now().UTC(),
	}
	if err := registry.PersistJSON(ctx, a.repo, checkKey(check.CheckID), check); err != nil {
		return nil, err
	}
	log.Infof("check %s started", check.CheckID)

	results, err := a.runCheck(ctx, jobConfig, params)
	check.FinishedAt = time.Now().UTC()
	if err == nil {
		check.Results = results
		check.Matched, err = consistency.Aggregate(results)
	}
	check.State = constants.CHECK_FINISHED
	if err != nil {
		check.State = constants.CHECK_FAILED
		check.ErrorMessage = err.Error()
	}
	if err := registry.PersistJSON(context.WithoutCancel(ctx), a.repo, checkKey(check.CheckID), check); err != nil {
		return nil, err
	}
	log.Infof("check %s: %s, matched=%v", check.CheckID, check.State, check.Matched)
	return check, nil
}

// runCheck runs one checker per migration source and merges the per table results.
func (a *API) runCheck(ctx context.Context, jobConfig *JobConfiguration, params CheckParams) (map[string]*consistency.TableResult, error) {
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = jobConfig.Tuning.Concurrency
	}
	checkerConfig := consistency.CheckerConfig{
		JobID:          jobConfig.JobID,
		EstimatedCount: params.EstimatedCount,
		SkipContent:    params.SkipContent,
		PageSize:       params.PageSize,
		Concurrency:    concurrency,
	}
	limiter := ratelimit.NewQPS(jobConfig.Tuning.ReadQPS)
	targetDB, err := a.manager.Get(ctx, jobConfig.Target)
	if err != nil {
		return nil, err
	}
	targetLoader, err := a.metaLoader(jobConfig.Target, targetDB)
	if err != nil {
		return nil, err
	}
	target := consistency.Side{DB: targetDB, DBType: jobConfig.Target.DBType, MetaLoader: targetLoader, Limiter: limiter}

	pairsBySource := map[string][]consistency.TablePair{}
	for _, e := range jobConfig.Entries {
		node := jobConfig.TargetRules[e.TargetTable].FirstDataNode()
		pairsBySource[e.SourceName] = append(pairsBySource[e.SourceName], consistency.TablePair{
			LogicTableName: e.TargetTable,
			SourceSchema:   e.SourceSchema,
			SourceTable:    e.SourceTable,
			TargetSchema:   node.Schema,
			TargetTable:    node.Table,
		})
	}
	results := map[string]*consistency.TableResult{}
	for sourceName, pairs := range pairsBySource {
		desc := jobConfig.Sources[sourceName]
		sourceDB, err := a.manager.Get(ctx, desc)
		if err != nil {
			return nil, err
		}
		sourceLoader, err := a.metaLoader(desc, sourceDB)
		if err != nil {
			return nil, err
		}
		source := consistency.Side{DB: sourceDB, DBType: desc.DBType, MetaLoader: sourceLoader, Limiter: limiter}
		checker, err := consistency.NewChecker(checkerConfig, source, target)
		if err != nil {
			return nil, err
		}
		for table, result := range checker.Check(ctx, pairs) {
			results[table] = result
		}
	}
	return results, nil
}

func (a *API) nextCheckSequence(ctx context.Context, jobID string) (int, error) {
	var seq int
	err := a.repo.Update(ctx, checkSequenceKey(jobID), func(current string, found bool) (string, error) {
		seq = 1
		if found {
			n, err := strconv.Atoi(current)
			if err != nil {
				return "", fmt.Errorf("parse check sequence of job %s: %w", jobID, err)
			}
			seq = n + 1
		}
		return strconv.Itoa(seq), nil
	})
	return seq, err
}

func (a *API) GetCheckResult(ctx context.Context, checkID string) (*CheckJob, error) {
	if parentJobID(checkID) == "" {
		return nil, errs.NewJobNotFoundError(checkID)
	}
	check, found, err := registry.LoadJSON[CheckJob](ctx, a.repo, checkKey(checkID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errs.NewJobNotFoundError(checkID)
	}
	return check, nil
}

func (a *API) DropCheck(ctx context.Context, checkID string) error {
	if _, err := a.GetCheckResult(ctx, checkID); err != nil {
		return err
	}
	if err := a.repo.Delete(ctx, checkKey(checkID)); err != nil {
		return fmt.Errorf("delete check %s: %w", checkID, err)
	}
	log.Infof("dropped check %s", checkID)
	return nil
}
