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

package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"
	"golang.org/x/exp/slices"

	"github.com/yugabyte/yb-datamover/src/config"
	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/datasource"
	"github.com/yugabyte/yb-datamover/src/job"
	"github.com/yugabyte/yb-datamover/src/lock"
	"github.com/yugabyte/yb-datamover/src/registry"
	"github.com/yugabyte/yb-datamover/src/utils"
)

const (
	LOCK_FILE     = "file"
	LOCK_ETCD     = "etcd"
	LOCK_POSTGRES = "postgres"
)

var supportedLockTypes = []string{LOCK_FILE, LOCK_ETCD, LOCK_POSTGRES}

// tuning is filled from the migrate schedule flags; other commands use the defaults.
var tuning = config.Tuning{
	BatchSize:       constants.DEFAULT_BATCH_SIZE,
	ShardingSize:    constants.DEFAULT_SHARDING_SIZE,
	ChannelCapacity: constants.DEFAULT_CHANNEL_CAPACITY,
	Concurrency:     constants.DEFAULT_CONCURRENCY,
	RetryTimes:      constants.DEFAULT_RETRY_TIMES,
}

// environment holds what every job command needs. Its resources are released at exit.
type environment struct {
	repo    registry.Repository
	manager *datasource.Manager
	api     *job.API
}

func newEnvironment() (*environment, error) {
	if !slices.Contains(supportedLockTypes, lockType) {
		return nil, fmt.Errorf("unknown lock type %q, expected one of %v", lockType, supportedLockTypes)
	}
	repo, err := registry.Open(registry.Config{
		Type:    registryType,
		WorkDir: workDir,
		Etcd: registry.EtcdConfig{
			Endpoints: utils.CsvStringToSlice(etcdEndpoints),
			Username:  etcdUsername,
			Password:  etcdPassword,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	env := &environment{repo: repo, manager: datasource.NewManager(logStatements)}
	atexit.Register(env.close)

	targets, err := targetDatabases(appConfig)
	if err != nil {
		return nil, err
	}
	topology := job.NewLiveTopologyLoader(env.manager, targets, shardedTables(appConfig))
	lockProvider, err := env.lockProvider()
	if err != nil {
		return nil, err
	}
	env.api, err = job.NewAPI(repo, env.manager, topology, lockProvider, tuning)
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (env *environment) lockProvider() (job.LockProvider, error) {
	switch lockType {
	case LOCK_ETCD:
		etcdRepo, ok := env.repo.(*registry.EtcdRepository)
		if !ok {
			return nil, fmt.Errorf("the etcd job lock needs --registry etcd")
		}
		return func(jobID string) (lock.Locker, error) {
			return lock.NewEtcdLock(etcdRepo.Client(), registry.DEFAULT_ETCD_ROOT+"/locks/"+jobID), nil
		}, nil
	case LOCK_POSTGRES:
		if lockDBUri == "" {
			return nil, fmt.Errorf(`the postgres job lock needs "lock-db-uri"`)
		}
		return func(jobID string) (lock.Locker, error) {
			db, err := env.manager.Get(context.Background(), &datasource.ConnDescriptor{DBType: constants.POSTGRESQL, Uri: lockDBUri})
			if err != nil {
				return nil, err
			}
			return lock.NewPostgresLock(db, jobID), nil
		}, nil
	default:
		lockDir := filepath.Join(workDir, "locks")
		if err := utils.MkdirAll(lockDir); err != nil {
			return nil, fmt.Errorf("create lock dir: %w", err)
		}
		return func(jobID string) (lock.Locker, error) {
			return lock.NewFileLock(lockDir, jobID)
		}, nil
	}
}

func (env *environment) close() {
	if env.api != nil {
		env.api.Close()
	}
	env.manager.Close()
	if err := env.repo.Close(); err != nil {
		log.Warnf("close registry: %v", err)
	}
}
