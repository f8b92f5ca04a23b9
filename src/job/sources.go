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
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/yugabyte/yb-datamover/src/datasource"
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/registry"
)

// RegisterMigrationSource stores a named source database that jobs can read from.
func (a *API) RegisterMigrationSource(ctx context.Context, name string, desc *datasource.ConnDescriptor) error {
	if name == "" {
		return errs.NewParameterError("migration source name is required")
	}
	if err := desc.Validate(); err != nil {
		return err
	}
	_, found, err := a.repo.Load(ctx, sourceKey(name))
	if err != nil {
		return fmt.Errorf("load migration source %s: %w", name, err)
	}
	if found {
		return errs.NewParameterError("migration source %s is already registered", name)
	}
	if err := registry.PersistJSON(ctx, a.repo, sourceKey(name), &MigrationSource{Name: name, Descriptor: desc.Clone()}); err != nil {
		return err
	}
	log.Infof("registered migration source %s: %s", name, desc)
	return nil
}

// UnregisterMigrationSource refuses to remove a source still used by a job.
func (a *API) UnregisterMigrationSource(ctx context.Context, name string) error {
	_, found, err := a.repo.Load(ctx, sourceKey(name))
	if err != nil {
		return fmt.Errorf("load migration source %s: %w", name, err)
	}
	if !found {
		return errs.NewMissingStorageUnitError([]string{name})
	}
	jobs, err := a.List(ctx)
	if err != nil {
		return err
	}
	for _, info := range jobs {
		c, err := a.loadJobConfiguration(ctx, info.JobID)
		if err != nil {
			return err
		}
		if _, ok := c.Sources[name]; ok {
			return errs.NewParameterError("migration source %s is used by job %s", name, info.JobID)
		}
	}
	if err := a.repo.Delete(ctx, sourceKey(name)); err != nil {
		return fmt.Errorf("delete migration source %s: %w", name, err)
	}
	log.Infof("unregistered migration source %s", name)
	return nil
}

func (a *API) ListMigrationSources(ctx context.Context) ([]*MigrationSource, error) {
	kvs, err := a.repo.List(ctx, sourcesPrefix)
	if err != nil {
		return nil, fmt.Errorf("list migration sources: %w", err)
	}
	sources := make([]*MigrationSource, 0, len(kvs))
	for _, key := range registry.SortedKeys(kvs) {
		s := &MigrationSource{}
		if err := json.Unmarshal([]byte(kvs[key]), s); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", key, err)
		}
		sources = append(sources, s)
	}
	return sources, nil
}

// loadSources resolves every name or fails with the full list of unregistered ones.
func (a *API) loadSources(ctx context.Context, names []string) (map[string]*datasource.ConnDescriptor, error) {
	sources := make(map[string]*datasource.ConnDescriptor, len(names))
	var missing []string
	for _, name := range names {
		s, found, err := registry.LoadJSON[MigrationSource](ctx, a.repo, sourceKey(name))
		if err != nil {
			return nil, err
		}
		if !found {
			missing = append(missing, name)
			continue
		}
		sources[name] = s.Descriptor
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errs.NewMissingStorageUnitError(missing)
	}
	return sources, nil
}
