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

	log "github.com/sirupsen/logrus"

	"github.com/yugabyte/yb-datamover/src/datasource"
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/metadata"
)

// TargetTopology is what a target database looks like for the tables of one job.
type TargetTopology struct {
	DatabaseName string
	Descriptor   *datasource.ConnDescriptor
	Rules        map[string]*TableRule
}

type TopologyLoader interface {
	Load(ctx context.Context, targetDatabaseName string, logicTables []string) (*TargetTopology, error)
}

// LiveTopologyLoader resolves logical tables against the catalog of a configured target database.
// A logical table maps to a table of the same name in the default schema unless ShardedTables lists
// its data nodes explicitly.
type LiveTopologyLoader struct {
	Databases     map[string]*datasource.ConnDescriptor
	ShardedTables map[string][]DataNode

	manager *datasource.Manager
}

func NewLiveTopologyLoader(manager *datasource.Manager, databases map[string]*datasource.ConnDescriptor,
	shardedTables map[string][]DataNode) *LiveTopologyLoader {
	return &LiveTopologyLoader{Databases: databases, ShardedTables: shardedTables, manager: manager}
}

func (l *LiveTopologyLoader) Load(ctx context.Context, targetDatabaseName string, logicTables []string) (*TargetTopology, error) {
	desc, ok := l.Databases[targetDatabaseName]
	if !ok {
		return nil, errs.NewParameterError("target database %q is not configured", targetDatabaseName)
	}
	db, err := l.manager.Get(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("connect to target database %s: %w", targetDatabaseName, err)
	}
	catalog, err := metadata.NewCatalogLoader(db, desc.DBType)
	if err != nil {
		return nil, err
	}

	topology := &TargetTopology{
		DatabaseName: targetDatabaseName,
		Descriptor:   desc,
		Rules:        make(map[string]*TableRule, len(logicTables)),
	}
	for _, logicTable := range logicTables {
		nodes := append([]DataNode(nil), l.ShardedTables[logicTable]...)
		if len(nodes) == 0 {
			nodes = []DataNode{{Schema: desc.DefaultSchema(), Table: logicTable}}
		}
		for i, node := range nodes {
			if node.Schema == "" {
				nodes[i].Schema = desc.DefaultSchema()
			}
			if _, err := catalog.Load(ctx, nodes[i].Schema, node.Table); err != nil {
				return nil, errs.WrapParameterError(err, "target table %s of %s not found in %s", nodes[i], logicTable, targetDatabaseName)
			}
		}
		log.Infof("logic table %s of %s resolves to %v", logicTable, targetDatabaseName, nodes)
		topology.Rules[logicTable] = &TableRule{LogicTable: logicTable, DataNodes: nodes}
	}
	return topology, nil
}
