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

package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/godror/godror"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/simukti/sqldb-logger/logadapter/logrusadapter"
	log "github.com/sirupsen/logrus"

	"github.com/yugabyte/yb-datamover/src/dbtype"
	"github.com/yugabyte/yb-datamover/src/utils"
)

// Manager hands out one shared *sql.DB per physical database.
type Manager struct {
	// LogStatements wraps every pool with a statement logger writing to the logrus standard logger.
	LogStatements bool

	mu    sync.Mutex
	pools map[string]*sql.DB
}

func NewManager(logStatements bool) *Manager {
	return &Manager{LogStatements: logStatements, pools: make(map[string]*sql.DB)}
}

func (m *Manager) Get(ctx context.Context, desc *ConnDescriptor) (*sql.DB, error) {
	key := desc.Key()
	m.mu.Lock()
	defer m.mu.Unlock()
	if db, ok := m.pools[key]; ok {
		return db, nil
	}
	db, err := m.open(ctx, desc)
	if err != nil {
		return nil, err
	}
	m.pools[key] = db
	return db, nil
}

func (m *Manager) open(ctx context.Context, desc *ConnDescriptor) (*sql.DB, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	descriptor, err := dbtype.Get(desc.DBType)
	if err != nil {
		return nil, err
	}
	dsn, err := desc.DSN()
	if err != nil {
		return nil, err
	}
	log.Infof("opening connection pool to %s using driver %s: %s", desc.DBType, descriptor.DriverName, utils.RedactPassword(dsn))
	db, err := sql.Open(descriptor.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", desc, err)
	}
	if m.LogStatements {
		drv := db.Driver()
		db.Close()
		db = sqldblogger.OpenDriver(dsn, drv, logrusadapter.New(log.StandardLogger()),
			sqldblogger.WithSQLQueryAsMessage(true),
			sqldblogger.WithMinimumLevel(sqldblogger.LevelDebug))
	}
	if desc.NumConnections > 0 {
		db.SetMaxOpenConns(desc.NumConnections)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to %s: %w", desc, err)
	}
	return db, nil
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, db := range m.pools {
		if err := db.Close(); err != nil {
			log.Warnf("closing connection pool %s: %v", key, err)
		}
	}
	m.pools = make(map[string]*sql.DB)
}
