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

package importer

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugabyte/yb-datamover/src/channel"
	"github.com/yugabyte/yb-datamover/src/constants"
	"github.com/yugabyte/yb-datamover/src/dbtype"
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/metadata"
	"github.com/yugabyte/yb-datamover/src/position"
	"github.com/yugabyte/yb-datamover/src/record"
)

type staticLoader struct {
	md *metadata.TableMetaData
}

func (l staticLoader) Load(ctx context.Context, schema, table string) (*metadata.TableMetaData, error) {
	return l.md, nil
}

func userMetaData(dbType string) *metadata.TableMetaData {
	return metadata.NewTableMetaData(dbType, "", "t_user", []*metadata.ColumnMetaData{
		{Name: "id", Ordinal: 1, Type: dbtype.ColumnType{Code: dbtype.BIGINT}, PrimaryKey: true, Visible: true},
		{Name: "name", Ordinal: 2, Type: dbtype.ColumnType{Code: dbtype.VARCHAR}, Visible: true, Scale: -1},
	}, []string{"id"})
}

func userRecord(typ record.RecordType, id int64, name string) *record.DataRecord {
	r := record.NewDataRecord(typ, "src_user", position.IntRangeFrom(id), 2)
	r.AddColumn(record.Column{Name: "id", Value: id, UniqueKey: true, Updated: true})
	r.AddColumn(record.Column{Name: "name", Value: name, Updated: true})
	return r
}

type fixture struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	channel  *channel.MemoryChannel
	acked    [][]record.Record
	importer *Importer
}

func newFixture(t *testing.T, dbType string, cfg ImporterConfig) *fixture {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	f := &fixture{db: db, mock: mock}
	f.channel = channel.NewMemoryChannel(8, func(ctx context.Context, records []record.Record) error {
		f.acked = append(f.acked, records)
		return nil
	})
	cfg.TaskID = "task-0"
	cfg.Table = "t_user"
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	cfg.RetryInterval = time.Millisecond
	cfg.FetchTimeout = 50 * time.Millisecond
	f.importer, err = NewImporter(cfg, db, dbType, staticLoader{userMetaData(dbType)}, f.channel, nil)
	require.NoError(t, err)
	return f
}

func (f *fixture) push(t *testing.T, records ...record.Record) {
	require.NoError(t, f.channel.Push(context.Background(), records))
}

func TestInsertBatchInOneTransaction(t *testing.T) {
	f := newFixture(t, constants.MYSQL, ImporterConfig{})
	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO t_user(id,name) VALUES(?,?)").WithArgs(int64(1), "a").WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec("INSERT INTO t_user(id,name) VALUES(?,?)").WithArgs(int64(2), "b").WillReturnResult(sqlmock.NewResult(2, 1))
	f.mock.ExpectCommit()
	f.push(t, userRecord(record.INSERT, 1, "a"), userRecord(record.INSERT, 2, "b"), record.NewFinishedRecord(position.Finished()))

	require.NoError(t, f.importer.Run(context.Background()))
	assert.Equal(t, constants.TASK_FINISHED, f.importer.State())
	assert.EqualValues(t, 2, f.importer.RecordsImported())
	require.Len(t, f.acked, 1)
	assert.Len(t, f.acked[0], 3)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestFailedBatchIsRetried(t *testing.T) {
	f := newFixture(t, constants.POSTGRESQL, ImporterConfig{RetryTimes: 2})
	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO t_user(id,name) VALUES($1,$2)").WillReturnError(errors.New("serialization failure"))
	f.mock.ExpectRollback()
	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO t_user(id,name) VALUES($1,$2)").WithArgs(int64(1), "a").WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectCommit()
	f.push(t, userRecord(record.INSERT, 1, "a"), record.NewFinishedRecord(position.Finished()))

	require.NoError(t, f.importer.Run(context.Background()))
	assert.EqualValues(t, 1, f.importer.RecordsImported())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRetriesExhausted(t *testing.T) {
	f := newFixture(t, constants.POSTGRESQL, ImporterConfig{RetryTimes: 1})
	for i := 0; i < 2; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectExec("INSERT INTO t_user(id,name) VALUES($1,$2)").WillReturnError(errors.New("disk full"))
		f.mock.ExpectRollback()
	}
	f.push(t, userRecord(record.INSERT, 1, "a"))

	err := f.importer.Run(context.Background())
	var ingestErr *errs.IngestError
	require.ErrorAs(t, err, &ingestErr)
	assert.Equal(t, errs.INGEST_STEP_APPLY_BATCH, ingestErr.Step())
	assert.Equal(t, constants.TASK_STOPPED, f.importer.State())
	assert.Empty(t, f.acked)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpsertFallsBackToDeleteAndInsert(t *testing.T) {
	f := newFixture(t, constants.ORACLE, ImporterConfig{Upsert: true})
	f.mock.ExpectBegin()
	f.mock.ExpectExec("DELETE FROM t_user WHERE id = :1").WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO t_user(id,name) VALUES(:1,:2)").WithArgs(int64(7), "g").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
	f.push(t, userRecord(record.INSERT, 7, "g"), record.NewFinishedRecord(position.Finished()))

	require.NoError(t, f.importer.Run(context.Background()))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestNativeUpsert(t *testing.T) {
	f := newFixture(t, constants.POSTGRESQL, ImporterConfig{Upsert: true})
	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO t_user(id,name) VALUES($1,$2) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name").
		WithArgs(int64(7), "g").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
	f.push(t, userRecord(record.INSERT, 7, "g"), record.NewFinishedRecord(position.Finished()))

	require.NoError(t, f.importer.Run(context.Background()))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t, constants.POSTGRESQL, ImporterConfig{})
	f.mock.ExpectBegin()
	f.mock.ExpectExec("UPDATE t_user SET name = $1 WHERE id = $2").WithArgs("z", int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("DELETE FROM t_user WHERE id = $1").WithArgs(int64(4)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
	f.push(t, userRecord(record.UPDATE, 3, "z"), userRecord(record.DELETE, 4, "d"), record.NewFinishedRecord(position.Finished()))

	require.NoError(t, f.importer.Run(context.Background()))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUnknownColumnIsParameterError(t *testing.T) {
	f := newFixture(t, constants.MYSQL, ImporterConfig{RetryTimes: 3})
	r := userRecord(record.INSERT, 1, "a")
	r.AddColumn(record.Column{Name: "email", Value: "a@example.com", Updated: true})
	f.push(t, r)

	err := f.importer.Run(context.Background())
	assert.True(t, errs.IsParameterError(err), "got %v", err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStopWhileIdle(t *testing.T) {
	f := newFixture(t, constants.MYSQL, ImporterConfig{})
	done := make(chan error, 1)
	go func() { done <- f.importer.Run(context.Background()) }()
	require.Eventually(t, func() bool { return f.importer.State() == constants.TASK_RUNNING }, 5*time.Second, 5*time.Millisecond)
	f.importer.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("importer did not stop")
	}
	assert.Equal(t, constants.TASK_STOPPED, f.importer.State())
}

func TestNewImporterValidatesConfig(t *testing.T) {
	_, err := NewImporter(ImporterConfig{BatchSize: 0}, nil, constants.MYSQL, nil, nil, nil)
	assert.True(t, errs.IsParameterError(err))
	_, err = NewImporter(ImporterConfig{BatchSize: 1, RetryTimes: -1}, nil, constants.MYSQL, nil, nil, nil)
	assert.True(t, errs.IsParameterError(err))
	_, err = NewImporter(ImporterConfig{BatchSize: 1}, nil, "db2", nil, nil, nil)
	assert.True(t, errs.IsParameterError(err))
}

func TestRecordColumnsMustMatchTarget(t *testing.T) {
	missingName := record.NewDataRecord(record.INSERT, "src_user", position.IntRangeFrom(1), 1)
	missingName.AddColumn(record.Column{Name: "id", Value: int64(1), UniqueKey: true, Updated: true})

	reordered := record.NewDataRecord(record.INSERT, "src_user", position.IntRangeFrom(2), 2)
	reordered.AddColumn(record.Column{Name: "name", Value: "b", Updated: true})
	reordered.AddColumn(record.Column{Name: "id", Value: int64(2), UniqueKey: true, Updated: true})

	testCases := []struct {
		name    string
		records []record.Record
	}{
		{"missing column", []record.Record{missingName, record.NewFinishedRecord(position.Finished())}},
		{"column order", []record.Record{reordered, record.NewFinishedRecord(position.Finished())}},
		{"count differs from previous record", []record.Record{userRecord(record.INSERT, 3, "c"), missingName}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, constants.MYSQL, ImporterConfig{RetryTimes: 2})
			f.push(t, tc.records...)

			err := f.importer.Run(context.Background())
			assert.True(t, errs.IsParameterError(err), "got %v", err)
			assert.Equal(t, constants.TASK_STOPPED, f.importer.State())
			assert.Zero(t, f.importer.RecordsImported())
			assert.Empty(t, f.acked)
			assert.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestGeneratedTargetColumnIsNotExpected(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	md := userMetaData(constants.MYSQL)
	md.Columns = append(md.Columns, &metadata.ColumnMetaData{Name: "name_upper", Ordinal: 3,
		Type: dbtype.ColumnType{Code: dbtype.VARCHAR}, Generated: true, Visible: true, Scale: -1})
	ch := channel.NewMemoryChannel(4, nil)
	imp, err := NewImporter(ImporterConfig{TaskID: "task-0", Table: "t_user", BatchSize: 10, FetchTimeout: 50 * time.Millisecond},
		db, constants.MYSQL, staticLoader{md}, ch, nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t_user(id,name) VALUES(?,?)").WithArgs(int64(1), "a").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	require.NoError(t, ch.Push(context.Background(), []record.Record{userRecord(record.INSERT, 1, "a"), record.NewFinishedRecord(position.Finished())}))

	require.NoError(t, imp.Run(context.Background()))
	assert.EqualValues(t, 1, imp.RecordsImported())
	assert.NoError(t, mock.ExpectationsWereMet())
}
