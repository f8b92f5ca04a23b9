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

package consistency

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/yugabyte/yb-datamover/src/codec"
	"github.com/yugabyte/yb-datamover/src/dbtype"
	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/metadata"
	"github.com/yugabyte/yb-datamover/src/metrics"
	"github.com/yugabyte/yb-datamover/src/ratelimit"
	"github.com/yugabyte/yb-datamover/src/sqlbuilder"
)

const (
	ALGORITHM_DIGEST           = "DIGEST"
	ALGORITHM_KEYED_PAGINATION = "KEYED_PAGINATION"
	ALGORITHM_UNORDERED_DIGEST = "UNORDERED_DIGEST"

	defaultPageSize = 1000
)

// Side is the source or target database of a check.
type Side struct {
	DB         *sql.DB
	DBType     string
	MetaLoader metadata.Loader
	Limiter    ratelimit.Limiter
}

type CheckerConfig struct {
	JobID string
	// EstimatedCount allows the engine's row estimate instead of COUNT(*) where one exists.
	EstimatedCount bool
	// SkipContent limits the check to row counts.
	SkipContent bool
	PageSize    int
	Concurrency int
}

type TablePair struct {
	LogicTableName string
	SourceSchema   string
	SourceTable    string
	TargetSchema   string
	TargetTable    string
}

type Checker struct {
	cfg    CheckerConfig
	source *side
	target *side
}

type side struct {
	Side
	descriptor *dbtype.Descriptor
	builder    sqlbuilder.PipelineSQLBuilder
	codec      *codec.Codec
}

func newSide(s Side) (*side, error) {
	descriptor, err := dbtype.Get(s.DBType)
	if err != nil {
		return nil, err
	}
	builder, err := sqlbuilder.Get(s.DBType)
	if err != nil {
		return nil, err
	}
	c, err := codec.ForDatabaseType(s.DBType)
	if err != nil {
		return nil, err
	}
	return &side{Side: s, descriptor: descriptor, builder: builder, codec: c}, nil
}

func NewChecker(cfg CheckerConfig, source, target Side) (*Checker, error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	src, err := newSide(source)
	if err != nil {
		return nil, err
	}
	tgt, err := newSide(target)
	if err != nil {
		return nil, err
	}
	return &Checker{cfg: cfg, source: src, target: tgt}, nil
}

// Check runs CheckTable for every pair, Concurrency tables at a time.
func (c *Checker) Check(ctx context.Context, pairs []TablePair) map[string]*TableResult {
	var mu sync.Mutex
	results := make(map[string]*TableResult, len(pairs))
	p := pool.New().WithMaxGoroutines(c.cfg.Concurrency)
	for _, pair := range pairs {
		p.Go(func() {
			result := c.CheckTable(ctx, pair)
			mu.Lock()
			defer mu.Unlock()
			results[result.Table] = result
		})
	}
	p.Wait()
	return results
}

// CheckTable never fails: read errors end up in the result's ErrorMessage.
func (c *Checker) CheckTable(ctx context.Context, pair TablePair) *TableResult {
	if pair.LogicTableName == "" {
		pair.LogicTableName = pair.SourceTable
	}
	result := &TableResult{Table: pair.LogicTableName}
	if err := c.checkTable(ctx, pair, result); err != nil {
		log.Errorf("consistency check of %s: %v", pair.LogicTableName, err)
		result.ErrorMessage = err.Error()
	}
	if !result.Matched() {
		metrics.RecordCheckMismatch(c.cfg.JobID, pair.LogicTableName)
	}
	log.Infof("consistency check of %s: %s", pair.LogicTableName, result)
	return result
}

func (c *Checker) checkTable(ctx context.Context, pair TablePair, result *TableResult) error {
	var err error
	result.SourceCount, err = c.count(ctx, c.source, pair.SourceSchema, pair.SourceTable)
	if err != nil {
		return fmt.Errorf("count source: %w", err)
	}
	result.TargetCount, err = c.count(ctx, c.target, pair.TargetSchema, pair.TargetTable)
	if err != nil {
		return fmt.Errorf("count target: %w", err)
	}
	result.CountMatched = result.SourceCount == result.TargetCount
	if c.cfg.SkipContent {
		result.ContentMatched = result.CountMatched
		return nil
	}
	if !result.CountMatched {
		return nil
	}

	sourceMD, err := c.source.MetaLoader.Load(ctx, pair.SourceSchema, pair.SourceTable)
	if err != nil {
		return fmt.Errorf("load source metadata: %w", err)
	}
	targetMD, err := c.target.MetaLoader.Load(ctx, pair.TargetSchema, pair.TargetTable)
	if err != nil {
		return fmt.Errorf("load target metadata: %w", err)
	}
	columns := lo.Filter(sourceMD.ColumnNames(), func(name string, _ int) bool {
		_, ok := targetMD.Column(name)
		return ok
	})
	if len(columns) == 0 {
		return errs.NewParameterError("tables %s and %s have no column in common", pair.SourceTable, pair.TargetTable)
	}

	family := c.source.builder.DigestFamily()
	switch {
	case family != "" && family == c.target.builder.DigestFamily():
		result.Algorithm = ALGORITHM_DIGEST
		result.ContentMatched, err = c.compareDigests(ctx, pair, columns)
	case len(sourceMD.PrimaryKeyColumns) == 1:
		result.Algorithm = ALGORITHM_KEYED_PAGINATION
		result.ContentMatched, err = c.comparePages(ctx, pair, columns, sourceMD, targetMD)
	default:
		result.Algorithm = ALGORITHM_UNORDERED_DIGEST
		result.ContentMatched, err = c.compareUnordered(ctx, pair, columns, sourceMD, targetMD)
	}
	return err
}

func (c *Checker) count(ctx context.Context, s *side, schema, table string) (int64, error) {
	if c.cfg.EstimatedCount {
		if query, ok := s.builder.BuildEstimatedCountSQL(schema, table); ok {
			var estimate sql.NullInt64
			err := s.DB.QueryRowContext(ctx, query).Scan(&estimate)
			if err == nil && estimate.Valid && estimate.Int64 >= 0 {
				return estimate.Int64, nil
			}
			log.Infof("no usable row estimate for %s (err: %v), counting rows", table, err)
		}
	}
	if err := ratelimit.Intercept(ctx, s.Limiter, ratelimit.SELECT, 1); err != nil {
		return 0, err
	}
	var count int64
	if err := s.DB.QueryRowContext(ctx, s.builder.BuildCountSQL(schema, table)).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (c *Checker) compareDigests(ctx context.Context, pair TablePair, columns []string) (bool, error) {
	for _, column := range columns {
		sourceDigest, err := digestColumn(ctx, c.source, pair.SourceSchema, pair.SourceTable, column)
		if err != nil {
			return false, fmt.Errorf("digest source column %s: %w", column, err)
		}
		targetDigest, err := digestColumn(ctx, c.target, pair.TargetSchema, pair.TargetTable, column)
		if err != nil {
			return false, fmt.Errorf("digest target column %s: %w", column, err)
		}
		if sourceDigest != targetDigest {
			log.Infof("table %s column %s digest differs: %s vs %s", pair.LogicTableName, column, sourceDigest, targetDigest)
			return false, nil
		}
	}
	return true, nil
}

func digestColumn(ctx context.Context, s *side, schema, table, column string) (string, error) {
	query, ok := s.builder.BuildCRC32SQL(schema, table, column)
	if !ok {
		return "", fmt.Errorf("%s has no digest function", s.DBType)
	}
	var checksum sql.NullString
	var count int64
	if err := s.DB.QueryRowContext(ctx, query).Scan(&checksum, &count); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%d", canonicalNumber(checksum.String), count), nil
}

func (c *Checker) comparePages(ctx context.Context, pair TablePair, columns []string,
	sourceMD, targetMD *metadata.TableMetaData) (bool, error) {

	key := sourceMD.PrimaryKeyColumns[0]
	keyIndex := lo.IndexOf(lo.Map(columns, func(s string, _ int) string { return strings.ToLower(s) }), strings.ToLower(key))
	if keyIndex < 0 {
		return false, errs.NewParameterError("unique key %s of %s is missing on the target", key, pair.SourceTable)
	}
	var sourceLast, targetLast interface{}
	for first := true; ; first = false {
		sourceRows, err := c.source.readPage(ctx, pair.SourceSchema, pair.SourceTable, columns, key, sourceMD, first, c.cfg.PageSize, sourceLast)
		if err != nil {
			return false, fmt.Errorf("read source page: %w", err)
		}
		targetRows, err := c.target.readPage(ctx, pair.TargetSchema, pair.TargetTable, columns, key, targetMD, first, c.cfg.PageSize, targetLast)
		if err != nil {
			return false, fmt.Errorf("read target page: %w", err)
		}
		if len(sourceRows) != len(targetRows) {
			return false, nil
		}
		for i := range sourceRows {
			if !RowsEqual(sourceRows[i], targetRows[i]) {
				log.Infof("table %s differs at key %v", pair.LogicTableName, sourceRows[i][keyIndex])
				return false, nil
			}
		}
		if len(sourceRows) < c.cfg.PageSize {
			return true, nil
		}
		sourceLast = sourceRows[len(sourceRows)-1][keyIndex]
		targetLast = targetRows[len(targetRows)-1][keyIndex]
	}
}

func (c *Checker) compareUnordered(ctx context.Context, pair TablePair, columns []string,
	sourceMD, targetMD *metadata.TableMetaData) (bool, error) {

	sourceDigest, err := c.source.digestRows(ctx, pair.SourceSchema, pair.SourceTable, columns, sourceMD)
	if err != nil {
		return false, fmt.Errorf("read source rows: %w", err)
	}
	targetDigest, err := c.target.digestRows(ctx, pair.TargetSchema, pair.TargetTable, columns, targetMD)
	if err != nil {
		return false, fmt.Errorf("read target rows: %w", err)
	}
	log.Debugf("table %s row digests: %s vs %s", pair.LogicTableName, sourceDigest, targetDigest)
	return sourceDigest.Equal(targetDigest), nil
}

func (s *side) readPage(ctx context.Context, schema, table string, columns []string, key string,
	md *metadata.TableMetaData, first bool, pageSize int, lastKey interface{}) ([][]interface{}, error) {

	if err := ratelimit.Intercept(ctx, s.Limiter, ratelimit.SELECT, pageSize); err != nil {
		return nil, err
	}
	query := s.descriptor.Rebind(s.builder.BuildQueryAllOrderingSQL(schema, table, columns, key, first, pageSize))
	var args []interface{}
	if !first {
		args = append(args, lastKey)
	}
	var page [][]interface{}
	err := s.query(ctx, query, args, md, func(row []interface{}) {
		page = append(page, row)
	})
	return page, err
}

func (s *side) digestRows(ctx context.Context, schema, table string, columns []string, md *metadata.TableMetaData) (*RowDigest, error) {
	query := s.builder.BuildNoUniqueKeyDumpSQL(schema, table, columns)
	digest := &RowDigest{}
	err := s.query(ctx, query, nil, md, digest.Add)
	return digest, err
}

func (s *side) query(ctx context.Context, query string, args []interface{}, md *metadata.TableMetaData, onRow func([]interface{})) error {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return err
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return err
	}
	types := make([]dbtype.ColumnType, len(columnTypes))
	for i, ct := range columnTypes {
		types[i] = s.descriptor.ResolveColumnType(ct.DatabaseTypeName())
		col, ok := md.Column(names[i])
		if !ok {
			continue
		}
		if types[i].Code == dbtype.OTHER || col.Type.Unsigned {
			types[i] = col.Type
		}
		if types[i].Length == 0 {
			types[i].Length = col.Type.Length
		}
	}
	reader := s.codec.NewRowReader(types)
	for rows.Next() {
		row, err := reader.ReadRow(rows)
		if err != nil {
			return err
		}
		onRow(row)
	}
	return rows.Err()
}
