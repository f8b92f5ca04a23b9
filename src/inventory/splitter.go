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

package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/yugabyte/yb-datamover/src/errs"
	"github.com/yugabyte/yb-datamover/src/metadata"
	"github.com/yugabyte/yb-datamover/src/position"
	"github.com/yugabyte/yb-datamover/src/sqlbuilder"
)

// SplitTable returns the starting positions of the inventory tasks of one table.
// Integer keys are cut into ranges of shardingSize key values, the last one open ended.
// String keys get a single ordered full scan and keyless tables a placeholder.
func SplitTable(ctx context.Context, db *sql.DB, md *metadata.TableMetaData, shardingSize int64) ([]position.Position, error) {
	if shardingSize <= 0 {
		return nil, errs.NewParameterError("sharding size must be greater than 0, got %d", shardingSize)
	}
	keyCol, kind, ok := md.DivisibleUniqueKey()
	if !ok {
		return []position.Position{position.Placeholder()}, nil
	}
	if kind == position.STRING_KEY {
		return []position.Position{position.FullRange(position.STRING_KEY)}, nil
	}

	builder, err := sqlbuilder.Get(md.DatabaseType)
	if err != nil {
		return nil, err
	}
	query := builder.BuildUniqueKeyMinMaxSQL(md.Schema, md.Table, keyCol.Name)
	var minValue, maxValue sql.NullString
	if err := db.QueryRowContext(ctx, query).Scan(&minValue, &maxValue); err != nil {
		return nil, errs.NewIngestError(md.Table, errs.INGEST_STEP_QUERY, fmt.Errorf("split on %s: %w", keyCol.Name, err))
	}
	if !minValue.Valid || !maxValue.Valid {
		log.Infof("table %s is empty, using a single range", md.Table)
		return []position.Position{position.FullRange(position.INT_KEY)}, nil
	}
	lower, err := strconv.ParseInt(minValue.String, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse minimum of %s.%s: %w", md.Table, keyCol.Name, err)
	}
	upper, err := strconv.ParseInt(maxValue.String, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse maximum of %s.%s: %w", md.Table, keyCol.Name, err)
	}
	positions := splitIntRange(lower, upper, shardingSize)
	log.Infof("table %s split on %s [%d, %d] into %d ranges", md.Table, keyCol.Name, lower, upper, len(positions))
	return positions, nil
}

func splitIntRange(lower, upper, shardingSize int64) []position.Position {
	var positions []position.Position
	begin := lower
	for upper-begin >= shardingSize && begin <= math.MaxInt64-shardingSize {
		end := begin + shardingSize - 1
		positions = append(positions, position.IntRange(begin, end))
		begin = end + 1
	}
	return append(positions, position.IntRangeFrom(begin))
}
