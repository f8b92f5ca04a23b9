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
	"fmt"

	"github.com/yugabyte/yb-datamover/src/errs"
)

type TableResult struct {
	Table          string `json:"table"`
	SourceCount    int64  `json:"source_count"`
	TargetCount    int64  `json:"target_count"`
	CountMatched   bool   `json:"count_matched"`
	ContentMatched bool   `json:"content_matched"`
	Algorithm      string `json:"algorithm,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

func (r *TableResult) Matched() bool {
	return r.ErrorMessage == "" && r.CountMatched && r.ContentMatched
}

func (r *TableResult) String() string {
	if r.ErrorMessage != "" {
		return "error: " + r.ErrorMessage
	}
	return fmt.Sprintf("count %d/%d matched=%t, content matched=%t (%s)",
		r.SourceCount, r.TargetCount, r.CountMatched, r.ContentMatched, r.Algorithm)
}

// Aggregate reports whether every table matched.
func Aggregate(results map[string]*TableResult) (bool, error) {
	if len(results) == 0 {
		return false, errs.NewParameterError("no consistency check results to aggregate")
	}
	for _, r := range results {
		if r == nil || !r.Matched() {
			return false, nil
		}
	}
	return true, nil
}
