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

package utils

import (
	"fmt"
	"os"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

func FileOrFolderExists(path string) bool {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false
		} else {
			panic(err)
		}
	} else {
		return true
	}
}

func CsvStringToSlice(str string) []string {
	result := strings.Split(str, ",")
	for i := range result {
		result[i] = strings.TrimSpace(result[i])
	}
	return result
}

func MapToString(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, m[k]))
	}
	return strings.Join(parts, ",")
}

// RedactPassword replaces the password inside a "user:password@" style DSN.
func RedactPassword(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	head := dsn[:at]
	start := strings.Index(head, "://")
	if start >= 0 {
		head = head[start+3:]
	} else {
		start = -3
	}
	colon := strings.Index(head, ":")
	if colon < 0 {
		return dsn
	}
	prefixLen := start + 3 + colon + 1
	return dsn[:prefixLen] + "XXX" + dsn[at:]
}

func MkdirAll(dir string) error {
	if FileOrFolderExists(dir) {
		return nil
	}
	log.Infof("creating directory %q", dir)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return fmt.Errorf("create dir %q: %w", dir, err)
	}
	return nil
}
