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

package registry

import (
	"fmt"
	"strings"
)

const (
	REPOSITORY_SQLITE = "sqlite"
	REPOSITORY_ETCD   = "etcd"
)

type Config struct {
	Type string
	// WorkDir holds the sqlite registry file.
	WorkDir string
	Etcd    EtcdConfig
}

func Open(cfg Config) (Repository, error) {
	switch strings.ToLower(cfg.Type) {
	case "", REPOSITORY_SQLITE:
		return NewSqliteRepository(GetRegistryDBPath(cfg.WorkDir))
	case REPOSITORY_ETCD:
		return NewEtcdRepository(cfg.Etcd)
	}
	return nil, fmt.Errorf("unknown registry type %q, expected %s or %s", cfg.Type, REPOSITORY_SQLITE, REPOSITORY_ETCD)
}
