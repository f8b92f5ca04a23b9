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
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type EventType string

const (
	EVENT_PUT    EventType = "PUT"
	EVENT_DELETE EventType = "DELETE"
)

type Event struct {
	Type  EventType
	Key   string
	Value string
}

// Repository stores job state as string values under slash separated keys.
type Repository interface {
	Persist(ctx context.Context, key, value string) error
	// Load reports found=false for a missing key.
	Load(ctx context.Context, key string) (value string, found bool, err error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	// List returns every key under prefix with its value.
	List(ctx context.Context, prefix string) (map[string]string, error)
	// Update applies fn to the current value atomically. fn sees found=false for a missing key.
	Update(ctx context.Context, key string, fn func(current string, found bool) (string, error)) error
	// Watch streams changes under prefix until ctx is done.
	Watch(ctx context.Context, prefix string) (<-chan Event, error)
	Close() error
}

func PersistJSON(ctx context.Context, repo Repository, key string, obj interface{}) error {
	bytes, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return repo.Persist(ctx, key, string(bytes))
}

func LoadJSON[T any](ctx context.Context, repo Repository, key string) (*T, bool, error) {
	text, found, err := repo.Load(ctx, key)
	if err != nil || !found {
		return nil, found, err
	}
	obj := new(T)
	if err := json.Unmarshal([]byte(text), obj); err != nil {
		return nil, true, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return obj, true, nil
}

// UpdateJSON loads the object at key (zero value when missing), applies updateFn and stores it back atomically.
func UpdateJSON[T any](ctx context.Context, repo Repository, key string, updateFn func(obj *T)) error {
	return repo.Update(ctx, key, func(current string, found bool) (string, error) {
		obj := new(T)
		if found {
			if err := json.Unmarshal([]byte(current), obj); err != nil {
				return "", fmt.Errorf("unmarshal %s: %w", key, err)
			}
		}
		updateFn(obj)
		bytes, err := json.Marshal(obj)
		if err != nil {
			return "", fmt.Errorf("marshal %s: %w", key, err)
		}
		return string(bytes), nil
	})
}

func SortedKeys(kvs map[string]string) []string {
	keys := make([]string, 0, len(kvs))
	for k := range kvs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Key joins path segments into a repository key: Key("jobs", id) is "/jobs/<id>".
func Key(parts ...string) string {
	return "/" + strings.Join(parts, "/")
}
