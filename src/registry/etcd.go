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
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	DEFAULT_ETCD_ROOT    = "/yb-datamover"
	etcdDialTimeout      = 5 * time.Second
	etcdMaxUpdateRetries = 16
)

type EtcdConfig struct {
	Endpoints   []string
	Username    string
	Password    string
	RootPath    string
	DialTimeout time.Duration
}

// EtcdRepository shares the registry between hosts. Every key is stored under RootPath.
type EtcdRepository struct {
	client *clientv3.Client
	root   string
}

func NewEtcdRepository(cfg EtcdConfig) (*EtcdRepository, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("no etcd endpoints configured")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = etcdDialTimeout
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to etcd %v: %w", cfg.Endpoints, err)
	}
	log.Infof("connected to etcd %v", cfg.Endpoints)
	return NewEtcdRepositoryWithClient(client, cfg.RootPath), nil
}

func NewEtcdRepositoryWithClient(client *clientv3.Client, root string) *EtcdRepository {
	if root == "" {
		root = DEFAULT_ETCD_ROOT
	}
	return &EtcdRepository{client: client, root: strings.TrimSuffix(root, "/")}
}

// Client exposes the connection for etcd based locks.
func (r *EtcdRepository) Client() *clientv3.Client {
	return r.client
}

func (r *EtcdRepository) fullKey(key string) string {
	return r.root + key
}

func (r *EtcdRepository) relativeKey(fullKey []byte) string {
	return strings.TrimPrefix(string(fullKey), r.root)
}

func (r *EtcdRepository) Persist(ctx context.Context, key, value string) error {
	if _, err := r.client.Put(ctx, r.fullKey(key), value); err != nil {
		return fmt.Errorf("etcd put %s: %w", key, err)
	}
	return nil
}

func (r *EtcdRepository) Load(ctx context.Context, key string) (string, bool, error) {
	resp, err := r.client.Get(ctx, r.fullKey(key))
	if err != nil {
		return "", false, fmt.Errorf("etcd get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

func (r *EtcdRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.client.Delete(ctx, r.fullKey(key)); err != nil {
		return fmt.Errorf("etcd delete %s: %w", key, err)
	}
	return nil
}

func (r *EtcdRepository) DeletePrefix(ctx context.Context, prefix string) error {
	if _, err := r.client.Delete(ctx, r.fullKey(prefix), clientv3.WithPrefix()); err != nil {
		return fmt.Errorf("etcd delete prefix %s: %w", prefix, err)
	}
	return nil
}

func (r *EtcdRepository) List(ctx context.Context, prefix string) (map[string]string, error) {
	resp, err := r.client.Get(ctx, r.fullKey(prefix), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcd list %s: %w", prefix, err)
	}
	result := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		result[r.relativeKey(kv.Key)] = string(kv.Value)
	}
	return result, nil
}

// Update retries a compare-and-swap on the key's mod revision until no other writer interferes.
func (r *EtcdRepository) Update(ctx context.Context, key string, fn func(current string, found bool) (string, error)) error {
	fullKey := r.fullKey(key)
	for attempt := 0; attempt < etcdMaxUpdateRetries; attempt++ {
		resp, err := r.client.Get(ctx, fullKey)
		if err != nil {
			return fmt.Errorf("etcd get %s: %w", key, err)
		}
		var current string
		var revision int64
		found := len(resp.Kvs) > 0
		if found {
			current = string(resp.Kvs[0].Value)
			revision = resp.Kvs[0].ModRevision
		}
		updated, err := fn(current, found)
		if err != nil {
			return err
		}
		txnResp, err := r.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(fullKey), "=", revision)).
			Then(clientv3.OpPut(fullKey, updated)).
			Commit()
		if err != nil {
			return fmt.Errorf("etcd update %s: %w", key, err)
		}
		if txnResp.Succeeded {
			return nil
		}
		log.Debugf("etcd update of %s lost a race, retrying", key)
	}
	return fmt.Errorf("etcd update %s: too much contention", key)
}

func (r *EtcdRepository) Watch(ctx context.Context, prefix string) (<-chan Event, error) {
	events := make(chan Event, watchBufferSize)
	watchChan := r.client.Watch(ctx, r.fullKey(prefix), clientv3.WithPrefix())
	go func() {
		defer close(events)
		for watchResp := range watchChan {
			if err := watchResp.Err(); err != nil {
				log.Warnf("etcd watch of %s: %v", prefix, err)
				continue
			}
			for _, ev := range watchResp.Events {
				event := Event{Key: r.relativeKey(ev.Kv.Key)}
				switch ev.Type {
				case mvccpb.PUT:
					event.Type = EVENT_PUT
					event.Value = string(ev.Kv.Value)
				case mvccpb.DELETE:
					event.Type = EVENT_DELETE
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}

func (r *EtcdRepository) Close() error {
	return r.client.Close()
}
