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

package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/allisson/go-pglock/v3"
	"github.com/nightlyone/lockfile"
	log "github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

var ErrLocked = errors.New("lock is held by another process")

// Locker guards a job against being driven by two processes at once.
type Locker interface {
	// TryLock returns ErrLocked without waiting when someone else holds the lock.
	TryLock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// ============================================================================ file

type FileLock struct {
	fpath    string
	lockfile lockfile.Lockfile
}

// NewFileLock locks <dir>/.<name>Lockfile.lck on the local host.
func NewFileLock(dir, name string) (*FileLock, error) {
	fpath, err := filepath.Abs(filepath.Join(dir, fmt.Sprintf(".%sLockfile.lck", name)))
	if err != nil {
		return nil, err
	}
	return &FileLock{fpath: fpath}, nil
}

func (l *FileLock) Path() string {
	return l.fpath
}

// HolderPID reads the PID recorded in the lock file.
func (l *FileLock) HolderPID() (int, error) {
	bytes, err := os.ReadFile(l.fpath)
	if err != nil {
		return -1, fmt.Errorf("failed to read lockfile %q: %w", l.fpath, err)
	}
	pid, err := strconv.Atoi(strings.Trim(string(bytes), " \n"))
	if err != nil {
		return -1, fmt.Errorf("failed to parse PID from lockfile %q: %w", l.fpath, err)
	}
	return pid, nil
}

func (l *FileLock) IsHolderActive() bool {
	pid, err := l.HolderPID()
	if err != nil {
		return false
	}
	proc, _ := os.FindProcess(pid) // Always succeeds on Unix systems
	// Signal 0 only fails if the process is gone.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		log.Infof("process %d is not active", pid)
		return false
	}
	return true
}

func (l *FileLock) TryLock(ctx context.Context) error {
	var err error
	l.lockfile, err = lockfile.New(l.fpath)
	if err != nil {
		return fmt.Errorf("failed to create lockfile %q: %w", l.fpath, err)
	}
	err = l.lockfile.TryLock()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, lockfile.ErrBusy):
		pid, _ := l.HolderPID()
		return fmt.Errorf("%w: pid %d holds %s", ErrLocked, pid, l.fpath)
	default:
		return fmt.Errorf("unable to lock %q: %w", l.fpath, err)
	}
}

func (l *FileLock) Unlock(ctx context.Context) error {
	if err := l.lockfile.Unlock(); err != nil {
		return fmt.Errorf("unable to unlock %q: %w", l.fpath, err)
	}
	return nil
}

// ============================================================================ etcd

type EtcdLock struct {
	client  *clientv3.Client
	key     string
	session *concurrency.Session
	mutex   *concurrency.Mutex
}

func NewEtcdLock(client *clientv3.Client, key string) *EtcdLock {
	return &EtcdLock{client: client, key: key}
}

func (l *EtcdLock) TryLock(ctx context.Context) error {
	session, err := concurrency.NewSession(l.client, concurrency.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("etcd session for lock %s: %w", l.key, err)
	}
	mutex := concurrency.NewMutex(session, l.key)
	if err := mutex.TryLock(ctx); err != nil {
		session.Close()
		if errors.Is(err, concurrency.ErrLocked) {
			return fmt.Errorf("%w: %s", ErrLocked, l.key)
		}
		return fmt.Errorf("etcd lock %s: %w", l.key, err)
	}
	l.session, l.mutex = session, mutex
	return nil
}

func (l *EtcdLock) Unlock(ctx context.Context) error {
	if l.mutex == nil {
		return nil
	}
	defer func() {
		l.session.Close()
		l.session, l.mutex = nil, nil
	}()
	if err := l.mutex.Unlock(ctx); err != nil {
		return fmt.Errorf("etcd unlock %s: %w", l.key, err)
	}
	return nil
}

// ============================================================================ postgres

// PostgresLock takes a session level advisory lock keyed by a hash of the name.
type PostgresLock struct {
	db   *sql.DB
	name string
	lock *pglock.Lock
}

func NewPostgresLock(db *sql.DB, name string) *PostgresLock {
	return &PostgresLock{db: db, name: name}
}

func advisoryLockID(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}

func (l *PostgresLock) TryLock(ctx context.Context) error {
	lock, err := pglock.NewLock(ctx, advisoryLockID(l.name), l.db)
	if err != nil {
		return fmt.Errorf("advisory lock %s: %w", l.name, err)
	}
	locked, err := lock.Lock(ctx)
	if err != nil {
		lock.Close()
		return fmt.Errorf("advisory lock %s: %w", l.name, err)
	}
	if !locked {
		lock.Close()
		return fmt.Errorf("%w: %s", ErrLocked, l.name)
	}
	l.lock = &lock
	return nil
}

func (l *PostgresLock) Unlock(ctx context.Context) error {
	if l.lock == nil {
		return nil
	}
	defer func() {
		l.lock.Close()
		l.lock = nil
	}()
	if err := l.lock.Unlock(ctx); err != nil {
		return fmt.Errorf("advisory unlock %s: %w", l.name, err)
	}
	return nil
}
