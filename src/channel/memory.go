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

package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yugabyte/yb-datamover/src/record"
)

var ErrChannelClosed = errors.New("pipeline channel closed")

// AckCallback is invoked with every acknowledged slice of records, in ack order.
type AckCallback func(ctx context.Context, records []record.Record) error

// Channel carries records from one dumper to one importer. Records are delivered in
// push order and acknowledged records are never delivered again.
type Channel interface {
	Push(ctx context.Context, records []record.Record) error
	// Fetch returns up to maxCount records. It returns fewer only when timeout expires
	// or the last returned record is a *record.FinishedRecord.
	Fetch(ctx context.Context, maxCount int, timeout time.Duration) ([]record.Record, error)
	Ack(ctx context.Context, records []record.Record) error
	Close()
}

// MemoryChannel is bounded by the number of pushed batches not yet fetched.
// Push may be called from one goroutine and Fetch from another; Fetch itself is single consumer.
type MemoryChannel struct {
	queue       chan []record.Record
	leftover    []record.Record
	ackCallback AckCallback

	closed    chan struct{}
	closeOnce sync.Once

	pushed atomic.Int64
	acked  atomic.Int64
}

func NewMemoryChannel(capacity int, ackCallback AckCallback) *MemoryChannel {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryChannel{
		queue:       make(chan []record.Record, capacity),
		ackCallback: ackCallback,
		closed:      make(chan struct{}),
	}
}

func (c *MemoryChannel) Push(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}
	select {
	case c.queue <- records:
		c.pushed.Add(int64(len(records)))
		return nil
	case <-c.closed:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *MemoryChannel) Fetch(ctx context.Context, maxCount int, timeout time.Duration) ([]record.Record, error) {
	if maxCount <= 0 {
		maxCount = 1
	}
	result := make([]record.Record, 0, maxCount)
	result, done := c.take(result, c.leftover, maxCount)
	if done {
		return result, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case batch := <-c.queue:
			if result, done = c.take(result, batch, maxCount); done {
				return result, nil
			}
		case <-timer.C:
			return result, nil
		case <-ctx.Done():
			return result, ctx.Err()
		case <-c.closed:
			return c.drainAfterClose(result, maxCount)
		}
	}
}

// take moves records from batch into result, keeping whatever does not fit as leftover.
// It reports whether Fetch should return.
func (c *MemoryChannel) take(result, batch []record.Record, maxCount int) ([]record.Record, bool) {
	c.leftover = nil
	for i, r := range batch {
		if len(result) == maxCount {
			c.leftover = batch[i:]
			return result, true
		}
		result = append(result, r)
		if record.IsFinished(r) {
			if i+1 < len(batch) {
				c.leftover = batch[i+1:]
			}
			return result, true
		}
	}
	return result, len(result) == maxCount
}

func (c *MemoryChannel) drainAfterClose(result []record.Record, maxCount int) ([]record.Record, error) {
	for {
		select {
		case batch := <-c.queue:
			var done bool
			if result, done = c.take(result, batch, maxCount); done {
				return result, nil
			}
		default:
			if len(result) == 0 {
				return nil, ErrChannelClosed
			}
			return result, nil
		}
	}
}

func (c *MemoryChannel) Ack(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}
	c.acked.Add(int64(len(records)))
	if c.ackCallback == nil {
		return nil
	}
	return c.ackCallback(ctx, records)
}

func (c *MemoryChannel) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Pending is the number of pushed records not yet acknowledged.
func (c *MemoryChannel) Pending() int64 {
	return c.pushed.Load() - c.acked.Load()
}
