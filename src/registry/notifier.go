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
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

const watchBufferSize = 256

type subscriber struct {
	prefix string
	events chan Event
}

// notifier fans repository changes out to in-process watchers.
type notifier struct {
	mu          sync.Mutex
	nextID      int
	subscribers map[int]*subscriber
}

func newNotifier() *notifier {
	return &notifier{subscribers: map[int]*subscriber{}}
}

func (n *notifier) subscribe(ctx context.Context, prefix string) <-chan Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	sub := &subscriber{prefix: prefix, events: make(chan Event, watchBufferSize)}
	n.subscribers[id] = sub
	go func() {
		<-ctx.Done()
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.subscribers[id]; ok {
			delete(n.subscribers, id)
			close(sub.events)
		}
	}()
	return sub.events
}

func (n *notifier) publish(event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subscribers {
		if !strings.HasPrefix(event.Key, sub.prefix) {
			continue
		}
		select {
		case sub.events <- event:
		default:
			log.Warnf("watcher of %s is not keeping up, dropping %s event for %s", sub.prefix, event.Type, event.Key)
		}
	}
}

func (n *notifier) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, sub := range n.subscribers {
		delete(n.subscribers, id)
		close(sub.events)
	}
}
