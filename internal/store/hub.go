package store

import (
	"context"
	"sync"
)

const topicTasks = "tasks"

func commentsTopic(taskID string) string {
	return "comments/" + taskID
}

// subscription is one live listener. notify has capacity 1 so bursts of
// writes coalesce into a single reload.
type subscription struct {
	topic  string
	notify chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// hub fans change signals out to subscriptions by topic.
type hub struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*subscription]struct{})}
}

func (h *hub) add(parent context.Context, topic string) *subscription {
	ctx, cancel := context.WithCancel(parent)
	sub := &subscription{
		topic:  topic,
		notify: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *hub) remove(sub *subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	sub.cancel()
}

// publish signals every subscription on the given topics without blocking.
func (h *hub) publish(topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		for _, t := range topics {
			if sub.topic != t {
				continue
			}
			select {
			case sub.notify <- struct{}{}:
			default:
			}
		}
	}
}

// count returns the number of live subscriptions.
func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
