// Package broadcast implements the in-process change fanout described
// in spec.md §4.8: producers (store, watcher, linker) publish
// ChangeEvents onto per-topic subscriptions; slow subscribers lose
// their oldest buffered events rather than ever stalling a producer.
package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nrvault/memtask/internal/logging"
)

// Topic names a subscribable stream. Fixed topics per spec.md §4.8;
// "file_change:<root>" topics are built with FileChangeTopic.
const (
	TopicMemory Topic = "memory"
	TopicTask   Topic = "task"
)

type Topic string

// FileChangeTopic builds the per-root file-change topic name.
func FileChangeTopic(root string) Topic {
	return Topic("file_change:" + root)
}

// ChangeEvent is one change notification fanned out to subscribers.
type ChangeEvent struct {
	Topic     Topic
	Action    string // "add" | "change" | "delete"
	ID        string // task id, memory id, or file path
	Timestamp time.Time
	Data      map[string]interface{}
}

// Subscription is a single subscriber's view of a topic. Events()
// yields delivered events; Lag reports how many were dropped for this
// subscriber due to back-pressure.
type Subscription struct {
	id    uint64
	topic Topic
	ch    chan ChangeEvent
	lag   atomic.Int64
}

// Events returns the channel to range over for delivered events.
func (s *Subscription) Events() <-chan ChangeEvent { return s.ch }

// Lag returns the number of events dropped for this subscriber so far.
func (s *Subscription) Lag() int64 { return s.lag.Load() }

// Broadcaster fans ChangeEvents out to per-topic subscribers with a
// bounded, oldest-drop buffer per subscriber (spec.md §4.8, §5).
type Broadcaster struct {
	mu       sync.RWMutex
	capacity int
	timeout  time.Duration
	subs     map[Topic]map[uint64]*Subscription
	nextID   uint64
}

// New builds a Broadcaster. capacity bounds each subscriber's buffer;
// timeout is the per-send deadline past which a message is dropped for
// that subscriber rather than risk blocking the publisher.
func New(capacity int, timeout time.Duration) *Broadcaster {
	if capacity <= 0 {
		capacity = 256
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Broadcaster{
		capacity: capacity,
		timeout:  timeout,
		subs:     make(map[Topic]map[uint64]*Subscription),
	}
}

// Subscribe registers a new subscriber for topic.
func (b *Broadcaster) Subscribe(topic Topic) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:    b.nextID,
		topic: topic,
		ch:    make(chan ChangeEvent, b.capacity),
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]*Subscription)
	}
	b.subs[topic][sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call once;
// a second call is a no-op.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	topicSubs := b.subs[sub.topic]
	if topicSubs == nil {
		return
	}
	if _, ok := topicSubs[sub.id]; !ok {
		return
	}
	delete(topicSubs, sub.id)
	close(sub.ch)
}

// Publish fans ev out to every subscriber of ev.Topic. It never
// blocks the caller for longer than the broadcaster's timeout per
// subscriber: a full buffer has its oldest event dropped to make room,
// and a send that still can't land within the timeout (e.g. a
// subscriber draining concurrently) is dropped too, bumping that
// subscriber's lag counter either way.
func (b *Broadcaster) Publish(ev ChangeEvent) {
	b.mu.RLock()
	topicSubs := b.subs[ev.Topic]
	targets := make([]*Subscription, 0, len(topicSubs))
	for _, s := range topicSubs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		b.send(sub, ev)
	}
}

func (b *Broadcaster) send(sub *Subscription, ev ChangeEvent) {
	select {
	case sub.ch <- ev:
		return
	default:
	}

	// Buffer full: drop the oldest to make room, per spec's
	// oldest-drop back-pressure policy.
	select {
	case <-sub.ch:
		sub.lag.Add(1)
	default:
	}

	select {
	case sub.ch <- ev:
	case <-time.After(b.timeout):
		sub.lag.Add(1)
		logging.Get(logging.CategoryBroadcast).Warn("broadcast: dropped event for subscriber on topic %s after timeout", ev.Topic)
	}
}

// Close unsubscribes and closes every subscriber's channel, used at
// shutdown.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topicSubs := range b.subs {
		for _, sub := range topicSubs {
			close(sub.ch)
		}
	}
	b.subs = make(map[Topic]map[uint64]*Subscription)
}
