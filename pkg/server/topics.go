package server

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/vango-dev/pubsock/pkg/protocol"
)

// TopicRegistry maps topic names to the sessions subscribed to them.
// Membership never keeps a session alive: teardown removes the session from
// every topic through the session's own topic index.
// A topic without subscribers is not present.
type TopicRegistry[T, D any] struct {
	shards []*topicShard[T, D]
	mask   uint32
	logger *slog.Logger
}

type topicShard[T, D any] struct {
	mu     sync.RWMutex
	topics map[string]map[protocol.ConnID]*Session[T, D]
}

// NewTopicRegistry creates a TopicRegistry with the given number of shards.
func NewTopicRegistry[T, D any](shards int, logger *slog.Logger) *TopicRegistry[T, D] {
	if logger == nil {
		logger = slog.Default()
	}
	n := shardCount(shards)
	r := &TopicRegistry[T, D]{
		shards: make([]*topicShard[T, D], n),
		mask:   n - 1,
		logger: logger.With("component", "topics"),
	}
	for i := range r.shards {
		r.shards[i] = &topicShard[T, D]{topics: make(map[string]map[protocol.ConnID]*Session[T, D])}
	}
	return r
}

func (r *TopicRegistry[T, D]) shard(topic string) *topicShard[T, D] {
	return r.shards[fnv32(topic)&r.mask]
}

// Subscribe adds s to topic, creating the topic if needed. Subscribing twice
// is a no-op. A closed session cannot subscribe.
func (r *TopicRegistry[T, D]) Subscribe(s *Session[T, D], topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if s == nil {
		return ErrNilSession
	}
	if s.IsClosed() {
		return NewSessionError(s.id, "subscribe", ErrSessionClosed)
	}

	sh := r.shard(topic)
	sh.mu.Lock()
	members, ok := sh.topics[topic]
	if !ok {
		members = make(map[protocol.ConnID]*Session[T, D])
		sh.topics[topic] = members
	}
	members[s.id] = s
	sh.mu.Unlock()

	s.addTopic(topic)

	// Teardown marks the session closed before it reads the topic index, so
	// either it saw this topic or this check sees the closed state.
	if s.IsClosed() {
		r.remove(s, topic)
		return NewSessionError(s.id, "subscribe", ErrSessionClosed)
	}
	return nil
}

// Unsubscribe removes s from topic and drops the topic once it is empty.
// Unsubscribing from a topic the session is not in is a no-op.
func (r *TopicRegistry[T, D]) Unsubscribe(s *Session[T, D], topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if s == nil {
		return ErrNilSession
	}
	r.remove(s, topic)
	return nil
}

func (r *TopicRegistry[T, D]) remove(s *Session[T, D], topic string) {
	sh := r.shard(topic)
	sh.mu.Lock()
	if members, ok := sh.topics[topic]; ok {
		delete(members, s.id)
		if len(members) == 0 {
			delete(sh.topics, topic)
		}
	}
	sh.mu.Unlock()

	s.removeTopic(topic)
}

// IsSubscribed reports whether s is subscribed to topic.
func (r *TopicRegistry[T, D]) IsSubscribed(s *Session[T, D], topic string) bool {
	if s == nil || topic == "" {
		return false
	}
	sh := r.shard(topic)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	_, ok := sh.topics[topic][s.id]
	return ok
}

// Subscribers returns the sessions subscribed to topic at the time of the call.
func (r *TopicRegistry[T, D]) Subscribers(topic string) []*Session[T, D] {
	sh := r.shard(topic)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	members := sh.topics[topic]
	if len(members) == 0 {
		return nil
	}
	out := make([]*Session[T, D], 0, len(members))
	for _, s := range members {
		out = append(out, s)
	}
	return out
}

// Count returns the number of subscribers of topic.
func (r *TopicRegistry[T, D]) Count(topic string) int {
	sh := r.shard(topic)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.topics[topic])
}

// Topics returns the sorted names of all topics with at least one subscriber.
func (r *TopicRegistry[T, D]) Topics() []string {
	var names []string
	for _, sh := range r.shards {
		sh.mu.RLock()
		for name := range sh.topics {
			names = append(names, name)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(names)
	return names
}

// RemoveSession drops s from every topic it is subscribed to.
func (r *TopicRegistry[T, D]) RemoveSession(s *Session[T, D]) {
	for _, topic := range s.takeTopics() {
		sh := r.shard(topic)
		sh.mu.Lock()
		if members, ok := sh.topics[topic]; ok {
			delete(members, s.id)
			if len(members) == 0 {
				delete(sh.topics, topic)
			}
		}
		sh.mu.Unlock()
	}
}

// UnsubscribeAll removes every topic.
func (r *TopicRegistry[T, D]) UnsubscribeAll() {
	removed := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		for name, members := range sh.topics {
			for _, s := range members {
				s.removeTopic(name)
			}
			delete(sh.topics, name)
			removed++
		}
		sh.mu.Unlock()
	}
	if removed > 0 {
		r.logger.Debug("all topics cleared", "topics", removed)
	}
}
