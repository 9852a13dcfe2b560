package http

import (
	"log/slog"
	"sync"
)

// Topics published on /events.
const (
	TopicSession = "session"
	TopicGrading = "grading"
	TopicOutcome = "outcome"
)

// Message is one SSE frame.
type Message struct {
	Topic string
	Data  string
}

type subscriber struct {
	ch     chan Message
	topics map[string]bool
}

// StreamManager fans messages out to active SSE connections.
type StreamManager struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
}

// NewStreamManager creates a manager with no subscribers.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		logger:      logger,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Subscribe returns a channel receiving messages for the given topics (all
// topics when none are given) and a function that closes it.
func (sm *StreamManager) Subscribe(topics ...string) (<-chan Message, func()) {
	sub := &subscriber{ch: make(chan Message, 16)}
	if len(topics) > 0 {
		sub.topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}

	sm.mu.Lock()
	sm.subscribers[sub] = struct{}{}
	sm.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			delete(sm.subscribers, sub)
			close(sub.ch)
		})
	}
}

// Count returns the number of open subscriptions.
func (sm *StreamManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}

// Broadcast delivers data to every subscriber of topic. Slow clients drop
// messages instead of blocking the publisher.
func (sm *StreamManager) Broadcast(topic, data string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for sub := range sm.subscribers {
		if sub.topics != nil && !sub.topics[topic] {
			continue
		}
		select {
		case sub.ch <- Message{Topic: topic, Data: data}:
		default:
			sm.logger.Warn("sse client buffer full, dropping message", "topic", topic)
		}
	}
}
