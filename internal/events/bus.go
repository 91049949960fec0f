// Package events is a small synchronous pub/sub bus. A Bus is created per
// process or session and handed to the components that report progress;
// there is no package-level instance.
package events

import (
	"slices"
	"sync"
	"time"
)

// Topics published by studykit components.
const (
	TopicSummarizeProgress    = "summarize.progress"
	TopicSummarizeAggregation = "summarize.aggregation_failed"
	TopicQuizProgress         = "quiz.progress"
	TopicPomodoroTick         = "pomodoro.tick"
	TopicPomodoroPhase        = "pomodoro.phase"
	TopicJobUpdated           = "job.updated"
)

// All subscribes a handler to every topic.
const All = "*"

type Event struct {
	Topic   string
	Payload any
	At      time.Time
}

type Handler func(Event)

type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[string]map[int]Handler
}

func New() *Bus {
	return &Bus{subs: make(map[string]map[int]Handler)}
}

// Subscribe registers fn for topic (or All) and returns a func that removes it.
func (b *Bus) Subscribe(topic string, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	b.subs[topic][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[topic], id)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
		})
	}
}

// Publish delivers payload to subscribers in subscription order, on the
// caller's goroutine. Publishing on a nil Bus is a no-op.
func (b *Bus) Publish(topic string, payload any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	type sub struct {
		id int
		fn Handler
	}
	var subs []sub
	for id, fn := range b.subs[topic] {
		subs = append(subs, sub{id, fn})
	}
	if topic != All {
		for id, fn := range b.subs[All] {
			subs = append(subs, sub{id, fn})
		}
	}
	b.mu.RUnlock()

	slices.SortFunc(subs, func(a, b sub) int { return a.id - b.id })
	ev := Event{Topic: topic, Payload: payload, At: time.Now()}
	for _, s := range subs {
		s.fn(ev)
	}
}

// Subscribers returns the number of handlers registered for topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
