package store

import (
	"context"
	"sync"
)

// TopicTelemetry is published after every telemetry insert.
const TopicTelemetry = "iot_data"

// MessagesTopic is published after a message is added to chatID.
func MessagesTopic(chatID string) string {
	return "chats/" + chatID + "/messages"
}

// Broker fans out change notifications to in-process subscribers.
// Notifications carry no payload: subscribers re-query the store.
// Each subscriber channel holds at most one pending notification, so
// bursts of writes coalesce and a slow subscriber never blocks a writer.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe returns a notification channel for topic and a cancel function.
// The channel is closed by cancel; calling cancel more than once is safe.
func (b *Broker) Subscribe(topic string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[chan struct{}]struct{})
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], ch)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish notifies every subscriber of topic.
func (b *Broker) Publish(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[topic] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers reports how many subscribers topic has.
func (b *Broker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// Watch runs load once, then again after every notification on topic, until
// ctx is cancelled or the returned stop function is called. load runs on a
// single goroutine, so invocations never overlap.
func Watch(ctx context.Context, b *Broker, topic string, load func(ctx context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	notify, unsubscribe := b.Subscribe(topic)

	go func() {
		defer unsubscribe()
		load(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-notify:
				if !ok || ctx.Err() != nil {
					return
				}
				load(ctx)
			}
		}
	}()

	return func() {
		cancel()
		unsubscribe()
	}
}
