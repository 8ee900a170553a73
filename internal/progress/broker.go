// Package progress fans critique ticks and terminal records out to UI
// subscribers.
package progress

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 64

const (
	EventTick     = "tick"
	EventTerminal = "terminal"
)

// Event is one SSE frame.
type Event struct {
	Name string
	Data string
}

// Broker fans out events to every subscriber. Publishing never blocks.
// Slow consumers lose ticks; a terminal event evicts the oldest queued
// event instead of being dropped.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[int64]chan Event)}
}

// Subscribe registers a client and returns its id and event channel.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			if evt.Name == EventTerminal && displace(ch, evt) {
				slog.Debug("progress event evicted for terminal", "subscriber", id)
				continue
			}
			slog.Debug("progress event dropped", "subscriber", id, "event", evt.Name)
		}
	}
}

// displace makes room in a full ch by discarding its oldest events until evt
// fits.
func displace(ch chan Event, evt Event) bool {
	for range subscriberBufSize {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- evt:
			return true
		default:
		}
	}
	return false
}

// PublishJSON marshals v as the event data.
func (b *Broker) PublishJSON(name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("progress event marshal failed", "event", name, "error", err)
		return
	}
	b.Publish(Event{Name: name, Data: string(data)})
}

func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
