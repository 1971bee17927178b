package events

import (
	"context"
	"strings"
	"sync"
)

type BatchEvent struct {
	BatchID string         `json:"batch_id"`
	Seq     int64          `json:"seq"`
	Type    string         `json:"type"`
	Ts      string         `json:"ts"`
	Source  string         `json:"source"`
	Payload map[string]any `json:"payload"`
}

type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan BatchEvent]struct{}
}

func NormalizeType(eventType string) string {
	return strings.TrimSpace(strings.ToLower(eventType))
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: map[string]map[chan BatchEvent]struct{}{},
	}
}

func (b *Broker) Subscribe(ctx context.Context, batchID string) <-chan BatchEvent {
	ch := make(chan BatchEvent, 16)

	b.mu.Lock()
	if b.subscribers[batchID] == nil {
		b.subscribers[batchID] = map[chan BatchEvent]struct{}{}
	}
	b.subscribers[batchID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if b.subscribers[batchID] != nil {
			delete(b.subscribers[batchID], ch)
			if len(b.subscribers[batchID]) == 0 {
				delete(b.subscribers, batchID)
			}
		}
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

func (b *Broker) Publish(event BatchEvent) {
	b.mu.RLock()
	subscribers := b.subscribers[event.BatchID]
	chans := make([]chan BatchEvent, 0, len(subscribers))
	for ch := range subscribers {
		chans = append(chans, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chans {
		select {
		case ch <- event:
		default:
		}
	}
}
