package services

import (
	"log/slog"
	"sync"
)

type EventType string

const (
	EventTypeExecution   EventType = "execution"
	EventTypeInstruction EventType = "instruction"
	EventTypeAgent       EventType = "agent"
)

// BroadcastChannel receives a copy of every published event. The SSE
// endpoint subscribes here.
const BroadcastChannel = "*"

type Event struct {
	CampaignID string
	Type       EventType
	Data       string // JSON payload
	Timestamp  int64
}

// EventBus fans engine events out to in-process subscribers. Purely
// advisory: correctness never depends on an event being delivered, the
// durable records are the source of truth.
type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string][]chan Event // Key: CampaignID or BroadcastChannel
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel receiving events for one campaign (or the
// broadcast channel) plus an unsubscribe func.
func (b *EventBus) Subscribe(campaignID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100) // Buffer to prevent blocking publisher
	b.subs[campaignID] = append(b.subs[campaignID], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subscribers := b.subs[campaignID]
		for i, sub := range subscribers {
			if sub == ch {
				close(ch)
				b.subs[campaignID] = append(subscribers[:i], subscribers[i+1:]...)
				break
			}
		}
		if len(b.subs[campaignID]) == 0 {
			delete(b.subs, campaignID)
		}
	}

	return ch, unsub
}

// Publish sends an event to the campaign's subscribers and to broadcast
// listeners.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := []string{e.CampaignID}
	if e.CampaignID != BroadcastChannel {
		keys = append(keys, BroadcastChannel)
	}
	for _, key := range keys {
		for _, ch := range b.subs[key] {
			select {
			case ch <- e:
			default:
				// If channel is full, drop the event rather than block.
				b.logger.Warn("event bus channel full, dropping event", "campaign_id", e.CampaignID)
			}
		}
	}
}
