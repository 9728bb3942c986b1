/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventLogGenerated     EventType = "log.generated"
	EventLogEdited        EventType = "log.edited"
	EventLogLocked        EventType = "log.locked"
	EventLogUnlocked      EventType = "log.unlocked"
	EventLogReverted      EventType = "log.reverted"
	EventLogPublished     EventType = "log.published"
	EventLogPublishFailed EventType = "log.publish_failed"
	EventSlotAssigned     EventType = "slot.assigned"
	EventSlotLinked       EventType = "slot.linked"
	EventAsPlayed         EventType = "log.as_played"
	EventImportDone       EventType = "import.done"

	// Cache invalidation events
	EventStationUpdated  EventType = "cache.station_updated"
	EventStationCreated  EventType = "cache.station_created"
	EventStationDeleted  EventType = "cache.station_deleted"
	EventContentUpdated  EventType = "cache.content_updated"
	EventContentDeleted  EventType = "cache.content_deleted"
	EventCampaignUpdated EventType = "cache.campaign_updated"
	EventClockUpdated    EventType = "cache.clock_updated"
	EventClockDeleted    EventType = "cache.clock_deleted"
)

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Forwarder mirrors local publishes to an external transport. Set by the
// distributed bridge, nil in single-instance deployments.
type Forwarder func(EventType, Payload)

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu      sync.RWMutex
	subs    map[EventType][]Subscriber
	forward Forwarder
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// SetForwarder installs the external mirror for local publishes.
func (b *Bus) SetForwarder(f Forwarder) {
	b.mu.Lock()
	b.forward = f
	b.mu.Unlock()
}

// Publish sends payload to subscribers and mirrors it externally when a
// forwarder is installed.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	forward := b.forward
	b.mu.RUnlock()

	b.Deliver(eventType, payload)
	if forward != nil {
		forward(eventType, payload)
	}
}

// Deliver fans a payload out to local subscribers only. Bridges use it to
// inject events received from other instances without re-forwarding them.
func (b *Bus) Deliver(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}
