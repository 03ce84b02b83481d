// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const EventQueueSize = 20

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

// channelSubscriber wraps a subscriber channel so that delivery and close
// cannot race. Deliver blocks by sending on the underlying channel; Close
// waits for in-flight sends to finish before closing, so a sender can never
// hit a closed channel.
type channelSubscriber struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

func newChannelSubscriber(buffer int) *channelSubscriber {
	return &channelSubscriber{
		ch: make(chan Event, buffer),
	}
}

func (c *channelSubscriber) Deliver(evt Event) (err error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		// Subscriber already closed; drop the event
		return nil
	}
	// Hold the read lock across the send so Close waits for in-flight
	// sends to finish before closing the channel
	defer c.mu.RUnlock()

	// Recover just in case, so a delivery failure can't take down the process
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel deliver panic: %v", r)
		}
	}()

	c.ch <- evt
	return nil
}

func (c *channelSubscriber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// EventBus provides publish/subscribe delivery of events between components
type EventBus struct {
	subscribers map[EventType]map[EventSubscriberId]*channelSubscriber
	metrics     struct {
		eventsTotal *prometheus.CounterVec
		subscribers *prometheus.GaugeVec
	}
	lastSubId EventSubscriberId
	logger    *slog.Logger
	stopped   bool
	mu        sync.RWMutex
}

// NewEventBus creates a new EventBus. A nil registry disables metrics and a
// nil logger discards log output.
func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	e := &EventBus{
		subscribers: make(map[EventType]map[EventSubscriberId]*channelSubscriber),
		logger:      logger,
	}
	if promRegistry != nil {
		promautoFactory := promauto.With(promRegistry)
		e.metrics.eventsTotal = promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agora_events_total",
				Help: "total events published by type",
			},
			[]string{"type"},
		)
		e.metrics.subscribers = promautoFactory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agora_event_subscribers",
				Help: "current event subscribers by type",
			},
			[]string{"type"},
		)
	}
	return e
}

// Subscribe allows a consumer to receive events of a particular type via a channel
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	subId := e.lastSubId + 1
	e.lastSubId = subId
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[EventSubscriberId]*channelSubscriber)
	}
	chSub := newChannelSubscriber(EventQueueSize)
	e.subscribers[eventType][subId] = chSub
	if e.metrics.subscribers != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType)).Inc()
	}
	return subId, chSub.ch
}

// SubscribeFunc allows a consumer to receive events of a particular type via a callback function
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	subId, evtCh := e.Subscribe(eventType)
	go func() {
		for evt := range evtCh {
			handlerFunc(evt)
		}
	}()
	return subId
}

// Unsubscribe stops delivery of events for a particular type for an existing subscriber
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	var subToClose *channelSubscriber
	if evtTypeSubs, ok := e.subscribers[eventType]; ok {
		if chSub, ok2 := evtTypeSubs[subId]; ok2 {
			subToClose = chSub
			delete(evtTypeSubs, subId)
			if len(evtTypeSubs) == 0 {
				delete(e.subscribers, eventType)
			}
			if e.metrics.subscribers != nil {
				e.metrics.subscribers.WithLabelValues(string(eventType)).Dec()
			}
		}
	}
	e.mu.Unlock()
	// Close outside the bus lock: Close waits for in-flight delivery, which
	// must not stall the rest of the bus
	if subToClose != nil {
		subToClose.Close()
	}
}

// Publish allows a producer to send an event of a particular type to all
// subscribers. Delivery blocks on a full subscriber channel, preserving
// ordering per subscriber.
func (e *EventBus) Publish(eventType EventType, evt Event) {
	// Gather subscribers inside the read lock to avoid racing map mutation
	e.mu.RLock()
	if e.stopped {
		e.mu.RUnlock()
		return
	}
	subs := make([]*channelSubscriber, 0, len(e.subscribers[eventType]))
	for _, chSub := range e.subscribers[eventType] {
		subs = append(subs, chSub)
	}
	e.mu.RUnlock()
	for _, chSub := range subs {
		if err := chSub.Deliver(evt); err != nil {
			if e.logger != nil {
				e.logger.Warn(
					"event delivery failed",
					"type", eventType,
					"error", err,
					"component", "eventbus",
				)
			}
		}
	}
	if e.metrics.eventsTotal != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
	if e.logger != nil {
		e.logger.Debug(
			"published event",
			"type", eventType,
			"component", "eventbus",
		)
	}
}

// Stop closes all subscriber channels. Publish calls after Stop are dropped.
func (e *EventBus) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	var subsToClose []*channelSubscriber
	for eventType, evtTypeSubs := range e.subscribers {
		for subId, chSub := range evtTypeSubs {
			delete(evtTypeSubs, subId)
			subsToClose = append(subsToClose, chSub)
		}
		delete(e.subscribers, eventType)
	}
	if e.metrics.subscribers != nil {
		e.metrics.subscribers.Reset()
	}
	e.mu.Unlock()
	for _, chSub := range subsToClose {
		chSub.Close()
	}
}
