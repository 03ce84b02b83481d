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

package event_test

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/blinklabs-io/agora/event"
)

func TestEventBusSingleSubscriber(t *testing.T) {
	defer goleak.VerifyNone(t)
	var testEvtData int = 999
	var testEvtType event.EventType = "test.event"
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, subCh := eb.Subscribe(testEvtType)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, testEvtData))
	select {
	case evt, ok := <-subCh:
		if !ok {
			t.Fatalf("event channel closed unexpectedly")
		}
		switch v := evt.Data.(type) {
		case int:
			if v != testEvtData {
				t.Fatalf("did not get expected event")
			}
		default:
			t.Fatalf("event data was not of expected type, expected int, got %T", evt.Data)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for event")
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)
	var testEvtData int = 999
	var testEvtType event.EventType = "test.event"
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, sub1Ch := eb.Subscribe(testEvtType)
	_, sub2Ch := eb.Subscribe(testEvtType)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, testEvtData))
	for _, subCh := range []<-chan event.Event{sub1Ch, sub2Ch} {
		select {
		case evt, ok := <-subCh:
			if !ok {
				t.Fatalf("event channel closed unexpectedly")
			}
			if evt.Data.(int) != testEvtData {
				t.Fatalf("did not get expected event")
			}
		case <-time.After(1 * time.Second):
			t.Fatalf("timeout waiting for event")
		}
	}
}

func TestEventBusSubscribeFunc(t *testing.T) {
	var testEvtType event.EventType = "test.event"
	var callCount atomic.Int64
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	eb.SubscribeFunc(
		testEvtType,
		func(_ event.Event) {
			callCount.Add(1)
		},
	)
	for i := 0; i < 3; i++ {
		eb.Publish(testEvtType, event.NewEvent(testEvtType, nil))
	}
	deadline := time.Now().Add(1 * time.Second)
	for callCount.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf(
				"timeout waiting for handler calls: got %d, wanted 3",
				callCount.Load(),
			)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)
	var testEvtType event.EventType = "test.event"
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	subId, subCh := eb.Subscribe(testEvtType)
	eb.Unsubscribe(testEvtType, subId)
	if _, ok := <-subCh; ok {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
	// Publish with no subscribers must not block or panic
	eb.Publish(testEvtType, event.NewEvent(testEvtType, nil))
}

func TestEventBusUnsubscribeDuringBlockedPublish(t *testing.T) {
	defer goleak.VerifyNone(t)
	var testEvtType event.EventType = "test.event"
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	subId, subCh := eb.Subscribe(testEvtType)
	// Fill the subscriber buffer so the next publish blocks in the send
	for i := 0; i < event.EventQueueSize; i++ {
		eb.Publish(testEvtType, event.NewEvent(testEvtType, nil))
	}
	publishDone := make(chan struct{})
	go func() {
		defer close(publishDone)
		eb.Publish(testEvtType, event.NewEvent(testEvtType, nil))
	}()
	// Let the publisher block in the channel send before closing it out
	time.Sleep(10 * time.Millisecond)
	unsubDone := make(chan struct{})
	go func() {
		defer close(unsubDone)
		eb.Unsubscribe(testEvtType, subId)
	}()
	// Drain the channel: the blocked publish must complete and the
	// unsubscribe must close the channel behind it without a panic
	go func() {
		for range subCh { //nolint:revive
		}
	}()
	select {
	case <-publishDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for blocked publish to complete")
	}
	select {
	case <-unsubDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for unsubscribe to complete")
	}
}

func TestEventBusPublishAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	var testEvtType event.EventType = "test.event"
	eb := event.NewEventBus(nil, nil)
	_, subCh := eb.Subscribe(testEvtType)
	eb.Stop()
	if _, ok := <-subCh; ok {
		t.Fatalf("expected channel to be closed after stop")
	}
	eb.Publish(testEvtType, event.NewEvent(testEvtType, nil))
}
