package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe_DeliversMatchingTopic(t *testing.T) {
	b := New()
	sub := b.Subscribe(TopicTaskPolled)
	defer b.Unsubscribe(sub)

	b.Publish(TopicTaskPolled, TaskPolledEvent{TaskID: 1, Kind: "author"})

	select {
	case ev := <-sub.Ch():
		payload, ok := ev.Payload.(TaskPolledEvent)
		if !ok || payload.TaskID != 1 {
			t.Fatalf("unexpected payload: %+v", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublish_DoesNotDeliverUnmatchedPrefix(t *testing.T) {
	b := New()
	sub := b.Subscribe(TopicCacheSwept)
	defer b.Unsubscribe(sub)

	b.Publish(TopicDeliveryResult, DeliveryOutcomeEvent{SubscriptionID: 1, Outcome: "success"})

	select {
	case ev := <-sub.Ch():
		t.Fatalf("unexpected event delivered: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribe_EmptyPrefixMatchesAll(t *testing.T) {
	b := New()
	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)

	b.Publish(TopicCacheSwept, CacheSweptEvent{Removed: 3})

	select {
	case ev := <-sub.Ch():
		if ev.Topic != TopicCacheSwept {
			t.Fatalf("expected %s, got %s", TopicCacheSwept, ev.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe("")
	b.Unsubscribe(sub)

	if _, ok := <-sub.Ch(); ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestPublish_NonBlockingOnFullBuffer(t *testing.T) {
	b := New()
	sub := b.Subscribe(TopicTaskPolled)
	defer b.Unsubscribe(sub)

	for i := 0; i < defaultBufferSize+10; i++ {
		b.Publish(TopicTaskPolled, TaskPolledEvent{TaskID: int64(i)})
	}

	if got := b.DroppedEventCount(); got == 0 {
		t.Fatal("expected some events to be dropped once the buffer filled")
	}
}

func TestSubscriberCount(t *testing.T) {
	b := New()
	if got := b.SubscriberCount(); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
	sub := b.Subscribe("")
	if got := b.SubscriberCount(); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}
	b.Unsubscribe(sub)
	if got := b.SubscriberCount(); got != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", got)
	}
}
