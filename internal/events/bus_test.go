package events

import "testing"

func TestPublishReachesSubscribers(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(EventBlockStarted)
	b := bus.Subscribe(EventBlockStarted)
	other := bus.Subscribe(EventBlockEnded)

	bus.Publish(EventBlockStarted, Payload{"block": "b1"})

	for _, sub := range []Subscriber{a, b} {
		select {
		case p := <-sub:
			if p["block"] != "b1" {
				t.Fatalf("payload = %+v", p)
			}
		default:
			t.Fatal("subscriber did not receive event")
		}
	}
	select {
	case <-other:
		t.Fatal("unrelated subscriber received event")
	default:
	}
}

func TestSlowSubscriberSkipped(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventPositionChanged)

	// Overfill past the channel buffer; publishes must not block.
	for i := 0; i < 20; i++ {
		bus.Publish(EventPositionChanged, Payload{"n": i})
	}
	if got := len(sub); got != cap(sub) {
		t.Fatalf("buffered = %d, want %d", got, cap(sub))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventPlaybackStopped)
	bus.Unsubscribe(EventPlaybackStopped, sub)

	if _, ok := <-sub; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	bus.Publish(EventPlaybackStopped, Payload{})
}
