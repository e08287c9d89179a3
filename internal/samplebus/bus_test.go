package samplebus

import (
	"sync"
	"testing"
	"time"
)

// TestBasicPublishSubscribe verifies basic functionality.
func TestBasicPublishSubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan Envelope, 10)
	if err := bus.Subscribe("test", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	bus.Publish(Envelope{Seq: 1, Device: "mock://dev1"})

	select {
	case received := <-ch:
		if received.Seq != 1 {
			t.Errorf("Expected seq 1, got %d", received.Seq)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for envelope")
	}
}

// TestNonBlockingPublish verifies Publish never blocks on a full subscriber.
func TestNonBlockingPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan Envelope, 1)
	if err := bus.Subscribe("slow", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		bus.Publish(Envelope{Seq: 1})
		bus.Publish(Envelope{Seq: 2})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked (should be non-blocking)")
	}

	if received := <-ch; received.Seq != 1 {
		t.Errorf("Expected seq 1, got %d", received.Seq)
	}

	stats := bus.Stats()
	sub := stats.Subscribers["slow"]
	if sub.Sent != 1 || sub.Dropped != 1 {
		t.Errorf("Expected sent=1 dropped=1, got sent=%d dropped=%d", sub.Sent, sub.Dropped)
	}
	if stats.TotalPublished != 2 {
		t.Errorf("Expected 2 published, got %d", stats.TotalPublished)
	}
}

func TestSubscribeErrors(t *testing.T) {
	bus := New()

	ch := make(chan Envelope, 1)
	if err := bus.Subscribe("a", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	testCases := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate", bus.Subscribe("a", ch), ErrSubscriberExists},
		{"nil_channel", bus.Subscribe("b", nil), ErrNilChannel},
		{"unknown_unsubscribe", bus.Unsubscribe("missing"), ErrSubscriberNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err != tc.want {
				t.Errorf("Expected %v, got %v", tc.want, tc.err)
			}
		})
	}

	bus.Close()
	if err := bus.Subscribe("c", ch); err != ErrBusClosed {
		t.Errorf("Expected ErrBusClosed after Close, got %v", err)
	}
	bus.Publish(Envelope{Seq: 9}) // no-op after Close
}

// TestLatestReceiver verifies the DropOld policy keeps only the newest envelope.
func TestLatestReceiver(t *testing.T) {
	bus := New()
	defer bus.Close()

	rx, err := bus.SubscribeLatest("latest")
	if err != nil {
		t.Fatalf("SubscribeLatest failed: %v", err)
	}

	if _, ok := rx.TryReceive(); ok {
		t.Fatal("Expected no envelope before first publish")
	}

	for i := uint64(1); i <= 5; i++ {
		bus.Publish(Envelope{Seq: i})
	}

	env, ok := rx.Receive()
	if !ok || env.Seq != 5 {
		t.Fatalf("Expected seq 5, got %d (ok=%v)", env.Seq, ok)
	}

	stats := bus.Stats().Subscribers["latest"]
	if stats.Sent != 5 || stats.Dropped != 4 {
		t.Errorf("Expected sent=5 dropped=4, got sent=%d dropped=%d", stats.Sent, stats.Dropped)
	}
}

// TestLatestReceiver_CloseUnblocks verifies Close wakes a blocked Receive.
func TestLatestReceiver_CloseUnblocks(t *testing.T) {
	bus := New()

	rx, err := bus.SubscribeLatest("waiter")
	if err != nil {
		t.Fatalf("SubscribeLatest failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, ok := rx.Receive(); ok {
			t.Error("Expected Receive to report closed")
		}
	}()

	time.Sleep(10 * time.Millisecond)
	bus.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Receive still blocked after Close")
	}
}
