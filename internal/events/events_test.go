package events

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestSubscribeEmitUnsubscribe(t *testing.T) {
	b := New(nil)
	var calls int
	sub := b.Subscribe(KindWeatherSafe, func(_ context.Context, e Event) error {
		calls++
		return nil
	})
	b.Emit(context.Background(), Event{Kind: KindWeatherSafe})
	b.Unsubscribe(sub)
	b.Emit(context.Background(), Event{Kind: KindWeatherSafe})

	if calls != 1 {
		t.Fatalf("expected listener invoked exactly once, got %d", calls)
	}
}

func TestFIFOPerSubscriber(t *testing.T) {
	b := New(nil)
	var got []int
	b.Subscribe(KindImageCaptured, func(_ context.Context, e Event) error {
		got = append(got, e.Data["seq"].(int))
		return nil
	})
	for i := 0; i < 5; i++ {
		b.Emit(context.Background(), Event{Kind: KindImageCaptured, Data: map[string]any{"seq": i}})
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("out of order delivery: %v", got)
		}
	}
}

func TestListenerErrorDoesNotStopDelivery(t *testing.T) {
	b := New(nil)
	var secondCalled bool
	b.Subscribe(KindServiceError, func(_ context.Context, e Event) error {
		return errors.New("boom")
	})
	b.Subscribe(KindServiceError, func(_ context.Context, e Event) error {
		secondCalled = true
		return nil
	})
	b.Emit(context.Background(), Event{Kind: KindServiceError})
	if !secondCalled {
		t.Fatalf("expected second listener to still be invoked")
	}
}

func TestListenerPanicIsRecovered(t *testing.T) {
	b := New(nil)
	var secondCalled bool
	b.Subscribe(KindServiceError, func(_ context.Context, e Event) error {
		panic("kaboom")
	})
	b.Subscribe(KindServiceError, func(_ context.Context, e Event) error {
		secondCalled = true
		return nil
	})
	b.Emit(context.Background(), Event{Kind: KindServiceError})
	if !secondCalled {
		t.Fatalf("expected second listener invoked despite first panicking")
	}
}

func TestNoCrossKindDelivery(t *testing.T) {
	b := New(nil)
	var called bool
	b.Subscribe(KindWeatherSafe, func(_ context.Context, e Event) error {
		called = true
		return nil
	})
	b.Emit(context.Background(), Event{Kind: KindWeatherUnsafe})
	if called {
		t.Fatalf("listener for a different kind should not be invoked")
	}
}

func TestConcurrentSubscribeEmit(t *testing.T) {
	b := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := b.Subscribe(KindSessionStarted, func(_ context.Context, e Event) error { return nil })
			b.Emit(context.Background(), Event{Kind: KindSessionStarted})
			b.Unsubscribe(sub)
		}()
	}
	wg.Wait()
}
