package changefeed

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestLocalPublishSubscribe(t *testing.T) {
	bus := NewLocal()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := bus.Subscribe(ctx)
	b, _ := bus.Subscribe(ctx)

	if err := bus.Publish(ctx, Event{Type: Added, PostID: "p1"}); err != nil {
		t.Fatal(err)
	}

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		select {
		case ev := <-ch:
			if ev.PostID != "p1" || ev.Type != Added {
				t.Errorf("subscriber %s got %+v", name, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s received nothing", name)
		}
	}
}

func TestLocalUnsubscribeOnCancel(t *testing.T) {
	bus := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := bus.Subscribe(ctx)

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	if n := bus.Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d, want 0", n)
	}
}

func TestLocalSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewLocal()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, _ = bus.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			_ = bus.Publish(ctx, Event{Type: Modified, PostID: "p"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestRedisBus(t *testing.T) {
	url := os.Getenv("MURMUR_TEST_REDIS_URL")
	if url == "" {
		t.Skip("MURMUR_TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatal(err)
	}
	client := redis.NewClient(opt)
	defer client.Close()

	bus := NewRedis(client, "murmur:test:changes")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, Event{Type: Removed, PostID: "p9"}); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-ch:
		if ev.PostID != "p9" || ev.Type != Removed {
			t.Errorf("got %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}
