package redisfabric

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// These tests exercise the adapter's pure logic and handle life-cycle
// without a live Redis server: New dials and Pings eagerly, so tests that
// need a *redis.Client use redis.NewClient directly (lazy connection,
// dialed only on first command) instead.

func TestChannelFor(t *testing.T) {
	a := &Adapter{prefix: "rosserial"}
	got := a.channelFor("/chatter")
	want := "rosserial/chatter"
	if got != want {
		t.Fatalf("channelFor = %q, want %q", got, want)
	}
}

func TestPublisherSendAfterClose(t *testing.T) {
	p := &publisher{
		client:    redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}),
		channel:   "rosserial/chatter",
		topicName: "/chatter",
	}
	p.Close()
	if err := p.Send([]byte("x")); err != errPublisherClosed {
		t.Fatalf("Send after Close = %v, want errPublisherClosed", err)
	}
}

func TestSubscriberCloseIdempotent(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	rsub := client.Subscribe(context.Background(), "rosserial/chatter")
	s := &subscriber{redisSub: rsub, cancel: func() {}}

	s.Close()
	s.Close() // must not panic or double-close
}
