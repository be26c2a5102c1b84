package stream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	client := hub.Register("trip-1")
	defer hub.Unregister(client)

	hub.Broadcast(context.Background(), "trip-1", []byte("hello"))

	select {
	case msg := <-client.Send:
		if string(msg) != "hello" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for message")
	}
	if hub.Subscribers("trip-1") != 1 || hub.Subscribers("trip-2") != 0 {
		t.Fatalf("unexpected subscriber counts")
	}
}

func TestHubHelpers(t *testing.T) {
	ch := redisChannel("abc")
	if ch != "trips:abc:track" {
		t.Fatalf("unexpected channel %q", ch)
	}
	if tripIDFromChannel(ch) != "abc" {
		t.Fatalf("unexpected trip id")
	}
	if tripIDFromChannel("bad") != "" || tripIDFromChannel("tracking:abc:broadcast") != "" {
		t.Fatalf("expected empty trip id")
	}
}

func TestUnregisterCloses(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	client := hub.Register("trip-2")
	hub.Unregister(client)
	_, ok := <-client.Send
	if ok {
		t.Fatalf("expected channel closed")
	}
	// second unregister is a no-op
	hub.Unregister(client)
	if hub.Subscribers("trip-2") != 0 {
		t.Fatalf("expected no subscribers")
	}
}

func TestHubRedisFanOut(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	hub := NewHub(client, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !hub.Subscribed() {
		if time.Now().After(deadline) {
			t.Fatalf("hub never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ws := hub.Register("trip-redis")
	defer hub.Unregister(ws)

	hub.Broadcast(context.Background(), "trip-redis", []byte("ping"))
	select {
	case msg := <-ws.Send:
		if string(msg) != "ping" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for broadcast")
	}

	// a publish from another instance reaches local clients
	if err := client.Publish(context.Background(), "trips:trip-redis:track", "pong").Err(); err != nil {
		t.Fatalf("publish error: %v", err)
	}
	select {
	case msg := <-ws.Send:
		if string(msg) != "pong" {
			t.Fatalf("unexpected message from redis")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for redis message")
	}

	// delivered exactly once
	select {
	case msg := <-ws.Send:
		t.Fatalf("unexpected duplicate %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubRedisPublishErrorFallsBackToLocal(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	server.Close()
	defer client.Close()

	hub := NewHub(client, zerolog.Nop())
	ws := hub.Register("trip-bad")
	defer hub.Unregister(ws)

	hub.Broadcast(context.Background(), "trip-bad", []byte("ping"))
	select {
	case msg := <-ws.Send:
		if string(msg) != "ping" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected local delivery")
	}
}

func TestHubRunWithoutRedis(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := hub.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
}
