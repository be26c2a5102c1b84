// Package stream fans live trip updates out to websocket subscribers. With
// Redis configured, updates travel through pub/sub so every API instance sees them.
package stream

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	channelPrefix  = "trips:"
	channelSuffix  = ":track"
	channelPattern = channelPrefix + "*" + channelSuffix
	sendBuffer     = 64
)

type Hub struct {
	redis      *redis.Client
	logger     zerolog.Logger
	clients    map[string]map[*Client]struct{}
	mu         sync.RWMutex
	subscribed atomic.Bool
}

type Client struct {
	TripID string
	Send   chan []byte
}

func NewHub(redisClient *redis.Client, logger zerolog.Logger) *Hub {
	return &Hub{
		redis:   redisClient,
		logger:  logger,
		clients: map[string]map[*Client]struct{}{},
	}
}

func (h *Hub) Register(tripID string) *Client {
	client := &Client{
		TripID: tripID,
		Send:   make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[tripID] == nil {
		h.clients[tripID] = map[*Client]struct{}{}
	}
	h.clients[tripID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tripClients, ok := h.clients[client.TripID]
	if !ok {
		return
	}
	if _, ok := tripClients[client]; !ok {
		return
	}
	delete(tripClients, client)
	if len(tripClients) == 0 {
		delete(h.clients, client.TripID)
	}
	close(client.Send)
}

// Subscribers returns the number of local clients watching a trip.
func (h *Hub) Subscribers(tripID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tripID])
}

// Broadcast sends payload to everyone watching tripID. While Run holds a Redis
// subscription the message is only published, and delivered locally when it comes back.
func (h *Hub) Broadcast(ctx context.Context, tripID string, payload []byte) {
	if h.redis == nil {
		h.deliver(tripID, payload)
		return
	}

	err := h.redis.Publish(ctx, redisChannel(tripID), payload).Err()
	if err != nil {
		h.logger.Warn().Err(err).Str("trip_id", tripID).Msg("redis publish failed")
	}
	if err != nil || !h.subscribed.Load() {
		h.deliver(tripID, payload)
	}
}

// Run relays Redis messages to local clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	if h.redis == nil {
		<-ctx.Done()
		return nil
	}

	pubsub := h.redis.PSubscribe(ctx, channelPattern)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	h.subscribed.Store(true)
	defer h.subscribed.Store(false)
	h.logger.Info().Str("pattern", channelPattern).Msg("stream hub subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if tripID := tripIDFromChannel(msg.Channel); tripID != "" {
				h.deliver(tripID, []byte(msg.Payload))
			}
		}
	}
}

// Subscribed reports whether Run currently holds a Redis subscription.
func (h *Hub) Subscribed() bool {
	return h.subscribed.Load()
}

func (h *Hub) deliver(tripID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[tripID] {
		select {
		case client.Send <- payload:
		default:
			h.logger.Debug().Str("trip_id", tripID).Msg("dropping message for slow client")
		}
	}
}

func redisChannel(tripID string) string {
	return channelPrefix + tripID + channelSuffix
}

func tripIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(ch, channelPrefix), channelSuffix)
}
