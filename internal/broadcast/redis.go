package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	redis "github.com/redis/go-redis/v9"

	"messaging-gateway/internal/models"
)

const channelPrefix = "broadcast:"

// RedisBackend fans out group events over Redis pub/sub so multiple gateway
// processes can share groups. Local subscribers receive events through the
// Redis loopback, which keeps per-group ordering identical across processes.
type RedisBackend struct {
	client *redis.Client

	mu     sync.Mutex
	groups map[string]*redisGroup
}

type redisGroup struct {
	mu     sync.Mutex
	subs   map[Subscriber]struct{}
	pubsub *redis.PubSub
}

// redisEnvelope carries an event across the Redis channel. Data is kept raw
// so delivery does not depend on the concrete payload type.
type redisEnvelope struct {
	Type   string          `json:"type"`
	Origin int             `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

// NewRedisBackend constructs a backend from a Redis URL and verifies the
// connection.
func NewRedisBackend(redisURL string) (*RedisBackend, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisBackend{client: client, groups: make(map[string]*redisGroup)}, nil
}

// Join registers a subscriber; the first subscriber of a group opens the
// Redis subscription and starts its reader. The outer lock is held across
// the insert so a concurrent last-Leave cannot delete the group between
// lookup and registration.
func (b *RedisBackend) Join(group string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[group]
	if !ok {
		pubsub := b.client.Subscribe(context.Background(), channelPrefix+group)
		g = &redisGroup{subs: make(map[Subscriber]struct{}), pubsub: pubsub}
		b.groups[group] = g
		go b.readLoop(group, g)
	}
	g.mu.Lock()
	g.subs[sub] = struct{}{}
	g.mu.Unlock()
}

// Leave removes a subscriber; the last subscriber closes the subscription.
func (b *RedisBackend) Leave(group string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[group]
	if !ok {
		return
	}
	g.mu.Lock()
	delete(g.subs, sub)
	empty := len(g.subs) == 0
	g.mu.Unlock()
	if empty {
		_ = g.pubsub.Close()
		delete(b.groups, group)
	}
}

// Send publishes the event to the group's Redis channel. Delivery to local
// subscribers happens when the message comes back through the subscription.
func (b *RedisBackend) Send(ctx context.Context, group string, event models.ServerEvent) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	body, err := json.Marshal(redisEnvelope{Type: event.Type, Origin: event.Origin, Data: data})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelPrefix+group, body).Err()
}

// Close shuts down the client and all open subscriptions.
func (b *RedisBackend) Close() error {
	b.mu.Lock()
	for group, g := range b.groups {
		_ = g.pubsub.Close()
		delete(b.groups, group)
	}
	b.mu.Unlock()
	return b.client.Close()
}

func (b *RedisBackend) readLoop(group string, g *redisGroup) {
	for msg := range g.pubsub.Channel() {
		var env redisEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("redis broadcast decode error: %v", err)
			continue
		}
		event := models.ServerEvent{Type: env.Type, Data: env.Data, Origin: env.Origin}
		g.mu.Lock()
		for sub := range g.subs {
			sub.Deliver(event)
		}
		g.mu.Unlock()
	}
}
